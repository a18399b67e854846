package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the run configuration: how long and how fast to step, which
// scenario to play, and what town to generate.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Dt    float64 `yaml:"dt"`
	Steps int     `yaml:"steps"`
	Seed  uint64  `yaml:"seed"`
	Mode  string  `yaml:"mode"`

	// StepRateHz paces Run; 0 steps as fast as possible.
	StepRateHz         int `yaml:"step_rate_hz"`
	SnapshotEverySteps int `yaml:"snapshot_every_steps"`

	Initial    Initial    `yaml:"initial"`
	Population Population `yaml:"population"`
}

type Initial struct {
	Exposed     int `yaml:"exposed"`
	ActiveCases int `yaml:"active_cases"`
	// OffsetVaccinated agents are vaccinated at setup with back-dated curves.
	OffsetVaccinated int `yaml:"offset_vaccinated"`

	// Vaccination at start of testing (events mode).
	VaccinateRandom bool     `yaml:"vaccinate_random"`
	VaccinateGroups []string `yaml:"vaccinate_groups"`
	VaccinateAll    bool     `yaml:"vaccinate_all"`
}

type Population struct {
	Seed   uint64  `yaml:"seed"`
	Extent float64 `yaml:"extent"`

	Households       int `yaml:"households"`
	MaxHouseholdSize int `yaml:"max_household_size"`

	RetirementHomes  int `yaml:"retirement_homes"`
	ResidentsPerHome int `yaml:"residents_per_home"`

	Schools           int `yaml:"schools"`
	Workplaces        int `yaml:"workplaces"`
	OutsideWorkplaces int `yaml:"outside_workplaces"`
	Hospitals         int `yaml:"hospitals"`
	NonCovidPatients  int `yaml:"non_covid_patients"`
	Carpools          int `yaml:"carpools"`
	Transit           int `yaml:"transit"`
	Leisure           int `yaml:"leisure"`
	OutsideLeisure    int `yaml:"outside_leisure"`

	EmploymentRate  float64 `yaml:"employment_rate"`
	WorkFromHome    float64 `yaml:"work_from_home"`
	CarpoolFraction float64 `yaml:"carpool_fraction"`
	TransitFraction float64 `yaml:"transit_fraction"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		Dt:                 0.25,
		Steps:              800,
		Seed:               1,
		Mode:               "events",
		SnapshotEverySteps: 200,
		Initial: Initial{
			Exposed: 5,
		},
		Population: Population{
			Seed:              1,
			Extent:            10,
			Households:        300,
			MaxHouseholdSize:  5,
			RetirementHomes:   2,
			ResidentsPerHome:  20,
			Schools:           3,
			Workplaces:        20,
			OutsideWorkplaces: 2,
			Hospitals:         1,
			NonCovidPatients:  5,
			Carpools:          30,
			Transit:           2,
			Leisure:           10,
			OutsideLeisure:    1,
			EmploymentRate:    0.8,
			WorkFromHome:      0.1,
			CarpoolFraction:   0.3,
			TransitFraction:   0.2,
		},
	}
}

// Load reads path over Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.Dt <= 0 || t.Dt > 1:
		return fmt.Errorf("dt must be in (0, 1], got %v", t.Dt)
	case t.Steps < 0:
		return fmt.Errorf("steps must be >= 0, got %d", t.Steps)
	case t.SnapshotEverySteps < 0:
		return fmt.Errorf("snapshot_every_steps must be >= 0, got %d", t.SnapshotEverySteps)
	case t.Population.Households < 1:
		return fmt.Errorf("population.households must be >= 1, got %d", t.Population.Households)
	case t.Population.MaxHouseholdSize < 1:
		return fmt.Errorf("population.max_household_size must be >= 1, got %d", t.Population.MaxHouseholdSize)
	case t.Population.NonCovidPatients > 0 && t.Population.Hospitals == 0:
		return fmt.Errorf("population.non_covid_patients needs at least one hospital")
	}
	return nil
}
