package params

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"epiabm.ai/internal/sim/benefit"
)

//go:embed schema.json
var schemaJSON []byte

// Params is a loaded parameter file.
type Params struct {
	Raw    []byte
	Digest string
	Config Config
}

type AgeBracket struct {
	MinAge int     `yaml:"min_age"`
	MaxAge int     `yaml:"max_age"`
	Value  float64 `yaml:"value"`
}

// AgeTable maps an age to a probability. Brackets are contiguous from age 0;
// ages past the last bracket take its value.
type AgeTable []AgeBracket

func (t AgeTable) At(age int) float64 {
	for _, b := range t {
		if age >= b.MinAge && age <= b.MaxAge {
			return b.Value
		}
	}
	if len(t) == 0 {
		panic("params: empty age table")
	}
	return t[len(t)-1].Value
}

type TestingPoint struct {
	Time        float64 `yaml:"time"`
	Symptomatic float64 `yaml:"symptomatic"`
	Exposed     float64 `yaml:"exposed"`
}

// VaccineType is one vaccine subtype. Knots are [t, v] pairs relative to the dose time.
type VaccineType struct {
	Name          string       `yaml:"name"`
	CDF           float64      `yaml:"cdf"`
	Effectiveness [][2]float64 `yaml:"effectiveness"`
	Asymptomatic  [][2]float64 `yaml:"asymptomatic"`
	Transmission  [][2]float64 `yaml:"transmission"`
	Severe        [][2]float64 `yaml:"severe"`
	Death         [][2]float64 `yaml:"death"`
}

// Curves returns the knot tables in benefit order.
func (v VaccineType) Curves() [5][]benefit.Knot {
	return [5][]benefit.Knot{
		benefit.FromPairs(v.Effectiveness),
		benefit.FromPairs(v.Asymptomatic),
		benefit.FromPairs(v.Transmission),
		benefit.FromPairs(v.Severe),
		benefit.FromPairs(v.Death),
	}
}

type file struct {
	Infection       map[string]float64  `yaml:"infection"`
	AgeTables       map[string]AgeTable `yaml:"age_tables"`
	Testing         map[string]float64  `yaml:"testing"`
	TestingSchedule []TestingPoint      `yaml:"testing_schedule"`
	Vaccination     map[string]float64  `yaml:"vaccination"`
	VaccineTypes    struct {
		OneDose  []VaccineType `yaml:"one_dose"`
		TwoDoses []VaccineType `yaml:"two_doses"`
	} `yaml:"vaccine_types"`
}

func Load(path string) (*Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func Parse(raw []byte) (*Params, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("params.yaml: %w", err)
	}
	cfg, err := resolve(&f)
	if err != nil {
		return nil, err
	}
	return &Params{Raw: raw, Digest: sha256Hex(raw), Config: cfg}, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

var compiled *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiled != nil {
		return compiled, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("params.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	s, err := c.Compile("params.schema.json")
	if err != nil {
		return nil, err
	}
	compiled = s
	return s, nil
}

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("params.yaml: %w", err)
	}
	// yaml.v3 decodes into map[string]any; a JSON round trip normalizes numbers.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("params.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("params.yaml: %w", err)
	}
	s, err := schema()
	if err != nil {
		return fmt.Errorf("params schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("params.yaml: %w", err)
	}
	return nil
}

// table resolves keys from one string-keyed section and remembers what was missing.
type table struct {
	name    string
	m       map[string]float64
	missing *[]string
}

func (t table) f(key string) float64 {
	v, ok := t.m[key]
	if !ok {
		*t.missing = append(*t.missing, t.name+": "+quote(key))
	}
	return v
}

func (t table) i(key string) int { return int(t.f(key)) }

func (t table) b(key string) bool { return t.f(key) != 0 }

func quote(key string) string { return fmt.Sprintf("%q", key) }

func resolve(f *file) (Config, error) {
	var missing []string
	inf := table{name: "infection", m: f.Infection, missing: &missing}
	tst := table{name: "testing", m: f.Testing, missing: &missing}
	vac := table{name: "vaccination", m: f.Vaccination, missing: &missing}

	var c Config
	c.Disease = Disease{
		ExposedToInfectious: inf.f("time from exposed to infectiousness"),
		RecoveryTime:        inf.f("recovery time"),
		LatencyMean:         inf.f("latency log-normal mean"),
		LatencyStd:          inf.f("latency log-normal standard deviation"),
		VariabilityShape:    inf.f("agent variability gamma shape"),
		VariabilityScale:    inf.f("agent variability gamma scale"),
		OnsetToDeathMean:    inf.f("otd logn mean"),
		OnsetToDeathStd:     inf.f("otd logn std"),
		OnsetToHospShape:    inf.f("oth gamma shape"),
		OnsetToHospScale:    inf.f("oth gamma scale"),
		HospToDeathShape:    inf.f("htd wbl shape"),
		HospToDeathScale:    inf.f("htd wbl scale"),
		DataCollectionStart: inf.f("time to start data collection"),
		FluFraction:         inf.f("fraction with flu"),
	}
	c.Rates = Rates{
		Household:        inf.f("household transmission rate"),
		HouseholdAlpha:   inf.f("household scaling parameter"),
		RHResident:       inf.f("RH resident transmission rate"),
		RHEmployee:       inf.f("RH employee transmission rate"),
		School:           inf.f("school transmission rate"),
		SchoolEmployee:   inf.f("school employee transmission rate"),
		SchoolReduction:  inf.f("school transmission reduction"),
		Workplace:        inf.f("workplace transmission rate"),
		HospitalEmployee: inf.f("healthcare employees transmission rate"),
		HospitalPatient:  inf.f("hospital patients transmission rate"),
		HospitalTested:   inf.f("hospital tested transmission rate"),
		Carpool:          inf.f("carpool transmission rate"),
		TransitBeta0:     inf.f("public transit beta0"),
		TransitBetaFull:  inf.f("public transit beta full"),
		TransitCapacity:  inf.f("public transit current capacity"),
		Leisure:          inf.f("leisure locations transmission rate"),
	}
	c.Corrections = Corrections{
		Severity:                  inf.f("severity correction"),
		WorkAbsenteeism:           inf.f("work absenteeism correction"),
		SchoolAbsenteeism:         inf.f("school absenteeism correction"),
		SchoolEmployeeAbsenteeism: inf.f("school employee absenteeism correction"),
		RHEmployeeAbsenteeism:     inf.f("RH employee absenteeism factor"),
		LockdownAbsenteeism:       inf.f("lockdown absenteeism"),
		FractionEstimatedInfected: inf.f("fraction estimated infected"),
		OutsideLeisure:            inf.f("out-of-town leisure transmission"),
	}
	c.Events = Events{
		StartTesting:  inf.f("start testing"),
		SchoolClosure: inf.f("school closure"),
		Lockdown:      inf.f("lockdown"),
		Phases: [3]float64{
			inf.f("reopening phase 1"),
			inf.f("reopening phase 2"),
			inf.f("reopening phase 3"),
		},
		FracLockdown: inf.f("fraction of ld businesses"),
		FracPhases: [4]float64{
			inf.f("fraction of phase 1 businesses"),
			inf.f("fraction of phase 2 businesses"),
			inf.f("fraction of phase 3 businesses"),
			inf.f("fraction of phase 4 businesses"),
		},
	}
	c.Leisure = Leisure{
		Fraction:         inf.f("leisure - fraction"),
		FractionInitial:  inf.f("leisure - fraction - initial"),
		FractionFinal:    inf.f("leisure - fraction - final"),
		ReopeningRate:    inf.f("leisure reopening rate"),
		MobilityIncrease: inf.f("vaccinations - mobility increase factor"),
		DistanceOffset:   inf.f("leisure - dr0"),
		DistanceExponent: inf.f("leisure - beta"),
		DistanceCutoff:   inf.f("leisure - kappa"),
		OutsideWeight:    inf.f("leisure - outside town weight"),
	}
	c.Tracing = Tracing{
		Compliance:         inf.f("contact tracing compliance"),
		MaxVisits:          inf.i("maximum number of visits to track"),
		DaysToTrack:        inf.f("days to track visits"),
		QuarantineDuration: inf.f("quarantine duration"),
		MaxSchool:          inf.i("max contacts at school"),
		MaxWorkplace:       inf.i("max contacts at workplace"),
		MaxHospital:        inf.i("max contacts at hospital"),
		MaxRHEmployees:     inf.i("max contacts at RH"),
		MaxRHResidents:     inf.i("max contacts residents at RH"),
	}
	c.Testing = Testing{
		FalsePositive:    tst.f("fraction false positive"),
		FalseNegative:    tst.f("fraction false negative"),
		InHospital:       tst.f("fraction tested in hospitals"),
		TimeToTest:       tst.f("time to test"),
		TimeUntilResults: tst.f("time until test results"),
		Schedule:         append([]TestingPoint(nil), f.TestingSchedule...),
	}
	c.Vaccination = Vaccination{
		Rate:             inf.f("vaccination rate"),
		Max:              inf.i("Maximum number to vaccinate"),
		Initial:          inf.i("initially vaccinated"),
		MinAge:           vac.i("Minimum vaccination age"),
		FractionOneDose:  vac.f("Fraction taking one dose vaccine"),
		BoosterMaxTime:   vac.f("Third dose max effects time"),
		BoosterMaxEnd:    vac.f("Third dose max effects end time"),
		BoosterNoEffects: vac.f("Third dose no effects time"),
		OffsetStart:      vac.f("Start of time offset interval"),
		OffsetEnd:        vac.f("End of time offset interval"),
		NextDose:         vac.f("Time to next vaccination"),
		Recovered:        vac.b("Vaccinate recovered"),
		FormerSuspected:  vac.b("Vaccinate former suspected"),
		OneDose:          f.VaccineTypes.OneDose,
		TwoDoses:         f.VaccineTypes.TwoDoses,
	}

	tables := map[string]*AgeTable{
		"asymptomatic":           &c.Ages.Asymptomatic,
		"hospitalization":        &c.Ages.Hospitalization,
		"icu":                    &c.Ages.ICU,
		"mortality":              &c.Ages.Mortality,
		"mortality_hospitalized": &c.Ages.MortalityHospitalized,
		"mortality_icu":          &c.Ages.MortalityICU,
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t, ok := f.AgeTables[name]
		if !ok {
			missing = append(missing, "age_tables: "+quote(name))
			continue
		}
		if err := validateAges(t); err != nil {
			return Config{}, fmt.Errorf("age_tables.%s: %w", name, err)
		}
		*tables[name] = t
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing parameters: %s", strings.Join(missing, ", "))
	}
	if err := validateSchedule(c.Testing.Schedule); err != nil {
		return Config{}, fmt.Errorf("testing_schedule: %w", err)
	}
	if err := validateVaccines("one_dose", c.Vaccination.OneDose, 4); err != nil {
		return Config{}, err
	}
	if err := validateVaccines("two_doses", c.Vaccination.TwoDoses, 5); err != nil {
		return Config{}, err
	}
	return c, nil
}

func validateAges(t AgeTable) error {
	if len(t) == 0 {
		return fmt.Errorf("empty")
	}
	next := 0
	for i, b := range t {
		if b.MinAge != next {
			return fmt.Errorf("bracket %d starts at %d want %d", i, b.MinAge, next)
		}
		if b.MaxAge < b.MinAge {
			return fmt.Errorf("bracket %d max_age %d < min_age %d", i, b.MaxAge, b.MinAge)
		}
		next = b.MaxAge + 1
	}
	return nil
}

func validateSchedule(s []TestingPoint) error {
	if len(s) == 0 {
		return fmt.Errorf("empty")
	}
	for i := 1; i < len(s); i++ {
		if s[i].Time < s[i-1].Time {
			return fmt.Errorf("entry %d time %.4g before entry %d", i, s[i].Time, i-1)
		}
	}
	return nil
}

func validateVaccines(group string, types []VaccineType, knots int) error {
	if len(types) == 0 {
		return fmt.Errorf("vaccine_types.%s: empty", group)
	}
	prev := 0.0
	for i, v := range types {
		if v.CDF < prev {
			return fmt.Errorf("vaccine_types.%s[%d]: cdf %.4g decreases", group, i, v.CDF)
		}
		prev = v.CDF
		for b, ks := range v.Curves() {
			if len(ks) != knots {
				return fmt.Errorf("vaccine_types.%s[%d]: curve %d has %d knots want %d", group, i, b, len(ks), knots)
			}
			if err := benefit.Validate(ks); err != nil {
				return fmt.Errorf("vaccine_types.%s[%d]: curve %d: %w", group, i, b, err)
			}
		}
	}
	if math.Abs(prev-1) > 1e-9 {
		return fmt.Errorf("vaccine_types.%s: cdf ends at %.4g want 1", group, prev)
	}
	return nil
}
