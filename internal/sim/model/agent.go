package model

import (
	"fmt"

	"epiabm.ai/internal/sim/benefit"
)

type State uint8

const (
	Susceptible State = iota
	Exposed
	Symptomatic
	Recovered
	Dead
)

func (s State) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Exposed:
		return "exposed"
	case Symptomatic:
		return "symptomatic"
	case Recovered:
		return "recovered"
	case Dead:
		return "dead"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type TestState uint8

const (
	NotTested TestState = iota
	AwaitingTest
	AwaitingResults
	TestedPositive
	TestedNegative
	TestedFalsePositive
	TestedFalseNegative
)

// InPipeline reports whether a test is scheduled or running.
func (s TestState) InPipeline() bool { return s == AwaitingTest || s == AwaitingResults }

// CanRetest reports whether a new test may be scheduled.
func (s TestState) CanRetest() bool {
	return s == NotTested || s == TestedNegative || s == TestedFalseNegative
}

type WorkKind uint8

const (
	WorkNone WorkKind = iota
	WorkPlace
	WorkSchool
	WorkRetirementHome
	WorkHospital
)

type TravelMode uint8

const (
	TravelNone TravelMode = iota
	TravelCarpool
	TravelPublic
)

type LeisureKind uint8

const (
	LeisureNone LeisureKind = iota
	LeisureHousehold
	LeisurePublic
)

type DoseType uint8

const (
	DoseNone DoseType = iota
	DoseOne
	DoseTwo
)

func (d DoseType) String() string {
	switch d {
	case DoseOne:
		return "one_dose"
	case DoseTwo:
		return "two_doses"
	}
	return "none"
}

// Benefit indexes the five vaccine-modified quantities.
type Benefit uint8

const (
	Effectiveness Benefit = iota
	AsymptomaticCorrection
	TransmissionCorrection
	SevereCorrection
	DeathCorrection

	NumBenefits
)

func (b Benefit) String() string {
	switch b {
	case Effectiveness:
		return "effectiveness"
	case AsymptomaticCorrection:
		return "asymptomatic"
	case TransmissionCorrection:
		return "transmission"
	case SevereCorrection:
		return "severe"
	case DeathCorrection:
		return "death"
	}
	return fmt.Sprintf("benefit(%d)", uint8(b))
}

// Agent IDs are 1-based and index the owning slice as agents[ID-1].
// Affiliation IDs use 0 for none.
type Agent struct {
	ID  int
	Age int
	X   float64
	Y   float64

	// HouseholdID is the retirement home ID for residents.
	HouseholdID            int
	RetirementHomeResident bool
	Student                bool
	SchoolID               int
	Work                   WorkKind
	WorkID                 int
	WorksFromHome          bool
	HospitalID             int
	NonCovidPatient        bool
	Travel                 TravelMode
	CarpoolID              int
	TransitID              int
	Leisure                LeisureKind
	LeisureID              int

	State             State
	RecoveringExposed bool
	BeingTreated      bool
	HomeIsolated      bool
	Hospitalized      bool
	ICU               bool
	Dying             bool
	Recovering        bool
	FluSymptomatic    bool
	FormerSuspected   bool

	ExposureTime        float64
	LatencyDuration     float64
	InfectiousStart     float64
	Variability         float64
	WillBeHospitalized  bool
	WillBeICU           bool
	HospitalizationTime float64
	DeathTime           float64
	RecoveryTime        float64

	Test             TestState
	TestedInHospital bool
	TimeOfTest       float64
	TimeOfResults    float64

	ContactTraced bool
	QuarantineEnd float64

	Vaccinated           bool
	NeedsNext            bool
	NextVaccinationTime  float64
	Dose                 DoseType
	Subtype              int
	FormerSubtype        bool
	VacTimeOffset        float64
	TimeMobilityIncrease float64
	TimeEffectsReduction float64
	Benefits             [NumBenefits]benefit.Curve
}

func (a *Agent) Infected() bool { return a.State == Exposed || a.State == Symptomatic }

func (a *Agent) Removed() bool { return a.State == Recovered || a.State == Dead }

func (a *Agent) Works() bool { return a.Work != WorkNone }

func (a *Agent) HospitalEmployee() bool { return a.Work == WorkHospital }

func (a *Agent) SchoolEmployee() bool { return a.Work == WorkSchool }

func (a *Agent) RetirementHomeEmployee() bool { return a.Work == WorkRetirementHome }

// Infectious reports whether an exposed agent has passed its non-infectious latency.
func (a *Agent) Infectious(t float64) bool {
	switch a.State {
	case Exposed:
		return t >= a.InfectiousStart
	case Symptomatic:
		return true
	}
	return false
}

// BeingTestedAt reports whether the agent's scheduled test happens at or before t.
func (a *Agent) BeingTestedAt(t float64) bool {
	return a.Test == AwaitingTest && a.TimeOfTest <= t
}

// BenefitAt is the raw curve value; 0 for unvaccinated agents.
func (a *Agent) BenefitAt(b Benefit, t float64) float64 {
	c := &a.Benefits[b]
	if !c.Set() {
		return 0
	}
	return c.Eval(t)
}

func (a *Agent) VaccineEffectiveness(t float64) float64 { return a.BenefitAt(Effectiveness, t) }

// Correction is the multiplicative factor applied to a probability; 1 for unvaccinated agents.
func (a *Agent) Correction(b Benefit, t float64) float64 { return 1 - a.BenefitAt(b, t) }

// MoreActive reports whether a vaccinated agent is at peak effectiveness and travels more.
func (a *Agent) MoreActive(t float64) bool {
	if !a.Vaccinated {
		return false
	}
	return t >= a.TimeMobilityIncrease && t < a.TimeEffectsReduction
}
