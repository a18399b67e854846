package params

// Config is the resolved, typed view of a parameter file. A simulation owns a
// copy and mutates the event-driven fields (start of testing, leisure fraction).
type Config struct {
	Disease     Disease
	Rates       Rates
	Corrections Corrections
	Events      Events
	Leisure     Leisure
	Tracing     Tracing
	Testing     Testing
	Vaccination Vaccination
	Ages        Ages
}

type Disease struct {
	ExposedToInfectious float64
	RecoveryTime        float64
	LatencyMean         float64
	LatencyStd          float64
	VariabilityShape    float64
	VariabilityScale    float64
	OnsetToDeathMean    float64
	OnsetToDeathStd     float64
	OnsetToHospShape    float64
	OnsetToHospScale    float64
	HospToDeathShape    float64
	HospToDeathScale    float64
	DataCollectionStart float64
	FluFraction         float64
}

// Rates are the base transmission rates per site kind.
type Rates struct {
	Household        float64
	HouseholdAlpha   float64
	RHResident       float64
	RHEmployee       float64
	School           float64
	SchoolEmployee   float64
	SchoolReduction  float64
	Workplace        float64
	HospitalEmployee float64
	HospitalPatient  float64
	HospitalTested   float64
	Carpool          float64
	TransitBeta0     float64
	TransitBetaFull  float64
	TransitCapacity  float64
	Leisure          float64
}

// Transit is the public transit rate for a given business fraction.
func (r Rates) Transit(frac float64) float64 {
	return r.TransitBeta0 + r.TransitBetaFull*r.TransitCapacity*frac
}

type Corrections struct {
	Severity                  float64
	WorkAbsenteeism           float64
	SchoolAbsenteeism         float64
	SchoolEmployeeAbsenteeism float64
	RHEmployeeAbsenteeism     float64
	LockdownAbsenteeism       float64
	FractionEstimatedInfected float64
	OutsideLeisure            float64
}

// Events holds the schedule times and business fractions used by the events mode.
type Events struct {
	StartTesting  float64
	SchoolClosure float64
	Lockdown      float64
	Phases        [3]float64
	FracLockdown  float64
	FracPhases    [4]float64
}

type Leisure struct {
	Fraction         float64
	FractionInitial  float64
	FractionFinal    float64
	ReopeningRate    float64
	MobilityIncrease float64
	DistanceOffset   float64
	DistanceExponent float64
	DistanceCutoff   float64
	OutsideWeight    float64
}

type Tracing struct {
	Compliance         float64
	MaxVisits          int
	DaysToTrack        float64
	QuarantineDuration float64
	MaxSchool          int
	MaxWorkplace       int
	MaxHospital        int
	MaxRHEmployees     int
	MaxRHResidents     int
}

type Testing struct {
	FalsePositive    float64
	FalseNegative    float64
	InHospital       float64
	TimeToTest       float64
	TimeUntilResults float64
	Schedule         []TestingPoint
}

type Vaccination struct {
	Rate             float64
	Max              int
	Initial          int
	MinAge           int
	FractionOneDose  float64
	BoosterMaxTime   float64
	BoosterMaxEnd    float64
	BoosterNoEffects float64
	OffsetStart      float64
	OffsetEnd        float64
	NextDose         float64
	Recovered        bool
	FormerSuspected  bool
	OneDose          []VaccineType
	TwoDoses         []VaccineType
}

type Ages struct {
	Asymptomatic          AgeTable
	Hospitalization       AgeTable
	ICU                   AgeTable
	Mortality             AgeTable
	MortalityHospitalized AgeTable
	MortalityICU          AgeTable
}
