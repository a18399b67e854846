package infection

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"epiabm.ai/internal/sim/params"
)

// Where an agent is when its death probability is decided.
type Where uint8

const (
	AtHome Where = iota
	InHospital
	InICU
)

// Infection owns the simulation's single random stream and the disease-course
// distributions drawn from it. Every engine takes it explicitly.
type Infection struct {
	src *rand.PCG
	rng *rand.Rand

	latency     distuv.LogNormal
	variability distuv.Gamma
	otd         distuv.LogNormal
	oth         distuv.Gamma
	htd         distuv.Weibull

	ages params.Ages
}

func New(seed uint64, d params.Disease, ages params.Ages) *Infection {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Infection{
		src:         src,
		rng:         rand.New(src),
		latency:     distuv.LogNormal{Mu: d.LatencyMean, Sigma: d.LatencyStd, Src: src},
		variability: distuv.Gamma{Alpha: d.VariabilityShape, Beta: 1 / d.VariabilityScale, Src: src},
		otd:         distuv.LogNormal{Mu: d.OnsetToDeathMean, Sigma: d.OnsetToDeathStd, Src: src},
		oth:         distuv.Gamma{Alpha: d.OnsetToHospShape, Beta: 1 / d.OnsetToHospScale, Src: src},
		htd:         distuv.Weibull{K: d.HospToDeathShape, Lambda: d.HospToDeathScale, Src: src},
		ages:        ages,
	}
}

// Uniform draws from [0, 1).
func (in *Infection) Uniform() float64 { return in.rng.Float64() }

func (in *Infection) UniformRange(lo, hi float64) float64 { return lo + (hi-lo)*in.rng.Float64() }

// Int draws from [lo, hi] inclusive.
func (in *Infection) Int(lo, hi int) int {
	if hi < lo {
		panic(fmt.Sprintf("infection: empty int range [%d, %d]", lo, hi))
	}
	return lo + in.rng.IntN(hi-lo+1)
}

func (in *Infection) Shuffle(ids []int) {
	in.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func (in *Infection) Latency() float64 { return in.latency.Rand() }

func (in *Infection) Variability() float64 { return in.variability.Rand() }

func (in *Infection) TimeToDeath() float64 { return in.otd.Rand() }

func (in *Infection) TimeToHospitalization() float64 { return in.oth.Rand() }

func (in *Infection) HospitalizationToDeath() float64 { return in.htd.Rand() }

// WillBeAsymptomatic draws the asymptomatic track; asymCorr scales the
// probability of developing symptoms.
func (in *Infection) WillBeAsymptomatic(age int, asymCorr float64) bool {
	p := 1 - (1-in.ages.Asymptomatic.At(age))*asymCorr
	return in.Uniform() <= p
}

func (in *Infection) WillBeHospitalized(age int, severeCorr float64) bool {
	return in.Uniform() <= in.ages.Hospitalization.At(age)*severeCorr
}

func (in *Infection) WillBeICU(age int) bool {
	return in.Uniform() <= in.ages.ICU.At(age)
}

func (in *Infection) WillDie(age int, deathCorr float64, where Where) bool {
	var p float64
	switch where {
	case InICU:
		p = in.ages.MortalityICU.At(age)
	case InHospital:
		p = in.ages.MortalityHospitalized.At(age)
	default:
		p = in.ages.Mortality.At(age)
	}
	return in.Uniform() <= p*deathCorr
}

// State serializes the random stream position.
func (in *Infection) State() ([]byte, error) { return in.src.MarshalBinary() }

func (in *Infection) Restore(b []byte) error {
	if err := in.src.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("infection: restore rng: %w", err)
	}
	return nil
}
