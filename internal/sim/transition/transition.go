package transition

import (
	"fmt"
	"math"

	"epiabm.ai/internal/sim/contrib"
	"epiabm.ai/internal/sim/infection"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
)

// Changes counts what happened to agents during one step.
type Changes struct {
	Infected         int
	Recovered        int
	RecoveredExposed int
	Hospitalized     int
	Died             int
	DiedTested       int
	Tested           int
	Positive         int
	Negative         int
	FalsePositive    int
	FalseNegative    int
	FluResolved      int
	ReVaccinate      int
}

func (c *Changes) Add(o Changes) {
	c.Infected += o.Infected
	c.Recovered += o.Recovered
	c.RecoveredExposed += o.RecoveredExposed
	c.Hospitalized += o.Hospitalized
	c.Died += o.Died
	c.DiedTested += o.DiedTested
	c.Tested += o.Tested
	c.Positive += o.Positive
	c.Negative += o.Negative
	c.FalsePositive += o.FalsePositive
	c.FalseNegative += o.FalseNegative
	c.FluResolved += o.FluResolved
	c.ReVaccinate += o.ReVaccinate
}

// Engine runs per-agent transitions. It keeps a scratch buffer between calls.
type Engine struct {
	buf []simctx.Presence
}

// Step advances one agent by one time step. Dead agents are skipped.
func (en *Engine) Step(e *simctx.Env, a *model.Agent) Changes {
	var ch Changes
	if a.State == model.Dead {
		return ch
	}
	common(e, a, &ch)
	switch a.State {
	case model.Susceptible:
		en.susceptible(e, a, &ch)
	case model.Exposed:
		exposed(e, a, &ch)
	case model.Symptomatic:
		symptomatic(e, a, &ch)
	case model.Recovered:
		runTests(e, a, &ch)
	default:
		panic(fmt.Sprintf("transition: agent %d in unrecognized state %s", a.ID, a.State))
	}
	return ch
}

func common(e *simctx.Env, a *model.Agent, ch *Changes) {
	t := e.Time
	if a.QuarantineEnd > 0 && t >= a.QuarantineEnd {
		a.QuarantineEnd = 0
		a.ContactTraced = false
		if a.Test == model.TestedFalsePositive {
			a.Test = model.NotTested
			resolveFlu(e, a, ch)
		}
		if !otherwiseIsolated(a) {
			a.HomeIsolated = false
		}
	}
	if a.Vaccinated && !a.NeedsNext && a.NextVaccinationTime > 0 && t >= a.NextVaccinationTime {
		a.NeedsNext = true
		ch.ReVaccinate++
	}
}

func otherwiseIsolated(a *model.Agent) bool {
	if a.FluSymptomatic {
		return true
	}
	if a.Test.InPipeline() && a.State == model.Symptomatic {
		return true
	}
	return a.Test == model.TestedPositive && a.Infected()
}

func (en *Engine) susceptible(e *simctx.Env, a *model.Agent, ch *Changes) {
	runTests(e, a, ch)
	var sum float64
	sum, en.buf = contrib.Pressure(e, a, en.buf)
	p := (1 - math.Exp(-e.Dt*sum)) * (1 - a.VaccineEffectiveness(e.Time))
	if e.Inf.Uniform() < p {
		Expose(e, a)
		ch.Infected++
	}
}

// Expose moves a susceptible agent to Exposed and draws its disease course.
func Expose(e *simctx.Env, a *model.Agent) {
	t := e.Time
	cfg := e.Params
	if a.FluSymptomatic {
		var ch Changes
		resolveFlu(e, a, &ch)
	}
	e.Flu.RemoveSusceptible(a.ID)

	a.State = model.Exposed
	a.ExposureTime = t
	a.RecoveringExposed = e.Inf.WillBeAsymptomatic(a.Age, a.Correction(model.AsymptomaticCorrection, t))
	latency := e.Inf.Latency()
	a.InfectiousStart = t + math.Min(cfg.Disease.ExposedToInfectious, latency)
	a.LatencyDuration = latency
	if a.RecoveringExposed {
		a.LatencyDuration += cfg.Disease.RecoveryTime
	}
	a.Variability = e.Inf.Variability() * a.Correction(model.TransmissionCorrection, t)

	if e.Testing.Started(t) && a.Test.CanRetest() && e.Inf.Uniform() < e.Testing.ExposedFraction() {
		scheduleTest(e, a, false)
	}
}

func exposed(e *simctx.Env, a *model.Agent, ch *Changes) {
	runTests(e, a, ch)
	if e.Time < a.ExposureTime+a.LatencyDuration {
		return
	}
	if a.RecoveringExposed {
		recoverAgent(e, a, ch)
		ch.RecoveredExposed++
		return
	}
	onset(e, a)
}

func onset(e *simctx.Env, a *model.Agent) {
	t := e.Time
	cfg := e.Params
	inf := e.Inf
	a.State = model.Symptomatic
	dth := a.Correction(model.DeathCorrection, t)
	if inf.WillBeHospitalized(a.Age, a.Correction(model.SevereCorrection, t)) {
		a.WillBeHospitalized = true
		a.WillBeICU = inf.WillBeICU(a.Age)
		a.HospitalizationTime = t + inf.TimeToHospitalization()
		where := infection.InHospital
		if a.WillBeICU {
			where = infection.InICU
		}
		if inf.WillDie(a.Age, dth, where) {
			a.Dying = true
			a.DeathTime = a.HospitalizationTime + inf.HospitalizationToDeath()
		} else {
			a.Recovering = true
			a.RecoveryTime = a.HospitalizationTime + cfg.Disease.RecoveryTime
		}
	} else if inf.WillDie(a.Age, dth, infection.AtHome) {
		a.Dying = true
		a.DeathTime = t + inf.TimeToDeath()
	} else {
		a.Recovering = true
		a.RecoveryTime = t + cfg.Disease.RecoveryTime
	}

	if a.Test.InPipeline() {
		a.HomeIsolated = true
		return
	}
	if e.Testing.Started(t) && a.Test.CanRetest() && inf.Uniform() < e.Testing.SymptomaticFraction() {
		scheduleTest(e, a, true)
	}
}

func symptomatic(e *simctx.Env, a *model.Agent, ch *Changes) {
	t := e.Time
	runTests(e, a, ch)
	if a.WillBeHospitalized && !a.Hospitalized && t >= a.HospitalizationTime {
		if hospitalize(e, a) {
			ch.Hospitalized++
		}
	}
	if a.Dying && t >= a.DeathTime {
		die(e, a, ch)
		return
	}
	if a.Recovering && t >= a.RecoveryTime {
		recoverAgent(e, a, ch)
	}
}

func hospitalize(e *simctx.Env, a *model.Agent) bool {
	if !assignHospital(e, a) {
		a.BeingTreated = true
		return false
	}
	a.Hospitalized = true
	a.ICU = a.WillBeICU
	a.BeingTreated = true
	e.Town.Get(site.Hospital, a.HospitalID).AddAgent(a.ID)
	if e.Testing.Started(e.Time) && a.Test.CanRetest() {
		a.Test = model.AwaitingTest
		a.TestedInHospital = true
		a.TimeOfTest = e.Time
		a.TimeOfResults = e.Time + e.Testing.TimeUntilResults()
	}
	return true
}

func assignHospital(e *simctx.Env, a *model.Agent) bool {
	if a.HospitalID > 0 {
		return true
	}
	n := len(e.Town.Hospitals)
	if n == 0 {
		return false
	}
	a.HospitalID = e.Inf.Int(1, n)
	return true
}

func die(e *simctx.Env, a *model.Agent, ch *Changes) {
	ch.Died++
	if a.Test == model.TestedPositive {
		ch.DiedTested++
	}
	a.State = model.Dead
	a.Dying, a.Recovering = false, false
	a.Hospitalized, a.ICU, a.BeingTreated, a.HomeIsolated = false, false, false, false
	e.Remove(a)
	e.Flu.RemoveSusceptible(a.ID)
}

func recoverAgent(e *simctx.Env, a *model.Agent, ch *Changes) {
	ch.Recovered++
	if a.Hospitalized {
		e.Town.Get(site.Hospital, a.HospitalID).RemoveAgent(a.ID)
	}
	a.State = model.Recovered
	a.Recovering, a.RecoveringExposed = false, false
	a.Hospitalized, a.ICU, a.BeingTreated = false, false, false
	if a.Test.InPipeline() {
		a.Test = model.NotTested
	}
	a.HomeIsolated = a.ContactTraced
}
