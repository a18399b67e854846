package transition

import (
	"math"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
)

func scheduleTest(e *simctx.Env, a *model.Agent, isolate bool) {
	t := e.Time
	tp := e.Testing
	a.Test = model.AwaitingTest
	a.TimeOfTest = t + tp.TimeToTest()
	a.TimeOfResults = a.TimeOfTest + tp.TimeUntilResults()
	a.TestedInHospital = a.HospitalEmployee() || a.NonCovidPatient || e.Inf.Uniform() < tp.FractionInHospital()
	if a.TestedInHospital && !assignHospital(e, a) {
		a.TestedInHospital = false
	}
	if isolate {
		a.HomeIsolated = true
	}
}

// runTests advances the test pipeline, independent of the disease state.
func runTests(e *simctx.Env, a *model.Agent, ch *Changes) {
	t := e.Time
	switch a.Test {
	case model.AwaitingTest:
		if t >= a.TimeOfTest {
			a.Test = model.AwaitingResults
			ch.Tested++
		}
	case model.AwaitingResults:
		if t >= a.TimeOfResults {
			outcome(e, a, ch)
		}
	}
}

func outcome(e *simctx.Env, a *model.Agent, ch *Changes) {
	tp := e.Testing
	if a.Infected() {
		if e.Inf.Uniform() < tp.FalseNegative() {
			a.Test = model.TestedFalseNegative
			ch.FalseNegative++
			a.HomeIsolated = a.ContactTraced || a.FluSymptomatic
			return
		}
		a.Test = model.TestedPositive
		ch.Positive++
		a.HomeIsolated = !a.Hospitalized
		e.OnConfirmed(a)
		return
	}
	if e.Inf.Uniform() < tp.FalsePositive() {
		a.Test = model.TestedFalsePositive
		ch.FalsePositive++
		a.FormerSuspected = true
		a.HomeIsolated = true
		a.QuarantineEnd = math.Max(a.QuarantineEnd, e.Time+e.Params.Tracing.QuarantineDuration)
		e.OnConfirmed(a)
		return
	}
	a.Test = model.TestedNegative
	ch.Negative++
	a.FormerSuspected = true
	a.ContactTraced = false
	a.QuarantineEnd = 0
	resolveFlu(e, a, ch)
	a.HomeIsolated = false
}

// resolveFlu ends a's flu and draws a replacement so the sick count stays constant.
func resolveFlu(e *simctx.Env, a *model.Agent, ch *Changes) {
	if !a.FluSymptomatic {
		return
	}
	a.FluSymptomatic = false
	ch.FluResolved++
	if r := e.Flu.Replace(e.Inf, a.ID); r > 0 {
		ProcessNewFlu(e, e.Agent(r))
	}
}

// ProcessNewFlu makes a sick with flu: isolated at home and scheduled for a test.
func ProcessNewFlu(e *simctx.Env, a *model.Agent) {
	a.FluSymptomatic = true
	a.HomeIsolated = true
	if a.Test.CanRetest() {
		scheduleTest(e, a, true)
	}
}

// NewQuarantined puts a contact-traced agent in home quarantine and, once
// testing has started, schedules a test for it.
func NewQuarantined(e *simctx.Env, a *model.Agent) {
	t := e.Time
	a.ContactTraced = true
	a.QuarantineEnd = math.Max(a.QuarantineEnd, t+e.Params.Tracing.QuarantineDuration)
	if !a.Hospitalized {
		a.HomeIsolated = true
	}
	if e.Testing.Started(t) && a.Test.CanRetest() && a.State != model.Dead {
		scheduleTest(e, a, !a.Hospitalized)
	}
}
