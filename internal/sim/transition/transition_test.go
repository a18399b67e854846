package transition

import (
	"testing"

	"epiabm.ai/internal/sim/abmtest"
	"epiabm.ai/internal/sim/benefit"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/site"
)

func exactTesting(t *testing.T) *abmtest.Harness {
	t.Helper()
	cfg := abmtest.Params(t).Config
	cfg.Testing.FalsePositive = 0
	cfg.Testing.FalseNegative = 0
	cfg.Testing.InHospital = 0
	cfg.Events.StartTesting = 0
	h := abmtest.NewWithConfig(t, &cfg, 1)
	house := h.AddSite(site.Household, 0, 0)
	h.AddAgent(30, house)
	h.AddAgent(30, house)
	return h
}

func TestStep_AsymptomaticRecoversAfterLatency(t *testing.T) {
	e := abmtest.Households(t, 1, 1, 2, 30).Build()
	a := e.Agent(1)
	a.State, a.RecoveringExposed, a.ExposureTime, a.LatencyDuration = model.Exposed, true, 0, 5

	var en Engine
	e.Time = 4.75
	if ch := en.Step(e, a); ch.Recovered != 0 || a.State != model.Exposed {
		t.Fatalf("recovered early: state=%s", a.State)
	}
	e.Time = 5
	ch := en.Step(e, a)
	if a.State != model.Recovered || ch.Recovered != 1 || ch.RecoveredExposed != 1 {
		t.Fatalf("state=%s changes=%+v", a.State, ch)
	}
}

func TestStep_DeathRemovesFromSites(t *testing.T) {
	e := abmtest.Households(t, 1, 1, 3, 80).Build()
	a := e.Agent(2)
	a.State, a.Dying, a.DeathTime, a.Test = model.Symptomatic, true, 3, model.TestedPositive

	var en Engine
	e.Time = 3
	ch := en.Step(e, a)
	if a.State != model.Dead || ch.Died != 1 || ch.DiedTested != 1 {
		t.Fatalf("state=%s changes=%+v", a.State, ch)
	}
	if n := e.Town.Get(site.Household, 1).NumAgents(); n != 2 {
		t.Fatalf("household size=%d want=2", n)
	}
	if ch := en.Step(e, a); ch != (Changes{}) {
		t.Fatalf("dead agent changed: %+v", ch)
	}
}

func TestStep_NoPressureNoExposure(t *testing.T) {
	e := abmtest.Households(t, 1, 2, 3, 30).Build()
	var en Engine
	for step := 0; step < 100; step++ {
		e.Time = float64(step) * e.Dt
		for i := range e.Agents {
			if ch := en.Step(e, &e.Agents[i]); ch.Infected != 0 {
				t.Fatalf("exposure without pressure at step %d", step)
			}
		}
	}
}

func TestStep_FullyEffectiveVaccineBlocksExposure(t *testing.T) {
	e := abmtest.Households(t, 1, 1, 2, 30).Build()
	a := e.Agent(1)
	a.Vaccinated = true
	a.Benefits[model.Effectiveness] = benefit.New([]benefit.Knot{{T: 0, V: 1}, {T: 1000, V: 1}}, 0)
	e.Town.Get(site.Household, 1).AddContribution(1e6)
	e.Town.Finalize()

	var en Engine
	for i := 0; i < 50; i++ {
		if ch := en.Step(e, a); ch.Infected != 0 {
			t.Fatalf("vaccinated agent exposed")
		}
	}

	b := e.Agent(2)
	if ch := en.Step(e, b); ch.Infected != 1 || b.State != model.Exposed {
		t.Fatalf("unvaccinated agent not exposed under huge pressure: %+v", ch)
	}
	if b.InfectiousStart < b.ExposureTime || b.InfectiousStart > b.ExposureTime+e.Params.Disease.ExposedToInfectious {
		t.Fatalf("infectious start %v outside [%v, %v]", b.InfectiousStart, b.ExposureTime, b.ExposureTime+e.Params.Disease.ExposedToInfectious)
	}
}

func TestTesting_PositiveTriggersConfirmation(t *testing.T) {
	h := exactTesting(t)
	e := h.Build()
	var confirmed []int
	e.OnConfirmedFn = func(a *model.Agent) { confirmed = append(confirmed, a.ID) }

	a := e.Agent(1)
	a.State, a.LatencyDuration = model.Exposed, 100
	scheduleTest(e, a, false)

	var en Engine
	e.Time = a.TimeOfTest
	if ch := en.Step(e, a); ch.Tested != 1 || a.Test != model.AwaitingResults {
		t.Fatalf("test not taken: %+v test=%d", ch, a.Test)
	}
	e.Time = a.TimeOfResults
	ch := en.Step(e, a)
	if ch.Positive != 1 || a.Test != model.TestedPositive || !a.HomeIsolated {
		t.Fatalf("changes=%+v test=%d isolated=%v", ch, a.Test, a.HomeIsolated)
	}
	if len(confirmed) != 1 || confirmed[0] != 1 {
		t.Fatalf("confirmed=%v want=[1]", confirmed)
	}
}

func TestTesting_NegativeClearsQuarantineAndFlu(t *testing.T) {
	h := exactTesting(t)
	e := h.Build()
	e.Flu.AddSusceptible(1)
	e.Flu.AddSusceptible(2)
	e.Flu.Fraction = 0.5
	sick := e.Flu.Generate(e.Inf)
	if len(sick) != 1 {
		t.Fatalf("sick=%v", sick)
	}
	a := e.Agent(sick[0])
	ProcessNewFlu(e, a)
	if !a.FluSymptomatic || !a.HomeIsolated || a.Test != model.AwaitingTest {
		t.Fatalf("flu agent not isolated and scheduled: %+v", a)
	}

	var en Engine
	e.Time = a.TimeOfTest
	en.Step(e, a)
	e.Time = a.TimeOfResults
	ch := en.Step(e, a)
	if ch.Negative != 1 || ch.FluResolved != 1 {
		t.Fatalf("changes=%+v", ch)
	}
	if a.FluSymptomatic || a.HomeIsolated || !a.FormerSuspected {
		t.Fatalf("flu=%v isolated=%v former=%v", a.FluSymptomatic, a.HomeIsolated, a.FormerSuspected)
	}
	other := e.Agent(3 - a.ID)
	if !other.FluSymptomatic {
		t.Fatalf("replacement flu agent not drawn")
	}
	if e.Flu.NumSick() != 1 {
		t.Fatalf("sick=%d want=1", e.Flu.NumSick())
	}
}

func TestNewQuarantined_ExpiresAfterDuration(t *testing.T) {
	cfg := abmtest.Params(t).Config
	cfg.Events.StartTesting = 1e9
	h := abmtest.NewWithConfig(t, &cfg, 1)
	house := h.AddSite(site.Household, 0, 0)
	id := h.AddAgent(30, house)
	e := h.Build()
	a := e.Agent(id)

	NewQuarantined(e, a)
	if !a.ContactTraced || !a.HomeIsolated || a.Test != model.NotTested {
		t.Fatalf("traced=%v isolated=%v test=%d", a.ContactTraced, a.HomeIsolated, a.Test)
	}
	var en Engine
	e.Time = cfg.Tracing.QuarantineDuration - e.Dt
	en.Step(e, a)
	if !a.HomeIsolated {
		t.Fatalf("quarantine lifted early")
	}
	e.Time = cfg.Tracing.QuarantineDuration
	en.Step(e, a)
	if a.ContactTraced || a.HomeIsolated {
		t.Fatalf("quarantine not lifted: traced=%v isolated=%v", a.ContactTraced, a.HomeIsolated)
	}
}

func TestStep_BoosterEligibility(t *testing.T) {
	e := abmtest.Households(t, 1, 1, 1, 30).Build()
	a := e.Agent(1)
	a.Vaccinated, a.NextVaccinationTime = true, 10
	var en Engine
	e.Time = 10
	ch := en.Step(e, a)
	if !a.NeedsNext || ch.ReVaccinate != 1 {
		t.Fatalf("needsNext=%v changes=%+v", a.NeedsNext, ch)
	}
	if ch := en.Step(e, a); ch.ReVaccinate != 0 {
		t.Fatalf("counted twice")
	}
}

func TestStep_PanicsOnUnknownState(t *testing.T) {
	e := abmtest.Households(t, 1, 1, 1, 30).Build()
	e.Agent(1).State = model.State(42)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var en Engine
	en.Step(e, e.Agent(1))
}
