package vaccine

import (
	"math"
	"testing"

	"epiabm.ai/internal/sim/abmtest"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
)

// mixed builds 60 agents covering every eligibility criterion.
func mixed(t *testing.T) (*simctx.Env, *Engine) {
	t.Helper()
	h := abmtest.New(t, 9)
	rh := h.AddSite(site.RetirementHome, 0, 0)
	hosp := h.AddSite(site.Hospital, 0, 0)
	house := h.AddSite(site.Household, 0, 0)
	for i := 0; i < 60; i++ {
		id := h.AddAgent(10+i, house)
		a := h.Agent(id)
		switch i % 10 {
		case 0:
			a.State = model.Dead
		case 1:
			a.Test = model.TestedPositive
		case 2:
			a.State = model.Recovered
		case 3:
			a.FormerSuspected = true
		case 4:
			a.State = model.Symptomatic
		case 5:
			a.FluSymptomatic = true
		case 6:
			a.HomeIsolated = true
		case 7:
			a.ContactTraced = true
		case 8:
			a.Work, a.WorkID, a.HospitalID = model.WorkHospital, hosp, hosp
		case 9:
			a.Work, a.WorkID = model.WorkRetirementHome, rh
		}
	}
	e := h.Build()
	return e, New(e.Params.Vaccination)
}

func TestEligible_MatchesIndependentCount(t *testing.T) {
	e, v := mixed(t)
	cfg := e.Params.Vaccination
	want := 0
	for i := range e.Agents {
		a := &e.Agents[i]
		ok := !(a.Vaccinated && !a.NeedsNext) &&
			a.State != model.Dead &&
			a.Age >= cfg.MinAge &&
			a.Test != model.TestedPositive &&
			(a.State != model.Recovered || cfg.Recovered) &&
			(!a.FormerSuspected || cfg.FormerSuspected) &&
			a.State != model.Symptomatic && !a.FluSymptomatic &&
			!a.HomeIsolated && !a.ContactTraced
		if ok {
			want++
		}
	}
	if got := v.MaxEligibleRandom(e.Agents); got != want {
		t.Fatalf("eligible=%d want=%d", got, want)
	}
}

func TestVaccinateGroup_AllLeavesNoneEligible(t *testing.T) {
	e, v := mixed(t)
	k := v.MaxEligibleGroup(e.Agents, HospitalEmployees)
	if k == 0 {
		t.Fatalf("fixture has no eligible hospital employees")
	}
	out := v.VaccinateGroup(e, HospitalEmployees, 0, true)
	if out.Vaccinated != k || out.Clamp != ClampNone {
		t.Fatalf("outcome=%+v want vaccinated=%d", out, k)
	}
	if got := v.MaxEligibleGroup(e.Agents, HospitalEmployees); got != 0 {
		t.Fatalf("eligible after=%d want=0", got)
	}
}

func TestVaccinateRandom_ClampsToEligible(t *testing.T) {
	e, v := mixed(t)
	n := v.MaxEligibleRandom(e.Agents)
	out := v.VaccinateRandom(e, n+10)
	if out.Vaccinated != n || out.Clamp != ClampEligible || out.Requested != n+10 {
		t.Fatalf("outcome=%+v want vaccinated=%d clamp=eligible", out, n)
	}
	out = v.VaccinateRandom(e, 5)
	if out.Vaccinated != 0 || out.Clamp != ClampNone {
		t.Fatalf("empty outcome=%+v want zero", out)
	}
}

func TestCap(t *testing.T) {
	cases := []struct{ total, limit, n, want int }{
		{0, 100, 10, 10},
		{95, 100, 10, 5},
		{100, 100, 10, 0},
		{120, 100, 10, 0},
	}
	for _, c := range cases {
		if got, _ := Cap(c.total, c.limit, c.n); got != c.want {
			t.Fatalf("cap(%d,%d,%d)=%d want=%d", c.total, c.limit, c.n, got, c.want)
		}
	}
}

func TestBenefits_DefaultsForUnvaccinated(t *testing.T) {
	var a model.Agent
	if a.VaccineEffectiveness(10) != 0 {
		t.Fatalf("effectiveness for unvaccinated != 0")
	}
	for b := model.AsymptomaticCorrection; b < model.NumBenefits; b++ {
		if got := a.Correction(b, 10); got != 1 {
			t.Fatalf("%s correction=%v want=1", b, got)
		}
	}
}

func TestBooster_ContinuesFromCurrentValue(t *testing.T) {
	e, v := mixed(t)
	a := e.Agent(20)
	v.Dose(e, a, 0)
	if !a.Vaccinated || a.NextVaccinationTime != e.Params.Vaccination.NextDose {
		t.Fatalf("vaccinated=%v next=%v", a.Vaccinated, a.NextVaccinationTime)
	}
	e.Time = 300
	a.NeedsNext = true
	var before [model.NumBenefits]float64
	for b := range before {
		before[b] = a.BenefitAt(model.Benefit(b), e.Time)
	}
	v.Dose(e, a, e.Time)
	for b := range before {
		if got := a.BenefitAt(model.Benefit(b), e.Time); math.Abs(got-before[b]) > 1e-12 {
			t.Fatalf("%s jumped at booster: %v -> %v", model.Benefit(b), before[b], got)
		}
	}
	if a.NeedsNext || !a.FormerSubtype || a.Dose != model.DoseOne {
		t.Fatalf("needsNext=%v former=%v dose=%s", a.NeedsNext, a.FormerSubtype, a.Dose)
	}
	if a.TimeEffectsReduction != e.Time+e.Params.Vaccination.BoosterMaxEnd {
		t.Fatalf("reduction=%v", a.TimeEffectsReduction)
	}
}

func TestVaccinateRandomTimeOffset_BackDates(t *testing.T) {
	e, v := mixed(t)
	cfg := e.Params.Vaccination
	e.Time = 100
	out := v.VaccinateRandomTimeOffset(e, 10)
	if out.Vaccinated != 10 {
		t.Fatalf("vaccinated=%d want=10", out.Vaccinated)
	}
	for i := range e.Agents {
		a := &e.Agents[i]
		if !a.Vaccinated {
			continue
		}
		if a.VacTimeOffset > -cfg.OffsetStart || a.VacTimeOffset < -cfg.OffsetEnd {
			t.Fatalf("agent %d offset=%v outside [-%v, -%v]", a.ID, a.VacTimeOffset, cfg.OffsetEnd, cfg.OffsetStart)
		}
		if got := a.Benefits[model.Effectiveness].Origin; got != e.Time+a.VacTimeOffset {
			t.Fatalf("origin=%v want=%v", got, e.Time+a.VacTimeOffset)
		}
	}
}

func TestVaccinateRandomTimeOffset_BoosterDrawsNoOffset(t *testing.T) {
	boosted := func() *simctx.Env {
		e := abmtest.Households(t, 21, 1, 1, 40).Build()
		v := New(e.Params.Vaccination)
		v.Dose(e, e.Agent(1), 0)
		e.Time = 300
		e.Agent(1).NeedsNext = true
		return e
	}
	e, ref := boosted(), boosted()
	v := New(e.Params.Vaccination)
	if out := v.VaccinateRandomTimeOffset(e, 1); out.Vaccinated != 1 {
		t.Fatalf("vaccinated=%d want=1", out.Vaccinated)
	}
	a := e.Agent(1)
	if a.NeedsNext || !a.FormerSubtype {
		t.Fatalf("booster not given: needsNext=%v former=%v", a.NeedsNext, a.FormerSubtype)
	}
	if got, want := e.Inf.Uniform(), ref.Inf.Uniform(); got != want {
		t.Fatalf("random stream advanced by booster: got=%v want=%v", got, want)
	}
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup("retirement home residents")
	if err != nil || g != RetirementHomeResidents {
		t.Fatalf("g=%v err=%v", g, err)
	}
	if _, err := ParseGroup("teachers"); err == nil {
		t.Fatalf("expected error for unknown group")
	}
}
