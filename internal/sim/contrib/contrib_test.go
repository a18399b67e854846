package contrib

import (
	"math"
	"testing"

	"epiabm.ai/internal/sim/abmtest"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/site"
)

func TestCompute_ExposedAndSymptomaticWeights(t *testing.T) {
	h := abmtest.New(t, 1)
	house := h.AddSite(site.Household, 0, 0)
	work := h.AddSite(site.Workplace, 0, 0)
	exp := h.AddAgent(30, house)
	sym := h.AddAgent(30, house)
	h.AddAgent(30, house)
	h.Agent(exp).Work, h.Agent(exp).WorkID = model.WorkPlace, work
	h.Agent(sym).Work, h.Agent(sym).WorkID = model.WorkPlace, work
	e := h.Build()

	a := e.Agent(exp)
	a.State, a.Variability, a.InfectiousStart = model.Exposed, 2, 0
	b := e.Agent(sym)
	b.State, b.Variability = model.Symptomatic, 1

	Compute(e)

	hs := e.Town.Get(site.Household, house)
	wantHouse := (2*hs.Beta + hs.Beta*hs.Ck*hs.Psi) / math.Pow(3, hs.Alpha)
	if got := hs.TotalContribution(); math.Abs(got-wantHouse) > 1e-12 {
		t.Fatalf("household lambda=%v want=%v", got, wantHouse)
	}
	ws := e.Town.Get(site.Workplace, work)
	wantWork := (2*ws.Beta + ws.Beta*ws.Ck*ws.Psi) / 2
	if got := ws.TotalContribution(); math.Abs(got-wantWork) > 1e-12 {
		t.Fatalf("workplace lambda=%v want=%v", got, wantWork)
	}
}

func TestCompute_IsolatedSymptomaticOnlyAtHome(t *testing.T) {
	h := abmtest.New(t, 1)
	house := h.AddSite(site.Household, 0, 0)
	work := h.AddSite(site.Workplace, 0, 0)
	id := h.AddAgent(40, house)
	h.Agent(id).Work, h.Agent(id).WorkID = model.WorkPlace, work
	e := h.Build()
	a := e.Agent(id)
	a.State, a.HomeIsolated = model.Symptomatic, true

	Compute(e)
	if got := e.Town.Get(site.Workplace, work).Sum(); got != 0 {
		t.Fatalf("workplace sum=%v want=0", got)
	}
	if got := e.Town.Get(site.Household, house).Sum(); got == 0 {
		t.Fatalf("household sum=0 want>0")
	}
}

func TestCompute_NotYetInfectiousExposedContributesNothing(t *testing.T) {
	h := abmtest.Households(t, 1, 1, 2, 30)
	e := h.Build()
	e.Time = 1
	a := e.Agent(1)
	a.State, a.InfectiousStart = model.Exposed, 3

	Compute(e)
	if got := e.Town.Get(site.Household, 1).TotalContribution(); got != 0 {
		t.Fatalf("lambda=%v want=0", got)
	}
}

func TestCompute_HospitalTestedSusceptibleCounted(t *testing.T) {
	h := abmtest.New(t, 1)
	house := h.AddSite(site.Household, 0, 0)
	hosp := h.AddSite(site.Hospital, 0, 0)
	id := h.AddAgent(40, house)
	e := h.Build()
	a := e.Agent(id)
	a.Test, a.TestedInHospital, a.HospitalID, a.TimeOfTest = model.AwaitingTest, true, hosp, 0

	Compute(e)
	if got := e.Town.Get(site.Hospital, hosp).TotalTested(); got != 1 {
		t.Fatalf("tested=%d want=1", got)
	}
	e.Town.ResetSums()
	if got := e.Town.Get(site.Hospital, hosp).TotalTested(); got != 0 {
		t.Fatalf("tested after reset=%d want=0", got)
	}
}

func TestCompute_TestedHospitalEmployeeNotCounted(t *testing.T) {
	h := abmtest.New(t, 1)
	house := h.AddSite(site.Household, 0, 0)
	hosp := h.AddSite(site.Hospital, 0, 0)
	sus := h.AddAgent(40, house)
	sick := h.AddAgent(45, house)
	for _, id := range []int{sus, sick} {
		a := h.Agent(id)
		a.Work, a.WorkID = model.WorkHospital, hosp
		a.Test, a.TestedInHospital, a.HospitalID, a.TimeOfTest = model.AwaitingTest, true, hosp, 0
	}
	e := h.Build()
	e.Agent(sick).State = model.Symptomatic

	Compute(e)
	if got := e.Town.Get(site.Hospital, hosp).TotalTested(); got != 0 {
		t.Fatalf("tested=%d want=0 for employees", got)
	}
}

func TestCompute_PanicsOnUnknownState(t *testing.T) {
	h := abmtest.Households(t, 1, 1, 1, 30)
	e := h.Build()
	e.Agent(1).State = model.State(99)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Compute(e)
}
