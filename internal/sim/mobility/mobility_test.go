package mobility

import (
	"testing"

	"epiabm.ai/internal/sim/abmtest"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/site"
)

func TestAssign_PrefersNearbyDestinations(t *testing.T) {
	h := abmtest.New(t, 2)
	h.AddSite(site.Household, 0, 0)
	near := h.AddSite(site.Household, 1, 0)
	far := h.AddSite(site.Household, 50, 0)
	e := h.Build()
	m := New(e.Town, e.Params.Leisure)

	counts := map[int]int{}
	for i := 0; i < 2000; i++ {
		tgt := m.Assign(e.Inf, 1)
		if tgt.Kind != model.LeisureHousehold {
			t.Fatalf("kind=%d want household", tgt.Kind)
		}
		if tgt.ID == 1 {
			t.Fatalf("drew own household")
		}
		counts[tgt.ID]++
	}
	if counts[near] <= counts[far] {
		t.Fatalf("near=%d far=%d", counts[near], counts[far])
	}
}

func TestDistribute_WholeHouseholdAndCleanup(t *testing.T) {
	cfg := abmtest.Params(t).Config
	cfg.Leisure.Fraction = 1
	h := abmtest.NewWithConfig(t, &cfg, 4)
	home := h.AddSite(site.Household, 0, 0)
	park := h.AddSite(site.Leisure, 1, 1)
	a1 := h.AddAgent(30, home)
	a2 := h.AddAgent(32, home)
	sick := h.AddAgent(60, home)
	e := h.Build()
	e.Agent(sick).State = model.Symptomatic
	m := New(e.Town, e.Params.Leisure)

	Distribute(e, m)
	for _, id := range []int{a1, a2} {
		a := e.Agent(id)
		if a.Leisure != model.LeisurePublic || a.LeisureID != park {
			t.Fatalf("agent %d leisure=%d id=%d want park", id, a.Leisure, a.LeisureID)
		}
	}
	if e.Agent(sick).LeisureID != 0 {
		t.Fatalf("symptomatic agent went out")
	}
	if n := e.Town.Get(site.Leisure, park).NumAgents(); n != 2 {
		t.Fatalf("park visitors=%d want=2", n)
	}

	e.Params.Leisure.Fraction = 0
	Distribute(e, m)
	if n := e.Town.Get(site.Leisure, park).NumAgents(); n != 0 {
		t.Fatalf("park visitors after reset=%d want=0", n)
	}
	if e.Agent(a1).LeisureID != 0 {
		t.Fatalf("assignment not cleared")
	}
}

func TestDistribute_SkipsIsolatedHouseholds(t *testing.T) {
	cfg := abmtest.Params(t).Config
	cfg.Leisure.Fraction = 1
	h := abmtest.NewWithConfig(t, &cfg, 6)
	home := h.AddSite(site.Household, 0, 0)
	isolated := h.AddSite(site.Household, 0.5, 0)
	open := h.AddSite(site.Household, 1, 0)
	id := h.AddAgent(30, home)
	h.AddAgent(30, isolated)
	h.AddAgent(30, open)
	e := h.Build()
	e.Isolation.Isolate(isolated, 100)
	m := New(e.Town, e.Params.Leisure)

	for step := 0; step < 20; step++ {
		Distribute(e, m)
		a := e.Agent(id)
		if a.Leisure == model.LeisureHousehold && a.LeisureID == isolated {
			t.Fatalf("visited isolated household at step %d", step)
		}
		if e.Agent(2).LeisureID != 0 {
			t.Fatalf("member of isolated household went out")
		}
	}
	if got := e.Visits.Visitors(open, 0); len(got) == 0 || got[0] != id {
		t.Fatalf("visit to open household not logged: %v", got)
	}
}
