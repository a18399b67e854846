package mobility

import (
	"math"
	"sort"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
)

// maxRedraws bounds redrawing while the target is an isolated household.
const maxRedraws = 1000

type Target struct {
	Kind model.LeisureKind
	ID   int
}

type candidate struct {
	target Target
	cum    float64
}

// Mobility holds, per household, the cumulative distance-decay weights over
// every other household and every public leisure site.
type Mobility struct {
	byHouse [][]candidate
}

// Weight is the attractiveness of a destination at distance d.
func Weight(cfg params.Leisure, d float64) float64 {
	w := math.Pow(d+cfg.DistanceOffset, -cfg.DistanceExponent)
	if cfg.DistanceCutoff > 0 {
		w *= math.Exp(-d / cfg.DistanceCutoff)
	}
	return w
}

func New(town *site.Town, cfg params.Leisure) *Mobility {
	m := &Mobility{byHouse: make([][]candidate, len(town.Households))}
	for i := range town.Households {
		h := &town.Households[i]
		cands := make([]candidate, 0, len(town.Households)+len(town.Leisure)-1)
		cum := 0.0
		for j := range town.Households {
			if i == j {
				continue
			}
			o := &town.Households[j]
			cum += Weight(cfg, math.Hypot(o.X-h.X, o.Y-h.Y))
			cands = append(cands, candidate{Target{model.LeisureHousehold, o.ID}, cum})
		}
		for j := range town.Leisure {
			l := &town.Leisure[j]
			if l.Outside {
				cum += cfg.OutsideWeight
			} else {
				cum += Weight(cfg, math.Hypot(l.X-h.X, l.Y-h.Y))
			}
			cands = append(cands, candidate{Target{model.LeisurePublic, l.ID}, cum})
		}
		m.byHouse[i] = cands
	}
	return m
}

// Rand is the subset of the infection collaborator used for draws.
type Rand interface {
	Uniform() float64
}

// Assign draws a destination for members of house. It returns a zero Target
// when the household has nowhere to go.
func (m *Mobility) Assign(r Rand, house int) Target {
	cands := m.byHouse[house-1]
	if len(cands) == 0 || cands[len(cands)-1].cum <= 0 {
		return Target{}
	}
	u := r.Uniform() * cands[len(cands)-1].cum
	i := sort.Search(len(cands), func(i int) bool { return cands[i].cum > u })
	if i == len(cands) {
		i = len(cands) - 1
	}
	return cands[i].target
}

// Distribute clears last step's leisure assignments and draws new ones.
func Distribute(e *simctx.Env, m *Mobility) {
	for i := range e.Agents {
		release(e, &e.Agents[i])
	}
	cfg := e.Params.Leisure
	t := e.Time
	for i := range e.Town.Households {
		house := e.Town.Households[i].ID
		if e.Isolation.Isolated(house, t) {
			continue
		}
		ids := append([]int(nil), e.Town.Households[i].AgentIDs()...)
		if e.Inf.Uniform() <= cfg.Fraction {
			visit(e, m, ids, house)
			continue
		}
		for _, id := range ids {
			a := e.Agent(id)
			if a.HouseholdID != house || !a.MoreActive(t) {
				continue
			}
			if e.Inf.Uniform() <= cfg.Fraction*cfg.MobilityIncrease {
				visit(e, m, []int{id}, house)
			}
		}
	}
}

func release(e *simctx.Env, a *model.Agent) {
	if a.LeisureID > 0 {
		switch a.Leisure {
		case model.LeisureHousehold:
			e.Town.Get(site.Household, a.LeisureID).RemoveAgent(a.ID)
		case model.LeisurePublic:
			if s := e.Town.Get(site.Leisure, a.LeisureID); !s.Outside {
				s.RemoveAgent(a.ID)
			}
		}
	}
	a.Leisure, a.LeisureID = model.LeisureNone, 0
}

// Eligible reports whether a can leave house for leisure this step.
func Eligible(a *model.Agent, house int, t float64) bool {
	switch {
	case a.State == model.Dead, a.Hospitalized, a.NonCovidPatient, a.RetirementHomeResident:
		return false
	case a.BeingTreated, a.HomeIsolated:
		return false
	case a.State == model.Symptomatic, a.FluSymptomatic:
		return false
	case a.BeingTestedAt(t):
		return false
	}
	return a.HouseholdID == house
}

func visit(e *simctx.Env, m *Mobility, ids []int, house int) {
	t := e.Time
	tgt := m.Assign(e.Inf, house)
	for n := 0; tgt.Kind == model.LeisureHousehold && e.Isolation.Isolated(tgt.ID, t); n++ {
		if n == maxRedraws {
			return
		}
		tgt = m.Assign(e.Inf, house)
	}
	if tgt.ID == 0 {
		return
	}
	for _, id := range ids {
		a := e.Agent(id)
		if !Eligible(a, house, t) {
			continue
		}
		a.Leisure, a.LeisureID = tgt.Kind, tgt.ID
		switch tgt.Kind {
		case model.LeisureHousehold:
			e.Town.Get(site.Household, tgt.ID).AddAgent(id)
			e.Visits.Add(id, tgt.ID, int(t))
		case model.LeisurePublic:
			if s := e.Town.Get(site.Leisure, tgt.ID); !s.Outside {
				s.AddAgent(id)
			}
		}
	}
}
