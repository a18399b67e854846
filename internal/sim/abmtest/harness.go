package abmtest

import (
	"testing"

	"epiabm.ai/internal/sim/flu"
	"epiabm.ai/internal/sim/infection"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/visits"
)

// ParamsPath is relative to any package directory under internal/<area>/<pkg>.
const ParamsPath = "../../../configs/params.yaml"

// Params loads the repository parameter file.
func Params(t testing.TB) *params.Params {
	t.Helper()
	p, err := params.Load(ParamsPath)
	if err != nil {
		t.Fatalf("load params: %v", err)
	}
	return p
}

// Harness builds a small hand-made town around a simctx.Env so engine tests
// can set up exact preconditions. Call Build after adding sites and agents.
type Harness struct {
	T   testing.TB
	Cfg *params.Config
	Env *simctx.Env
}

func New(t testing.TB, seed uint64) *Harness {
	t.Helper()
	p := Params(t)
	cfg := p.Config
	return NewWithConfig(t, &cfg, seed)
}

func NewWithConfig(t testing.TB, cfg *params.Config, seed uint64) *Harness {
	t.Helper()
	env := &simctx.Env{
		Dt:        0.25,
		Town:      &site.Town{},
		Params:    cfg,
		Inf:       infection.New(seed, cfg.Disease, cfg.Ages),
		Testing:   testpolicy.New(cfg.Events.StartTesting, cfg.Testing),
		Flu:       flu.New(cfg.Disease.FluFraction),
		Visits:    visits.NewLog(cfg.Tracing.MaxVisits, cfg.Tracing.DaysToTrack),
		Isolation: visits.NewIsolation(),
	}
	return &Harness{T: t, Cfg: cfg, Env: env}
}

// AddSite appends a site of kind k and returns its ID.
func (h *Harness) AddSite(k site.Kind, x, y float64) int {
	town := h.Env.Town
	var s *[]site.Site
	switch k {
	case site.Household:
		s = &town.Households
	case site.RetirementHome:
		s = &town.RetirementHomes
	case site.School:
		s = &town.Schools
	case site.Workplace:
		s = &town.Workplaces
	case site.Hospital:
		s = &town.Hospitals
	case site.Carpool:
		s = &town.Carpools
	case site.PublicTransit:
		s = &town.Transit
	case site.Leisure:
		s = &town.Leisure
	default:
		h.T.Fatalf("unknown site kind %d", k)
	}
	id := len(*s) + 1
	*s = append(*s, site.New(id, k, x, y))
	return id
}

// AddAgent appends a susceptible agent living in household house and returns its ID.
func (h *Harness) AddAgent(age, house int) int {
	id := len(h.Env.Agents) + 1
	h.Env.Agents = append(h.Env.Agents, model.Agent{ID: id, Age: age, HouseholdID: house, Variability: 1})
	return id
}

func (h *Harness) Agent(id int) *model.Agent { return h.Env.Agent(id) }

// Build configures site rates from the parameters and registers agents.
func (h *Harness) Build() *simctx.Env {
	h.Env.Town.Configure(h.Cfg)
	h.Env.RegisterAgents()
	return h.Env
}

// Households creates n households each with size agents of the given age and returns the env.
func Households(t testing.TB, seed uint64, n, size, age int) *Harness {
	t.Helper()
	h := New(t, seed)
	for i := 0; i < n; i++ {
		hid := h.AddSite(site.Household, float64(i), 0)
		for j := 0; j < size; j++ {
			h.AddAgent(age, hid)
		}
	}
	return h
}
