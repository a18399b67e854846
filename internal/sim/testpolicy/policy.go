package testpolicy

import "epiabm.ai/internal/sim/params"

// Tol is the tolerance used when comparing the simulation clock with a scheduled time.
const Tol = 1e-3

// Policy is the testing collaborator: when testing starts, which fraction of
// symptomatic and exposed agents gets tested, and the test error rates and delays.
type Policy struct {
	start    float64
	cfg      params.Testing
	schedule []params.TestingPoint
	cur      int
}

func New(start float64, cfg params.Testing) *Policy {
	return &Policy{start: start, cfg: cfg, schedule: cfg.Schedule}
}

// SetStart moves the start of testing; used by events that start testing immediately.
func (p *Policy) SetStart(t float64) { p.start = t }

func (p *Policy) Start() float64 { return p.start }

func (p *Policy) Started(t float64) bool { return t >= p.start-Tol }

// CheckSwitchTime advances to the latest schedule entry whose time has passed.
func (p *Policy) CheckSwitchTime(t float64) {
	for p.cur+1 < len(p.schedule) && t >= p.schedule[p.cur+1].Time-Tol {
		p.cur++
	}
}

// Index is the active schedule entry; persisted in snapshots.
func (p *Policy) Index() int { return p.cur }

func (p *Policy) SetIndex(i int) {
	if i < 0 || i >= len(p.schedule) {
		i = 0
	}
	p.cur = i
}

func (p *Policy) SymptomaticFraction() float64 { return p.schedule[p.cur].Symptomatic }

func (p *Policy) ExposedFraction() float64 { return p.schedule[p.cur].Exposed }

func (p *Policy) FalsePositive() float64 { return p.cfg.FalsePositive }

func (p *Policy) FalseNegative() float64 { return p.cfg.FalseNegative }

func (p *Policy) FractionInHospital() float64 { return p.cfg.InHospital }

func (p *Policy) TimeToTest() float64 { return p.cfg.TimeToTest }

func (p *Policy) TimeUntilResults() float64 { return p.cfg.TimeUntilResults }
