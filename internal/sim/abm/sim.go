package abm

import (
	"fmt"
	"log"

	"epiabm.ai/internal/persistence/snapshot"
	"epiabm.ai/internal/sim/flu"
	"epiabm.ai/internal/sim/infection"
	"epiabm.ai/internal/sim/mobility"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/population"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/tracing"
	"epiabm.ai/internal/sim/transition"
	"epiabm.ai/internal/sim/tuning"
	"epiabm.ai/internal/sim/vaccine"
	"epiabm.ai/internal/sim/visits"
)

type Options struct {
	RunID      string
	Params     *params.Params
	Tuning     tuning.Tuning
	Population *population.Population
	Logger     *log.Logger
}

// StepSink receives one entry per completed step. Implementations must not block.
type StepSink interface {
	WriteStep(StepLogEntry) error
}

// Sim owns the whole model state and advances it one step at a time.
// It is not safe for concurrent use; feed other goroutines through sinks.
type Sim struct {
	runID  string
	params *params.Params
	tun    tuning.Tuning
	mode   Mode
	groups []vaccine.Group

	// cfg is the live parameter set; events mutate it.
	cfg params.Config

	env   *simctx.Env
	mob   *mobility.Mobility
	vac   *vaccine.Engine
	trans transition.Engine

	step     uint64
	totals   Totals
	capCount int
	doses    int

	fired snapshot.EventsV1
	ramp  snapshot.LeisureV1

	logger       *log.Logger
	sinks        []StepSink
	snapshotSink chan<- snapshot.SnapshotV1
}

// New builds a fresh run from a generated population and applies the initial
// conditions from opts.Tuning.Initial.
func New(opts Options) (*Sim, error) {
	if opts.Params == nil || opts.Population == nil {
		return nil, fmt.Errorf("abm: params and population are required")
	}
	s, err := newSim(opts, opts.Params.Config)
	if err != nil {
		return nil, err
	}
	e := s.env
	e.Agents = opts.Population.Agents
	e.Town = opts.Population.Town
	e.Inf = infection.New(opts.Tuning.Seed, s.cfg.Disease, s.cfg.Ages)
	e.Testing = testpolicy.New(s.cfg.Events.StartTesting, s.cfg.Testing)
	e.Flu = flu.New(s.cfg.Disease.FluFraction)
	e.Visits = visits.NewLog(s.cfg.Tracing.MaxVisits, s.cfg.Tracing.DaysToTrack)
	e.Isolation = visits.NewIsolation()

	e.Town.Configure(&s.cfg)
	e.RegisterAgents()
	s.mob = mobility.New(e.Town, s.cfg.Leisure)

	if s.mode != ModeEvents {
		s.initVaccinationAndReopening()
	}
	in := opts.Tuning.Initial
	if err := s.SeedExposed(in.Exposed); err != nil {
		return nil, err
	}
	if err := s.SeedActiveCases(in.ActiveCases); err != nil {
		return nil, err
	}
	if in.OffsetVaccinated > 0 {
		s.VaccinateOffset(in.OffsetVaccinated)
	}
	return s, nil
}

func newSim(opts Options, cfg params.Config) (*Sim, error) {
	mode, err := ParseMode(opts.Tuning.Mode)
	if err != nil {
		return nil, err
	}
	var groups []vaccine.Group
	for _, name := range opts.Tuning.Initial.VaccinateGroups {
		g, err := vaccine.ParseGroup(name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	s := &Sim{
		runID:  opts.RunID,
		params: opts.Params,
		tun:    opts.Tuning,
		mode:   mode,
		groups: groups,
		cfg:    cfg,
		logger: opts.Logger,
	}
	s.env = &simctx.Env{
		Dt:     opts.Tuning.Dt,
		Params: &s.cfg,
		Logger: opts.Logger,
	}
	s.env.OnConfirmedFn = s.onConfirmed
	s.vac = vaccine.New(s.cfg.Vaccination)
	return s, nil
}

// onConfirmed quarantines the untraced contacts of a confirmed agent.
func (s *Sim) onConfirmed(a *model.Agent) {
	for _, id := range tracing.Trace(s.env, a) {
		c := s.env.Agent(id)
		if c.ContactTraced {
			continue
		}
		transition.NewQuarantined(s.env, c)
	}
}

func (s *Sim) SetLogger(l *log.Logger) {
	s.logger = l
	s.env.Logger = l
}

func (s *Sim) AddStepSink(sink StepSink) { s.sinks = append(s.sinks, sink) }

func (s *Sim) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

func (s *Sim) RunID() string { return s.runID }

func (s *Sim) Mode() Mode { return s.mode }

func (s *Sim) Dt() float64 { return s.env.Dt }

// Step is the index of the next step to run.
func (s *Sim) Step() uint64 { return s.step }

func (s *Sim) Time() float64 { return float64(s.step) * s.env.Dt }

func (s *Sim) Totals() Totals { return s.totals }

func (s *Sim) Params() *params.Params { return s.params }

// Config is the live, event-adjusted parameter set.
func (s *Sim) Config() params.Config { return s.cfg }

func (s *Sim) NumAgents() int { return len(s.env.Agents) }

// Env exposes the model state for tests and diagnostics.
func (s *Sim) Env() *simctx.Env { return s.env }

func (s *Sim) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
