package abm

import (
	"fmt"

	"epiabm.ai/internal/persistence/snapshot"
	"epiabm.ai/internal/sim/flu"
	"epiabm.ai/internal/sim/infection"
	"epiabm.ai/internal/sim/mobility"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/site"
	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/visits"
)

// ExportSnapshot copies the full run state. Call it between steps.
func (s *Sim) ExportSnapshot() (snapshot.SnapshotV1, error) {
	e := s.env
	rng, err := e.Inf.State()
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("rng state: %w", err)
	}
	agents := make([]model.Agent, len(e.Agents))
	copy(agents, e.Agents)

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   s.runID,
			Step:    s.step,
			Time:    s.Time(),
		},
		Seed:       s.tun.Seed,
		Dt:         e.Dt,
		Mode:       s.mode.String(),
		SnapEvery:  s.tun.SnapshotEverySteps,
		Initial:    s.tun.Initial,
		ParamsHash: s.params.Digest,
		ParamsRaw:  s.params.Raw,
		Config:     s.cfg,

		Agents: agents,
		Town:   copyTown(e.Town),

		Visits:    copyVisits(e.Visits.ByHouse),
		Isolation: copyIsolation(e.Isolation.Until),
		Flu: snapshot.FluV1{
			Fraction:    e.Flu.Fraction,
			Susceptible: append([]int(nil), e.Flu.Susceptible...),
			Sick:        append([]int(nil), e.Flu.Sick...),
		},

		TestingStart: e.Testing.Start(),
		TestingIndex: e.Testing.Index(),

		Events:  s.fired,
		Leisure: s.ramp,
		RNG:     rng,

		Counters:        snapshot.CountersV1(s.totals),
		VaccineCapCount: s.capCount,
	}
	return snap, nil
}

func copyTown(t *site.Town) site.Town {
	cp := func(in []site.Site) []site.Site {
		out := make([]site.Site, len(in))
		for i := range in {
			out[i] = in[i]
			out[i].IDs = append([]int(nil), in[i].IDs...)
		}
		return out
	}
	return site.Town{
		Households:      cp(t.Households),
		RetirementHomes: cp(t.RetirementHomes),
		Schools:         cp(t.Schools),
		Workplaces:      cp(t.Workplaces),
		Hospitals:       cp(t.Hospitals),
		Carpools:        cp(t.Carpools),
		Transit:         cp(t.Transit),
		Leisure:         cp(t.Leisure),
	}
}

func copyVisits(in map[int][]visits.Visit) map[int][]visits.Visit {
	out := make(map[int][]visits.Visit, len(in))
	for k, v := range in {
		out[k] = append([]visits.Visit(nil), v...)
	}
	return out
}

func copyIsolation(in map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FromSnapshot resumes a run. Seed, dt and mode come from the snapshot;
// pacing, step count and snapshot cadence come from opts.Tuning.
func FromSnapshot(snap snapshot.SnapshotV1, opts Options) (*Sim, error) {
	p, err := params.Parse(snap.ParamsRaw)
	if err != nil {
		return nil, fmt.Errorf("snapshot params: %w", err)
	}
	if p.Digest != snap.ParamsHash {
		return nil, fmt.Errorf("snapshot params digest mismatch: %s != %s", p.Digest, snap.ParamsHash)
	}
	opts.Params = p
	opts.RunID = snap.Header.RunID
	opts.Tuning.Seed = snap.Seed
	opts.Tuning.Dt = snap.Dt
	opts.Tuning.Mode = snap.Mode
	opts.Tuning.Initial = snap.Initial
	if opts.Tuning.SnapshotEverySteps == 0 {
		opts.Tuning.SnapshotEverySteps = snap.SnapEvery
	}

	s, err := newSim(opts, snap.Config)
	if err != nil {
		return nil, err
	}
	e := s.env
	town := snap.Town
	e.Agents = snap.Agents
	e.Town = &town
	e.Time = snap.Header.Time

	e.Inf = infection.New(snap.Seed, s.cfg.Disease, s.cfg.Ages)
	if err := e.Inf.Restore(snap.RNG); err != nil {
		return nil, fmt.Errorf("snapshot rng: %w", err)
	}
	e.Testing = testpolicy.New(s.cfg.Events.StartTesting, s.cfg.Testing)
	e.Testing.SetStart(snap.TestingStart)
	e.Testing.SetIndex(snap.TestingIndex)
	e.Flu = &flu.Pool{Fraction: snap.Flu.Fraction, Susceptible: snap.Flu.Susceptible, Sick: snap.Flu.Sick}
	e.Visits = visits.NewLog(s.cfg.Tracing.MaxVisits, s.cfg.Tracing.DaysToTrack)
	for k, v := range snap.Visits {
		e.Visits.ByHouse[k] = v
	}
	e.Isolation = visits.NewIsolation()
	for k, v := range snap.Isolation {
		e.Isolation.Until[k] = v
	}

	s.mob = mobility.New(e.Town, s.cfg.Leisure)
	s.step = snap.Header.Step
	s.totals = Totals(snap.Counters)
	s.capCount = snap.VaccineCapCount
	s.fired = snap.Events
	s.ramp = snap.Leisure
	return s, nil
}
