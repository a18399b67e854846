package abm

import (
	"context"
	"time"

	"epiabm.ai/internal/sim/contrib"
	"epiabm.ai/internal/sim/mobility"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/transition"
)

// Totals are event counters, per step or cumulative. Transition counters only
// accumulate from the data collection start time on; vaccinations always do.
type Totals struct {
	Infected         int `json:"infected"`
	Recovered        int `json:"recovered"`
	RecoveredExposed int `json:"recovered_exposed"`
	Hospitalized     int `json:"hospitalized"`
	Died             int `json:"died"`
	DiedTested       int `json:"died_tested"`
	Tested           int `json:"tested"`
	Positive         int `json:"positive"`
	Negative         int `json:"negative"`
	FalsePositive    int `json:"false_positive"`
	FalseNegative    int `json:"false_negative"`
	FluResolved      int `json:"flu_resolved"`
	Vaccinated       int `json:"vaccinated"`
}

func (t *Totals) addChanges(ch transition.Changes) {
	t.Infected += ch.Infected
	t.Recovered += ch.Recovered
	t.RecoveredExposed += ch.RecoveredExposed
	t.Hospitalized += ch.Hospitalized
	t.Died += ch.Died
	t.DiedTested += ch.DiedTested
	t.Tested += ch.Tested
	t.Positive += ch.Positive
	t.Negative += ch.Negative
	t.FalsePositive += ch.FalsePositive
	t.FalseNegative += ch.FalseNegative
	t.FluResolved += ch.FluResolved
}

func (t *Totals) add(o Totals) {
	t.Infected += o.Infected
	t.Recovered += o.Recovered
	t.RecoveredExposed += o.RecoveredExposed
	t.Hospitalized += o.Hospitalized
	t.Died += o.Died
	t.DiedTested += o.DiedTested
	t.Tested += o.Tested
	t.Positive += o.Positive
	t.Negative += o.Negative
	t.FalsePositive += o.FalsePositive
	t.FalseNegative += o.FalseNegative
	t.FluResolved += o.FluResolved
	t.Vaccinated += o.Vaccinated
}

// Compartments is a census of agent states at the end of a step.
type Compartments struct {
	Susceptible  int `json:"susceptible"`
	Exposed      int `json:"exposed"`
	Symptomatic  int `json:"symptomatic"`
	Recovered    int `json:"recovered"`
	Dead         int `json:"dead"`
	Hospitalized int `json:"hospitalized"`
	ICU          int `json:"icu"`
	Isolated     int `json:"isolated"`
	Flu          int `json:"flu"`
	Vaccinated   int `json:"vaccinated"`
}

func (c Compartments) Total() int {
	return c.Susceptible + c.Exposed + c.Symptomatic + c.Recovered + c.Dead
}

func (s *Sim) Compartments() Compartments {
	var c Compartments
	for i := range s.env.Agents {
		a := &s.env.Agents[i]
		switch a.State {
		case model.Susceptible:
			c.Susceptible++
		case model.Exposed:
			c.Exposed++
		case model.Symptomatic:
			c.Symptomatic++
		case model.Recovered:
			c.Recovered++
		case model.Dead:
			c.Dead++
		}
		if a.Hospitalized {
			c.Hospitalized++
		}
		if a.ICU {
			c.ICU++
		}
		if a.HomeIsolated {
			c.Isolated++
		}
		if a.FluSymptomatic {
			c.Flu++
		}
		if a.Vaccinated {
			c.Vaccinated++
		}
	}
	return c
}

// StepLogEntry is the record of one completed step.
type StepLogEntry struct {
	RunID        string       `json:"run_id,omitempty"`
	Step         uint64       `json:"step"`
	Time         float64      `json:"time"`
	Day          int          `json:"day"`
	New          Totals       `json:"new"`
	Totals       Totals       `json:"totals"`
	Compartments Compartments `json:"compartments"`
	Digest       string       `json:"digest"`
}

// StepOnce runs one step without pacing and returns its record.
func (s *Sim) StepOnce() StepLogEntry { return s.stepInternal() }

func (s *Sim) stepInternal() StepLogEntry {
	e := s.env
	nowStep := s.step
	e.Time = float64(nowStep) * e.Dt

	s.CheckEvents()
	mobility.Distribute(e, s.mob)
	contrib.Compute(e)

	var ch transition.Changes
	for i := range e.Agents {
		ch.Add(s.trans.Step(e, &e.Agents[i]))
	}
	e.Town.ResetSums()
	e.Isolation.Expire(e.Time)

	s.capCount -= ch.ReVaccinate
	var fresh Totals
	if e.Time >= s.cfg.Disease.DataCollectionStart-testpolicy.Tol {
		fresh.addChanges(ch)
	}
	// Doses given at setup land in the first step.
	fresh.Vaccinated, s.doses = s.doses, 0
	s.totals.add(fresh)

	s.step++
	entry := StepLogEntry{
		RunID:        s.runID,
		Step:         nowStep,
		Time:         e.Time,
		Day:          e.Day(),
		New:          fresh,
		Totals:       s.totals,
		Compartments: s.Compartments(),
		Digest:       s.stateDigest(),
	}
	for _, sink := range s.sinks {
		if err := sink.WriteStep(entry); err != nil {
			s.logf("abm: step sink: %v", err)
		}
	}

	if s.snapshotSink != nil && s.tun.SnapshotEverySteps > 0 && s.step%uint64(s.tun.SnapshotEverySteps) == 0 {
		snap, err := s.ExportSnapshot()
		if err != nil {
			s.logf("abm: export snapshot: %v", err)
		} else {
			select {
			case s.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}
	return entry
}

// Run steps until the configured step count is reached or ctx is done. With a
// step rate set, steps are paced by a ticker.
func (s *Sim) Run(ctx context.Context) error {
	target := uint64(s.tun.Steps)
	if s.tun.StepRateHz <= 0 {
		for s.step < target {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.stepInternal()
		}
		return nil
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.tun.StepRateHz))
	defer ticker.Stop()
	for s.step < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.stepInternal()
		}
	}
	return nil
}
