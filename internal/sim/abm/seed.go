package abm

import (
	"fmt"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/transition"
)

func (s *Sim) candidates(keep func(*model.Agent) bool) []int {
	var ids []int
	for i := range s.env.Agents {
		a := &s.env.Agents[i]
		if !a.NonCovidPatient && keep(a) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// SeedExposed exposes n random susceptible agents at the current time.
func (s *Sim) SeedExposed(n int) error {
	if n <= 0 {
		return nil
	}
	ids := s.candidates(func(a *model.Agent) bool { return a.State == model.Susceptible })
	if n > len(ids) {
		return fmt.Errorf("abm: %d initially exposed requested, only %d susceptible", n, len(ids))
	}
	s.env.Inf.Shuffle(ids)
	for _, id := range ids[:n] {
		transition.Expose(s.env, s.env.Agent(id))
	}
	return nil
}

// SeedActiveCases infects n random agents as cases already under way.
func (s *Sim) SeedActiveCases(n int) error {
	if n <= 0 {
		return nil
	}
	ids := s.candidates(func(a *model.Agent) bool {
		return !a.FluSymptomatic && !a.Infected() && !a.Removed()
	})
	if n > len(ids) {
		return fmt.Errorf("abm: %d initial active cases requested, only %d eligible", n, len(ids))
	}
	s.env.Inf.Shuffle(ids)
	for _, id := range ids[:n] {
		transition.SeedActive(s.env, s.env.Agent(id))
	}
	return nil
}

// AverageContacts is the mean, over living agents, of how many other agents
// share a site with them this step.
func (s *Sim) AverageContacts() float64 {
	var buf []simctx.Presence
	total, n := 0, 0
	for i := range s.env.Agents {
		a := &s.env.Agents[i]
		if a.State == model.Dead {
			continue
		}
		n++
		buf = s.env.Occupied(a, buf)
		for _, p := range buf {
			if p.Site.OutsideTown() {
				continue
			}
			if k := p.Site.NumAgents(); k > 1 {
				total += k - 1
			}
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
