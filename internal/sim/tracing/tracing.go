package tracing

import (
	"sort"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
)

// Trace collects the contacts of a newly confirmed agent, in ascending ID order.
// Households the agent visited are isolated with probability equal to the
// tracing compliance. The confirmed agent itself, dead agents and agents in
// hospital care are never returned.
func Trace(e *simctx.Env, a *model.Agent) []int {
	if a.NonCovidPatient || a.Hospitalized || a.ICU {
		return nil
	}
	cfg := e.Params.Tracing
	set := map[int]struct{}{}
	add := func(ids []int) {
		for _, id := range ids {
			if id != a.ID {
				set[id] = struct{}{}
			}
		}
	}
	upTo := func(ids []int, n int) []int { return sample(e, a.ID, ids, n) }

	if a.Student {
		add(upTo(e.Town.Get(site.School, a.SchoolID).AgentIDs(), cfg.MaxSchool))
	}
	if a.Works() && !a.WorksFromHome {
		switch a.Work {
		case model.WorkRetirementHome:
			rh := e.Town.Get(site.RetirementHome, a.WorkID)
			emp, res := splitResidents(e, rh)
			add(upTo(emp, cfg.MaxRHEmployees))
			add(upTo(res, cfg.MaxRHResidents))
		case model.WorkSchool:
			add(upTo(e.Town.Get(site.School, a.WorkID).AgentIDs(), cfg.MaxSchool))
		case model.WorkPlace:
			add(upTo(e.Town.Get(site.Workplace, a.WorkID).AgentIDs(), cfg.MaxWorkplace))
		case model.WorkHospital:
			add(upTo(e.Town.Get(site.Hospital, a.WorkID).AgentIDs(), cfg.MaxHospital))
		}
	}
	if a.Travel == model.TravelCarpool {
		add(e.Town.Get(site.Carpool, a.CarpoolID).AgentIDs())
	}

	if a.RetirementHomeResident {
		add(e.Town.Get(site.RetirementHome, a.HouseholdID).AgentIDs())
	} else if a.HouseholdID > 0 {
		day := e.Day()
		until := e.Time + cfg.QuarantineDuration
		for _, house := range e.Visits.VisitedBy(a.ID, day) {
			add(residents(e, house))
			if e.Inf.Uniform() < cfg.Compliance {
				e.Isolation.Isolate(house, until)
			}
		}
		add(e.Visits.Visitors(a.HouseholdID, day))
		add(residents(e, a.HouseholdID))
	}

	out := make([]int, 0, len(set))
	for id := range set {
		c := e.Agent(id)
		if c.State == model.Dead || c.NonCovidPatient || c.Hospitalized || c.ICU {
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// sample returns ids without self, shuffled and cut to n when longer than n.
func sample(e *simctx.Env, self int, ids []int, n int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	if len(out) <= n {
		return out
	}
	e.Inf.Shuffle(out)
	return out[:n]
}

func residents(e *simctx.Env, house int) []int {
	var out []int
	for _, id := range e.Town.Get(site.Household, house).AgentIDs() {
		if e.Agent(id).HouseholdID == house && !e.Agent(id).RetirementHomeResident {
			out = append(out, id)
		}
	}
	return out
}

func splitResidents(e *simctx.Env, rh *site.Site) (employees, res []int) {
	for _, id := range rh.AgentIDs() {
		if a := e.Agent(id); a.RetirementHomeResident && a.HouseholdID == rh.ID {
			res = append(res, id)
		} else {
			employees = append(employees, id)
		}
	}
	return employees, res
}
