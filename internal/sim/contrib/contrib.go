package contrib

import (
	"fmt"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/simctx"
	"epiabm.ai/internal/sim/site"
)

// Compute deposits every infectious agent's weighted infectiousness into the
// sites it occupies, then finalizes each site's pressure.
func Compute(e *simctx.Env) {
	var buf []simctx.Presence
	for i := range e.Agents {
		a := &e.Agents[i]
		switch a.State {
		case model.Dead, model.Recovered:
			continue
		case model.Susceptible:
			if a.TestedInHospital && a.BeingTestedAt(e.Time) && a.HospitalID > 0 && !a.HospitalEmployee() {
				e.Town.Get(site.Hospital, a.HospitalID).IncreaseTotalTested()
			}
			continue
		case model.Exposed:
			if !a.Infectious(e.Time) {
				continue
			}
			buf = deposit(e, a, false, buf)
		case model.Symptomatic:
			buf = deposit(e, a, true, buf)
		default:
			panic(fmt.Sprintf("contrib: agent %d in unrecognized state %s", a.ID, a.State))
		}
	}
	e.Town.Finalize()
}

func deposit(e *simctx.Env, a *model.Agent, symptomatic bool, buf []simctx.Presence) []simctx.Presence {
	buf = e.Occupied(a, buf)
	for _, p := range buf {
		if p.Site.OutsideTown() {
			continue
		}
		if p.Role == site.Tested {
			p.Site.IncreaseTotalTested()
		}
		p.Site.AddContribution(a.Variability * p.Site.Weight(p.Role, symptomatic))
	}
	return buf
}

// Pressure is the summed finalized pressure over the sites a occupies.
func Pressure(e *simctx.Env, a *model.Agent, buf []simctx.Presence) (float64, []simctx.Presence) {
	buf = e.Occupied(a, buf)
	sum := 0.0
	for _, p := range buf {
		sum += p.Site.TotalContribution()
	}
	return sum, buf
}
