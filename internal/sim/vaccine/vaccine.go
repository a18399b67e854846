package vaccine

import (
	"fmt"

	"epiabm.ai/internal/sim/benefit"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/simctx"
)

type Group uint8

const (
	HospitalEmployees Group = iota
	SchoolEmployees
	RetirementHomeEmployees
	RetirementHomeResidents
)

var groupNames = [...]string{
	HospitalEmployees:       "hospital employees",
	SchoolEmployees:         "school employees",
	RetirementHomeEmployees: "retirement home employees",
	RetirementHomeResidents: "retirement home residents",
}

func (g Group) String() string {
	if int(g) < len(groupNames) {
		return groupNames[g]
	}
	return fmt.Sprintf("group(%d)", uint8(g))
}

func ParseGroup(s string) (Group, error) {
	for i, n := range groupNames {
		if n == s {
			return Group(i), nil
		}
	}
	return 0, fmt.Errorf("unknown vaccination group %q", s)
}

func InGroup(a *model.Agent, g Group) bool {
	switch g {
	case HospitalEmployees:
		return a.HospitalEmployee()
	case SchoolEmployees:
		return a.SchoolEmployee()
	case RetirementHomeEmployees:
		return a.RetirementHomeEmployee()
	case RetirementHomeResidents:
		return a.RetirementHomeResident
	}
	return false
}

// Clamp says why fewer agents than requested were vaccinated.
type Clamp uint8

const (
	ClampNone Clamp = iota
	// ClampEligible: more requested than currently eligible.
	ClampEligible
	// ClampCap: the cumulative maximum was reached.
	ClampCap
)

type Outcome struct {
	Requested  int
	Vaccinated int
	Clamp      Clamp
}

// Cap bounds a request of n doses by the remaining room under limit.
func Cap(total, limit, n int) (int, bool) {
	if total >= limit {
		return 0, true
	}
	if total+n >= limit {
		return limit - total, limit-total != n
	}
	return n, false
}

type Engine struct {
	cfg params.Vaccination
}

func New(cfg params.Vaccination) *Engine { return &Engine{cfg: cfg} }

// Eligible applies the general vaccination criteria in order.
func (v *Engine) Eligible(a *model.Agent) bool {
	switch {
	case a.Vaccinated && !a.NeedsNext:
		return false
	case a.State == model.Dead:
		return false
	case a.Age < v.cfg.MinAge:
		return false
	case a.Test == model.TestedPositive:
		return false
	case a.State == model.Recovered && !v.cfg.Recovered:
		return false
	case a.FormerSuspected && !v.cfg.FormerSuspected:
		return false
	case a.State == model.Symptomatic, a.FluSymptomatic:
		return false
	case a.HomeIsolated, a.ContactTraced:
		return false
	}
	return true
}

func (v *Engine) eligibleIDs(agents []model.Agent, keep func(*model.Agent) bool) []int {
	var ids []int
	for i := range agents {
		a := &agents[i]
		if keep(a) && v.Eligible(a) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func everyone(*model.Agent) bool { return true }

func (v *Engine) MaxEligibleRandom(agents []model.Agent) int {
	return len(v.eligibleIDs(agents, everyone))
}

func (v *Engine) MaxEligibleGroup(agents []model.Agent, g Group) int {
	return len(v.eligibleIDs(agents, func(a *model.Agent) bool { return InGroup(a, g) }))
}

// VaccinateRandom doses n random eligible agents now.
func (v *Engine) VaccinateRandom(e *simctx.Env, n int) Outcome {
	ids := v.eligibleIDs(e.Agents, everyone)
	return v.pick(e, ids, n, false, "random", func(a *model.Agent) { v.Dose(e, a, e.Time) })
}

// VaccinateRandomTimeOffset doses n random eligible agents with curves
// back-dated by a uniform offset, for seeding a partly vaccinated population.
// Agents due a booster get it now and draw no offset.
func (v *Engine) VaccinateRandomTimeOffset(e *simctx.Env, n int) Outcome {
	ids := v.eligibleIDs(e.Agents, everyone)
	return v.pick(e, ids, n, false, "random time offset", func(a *model.Agent) {
		if a.Vaccinated && a.NeedsNext {
			v.booster(e, a)
			return
		}
		v.Dose(e, a, e.Time-e.Inf.UniformRange(v.cfg.OffsetStart, v.cfg.OffsetEnd))
	})
}

// VaccinateGroup doses n eligible agents from cohort g, or all of them when all is set.
func (v *Engine) VaccinateGroup(e *simctx.Env, g Group, n int, all bool) Outcome {
	ids := v.eligibleIDs(e.Agents, func(a *model.Agent) bool { return InGroup(a, g) })
	return v.pick(e, ids, n, all, g.String(), func(a *model.Agent) { v.Dose(e, a, e.Time) })
}

func (v *Engine) pick(e *simctx.Env, ids []int, n int, all bool, what string, dose func(*model.Agent)) Outcome {
	out := Outcome{Requested: n}
	if len(ids) == 0 {
		e.Logf("vaccine: no agents eligible for %s vaccination", what)
		return out
	}
	if all {
		n = len(ids)
		out.Requested = n
	}
	if n > len(ids) {
		e.Logf("vaccine: %s request %d larger than eligible %d, decreasing", what, n, len(ids))
		n = len(ids)
		out.Clamp = ClampEligible
	}
	if n != len(ids) {
		e.Inf.Shuffle(ids)
	}
	for _, id := range ids[:n] {
		dose(e.Agent(id))
	}
	out.Vaccinated = n
	return out
}

// Dose gives a its next dose with curves anchored at origin: a booster when
// the agent needs its next vaccination, otherwise a first dose.
func (v *Engine) Dose(e *simctx.Env, a *model.Agent, origin float64) {
	if a.Vaccinated && a.NeedsNext {
		v.booster(e, a)
		return
	}
	a.Vaccinated = true
	a.VacTimeOffset = origin - e.Time
	types := v.cfg.TwoDoses
	a.Dose = model.DoseTwo
	if e.Inf.Uniform() < v.cfg.FractionOneDose {
		types = v.cfg.OneDose
		a.Dose = model.DoseOne
	}
	u := e.Inf.Uniform()
	sub := len(types) - 1
	for i, vt := range types {
		if vt.CDF >= u {
			sub = i
			break
		}
	}
	a.Subtype, a.FormerSubtype = sub, false
	curves := types[sub].Curves()
	for b := range curves {
		a.Benefits[b] = benefit.New(curves[b], origin)
	}
	eff := a.Benefits[model.Effectiveness]
	if a.Dose == model.DoseOne {
		a.TimeMobilityIncrease, a.TimeEffectsReduction = eff.At(1), eff.At(2)
	} else {
		a.TimeMobilityIncrease, a.TimeEffectsReduction = eff.At(2), eff.At(3)
	}
	a.NeedsNext = false
	a.NextVaccinationTime = 0
	if v.cfg.NextDose > 0 {
		a.NextVaccinationTime = origin + v.cfg.NextDose
	}
}

// booster re-anchors every curve at now, starting from its current value.
func (v *Engine) booster(e *simctx.Env, a *model.Agent) {
	t := e.Time
	for b := range a.Benefits {
		cur := &a.Benefits[b]
		if !cur.Set() {
			continue
		}
		peak := cur.Knots[len(cur.Knots)-2].V
		a.Benefits[b] = benefit.Booster(cur.Eval(t), peak, v.cfg.BoosterMaxTime, v.cfg.BoosterMaxEnd, v.cfg.BoosterNoEffects, t)
	}
	a.TimeMobilityIncrease = t
	a.TimeEffectsReduction = t + v.cfg.BoosterMaxEnd
	a.NeedsNext = false
	a.NextVaccinationTime = 0
	a.Dose = model.DoseOne
	a.FormerSubtype = true
	a.VacTimeOffset = 0
}
