package simctx

import (
	"fmt"
	"log"

	"epiabm.ai/internal/sim/flu"
	"epiabm.ai/internal/sim/infection"
	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/site"
	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/visits"
)

// Env is the state every engine works on. The simulation owns it; engines
// borrow it for the duration of one call.
type Env struct {
	Time float64
	Dt   float64

	Agents []model.Agent
	Town   *site.Town
	Params *params.Config

	Inf       *infection.Infection
	Testing   *testpolicy.Policy
	Flu       *flu.Pool
	Visits    *visits.Log
	Isolation *visits.Isolation

	Logger *log.Logger

	// OnConfirmedFn runs when an agent tests positive or false positive.
	OnConfirmedFn func(a *model.Agent)
}

func (e *Env) OnConfirmed(a *model.Agent) {
	if e.OnConfirmedFn == nil {
		return
	}
	e.OnConfirmedFn(a)
}

func (e *Env) Logf(format string, args ...any) {
	if e.Logger == nil {
		return
	}
	e.Logger.Printf(format, args...)
}

// Agent returns the agent with 1-based id and panics when id is outside [1, n].
func (e *Env) Agent(id int) *model.Agent {
	if id < 1 || id > len(e.Agents) {
		panic(fmt.Sprintf("simctx: agent id %d out of range [1, %d]", id, len(e.Agents)))
	}
	return &e.Agents[id-1]
}

func (e *Env) Day() int { return int(e.Time) }

// Presence is one site an agent occupies this step and in which role.
type Presence struct {
	Site *site.Site
	Role site.Role
}

// HomeOf is the household or retirement home of a, or nil for hospital patients.
func (e *Env) HomeOf(a *model.Agent) *site.Site {
	if a.RetirementHomeResident {
		return e.Town.Get(site.RetirementHome, a.HouseholdID)
	}
	if a.HouseholdID > 0 {
		return e.Town.Get(site.Household, a.HouseholdID)
	}
	return nil
}

// Occupied appends to buf every site a occupies this step.
func (e *Env) Occupied(a *model.Agent, buf []Presence) []Presence {
	buf = buf[:0]
	if a.State == model.Dead {
		return buf
	}
	if a.NonCovidPatient || a.Hospitalized {
		return append(buf, Presence{e.Town.Get(site.Hospital, a.HospitalID), site.Patient})
	}
	if h := e.HomeOf(a); h != nil {
		buf = append(buf, Presence{h, site.Member})
	}
	if a.TestedInHospital && a.BeingTestedAt(e.Time) && a.HospitalID > 0 && !a.HospitalEmployee() {
		buf = append(buf, Presence{e.Town.Get(site.Hospital, a.HospitalID), site.Tested})
	}
	if a.HomeIsolated {
		return buf
	}
	if a.Student {
		buf = append(buf, Presence{e.Town.Get(site.School, a.SchoolID), site.Member})
	}
	if !a.WorksFromHome {
		switch a.Work {
		case model.WorkPlace:
			buf = append(buf, Presence{e.Town.Get(site.Workplace, a.WorkID), site.Member})
		case model.WorkSchool:
			buf = append(buf, Presence{e.Town.Get(site.School, a.WorkID), site.Employee})
		case model.WorkRetirementHome:
			buf = append(buf, Presence{e.Town.Get(site.RetirementHome, a.WorkID), site.Employee})
		case model.WorkHospital:
			buf = append(buf, Presence{e.Town.Get(site.Hospital, a.WorkID), site.Employee})
		}
	}
	switch a.Travel {
	case model.TravelCarpool:
		buf = append(buf, Presence{e.Town.Get(site.Carpool, a.CarpoolID), site.Member})
	case model.TravelPublic:
		buf = append(buf, Presence{e.Town.Get(site.PublicTransit, a.TransitID), site.Member})
	}
	switch a.Leisure {
	case model.LeisureHousehold:
		buf = append(buf, Presence{e.Town.Get(site.Household, a.LeisureID), site.Member})
	case model.LeisurePublic:
		buf = append(buf, Presence{e.Town.Get(site.Leisure, a.LeisureID), site.Member})
	}
	return buf
}

// RegisterAgents adds every agent to its permanent sites. Leisure visits are not registrations.
func (e *Env) RegisterAgents() {
	for i := range e.Agents {
		a := &e.Agents[i]
		inf := a.Infected()
		if a.NonCovidPatient {
			e.Town.Get(site.Hospital, a.HospitalID).RegisterAgent(a.ID, inf)
			continue
		}
		if h := e.HomeOf(a); h != nil {
			h.RegisterAgent(a.ID, inf)
		}
		if a.Student {
			e.Town.Get(site.School, a.SchoolID).RegisterAgent(a.ID, inf)
		}
		switch a.Work {
		case model.WorkPlace:
			e.Town.Get(site.Workplace, a.WorkID).RegisterAgent(a.ID, inf)
		case model.WorkSchool:
			e.Town.Get(site.School, a.WorkID).RegisterAgent(a.ID, inf)
		case model.WorkRetirementHome:
			e.Town.Get(site.RetirementHome, a.WorkID).RegisterAgent(a.ID, inf)
		case model.WorkHospital:
			e.Town.Get(site.Hospital, a.WorkID).RegisterAgent(a.ID, inf)
		}
		switch a.Travel {
		case model.TravelCarpool:
			e.Town.Get(site.Carpool, a.CarpoolID).RegisterAgent(a.ID, inf)
		case model.TravelPublic:
			e.Town.Get(site.PublicTransit, a.TransitID).RegisterAgent(a.ID, inf)
		}
	}
}

// Remove drops a from every site, as on death.
func (e *Env) Remove(a *model.Agent) {
	e.Town.RemoveEverywhere(a.ID)
	a.Leisure, a.LeisureID = model.LeisureNone, 0
}
