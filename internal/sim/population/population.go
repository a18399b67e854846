// Package population generates a synthetic town: sites with coordinates and
// agents with their household, school, work and travel affiliations.
package population

import (
	"math/rand/v2"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/site"
	"epiabm.ai/internal/sim/tuning"
)

const (
	minStudentAge = 5
	maxStudentAge = 17
	minWorkAge    = 18
	maxWorkAge    = 65
	maxAge        = 90
	rhMinAge      = 70

	// Shares of workers placed at schools, retirement homes and hospitals when those exist.
	schoolStaffShare   = 0.05
	rhStaffShare       = 0.03
	hospitalStaffShare = 0.05

	// Outside-town sites sit this far beyond the extent.
	outsideDistance = 100.0
)

// Population is a generated town and its agents, IDs dense and 1-based.
type Population struct {
	Town   *site.Town
	Agents []model.Agent
}

type generator struct {
	cfg    tuning.Population
	rng    *rand.Rand
	town   *site.Town
	agents []model.Agent
}

// Generate builds a town from cfg. The same cfg always yields the same town.
func Generate(cfg tuning.Population) *Population {
	g := &generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
		town: &site.Town{},
	}
	g.sites()
	g.households()
	g.retirementHomes()
	g.patients()
	return &Population{Town: g.town, Agents: g.agents}
}

func (g *generator) point() (float64, float64) {
	return g.rng.Float64() * g.cfg.Extent, g.rng.Float64() * g.cfg.Extent
}

func (g *generator) place(dst *[]site.Site, k site.Kind, n int, outside bool) {
	for i := 0; i < n; i++ {
		id := len(*dst) + 1
		x, y := g.point()
		if outside {
			x += g.cfg.Extent + outsideDistance
		}
		s := site.New(id, k, x, y)
		s.Outside = outside
		*dst = append(*dst, s)
	}
}

func (g *generator) sites() {
	t := g.town
	g.place(&t.Households, site.Household, g.cfg.Households, false)
	g.place(&t.RetirementHomes, site.RetirementHome, g.cfg.RetirementHomes, false)
	g.place(&t.Schools, site.School, g.cfg.Schools, false)
	g.place(&t.Workplaces, site.Workplace, g.cfg.Workplaces, false)
	g.place(&t.Workplaces, site.Workplace, g.cfg.OutsideWorkplaces, true)
	g.place(&t.Hospitals, site.Hospital, g.cfg.Hospitals, false)
	g.place(&t.Carpools, site.Carpool, g.cfg.Carpools, false)
	g.place(&t.Transit, site.PublicTransit, g.cfg.Transit, false)
	g.place(&t.Leisure, site.Leisure, g.cfg.Leisure, false)
	g.place(&t.Leisure, site.Leisure, g.cfg.OutsideLeisure, true)
}

// pick returns a 1-based index into n sites, or 0 when there are none.
func (g *generator) pick(n int) int {
	if n == 0 {
		return 0
	}
	return 1 + g.rng.IntN(n)
}

func (g *generator) add(a model.Agent) *model.Agent {
	a.ID = len(g.agents) + 1
	a.Variability = 1
	g.agents = append(g.agents, a)
	return &g.agents[len(g.agents)-1]
}

func (g *generator) households() {
	for i := range g.town.Households {
		h := &g.town.Households[i]
		size := 1 + g.rng.IntN(g.cfg.MaxHouseholdSize)
		for j := 0; j < size; j++ {
			age := g.rng.IntN(maxAge + 1)
			if j == 0 {
				age = minWorkAge + g.rng.IntN(maxAge-minWorkAge+1)
			}
			a := g.add(model.Agent{Age: age, HouseholdID: h.ID, X: h.X, Y: h.Y})
			g.affiliate(a)
		}
	}
}

func (g *generator) affiliate(a *model.Agent) {
	t := g.town
	if a.Age >= minStudentAge && a.Age <= maxStudentAge && len(t.Schools) > 0 {
		a.Student, a.SchoolID = true, g.pick(len(t.Schools))
		return
	}
	if a.Age < minWorkAge || a.Age > maxWorkAge || g.rng.Float64() >= g.cfg.EmploymentRate {
		return
	}
	u := g.rng.Float64()
	switch {
	case u < schoolStaffShare && len(t.Schools) > 0:
		a.Work, a.WorkID = model.WorkSchool, g.pick(len(t.Schools))
	case u < schoolStaffShare+rhStaffShare && len(t.RetirementHomes) > 0:
		a.Work, a.WorkID = model.WorkRetirementHome, g.pick(len(t.RetirementHomes))
	case u < schoolStaffShare+rhStaffShare+hospitalStaffShare && len(t.Hospitals) > 0:
		a.Work, a.WorkID = model.WorkHospital, g.pick(len(t.Hospitals))
		a.HospitalID = a.WorkID
	case len(t.Workplaces) > 0:
		a.Work, a.WorkID = model.WorkPlace, g.pick(len(t.Workplaces))
		a.WorksFromHome = g.rng.Float64() < g.cfg.WorkFromHome
	default:
		return
	}
	if a.WorksFromHome {
		return
	}
	u = g.rng.Float64()
	switch {
	case u < g.cfg.CarpoolFraction && len(t.Carpools) > 0:
		a.Travel, a.CarpoolID = model.TravelCarpool, g.pick(len(t.Carpools))
	case u < g.cfg.CarpoolFraction+g.cfg.TransitFraction && len(t.Transit) > 0:
		a.Travel, a.TransitID = model.TravelPublic, g.pick(len(t.Transit))
	}
}

func (g *generator) retirementHomes() {
	for i := range g.town.RetirementHomes {
		rh := &g.town.RetirementHomes[i]
		for j := 0; j < g.cfg.ResidentsPerHome; j++ {
			age := rhMinAge + g.rng.IntN(maxAge-rhMinAge+1)
			g.add(model.Agent{Age: age, HouseholdID: rh.ID, RetirementHomeResident: true, X: rh.X, Y: rh.Y})
		}
	}
}

func (g *generator) patients() {
	for i := 0; i < g.cfg.NonCovidPatients; i++ {
		id := g.pick(len(g.town.Hospitals))
		if id == 0 {
			return
		}
		h := g.town.Get(site.Hospital, id)
		g.add(model.Agent{Age: g.rng.IntN(maxAge + 1), NonCovidPatient: true, HospitalID: id, X: h.X, Y: h.Y})
	}
}
