package site

import (
	"fmt"

	"epiabm.ai/internal/sim/params"
)

// Town owns every site collection. IDs are 1-based per kind.
type Town struct {
	Households      []Site
	RetirementHomes []Site
	Schools         []Site
	Workplaces      []Site
	Hospitals       []Site
	Carpools        []Site
	Transit         []Site
	Leisure         []Site
}

func (t *Town) Of(k Kind) []Site {
	switch k {
	case Household:
		return t.Households
	case RetirementHome:
		return t.RetirementHomes
	case School:
		return t.Schools
	case Workplace:
		return t.Workplaces
	case Hospital:
		return t.Hospitals
	case Carpool:
		return t.Carpools
	case PublicTransit:
		return t.Transit
	case Leisure:
		return t.Leisure
	}
	panic(fmt.Sprintf("site: unknown kind %d", k))
}

// Get returns site id of kind k and panics when id is outside [1, n].
func (t *Town) Get(k Kind, id int) *Site {
	s := t.Of(k)
	if id < 1 || id > len(s) {
		panic(fmt.Sprintf("site: %s id %d out of range [1, %d]", k, id, len(s)))
	}
	return &s[id-1]
}

func (t *Town) Each(fn func(*Site)) {
	for k := Kind(0); k < NumKinds; k++ {
		s := t.Of(k)
		for i := range s {
			fn(&s[i])
		}
	}
}

// Len is the number of sites of every kind.
func (t *Town) Len() int {
	n := 0
	t.Each(func(*Site) { n++ })
	return n
}

func (t *Town) Finalize() { t.Each((*Site).Finalize) }

func (t *Town) ResetSums() { t.Each((*Site).Reset) }

// RemoveEverywhere drops every occurrence of id from every site.
func (t *Town) RemoveEverywhere(id int) {
	t.Each(func(s *Site) {
		ids := s.IDs[:0]
		for _, v := range s.IDs {
			if v != id {
				ids = append(ids, v)
			}
		}
		s.IDs = ids
	})
}

// Configure sets every site's rates and corrections from cfg by kind.
func (t *Town) Configure(cfg *params.Config) {
	r, c := cfg.Rates, cfg.Corrections
	t.Each(func(s *Site) {
		s.Ck = c.Severity
		switch s.Kind {
		case Household:
			s.Beta, s.Alpha = r.Household, r.HouseholdAlpha
		case RetirementHome:
			s.Beta, s.EmployeeBeta = r.RHResident, r.RHEmployee
			s.EmployeePsi = c.RHEmployeeAbsenteeism
		case School:
			s.Beta, s.EmployeeBeta = r.School, r.SchoolEmployee
			s.Psi, s.EmployeePsi = c.SchoolAbsenteeism, c.SchoolEmployeeAbsenteeism
		case Workplace:
			s.Beta, s.Psi = r.Workplace, c.WorkAbsenteeism
			if s.Outside {
				s.OutsideLambda = r.Workplace * c.FractionEstimatedInfected
			}
		case Hospital:
			s.Beta, s.EmployeeBeta = r.HospitalEmployee, r.HospitalEmployee
			s.PatientBeta, s.TestedBeta = r.HospitalPatient, r.HospitalTested
		case Carpool:
			s.Beta, s.Psi = r.Carpool, c.WorkAbsenteeism
		case PublicTransit:
			s.Beta, s.Psi = r.Transit(1), c.WorkAbsenteeism
		case Leisure:
			s.Beta = r.Leisure
			if s.Outside {
				s.OutsideLambda = c.OutsideLeisure * c.FractionEstimatedInfected
			}
		}
	})
}
