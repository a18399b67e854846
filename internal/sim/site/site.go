package site

import (
	"fmt"
	"math"
)

type Kind uint8

const (
	Household Kind = iota
	RetirementHome
	School
	Workplace
	Hospital
	Carpool
	PublicTransit
	Leisure

	NumKinds
)

func (k Kind) String() string {
	switch k {
	case Household:
		return "household"
	case RetirementHome:
		return "retirement_home"
	case School:
		return "school"
	case Workplace:
		return "workplace"
	case Hospital:
		return "hospital"
	case Carpool:
		return "carpool"
	case PublicTransit:
		return "public_transit"
	case Leisure:
		return "leisure"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Role is how an agent is present at a site; it selects the transmission rate.
type Role uint8

const (
	Member Role = iota
	Employee
	Patient
	Tested
)

// Site is any place where agents mix. Per-kind differences are data:
// households scale by n^Alpha, hospitals count tested visitors in the
// denominator, outside-town sites use OutsideLambda.
type Site struct {
	ID   int
	Kind Kind
	X    float64
	Y    float64

	Beta         float64
	EmployeeBeta float64
	PatientBeta  float64
	TestedBeta   float64

	// Psi is the absenteeism correction applied to symptomatic members,
	// EmployeePsi to symptomatic employees.
	Psi         float64
	EmployeePsi float64
	Ck          float64
	Alpha       float64

	Outside       bool
	OutsideLambda float64

	IDs      []int
	Infected int

	sum     float64
	nTested int
	lambda  float64
}

func New(id int, kind Kind, x, y float64) Site {
	return Site{ID: id, Kind: kind, X: x, Y: y, Psi: 1, EmployeePsi: 1, Ck: 1, Alpha: 1}
}

// RegisterAgent adds a permanent member at setup.
func (s *Site) RegisterAgent(id int, infected bool) {
	s.IDs = append(s.IDs, id)
	if infected {
		s.Infected++
	}
}

// AddAgent adds a temporary visitor (leisure).
func (s *Site) AddAgent(id int) { s.IDs = append(s.IDs, id) }

// RemoveAgent drops the first occurrence of id; absent IDs are ignored.
func (s *Site) RemoveAgent(id int) {
	for i, v := range s.IDs {
		if v == id {
			s.IDs = append(s.IDs[:i], s.IDs[i+1:]...)
			return
		}
	}
}

func (s *Site) AgentIDs() []int { return s.IDs }

func (s *Site) NumAgents() int { return len(s.IDs) }

func (s *Site) OutsideTown() bool { return s.Outside }

func (s *Site) beta(r Role) float64 {
	switch r {
	case Employee:
		return s.EmployeeBeta
	case Patient:
		return s.PatientBeta
	case Tested:
		return s.TestedBeta
	}
	return s.Beta
}

// Weight is the per-unit-variability contribution of one infectious agent.
func (s *Site) Weight(r Role, symptomatic bool) float64 {
	b := s.beta(r)
	if !symptomatic || r == Patient || r == Tested {
		return b
	}
	psi := s.Psi
	if r == Employee {
		psi = s.EmployeePsi
	}
	return b * s.Ck * psi
}

func (s *Site) AddContribution(v float64) { s.sum += v }

func (s *Site) IncreaseTotalTested() { s.nTested++ }

func (s *Site) TotalTested() int { return s.nTested }

// Sum is the raw accumulated pressure before Finalize.
func (s *Site) Sum() float64 { return s.sum }

// Finalize turns the accumulated sum into the site's infection pressure.
func (s *Site) Finalize() {
	if s.Outside {
		s.lambda = s.OutsideLambda
		return
	}
	n := len(s.IDs)
	if s.Kind == Hospital {
		n += s.nTested
	}
	if n == 0 {
		s.lambda = 0
		return
	}
	if s.Kind == Household {
		s.lambda = s.sum / math.Pow(float64(n), s.Alpha)
		return
	}
	s.lambda = s.sum / float64(n)
}

// TotalContribution is the finalized pressure.
func (s *Site) TotalContribution() float64 { return s.lambda }

func (s *Site) Reset() {
	s.sum = 0
	s.nTested = 0
	s.lambda = 0
}

func (s *Site) ChangeTransmissionRate(b float64) { s.Beta = b }

func (s *Site) ChangeEmployeeTransmissionRate(b float64) { s.EmployeeBeta = b }

func (s *Site) ChangeAbsenteeismCorrection(psi float64) { s.Psi = psi }

// AdjustOutsideLambda scales the outside pressure by f.
func (s *Site) AdjustOutsideLambda(f float64) { s.OutsideLambda *= f }

func (s *Site) SetOutsideLambda(l float64) { s.OutsideLambda = l }
