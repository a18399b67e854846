package site

import (
	"math"
	"testing"
)

func TestSite_HouseholdScaling(t *testing.T) {
	s := New(1, Household, 0, 0)
	s.Beta, s.Alpha = 0.5, 0.8
	for id := 1; id <= 4; id++ {
		s.RegisterAgent(id, false)
	}
	s.AddContribution(s.Weight(Member, false) * 2)
	s.Finalize()
	want := 1.0 / math.Pow(4, 0.8)
	if got := s.TotalContribution(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("lambda=%v want=%v", got, want)
	}
}

func TestSite_SymptomaticWeightUsesCorrections(t *testing.T) {
	s := New(1, School, 0, 0)
	s.Beta, s.EmployeeBeta = 0.4, 0.2
	s.Ck, s.Psi, s.EmployeePsi = 2, 0.25, 0.5
	if got := s.Weight(Member, true); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("member weight=%v want=0.2", got)
	}
	if got := s.Weight(Employee, true); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("employee weight=%v want=0.2", got)
	}
	if got := s.Weight(Employee, false); got != 0.2 {
		t.Fatalf("exposed employee weight=%v want=0.2", got)
	}
}

func TestSite_HospitalCountsTested(t *testing.T) {
	s := New(1, Hospital, 0, 0)
	s.RegisterAgent(1, false)
	s.AddContribution(3)
	s.IncreaseTotalTested()
	s.IncreaseTotalTested()
	s.Finalize()
	if got := s.TotalContribution(); got != 1 {
		t.Fatalf("lambda=%v want=1", got)
	}
	s.Reset()
	if s.TotalContribution() != 0 || s.Sum() != 0 || s.TotalTested() != 0 {
		t.Fatalf("reset left state: sum=%v tested=%d", s.Sum(), s.TotalTested())
	}
}

func TestSite_OutsideTownUsesLambda(t *testing.T) {
	s := New(1, Workplace, 0, 0)
	s.Outside = true
	s.SetOutsideLambda(0.4)
	s.AdjustOutsideLambda(0.5)
	s.AddContribution(10)
	s.Finalize()
	if got := s.TotalContribution(); got != 0.2 {
		t.Fatalf("lambda=%v want=0.2", got)
	}
}

func TestTown_GetPanicsOutOfRange(t *testing.T) {
	town := &Town{Schools: []Site{New(1, School, 0, 0)}}
	if town.Get(School, 1).ID != 1 {
		t.Fatalf("get(1) wrong site")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	town.Get(School, 2)
}

func TestSite_RemoveAgent(t *testing.T) {
	s := New(1, Leisure, 0, 0)
	s.AddAgent(3)
	s.AddAgent(5)
	s.AddAgent(7)
	s.RemoveAgent(5)
	s.RemoveAgent(42)
	if got := s.AgentIDs(); len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("ids=%v want=[3 7]", got)
	}
}
