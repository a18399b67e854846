package abm

import (
	"math"

	"epiabm.ai/internal/sim/testpolicy"
	"epiabm.ai/internal/sim/transition"
	"epiabm.ai/internal/sim/vaccine"
)

// CheckEvents applies the scheduled changes for the current time.
func (s *Sim) CheckEvents() {
	switch s.mode {
	case ModeEvents:
		s.scheduledEvents()
	case ModeVaccination:
		s.dailyVaccination()
	case ModeReopening:
		s.reopenLeisure()
		s.dailyVaccination()
	}
	s.env.Testing.CheckSwitchTime(s.env.Time)
}

func due(t, at float64) bool { return t >= at-testpolicy.Tol }

func (s *Sim) scheduledEvents() {
	t := s.env.Time
	ev := s.cfg.Events
	if !s.fired.Testing && due(t, ev.StartTesting) {
		s.fired.Testing = true
		s.logf("abm: t=%.2f start of testing", t)
		s.startTestingFluAndVaccination()
	}
	if !s.fired.SchoolClosure && due(t, ev.SchoolClosure) {
		s.fired.SchoolClosure = true
		s.logf("abm: t=%.2f schools closed", t)
		for i := range s.env.Town.Schools {
			sc := &s.env.Town.Schools[i]
			sc.ChangeTransmissionRate(0)
			sc.ChangeEmployeeTransmissionRate(0)
		}
	}
	if !s.fired.Lockdown && due(t, ev.Lockdown) {
		s.fired.Lockdown = true
		s.logf("abm: t=%.2f lockdown, businesses at %.2f", t, ev.FracLockdown)
		s.setBusinessFraction(ev.FracLockdown)
		for i := range s.env.Town.Workplaces {
			s.env.Town.Workplaces[i].ChangeAbsenteeismCorrection(s.cfg.Corrections.LockdownAbsenteeism)
		}
	}
	for i, at := range ev.Phases {
		if s.fired.Phases[i] || !due(t, at) {
			continue
		}
		s.fired.Phases[i] = true
		s.logf("abm: t=%.2f reopening phase %d, businesses at %.2f", t, i+1, ev.FracPhases[i])
		s.setBusinessFraction(ev.FracPhases[i])
	}
}

// setBusinessFraction scales workplace, leisure and commuting transmission and
// the leisure fraction to frac of their values in the parameter file.
func (s *Sim) setBusinessFraction(frac float64) {
	base := s.params.Config
	town := s.env.Town
	fei := base.Corrections.FractionEstimatedInfected
	for i := range town.Workplaces {
		w := &town.Workplaces[i]
		if w.OutsideTown() {
			w.SetOutsideLambda(base.Rates.Workplace * fei * frac)
			continue
		}
		w.ChangeTransmissionRate(base.Rates.Workplace * frac)
	}
	for i := range town.Leisure {
		l := &town.Leisure[i]
		if l.OutsideTown() {
			l.SetOutsideLambda(base.Corrections.OutsideLeisure * fei * frac)
			continue
		}
		l.ChangeTransmissionRate(base.Rates.Leisure * frac)
	}
	s.cfg.Leisure.Fraction = base.Leisure.Fraction * frac
	for i := range town.Carpools {
		town.Carpools[i].ChangeTransmissionRate(base.Rates.Carpool * frac)
	}
	for i := range town.Transit {
		town.Transit[i].ChangeTransmissionRate(base.Rates.Transit(frac))
	}
}

// startTestingFluAndVaccination gives the initial random and cohort
// vaccinations, then fills the flu pool from the agents left healthy and
// unvaccinated and makes part of it sick.
func (s *Sim) startTestingFluAndVaccination() {
	e := s.env
	in := s.tun.Initial
	n := s.cfg.Vaccination.Initial
	if in.VaccinateRandom && n > 0 {
		if m := s.capped(n); m > 0 {
			s.record(s.vac.VaccinateRandom(e, m))
		}
	}
	for _, g := range s.groups {
		want := n
		if in.VaccinateAll {
			want = s.vac.MaxEligibleGroup(e.Agents, g)
		}
		if m := s.capped(want); m > 0 {
			s.record(s.vac.VaccinateGroup(e, g, m, false))
		}
	}

	for i := range e.Agents {
		a := &e.Agents[i]
		if a.Infected() || a.Removed() || a.Vaccinated || a.HospitalEmployee() || a.NonCovidPatient {
			continue
		}
		e.Flu.AddSusceptible(a.ID)
	}
	for _, id := range e.Flu.Generate(e.Inf) {
		transition.ProcessNewFlu(e, e.Agent(id))
	}
}

// initVaccinationAndReopening sets the state the vaccination and reopening
// modes start from: testing on, schools at reduced rate, businesses at the
// phase 4 fraction and leisure at the start of its ramp.
func (s *Sim) initVaccinationAndReopening() {
	e := s.env
	town := e.Town
	base := s.params.Config
	p4 := base.Events.FracPhases[3]

	s.cfg.Events.StartTesting = 0
	e.Testing.SetStart(0)
	s.fired.Testing = true
	s.startTestingFluAndVaccination()

	red := base.Rates.SchoolReduction
	for i := range town.Schools {
		sc := &town.Schools[i]
		sc.ChangeTransmissionRate(base.Rates.School * red)
		sc.ChangeEmployeeTransmissionRate(base.Rates.SchoolEmployee * red)
	}
	for i := range town.Workplaces {
		w := &town.Workplaces[i]
		if w.OutsideTown() {
			w.AdjustOutsideLambda(p4)
			continue
		}
		w.ChangeTransmissionRate(base.Rates.Workplace * p4)
	}
	for i := range town.Carpools {
		town.Carpools[i].ChangeTransmissionRate(base.Rates.Carpool * p4)
	}
	for i := range town.Transit {
		town.Transit[i].ChangeTransmissionRate(base.Rates.Transit(p4))
	}

	s.ramp.IniBeta = base.Rates.Leisure * p4
	s.ramp.DelBeta = base.Rates.Leisure - s.ramp.IniBeta
	s.ramp.IniFrac = base.Leisure.FractionInitial
	s.ramp.DelFrac = base.Leisure.FractionFinal - base.Leisure.FractionInitial
	s.cfg.Leisure.Fraction = s.ramp.IniFrac
	s.setLeisureBeta(s.ramp.IniBeta)
}

func (s *Sim) setLeisureBeta(beta float64) {
	fei := s.cfg.Corrections.FractionEstimatedInfected
	for i := range s.env.Town.Leisure {
		l := &s.env.Town.Leisure[i]
		if l.OutsideTown() {
			l.SetOutsideLambda(beta * fei)
			continue
		}
		l.ChangeTransmissionRate(beta)
	}
}

// reopenLeisure ramps leisure transmission and the leisure fraction linearly
// in time up to their full values.
func (s *Sim) reopenLeisure() {
	t := s.env.Time
	lc := s.params.Config.Leisure
	rate := lc.ReopeningRate
	beta := math.Min(s.ramp.IniBeta+rate*s.ramp.DelBeta*t, s.params.Config.Rates.Leisure)
	s.setLeisureBeta(beta)
	s.cfg.Leisure.Fraction = math.Min(s.ramp.IniFrac+rate*s.ramp.DelFrac*t, lc.FractionFinal)
}

// dailyVaccination vaccinates rate*dt random agents per step, truncated.
func (s *Sim) dailyVaccination() {
	n := int(s.cfg.Vaccination.Rate * s.env.Dt)
	if n <= 0 {
		return
	}
	if n = s.capped(n); n == 0 {
		return
	}
	s.record(s.vac.VaccinateRandom(s.env, n))
}

func (s *Sim) capped(n int) int {
	limit := s.cfg.Vaccination.Max
	m, clamped := vaccine.Cap(s.capCount, limit, n)
	if clamped {
		s.logf("abm: vaccination request %d capped to %d (maximum %d reached)", n, m, limit)
	}
	return m
}

func (s *Sim) record(out vaccine.Outcome) {
	s.capCount += out.Vaccinated
	s.doses += out.Vaccinated
}

// VaccinateOffset vaccinates n random agents with back-dated curves, as for a
// population that started vaccinating before the simulation.
func (s *Sim) VaccinateOffset(n int) vaccine.Outcome {
	m := s.capped(n)
	if m == 0 {
		return vaccine.Outcome{Requested: n, Clamp: vaccine.ClampCap}
	}
	out := s.vac.VaccinateRandomTimeOffset(s.env, m)
	s.record(out)
	return out
}
