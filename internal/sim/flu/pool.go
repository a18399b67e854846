package flu

import "sort"

// Rand is the subset of the infection collaborator the pool draws from.
type Rand interface {
	Shuffle([]int)
}

// Pool tracks agents that can catch a non-COVID illness with COVID-like
// symptoms and the agents currently sick with it.
type Pool struct {
	Fraction    float64
	Susceptible []int
	Sick        []int
}

func New(fraction float64) *Pool { return &Pool{Fraction: fraction} }

func insert(s []int, id int) []int {
	i := sort.SearchInts(s, id)
	if i < len(s) && s[i] == id {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

func remove(s []int, id int) []int {
	i := sort.SearchInts(s, id)
	if i < len(s) && s[i] == id {
		return append(s[:i], s[i+1:]...)
	}
	return s
}

func (p *Pool) AddSusceptible(id int) { p.Susceptible = insert(p.Susceptible, id) }

// RemoveSusceptible drops id from both lists; called when an agent is exposed or removed.
func (p *Pool) RemoveSusceptible(id int) {
	p.Susceptible = remove(p.Susceptible, id)
	p.Sick = remove(p.Sick, id)
}

// Generate picks int(Fraction × candidates) new flu agents and returns them.
func (p *Pool) Generate(r Rand) []int {
	n := int(p.Fraction * float64(len(p.Susceptible)))
	return p.take(r, n)
}

func (p *Pool) take(r Rand, n int) []int {
	if n <= 0 || len(p.Susceptible) == 0 {
		return nil
	}
	cand := append([]int(nil), p.Susceptible...)
	r.Shuffle(cand)
	if n > len(cand) {
		n = len(cand)
	}
	picked := cand[:n]
	for _, id := range picked {
		p.Susceptible = remove(p.Susceptible, id)
		p.Sick = insert(p.Sick, id)
	}
	out := append([]int(nil), picked...)
	sort.Ints(out)
	return out
}

// Replace returns id to the susceptible pool and draws one replacement.
// It returns the replacement, or 0 when none is available.
func (p *Pool) Replace(r Rand, id int) int {
	p.Sick = remove(p.Sick, id)
	picked := p.take(r, 1)
	p.Susceptible = insert(p.Susceptible, id)
	if len(picked) == 0 {
		return 0
	}
	return picked[0]
}

func (p *Pool) NumSick() int { return len(p.Sick) }
