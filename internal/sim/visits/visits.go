package visits

import "sort"

type Visit struct {
	Agent int
	Day   int
}

// Log records leisure visits to households, bounded per household by
// capacity (oldest evicted first) and by a retention window in days.
type Log struct {
	Capacity int
	Window   int
	ByHouse  map[int][]Visit
}

func NewLog(capacity int, windowDays float64) *Log {
	return &Log{Capacity: capacity, Window: int(windowDays), ByHouse: map[int][]Visit{}}
}

// Add records a visit made on day and evicts this household's entries that
// fell out of the window.
func (l *Log) Add(agent, house, day int) {
	v := l.ByHouse[house]
	k := 0
	for k < len(v) && day-v[k].Day > l.Window {
		k++
	}
	v = append(v[k:], Visit{Agent: agent, Day: day})
	if l.Capacity > 0 && len(v) > l.Capacity {
		v = append(v[:0:0], v[len(v)-l.Capacity:]...)
	}
	l.ByHouse[house] = v
}

func (l *Log) recent(v Visit, today int) bool { return today-v.Day <= l.Window }

// VisitedBy lists households the agent visited within the window, ascending.
func (l *Log) VisitedBy(agent, today int) []int {
	var out []int
	for house, vs := range l.ByHouse {
		for _, v := range vs {
			if v.Agent == agent && l.recent(v, today) {
				out = append(out, house)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}

// Visitors lists distinct agents that visited house within the window, ascending.
func (l *Log) Visitors(house, today int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range l.ByHouse[house] {
		if l.recent(v, today) && !seen[v.Agent] {
			seen[v.Agent] = true
			out = append(out, v.Agent)
		}
	}
	sort.Ints(out)
	return out
}

// Isolation holds the time until which each household is isolated.
type Isolation struct {
	Until map[int]float64
}

func NewIsolation() *Isolation { return &Isolation{Until: map[int]float64{}} }

func (i *Isolation) Isolate(house int, until float64) {
	if until > i.Until[house] {
		i.Until[house] = until
	}
}

func (i *Isolation) Isolated(house int, t float64) bool {
	u, ok := i.Until[house]
	return ok && t < u
}

// Expire drops entries that ended at or before t.
func (i *Isolation) Expire(t float64) {
	for h, u := range i.Until {
		if u <= t {
			delete(i.Until, h)
		}
	}
}
