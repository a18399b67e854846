package visits

import "testing"

func TestLog_EvictsOldestAndHonorsWindow(t *testing.T) {
	l := NewLog(2, 7)
	l.Add(1, 10, 0)
	l.Add(2, 10, 3)
	l.Add(3, 10, 5)
	if got := l.Visitors(10, 5); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("visitors=%v want=[2 3]", got)
	}
	if got := l.Visitors(10, 11); len(got) != 1 || got[0] != 3 {
		t.Fatalf("visitors after window=%v want=[3]", got)
	}
}

func TestLog_AddPrunesOutsideWindow(t *testing.T) {
	l := NewLog(100, 7)
	l.Add(1, 10, 0)
	l.Add(2, 10, 2)
	l.Add(3, 10, 8)
	if got := l.ByHouse[10]; len(got) != 2 || got[0].Agent != 2 || got[1].Agent != 3 {
		t.Fatalf("entries=%+v want agents [2 3]", got)
	}
	l.Add(4, 10, 20)
	if got := l.ByHouse[10]; len(got) != 1 || got[0].Agent != 4 {
		t.Fatalf("entries=%+v want agent [4]", got)
	}
}

func TestLog_VisitedBy(t *testing.T) {
	l := NewLog(10, 7)
	l.Add(4, 30, 1)
	l.Add(4, 20, 2)
	l.Add(5, 40, 2)
	if got := l.VisitedBy(4, 3); len(got) != 2 || got[0] != 20 || got[1] != 30 {
		t.Fatalf("visited=%v want=[20 30]", got)
	}
}

func TestIsolation(t *testing.T) {
	iso := NewIsolation()
	iso.Isolate(3, 10)
	iso.Isolate(3, 8)
	if !iso.Isolated(3, 9) {
		t.Fatalf("expected isolated at 9")
	}
	if iso.Isolated(3, 10) {
		t.Fatalf("expected free at 10")
	}
	iso.Expire(10)
	if len(iso.Until) != 0 {
		t.Fatalf("expire left %v", iso.Until)
	}
}
