package params

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_DefaultParams(t *testing.T) {
	p, err := Load("../../../configs/params.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Digest) != 64 {
		t.Fatalf("digest len=%d want=64", len(p.Digest))
	}
	c := p.Config
	if c.Rates.Household <= 0 || c.Rates.HouseholdAlpha <= 0 {
		t.Fatalf("household rates not resolved: %+v", c.Rates)
	}
	if got := len(c.Vaccination.OneDose[0].Effectiveness); got != 4 {
		t.Fatalf("one dose knots=%d want=4", got)
	}
	if got := len(c.Vaccination.TwoDoses[0].Effectiveness); got != 5 {
		t.Fatalf("two dose knots=%d want=5", got)
	}
	if !c.Vaccination.Recovered {
		t.Fatalf("expected vaccinate recovered")
	}
}

func TestAgeTable_At(t *testing.T) {
	tab := AgeTable{{0, 19, 0.1}, {20, 59, 0.2}, {60, 100, 0.3}}
	cases := map[int]float64{0: 0.1, 19: 0.1, 20: 0.2, 60: 0.3, 104: 0.3}
	for age, want := range cases {
		if got := tab.At(age); got != want {
			t.Fatalf("age %d: got=%v want=%v", age, got, want)
		}
	}
}

func TestParse_ReportsEveryMissingKey(t *testing.T) {
	raw, err := os.ReadFile("../../../configs/params.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s := string(raw)
	s = strings.Replace(s, "  recovery time: 14.0\n", "", 1)
	s = strings.Replace(s, "  fraction false positive: 0.02\n", "", 1)
	_, err = Parse([]byte(s))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{`"recovery time"`, `"fraction false positive"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %s", err, want)
		}
	}
}

func TestParse_SchemaRejectsBadKnots(t *testing.T) {
	raw, err := os.ReadFile("../../../configs/params.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s := strings.Replace(string(raw), "effectiveness: [[0, 0], [14, 0.66], [180, 0.66], [360, 0]]", "effectiveness: [[0, 0, 1]]", 1)
	if _, err := Parse([]byte(s)); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestParse_RejectsWrongKnotCount(t *testing.T) {
	raw, err := os.ReadFile("../../../configs/params.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s := strings.Replace(string(raw), "effectiveness: [[0, 0], [14, 0.66], [180, 0.66], [360, 0]]", "effectiveness: [[0, 0], [360, 0]]", 1)
	_, err = Parse([]byte(s))
	if err == nil || !strings.Contains(err.Error(), "knots want 4") {
		t.Fatalf("err=%v want knot count error", err)
	}
}
