package main

import (
	"path/filepath"
	"strings"
	"testing"

	steplog "epiabm.ai/internal/persistence/log"
	"epiabm.ai/internal/sim/abm"
	"epiabm.ai/internal/sim/abmtest"
	"epiabm.ai/internal/sim/population"
	"epiabm.ai/internal/sim/tuning"
)

func recordRun(t *testing.T, tamper bool) (*abm.Sim, []string) {
	t.Helper()
	tu := tuning.Defaults()
	tu.Population.Households = 80
	tu.Initial.Exposed = 8
	s, err := abm.New(abm.Options{RunID: "r1", Params: abmtest.Params(t), Tuning: tu, Population: population.Generate(tu.Population)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 10; i++ {
		s.StepOnce()
	}
	snap, err := s.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	runDir := t.TempDir()
	lg := steplog.NewStepLogger(runDir)
	for i := 0; i < 20; i++ {
		e := s.StepOnce()
		if tamper && i == 12 {
			e.Digest = strings.Repeat("0", 64)
		}
		if err := lg.WriteStep(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := lg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := steplog.ListStepFiles(filepath.Join(runDir, "steps"))
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}

	resumed, err := abm.FromSnapshot(snap, abm.Options{Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	return resumed, files
}

func TestReplay_MatchesLoggedDigests(t *testing.T) {
	sim, files := recordRun(t, false)
	checked, err := replay(sim, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 20 {
		t.Fatalf("checked=%d want=20", checked)
	}
}

func TestReplay_StopsAtToStep(t *testing.T) {
	sim, files := recordRun(t, false)
	checked, err := replay(sim, files, 15, 19)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 5 || sim.Step() != 20 {
		t.Fatalf("checked=%d step=%d", checked, sim.Step())
	}
}

func TestReplay_DetectsDigestMismatch(t *testing.T) {
	sim, files := recordRun(t, true)
	_, err := replay(sim, files, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at step 22") {
		t.Fatalf("err=%v", err)
	}
}
