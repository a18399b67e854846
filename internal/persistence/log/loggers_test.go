package log

import (
	"os"
	"path/filepath"
	"testing"

	"epiabm.ai/internal/sim/abm"
)

func TestStepLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	l := NewStepLogger(dir)
	for i := 0; i < 5; i++ {
		e := abm.StepLogEntry{RunID: "r", Step: uint64(i), Time: float64(i) * 0.25, Digest: "d"}
		e.Totals.Infected = i
		if err := l.WriteStep(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListStepFiles(filepath.Join(dir, "steps"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got []abm.StepLogEntry
	if err := ReadSteps(files[0], func(e abm.StepLogEntry) bool {
		got = append(got, e)
		return true
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 || got[4].Step != 4 || got[4].Totals.Infected != 4 {
		t.Fatalf("entries=%+v", got)
	}

	n := 0
	_ = ReadSteps(files[0], func(abm.StepLogEntry) bool { n++; return n < 2 })
	if n != 2 {
		t.Fatalf("early stop read %d entries", n)
	}
}

func TestListStepFiles_IgnoresOthers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"steps-0000004000.jsonl.zst", "steps-0000000000.jsonl.zst", "audit-x.jsonl.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	files, err := ListStepFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "steps-0000000000.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
}

func TestStepLogger_SegmentsByStep(t *testing.T) {
	dir := t.TempDir()
	write := func(from, to uint64) {
		l := NewStepLoggerSegmented(dir, 4)
		for i := from; i < to; i++ {
			if err := l.WriteStep(abm.StepLogEntry{Step: i}); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	write(0, 6)
	// A resumed writer appends to the open segment.
	write(6, 10)

	files, err := ListStepFiles(filepath.Join(dir, "steps"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"steps-0000000000.jsonl.zst", "steps-0000000004.jsonl.zst", "steps-0000000008.jsonl.zst"}
	if len(files) != len(want) {
		t.Fatalf("files=%v", files)
	}
	var steps []uint64
	for i, f := range files {
		if filepath.Base(f) != want[i] {
			t.Fatalf("file[%d]=%s want=%s", i, filepath.Base(f), want[i])
		}
		if err := ReadSteps(f, func(e abm.StepLogEntry) bool {
			steps = append(steps, e.Step)
			return true
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	for i, st := range steps {
		if st != uint64(i) {
			t.Fatalf("steps=%v", steps)
		}
	}
	if len(steps) != 10 {
		t.Fatalf("steps=%v", steps)
	}
}
