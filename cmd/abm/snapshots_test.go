package main

import (
	"os"
	"path/filepath"
	"testing"

	"epiabm.ai/internal/persistence/archive"
	"epiabm.ai/internal/persistence/snapshot"
)

func TestLatestSnapshot_PicksHighestStep(t *testing.T) {
	runDir := t.TempDir()
	dir := filepath.Join(runDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"200.snap.zst", "1000.snap.zst", "600.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got, want := latestSnapshot(runDir), filepath.Join(dir, "1000.snap.zst"); got != want {
		t.Fatalf("latest=%s want=%s", got, want)
	}
	if got := latestSnapshot(filepath.Join(runDir, "missing")); got != "" {
		t.Fatalf("latest=%q want empty", got)
	}
}

func TestWriteSnapshotAndArchive(t *testing.T) {
	runDir := t.TempDir()
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Step: 40, Time: 10}, Seed: 9, Mode: "events", Dt: 0.25}
	path, err := writeSnapshot(runDir, snap, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != snapshotPath(runDir, 40) {
		t.Fatalf("path=%s", path)
	}
	h, err := snapshot.ReadHeader(path)
	if err != nil || h.Step != 40 || h.RunID != "r1" {
		t.Fatalf("header=%+v err=%v", h, err)
	}
	archived, err := archiveFinal(runDir, path, snap, nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	meta, err := archive.ReadMeta(archived)
	if err != nil || meta.Step != 40 || meta.Seed != 9 {
		t.Fatalf("meta=%+v err=%v", meta, err)
	}
}
