package archive

import (
	"os"
	"path/filepath"
	"testing"

	"epiabm.ai/internal/persistence/snapshot"
	"epiabm.ai/internal/sim/model"
)

func TestArchiveRunSnapshot_CopiesFinalSnapshot(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "runs", "r1")
	src := filepath.Join(runDir, "snapshots", "800.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, RunID: "r1", Step: 800, Time: 200},
		Seed:   42,
		Mode:   "events",
		Dt:     0.25,
		Agents: make([]model.Agent, 3),
	}
	archivedPath, err := ArchiveRunSnapshot(runDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if filepath.Base(filepath.Dir(archivedPath)) != "run_r1" {
		t.Fatalf("archived under %s", archivedPath)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	meta, err := ReadMeta(archivedPath)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Step != 800 || meta.Agents != 3 || meta.Seed != 42 || meta.Snapshot != "800.snap.zst" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveRunSnapshot_RequiresRunID(t *testing.T) {
	if _, err := ArchiveRunSnapshot(t.TempDir(), "x.snap.zst", snapshot.SnapshotV1{}); err == nil {
		t.Fatalf("expected error")
	}
}
