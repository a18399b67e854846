package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"epiabm.ai/internal/persistence/archive"
	"epiabm.ai/internal/persistence/indexdb"
	"epiabm.ai/internal/persistence/snapshot"
)

func snapshotPath(runDir string, step uint64) string {
	return filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", step))
}

// writeSnapshot persists snap under runDir and records it in the index (when enabled).
func writeSnapshot(runDir string, snap snapshot.SnapshotV1, idx *indexdb.SQLiteIndex) (string, error) {
	path := snapshotPath(runDir, snap.Header.Step)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	return path, nil
}

func archiveFinal(runDir, path string, snap snapshot.SnapshotV1, idx *indexdb.SQLiteIndex) (string, error) {
	archived, err := archive.ArchiveRunSnapshot(runDir, path, snap)
	if err != nil {
		return "", err
	}
	if idx != nil {
		idx.RecordArchive(snap.Header.RunID, snap.Header.Step, archived)
	}
	return archived, nil
}

func latestSnapshot(runDir string) string {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestStep uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		step, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || step > bestStep {
			bestStep = step
			best = filepath.Join(dir, name)
		}
	}
	return best
}
