package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"epiabm.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID        string  `json:"run_id"`
	Step         uint64  `json:"step"`
	Time         float64 `json:"time"`
	Seed         uint64  `json:"seed"`
	Mode         string  `json:"mode"`
	Dt           float64 `json:"dt"`
	Agents       int     `json:"agents"`
	ParamsDigest string  `json:"params_digest"`
	Snapshot     string  `json:"snapshot"`
	CreatedAt    string  `json:"created_at"`
}

// ArchiveRunSnapshot copies a run's final snapshot into `runDir/archives/run_<id>/`
// next to a meta.json describing it, and returns the archived path.
func ArchiveRunSnapshot(runDir, snapshotPath string, snap snapshot.SnapshotV1) (string, error) {
	if snap.Header.RunID == "" {
		return "", fmt.Errorf("archive: snapshot has no run id")
	}
	archiveDir := filepath.Join(runDir, "archives", "run_"+snap.Header.RunID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := RunArchiveMeta{
		RunID:        snap.Header.RunID,
		Step:         snap.Header.Step,
		Time:         snap.Header.Time,
		Seed:         snap.Seed,
		Mode:         snap.Mode,
		Dt:           snap.Dt,
		Agents:       len(snap.Agents),
		ParamsDigest: snap.ParamsHash,
		Snapshot:     filepath.Base(dst),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadMeta loads the meta.json stored next to an archived snapshot.
func ReadMeta(archivedPath string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
