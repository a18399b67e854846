package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"epiabm.ai/internal/sim/model"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/site"
	"epiabm.ai/internal/sim/tuning"
	"epiabm.ai/internal/sim/visits"
)

const Version = 1

type Header struct {
	Version int     `json:"version"`
	RunID   string  `json:"run_id"`
	Step    uint64  `json:"step"`
	Time    float64 `json:"time"`
}

// SnapshotV1 is everything needed to resume a run bit-for-bit: the agents and
// sites, tracing and flu state, the parameters as mutated by events so far,
// counters, and the RNG state.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       uint64  `json:"seed"`
	Dt         float64 `json:"dt"`
	Mode       string  `json:"mode"`
	SnapEvery  int     `json:"snapshot_every_steps,omitempty"`
	ParamsHash string  `json:"params_digest"`
	ParamsRaw  []byte  `json:"params_raw"`

	Initial tuning.Initial `json:"initial"`

	// Config is the live parameter set, not the file defaults.
	Config params.Config `json:"config"`

	Agents []model.Agent `json:"agents"`
	Town   site.Town     `json:"town"`

	Visits    map[int][]visits.Visit `json:"visits,omitempty"`
	Isolation map[int]float64        `json:"isolation,omitempty"`
	Flu       FluV1                  `json:"flu"`

	TestingStart float64 `json:"testing_start"`
	TestingIndex int     `json:"testing_index"`

	Events  EventsV1  `json:"events"`
	Leisure LeisureV1 `json:"leisure"`

	RNG []byte `json:"rng"`

	Counters        CountersV1 `json:"counters"`
	VaccineCapCount int        `json:"vaccine_cap_count"`
}

type FluV1 struct {
	Fraction    float64 `json:"fraction"`
	Susceptible []int   `json:"susceptible"`
	Sick        []int   `json:"sick"`
}

// EventsV1 records which scheduled events have fired.
type EventsV1 struct {
	Testing       bool    `json:"testing"`
	SchoolClosure bool    `json:"school_closure"`
	Lockdown      bool    `json:"lockdown"`
	Phases        [3]bool `json:"phases"`
}

// LeisureV1 is the reopening ramp baseline.
type LeisureV1 struct {
	IniBeta float64 `json:"ini_beta"`
	DelBeta float64 `json:"del_beta"`
	IniFrac float64 `json:"ini_frac"`
	DelFrac float64 `json:"del_frac"`
}

type CountersV1 struct {
	Infected         int `json:"infected"`
	Recovered        int `json:"recovered"`
	RecoveredExposed int `json:"recovered_exposed"`
	Hospitalized     int `json:"hospitalized"`
	Died             int `json:"died"`
	DiedTested       int `json:"died_tested"`
	Tested           int `json:"tested"`
	Positive         int `json:"positive"`
	Negative         int `json:"negative"`
	FalsePositive    int `json:"false_positive"`
	FalseNegative    int `json:"false_negative"`
	FluResolved      int `json:"flu_resolved"`
	Vaccinated       int `json:"vaccinated"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is repeated inside the gob body.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
