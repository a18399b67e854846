package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"epiabm.ai/internal/sim/abm"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed segment files named
// <prefix>-<key>.jsonl.zst, opening a new segment whenever the key changes.
// Reopening an existing segment appends a new zstd frame.
type JSONLZstdWriter struct {
	dir    string
	prefix string

	mu  sync.Mutex
	key string
	f   *os.File
	enc *zstd.Encoder
	buf *bufio.Writer
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v to the segment named by key. Each line is flushed so a
// crashed run leaves a readable log.
func (w *JSONLZstdWriter) Write(key string, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil || key != w.key {
		if err := w.openLocked(key); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *JSONLZstdWriter) Path(key string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, key))
}

func (w *JSONLZstdWriter) openLocked(key string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.key = f, enc, key
	w.buf = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.buf != nil {
		err = w.buf.Flush()
		w.buf = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	return err
}

// DefaultSegmentSteps is how many steps go into one step log file.
const DefaultSegmentSteps = 4000

// StepLogger writes one JSONL entry per step into files segmented by step
// number, so that file names sort in step order.
type StepLogger struct {
	w       *JSONLZstdWriter
	segment uint64
}

func NewStepLogger(runDir string) *StepLogger {
	return NewStepLoggerSegmented(runDir, DefaultSegmentSteps)
}

func NewStepLoggerSegmented(runDir string, segmentSteps uint64) *StepLogger {
	if segmentSteps == 0 {
		segmentSteps = DefaultSegmentSteps
	}
	return &StepLogger{
		w:       NewJSONLZstdWriter(filepath.Join(runDir, "steps"), "steps"),
		segment: segmentSteps,
	}
}

func (l *StepLogger) WriteStep(e abm.StepLogEntry) error {
	first := e.Step - e.Step%l.segment
	return l.w.Write(fmt.Sprintf("%010d", first), e)
}

func (l *StepLogger) Close() error { return l.w.Close() }

// ListStepFiles returns the step log files under dir in write order.
func ListStepFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "steps-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadSteps calls fn for every entry in a step log file until fn returns false.
func ReadSteps(path string, fn func(abm.StepLogEntry) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var entry abm.StepLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if !fn(entry) {
			return nil
		}
	}
	return sc.Err()
}
