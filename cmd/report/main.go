package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

func main() {
	cmd, args := "runs", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/runs.sqlite)")
	runID := fs.String("run", "", "run id (steps, snapshots, summary)")
	limit := fs.Int("limit", 20, "result limit")
	every := fs.Int("every", 4, "print one step out of every N (steps)")
	asJSON := fs.Bool("json", false, "print JSON lines")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "runs.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	r := reporter{db: db, out: os.Stdout, json: *asJSON}
	if cmd != "runs" && strings.TrimSpace(*runID) == "" {
		if *runID, err = r.latestRun(); err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(2)
		}
	}

	switch cmd {
	case "runs":
		err = r.runs(*limit)
	case "steps":
		err = r.steps(*runID, *every, *limit)
	case "snapshots":
		err = r.snapshots(*runID, *limit)
	case "summary":
		err = r.summary(*runID)
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", cmd, "(want runs|steps|snapshots|summary)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cmd+":", err)
		os.Exit(1)
	}
}

type reporter struct {
	db   *sql.DB
	out  io.Writer
	json bool
}

func (r reporter) print(v any, line string) {
	if r.json {
		b, _ := json.Marshal(v)
		fmt.Fprintln(r.out, string(b))
		return
	}
	fmt.Fprintln(r.out, line)
}

func (r reporter) latestRun() (string, error) {
	var id string
	err := r.db.QueryRow(`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs recorded")
	}
	return id, err
}

type runRow struct {
	RunID        string  `json:"run_id"`
	Seed         int64   `json:"seed"`
	Mode         string  `json:"mode"`
	Dt           float64 `json:"dt"`
	Steps        int     `json:"steps"`
	Agents       int     `json:"agents"`
	ParamsDigest string  `json:"params_digest"`
	ResumedFrom  string  `json:"resumed_from,omitempty"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   string  `json:"finished_at,omitempty"`
	Status       string  `json:"status"`
}

func (r reporter) runs(limit int) error {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT run_id,seed,mode,dt,steps,agents,params_digest,COALESCE(resumed_from,''),started_at,COALESCE(finished_at,''),status FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var x runRow
		if err := rows.Scan(&x.RunID, &x.Seed, &x.Mode, &x.Dt, &x.Steps, &x.Agents, &x.ParamsDigest, &x.ResumedFrom, &x.StartedAt, &x.FinishedAt, &x.Status); err != nil {
			return err
		}
		r.print(x, fmt.Sprintf("%s  %-11s %-8s seed=%d agents=%s steps=%s dt=%g started %s",
			x.RunID, x.Mode, x.Status, x.Seed, humanize.Comma(int64(x.Agents)), humanize.Comma(int64(x.Steps)), x.Dt, ago(x.StartedAt)))
	}
	return rows.Err()
}

type stepRow struct {
	Step         int64   `json:"step"`
	Time         float64 `json:"time"`
	Day          int     `json:"day"`
	Susceptible  int     `json:"susceptible"`
	Exposed      int     `json:"exposed"`
	Symptomatic  int     `json:"symptomatic"`
	Recovered    int     `json:"recovered"`
	Dead         int     `json:"dead"`
	Hospitalized int     `json:"hospitalized"`
	Infected     int     `json:"infected_total"`
	Tested       int     `json:"tested_total"`
	Positive     int     `json:"positive_total"`
	Vaccinated   int     `json:"vaccinated_total"`
}

func (r reporter) steps(runID string, every, limit int) error {
	if every <= 0 {
		every = 1
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT step,time,day,susceptible,exposed,symptomatic,recovered,dead,hospitalized,infected_total,tested_total,positive_total,vaccinated_total FROM steps WHERE run_id=? AND step % ? = 0 ORDER BY step LIMIT ?`, runID, every, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var x stepRow
		if err := rows.Scan(&x.Step, &x.Time, &x.Day, &x.Susceptible, &x.Exposed, &x.Symptomatic, &x.Recovered, &x.Dead, &x.Hospitalized, &x.Infected, &x.Tested, &x.Positive, &x.Vaccinated); err != nil {
			return err
		}
		r.print(x, fmt.Sprintf("step %6d day %4d  S=%s E=%s Sy=%s R=%s D=%s H=%s  infected=%s tested=%s positive=%s vaccinated=%s",
			x.Step, x.Day, n(x.Susceptible), n(x.Exposed), n(x.Symptomatic), n(x.Recovered), n(x.Dead), n(x.Hospitalized),
			n(x.Infected), n(x.Tested), n(x.Positive), n(x.Vaccinated)))
	}
	return rows.Err()
}

func (r reporter) snapshots(runID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT step,time,path,seed,agents FROM snapshots WHERE run_id=? ORDER BY step DESC LIMIT ?`, runID, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var x struct {
			Step   int64   `json:"step"`
			Time   float64 `json:"time"`
			Path   string  `json:"path"`
			Seed   int64   `json:"seed"`
			Agents int     `json:"agents"`
			Size   uint64  `json:"size_bytes,omitempty"`
		}
		if err := rows.Scan(&x.Step, &x.Time, &x.Path, &x.Seed, &x.Agents); err != nil {
			return err
		}
		size := "missing"
		if fi, err := os.Stat(x.Path); err == nil {
			x.Size = uint64(fi.Size())
			size = humanize.Bytes(x.Size)
		}
		r.print(x, fmt.Sprintf("step %6d time %8.2f  %s (%s)", x.Step, x.Time, x.Path, size))
	}
	return rows.Err()
}

type summaryRow struct {
	RunID          string `json:"run_id"`
	Steps          int    `json:"steps"`
	Agents         int    `json:"agents"`
	PeakActive     int    `json:"peak_active"`
	PeakActiveDay  int    `json:"peak_active_day"`
	PeakHospital   int    `json:"peak_hospitalized"`
	Infected       int    `json:"infected_total"`
	Dead           int    `json:"dead"`
	Tested         int    `json:"tested_total"`
	Positive       int    `json:"positive_total"`
	Vaccinated     int    `json:"vaccinated_total"`
	AttackRatePerc string `json:"attack_rate_pct"`
}

func (r reporter) summary(runID string) error {
	var x summaryRow
	x.RunID = runID
	if err := r.db.QueryRow(`SELECT agents FROM runs WHERE run_id=?`, runID).Scan(&x.Agents); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	err := r.db.QueryRow(`SELECT COUNT(*),COALESCE(MAX(hospitalized),0) FROM steps WHERE run_id=?`, runID).Scan(&x.Steps, &x.PeakHospital)
	if err != nil {
		return err
	}
	if x.Steps == 0 {
		return fmt.Errorf("run %s has no indexed steps", runID)
	}
	err = r.db.QueryRow(`SELECT exposed+symptomatic,day FROM steps WHERE run_id=? ORDER BY exposed+symptomatic DESC, step LIMIT 1`, runID).Scan(&x.PeakActive, &x.PeakActiveDay)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(`SELECT infected_total,dead,tested_total,positive_total,vaccinated_total FROM steps WHERE run_id=? ORDER BY step DESC LIMIT 1`, runID).
		Scan(&x.Infected, &x.Dead, &x.Tested, &x.Positive, &x.Vaccinated)
	if err != nil {
		return err
	}
	rate := 0.0
	if x.Agents > 0 {
		rate = 100 * float64(x.Infected) / float64(x.Agents)
	}
	x.AttackRatePerc = humanize.FtoaWithDigits(rate, 2)
	r.print(x, fmt.Sprintf("run %s: %s agents over %s steps\n  peak active %s on day %d, peak hospitalized %s\n  infected %s (%s%%), dead %s, tested %s (%s positive), vaccinated %s",
		x.RunID, n(x.Agents), n(x.Steps), n(x.PeakActive), x.PeakActiveDay, n(x.PeakHospital),
		n(x.Infected), x.AttackRatePerc, n(x.Dead), n(x.Tested), n(x.Positive), n(x.Vaccinated)))
	return nil
}

func n(v int) string { return humanize.Comma(int64(v)) }

func ago(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
