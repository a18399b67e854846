package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"epiabm.ai/internal/observerproto"
	steplog "epiabm.ai/internal/persistence/log"
	"epiabm.ai/internal/persistence/indexdb"
	"epiabm.ai/internal/persistence/snapshot"
	"epiabm.ai/internal/sim/abm"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/population"
	"epiabm.ai/internal/sim/tuning"
	"epiabm.ai/internal/transport/metrics"
	"epiabm.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address (empty to disable)")
		configDir  = flag.String("configs", "./configs", "config directory")
		paramsPath = flag.String("params", "", "path to params.yaml (default: <configs>/params.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runID      = flag.String("run", "", "run id (default: random uuid; with -resume_latest, the run to resume)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		seed  = flag.Uint64("seed", 0, "override tuning seed (fresh runs only)")
		mode  = flag.String("mode", "", "override tuning mode: events|vaccination|reopening (fresh runs only)")
		steps = flag.Int("steps", -1, "override number of steps")

		resume       = flag.String("resume", "", "snapshot to resume from (optional)")
		resumeLatest = flag.Bool("resume_latest", false, "resume -run from its latest snapshot")
		serveAfter   = flag.Bool("serve_after", false, "keep serving http after the run completes, until interrupted")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[abm] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	pp := strings.TrimSpace(*paramsPath)
	if pp == "" {
		pp = filepath.Join(*configDir, "params.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*resume)
	if snapshotToLoad == "" && *resumeLatest {
		if strings.TrimSpace(*runID) == "" {
			logger.Fatalf("-resume_latest needs -run")
		}
		snapshotToLoad = latestSnapshot(filepath.Join(*dataDir, "runs", *runID))
		if snapshotToLoad == "" {
			logger.Fatalf("no snapshot found for run %s", *runID)
		}
	}

	// Tuning is required for fresh runs; a resumed run carries its own seed, dt, mode and seeding.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *steps >= 0 {
		tune.Steps = *steps
	}

	var sim *abm.Sim
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		tune.Seed, tune.Dt, tune.Mode, tune.Initial = snap.Seed, snap.Dt, snap.Mode, snap.Initial
		sim, err = abm.FromSnapshot(snap, abm.Options{Tuning: tune, Logger: logger})
		if err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed run=%s from snapshot=%s step=%d", sim.RunID(), filepath.Base(snapshotToLoad), sim.Step())
	} else {
		if *seed != 0 {
			tune.Seed = *seed
		}
		if *mode != "" {
			tune.Mode = *mode
		}
		p, err := params.Load(pp)
		if err != nil {
			logger.Fatalf("load params: %v", err)
		}
		id := strings.TrimSpace(*runID)
		if id == "" {
			id = uuid.NewString()
		}
		pop := population.Generate(tune.Population)
		sim, err = abm.New(abm.Options{RunID: id, Params: p, Tuning: tune, Population: pop, Logger: logger})
		if err != nil {
			logger.Fatalf("sim: %v", err)
		}
		logger.Printf("fresh run=%s mode=%s seed=%d agents=%d sites=%d", id, sim.Mode(), tune.Seed, sim.NumAgents(), pop.Town.Len())
	}

	runDir := filepath.Join(*dataDir, "runs", sim.RunID())
	_ = os.MkdirAll(runDir, 0o755)

	// Optional: read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "runs.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		info := indexdb.RunInfo{
			RunID:        sim.RunID(),
			Seed:         tune.Seed,
			Mode:         sim.Mode().String(),
			Dt:           sim.Dt(),
			Steps:        tune.Steps,
			Agents:       sim.NumAgents(),
			ParamsDigest: sim.Params().Digest,
			ResumedFrom:  snapshotToLoad,
		}
		if err := idx.StartRun(info); err != nil {
			logger.Printf("index: start run: %v", err)
		}
		if err := idx.UpsertParams(sim.Params(), tune); err != nil {
			logger.Printf("index: upsert params: %v", err)
		}
	}

	stepLog := steplog.NewStepLogger(runDir)
	obs := observer.NewServer(sim.RunID(), observerproto.RunParams{
		Mode:         sim.Mode().String(),
		Dt:           sim.Dt(),
		Steps:        tune.Steps,
		StepRateHz:   tune.StepRateHz,
		Seed:         tune.Seed,
		Agents:       sim.NumAgents(),
		ParamsDigest: sim.Params().Digest,
	}, sim.Step(), logger)
	met := metrics.New(sim.RunID())
	met.RegisterGaugeFunc("epiabm_observers", "Connected observers.", func() float64 { return float64(obs.Subscribers()) })
	met.RegisterGaugeFunc("epiabm_observer_dropped_total", "Step messages dropped for slow observers.", func() float64 { return float64(obs.Dropped()) })
	if idx != nil {
		met.RegisterGaugeFunc("epiabm_index_queue_depth", "SQLite index queue backlog.", func() float64 { return float64(idx.Stats().QueueDepth) })
		met.RegisterGaugeFunc("epiabm_index_dropped_total", "Step rows dropped by the SQLite index.", func() float64 { return float64(idx.Stats().DropStepTotal) })
	}

	sim.AddStepSink(stepLog)
	if idx != nil {
		sim.AddStepSink(idx)
	}
	sim.AddStepSink(obs)
	sim.AddStepSink(met)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	sim.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for snap := range snapCh {
			if _, err := writeSnapshot(runDir, snap, idx); err != nil {
				logger.Printf("snapshot write: %v", err)
			}
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	var srv *http.Server
	if strings.TrimSpace(*addr) != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.Handle("/metrics", met.Handler())
		mux.HandleFunc("/v1/observe/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/v1/observe/ws", obs.WSHandler())
		if envBool("EPIABM_ENABLE_PPROF_HTTP", false) {
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		}
		srv = &http.Server{
			Addr:              *addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("ListenAndServe: %v", err)
			}
		}()
	}

	start := time.Now()
	status := "finished"
	if err := sim.Run(ctx); err != nil {
		status = "interrupted"
		if err != context.Canceled {
			status = "failed"
			logger.Printf("run stopped: %v", err)
		}
	}
	close(snapCh)
	<-writerDone

	c, totals := sim.Compartments(), sim.Totals()
	logger.Printf("run %s %s at step=%d in %s: S=%d E=%d Sy=%d R=%d D=%d infected=%d tested=%d vaccinated=%d",
		sim.RunID(), status, sim.Step(), time.Since(start).Round(time.Millisecond),
		c.Susceptible, c.Exposed, c.Symptomatic, c.Recovered, c.Dead, totals.Infected, totals.Tested, totals.Vaccinated)

	// Final snapshot and archive.
	if final, err := sim.ExportSnapshot(); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else if path, err := writeSnapshot(runDir, final, idx); err != nil {
		logger.Printf("final snapshot write: %v", err)
	} else if archived, err := archiveFinal(runDir, path, final, idx); err != nil {
		logger.Printf("archive: %v", err)
	} else {
		logger.Printf("archived %s", archived)
	}

	obs.Done(status)
	if err := stepLog.Close(); err != nil {
		logger.Printf("step log close: %v", err)
	}
	if idx != nil {
		if err := idx.FinishRun(sim.RunID(), status); err != nil {
			logger.Printf("index: finish run: %v", err)
		}
		_ = idx.Close()
	}

	if srv == nil {
		return
	}
	if *serveAfter && status == "finished" {
		logger.Printf("run complete; serving until interrupted")
		<-ctx.Done()
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
