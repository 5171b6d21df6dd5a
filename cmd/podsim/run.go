package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/pod-mover-simulator/core"
	"github.com/signalsfoundry/pod-mover-simulator/internal/api"
	"github.com/signalsfoundry/pod-mover-simulator/internal/config"
	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/internal/observability"
	"github.com/signalsfoundry/pod-mover-simulator/internal/report"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
	"github.com/signalsfoundry/pod-mover-simulator/timectrl"
)

// flushEvery is how much simulated time passes between delivery flushes.
const flushEvery = 10 * time.Minute

// runner carries the collaborators an experiment reports into.
type runner struct {
	cfg     config.Config
	log     logging.Logger
	sim     *observability.SimCollector
	health  *api.HealthServer
	results *report.Store
	live    liveStatus
}

// run executes the configured experiment and serves status while it
// does. It returns the halting error if the run stopped on a fatal
// simulation fault.
func run(ctx context.Context, cfg config.Config, opts runOptions, log logging.Logger, reg prometheus.Registerer, lis listeners) error {
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return fmt.Errorf("api metrics: %w", err)
	}
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("sim metrics: %w", err)
	}

	r := &runner{cfg: cfg, log: log, sim: simMetrics, health: api.NewHealthServer()}

	if cfg.Report.DSN != "" {
		r.results, err = report.Open(ctx, cfg.Report.DSN, log)
		if err != nil {
			return err
		}
		defer r.results.Close()
	}

	var halted atomic.Pointer[error]
	var runs api.RunSource
	if r.results != nil {
		runs = r.results
	}
	router := api.NewRouter(api.Options{
		Status:      &r.live,
		Runs:        runs,
		Metrics:     apiMetrics,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Healthy: func() error {
			if p := halted.Load(); p != nil {
				return *p
			}
			return nil
		},
		Log: log,
	})

	var httpSrv *http.Server
	if lis.http != nil {
		httpSrv = &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := httpSrv.Serve(lis.http); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn(ctx, "http server exited", logging.Err(err))
			}
		}()
		log.Info(ctx, "serving status API", logging.String("addr", lis.http.Addr().String()))
	}
	if lis.grpc != nil {
		grpcSrv := api.NewGRPCServer(r.health, apiMetrics, log)
		go func() {
			if err := grpcSrv.Serve(lis.grpc); err != nil {
				log.Warn(ctx, "grpc server exited", logging.Err(err))
			}
		}()
		defer grpcSrv.GracefulStop()
		log.Info(ctx, "serving gRPC health", logging.String("addr", lis.grpc.Addr().String()))
	}
	if httpSrv != nil {
		defer shutdownHTTP(ctx, httpSrv, 5*time.Second, log)
	}

	err = r.experiment(ctx)
	switch {
	case err == nil:
	case isCancel(err):
		log.Info(ctx, "interrupted")
		return nil
	case errors.Is(err, core.ErrBatteryExhausted):
		r.health.SetServing(false)
		halted.Store(&err)
		if opts.Linger {
			<-ctx.Done()
		}
		return err
	default:
		return err
	}

	if opts.Linger {
		log.Info(ctx, "run complete; serving until interrupted")
		<-ctx.Done()
	}
	return nil
}

// shutdownHTTP stops srv, waiting up to timeout for requests in flight.
func shutdownHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, log logging.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "http server shutdown failed", logging.Err(err))
	}
}

// experiment builds the network and runs it to the configured duration.
func (r *runner) experiment(ctx context.Context) error {
	cfg := r.cfg
	params := cfg.Sim
	params.ApplyDefaults()
	if err := params.Validate(); err != nil {
		return err
	}

	net := core.NewNetwork(params, rand.New(rand.NewPCG(cfg.Run.Seed, 1)))
	net.SetRecorder(r.sim)
	if err := loadScenario(net, cfg.Run.Scenario); err != nil {
		return err
	}
	net.AttachMotion(core.NewGraphMotion(net, params.PodSpeed))
	if _, err := core.PlacePods(net, cfg.Run.Pods); err != nil {
		return err
	}

	store := kb.NewKnowledgeBase()
	unsubscribe := store.Subscribe(r.sim.Observe)
	defer unsubscribe()

	runLog := r.log.With(logging.Float("spawn_rate", params.SpawnRate))
	var rec *report.Run
	if r.results != nil {
		var err error
		rec, err = r.results.StartRun(ctx, report.RunInfo{
			ID:               cfg.Run.ID,
			StartedAt:        cfg.Run.Start,
			AdvancedPlanning: params.AdvancedPlanning,
			SpawnRate:        params.SpawnRate,
			Pods:             cfg.Run.Pods,
			Seed:             cfg.Run.Seed,
		})
		if err != nil {
			return err
		}
		defer store.Subscribe(rec.Observe)()
		runLog = runLog.With(logging.String("run_id", rec.ID))
	}

	engine := core.NewSimulationEngine(net, store, runLog)
	r.live.Store(store)
	seeded := net.SeedRiders(cfg.Run.Start)
	runLog.Info(ctx, "run started",
		logging.Int("pods", cfg.Run.Pods),
		logging.Int("stations", len(net.Stations())),
		logging.Int("seeded_riders", seeded),
		logging.Bool("advanced_planning", params.AdvancedPlanning),
	)

	tc := timectrl.NewTimeController(cfg.Run.Start, cfg.Run.Tick, cfg.Run.Mode)
	var flusher *deliveryFlusher
	if rec != nil {
		flusher = newDeliveryFlusher(tc, rec, runLog)
	}
	tc.AddListener(func(ctx context.Context, now time.Time) error {
		if err := engine.Tick(ctx, now); err != nil {
			return err
		}
		if flusher != nil {
			flusher.poll(ctx)
		}
		return nil
	})

	runErr := tc.Run(ctx, cfg.Run.Duration)
	sum := store.Summary()
	if rec != nil {
		if err := rec.Finish(context.WithoutCancel(ctx), sum, engine.Halted()); err != nil {
			runLog.Error(ctx, "failed to store run", logging.Err(err))
		}
	}

	fields := []logging.Field{
		logging.Time("sim_end", sum.SimTime),
		logging.Int("spawned", sum.Spawned),
		logging.Int("delivered", sum.Delivered),
		logging.Int("on_time", sum.OnTime),
		logging.Int("late", sum.Late),
		logging.Duration("total_delay", sum.TotalDelay),
		logging.Int("routes_confirmed", sum.RoutesConfirmed),
		logging.Int("routes_not_found", sum.RoutesNotFound),
		logging.Int("stalls", sum.Stalls),
		logging.Int("charges", sum.Charges),
	}
	if runErr != nil && !isCancel(runErr) {
		runLog.Error(ctx, "run halted", append(fields, logging.Err(runErr))...)
		return runErr
	}
	runLog.Info(ctx, "run finished", fields...)
	return runErr
}

// deliveryFlusher writes a run's buffered deliveries every flushEvery of
// simulated time.
type deliveryFlusher struct {
	clock timectrl.SimClock
	rec   *report.Run
	log   logging.Logger
	due   <-chan time.Time
}

func newDeliveryFlusher(clock timectrl.SimClock, rec *report.Run, log logging.Logger) *deliveryFlusher {
	return &deliveryFlusher{clock: clock, rec: rec, log: log, due: clock.After(flushEvery)}
}

// poll flushes once the timer has fired and arms the next one. A failed
// batch stays buffered for the next flush or for Finish.
func (f *deliveryFlusher) poll(ctx context.Context) {
	select {
	case <-f.due:
	default:
		return
	}
	f.due = f.clock.After(flushEvery)
	if err := f.rec.Flush(ctx); err != nil {
		f.log.Warn(ctx, "flush deliveries failed", logging.Err(err), logging.Int("pending", f.rec.Pending()))
	}
}

func loadScenario(net *core.Network, path string) error {
	if path == "" {
		_, err := core.LoadDefaultScenario(net)
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	_, err = core.LoadScenario(net, f)
	return err
}

// liveStatus points the status API at the knowledge base of the run in
// progress.
type liveStatus struct {
	kb atomic.Pointer[kb.KnowledgeBase]
}

func (l *liveStatus) Store(k *kb.KnowledgeBase) { l.kb.Store(k) }

func (l *liveStatus) ListStations() []kb.StationStatus {
	if k := l.kb.Load(); k != nil {
		return k.ListStations()
	}
	return nil
}

func (l *liveStatus) GetStation(id model.StationID) (kb.StationStatus, bool) {
	if k := l.kb.Load(); k != nil {
		return k.GetStation(id)
	}
	return kb.StationStatus{}, false
}

func (l *liveStatus) ListPods() []kb.PodStatus {
	if k := l.kb.Load(); k != nil {
		return k.ListPods()
	}
	return nil
}

func (l *liveStatus) GetPod(id model.PodID) (kb.PodStatus, bool) {
	if k := l.kb.Load(); k != nil {
		return k.GetPod(id)
	}
	return kb.PodStatus{}, false
}

func (l *liveStatus) Summary() kb.Summary {
	if k := l.kb.Load(); k != nil {
		return k.Summary()
	}
	return kb.Summary{}
}
