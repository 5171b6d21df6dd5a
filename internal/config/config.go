// Package config loads simulator settings from the environment. A .env file
// in the working directory, when present, is read first and never
// overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/pod-mover-simulator/core"
	"github.com/signalsfoundry/pod-mover-simulator/timectrl"
)

// Config is the full runtime configuration of cmd/podsim.
type Config struct {
	Sim     core.Params
	Run     RunConfig
	HTTP    HTTPConfig
	GRPC    GRPCConfig
	Report  ReportConfig
	Tracing TracingConfig
}

// RunConfig controls the experiment driver.
type RunConfig struct {
	// ID names the run in the results store and in trace resources. Empty
	// lets the caller generate one.
	ID       string
	Pods     int
	Duration time.Duration
	Tick     time.Duration
	Mode     timectrl.Mode
	Seed     uint64
	Start    time.Time
	// Scenario is a path to a JSON road graph. Empty selects the built-in
	// demo graph.
	Scenario string
}

// HTTPConfig configures the status and metrics server. An empty Addr
// disables it.
type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

// GRPCConfig configures the health server. An empty Addr disables it.
type GRPCConfig struct {
	Addr string
}

// ReportConfig selects the results store. DSNs starting with postgres://
// or postgresql:// use PostgreSQL; anything else is a SQLite path. Empty
// disables reporting.
type ReportConfig struct {
	DSN string
}

// TracingConfig selects the span exporter. Exporter is stdout or otlp;
// Endpoint is only read for otlp.
type TracingConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

var defaultStart = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Sim: core.DefaultParams(),
		Run: RunConfig{
			Pods:     5,
			Duration: 2 * time.Hour,
			Tick:     time.Second,
			Mode:     timectrl.Accelerated,
			Seed:     1,
			Start:    defaultStart,
		},
		HTTP: HTTPConfig{Addr: ":8080", CORSOrigins: []string{"*"}},
		GRPC: GRPCConfig{Addr: ":9090"},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "pod-mover-simulator",
			SampleRatio: 1,
		},
	}
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from lookup, starting from Default. Every
// malformed variable is reported, not just the first.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	s := &cfg.Sim
	r.boolean("PODSIM_ADVANCED_PLANNING", &s.AdvancedPlanning)
	r.duration("PODSIM_RESERVATION_DURATION", &s.ReservationDuration)
	r.duration("PODSIM_BUFFER_TIME", &s.BufferTime)
	r.duration("PODSIM_EXPIRATION_TIME", &s.ExpirationTime)
	r.duration("PODSIM_RESERVATION_HORIZON", &s.ReservationHorizon)
	r.integer("PODSIM_MAX_USERS", &s.MaxUsers)
	r.integer("PODSIM_INITIAL_USERS", &s.InitialUsers)
	r.float("PODSIM_SPAWN_RATE", &s.SpawnRate)
	r.duration("PODSIM_DELIVERY_DEADLINE", &s.DeliveryDeadline)
	r.float("PODSIM_BATTERY_DRAIN_RATE", &s.BatteryDrainRate)
	r.float("PODSIM_BATTERY_GAIN_RATE", &s.BatteryGainRate)
	r.float("PODSIM_BATTERY_THRESHOLD", &s.BatteryThreshold)
	r.integer("PODSIM_EXPLORATION_HOP_BUDGET", &s.ExplorationHopBudget)
	r.integer("PODSIM_EXPLORATION_STEP_LIMIT", &s.ExplorationStepLimit)
	r.integer("PODSIM_PHEROMONE_HOP_BUDGET", &s.PheromoneHopBudget)
	r.float("PODSIM_PHEROMONE_EPSILON", &s.PheromoneEpsilon)
	r.duration("PODSIM_REPLAN_INTERVAL", &s.ReplanInterval)
	r.duration("PODSIM_STALL_TIMEOUT", &s.StallTimeout)
	r.duration("PODSIM_REFRESH_MARGIN", &s.RefreshMargin)
	r.integer("PODSIM_POD_CAPACITY", &s.PodCapacity)
	r.integer("PODSIM_CHARGE_CAPACITY", &s.ChargeCapacity)
	r.float("PODSIM_POD_SPEED", &s.PodSpeed)

	run := &cfg.Run
	r.str("PODSIM_RUN_ID", &run.ID)
	r.integer("PODSIM_PODS", &run.Pods)
	r.duration("PODSIM_DURATION", &run.Duration)
	r.duration("PODSIM_TICK", &run.Tick)
	r.unsigned("PODSIM_SEED", &run.Seed)
	r.str("PODSIM_SCENARIO", &run.Scenario)
	if v, ok := r.get("PODSIM_MODE"); ok {
		mode, valid := timectrl.ParseMode(strings.ToLower(v))
		if !valid {
			r.fail("PODSIM_MODE", v, errors.New("want realtime or accelerated"))
		}
		run.Mode = mode
	}
	if v, ok := r.get("PODSIM_START"); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			r.fail("PODSIM_START", v, err)
		}
		run.Start = t
	}

	r.str("PODSIM_HTTP_ADDR", &cfg.HTTP.Addr)
	if v, ok := r.get("PODSIM_CORS_ORIGINS"); ok {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	r.str("PODSIM_GRPC_ADDR", &cfg.GRPC.Addr)
	r.str("PODSIM_REPORT_DSN", &cfg.Report.DSN)

	tr := &cfg.Tracing
	r.boolean("PODSIM_TRACING_ENABLED", &tr.Enabled)
	if v, ok := r.get("PODSIM_TRACING_EXPORTER"); ok {
		tr.Exporter = strings.ToLower(v)
	}
	r.str("PODSIM_OTLP_ENDPOINT", &tr.Endpoint)
	if v, ok := r.get("PODSIM_TRACING_SERVICE_NAME"); ok {
		tr.ServiceName = v
	}
	r.float("PODSIM_TRACING_SAMPLE_RATIO", &tr.SampleRatio)

	if len(r.errs) > 0 {
		return cfg, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

// Validate checks the run settings and the core parameters.
func (c Config) Validate() error {
	var errs []error
	if c.Run.Pods <= 0 {
		errs = append(errs, fmt.Errorf("pods must be positive, got %d", c.Run.Pods))
	}
	if c.Run.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %v", c.Run.Tick))
	}
	if c.Run.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %v", c.Run.Duration))
	}
	if err := c.Sim.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the exporter name and sample ratio. Settings of a
// disabled tracer are not checked.
func (t TracingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	switch t.Exporter {
	case "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing exporter must be stdout or otlp, got %q", t.Exporter))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", t.SampleRatio))
	}
	if t.ServiceName == "" {
		errs = append(errs, errors.New("tracing service name must not be empty"))
	}
	return errors.Join(errs...)
}

// Ticks returns how many steps the configured duration takes.
func (c Config) Ticks() int {
	if c.Run.Tick <= 0 {
		return 0
	}
	return int(c.Run.Duration / c.Run.Tick)
}

// UsesPostgres reports whether the report DSN targets PostgreSQL.
func (r ReportConfig) UsesPostgres() bool {
	return strings.HasPrefix(r.DSN, "postgres://") || strings.HasPrefix(r.DSN, "postgresql://")
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (r *reader) boolean(key string, dst *bool) {
	if v, ok := r.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (r *reader) integer(key string, dst *int) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *reader) unsigned(key string, dst *uint64) {
	if v, ok := r.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (r *reader) float(key string, dst *float64) {
	if v, ok := r.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (r *reader) duration(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
