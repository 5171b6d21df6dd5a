// Package report persists experiment results: one row per simulation run
// and one per delivered rider. SQLite (modernc.org/sqlite) is used for file
// paths and PostgreSQL (lib/pq) for postgres:// DSNs.
package report

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
)

//go:embed schema.sql
var schemaSQL string

// ErrUnknownRun is returned when a run ID has no row.
var ErrUnknownRun = errors.New("unknown run")

type dialect int

const (
	sqliteDialect dialect = iota
	postgresDialect
)

// Store wraps the results database.
type Store struct {
	conn    *sql.DB
	dialect dialect
	log     logging.Logger
	// SQLite allows one writer; every write goes through writeMu.
	writeMu sync.Mutex
}

// Open connects to dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	if dsn == "" {
		return nil, errors.New("report: empty DSN")
	}

	s := &Store{log: log}
	var err error
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		s.dialect = postgresDialect
		s.conn, err = sql.Open("postgres", dsn)
	} else {
		s.dialect = sqliteDialect
		s.conn, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("report: open database: %w", err)
	}
	if err := s.conn.PingContext(ctx); err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("report: ping database: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.conn.Close()
		return nil, err
	}
	log.Info(ctx, "results store ready", logging.String("driver", s.driver()))
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func (s *Store) driver() string {
	if s.dialect == postgresDialect {
		return "postgres"
	}
	return "sqlite"
}

// Close closes the database connection.
func (s *Store) Close() error { return s.conn.Close() }

// EnsureSchema creates the tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("report: create schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != postgresDialect {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	// ID is used as the run's key when set; otherwise one is generated.
	ID               string
	StartedAt        time.Time
	AdvancedPlanning bool
	SpawnRate        float64
	Pods             int
	Seed             uint64
}

// RunSummary is a finished (or still running) run as stored.
type RunSummary struct {
	ID               string
	RunInfo
	SimEnd           time.Time
	Totals           kb.Summary
	MeanDelaySeconds float64
	DelayStdDev      float64
	Halted           string
}

// Delivery is one delivered rider.
type Delivery struct {
	RiderID      int64
	PodID        int
	StationID    int
	DeliveredAt  time.Time
	OnTime       bool
	DelaySeconds float64
}

// StartRun inserts a run row and returns a recorder collecting its
// deliveries.
func (s *Store) StartRun(ctx context.Context, info RunInfo) (*Run, error) {
	id := info.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, started_at, advanced_planning, spawn_rate, pods, seed) VALUES (?, ?, ?, ?, ?, ?)`),
		id, formatTime(info.StartedAt), boolInt(info.AdvancedPlanning), info.SpawnRate, info.Pods, int64(info.Seed),
	)
	if err != nil {
		return nil, fmt.Errorf("report: insert run: %w", err)
	}
	s.log.Info(ctx, "run started", logging.String("run_id", id), logging.Float("spawn_rate", info.SpawnRate))
	return &Run{ID: id, store: s}, nil
}

// Runs lists every stored run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, started_at, advanced_planning, spawn_rate, pods, seed,
		COALESCE(sim_end, ''), spawned, picked_up, delivered, on_time, late, routes_confirmed, routes_not_found,
		stalls, charges, mean_delay_seconds, delay_stddev, halted
		FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("report: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r               RunSummary
			started, simEnd string
			advanced        int
			seed            int64
		)
		if err := rows.Scan(&r.ID, &started, &advanced, &r.SpawnRate, &r.Pods, &seed,
			&simEnd, &r.Totals.Spawned, &r.Totals.PickedUp, &r.Totals.Delivered, &r.Totals.OnTime, &r.Totals.Late,
			&r.Totals.RoutesConfirmed, &r.Totals.RoutesNotFound, &r.Totals.Stalls, &r.Totals.Charges,
			&r.MeanDelaySeconds, &r.DelayStdDev, &r.Halted); err != nil {
			return nil, fmt.Errorf("report: scan run: %w", err)
		}
		r.AdvancedPlanning = advanced != 0
		r.Seed = uint64(seed)
		r.StartedAt = parseTime(started)
		r.SimEnd = parseTime(simEnd)
		r.Totals.SimTime = r.SimEnd
		out = append(out, r)
	}
	return out, rows.Err()
}

// Deliveries lists the riders delivered in a run, by delivery time.
func (s *Store) Deliveries(ctx context.Context, runID string) ([]Delivery, error) {
	rows, err := s.conn.QueryContext(ctx, s.rebind(`SELECT rider_id, pod_id, station_id, delivered_at, on_time, delay_seconds
		FROM deliveries WHERE run_id = ? ORDER BY delivered_at, rider_id`), runID)
	if err != nil {
		return nil, fmt.Errorf("report: query deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d      Delivery
			at     string
			onTime int
		)
		if err := rows.Scan(&d.RiderID, &d.PodID, &d.StationID, &at, &onTime, &d.DelaySeconds); err != nil {
			return nil, fmt.Errorf("report: scan delivery: %w", err)
		}
		d.DeliveredAt = parseTime(at)
		d.OnTime = onTime != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
