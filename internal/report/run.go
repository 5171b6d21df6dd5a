package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
)

// Run collects one simulation run's deliveries. Observe is safe to call
// from a knowledge base subscription; rows are written by Flush and Finish.
type Run struct {
	ID    string
	store *Store

	mu      sync.Mutex
	pending []Delivery
	delays  DelayStats
}

// Observe buffers rider deliveries and ignores every other event.
func (r *Run) Observe(ev kb.Event) {
	if ev.Type != kb.EventRiderDelivered {
		return
	}
	delay := ev.Delay.Seconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays.Add(delay)
	r.pending = append(r.pending, Delivery{
		RiderID:      int64(ev.Rider),
		PodID:        int(ev.Pod),
		StationID:    int(ev.Station),
		DeliveredAt:  ev.At,
		OnTime:       ev.OnTime,
		DelaySeconds: delay,
	})
}

// Delays returns the running delay statistics over every delivery seen.
func (r *Run) Delays() DelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delays
}

// Flush writes buffered deliveries in one transaction. A batch that fails
// to commit goes back to the front of the buffer for the next attempt.
func (r *Run) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := r.write(ctx, batch); err != nil {
		r.mu.Lock()
		r.pending = append(batch, r.pending...)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Pending returns the number of deliveries not yet written.
func (r *Run) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Run) write(ctx context.Context, batch []Delivery) error {
	s := r.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("report: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO deliveries
		(run_id, rider_id, pod_id, station_id, delivered_at, on_time, delay_seconds) VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("report: prepare delivery insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range batch {
		if _, err := stmt.ExecContext(ctx, r.ID, d.RiderID, d.PodID, d.StationID,
			formatTime(d.DeliveredAt), boolInt(d.OnTime), d.DelaySeconds); err != nil {
			return fmt.Errorf("report: insert delivery %d: %w", d.RiderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("report: commit deliveries: %w", err)
	}
	return nil
}

// Finish flushes pending deliveries and stores the run totals. halted is
// the error that stopped the run early, if any.
func (r *Run) Finish(ctx context.Context, sum kb.Summary, halted error) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}
	stats := r.Delays()
	reason := ""
	if halted != nil {
		reason = halted.Error()
	}

	s := r.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.conn.ExecContext(ctx, s.rebind(`UPDATE runs SET
		finished_at = ?, sim_end = ?, spawned = ?, picked_up = ?, delivered = ?, on_time = ?, late = ?,
		routes_confirmed = ?, routes_not_found = ?, stalls = ?, charges = ?,
		mean_delay_seconds = ?, delay_stddev = ?, halted = ?
		WHERE id = ?`),
		formatTime(time.Now()), formatTime(sum.SimTime), sum.Spawned, sum.PickedUp, sum.Delivered, sum.OnTime, sum.Late,
		sum.RoutesConfirmed, sum.RoutesNotFound, sum.Stalls, sum.Charges,
		stats.Mean(), stats.StdDev(), reason, r.ID,
	)
	if err != nil {
		return fmt.Errorf("report: update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("report: finish %s: %w", r.ID, ErrUnknownRun)
	}
	s.log.Info(ctx, "run finished",
		logging.String("run_id", r.ID),
		logging.Int("delivered", sum.Delivered),
		logging.Int("on_time", sum.OnTime),
		logging.Float("mean_delay_seconds", stats.Mean()),
	)
	return nil
}
