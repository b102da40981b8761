// Package audit handles persistence and fan-out of action records for
// security-relevant requests. Audit records are intentionally separate from
// application logs because they have different consumers and retention
// requirements — application logs are ephemeral debug output consumed by
// on-call engineers, while audit records are immutable rows consumed by
// security and compliance teams. The package supports multiple simultaneous
// destinations (database, append-only file) via the Sink interface, and an
// asynchronous wrapper that keeps audit delivery off the request path.
//
// A delivery failure is never allowed to fail the request that produced the
// record: callers log and continue.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/safego"
	"github.com/caseflow/caseflow/internal/telemetry"
)

// Sink receives completed action records. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Record delivers one action record to the destination.
	Record(ctx context.Context, rec *models.ActionRecord) error
	// Close flushes and releases any resources.
	Close() error
}

// RecordStore is the persistence dependency of StoreSink; implemented by the
// action record repository.
type RecordStore interface {
	Create(ctx context.Context, rec *models.ActionRecord) error
}

// StoreSink persists action records to the database.
type StoreSink struct {
	store RecordStore
}

// NewStoreSink creates a database-backed sink.
func NewStoreSink(store RecordStore) *StoreSink {
	return &StoreSink{store: store}
}

// Record writes the action record through the repository.
func (s *StoreSink) Record(ctx context.Context, rec *models.ActionRecord) error {
	if err := s.store.Create(ctx, rec); err != nil {
		telemetry.AuditRecordsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("storing action record: %w", err)
	}
	telemetry.AuditRecordsTotal.WithLabelValues("stored").Inc()
	return nil
}

// Close implements Sink; the underlying store is owned by the caller.
func (s *StoreSink) Close() error { return nil }

// FileSink appends action records as JSON lines to a file. Useful as a
// secondary destination for shipping to a SIEM via a log collector.
type FileSink struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileSink opens (or creates) the audit file in append mode.
func NewFileSink(path string) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	return &FileSink{file: file}, nil
}

// Record writes the record as one JSON line.
func (f *FileSink) Record(_ context.Context, rec *models.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling action record: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing action record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// MultiSink fans a record out to several destinations. Delivery continues
// past individual failures; the last error is returned.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	ms := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			ms.sinks = append(ms.sinks, s)
		}
	}
	return ms
}

// Record delivers to every sink.
func (m *MultiSink) Record(ctx context.Context, rec *models.ActionRecord) error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			lastErr = err
			slog.Error("audit sink delivery failed", "error", err)
		}
	}
	return lastErr
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// AsyncSink decouples audit delivery from the request path with a buffered
// queue and a single background worker. When the queue is full the record is
// dropped and counted rather than blocking the request; the dropped-records
// counter is the signal to alert on.
type AsyncSink struct {
	next  Sink
	queue chan *models.ActionRecord
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsyncSink wraps next with an asynchronous queue of the given capacity
// and starts the delivery worker.
func NewAsyncSink(next Sink, queueSize int) *AsyncSink {
	if queueSize < 1 {
		queueSize = 1024
	}
	a := &AsyncSink{
		next:  next,
		queue: make(chan *models.ActionRecord, queueSize),
		done:  make(chan struct{}),
	}
	safego.Go(a.worker)
	return a
}

func (a *AsyncSink) worker() {
	defer close(a.done)
	for rec := range a.queue {
		telemetry.AuditQueueDepth.Set(float64(len(a.queue)))
		// Queue entries outlive the originating request, so delivery runs
		// under its own context.
		if err := a.next.Record(context.Background(), rec); err != nil {
			slog.Error("async audit delivery failed", "error", err)
		}
	}
}

// Record enqueues the record without blocking. A full or closed queue drops
// the record.
func (a *AsyncSink) Record(_ context.Context, rec *models.ActionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		telemetry.AuditRecordsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("audit queue closed, dropping record",
			"kind", rec.Kind, "actor_id", rec.ActorID)
		return nil
	}
	select {
	case a.queue <- rec:
		telemetry.AuditQueueDepth.Set(float64(len(a.queue)))
		return nil
	default:
		telemetry.AuditRecordsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("audit queue full, dropping record",
			"kind", rec.Kind, "actor_id", rec.ActorID)
		return nil
	}
}

// Close stops accepting records, drains the queue, and closes the wrapped
// sink. Safe to call more than once; records arriving after Close are dropped.
func (a *AsyncSink) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return a.next.Close()
}
