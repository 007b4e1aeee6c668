// Package jobs runs the ingestion job queue: an in-process, best-effort
// sequencer with exactly one consumer. Jobs run to a terminal state in
// arrival order; nothing survives a restart.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bgeigie-hub/internal/bgeigie"
	"bgeigie-hub/internal/metrics"
	"bgeigie-hub/internal/quality"
	"bgeigie-hub/internal/store"
)

// Kind selects the work a job performs.
type Kind string

const (
	KindDecodeAndIngest  Kind = "decode_and_ingest"
	KindSendNotification Kind = "send_notification"
	KindValidateBatch    Kind = "validate_batch"
)

// Status is the lifecycle state of a job. Terminal states are final;
// there is no re-queue.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one unit of queued work. It is owned by the queue for its
// whole lifetime and discarded once terminal; failures surface through
// logs and metrics only.
type Job struct {
	ID        string
	Kind      Kind
	Payload   any
	CreatedAt time.Time

	Status      Status
	Reason      string
	CompletedAt time.Time
}

// IngestPayload asks for an import's raw bytes to be decoded, filtered,
// persisted and status-transitioned.
type IngestPayload struct {
	ImportID int64
}

// NotificationPayload delegates to the notification collaborator.
type NotificationPayload struct {
	Kind      string
	ImportID  int64
	Recipient string
	Metadata  map[string]string
}

// ValidatePayload recomputes the quality verdict over an ad-hoc batch.
type ValidatePayload struct {
	Measurements []bgeigie.Measurement
}

// Store is the persistence collaborator the queue requires.
type Store interface {
	SourceBytes(ctx context.Context, importID int64) ([]byte, error)
	WriteMeasurements(ctx context.Context, importID int64, ms []bgeigie.Measurement) (int, error)
	SetImportStatus(ctx context.Context, importID int64, status store.ImportStatus, actor string) error
}

// Notifier is the notification collaborator. Its failures never fail
// an ingestion.
type Notifier interface {
	Notify(ctx context.Context, kind string, importID int64, recipient string, metadata map[string]string) error
}

var (
	ErrQueueStopped = errors.New("jobs: queue stopped")
	ErrQueueFull    = errors.New("jobs: queue full")
)

// Config sizes the queue.
type Config struct {
	// QueueSize bounds the job channel; Enqueue rejects rather than
	// blocks when it is full.
	QueueSize int
	// WaitTimeout is how long the consumer blocks for the next job
	// before re-checking the stop signal. It is a shutdown-polling
	// knob, not a retry or per-job deadline.
	WaitTimeout time.Duration
	// Recipient receives ingestion-triggered notifications.
	Recipient string
}

// Queue is the single-consumer ingestion job queue. Enqueue is safe
// for concurrent callers; everything else runs on the one worker.
type Queue struct {
	cfg      Config
	decoder  *bgeigie.Decoder
	gate     *quality.Gate
	store    Store
	notifier Notifier
	log      *slog.Logger

	jobs    chan *Job
	quit    chan struct{}
	stopped atomic.Bool
	started atomic.Bool
	wg      sync.WaitGroup
}

// New builds a stopped queue. Start it exactly once.
func New(cfg Config, decoder *bgeigie.Decoder, gate *quality.Gate, st Store, notifier Notifier, log *slog.Logger) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		cfg:      cfg,
		decoder:  decoder,
		gate:     gate,
		store:    st,
		notifier: notifier,
		log:      log,
		jobs:     make(chan *Job, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the consumer loop. The context is the parent of every
// job execution.
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	q.wg.Add(1)
	go q.run(ctx)
	q.log.Info("job queue started", "queue_size", q.cfg.QueueSize, "wait_timeout", q.cfg.WaitTimeout)
}

// Stop signals the consumer and waits for it to exit. An in-flight job
// runs to its natural terminal state first; jobs still queued are
// dropped. Enqueue is rejected from this point on.
func (q *Queue) Stop() {
	if !q.stopped.CompareAndSwap(false, true) {
		return
	}
	close(q.quit)
	q.wg.Wait()
	q.log.Info("job queue stopped", "dropped", len(q.jobs))
}

// Enqueue submits a job and returns its id immediately; it never waits
// on processing. The stop check is best effort: a job accepted
// concurrently with Stop may be dropped with the rest of the backlog.
func (q *Queue) Enqueue(kind Kind, payload any) (string, error) {
	if q.stopped.Load() {
		return "", ErrQueueStopped
	}
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Status:    StatusQueued,
	}
	select {
	case q.jobs <- job:
	default:
		return "", ErrQueueFull
	}
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.log.Info("job queued", "job_id", job.ID, "kind", job.Kind)
	return job.ID, nil
}

// EnqueueDecodeAndIngest queues ingestion of an uploaded import.
func (q *Queue) EnqueueDecodeAndIngest(importID int64) (string, error) {
	return q.Enqueue(KindDecodeAndIngest, IngestPayload{ImportID: importID})
}

// EnqueueNotification queues a notification delivery.
func (q *Queue) EnqueueNotification(kind string, importID int64, recipient string, metadata map[string]string) (string, error) {
	return q.Enqueue(KindSendNotification, NotificationPayload{
		Kind: kind, ImportID: importID, Recipient: recipient, Metadata: metadata,
	})
}

// EnqueueValidate queues an ad-hoc quality inspection of a batch.
func (q *Queue) EnqueueValidate(ms []bgeigie.Measurement) (string, error) {
	return q.Enqueue(KindValidateBatch, ValidatePayload{Measurements: ms})
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		// The stop signal is observed once per wait cycle; it never
		// interrupts a job in flight.
		select {
		case <-q.quit:
			return
		default:
		}

		select {
		case job := <-q.jobs:
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			q.process(ctx, job)
		case <-time.After(q.cfg.WaitTimeout):
			// Liveness poll only; loop and re-check the stop signal.
		}
	}
}

// process runs one job to a terminal state. A job failure is recovered
// at the job boundary: it is logged and counted, and the loop moves on.
func (q *Queue) process(ctx context.Context, job *Job) {
	job.Status = StatusProcessing
	q.log.Info("job processing", "job_id", job.ID, "kind", job.Kind)

	var err error
	switch job.Kind {
	case KindDecodeAndIngest:
		err = q.runIngest(ctx, job)
	case KindSendNotification:
		err = q.runNotification(ctx, job)
	case KindValidateBatch:
		err = q.runValidate(job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	job.CompletedAt = time.Now().UTC()
	if err != nil {
		job.Status = StatusFailed
		job.Reason = err.Error()
		metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "failed").Inc()
		q.log.Error("job failed", "job_id", job.ID, "kind", job.Kind, "reason", job.Reason)
		return
	}
	job.Status = StatusCompleted
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "completed").Inc()
	q.log.Info("job completed", "job_id", job.ID, "kind", job.Kind,
		"elapsed", job.CompletedAt.Sub(job.CreatedAt))
}
