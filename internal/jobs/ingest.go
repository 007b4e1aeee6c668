package jobs

import (
	"context"
	"fmt"
	"strconv"

	"bgeigie-hub/internal/bgeigie"
	"bgeigie-hub/internal/metrics"
	"bgeigie-hub/internal/quality"
	"bgeigie-hub/internal/store"
)

// Notification kinds emitted by the pipeline.
const (
	NotifyImportProcessed = "import_processed"
	NotifyImportApproved  = "import_approved"
	NotifyImportRejected  = "import_rejected"
)

// runIngest is the decode-and-ingest job: read the import's raw bytes,
// decode every line, keep the plausible records, persist the batch,
// move the import status and queue the notification. A failure leaves
// the import in its last-good status.
func (q *Queue) runIngest(ctx context.Context, job *Job) error {
	p, ok := job.Payload.(IngestPayload)
	if !ok {
		return fmt.Errorf("bad payload type %T", job.Payload)
	}

	raw, err := q.store.SourceBytes(ctx, p.ImportID)
	if err != nil {
		return fmt.Errorf("read source for import %d: %w", p.ImportID, err)
	}

	results := q.decoder.DecodeAll(raw)
	for _, r := range results {
		if r.Skipped {
			metrics.LinesSkippedTotal.WithLabelValues(r.Reason).Inc()
			q.log.Debug("line skipped", "import_id", p.ImportID, "reason", r.Reason)
		} else {
			metrics.LinesDecodedTotal.Inc()
		}
	}

	// Only records that pass the per-record filter count toward the
	// verdict; an import padded with implausible rows must not reach
	// the approval threshold.
	accepted := quality.Filter(bgeigie.Accepted(results))
	metrics.MeasurementsAcceptedTotal.Add(float64(len(accepted)))
	verdict := q.gate.Evaluate(accepted)

	if _, err := q.store.WriteMeasurements(ctx, p.ImportID, accepted); err != nil {
		return fmt.Errorf("write measurements for import %d: %w", p.ImportID, err)
	}

	status := store.StatusProcessed
	actor := "ingest"
	notifyKind := NotifyImportProcessed
	if verdict.AutoApprove {
		status = store.StatusApproved
		actor = "auto-approval"
		notifyKind = NotifyImportApproved
	}
	if err := q.store.SetImportStatus(ctx, p.ImportID, status, actor); err != nil {
		return fmt.Errorf("set status for import %d: %w", p.ImportID, err)
	}

	q.log.Info("import ingested",
		"import_id", p.ImportID,
		"lines", len(results),
		"accepted", len(accepted),
		"max_cpm", verdict.MaxCPM,
		"gps_fraction", verdict.GPSFraction,
		"status", status)

	if _, err := q.EnqueueNotification(notifyKind, p.ImportID, q.cfg.Recipient, map[string]string{
		"status":   string(status),
		"accepted": strconv.Itoa(len(accepted)),
	}); err != nil {
		// The ingestion itself succeeded; a full (or stopping) queue only
		// costs the notification.
		q.log.Warn("notification enqueue failed", "import_id", p.ImportID, "error", err)
	}
	return nil
}

// runNotification delegates to the notification collaborator. Delivery
// failures are logged and swallowed; they never fail the originating
// ingestion.
func (q *Queue) runNotification(ctx context.Context, job *Job) error {
	p, ok := job.Payload.(NotificationPayload)
	if !ok {
		return fmt.Errorf("bad payload type %T", job.Payload)
	}
	if err := q.notifier.Notify(ctx, p.Kind, p.ImportID, p.Recipient, p.Metadata); err != nil {
		q.log.Warn("notification delivery failed",
			"kind", p.Kind, "import_id", p.ImportID, "error", err)
	}
	return nil
}

// runValidate recomputes the aggregate verdict over a supplied batch.
// Ad-hoc inspection only; not part of the ingestion critical path.
func (q *Queue) runValidate(job *Job) error {
	p, ok := job.Payload.(ValidatePayload)
	if !ok {
		return fmt.Errorf("bad payload type %T", job.Payload)
	}
	verdict := q.gate.Evaluate(quality.Filter(p.Measurements))
	q.log.Info("batch validated",
		"supplied", len(p.Measurements),
		"total", verdict.Total,
		"gps_valid", verdict.GPSValid,
		"max_cpm", verdict.MaxCPM,
		"auto_approve", verdict.AutoApprove)
	return nil
}
