package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan verifies the ledger and stock invariants.
	TaskIntegrityScan = "ledger:integrity_scan"
	// TaskReportWarmup pre-populates the report cache after postings.
	TaskReportWarmup = "reports:warmup"
)

// IntegrityScanPayload carries scheduling metadata for the scan. ScanID
// correlates the enqueued task with the log lines it produces.
type IntegrityScanPayload struct {
	ScanID       string    `json:"scan_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityScanPayload{ScanID: uuid.NewString(), ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// ReportWarmupPayload names the report to warm.
type ReportWarmupPayload struct {
	Report string `json:"report"`
	AsOf   string `json:"as_of,omitempty"`
}

// NewReportWarmupTask constructs an Asynq task for report warmup.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, body, asynq.Queue(QueueDefault)), nil
}
