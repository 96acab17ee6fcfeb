package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/reports"
)

// ReportWarmer re-runs report queries so the cache is hot before users ask.
type ReportWarmer struct {
	reports *reports.Service
	logger  *slog.Logger
	metrics *Metrics
}

// NewReportWarmer constructs the warmer. metrics may be nil.
func NewReportWarmer(service *reports.Service, logger *slog.Logger, metrics *Metrics) *ReportWarmer {
	return &ReportWarmer{reports: service, logger: logger, metrics: metrics}
}

// HandleReportWarmupTask processes TaskReportWarmup tasks.
func (w *ReportWarmer) HandleReportWarmupTask(ctx context.Context, t *asynq.Task) error {
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	switch payload.Report {
	case "", "trial_balance":
		tracker := w.metrics.Track(TaskReportWarmup)
		var asOf *time.Time
		if payload.AsOf != "" {
			parsed, err := time.Parse("2006-01-02", payload.AsOf)
			if err != nil {
				return tracker.End(asynq.SkipRetry)
			}
			asOf = &parsed
		}
		if _, err := w.reports.TrialBalance(ctx, asOf); err != nil {
			return tracker.End(err)
		}
		w.logger.Info("report cache warmed", slog.String("report", "trial_balance"))
		return tracker.End(nil)
	default:
		w.logger.Warn("unknown report in warmup task", slog.String("report", payload.Report))
		return asynq.SkipRetry
	}
}
