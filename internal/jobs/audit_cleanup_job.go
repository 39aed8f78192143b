package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AuditCleanupJobName is the name of the audit retention job
const AuditCleanupJobName = "audit_cleanup"

// AuditPruner deletes audit entries older than the retention period
type AuditPruner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error)
}

// AuditCleanupJob enforces the audit log retention period
type AuditCleanupJob struct {
	pruner        AuditPruner
	retentionDays int
	alerts        *Alerts
	logger        *zap.Logger
	timeout       time.Duration
}

func NewAuditCleanupJob(pruner AuditPruner, retentionDays int, alerts *Alerts, logger *zap.Logger, timeout time.Duration) *AuditCleanupJob {
	return &AuditCleanupJob{
		pruner:        pruner,
		retentionDays: retentionDays,
		alerts:        alerts,
		logger:        logger,
		timeout:       timeout,
	}
}

func (j *AuditCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.pruner.CleanupOldLogs(ctx, j.retentionDays)
	j.alerts.Report(ctx, AuditCleanupJobName, "core", err)
	if err == nil {
		j.logger.Debug("audit cleanup finished", zap.Int64("deleted", deleted))
	}
}

// RegisterAuditCleanupJob registers the retention job. An empty expression or a
// non-positive retention leaves it disabled.
func RegisterAuditCleanupJob(scheduler *Scheduler, pruner AuditPruner, retentionDays int, alerts *Alerts, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	if cronExpr == "" || retentionDays <= 0 {
		logger.Info("audit cleanup job disabled")
		return nil
	}
	job := NewAuditCleanupJob(pruner, retentionDays, alerts, logger, timeout)
	return scheduler.AddJob(AuditCleanupJobName, cronExpr, job.Run)
}
