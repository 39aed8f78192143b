package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/report"
	"go.uber.org/zap"
)

// StockReportJobName is the name of the warehouse snapshot job
const StockReportJobName = "stock_report"

// SnapshotArchiver stores a warehouse stock report of one module
type SnapshotArchiver interface {
	ArchiveWarehouseSnapshot(ctx context.Context) (string, error)
}

// StockReportJob archives a warehouse stock snapshot for every module
type StockReportJob struct {
	archivers map[domain.ModuleCode]SnapshotArchiver
	alerts    *Alerts
	logger    *zap.Logger
	timeout   time.Duration
}

func NewStockReportJob(archivers map[domain.ModuleCode]SnapshotArchiver, alerts *Alerts, logger *zap.Logger, timeout time.Duration) *StockReportJob {
	return &StockReportJob{
		archivers: archivers,
		alerts:    alerts,
		logger:    logger,
		timeout:   timeout,
	}
}

// Run archives one snapshot per module. An empty warehouse is skipped, not reported.
func (j *StockReportJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, m := range domain.Modules() {
		code := m.Code
		archiver, ok := j.archivers[code]
		if !ok {
			continue
		}
		key, err := archiver.ArchiveWarehouseSnapshot(ctx)
		if errors.Is(err, report.ErrNoRows) {
			j.logger.Info("warehouse empty, no snapshot archived", zap.String("module", string(code)))
			j.alerts.Report(ctx, StockReportJobName, string(code), nil)
			continue
		}
		j.alerts.Report(ctx, StockReportJobName, string(code), err)
		if err == nil {
			j.logger.Info("warehouse snapshot archived",
				zap.String("module", string(code)),
				zap.String("key", key))
		}
	}
}

// RegisterStockReportJob registers the snapshot job. An empty expression leaves it disabled.
func RegisterStockReportJob(scheduler *Scheduler, archivers map[domain.ModuleCode]SnapshotArchiver, alerts *Alerts, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	if cronExpr == "" {
		logger.Info("stock report job disabled")
		return nil
	}
	job := NewStockReportJob(archivers, alerts, logger, timeout)
	return scheduler.AddJob(StockReportJobName, cronExpr, job.Run)
}
