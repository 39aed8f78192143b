package jobs

import (
	"context"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"go.uber.org/zap"
)

// RateSyncJobName is the name of the rate card sync job
const RateSyncJobName = "rate_sync"

// RateSyncer refreshes the rates of a module from the operator rate card
type RateSyncer interface {
	Sync(ctx context.Context, module *domain.ModuleDescriptor) (*domain.SeedResult, error)
}

// RateSyncJob refreshes the rates of every module. A failing module does not stop the others.
type RateSyncJob struct {
	syncer  RateSyncer
	modules []*domain.ModuleDescriptor
	alerts  *Alerts
	logger  *zap.Logger
	timeout time.Duration
}

func NewRateSyncJob(syncer RateSyncer, modules []*domain.ModuleDescriptor, alerts *Alerts, logger *zap.Logger, timeout time.Duration) *RateSyncJob {
	return &RateSyncJob{
		syncer:  syncer,
		modules: modules,
		alerts:  alerts,
		logger:  logger,
		timeout: timeout,
	}
}

// Run executes one sync of every module
func (j *RateSyncJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, m := range j.modules {
		start := time.Now()
		result, err := j.syncer.Sync(ctx, m)
		j.alerts.Report(ctx, RateSyncJobName, string(m.Code), err)
		if err != nil {
			continue
		}
		j.logger.Info("rate card synchronized",
			zap.String("module", string(m.Code)),
			zap.Int("created", result.Created),
			zap.Int("existing", result.Existing),
			zap.Duration("duration", time.Since(start)))
	}
}

// RegisterRateSyncJob registers the rate sync job. An empty expression leaves it disabled.
func RegisterRateSyncJob(scheduler *Scheduler, syncer RateSyncer, modules []*domain.ModuleDescriptor, alerts *Alerts, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	if cronExpr == "" {
		logger.Info("rate sync job disabled")
		return nil
	}
	job := NewRateSyncJob(syncer, modules, alerts, logger, timeout)
	return scheduler.AddJob(RateSyncJobName, cronExpr, job.Run)
}
