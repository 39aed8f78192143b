package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mail"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/report"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMailer struct {
	to   []string
	data []mail.OperationalFailureData
}

func (m *stubMailer) SendTemplate(_ context.Context, name mail.Template, data any, to ...string) error {
	if name == mail.TemplateOperationalFailure {
		m.data = append(m.data, data.(mail.OperationalFailureData))
	}
	m.to = append(m.to, to...)
	return nil
}

type stubSyncer struct {
	failFor domain.ModuleCode
	synced  []domain.ModuleCode
}

func (s *stubSyncer) Sync(_ context.Context, m *domain.ModuleDescriptor) (*domain.SeedResult, error) {
	if m.Code == s.failFor {
		return nil, errors.New("rate card unavailable")
	}
	s.synced = append(s.synced, m.Code)
	return &domain.SeedResult{Created: 1}, nil
}

type stubArchiver struct {
	key string
	err error
}

func (a stubArchiver) ArchiveWarehouseSnapshot(context.Context) (string, error) {
	return a.key, a.err
}

func TestScheduler_AddAndRemoveJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop())

	require.NoError(t, s.AddJob("b", "0 0 * * * *", func() {}))
	require.NoError(t, s.AddJob("a", "@every 1h", func() {}))
	assert.Error(t, s.AddJob("a", "@every 1h", func() {}))
	assert.Error(t, s.AddJob("bad", "not a cron", func() {}))
	assert.Equal(t, []string{"a", "b"}, s.JobNames())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.JobNames())
}

func TestNewAlerts_ParsesRecipients(t *testing.T) {
	a := NewAlerts(nil, " ops@example.com, ,lead@example.com ", nil, zap.NewNop())
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, a.recipients)
}

func TestRateSyncJob_ContinuesAfterModuleFailure(t *testing.T) {
	m := metrics.New()
	mailer := &stubMailer{}
	syncer := &stubSyncer{failFor: domain.ModuleVectra}
	alerts := NewAlerts(mailer, "ops@example.com", m, zap.NewNop())

	job := NewRateSyncJob(syncer, domain.Modules(), alerts, zap.NewNop(), time.Second)
	job.Run()

	assert.Equal(t, []domain.ModuleCode{domain.ModuleOPL}, syncer.synced)
	require.Len(t, mailer.data, 1)
	assert.Equal(t, "vectra", mailer.data[0].Module)
	assert.Equal(t, RateSyncJobName, mailer.data[0].Operation)
	assert.Equal(t, []string{"ops@example.com"}, mailer.to)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues(RateSyncJobName, "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues(RateSyncJobName, "success")))
}

func TestStockReportJob_SkipsEmptyWarehouse(t *testing.T) {
	m := metrics.New()
	mailer := &stubMailer{}
	alerts := NewAlerts(mailer, "ops@example.com", m, zap.NewNop())

	job := NewStockReportJob(map[domain.ModuleCode]SnapshotArchiver{
		domain.ModuleVectra: stubArchiver{err: report.ErrNoRows},
		domain.ModuleOPL:    stubArchiver{key: "reports/opl/warehouse_stock/x.xlsx"},
	}, alerts, zap.NewNop(), time.Second)
	job.Run()

	assert.Empty(t, mailer.data)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.JobRuns.WithLabelValues(StockReportJobName, "success")))
}

func TestStockReportJob_ReportsFailure(t *testing.T) {
	mailer := &stubMailer{}
	alerts := NewAlerts(mailer, "ops@example.com", nil, zap.NewNop())

	job := NewStockReportJob(map[domain.ModuleCode]SnapshotArchiver{
		domain.ModuleOPL: stubArchiver{err: errors.New("container missing")},
	}, alerts, zap.NewNop(), time.Second)
	job.Run()

	require.Len(t, mailer.data, 1)
	assert.Equal(t, "opl", mailer.data[0].Module)
	assert.Contains(t, mailer.data[0].Detail, "container missing")
}

func TestRegister_EmptyScheduleDisablesJob(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	alerts := NewAlerts(nil, "", nil, zap.NewNop())

	require.NoError(t, RegisterRateSyncJob(s, &stubSyncer{}, domain.Modules(), alerts, zap.NewNop(), "", time.Second))
	require.NoError(t, RegisterStockReportJob(s, nil, alerts, zap.NewNop(), "0 0 6 * * MON", time.Second))
	assert.Equal(t, []string{StockReportJobName}, s.JobNames())
}

type stubPruner struct {
	days int
	err  error
}

func (p *stubPruner) CleanupOldLogs(_ context.Context, retentionDays int) (int64, error) {
	p.days = retentionDays
	return 3, p.err
}

func TestAuditCleanupJob_UsesRetention(t *testing.T) {
	m := metrics.New()
	pruner := &stubPruner{}
	alerts := NewAlerts(nil, "", m, zap.NewNop())

	NewAuditCleanupJob(pruner, 90, alerts, zap.NewNop(), time.Second).Run()

	assert.Equal(t, 90, pruner.days)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues(AuditCleanupJobName, "success")))
}

func TestRegisterAuditCleanupJob_DisabledWithoutRetention(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	alerts := NewAlerts(nil, "", nil, zap.NewNop())

	require.NoError(t, RegisterAuditCleanupJob(s, &stubPruner{}, 0, alerts, zap.NewNop(), "0 0 3 * * SUN", time.Second))
	assert.Empty(t, s.JobNames())

	require.NoError(t, RegisterAuditCleanupJob(s, &stubPruner{}, 30, alerts, zap.NewNop(), "0 0 3 * * SUN", time.Second))
	assert.Equal(t, []string{AuditCleanupJobName}, s.JobNames())
}
