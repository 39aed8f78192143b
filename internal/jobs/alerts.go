package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/mail"
	"go.uber.org/zap"
)

// Mailer sends templated notifications
type Mailer interface {
	SendTemplate(ctx context.Context, name mail.Template, data any, to ...string) error
}

// RunRecorder counts job runs by result
type RunRecorder interface {
	RecordJobRun(job string, err error)
}

// Alerts records the outcome of a job run and mails a failure notice to operators.
// Mail and metrics are optional.
type Alerts struct {
	mailer     Mailer
	recipients []string
	metrics    RunRecorder
	logger     *zap.Logger
}

// NewAlerts creates alerts for a comma separated recipient list
func NewAlerts(mailer Mailer, recipients string, metrics RunRecorder, logger *zap.Logger) *Alerts {
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Alerts{mailer: mailer, recipients: to, metrics: metrics, logger: logger}
}

// Report records one run of job for module. A nil err counts as success.
func (a *Alerts) Report(ctx context.Context, job, module string, err error) {
	if a.metrics != nil {
		a.metrics.RecordJobRun(job, err)
	}
	if err == nil {
		return
	}

	a.logger.Error("scheduled job failed",
		zap.String("job_name", job),
		zap.String("module", module),
		zap.Error(err))

	if a.mailer == nil || len(a.recipients) == 0 {
		return
	}
	data := mail.OperationalFailureData{
		Module:    module,
		Operation: job,
		Detail:    err.Error(),
		At:        time.Now().UTC().Format(time.RFC3339),
	}
	if mailErr := a.mailer.SendTemplate(ctx, mail.TemplateOperationalFailure, data, a.recipients...); mailErr != nil {
		a.logger.Warn("failed to send failure notice",
			zap.String("job_name", job),
			zap.Error(mailErr))
	}
}
