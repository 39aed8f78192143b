package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/mapper"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sensitiveKeys are dropped from recorded request values
var sensitiveKeys = []string{"password", "secret", "token", "apiKey", "api_key"}

// AuditLogService handles audit logging operations
type AuditLogService struct {
	auditRepo *repository.AuditLogRepository
	logger    *zap.Logger
}

// NewAuditLogService creates a new audit log service
func NewAuditLogService(auditRepo *repository.AuditLogRepository, logger *zap.Logger) *AuditLogService {
	return &AuditLogService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// LogEntry represents the input for creating an audit log entry
type LogEntry struct {
	Action     domain.AuditAction
	ModuleCode string
	EntityType string
	EntityID   *uuid.UUID
	NewValues  interface{}
}

// Log creates an audit log entry from context and request
func (s *AuditLogService) Log(ctx context.Context, r *http.Request, entry LogEntry) error {
	auditLog := &domain.AuditLog{
		Action:      entry.Action,
		ModuleCode:  entry.ModuleCode,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		NewValues:   "null",
		PerformedAt: time.Now().UTC(),
	}

	if userCtx, ok := auth.FromContext(ctx); ok && userCtx != nil {
		id := userCtx.UserID
		auditLog.UserID = &id
		auditLog.UserEmail = userCtx.Email
		auditLog.UserName = userCtx.Name
	}

	if auditLog.ModuleCode == "" {
		if m, ok := auth.ModuleFromContext(ctx); ok {
			auditLog.ModuleCode = string(m.Code)
		}
	}

	if r != nil {
		auditLog.IPAddress = clientIP(r)
		auditLog.UserAgent = r.UserAgent()
		auditLog.RequestID = r.Header.Get("X-Request-ID")
	}

	if entry.NewValues != nil {
		if data, err := json.Marshal(redact(entry.NewValues)); err == nil {
			auditLog.NewValues = string(data)
		}
	}

	if err := s.auditRepo.Create(ctx, auditLog); err != nil {
		s.logger.Error("failed to create audit log",
			zap.String("action", string(entry.Action)),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err))
		return err
	}

	return nil
}

// AuditLogQueryParams represents query parameters for listing audit logs
type AuditLogQueryParams struct {
	UserID     *uuid.UUID
	Action     *domain.AuditAction
	ModuleCode string
	EntityType string
	EntityID   *uuid.UUID
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// List retrieves audit logs with filters
func (s *AuditLogService) List(ctx context.Context, params AuditLogQueryParams) (*domain.PaginatedResponse, error) {
	page, pageSize := repository.NormalizePage(params.Page, params.PageSize)

	logs, total, err := s.auditRepo.List(ctx, &repository.AuditLogFilter{
		UserID:     params.UserID,
		Action:     params.Action,
		ModuleCode: params.ModuleCode,
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
	}, page, pageSize)
	if err != nil {
		return nil, err
	}

	return paginate(mapper.ToAuditLogDTOs(logs), total, page, pageSize), nil
}

// CleanupOldLogs removes logs older than the retention period
func (s *AuditLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, ErrInvalidInput
	}

	before := time.Now().UTC().AddDate(0, 0, -retentionDays)
	count, err := s.auditRepo.DeleteOlderThan(ctx, before)
	if err != nil {
		s.logger.Error("failed to cleanup old audit logs",
			zap.Int("retention_days", retentionDays),
			zap.Error(err))
		return 0, err
	}

	if count > 0 {
		s.logger.Info("cleaned up old audit logs",
			zap.Int64("deleted_count", count),
			zap.Int("retention_days", retentionDays))
	}

	return count, nil
}

func redact(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for _, key := range sensitiveKeys {
		delete(m, key)
	}
	return m
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
