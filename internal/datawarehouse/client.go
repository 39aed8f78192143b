// Package datawarehouse reads the operator rate cards from the MS SQL Server data warehouse.
// The connection is optional and read-only.
package datawarehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/config"
	_ "github.com/microsoft/go-mssqldb" // MS SQL Server driver
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0

	defaultHealthCheckTimeout = 5 * time.Second
	defaultQueryTimeout       = 30 * time.Second
)

// ErrNotInitialized is returned by queries on a disabled client
var ErrNotInitialized = errors.New("data warehouse client not initialized")

// RateCardTables maps module codes to the operator rate card tables in the warehouse
var RateCardTables = map[string]string{
	"vectra": "dbo.vectra_rate_card",
	"opl":    "dbo.opl_rate_card",
}

// RateCardEntry is one priced work code published by an operator
type RateCardEntry struct {
	Code        string
	Description string
	Amount      float64
}

// Client provides read-only access to the data warehouse
type Client struct {
	db           *sql.DB
	logger       *zap.Logger
	queryTimeout time.Duration
}

// HealthStatus represents the health check result for the data warehouse connection
type HealthStatus struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
	Open    int           `json:"open_connections"`
	InUse   int           `json:"in_use"`
	Idle    int           `json:"idle"`
}

// NewClient connects to the data warehouse.
// Returns nil without error if the warehouse is disabled or credentials are missing.
func NewClient(cfg *config.DataWarehouseConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Data warehouse connection disabled")
		return nil, nil
	}
	if cfg.URL == "" || cfg.User == "" || cfg.Password == "" {
		logger.Warn("Data warehouse enabled but missing credentials, skipping connection",
			zap.Bool("url_present", cfg.URL != ""),
			zap.Bool("user_present", cfg.User != ""),
			zap.Bool("password_present", cfg.Password != ""),
		)
		return nil, nil
	}

	connStr, err := buildConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	backoff := defaultInitialBackoff
	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		var db *sql.DB
		db, err = openAndPing(connStr, cfg)
		if err == nil {
			logger.Info("Data warehouse connection established", zap.Int("attempts_taken", attempt))
			return NewClientFromDB(db, cfg.QueryTimeoutDuration(), logger), nil
		}

		logger.Warn("Data warehouse connection attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", defaultMaxRetries),
		)
		if attempt < defaultMaxRetries {
			time.Sleep(backoff)
			backoff = min(time.Duration(float64(backoff)*defaultBackoffFactor), defaultMaxBackoff)
		}
	}
	return nil, fmt.Errorf("failed to connect to data warehouse after %d attempts: %w", defaultMaxRetries, err)
}

// NewClientFromDB wraps an open database handle
func NewClientFromDB(db *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *Client {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Client{db: db, logger: logger, queryTimeout: queryTimeout}
}

func openAndPing(connStr string, cfg *config.DataWarehouseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	ctx, cancel := context.WithTimeout(context.Background(), defaultHealthCheckTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// buildConnectionString builds a sqlserver URL from host:port/database
func buildConnectionString(cfg *config.DataWarehouseConfig) (string, error) {
	hostPort, database, _ := strings.Cut(cfg.URL, "/")
	host, port, found := strings.Cut(hostPort, ":")
	if host == "" {
		return "", fmt.Errorf("missing host in %q", cfg.URL)
	}
	if !found || port == "" {
		port = "1433"
	}

	query := url.Values{}
	query.Add("encrypt", "true")
	query.Add("TrustServerCertificate", "false")
	query.Add("connection timeout", "30")
	if database != "" {
		query.Add("database", database)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     host + ":" + port,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close data warehouse connection: %w", err)
	}
	c.logger.Info("Data warehouse connection closed")
	return nil
}

// IsEnabled returns true if the client is initialized and ready for queries
func (c *Client) IsEnabled() bool {
	return c != nil && c.db != nil
}

// HealthCheck pings the warehouse and reports pool statistics
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	if !c.IsEnabled() {
		return &HealthStatus{Status: "disabled"}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthCheckTimeout)
		defer cancel()
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	stats := c.db.Stats()
	status := &HealthStatus{
		Status:  "healthy",
		Latency: time.Since(start),
		Open:    stats.OpenConnections,
		InUse:   stats.InUse,
		Idle:    stats.Idle,
	}
	if err != nil {
		c.logger.Warn("Data warehouse health check failed", zap.Error(err))
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

// RateCardTableName returns the rate card table of a module
func RateCardTableName(module string) (string, error) {
	table, ok := RateCardTables[module]
	if !ok {
		return "", fmt.Errorf("no rate card for module: %s", module)
	}
	return table, nil
}

// FetchRateCard returns the rate card entries of a module valid at the given time
func (c *Client) FetchRateCard(ctx context.Context, module string, at time.Time) ([]RateCardEntry, error) {
	if !c.IsEnabled() {
		return nil, ErrNotInitialized
	}
	table, err := RateCardTableName(module)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	query := fmt.Sprintf(
		"SELECT code, description, amount FROM %s WHERE valid_from <= @p1 AND (valid_to IS NULL OR valid_to > @p1) ORDER BY code",
		table,
	)

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, at)
	if err != nil {
		c.logger.Error("Rate card query failed", zap.String("module", module), zap.Error(err))
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	var entries []RateCardEntry
	for rows.Next() {
		var e RateCardEntry
		var description sql.NullString
		if err := rows.Scan(&e.Code, &description, &e.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan rate card row: %w", err)
		}
		e.Code = strings.ToUpper(strings.TrimSpace(e.Code))
		e.Description = description.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	c.logger.Debug("Rate card fetched",
		zap.String("module", module),
		zap.Int("rows_returned", len(entries)),
		zap.Duration("duration", time.Since(start)),
	)
	return entries, nil
}
