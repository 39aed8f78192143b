// Package geocode resolves postal addresses to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrDisabled is returned when geocoding is turned off
	ErrDisabled = errors.New("geocoding disabled")
	// ErrNoMatch is returned when the provider found nothing for the address
	ErrNoMatch = errors.New("address not found")
)

// Point is a WGS84 coordinate
type Point struct {
	Latitude  float64
	Longitude float64
}

// Address is the structured address to resolve
type Address struct {
	Street     string
	PostalCode string
	City       string
	Country    string
}

// Query returns the free-form query string for the address
func (a Address) Query() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, strings.TrimSpace(a.PostalCode + " " + a.City), a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Client queries a Nominatim-compatible search API
type Client struct {
	httpClient *resty.Client
	enabled    bool
	logger     *zap.Logger
}

// NewClient creates a geocoding client from configuration
func NewClient(cfg *config.GeocodingConfig, logger *zap.Logger) *Client {
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "fieldcrm-api"
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Client{
		httpClient: client,
		enabled:    cfg.Enabled && cfg.BaseURL != "",
		logger:     logger,
	}
}

// Geocode resolves addr to its first matching coordinate
func (c *Client) Geocode(ctx context.Context, addr Address) (*Point, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}
	query := addr.Query()
	if query == "" {
		return nil, ErrNoMatch
	}

	var results []searchResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocoding provider returned status %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return nil, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	c.logger.Debug("address geocoded",
		zap.String("query", query),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon))

	return &Point{Latitude: lat, Longitude: lon}, nil
}
