package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(&config.GeocodingConfig{Enabled: true, BaseURL: server.URL, Timeout: 2}, zap.NewNop())
}

func TestClient_Geocode(t *testing.T) {
	var gotQuery, gotAgent string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"52.2297","lon":"21.0122"}]`))
	})

	p, err := c.Geocode(context.Background(), Address{Street: "Marszałkowska 1", PostalCode: "00-001", City: "Warszawa"})
	require.NoError(t, err)
	assert.InDelta(t, 52.2297, p.Latitude, 1e-9)
	assert.InDelta(t, 21.0122, p.Longitude, 1e-9)
	assert.Equal(t, "Marszałkowska 1, 00-001 Warszawa", gotQuery)
	assert.Equal(t, "fieldcrm-api", gotAgent)
}

func TestClient_GeocodeNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.Geocode(context.Background(), Address{City: "Nowhere"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestClient_GeocodeProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Geocode(context.Background(), Address{City: "Kraków"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(&config.GeocodingConfig{Enabled: false, BaseURL: "http://localhost"}, zap.NewNop())
	_, err := c.Geocode(context.Background(), Address{City: "Gdańsk"})
	assert.ErrorIs(t, err, ErrDisabled)

	c = NewClient(&config.GeocodingConfig{Enabled: true}, zap.NewNop())
	_, err = c.Geocode(context.Background(), Address{City: "Gdańsk"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAddress_Query(t *testing.T) {
	assert.Equal(t, "", Address{}.Query())
	assert.Equal(t, "Kraków", Address{City: "Kraków"}.Query())
	assert.Equal(t, "Długa 5, 80-001 Gdańsk, Polska", Address{Street: "Długa 5", PostalCode: "80-001", City: "Gdańsk", Country: "Polska"}.Query())
}
