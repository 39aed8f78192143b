package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "opl/reports/a.xlsx", want: "opl/reports/a.xlsx"},
		{in: "/opl//reports/./a.xlsx", want: "opl/reports/a.xlsx"},
		{in: "../../etc/passwd", want: "etc/passwd"},
		{in: `opl\reports\a.xlsx`, want: "opl/reports/a.xlsx"},
		{in: "", wantErr: true},
		{in: "/", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	size, err := s.Put(ctx, "vectra/reports/2026/01/orders.xlsx", "application/octet-stream", bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	rc, err := s.Get(ctx, "vectra/reports/2026/01/orders.xlsx")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, s.Delete(ctx, "vectra/reports/2026/01/orders.xlsx"))
	require.NoError(t, s.Delete(ctx, "vectra/reports/2026/01/orders.xlsx"))

	_, err = s.Get(ctx, "vectra/reports/2026/01/orders.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{Mode: "local", LocalBasePath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(&config.StorageConfig{Mode: "azure"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewStorage(&config.StorageConfig{Mode: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}
