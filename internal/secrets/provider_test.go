package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	values map[string]string
	calls  int
}

func (f *fakeStore) Fetch(ctx context.Context, name string) (string, error) {
	f.calls++
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, ""))
	assert.Equal(t, SourceVault, ResolveSource(SourceAuto, "production"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceEnvironment, "production"))
}

func TestProvider_GetSecretOrEnv(t *testing.T) {
	store := &fakeStore{values: map[string]string{"jwt-secret": "from-vault"}}
	p := NewProviderWithStore(SourceVault, store, zap.NewNop())

	t.Run("vault value", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		v, err := p.GetSecretOrEnv(context.Background(), "jwt-secret", "JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-vault", v)
	})

	t.Run("environment override wins", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "from-env")
		v, err := p.GetSecretOrEnv(context.Background(), "jwt-secret", "JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-env", v)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := p.GetSecret(context.Background(), "nope")
		assert.Error(t, err)
	})
}

func TestProvider_EnvironmentSource(t *testing.T) {
	t.Setenv("SMTP_PASSWORD", "s3cret")
	p := NewProviderWithStore(SourceEnvironment, nil, zap.NewNop())

	v, err := p.GetSecret(context.Background(), "SMTP_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)
	assert.False(t, p.IsVaultEnabled())
}

func TestCachedStore(t *testing.T) {
	store := &fakeStore{values: map[string]string{"a": "1"}}
	cached := NewCachedStore(store, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		v, err := cached.Fetch(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	}
	assert.Equal(t, 1, store.calls)

	now = now.Add(2 * time.Minute)
	_, err := cached.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)

	cached.Clear()
	_, err = cached.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
}
