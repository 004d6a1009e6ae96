package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type flakySource struct {
	*MemorySource
	fail bool
}

func (f *flakySource) LoadSettings(ctx context.Context) (map[string]string, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	return f.MemorySource.LoadSettings(ctx)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestServiceCachesUntilTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := NewMemorySource(map[string]string{KeyCheckIntervalMinutes: "10"})
	clock := newClock()
	svc := NewService(src, Config{TTL: time.Minute}, clock, zap.NewNop())

	require.Equal(t, 10, svc.GetInt(ctx, KeyCheckIntervalMinutes, 5))
	require.NoError(t, src.SaveSetting(ctx, KeyCheckIntervalMinutes, "20"))
	require.Equal(t, 10, svc.GetInt(ctx, KeyCheckIntervalMinutes, 5))
	require.EqualValues(t, 1, src.Loads())

	clock.Advance(61 * time.Second)
	require.Equal(t, 20, svc.GetInt(ctx, KeyCheckIntervalMinutes, 5))
	require.EqualValues(t, 2, src.Loads())
}

func TestServiceSetInvalidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := NewMemorySource(nil)
	svc := NewService(src, Config{}, newClock(), nil)

	require.False(t, svc.GetBool(ctx, KeyNotificationsEnabled, false))
	require.NoError(t, svc.Set(ctx, KeyNotificationsEnabled, "true"))
	require.True(t, svc.GetBool(ctx, KeyNotificationsEnabled, false))
	require.EqualValues(t, 2, src.Loads())
	require.Error(t, svc.Set(ctx, " ", "x"))
}

func TestServiceDefaultsAndParsing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := NewMemorySource(map[string]string{"bad_int": "abc", "flag": "on"})
	svc := NewService(src, Config{Defaults: map[string]string{"greeting": "hi", "flag": "off"}}, newClock(), nil)

	require.Equal(t, 7, svc.GetInt(ctx, "bad_int", 7))
	require.True(t, svc.GetBool(ctx, "flag", false))
	require.Equal(t, "hi", svc.GetString(ctx, "greeting", ""))
	require.Equal(t, "x", svc.GetString(ctx, "missing", "x"))
	all := svc.All(ctx)
	require.Equal(t, "on", all["flag"])
	require.Equal(t, "hi", all["greeting"])
}

func TestServiceServesStaleOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := &flakySource{MemorySource: NewMemorySource(map[string]string{"k": "v1"})}
	clock := newClock()
	svc := NewService(src, Config{TTL: time.Second}, clock, nil)

	require.Equal(t, "v1", svc.GetString(ctx, "k", ""))
	src.fail = true
	clock.Advance(2 * time.Second)
	require.Equal(t, "v1", svc.GetString(ctx, "k", ""))
	require.Error(t, svc.Refresh(ctx))
}
