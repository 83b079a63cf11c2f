package hints

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/sysviz/internal/content"
	"github.com/signalsfoundry/sysviz/internal/logging"
	"github.com/signalsfoundry/sysviz/model"
)

func TestTrackerClaimsEachHintOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := openTempStore(t)
	tr := NewTracker(content.Default(), s, nil)

	h, ok := tr.Claim(ctx, model.LogHit)
	require.True(t, ok)
	require.Equal(t, "cache-hit", h.Term)
	require.NotEmpty(t, h.Text)

	_, ok = tr.Claim(ctx, model.LogHit)
	require.False(t, ok)

	_, ok = tr.Claim(ctx, model.LogRoute)
	require.False(t, ok, "load-balancing types carry no hint")

	// A fresh tracker over the same store remembers the flag.
	again := NewTracker(content.Default(), s, nil)
	_, ok = again.Claim(ctx, model.LogHit)
	require.False(t, ok)
	_, ok = again.Claim(ctx, model.LogMiss)
	require.True(t, ok)
}

func TestTrackerDegradesWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	tr := NewTracker(content.Default(), s, logging.Noop())
	h, ok := tr.Claim(ctx, model.LogMiss)
	require.True(t, ok, "a broken store must not hide hints")
	require.Equal(t, "cache-miss", h.Term)

	_, ok = tr.Claim(ctx, model.LogMiss)
	require.False(t, ok, "still once per process")
	require.False(t, tr.Seen(ctx, "cache-hit"))
}

func TestTrackerMarkSeen(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(content.Default(), nil, nil)

	require.ErrorIs(t, tr.MarkSeen(ctx, "bogus"), content.ErrNotFound)
	require.NoError(t, tr.MarkSeen(ctx, "cache-hit"))
	require.True(t, tr.Seen(ctx, "cache-hit"))

	_, ok := tr.Claim(ctx, model.LogHit)
	require.False(t, ok)
}
