package rank

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/memstore"
)

func TestScore(t *testing.T) {
	e := NewEngine(nil, clockwork.NewFakeClock(), DefaultConfig())

	tests := []struct {
		name string
		up   int64
		down int64
		want float64
	}{
		{"no votes", 0, 0, 0},
		{"simple difference", 5, 2, 3},
		{"negative", 1, 4, -3},
		{"at log start no boost", 5, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.Score(tt.up, tt.down), 1e-9)
		})
	}
}

func TestScore_LogBoostRewardsControversy(t *testing.T) {
	e := NewEngine(nil, clockwork.NewFakeClock(), DefaultConfig())

	// Same net score, but the heavily voted item gets the logarithmic boost.
	quiet := e.Score(5, 5)
	loud := e.Score(50, 50)
	assert.Greater(t, loud, quiet)
	assert.Equal(t, 0.0, quiet)
}

func TestRank_DecaysWithAge(t *testing.T) {
	e := NewEngine(nil, clockwork.NewFakeClock(), DefaultConfig())
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fresh := e.Rank(10, created.Unix(), created.Add(time.Hour))
	older := e.Rank(10, created.Unix(), created.Add(24*time.Hour))
	oldest := e.Rank(10, created.Unix(), created.Add(7*24*time.Hour))

	assert.Greater(t, fresh, older)
	assert.Greater(t, older, oldest)
	assert.Greater(t, oldest, 0.0)
}

func TestRank_PastAgeLimitSinks(t *testing.T) {
	e := NewEngine(nil, clockwork.NewFakeClock(), DefaultConfig())
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	now := created.Add(31 * 24 * time.Hour)
	r := e.Rank(1000, created.Unix(), now)
	assert.Negative(t, r)
	assert.Equal(t, -float64(now.Unix()-created.Unix()), r)

	// Among expired items, newer still outranks older.
	older := e.Rank(1000, created.Add(-24*time.Hour).Unix(), now)
	assert.Greater(t, r, older)
}

func TestRank_IsIdempotent(t *testing.T) {
	e := NewEngine(nil, clockwork.NewFakeClock(), DefaultConfig())
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(3 * time.Hour)

	first := e.Rank(7, created.Unix(), now)
	second := e.Rank(7, created.Unix(), now)
	assert.Equal(t, first, second)
}

func TestRefreshIfStale(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	items := store.Items()
	e := NewEngine(items, clock, DefaultConfig())

	it := &domain.Item{Title: "t", URL: "http://a.example", AuthorID: 1, CreatedAt: clock.Now().Unix(), UpCount: 3}
	id, err := items.Create(ctx, it)
	require.NoError(t, err)

	it.Score = e.Score(3, 0)
	it.Rank = e.Rank(it.Score, it.CreatedAt, clock.Now())
	require.NoError(t, items.SetScoreRank(ctx, id, it.Score, it.Rank))
	require.NoError(t, items.AddToFront(ctx, id, it.Rank))

	// Freshly computed: no drift, nothing persisted.
	before := it.Rank
	e.RefreshIfStale(ctx, it)
	assert.Equal(t, before, it.Rank)

	// Hours later the stored rank has drifted and must be corrected.
	clock.Advance(6 * time.Hour)
	e.RefreshIfStale(ctx, it)
	assert.Less(t, it.Rank, before)

	stored, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, it.Rank, stored.Rank, 1e-9)
}
