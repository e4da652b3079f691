// Package rank computes the time-decayed popularity of items and keeps the
// front-page sorted index incrementally fresh. There is no scheduler: ranks
// drift as time passes and are corrected opportunistically on the read path,
// so the re-indexing cost is proportional to page views, not corpus size.
package rank

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/metrics"
)

// Config holds the ranking constants. The defaults mirror the production
// tuning this engine was extracted from.
type Config struct {
	// LogStart is the vote count above which the logarithmic boost kicks in.
	LogStart float64
	// LogBoost scales the logarithmic term added to heavily voted items.
	LogBoost float64
	// AgePadding is added to the age so brand-new items do not divide by
	// near-zero, in seconds.
	AgePadding float64
	// AgingFactor is the exponent applied to the padded age.
	AgingFactor float64
	// AgeLimit is the age in seconds past which an item sinks below every
	// positively scored fresh item.
	AgeLimit float64
	// Scale multiplies the score before decay so ranks stay in a readable range.
	Scale float64
	// Epsilon is the stored-vs-computed rank drift tolerated before re-indexing.
	Epsilon float64
}

func DefaultConfig() Config {
	return Config{
		LogStart:    10,
		LogBoost:    2,
		AgePadding:  (8 * time.Hour).Seconds(),
		AgingFactor: 1.1,
		AgeLimit:    (30 * 24 * time.Hour).Seconds(),
		Scale:       1e6,
		Epsilon:     1e-6,
	}
}

type Engine struct {
	items domain.ItemRepository
	clock clockwork.Clock
	cfg   Config
}

func NewEngine(items domain.ItemRepository, clock clockwork.Clock, cfg Config) *Engine {
	return &Engine{items: items, clock: clock, cfg: cfg}
}

// Score computes the vote-derived popularity of an item. Pure function:
// upvotes minus downvotes, plus a logarithmic boost once the total vote count
// passes LogStart, so an item with 50 up and 50 down outranks one with 5 and 5.
func (e *Engine) Score(up, down int64) float64 {
	score := float64(up - down)
	votes := float64(up + down)
	if votes > e.cfg.LogStart {
		score += math.Log(votes-e.cfg.LogStart) * e.cfg.LogBoost
	}
	return score
}

// Rank computes the time-decayed rank from a score and the item's creation
// time. Items older than AgeLimit get rank = -age: they sink below all
// positively scored fresh items and order among themselves by recency.
func (e *Engine) Rank(score float64, createdAt int64, now time.Time) float64 {
	age := float64(now.Unix() - createdAt)
	if age > e.cfg.AgeLimit {
		return -age
	}
	return score * e.cfg.Scale / math.Pow(age+e.cfg.AgePadding, e.cfg.AgingFactor)
}

// RankOf is a convenience over Rank using the item's stored score.
func (e *Engine) RankOf(it *domain.Item, now time.Time) float64 {
	return e.Rank(it.Score, it.CreatedAt, now)
}

// RefreshIfStale recomputes the item's score and rank and, when the stored
// rank has drifted beyond Epsilon, persists both and updates the front index.
// The item is mutated to the fresh values either way. Persistence failures
// are non-fatal: the caller renders the stale-but-bounded rank and a future
// view retries, since the recomputation is idempotent.
func (e *Engine) RefreshIfStale(ctx context.Context, it *domain.Item) {
	score := e.Score(it.UpCount, it.DownCount)
	realRank := e.Rank(score, it.CreatedAt, e.clock.Now())

	if math.Abs(realRank-it.Rank) <= e.cfg.Epsilon {
		metrics.RankRefreshesTotal.WithLabelValues("fresh").Inc()
		return
	}

	it.Score = score
	it.Rank = realRank

	// Deleted items were pulled from the indexes; never re-add them.
	if it.Deleted {
		return
	}

	if err := e.items.SetScoreRank(ctx, it.ID, score, realRank); err != nil {
		metrics.RankRefreshesTotal.WithLabelValues("failed").Inc()
		slog.Warn("Rank refresh persist failed", "item_id", it.ID, "error", err)
		return
	}
	if err := e.items.AddToFront(ctx, it.ID, realRank); err != nil {
		metrics.RankRefreshesTotal.WithLabelValues("failed").Inc()
		slog.Warn("Rank refresh re-index failed", "item_id", it.ID, "error", err)
		return
	}
	metrics.RankRefreshesTotal.WithLabelValues("updated").Inc()
}
