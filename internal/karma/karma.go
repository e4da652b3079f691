// Package karma tracks the per-user reputation budget that gates and rewards
// voting. Reputation grows passively while the user is active: the credit is
// computed lazily on authenticated requests instead of by a background clock,
// the same pay-only-when-touched pattern the ranking refresh uses.
package karma

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/metrics"
)

type Config struct {
	// InitialKarma is the balance a fresh account starts with.
	InitialKarma int64
	// IncrementAmount is credited once per IncrementInterval of activity.
	IncrementAmount   int64
	IncrementInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialKarma:      1,
		IncrementAmount:   1,
		IncrementInterval: time.Hour,
	}
}

type Account struct {
	users domain.UserRepository
	clock clockwork.Clock
	cfg   Config
}

func NewAccount(users domain.UserRepository, clock clockwork.Clock, cfg Config) *Account {
	return &Account{users: users, clock: clock, cfg: cfg}
}

// InitialKarma is the balance granted to fresh accounts.
func (a *Account) InitialKarma() int64 {
	return a.cfg.InitialKarma
}

// CreditPassive applies the interval credit if one is due and stamps the
// credit time. It reports whether a credit was applied. The user is mutated
// to the fresh balance.
func (a *Account) CreditPassive(ctx context.Context, u *domain.User) (bool, error) {
	now := a.clock.Now().Unix()
	if now-u.KarmaIncrementedAt < int64(a.cfg.IncrementInterval.Seconds()) {
		return false, nil
	}

	if err := a.users.SetKarmaIncrementedAt(ctx, u.ID, now); err != nil {
		return false, fmt.Errorf("stamp karma credit time: %w", err)
	}
	balance, err := a.users.IncrKarma(ctx, u.ID, a.cfg.IncrementAmount)
	if err != nil {
		return false, fmt.Errorf("apply karma credit: %w", err)
	}

	u.KarmaIncrementedAt = now
	u.Karma = balance
	metrics.KarmaCreditsTotal.Inc()
	return true, nil
}

// Adjust atomically moves the user's balance by delta and returns the new
// value. It enforces no floor: debits are gated by the vote ledger's karma
// check before they reach this primitive, which keeps it reusable for both
// credits and debits.
func (a *Account) Adjust(ctx context.Context, userID, delta int64) (int64, error) {
	return a.users.IncrKarma(ctx, userID, delta)
}
