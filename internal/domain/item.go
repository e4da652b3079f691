package domain

import (
	"context"
	"strings"
	"time"
)

// TextURLPrefix marks an item whose "URL" actually carries an inline text
// payload (a self post).
const TextURLPrefix = "text://"

// VoteDirection is the direction of a vote on an item or comment.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// Item is a submitted link or text post. Score and Rank are derived values:
// they are recomputable at any time from the vote counters and CreatedAt and
// are never the sole source of truth.
type Item struct {
	ID           int64
	Title        string
	URL          string
	AuthorID     int64
	CreatedAt    int64 // unix seconds
	UpCount      int64
	DownCount    int64
	Score        float64
	Rank         float64
	CommentCount int64
	Deleted      bool

	// Username and Voted are hydrated on read for presentation; they are not
	// part of the persisted record.
	Username string
	Voted    VoteDirection
}

// IsTextPost reports whether the item carries inline text instead of a link.
func (it *Item) IsTextPost() bool {
	return strings.HasPrefix(it.URL, TextURLPrefix)
}

// Text returns the inline payload of a text post, or "" for link posts.
func (it *Item) Text() string {
	if !it.IsTextPost() {
		return ""
	}
	return strings.TrimPrefix(it.URL, TextURLPrefix)
}

// Domain returns the host part of a link post's URL, or "" for text posts.
func (it *Item) Domain() string {
	if it.IsTextPost() {
		return ""
	}
	parts := strings.SplitN(it.URL, "/", 4)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// ItemRepository is the storage port for items, their voter sets, and the
// global sorted indexes. Implementations must provide per-key atomicity for
// the increment and add-if-absent operations; that atomicity is the engine's
// only cross-request correctness mechanism.
type ItemRepository interface {
	// Create assigns a monotonic id from the store's counter and persists the
	// item record.
	Create(ctx context.Context, it *Item) (int64, error)
	Get(ctx context.Context, id int64) (*Item, error)
	// GetMulti fetches many items in one batched round trip. Missing ids are
	// skipped, not errors.
	GetMulti(ctx context.Context, ids []int64) ([]*Item, error)
	SetTitleURL(ctx context.Context, id int64, title, url string) error
	SetDeleted(ctx context.Context, id int64) error
	SetScoreRank(ctx context.Context, id int64, score, rank float64) error
	IncrVoteCount(ctx context.Context, id int64, dir VoteDirection) error
	IncrCommentCount(ctx context.Context, id int64, delta int64) (int64, error)

	// AddVoter records userID in the item's up or down voter set with the
	// given timestamp. It reports whether the member was newly added; a false
	// return means the user was already present and only the timestamp moved.
	AddVoter(ctx context.Context, id int64, dir VoteDirection, userID, ts int64) (bool, error)
	// Voted reports the direction of the user's existing vote, if any.
	Voted(ctx context.Context, id, userID int64) (VoteDirection, bool, error)
	// VotedMulti resolves vote state for many items in one batched round trip.
	VotedMulti(ctx context.Context, ids []int64, userID int64) (map[int64]VoteDirection, error)

	// Sorted indexes. Front is ordered by rank, Chrono by submission time.
	AddToFront(ctx context.Context, id int64, rank float64) error
	AddToChrono(ctx context.Context, id, ts int64) error
	RemoveFromIndexes(ctx context.Context, id int64) error
	FrontIDs(ctx context.Context, start, count int64) ([]int64, int64, error)
	ChronoIDs(ctx context.Context, start, count int64) ([]int64, int64, error)

	// Per-user chronological indexes.
	MarkSaved(ctx context.Context, userID, itemID, ts int64) error
	MarkPosted(ctx context.Context, userID, itemID, ts int64) error
	SavedIDs(ctx context.Context, userID, start, count int64) ([]int64, int64, error)
	PostedIDs(ctx context.Context, userID, start, count int64) ([]int64, int64, error)

	// URL reservations prevent reposts of the same link for a while.
	ReserveURL(ctx context.Context, url string, id int64, ttl time.Duration) error
	LookupURL(ctx context.Context, url string) (int64, bool, error)
	ReleaseURL(ctx context.Context, url string) error

	// Submission cooldown. SubmittedRecently returns the remaining wait, or
	// zero if the user may post.
	MarkSubmitted(ctx context.Context, userID int64, ttl time.Duration) error
	SubmittedRecently(ctx context.Context, userID int64) (time.Duration, error)
}
