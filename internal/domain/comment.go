package domain

import "context"

// NoParent is the ParentID of a top-level comment.
const NoParent int64 = -1

// Comment is a node in an item's discussion forest. Ids start at 1 and are
// dense and monotonic within a thread; uniqueness is scoped to
// (ThreadID, ID), not global. Voter lists live inside the record because
// comment vote contention is low enough for read-merge-write.
type Comment struct {
	ID        int64   `json:"-"`
	ThreadID  int64   `json:"-"`
	ParentID  int64   `json:"parent_id"`
	AuthorID  int64   `json:"author_id"`
	Body      string  `json:"body"`
	CreatedAt int64   `json:"ctime"`
	Upvoters  []int64 `json:"up,omitempty"`
	Downvoters []int64 `json:"down,omitempty"`
	Deleted   bool    `json:"del,omitempty"`
}

// VoteScore is the comment's raw popularity: upvotes minus downvotes.
func (c *Comment) VoteScore() int64 {
	return int64(len(c.Upvoters)) - int64(len(c.Downvoters))
}

// VotedBy reports the direction of the user's existing vote, if any.
func (c *Comment) VotedBy(userID int64) (VoteDirection, bool) {
	for _, id := range c.Upvoters {
		if id == userID {
			return VoteUp, true
		}
	}
	for _, id := range c.Downvoters {
		if id == userID {
			return VoteDown, true
		}
	}
	return "", false
}

// CommentComparator orders sibling comments before traversal. It must induce
// a total order so that rendering is stable across requests.
type CommentComparator interface {
	Less(a, b *Comment) bool
}

// CommentStore is the storage port for per-thread comment maps. Each thread
// is a single hash co-locating a "nextid" counter with the comment records,
// which is what makes id assignment dense and collision-free under
// concurrent inserts.
type CommentStore interface {
	// NextID atomically advances the thread's id counter and returns the
	// newly assigned comment id.
	NextID(ctx context.Context, threadID int64) (int64, error)
	Put(ctx context.Context, threadID, commentID int64, c *Comment) error
	// Get returns (nil, false, nil) when the comment does not exist.
	Get(ctx context.Context, threadID, commentID int64) (*Comment, bool, error)
	Exists(ctx context.Context, threadID, commentID int64) (bool, error)
	// GetThread bulk-reads every comment in the thread.
	GetThread(ctx context.Context, threadID int64) ([]*Comment, error)
	Len(ctx context.Context, threadID int64) (int64, error)

	// Per-user index of "thread-comment" refs, ordered by time.
	MarkAuthored(ctx context.Context, userID, threadID, commentID, ts int64) error
	AuthoredRefs(ctx context.Context, userID, start, count int64) ([]CommentRef, int64, error)
}

// CommentRef addresses one comment across threads.
type CommentRef struct {
	ThreadID  int64
	CommentID int64
}
