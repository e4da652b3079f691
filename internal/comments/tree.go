// Package comments stores and renders the discussion forest attached to each
// item. A thread is one hash in the store: a nextid counter co-located with
// the comment records, bulk-read and partitioned client-side into a
// parent→children index for traversal.
package comments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/metrics"
)

type Config struct {
	// EditWindow is how long after posting a comment its author may still
	// edit or tombstone it.
	EditWindow time.Duration
	// MaxBodyLen truncates comment bodies on insert.
	MaxBodyLen int
}

func DefaultConfig() Config {
	return Config{
		EditWindow: 2 * time.Hour,
		MaxBodyLen: 4096,
	}
}

// VisitFunc receives each rendered comment with its nesting level.
type VisitFunc func(c *domain.Comment, level int) error

type Tree struct {
	store domain.CommentStore
	cmp   domain.CommentComparator
	clock clockwork.Clock
	cfg   Config
}

// NewTree builds a comment tree over the given store. A nil comparator falls
// back to ByScoreThenNewest.
func NewTree(store domain.CommentStore, cmp domain.CommentComparator, clock clockwork.Clock, cfg Config) *Tree {
	if cmp == nil {
		cmp = ByScoreThenNewest{}
	}
	return &Tree{store: store, cmp: cmp, clock: clock, cfg: cfg}
}

// Insert adds a comment to the thread and returns its id. The parent must
// exist in the same thread (or be domain.NoParent). The id comes from an
// atomic increment of the thread's co-located counter, so ids are dense and
// monotonic even under concurrent posting.
func (t *Tree) Insert(ctx context.Context, threadID, parentID, authorID int64, body string) (int64, error) {
	if parentID != domain.NoParent {
		ok, err := t.store.Exists(ctx, threadID, parentID)
		if err != nil {
			return 0, fmt.Errorf("check parent: %w", err)
		}
		if !ok {
			return 0, domain.ErrInvalidParent
		}
	}

	if len(body) > t.cfg.MaxBodyLen {
		body = body[:t.cfg.MaxBodyLen]
	}

	id, err := t.store.NextID(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("assign comment id: %w", err)
	}

	now := t.clock.Now().Unix()
	c := &domain.Comment{
		ID:        id,
		ThreadID:  threadID,
		ParentID:  parentID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: now,
	}
	if err := t.store.Put(ctx, threadID, id, c); err != nil {
		return 0, fmt.Errorf("persist comment: %w", err)
	}
	if err := t.store.MarkAuthored(ctx, authorID, threadID, id, now); err != nil {
		return 0, fmt.Errorf("index authored comment: %w", err)
	}

	metrics.CommentOpsTotal.WithLabelValues("insert").Inc()
	return id, nil
}

// EditBody replaces the comment's body. Only the author may edit, and only
// within the edit window; admins bypass both checks via the admin flag.
func (t *Tree) EditBody(ctx context.Context, threadID, commentID, editorID int64, admin bool, body string) error {
	c, err := t.editable(ctx, threadID, commentID, editorID, admin)
	if err != nil {
		return err
	}

	if len(body) > t.cfg.MaxBodyLen {
		body = body[:t.cfg.MaxBodyLen]
	}
	c.Body = body
	if err := t.store.Put(ctx, threadID, commentID, c); err != nil {
		return fmt.Errorf("persist edit: %w", err)
	}
	metrics.CommentOpsTotal.WithLabelValues("edit").Inc()
	return nil
}

// Delete tombstones the comment. The record stays in the thread so children
// remain navigable; rendering decides whether the placeholder shows.
func (t *Tree) Delete(ctx context.Context, threadID, commentID, editorID int64, admin bool) error {
	c, err := t.editable(ctx, threadID, commentID, editorID, admin)
	if err != nil {
		return err
	}

	c.Deleted = true
	if err := t.store.Put(ctx, threadID, commentID, c); err != nil {
		return fmt.Errorf("persist tombstone: %w", err)
	}
	metrics.CommentOpsTotal.WithLabelValues("delete").Inc()
	return nil
}

// editable loads the comment and applies the author/window rules shared by
// edit and delete. Edits are a read-merge-write on a single hash field:
// acceptable because they are rare and user-scoped, unlike the
// high-contention vote counters.
func (t *Tree) editable(ctx context.Context, threadID, commentID, editorID int64, admin bool) (*domain.Comment, error) {
	c, ok, err := t.store.Get(ctx, threadID, commentID)
	if err != nil {
		return nil, fmt.Errorf("load comment: %w", err)
	}
	if !ok {
		return nil, domain.ErrCommentNotFound
	}
	if admin {
		return c, nil
	}
	if c.AuthorID != editorID {
		return nil, domain.ErrForbidden
	}
	if t.clock.Now().Unix()-c.CreatedAt > int64(t.cfg.EditWindow.Seconds()) {
		return nil, domain.ErrEditWindowExpired
	}
	return c, nil
}

// FetchOne returns the comment or (nil, nil) when absent.
func (t *Tree) FetchOne(ctx context.Context, threadID, commentID int64) (*domain.Comment, error) {
	c, ok, err := t.store.Get(ctx, threadID, commentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c, nil
}

// FetchThread bulk-reads the whole thread and partitions it into a
// parent→children index. O(total comments); fine because threads are small
// relative to the store's bulk-read throughput, and materialized tree
// storage would complicate concurrent insert.
func (t *Tree) FetchThread(ctx context.Context, threadID int64) (map[int64][]*domain.Comment, error) {
	all, err := t.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	byParent := make(map[int64][]*domain.Comment, len(all))
	for _, c := range all {
		byParent[c.ParentID] = append(byParent[c.ParentID], c)
	}
	return byParent, nil
}

// Count returns the number of comments in the thread.
func (t *Tree) Count(ctx context.Context, threadID int64) (int64, error) {
	return t.store.Len(ctx, threadID)
}

// Render walks the thread depth-first from rootParentID, sorting each sibling
// group with the tree's comparator before visiting. A tombstoned comment is
// visited only if it has at least one descendant, so placeholders preserve
// the thread shape without cluttering leaves.
func (t *Tree) Render(ctx context.Context, threadID, rootParentID int64, visit VisitFunc) error {
	byParent, err := t.FetchThread(ctx, threadID)
	if err != nil {
		return err
	}
	return t.renderLevel(byParent, rootParentID, 0, visit)
}

func (t *Tree) renderLevel(byParent map[int64][]*domain.Comment, parentID int64, level int, visit VisitFunc) error {
	siblings := byParent[parentID]
	if len(siblings) == 0 {
		return nil
	}
	// Stable sort so equal comments never thrash across requests.
	sort.SliceStable(siblings, func(i, j int) bool {
		return t.cmp.Less(siblings[i], siblings[j])
	})
	for _, c := range siblings {
		hasChildren := len(byParent[c.ID]) > 0
		if !c.Deleted || hasChildren {
			if err := visit(c, level); err != nil {
				return err
			}
		}
		if hasChildren {
			if err := t.renderLevel(byParent, c.ID, level+1, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// ByScoreThenNewest is the default sibling ordering: score descending, ties
// broken by newest first. Equal-scored comments should not visibly reorder
// as votes trickle in, so recency is the stable tiebreak.
type ByScoreThenNewest struct{}

func (ByScoreThenNewest) Less(a, b *domain.Comment) bool {
	as, bs := a.VoteScore(), b.VoteScore()
	if as != bs {
		return as > bs
	}
	return a.CreatedAt > b.CreatedAt
}
