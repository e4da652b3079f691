package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kindlingnews/kindling/internal/domain"
)

// nextIDField is the reserved hash field holding the thread's id counter.
// Comment ids start at 1, so the field name can never collide with one.
const nextIDField = "nextid"

// CommentStore keeps each discussion thread in a single hash: the "nextid"
// counter plus one JSON-encoded record per comment id. Co-locating the
// counter with the records makes id assignment a single HINCRBY.
type CommentStore struct {
	rdb *goredis.Client
}

func NewCommentStore(rdb *goredis.Client) *CommentStore {
	return &CommentStore{rdb: rdb}
}

var _ domain.CommentStore = (*CommentStore)(nil)

func (s *CommentStore) NextID(ctx context.Context, threadID int64) (int64, error) {
	id, err := s.rdb.HIncrBy(ctx, threadKey(threadID), nextIDField, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("advance comment id for thread %d: %w", threadID, err)
	}
	return id, nil
}

func (s *CommentStore) Put(ctx context.Context, threadID, commentID int64, c *domain.Comment) error {
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode comment %d-%d: %w", threadID, commentID, err)
	}
	return s.rdb.HSet(ctx, threadKey(threadID), strconv.FormatInt(commentID, 10), blob).Err()
}

func (s *CommentStore) Get(ctx context.Context, threadID, commentID int64) (*domain.Comment, bool, error) {
	blob, err := s.rdb.HGet(ctx, threadKey(threadID), strconv.FormatInt(commentID, 10)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load comment %d-%d: %w", threadID, commentID, err)
	}
	c, err := decodeComment(threadID, commentID, blob)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *CommentStore) Exists(ctx context.Context, threadID, commentID int64) (bool, error) {
	return s.rdb.HExists(ctx, threadKey(threadID), strconv.FormatInt(commentID, 10)).Result()
}

func (s *CommentStore) GetThread(ctx context.Context, threadID int64) ([]*domain.Comment, error) {
	fields, err := s.rdb.HGetAll(ctx, threadKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load thread %d: %w", threadID, err)
	}

	out := make([]*domain.Comment, 0, len(fields))
	for field, blob := range fields {
		if field == nextIDField {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		c, err := decodeComment(threadID, id, blob)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CommentStore) Len(ctx context.Context, threadID int64) (int64, error) {
	n, err := s.rdb.HLen(ctx, threadKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count thread %d: %w", threadID, err)
	}
	if n == 0 {
		return 0, nil
	}
	// One field is the id counter, not a comment.
	return n - 1, nil
}

func (s *CommentStore) MarkAuthored(ctx context.Context, userID, threadID, commentID, ts int64) error {
	member := fmt.Sprintf("%d-%d", threadID, commentID)
	return s.rdb.ZAdd(ctx, authoredKey(userID), goredis.Z{Score: float64(ts), Member: member}).Err()
}

func (s *CommentStore) AuthoredRefs(ctx context.Context, userID, start, count int64) ([]domain.CommentRef, int64, error) {
	key := authoredKey(userID)

	pipe := s.rdb.Pipeline()
	totalCmd := pipe.ZCard(ctx, key)
	rangeCmd := pipe.ZRevRange(ctx, key, start, start+count-1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("read authored comments for user %d: %w", userID, err)
	}

	members, err := rangeCmd.Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("read authored comments for user %d: %w", userID, err)
	}
	refs := make([]domain.CommentRef, 0, len(members))
	for _, m := range members {
		tid, cid, ok := splitRef(m)
		if !ok {
			continue
		}
		refs = append(refs, domain.CommentRef{ThreadID: tid, CommentID: cid})
	}
	return refs, totalCmd.Val(), nil
}

func decodeComment(threadID, commentID int64, blob string) (*domain.Comment, error) {
	var c domain.Comment
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("decode comment %d-%d: %w", threadID, commentID, err)
	}
	c.ThreadID = threadID
	c.ID = commentID
	return &c, nil
}

func splitRef(member string) (threadID, commentID int64, ok bool) {
	dash := strings.IndexByte(member, '-')
	if dash < 0 {
		return 0, 0, false
	}
	tid, err := strconv.ParseInt(member[:dash], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	cid, err := strconv.ParseInt(member[dash+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return tid, cid, true
}

func threadKey(threadID int64) string {
	return "thread:" + strconv.FormatInt(threadID, 10)
}

func authoredKey(userID int64) string {
	return "user.comments:" + strconv.FormatInt(userID, 10)
}
