package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kindlingnews/kindling/internal/domain"
)

const (
	// Redis hash field names for item records.
	fieldID       = "id"
	fieldTitle    = "title"
	fieldURL      = "url"
	fieldAuthorID = "author_id"
	fieldCtime    = "ctime"
	fieldUp       = "up"
	fieldDown     = "down"
	fieldScore    = "score"
	fieldRank     = "rank"
	fieldComments = "comments"
	fieldDel      = "del"
)

type ItemRepo struct {
	rdb *goredis.Client
}

func NewItemRepo(rdb *goredis.Client) *ItemRepo {
	return &ItemRepo{rdb: rdb}
}

var _ domain.ItemRepository = (*ItemRepo)(nil)

func (r *ItemRepo) Create(ctx context.Context, it *domain.Item) (int64, error) {
	id, err := r.rdb.Incr(ctx, "item.count").Result()
	if err != nil {
		return 0, fmt.Errorf("allocate item id: %w", err)
	}
	it.ID = id

	if err := r.rdb.HSet(ctx, itemKey(id), map[string]any{
		fieldID:       id,
		fieldTitle:    it.Title,
		fieldURL:      it.URL,
		fieldAuthorID: it.AuthorID,
		fieldCtime:    it.CreatedAt,
		fieldUp:       it.UpCount,
		fieldDown:     it.DownCount,
		fieldScore:    formatFloat(it.Score),
		fieldRank:     formatFloat(it.Rank),
		fieldComments: it.CommentCount,
		fieldDel:      boolField(it.Deleted),
	}).Err(); err != nil {
		return 0, fmt.Errorf("persist item %d: %w", id, err)
	}
	return id, nil
}

func (r *ItemRepo) Get(ctx context.Context, id int64) (*domain.Item, error) {
	fields, err := r.rdb.HGetAll(ctx, itemKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrItemNotFound
	}
	return parseItem(fields), nil
}

func (r *ItemRepo) GetMulti(ctx context.Context, ids []int64) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, itemKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("bulk load items: %w", err)
	}

	out := make([]*domain.Item, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out = append(out, parseItem(fields))
	}
	return out, nil
}

func (r *ItemRepo) SetTitleURL(ctx context.Context, id int64, title, url string) error {
	return r.rdb.HSet(ctx, itemKey(id), fieldTitle, title, fieldURL, url).Err()
}

func (r *ItemRepo) SetDeleted(ctx context.Context, id int64) error {
	return r.rdb.HSet(ctx, itemKey(id), fieldDel, "1").Err()
}

func (r *ItemRepo) SetScoreRank(ctx context.Context, id int64, score, rank float64) error {
	return r.rdb.HSet(ctx, itemKey(id),
		fieldScore, formatFloat(score),
		fieldRank, formatFloat(rank),
	).Err()
}

func (r *ItemRepo) IncrVoteCount(ctx context.Context, id int64, dir domain.VoteDirection) error {
	field := fieldUp
	if dir == domain.VoteDown {
		field = fieldDown
	}
	return r.rdb.HIncrBy(ctx, itemKey(id), field, 1).Err()
}

func (r *ItemRepo) IncrCommentCount(ctx context.Context, id int64, delta int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, itemKey(id), fieldComments, delta).Result()
}

// AddVoter relies on ZADD's return value: 1 for a new member, 0 when the
// member existed and only the score (vote timestamp) moved. That distinction
// is the idempotency guard against the duplicate-vote race double
// incrementing the tallies.
func (r *ItemRepo) AddVoter(ctx context.Context, id int64, dir domain.VoteDirection, userID, ts int64) (bool, error) {
	added, err := r.rdb.ZAdd(ctx, votersKey(dir, id), goredis.Z{
		Score:  float64(ts),
		Member: userID,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("record %s vote: %w", dir, err)
	}
	return added == 1, nil
}

func (r *ItemRepo) Voted(ctx context.Context, id, userID int64) (domain.VoteDirection, bool, error) {
	member := strconv.FormatInt(userID, 10)

	pipe := r.rdb.Pipeline()
	upCmd := pipe.ZScore(ctx, votersKey(domain.VoteUp, id), member)
	downCmd := pipe.ZScore(ctx, votersKey(domain.VoteDown, id), member)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return "", false, fmt.Errorf("check vote state: %w", err)
	}

	if upCmd.Err() == nil {
		return domain.VoteUp, true, nil
	}
	if downCmd.Err() == nil {
		return domain.VoteDown, true, nil
	}
	return "", false, nil
}

func (r *ItemRepo) VotedMulti(ctx context.Context, ids []int64, userID int64) (map[int64]domain.VoteDirection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	member := strconv.FormatInt(userID, 10)

	pipe := r.rdb.Pipeline()
	type pair struct {
		up   *goredis.FloatCmd
		down *goredis.FloatCmd
	}
	cmds := make(map[int64]pair, len(ids))
	for _, id := range ids {
		cmds[id] = pair{
			up:   pipe.ZScore(ctx, votersKey(domain.VoteUp, id), member),
			down: pipe.ZScore(ctx, votersKey(domain.VoteDown, id), member),
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("bulk check vote state: %w", err)
	}

	out := make(map[int64]domain.VoteDirection, len(ids))
	for id, p := range cmds {
		if p.up.Err() == nil {
			out[id] = domain.VoteUp
		} else if p.down.Err() == nil {
			out[id] = domain.VoteDown
		}
	}
	return out, nil
}

func (r *ItemRepo) AddToFront(ctx context.Context, id int64, rank float64) error {
	return r.rdb.ZAdd(ctx, "item.front", goredis.Z{Score: rank, Member: id}).Err()
}

func (r *ItemRepo) AddToChrono(ctx context.Context, id, ts int64) error {
	return r.rdb.ZAdd(ctx, "item.chrono", goredis.Z{Score: float64(ts), Member: id}).Err()
}

func (r *ItemRepo) RemoveFromIndexes(ctx context.Context, id int64) error {
	pipe := r.rdb.Pipeline()
	pipe.ZRem(ctx, "item.front", id)
	pipe.ZRem(ctx, "item.chrono", id)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *ItemRepo) FrontIDs(ctx context.Context, start, count int64) ([]int64, int64, error) {
	return r.revRange(ctx, "item.front", start, count)
}

func (r *ItemRepo) ChronoIDs(ctx context.Context, start, count int64) ([]int64, int64, error) {
	return r.revRange(ctx, "item.chrono", start, count)
}

func (r *ItemRepo) MarkSaved(ctx context.Context, userID, itemID, ts int64) error {
	return r.rdb.ZAdd(ctx, savedKey(userID), goredis.Z{Score: float64(ts), Member: itemID}).Err()
}

func (r *ItemRepo) MarkPosted(ctx context.Context, userID, itemID, ts int64) error {
	return r.rdb.ZAdd(ctx, postedKey(userID), goredis.Z{Score: float64(ts), Member: itemID}).Err()
}

func (r *ItemRepo) SavedIDs(ctx context.Context, userID, start, count int64) ([]int64, int64, error) {
	return r.revRange(ctx, savedKey(userID), start, count)
}

func (r *ItemRepo) PostedIDs(ctx context.Context, userID, start, count int64) ([]int64, int64, error) {
	return r.revRange(ctx, postedKey(userID), start, count)
}

func (r *ItemRepo) ReserveURL(ctx context.Context, url string, id int64, ttl time.Duration) error {
	return r.rdb.Set(ctx, urlKey(url), id, ttl).Err()
}

func (r *ItemRepo) LookupURL(ctx context.Context, url string) (int64, bool, error) {
	val, err := r.rdb.Get(ctx, urlKey(url)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup url reservation: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse url reservation: %w", err)
	}
	return id, true, nil
}

func (r *ItemRepo) ReleaseURL(ctx context.Context, url string) error {
	return r.rdb.Del(ctx, urlKey(url)).Err()
}

func (r *ItemRepo) MarkSubmitted(ctx context.Context, userID int64, ttl time.Duration) error {
	return r.rdb.Set(ctx, cooloffKey(userID), "1", ttl).Err()
}

func (r *ItemRepo) SubmittedRecently(ctx context.Context, userID int64) (time.Duration, error) {
	ttl, err := r.rdb.TTL(ctx, cooloffKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("check submission cooldown: %w", err)
	}
	// -2 (no key) and -1 (no expiry) both mean no active cooldown.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// revRange reads one page of a sorted set highest-score-first along with the
// set's cardinality, in a single pipelined round trip.
func (r *ItemRepo) revRange(ctx context.Context, key string, start, count int64) ([]int64, int64, error) {
	pipe := r.rdb.Pipeline()
	totalCmd := pipe.ZCard(ctx, key)
	rangeCmd := pipe.ZRevRange(ctx, key, start, start+count-1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("read index %s: %w", key, err)
	}

	members, err := rangeCmd.Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, fmt.Errorf("read index %s: %w", key, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, totalCmd.Val(), nil
}

func parseItem(fields map[string]string) *domain.Item {
	it := &domain.Item{
		ID:           parseInt(fields[fieldID]),
		Title:        fields[fieldTitle],
		URL:          fields[fieldURL],
		AuthorID:     parseInt(fields[fieldAuthorID]),
		CreatedAt:    parseInt(fields[fieldCtime]),
		UpCount:      parseInt(fields[fieldUp]),
		DownCount:    parseInt(fields[fieldDown]),
		CommentCount: parseInt(fields[fieldComments]),
		Deleted:      fields[fieldDel] == "1",
	}
	it.Score, _ = strconv.ParseFloat(fields[fieldScore], 64)
	it.Rank, _ = strconv.ParseFloat(fields[fieldRank], 64)
	return it
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func itemKey(id int64) string {
	return "item:" + strconv.FormatInt(id, 10)
}

func votersKey(dir domain.VoteDirection, id int64) string {
	return "item." + string(dir) + ":" + strconv.FormatInt(id, 10)
}

func savedKey(userID int64) string {
	return "user.saved:" + strconv.FormatInt(userID, 10)
}

func postedKey(userID int64) string {
	return "user.posted:" + strconv.FormatInt(userID, 10)
}

func urlKey(url string) string {
	return "url:" + url
}

func cooloffKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":submitted_recently"
}
