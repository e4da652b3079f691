// Package memstore implements the domain storage ports in process memory.
// It backs single-instance development mode and the unit tests, mirroring
// the Redis adapter's semantics: dense counters, add-if-absent reporting,
// score-ordered index reads, and expiring reservations. Unlike Redis, whose
// per-key atomicity the engine relies on, a single mutex guards everything.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/domain"
)

// Store holds all state behind one mutex. The per-port repositories returned
// by Items, Users, and Comments are thin views over it.
type Store struct {
	clock clockwork.Clock

	mu sync.Mutex

	itemSeq int64
	items   map[int64]*domain.Item
	voters  map[string]map[int64]int64 // "up:<id>" / "down:<id>" → userID → ts
	front   map[int64]float64
	chrono  map[int64]int64
	saved   map[int64]map[int64]int64
	posted  map[int64]map[int64]int64
	urls    map[string]urlEntry
	cooloff map[int64]time.Time

	userSeq   int64
	users     map[int64]*domain.User
	usernames map[string]int64
	tokens    map[string]int64

	threads  map[int64]*thread
	authored map[int64]map[string]int64 // userID → "thread-comment" → ts
}

type urlEntry struct {
	id      int64
	expires time.Time
}

type thread struct {
	nextID   int64
	comments map[int64]*domain.Comment
}

func New(clock clockwork.Clock) *Store {
	return &Store{
		clock:     clock,
		items:     make(map[int64]*domain.Item),
		voters:    make(map[string]map[int64]int64),
		front:     make(map[int64]float64),
		chrono:    make(map[int64]int64),
		saved:     make(map[int64]map[int64]int64),
		posted:    make(map[int64]map[int64]int64),
		urls:      make(map[string]urlEntry),
		cooloff:   make(map[int64]time.Time),
		users:     make(map[int64]*domain.User),
		usernames: make(map[string]int64),
		tokens:    make(map[string]int64),
		threads:   make(map[int64]*thread),
		authored:  make(map[int64]map[string]int64),
	}
}

func (s *Store) Items() domain.ItemRepository { return &itemRepo{s} }
func (s *Store) Users() domain.UserRepository { return &userRepo{s} }
func (s *Store) Comments() domain.CommentStore {
	return &commentStore{s}
}

type itemRepo struct{ s *Store }
type userRepo struct{ s *Store }
type commentStore struct{ s *Store }

var (
	_ domain.ItemRepository = (*itemRepo)(nil)
	_ domain.UserRepository = (*userRepo)(nil)
	_ domain.CommentStore   = (*commentStore)(nil)
)

// --- items ---

func (r *itemRepo) Create(_ context.Context, it *domain.Item) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.itemSeq++
	cp := *it
	cp.ID = r.s.itemSeq
	r.s.items[cp.ID] = &cp
	it.ID = cp.ID
	return cp.ID, nil
}

func (r *itemRepo) Get(_ context.Context, id int64) (*domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *itemRepo) GetMulti(_ context.Context, ids []int64) ([]*domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := r.s.items[id]; ok {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *itemRepo) SetTitleURL(_ context.Context, id int64, title, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.Title, it.URL = title, url
	return nil
}

func (r *itemRepo) SetDeleted(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.Deleted = true
	return nil
}

func (r *itemRepo) SetScoreRank(_ context.Context, id int64, score, rank float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.Score, it.Rank = score, rank
	return nil
}

func (r *itemRepo) IncrVoteCount(_ context.Context, id int64, dir domain.VoteDirection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	if dir == domain.VoteUp {
		it.UpCount++
	} else {
		it.DownCount++
	}
	return nil
}

func (r *itemRepo) IncrCommentCount(_ context.Context, id int64, delta int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return 0, domain.ErrItemNotFound
	}
	it.CommentCount += delta
	return it.CommentCount, nil
}

func voterKey(dir domain.VoteDirection, id int64) string {
	return string(dir) + ":" + strconv.FormatInt(id, 10)
}

func (r *itemRepo) AddVoter(_ context.Context, id int64, dir domain.VoteDirection, userID, ts int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := voterKey(dir, id)
	set := r.s.voters[key]
	if set == nil {
		set = make(map[int64]int64)
		r.s.voters[key] = set
	}
	_, existed := set[userID]
	set[userID] = ts
	return !existed, nil
}

func (r *itemRepo) Voted(_ context.Context, id, userID int64) (domain.VoteDirection, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dir, ok := r.s.votedLocked(id, userID)
	return dir, ok, nil
}

func (s *Store) votedLocked(id, userID int64) (domain.VoteDirection, bool) {
	if _, ok := s.voters[voterKey(domain.VoteUp, id)][userID]; ok {
		return domain.VoteUp, true
	}
	if _, ok := s.voters[voterKey(domain.VoteDown, id)][userID]; ok {
		return domain.VoteDown, true
	}
	return "", false
}

func (r *itemRepo) VotedMulti(_ context.Context, ids []int64, userID int64) (map[int64]domain.VoteDirection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]domain.VoteDirection, len(ids))
	for _, id := range ids {
		if dir, ok := r.s.votedLocked(id, userID); ok {
			out[id] = dir
		}
	}
	return out, nil
}

func (r *itemRepo) AddToFront(_ context.Context, id int64, rank float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.front[id] = rank
	return nil
}

func (r *itemRepo) AddToChrono(_ context.Context, id, ts int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.chrono[id] = ts
	return nil
}

func (r *itemRepo) RemoveFromIndexes(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.front, id)
	delete(r.s.chrono, id)
	return nil
}

func (r *itemRepo) FrontIDs(_ context.Context, start, count int64) ([]int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids, total := rangeDescFloat(r.s.front, start, count)
	return ids, total, nil
}

func (r *itemRepo) ChronoIDs(_ context.Context, start, count int64) ([]int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids, total := rangeDescInt(r.s.chrono, start, count)
	return ids, total, nil
}

func (r *itemRepo) MarkSaved(_ context.Context, userID, itemID, ts int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.saved[userID] == nil {
		r.s.saved[userID] = make(map[int64]int64)
	}
	r.s.saved[userID][itemID] = ts
	return nil
}

func (r *itemRepo) MarkPosted(_ context.Context, userID, itemID, ts int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.posted[userID] == nil {
		r.s.posted[userID] = make(map[int64]int64)
	}
	r.s.posted[userID][itemID] = ts
	return nil
}

func (r *itemRepo) SavedIDs(_ context.Context, userID, start, count int64) ([]int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids, total := rangeDescInt(r.s.saved[userID], start, count)
	return ids, total, nil
}

func (r *itemRepo) PostedIDs(_ context.Context, userID, start, count int64) ([]int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids, total := rangeDescInt(r.s.posted[userID], start, count)
	return ids, total, nil
}

func (r *itemRepo) ReserveURL(_ context.Context, url string, id int64, ttl time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.urls[url] = urlEntry{id: id, expires: r.s.clock.Now().Add(ttl)}
	return nil
}

func (r *itemRepo) LookupURL(_ context.Context, url string) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.urls[url]
	if !ok || r.s.clock.Now().After(entry.expires) {
		delete(r.s.urls, url)
		return 0, false, nil
	}
	return entry.id, true, nil
}

func (r *itemRepo) ReleaseURL(_ context.Context, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.urls, url)
	return nil
}

func (r *itemRepo) MarkSubmitted(_ context.Context, userID int64, ttl time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cooloff[userID] = r.s.clock.Now().Add(ttl)
	return nil
}

func (r *itemRepo) SubmittedRecently(_ context.Context, userID int64) (time.Duration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	expires, ok := r.s.cooloff[userID]
	if !ok {
		return 0, nil
	}
	remaining := expires.Sub(r.s.clock.Now())
	if remaining <= 0 {
		delete(r.s.cooloff, userID)
		return 0, nil
	}
	return remaining, nil
}

// --- users ---

func (r *userRepo) Create(_ context.Context, u *domain.User) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	normalized := strings.ToLower(u.Username)
	if _, taken := r.s.usernames[normalized]; taken {
		return 0, domain.ErrUsernameTaken
	}
	r.s.userSeq++
	cp := *u
	cp.ID = r.s.userSeq
	r.s.users[cp.ID] = &cp
	r.s.usernames[normalized] = cp.ID
	if cp.AuthToken != "" {
		r.s.tokens[cp.AuthToken] = cp.ID
	}
	u.ID = cp.ID
	return cp.ID, nil
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.usernames[strings.ToLower(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r *userRepo) IncrKarma(_ context.Context, id, delta int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	u.Karma += delta
	return u.Karma, nil
}

func (r *userRepo) GetKarma(_ context.Context, id int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return u.Karma, nil
}

func (r *userRepo) SetKarmaIncrementedAt(_ context.Context, id, ts int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.KarmaIncrementedAt = ts
	return nil
}

func (r *userRepo) GetIDByAuthToken(_ context.Context, token string) (int64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.tokens[token]
	return id, ok, nil
}

func (r *userRepo) UpdateAuthToken(_ context.Context, id int64, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.AuthToken != "" {
		delete(r.s.tokens, u.AuthToken)
	}
	u.AuthToken = token
	r.s.tokens[token] = id
	return nil
}

// --- comments ---

func (s *Store) threadLocked(threadID int64) *thread {
	th, ok := s.threads[threadID]
	if !ok {
		th = &thread{comments: make(map[int64]*domain.Comment)}
		s.threads[threadID] = th
	}
	return th
}

func (r *commentStore) NextID(_ context.Context, threadID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th := r.s.threadLocked(threadID)
	th.nextID++
	return th.nextID, nil
}

func (r *commentStore) Put(_ context.Context, threadID, commentID int64, c *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th := r.s.threadLocked(threadID)
	th.comments[commentID] = copyComment(c)
	return nil
}

func (r *commentStore) Get(_ context.Context, threadID, commentID int64) (*domain.Comment, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th, ok := r.s.threads[threadID]
	if !ok {
		return nil, false, nil
	}
	c, ok := th.comments[commentID]
	if !ok {
		return nil, false, nil
	}
	cp := copyComment(c)
	cp.ID = commentID
	cp.ThreadID = threadID
	return cp, true, nil
}

func (r *commentStore) Exists(_ context.Context, threadID, commentID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th, ok := r.s.threads[threadID]
	if !ok {
		return false, nil
	}
	_, ok = th.comments[commentID]
	return ok, nil
}

func (r *commentStore) GetThread(_ context.Context, threadID int64) ([]*domain.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th, ok := r.s.threads[threadID]
	if !ok {
		return nil, nil
	}
	out := make([]*domain.Comment, 0, len(th.comments))
	for id, c := range th.comments {
		cp := copyComment(c)
		cp.ID = id
		cp.ThreadID = threadID
		out = append(out, cp)
	}
	return out, nil
}

func (r *commentStore) Len(_ context.Context, threadID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th, ok := r.s.threads[threadID]
	if !ok {
		return 0, nil
	}
	return int64(len(th.comments)), nil
}

func (r *commentStore) MarkAuthored(_ context.Context, userID, threadID, commentID, ts int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.authored[userID] == nil {
		r.s.authored[userID] = make(map[string]int64)
	}
	key := strconv.FormatInt(threadID, 10) + "-" + strconv.FormatInt(commentID, 10)
	r.s.authored[userID][key] = ts
	return nil
}

func (r *commentStore) AuthoredRefs(_ context.Context, userID, start, count int64) ([]domain.CommentRef, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	keys, total := rangeDescStr(r.s.authored[userID], start, count)
	refs := make([]domain.CommentRef, 0, len(keys))
	for _, k := range keys {
		parts := strings.SplitN(k, "-", 2)
		if len(parts) != 2 {
			continue
		}
		tid, _ := strconv.ParseInt(parts[0], 10, 64)
		cid, _ := strconv.ParseInt(parts[1], 10, 64)
		refs = append(refs, domain.CommentRef{ThreadID: tid, CommentID: cid})
	}
	return refs, total, nil
}

// --- helpers ---

func copyComment(c *domain.Comment) *domain.Comment {
	cp := *c
	cp.Upvoters = append([]int64(nil), c.Upvoters...)
	cp.Downvoters = append([]int64(nil), c.Downvoters...)
	return &cp
}

type scored struct {
	id    int64
	score float64
}

// rangeDescFloat mimics ZREVRANGE over a member→score map, tie-breaking by
// member descending.
func rangeDescFloat(m map[int64]float64, start, count int64) ([]int64, int64) {
	entries := make([]scored, 0, len(m))
	for id, sc := range m {
		entries = append(entries, scored{id: id, score: sc})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].id > entries[j].id
	})
	total := int64(len(entries))
	if start >= total || count <= 0 {
		return nil, total
	}
	end := start + count
	if end > total {
		end = total
	}
	out := make([]int64, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, e.id)
	}
	return out, total
}

func rangeDescInt(m map[int64]int64, start, count int64) ([]int64, int64) {
	fm := make(map[int64]float64, len(m))
	for id, ts := range m {
		fm[id] = float64(ts)
	}
	return rangeDescFloat(fm, start, count)
}

func rangeDescStr(m map[string]int64, start, count int64) ([]string, int64) {
	type kv struct {
		key string
		ts  int64
	}
	entries := make([]kv, 0, len(m))
	for k, ts := range m {
		entries = append(entries, kv{key: k, ts: ts})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ts != entries[j].ts {
			return entries[i].ts > entries[j].ts
		}
		return entries[i].key > entries[j].key
	})
	total := int64(len(entries))
	if start >= total || count <= 0 {
		return nil, total
	}
	end := start + count
	if end > total {
		end = total
	}
	out := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, e.key)
	}
	return out, total
}
