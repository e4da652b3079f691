package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlingnews/kindling/internal/domain"
)

func newStore() (*Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(clock), clock
}

func TestItemCreateAssignsMonotonicIDs(t *testing.T) {
	s, _ := newStore()
	items := s.Items()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		id, err := items.Create(ctx, &domain.Item{Title: "t"})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestItemGetReturnsCopy(t *testing.T) {
	s, _ := newStore()
	items := s.Items()
	ctx := context.Background()

	id, err := items.Create(ctx, &domain.Item{Title: "original"})
	require.NoError(t, err)

	got, err := items.Get(ctx, id)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Title)
}

func TestAddVoterReportsNewlyAdded(t *testing.T) {
	s, _ := newStore()
	items := s.Items()
	ctx := context.Background()

	added, err := items.AddVoter(ctx, 1, domain.VoteUp, 7, 100)
	require.NoError(t, err)
	assert.True(t, added)

	// Same member again only moves the timestamp.
	added, err = items.AddVoter(ctx, 1, domain.VoteUp, 7, 200)
	require.NoError(t, err)
	assert.False(t, added)

	dir, voted, err := items.Voted(ctx, 1, 7)
	require.NoError(t, err)
	assert.True(t, voted)
	assert.Equal(t, domain.VoteUp, dir)
}

func TestFrontIDsOrderedByRankDesc(t *testing.T) {
	s, _ := newStore()
	items := s.Items()
	ctx := context.Background()

	require.NoError(t, items.AddToFront(ctx, 1, 10))
	require.NoError(t, items.AddToFront(ctx, 2, 30))
	require.NoError(t, items.AddToFront(ctx, 3, 20))

	ids, total, err := items.FrontIDs(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []int64{2, 3, 1}, ids)

	// Re-adding updates the score in place.
	require.NoError(t, items.AddToFront(ctx, 1, 99))
	ids, _, err = items.FrontIDs(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestFrontIDsPagination(t *testing.T) {
	s, _ := newStore()
	items := s.Items()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, items.AddToFront(ctx, i, float64(i)))
	}

	ids, total, err := items.FrontIDs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []int64{3, 2}, ids)

	ids, _, err = items.FrontIDs(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestURLReservationExpires(t *testing.T) {
	s, clock := newStore()
	items := s.Items()
	ctx := context.Background()

	require.NoError(t, items.ReserveURL(ctx, "http://a.example", 1, time.Hour))

	id, found, err := items.LookupURL(ctx, "http://a.example")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), id)

	clock.Advance(2 * time.Hour)
	_, found, err = items.LookupURL(ctx, "http://a.example")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSubmissionCooldown(t *testing.T) {
	s, clock := newStore()
	items := s.Items()
	ctx := context.Background()

	wait, err := items.SubmittedRecently(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, wait)

	require.NoError(t, items.MarkSubmitted(ctx, 7, 15*time.Minute))
	wait, err = items.SubmittedRecently(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, wait)

	clock.Advance(10 * time.Minute)
	wait, err = items.SubmittedRecently(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, wait)

	clock.Advance(6 * time.Minute)
	wait, err = items.SubmittedRecently(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestUserCreateEnforcesCaseInsensitiveUniqueness(t *testing.T) {
	s, _ := newStore()
	users := s.Users()
	ctx := context.Background()

	_, err := users.Create(ctx, &domain.User{Username: "Alice"})
	require.NoError(t, err)

	_, err = users.Create(ctx, &domain.User{Username: "alice"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	u, err := users.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)
}

func TestUpdateAuthTokenDropsOldIndexEntry(t *testing.T) {
	s, _ := newStore()
	users := s.Users()
	ctx := context.Background()

	u := &domain.User{Username: "bob", AuthToken: "old-token"}
	id, err := users.Create(ctx, u)
	require.NoError(t, err)

	got, found, err := users.GetIDByAuthToken(ctx, "old-token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	require.NoError(t, users.UpdateAuthToken(ctx, id, "new-token"))

	_, found, err = users.GetIDByAuthToken(ctx, "old-token")
	require.NoError(t, err)
	assert.False(t, found)
	got, found, err = users.GetIDByAuthToken(ctx, "new-token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)
}

func TestCommentNextIDIsDensePerThread(t *testing.T) {
	s, _ := newStore()
	comments := s.Comments()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		id, err := comments.NextID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	// Other threads count independently.
	id, err := comments.NextID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestCommentPutGetRoundTrip(t *testing.T) {
	s, _ := newStore()
	comments := s.Comments()
	ctx := context.Background()

	c := &domain.Comment{ParentID: domain.NoParent, AuthorID: 7, Body: "hi", CreatedAt: 100, Upvoters: []int64{1}}
	require.NoError(t, comments.Put(ctx, 1, 1, c))

	// Mutating the caller's slice must not leak into the store.
	c.Upvoters[0] = 999

	got, ok, err := comments.Get(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, int64(1), got.ThreadID)
	assert.Equal(t, []int64{1}, got.Upvoters)

	_, ok, err = comments.Get(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthoredRefs(t *testing.T) {
	s, _ := newStore()
	comments := s.Comments()
	ctx := context.Background()

	require.NoError(t, comments.MarkAuthored(ctx, 7, 1, 1, 100))
	require.NoError(t, comments.MarkAuthored(ctx, 7, 2, 5, 300))
	require.NoError(t, comments.MarkAuthored(ctx, 7, 1, 3, 200))

	refs, total, err := comments.AuthoredRefs(ctx, 7, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []domain.CommentRef{
		{ThreadID: 2, CommentID: 5},
		{ThreadID: 1, CommentID: 3},
		{ThreadID: 1, CommentID: 1},
	}, refs)
}
