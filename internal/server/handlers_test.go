package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlingnews/kindling/internal/app"
	"github.com/kindlingnews/kindling/internal/comments"
	"github.com/kindlingnews/kindling/internal/config"
	"github.com/kindlingnews/kindling/internal/karma"
	"github.com/kindlingnews/kindling/internal/memstore"
	"github.com/kindlingnews/kindling/internal/rank"
	"github.com/kindlingnews/kindling/internal/vote"
)

type testServer struct {
	srv   *Server
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memstore.New(clock)
	items, users, commentStore := store.Items(), store.Users(), store.Comments()

	ranker := rank.NewEngine(items, clock, rank.DefaultConfig())
	account := karma.NewAccount(users, clock, karma.DefaultConfig())
	ledger := vote.NewLedger(items, users, commentStore, ranker, account, clock, vote.DefaultConfig())
	tree := comments.NewTree(commentStore, nil, clock, comments.DefaultConfig())
	service := app.NewService(items, users, ranker, ledger, tree, account, clock, app.DefaultConfig())

	cfg := &config.Config{
		AppEnv:        "test",
		Port:          "0",
		SessionSecret: "test-secret",
		StoreBackend:  "memory",
	}
	srv := NewServer(cfg, service, nil)
	// Tests exercise duplicate submissions back to back; keep the per-IP
	// limiter out of the way.
	srv.writeLimit = NewRequestRateLimiter(1000, 1000)

	return &testServer{srv: srv, clock: clock}
}

// do performs a request and returns the recorder. Cookies carry the session.
func (ts *testServer) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, echoMIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

const (
	echoHeaderContentType   = "Content-Type"
	echoMIMEApplicationJSON = "application/json"
)

func (ts *testServer) register(t *testing.T, username string) []*http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/register", map[string]string{
		"username": "alice", "password": "hunter2hunter2",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", body["username"])

	t.Run("duplicate register conflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/register", map[string]string{
			"username": "alice", "password": "hunter2hunter2",
		}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("login works", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/login", map[string]string{
			"username": "alice", "password": "hunter2hunter2",
		}, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Result().Cookies())
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/login", map[string]string{
			"username": "alice", "password": "nope-nope-nope",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSubmitRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/submit", map[string]string{
		"title": "A story", "url": "http://example.com/a",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitAndListings(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.register(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/submit", map[string]string{
		"title": "A story", "url": "http://example.com/a",
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[map[string]int64](t, rec)
	newsID := submitted["news_id"]
	require.Positive(t, newsID)

	t.Run("top shows the story with vote state", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/news/top", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		listing := decode[listingResponse](t, rec)
		require.Len(t, listing.News, 1)
		assert.Equal(t, newsID, listing.News[0].ID)
		assert.Equal(t, "alice", listing.News[0].Username)
		assert.EqualValues(t, "up", listing.News[0].Voted)
	})

	t.Run("anonymous sees no vote state", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/news/top", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		listing := decode[listingResponse](t, rec)
		require.Len(t, listing.News, 1)
		assert.Empty(t, listing.News[0].Voted)
	})

	t.Run("single item fetch", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/news/%d", newsID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		item := decode[itemView](t, rec)
		assert.Equal(t, "A story", item.Title)
		assert.Equal(t, "example.com", item.Domain)
	})

	t.Run("missing item is 404", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/news/999", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cooldown surfaces as 403", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/submit", map[string]string{
			"title": "Another", "url": "http://example.com/b",
		}, cookies)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestVoteEndpoint(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	rec := ts.do(t, http.MethodPost, "/api/submit", map[string]string{
		"title": "A story", "url": "http://example.com/a",
	}, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	newsID := decode[map[string]int64](t, rec)["news_id"]

	rec = ts.do(t, http.MethodPost, "/api/votenews", map[string]any{
		"news_id": newsID, "direction": "up",
	}, bob)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("duplicate vote conflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/votenews", map[string]any{
			"news_id": newsID, "direction": "up",
		}, bob)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad direction rejected", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/votenews", map[string]any{
			"news_id": newsID, "direction": "sideways",
		}, alice)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("saved listing has the upvoted story", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/saved", nil, bob)
		require.Equal(t, http.StatusOK, rec.Code)
		listing := decode[listingResponse](t, rec)
		require.Len(t, listing.News, 1)
		assert.Equal(t, newsID, listing.News[0].ID)
	})
}

func TestCommentEndpoints(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	rec := ts.do(t, http.MethodPost, "/api/submit", map[string]string{
		"title": "A story", "url": "http://example.com/a",
	}, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	newsID := decode[map[string]int64](t, rec)["news_id"]

	rec = ts.do(t, http.MethodPost, "/api/postcomment", map[string]any{
		"news_id": newsID, "body": "nice find",
	}, bob)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	commentID := decode[map[string]int64](t, rec)["comment_id"]
	require.Equal(t, int64(1), commentID)

	t.Run("reply to missing parent rejected", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/postcomment", map[string]any{
			"news_id": newsID, "parent_id": 99, "body": "orphan",
		}, bob)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("thread renders", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/postcomment", map[string]any{
			"news_id": newsID, "parent_id": commentID, "body": "thanks",
		}, alice)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/news/%d/comments", newsID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var payload struct {
			Comments []app.RenderedComment `json:"comments"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Len(t, payload.Comments, 2)
		assert.Equal(t, 0, payload.Comments[0].Level)
		assert.Equal(t, 1, payload.Comments[1].Level)
	})

	t.Run("stranger cannot edit", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/editcomment", map[string]any{
			"news_id": newsID, "comment_id": commentID, "body": "hijack",
		}, alice)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("author edits", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/editcomment", map[string]any{
			"news_id": newsID, "comment_id": commentID, "body": "better phrasing",
		}, bob)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("comment vote", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/votecomment", map[string]any{
			"news_id": newsID, "comment_id": commentID, "direction": "up",
		}, alice)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.register(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/logout", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	// The old cookie's token was rotated away.
	rec = ts.do(t, http.MethodPost, "/api/submit", map[string]string{
		"title": "A story", "url": "http://example.com/a",
	}, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserProfileEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	rec := ts.do(t, http.MethodGet, "/api/user/alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[app.Profile](t, rec)
	assert.Equal(t, "alice", profile.Username)

	rec = ts.do(t, http.MethodGet, "/api/user/nobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Memory backend has no external dependency to probe.
	rec = ts.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
