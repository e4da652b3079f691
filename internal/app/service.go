// Package app orchestrates the engine components behind use-case methods:
// submissions, listings, comments, and accounts. Handlers call this layer
// only; nothing HTTP-shaped lives here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kindlingnews/kindling/internal/auth"
	"github.com/kindlingnews/kindling/internal/comments"
	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/karma"
	"github.com/kindlingnews/kindling/internal/rank"
	"github.com/kindlingnews/kindling/internal/vote"
)

type Config struct {
	// EditWindow is how long after submission an item stays editable and
	// deletable by its author.
	EditWindow time.Duration
	// SubmissionCooldown is the per-user wait between submissions.
	SubmissionCooldown time.Duration
	// URLReservation is how long a submitted link blocks reposts of the same URL.
	URLReservation time.Duration
	// CommentAuthorReward is credited to a user for posting a comment.
	CommentAuthorReward int64
	MinPasswordLen      int
	MaxTitleLen         int
}

func DefaultConfig() Config {
	return Config{
		EditWindow:          15 * time.Minute,
		SubmissionCooldown:  15 * time.Minute,
		URLReservation:      48 * time.Hour,
		CommentAuthorReward: 1,
		MinPasswordLen:      8,
		MaxTitleLen:         128,
	}
}

// usernameRe allows letters, digits, underscore and dash, starting with a
// letter, at least two characters.
var usernameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]+$`)

type Service struct {
	items  domain.ItemRepository
	users  domain.UserRepository
	ranker *rank.Engine
	ledger *vote.Ledger
	tree   *comments.Tree
	karma  *karma.Account
	clock  clockwork.Clock
	cfg    Config
}

func NewService(items domain.ItemRepository, users domain.UserRepository, ranker *rank.Engine, ledger *vote.Ledger, tree *comments.Tree, account *karma.Account, clock clockwork.Clock, cfg Config) *Service {
	return &Service{
		items:  items,
		users:  users,
		ranker: ranker,
		ledger: ledger,
		tree:   tree,
		karma:  account,
		clock:  clock,
		cfg:    cfg,
	}
}

// Submit creates a new link or text post and casts the author's implicit
// upvote. If the URL was submitted recently the existing item's id is
// returned instead of creating a duplicate.
func (s *Service) Submit(ctx context.Context, userID int64, title, url, text string) (int64, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if len(title) > s.cfg.MaxTitleLen {
		title = title[:s.cfg.MaxTitleLen]
	}

	textPost := url == ""
	if textPost {
		if strings.TrimSpace(text) == "" {
			return 0, fmt.Errorf("either url or text is required: %w", domain.ErrValidation)
		}
		url = domain.TextURLPrefix + text
	} else {
		if !validURL(url) {
			return 0, fmt.Errorf("url must be http or https: %w", domain.ErrValidation)
		}
		// Repost of a recently submitted URL points back at the original.
		if existing, found, err := s.items.LookupURL(ctx, url); err != nil {
			return 0, fmt.Errorf("check url reservation: %w", err)
		} else if found {
			return existing, nil
		}
	}

	if !user.IsAdmin() {
		wait, err := s.items.SubmittedRecently(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("check submission cooldown: %w", err)
		}
		if wait > 0 {
			return 0, fmt.Errorf("wait %s before submitting again: %w", wait.Round(time.Second), domain.ErrSubmittedRecently)
		}
	}

	now := s.clock.Now().Unix()
	it := &domain.Item{
		Title:     title,
		URL:       url,
		AuthorID:  userID,
		CreatedAt: now,
	}
	id, err := s.items.Create(ctx, it)
	if err != nil {
		return 0, err
	}

	if err := s.items.AddToChrono(ctx, id, now); err != nil {
		return 0, fmt.Errorf("index new item: %w", err)
	}
	if err := s.items.MarkPosted(ctx, userID, id, now); err != nil {
		slog.Warn("Failed to record posted item", "user_id", userID, "item_id", id, "error", err)
	}
	if !textPost {
		if err := s.items.ReserveURL(ctx, url, id, s.cfg.URLReservation); err != nil {
			slog.Warn("Failed to reserve url", "item_id", id, "error", err)
		}
	}
	if !user.IsAdmin() {
		if err := s.items.MarkSubmitted(ctx, userID, s.cfg.SubmissionCooldown); err != nil {
			slog.Warn("Failed to mark submission cooldown", "user_id", userID, "error", err)
		}
	}

	// The author's own upvote seeds the score and the front index.
	if _, err := s.ledger.CastVote(ctx, id, userID, domain.VoteUp); err != nil {
		return 0, fmt.Errorf("cast author vote: %w", err)
	}
	return id, nil
}

// EditItem updates the title and payload of an item. Author-only within the
// edit window; admins bypass both. A changed URL swaps the repost reservation.
func (s *Service) EditItem(ctx context.Context, userID int64, admin bool, itemID int64, title, url, text string) error {
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if it.Deleted {
		return domain.ErrItemNotFound
	}
	if err := s.editableItem(it, userID, admin); err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if len(title) > s.cfg.MaxTitleLen {
		title = title[:s.cfg.MaxTitleLen]
	}

	newURL := it.URL
	switch {
	case url != "":
		if !validURL(url) {
			return fmt.Errorf("url must be http or https: %w", domain.ErrValidation)
		}
		newURL = url
	case text != "":
		newURL = domain.TextURLPrefix + text
	}

	if newURL != it.URL {
		if !it.IsTextPost() {
			if err := s.items.ReleaseURL(ctx, it.URL); err != nil {
				slog.Warn("Failed to release url reservation", "item_id", itemID, "error", err)
			}
		}
		if !strings.HasPrefix(newURL, domain.TextURLPrefix) {
			if err := s.items.ReserveURL(ctx, newURL, itemID, s.cfg.URLReservation); err != nil {
				slog.Warn("Failed to reserve url", "item_id", itemID, "error", err)
			}
		}
	}
	return s.items.SetTitleURL(ctx, itemID, title, newURL)
}

// DeleteItem tombstones an item and removes it from the public indexes. The
// record itself stays so comment threads remain addressable.
func (s *Service) DeleteItem(ctx context.Context, userID int64, admin bool, itemID int64) error {
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if it.Deleted {
		return domain.ErrItemNotFound
	}
	if err := s.editableItem(it, userID, admin); err != nil {
		return err
	}

	if err := s.items.SetDeleted(ctx, itemID); err != nil {
		return err
	}
	if err := s.items.RemoveFromIndexes(ctx, itemID); err != nil {
		return fmt.Errorf("deindex deleted item: %w", err)
	}
	if !it.IsTextPost() {
		if err := s.items.ReleaseURL(ctx, it.URL); err != nil {
			slog.Warn("Failed to release url reservation", "item_id", itemID, "error", err)
		}
	}
	return nil
}

func (s *Service) editableItem(it *domain.Item, userID int64, admin bool) error {
	if admin {
		return nil
	}
	if it.AuthorID != userID {
		return domain.ErrForbidden
	}
	if s.clock.Now().Unix()-it.CreatedAt > int64(s.cfg.EditWindow.Seconds()) {
		return domain.ErrEditWindowExpired
	}
	return nil
}

// Top returns one page of the front listing, rank-refreshing stale items on
// the way out. viewerID 0 means anonymous.
func (s *Service) Top(ctx context.Context, viewerID, start, count int64) ([]*domain.Item, int64, error) {
	ids, total, err := s.items.FrontIDs(ctx, start, count)
	if err != nil {
		return nil, 0, fmt.Errorf("read front index: %w", err)
	}
	items, err := s.items.GetMulti(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, it := range items {
		s.ranker.RefreshIfStale(ctx, it)
	}
	// Refreshing may have reordered the page.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank > items[j].Rank })

	if err := s.hydrate(ctx, items, viewerID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Latest returns one page of the chronological listing.
func (s *Service) Latest(ctx context.Context, viewerID, start, count int64) ([]*domain.Item, int64, error) {
	ids, total, err := s.items.ChronoIDs(ctx, start, count)
	if err != nil {
		return nil, 0, fmt.Errorf("read chrono index: %w", err)
	}
	items, err := s.items.GetMulti(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, it := range items {
		s.ranker.RefreshIfStale(ctx, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })

	if err := s.hydrate(ctx, items, viewerID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Saved returns one page of the items the user has upvoted, newest vote first.
func (s *Service) Saved(ctx context.Context, userID, start, count int64) ([]*domain.Item, int64, error) {
	return s.userListing(ctx, userID, start, count, s.items.SavedIDs)
}

// Posted returns one page of the items the user has submitted, newest first.
func (s *Service) Posted(ctx context.Context, userID, start, count int64) ([]*domain.Item, int64, error) {
	return s.userListing(ctx, userID, start, count, s.items.PostedIDs)
}

func (s *Service) userListing(ctx context.Context, userID, start, count int64, index func(context.Context, int64, int64, int64) ([]int64, int64, error)) ([]*domain.Item, int64, error) {
	ids, total, err := index(ctx, userID, start, count)
	if err != nil {
		return nil, 0, fmt.Errorf("read user index: %w", err)
	}
	items, err := s.items.GetMulti(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	if err := s.hydrate(ctx, items, userID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetItem returns one item with presentation fields hydrated. Deleted items
// are still returned; the caller decides how to present the tombstone.
func (s *Service) GetItem(ctx context.Context, viewerID, itemID int64) (*domain.Item, error) {
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.ranker.RefreshIfStale(ctx, it)
	if err := s.hydrate(ctx, []*domain.Item{it}, viewerID); err != nil {
		return nil, err
	}
	return it, nil
}

// hydrate fills Username and Voted on the given items.
func (s *Service) hydrate(ctx context.Context, items []*domain.Item, viewerID int64) error {
	if len(items) == 0 {
		return nil
	}

	names := make(map[int64]string, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, seen := names[it.AuthorID]; !seen {
			names[it.AuthorID] = ""
		}
		ids = append(ids, it.ID)
	}
	for authorID := range names {
		u, err := s.users.GetByID(ctx, authorID)
		if err != nil {
			slog.Warn("Failed to resolve item author", "author_id", authorID, "error", err)
			continue
		}
		names[authorID] = u.Username
	}

	var voted map[int64]domain.VoteDirection
	if viewerID != 0 {
		var err error
		voted, err = s.items.VotedMulti(ctx, ids, viewerID)
		if err != nil {
			return fmt.Errorf("resolve vote state: %w", err)
		}
	}

	for _, it := range items {
		it.Username = names[it.AuthorID]
		it.Voted = voted[it.ID]
	}
	return nil
}

// VoteItem casts an item vote and returns the item's new rank.
func (s *Service) VoteItem(ctx context.Context, itemID, userID int64, dir domain.VoteDirection) (float64, error) {
	if !dir.Valid() {
		return 0, fmt.Errorf("vote direction must be up or down: %w", domain.ErrValidation)
	}
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if it.Deleted {
		return 0, domain.ErrItemNotFound
	}
	return s.ledger.CastVote(ctx, itemID, userID, dir)
}

// VoteComment casts a comment vote.
func (s *Service) VoteComment(ctx context.Context, threadID, commentID, userID int64, dir domain.VoteDirection) error {
	if !dir.Valid() {
		return fmt.Errorf("vote direction must be up or down: %w", domain.ErrValidation)
	}
	return s.ledger.CastCommentVote(ctx, threadID, commentID, userID, dir)
}

// PostComment adds a comment to an item's thread, bumps the item's comment
// counter, and rewards the author.
func (s *Service) PostComment(ctx context.Context, itemID, parentID, userID int64, body string) (int64, error) {
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if it.Deleted {
		return 0, domain.ErrItemNotFound
	}
	if strings.TrimSpace(body) == "" {
		return 0, fmt.Errorf("comment body is required: %w", domain.ErrValidation)
	}

	id, err := s.tree.Insert(ctx, itemID, parentID, userID, body)
	if err != nil {
		return 0, err
	}
	if _, err := s.items.IncrCommentCount(ctx, itemID, 1); err != nil {
		slog.Warn("Failed to bump comment counter", "item_id", itemID, "error", err)
	}
	if s.cfg.CommentAuthorReward > 0 {
		if _, err := s.karma.Adjust(ctx, userID, s.cfg.CommentAuthorReward); err != nil {
			slog.Warn("Failed to credit comment reward", "user_id", userID, "error", err)
		}
	}
	return id, nil
}

// EditComment replaces a comment's body, subject to the tree's author and
// window rules.
func (s *Service) EditComment(ctx context.Context, threadID, commentID, userID int64, admin bool, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("comment body is required: %w", domain.ErrValidation)
	}
	return s.tree.EditBody(ctx, threadID, commentID, userID, admin, body)
}

// DeleteComment tombstones a comment and decrements the item's counter.
func (s *Service) DeleteComment(ctx context.Context, threadID, commentID, userID int64, admin bool) error {
	if err := s.tree.Delete(ctx, threadID, commentID, userID, admin); err != nil {
		return err
	}
	if _, err := s.items.IncrCommentCount(ctx, threadID, -1); err != nil {
		slog.Warn("Failed to drop comment counter", "item_id", threadID, "error", err)
	}
	return nil
}

// RenderedComment is one node of a flattened comment thread.
type RenderedComment struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	AuthorID int64  `json:"author_id"`
	Username string `json:"username"`
	Body     string `json:"body"`
	// CreatedAt is unix seconds.
	CreatedAt int64 `json:"ctime"`
	Score     int64 `json:"score"`
	Level     int   `json:"level"`
	Deleted   bool  `json:"deleted,omitempty"`
	// Voted is the viewer's vote on this comment, if any.
	Voted domain.VoteDirection `json:"voted,omitempty"`
}

// Comments renders an item's thread depth-first into a flat, indented list.
func (s *Service) Comments(ctx context.Context, viewerID, itemID int64) ([]RenderedComment, error) {
	if _, err := s.items.Get(ctx, itemID); err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	out := make([]RenderedComment, 0, 16)
	err := s.tree.Render(ctx, itemID, domain.NoParent, func(c *domain.Comment, level int) error {
		rc := RenderedComment{
			ID:        c.ID,
			ParentID:  c.ParentID,
			AuthorID:  c.AuthorID,
			CreatedAt: c.CreatedAt,
			Level:     level,
			Deleted:   c.Deleted,
		}
		if c.Deleted {
			out = append(out, rc)
			return nil
		}
		rc.Body = c.Body
		rc.Score = c.VoteScore()
		if viewerID != 0 {
			rc.Voted, _ = c.VotedBy(viewerID)
		}
		name, seen := names[c.AuthorID]
		if !seen {
			if u, err := s.users.GetByID(ctx, c.AuthorID); err == nil {
				name = u.Username
			}
			names[c.AuthorID] = name
		}
		rc.Username = name
		out = append(out, rc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Register creates an account and returns the new user with a fresh auth token.
func (s *Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("username must start with a letter and contain only letters, digits, underscore and dash: %w", domain.ErrValidation)
	}
	if len(password) < s.cfg.MinPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", s.cfg.MinPasswordLen, domain.ErrValidation)
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Username:           username,
		PasswordHash:       auth.HashPassword(password, salt),
		Salt:               salt,
		Karma:              s.karma.InitialKarma(),
		KarmaIncrementedAt: s.clock.Now().Unix(),
		CreatedAt:          s.clock.Now().Unix(),
		AuthToken:          auth.NewToken(),
		APISecret:          auth.NewToken(),
	}
	if _, err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and returns the user. The token is not rotated
// on login, so concurrent sessions stay valid.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, u.Salt, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

// Logout rotates the user's auth token, invalidating every session cookie.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.users.UpdateAuthToken(ctx, userID, auth.NewToken())
}

// Authenticate resolves an auth token to a user and opportunistically applies
// any pending passive karma credit.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	id, found, err := s.users.GetIDByAuthToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if !found {
		return nil, domain.ErrInvalidCredentials
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.karma.CreditPassive(ctx, u); err != nil {
		slog.Warn("Failed to apply passive karma credit", "user_id", u.ID, "error", err)
	}
	return u, nil
}

// Profile is the public view of a user.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Karma     int64  `json:"karma"`
	CreatedAt int64  `json:"ctime"`
	Admin     bool   `json:"admin,omitempty"`
}

// UserProfile returns the public profile for a username.
func (s *Service) UserProfile(ctx context.Context, username string) (*Profile, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Karma:     u.Karma,
		CreatedAt: u.CreatedAt,
		Admin:     u.IsAdmin(),
	}, nil
}

func validURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
