package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/errors"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// itemView is the JSON presentation of an item.
type itemView struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Text         string `json:"text,omitempty"`
	Domain       string `json:"domain,omitempty"`
	AuthorID     int64  `json:"author_id"`
	Username     string `json:"username"`
	CreatedAt    int64  `json:"ctime"`
	UpCount      int64  `json:"up"`
	DownCount    int64  `json:"down"`
	Rank         float64 `json:"rank"`
	CommentCount int64  `json:"comments"`
	// Voted is the viewer's vote on this item, if any.
	Voted   domain.VoteDirection `json:"voted,omitempty"`
	Deleted bool                 `json:"deleted,omitempty"`
}

func toItemView(it *domain.Item) itemView {
	v := itemView{
		ID:           it.ID,
		Title:        it.Title,
		AuthorID:     it.AuthorID,
		Username:     it.Username,
		CreatedAt:    it.CreatedAt,
		UpCount:      it.UpCount,
		DownCount:    it.DownCount,
		Rank:         it.Rank,
		CommentCount: it.CommentCount,
		Voted:        it.Voted,
		Deleted:      it.Deleted,
	}
	if it.IsTextPost() {
		v.Text = it.Text()
	} else {
		v.URL = it.URL
		v.Domain = it.Domain()
	}
	return v
}

func toItemViews(items []*domain.Item) []itemView {
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = toItemView(it)
	}
	return out
}

type listingResponse struct {
	News  []itemView `json:"news"`
	Total int64      `json:"total"`
	Start int64      `json:"start"`
}

// pagination reads start/count query params with sane bounds.
func pagination(c echo.Context) (start, count int64) {
	start, _ = strconv.ParseInt(c.QueryParam("start"), 10, 64)
	if start < 0 {
		start = 0
	}
	count, _ = strconv.ParseInt(c.QueryParam("count"), 10, 64)
	if count <= 0 {
		count = defaultPageSize
	}
	if count > maxPageSize {
		count = maxPageSize
	}
	return start, count
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ValidationError("invalid news id")
	}
	return id, nil
}

func (s *Server) handleTop(c echo.Context) error {
	start, count := pagination(c)
	items, total, err := s.app.Top(c.Request().Context(), viewerID(c), start, count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listingResponse{News: toItemViews(items), Total: total, Start: start})
}

func (s *Server) handleLatest(c echo.Context) error {
	start, count := pagination(c)
	items, total, err := s.app.Latest(c.Request().Context(), viewerID(c), start, count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listingResponse{News: toItemViews(items), Total: total, Start: start})
}

func (s *Server) handleGetNews(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	it, err := s.app.GetItem(c.Request().Context(), viewerID(c), id)
	if err != nil {
		return err
	}
	if it.Deleted {
		return errors.NotFoundError("news deleted").WithField("news_id", id)
	}
	return c.JSON(http.StatusOK, toItemView(it))
}

func (s *Server) handleSaved(c echo.Context) error {
	start, count := pagination(c)
	items, total, err := s.app.Saved(c.Request().Context(), viewerID(c), start, count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listingResponse{News: toItemViews(items), Total: total, Start: start})
}

func (s *Server) handlePosted(c echo.Context) error {
	start, count := pagination(c)
	items, total, err := s.app.Posted(c.Request().Context(), viewerID(c), start, count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listingResponse{News: toItemViews(items), Total: total, Start: start})
}

type submitRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	id, err := s.app.Submit(c.Request().Context(), viewerID(c), req.Title, req.URL, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"news_id": id})
}

type editNewsRequest struct {
	NewsID int64  `json:"news_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Text   string `json:"text"`
}

func (s *Server) handleEditNews(c echo.Context) error {
	var req editNewsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u := currentUser(c)
	if err := s.app.EditItem(c.Request().Context(), u.ID, u.IsAdmin(), req.NewsID, req.Title, req.URL, req.Text); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"news_id": req.NewsID})
}

type delNewsRequest struct {
	NewsID int64 `json:"news_id"`
}

func (s *Server) handleDelNews(c echo.Context) error {
	var req delNewsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u := currentUser(c)
	if err := s.app.DeleteItem(c.Request().Context(), u.ID, u.IsAdmin(), req.NewsID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type voteNewsRequest struct {
	NewsID    int64  `json:"news_id"`
	Direction string `json:"direction"`
}

func (s *Server) handleVoteNews(c echo.Context) error {
	var req voteNewsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	newRank, err := s.app.VoteItem(c.Request().Context(), req.NewsID, viewerID(c), domain.VoteDirection(req.Direction))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"news_id": req.NewsID, "rank": newRank})
}

func (s *Server) handleUserProfile(c echo.Context) error {
	profile, err := s.app.UserProfile(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}
