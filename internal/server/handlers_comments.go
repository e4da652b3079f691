package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kindlingnews/kindling/internal/domain"
	"github.com/kindlingnews/kindling/internal/errors"
)

func (s *Server) handleGetComments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rendered, err := s.app.Comments(c.Request().Context(), viewerID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"news_id":  id,
		"comments": rendered,
	})
}

type postCommentRequest struct {
	NewsID   int64  `json:"news_id"`
	ParentID *int64 `json:"parent_id"`
	Body     string `json:"body"`
}

func (s *Server) handlePostComment(c echo.Context) error {
	var req postCommentRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	parentID := domain.NoParent
	if req.ParentID != nil {
		parentID = *req.ParentID
	}
	id, err := s.app.PostComment(c.Request().Context(), req.NewsID, parentID, viewerID(c), req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"news_id": req.NewsID, "comment_id": id})
}

type editCommentRequest struct {
	NewsID    int64  `json:"news_id"`
	CommentID int64  `json:"comment_id"`
	Body      string `json:"body"`
}

func (s *Server) handleEditComment(c echo.Context) error {
	var req editCommentRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u := currentUser(c)
	if err := s.app.EditComment(c.Request().Context(), req.NewsID, req.CommentID, u.ID, u.IsAdmin(), req.Body); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type delCommentRequest struct {
	NewsID    int64 `json:"news_id"`
	CommentID int64 `json:"comment_id"`
}

func (s *Server) handleDelComment(c echo.Context) error {
	var req delCommentRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	u := currentUser(c)
	if err := s.app.DeleteComment(c.Request().Context(), req.NewsID, req.CommentID, u.ID, u.IsAdmin()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type voteCommentRequest struct {
	NewsID    int64  `json:"news_id"`
	CommentID int64  `json:"comment_id"`
	Direction string `json:"direction"`
}

func (s *Server) handleVoteComment(c echo.Context) error {
	var req voteCommentRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	if err := s.app.VoteComment(c.Request().Context(), req.NewsID, req.CommentID, viewerID(c), domain.VoteDirection(req.Direction)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
