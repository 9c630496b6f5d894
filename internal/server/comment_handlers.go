package server

import (
	"errors"

	"frzterr/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	ctl, ok := s.threadFor(c)
	if !ok {
		return nil
	}
	if !c.QueryBool("refresh", true) {
		return c.JSON(ctl.Snapshot())
	}
	snap, err := ctl.Load(c.UserContext())
	if errors.Is(err, service.ErrSuperseded) {
		return c.JSON(ctl.Snapshot())
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// CreateComment handles POST /api/posts/:id/comments. A parent_id makes the
// comment a reply.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	ctl, ok := s.threadFor(c)
	if !ok {
		return nil
	}
	var req service.CommentInput
	if !parseBody(c, &req) {
		return nil
	}
	comment, err := ctl.Add(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"comment": comment,
		"thread":  ctl.Snapshot(),
	})
}

// DismissCommentNotice handles DELETE /api/posts/:id/comments/notice
func (s *Server) DismissCommentNotice(c *fiber.Ctx) error {
	ctl, ok := s.threadFor(c)
	if !ok {
		return nil
	}
	return c.JSON(ctl.DismissNotice())
}

// ToggleReplies handles POST /api/posts/:id/comments/:commentId/expand
func (s *Server) ToggleReplies(c *fiber.Ctx) error {
	return s.commentAction(c, (*service.CommentController).ToggleExpanded)
}

// LikeComment handles POST /api/posts/:id/comments/:commentId/like
func (s *Server) LikeComment(c *fiber.Ctx) error {
	return s.commentAction(c, (*service.CommentController).ToggleLike)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	return s.commentAction(c, (*service.CommentController).Delete)
}

func (s *Server) threadFor(c *fiber.Ctx) (*service.CommentController, bool) {
	postID, ok := param(c, "id")
	if !ok {
		return nil, false
	}
	return s.rt.Feeds.Thread(postID), true
}

func (s *Server) commentAction(c *fiber.Ctx, action func(*service.CommentController, string) (service.CommentSnapshot, error)) error {
	ctl, ok := s.threadFor(c)
	if !ok {
		return nil
	}
	commentID, ok := param(c, "commentId")
	if !ok {
		return nil
	}
	snap, err := action(ctl, commentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}
