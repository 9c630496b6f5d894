package server

import (
	"errors"
	"io"
	"strings"

	"frzterr/internal/feed"
	"frzterr/internal/models"
	"frzterr/internal/service"

	"github.com/gofiber/fiber/v2"
)

const maxPostImages = 10

// GetFeed handles GET /api/feed
func (s *Server) GetFeed(c *fiber.Ctx) error {
	return s.loadFeed(c, feed.AllPosts())
}

// GetUserPosts handles GET /api/users/:id/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return nil
	}
	return s.loadFeed(c, feed.ByAuthor(id))
}

// GetUserReposts handles GET /api/users/:id/reposts
func (s *Server) GetUserReposts(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return nil
	}
	return s.loadFeed(c, feed.RepostedBy(id))
}

// loadFeed answers with a fresh aggregation of scope, or with the current
// snapshot when ?refresh=false. A refresh forgets the carousel positions of
// the screen the feed is shown on.
func (s *Server) loadFeed(c *fiber.Ctx, scope feed.Scope) error {
	ctl := s.rt.Feeds.Feed(scope)
	if !c.QueryBool("refresh", true) {
		return c.JSON(ctl.Snapshot())
	}

	s.rt.Carousels.ClearScreen(screenOf(scope))
	defer s.rt.Carousels.EnableSaving()

	snap, err := ctl.Load(c.UserContext())
	if errors.Is(err, service.ErrSuperseded) {
		return c.JSON(ctl.Snapshot())
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// DismissFeedNotice handles DELETE /api/feed/notice
func (s *Server) DismissFeedNotice(c *fiber.Ctx) error {
	ctl, err := s.feedFor(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ctl.DismissNotice())
}

// CreatePost handles POST /api/posts. The body is either JSON with
// "content", or a multipart form with a "content" field and "images" files
// in display order.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	ctl, err := s.feedFor(c)
	if err != nil {
		return respondError(c, err)
	}

	var in service.CreatePostInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		in, err = readPostForm(c)
		if err != nil {
			return respondError(c, err)
		}
	} else {
		var req struct {
			Content string `json:"content"`
		}
		if !parseBody(c, &req) {
			return nil
		}
		in.Content = req.Content
	}

	post, err := ctl.Publish(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post": post,
		"feed": ctl.Snapshot(),
	})
}

func readPostForm(c *fiber.Ctx) (service.CreatePostInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return service.CreatePostInput{}, models.NewValidationError("Invalid multipart form")
	}
	in := service.CreatePostInput{}
	if v := form.Value["content"]; len(v) > 0 {
		in.Content = v[0]
	}
	files := form.File["images"]
	if len(files) > maxPostImages {
		return in, models.NewValidationError("too many images")
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return in, models.NewValidationError("unreadable image " + fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return in, models.NewValidationError("unreadable image " + fh.Filename)
		}
		in.Images = append(in.Images, data)
	}
	return in, nil
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	return s.postAction(c, (*service.FeedController).ToggleLike)
}

// RepostPost handles POST /api/posts/:id/repost
func (s *Server) RepostPost(c *fiber.Ctx) error {
	return s.postAction(c, (*service.FeedController).ToggleRepost)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	return s.postAction(c, (*service.FeedController).Delete)
}

// HidePost handles POST /api/posts/:id/hide
func (s *Server) HidePost(c *fiber.Ctx) error {
	return s.postAction(c, func(ctl *service.FeedController, id string) (service.FeedSnapshot, error) {
		return ctl.Hide(id), nil
	})
}

// EditPost handles PATCH /api/posts/:id
func (s *Server) EditPost(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if !parseBody(c, &req) {
		return nil
	}
	return s.postAction(c, func(ctl *service.FeedController, id string) (service.FeedSnapshot, error) {
		return ctl.Edit(id, req.Content)
	})
}

// postAction runs an optimistic action on post :id in the feed named by the
// query and answers with the published snapshot.
func (s *Server) postAction(c *fiber.Ctx, action func(*service.FeedController, string) (service.FeedSnapshot, error)) error {
	id, ok := param(c, "id")
	if !ok {
		return nil
	}
	ctl, err := s.feedFor(c)
	if err != nil {
		return respondError(c, err)
	}
	snap, err := action(ctl, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}
