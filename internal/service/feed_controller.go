package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"frzterr/internal/feed"
	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
	"frzterr/internal/validation"
)

// Notices published when a background write fails.
const (
	NoticeLikeFailed   = "Couldn't update like. Showing the latest feed."
	NoticeRepostFailed = "Couldn't update repost. Showing the latest feed."
	NoticeDeleteFailed = "Couldn't delete the post."
	NoticeEditFailed   = "Couldn't save your edit."
)

// FeedLoader builds a feed. *feed.Aggregator implements it.
type FeedLoader interface {
	Posts(ctx context.Context, viewerID string, scope feed.Scope) []models.PostWithViewerState
}

// FeedSnapshot is what observers of a FeedController receive. Version grows
// with every publish so late deliveries can be recognised.
type FeedSnapshot struct {
	Scope   string                       `json:"scope"`
	Version uint64                       `json:"version"`
	Posts   []models.PostWithViewerState `json:"posts"`
	Notice  string                       `json:"notice,omitempty"`
}

// CreatePostInput is a new post. Images are raw encoded bytes in display
// order.
type CreatePostInput struct {
	Content string `validate:"max=2000"`
	Images  [][]byte
}

// FeedController owns one feed for one viewer.
type FeedController struct {
	loader FeedLoader
	posts  repository.PostRepository
	viewer string
	scope  feed.Scope

	mu      sync.Mutex
	items   []models.PostWithViewerState
	hidden  map[string]bool
	notice  string
	version uint64

	gate  loadGate
	obs   observers[FeedSnapshot]
	async *detached
}

// NewFeedController creates a controller for scope as seen by viewerID. Call
// Close when done with it.
func NewFeedController(loader FeedLoader, posts repository.PostRepository, viewerID string, scope feed.Scope) *FeedController {
	return &FeedController{
		loader: loader,
		posts:  posts,
		viewer: viewerID,
		scope:  scope,
		items:  []models.PostWithViewerState{},
		hidden: make(map[string]bool),
		async:  newDetached(),
	}
}

// Scope returns the feed scope.
func (c *FeedController) Scope() feed.Scope { return c.scope }

// Subscribe registers fn for every published snapshot.
func (c *FeedController) Subscribe(fn func(FeedSnapshot)) (cancel func()) {
	return c.obs.subscribe(fn)
}

// Snapshot returns the current state without publishing.
func (c *FeedController) Snapshot() FeedSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *FeedController) snapshotLocked() FeedSnapshot {
	posts := make([]models.PostWithViewerState, len(c.items))
	copy(posts, c.items)
	return FeedSnapshot{
		Scope:   c.scope.String(),
		Version: c.version,
		Posts:   posts,
		Notice:  c.notice,
	}
}

// commitLocked bumps the version and returns the snapshot to publish once
// the lock is released.
func (c *FeedController) commitLocked() FeedSnapshot {
	c.version++
	return c.snapshotLocked()
}

// Load replaces the feed with a fresh aggregation. A Load that is overtaken
// by a newer one returns ErrSuperseded and changes nothing.
func (c *FeedController) Load(ctx context.Context) (FeedSnapshot, error) {
	observability.FeedReloads.WithLabelValues("refresh").Inc()
	return c.load(ctx, "")
}

func (c *FeedController) load(ctx context.Context, notice string) (FeedSnapshot, error) {
	ctx, gen, cancel := c.gate.begin(ctx)
	defer cancel()

	posts := c.loader.Posts(ctx, c.viewer, c.scope)

	c.mu.Lock()
	if !c.gate.current(gen) {
		c.mu.Unlock()
		return FeedSnapshot{}, ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return FeedSnapshot{}, err
	}
	items := make([]models.PostWithViewerState, 0, len(posts))
	for _, p := range posts {
		if !c.hidden[p.Post.ID] {
			items = append(items, p)
		}
	}
	c.items = items
	c.notice = notice
	snap := c.commitLocked()
	c.mu.Unlock()

	c.obs.publish(snap)
	return snap, nil
}

// reconcile reloads after a failed background write and attaches notice.
func (c *FeedController) reconcile(kind, notice string) {
	observability.OptimisticReverts.WithLabelValues(kind).Inc()
	if c.async.closed() {
		return
	}
	observability.FeedReloads.WithLabelValues("reconcile").Inc()
	if _, err := c.load(c.async.base, notice); err != nil {
		observability.GlobalLogger.DebugContext(c.async.base, "reconcile reload discarded",
			slog.String("scope", c.scope.String()), slog.String("error", err.Error()))
	}
}

func (c *FeedController) indexLocked(postID string) int {
	for i := range c.items {
		if c.items[i].Post.ID == postID {
			return i
		}
	}
	return -1
}

// ToggleLike flips the viewer's like on postID locally, publishes, and
// confirms in the background. A failed confirmation reloads the feed.
func (c *FeedController) ToggleLike(postID string) (FeedSnapshot, error) {
	return c.toggle(postID, "like", func(p *models.PostWithViewerState) bool {
		was := p.IsLiked
		p.IsLiked = !was
		if was {
			p.Post.LikeCount = floorZero(p.Post.LikeCount - 1)
		} else {
			p.Post.LikeCount++
		}
		return was
	}, func(ctx context.Context, was bool) error {
		_, err := c.posts.ToggleLike(ctx, postID, c.viewer, was)
		return err
	}, NoticeLikeFailed)
}

// ToggleRepost is ToggleLike for reposts.
func (c *FeedController) ToggleRepost(postID string) (FeedSnapshot, error) {
	return c.toggle(postID, "repost", func(p *models.PostWithViewerState) bool {
		was := p.IsReposted
		p.IsReposted = !was
		if was {
			p.Post.RepostCount = floorZero(p.Post.RepostCount - 1)
		} else {
			p.Post.RepostCount++
		}
		return was
	}, func(ctx context.Context, was bool) error {
		_, err := c.posts.ToggleRepost(ctx, postID, c.viewer, was)
		return err
	}, NoticeRepostFailed)
}

func (c *FeedController) toggle(
	postID, kind string,
	flip func(*models.PostWithViewerState) bool,
	write func(context.Context, bool) error,
	notice string,
) (FeedSnapshot, error) {
	c.mu.Lock()
	i := c.indexLocked(postID)
	if i < 0 {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewNotFoundError("Post", postID)
	}
	was := flip(&c.items[i])
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)

	fields := map[string]interface{}{"post_id": postID, "was": was, "scope": c.scope.String()}
	c.async.run("toggle_"+kind, fields,
		func(ctx context.Context) error { return write(ctx, was) },
		nil,
		func(error) { c.reconcile(kind, notice) },
	)
	return snap, nil
}

// Delete removes the viewer's post locally and deletes it in the
// background. On failure the post is put back where it was.
func (c *FeedController) Delete(postID string) (FeedSnapshot, error) {
	c.mu.Lock()
	i := c.indexLocked(postID)
	if i < 0 {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewNotFoundError("Post", postID)
	}
	removed := c.items[i]
	if removed.Post.UserID != c.viewer {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewUnauthorizedError("only the author can delete a post")
	}
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)

	c.async.run("delete_post", map[string]interface{}{"post_id": postID},
		func(ctx context.Context) error { return c.posts.Delete(ctx, postID, c.viewer) },
		nil,
		func(error) { c.restore(removed, i) },
	)
	return snap, nil
}

func (c *FeedController) restore(p models.PostWithViewerState, at int) {
	observability.OptimisticReverts.WithLabelValues("delete").Inc()
	c.mu.Lock()
	if c.indexLocked(p.Post.ID) >= 0 {
		c.mu.Unlock()
		return
	}
	if at > len(c.items) {
		at = len(c.items)
	}
	c.items = append(c.items[:at], append([]models.PostWithViewerState{p}, c.items[at:]...)...)
	c.notice = NoticeDeleteFailed
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
}

// Edit replaces the content of the viewer's post locally and saves it in
// the background. On failure the old content comes back unless the post was
// edited again in the meantime.
func (c *FeedController) Edit(postID, content string) (FeedSnapshot, error) {
	content = strings.TrimSpace(content)
	c.mu.Lock()
	i := c.indexLocked(postID)
	if i < 0 {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewNotFoundError("Post", postID)
	}
	p := &c.items[i]
	if p.Post.UserID != c.viewer {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewUnauthorizedError("only the author can edit a post")
	}
	if content == "" && len(p.Post.ImageURLs) == 0 {
		c.mu.Unlock()
		return FeedSnapshot{}, models.NewValidationError("content cannot be empty")
	}
	old := p.Post.Content
	p.Post.Content = content
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)

	c.async.run("edit_post", map[string]interface{}{"post_id": postID},
		func(ctx context.Context) error { return c.posts.UpdateContent(ctx, postID, c.viewer, content) },
		nil,
		func(error) {
			observability.OptimisticReverts.WithLabelValues("edit").Inc()
			c.mu.Lock()
			j := c.indexLocked(postID)
			if j < 0 || c.items[j].Post.Content != content {
				c.mu.Unlock()
				return
			}
			c.items[j].Post.Content = old
			c.notice = NoticeEditFailed
			snap := c.commitLocked()
			c.mu.Unlock()
			c.obs.publish(snap)
		},
	)
	return snap, nil
}

// Hide removes postID from this feed for the controller's lifetime. Nothing
// is written remotely.
func (c *FeedController) Hide(postID string) FeedSnapshot {
	c.mu.Lock()
	c.hidden[postID] = true
	if i := c.indexLocked(postID); i >= 0 {
		c.items = append(c.items[:i:i], c.items[i+1:]...)
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
	return snap
}

// DismissNotice clears the current notice.
func (c *FeedController) DismissNotice() FeedSnapshot {
	c.mu.Lock()
	c.notice = ""
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
	return snap
}

// Publish uploads the images, creates the post and reloads the feed.
func (c *FeedController) Publish(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Images) == 0 {
		return nil, models.NewValidationError("post needs text or at least one image")
	}

	urls := make([]string, 0, len(in.Images))
	for i, img := range in.Images {
		url, err := c.posts.UploadImage(ctx, c.viewer, img, i)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	post, err := c.posts.Create(ctx, c.viewer, in.Content, urls)
	if err != nil {
		return nil, err
	}
	if _, err := c.Load(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return post, err
	}
	return post, nil
}

// Wait blocks until every background write started so far has finished.
func (c *FeedController) Wait() { c.async.wait() }

// Close cancels pending background writes and waits for them.
func (c *FeedController) Close() { c.async.close() }
