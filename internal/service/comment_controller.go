package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"frzterr/internal/feed"
	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
	"frzterr/internal/validation"
)

// Comment notices.
const (
	NoticeCommentDeleteFailed = "Couldn't delete the comment."
	NoticeCommentLikeFailed   = "Couldn't update like. Showing the latest comments."
)

// ThreadLoader builds a comment thread. *feed.Aggregator implements it.
type ThreadLoader interface {
	Thread(ctx context.Context, viewerID, postID string, expanded map[string]bool) feed.CommentThread
}

// CommentInput is a new comment or, with ParentID set, a reply.
type CommentInput struct {
	Content  string  `json:"content" validate:"notblank,max=1000"`
	ParentID *string `json:"parent_id,omitempty"`
}

// CommentSnapshot is what observers of a CommentController receive. Visible
// is the rendered order: roots, each followed by its replies when expanded.
type CommentSnapshot struct {
	PostID   string                     `json:"post_id"`
	Version  uint64                     `json:"version"`
	Comments []models.CommentWithAuthor `json:"comments"`
	Visible  []models.CommentWithAuthor `json:"visible"`
	Notice   string                     `json:"notice,omitempty"`
}

// CommentController owns the comment thread of one post for one viewer.
type CommentController struct {
	loader   ThreadLoader
	comments repository.CommentRepository
	viewer   string
	postID   string

	mu       sync.Mutex
	items    []models.CommentWithAuthor
	expanded map[string]bool
	notice   string
	version  uint64

	gate  loadGate
	obs   observers[CommentSnapshot]
	async *detached
}

// NewCommentController creates a controller for the comments of postID.
func NewCommentController(loader ThreadLoader, comments repository.CommentRepository, viewerID, postID string) *CommentController {
	return &CommentController{
		loader:   loader,
		comments: comments,
		viewer:   viewerID,
		postID:   postID,
		items:    []models.CommentWithAuthor{},
		expanded: make(map[string]bool),
		async:    newDetached(),
	}
}

func (c *CommentController) Subscribe(fn func(CommentSnapshot)) (cancel func()) {
	return c.obs.subscribe(fn)
}

func (c *CommentController) Snapshot() CommentSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CommentController) snapshotLocked() CommentSnapshot {
	items := make([]models.CommentWithAuthor, len(c.items))
	copy(items, c.items)
	return CommentSnapshot{
		PostID:   c.postID,
		Version:  c.version,
		Comments: items,
		Visible:  feed.CommentThread{PostID: c.postID, Comments: items}.Visible(),
		Notice:   c.notice,
	}
}

func (c *CommentController) commitLocked() CommentSnapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *CommentController) expandedCopy() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.expanded))
	for k, v := range c.expanded {
		out[k] = v
	}
	return out
}

// Load replaces the thread with a fresh aggregation.
func (c *CommentController) Load(ctx context.Context) (CommentSnapshot, error) {
	return c.load(ctx, "")
}

func (c *CommentController) load(ctx context.Context, notice string) (CommentSnapshot, error) {
	ctx, gen, cancel := c.gate.begin(ctx)
	defer cancel()

	thread := c.loader.Thread(ctx, c.viewer, c.postID, c.expandedCopy())

	c.mu.Lock()
	if !c.gate.current(gen) {
		c.mu.Unlock()
		return CommentSnapshot{}, ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return CommentSnapshot{}, err
	}
	c.items = thread.Comments
	for i := range c.items {
		c.items[i].IsExpanded = c.expanded[c.items[i].Comment.ID]
	}
	c.notice = notice
	snap := c.commitLocked()
	c.mu.Unlock()

	c.obs.publish(snap)
	return snap, nil
}

func (c *CommentController) reconcile(kind, notice string) {
	observability.OptimisticReverts.WithLabelValues(kind).Inc()
	if c.async.closed() {
		return
	}
	if _, err := c.load(c.async.base, notice); err != nil {
		observability.GlobalLogger.DebugContext(c.async.base, "comment reconcile discarded",
			slog.String("post_id", c.postID), slog.String("error", err.Error()))
	}
}

func (c *CommentController) indexLocked(commentID string) int {
	for i := range c.items {
		if c.items[i].Comment.ID == commentID {
			return i
		}
	}
	return -1
}

// ToggleExpanded shows or hides the replies of rootID. Purely local.
func (c *CommentController) ToggleExpanded(rootID string) (CommentSnapshot, error) {
	c.mu.Lock()
	i := c.indexLocked(rootID)
	if i < 0 || !c.items[i].Comment.IsRoot() {
		c.mu.Unlock()
		return CommentSnapshot{}, models.NewNotFoundError("Comment", rootID)
	}
	open := !c.expanded[rootID]
	if open {
		c.expanded[rootID] = true
	} else {
		delete(c.expanded, rootID)
	}
	c.items[i].IsExpanded = open
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
	return snap, nil
}

// ToggleLike flips the viewer's like on commentID and confirms it in the
// background.
func (c *CommentController) ToggleLike(commentID string) (CommentSnapshot, error) {
	c.mu.Lock()
	i := c.indexLocked(commentID)
	if i < 0 {
		c.mu.Unlock()
		return CommentSnapshot{}, models.NewNotFoundError("Comment", commentID)
	}
	cm := &c.items[i]
	was := cm.IsLiked
	cm.IsLiked = !was
	if was {
		cm.Comment.LikeCount = floorZero(cm.Comment.LikeCount - 1)
	} else {
		cm.Comment.LikeCount++
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)

	c.async.run("toggle_comment_like", map[string]interface{}{"comment_id": commentID, "was": was},
		func(ctx context.Context) error {
			_, err := c.comments.ToggleLike(ctx, commentID, c.viewer, was)
			return err
		},
		nil,
		func(error) { c.reconcile("comment_like", NoticeCommentLikeFailed) },
	)
	return snap, nil
}

// Add writes a comment or reply and reloads the thread. A reply opens its
// root.
func (c *CommentController) Add(ctx context.Context, in CommentInput) (*models.Comment, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	cm, err := c.comments.Create(ctx, c.postID, c.viewer, in.Content, in.ParentID)
	if err != nil {
		return nil, err
	}
	if !cm.IsRoot() {
		c.mu.Lock()
		c.expanded[*cm.ParentCommentID] = true
		c.mu.Unlock()
	}
	if _, err := c.Load(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return cm, err
	}
	return cm, nil
}

type removedComment struct {
	at int
	c  models.CommentWithAuthor
}

// Delete removes commentID and its replies locally, then deletes the
// comment in the background. Once that succeeds each reply is deleted on a
// best-effort basis; a failed reply delete is logged and not shown. If the
// comment itself cannot be deleted everything removed comes back.
func (c *CommentController) Delete(commentID string) (CommentSnapshot, error) {
	c.mu.Lock()
	i := c.indexLocked(commentID)
	if i < 0 {
		c.mu.Unlock()
		return CommentSnapshot{}, models.NewNotFoundError("Comment", commentID)
	}
	if c.items[i].Comment.UserID != c.viewer {
		c.mu.Unlock()
		return CommentSnapshot{}, models.NewUnauthorizedError("only the author can delete a comment")
	}
	target := c.items[i].Comment

	var (
		removed []removedComment
		replies []string
		kept    = make([]models.CommentWithAuthor, 0, len(c.items))
	)
	for j, item := range c.items {
		isReply := !item.Comment.IsRoot() && *item.Comment.ParentCommentID == commentID
		switch {
		case item.Comment.ID == commentID:
			removed = append(removed, removedComment{at: j, c: item})
		case isReply:
			removed = append(removed, removedComment{at: j, c: item})
			replies = append(replies, item.Comment.ID)
		default:
			kept = append(kept, item)
		}
	}
	if !target.IsRoot() {
		for j := range kept {
			if kept[j].Comment.ID == *target.ParentCommentID {
				kept[j].ReplyCount = floorZero(kept[j].ReplyCount - 1)
			}
		}
	}
	c.items = kept
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)

	fields := map[string]interface{}{"comment_id": commentID, "post_id": c.postID, "replies": len(replies)}
	c.async.run("delete_comment", fields,
		func(ctx context.Context) error { return c.comments.Delete(ctx, commentID) },
		func() { c.deleteReplies(replies) },
		func(error) { c.restoreComments(target, removed) },
	)
	return snap, nil
}

func (c *CommentController) deleteReplies(ids []string) {
	for _, id := range ids {
		id := id
		c.async.run("delete_reply", map[string]interface{}{"comment_id": id},
			func(ctx context.Context) error { return c.comments.Delete(ctx, id) },
			nil, nil,
		)
	}
}

func (c *CommentController) restoreComments(target models.Comment, removed []removedComment) {
	observability.OptimisticReverts.WithLabelValues("comment_delete").Inc()
	c.mu.Lock()
	for _, r := range removed {
		if c.indexLocked(r.c.Comment.ID) >= 0 {
			continue
		}
		at := r.at
		if at > len(c.items) {
			at = len(c.items)
		}
		c.items = append(c.items[:at], append([]models.CommentWithAuthor{r.c}, c.items[at:]...)...)
	}
	if !target.IsRoot() {
		if j := c.indexLocked(*target.ParentCommentID); j >= 0 {
			c.items[j].ReplyCount++
		}
	}
	c.notice = NoticeCommentDeleteFailed
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
}

func (c *CommentController) DismissNotice() CommentSnapshot {
	c.mu.Lock()
	c.notice = ""
	snap := c.commitLocked()
	c.mu.Unlock()
	c.obs.publish(snap)
	return snap
}

func (c *CommentController) Wait() { c.async.wait() }

func (c *CommentController) Close() { c.async.close() }
