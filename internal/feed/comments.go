package feed

import (
	"context"
	"log/slog"

	"frzterr/internal/models"
	"frzterr/internal/observability"
)

// CommentThread is the comments of one post, oldest first, roots and replies
// interleaved as stored.
type CommentThread struct {
	PostID   string
	Comments []models.CommentWithAuthor
}

// Roots returns the top-level comments.
func (t CommentThread) Roots() []models.CommentWithAuthor {
	out := make([]models.CommentWithAuthor, 0, len(t.Comments))
	for _, c := range t.Comments {
		if c.Comment.IsRoot() {
			out = append(out, c)
		}
	}
	return out
}

// Replies returns the replies to rootID.
func (t CommentThread) Replies(rootID string) []models.CommentWithAuthor {
	var out []models.CommentWithAuthor
	for _, c := range t.Comments {
		if !c.Comment.IsRoot() && *c.Comment.ParentCommentID == rootID {
			out = append(out, c)
		}
	}
	return out
}

// Visible returns what the thread renders: every root, followed by its
// replies when the root is expanded.
func (t CommentThread) Visible() []models.CommentWithAuthor {
	out := make([]models.CommentWithAuthor, 0, len(t.Comments))
	for _, root := range t.Roots() {
		out = append(out, root)
		if root.IsExpanded {
			out = append(out, t.Replies(root.Comment.ID)...)
		}
	}
	return out
}

// Thread is LoadThread with failures logged and swallowed into an empty
// thread.
func (a *Aggregator) Thread(ctx context.Context, viewerID, postID string, expanded map[string]bool) CommentThread {
	t, err := a.LoadThread(ctx, viewerID, postID, expanded)
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "comment aggregation failed",
			slog.String("post_id", postID), slog.String("error", err.Error()))
		return CommentThread{PostID: postID, Comments: []models.CommentWithAuthor{}}
	}
	return t
}

// LoadThread fetches the comments of postID with authors, recomputed like
// counts, the viewer's like flags and per-root reply counts. expanded holds
// the root ids the viewer opened.
func (a *Aggregator) LoadThread(ctx context.Context, viewerID, postID string, expanded map[string]bool) (CommentThread, error) {
	thread := CommentThread{PostID: postID, Comments: []models.CommentWithAuthor{}}

	comments, err := a.comments.ForPost(ctx, postID)
	if err != nil {
		return thread, err
	}
	if len(comments) == 0 {
		return thread, nil
	}

	ids := distinct(len(comments), func(i int) string { return comments[i].ID })
	likes, err := a.comments.LikesFor(ctx, ids)
	if err != nil {
		return thread, err
	}
	likeCount := make(map[string]int, len(ids))
	liked := make(map[string]bool)
	for _, l := range likes {
		likeCount[l.CommentID]++
		if l.UserID == viewerID {
			liked[l.CommentID] = true
		}
	}
	replyCount := make(map[string]int)
	for _, c := range comments {
		if !c.IsRoot() {
			replyCount[*c.ParentCommentID]++
		}
	}

	authors, err := a.authors(ctx, distinct(len(comments), func(i int) string { return comments[i].UserID }))
	if err != nil {
		return thread, err
	}

	for _, c := range comments {
		author, ok := authors[c.UserID]
		if !ok {
			continue
		}
		c.LikeCount = likeCount[c.ID]
		thread.Comments = append(thread.Comments, models.CommentWithAuthor{
			Comment:    c,
			Author:     author,
			IsLiked:    liked[c.ID],
			ReplyCount: replyCount[c.ID],
			IsExpanded: c.IsRoot() && expanded[c.ID],
		})
	}
	return thread, nil
}
