package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/observability"

	"github.com/google/uuid"
)

// CommentRepository defines persistence operations for comments and their
// likes.
type CommentRepository interface {
	ForPost(ctx context.Context, postID string) ([]models.Comment, error)
	ForPosts(ctx context.Context, postIDs []string) ([]models.Comment, error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	Create(ctx context.Context, postID, userID, content string, parentID *string) (*models.Comment, error)
	Delete(ctx context.Context, commentID string) error
	LikesFor(ctx context.Context, commentIDs []string) ([]models.CommentLike, error)
	ToggleLike(ctx context.Context, commentID, userID string, currentlyLiked bool) (bool, error)
}

type commentRepository struct {
	data gateway.Data
	now  func() time.Time
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(data gateway.Data) CommentRepository {
	return &commentRepository{data: data, now: time.Now}
}

// ForPost returns the comments of postID, oldest first.
func (r *commentRepository) ForPost(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	q := gateway.Select(gateway.Eq("post_id", postID)).Order("created_at", false)
	if err := r.data.Select(ctx, gateway.TableComments, q, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ForPosts returns only id and post_id of the comments on postIDs, which is
// all a count needs.
func (r *commentRepository) ForPosts(ctx context.Context, postIDs []string) ([]models.Comment, error) {
	var comments []models.Comment
	q := gateway.Select(gateway.In("post_id", postIDs)).Project("id", "post_id")
	if err := r.data.Select(ctx, gateway.TableComments, q, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comments []models.Comment
	if err := r.data.Select(ctx, gateway.TableComments, gateway.Select(gateway.Eq("id", id)).Take(1), &comments); err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, models.NewNotFoundError("Comment", id)
	}
	return &comments[0], nil
}

// Create adds a comment. A reply to a reply is attached to the root so the
// tree never grows past one level.
func (r *commentRepository) Create(ctx context.Context, postID, userID, content string, parentID *string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("comment cannot be empty")
	}

	var parent *string
	if parentID != nil && *parentID != "" {
		p, err := r.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if p.PostID != postID {
			return nil, models.NewValidationError("parent comment belongs to another post")
		}
		root := p.ID
		if !p.IsRoot() {
			root = *p.ParentCommentID
		}
		parent = &root
	}

	c := &models.Comment{
		ID:              uuid.NewString(),
		PostID:          postID,
		UserID:          userID,
		Content:         content,
		CreatedAt:       r.now().UTC(),
		ParentCommentID: parent,
	}
	if err := r.data.Insert(ctx, gateway.TableComments, c); err != nil {
		return nil, err
	}
	r.bumpCommentCount(ctx, postID)
	return c, nil
}

// bumpCommentCount keeps the advisory counter roughly current. Feed reads
// recompute it, so failures are only logged.
func (r *commentRepository) bumpCommentCount(ctx context.Context, postID string) {
	var posts []models.Post
	q := gateway.Select(gateway.Eq("id", postID)).Project("id", "comment_count").Take(1)
	err := r.data.Select(ctx, gateway.TablePosts, q, &posts)
	if err == nil && len(posts) > 0 {
		err = r.data.Update(ctx, gateway.TablePosts, gateway.Where(gateway.Eq("id", postID)),
			map[string]any{"comment_count": posts[0].CommentCount + 1})
	}
	if err != nil {
		observability.GlobalLogger.WarnContext(ctx, "comment count update failed",
			slog.String("post_id", postID), slog.String("error", err.Error()))
	}
}

func (r *commentRepository) Delete(ctx context.Context, commentID string) error {
	return r.data.Delete(ctx, gateway.TableComments, gateway.Where(gateway.Eq("id", commentID)))
}

func (r *commentRepository) LikesFor(ctx context.Context, commentIDs []string) ([]models.CommentLike, error) {
	var likes []models.CommentLike
	if err := r.data.Select(ctx, gateway.TableCommentLikes, gateway.Select(gateway.In("comment_id", commentIDs)), &likes); err != nil {
		return nil, err
	}
	return likes, nil
}

func (r *commentRepository) ToggleLike(ctx context.Context, commentID, userID string, currentlyLiked bool) (bool, error) {
	if currentlyLiked {
		err := r.data.Delete(ctx, gateway.TableCommentLikes,
			gateway.Where(gateway.Eq("comment_id", commentID), gateway.Eq("user_id", userID)))
		return false, err
	}
	err := r.data.Insert(ctx, gateway.TableCommentLikes,
		&models.CommentLike{CommentID: commentID, UserID: userID, CreatedAt: r.now().UTC()})
	if models.IsConflict(err) {
		err = nil
	}
	return true, err
}
