package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/google/uuid"
)

// PostRepository defines persistence operations for posts and the like and
// repost rows that hang off them.
type PostRepository interface {
	ListAll(ctx context.Context) ([]models.Post, error)
	ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, authorID, content string, imageURLs []string) (*models.Post, error)
	UploadImage(ctx context.Context, userID string, data []byte, index int) (string, error)
	UpdateContent(ctx context.Context, postID, authorID, content string) error
	Delete(ctx context.Context, postID, authorID string) error

	LikesFor(ctx context.Context, postIDs []string) ([]models.Like, error)
	Like(ctx context.Context, postID, userID string) error
	Unlike(ctx context.Context, postID, userID string) error
	ToggleLike(ctx context.Context, postID, userID string, currentlyLiked bool) (bool, error)

	RepostsFor(ctx context.Context, postIDs []string) ([]models.Repost, error)
	RepostsByUser(ctx context.Context, userID string) ([]models.Repost, error)
	Repost(ctx context.Context, postID, userID string) error
	Unrepost(ctx context.Context, postID, userID string) error
	ToggleRepost(ctx context.Context, postID, userID string, currentlyReposted bool) (bool, error)
}

type postRepository struct {
	data    gateway.Data
	storage gateway.Storage
	now     func() time.Time
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(data gateway.Data, storage gateway.Storage) PostRepository {
	return &postRepository{data: data, storage: storage, now: time.Now}
}

func (r *postRepository) list(ctx context.Context, conds ...gateway.Condition) ([]models.Post, error) {
	var posts []models.Post
	q := gateway.Select(conds...).Order("created_at", true)
	if err := r.data.Select(ctx, gateway.TablePosts, q, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) ListAll(ctx context.Context) ([]models.Post, error) {
	return r.list(ctx)
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	return r.list(ctx, gateway.Eq("user_id", authorID))
}

func (r *postRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	return r.list(ctx, gateway.In("id", ids))
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	posts, err := r.list(ctx, gateway.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, models.NewNotFoundError("Post", id)
	}
	return &posts[0], nil
}

func (r *postRepository) Create(ctx context.Context, authorID, content string, imageURLs []string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(imageURLs) == 0 {
		return nil, models.NewValidationError("post needs text or at least one image")
	}
	if imageURLs == nil {
		imageURLs = []string{}
	}
	post := &models.Post{
		ID:        uuid.NewString(),
		UserID:    authorID,
		Content:   content,
		ImageURLs: imageURLs,
		CreatedAt: r.now().UTC(),
	}
	if err := r.data.Insert(ctx, gateway.TablePosts, post); err != nil {
		return nil, err
	}
	return post, nil
}

// UploadImage stores one post image and returns its public URL. index keeps
// names unique when several images are uploaded within the same millisecond.
func (r *postRepository) UploadImage(ctx context.Context, userID string, data []byte, index int) (string, error) {
	img, err := toJPEG(data, PostImageMaxSize)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s_%d_%d.jpg", userID, r.now().UnixMilli(), index)
	if err := r.storage.Upload(ctx, gateway.BucketPostImages, path, img, jpegContentType, false); err != nil {
		return "", err
	}
	return r.storage.PublicURL(gateway.BucketPostImages, path), nil
}

func (r *postRepository) UpdateContent(ctx context.Context, postID, authorID, content string) error {
	return r.data.Update(ctx, gateway.TablePosts,
		gateway.Where(gateway.Eq("id", postID), gateway.Eq("user_id", authorID)),
		map[string]any{"content": strings.TrimSpace(content)})
}

// Delete removes the post only when authorID wrote it.
func (r *postRepository) Delete(ctx context.Context, postID, authorID string) error {
	return r.data.Delete(ctx, gateway.TablePosts,
		gateway.Where(gateway.Eq("id", postID), gateway.Eq("user_id", authorID)))
}

func (r *postRepository) LikesFor(ctx context.Context, postIDs []string) ([]models.Like, error) {
	var likes []models.Like
	if err := r.data.Select(ctx, gateway.TableLikes, gateway.Select(gateway.In("post_id", postIDs)), &likes); err != nil {
		return nil, err
	}
	return likes, nil
}

// Like records the like. An existing like is not an error.
func (r *postRepository) Like(ctx context.Context, postID, userID string) error {
	err := r.data.Insert(ctx, gateway.TableLikes, &models.Like{PostID: postID, UserID: userID, CreatedAt: r.now().UTC()})
	if models.IsConflict(err) {
		return nil
	}
	return err
}

func (r *postRepository) Unlike(ctx context.Context, postID, userID string) error {
	return r.data.Delete(ctx, gateway.TableLikes,
		gateway.Where(gateway.Eq("post_id", postID), gateway.Eq("user_id", userID)))
}

// ToggleLike deletes the like if it exists, otherwise inserts it, and returns
// the new state.
func (r *postRepository) ToggleLike(ctx context.Context, postID, userID string, currentlyLiked bool) (bool, error) {
	if currentlyLiked {
		return false, r.Unlike(ctx, postID, userID)
	}
	return true, r.Like(ctx, postID, userID)
}

func (r *postRepository) RepostsFor(ctx context.Context, postIDs []string) ([]models.Repost, error) {
	var reposts []models.Repost
	if err := r.data.Select(ctx, gateway.TableReposts, gateway.Select(gateway.In("post_id", postIDs)), &reposts); err != nil {
		return nil, err
	}
	return reposts, nil
}

func (r *postRepository) RepostsByUser(ctx context.Context, userID string) ([]models.Repost, error) {
	var reposts []models.Repost
	q := gateway.Select(gateway.Eq("user_id", userID)).Order("created_at", true)
	if err := r.data.Select(ctx, gateway.TableReposts, q, &reposts); err != nil {
		return nil, err
	}
	return reposts, nil
}

func (r *postRepository) Repost(ctx context.Context, postID, userID string) error {
	err := r.data.Insert(ctx, gateway.TableReposts, &models.Repost{PostID: postID, UserID: userID, CreatedAt: r.now().UTC()})
	if models.IsConflict(err) {
		return nil
	}
	return err
}

func (r *postRepository) Unrepost(ctx context.Context, postID, userID string) error {
	return r.data.Delete(ctx, gateway.TableReposts,
		gateway.Where(gateway.Eq("post_id", postID), gateway.Eq("user_id", userID)))
}

func (r *postRepository) ToggleRepost(ctx context.Context, postID, userID string, currentlyReposted bool) (bool, error) {
	if currentlyReposted {
		return false, r.Unrepost(ctx, postID, userID)
	}
	return true, r.Repost(ctx, postID, userID)
}
