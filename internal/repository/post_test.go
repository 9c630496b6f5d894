package repository

import (
	"context"
	"testing"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_Create(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		content   string
		images    []string
		wantError bool
	}{
		{name: "text only", content: "  hello  "},
		{name: "images only", images: []string{"mem://a.jpg"}},
		{name: "blank", content: "   ", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := testutil.NewMemGateway()
			repo := NewPostRepository(g.Data, g.Storage)

			post, err := repo.Create(context.Background(), "u1", tt.content, tt.images)
			if tt.wantError {
				assert.True(t, models.IsValidation(err))
				assert.Zero(t, g.Data.CallCount("insert", ""))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, post.ID)
			assert.Equal(t, "u1", post.UserID)
			assert.Len(t, g.Data.Rows(gateway.TablePosts), 1)
			if tt.content != "" {
				assert.Equal(t, "hello", post.Content)
			}
		})
	}
}

func TestPostRepository_ListOrdersNewestFirst(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	g.Data.Put(gateway.TablePosts,
		models.Post{ID: "old", UserID: "u1", CreatedAt: base},
		models.Post{ID: "new", UserID: "u2", CreatedAt: base.Add(time.Minute)},
		models.Post{ID: "mid", UserID: "u1", CreatedAt: base.Add(time.Second)},
	)
	repo := NewPostRepository(g.Data, g.Storage)
	ctx := context.Background()

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := repo.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := repo.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 2, g.Data.CallCount("select", gateway.TablePosts))

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestPostRepository_DeleteRequiresAuthor(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	g.Data.Put(gateway.TablePosts, models.Post{ID: "p1", UserID: "u1"})
	repo := NewPostRepository(g.Data, g.Storage)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, "p1", "intruder"))
	assert.Len(t, g.Data.Rows(gateway.TablePosts), 1)

	require.NoError(t, repo.Delete(ctx, "p1", "u1"))
	assert.Empty(t, g.Data.Rows(gateway.TablePosts))
}

func TestPostRepository_UpdateContent(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	g.Data.Put(gateway.TablePosts, models.Post{ID: "p1", UserID: "u1", Content: "before"})
	repo := NewPostRepository(g.Data, g.Storage)

	require.NoError(t, repo.UpdateContent(context.Background(), "p1", "u1", " after "))
	post, err := repo.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "after", post.Content)
}

func TestPostRepository_ToggleLikeAndRepost(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	repo := NewPostRepository(g.Data, g.Storage)
	ctx := context.Background()

	liked, err := repo.ToggleLike(ctx, "p1", "u1", false)
	require.NoError(t, err)
	assert.True(t, liked)
	require.NoError(t, repo.Like(ctx, "p1", "u1"), "liking twice is not an error")

	likes, err := repo.LikesFor(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Len(t, likes, 1)

	liked, err = repo.ToggleLike(ctx, "p1", "u1", true)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Empty(t, g.Data.Rows(gateway.TableLikes))

	reposted, err := repo.ToggleRepost(ctx, "p1", "u1", false)
	require.NoError(t, err)
	assert.True(t, reposted)
	mine, err := repo.RepostsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "p1", mine[0].PostID)

	reposted, err = repo.ToggleRepost(ctx, "p1", "u1", true)
	require.NoError(t, err)
	assert.False(t, reposted)
	assert.Empty(t, g.Data.Rows(gateway.TableReposts))
}

func TestPostRepository_UploadImage(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	repo := NewPostRepository(g.Data, g.Storage).(*postRepository)
	repo.now = func() time.Time { return time.UnixMilli(42) }
	ctx := context.Background()

	url, err := repo.UploadImage(ctx, "u1", testutil.TinyPNG(t, 1600, 90), 0)
	require.NoError(t, err)
	assert.Equal(t, "mem://post_images/u1_42_0.jpg", url)

	_, err = repo.UploadImage(ctx, "u1", testutil.TinyPNG(t, 8, 8), 0)
	assert.True(t, models.IsConflict(err), "post images never overwrite")

	url, err = repo.UploadImage(ctx, "u1", testutil.TinyPNG(t, 8, 8), 1)
	require.NoError(t, err)
	assert.Equal(t, "mem://post_images/u1_42_1.jpg", url)
}
