package feed

import (
	"context"
	"testing"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) comment(id, author string, parent string, at time.Duration) {
	c := models.Comment{ID: id, PostID: "p1", UserID: author, Content: id, CreatedAt: t0.Add(at), LikeCount: 50}
	if parent != "" {
		c.ParentCommentID = models.StringPtr(parent)
	}
	f.g.Data.Put(gateway.TableComments, c)
}

func ids(cs []models.CommentWithAuthor) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Comment.ID
	}
	return out
}

func TestLoadThread(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.user("viewer")
	f.comment("r1", "alice", "", 0)
	f.comment("r2", "viewer", "", time.Minute)
	f.comment("r1a", "viewer", "r1", 2*time.Minute)
	f.comment("r1b", "alice", "r1", 3*time.Minute)
	f.comment("r2a", "ghost", "r2", 4*time.Minute)
	f.g.Data.Put(gateway.TableCommentLikes,
		models.CommentLike{CommentID: "r1", UserID: "viewer"},
		models.CommentLike{CommentID: "r1", UserID: "alice"},
	)

	thread, err := f.agg.LoadThread(context.Background(), "viewer", "p1", map[string]bool{"r1": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r1a", "r1b"}, ids(thread.Comments), "orphan reply dropped")

	roots := thread.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, 2, roots[0].ReplyCount)
	assert.Equal(t, 1, roots[1].ReplyCount)
	assert.Equal(t, 2, roots[0].Comment.LikeCount)
	assert.Zero(t, roots[1].Comment.LikeCount)
	assert.True(t, roots[0].IsLiked)
	assert.True(t, roots[0].IsExpanded)
	assert.False(t, roots[1].IsExpanded)

	assert.Equal(t, []string{"r1", "r1a", "r1b", "r2"}, ids(thread.Visible()))
	assert.Equal(t, []string{"r1a", "r1b"}, ids(thread.Replies("r1")))
}

func TestLoadThread_EmptyAndFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()

	thread := f.agg.Thread(context.Background(), "viewer", "p1", nil)
	assert.Empty(t, thread.Comments)
	assert.Zero(t, f.g.Data.CallCount("select", gateway.TableCommentLikes))

	f.user("alice")
	f.comment("r1", "alice", "", 0)
	f.g.Data.FailOn("select", gateway.TableCommentLikes, models.NewTransportError("select comment_likes", nil))
	thread = f.agg.Thread(context.Background(), "viewer", "p1", nil)
	assert.Equal(t, "p1", thread.PostID)
	assert.Empty(t, thread.Comments)
}

func TestThread_AuthorTransportFailureEmptiesThread(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.comment("r1", "alice", "", 0)
	f.g.Data.FailOn("select", gateway.TableUsers, models.NewTransportError("select users", nil))

	_, err := f.agg.LoadThread(context.Background(), "viewer", "p1", nil)
	require.Error(t, err)
	assert.True(t, models.IsTransport(err))

	thread := f.agg.Thread(context.Background(), "viewer", "p1", nil)
	assert.Empty(t, thread.Comments)
}
