package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/repository"
	"frzterr/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	g     *testutil.MemGateway
	posts repository.PostRepository
	users repository.UserRepository
	agg   *Aggregator
}

func newFixture() *fixture {
	g := testutil.NewMemGateway()
	f := &fixture{
		g:     g,
		posts: repository.NewPostRepository(g.Data, g.Storage),
		users: repository.NewUserRepository(g.Data, g.Storage, nil),
	}
	f.agg = NewAggregator(f.posts, repository.NewCommentRepository(g.Data), f.users)
	return f
}

func (f *fixture) user(id string) {
	f.g.Data.Put(gateway.TableUsers, models.User{ID: id, Username: id, UsernameLower: id})
}

func (f *fixture) post(id, author string, at time.Duration) {
	// stored counters are deliberately wrong
	f.g.Data.Put(gateway.TablePosts, models.Post{
		ID: id, UserID: author, Content: id, CreatedAt: t0.Add(at),
		LikeCount: 99, CommentCount: 99, RepostCount: 99,
	})
}

// postsStub overrides single PostRepository methods.
type postsStub struct {
	repository.PostRepository
	listAll func(ctx context.Context) ([]models.Post, error)
}

func (s postsStub) ListAll(ctx context.Context) ([]models.Post, error) {
	return s.listAll(ctx)
}

type usersStub struct {
	repository.UserRepository
	getByID func(ctx context.Context, id string) (*models.User, error)
}

func (s usersStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getByID(ctx, id)
}

func TestLoadPosts_RecomputesCountsAndFlags(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("viewer")
	f.user("alice")
	f.post("p1", "alice", 0)
	f.post("p2", "viewer", time.Minute)
	f.post("p3", "alice", 2*time.Minute)
	f.g.Data.Put(gateway.TableLikes,
		models.Like{PostID: "p1", UserID: "viewer"},
		models.Like{PostID: "p1", UserID: "alice"},
		models.Like{PostID: "p2", UserID: "alice"},
	)
	f.g.Data.Put(gateway.TableReposts, models.Repost{PostID: "p3", UserID: "viewer"})
	f.g.Data.Put(gateway.TableComments,
		models.Comment{ID: "c1", PostID: "p1", UserID: "alice", Content: "x"},
		models.Comment{ID: "c2", PostID: "p1", UserID: "viewer", Content: "y"},
		models.Comment{ID: "c3", PostID: "p2", UserID: "alice", Content: "z"},
	)

	got, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	require.NoError(t, err)
	require.Len(t, got, 3)

	byID := map[string]models.PostWithViewerState{}
	for _, p := range got {
		byID[p.Post.ID] = p
	}
	tests := []struct {
		id                       string
		likes, comments, reposts int
		liked, reposted          bool
		author                   string
	}{
		{"p1", 2, 2, 0, true, false, "alice"},
		{"p2", 1, 1, 0, false, false, "viewer"},
		{"p3", 0, 0, 1, false, true, "alice"},
	}
	for _, tt := range tests {
		p := byID[tt.id]
		assert.Equal(t, tt.likes, p.Post.LikeCount, tt.id)
		assert.Equal(t, tt.comments, p.Post.CommentCount, tt.id)
		assert.Equal(t, tt.reposts, p.Post.RepostCount, tt.id)
		assert.Equal(t, tt.liked, p.IsLiked, tt.id)
		assert.Equal(t, tt.reposted, p.IsReposted, tt.id)
		assert.Equal(t, tt.author, p.Author.ID, tt.id)
	}
}

func TestLoadPosts_EmptyScopeShortCircuits(t *testing.T) {
	t.Parallel()
	f := newFixture()

	got := f.agg.Posts(context.Background(), "viewer", AllPosts())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	for _, table := range []string{gateway.TableLikes, gateway.TableComments, gateway.TableReposts, gateway.TableUsers} {
		assert.Zero(t, f.g.Data.CallCount("select", table), table)
	}
	assert.Equal(t, 1, f.g.Data.CallCount("select", gateway.TablePosts))
}

func TestLoadPosts_DropsOrphans(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.post("p1", "alice", 0)
	f.post("p2", "ghost", time.Minute)

	got, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Post.ID)
}

func TestLoadPosts_AuthorLookedUpOnce(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		f.post(id, "alice", time.Duration(i)*time.Second)
	}

	_, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	require.NoError(t, err)
	assert.Equal(t, 1, f.g.Data.CallCount("select", gateway.TableUsers))
}

func TestLoadPosts_AuthorTransportFailureEmptiesFeed(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.user("bob")
	f.post("p1", "alice", 0)
	f.post("p2", "bob", time.Minute)
	boom := models.NewTransportError("select users", errors.New("timeout"))
	f.agg.users = usersStub{
		UserRepository: f.users,
		getByID: func(ctx context.Context, id string) (*models.User, error) {
			if id == "bob" {
				return nil, boom
			}
			return f.users.GetByID(ctx, id)
		},
	}

	_, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	assert.ErrorIs(t, err, boom)

	got := f.agg.Posts(context.Background(), "viewer", AllPosts())
	assert.Empty(t, got)
}

func TestLoadPosts_SortsNewestFirst(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.agg.posts = postsStub{
		PostRepository: f.posts,
		listAll: func(context.Context) ([]models.Post, error) {
			return []models.Post{
				{ID: "mid", UserID: "alice", CreatedAt: t0.Add(time.Hour)},
				{ID: "old", UserID: "alice", CreatedAt: t0},
				{ID: "new", UserID: "alice", CreatedAt: t0.Add(2 * time.Hour)},
				{ID: "mid2", UserID: "alice", CreatedAt: t0.Add(time.Hour)},
			}, nil
		},
	}

	got, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.Post.ID
	}
	assert.Equal(t, []string{"new", "mid", "mid2", "old"}, ids)
}

func TestLoadPosts_Scopes(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.user("bob")
	f.post("a1", "alice", 0)
	f.post("b1", "bob", time.Minute)
	f.post("b2", "bob", 2*time.Minute)
	f.g.Data.Put(gateway.TableReposts,
		models.Repost{PostID: "b1", UserID: "alice"},
		models.Repost{PostID: "a1", UserID: "alice"},
	)
	ctx := context.Background()

	tests := []struct {
		name  string
		scope Scope
		want  []string
	}{
		{"all", AllPosts(), []string{"b2", "b1", "a1"}},
		{"author", ByAuthor("bob"), []string{"b2", "b1"}},
		{"reposts", RepostedBy("alice"), []string{"b1", "a1"}},
		{"no reposts", RepostedBy("bob"), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.agg.LoadPosts(ctx, "alice", tt.scope)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.Post.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestPosts_SwallowsFailures(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.user("alice")
	f.post("p1", "alice", 0)
	boom := models.NewTransportError("select likes", errors.New("offline"))
	f.g.Data.FailOn("select", gateway.TableLikes, boom)

	_, err := f.agg.LoadPosts(context.Background(), "viewer", AllPosts())
	assert.ErrorIs(t, err, boom)

	got := f.agg.Posts(context.Background(), "viewer", AllPosts())
	assert.Empty(t, got)
}

func TestScopeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "all", AllPosts().String())
	assert.Equal(t, "author", ByAuthor("u").String())
	assert.Equal(t, "reposts", RepostedBy("u").String())
	assert.Equal(t, AllPosts(), Scope{})
}
