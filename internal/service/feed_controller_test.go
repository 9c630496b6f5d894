package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"frzterr/internal/feed"
	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/repository"
	"frzterr/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewer = "me"

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

var errDown = models.NewTransportError("insert", errors.New("connection reset"))

type feedFixture struct {
	g     *testutil.MemGateway
	posts repository.PostRepository
	agg   *feed.Aggregator
	ctl   *FeedController
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	g := testutil.NewMemGateway()
	f := &feedFixture{
		g:     g,
		posts: repository.NewPostRepository(g.Data, g.Storage),
	}
	f.agg = feed.NewAggregator(f.posts, repository.NewCommentRepository(g.Data), repository.NewUserRepository(g.Data, g.Storage, nil))
	f.ctl = NewFeedController(f.agg, f.posts, viewer, feed.AllPosts())
	t.Cleanup(f.ctl.Close)
	for _, id := range []string{viewer, "bob"} {
		g.Data.Put(gateway.TableUsers, models.User{ID: id, Username: id, UsernameLower: id})
	}
	return f
}

func (f *feedFixture) post(id, author string, at time.Duration) {
	f.g.Data.Put(gateway.TablePosts, models.Post{ID: id, UserID: author, Content: "text " + id, CreatedAt: t0.Add(at)})
}

func (f *feedFixture) load(t *testing.T) FeedSnapshot {
	t.Helper()
	snap, err := f.ctl.Load(context.Background())
	require.NoError(t, err)
	return snap
}

func postIDs(s FeedSnapshot) []string {
	out := make([]string, len(s.Posts))
	for i, p := range s.Posts {
		out[i] = p.Post.ID
	}
	return out
}

func find(s FeedSnapshot, id string) *models.PostWithViewerState {
	for i := range s.Posts {
		if s.Posts[i].Post.ID == id {
			return &s.Posts[i]
		}
	}
	return nil
}

// loaderStub is a FeedLoader backed by a func.
type loaderStub struct {
	postsFn func(ctx context.Context, viewerID string, scope feed.Scope) []models.PostWithViewerState
}

func (s *loaderStub) Posts(ctx context.Context, viewerID string, scope feed.Scope) []models.PostWithViewerState {
	return s.postsFn(ctx, viewerID, scope)
}

func TestFeedController_ToggleLikePublishesBeforeWrite(t *testing.T) {
	t.Parallel()
	f := newFeedFixture(t)
	f.post("p1", "bob", 0)
	f.load(t)

	release := make(chan struct{})
	f.g.Data.Hook = func(ctx context.Context, c testutil.Call) error {
		if c.Op == "insert" && c.Table == gateway.TableLikes {
			<-release
		}
		return nil
	}

	var published []FeedSnapshot
	var mu sync.Mutex
	cancel := f.ctl.Subscribe(func(s FeedSnapshot) {
		mu.Lock()
		published = append(published, s)
		mu.Unlock()
	})
	defer cancel()

	snap, err := f.ctl.ToggleLike("p1")
	require.NoError(t, err)
	assert.True(t, snap.Posts[0].IsLiked)
	assert.Equal(t, 1, snap.Posts[0].Post.LikeCount)

	mu.Lock()
	require.Len(t, published, 1)
	assert.True(t, published[0].Posts[0].IsLiked)
	mu.Unlock()
	assert.Empty(t, f.g.Data.Rows(gateway.TableLikes))

	close(release)
	f.ctl.Wait()
	assert.Len(t, f.g.Data.Rows(gateway.TableLikes), 1)
	assert.Empty(t, f.ctl.Snapshot().Notice)
}

func TestFeedController_ToggleFailureReconciles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		table  string
		toggle func(*FeedController, string) (FeedSnapshot, error)
		flag   func(*models.PostWithViewerState) (bool, int)
		notice string
	}{
		{
			name:   "Like",
			table:  gateway.TableLikes,
			toggle: (*FeedController).ToggleLike,
			flag:   func(p *models.PostWithViewerState) (bool, int) { return p.IsLiked, p.Post.LikeCount },
			notice: NoticeLikeFailed,
		},
		{
			name:   "Repost",
			table:  gateway.TableReposts,
			toggle: (*FeedController).ToggleRepost,
			flag:   func(p *models.PostWithViewerState) (bool, int) { return p.IsReposted, p.Post.RepostCount },
			notice: NoticeRepostFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFeedFixture(t)
			f.post("p1", "bob", 0)
			f.load(t)
			f.g.Data.FailOn("insert", tt.table, errDown)

			snap, err := tt.toggle(f.ctl, "p1")
			require.NoError(t, err)
			on, n := tt.flag(&snap.Posts[0])
			assert.True(t, on)
			assert.Equal(t, 1, n)

			f.ctl.Wait()
			final := f.ctl.Snapshot()
			on, n = tt.flag(find(final, "p1"))
			assert.False(t, on)
			assert.Equal(t, 0, n)
			assert.Equal(t, tt.notice, final.Notice)
			assert.Greater(t, final.Version, snap.Version)
		})
	}
}

func TestFeedController_ToggleTwiceEachConfirms(t *testing.T) {
	t.Parallel()
	f := newFeedFixture(t)
	f.post("p1", "bob", 0)
	f.load(t)

	first, err := f.ctl.ToggleLike("p1")
	require.NoError(t, err)
	f.ctl.Wait()
	second, err := f.ctl.ToggleLike("p1")
	require.NoError(t, err)
	f.ctl.Wait()

	assert.True(t, first.Posts[0].IsLiked)
	assert.False(t, second.Posts[0].IsLiked)
	assert.Equal(t, 0, second.Posts[0].Post.LikeCount)
	assert.Empty(t, f.g.Data.Rows(gateway.TableLikes))
	assert.Equal(t, 1, f.g.Data.CallCount("insert", gateway.TableLikes))
	assert.Equal(t, 1, f.g.Data.CallCount("delete", gateway.TableLikes))
}

func TestFeedController_CountNeverNegative(t *testing.T) {
	t.Parallel()
	loader := &loaderStub{postsFn: func(context.Context, string, feed.Scope) []models.PostWithViewerState {
		return []models.PostWithViewerState{{
			Post:       models.Post{ID: "p1", UserID: "bob"},
			IsLiked:    true,
			IsReposted: true,
		}}
	}}
	g := testutil.NewMemGateway()
	ctl := NewFeedController(loader, repository.NewPostRepository(g.Data, g.Storage), viewer, feed.AllPosts())
	defer ctl.Close()
	_, err := ctl.Load(context.Background())
	require.NoError(t, err)

	snap, err := ctl.ToggleLike("p1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Posts[0].Post.LikeCount)
	snap, err = ctl.ToggleRepost("p1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Posts[0].Post.RepostCount)
}

func TestFeedController_UnknownPost(t *testing.T) {
	t.Parallel()
	f := newFeedFixture(t)
	_, err := f.ctl.ToggleLike("missing")
	assert.True(t, models.IsNotFound(err))
	_, err = f.ctl.Delete("missing")
	assert.True(t, models.IsNotFound(err))
	_, err = f.ctl.Edit("missing", "x")
	assert.True(t, models.IsNotFound(err))
}

func TestFeedController_Delete(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", viewer, 0)
		f.post("p2", viewer, time.Minute)
		f.load(t)

		snap, err := f.ctl.Delete("p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, postIDs(snap))
		f.ctl.Wait()
		assert.Len(t, f.g.Data.Rows(gateway.TablePosts), 1)
		assert.Empty(t, f.ctl.Snapshot().Notice)
	})

	t.Run("FailureRestoresPosition", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", viewer, 0)
		f.post("p2", viewer, time.Minute)
		f.post("p3", viewer, 2*time.Minute)
		f.load(t)
		f.g.Data.FailOn("delete", gateway.TablePosts, errDown)

		snap, err := f.ctl.Delete("p2")
		require.NoError(t, err)
		assert.Equal(t, []string{"p3", "p1"}, postIDs(snap))

		f.ctl.Wait()
		final := f.ctl.Snapshot()
		assert.Equal(t, []string{"p3", "p2", "p1"}, postIDs(final))
		assert.Equal(t, NoticeDeleteFailed, final.Notice)
	})

	t.Run("OthersPost", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", "bob", 0)
		f.load(t)

		_, err := f.ctl.Delete("p1")
		assert.Equal(t, models.CodeUnauthorized, models.CodeOf(err))
		assert.Len(t, f.ctl.Snapshot().Posts, 1)
	})
}

func TestFeedController_Edit(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", viewer, 0)
		f.load(t)

		snap, err := f.ctl.Edit("p1", "  edited  ")
		require.NoError(t, err)
		assert.Equal(t, "edited", snap.Posts[0].Post.Content)
		f.ctl.Wait()
		assert.Equal(t, "edited", f.g.Data.Rows(gateway.TablePosts)[0]["content"])
	})

	t.Run("FailureReverts", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", viewer, 0)
		f.load(t)
		f.g.Data.FailOn("update", gateway.TablePosts, errDown)

		_, err := f.ctl.Edit("p1", "edited")
		require.NoError(t, err)
		f.ctl.Wait()
		final := f.ctl.Snapshot()
		assert.Equal(t, "text p1", final.Posts[0].Post.Content)
		assert.Equal(t, NoticeEditFailed, final.Notice)
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.post("p1", viewer, 0)
		f.load(t)

		_, err := f.ctl.Edit("p1", "   ")
		assert.True(t, models.IsValidation(err))
		assert.Equal(t, 0, f.g.Data.CallCount("update", ""))
	})
}

func TestFeedController_HideSurvivesReload(t *testing.T) {
	t.Parallel()
	f := newFeedFixture(t)
	f.post("p1", "bob", 0)
	f.post("p2", "bob", time.Minute)
	f.load(t)

	snap := f.ctl.Hide("p2")
	assert.Equal(t, []string{"p1"}, postIDs(snap))
	assert.Equal(t, []string{"p1"}, postIDs(f.load(t)))
	assert.Equal(t, 0, f.g.Data.CallCount("delete", ""))
}

func TestFeedController_LoadSupersession(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	entered := make(chan struct{})
	loader := &loaderStub{postsFn: func(ctx context.Context, _ string, _ feed.Scope) []models.PostWithViewerState {
		if calls.Add(1) == 1 {
			close(entered)
			<-ctx.Done()
			return []models.PostWithViewerState{{Post: models.Post{ID: "stale"}}}
		}
		return []models.PostWithViewerState{{Post: models.Post{ID: "fresh"}}}
	}}
	g := testutil.NewMemGateway()
	ctl := NewFeedController(loader, repository.NewPostRepository(g.Data, g.Storage), viewer, feed.AllPosts())
	defer ctl.Close()

	firstErr := make(chan error, 1)
	go func() {
		_, err := ctl.Load(context.Background())
		firstErr <- err
	}()
	<-entered

	snap, err := ctl.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, postIDs(snap))
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.Equal(t, []string{"fresh"}, postIDs(ctl.Snapshot()))
}

func TestFeedController_Publish(t *testing.T) {
	t.Parallel()

	t.Run("WithImages", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		img := testutil.TinyPNG(t, 4, 4)

		post, err := f.ctl.Publish(context.Background(), CreatePostInput{Content: "hello", Images: [][]byte{img, img}})
		require.NoError(t, err)
		require.Len(t, post.ImageURLs, 2)
		assert.NotEqual(t, post.ImageURLs[0], post.ImageURLs[1])
		assert.Len(t, f.g.Storage.Keys(), 2)
		assert.Equal(t, []string{post.ID}, postIDs(f.ctl.Snapshot()))
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		_, err := f.ctl.Publish(context.Background(), CreatePostInput{Content: "  "})
		assert.True(t, models.IsValidation(err))
		assert.Equal(t, 0, f.g.Data.CallCount("insert", ""))
	})

	t.Run("UploadFails", func(t *testing.T) {
		t.Parallel()
		f := newFeedFixture(t)
		f.g.Storage.Err = errDown
		_, err := f.ctl.Publish(context.Background(), CreatePostInput{Images: [][]byte{testutil.TinyPNG(t, 2, 2)}})
		assert.True(t, models.IsTransport(err))
		assert.Equal(t, 0, f.g.Data.CallCount("insert", ""))
	})
}

func TestFeedController_SubscribeCancel(t *testing.T) {
	t.Parallel()
	f := newFeedFixture(t)
	f.post("p1", "bob", 0)

	var n atomic.Int32
	cancel := f.ctl.Subscribe(func(FeedSnapshot) { n.Add(1) })
	f.load(t)
	cancel()
	f.load(t)
	assert.Equal(t, int32(1), n.Load())
}

func TestFeeds_ResetClosesControllers(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	posts := repository.NewPostRepository(g.Data, g.Storage)
	comments := repository.NewCommentRepository(g.Data)
	agg := feed.NewAggregator(posts, comments, repository.NewUserRepository(g.Data, g.Storage, nil))
	hub := NewFeeds(agg, posts, comments)
	defer hub.Close()

	hub.Reset("alice")
	home := hub.Feed(feed.AllPosts())
	assert.Same(t, home, hub.Feed(feed.AllPosts()))
	assert.NotSame(t, home, hub.Feed(feed.ByAuthor("alice")))
	thread := hub.Thread("p1")
	assert.Same(t, thread, hub.Thread("p1"))

	hub.Reset("bob")
	assert.Equal(t, "bob", hub.Viewer())
	assert.True(t, home.async.closed())
	assert.True(t, thread.async.closed())
	assert.NotSame(t, home, hub.Feed(feed.AllPosts()))
}
