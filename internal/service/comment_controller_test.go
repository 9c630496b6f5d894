package service

import (
	"context"
	"testing"

	"frzterr/internal/feed"
	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/repository"
	"frzterr/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCommentRepository is a mock of the CommentRepository interface.
type MockCommentRepository struct {
	mock.Mock
}

func (m *MockCommentRepository) ForPost(ctx context.Context, postID string) ([]models.Comment, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockCommentRepository) ForPosts(ctx context.Context, postIDs []string) ([]models.Comment, error) {
	args := m.Called(ctx, postIDs)
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentRepository) Create(ctx context.Context, postID, userID, content string, parentID *string) (*models.Comment, error) {
	args := m.Called(ctx, postID, userID, content, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentRepository) Delete(ctx context.Context, commentID string) error {
	args := m.Called(ctx, commentID)
	return args.Error(0)
}

func (m *MockCommentRepository) LikesFor(ctx context.Context, commentIDs []string) ([]models.CommentLike, error) {
	args := m.Called(ctx, commentIDs)
	return args.Get(0).([]models.CommentLike), args.Error(1)
}

func (m *MockCommentRepository) ToggleLike(ctx context.Context, commentID, userID string, currentlyLiked bool) (bool, error) {
	args := m.Called(ctx, commentID, userID, currentlyLiked)
	return args.Bool(0), args.Error(1)
}

// threadStub is a ThreadLoader returning a fixed thread.
type threadStub struct {
	threadFn func(ctx context.Context, viewerID, postID string, expanded map[string]bool) feed.CommentThread
}

func (s *threadStub) Thread(ctx context.Context, viewerID, postID string, expanded map[string]bool) feed.CommentThread {
	return s.threadFn(ctx, viewerID, postID, expanded)
}

func cwa(id, author, parent string) models.CommentWithAuthor {
	c := models.Comment{ID: id, PostID: "p1", UserID: author, Content: id}
	if parent != "" {
		c.ParentCommentID = &parent
	}
	return models.CommentWithAuthor{Comment: c, Author: models.User{ID: author, Username: author}}
}

// r1 by the viewer with three replies, then r2 by someone else.
func sampleThread() []models.CommentWithAuthor {
	r1 := cwa("r1", viewer, "")
	r1.ReplyCount = 3
	return []models.CommentWithAuthor{
		r1,
		cwa("a", "bob", "r1"),
		cwa("r2", "bob", ""),
		cwa("b", viewer, "r1"),
		cwa("c", "bob", "r1"),
	}
}

func newStubbedThread(t *testing.T, repo repository.CommentRepository) *CommentController {
	t.Helper()
	loader := &threadStub{threadFn: func(_ context.Context, _, postID string, _ map[string]bool) feed.CommentThread {
		return feed.CommentThread{PostID: postID, Comments: sampleThread()}
	}}
	ctl := NewCommentController(loader, repo, viewer, "p1")
	t.Cleanup(ctl.Close)
	_, err := ctl.Load(context.Background())
	require.NoError(t, err)
	return ctl
}

func commentIDs(cs []models.CommentWithAuthor) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Comment.ID
	}
	return out
}

func TestCommentController_DeleteCascade(t *testing.T) {
	t.Parallel()
	repo := new(MockCommentRepository)
	repo.On("Delete", mock.Anything, "r1").Return(nil).Once()
	repo.On("Delete", mock.Anything, "a").Return(nil).Once()
	repo.On("Delete", mock.Anything, "b").Return(errDown).Once()
	repo.On("Delete", mock.Anything, "c").Return(nil).Once()
	ctl := newStubbedThread(t, repo)

	snap, err := ctl.Delete("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, commentIDs(snap.Comments))

	ctl.Wait()
	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "Delete", 4)

	final := ctl.Snapshot()
	assert.Equal(t, []string{"r2"}, commentIDs(final.Comments))
	assert.Empty(t, final.Notice)
}

func TestCommentController_DeleteFailureRestores(t *testing.T) {
	t.Parallel()
	repo := new(MockCommentRepository)
	repo.On("Delete", mock.Anything, "r1").Return(errDown).Once()
	ctl := newStubbedThread(t, repo)

	_, err := ctl.Delete("r1")
	require.NoError(t, err)
	ctl.Wait()

	repo.AssertNumberOfCalls(t, "Delete", 1)
	final := ctl.Snapshot()
	assert.Equal(t, []string{"r1", "a", "r2", "b", "c"}, commentIDs(final.Comments))
	assert.Equal(t, NoticeCommentDeleteFailed, final.Notice)
}

func TestCommentController_DeleteReply(t *testing.T) {
	t.Parallel()
	repo := new(MockCommentRepository)
	repo.On("Delete", mock.Anything, "b").Return(nil).Once()
	ctl := newStubbedThread(t, repo)

	snap, err := ctl.Delete("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "a", "r2", "c"}, commentIDs(snap.Comments))
	assert.Equal(t, 2, snap.Comments[0].ReplyCount)

	ctl.Wait()
	repo.AssertNumberOfCalls(t, "Delete", 1)

	_, err = ctl.Delete("a")
	assert.Equal(t, models.CodeUnauthorized, models.CodeOf(err))
}

func TestCommentController_ToggleExpanded(t *testing.T) {
	t.Parallel()
	ctl := newStubbedThread(t, new(MockCommentRepository))

	assert.Equal(t, []string{"r1", "r2"}, commentIDs(ctl.Snapshot().Visible))

	snap, err := ctl.ToggleExpanded("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "a", "b", "c", "r2"}, commentIDs(snap.Visible))

	_, err = ctl.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ctl.Snapshot().Comments[0].IsExpanded)

	snap, err = ctl.ToggleExpanded("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, commentIDs(snap.Visible))

	_, err = ctl.ToggleExpanded("a")
	assert.True(t, models.IsNotFound(err))
}

func TestCommentController_ToggleLike(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		repo := new(MockCommentRepository)
		repo.On("ToggleLike", mock.Anything, "r2", viewer, false).Return(true, nil).Once()
		ctl := newStubbedThread(t, repo)

		snap, err := ctl.ToggleLike("r2")
		require.NoError(t, err)
		assert.True(t, snap.Comments[2].IsLiked)
		assert.Equal(t, 1, snap.Comments[2].Comment.LikeCount)
		ctl.Wait()
		repo.AssertExpectations(t)
	})

	t.Run("FailureReloads", func(t *testing.T) {
		t.Parallel()
		repo := new(MockCommentRepository)
		repo.On("ToggleLike", mock.Anything, "r2", viewer, false).Return(false, errDown).Once()
		ctl := newStubbedThread(t, repo)

		_, err := ctl.ToggleLike("r2")
		require.NoError(t, err)
		ctl.Wait()

		final := ctl.Snapshot()
		assert.False(t, final.Comments[2].IsLiked)
		assert.Equal(t, 0, final.Comments[2].Comment.LikeCount)
		assert.Equal(t, NoticeCommentLikeFailed, final.Notice)
	})
}

func TestCommentController_Add(t *testing.T) {
	t.Parallel()
	g := testutil.NewMemGateway()
	for _, id := range []string{viewer, "bob"} {
		g.Data.Put(gateway.TableUsers, models.User{ID: id, Username: id, UsernameLower: id})
	}
	g.Data.Put(gateway.TablePosts, models.Post{ID: "p1", UserID: "bob", Content: "hi", CreatedAt: t0})
	posts := repository.NewPostRepository(g.Data, g.Storage)
	comments := repository.NewCommentRepository(g.Data)
	agg := feed.NewAggregator(posts, comments, repository.NewUserRepository(g.Data, g.Storage, nil))
	ctl := NewCommentController(agg, comments, viewer, "p1")
	defer ctl.Close()
	ctx := context.Background()

	_, err := ctl.Add(ctx, CommentInput{Content: "  "})
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, 0, g.Data.CallCount("insert", ""))

	root, err := ctl.Add(ctx, CommentInput{Content: "first"})
	require.NoError(t, err)
	reply, err := ctl.Add(ctx, CommentInput{Content: "reply", ParentID: &root.ID})
	require.NoError(t, err)
	nested, err := ctl.Add(ctx, CommentInput{Content: "nested", ParentID: &reply.ID})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *nested.ParentCommentID)

	snap := ctl.Snapshot()
	assert.Equal(t, []string{root.ID, reply.ID, nested.ID}, commentIDs(snap.Visible))
	assert.True(t, snap.Visible[0].IsExpanded)
	assert.Equal(t, 2, snap.Visible[0].ReplyCount)
}
