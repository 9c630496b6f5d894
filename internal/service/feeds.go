package service

import (
	"sync"

	"frzterr/internal/feed"
	"frzterr/internal/repository"
)

// Aggregation is what the controllers load from. *feed.Aggregator
// implements it.
type Aggregation interface {
	FeedLoader
	ThreadLoader
}

// Feeds keeps one FeedController per scope and one CommentController per
// post for the signed-in viewer. Reset swaps the viewer and closes every
// controller built for the previous one.
type Feeds struct {
	agg      Aggregation
	posts    repository.PostRepository
	comments repository.CommentRepository

	mu      sync.Mutex
	viewer  string
	feeds   map[feed.Scope]*FeedController
	threads map[string]*CommentController
}

func NewFeeds(agg Aggregation, posts repository.PostRepository, comments repository.CommentRepository) *Feeds {
	return &Feeds{
		agg:      agg,
		posts:    posts,
		comments: comments,
		feeds:    make(map[feed.Scope]*FeedController),
		threads:  make(map[string]*CommentController),
	}
}

// Viewer returns the current viewer id, "" when signed out.
func (f *Feeds) Viewer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewer
}

// Feed returns the controller for scope, creating it on first use.
func (f *Feeds) Feed(scope feed.Scope) *FeedController {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.feeds[scope]
	if !ok {
		c = NewFeedController(f.agg, f.posts, f.viewer, scope)
		f.feeds[scope] = c
	}
	return c
}

// Thread returns the comment controller for postID, creating it on first
// use.
func (f *Feeds) Thread(postID string) *CommentController {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.threads[postID]
	if !ok {
		c = NewCommentController(f.agg, f.comments, f.viewer, postID)
		f.threads[postID] = c
	}
	return c
}

// Reset closes every controller and starts over for viewerID.
func (f *Feeds) Reset(viewerID string) {
	f.mu.Lock()
	old := f.drainLocked()
	f.viewer = viewerID
	f.mu.Unlock()
	closeAll(old)
}

// Close closes every controller.
func (f *Feeds) Close() {
	f.mu.Lock()
	old := f.drainLocked()
	f.mu.Unlock()
	closeAll(old)
}

// Wait blocks until all background writes of all controllers are done.
func (f *Feeds) Wait() {
	f.mu.Lock()
	var all []interface{ Wait() }
	for _, c := range f.feeds {
		all = append(all, c)
	}
	for _, c := range f.threads {
		all = append(all, c)
	}
	f.mu.Unlock()
	for _, c := range all {
		c.Wait()
	}
}

func (f *Feeds) drainLocked() []interface{ Close() } {
	var out []interface{ Close() }
	for _, c := range f.feeds {
		out = append(out, c)
	}
	for _, c := range f.threads {
		out = append(out, c)
	}
	f.feeds = make(map[feed.Scope]*FeedController)
	f.threads = make(map[string]*CommentController)
	return out
}

func closeAll(cs []interface{ Close() }) {
	for _, c := range cs {
		c.Close()
	}
}
