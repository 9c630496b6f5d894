// Package feed combines independently fetched rows into the denormalized
// views the client renders: posts with author, counts and viewer flags, and
// comment threads with one level of replies.
package feed

// Kind selects which posts a feed shows.
type Kind int

const (
	KindAll Kind = iota
	KindAuthor
	KindReposts
)

// Scope is a feed selection. The zero value is the global feed.
type Scope struct {
	Kind   Kind
	UserID string
}

// AllPosts is every post.
func AllPosts() Scope { return Scope{Kind: KindAll} }

// ByAuthor is the posts written by userID.
func ByAuthor(userID string) Scope { return Scope{Kind: KindAuthor, UserID: userID} }

// RepostedBy is the posts userID reposted.
func RepostedBy(userID string) Scope { return Scope{Kind: KindReposts, UserID: userID} }

// String returns the metrics label of the scope kind.
func (s Scope) String() string {
	switch s.Kind {
	case KindAuthor:
		return "author"
	case KindReposts:
		return "reposts"
	default:
		return "all"
	}
}
