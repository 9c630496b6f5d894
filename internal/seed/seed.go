// Package seed fills a self-hosted database with demo accounts, posts and
// the reactions between them. It is meant for development and tests only.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"frzterr/internal/gateway"
	"frzterr/internal/gateway/sqlstore"
	"frzterr/internal/middleware"
	"frzterr/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers    int
	NumPosts    int
	MaxDays     int
	MaxImages   int
	Password    string
	Secret      string
	RandSeed    int64
	ShouldClean bool
}

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

func (o Options) withDefaults() Options {
	if o.MaxDays <= 0 {
		o.MaxDays = 90
	}
	if o.MaxImages <= 0 {
		o.MaxImages = 4
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.Secret == "" {
		o.Secret = "seed"
	}
	return o
}

// Summary counts the rows a run created.
type Summary struct {
	Users        int
	Posts        int
	Comments     int
	Likes        int
	Reposts      int
	CommentLikes int
	Follows      int
}

// content holds everything a run writes besides the identities.
type content struct {
	follows      []models.Follow
	posts        []models.Post
	likes        []models.Like
	reposts      []models.Repost
	comments     []models.Comment
	commentLikes []models.CommentLike
}

// Seed populates db. Accounts are created through the local identity
// service so they can sign in with opts.Password.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	log := middleware.Logger.With(slog.String("component", "seed"))
	log.InfoContext(ctx, "Seeding database", slog.Int("users", opts.NumUsers), slog.Int("posts", opts.NumPosts))

	if opts.ShouldClean {
		if err := Clean(ctx, db); err != nil {
			return nil, err
		}
	}

	f := NewFactory(opts)
	users, err := createUsers(ctx, db, f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}
	log.InfoContext(ctx, "Users created", slog.Int("count", len(users)))

	c := f.buildContent(users, opts.NumPosts)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batches := []struct {
			name string
			rows any
			n    int
		}{
			{"follows", c.follows, len(c.follows)},
			{"posts", c.posts, len(c.posts)},
			{"likes", c.likes, len(c.likes)},
			{"reposts", c.reposts, len(c.reposts)},
			{"comments", c.comments, len(c.comments)},
			{"comment likes", c.commentLikes, len(c.commentLikes)},
		}
		for _, b := range batches {
			if b.n == 0 {
				continue
			}
			if err := tx.CreateInBatches(b.rows, 100).Error; err != nil {
				return fmt.Errorf("failed to create %s: %w", b.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Users:        len(users),
		Posts:        len(c.posts),
		Comments:     len(c.comments),
		Likes:        len(c.likes),
		Reposts:      len(c.reposts),
		CommentLikes: len(c.commentLikes),
		Follows:      len(c.follows),
	}
	log.InfoContext(ctx, "Seeding complete",
		slog.Int("posts", s.Posts),
		slog.Int("comments", s.Comments),
		slog.Int("likes", s.Likes),
		slog.Int("follows", s.Follows),
	)
	return s, nil
}

func createUsers(ctx context.Context, db *gorm.DB, f *Factory, opts Options) ([]models.User, error) {
	auth, err := sqlstore.NewAuth(db, opts.Secret, nil)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, opts.NumUsers)
	for i := range opts.NumUsers {
		u := f.BuildUser(i + 1)
		sess, err := auth.SignUp(ctx, models.Deref(u.Email), opts.Password, gateway.UserMetadata{FullName: u.FullName})
		if err != nil {
			return nil, err
		}
		u.ID = sess.User.ID
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// buildContent spreads n posts over users and decorates them with follows,
// reactions and comment threads. Post counters match the generated rows.
func (f *Factory) buildContent(users []models.User, n int) content {
	var c content
	if len(users) == 0 {
		return c
	}

	for _, u := range users {
		for _, other := range f.pick(users, f.faker.Number(0, len(users)-1), u.ID) {
			c.follows = append(c.follows, models.Follow{FollowerID: u.ID, FollowingID: other.ID, CreatedAt: f.createdAt(u.CreatedAt)})
		}
	}

	for range n {
		author := users[f.faker.Number(0, len(users)-1)]
		p := f.BuildPost(author)

		for _, u := range f.pick(users, f.faker.Number(0, len(users)), "") {
			c.likes = append(c.likes, models.Like{PostID: p.ID, UserID: u.ID, CreatedAt: f.createdAt(p.CreatedAt)})
			p.LikeCount++
		}
		for _, u := range f.pick(users, f.faker.Number(0, len(users)/3), author.ID) {
			c.reposts = append(c.reposts, models.Repost{PostID: p.ID, UserID: u.ID, CreatedAt: f.createdAt(p.CreatedAt)})
			p.RepostCount++
		}

		for range f.faker.Number(0, 3) {
			root := f.BuildComment(p, users[f.faker.Number(0, len(users)-1)], nil)
			thread := []models.Comment{root}
			for range f.faker.Number(0, 2) {
				thread = append(thread, f.BuildComment(p, users[f.faker.Number(0, len(users)-1)], &root))
			}
			for i := range thread {
				for _, u := range f.pick(users, f.faker.Number(0, 2), "") {
					c.commentLikes = append(c.commentLikes, models.CommentLike{CommentID: thread[i].ID, UserID: u.ID, CreatedAt: f.createdAt(thread[i].CreatedAt)})
					thread[i].LikeCount++
				}
			}
			c.comments = append(c.comments, thread...)
			p.CommentCount += len(thread)
		}

		c.posts = append(c.posts, p)
	}
	return c
}

// Clean removes every row the seeder writes, children first.
func Clean(ctx context.Context, db *gorm.DB) error {
	tables := []string{
		gateway.TableCommentLikes,
		gateway.TableComments,
		gateway.TableLikes,
		gateway.TableReposts,
		gateway.TablePosts,
		gateway.TableFollows,
		gateway.TableUsers,
		"auth_identities",
	}
	for _, table := range tables {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	middleware.Logger.InfoContext(ctx, "Cleared seeded tables", slog.Int("tables", len(tables)))
	return nil
}
