package seed

import (
	"fmt"
	"strings"
	"time"

	"frzterr/internal/models"
	"frzterr/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Factory builds demo entities. It never touches the database, so seed
// presets and tests can build rows and persist them however they like.
type Factory struct {
	faker *gofakeit.Faker
	opts  Options
	now   func() time.Time
}

// NewFactory creates a Factory. A zero opts.RandSeed draws a random seed.
func NewFactory(opts Options) *Factory {
	return &Factory{
		faker: gofakeit.New(opts.RandSeed),
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// BuildUser returns a profile row for the i-th demo account. i keeps the
// username and email unique across one run.
func (f *Factory) BuildUser(i int) models.User {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	fullName := first + " " + last

	base := repository.SanitizeUsername(first + "_" + last)
	suffix := fmt.Sprintf("_%d", i)
	if len(base)+len(suffix) > 20 {
		base = base[:20-len(suffix)]
	}
	username := base + suffix

	email := fmt.Sprintf("%s@example.com", strings.ReplaceAll(username, "_", "."))
	bio := f.faker.HipsterSentence(8)
	if len(bio) > 160 {
		bio = bio[:160]
	}

	return models.User{
		FullName:      &fullName,
		Email:         &email,
		Provider:      models.StringPtr("email"),
		Username:      username,
		UsernameLower: username,
		Bio:           &bio,
		CreatedAt:     f.createdAt(time.Time{}),
	}
}

// BuildPost returns a post by author with zero to opts.MaxImages images.
func (f *Factory) BuildPost(author models.User) models.Post {
	p := models.Post{
		ID:        uuid.NewString(),
		UserID:    author.ID,
		Content:   f.faker.Paragraph(1, f.faker.Number(1, 3), f.faker.Number(4, 10), " "),
		ImageURLs: []string{},
		CreatedAt: f.createdAt(author.CreatedAt),
	}
	for range f.faker.Number(0, f.opts.MaxImages) {
		p.ImageURLs = append(p.ImageURLs, fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()))
	}
	return p
}

// BuildComment returns a comment on post. A non-nil parent makes it a reply;
// replies always attach to the root of the thread.
func (f *Factory) BuildComment(post models.Post, author models.User, parent *models.Comment) models.Comment {
	c := models.Comment{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		UserID:    author.ID,
		Content:   f.faker.Sentence(f.faker.Number(3, 14)),
		CreatedAt: f.createdAt(post.CreatedAt),
	}
	if parent != nil {
		rootID := parent.ID
		if !parent.IsRoot() {
			rootID = *parent.ParentCommentID
		}
		c.ParentCommentID = &rootID
		c.CreatedAt = f.createdAt(parent.CreatedAt)
	}
	return c
}

// createdAt picks a time between after (or MaxDays ago) and now.
func (f *Factory) createdAt(after time.Time) time.Time {
	now := f.now()
	earliest := now.Add(-time.Duration(f.opts.MaxDays) * 24 * time.Hour)
	if after.After(earliest) {
		earliest = after
	}
	span := now.Sub(earliest)
	if span <= 0 {
		return now
	}
	offset := time.Duration(f.faker.Int64() % int64(span))
	if offset < 0 {
		offset = -offset
	}
	return earliest.Add(offset).Truncate(time.Second)
}

// pick returns up to n distinct users other than exclude.
func (f *Factory) pick(users []models.User, n int, exclude string) []models.User {
	idx := make([]int, len(users))
	for i := range idx {
		idx[i] = i
	}
	f.faker.ShuffleAnySlice(idx)

	out := make([]models.User, 0, n)
	for _, i := range idx {
		if len(out) == n {
			break
		}
		if users[i].ID == exclude {
			continue
		}
		out = append(out, users[i])
	}
	return out
}
