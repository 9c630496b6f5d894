package service

import (
	"context"
	"log/slog"
	"strings"

	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
)

// SearchLimit caps user search results.
const SearchLimit = 20

// SearchHistory stores recently opened search results. *localstore.Store
// implements it.
type SearchHistory interface {
	AddRecent(ctx context.Context, e models.RecentSearchEntry) error
	ListRecent(ctx context.Context) ([]models.RecentSearchEntry, error)
	RemoveRecent(ctx context.Context, userID string) error
	ClearRecent(ctx context.Context) error
}

// SearchService runs user search for the explore screen. Only the latest
// query counts; starting a search cancels the one before it.
type SearchService struct {
	users   repository.UserRepository
	history SearchHistory
	gate    loadGate
}

func NewSearchService(users repository.UserRepository, history SearchHistory) *SearchService {
	return &SearchService{users: users, history: history}
}

// Search returns up to SearchLimit users matching query by name or
// username, never including viewerID. Lookup failures give an empty list;
// a search overtaken by a newer one returns ErrSuperseded.
func (s *SearchService) Search(ctx context.Context, viewerID, query string) ([]models.User, error) {
	ctx, gen, cancel := s.gate.begin(ctx)
	defer cancel()

	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}

	users, err := s.users.Search(ctx, query, SearchLimit, viewerID)
	if !s.gate.current(gen) {
		return nil, ErrSuperseded
	}
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "user search failed",
			slog.String("query", query), slog.String("error", err.Error()))
		return []models.User{}, nil
	}
	return users, nil
}

// Select records that the viewer opened u from the results.
func (s *SearchService) Select(ctx context.Context, u models.User) error {
	if u.ID == "" {
		return models.NewValidationError("user id is required")
	}
	return s.history.AddRecent(ctx, models.RecentSearchEntry{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.FullName,
		AvatarURL:   u.AvatarURL,
	})
}

func (s *SearchService) History(ctx context.Context) ([]models.RecentSearchEntry, error) {
	return s.history.ListRecent(ctx)
}

func (s *SearchService) RemoveHistory(ctx context.Context, userID string) error {
	return s.history.RemoveRecent(ctx, userID)
}

func (s *SearchService) ClearHistory(ctx context.Context) error {
	return s.history.ClearRecent(ctx)
}
