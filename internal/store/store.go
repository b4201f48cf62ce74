// Package store persists search requests, leads and the automation
// detection cache.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// ErrNotFound is returned when a row does not exist, or when a status
// transition targets a search that is no longer processing.
var ErrNotFound = eris.New("store: not found")

// SearchFilter specifies criteria for listing searches.
type SearchFilter struct {
	UserID string             `json:"user_id,omitempty"`
	Status model.SearchStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Searches
	CreateSearch(ctx context.Context, s *model.SearchRequest) error
	GetSearch(ctx context.Context, id string) (*model.SearchRequest, error)
	ListSearches(ctx context.Context, filter SearchFilter) ([]model.SearchRequest, error)
	UpdateSearchProgress(ctx context.Context, id string, progress int) error
	SetResultCount(ctx context.Context, id string, count int) error
	CompleteSearch(ctx context.Context, id string, resultCount int) error
	FailSearch(ctx context.Context, id string, errMsg string, resetProgress bool) error

	// Leads
	InsertLeads(ctx context.Context, leads []model.Lead) (int64, error)
	UpdateLead(ctx context.Context, id string, patch model.LeadPatch) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetLeads(ctx context.Context, ids []string) ([]model.Lead, error)
	ListLeads(ctx context.Context, searchID string) ([]model.Lead, error)

	// Detection cache
	GetCachedDetection(ctx context.Context, host string) ([]byte, error)
	SetCachedDetection(ctx context.Context, host string, data []byte, ttl time.Duration) error
	DeleteExpiredDetections(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

var newID = func() string { return uuid.New().String() }

// prepareSearch fills the defaults of a new search row.
func prepareSearch(s *model.SearchRequest, newID func() string, now time.Time) {
	if s.ID == "" {
		s.ID = newID()
	}
	s.Status = model.SearchStatusProcessing
	s.Progress = 0
	s.ResultCount = 0
	s.Error = ""
	s.CreatedAt = now
	s.UpdatedAt = now
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
