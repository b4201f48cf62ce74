// Package model defines the records shared by the discovery pipeline, the
// persistence layer and the API surfaces.
package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// SearchStatus represents the lifecycle state of a search request.
type SearchStatus string

const (
	SearchStatusProcessing SearchStatus = "processing"
	SearchStatusCompleted  SearchStatus = "completed"
	SearchStatusFailed     SearchStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SearchStatus) Terminal() bool {
	return s == SearchStatusCompleted || s == SearchStatusFailed
}

const (
	// DefaultRequestedCount is used when a trigger does not specify a count.
	DefaultRequestedCount = 20
	// MaxRequestedCount is the most results the directory provider will page through.
	MaxRequestedCount = 60
	// DefaultRadiusMeters is used when a trigger does not specify a radius.
	DefaultRadiusMeters = 8047 // 5 miles
	// MaxRadiusMeters is the provider's circle bias limit.
	MaxRadiusMeters = 50000
)

// SearchRequest is one discovery run for one query.
type SearchRequest struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Location       string       `json:"location"`
	Industry       string       `json:"industry,omitempty"`
	RadiusMeters   int          `json:"radius_meters"`
	RequestedCount int          `json:"requested_count"`
	Status         SearchStatus `json:"status"`
	Progress       int          `json:"progress"`
	ResultCount    int          `json:"result_count"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Trigger is the event that starts a pipeline run.
type Trigger struct {
	SearchID       string `json:"search_id"`
	UserID         string `json:"user_id"`
	Location       string `json:"location"`
	Industry       string `json:"industry,omitempty"`
	RadiusMeters   int    `json:"radius_meters"`
	RequestedCount int    `json:"requested_count"`
}

// Trigger returns the run trigger for this request.
func (s *SearchRequest) Trigger() Trigger {
	return Trigger{
		SearchID:       s.ID,
		UserID:         s.UserID,
		Location:       s.Location,
		Industry:       s.Industry,
		RadiusMeters:   s.RadiusMeters,
		RequestedCount: s.RequestedCount,
	}
}

// Normalize trims text fields and clamps radius and count into the ranges
// the directory provider accepts.
func (t Trigger) Normalize() Trigger {
	t.Location = strings.TrimSpace(t.Location)
	t.Industry = strings.TrimSpace(t.Industry)
	switch {
	case t.RadiusMeters <= 0:
		t.RadiusMeters = DefaultRadiusMeters
	case t.RadiusMeters > MaxRadiusMeters:
		t.RadiusMeters = MaxRadiusMeters
	}
	switch {
	case t.RequestedCount <= 0:
		t.RequestedCount = DefaultRequestedCount
	case t.RequestedCount > MaxRequestedCount:
		t.RequestedCount = MaxRequestedCount
	}
	return t
}

// Validate checks the fields a run cannot start without.
func (t Trigger) Validate() error {
	if strings.TrimSpace(t.SearchID) == "" {
		return eris.New("trigger: search_id is required")
	}
	if strings.TrimSpace(t.Location) == "" {
		return eris.New("trigger: location is required")
	}
	return nil
}

// StatusView is the polling surface for a search.
type StatusView struct {
	SearchID    string       `json:"search_id"`
	Status      SearchStatus `json:"status"`
	Progress    int          `json:"progress"`
	ResultCount int          `json:"result_count"`
	Error       string       `json:"error,omitempty"`
}

// View returns the status projection of the request.
func (s *SearchRequest) View() StatusView {
	return StatusView{
		SearchID:    s.ID,
		Status:      s.Status,
		Progress:    s.Progress,
		ResultCount: s.ResultCount,
		Error:       s.Error,
	}
}

const (
	metersPerMile = 1609.344
	metersPerKM   = 1000.0
)

// ParseRadius converts "5mi", "10km", "800m" or a bare number of meters
// into whole meters.
func ParseRadius(text string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, eris.New("radius: empty")
	}

	mul := 1.0
	switch {
	case strings.HasSuffix(s, "miles"):
		s, mul = strings.TrimSuffix(s, "miles"), metersPerMile
	case strings.HasSuffix(s, "mi"):
		s, mul = strings.TrimSuffix(s, "mi"), metersPerMile
	case strings.HasSuffix(s, "km"):
		s, mul = strings.TrimSuffix(s, "km"), metersPerKM
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "radius: parse %q", text)
	}
	if v <= 0 {
		return 0, eris.Errorf("radius: must be positive, got %q", text)
	}
	return int(v*mul + 0.5), nil
}
