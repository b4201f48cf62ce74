// Package discovery finds local businesses for a location and category
// through the Google directory APIs.
package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/resilience"
	"github.com/sells-group/leadscout/pkg/google"
)

// maxPages bounds pagination; the provider stops returning pages after 60
// results anyway.
const maxPages = 3

// Errors that abort a run.
var (
	ErrLocationNotFound = eris.New("discovery: location not found")
	ErrQuotaExceeded    = eris.New("discovery: directory quota exceeded")
	ErrAccessDenied     = eris.New("discovery: directory access denied")
)

// Query describes one discovery request.
type Query struct {
	Location     string
	Category     string
	RadiusMeters int
	MaxResults   int
}

// Text returns the free-text query sent to the provider.
func (q Query) Text() string {
	category := strings.TrimSpace(q.Category)
	if category == "" {
		category = "businesses"
	}
	return category + " in " + strings.TrimSpace(q.Location)
}

// Config tunes pacing and retries for directory calls.
type Config struct {
	RateLimit float64 // requests per second
	Retry     resilience.RetryConfig
}

// Client discovers businesses.
type Client struct {
	google  google.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Client with the given provider client.
func NewClient(g google.Client, cfg Config) *Client {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 10
	}
	retry := cfg.Retry
	retry.ShouldRetry = isRetryable
	return &Client{
		google:  g,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		retry:   retry,
	}
}

// Discover resolves the location, pages through text search results and
// fills in missing contact fields. Records with neither a phone nor a
// website are dropped. Results keep provider order, are unique by place ID
// and number at most q.MaxResults.
func (c *Client) Discover(ctx context.Context, q Query) ([]model.BusinessRecord, error) {
	log := zap.L().With(zap.String("component", "discovery"), zap.String("query", q.Text()))

	if q.MaxResults <= 0 {
		q.MaxResults = model.DefaultRequestedCount
	}

	geo, err := call(ctx, c, "geocode", func(ctx context.Context) (*google.GeocodeResult, error) {
		return c.google.Geocode(ctx, q.Location)
	})
	if err != nil {
		if errors.Is(err, google.ErrNotFound) {
			return nil, eris.Wrapf(ErrLocationNotFound, "discovery: geocode %q", q.Location)
		}
		return nil, classify(err, "discovery: geocode")
	}
	log.Debug("location resolved",
		zap.String("address", geo.FormattedAddress),
		zap.Float64("lat", geo.Location.Latitude),
		zap.Float64("lng", geo.Location.Longitude),
	)

	pageSize := min(google.MaxPageSize, q.MaxResults)
	seen := make(map[string]bool)
	var (
		records   []model.BusinessRecord
		pageToken string
		dropped   int
	)

	for page := 0; page < maxPages && len(records) < q.MaxResults; page++ {
		req := google.SearchTextRequest{
			Query:        q.Text(),
			Center:       geo.Location,
			RadiusMeters: float64(q.RadiusMeters),
			PageSize:     pageSize,
			PageToken:    pageToken,
		}
		resp, err := call(ctx, c, "search_text", func(ctx context.Context) (*google.SearchTextResponse, error) {
			return c.google.SearchText(ctx, req)
		})
		if err != nil {
			return nil, classify(err, "discovery: text search")
		}

		for _, place := range resp.Places {
			if len(records) >= q.MaxResults {
				break
			}
			if place.ID == "" || seen[place.ID] {
				continue
			}
			seen[place.ID] = true

			rec := toRecord(place, q.Category)
			if rec.Phone == "" || rec.Website == "" {
				rec, err = c.fillDetails(ctx, rec, q.Category)
				if err != nil {
					return nil, err
				}
			}
			if !rec.Actionable() {
				dropped++
				continue
			}
			records = append(records, rec)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	log.Info("discovery complete",
		zap.Int("records", len(records)),
		zap.Int("dropped_no_contact", dropped),
	)
	return records, nil
}

// fillDetails looks up a place's details to fill a missing phone or
// website. Non-fatal lookup failures keep the primary record.
func (c *Client) fillDetails(ctx context.Context, rec model.BusinessRecord, category string) (model.BusinessRecord, error) {
	place, err := call(ctx, c, "place_details", func(ctx context.Context) (*google.Place, error) {
		return c.google.PlaceDetails(ctx, rec.PlaceID)
	})
	if err != nil {
		if fatal := classify(err, "discovery: place details"); isFatal(fatal) {
			return rec, fatal
		}
		zap.L().Warn("place details lookup failed, keeping primary record",
			zap.String("place_id", rec.PlaceID),
			zap.Error(err),
		)
		return rec, nil
	}

	detail := toRecord(*place, category)
	if rec.Phone == "" {
		rec.Phone = detail.Phone
	}
	if rec.Website == "" {
		rec.Website = detail.Website
	}
	if rec.Address == "" {
		rec.Address = detail.Address
	}
	if rec.Rating == nil {
		rec.Rating = detail.Rating
	}
	return rec, nil
}

// call paces fn with the limiter and retries transient failures.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("google", op)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "discovery: rate limit wait")
		}
		return fn(ctx)
	})
}

func toRecord(p google.Place, category string) model.BusinessRecord {
	rec := model.BusinessRecord{
		PlaceID:  p.ID,
		Name:     strings.TrimSpace(p.DisplayName.Text),
		Address:  strings.TrimSpace(p.FormattedAddress),
		Phone:    strings.TrimSpace(p.NationalPhoneNumber),
		Website:  strings.TrimSpace(p.WebsiteURI),
		Industry: strings.TrimSpace(p.PrimaryTypeDisplayName.Text),
	}
	if rec.Industry == "" {
		rec.Industry = strings.TrimSpace(category)
	}
	if p.Rating > 0 || p.UserRatingCount > 0 {
		rating := p.Rating
		rec.Rating = &rating
	}
	return rec
}

func isRetryable(err error) bool {
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, google.ErrNotFound) {
		return false
	}
	return resilience.IsTransient(err)
}

// classify maps provider errors onto the package sentinels.
func classify(err error, msg string) error {
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Quota():
			return eris.Wrapf(ErrQuotaExceeded, "%s: %s", msg, apiErr.Error())
		case apiErr.Denied():
			return eris.Wrapf(ErrAccessDenied, "%s: %s", msg, apiErr.Error())
		}
	}
	return eris.Wrap(err, msg)
}

func isFatal(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrAccessDenied)
}
