package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Austin, TX", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "Austin, TX, USA",
				"geometry": {"location": {"lat": 30.2672, "lng": -97.7431}}
			}]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithGeocodeURL(srv.URL))
	res, err := client.Geocode(context.Background(), "Austin, TX")

	require.NoError(t, err)
	assert.InDelta(t, 30.2672, res.Location.Latitude, 0.0001)
	assert.InDelta(t, -97.7431, res.Location.Longitude, 0.0001)
	assert.Equal(t, "Austin, TX, USA", res.FormattedAddress)
}

func TestGeocode_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithGeocodeURL(srv.URL))
	res, err := client.Geocode(context.Background(), "zzzz nowhere")

	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGeocode_StatusClassification(t *testing.T) {
	tests := []struct {
		status    string
		retryable bool
		quota     bool
		denied    bool
	}{
		{"OVER_QUERY_LIMIT", true, false, false},
		{"UNKNOWN_ERROR", true, false, false},
		{"OVER_DAILY_LIMIT", false, true, false},
		{"REQUEST_DENIED", false, false, true},
		{"INVALID_REQUEST", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status":        tt.status,
					"error_message": "provider said no",
				})
			}))
			defer srv.Close()

			client := NewClient("test-key", WithGeocodeURL(srv.URL))
			_, err := client.Geocode(context.Background(), "Austin, TX")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
			assert.Equal(t, tt.quota, apiErr.Quota())
			assert.Equal(t, tt.denied, apiErr.Denied())
		})
	}
}

func TestSearchText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.websiteUri")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nextPageToken")

		var body searchTextBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "plumber in Austin, TX", body.TextQuery)
		assert.Equal(t, MaxPageSize, body.PageSize)
		require.NotNil(t, body.LocationBias)
		assert.InDelta(t, 30.2672, body.LocationBias.Circle.Center.Latitude, 0.0001)
		assert.InDelta(t, 8047, body.LocationBias.Circle.Radius, 0.1)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchTextResponse{
			Places: []Place{
				{
					ID:                  "ChIJ-1",
					DisplayName:         LocalizedText{Text: "Acme Plumbing"},
					FormattedAddress:    "1 Main St, Austin, TX",
					NationalPhoneNumber: "(512) 555-0100",
					WebsiteURI:          "https://acmeplumbing.com",
					Rating:              4.6,
				},
			},
			NextPageToken: "page-2",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{
		Query:        "plumber in Austin, TX",
		Center:       LatLng{Latitude: 30.2672, Longitude: -97.7431},
		RadiusMeters: 8047,
		PageSize:     50,
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-1", resp.Places[0].ID)
	assert.Equal(t, "Acme Plumbing", resp.Places[0].DisplayName.Text)
	assert.Equal(t, "https://acmeplumbing.com", resp.Places[0].WebsiteURI)
	assert.Equal(t, "page-2", resp.NextPageToken)
}

func TestSearchText_PageToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body searchTextBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "page-2", body.PageToken)
		assert.Nil(t, body.LocationBias)
		_ = json.NewEncoder(w).Encode(SearchTextResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(context.Background(), SearchTextRequest{Query: "q", PageToken: "page-2"})

	require.NoError(t, err)
	assert.Empty(t, resp.Places)
	assert.Empty(t, resp.NextPageToken)
}

func TestSearchText_RateLimitVersusQuota(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		retryable bool
		quota     bool
	}{
		{
			name:      "rate limit",
			body:      `{"error": {"code": 429, "message": "Too many requests", "status": "RESOURCE_EXHAUSTED"}}`,
			retryable: true,
		},
		{
			name:  "quota",
			body:  `{"error": {"code": 429, "message": "Quota exceeded for quota metric 'SearchTextRequest'", "status": "RESOURCE_EXHAUSTED"}}`,
			quota: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.SearchText(context.Background(), SearchTextRequest{Query: "q"})

			assert.Nil(t, resp)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, 429, apiErr.StatusCode)
			assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
			assert.Equal(t, tt.quota, apiErr.Quota())
			assert.Contains(t, err.Error(), "429")
		})
	}
}

func TestSearchText_Denied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`invalid API key`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.SearchText(context.Background(), SearchTextRequest{Query: "q"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Denied())
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, "invalid API key", apiErr.Message)
}

func TestSearchText_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.SearchText(context.Background(), SearchTextRequest{Query: "q"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())
}

func TestSearchText_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchText(ctx, SearchTextRequest{Query: "q"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestPlaceDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/places/ChIJ-1", r.URL.Path)
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nationalPhoneNumber")

		_ = json.NewEncoder(w).Encode(Place{
			ID:                  "ChIJ-1",
			DisplayName:         LocalizedText{Text: "Acme Plumbing"},
			NationalPhoneNumber: "(512) 555-0100",
			WebsiteURI:          "https://acmeplumbing.com",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	place, err := client.PlaceDetails(context.Background(), "ChIJ-1")

	require.NoError(t, err)
	assert.Equal(t, "(512) 555-0100", place.NationalPhoneNumber)
	assert.Equal(t, "https://acmeplumbing.com", place.WebsiteURI)
}

func TestPlaceDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": 404, "message": "Place not found", "status": "NOT_FOUND"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	place, err := client.PlaceDetails(context.Background(), "missing")

	assert.Nil(t, place)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NOT_FOUND", apiErr.Status)
	assert.False(t, apiErr.Retryable())
	assert.False(t, apiErr.Denied())
}
