// Package google is a client for the Google Geocoding and Places (New) APIs.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL    = "https://places.googleapis.com/v1"
	defaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// MaxPageSize is the largest page the text search endpoint returns.
	MaxPageSize = 20

	searchFieldMask = "places.id,places.displayName,places.formattedAddress," +
		"places.nationalPhoneNumber,places.websiteUri,places.rating," +
		"places.userRatingCount,places.primaryTypeDisplayName,nextPageToken"
	detailsFieldMask = "id,displayName,formattedAddress,nationalPhoneNumber," +
		"websiteUri,rating,userRatingCount,primaryTypeDisplayName"
)

// ErrNotFound is returned by Geocode when the address has no match.
var ErrNotFound = eris.New("google: no results")

// Client performs Google geocoding and Places API operations.
type Client interface {
	Geocode(ctx context.Context, address string) (*GeocodeResult, error)
	SearchText(ctx context.Context, req SearchTextRequest) (*SearchTextResponse, error)
	PlaceDetails(ctx context.Context, placeID string) (*Place, error)
}

// LatLng is a coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeocodeResult is the best match for a geocoded address.
type GeocodeResult struct {
	Location         LatLng
	FormattedAddress string
}

// SearchTextRequest is a biased text search around a center point.
type SearchTextRequest struct {
	Query        string
	Center       LatLng
	RadiusMeters float64
	PageSize     int
	PageToken    string
}

// SearchTextResponse is one page of text search results.
type SearchTextResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                     string        `json:"id"`
	DisplayName            LocalizedText `json:"displayName"`
	FormattedAddress       string        `json:"formattedAddress"`
	NationalPhoneNumber    string        `json:"nationalPhoneNumber"`
	WebsiteURI             string        `json:"websiteUri"`
	Rating                 float64       `json:"rating"`
	UserRatingCount        int           `json:"userRatingCount"`
	PrimaryTypeDisplayName LocalizedText `json:"primaryTypeDisplayName"`
}

// LocalizedText holds a display string.
type LocalizedText struct {
	Text string `json:"text"`
}

// APIError is a non-success response from either endpoint. Status carries
// the provider status string (OVER_QUERY_LIMIT, RESOURCE_EXHAUSTED, ...).
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("google: api error %d", e.StatusCode)
	if e.Status != "" {
		msg += " " + e.Status
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Quota reports whether the project's quota is exhausted.
func (e *APIError) Quota() bool {
	if e.Status == "OVER_DAILY_LIMIT" {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED" {
		return strings.Contains(strings.ToLower(e.Message), "quota")
	}
	return false
}

// Denied reports whether the key was rejected or the request is invalid.
func (e *APIError) Denied() bool {
	switch e.Status {
	case "REQUEST_DENIED", "INVALID_REQUEST", "PERMISSION_DENIED", "INVALID_ARGUMENT", "UNAUTHENTICATED":
		return true
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	if e.Quota() || e.Denied() {
		return false
	}
	switch e.Status {
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL":
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the Places API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithGeocodeURL overrides the geocoding endpoint.
func WithGeocodeURL(url string) Option {
	return func(c *httpClient) {
		c.geocodeURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	geocodeURL string
	http       *http.Client
}

// NewClient creates a Google API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		geocodeURL: defaultGeocodeURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.geocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create geocode request")
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseError(status, body)
	}

	var result geocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal geocode response")
	}

	switch result.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNotFound
	default:
		return nil, &APIError{StatusCode: status, Status: result.Status, Message: result.ErrorMessage}
	}
	if len(result.Results) == 0 {
		return nil, ErrNotFound
	}

	top := result.Results[0]
	return &GeocodeResult{
		Location: LatLng{
			Latitude:  top.Geometry.Location.Lat,
			Longitude: top.Geometry.Location.Lng,
		},
		FormattedAddress: top.FormattedAddress,
	}, nil
}

type searchTextBody struct {
	TextQuery    string        `json:"textQuery"`
	PageSize     int           `json:"pageSize,omitempty"`
	PageToken    string        `json:"pageToken,omitempty"`
	LocationBias *locationBias `json:"locationBias,omitempty"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

func (c *httpClient) SearchText(ctx context.Context, sr SearchTextRequest) (*SearchTextResponse, error) {
	payload := searchTextBody{
		TextQuery: sr.Query,
		PageSize:  sr.PageSize,
		PageToken: sr.PageToken,
	}
	if payload.PageSize > MaxPageSize {
		payload.PageSize = MaxPageSize
	}
	if sr.RadiusMeters > 0 {
		payload.LocationBias = &locationBias{Circle: circle{Center: sr.Center, Radius: sr.RadiusMeters}}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseError(status, body)
	}

	var result SearchTextResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) PlaceDetails(ctx context.Context, placeID string) (*Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+url.PathEscape(placeID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create details request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", detailsFieldMask)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseError(status, body)
	}

	var place Place
	if err := json.Unmarshal(body, &place); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal details response")
	}
	return &place, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "google: read response")
	}
	return body, resp.StatusCode, nil
}

// parseError decodes the Places API error envelope, falling back to the raw
// body when it is not JSON.
func parseError(status int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
