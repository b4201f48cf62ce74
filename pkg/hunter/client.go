// Package hunter provides a client for the Hunter.io email finder API.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client defines the Hunter.io operations.
type Client interface {
	// DomainSearch returns the addresses known for a domain, ranked by
	// confidence (highest first).
	DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error)
	// VerifyEmail checks deliverability of a single address. Each call
	// consumes a verification credit.
	VerifyEmail(ctx context.Context, email string) (*Verification, error)
}

// DomainSearchResponse is the data block of a domain search.
type DomainSearchResponse struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Pattern      string  `json:"pattern"`
	Emails       []Email `json:"emails"`
}

// Email is one address found for a domain.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
}

// Verification is the result of an email verification.
type Verification struct {
	Email  string `json:"email"`
	Status string `json:"status"` // valid, invalid, accept_all, webmail, disposable, unknown
	Result string `json:"result"` // deliverable, undeliverable, risky
	Score  int    `json:"score"`
}

// Deliverable reports whether the provider considers the address safe to send to.
func (v *Verification) Deliverable() bool {
	return v.Status == "valid" || v.Result == "deliverable"
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hunter: status %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("hunter: status %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the request was throttled.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Hunter.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error) {
	params := url.Values{}
	params.Set("domain", domain)

	var out struct {
		Data DomainSearchResponse `json:"data"`
	}
	if err := c.get(ctx, "/domain-search", params, &out); err != nil {
		return nil, err
	}

	emails := out.Data.Emails
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Confidence > emails[j].Confidence
	})
	return &out.Data, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*Verification, error) {
	params := url.Values{}
	params.Set("email", email)

	var out struct {
		Data Verification `json:"data"`
	}
	if err := c.get(ctx, "/email-verifier", params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "hunter: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "hunter: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return parseError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "hunter: unmarshal response")
	}
	return nil
}

func parseError(status int, body []byte) *APIError {
	var envelope struct {
		Errors []struct {
			ID      string `json:"id"`
			Details string `json:"details"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		apiErr.Code = envelope.Errors[0].ID
		apiErr.Message = envelope.Errors[0].Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
