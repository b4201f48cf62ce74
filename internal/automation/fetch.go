package automation

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxBodyBytes        = 2 << 20
	userAgent           = "Mozilla/5.0 (compatible; LeadScoutBot/1.0; +https://leadscout.io/bot)"
)

// ErrUnscannable is returned for sites that refuse the scan (401/403 or a
// bot challenge).
var ErrUnscannable = eris.New("automation: site refused scan")

// Page is a fetched website.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
}

// Fetcher retrieves a page for scanning.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches pages over HTTP. Certificate errors are tolerated
// since small-business sites often run expired or self-signed certs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A zero timeout means 10s.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Fetch GETs url. Any status below 400 is accepted.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "automation: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "automation: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "automation: read body")
	}

	if blocked, kind := detectBlock(resp, body); blocked {
		return nil, eris.Wrapf(ErrUnscannable, "automation: blocked (%s)", kind)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnscannable, "automation: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, eris.Errorf("automation: status %d", resp.StatusCode)
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       decodeBody(resp.Header.Get("Content-Type"), body),
	}, nil
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([a-z0-9_\-:.]+)`)

// decodeBody converts body to UTF-8 using the charset from the Content-Type
// header or a <meta> tag. Unknown charsets are passed through unchanged.
func decodeBody(contentType string, body []byte) string {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = params["charset"]
	}
	if charset == "" {
		head := body[:min(len(body), 2048)]
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			charset = string(m[1])
		}
	}
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
