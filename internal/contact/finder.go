// Package contact finds a contact email address for a business domain.
//
// Lookups never fail from the caller's point of view: every failure mode
// (bad input, no match, throttling, provider outage) becomes an absent
// Result carrying the Reason, so one lead cannot abort a run.
package contact

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadscout/internal/resilience"
	"github.com/sells-group/leadscout/pkg/hunter"
)

// DefaultMinConfidence is the lowest provider confidence accepted.
const DefaultMinConfidence = 70

// Outcome tags a Result.
type Outcome string

// Outcomes.
const (
	OutcomeFound  Outcome = "found"
	OutcomeAbsent Outcome = "absent"
)

// Reason explains an absent Result.
type Reason string

// Reasons for an absent Result.
const (
	ReasonInvalidDomain Reason = "invalid_domain"
	ReasonNotFound      Reason = "not_found"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonUnreachable   Reason = "unreachable"
	ReasonCircuitOpen   Reason = "circuit_open"
	ReasonUpstreamError Reason = "upstream_error"
)

// Result is the outcome of one lookup. Email and Confidence are set only
// when Outcome is OutcomeFound; Reason only when it is OutcomeAbsent.
type Result struct {
	Outcome    Outcome
	Email      string
	Confidence int
	Reason     Reason
}

// Found reports whether an acceptable address was found.
func (r Result) Found() bool {
	return r.Outcome == OutcomeFound
}

func found(email string, confidence int) Result {
	return Result{Outcome: OutcomeFound, Email: email, Confidence: confidence}
}

func absent(reason Reason) Result {
	return Result{Outcome: OutcomeAbsent, Reason: reason}
}

// Config tunes the finder.
type Config struct {
	MinConfidence int
	// Pause is the minimum spacing between provider calls.
	Pause   time.Duration
	Circuit resilience.CircuitBreakerConfig
}

// Finder looks up contact emails.
type Finder struct {
	client        hunter.Client
	limiter       *rate.Limiter
	breaker       *resilience.CircuitBreaker
	minConfidence int
	verifications atomic.Int64
}

// NewFinder creates a Finder backed by the given provider client.
func NewFinder(client hunter.Client, cfg Config) *Finder {
	minConf := cfg.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}

	limit := rate.Inf
	if cfg.Pause > 0 {
		limit = rate.Every(cfg.Pause)
	}

	cbCfg := cfg.Circuit
	if cbCfg.ShouldTrip == nil {
		cbCfg.ShouldTrip = shouldTrip
	}
	if cbCfg.OnStateChange == nil {
		cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("contact: circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}

	return &Finder{
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		breaker:       resilience.NewCircuitBreaker(cbCfg),
		minConfidence: minConf,
	}
}

// FindEmail returns the best address for domain when its confidence meets
// the threshold.
func (f *Finder) FindEmail(ctx context.Context, domain string) (res Result) {
	log := zap.L().With(zap.String("domain", domain))
	defer func() {
		if r := recover(); r != nil {
			log.Error("contact: lookup panicked", zap.Any("panic", r))
			res = absent(ReasonUpstreamError)
		}
	}()

	domain = strings.ToLower(strings.TrimSpace(domain))
	if !ValidDomain(domain) {
		log.Debug("contact: invalid domain")
		return absent(ReasonInvalidDomain)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		log.Debug("contact: rate limit wait aborted", zap.Error(err))
		return absent(ReasonUnreachable)
	}

	resp, err := resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*hunter.DomainSearchResponse, error) {
		return f.client.DomainSearch(ctx, domain)
	})
	if err != nil {
		reason := reasonFor(err)
		log.Debug("contact: lookup failed", zap.String("reason", string(reason)), zap.Error(err))
		return absent(reason)
	}

	if resp == nil || len(resp.Emails) == 0 || resp.Emails[0].Value == "" {
		return absent(ReasonNotFound)
	}

	top := resp.Emails[0]
	if top.Confidence < f.minConfidence {
		log.Debug("contact: best candidate below threshold",
			zap.Int("confidence", top.Confidence),
			zap.Int("threshold", f.minConfidence),
		)
		return absent(ReasonLowConfidence)
	}
	return found(top.Value, top.Confidence)
}

// Verify checks deliverability of a known address. It consumes a metered
// provider credit on every call and is not part of discovery runs.
func (f *Finder) Verify(ctx context.Context, email string) (*hunter.Verification, error) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || !ValidDomain(strings.ToLower(email[at+1:])) {
		return nil, eris.Errorf("contact: invalid email %q", email)
	}

	f.verifications.Add(1)
	v, err := f.client.VerifyEmail(ctx, email)
	if err != nil {
		return nil, eris.Wrapf(err, "contact: verify %s", email)
	}
	return v, nil
}

// VerificationsUsed returns the number of metered verifications issued.
func (f *Finder) VerificationsUsed() int64 {
	return f.verifications.Load()
}

// ValidDomain reports whether s is a syntactically valid lower-case
// hostname with at least two labels and an alphabetic TLD.
func ValidDomain(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if tld[i] < 'a' || tld[i] > 'z' {
			return tld[:min(4, len(tld))] == "xn--"
		}
	}
	return true
}

func reasonFor(err error) Reason {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ReasonCircuitOpen
	}
	var apiErr *hunter.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RateLimited() {
			return ReasonRateLimited
		}
		return ReasonUpstreamError
	}
	return ReasonUnreachable
}

// shouldTrip ignores per-domain client errors; anything else counts
// against the provider.
func shouldTrip(err error) bool {
	var apiErr *hunter.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return false
		}
	}
	return true
}
