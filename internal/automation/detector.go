// Package automation detects marketing automation and CRM tooling on a
// business website.
package automation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/leadscout/internal/model"
)

// Result is the outcome of scanning one website. Unscannable sites report
// Detected false with no tools.
type Result struct {
	Detected   bool                 `json:"detected"`
	Tools      []string             `json:"tools"`
	Confidence float64              `json:"confidence"`
	CheckedAt  time.Time            `json:"checked_at"`
	Reachable  bool                 `json:"reachable"`
	Blocked    bool                 `json:"blocked,omitempty"`
	Socials    model.SocialProfiles `json:"socials,omitempty"`
}

// Detector scans websites for automation tooling.
type Detector struct {
	fetcher Fetcher
	sigs    []Signature
	cache   Cache
	now     func() time.Time
	group   singleflight.Group
}

// Option configures a Detector.
type Option func(*Detector)

// WithCache sets the cache used by DetectCached.
func WithCache(c Cache) Option {
	return func(d *Detector) {
		d.cache = c
	}
}

// WithSignatures replaces the built-in tool table.
func WithSignatures(sigs []Signature) Option {
	return func(d *Detector) {
		d.sigs = normalize(sigs)
	}
}

// WithClock sets the time source for CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a Detector. Without WithCache it uses an in-memory
// cache with DefaultTTL.
func NewDetector(f Fetcher, opts ...Option) *Detector {
	d := &Detector{
		fetcher: f,
		sigs:    normalize(DefaultSignatures()),
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.cache == nil {
		d.cache = NewMemoryCache(DefaultTTL)
	}
	return d
}

// CacheKey returns the cache key for a website: its lower-cased hostname
// without "www.".
func CacheKey(website string) string {
	return model.DomainOf(website)
}

// Detect fetches and scans website. It never fails; unreachable or
// refusing sites yield an undetected result.
func (d *Detector) Detect(ctx context.Context, website string) (res Result) {
	log := zap.L().With(zap.String("website", website))
	res = Result{Tools: []string{}, CheckedAt: d.now()}

	defer func() {
		if r := recover(); r != nil {
			log.Error("automation: scan panicked", zap.Any("panic", r))
			res = Result{Tools: []string{}, CheckedAt: d.now()}
		}
	}()

	target := model.NormalizeURL(website)
	if target == "" || CacheKey(target) == "" {
		return res
	}

	page, err := d.fetcher.Fetch(ctx, target)
	if err != nil {
		res.Blocked = errors.Is(err, ErrUnscannable)
		log.Debug("automation: site not scannable", zap.Bool("blocked", res.Blocked), zap.Error(err))
		return res
	}

	found := scan(page.HTML, d.sigs)
	res.Reachable = true
	res.Socials = found.Socials
	if len(found.Tools) > 0 {
		res.Detected = true
		res.Tools = found.Tools
		res.Confidence = found.Confidence
	}
	log.Debug("automation: scanned",
		zap.Bool("detected", res.Detected),
		zap.Strings("tools", res.Tools),
		zap.Int("socials", len(res.Socials)),
	)
	return res
}

// DetectCached returns a fresh cached result for the website's host or
// scans it. Concurrent calls for one host share a single fetch. Every
// outcome is cached, including refused and unreachable sites; a scan cut
// short by the caller's own cancellation is not.
func (d *Detector) DetectCached(ctx context.Context, website string) Result {
	key := CacheKey(website)
	if key == "" {
		return d.Detect(ctx, website)
	}
	if r, ok := d.cache.Get(ctx, key); ok {
		return r
	}

	v, _, _ := d.group.Do(key, func() (any, error) {
		if r, ok := d.cache.Get(ctx, key); ok {
			return r, nil
		}
		r := d.Detect(ctx, website)
		if ctx.Err() == nil {
			d.cache.Set(ctx, key, r)
		}
		return r, nil
	})
	return v.(Result)
}
