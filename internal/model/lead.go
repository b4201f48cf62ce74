package model

import (
	"net/url"
	"strings"
	"time"
)

// Social channels recognised on business websites.
const (
	SocialFacebook  = "facebook"
	SocialInstagram = "instagram"
	SocialLinkedIn  = "linkedin"
	SocialTwitter   = "twitter"
	SocialX         = "x"
	SocialYouTube   = "youtube"
	SocialTikTok    = "tiktok"
)

// SocialProfiles maps a channel name to the profile URL.
type SocialProfiles map[string]string

// Lead is one discovered business, enriched and scored in place.
type Lead struct {
	ID                 string         `json:"id"`
	SearchID           string         `json:"search_id"`
	PlaceID            string         `json:"place_id"`
	Name               string         `json:"name"`
	Address            string         `json:"address,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Website            string         `json:"website,omitempty"`
	Domain             string         `json:"domain,omitempty"`
	Email              *string        `json:"email"`
	EmailConfidence    *int           `json:"email_confidence,omitempty"`
	Socials            SocialProfiles `json:"socials"`
	AutomationDetected bool           `json:"automation_detected"`
	AutomationTools    []string       `json:"automation_tools,omitempty"`
	ProbabilityScore   *int           `json:"probability_score"`
	GoogleRating       *float64       `json:"google_rating"`
	Industry           string         `json:"industry,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// HasWebsite reports whether the lead can be enriched.
func (l *Lead) HasWebsite() bool {
	return strings.TrimSpace(l.Website) != ""
}

// LeadPatch is a partial lead update. Nil fields are left untouched, so
// applying a patch never clears a value that is already set.
type LeadPatch struct {
	Email              *string
	EmailConfidence    *int
	Socials            SocialProfiles
	AutomationDetected *bool
	AutomationTools    []string
	ProbabilityScore   *int
}

// Empty reports whether the patch carries no fields.
func (p LeadPatch) Empty() bool {
	return p.Email == nil && p.EmailConfidence == nil && len(p.Socials) == 0 &&
		p.AutomationDetected == nil && p.AutomationTools == nil && p.ProbabilityScore == nil
}

// Apply merges the patch into the lead.
func (p LeadPatch) Apply(l *Lead) {
	if p.Email != nil {
		l.Email = p.Email
	}
	if p.EmailConfidence != nil {
		l.EmailConfidence = p.EmailConfidence
	}
	if len(p.Socials) > 0 {
		l.Socials = p.Socials
	}
	if p.AutomationDetected != nil {
		l.AutomationDetected = *p.AutomationDetected
	}
	if p.AutomationTools != nil {
		l.AutomationTools = p.AutomationTools
	}
	if p.ProbabilityScore != nil {
		l.ProbabilityScore = p.ProbabilityScore
	}
}

// BusinessRecord is a business returned by the directory provider.
type BusinessRecord struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Website  string   `json:"website,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Industry string   `json:"industry,omitempty"`
}

// Actionable reports whether the record can be contacted at all.
func (b BusinessRecord) Actionable() bool {
	return strings.TrimSpace(b.Phone) != "" || strings.TrimSpace(b.Website) != ""
}

// NewLead builds the initial lead row for a discovered business.
func NewLead(id, searchID string, b BusinessRecord, now time.Time) Lead {
	return Lead{
		ID:           id,
		SearchID:     searchID,
		PlaceID:      b.PlaceID,
		Name:         b.Name,
		Address:      b.Address,
		Phone:        b.Phone,
		Website:      b.Website,
		Domain:       DomainOf(b.Website),
		GoogleRating: b.Rating,
		Industry:     b.Industry,
		CreatedAt:    now,
	}
}

// NormalizeURL adds an https scheme when the input has none.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	return s
}

// DomainOf returns the lower-cased hostname of a website without "www.".
// It returns "" when the input cannot be parsed.
func DomainOf(website string) string {
	s := NormalizeURL(website)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
