// Package scorer computes the 0-100 probability that a lead needs
// marketing automation. Scoring is pure and deterministic.
package scorer

import (
	"strings"
	"unicode"

	"github.com/sells-group/leadscout/internal/model"
)

// Point values for each signal. They sum to MaxScore.
const (
	PointsNoAutomation    = 40
	PointsWebsite         = 15
	PointsSocial          = 10
	PointsEmail           = 10
	PointsPhone           = 10
	PointsRating          = 10
	PointsServiceIndustry = 5

	MaxScore = 100

	// MinRating is the Google rating that earns PointsRating.
	MinRating = 4.0
)

// Input carries the lead signals the score depends on.
type Input struct {
	AutomationDetected bool
	HasWebsite         bool
	Socials            model.SocialProfiles
	HasEmail           bool
	HasPhone           bool
	Rating             *float64
	Industry           string
}

// InputFromLead builds the scoring input from a stored lead.
func InputFromLead(l model.Lead) Input {
	return Input{
		AutomationDetected: l.AutomationDetected,
		HasWebsite:         l.HasWebsite(),
		Socials:            l.Socials,
		HasEmail:           l.Email != nil && strings.TrimSpace(*l.Email) != "",
		HasPhone:           strings.TrimSpace(l.Phone) != "",
		Rating:             l.GoogleRating,
		Industry:           l.Industry,
	}
}

// Factor is one row of a score breakdown.
type Factor struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Met    bool   `json:"met"`
	Points int    `json:"points"`
	Max    int    `json:"max"`
}

// Breakdown explains a score.
type Breakdown struct {
	Factors []Factor `json:"factors"`
	Total   int      `json:"total"`
}

// Score returns the lead's probability score in [0, 100].
func Score(in Input) int {
	return Explain(in).Total
}

// Explain evaluates every signal and returns the itemized result.
func Explain(in Input) Breakdown {
	rows := []struct {
		key, label string
		met        bool
		points     int
	}{
		{"no_automation", "No automation tool detected", !in.AutomationDetected, PointsNoAutomation},
		{"website", "Has a website", in.HasWebsite, PointsWebsite},
		{"social", "Has a social profile", hasSocial(in.Socials), PointsSocial},
		{"email", "Has an email address", in.HasEmail, PointsEmail},
		{"phone", "Has a phone number", in.HasPhone, PointsPhone},
		{"rating", "Google rating of 4.0 or higher", in.Rating != nil && *in.Rating >= MinRating, PointsRating},
		{"service_industry", "Service-based industry", IsServiceIndustry(in.Industry), PointsServiceIndustry},
	}

	b := Breakdown{Factors: make([]Factor, 0, len(rows))}
	for _, r := range rows {
		f := Factor{Key: r.key, Label: r.label, Met: r.met, Max: r.points}
		if r.met {
			f.Points = r.points
			b.Total += r.points
		}
		b.Factors = append(b.Factors, f)
	}
	b.Total = max(0, min(MaxScore, b.Total))
	return b
}

var socialChannels = []string{
	model.SocialFacebook,
	model.SocialInstagram,
	model.SocialLinkedIn,
	model.SocialTwitter,
	model.SocialX,
	model.SocialYouTube,
	model.SocialTikTok,
}

func hasSocial(s model.SocialProfiles) bool {
	for _, ch := range socialChannels {
		if strings.TrimSpace(s[ch]) != "" {
			return true
		}
	}
	return false
}

// serviceKeywords identify service businesses that typically book
// appointments and follow up by hand. Each entry is matched as whole
// words; a trailing "s" or "es" on a label word is allowed.
var serviceKeywords = []string{
	"plumber", "plumbing", "hvac", "heating", "air conditioning",
	"electrician", "electrical contractor", "roofer", "roofing",
	"landscaper", "landscaping", "lawn care", "lawn service", "cleaning",
	"cleaner", "janitorial", "dental", "dentist", "salon", "barber",
	"barbershop", "day spa", "massage", "law firm", "lawyer", "attorney",
	"accountant", "accounting", "cpa", "real estate", "realtor", "insurance",
	"auto repair", "mechanic", "contractor", "construction", "remodeling",
	"remodeler", "veterinarian", "veterinary", "fitness", "gym",
	"pest control", "moving", "mover", "chiropractor", "physical therapist",
	"physical therapy", "photographer", "photography", "locksmith", "painter",
	"painting", "handyman", "tutor", "tutoring", "daycare", "child care",
	"pet grooming", "pet groomer", "pool service", "pool cleaning",
	"garage door",
}

// serviceKeywordWords holds serviceKeywords split into words.
var serviceKeywordWords = func() [][]string {
	out := make([][]string, len(serviceKeywords))
	for i, kw := range serviceKeywords {
		out[i] = labelWords(kw)
	}
	return out
}()

// IsServiceIndustry reports whether the industry label contains one of
// the service-business keywords as whole words.
func IsServiceIndustry(industry string) bool {
	words := labelWords(industry)
	if len(words) == 0 {
		return false
	}
	for _, kw := range serviceKeywordWords {
		if containsPhrase(words, kw) {
			return true
		}
	}
	return false
}

func labelWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if !sameWord(words[i+j], p) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func sameWord(w, kw string) bool {
	return w == kw || w == kw+"s" || w == kw+"es"
}
