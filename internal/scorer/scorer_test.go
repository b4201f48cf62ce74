package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestScore_AllSignals(t *testing.T) {
	in := Input{
		AutomationDetected: false,
		HasWebsite:         true,
		Socials:            model.SocialProfiles{model.SocialFacebook: "https://facebook.com/acme"},
		HasEmail:           true,
		HasPhone:           true,
		Rating:             ptr(4.5),
		Industry:           "Plumber",
	}
	assert.Equal(t, 100, Score(in))
}

func TestScore_NoSignals(t *testing.T) {
	in := Input{AutomationDetected: true}
	assert.Equal(t, 0, Score(in))
}

func TestScore_Individual(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"automation absent only", Input{}, 40},
		{"website", Input{AutomationDetected: true, HasWebsite: true}, 15},
		{"social", Input{AutomationDetected: true, Socials: model.SocialProfiles{model.SocialTikTok: "https://tiktok.com/@a"}}, 10},
		{"unknown social channel", Input{AutomationDetected: true, Socials: model.SocialProfiles{"myspace": "https://myspace.com/a"}}, 0},
		{"email", Input{AutomationDetected: true, HasEmail: true}, 10},
		{"phone", Input{AutomationDetected: true, HasPhone: true}, 10},
		{"rating at threshold", Input{AutomationDetected: true, Rating: ptr(4.0)}, 10},
		{"rating below threshold", Input{AutomationDetected: true, Rating: ptr(3.9)}, 0},
		{"service industry", Input{AutomationDetected: true, Industry: "HVAC contractor"}, 5},
		{"non-service industry", Input{AutomationDetected: true, Industry: "Restaurant"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.in))
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{HasWebsite: true, HasPhone: true, Rating: ptr(4.2), Industry: "dentist"}
	first := Score(in)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Score(in))
	}
	assert.Equal(t, 80, first)
}

func TestExplain_MatchesScore(t *testing.T) {
	in := Input{HasWebsite: true, HasEmail: true, Industry: "Real Estate Agency"}
	b := Explain(in)

	require.Len(t, b.Factors, 7)
	sum := 0
	for _, f := range b.Factors {
		if f.Met {
			assert.Equal(t, f.Max, f.Points, f.Key)
		} else {
			assert.Zero(t, f.Points, f.Key)
		}
		sum += f.Points
	}
	assert.Equal(t, sum, b.Total)
	assert.Equal(t, Score(in), b.Total)
	assert.Equal(t, 70, b.Total)
	assert.Equal(t, "no_automation", b.Factors[0].Key)
}

func TestPointsSumToMax(t *testing.T) {
	assert.Equal(t, MaxScore, PointsNoAutomation+PointsWebsite+PointsSocial+
		PointsEmail+PointsPhone+PointsRating+PointsServiceIndustry)
}

func TestInputFromLead(t *testing.T) {
	email := "joe@acme.com"
	lead := model.Lead{
		Website:            "https://acme.com",
		Phone:              "(512) 555-0100",
		Email:              &email,
		AutomationDetected: true,
		GoogleRating:       ptr(4.8),
		Industry:           "Electrician",
		Socials:            model.SocialProfiles{model.SocialLinkedIn: "https://linkedin.com/company/acme"},
	}

	in := InputFromLead(lead)

	assert.True(t, in.HasWebsite)
	assert.True(t, in.HasPhone)
	assert.True(t, in.HasEmail)
	assert.True(t, in.AutomationDetected)
	assert.Equal(t, 60, Score(in))

	blank := ""
	assert.False(t, InputFromLead(model.Lead{Email: &blank}).HasEmail)
}

func TestIsServiceIndustry(t *testing.T) {
	for _, s := range []string{
		"Plumber", "Roofing Contractor", "Law Firm", "Veterinarian", "Pest Control Service",
		"Auto Repair Shop", "HVAC contractor", "Dentists", "Hair Salons", "house_cleaning_service",
		"Moving Company", "Physical Therapy Clinic",
	} {
		assert.True(t, IsServiceIndustry(s), s)
	}
	for _, s := range []string{
		"", "Restaurant", "Clothing Store", "Spanish Restaurant",
		"Swimming Pool Supply Store", "Lawrence Bakery", "Carpet Outlet",
		"Electronics Store", "Outlaw Saloon", "Gymnastics Apparel",
	} {
		assert.False(t, IsServiceIndustry(s), s)
	}
}
