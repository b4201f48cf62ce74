package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   SearchStatus
		want     string
		terminal bool
	}{
		{SearchStatusProcessing, "processing", false},
		{SearchStatusCompleted, "completed", true},
		{SearchStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestParseRadius(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"5mi", 8047},
		{"5 miles", 8047},
		{"10km", 10000},
		{"800m", 800},
		{"1500", 1500},
		{" 2.5KM ", 2500},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRadius(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRadius_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "-3km", "0"} {
		_, err := ParseRadius(in)
		assert.Error(t, err, in)
	}
}

func TestTrigger_Normalize(t *testing.T) {
	t.Parallel()

	got := Trigger{SearchID: "s1", Location: "  Austin, TX ", Industry: " plumbers "}.Normalize()
	assert.Equal(t, "Austin, TX", got.Location)
	assert.Equal(t, "plumbers", got.Industry)
	assert.Equal(t, DefaultRadiusMeters, got.RadiusMeters)
	assert.Equal(t, DefaultRequestedCount, got.RequestedCount)

	got = Trigger{SearchID: "s1", Location: "x", RadiusMeters: 90000, RequestedCount: 500}.Normalize()
	assert.Equal(t, MaxRadiusMeters, got.RadiusMeters)
	assert.Equal(t, MaxRequestedCount, got.RequestedCount)
}

func TestTrigger_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Trigger{SearchID: "s1", Location: "Austin"}.Validate())
	assert.ErrorContains(t, Trigger{Location: "Austin"}.Validate(), "search_id")
	assert.ErrorContains(t, Trigger{SearchID: "s1"}.Validate(), "location")
}

func TestSearchRequest_ViewAndTrigger(t *testing.T) {
	t.Parallel()

	sr := &SearchRequest{
		ID: "s1", UserID: "u1", Location: "Austin", Industry: "hvac",
		RadiusMeters: 1000, RequestedCount: 5,
		Status: SearchStatusFailed, Progress: 55, ResultCount: 5, Error: "boom",
	}
	assert.Equal(t, StatusView{SearchID: "s1", Status: SearchStatusFailed, Progress: 55, ResultCount: 5, Error: "boom"}, sr.View())
	assert.Equal(t, Trigger{SearchID: "s1", UserID: "u1", Location: "Austin", Industry: "hvac", RadiusMeters: 1000, RequestedCount: 5}, sr.Trigger())
}
