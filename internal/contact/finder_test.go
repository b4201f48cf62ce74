package contact

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscout/internal/resilience"
	"github.com/sells-group/leadscout/pkg/hunter"
	"github.com/sells-group/leadscout/pkg/hunter/mocks"
)

func newTestFinder(t *testing.T) (*Finder, *mocks.MockClient) {
	t.Helper()
	client := mocks.NewMockClient(t)
	return NewFinder(client, Config{
		Circuit: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
	}), client
}

func TestFindEmail_Found(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("DomainSearch", mock.Anything, "acmeplumbing.com").Return(&hunter.DomainSearchResponse{
		Emails: []hunter.Email{
			{Value: "joe@acmeplumbing.com", Confidence: 91},
			{Value: "info@acmeplumbing.com", Confidence: 60},
		},
	}, nil).Once()

	res := f.FindEmail(context.Background(), " AcmePlumbing.com ")

	assert.True(t, res.Found())
	assert.Equal(t, "joe@acmeplumbing.com", res.Email)
	assert.Equal(t, 91, res.Confidence)
	assert.Empty(t, res.Reason)
}

func TestFindEmail_ThresholdBoundary(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("DomainSearch", mock.Anything, "seventy.com").Return(&hunter.DomainSearchResponse{
		Emails: []hunter.Email{{Value: "a@seventy.com", Confidence: 70}},
	}, nil).Once()
	client.On("DomainSearch", mock.Anything, "sixtynine.com").Return(&hunter.DomainSearchResponse{
		Emails: []hunter.Email{{Value: "a@sixtynine.com", Confidence: 69}},
	}, nil).Once()

	assert.True(t, f.FindEmail(context.Background(), "seventy.com").Found())

	res := f.FindEmail(context.Background(), "sixtynine.com")
	assert.False(t, res.Found())
	assert.Equal(t, ReasonLowConfidence, res.Reason)
	assert.Empty(t, res.Email)
}

func TestFindEmail_NeverErrors(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		err    error
		resp   *hunter.DomainSearchResponse
		want   Reason
	}{
		{name: "no emails", domain: "quiet.com", resp: &hunter.DomainSearchResponse{}, want: ReasonNotFound},
		{name: "rate limited", domain: "busy.com", err: &hunter.APIError{StatusCode: 429, Code: "too_many_requests"}, want: ReasonRateLimited},
		{name: "unreachable", domain: "down.com", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: ReasonUnreachable},
		{name: "server error", domain: "broken.com", err: &hunter.APIError{StatusCode: 500}, want: ReasonUpstreamError},
		{name: "nil response", domain: "odd.com", want: ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client := newTestFinder(t)
			client.On("DomainSearch", mock.Anything, tt.domain).Return(tt.resp, tt.err).Once()

			res := f.FindEmail(context.Background(), tt.domain)

			assert.Equal(t, OutcomeAbsent, res.Outcome)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestFindEmail_InvalidDomainSkipsNetwork(t *testing.T) {
	f, client := newTestFinder(t)

	for _, d := range []string{"", "localhost", "not a domain", "-bad.com", "bad-.com", "a..com", "127.0.0.1", "exa_mple.com"} {
		res := f.FindEmail(context.Background(), d)
		assert.Equal(t, ReasonInvalidDomain, res.Reason, d)
	}
	client.AssertNotCalled(t, "DomainSearch", mock.Anything, mock.Anything)
}

func TestFindEmail_CircuitOpens(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("DomainSearch", mock.Anything, mock.Anything).
		Return(nil, &hunter.APIError{StatusCode: 503}).Times(2)

	assert.Equal(t, ReasonUpstreamError, f.FindEmail(context.Background(), "one.com").Reason)
	assert.Equal(t, ReasonUpstreamError, f.FindEmail(context.Background(), "two.com").Reason)

	res := f.FindEmail(context.Background(), "three.com")
	assert.Equal(t, ReasonCircuitOpen, res.Reason)
	client.AssertNumberOfCalls(t, "DomainSearch", 2)
}

func TestFindEmail_ClientErrorsDoNotTrip(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("DomainSearch", mock.Anything, mock.Anything).
		Return(nil, &hunter.APIError{StatusCode: 400, Code: "wrong_params"}).Times(3)

	for _, d := range []string{"a.com", "b.com", "c.com"} {
		assert.Equal(t, ReasonUpstreamError, f.FindEmail(context.Background(), d).Reason)
	}
	assert.Equal(t, resilience.CircuitClosed, f.breaker.State())
}

func TestFindEmail_PanicBecomesAbsent(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("DomainSearch", mock.Anything, "boom.com").Panic("provider exploded").Once()

	res := f.FindEmail(context.Background(), "boom.com")
	assert.Equal(t, ReasonUpstreamError, res.Reason)
}

func TestFindEmail_CanceledContext(t *testing.T) {
	client := mocks.NewMockClient(t)
	f := NewFinder(client, Config{Pause: time.Hour})
	client.On("DomainSearch", mock.Anything, "first.com").Return(&hunter.DomainSearchResponse{}, nil).Once()

	require.Equal(t, ReasonNotFound, f.FindEmail(context.Background(), "first.com").Reason)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := f.FindEmail(ctx, "second.com")
	assert.Equal(t, ReasonUnreachable, res.Reason)
}

func TestVerify_CountsCredits(t *testing.T) {
	f, client := newTestFinder(t)
	client.On("VerifyEmail", mock.Anything, "joe@acme.com").
		Return(&hunter.Verification{Email: "joe@acme.com", Status: "valid", Score: 95}, nil).Once()
	client.On("VerifyEmail", mock.Anything, "gone@acme.com").
		Return(nil, &hunter.APIError{StatusCode: 500}).Once()

	v, err := f.Verify(context.Background(), "joe@acme.com")
	require.NoError(t, err)
	assert.True(t, v.Deliverable())

	_, err = f.Verify(context.Background(), "gone@acme.com")
	assert.Error(t, err)

	_, err = f.Verify(context.Background(), "not-an-email")
	assert.Error(t, err)

	assert.Equal(t, int64(2), f.VerificationsUsed())
}

func TestValidDomain(t *testing.T) {
	for _, d := range []string{"acme.com", "a-b.co.uk", "x1.io", "shop.xn--p1ai"} {
		assert.True(t, ValidDomain(d), d)
	}
	for _, d := range []string{"acme", "acme.c", "acme.123", ".acme.com", "acme.com.", "ACME.COM"} {
		assert.False(t, ValidDomain(d), d)
	}
}
