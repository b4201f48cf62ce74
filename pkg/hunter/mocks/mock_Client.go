// Package mocks provides test doubles for the hunter client.
package mocks

import (
	"context"

	hunter "github.com/sells-group/leadscout/pkg/hunter"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// DomainSearch provides a mock function with given fields: ctx, domain
func (_m *MockClient) DomainSearch(ctx context.Context, domain string) (*hunter.DomainSearchResponse, error) {
	ret := _m.Called(ctx, domain)

	if len(ret) == 0 {
		panic("no return value specified for DomainSearch")
	}

	var r0 *hunter.DomainSearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*hunter.DomainSearchResponse, error)); ok {
		return rf(ctx, domain)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *hunter.DomainSearchResponse); ok {
		r0 = rf(ctx, domain)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*hunter.DomainSearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, domain)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// VerifyEmail provides a mock function with given fields: ctx, email
func (_m *MockClient) VerifyEmail(ctx context.Context, email string) (*hunter.Verification, error) {
	ret := _m.Called(ctx, email)

	if len(ret) == 0 {
		panic("no return value specified for VerifyEmail")
	}

	var r0 *hunter.Verification
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*hunter.Verification, error)); ok {
		return rf(ctx, email)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *hunter.Verification); ok {
		r0 = rf(ctx, email)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*hunter.Verification)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, email)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
