package mocks

import (
	"context"

	"scene-server/internal/ai"

	"github.com/stretchr/testify/mock"
)

// MockAIClient is a mock type for the ai.Client type
type MockAIClient struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, req
func (_m *MockAIClient) Complete(ctx context.Context, req ai.CompletionRequest) (string, ai.UsageInfo, error) {
	ret := _m.Called(ctx, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, ai.CompletionRequest) string); ok {
		r0 = rf(ctx, req)
	} else {
		r0 = ret.String(0)
	}

	var r1 ai.UsageInfo
	if rf, ok := ret.Get(1).(func(context.Context, ai.CompletionRequest) ai.UsageInfo); ok {
		r1 = rf(ctx, req)
	} else if ret.Get(1) != nil {
		r1 = ret.Get(1).(ai.UsageInfo)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(context.Context, ai.CompletionRequest) error); ok {
		r2 = rf(ctx, req)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

// CompleteStream provides a mock function with given fields: ctx, req, chunkHandler
func (_m *MockAIClient) CompleteStream(ctx context.Context, req ai.CompletionRequest, chunkHandler func(string) error) (ai.UsageInfo, error) {
	ret := _m.Called(ctx, req, chunkHandler)

	var r0 ai.UsageInfo
	if rf, ok := ret.Get(0).(func(context.Context, ai.CompletionRequest, func(string) error) ai.UsageInfo); ok {
		r0 = rf(ctx, req, chunkHandler)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(ai.UsageInfo)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, ai.CompletionRequest, func(string) error) error); ok {
		r1 = rf(ctx, req, chunkHandler)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockAIClient creates a new instance of MockAIClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockAIClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ ai.Client = (*MockAIClient)(nil)
