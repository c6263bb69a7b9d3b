package mocks

import (
	"context"

	"scene-server/internal/interfaces"
	"scene-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockChatStore is a mock type for the interfaces.ChatStore type
type MockChatStore struct {
	mock.Mock
}

// GetChatWithHistory provides a mock function with given fields: ctx, chatID
func (_m *MockChatStore) GetChatWithHistory(ctx context.Context, chatID uuid.UUID) (*models.ChatWithHistory, error) {
	ret := _m.Called(ctx, chatID)

	var r0 *models.ChatWithHistory
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID) *models.ChatWithHistory); ok {
		r0 = rf(ctx, chatID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.ChatWithHistory)
	}

	return r0, ret.Error(1)
}

// CreateMessage provides a mock function with given fields: ctx, msg
func (_m *MockChatStore) CreateMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error) {
	ret := _m.Called(ctx, msg)

	var r0 *models.ChatMessage
	if rf, ok := ret.Get(0).(func(context.Context, models.NewMessage) *models.ChatMessage); ok {
		r0 = rf(ctx, msg)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.ChatMessage)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, models.NewMessage) error); ok {
		r1 = rf(ctx, msg)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UpdateMessage provides a mock function with given fields: ctx, id, upd
func (_m *MockChatStore) UpdateMessage(ctx context.Context, id uuid.UUID, upd models.MessageUpdate) error {
	ret := _m.Called(ctx, id, upd)
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID, models.MessageUpdate) error); ok {
		return rf(ctx, id, upd)
	}
	return ret.Error(0)
}

// DeleteMessage provides a mock function with given fields: ctx, id
func (_m *MockChatStore) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

// NewMockChatStore creates a new instance of MockChatStore.
func NewMockChatStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChatStore {
	m := &MockChatStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.ChatStore = (*MockChatStore)(nil)
