package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/spectra-gallery/spectra-playground/models"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) SetShare(ctx context.Context, share models.ShareEntry, ttl time.Duration) error {
	args := m.Called(ctx, share, ttl)
	return args.Error(0)
}

func (m *MockCache) GetShare(ctx context.Context, token string) (models.ShareEntry, bool, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(models.ShareEntry), args.Bool(1), args.Error(2)
}

func (m *MockCache) InvalidateShares(ctx context.Context, tokens []string) error {
	args := m.Called(ctx, tokens)
	return args.Error(0)
}

func (m *MockCache) IncrementAttempts(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) ResetAttempts(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
