package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/spectra-gallery/spectra-playground/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	if fn, ok := args.Get(0).(func(context.Context, models.User) models.User); ok {
		return fn(ctx, user), args.Error(1)
	}
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	args := m.Called(ctx, resource)
	if fn, ok := args.Get(0).(func(context.Context, models.Resource) models.Resource); ok {
		return fn(ctx, resource), args.Error(1)
	}
	return args.Get(0).(models.Resource), args.Error(1)
}

func (m *MockStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Resource), args.Error(1)
}

func (m *MockStore) UpdateResource(ctx context.Context, resource models.Resource, expectedRevision int) (models.Resource, error) {
	args := m.Called(ctx, resource, expectedRevision)
	if fn, ok := args.Get(0).(func(context.Context, models.Resource, int) models.Resource); ok {
		return fn(ctx, resource, expectedRevision), args.Error(1)
	}
	return args.Get(0).(models.Resource), args.Error(1)
}

func (m *MockStore) PutShare(ctx context.Context, share models.ShareEntry) error {
	args := m.Called(ctx, share)
	return args.Error(0)
}

func (m *MockStore) GetShare(ctx context.Context, token string) (models.ShareEntry, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(models.ShareEntry), args.Error(1)
}

func (m *MockStore) ListShares(ctx context.Context, resourceId string) ([]models.ShareEntry, error) {
	args := m.Called(ctx, resourceId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ShareEntry), args.Error(1)
}

func (m *MockStore) DeleteExpiredShares(ctx context.Context, resourceId string, now int64) ([]string, error) {
	args := m.Called(ctx, resourceId, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
