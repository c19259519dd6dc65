package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/spectra-gallery/spectra-playground/models"
)

type MockLab struct {
	mock.Mock
}

func (m *MockLab) Create(ctx context.Context, kind models.TransformKind, resourceId string, input json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, kind, resourceId, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}
