package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/service"
)

func TestGenerateTransform_AppendsResult(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	labDone := wrapMockWithSignal(deps.lab.On("Create", ctx, models.TransformNode, resourceId, json.RawMessage(`{"depth":2}`)).
		Return(json.RawMessage(`{"nodes":[1,2]}`), nil))
	deps.store.On("UpdateResource", ctx, mock.MatchedBy(func(r models.Resource) bool {
		return len(r.Transforms) == 1 && r.Transforms[0].Kind == models.TransformNode
	}), 3).Return(bumpRevision, nil)

	transform, err := svc.GenerateTransform(ctx, resourceId, &models.Identity{Id: ownerId}, "node", json.RawMessage(`{"depth":2}`))
	require.NoError(t, err)
	waitFor(t, labDone, "lab Create")

	assert.Equal(t, models.TransformNode, transform.Kind)
	assert.JSONEq(t, `{"nodes":[1,2]}`, string(transform.Result))
	assert.NoError(t, service.ValidateResourceId(transform.Id))
	assert.Equal(t, deps.clock.Now().Unix(), transform.Created)
	deps.store.AssertExpectations(t)
}

func TestGenerateTransform_UpstreamFailure(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(""), nil)
	deps.lab.On("Create", ctx, models.TransformNeuralMap, resourceId, mock.Anything).Return(nil, errors.New("503"))

	_, err := svc.GenerateTransform(ctx, resourceId, nil, "neuralmap", nil)
	assert.ErrorIs(t, err, service.ErrUpstream)
	deps.store.AssertNotCalled(t, "UpdateResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateTransform_Rejections(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	_, err := svc.GenerateTransform(ctx, resourceId, &models.Identity{Id: ownerId}, "graph", nil)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.GenerateTransform(ctx, resourceId, &models.Identity{Id: ownerId}, "link", json.RawMessage(`{oops`))
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.GenerateTransform(ctx, resourceId, &models.Identity{Id: strangerId}, "link", nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	deps.lab.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
