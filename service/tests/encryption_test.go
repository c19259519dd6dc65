package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/service"
)

func TestSetEncryption_PurgesPlaintext(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	deps.store.On("UpdateResource", ctx, mock.MatchedBy(func(r models.Resource) bool {
		return r.Envelope != nil && r.Content.IsEmpty()
	}), 3).Return(bumpRevision, nil)

	updated, err := svc.SetEncryption(ctx, resourceId, &models.Identity{Id: ownerId}, "p@ss", "")
	require.NoError(t, err)
	require.NotNil(t, updated.Envelope)
	assert.Equal(t, "aes-256-gcm/scrypt", updated.Envelope.Algorithm)
	assert.Equal(t, "resource:"+resourceId, waitFor(t, deps.published, "Publish"))
}

func TestSetEncryption_Forbidden(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	_, err := svc.SetEncryption(ctx, resourceId, &models.Identity{Id: strangerId}, "p@ss", "")
	assert.ErrorIs(t, err, service.ErrForbidden)
	deps.store.AssertNotCalled(t, "UpdateResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetEncryption_RequiresPassword(t *testing.T) {
	svc, deps := setupService(t)

	_, err := svc.SetEncryption(context.Background(), resourceId, nil, "", "")
	assert.ErrorIs(t, err, service.ErrValidation)
	deps.store.AssertNotCalled(t, "GetResource", mock.Anything, mock.Anything)
}

func TestEncryption_RotateAndRemove(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()
	alice := &models.Identity{Id: ownerId, Username: "alice"}
	original := models.Content{HTML: "<h1>art</h1>", CSS: "h1{color:red}", JavaScript: "draw()"}

	r, err := svc.SaveResource(ctx, alice, service.SaveParams{Content: original})
	require.NoError(t, err)

	encrypted, err := svc.SetEncryption(ctx, r.Id, alice, "first", "")
	require.NoError(t, err)
	assert.True(t, encrypted.IsEncrypted())
	assert.True(t, encrypted.Content.IsEmpty())

	t.Run("rotation needs the current password", func(t *testing.T) {
		_, err := svc.SetEncryption(ctx, r.Id, alice, "second", "")
		assert.ErrorIs(t, err, service.ErrValidation)

		_, err = svc.SetEncryption(ctx, r.Id, alice, "second", "wrong")
		assert.ErrorIs(t, err, service.ErrCryptoFailure)
	})

	rotated, err := svc.SetEncryption(ctx, r.Id, alice, "second", "first")
	require.NoError(t, err)
	assert.NotEqual(t, encrypted.Envelope.Salt, rotated.Envelope.Salt)

	_, err = svc.RemoveEncryption(ctx, r.Id, alice, "first")
	assert.ErrorIs(t, err, service.ErrCryptoFailure)

	plain, err := svc.RemoveEncryption(ctx, r.Id, alice, "second")
	require.NoError(t, err)
	assert.False(t, plain.IsEncrypted())
	assert.Equal(t, original, plain.Content)

	_, err = svc.RemoveEncryption(ctx, r.Id, alice, "second")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRemoveEncryption_AttemptLimit(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()

	r, err := svc.SaveResource(ctx, nil, service.SaveParams{Content: models.Content{HTML: "x"}})
	require.NoError(t, err)
	_, err = svc.SetEncryption(ctx, r.Id, nil, "right", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.RemoveEncryption(ctx, r.Id, nil, "wrong")
		assert.ErrorIs(t, err, service.ErrCryptoFailure)
	}
	_, err = svc.RemoveEncryption(ctx, r.Id, nil, "right")
	assert.ErrorIs(t, err, service.ErrTooManyAttempts)
}
