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
	"github.com/spectra-gallery/spectra-playground/store"
)

func ownedResource(owner string) models.Resource {
	return models.Resource{
		Id:       resourceId,
		OwnerId:  owner,
		Title:    "sketch",
		Tags:     []string{"old"},
		Attrs:    map[string]string{},
		Content:  models.Content{HTML: "<p>hi</p>", CSS: "p{}", JavaScript: "1"},
		Revision: 3,
	}
}

func bumpRevision(_ context.Context, r models.Resource, expected int) models.Resource {
	r.Revision = expected + 1
	return r
}

func TestAuthorizeMutation(t *testing.T) {
	owner := &models.Identity{Id: ownerId, Username: "alice"}
	stranger := &models.Identity{Id: strangerId, Username: "mallory"}

	tests := []struct {
		name     string
		ownerId  string
		identity *models.Identity
		wantErr  error
	}{
		{"ownerless, anonymous", "", nil, nil},
		{"ownerless, any identity", "", stranger, nil},
		{"owned, owner", ownerId, owner, nil},
		{"owned, other identity", ownerId, stranger, service.ErrForbidden},
		{"owned, anonymous", ownerId, nil, service.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := service.AuthorizeMutation(models.Resource{OwnerId: tc.ownerId}, tc.identity)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestUpdateTags_Success(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	deps.store.On("UpdateResource", ctx, mock.MatchedBy(func(r models.Resource) bool {
		return assert.ObjectsAreEqual([]string{"a", "b"}, r.Tags) && r.OwnerId == ownerId
	}), 3).Return(bumpRevision, nil)

	updated, err := svc.UpdateTags(ctx, resourceId, &models.Identity{Id: ownerId}, []string{" a", "b", "a", ""})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Revision)
	assert.Equal(t, "resource:"+resourceId, waitFor(t, deps.published, "Publish"))
	deps.store.AssertExpectations(t)
}

func TestUpdateTags_Forbidden(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	_, err := svc.UpdateTags(ctx, resourceId, &models.Identity{Id: strangerId}, []string{"x"})
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.UpdateTags(ctx, resourceId, nil, []string{"x"})
	assert.ErrorIs(t, err, service.ErrForbidden)

	deps.store.AssertNotCalled(t, "UpdateResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateTags_RetriesOnRevisionMismatch(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	stale := ownedResource("")
	fresh := ownedResource("")
	fresh.Revision = 4
	fresh.Attrs = map[string]string{"color": "red"}

	deps.store.On("GetResource", ctx, resourceId).Return(stale, nil).Once()
	deps.store.On("GetResource", ctx, resourceId).Return(fresh, nil).Once()
	deps.store.On("UpdateResource", ctx, mock.Anything, 3).Return(models.Resource{}, store.ErrConditionFailed).Once()
	deps.store.On("UpdateResource", ctx, mock.MatchedBy(func(r models.Resource) bool {
		return r.Attrs["color"] == "red"
	}), 4).Return(bumpRevision, nil).Once()

	updated, err := svc.UpdateTags(ctx, resourceId, nil, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Revision)
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.Equal(t, "red", updated.Attrs["color"])
	deps.store.AssertExpectations(t)
}

func TestUpdateTags_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(""), nil)
	deps.store.On("UpdateResource", ctx, mock.Anything, 3).Return(models.Resource{}, store.ErrConditionFailed)

	_, err := svc.UpdateTags(ctx, resourceId, nil, []string{"x"})
	assert.ErrorIs(t, err, service.ErrRevisionConflict)
	deps.store.AssertNumberOfCalls(t, "UpdateResource", 5)
}

func TestMutation_NotFoundAndValidation(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(models.Resource{}, store.ErrItemNotFound)

	_, err := svc.UpdateTitle(ctx, resourceId, nil, "t")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = svc.UpdateTitle(ctx, "not-a-uuid", nil, "t")
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.UpdateLayout(ctx, resourceId, nil, json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.UpdateAttrs(ctx, resourceId, nil, map[string]string{"": "x"})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestGetResource(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	plain := ownedResource(ownerId)
	encrypted := ownedResource(ownerId)
	encrypted.Id = "01890a5d-ac96-774b-bcce-b302099a8058"
	encrypted.Content = models.Content{}
	encrypted.Envelope = &models.EncryptionEnvelope{Algorithm: "aes-256-gcm/scrypt"}

	deps.store.On("GetResource", ctx, plain.Id).Return(plain, nil)
	deps.store.On("GetResource", ctx, encrypted.Id).Return(encrypted, nil)

	view, err := svc.GetResource(ctx, plain.Id)
	require.NoError(t, err)
	require.NotNil(t, view.Content)
	assert.Equal(t, "<p>hi</p>", view.Content.HTML)
	assert.False(t, view.IsEncrypted)

	view, err = svc.GetResource(ctx, encrypted.Id)
	require.NoError(t, err)
	assert.Nil(t, view.Content)
	assert.True(t, view.IsEncrypted)
	assert.Equal(t, "aes-256-gcm/scrypt", view.Algorithm)

	_, err = svc.GetResource(ctx, "nope")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestGetResource_StoreFails(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(models.Resource{}, errors.New("db down"))

	_, err := svc.GetResource(ctx, resourceId)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrNotFound)
}

func TestSaveResource_CreatesAndPatches(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()
	alice := &models.Identity{Id: ownerId, Username: "alice"}

	anon, err := svc.SaveResource(ctx, nil, service.SaveParams{Content: models.Content{HTML: "<b>x</b>"}, Seed: "s1"})
	require.NoError(t, err)
	assert.Empty(t, anon.OwnerId)
	assert.Equal(t, 1, anon.Revision)
	require.NoError(t, service.ValidateResourceId(anon.Id))

	owned, err := svc.SaveResource(ctx, alice, service.SaveParams{Id: "unknown", Title: "mine"})
	require.NoError(t, err)
	assert.Equal(t, ownerId, owned.OwnerId)
	assert.NotEqual(t, "unknown", owned.Id)

	patched, err := svc.SaveResource(ctx, nil, service.SaveParams{Id: anon.Id, Content: models.Content{CSS: "b{}"}, Hash: "h2"})
	require.NoError(t, err)
	assert.Equal(t, anon.Id, patched.Id)
	assert.Equal(t, 2, patched.Revision)
	assert.Equal(t, "<b>x</b>", patched.Content.HTML)
	assert.Equal(t, "b{}", patched.Content.CSS)
	assert.Equal(t, "h2", patched.Hash)
	assert.Equal(t, "s1", patched.Seed)

	_, err = svc.SaveResource(ctx, nil, service.SaveParams{Id: owned.Id, Title: "stolen"})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestSaveResource_RejectsContentOnEncrypted(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()

	r, err := svc.SaveResource(ctx, nil, service.SaveParams{Content: models.Content{HTML: "secret"}})
	require.NoError(t, err)
	_, err = svc.SetEncryption(ctx, r.Id, nil, "p@ss", "")
	require.NoError(t, err)

	_, err = svc.SaveResource(ctx, nil, service.SaveParams{Id: r.Id, Content: models.Content{HTML: "leak"}})
	assert.ErrorIs(t, err, service.ErrValidation)

	titled, err := svc.SaveResource(ctx, nil, service.SaveParams{Id: r.Id, Title: "still editable"})
	require.NoError(t, err)
	assert.Equal(t, "still editable", titled.Title)
}
