package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/service"
	"github.com/spectra-gallery/spectra-playground/store"
	"github.com/spectra-gallery/spectra-playground/worker"
)

func TestClampShareTTL(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 86400},
		{1, 60},
		{-5, 60},
		{59, 60},
		{60, 60},
		{3600, 3600},
		{604800, 604800},
		{604801, 604800},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, service.ClampShareTTL(tc.in), "ttl %d", tc.in)
	}
}

func TestIssueShare_Success(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	now := deps.clock.Now().Unix()

	var stored models.ShareEntry
	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	deps.store.On("PutShare", ctx, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(models.ShareEntry)
	}).Return(nil)
	deps.cache.On("SetShare", ctx, mock.Anything, 3600*time.Second).Return(nil)

	grant, err := svc.IssueShare(ctx, resourceId, &models.Identity{Id: ownerId}, "editor", 3600)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(grant.Token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, models.ShareEditor, grant.Mode)
	assert.Equal(t, now+3600, grant.ExpiresAt)
	assert.Equal(t, "https://play.example.com/view/"+grant.Token, grant.ViewerURL)
	assert.Equal(t, "https://play.example.com/edit/"+grant.Token, grant.EditorURL)

	assert.Equal(t, grant.Token, stored.Token)
	assert.Equal(t, resourceId, stored.ResourceId)
	assert.Equal(t, now, stored.Created)
	deps.cache.AssertExpectations(t)
}

func TestIssueShare_ViewerHasNoEditorURL(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(""), nil)
	deps.store.On("PutShare", ctx, mock.Anything).Return(nil)
	deps.cache.On("SetShare", ctx, mock.Anything, 60*time.Second).Return(nil)

	grant, err := svc.IssueShare(ctx, resourceId, &models.Identity{Id: strangerId}, "", 5)
	require.NoError(t, err)
	assert.Equal(t, models.ShareViewer, grant.Mode)
	assert.Empty(t, grant.EditorURL)
}

func TestIssueShare_RetriesTokenCollision(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	deps.store.On("PutShare", ctx, mock.Anything).Return(store.ErrItemExists).Once()
	deps.store.On("PutShare", ctx, mock.Anything).Return(nil).Once()
	deps.cache.On("SetShare", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := svc.IssueShare(ctx, resourceId, &models.Identity{Id: ownerId}, "viewer", 0)
	require.NoError(t, err)
	deps.store.AssertNumberOfCalls(t, "PutShare", 2)
}

func TestIssueShare_Errors(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	_, err := svc.IssueShare(ctx, resourceId, nil, "viewer", 0)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = svc.IssueShare(ctx, resourceId, &models.Identity{Id: strangerId}, "viewer", 0)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.IssueShare(ctx, resourceId, &models.Identity{Id: ownerId}, "admin", 0)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = svc.IssueShare(ctx, "bad id", &models.Identity{Id: ownerId}, "viewer", 0)
	assert.ErrorIs(t, err, service.ErrValidation)

	deps.store.AssertNotCalled(t, "PutShare", mock.Anything, mock.Anything)
}

func TestResolveShare_CacheHit(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	now := deps.clock.Now().Unix()

	entry := models.ShareEntry{Token: "tok", ResourceId: resourceId, Mode: models.ShareViewer, ExpiresAt: now + 60}
	deps.cache.On("GetShare", ctx, "tok").Return(entry, true, nil)
	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	shared, err := svc.ResolveShare(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, resourceId, shared.Id)
	assert.Equal(t, "sketch", shared.Title)
	assert.False(t, shared.IsEncrypted)
	require.NotNil(t, shared.Content)
	deps.store.AssertNotCalled(t, "GetShare", mock.Anything, mock.Anything)
}

func TestResolveShare_CacheMissFillsCache(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	now := deps.clock.Now().Unix()

	entry := models.ShareEntry{Token: "tok", ResourceId: resourceId, Mode: models.ShareViewer, ExpiresAt: now + 90}
	deps.cache.On("GetShare", ctx, "tok").Return(models.ShareEntry{}, false, nil)
	deps.store.On("GetShare", ctx, "tok").Return(entry, nil)
	deps.cache.On("SetShare", ctx, entry, 90*time.Second).Return(nil)
	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)

	_, err := svc.ResolveShare(ctx, "tok")
	require.NoError(t, err)
	deps.cache.AssertExpectations(t)
}

func TestResolveShare_ExpiredQueuesSweep(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	now := deps.clock.Now().Unix()

	entry := models.ShareEntry{Token: "tok", ResourceId: resourceId, ExpiresAt: now - 1}
	deps.cache.On("GetShare", ctx, "tok").Return(models.ShareEntry{}, false, nil)
	deps.store.On("GetShare", ctx, "tok").Return(entry, nil)

	_, err := svc.ResolveShare(ctx, "tok")
	assert.ErrorIs(t, err, service.ErrNotFound)

	var job worker.PurgeExpiredSharesMessage
	require.NoError(t, json.Unmarshal([]byte(waitFor(t, deps.sent, "Send")), &job))
	assert.Equal(t, resourceId, job.ResourceId)
	deps.store.AssertNotCalled(t, "GetResource", mock.Anything, mock.Anything)
}

func TestResolveShare_Missing(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()

	deps.cache.On("GetShare", ctx, "tok").Return(models.ShareEntry{}, false, nil)
	deps.store.On("GetShare", ctx, "tok").Return(models.ShareEntry{}, store.ErrItemNotFound)

	_, err := svc.ResolveShare(ctx, "tok")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = svc.ResolveShare(ctx, "")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = svc.ResolveShare(ctx, strings.Repeat("t", 200))
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestListShares_ActiveOnly(t *testing.T) {
	svc, deps := setupService(t)
	ctx := context.Background()
	now := deps.clock.Now().Unix()

	deps.store.On("GetResource", ctx, resourceId).Return(ownedResource(ownerId), nil)
	deps.store.On("ListShares", ctx, resourceId).Return([]models.ShareEntry{
		{Token: "old", ResourceId: resourceId, Mode: models.ShareViewer, ExpiresAt: now - 10},
		{Token: "new", ResourceId: resourceId, Mode: models.ShareViewer, ExpiresAt: now + 10},
	}, nil)

	grants, err := svc.ListShares(ctx, resourceId, &models.Identity{Id: ownerId})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "new", grants[0].Token)
	waitFor(t, deps.sent, "Send")

	_, err = svc.ListShares(ctx, resourceId, &models.Identity{Id: strangerId})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestDecryptShared_AttemptLimits(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()
	alice := &models.Identity{Id: ownerId, Username: "alice"}

	r, err := svc.SaveResource(ctx, alice, service.SaveParams{Content: models.Content{HTML: "hidden"}})
	require.NoError(t, err)
	_, err = svc.SetEncryption(ctx, r.Id, alice, "p@ss", "")
	require.NoError(t, err)
	grant, err := svc.IssueShare(ctx, r.Id, alice, "viewer", 3600)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.DecryptShared(ctx, grant.Token, "guess", "10.0.0.1")
		assert.ErrorIs(t, err, service.ErrCryptoFailure)
	}

	_, err = svc.DecryptShared(ctx, grant.Token, "p@ss", "10.0.0.2")
	assert.ErrorIs(t, err, service.ErrTooManyAttempts)
}

func TestDecryptShared_ClientLimitSpansTokens(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()
	alice := &models.Identity{Id: ownerId, Username: "alice"}

	r, err := svc.SaveResource(ctx, alice, service.SaveParams{Content: models.Content{HTML: "hidden"}})
	require.NoError(t, err)
	_, err = svc.SetEncryption(ctx, r.Id, alice, "p@ss", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		grant, err := svc.IssueShare(ctx, r.Id, alice, "viewer", 3600)
		require.NoError(t, err)
		_, err = svc.DecryptShared(ctx, grant.Token, "guess", "10.0.0.1")
		assert.ErrorIs(t, err, service.ErrCryptoFailure)
	}

	fresh, err := svc.IssueShare(ctx, r.Id, alice, "viewer", 3600)
	require.NoError(t, err)
	_, err = svc.DecryptShared(ctx, fresh.Token, "p@ss", "10.0.0.1")
	assert.ErrorIs(t, err, service.ErrTooManyAttempts)

	content, err := svc.DecryptShared(ctx, fresh.Token, "p@ss", "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "hidden", content.HTML)
}

func TestDecryptShared_Unencrypted(t *testing.T) {
	svc, _ := setupMemoryService(t)
	ctx := context.Background()

	r, err := svc.SaveResource(ctx, nil, service.SaveParams{Content: models.Content{HTML: "open"}})
	require.NoError(t, err)
	grant, err := svc.IssueShare(ctx, r.Id, &models.Identity{Id: strangerId}, "viewer", 0)
	require.NoError(t, err)

	content, err := svc.DecryptShared(ctx, grant.Token, "", "")
	require.NoError(t, err)
	assert.Equal(t, "open", content.HTML)
}
