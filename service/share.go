package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spectra-gallery/spectra-playground/cryptox"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/mq"
	"github.com/spectra-gallery/spectra-playground/store"
	"github.com/spectra-gallery/spectra-playground/worker"
)

const (
	shareTokenBytes     = 32
	maxShareTokenLength = 64
	shareTokenAttempts  = 3
)

type ShareGrant struct {
	Token     string           `json:"token"`
	Mode      models.ShareMode `json:"mode"`
	ExpiresAt int64            `json:"expiresAt"`
	ViewerURL string           `json:"viewerUrl"`
	// EditorURL is empty for viewer shares.
	EditorURL string `json:"editorUrl,omitempty"`
}

// SharedResource is what a share token grants access to.
type SharedResource struct {
	Id          string            `json:"id"`
	Title       string            `json:"title"`
	Seed        string            `json:"seed"`
	Tags        []string          `json:"tags"`
	Attrs       map[string]string `json:"attrs"`
	IsEncrypted bool              `json:"isEncrypted"`
	Mode        models.ShareMode  `json:"mode"`
	ExpiresAt   int64             `json:"expiresAt"`
	Content     *models.Content   `json:"content,omitempty"`
}

func (s *Service) IssueShare(ctx context.Context, id string, identity *models.Identity, mode string, ttlSeconds int64) (ShareGrant, error) {
	if identity == nil {
		return ShareGrant{}, ErrUnauthorized
	}
	if err := ValidateResourceId(id); err != nil {
		return ShareGrant{}, err
	}
	shareMode, err := ParseShareMode(mode)
	if err != nil {
		return ShareGrant{}, err
	}

	resource, err := s.loadResource(ctx, id)
	if err != nil {
		return ShareGrant{}, err
	}
	if err := AuthorizeMutation(resource, identity); err != nil {
		return ShareGrant{}, err
	}

	ttl := ClampShareTTL(ttlSeconds)
	now := s.Now().Unix()
	entry := models.ShareEntry{
		ResourceId: resource.Id,
		Mode:       shareMode,
		ExpiresAt:  now + ttl,
		Created:    now,
	}

	for attempt := 0; ; attempt++ {
		token, err := newShareToken()
		if err != nil {
			return ShareGrant{}, err
		}
		entry.Token = token

		err = s.Store.PutShare(ctx, entry)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrItemExists) || attempt+1 >= shareTokenAttempts {
			return ShareGrant{}, fmt.Errorf("put share: %w", err)
		}
	}

	if err := s.Cache.SetShare(ctx, entry, time.Duration(ttl)*time.Second); err != nil {
		s.Log.Warn(ctx, "cache share failed", "share", logging.Fingerprint(entry.Token), "error", err)
	}

	s.Log.Info(ctx, "share issued", "resourceId", resource.Id, "share", logging.Fingerprint(entry.Token), "mode", shareMode, "ttl", ttl)
	return s.shareGrant(entry), nil
}

func (s *Service) shareGrant(entry models.ShareEntry) ShareGrant {
	base := strings.TrimRight(s.Config.PublicBaseURL, "/")
	grant := ShareGrant{
		Token:     entry.Token,
		Mode:      entry.Mode,
		ExpiresAt: entry.ExpiresAt,
		ViewerURL: base + "/view/" + entry.Token,
	}
	if entry.Mode == models.ShareEditor {
		grant.EditorURL = base + "/edit/" + entry.Token
	}
	return grant
}

func newShareToken() (string, error) {
	b, err := cryptox.RandomBytes(shareTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ListShares returns the unexpired shares of a resource to its owner.
func (s *Service) ListShares(ctx context.Context, id string, identity *models.Identity) ([]ShareGrant, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}
	if err := ValidateResourceId(id); err != nil {
		return nil, err
	}
	resource, err := s.loadResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeMutation(resource, identity); err != nil {
		return nil, err
	}

	entries, err := s.Store.ListShares(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}

	now := s.Now().Unix()
	grants := make([]ShareGrant, 0, len(entries))
	expired := false
	for _, e := range entries {
		if e.Expired(now) {
			expired = true
			continue
		}
		grants = append(grants, s.shareGrant(e))
	}
	if expired {
		s.requestSweep(id)
	}
	return grants, nil
}

// lookupShare finds an unexpired share entry, trying the cache first.
func (s *Service) lookupShare(ctx context.Context, token string) (models.ShareEntry, error) {
	if token == "" || len(token) > maxShareTokenLength {
		return models.ShareEntry{}, ErrNotFound
	}

	entry, found, err := s.Cache.GetShare(ctx, token)
	if err != nil {
		s.Log.Warn(ctx, "share cache read failed", "share", logging.Fingerprint(token), "error", err)
		found = false
	}
	if !found {
		entry, err = s.Store.GetShare(ctx, token)
		if errors.Is(err, store.ErrItemNotFound) {
			return models.ShareEntry{}, ErrNotFound
		}
		if err != nil {
			return models.ShareEntry{}, fmt.Errorf("get share: %w", err)
		}
	}

	now := s.Now()
	if entry.Expired(now.Unix()) {
		s.requestSweep(entry.ResourceId)
		return models.ShareEntry{}, ErrNotFound
	}

	if !found {
		remaining := time.Unix(entry.ExpiresAt, 0).Sub(now)
		if err := s.Cache.SetShare(ctx, entry, remaining); err != nil {
			s.Log.Warn(ctx, "cache share failed", "share", logging.Fingerprint(token), "error", err)
		}
	}
	return entry, nil
}

// ResolveShare is the public, share-gated read of a resource.
func (s *Service) ResolveShare(ctx context.Context, token string) (SharedResource, error) {
	entry, err := s.lookupShare(ctx, token)
	if err != nil {
		return SharedResource{}, err
	}
	resource, err := s.loadResource(ctx, entry.ResourceId)
	if err != nil {
		return SharedResource{}, err
	}
	return sharedResource(resource, entry), nil
}

func sharedResource(r models.Resource, entry models.ShareEntry) SharedResource {
	shared := SharedResource{
		Id:          r.Id,
		Title:       r.Title,
		Seed:        r.Seed,
		Tags:        r.Tags,
		Attrs:       r.Attrs,
		IsEncrypted: r.IsEncrypted(),
		Mode:        entry.Mode,
		ExpiresAt:   entry.ExpiresAt,
	}
	if shared.Tags == nil {
		shared.Tags = []string{}
	}
	if shared.Attrs == nil {
		shared.Attrs = map[string]string{}
	}
	if !r.IsEncrypted() {
		content := r.Content
		shared.Content = &content
	}
	return shared
}

// DecryptShared opens the content of a shared encrypted resource. Attempts
// are counted per token and per clientKey; all failures look the same.
func (s *Service) DecryptShared(ctx context.Context, token, password, clientKey string) (models.Content, error) {
	entry, err := s.lookupShare(ctx, token)
	if err != nil {
		return models.Content{}, err
	}
	resource, err := s.loadResource(ctx, entry.ResourceId)
	if err != nil {
		return models.Content{}, err
	}
	if !resource.IsEncrypted() {
		return resource.Content, nil
	}
	if password == "" || len(password) > maxPasswordBytes {
		return models.Content{}, ErrCryptoFailure
	}

	var extra []string
	if clientKey != "" {
		extra = append(extra, attemptKeyClient(clientKey))
	}
	content, err := s.openContent(ctx, attemptKeyShare(token), resource.Envelope, password, extra...)
	if errors.Is(err, ErrCryptoFailure) {
		s.Log.Info(ctx, "share decrypt failed", "share", logging.Fingerprint(token))
	}
	return content, err
}

// requestSweep asks the sweeper to purge expired shares of the resource.
func (s *Service) requestSweep(resourceId string) {
	if s.SweepMQ == nil {
		return
	}
	go func() {
		msg := worker.PurgeExpiredSharesMessage{ResourceId: resourceId}
		if err := mq.SendJSON(context.Background(), s.SweepMQ, msg); err != nil {
			s.Log.Warn(context.Background(), "queue share sweep failed", "resourceId", resourceId, "error", err)
		}
	}()
}
