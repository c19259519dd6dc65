package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/store"
)

const maxMutationAttempts = 5

// ResourceView is the public representation of a resource. Encrypted
// resources never carry content.
type ResourceView struct {
	Id          string             `json:"id"`
	OwnerId     string             `json:"ownerId,omitempty"`
	Title       string             `json:"title"`
	Seed        string             `json:"seed"`
	Hash        string             `json:"hash"`
	Tags        []string           `json:"tags"`
	Attrs       map[string]string  `json:"attrs"`
	Layout      json.RawMessage    `json:"layout,omitempty"`
	Content     *models.Content    `json:"content,omitempty"`
	Transforms  []models.Transform `json:"transforms"`
	IsEncrypted bool               `json:"isEncrypted"`
	Algorithm   string             `json:"algorithm,omitempty"`
	Revision    int                `json:"revision"`
	Created     int64              `json:"created"`
	Updated     int64              `json:"updated"`
}

func NewResourceView(r models.Resource) ResourceView {
	v := ResourceView{
		Id:          r.Id,
		OwnerId:     r.OwnerId,
		Title:       r.Title,
		Seed:        r.Seed,
		Hash:        r.Hash,
		Tags:        r.Tags,
		Attrs:       r.Attrs,
		Layout:      r.Layout,
		Transforms:  r.Transforms,
		IsEncrypted: r.IsEncrypted(),
		Revision:    r.Revision,
		Created:     r.Created,
		Updated:     r.Updated,
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if v.Attrs == nil {
		v.Attrs = map[string]string{}
	}
	if v.Transforms == nil {
		v.Transforms = []models.Transform{}
	}
	if r.IsEncrypted() {
		v.Algorithm = r.Envelope.Algorithm
	} else {
		content := r.Content
		v.Content = &content
	}
	return v
}

type SaveParams struct {
	Id      string
	Content models.Content
	Hash    string
	Seed    string
	Title   string
}

func validateSaveParams(p SaveParams) error {
	if err := validateContent(p.Content); err != nil {
		return err
	}
	if len(p.Hash) > maxHashLength {
		return validationError("hash is too long")
	}
	if len(p.Seed) > maxSeedLength {
		return validationError("seed is too long")
	}
	return ValidateTitle(p.Title)
}

// SaveResource is the autosave entry point. A missing or unknown id creates
// a new resource owned by identity (or by nobody); a known id patches the
// non-empty fields of p.
func (s *Service) SaveResource(ctx context.Context, identity *models.Identity, p SaveParams) (models.Resource, error) {
	if err := validateSaveParams(p); err != nil {
		return models.Resource{}, err
	}

	if p.Id != "" && ValidateResourceId(p.Id) == nil {
		_, err := s.Store.GetResource(ctx, p.Id)
		if err == nil {
			return s.patchResource(ctx, identity, p)
		}
		if !errors.Is(err, store.ErrItemNotFound) {
			return models.Resource{}, fmt.Errorf("get resource: %w", err)
		}
	}

	return s.createResource(ctx, identity, p)
}

func (s *Service) createResource(ctx context.Context, identity *models.Identity, p SaveParams) (models.Resource, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.Resource{}, err
	}
	now := s.Now().Unix()
	resource := models.Resource{
		Id:       id.String(),
		Title:    p.Title,
		Seed:     p.Seed,
		Hash:     p.Hash,
		Tags:     []string{},
		Attrs:    map[string]string{},
		Content:  p.Content,
		Revision: 1,
		Created:  now,
		Updated:  now,
	}
	if identity != nil {
		resource.OwnerId = identity.Id
	}

	created, err := s.Store.CreateResource(ctx, resource)
	if err != nil {
		return models.Resource{}, fmt.Errorf("create resource: %w", err)
	}
	s.Log.Debug(ctx, "resource created", "resourceId", created.Id, "owned", created.OwnerId != "")
	return created, nil
}

func (s *Service) patchResource(ctx context.Context, identity *models.Identity, p SaveParams) (models.Resource, error) {
	var fields []string
	if !p.Content.IsEmpty() {
		fields = append(fields, "content")
	}
	if p.Hash != "" {
		fields = append(fields, "hash")
	}
	if p.Seed != "" {
		fields = append(fields, "seed")
	}
	if p.Title != "" {
		fields = append(fields, "title")
	}

	return s.mutateResource(ctx, p.Id, identity, fields, func(r *models.Resource) error {
		if !p.Content.IsEmpty() {
			if r.IsEncrypted() {
				return validationError("resource is encrypted; remove encryption before editing content")
			}
			if p.Content.HTML != "" {
				r.Content.HTML = p.Content.HTML
			}
			if p.Content.CSS != "" {
				r.Content.CSS = p.Content.CSS
			}
			if p.Content.JavaScript != "" {
				r.Content.JavaScript = p.Content.JavaScript
			}
		}
		if p.Hash != "" {
			r.Hash = p.Hash
		}
		if p.Seed != "" {
			r.Seed = p.Seed
		}
		if p.Title != "" {
			r.Title = p.Title
		}
		return nil
	})
}

// GetResource is a public read; no ownership check applies.
func (s *Service) GetResource(ctx context.Context, id string) (ResourceView, error) {
	if err := ValidateResourceId(id); err != nil {
		return ResourceView{}, err
	}
	resource, err := s.loadResource(ctx, id)
	if err != nil {
		return ResourceView{}, err
	}
	return NewResourceView(resource), nil
}

func (s *Service) loadResource(ctx context.Context, id string) (models.Resource, error) {
	resource, err := s.Store.GetResource(ctx, id)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.Resource{}, ErrNotFound
	}
	if err != nil {
		return models.Resource{}, fmt.Errorf("get resource: %w", err)
	}
	return resource, nil
}

func (s *Service) UpdateTags(ctx context.Context, id string, identity *models.Identity, tags []string) (models.Resource, error) {
	normalized, err := NormalizeTags(tags)
	if err != nil {
		return models.Resource{}, err
	}
	return s.mutateResource(ctx, id, identity, []string{"tags"}, func(r *models.Resource) error {
		r.Tags = normalized
		return nil
	})
}

func (s *Service) UpdateAttrs(ctx context.Context, id string, identity *models.Identity, attrs map[string]string) (models.Resource, error) {
	if err := ValidateAttrs(attrs); err != nil {
		return models.Resource{}, err
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	return s.mutateResource(ctx, id, identity, []string{"attrs"}, func(r *models.Resource) error {
		r.Attrs = attrs
		return nil
	})
}

func (s *Service) UpdateLayout(ctx context.Context, id string, identity *models.Identity, layout json.RawMessage) (models.Resource, error) {
	if err := ValidateLayout(layout); err != nil {
		return models.Resource{}, err
	}
	return s.mutateResource(ctx, id, identity, []string{"layout"}, func(r *models.Resource) error {
		r.Layout = layout
		return nil
	})
}

func (s *Service) UpdateTitle(ctx context.Context, id string, identity *models.Identity, title string) (models.Resource, error) {
	if err := ValidateTitle(title); err != nil {
		return models.Resource{}, err
	}
	return s.mutateResource(ctx, id, identity, []string{"title"}, func(r *models.Resource) error {
		r.Title = title
		return nil
	})
}

// mutateResource applies fn to the current version of the resource and writes
// it back only if nobody else changed it in between. Lost races are retried
// from a fresh read.
func (s *Service) mutateResource(ctx context.Context, id string, identity *models.Identity, fields []string, fn func(r *models.Resource) error) (models.Resource, error) {
	if err := ValidateResourceId(id); err != nil {
		return models.Resource{}, err
	}

	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		current, err := s.loadResource(ctx, id)
		if err != nil {
			return models.Resource{}, err
		}
		if err := AuthorizeMutation(current, identity); err != nil {
			return models.Resource{}, err
		}

		next := current
		if err := fn(&next); err != nil {
			return models.Resource{}, err
		}
		next.Updated = s.Now().Unix()

		updated, err := s.Store.UpdateResource(ctx, next, current.Revision)
		if errors.Is(err, store.ErrConditionFailed) {
			s.Log.Debug(ctx, "resource revision moved, retrying", "resourceId", id, "attempt", attempt+1)
			continue
		}
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Resource{}, ErrNotFound
		}
		if err != nil {
			return models.Resource{}, fmt.Errorf("update resource: %w", err)
		}

		s.publishUpdate(updated, fields...)
		return updated, nil
	}

	s.Log.Warn(ctx, "resource update gave up after concurrent writes", "resourceId", id)
	return models.Resource{}, ErrRevisionConflict
}
