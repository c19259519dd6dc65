package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
)

// GenerateTransform asks the lab service for a new transform of the resource
// and appends the result to it.
func (s *Service) GenerateTransform(ctx context.Context, id string, identity *models.Identity, kind string, input json.RawMessage) (models.Transform, error) {
	if err := ValidateResourceId(id); err != nil {
		return models.Transform{}, err
	}
	transformKind, err := ParseTransformKind(kind)
	if err != nil {
		return models.Transform{}, err
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if len(input) > maxTransformSize || !json.Valid(input) {
		return models.Transform{}, validationError("transform input must be valid JSON up to %d bytes", maxTransformSize)
	}

	resource, err := s.loadResource(ctx, id)
	if err != nil {
		return models.Transform{}, err
	}
	if err := AuthorizeMutation(resource, identity); err != nil {
		return models.Transform{}, err
	}

	result, err := s.Lab.Create(ctx, transformKind, id, input)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transform{}, err
	}
	if err != nil {
		s.Log.Error(ctx, "lab request failed", "resourceId", id, "kind", transformKind, "error", err)
		return models.Transform{}, fmt.Errorf("%w: %s", ErrUpstream, transformKind)
	}

	transformId, err := uuid.NewV7()
	if err != nil {
		return models.Transform{}, err
	}
	transform := models.Transform{
		Id:      transformId.String(),
		Kind:    transformKind,
		Result:  result,
		Created: s.Now().Unix(),
	}

	_, err = s.mutateResource(ctx, id, identity, []string{"transforms"}, func(r *models.Resource) error {
		r.Transforms = append(r.Transforms, transform)
		return nil
	})
	if err != nil {
		return models.Transform{}, err
	}
	return transform, nil
}
