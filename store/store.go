package store

import (
	"context"
	"errors"

	"github.com/spectra-gallery/spectra-playground/models"
)

type PlaygroundStore interface {
	// CreateUser fails with ErrItemExists when the username is taken.
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error)
	GetResource(ctx context.Context, id string) (models.Resource, error)
	// UpdateResource replaces the stored resource only if its revision is
	// still expectedRevision. The returned resource carries the new revision.
	UpdateResource(ctx context.Context, resource models.Resource, expectedRevision int) (models.Resource, error)

	// PutShare fails with ErrItemExists when the token is already stored.
	PutShare(ctx context.Context, share models.ShareEntry) error
	GetShare(ctx context.Context, token string) (models.ShareEntry, error)
	ListShares(ctx context.Context, resourceId string) ([]models.ShareEntry, error)
	// DeleteExpiredShares removes every share of the resource that expired
	// before now and returns the removed tokens.
	DeleteExpiredShares(ctx context.Context, resourceId string, now int64) ([]string, error)
}

var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
	ErrItemExists      = errors.New("item already exists")
)
