package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/store"
	"github.com/spectra-gallery/spectra-playground/worker"
)

// PublicUser is the user record as returned to clients.
type PublicUser struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Created  int64  `json:"created,omitempty"`
}

func toPublicUser(u models.User) PublicUser {
	return PublicUser{Id: u.Id, Username: u.Username, Created: u.Created}
}

func (s *Service) Register(ctx context.Context, username, password string) (PublicUser, string, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return PublicUser{}, "", err
	}
	if err := ValidatePassword(password); err != nil {
		return PublicUser{}, "", err
	}

	hash, err := worker.RunKDF(ctx, s.KDFPool, func() (string, error) {
		return s.Hasher.Hash(password)
	})
	if err != nil {
		return PublicUser{}, "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return PublicUser{}, "", err
	}

	user, err := s.Store.CreateUser(ctx, models.User{
		Id:           id.String(),
		Username:     username,
		PasswordHash: hash,
		Created:      s.Now().Unix(),
	})
	if errors.Is(err, store.ErrItemExists) {
		return PublicUser{}, "", ErrUsernameTaken
	}
	if err != nil {
		return PublicUser{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.Tokens.Sign(models.Identity{Id: user.Id, Username: user.Username})
	if err != nil {
		return PublicUser{}, "", err
	}

	s.Log.Info(ctx, "user registered", "userId", user.Id)
	return toPublicUser(user), token, nil
}

// Login checks the password of username. An unknown user still pays for one
// verification against a dummy hash.
func (s *Service) Login(ctx context.Context, username, password string) (PublicUser, string, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil || password == "" || len(password) > maxPasswordBytes {
		return PublicUser{}, "", ErrInvalidCredentials
	}

	user, err := s.Store.GetUserByUsername(ctx, normalized)
	found := true
	if errors.Is(err, store.ErrItemNotFound) {
		found = false
	} else if err != nil {
		return PublicUser{}, "", fmt.Errorf("get user: %w", err)
	}

	stored := user.PasswordHash
	if !found {
		stored = s.Hasher.DummyHash()
	}

	matched, err := worker.RunKDF(ctx, s.KDFPool, func() (bool, error) {
		return s.Hasher.Verify(password, stored) == nil, nil
	})
	if err != nil {
		return PublicUser{}, "", err
	}
	if !found || !matched {
		return PublicUser{}, "", ErrInvalidCredentials
	}

	token, err := s.Tokens.Sign(models.Identity{Id: user.Id, Username: user.Username})
	if err != nil {
		return PublicUser{}, "", err
	}
	return toPublicUser(user), token, nil
}

func (s *Service) Me(identity *models.Identity) (PublicUser, error) {
	if identity == nil {
		return PublicUser{}, ErrUnauthorized
	}
	return PublicUser{Id: identity.Id, Username: identity.Username}, nil
}

// AuthenticateToken resolves a bearer token to the identity it was issued for.
func (s *Service) AuthenticateToken(token string) (models.Identity, error) {
	identity, err := s.Tokens.Verify(token)
	if err != nil {
		return models.Identity{}, ErrUnauthorized
	}
	return identity, nil
}
