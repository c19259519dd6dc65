package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spectra-gallery/spectra-playground/cryptox"
	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/worker"
)

// SetEncryption seals the resource content under password and clears the
// plaintext fields. An already encrypted resource is re-sealed, which needs
// currentPassword.
func (s *Service) SetEncryption(ctx context.Context, id string, identity *models.Identity, password, currentPassword string) (models.Resource, error) {
	if err := ValidatePassword(password); err != nil {
		return models.Resource{}, err
	}

	return s.mutateResource(ctx, id, identity, []string{"encryption"}, func(r *models.Resource) error {
		content := r.Content
		if r.IsEncrypted() {
			if currentPassword == "" {
				return validationError("current password is required to change encryption")
			}
			opened, err := s.openContent(ctx, attemptKeyResource(r.Id), r.Envelope, currentPassword)
			if err != nil {
				return err
			}
			content = opened
		}

		env, err := s.sealContent(ctx, content, password)
		if err != nil {
			return err
		}
		r.Envelope = env
		r.Content = models.Content{}
		return nil
	})
}

// RemoveEncryption restores the plaintext content and drops the envelope.
func (s *Service) RemoveEncryption(ctx context.Context, id string, identity *models.Identity, password string) (models.Resource, error) {
	if password == "" {
		return models.Resource{}, validationError("password is required")
	}

	return s.mutateResource(ctx, id, identity, []string{"encryption", "content"}, func(r *models.Resource) error {
		if !r.IsEncrypted() {
			return validationError("resource is not encrypted")
		}
		content, err := s.openContent(ctx, attemptKeyResource(r.Id), r.Envelope, password)
		if err != nil {
			return err
		}
		r.Content = content
		r.Envelope = nil
		return nil
	})
}

func (s *Service) sealContent(ctx context.Context, content models.Content, password string) (*models.EncryptionEnvelope, error) {
	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	defer cryptox.Zero(plaintext)

	return worker.RunKDF(ctx, s.KDFPool, func() (*models.EncryptionEnvelope, error) {
		return cryptox.Seal(s.kdf, plaintext, []byte(password))
	})
}

// openContent decrypts env after counting the attempt against attemptKey and
// extraKeys. Every decrypt or decode failure comes back as ErrCryptoFailure.
// Only attemptKey is reset on success.
func (s *Service) openContent(ctx context.Context, attemptKey string, env *models.EncryptionEnvelope, password string, extraKeys ...string) (models.Content, error) {
	keys := append([]string{attemptKey}, extraKeys...)
	if err := s.checkAttempts(ctx, keys...); err != nil {
		return models.Content{}, err
	}

	plaintext, err := worker.RunKDF(ctx, s.KDFPool, func() ([]byte, error) {
		return cryptox.Open(env, []byte(password))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.Content{}, err
	}
	if err != nil {
		return models.Content{}, ErrCryptoFailure
	}
	defer cryptox.Zero(plaintext)

	var content models.Content
	if err := json.Unmarshal(plaintext, &content); err != nil {
		return models.Content{}, ErrCryptoFailure
	}

	s.resetAttempts(ctx, attemptKey)
	return content, nil
}

func attemptKeyResource(resourceId string) string {
	return "resource:" + resourceId
}

func attemptKeyShare(token string) string {
	return "share:" + token
}

func attemptKeyClient(clientKey string) string {
	return "client:" + clientKey
}

// checkAttempts counts one decrypt attempt against every key and fails once
// any of them is over the configured limit.
func (s *Service) checkAttempts(ctx context.Context, keys ...string) error {
	limited := false
	for _, key := range keys {
		n, err := s.Cache.IncrementAttempts(ctx, key, s.Config.DecryptAttemptWindow)
		if err != nil {
			return err
		}
		if n > int64(s.Config.DecryptMaxAttempts) {
			limited = true
		}
	}
	if limited {
		s.Log.Warn(ctx, "decrypt attempts exceeded")
		return ErrTooManyAttempts
	}
	return nil
}

func (s *Service) resetAttempts(ctx context.Context, key string) {
	if err := s.Cache.ResetAttempts(ctx, key); err != nil {
		s.Log.Warn(ctx, "reset decrypt attempts failed", "error", err)
	}
}
