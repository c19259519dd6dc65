package auth

import (
	"net/http"
	"strings"

	"github.com/spectra-gallery/spectra-playground/models"
)

// TokenVerifier is the part of TokenIssuer the guard needs.
type TokenVerifier interface {
	Verify(tokenString string) (models.Identity, error)
}

type Guard struct {
	verifier TokenVerifier
}

func NewGuard(verifier TokenVerifier) *Guard {
	return &Guard{verifier: verifier}
}

// RequireAuth resolves the bearer token of r to an identity.
func (g *Guard) RequireAuth(r *http.Request) (models.Identity, error) {
	token := BearerToken(r)
	if token == "" {
		return models.Identity{}, ErrMissingToken
	}
	return g.verifier.Verify(token)
}

// TryAuth is RequireAuth for routes where the caller may be anonymous. An
// absent or invalid token yields nil.
func (g *Guard) TryAuth(r *http.Request) *models.Identity {
	identity, err := g.RequireAuth(r)
	if err != nil {
		return nil
	}
	return &identity
}

func (g *Guard) VerifyToken(token string) (models.Identity, error) {
	return g.verifier.Verify(token)
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}
