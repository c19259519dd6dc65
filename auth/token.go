package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spectra-gallery/spectra-playground/models"
)

type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens. The secret is copied on
// construction and never changes afterwards.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &TokenIssuer{secret: s, ttl: ttl, now: now}, nil
}

func (t *TokenIssuer) Sign(identity models.Identity) (string, error) {
	issuedAt := t.now()
	claims := Claims{
		ID:       identity.Id,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString. A token stays valid
// up to and including the second named by its exp claim.
func (t *TokenIssuer) Verify(tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return models.Identity{}, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	if t.now().Unix() > claims.ExpiresAt.Unix() {
		return models.Identity{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if claims.ID == "" {
		return models.Identity{}, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}

	return models.Identity{Id: claims.ID, Username: claims.Username}, nil
}
