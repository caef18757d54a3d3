package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Validator checks a bearer token and returns the viewer key it proves.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, token string) (string, error)

func (f ValidatorFunc) ValidateToken(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// JWTValidator verifies the signature with the upstream's RS256 public key or
// its HS256 secret.
type JWTValidator struct {
	publicKey *rsa.PublicKey
	secret    []byte
}

func NewJWTValidator(publicKeyPEM, secret []byte) (*JWTValidator, error) {
	v := &JWTValidator{secret: secret}
	if len(publicKeyPEM) > 0 {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		v.publicKey = pub
	}
	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, errors.New("jwt validator needs a public key or a secret")
	}
	return v, nil
}

func (v *JWTValidator) ValidateToken(_ context.Context, tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if v.publicKey != nil {
				return v.publicKey, nil
			}
		case *jwt.SigningMethodHMAC:
			if len(v.secret) > 0 {
				return v.secret, nil
			}
		}
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	viewer := viewerFromClaims(claims)
	if viewer == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return viewer, nil
}

// MeFetcher is the part of the upstream API that resolves the token owner.
type MeFetcher interface {
	FetchMe(ctx context.Context) (domain.Viewer, error)
}

// UpstreamValidator asks the upstream backend who owns the token. It is used
// when no signing key is configured.
type UpstreamValidator struct {
	api MeFetcher
}

func NewUpstreamValidator(api MeFetcher) *UpstreamValidator {
	return &UpstreamValidator{api: api}
}

func (v *UpstreamValidator) ValidateToken(ctx context.Context, tokenStr string) (string, error) {
	me, err := v.api.FetchMe(domain.WithAccessToken(ctx, tokenStr))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	key := me.IdentityKey()
	if key == "" || me.IsGuest() {
		return "", fmt.Errorf("%w: upstream returned no user", ErrInvalidToken)
	}
	return key, nil
}
