// Package auth issues and verifies the bearer tokens actors present, and
// answers whether an actor may touch a list.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// Claims are the JWT claims duffel tokens carry.
type Claims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager builds a manager. ttl bounds the lifetime of minted
// tokens.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Mint returns a signed token for the actor.
func (m *TokenManager) Mint(actor model.ActorID) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		ActorID: actor.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   actor.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and issuer, and returns the actor the
// token was minted for. All failures map to CodeUnauthorized.
func (m *TokenManager) Verify(raw string) (model.ActorID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.ActorID{}, fault.Wrap(fault.CodeUnauthorized, "token expired", err)
		}
		return model.ActorID{}, fault.Wrap(fault.CodeUnauthorized, "invalid token", err)
	}
	if !token.Valid {
		return model.ActorID{}, fault.New(fault.CodeUnauthorized, "invalid token")
	}

	actor, err := model.ParseActorID(claims.ActorID)
	if err != nil {
		return model.ActorID{}, fault.Wrap(fault.CodeUnauthorized, "invalid actor claim", err)
	}
	return actor, nil
}
