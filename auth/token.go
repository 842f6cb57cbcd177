// Package auth validates the signed identity tokens clients present
// when opening a chat connection. Tokens are issued by the account
// service; this side only verifies them.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"planet-chat/domain"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	UniqueTag   string   `json:"unique_tag"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// Participant maps the verified claims onto the chat identity used by
// presence and messaging.
func (c *CustomClaims) Participant() domain.Participant {
	return domain.Participant{
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		UniqueTag:   c.UniqueTag,
	}
}

// TokenManager signs and verifies tokens with a shared HMAC secret.
type TokenManager struct {
	secret   []byte
	duration time.Duration
	issuer   string
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		duration: duration,
		issuer:   "planet-chat",
	}
}

// Generate creates a signed JWT for a specific user. Used by the
// seeding tool and by tests; the account service holds the same
// secret in production.
func (m *TokenManager) Generate(participant domain.Participant, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      participant.UserID,
		DisplayName: participant.DisplayName,
		UniqueTag:   participant.UniqueTag,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and checks the signature and expiration of a JWT string.
func (m *TokenManager) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
