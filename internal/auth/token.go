package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "safehome"

// Claims are the JWT claims of a SafeHome session token. The registered ID
// claim carries the session id, so deleting the session revokes the token.
type Claims struct {
	UserID  string  `json:"user_id"`
	Role    string  `json:"role"`
	Channel Channel `json:"channel"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens.
type TokenIssuer struct {
	secret        []byte
	signingMethod jwt.SigningMethod
}

// NewTokenIssuer creates an HS256 TokenIssuer.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret:        []byte(secret),
		signingMethod: jwt.SigningMethodHS256,
	}
}

// Issue signs a token bound to session.
func (t *TokenIssuer) Issue(session *Session, role string) (string, error) {
	claims := Claims{
		UserID:  session.UserID,
		Role:    role,
		Channel: session.Channel,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.UserID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			NotBefore: jwt.NewNumericDate(session.CreatedAt.Add(-time.Second)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(t.signingMethod, claims)
	return token.SignedString(t.secret)
}

// Validate parses a token and returns its claims.
func (t *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != t.signingMethod {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
