// Package auth adapts signed identity tokens to the engine's Identity.
//
// Sign-in itself happens elsewhere; this package only issues tokens for
// development and verifies the ones the session provider hands out.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/salonwise/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const issuer = "salonwise"

// JWTManager handles identity token generation and validation.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// Claims carries the customer profile of an authenticated session.
type Claims struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager with the given secret and token duration.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate signs a token for the given customer identity.
func (m *JWTManager) Generate(id models.Identity) (string, error) {
	if id.CustomerID == "" {
		return "", errors.New("customer id is required")
	}

	now := time.Now()
	claims := &Claims{
		CustomerID: id.CustomerID,
		Name:       id.Name,
		Email:      id.Email,
		Phone:      id.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.CustomerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses and validates a token, returning the claims if valid.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CustomerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Identity converts verified claims into an authenticated Identity.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		IsAuthenticated: true,
		CustomerID:      c.CustomerID,
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
	}
}
