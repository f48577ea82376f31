// Package auth resolves the caller identity the request layer hands to
// the services: either a browser session or a signed bearer token. The
// IsAdmin flag here is only a routing hint; admin-only operations
// re-verify the flag against the user collection.
package auth

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt"

	"teestyle/internal/models"
)

type Identity struct {
	UserID  string
	IsAdmin bool
}

type Manager struct {
	secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

func (m *Manager) IssueToken(u models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.ID.Hex(),
		"admin": u.IsAdmin,
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) ParseToken(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, models.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, models.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, models.ErrUnauthorized
	}
	admin, _ := claims["admin"].(bool)
	return Identity{UserID: sub, IsAdmin: admin}, nil
}
