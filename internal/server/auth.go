package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkruglov/roomcast/internal/api"
)

const tokenLifetime = 24 * time.Hour

// Claims carries the authenticated user inside the JWT.
type Claims struct {
	User api.UserInfo `json:"user"`
	jwt.RegisteredClaims
}

// Auth issues and validates HMAC-signed session tokens.
type Auth struct {
	secret []byte
}

// NewAuth creates an auth service with the shared HMAC secret.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// NewToken issues a token for the given display name.
func (a *Auth) NewToken(name, pictureURL string) (string, error) {
	claims := Claims{
		User: api.UserInfo{
			ID:         uuid.NewString(),
			Name:       name,
			PictureURL: pictureURL,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken checks the signature and expiry and returns the embedded user.
func (a *Auth) ValidateToken(tokenString string) (api.UserInfo, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return api.UserInfo{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User.ID == "" {
		return api.UserInfo{}, errors.New("invalid token claims")
	}
	return claims.User, nil
}

// userFromRequest extracts and validates the bearer token (or jwt cookie)
// from an HTTP request.
func (a *Auth) userFromRequest(r *http.Request) (api.UserInfo, error) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie("jwt"); err == nil {
		return a.ValidateToken(cookie.Value)
	}
	return api.UserInfo{}, errors.New("no credential")
}
