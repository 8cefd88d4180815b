// Package identity turns what the identity provider hands over into a
// domain.Identity. Session tokens are decoded, not verified: signature
// checks belong to the provider in front of this service.
package identity

import (
	"errors"
	"strconv"
	"strings"

	"github.com/cwrk-planet/roulette-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

const (
	HeaderUserID      = "X-User-ID"
	HeaderUsername    = "X-Username"
	HeaderDisplayName = "X-Display-Name"
	HeaderAvatarURL   = "X-Avatar-URL"
)

var ErrMissing = errors.New("identity missing")

// SessionClaims is the payload of a session token. sub carries the player id.
type SessionClaims struct {
	jwt.StandardClaims
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// FromToken decodes a session token without checking its signature.
func FromToken(token string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return domain.Identity{}, ErrMissing
	}
	claims := &SessionClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return domain.Identity{}, errors.Join(domain.ErrInvalidIdentity, err)
	}
	id, err := parseID(claims.Subject)
	if err != nil {
		return domain.Identity{}, err
	}
	return build(id, claims.Username, claims.DisplayName, claims.AvatarURL), nil
}

// FromValues builds an identity from loose header or metadata values.
func FromValues(userID, username, displayName, avatarURL string) (domain.Identity, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Identity{}, ErrMissing
	}
	id, err := parseID(userID)
	if err != nil {
		return domain.Identity{}, err
	}
	return build(id, username, displayName, avatarURL), nil
}

// Getter is satisfied by http.Header and by a small metadata adapter.
type Getter interface {
	Get(key string) string
}

// Resolve prefers a bearer session token and falls back to the X-User-ID
// header family. ErrMissing means neither was present.
func Resolve(authorization string, h Getter) (domain.Identity, error) {
	if strings.HasPrefix(authorization, "Bearer ") {
		id, err := FromToken(authorization)
		if err == nil || !errors.Is(err, ErrMissing) {
			return id, err
		}
	}
	return FromValues(h.Get(HeaderUserID), h.Get(HeaderUsername), h.Get(HeaderDisplayName), h.Get(HeaderAvatarURL))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidIdentity
	}
	return id, nil
}

func build(id int64, username, displayName, avatarURL string) domain.Identity {
	out := domain.Identity{
		ID:          id,
		Username:    strings.TrimSpace(username),
		DisplayName: strings.TrimSpace(displayName),
	}
	if a := strings.TrimSpace(avatarURL); a != "" {
		out.AvatarURL = &a
	}
	return out
}
