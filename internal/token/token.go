// Package token issues and verifies the signed room and forward-stream
// tokens exchanged between the signaling backend and the media engine.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okabe/liveroom/internal/domain"
)

var ErrTokenMismatch = errors.New("token does not match room or user")

type Claims struct {
	Room    domain.RoomID `json:"room"`
	UID     domain.UserID `json:"uid"`
	Host    bool          `json:"host,omitempty"`
	Forward bool          `json:"forward,omitempty"`
	jwt.RegisteredClaims
}

// Sign mints an HS256 token binding a user to a room.
func Sign(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// Parse verifies signature and expiry and returns the claims.
func Parse(secret, raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// Verify parses raw and checks it was minted for the given room and user.
func Verify(secret, raw string, room domain.RoomID, uid domain.UserID) (*Claims, error) {
	claims, err := Parse(secret, raw)
	if err != nil {
		return nil, err
	}
	if claims.Room != room || claims.UID != uid {
		return nil, ErrTokenMismatch
	}
	return claims, nil
}
