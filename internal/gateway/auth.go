package gateway

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by authenticate when the bearer token is
// missing, malformed, or signed with the wrong secret.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// authenticate validates an HS256 bearer token the same way the teacher's
// JWTAuth HTTP middleware does, adapted to the WebSocket handshake: the
// token travels as a query parameter (`?token=`) or an Authorization
// header, since not every client library exposes custom headers on the
// upgrade request. The teacher's JWTAuth also carried the username claim
// through to the request context, which spec.md §4.7 requires attaching on
// connect alongside userId; username is optional and falls back to "" for
// tokens minted without one.
func authenticate(secret, raw string) (bidderID, username string, err error) {
	if raw == "" {
		return "", "", ErrUnauthorized
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", "", ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrUnauthorized
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", ErrUnauthorized
	}
	username, _ = claims["username"].(string)
	return sub, username, nil
}
