package wsmux

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// authorize validates a bearer token (Authorization header, falling
// back to a `token` query parameter since browser WebSocket clients
// cannot set arbitrary request headers) against signingKey. An
// empty signingKey always fails closed, since APP_AUTH_ENABLED without a
// key configured is a deployment mistake, not an open door.
func authorize(r *http.Request, signingKey string) bool {
	if strings.TrimSpace(signingKey) == "" {
		return false
	}
	token := bearerToken(r)
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(signingKey), nil
	})
	return err == nil && parsed.Valid
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
