package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// tokenTTL is the lifetime of an issued bearer token (7 days).
const tokenTTL = 7 * 24 * time.Hour

// Claims holds the JWT claims for programmatic API clients.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed bearer token for an admin user.
func GenerateToken(secret []byte, userID int64, username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tokenTTL)

	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "sipdeck",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// hasBearer reports whether the request carries a bearer Authorization header.
func hasBearer(r *http.Request) bool {
	h := r.Header.Get("Authorization")
	return h != "" && strings.HasPrefix(strings.ToLower(h), "bearer ")
}

// bearerClaims validates the bearer token on the request and returns its
// claims. Returns an error message on failure, "" on success.
func bearerClaims(r *http.Request, secret []byte) (*Claims, string) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, "invalid authorization header"
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		slog.Debug("auth: invalid bearer token", "error", err)
		return nil, "invalid or expired token"
	}

	if claims.UserID == 0 {
		return nil, "invalid token claims"
	}

	return claims, ""
}

// errEnvelope matches the api package's envelope format for error responses.
// Defined here to avoid a circular import with the api package.
type errEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeMWError writes a JSON error matching the API envelope format.
func writeMWError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errEnvelope{Error: msg}) //nolint:errcheck
}
