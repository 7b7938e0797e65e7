package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

// Claims is what the identity provider puts in its tokens. Only UserID is
// used; the profile fields are for the frontend.
type Claims struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey int

const userIDKey ctxKey = iota

// Authenticate rejects requests without a valid HS256 bearer token and
// stores the token's user id in the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Missing token", nil)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "Invalid token format", nil)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
			if strings.TrimSpace(claims.UserID) == "" {
				writeError(w, http.StatusUnauthorized, "Token has no userId", nil)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, booking.UserID(claims.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFrom returns the authenticated user, if any.
func UserIDFrom(ctx context.Context) (booking.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(booking.UserID)
	return id, ok && id != ""
}
