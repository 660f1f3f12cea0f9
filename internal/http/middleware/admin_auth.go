package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const staffClaimsKey contextKey = "staffClaims"

// StaffClaims are the claims carried by a staff dashboard token. Tokens are
// minted elsewhere; this package only verifies them.
type StaffClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// StaffJWT enforces an HMAC-signed bearer JWT with an expiry on staff
// endpoints. An empty secret rejects every request.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "staff auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := &StaffClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), staffClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffClaimsFromContext returns staff JWT claims if present.
func StaffClaimsFromContext(ctx context.Context) (StaffClaims, bool) {
	claims, ok := ctx.Value(staffClaimsKey).(StaffClaims)
	return claims, ok
}

// StaffSubject names the caller for audit logs.
func StaffSubject(ctx context.Context) string {
	claims, ok := StaffClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	if claims.Name != "" {
		return claims.Name
	}
	return claims.Subject
}
