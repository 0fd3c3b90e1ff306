package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding *Claims
const ClaimsKey = "claims"

// Middleware authenticates requests. A nil verifier lets everything
// through, which is how the daemon runs without a configured secret.
type Middleware struct {
	verifier *Verifier
}

// NewMiddleware creates middleware backed by verifier, which may be nil
func NewMiddleware(verifier *Verifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Enabled reports whether requests are checked
func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

// RequireScope rejects requests without a valid bearer token granting scope
func (m *Middleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.verifier == nil {
			c.Next()
			return
		}

		token, err := extractBearerToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}
