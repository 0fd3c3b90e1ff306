package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	v, err := NewVerifier("s3cret", "x6d")
	require.NoError(t, err)

	t.Run("Empty Secret", func(t *testing.T) {
		_, err := NewVerifier("", "x6d")
		assert.Error(t, err)
	})

	t.Run("Round Trip", func(t *testing.T) {
		token, err := v.IssueToken("operator", []string{ScopeControl}, time.Hour)
		require.NoError(t, err)

		claims, err := v.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "operator", claims.Subject)
		assert.True(t, claims.HasScope(ScopeControl))
		assert.False(t, claims.HasScope(ScopeRead))
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := v.IssueToken("operator", nil, -time.Minute)
		require.NoError(t, err)
		_, err = v.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		other, _ := NewVerifier("other", "x6d")
		token, _ := other.IssueToken("operator", nil, time.Hour)
		_, err := v.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Wrong Issuer", func(t *testing.T) {
		other, _ := NewVerifier("s3cret", "someone-else")
		token, _ := other.IssueToken("operator", nil, time.Hour)
		_, err := v.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Wrong Algorithm", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "operator", Issuer: "x6d"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = v.VerifyToken(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("Missing Subject", func(t *testing.T) {
		token, _ := v.IssueToken("", nil, time.Hour)
		_, err := v.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewVerifier("s3cret", "x6d")
	require.NoError(t, err)

	newRouter := func(m *Middleware) *gin.Engine {
		r := gin.New()
		r.PUT("/ptt", m.RequireScope(ScopeControl), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return r
	}

	do := func(r *gin.Engine, header string) int {
		req := httptest.NewRequest(http.MethodPut, "/ptt", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	control, _ := v.IssueToken("operator", []string{ScopeControl}, time.Hour)
	readOnly, _ := v.IssueToken("viewer", []string{ScopeRead}, time.Hour)

	t.Run("Disabled", func(t *testing.T) {
		m := NewMiddleware(nil)
		assert.False(t, m.Enabled())
		assert.Equal(t, http.StatusNoContent, do(newRouter(m), ""))
	})

	r := newRouter(NewMiddleware(v))

	t.Run("Missing Header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, ""))
	})

	t.Run("Not Bearer", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, "Basic abc"))
	})

	t.Run("Bad Token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer nonsense"))
	})

	t.Run("Missing Scope", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+readOnly))
	})

	t.Run("Accepted", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(r, "Bearer "+control))
	})
}
