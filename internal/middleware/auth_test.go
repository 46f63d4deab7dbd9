package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	id, name, email string
	err             error
}

func (r *recordingSyncer) SyncUser(_ context.Context, id, name, email string) error {
	r.id, r.name, r.email = id, name, email
	return r.err
}

func newAuthRouter(manager *jwt.Manager, syncer IdentitySyncer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(manager), SyncIdentity(syncer))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "name": GetName(c), "email": GetEmail(c)})
	})
	return r
}

func serve(r *gin.Engine, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	manager := jwt.NewManager("mw-secret", time.Hour)
	syncer := &recordingSyncer{}
	r := newAuthRouter(manager, syncer)
	userID := uuid.NewString()
	token, err := manager.GenerateToken(userID, "Mina", "mina@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + token, http.StatusOK},
		{"query token", "/me?token=" + token, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.target, tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Equal(t, userID, syncer.id)
	assert.Equal(t, "Mina", syncer.name)
	assert.Equal(t, "mina@example.com", syncer.email)
}

func TestJWTAuth_ForeignSecret(t *testing.T) {
	r := newAuthRouter(jwt.NewManager("mw-secret", time.Hour), &recordingSyncer{})
	token, err := jwt.NewManager("other-secret", time.Hour).GenerateToken(uuid.NewString(), "x", "x@example.com")
	require.NoError(t, err)

	w := serve(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncIdentity_Failures(t *testing.T) {
	manager := jwt.NewManager("mw-secret", time.Hour)

	// malformed user id in the token
	bad, err := manager.GenerateToken("not-a-uuid", "x", "x@example.com")
	require.NoError(t, err)
	r := newAuthRouter(manager, &recordingSyncer{err: common.NewValidationError("Invalid user id")})
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "Bearer "+bad).Code)

	// directory outage does not block the request
	good, err := manager.GenerateToken(uuid.NewString(), "x", "x@example.com")
	require.NoError(t, err)
	r = newAuthRouter(manager, &recordingSyncer{err: errors.New("db down")})
	assert.Equal(t, http.StatusOK, serve(r, "/me", "Bearer "+good).Code)
}

func TestRateLimit_NoRedisPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitByIP(nil, 1))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r, "/x", "").Code)
	}
}
