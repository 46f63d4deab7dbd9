package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/damoang/coinchat/internal/common"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"github.com/damoang/coinchat/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxName   = "name"
	ctxEmail  = "email"
)

// IdentitySyncer mirrors verified claims into the user directory
type IdentitySyncer interface {
	SyncUser(ctx context.Context, id, name, email string) error
}

// ExtractToken Bearer header first, then the ?token= query used by browser sockets.
func ExtractToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errors.New("missing authorization header")
}

// Authenticate verifies the request token and returns its claims.
func Authenticate(c *gin.Context, jwtManager *jwt.Manager) (*jwt.Claims, error) {
	tokenString, err := ExtractToken(c)
	if err != nil {
		return nil, err
	}
	return jwtManager.VerifyToken(tokenString)
}

// JWTAuth JWT authentication middleware
func JWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := Authenticate(c, jwtManager)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				common.ErrorResponse(c, http.StatusUnauthorized, "Token expired", err)
			case errors.Is(err, jwt.ErrInvalidToken):
				common.ErrorResponse(c, http.StatusUnauthorized, "Invalid token", err)
			default:
				common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", err)
			}
			return
		}

		SetIdentity(c, claims)
		c.Next()
	}
}

// SetIdentity stores verified claims on the request context.
func SetIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxName, claims.Name)
	c.Set(ctxEmail, claims.Email)
}

// SyncIdentity upserts the caller into the user directory. Must run after JWTAuth.
func SyncIdentity(syncer IdentitySyncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if err := syncer.SyncUser(c.Request.Context(), userID, GetName(c), GetEmail(c)); err != nil {
			if common.Classify(err).Status < http.StatusInternalServerError {
				common.ErrorResponse(c, http.StatusUnauthorized, "Token does not carry a valid user id", err)
				return
			}
			// 디렉터리 동기화 실패는 요청을 막지 않는다
			pkglogger.WithUserID(userID).Warn().Err(err).Msg("identity sync failed")
		}
		c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetName display name from the verified token
func GetName(c *gin.Context) string {
	return c.GetString(ctxName)
}

// GetEmail email from the verified token
func GetEmail(c *gin.Context) string {
	return c.GetString(ctxEmail)
}
