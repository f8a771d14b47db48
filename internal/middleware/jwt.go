// Package middleware authenticates requests and guards routes by role.
package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/auth"
	"shoemart_back_end/internal/models"
)

const (
	claimsKey = "claims"
	// SessionHeader carries the guest session id of anonymous carts.
	SessionHeader = "X-Session-ID"
)

// Authenticator is satisfied by auth.IdentityProvider.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Claims, error)
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		// browsers cannot set headers on websocket upgrades
		if t := c.Query("token"); t != "" && c.IsWebsocket() {
			return t, true
		}
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims auth.Claims) {
	c.Set(claimsKey, claims)
	c.Set("user_id", claims.UserID)
	c.Set("role", string(claims.Role))
}

// AuthRequired rejects requests without a valid, unrevoked bearer token.
func AuthRequired(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			RespondError(c, apperr.New(apperr.ErrUnauthorized, "missing bearer token", nil))
			return
		}
		claims, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Printf("❌ rejected token from %s: %v", c.ClientIP(), err)
			RespondError(c, apperr.New(apperr.ErrUnauthorized, "invalid or expired token", nil))
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the user when a token is sent and lets anonymous
// requests through. A bad token is still rejected.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			RespondError(c, apperr.New(apperr.ErrUnauthorized, "invalid or expired token", nil))
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// Claims returns the session set by AuthRequired or OptionalAuth.
func Claims(c *gin.Context) (auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return auth.Claims{}, false
	}
	claims, ok := v.(auth.Claims)
	return claims, ok
}

func Actor(c *gin.Context) models.Actor {
	claims, _ := Claims(c)
	return claims.Actor()
}

// CartOwner is the signed-in user's cart, or the guest cart named by the
// X-Session-ID header.
func CartOwner(c *gin.Context) (models.CartOwner, error) {
	if claims, ok := Claims(c); ok {
		return models.UserOwner(claims.UserID), nil
	}
	sid := strings.TrimSpace(c.GetHeader(SessionHeader))
	if sid == "" {
		sid = c.Query("session_id")
	}
	if sid == "" || len(sid) > 128 {
		return "", apperr.Validation(SessionHeader, "sign in or send a guest session id")
	}
	return models.GuestOwner(sid), nil
}

// RespondError aborts with the status of err and the
// {"error", "code", "details"} body.
func RespondError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.AbortWithStatusJSON(status, body)
}
