package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoemart_back_end/internal/auth"
	"shoemart_back_end/internal/cache"
	"shoemart_back_end/internal/models"
)

type tokens map[string]auth.Claims

func (t tokens) Authenticate(_ context.Context, token string) (auth.Claims, error) {
	c, ok := t[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return c, nil
}

var sessions = tokens{
	"customer": {UserID: "u1", Role: models.RoleCustomer},
	"vendor":   {UserID: "u2", Role: models.RoleVendor, VendorID: "vendor1"},
	"unlinked": {UserID: "u3", Role: models.RoleVendor},
	"admin":    {UserID: "u4", Role: models.RoleAdmin},
}

func init() { gin.SetMode(gin.TestMode) }

func do(r http.Handler, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "vendor": Actor(c).VendorID})
	})

	w := do(r, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["code"])

	w = do(r, http.MethodGet, "/me", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/me", "vendor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "u2", body["user_id"])
	assert.Equal(t, "vendor1", body["vendor"])
}

func TestCartOwner(t *testing.T) {
	r := gin.New()
	r.GET("/cart", OptionalAuth(sessions), func(c *gin.Context) {
		owner, err := CartOwner(c)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"owner": owner})
	})

	w := do(r, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["code"])

	w = do(r, http.MethodGet, "/cart", "", map[string]string{SessionHeader: "s-123"})
	assert.Equal(t, "guest:s-123", decode(t, w)["owner"])

	w = do(r, http.MethodGet, "/cart", "customer", map[string]string{SessionHeader: "s-123"})
	assert.Equal(t, "user:u1", decode(t, w)["owner"], "a session wins over the guest header")

	w = do(r, http.MethodGet, "/cart", "forged", map[string]string{SessionHeader: "s-123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleGuards(t *testing.T) {
	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/admin", AuthRequired(sessions), RequireAdmin(), ok)
	r.GET("/vendor", AuthRequired(sessions), RequireVendor(), ok)

	tests := []struct {
		path, token string
		want        int
	}{
		{"/admin", "admin", http.StatusNoContent},
		{"/admin", "vendor", http.StatusForbidden},
		{"/admin", "customer", http.StatusForbidden},
		{"/vendor", "vendor", http.StatusNoContent},
		{"/vendor", "admin", http.StatusNoContent},
		{"/vendor", "unlinked", http.StatusForbidden},
		{"/vendor", "customer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, do(r, http.MethodGet, tt.path, tt.token, nil).Code)
		})
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (cache.Decision, error) {
	return cache.Decision{}, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimit(cache.NewMemoryLimiter(), "test", 2, time.Minute, ByIP), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := do(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/ping", "", nil).Code)

	w = do(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode(t, w)["code"])

	open := gin.New()
	open.GET("/ping", RateLimit(brokenLimiter{}, "test", 1, time.Minute, ByIP), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, do(open, http.MethodGet, "/ping", "", nil).Code)
}
