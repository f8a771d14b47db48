package middleware

import (
	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

// RequireRole lets through sessions holding one of roles. Admins always pass.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			RespondError(c, apperr.ErrUnauthorized)
			return
		}
		if claims.Role == models.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		RespondError(c, apperr.New(apperr.ErrForbidden, "this route needs a "+string(roles[0])+" account", nil))
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }

// RequireVendor also needs the account to be linked to a vendor.
func RequireVendor() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			RespondError(c, apperr.ErrUnauthorized)
			return
		}
		if a := claims.Actor(); !a.IsVendor() && !a.IsAdmin() {
			RespondError(c, apperr.New(apperr.ErrForbidden, "vendor accounts only", nil))
			return
		}
		c.Next()
	}
}
