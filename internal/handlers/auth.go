package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
)

type otpRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *Handlers) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	if err := h.Identity.RequestOTP(c.Request.Context(), req.Phone); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"otp_sent": true})
}

type verifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// VerifyOTP opens a session and moves the guest cart named by X-Session-ID
// into the user's cart.
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	s, err := h.Identity.VerifyOTP(c.Request.Context(), req.Phone, req.OTP)
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{"token": s.Token, "expires_at": s.ExpiresAt, "user": s.User, "created": s.Created}
	if sid := strings.TrimSpace(c.GetHeader(middleware.SessionHeader)); sid != "" {
		view, err := h.Carts.Merge(c.Request.Context(), sid, s.User.ID)
		if err != nil {
			// the session stands, the guest cart stays where it was
			log.Printf("⚠️ guest cart %s not merged into %s: %v", sid, s.User.ID, err)
		} else {
			resp["cart"] = view
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) Logout(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Identity.Logout(c.Request.Context(), claims); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type roleRequest struct {
	Role     models.Role `json:"role" binding:"required"`
	VendorID string      `json:"vendor_id"`
}

func (h *Handlers) AssignRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	u, err := h.Identity.AssignRole(c.Request.Context(), c.Param("id"), req.Role, req.VendorID)
	if err != nil {
		fail(c, err)
		return
	}
	log.Printf("👤 %s changed the role of %s to %s", c.GetString("user_id"), u.ID, u.Role)
	c.JSON(http.StatusOK, u)
}
