package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
)

type cartLineRequest struct {
	models.VariantKey
	Quantity int `json:"quantity"`
}

func (h *Handlers) GetCart(c *gin.Context) {
	owner, err := middleware.CartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.Carts.ComputeView(c.Request.Context(), owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) AddToCart(c *gin.Context) {
	h.editCart(c, func(owner models.CartOwner, req cartLineRequest) (models.CartView, error) {
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		return h.Carts.AddItem(c.Request.Context(), owner, req.VariantKey, req.Quantity)
	})
}

func (h *Handlers) UpdateCartItem(c *gin.Context) {
	h.editCart(c, func(owner models.CartOwner, req cartLineRequest) (models.CartView, error) {
		return h.Carts.UpdateItem(c.Request.Context(), owner, req.VariantKey, req.Quantity)
	})
}

func (h *Handlers) RemoveFromCart(c *gin.Context) {
	h.editCart(c, func(owner models.CartOwner, req cartLineRequest) (models.CartView, error) {
		return h.Carts.RemoveItem(c.Request.Context(), owner, req.VariantKey)
	})
}

func (h *Handlers) editCart(c *gin.Context, fn func(models.CartOwner, cartLineRequest) (models.CartView, error)) {
	owner, err := middleware.CartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	view, err := fn(owner, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) ClearCart(c *gin.Context) {
	owner, err := middleware.CartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.Carts.Clear(c.Request.Context(), owner); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}

// QuoteCoupon previews a coupon against the signed-in user's cart.
func (h *Handlers) QuoteCoupon(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	q, err := h.Orders.QuoteCoupon(c.Request.Context(), claims.UserID, c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
