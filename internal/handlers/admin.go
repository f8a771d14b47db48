package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
)

const maxSearchResults = 100

// SearchOrders finds orders by number, phone, user, vendor, status or
// product name.
func (h *Handlers) SearchOrders(c *gin.Context) {
	if h.Search == nil {
		fail(c, apperr.Wrap(apperr.ErrExternalService, errNoSearch))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > maxSearchResults {
		limit = 20
	}
	orders, err := h.Search.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, apperr.Wrap(apperr.ErrExternalService, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders), "query": c.Query("q")})
}
