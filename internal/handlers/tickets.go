package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/services"
	"shoemart_back_end/internal/ticket"
)

const maxTicketForm = 55 << 20

type ticketRequest struct {
	VendorID    string            `json:"vendor_id" form:"vendor_id"`
	OrderNumber string            `json:"order_id" form:"order_id" binding:"required"`
	Type        models.TicketType `json:"type" form:"type" binding:"required"`
	Description string            `json:"description" form:"description" binding:"required"`
}

// CreateTicket accepts JSON, or a multipart form whose "media" files are
// stored before the ticket is filed.
func (h *Handlers) CreateTicket(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTicketForm)
	var req ticketRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	actor := middleware.Actor(c)
	in := ticket.CreateInput{
		FiledBy:     actor.UserID,
		OrderNumber: req.OrderNumber,
		Type:        req.Type,
		Description: req.Description,
	}
	if actor.IsVendor() || actor.IsAdmin() {
		vendorID, err := vendorFor(c, req.VendorID)
		if err != nil {
			fail(c, err)
			return
		}
		in.VendorID = vendorID
	} else {
		in.VendorID = strings.TrimSpace(req.VendorID)
		in.CustomerID = actor.UserID
	}
	ctx := c.Request.Context()

	media, err := h.uploadTicketMedia(c, req.OrderNumber)
	if err != nil {
		fail(c, err)
		return
	}
	in.Media = media

	t, err := h.Tickets.CreateTicket(ctx, in)
	if err != nil {
		h.discardMedia(ctx, media)
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.signed(ctx, t))
}

func (h *Handlers) uploadTicketMedia(c *gin.Context, orderNumber string) ([]models.TicketMedia, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.Validation("media", "unreadable form")
	}
	files := form.File["media"]
	if len(files) == 0 {
		return nil, nil
	}
	if h.Media == nil {
		return nil, apperr.Validation("media", "attachments are not accepted")
	}
	if len(files) > 5 {
		return nil, apperr.Validation("media", "at most 5 attachments")
	}

	var media []models.TicketMedia
	for _, fh := range files {
		md, err := services.UploadFile(c.Request.Context(), h.Media, "tickets/"+orderNumber, fh)
		if err != nil {
			h.discardMedia(c.Request.Context(), media)
			return nil, err
		}
		media = append(media, md)
	}
	return media, nil
}

func (h *Handlers) discardMedia(ctx context.Context, media []models.TicketMedia) {
	for _, md := range media {
		if err := h.Media.Delete(context.WithoutCancel(ctx), md.Key); err != nil {
			log.Printf("⚠️ orphaned ticket media %s: %v", md.Key, err)
		}
	}
}

func (h *Handlers) signed(ctx context.Context, t models.Ticket) models.Ticket {
	if h.Media != nil {
		t.Media = h.Media.Sign(ctx, t.Media)
	}
	return t
}

func (h *Handlers) GetTicket(c *gin.Context) {
	t, err := h.Tickets.Get(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.signed(c.Request.Context(), t))
}

func (h *Handlers) ListVendorTickets(c *gin.Context) {
	vendorID, err := vendorFor(c, c.Query("vendor_id"))
	if err != nil {
		fail(c, err)
		return
	}
	tickets, err := h.Tickets.ListForVendor(c.Request.Context(), vendorID, queryLimit(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (h *Handlers) ListOrderTickets(c *gin.Context) {
	tickets, err := h.Tickets.ListForOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (h *Handlers) StartTicket(c *gin.Context) {
	t, err := h.Tickets.StartProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.signed(c.Request.Context(), t))
}

type resolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	// Accept defaults to true; false rejects the ticket.
	Accept *bool `json:"accept"`
}

func (h *Handlers) ResolveTicket(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	accept := req.Accept == nil || *req.Accept
	t, err := h.Tickets.ResolveTicket(c.Request.Context(), c.Param("id"), req.Resolution, accept)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.signed(c.Request.Context(), t))
}
