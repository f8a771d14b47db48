package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/utils"
)

func (h *Handlers) ListVendorOrders(c *gin.Context) {
	vendorID, err := vendorFor(c, c.Query("vendor_id"))
	if err != nil {
		fail(c, err)
		return
	}
	orders, err := h.Orders.ListForVendor(c.Request.Context(), vendorID, queryLimit(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

type itemStatusRequest struct {
	Status     models.ItemStatus `json:"status" binding:"required"`
	TrackingID string            `json:"tracking_id"`
	Note       string            `json:"note"`
}

// UpdateItemStatus serves both the vendor and the operator route. The
// composer decides what each actor may do.
func (h *Handlers) UpdateItemStatus(c *gin.Context) {
	var req itemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	o, err := h.Orders.UpdateItemStatus(c.Request.Context(), c.Param("id"), c.Param("itemId"), order.StatusUpdate{
		Status:     req.Status,
		TrackingID: req.TrackingID,
		Note:       req.Note,
	}, middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// ShippingLabel renders the QR code stuck on the parcel of one item, as PNG
// with ?format=png and as JSON with a data URL otherwise.
func (h *Handlers) ShippingLabel(c *gin.Context) {
	o, err := h.Orders.Get(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	it := o.Item(c.Param("itemId"))
	if it == nil {
		fail(c, apperr.New(apperr.ErrOrderNotFound, "item not found in order", nil))
		return
	}
	label := utils.NewShippingLabel(o, *it)

	if c.Query("format") == "png" {
		png, err := utils.LabelQR(label, 512)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", "inline; filename=label-"+o.Number+"-"+it.ID+".png")
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	qr, err := utils.LabelQRDataURL(label, 256)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"label": label, "qr": qr})
}

type inventoryRequest struct {
	models.VariantKey
	VendorID        string           `json:"vendor_id"`
	Name            string           `json:"name"`
	Image           string           `json:"image"`
	SellingPrice    *decimal.Decimal `json:"selling_price"`
	VendorDiscount  *decimal.Decimal `json:"vendor_discount"`
	WebsiteDiscount *decimal.Decimal `json:"website_discount"`
	Stock           *int             `json:"stock"`
	Active          *bool            `json:"active"`
}

func percent(field string, d *decimal.Decimal) error {
	if d != nil && (d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100))) {
		return apperr.Validation(field, field+" must be between 0 and 100")
	}
	return nil
}

// UpsertInventory creates a variant or changes the fields sent. Vendors only
// touch their own products, and only operators set the website discount.
func (h *Handlers) UpsertInventory(c *gin.Context) {
	var req inventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	vendorID, err := vendorFor(c, req.VendorID)
	if err != nil {
		fail(c, err)
		return
	}
	actor := middleware.Actor(c)
	ctx := c.Request.Context()

	v, err := h.Catalog.GetVariant(ctx, req.VariantKey)
	created := errors.Is(err, apperr.ErrProductNotFound)
	seenStock := v.Stock
	switch {
	case created:
		if req.SellingPrice == nil || req.Name == "" {
			fail(c, apperr.Validation("selling_price", "new variants need a name and a selling price"))
			return
		}
		v = models.Variant{ProductID: req.ProductID, Size: req.Size, Color: req.Color, VendorID: vendorID, Active: true}
		seenStock = catalog.NewVariant
	case err != nil:
		fail(c, err)
		return
	case v.VendorID != vendorID:
		fail(c, apperr.New(apperr.ErrForbidden, "product belongs to another vendor", nil))
		return
	}

	if err := percent("vendor_discount", req.VendorDiscount); err != nil {
		fail(c, err)
		return
	}
	if err := percent("website_discount", req.WebsiteDiscount); err != nil {
		fail(c, err)
		return
	}
	if req.WebsiteDiscount != nil && !actor.IsAdmin() {
		fail(c, apperr.New(apperr.ErrForbidden, "website discounts are set by operations", nil))
		return
	}
	if req.SellingPrice != nil && req.SellingPrice.IsNegative() {
		fail(c, apperr.Validation("selling_price", "selling price cannot be negative"))
		return
	}
	if req.Stock != nil && *req.Stock < 0 {
		fail(c, apperr.Validation("stock", "stock cannot be negative"))
		return
	}

	if req.Name != "" {
		v.Name = req.Name
	}
	if req.Image != "" {
		v.Image = req.Image
	}
	if req.SellingPrice != nil {
		v.SellingPrice = *req.SellingPrice
	}
	if req.VendorDiscount != nil {
		v.VendorDiscount = *req.VendorDiscount
	}
	if req.WebsiteDiscount != nil {
		v.WebsiteDiscount = *req.WebsiteDiscount
	}
	if req.Stock != nil {
		v.Stock = *req.Stock
	}
	if req.Active != nil {
		v.Active = *req.Active
	}
	v.UpdatedAt = time.Now()

	if err := h.Catalog.UpsertVariant(ctx, v, seenStock); err != nil {
		fail(c, err)
		return
	}
	log.Printf("📦 %s set %s: stock %d, price %s", vendorID, v.Key(), v.Stock, v.FinalPrice().StringFixed(2))
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"variant": v, "final_price": v.FinalPrice()})
}
