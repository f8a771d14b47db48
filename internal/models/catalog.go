package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// VariantKey identifies one size+color combination of a product.
type VariantKey struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size" binding:"required"`
	Color     string `json:"color" binding:"required"`
}

func (k VariantKey) String() string {
	return k.ProductID + "|" + k.Size + "|" + k.Color
}

// Variant is the catalog's view of a sellable size+color. Discounts are percentages.
type Variant struct {
	ProductID       string          `json:"product_id"`
	VendorID        string          `json:"vendor_id"`
	Name            string          `json:"name"`
	Image           string          `json:"image,omitempty"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	VendorDiscount  decimal.Decimal `json:"vendor_discount"`
	WebsiteDiscount decimal.Decimal `json:"website_discount"`
	Stock           int             `json:"stock"`
	Active          bool            `json:"active"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (v Variant) Key() VariantKey {
	return VariantKey{ProductID: v.ProductID, Size: v.Size, Color: v.Color}
}

// FinalPrice applies both discounts to the selling price and never goes below zero.
func (v Variant) FinalPrice() decimal.Decimal {
	off := v.SellingPrice.Mul(v.VendorDiscount).Div(hundred).
		Add(v.SellingPrice.Mul(v.WebsiteDiscount).Div(hundred))
	price := v.SellingPrice.Sub(off).Round(2)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// StockMovement is the audit row written for every stock change.
type StockMovement struct {
	ProductID string    `json:"product_id"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	Type      string    `json:"type"` // "sale", "release", "restock", "adjustment"
	Quantity  int       `json:"quantity"`
	PrevStock int       `json:"prev_stock"`
	NewStock  int       `json:"new_stock"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
