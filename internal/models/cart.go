package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CartOwner is either "guest:<session id>" or "user:<user id>".
type CartOwner string

const (
	guestPrefix = "guest:"
	userPrefix  = "user:"
)

func GuestOwner(sessionID string) CartOwner { return CartOwner(guestPrefix + sessionID) }

func UserOwner(userID string) CartOwner { return CartOwner(userPrefix + userID) }

func (o CartOwner) IsGuest() bool { return strings.HasPrefix(string(o), guestPrefix) }

func (o CartOwner) Valid() bool {
	s := string(o)
	return (strings.HasPrefix(s, guestPrefix) && len(s) > len(guestPrefix)) ||
		(strings.HasPrefix(s, userPrefix) && len(s) > len(userPrefix))
}

type CartItem struct {
	ProductID string    `json:"product_id"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

func (i CartItem) Key() VariantKey {
	return VariantKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// Cart only stores what the customer chose. Prices and stock are looked up on every read.
type Cart struct {
	Owner     CartOwner  `json:"owner"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Find returns the index of the line with key, or -1.
func (c *Cart) Find(key VariantKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

type CartLine struct {
	CartItem
	VendorID   string          `json:"vendor_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Image      string          `json:"image,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Stock      int             `json:"stock"`
	// Available is false when the product is gone or inactive.
	Available bool `json:"available"`
	// InStock additionally requires enough stock for the line quantity.
	InStock bool `json:"in_stock"`
}

type VendorShipping struct {
	VendorID string          `json:"vendor_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Charge   decimal.Decimal `json:"charge"`
}

type CartView struct {
	Owner           CartOwner        `json:"owner"`
	Lines           []CartLine       `json:"lines"`
	Vendors         []VendorShipping `json:"vendors"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	ShippingCharges decimal.Decimal  `json:"shipping_charges"`
	Total           decimal.Decimal  `json:"total"`
	ItemCount       int              `json:"item_count"`
}
