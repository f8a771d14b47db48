package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	ItemPending       ItemStatus = "pending"
	ItemConfirmed     ItemStatus = "confirmed"
	ItemPackaging     ItemStatus = "packaging"
	ItemReadyToPickup ItemStatus = "ready_to_pickup"
	ItemPickedUp      ItemStatus = "picked_up"
	ItemInTransit     ItemStatus = "in_transit"
	ItemDelivered     ItemStatus = "delivered"
	ItemCancelled     ItemStatus = "cancelled"
	ItemRTO           ItemStatus = "rto"
	ItemLost          ItemStatus = "lost"
)

// FulfillmentSequence is the forward path every item follows.
var FulfillmentSequence = []ItemStatus{
	ItemPending,
	ItemConfirmed,
	ItemPackaging,
	ItemReadyToPickup,
	ItemPickedUp,
	ItemInTransit,
	ItemDelivered,
}

// Rank is the position in FulfillmentSequence, or -1 for the exception states.
func (s ItemStatus) Rank() int {
	for i, st := range FulfillmentSequence {
		if st == s {
			return i
		}
	}
	return -1
}

func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemDelivered, ItemCancelled, ItemRTO, ItemLost:
		return true
	}
	return false
}

func (s ItemStatus) Valid() bool {
	return s.Rank() >= 0 || s == ItemCancelled || s == ItemRTO || s == ItemLost
}

func ParseItemStatus(s string) (ItemStatus, error) {
	st := ItemStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown item status %q", s)
	}
	return st, nil
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCOD || m == PaymentOnline }

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
)

type StatusChange struct {
	From ItemStatus `json:"from"`
	To   ItemStatus `json:"to"`
	By   string     `json:"by,omitempty"`
	Note string     `json:"note,omitempty"`
	At   time.Time  `json:"at"`
}

// OrderItem is a snapshot of the cart line at checkout, owned by one vendor.
type OrderItem struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	VendorID   string          `json:"vendor_id"`
	Name       string          `json:"name"`
	Image      string          `json:"image,omitempty"`
	Size       string          `json:"size"`
	Color      string          `json:"color"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Status     ItemStatus      `json:"status"`
	TrackingID string          `json:"tracking_id,omitempty"`
	History    []StatusChange  `json:"history,omitempty"`
}

func (i OrderItem) Key() VariantKey {
	return VariantKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

type Order struct {
	Number          string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  Address         `json:"billing_address"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCharges decimal.Decimal `json:"shipping_charges"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	Status          ItemStatus      `json:"status"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item returns a pointer into Items so callers can mutate in place.
func (o *Order) Item(id string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// Refundable is what is left to give back on a paid order.
func (o *Order) Refundable() decimal.Decimal {
	left := o.Total.Sub(o.RefundedAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// HasVendor reports whether vendorID fulfils at least one item.
func (o *Order) HasVendor(vendorID string) bool {
	for _, it := range o.Items {
		if it.VendorID == vendorID {
			return true
		}
	}
	return false
}

// RecomputeStatus derives the order status from its items. While some item is
// still moving, the order sits at the least advanced of them. Once every item
// is terminal, any delivery wins, then cancellation, rto and lost.
func (o *Order) RecomputeStatus() {
	var (
		minRank = len(FulfillmentSequence)
		open    bool
		counts  = map[ItemStatus]int{}
	)
	for _, it := range o.Items {
		counts[it.Status]++
		if it.Status.Terminal() {
			continue
		}
		open = true
		if r := it.Status.Rank(); r < minRank {
			minRank = r
		}
	}
	if open {
		o.Status = FulfillmentSequence[minRank]
		return
	}
	switch {
	case counts[ItemDelivered] > 0:
		o.Status = ItemDelivered
	case counts[ItemCancelled] == len(o.Items):
		o.Status = ItemCancelled
	case counts[ItemRTO] > 0:
		o.Status = ItemRTO
	case counts[ItemLost] > 0:
		o.Status = ItemLost
	default:
		o.Status = ItemCancelled
	}
}

// OrderSummary is the row kept in the per-user and per-vendor lookup tables.
type OrderSummary struct {
	Number    string          `json:"order_id"`
	Status    ItemStatus      `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}
