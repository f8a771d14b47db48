// Package order turns carts into orders and drives every order item through
// its fulfilment lifecycle.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
	"shoemart_back_end/internal/payment"
)

const (
	maxUpdateAttempts = 5
	maxIDAttempts     = 5
)

// CartSource is the part of the cart aggregator checkout needs.
type CartSource interface {
	ComputeView(ctx context.Context, owner models.CartOwner) (models.CartView, error)
	Clear(ctx context.Context, owner models.CartOwner) error
}

type Notifier interface {
	Notify(msg notify.Message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Message) {}

type Config struct {
	Currency          string
	StrictTransitions bool
}

type Composer struct {
	carts    CartSource
	catalog  catalog.Catalog
	orders   Repository
	ids      IDGenerator
	shipping cart.ShippingPolicy
	coupons  CouponBook
	payments payment.Gateway
	notifier Notifier
	indexer  Indexer
	rules    Transitions
	currency string
	now      func() time.Time
}

type Option func(*Composer)

func WithCoupons(b CouponBook) Option { return func(c *Composer) { c.coupons = b } }

func WithPayments(g payment.Gateway) Option { return func(c *Composer) { c.payments = g } }

func WithNotifier(n Notifier) Option { return func(c *Composer) { c.notifier = n } }

func WithIndexer(i Indexer) Option { return func(c *Composer) { c.indexer = i } }

func WithClock(now func() time.Time) Option { return func(c *Composer) { c.now = now } }

func NewComposer(carts CartSource, cat catalog.Catalog, orders Repository, ids IDGenerator,
	shipping cart.ShippingPolicy, cfg Config, opts ...Option) *Composer {
	c := &Composer{
		carts:    carts,
		catalog:  cat,
		orders:   orders,
		ids:      ids,
		shipping: shipping,
		notifier: nopNotifier{},
		rules:    NewTransitions(cfg.StrictTransitions),
		currency: strings.ToLower(cfg.Currency),
		now:      time.Now,
	}
	if c.currency == "" {
		c.currency = "inr"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Composer) Transitions() Transitions { return c.rules }

type PlaceOrderInput struct {
	UserID        string
	Phone         string
	Email         string
	Shipping      models.Address
	Billing       *models.Address // nil means same as shipping
	PaymentMethod models.PaymentMethod
	CouponCode    string
}

// Placement is a new order plus, for online orders, the payment to complete.
type Placement struct {
	Order   models.Order    `json:"order"`
	Payment *payment.Intent `json:"payment,omitempty"`
}

func (in PlaceOrderInput) validate() error {
	switch {
	case in.UserID == "":
		return apperr.Validation("user_id", "user is required")
	case !in.PaymentMethod.Valid():
		return apperr.Validation("payment_method", "payment method must be cod or online")
	case in.Shipping.Line1 == "" || in.Shipping.City == "" || in.Shipping.PostalCode == "":
		return apperr.Validation("shipping_address", "shipping address is incomplete")
	}
	return nil
}

// PlaceOrder converts the user's cart into an order. Stock is re-checked and
// reserved, the coupon redeemed and the payment opened as one unit: when any
// step fails everything already taken is given back and no order is stored.
func (c *Composer) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Placement, error) {
	if err := in.validate(); err != nil {
		return Placement{}, err
	}
	if in.PaymentMethod == models.PaymentOnline && c.payments == nil {
		return Placement{}, apperr.Validation("payment_method", "online payments are not available")
	}
	owner := models.UserOwner(in.UserID)

	view, err := c.carts.ComputeView(ctx, owner)
	if err != nil {
		return Placement{}, err
	}

	now := c.now()
	items, lines, err := c.snapshot(ctx, view, now)
	if err != nil {
		return Placement{}, err
	}

	o := models.Order{
		UserID:          in.UserID,
		CustomerPhone:   in.Phone,
		CustomerEmail:   in.Email,
		ShippingAddress: in.Shipping,
		BillingAddress:  in.Shipping,
		Items:           items,
		Currency:        c.currency,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Status:          models.ItemPending,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Billing != nil {
		o.BillingAddress = *in.Billing
	}
	c.price(&o)

	code := NormalizeCode(in.CouponCode)
	if code != "" {
		quote, err := c.quote(ctx, code, in.UserID, o.Subtotal, o.ShippingCharges, now)
		if err != nil {
			return Placement{}, err
		}
		o.CouponCode = quote.Code
		o.CouponDiscount = quote.Discount
	}
	o.Total = o.Subtotal.Add(o.ShippingCharges).Sub(o.CouponDiscount)
	if o.Total.IsNegative() {
		o.Total = decimal.Zero
	}

	var intent *payment.Intent
	for attempt := 1; ; attempt++ {
		if o.Number, err = c.nextNumber(ctx); err != nil {
			return Placement{}, err
		}
		intent, err = c.commit(ctx, &o, lines)
		if errors.Is(err, apperr.ErrDuplicateID) && attempt < maxIDAttempts {
			log.Printf("⚠️ order number %s taken at insert, retrying with the next one", o.Number)
			continue
		}
		if err != nil {
			return Placement{}, err
		}
		break
	}
	log.Printf("✅ Order %s placed by %s: %d item(s), total %s %s",
		o.Number, o.UserID, len(o.Items), o.Total.StringFixed(2), strings.ToUpper(o.Currency))

	if err := c.carts.Clear(context.WithoutCancel(ctx), owner); err != nil {
		log.Printf("⚠️ cart of %s not cleared after %s: %v", in.UserID, o.Number, err)
	}
	c.index(ctx, o)
	c.notifier.Notify(notify.Message{
		Phone: o.CustomerPhone,
		Email: o.CustomerEmail,
		Kind:  notify.KindOrderConfirmed,
		Vars:  map[string]string{"order_id": o.Number, "total": c.money(o.Total)},
	})
	return Placement{Order: o, Payment: intent}, nil
}

// commit reserves the stock, redeems the coupon, opens the payment and
// stores o under its current number. A failed step undoes the earlier ones.
func (c *Composer) commit(ctx context.Context, o *models.Order, lines []catalog.Line) (*payment.Intent, error) {
	if err := catalog.Reserve(ctx, c.catalog, lines, o.Number); err != nil {
		return nil, err
	}
	placed := *o
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	undo = append(undo, func() { catalog.Release(ctx, c.catalog, lines, placed.Number) })

	if o.CouponCode != "" {
		if err := c.coupons.Redeem(ctx, o.CouponCode, o.UserID, o.Number); err != nil {
			rollback()
			return nil, err
		}
		undo = append(undo, func() { c.releaseCoupon(ctx, placed) })
	}

	var intent *payment.Intent
	if o.PaymentMethod == models.PaymentOnline {
		pi, err := c.payments.CreatePayment(ctx, o.Number, o.Total, o.Currency)
		if err != nil {
			rollback()
			return nil, apperr.Wrap(apperr.ErrExternalService, err)
		}
		o.PaymentRef = pi.Reference
		intent = &pi
	}

	if err := c.orders.Create(ctx, *o); err != nil {
		rollback()
		return nil, err
	}
	return intent, nil
}

// snapshot re-reads every orderable cart line from the catalog and freezes it
// into an order item.
func (c *Composer) snapshot(ctx context.Context, view models.CartView, now time.Time) ([]models.OrderItem, []catalog.Line, error) {
	var (
		items []models.OrderItem
		lines []catalog.Line
	)
	for _, l := range view.Lines {
		if !l.Available {
			continue
		}
		key := l.Key()
		v, err := c.catalog.GetVariant(ctx, key)
		if errors.Is(err, apperr.ErrProductNotFound) || (err == nil && !v.Active) {
			return nil, nil, apperr.OutOfStock(key.String(), 0, l.Quantity)
		}
		if err != nil {
			return nil, nil, err
		}
		if v.Stock < l.Quantity {
			return nil, nil, apperr.OutOfStock(key.String(), v.Stock, l.Quantity)
		}

		final := v.FinalPrice()
		items = append(items, models.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  v.ProductID,
			VendorID:   v.VendorID,
			Name:       v.Name,
			Image:      v.Image,
			Size:       v.Size,
			Color:      v.Color,
			UnitPrice:  v.SellingPrice,
			FinalPrice: final,
			Quantity:   l.Quantity,
			LineTotal:  final.Mul(decimal.NewFromInt(int64(l.Quantity))),
			Status:     models.ItemPending,
			History:    []models.StatusChange{{To: models.ItemPending, At: now}},
		})
		lines = append(lines, catalog.Line{Key: key, Quantity: l.Quantity})
	}
	if len(items) == 0 {
		return nil, nil, apperr.New(apperr.ErrEmptyCart, "cart has no orderable lines", nil)
	}
	return items, lines, nil
}

// price fills subtotal and per vendor shipping from the item snapshots.
func (c *Composer) price(o *models.Order) {
	o.Subtotal = decimal.Zero
	o.ShippingCharges = decimal.Zero
	perVendor := map[string]decimal.Decimal{}
	var vendors []string
	for _, it := range o.Items {
		if _, seen := perVendor[it.VendorID]; !seen {
			vendors = append(vendors, it.VendorID)
		}
		perVendor[it.VendorID] = perVendor[it.VendorID].Add(it.LineTotal)
		o.Subtotal = o.Subtotal.Add(it.LineTotal)
	}
	for _, v := range vendors {
		o.ShippingCharges = o.ShippingCharges.Add(c.shipping.Charge(v, perVendor[v]))
	}
}

func (c *Composer) quote(ctx context.Context, code, userID string, subtotal, shipping decimal.Decimal, now time.Time) (models.CouponQuote, error) {
	if c.coupons == nil {
		return models.CouponQuote{}, invalidCoupon(code, "coupons are not available")
	}
	cp, err := c.coupons.Get(ctx, code)
	if err != nil {
		return models.CouponQuote{}, err
	}
	uses := 0
	if cp.MaxUsesPerUser > 0 {
		if uses, err = c.coupons.UsesBy(ctx, code, userID); err != nil {
			return models.CouponQuote{}, err
		}
	}
	return QuoteCoupon(cp, uses, subtotal, shipping, now)
}

// QuoteCoupon previews a coupon against the user's current cart.
func (c *Composer) QuoteCoupon(ctx context.Context, userID, code string) (models.CouponQuote, error) {
	view, err := c.carts.ComputeView(ctx, models.UserOwner(userID))
	if err != nil {
		return models.CouponQuote{}, err
	}
	return c.quote(ctx, NormalizeCode(code), userID, view.Subtotal, view.ShippingCharges, c.now())
}

// nextNumber skips counter values that already have an order, which only
// happens when the counter was reset behind existing data.
func (c *Composer) nextNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		number, err := c.ids.Next(ctx)
		if err != nil {
			return "", apperr.Wrap(apperr.ErrExternalService, err)
		}
		_, err = c.orders.Get(ctx, number)
		if errors.Is(err, apperr.ErrOrderNotFound) {
			return number, nil
		}
		if err != nil {
			return "", err
		}
		log.Printf("⚠️ order number %s already taken, drawing another", number)
	}
	return "", apperr.New(apperr.ErrDuplicateID, "could not allocate an order number", nil)
}

func (c *Composer) releaseCoupon(ctx context.Context, o models.Order) {
	if o.CouponCode == "" || c.coupons == nil {
		return
	}
	if err := c.coupons.Release(context.WithoutCancel(ctx), o.CouponCode, o.UserID, o.Number); err != nil {
		log.Printf("❌ coupon %s not released for %s: %v", o.CouponCode, o.Number, err)
	}
}

func (c *Composer) index(ctx context.Context, o models.Order) {
	if c.indexer == nil {
		return
	}
	if err := c.indexer.IndexOrder(context.WithoutCancel(ctx), o); err != nil {
		log.Printf("⚠️ order %s not indexed: %v", o.Number, err)
	}
}

func (c *Composer) money(d decimal.Decimal) string {
	return fmt.Sprintf("%s %s", strings.ToUpper(c.currency), d.StringFixed(2))
}

// Get returns an order as the actor may see it. Vendors only see their own items.
func (c *Composer) Get(ctx context.Context, number string, actor models.Actor) (models.Order, error) {
	o, err := c.orders.Get(ctx, number)
	if err != nil {
		return models.Order{}, err
	}
	switch {
	case actor.IsAdmin():
		return o, nil
	case actor.IsVendor():
		if !o.HasVendor(actor.VendorID) {
			return models.Order{}, apperr.ErrOrderNotFound
		}
		return vendorView(o, actor.VendorID), nil
	case o.UserID == actor.UserID:
		return o, nil
	}
	return models.Order{}, apperr.ErrOrderNotFound
}

func (c *Composer) ListForUser(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	return c.orders.ListByUser(ctx, userID, clampLimit(limit))
}

func (c *Composer) ListForVendor(ctx context.Context, vendorID string, limit int) ([]models.Order, error) {
	orders, err := c.orders.ListByVendor(ctx, vendorID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i] = vendorView(orders[i], vendorID)
	}
	return orders, nil
}

func vendorView(o models.Order, vendorID string) models.Order {
	items := make([]models.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if it.VendorID == vendorID {
			items = append(items, it)
		}
	}
	o.Items = items
	return o
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
