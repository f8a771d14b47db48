package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/payment"
	"shoemart_back_end/internal/sequence"
	"shoemart_back_end/internal/store/memstore"
)

var (
	productA = models.Variant{
		ProductID: "productA", VendorID: "vendor1", Name: "Court Classic", Size: "9", Color: "black",
		SellingPrice: decimal.NewFromInt(1250), VendorDiscount: decimal.NewFromInt(10),
		WebsiteDiscount: decimal.NewFromInt(10), Stock: 2, Active: true,
	}
	productB = models.Variant{
		ProductID: "productB", VendorID: "vendor2", Name: "Trail Runner", Size: "10", Color: "blue",
		SellingPrice: decimal.NewFromInt(600), Stock: 20, Active: true,
	}
	address = models.Address{
		Name: "Asha", Phone: "+919800000001", Line1: "12 MG Road", City: "Pune",
		State: "MH", PostalCode: "411001", Country: "IN",
	}
	admin    = models.Actor{UserID: "admin1", Role: models.RoleAdmin}
	vendor1  = models.Actor{UserID: "v1-user", Role: models.RoleVendor, VendorID: "vendor1"}
	vendor2  = models.Actor{UserID: "v2-user", Role: models.RoleVendor, VendorID: "vendor2"}
	customer = models.Actor{UserID: "u1", Role: models.RoleCustomer}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingNotifier) Notify(m notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, m := range r.sent {
		out = append(out, m.Kind)
	}
	return out
}

type fakeGateway struct {
	mu         sync.Mutex
	createErr  error
	verifyErr  error
	result     payment.Result
	paidAmount *decimal.Decimal
	intents    map[string]payment.Intent
	orders     map[string]string
	refunds    []decimal.Decimal
	n          int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{result: payment.ResultSucceeded, intents: map[string]payment.Intent{}, orders: map[string]string{}}
}

func (g *fakeGateway) CreatePayment(_ context.Context, number string, amount decimal.Decimal, currency string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.Intent{}, g.createErr
	}
	g.n++
	in := payment.Intent{Reference: fmt.Sprintf("pi_%d", g.n), ClientSecret: "secret", Amount: amount, Currency: currency}
	g.intents[in.Reference] = in
	g.orders[in.Reference] = number
	return in, nil
}

func (g *fakeGateway) Verify(_ context.Context, ref string) (payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return payment.Verification{}, g.verifyErr
	}
	amount := g.intents[ref].Amount
	if g.paidAmount != nil {
		amount = *g.paidAmount
	}
	return payment.Verification{Reference: ref, OrderNumber: g.orders[ref], Result: g.result, Amount: amount}, nil
}

func (g *fakeGateway) ParseWebhook(body []byte, sig string) (payment.Verification, bool, error) {
	if sig != "valid" {
		return payment.Verification{}, false, errors.New("bad signature")
	}
	v, err := g.Verify(context.Background(), string(body))
	return v, true, err
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, amount)
	return "re_1", nil
}

type fixture struct {
	catalog  *memstore.Catalog
	carts    *cart.Aggregator
	orders   *memstore.Orders
	coupons  *memstore.Coupons
	gateway  *fakeGateway
	notifier *recordingNotifier
	composer *order.Composer
}

func newFixture(t *testing.T, strict bool, variants ...models.Variant) *fixture {
	t.Helper()
	if len(variants) == 0 {
		variants = []models.Variant{productA, productB}
	}
	f := &fixture{
		catalog:  memstore.NewCatalog(variants...),
		orders:   memstore.NewOrders(),
		coupons:  memstore.NewCoupons(),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
	}
	shipping := cart.FlatRate{Fee: decimal.NewFromInt(79), FreeAbove: decimal.NewFromInt(999)}
	f.carts = cart.NewAggregator(memstore.NewCarts(), f.catalog, shipping)
	ids := sequence.NewGenerator(sequence.NewMemoryCounter(), "orders", "ORD", 6)
	f.composer = order.NewComposer(f.carts, f.catalog, f.orders, ids, shipping,
		order.Config{Currency: "inr", StrictTransitions: strict},
		order.WithCoupons(f.coupons),
		order.WithPayments(f.gateway),
		order.WithNotifier(f.notifier),
	)
	return f
}

func (f *fixture) add(t *testing.T, userID string, v models.Variant, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), models.UserOwner(userID), v.Key(), qty)
	require.NoError(t, err)
}

func (f *fixture) place(userID string, method models.PaymentMethod, coupon string) (order.Placement, error) {
	return f.composer.PlaceOrder(context.Background(), order.PlaceOrderInput{
		UserID:        userID,
		Phone:         "+919800000001",
		Email:         userID + "@example.com",
		Shipping:      address,
		PaymentMethod: method,
		CouponCode:    coupon,
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceOrderScenario(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 2)
	f.add(t, "u2", productA, 2)

	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)

	o := p.Order
	assert.Equal(t, "ORD000001", o.Number)
	assert.True(t, dec("2000").Equal(o.Subtotal), o.Subtotal.String())
	assert.True(t, o.ShippingCharges.IsZero())
	assert.True(t, dec("2000").Equal(o.Total))
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, models.ItemPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "vendor1", o.Items[0].VendorID)
	assert.True(t, dec("1000").Equal(o.Items[0].FinalPrice))
	assert.Equal(t, 0, f.catalog.Stock(productA.Key()))
	assert.Nil(t, p.Payment)

	view, err := f.carts.ComputeView(context.Background(), models.UserOwner("u1"))
	require.NoError(t, err)
	assert.Empty(t, view.Lines, "cart cleared after checkout")
	assert.Equal(t, []notify.Kind{notify.KindOrderConfirmed}, f.notifier.kinds())

	_, err = f.place("u2", models.PaymentCOD, "")
	assert.ErrorIs(t, err, apperr.ErrOutOfStock)
}

func TestSnapshotSurvivesCatalogEdits(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)

	edited := productA
	edited.Name = "Renamed"
	edited.SellingPrice = decimal.NewFromInt(9999)
	require.NoError(t, f.catalog.UpsertVariant(context.Background(), edited, f.catalog.Stock(productA.Key())))

	got, err := f.composer.Get(context.Background(), p.Order.Number, customer)
	require.NoError(t, err)
	assert.Equal(t, "Court Classic", got.Items[0].Name)
	assert.True(t, dec("1000").Equal(got.Items[0].FinalPrice))
}

func TestConcurrentCheckoutsForLastPair(t *testing.T) {
	last := productA
	last.Stock = 1
	f := newFixture(t, false, last)

	const buyers = 10
	for i := 0; i < buyers; i++ {
		f.add(t, fmt.Sprintf("buyer%d", i), last, 1)
	}

	var (
		won        atomic.Int32
		outOfStock atomic.Int32
		g          errgroup.Group
	)
	for i := 0; i < buyers; i++ {
		i := i
		g.Go(func() error {
			_, err := f.place(fmt.Sprintf("buyer%d", i), models.PaymentCOD, "")
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, apperr.ErrOutOfStock):
				outOfStock.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, buyers-1, outOfStock.Load())
	assert.Equal(t, 0, f.catalog.Stock(last.Key()))
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.place("nobody", models.PaymentCOD, "")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)

	f.add(t, "u1", productB, 1)
	retired := productB
	retired.Active = false
	require.NoError(t, f.catalog.UpsertVariant(context.Background(), retired, productB.Stock))
	_, err = f.place("u1", models.PaymentCOD, "")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)
}

func TestPlaceOrderMultiVendorShippingAndCoupon(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.coupons.Put(context.Background(), models.Coupon{
		Code: "SHOE10", Type: models.CouponPercentage, Value: decimal.NewFromInt(10),
		MaxUses: 1, Active: true, ExpiresAt: time.Now().Add(time.Hour),
	}))
	f.add(t, "u1", productA, 1) // 1000, free shipping from vendor1
	f.add(t, "u1", productB, 1) // 600 + 79 from vendor2

	p, err := f.place("u1", models.PaymentCOD, " shoe10 ")
	require.NoError(t, err)
	o := p.Order
	assert.True(t, dec("1600").Equal(o.Subtotal))
	assert.True(t, dec("79").Equal(o.ShippingCharges))
	assert.Equal(t, "SHOE10", o.CouponCode)
	assert.True(t, dec("160").Equal(o.CouponDiscount))
	assert.True(t, dec("1519").Equal(o.Total), o.Total.String())
	assert.True(t, o.Total.Equal(o.Subtotal.Add(o.ShippingCharges).Sub(o.CouponDiscount)))

	c, err := f.coupons.Get(context.Background(), "SHOE10")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	f.add(t, "u2", productB, 1)
	_, err = f.place("u2", models.PaymentCOD, "SHOE10")
	assert.ErrorIs(t, err, apperr.ErrInvalidCoupon)
	assert.Equal(t, 19, f.catalog.Stock(productB.Key()), "no stock taken by a rejected order")
}

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.coupons.Put(context.Background(), models.Coupon{Code: "FLAT100", Type: models.CouponFixed, Value: decimal.NewFromInt(100), Active: true}))
	before := f.catalog.Stock(productB.Key())
	f.add(t, "u1", productB, 3)

	p, err := f.place("u1", models.PaymentCOD, "FLAT100")
	require.NoError(t, err)
	assert.Equal(t, before-3, f.catalog.Stock(productB.Key()))

	_, err = f.composer.UpdateItemStatus(context.Background(), p.Order.Number, p.Order.Items[0].ID,
		order.StatusUpdate{Status: models.ItemConfirmed}, vendor2)
	require.NoError(t, err)

	_, err = f.composer.CancelOrder(context.Background(), p.Order.Number, models.Actor{UserID: "someone-else"})
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	o, err := f.composer.CancelOrder(context.Background(), p.Order.Number, customer)
	require.NoError(t, err)
	assert.Equal(t, models.ItemCancelled, o.Status)
	assert.Equal(t, models.ItemCancelled, o.Items[0].Status)
	assert.Equal(t, before, f.catalog.Stock(productB.Key()))

	c, err := f.coupons.Get(context.Background(), "FLAT100")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
	assert.Contains(t, f.notifier.kinds(), notify.KindOrderCancelled)

	_, err = f.composer.CancelOrder(context.Background(), p.Order.Number, customer)
	assert.ErrorIs(t, err, apperr.ErrCannotCancel)
}

func TestCancelOrderRejectedOncePackaging(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	f.add(t, "u1", productB, 1)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)

	var itemB string
	for _, it := range p.Order.Items {
		if it.VendorID == "vendor2" {
			itemB = it.ID
		}
	}
	_, err = f.composer.UpdateItemStatus(context.Background(), p.Order.Number, itemB,
		order.StatusUpdate{Status: models.ItemPackaging}, vendor2)
	require.NoError(t, err)

	_, err = f.composer.CancelOrder(context.Background(), p.Order.Number, customer)
	assert.ErrorIs(t, err, apperr.ErrCannotCancel)
	assert.Equal(t, 1, f.catalog.Stock(productA.Key()))
}

func TestItemTransitions(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			f := newFixture(t, strict)
			f.add(t, "u1", productA, 1)
			p, err := f.place("u1", models.PaymentCOD, "")
			require.NoError(t, err)
			number, item := p.Order.Number, p.Order.Items[0].ID
			move := func(s models.ItemStatus) error {
				_, err := f.composer.UpdateItemStatus(context.Background(), number, item, order.StatusUpdate{Status: s}, vendor1)
				return err
			}

			err = move(models.ItemPackaging)
			if strict {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
				for _, s := range []models.ItemStatus{models.ItemConfirmed, models.ItemPackaging} {
					require.NoError(t, move(s))
				}
			} else {
				require.NoError(t, err)
			}
			assert.ErrorIs(t, move(models.ItemConfirmed), apperr.ErrInvalidTransition)

			for _, s := range []models.ItemStatus{models.ItemReadyToPickup, models.ItemPickedUp, models.ItemInTransit, models.ItemDelivered} {
				require.NoError(t, move(s))
			}
			assert.ErrorIs(t, move(models.ItemConfirmed), apperr.ErrInvalidTransition)
			assert.ErrorIs(t, move(models.ItemCancelled), apperr.ErrInvalidTransition)

			o, err := f.composer.Get(context.Background(), number, customer)
			require.NoError(t, err)
			assert.Equal(t, models.ItemDelivered, o.Status)
			assert.Equal(t, models.PaymentPaid, o.PaymentStatus, "cod is paid on delivery")
			assert.Contains(t, f.notifier.kinds(), notify.KindOrderShipped)
			assert.Contains(t, f.notifier.kinds(), notify.KindOrderDelivered)
		})
	}
}

func TestItemUpdatePermissions(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)
	number, item := p.Order.Number, p.Order.Items[0].ID

	_, err = f.composer.UpdateItemStatus(context.Background(), number, item, order.StatusUpdate{Status: models.ItemConfirmed}, vendor2)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.composer.UpdateItemStatus(context.Background(), number, item, order.StatusUpdate{Status: models.ItemConfirmed}, customer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.composer.UpdateItemStatus(context.Background(), number, item, order.StatusUpdate{Status: models.ItemLost}, vendor1)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.composer.UpdateItemStatus(context.Background(), number, "missing", order.StatusUpdate{Status: models.ItemConfirmed}, vendor1)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	o, err := f.composer.UpdateItemStatus(context.Background(), number, item, order.StatusUpdate{Status: models.ItemLost, Note: "courier lost parcel"}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.ItemLost, o.Status)
	require.Len(t, o.Items[0].History, 2)
	assert.Equal(t, "courier lost parcel", o.Items[0].History[1].Note)
}

func TestCancellingSingleItemReleasesItsStock(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	f.add(t, "u1", productB, 2)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)

	var itemB string
	for _, it := range p.Order.Items {
		if it.VendorID == "vendor2" {
			itemB = it.ID
		}
	}
	o, err := f.composer.UpdateItemStatus(context.Background(), p.Order.Number, itemB,
		order.StatusUpdate{Status: models.ItemCancelled}, vendor2)
	require.NoError(t, err)
	assert.Equal(t, 20, f.catalog.Stock(productB.Key()))
	assert.Equal(t, 1, f.catalog.Stock(productA.Key()))
	assert.Equal(t, models.ItemPending, o.Status)
}

func TestVendorSeesOnlyOwnItems(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	f.add(t, "u1", productB, 1)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)

	o, err := f.composer.Get(context.Background(), p.Order.Number, vendor2)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "vendor2", o.Items[0].VendorID)

	list, err := f.composer.ListForVendor(context.Background(), "vendor1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Items, 1)

	_, err = f.composer.Get(context.Background(), p.Order.Number, models.Actor{UserID: "u2", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestOnlinePaymentVerification(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productB, 1)
	p, err := f.place("u1", models.PaymentOnline, "")
	require.NoError(t, err)
	require.NotNil(t, p.Payment)
	assert.Equal(t, p.Payment.Reference, p.Order.PaymentRef)
	number := p.Order.Number
	ctx := context.Background()

	_, err = f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: "pi_other"}, customer)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	f.gateway.verifyErr = errors.New("gateway timeout")
	_, err = f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: p.Payment.Reference}, customer)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)
	o, _ := f.orders.Get(ctx, number)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus, "never marked paid on gateway failure")

	f.gateway.verifyErr = nil
	short := decimal.NewFromInt(1)
	f.gateway.paidAmount = &short
	_, err = f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: p.Payment.Reference}, customer)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	f.gateway.paidAmount = nil
	status, err := f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: p.Payment.Reference}, customer)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, status)

	o, err = f.composer.CancelOrder(ctx, number, customer)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, o.PaymentStatus)
	require.Len(t, f.gateway.refunds, 1)
	assert.True(t, o.Total.Equal(f.gateway.refunds[0]))
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productB, 1)
	p, err := f.place("u1", models.PaymentOnline, "")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, f.composer.HandlePaymentWebhook(ctx, []byte(p.Payment.Reference), "forged"), apperr.ErrPaymentVerification)

	f.gateway.result = payment.ResultFailed
	require.NoError(t, f.composer.HandlePaymentWebhook(ctx, []byte(p.Payment.Reference), "valid"))
	o, _ := f.orders.Get(ctx, p.Order.Number)
	assert.Equal(t, models.PaymentFailed, o.PaymentStatus)

	f.gateway.result = payment.ResultSucceeded
	require.NoError(t, f.composer.HandlePaymentWebhook(ctx, []byte(p.Payment.Reference), "valid"))
	o, _ = f.orders.Get(ctx, p.Order.Number)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)
}

func TestPaymentCreationFailureRollsBack(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.coupons.Put(context.Background(), models.Coupon{Code: "FLAT100", Type: models.CouponFixed, Value: decimal.NewFromInt(100), Active: true}))
	f.gateway.createErr = errors.New("stripe down")
	f.add(t, "u1", productB, 2)

	_, err := f.place("u1", models.PaymentOnline, "FLAT100")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.Equal(t, 20, f.catalog.Stock(productB.Key()))
	c, _ := f.coupons.Get(context.Background(), "FLAT100")
	assert.Equal(t, 0, c.UsedCount)

	list, err := f.composer.ListForUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	view, err := f.carts.ComputeView(context.Background(), models.UserOwner("u1"))
	require.NoError(t, err)
	assert.Len(t, view.Lines, 1, "cart kept when checkout fails")
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t, false)
	f.add(t, "u1", productA, 1)
	_, err := f.place("u1", models.PaymentMethod("cheque"), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.composer.PlaceOrder(context.Background(), order.PlaceOrderInput{UserID: "u1", PaymentMethod: models.PaymentCOD})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func itemOf(o models.Order, vendorID string) string {
	for _, it := range o.Items {
		if it.VendorID == vendorID {
			return it.ID
		}
	}
	return ""
}

func TestPartialRefundThenCancelRefundsTotalOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.add(t, "u1", productA, 1) // 1000, free shipping from vendor1
	f.add(t, "u1", productB, 1) // 600 + 79 from vendor2
	p, err := f.place("u1", models.PaymentOnline, "")
	require.NoError(t, err)
	number := p.Order.Number
	_, err = f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: p.Payment.Reference}, customer)
	require.NoError(t, err)

	o, err := f.composer.UpdateItemStatus(ctx, number, itemOf(p.Order, "vendor2"),
		order.StatusUpdate{Status: models.ItemCancelled}, vendor2)
	require.NoError(t, err)
	require.Len(t, f.gateway.refunds, 1)
	assert.True(t, dec("600").Equal(f.gateway.refunds[0]))
	assert.True(t, dec("600").Equal(o.RefundedAmount))
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)

	o, err = f.composer.CancelOrder(ctx, number, customer)
	require.NoError(t, err)
	require.Len(t, f.gateway.refunds, 2)
	assert.True(t, dec("1079").Equal(f.gateway.refunds[1]), f.gateway.refunds[1].String())

	refunded := decimal.Sum(f.gateway.refunds[0], f.gateway.refunds[1:]...)
	assert.True(t, o.Total.Equal(refunded), refunded.String())
	assert.True(t, o.Total.Equal(o.RefundedAmount))
	assert.True(t, o.Refundable().IsZero())
	assert.Equal(t, models.PaymentRefunded, o.PaymentStatus)
}

func TestCancellingEveryItemSettlesTheOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.coupons.Put(ctx, models.Coupon{Code: "FLAT100", Type: models.CouponFixed, Value: decimal.NewFromInt(100), Active: true}))
	f.add(t, "u1", productA, 1)
	f.add(t, "u1", productB, 1)
	p, err := f.place("u1", models.PaymentOnline, "FLAT100")
	require.NoError(t, err)
	number := p.Order.Number
	_, err = f.composer.VerifyPayment(ctx, number, payment.Payload{Reference: p.Payment.Reference}, customer)
	require.NoError(t, err)

	_, err = f.composer.UpdateItemStatus(ctx, number, itemOf(p.Order, "vendor1"),
		order.StatusUpdate{Status: models.ItemCancelled}, vendor1)
	require.NoError(t, err)
	c, err := f.coupons.Get(ctx, "FLAT100")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount, "coupon kept while an item is still open")

	o, err := f.composer.UpdateItemStatus(ctx, number, itemOf(p.Order, "vendor2"),
		order.StatusUpdate{Status: models.ItemCancelled}, vendor2)
	require.NoError(t, err)
	assert.Equal(t, models.ItemCancelled, o.Status)
	assert.Equal(t, models.PaymentRefunded, o.PaymentStatus)
	assert.True(t, o.Total.Equal(o.RefundedAmount), o.RefundedAmount.String())

	c, err = f.coupons.Get(ctx, "FLAT100")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
	uses, err := f.coupons.UsesBy(ctx, "FLAT100", "u1")
	require.NoError(t, err)
	assert.Zero(t, uses)
	assert.Equal(t, productA.Stock, f.catalog.Stock(productA.Key()))
	assert.Equal(t, productB.Stock, f.catalog.Stock(productB.Key()))
}

func TestSkippingPickupStillNotifiesShipment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.add(t, "u1", productA, 1)
	p, err := f.place("u1", models.PaymentCOD, "")
	require.NoError(t, err)
	number, item := p.Order.Number, p.Order.Items[0].ID

	for _, s := range []models.ItemStatus{models.ItemReadyToPickup, models.ItemInTransit, models.ItemDelivered} {
		_, err := f.composer.UpdateItemStatus(ctx, number, item, order.StatusUpdate{Status: s}, vendor1)
		require.NoError(t, err)
	}

	shippedCount := 0
	for _, k := range f.notifier.kinds() {
		if k == notify.KindOrderShipped {
			shippedCount++
		}
	}
	assert.Equal(t, 1, shippedCount)
	assert.Contains(t, f.notifier.kinds(), notify.KindOrderDelivered)
}

type takenNumbers struct {
	*memstore.Orders
	collisions int
}

func (r *takenNumbers) Create(ctx context.Context, o models.Order) error {
	if r.collisions > 0 {
		r.collisions--
		return apperr.New(apperr.ErrDuplicateID, "order "+o.Number+" already exists", nil)
	}
	return r.Orders.Create(ctx, o)
}

func TestPlaceOrderRetriesTakenNumber(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.coupons.Put(ctx, models.Coupon{Code: "FLAT100", Type: models.CouponFixed, Value: decimal.NewFromInt(100), Active: true}))
	repo := &takenNumbers{Orders: f.orders, collisions: 1}
	shipping := cart.FlatRate{Fee: decimal.NewFromInt(79), FreeAbove: decimal.NewFromInt(999)}
	composer := order.NewComposer(f.carts, f.catalog, repo,
		sequence.NewGenerator(sequence.NewMemoryCounter(), "orders", "ORD", 6), shipping,
		order.Config{Currency: "inr"},
		order.WithCoupons(f.coupons),
		order.WithPayments(f.gateway),
		order.WithNotifier(f.notifier),
	)
	f.add(t, "u1", productB, 2)

	p, err := composer.PlaceOrder(ctx, order.PlaceOrderInput{
		UserID: "u1", Phone: "+919800000001", Email: "u1@example.com",
		Shipping: address, PaymentMethod: models.PaymentOnline, CouponCode: "FLAT100",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD000002", p.Order.Number)
	assert.Equal(t, productB.Stock-2, f.catalog.Stock(productB.Key()))

	c, err := f.coupons.Get(ctx, "FLAT100")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	_, err = composer.VerifyPayment(ctx, p.Order.Number, payment.Payload{Reference: p.Payment.Reference}, customer)
	require.NoError(t, err)
	_, err = f.orders.Get(ctx, "ORD000001")
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
}
