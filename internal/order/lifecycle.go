package order

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
	"shoemart_back_end/internal/payment"
)

var errUnchanged = errors.New("order unchanged")

// mutate applies fn to the latest version of an order and writes it back
// with an optimistic version check, retrying on conflicts. fn may run more
// than once and must only touch the order it is given. Returning
// errUnchanged skips the write.
func (c *Composer) mutate(ctx context.Context, number string, fn func(o *models.Order) error) (models.Order, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		o, err := c.orders.Get(ctx, number)
		if err != nil {
			return models.Order{}, err
		}
		prev := o.Version
		if err := fn(&o); errors.Is(err, errUnchanged) {
			return o, nil
		} else if err != nil {
			return models.Order{}, err
		}
		o.RecomputeStatus()
		o.Version = prev + 1
		o.UpdatedAt = c.now()

		err = c.orders.Update(ctx, o, prev)
		if errors.Is(err, apperr.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.Order{}, err
		}
		c.index(ctx, o)
		return o, nil
	}
	return models.Order{}, apperr.New(apperr.ErrVersionConflict, "order "+number+" is being updated concurrently", nil)
}

type StatusUpdate struct {
	Status     models.ItemStatus
	TrackingID string
	Note       string
}

func authorizeItemUpdate(actor models.Actor, item *models.OrderItem, to models.ItemStatus) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsVendor() && item.VendorID == actor.VendorID:
		if to == models.ItemRTO || to == models.ItemLost {
			return apperr.New(apperr.ErrForbidden, "only operations can mark an item "+string(to), nil)
		}
		return nil
	}
	return apperr.New(apperr.ErrForbidden, "item belongs to another vendor", nil)
}

// UpdateItemStatus moves one item along the transition table. Cancelling an
// item gives its stock and, for paid online orders, its amount back. Once the
// last open item is cancelled the whole order is settled like CancelOrder.
// Pick-up and delivery notify the customer.
func (c *Composer) UpdateItemStatus(ctx context.Context, number, itemID string, upd StatusUpdate, actor models.Actor) (models.Order, error) {
	if !upd.Status.Valid() {
		return models.Order{}, apperr.Validation("status", "unknown item status "+string(upd.Status))
	}

	var (
		item models.OrderItem
		from models.ItemStatus
	)
	o, err := c.mutate(ctx, number, func(o *models.Order) error {
		it := o.Item(itemID)
		if it == nil {
			return apperr.New(apperr.ErrOrderNotFound, "item "+itemID+" not found in order "+number, nil)
		}
		if err := authorizeItemUpdate(actor, it, upd.Status); err != nil {
			return err
		}
		if err := c.rules.Check(it.Status, upd.Status); err != nil {
			return err
		}
		from = it.Status
		it.History = append(it.History, models.StatusChange{
			From: it.Status,
			To:   upd.Status,
			By:   actor.UserID,
			Note: upd.Note,
			At:   c.now(),
		})
		it.Status = upd.Status
		if upd.TrackingID != "" {
			it.TrackingID = upd.TrackingID
		}
		item = *it

		o.RecomputeStatus()
		if o.PaymentMethod == models.PaymentCOD && o.Status == models.ItemDelivered {
			o.PaymentStatus = models.PaymentPaid
		}
		if o.Status == models.ItemCancelled && o.PaymentMethod == models.PaymentOnline && o.PaymentStatus == models.PaymentPaid {
			o.PaymentStatus = models.PaymentRefundPending
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	log.Printf("📦 %s item %s: %s by %s", number, itemID, upd.Status, actor.UserID)

	if upd.Status == models.ItemCancelled {
		catalog.Release(ctx, c.catalog, []catalog.Line{{Key: item.Key(), Quantity: item.Quantity}}, number)
		switch {
		case o.Status == models.ItemCancelled:
			c.releaseCoupon(ctx, o)
			if o.PaymentStatus == models.PaymentRefundPending {
				o = c.refundOrder(ctx, o)
			}
		case o.PaymentMethod == models.PaymentOnline && o.PaymentStatus == models.PaymentPaid:
			o = c.refundItem(ctx, o, item)
		}
	}
	if shipped(from, upd.Status) {
		c.notifyItem(o, item, notify.KindOrderShipped)
	}
	if upd.Status == models.ItemDelivered {
		c.notifyItem(o, item, notify.KindOrderDelivered)
	}
	return o, nil
}

// shipped reports whether a move takes an item past the courier pick-up,
// including skip-ahead moves that never stop at picked_up.
func shipped(from, to models.ItemStatus) bool {
	pickup := models.ItemPickedUp.Rank()
	return from.Rank() < pickup && to.Rank() >= pickup
}

// refundItem gives back the line total of a cancelled item, capped by what
// has not been refunded yet.
func (c *Composer) refundItem(ctx context.Context, o models.Order, it models.OrderItem) models.Order {
	if c.payments == nil {
		return o
	}
	amount := decimal.Min(it.LineTotal, o.Refundable())
	if !amount.IsPositive() {
		return o
	}
	if _, err := c.payments.Refund(context.WithoutCancel(ctx), o.PaymentRef, amount); err != nil {
		log.Printf("❌ refund of item %s in %s failed: %v", it.ID, o.Number, err)
		return o
	}
	updated, err := c.mutate(context.WithoutCancel(ctx), o.Number, func(o *models.Order) error {
		o.RefundedAmount = o.RefundedAmount.Add(amount)
		return nil
	})
	if err != nil {
		log.Printf("⚠️ %s refunded %s for item %s but not saved: %v", o.Number, amount.StringFixed(2), it.ID, err)
		return o
	}
	return updated
}

func (c *Composer) notifyItem(o models.Order, it models.OrderItem, kind notify.Kind) {
	c.notifier.Notify(notify.Message{
		Phone: o.CustomerPhone,
		Email: o.CustomerEmail,
		Kind:  kind,
		Vars: map[string]string{
			"order_id":    o.Number,
			"item":        it.Name,
			"tracking_id": it.TrackingID,
		},
	})
}

// CancelOrder cancels every open item while nothing has started packaging,
// then returns the stock, the coupon use and, for paid online orders, the money.
func (c *Composer) CancelOrder(ctx context.Context, number string, actor models.Actor) (models.Order, error) {
	var released []catalog.Line
	o, err := c.mutate(ctx, number, func(o *models.Order) error {
		if !actor.IsAdmin() && o.UserID != actor.UserID {
			return apperr.ErrOrderNotFound
		}
		released = nil
		for _, it := range o.Items {
			switch it.Status {
			case models.ItemPending, models.ItemConfirmed, models.ItemCancelled:
			default:
				return apperr.New(apperr.ErrCannotCancel,
					"item "+it.Name+" is already "+string(it.Status), map[string]any{"item_id": it.ID, "status": it.Status})
			}
		}
		now := c.now()
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status == models.ItemCancelled {
				continue
			}
			if err := c.rules.Check(it.Status, models.ItemCancelled); err != nil {
				return err
			}
			it.History = append(it.History, models.StatusChange{From: it.Status, To: models.ItemCancelled, By: actor.UserID, At: now})
			it.Status = models.ItemCancelled
			released = append(released, catalog.Line{Key: it.Key(), Quantity: it.Quantity})
		}
		if len(released) == 0 {
			return apperr.New(apperr.ErrCannotCancel, "order is already cancelled", nil)
		}
		if o.PaymentMethod == models.PaymentOnline && o.PaymentStatus == models.PaymentPaid {
			o.PaymentStatus = models.PaymentRefundPending
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	log.Printf("❌ Order %s cancelled by %s", number, actor.UserID)

	catalog.Release(ctx, c.catalog, released, number)
	c.releaseCoupon(ctx, o)

	if o.PaymentStatus == models.PaymentRefundPending {
		o = c.refundOrder(ctx, o)
	}

	c.notifier.Notify(notify.Message{
		Phone: o.CustomerPhone,
		Email: o.CustomerEmail,
		Kind:  notify.KindOrderCancelled,
		Vars:  map[string]string{"order_id": o.Number},
	})
	return o, nil
}

// refundOrder returns whatever has not been refunded yet. On gateway
// failure the order stays refund_pending for an operator to retry.
func (c *Composer) refundOrder(ctx context.Context, o models.Order) models.Order {
	if c.payments == nil {
		return o
	}
	amount := o.Refundable()
	if amount.IsPositive() {
		if _, err := c.payments.Refund(context.WithoutCancel(ctx), o.PaymentRef, amount); err != nil {
			log.Printf("❌ refund of %s failed, left as refund_pending: %v", o.Number, err)
			return o
		}
	}
	updated, err := c.mutate(context.WithoutCancel(ctx), o.Number, func(o *models.Order) error {
		if o.PaymentStatus != models.PaymentRefundPending {
			return errUnchanged
		}
		o.RefundedAmount = o.RefundedAmount.Add(amount)
		o.PaymentStatus = models.PaymentRefunded
		return nil
	})
	if err != nil {
		log.Printf("⚠️ %s refunded but status not saved: %v", o.Number, err)
		return o
	}
	return updated
}

// VerifyPayment asks the gateway about the payment of an online order and
// records the outcome. A gateway error leaves the order untouched.
func (c *Composer) VerifyPayment(ctx context.Context, number string, payload payment.Payload, actor models.Actor) (models.PaymentStatus, error) {
	o, err := c.orders.Get(ctx, number)
	if err != nil {
		return "", err
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return "", apperr.ErrOrderNotFound
	}
	if o.PaymentMethod != models.PaymentOnline || c.payments == nil {
		return "", apperr.Validation("payment_method", "order is not paid online")
	}
	if payload.Reference == "" || payload.Reference != o.PaymentRef {
		return "", apperr.New(apperr.ErrPaymentVerification, "payment does not belong to this order", nil)
	}
	if o.PaymentStatus != models.PaymentPending && o.PaymentStatus != models.PaymentFailed {
		return o.PaymentStatus, nil
	}

	v, err := c.payments.Verify(ctx, payload.Reference)
	if err != nil {
		return o.PaymentStatus, apperr.Wrap(apperr.ErrPaymentVerification, err)
	}
	return c.applyPayment(ctx, number, v)
}

// HandlePaymentWebhook records a payment outcome pushed by the gateway.
func (c *Composer) HandlePaymentWebhook(ctx context.Context, body []byte, signature string) error {
	if c.payments == nil {
		return apperr.Validation("payment", "online payments are not available")
	}
	v, ok, err := c.payments.ParseWebhook(body, signature)
	if err != nil {
		return apperr.Wrap(apperr.ErrPaymentVerification, err)
	}
	if !ok {
		return nil
	}
	if v.OrderNumber == "" {
		log.Printf("⚠️ payment %s carries no order number", v.Reference)
		return nil
	}
	_, err = c.applyPayment(ctx, v.OrderNumber, v)
	return err
}

func (c *Composer) applyPayment(ctx context.Context, number string, v payment.Verification) (models.PaymentStatus, error) {
	o, err := c.mutate(ctx, number, func(o *models.Order) error {
		if v.Reference != o.PaymentRef || (v.OrderNumber != "" && v.OrderNumber != o.Number) {
			return apperr.New(apperr.ErrPaymentVerification, "payment does not belong to this order", nil)
		}
		if o.PaymentStatus != models.PaymentPending && o.PaymentStatus != models.PaymentFailed {
			return errUnchanged
		}
		switch v.Result {
		case payment.ResultSucceeded:
			if payment.MinorUnits(v.Amount) != payment.MinorUnits(o.Total) {
				return apperr.New(apperr.ErrPaymentVerification, "paid amount does not match the order total", map[string]any{
					"paid":  v.Amount.StringFixed(2),
					"total": o.Total.StringFixed(2),
				})
			}
			o.PaymentStatus = models.PaymentPaid
		case payment.ResultFailed:
			o.PaymentStatus = models.PaymentFailed
		default:
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	log.Printf("💳 %s payment %s", number, o.PaymentStatus)
	return o.PaymentStatus, nil
}
