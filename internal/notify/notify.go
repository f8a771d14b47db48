// Package notify delivers customer messages (OTP, order updates) over SMS
// hand-off and email. Order workflows never wait on it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

type Kind string

const (
	KindOTP            Kind = "otp"
	KindOrderConfirmed Kind = "order_confirmed"
	KindOrderShipped   Kind = "order_shipped"
	KindOrderDelivered Kind = "order_delivered"
	KindOrderCancelled Kind = "order_cancelled"
	KindTicketUpdate   Kind = "ticket_update"
)

type Message struct {
	Phone string            `json:"phone,omitempty"`
	Email string            `json:"email,omitempty"`
	Kind  Kind              `json:"kind"`
	Vars  map[string]string `json:"vars,omitempty"`
}

// ErrNoRecipient means the sender has no address for this message. It is not a failure.
var ErrNoRecipient = errors.New("no recipient for this channel")

type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type Dispatcher struct {
	senders []Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{senders: senders, timeout: timeout}
}

// Send tries every sender and succeeds when at least one delivered.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	var (
		delivered bool
		errs      []error
	)
	for _, s := range d.senders {
		err := s.Send(ctx, msg)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrNoRecipient):
		default:
			log.Printf("❌ %s notification via %s failed: %v", msg.Kind, s.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if delivered {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", msg.Kind, ErrNoRecipient)
	}
	return errors.Join(errs...)
}

// Notify sends in the background with its own timeout. Failures are only logged.
func (d *Dispatcher) Notify(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.Send(ctx, msg); err != nil {
			log.Printf("⚠️ %s notification dropped: %v", msg.Kind, err)
		}
	}()
}

// Wait blocks until background sends finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Text is the short human readable form used for SMS and logs.
func Text(msg Message) string {
	v := msg.Vars
	switch msg.Kind {
	case KindOTP:
		return fmt.Sprintf("%s is your ShoeMart verification code. It expires in %s.", v["otp"], v["ttl"])
	case KindOrderConfirmed:
		return fmt.Sprintf("Your order %s of %s is confirmed. We will let you know when it ships.", v["order_id"], v["total"])
	case KindOrderShipped:
		return fmt.Sprintf("%s from order %s has been picked up by our courier. Tracking: %s", v["item"], v["order_id"], orDash(v["tracking_id"]))
	case KindOrderDelivered:
		return fmt.Sprintf("%s from order %s has been delivered. Enjoy your new pair!", v["item"], v["order_id"])
	case KindOrderCancelled:
		return fmt.Sprintf("Your order %s has been cancelled.", v["order_id"])
	case KindTicketUpdate:
		return fmt.Sprintf("Ticket %s for order %s is now %s.", v["ticket_id"], v["order_id"], v["status"])
	default:
		return fmt.Sprintf("Update from ShoeMart: %s", msg.Kind)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// LogSender writes messages to the process log. Useful in development.
type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(_ context.Context, msg Message) error {
	to := msg.Phone
	if to == "" {
		to = msg.Email
	}
	if to == "" {
		return ErrNoRecipient
	}
	log.Printf("📨 [%s] to %s: %s", msg.Kind, to, Text(msg))
	return nil
}
