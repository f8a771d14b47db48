package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestSendSucceedsWhenOneSenderDelivers(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("smtp down")}
	ok := &recordingSender{name: "ok"}
	d := NewDispatcher(time.Second, broken, ok)

	err := d.Send(context.Background(), Message{Phone: "+919800000001", Kind: KindOrderConfirmed})
	require.NoError(t, err)
	assert.Equal(t, 1, broken.count())
	assert.Equal(t, 1, ok.count())
}

func TestSendFailsWhenNothingDelivers(t *testing.T) {
	d := NewDispatcher(time.Second, &recordingSender{name: "broken", err: errors.New("down")})
	assert.Error(t, d.Send(context.Background(), Message{Phone: "+91", Kind: KindOTP}))

	d = NewDispatcher(time.Second, LogSender{})
	assert.ErrorIs(t, d.Send(context.Background(), Message{Kind: KindOTP}), ErrNoRecipient)
}

func TestNotifyIsAsyncAndSwallowsErrors(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("down")}
	d := NewDispatcher(time.Second, broken)

	d.Notify(Message{Phone: "+919800000001", Kind: KindOrderDelivered})
	d.Wait()
	assert.Equal(t, 1, broken.count())
}

func TestText(t *testing.T) {
	msg := Message{Kind: KindOrderConfirmed, Vars: map[string]string{"order_id": "ORD000001", "total": "₹2000.00"}}
	assert.Contains(t, Text(msg), "ORD000001")
	assert.Contains(t, Text(msg), "₹2000.00")

	shipped := Message{Kind: KindOrderShipped, Vars: map[string]string{"order_id": "ORD000001", "item": "Runner"}}
	assert.Contains(t, Text(shipped), "Tracking: -")

	assert.Contains(t, RenderHTML(Message{Kind: KindOrderCancelled, Vars: map[string]string{"order_id": "<b>"}}), "&lt;b&gt;")
}

func TestMailSenderSkipsOTPAndMissingAddress(t *testing.T) {
	m := NewMailSender(MailConfig{Host: "localhost", From: "noreply@shoemart.test"})
	assert.ErrorIs(t, m.Send(context.Background(), Message{Kind: KindOrderConfirmed}), ErrNoRecipient)
	assert.ErrorIs(t, m.Send(context.Background(), Message{Email: "a@b.c", Kind: KindOTP}), ErrNoRecipient)
}

func TestQueueSenderPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	q := NewQueueSender(client, "sms:test")
	assert.Error(t, q.Send(ctx, Message{Phone: "+919800000001", Kind: KindOTP}), "no worker listening")

	sub := client.Subscribe(ctx, "sms:test")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Send(ctx, Message{Phone: "+919800000001", Kind: KindOTP, Vars: map[string]string{"otp": "123456", "ttl": "5m"}}))

	select {
	case m := <-sub.Channel():
		var env smsEnvelope
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &env))
		assert.Equal(t, "+919800000001", env.Phone)
		assert.Contains(t, env.Text, "123456")
	case <-time.After(2 * time.Second):
		t.Fatal("sms not published")
	}

	assert.ErrorIs(t, q.Send(ctx, Message{Kind: KindOTP}), ErrNoRecipient)
}
