package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoemart_back_end/internal/auth"
	"shoemart_back_end/internal/cache"
	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/handlers"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
	"shoemart_back_end/internal/notify"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/routes"
	"shoemart_back_end/internal/sequence"
	"shoemart_back_end/internal/services"
	"shoemart_back_end/internal/store/memstore"
	"shoemart_back_end/internal/ticket"
)

const customerPhone = "+919800000001"

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *inbox) Send(_ context.Context, msg notify.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[msg.Phone] = msg.Vars["otp"]
	return nil
}

func (b *inbox) code(phone string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[phone]
}

type server struct {
	engine *gin.Engine
	inbox  *inbox
	signer *auth.TokenSigner
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := memstore.NewCatalog(
		models.Variant{ProductID: "p1", VendorID: "v1", Name: "Court Classic", Size: "9", Color: "black",
			SellingPrice: decimal.NewFromInt(1000), Stock: 5, Active: true},
		models.Variant{ProductID: "p2", VendorID: "v2", Name: "Trail Runner", Size: "8", Color: "grey",
			SellingPrice: decimal.NewFromInt(2500), Stock: 2, Active: true},
	)
	users := memstore.NewUsers(
		models.User{ID: "vendor-user-1", Phone: "+919800000101", Role: models.RoleVendor, VendorID: "v1"},
		models.User{ID: "vendor-user-2", Phone: "+919800000102", Role: models.RoleVendor, VendorID: "v2"},
		models.User{ID: "admin-user", Phone: "+919800000100", Role: models.RoleAdmin},
	)
	orders := memstore.NewOrders()
	coupons := memstore.NewCoupons()
	carts := memstore.NewCarts()
	shipping := cart.FlatRate{Fee: decimal.NewFromInt(79), FreeAbove: decimal.NewFromInt(999)}
	counter := sequence.NewMemoryCounter()

	agg := cart.NewAggregator(carts, cat, shipping)
	composer := order.NewComposer(agg, cat, orders, sequence.NewGenerator(counter, "orders", "ORD", 6),
		shipping, order.Config{Currency: "inr"}, order.WithCoupons(coupons))
	tracker := ticket.NewTracker(memstore.NewTickets(), orders, sequence.NewGenerator(counter, "tickets", "TKT", 6), ticket.Policy{})

	box := &inbox{codes: map[string]string{}}
	signer := auth.NewTokenSigner("handlers-test-secret", time.Hour)
	identity := auth.NewIdentityProvider(users, cache.NewMemoryOTPStore(), cache.NewMemoryLimiter(), cache.NewMemoryRevocations(),
		box, signer, auth.Config{OTPTTL: time.Minute, OTPLength: 6, MaxAttempts: 3, RequestsPerHour: 10})

	h := &handlers.Handlers{
		Identity: identity,
		Carts:    agg,
		Watcher:  carts,
		Orders:   composer,
		Catalog:  cat,
		Tickets:  tracker,
		Media:    services.NewMemoryMedia(),
		Search:   orders,
		Coupons:  coupons,
	}
	r := gin.New()
	routes.RegisterRoutes(r, h, identity, cache.NewMemoryLimiter())
	return &server{engine: r, inbox: box, signer: signer}
}

func (s *server) tokenFor(t *testing.T, u models.User) string {
	t.Helper()
	token, _, err := s.signer.Issue(u)
	require.NoError(t, err)
	return token
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	session string
}

func (s *server) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set(middleware.SessionHeader, c.session)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var shipTo = models.Address{
	Name: "Asha", Phone: customerPhone, Line1: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
}

// signIn runs the OTP flow and returns the token and the whole response.
func (s *server) signIn(t *testing.T, session string) (string, map[string]json.RawMessage) {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/otp", body: gin.H{"phone": customerPhone}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/verify", session: session,
		body: gin.H{"phone": customerPhone, "otp": s.inbox.code(customerPhone)}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]json.RawMessage](t, w)
	var token string
	require.NoError(t, json.Unmarshal(resp["token"], &token))
	return token, resp
}

func TestCheckoutFlow(t *testing.T) {
	s := newServer(t)
	item := gin.H{"product_id": "p1", "size": "9", "color": "black", "quantity": 2}

	w := s.do(t, call{method: http.MethodPost, path: "/api/cart/items", body: item, session: "guest-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[models.CartView](t, w)
	require.Len(t, view.Lines, 1)
	assert.True(t, decimal.NewFromInt(2000).Equal(view.Subtotal))

	token, resp := s.signIn(t, "guest-1")
	require.Contains(t, resp, "cart", "the guest cart is merged on sign in")
	var merged models.CartView
	require.NoError(t, json.Unmarshal(resp["cart"], &merged))
	require.Len(t, merged.Lines, 1)
	assert.Equal(t, 2, merged.Lines[0].Quantity)

	w = s.do(t, call{method: http.MethodPost, path: "/api/orders", token: token,
		body: gin.H{"shipping_address": shipTo, "payment_method": "cod"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[order.Placement](t, w)
	o := placed.Order
	assert.True(t, strings.HasPrefix(o.Number, "ORD"))
	require.Len(t, o.Items, 1)
	assert.Equal(t, models.ItemPending, o.Items[0].Status)
	assert.Nil(t, placed.Payment)

	w = s.do(t, call{method: http.MethodGet, path: "/api/orders/" + o.Number, token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.Number, decode[models.Order](t, w).Number)

	w = s.do(t, call{method: http.MethodGet, path: "/api/orders", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])
}

func TestVendorAndOperatorFlow(t *testing.T) {
	s := newServer(t)
	token, _ := s.signIn(t, "")
	for _, it := range []gin.H{
		{"product_id": "p1", "size": "9", "color": "black", "quantity": 1},
		{"product_id": "p2", "size": "8", "color": "grey", "quantity": 1},
	} {
		w := s.do(t, call{method: http.MethodPost, path: "/api/cart/items", body: it, token: token})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := s.do(t, call{method: http.MethodPost, path: "/api/orders", token: token,
		body: gin.H{"shipping_address": shipTo, "payment_method": "cod"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[order.Placement](t, w).Order
	require.Len(t, o.Items, 2)

	vendor1 := s.tokenFor(t, models.User{ID: "vendor-user-1", Phone: "+919800000101", Role: models.RoleVendor, VendorID: "v1"})
	vendor2 := s.tokenFor(t, models.User{ID: "vendor-user-2", Phone: "+919800000102", Role: models.RoleVendor, VendorID: "v2"})
	admin := s.tokenFor(t, models.User{ID: "admin-user", Phone: "+919800000100", Role: models.RoleAdmin})

	var v1Item string
	for _, it := range o.Items {
		if it.VendorID == "v1" {
			v1Item = it.ID
		}
	}
	require.NotEmpty(t, v1Item)
	itemPath := "/api/vendor/orders/" + o.Number + "/items/" + v1Item

	w = s.do(t, call{method: http.MethodPatch, path: itemPath, token: vendor2, body: gin.H{"status": "confirmed"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodPatch, path: itemPath, token: vendor1, body: gin.H{"status": "confirmed"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Order](t, w)
	assert.Equal(t, models.ItemConfirmed, updated.Item(v1Item).Status)

	w = s.do(t, call{method: http.MethodPatch, path: itemPath, token: vendor1, body: gin.H{"status": "lost"}})
	assert.Equal(t, http.StatusForbidden, w.Code, "only operations mark items lost")

	w = s.do(t, call{method: http.MethodGet, path: itemPath + "/label?format=png", token: vendor1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = s.do(t, call{method: http.MethodGet, path: "/api/vendor/orders", token: vendor1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	// tickets
	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets", token: token,
		body: gin.H{"order_id": o.Number, "type": "damage_pair", "description": "sole came apart"}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "customers name the vendor")

	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets", token: token,
		body: gin.H{"order_id": o.Number, "vendor_id": "v2", "type": "wrong_products", "description": "got size 9 instead of 8"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	own := decode[models.Ticket](t, w)
	assert.Equal(t, "v2", own.VendorID)

	w = s.do(t, call{method: http.MethodGet, path: "/api/tickets/" + own.ID, token: token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, own.ID, decode[models.Ticket](t, w).ID)

	stranger := s.tokenFor(t, models.User{ID: "someone-else", Phone: "+919800000199", Role: models.RoleCustomer})
	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets", token: stranger,
		body: gin.H{"order_id": o.Number, "vendor_id": "v2", "type": "wrong_products", "description": "not my order"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, call{method: http.MethodGet, path: "/api/tickets/" + own.ID, token: stranger})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, call{method: http.MethodGet, path: "/api/tickets/" + own.ID, token: vendor1})
	assert.Equal(t, http.StatusNotFound, w.Code, "v1 has no part in a ticket against v2")

	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets", token: vendor1,
		body: gin.H{"order_id": o.Number, "type": "damage_pair", "description": "sole came apart"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tk := decode[models.Ticket](t, w)
	assert.True(t, strings.HasPrefix(tk.ID, "TKT"))
	assert.Equal(t, models.TicketOpen, tk.Status)

	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets/" + tk.ID + "/resolve", token: vendor1,
		body: gin.H{"resolution": "refund issued"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/tickets/" + tk.ID + "/resolve", token: admin,
		body: gin.H{"resolution": "refund issued"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TicketResolved, decode[models.Ticket](t, w).Status)

	w = s.do(t, call{method: http.MethodGet, path: "/api/admin/orders/" + o.Number + "/tickets", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["count"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/admin/orders/search?q=" + o.Number, token: admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/admin/orders/search", token: vendor1})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestErrorResponses(t *testing.T) {
	s := newServer(t)

	w := s.do(t, call{method: http.MethodGet, path: "/api/orders"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode[errorBody](t, w).Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/cart"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "guests must name their cart")

	w = s.do(t, call{method: http.MethodPost, path: "/api/cart/items", session: "guest-2",
		body: gin.H{"product_id": "p2", "size": "8", "color": "grey", "quantity": 3}})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "out_of_stock", decode[errorBody](t, w).Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/cart/items", session: "guest-2",
		body: gin.H{"product_id": "p2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/verify",
		body: gin.H{"phone": customerPhone, "otp": "000000"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := s.signIn(t, "")
	w = s.do(t, call{method: http.MethodPost, path: "/api/orders", token: token,
		body: gin.H{"shipping_address": shipTo, "payment_method": "cod"}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty carts cannot be checked out")

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/logout", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, call{method: http.MethodGet, path: "/api/orders", token: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked tokens are refused")
}

func TestAdminCoupons(t *testing.T) {
	s := newServer(t)
	admin := s.tokenFor(t, models.User{ID: "admin-user", Phone: "+919800000100", Role: models.RoleAdmin})

	w := s.do(t, call{method: http.MethodPut, path: "/api/admin/coupons/flat10", token: admin,
		body: gin.H{"type": "percentage", "value": "150"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPut, path: "/api/admin/coupons/flat10", token: admin,
		body: gin.H{"type": "percentage", "value": "10"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cp := decode[models.Coupon](t, w)
	assert.Equal(t, "FLAT10", cp.Code)
	assert.True(t, cp.Active)

	token, _ := s.signIn(t, "")
	w = s.do(t, call{method: http.MethodPost, path: "/api/cart/items", token: token,
		body: gin.H{"product_id": "p1", "size": "9", "color": "black", "quantity": 1}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodGet, path: "/api/cart/coupon/flat10", token: token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q := decode[models.CouponQuote](t, w)
	assert.True(t, decimal.NewFromInt(100).Equal(q.Discount))
}
