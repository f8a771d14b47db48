package handlers

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/middleware"
	"shoemart_back_end/internal/models"
)

const (
	wsPingEvery  = 30 * time.Second
	wsWriteLimit = 10 * time.Second
)

func (h *Handlers) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(h.AllowedOrigins) == 0 {
				return true
			}
			u, err := url.Parse(r.Header.Get("Origin"))
			if err != nil {
				return false
			}
			return slices.Contains(h.AllowedOrigins, u.Scheme+"://"+u.Host)
		},
	}
}

type cartEvent struct {
	Type string           `json:"type"`
	Cart *models.CartView `json:"cart,omitempty"`
}

// CartSocket pushes the recomputed cart view whenever the cart changes, from
// this device or another one.
func (h *Handlers) CartSocket(c *gin.Context) {
	owner, err := middleware.CartOwner(c)
	if err != nil {
		fail(c, err)
		return
	}
	if h.Watcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "realtime cart is not available"})
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	events, err := h.Watcher.Watch(ctx, owner)
	if err != nil {
		log.Printf("❌ cart watch %s: %v", owner, err)
		return
	}

	// the client only talks to close the socket
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev cartEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteLimit))
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("❌ websocket write to %s: %v", owner, err)
			return false
		}
		return true
	}
	push := func(kind string) bool {
		view, err := h.Carts.ComputeView(ctx, owner)
		if err != nil {
			log.Printf("⚠️ cart view for %s: %v", owner, err)
			return true
		}
		return send(cartEvent{Type: kind, Cart: &view})
	}

	if !push("connected") {
		return
	}
	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			kind := "cart_updated"
			if ev == cart.EventCleared {
				kind = "cart_cleared"
			}
			if !push(kind) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteLimit)); err != nil {
				return
			}
		}
	}
}
