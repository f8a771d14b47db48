package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"shoemart_back_end/internal/auth"
	"shoemart_back_end/internal/cache"
	"shoemart_back_end/internal/cart"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/config"
	"shoemart_back_end/internal/database"
	"shoemart_back_end/internal/handlers"
	"shoemart_back_end/internal/notify"
	"shoemart_back_end/internal/order"
	"shoemart_back_end/internal/payment"
	"shoemart_back_end/internal/routes"
	"shoemart_back_end/internal/sequence"
	"shoemart_back_end/internal/services"
	"shoemart_back_end/internal/shutdown"
	"shoemart_back_end/internal/store/memstore"
	"shoemart_back_end/internal/ticket"
)

const (
	lowStockThreshold = 5
	shutdownTimeout   = 15 * time.Second
)

// stores are the persistence ports of one backend.
type stores struct {
	catalog catalog.Catalog
	orders  order.Repository
	coupons interface {
		order.CouponBook
		handlers.CouponAdmin
	}
	tickets ticket.Repository
	users   auth.UserRepository
	search  handlers.OrderSearch
}

func openStores(cfg config.Config, conns *database.Connections) (stores, error) {
	if cfg.Backend == "memory" {
		orders := memstore.NewOrders()
		log.Println("⚠️ Memory backend: data is lost on restart")
		return stores{
			catalog: memstore.NewCatalog(),
			orders:  orders,
			coupons: memstore.NewCoupons(),
			tickets: memstore.NewTickets(),
			users:   memstore.NewUsers(),
			search:  orders,
		}, nil
	}

	products, err := conns.Scylla.Products()
	if err != nil {
		return stores{}, err
	}
	users, err := conns.Scylla.Users()
	if err != nil {
		return stores{}, err
	}
	orders, err := conns.Scylla.Orders()
	if err != nil {
		return stores{}, err
	}
	return stores{
		catalog: catalog.NewScyllaCatalog(products, lowStockThreshold),
		orders:  order.NewScyllaRepository(orders),
		coupons: order.NewScyllaCoupons(orders),
		tickets: ticket.NewScyllaRepository(orders),
		users:   auth.NewScyllaUsers(users),
	}, nil
}

func newDispatcher(cfg config.Config, conns *database.Connections) *notify.Dispatcher {
	senders := []notify.Sender{notify.NewQueueSender(conns.Redis, cfg.SMSChannel)}
	if cfg.SMTPHost != "" {
		senders = append(senders, notify.NewMailSender(notify.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}))
	}
	if cfg.Env != "prod" {
		senders = append(senders, notify.LogSender{})
	}
	return notify.NewDispatcher(10*time.Second, senders...)
}

func main() {
	cfg := config.Load()
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			log.Println("❌", p)
		}
		log.Fatal("❌ Invalid configuration")
	}
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	conns, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Backends unavailable: %v", err)
	}
	defer conns.Close()

	st, err := openStores(cfg, conns)
	if err != nil {
		log.Fatalf("❌ Stores unavailable: %v", err)
	}

	dispatcher := newDispatcher(cfg, conns)
	counter := sequence.NewRedisCounter(conns.Redis)
	shipping := cart.FlatRate{Fee: cfg.ShippingFlatFee, FreeAbove: cfg.ShippingFreeAbove}

	cartStore := cart.NewRedisStore(conns.Redis)
	carts := cart.NewAggregator(cartStore, st.catalog, shipping)

	opts := []order.Option{order.WithCoupons(st.coupons), order.WithNotifier(dispatcher)}
	if cfg.StripeSecretKey != "" {
		opts = append(opts, order.WithPayments(payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)))
		log.Println("✅ Stripe payments enabled")
	} else {
		log.Println("⚠️ STRIPE_SECRET_KEY not set, only cash on delivery is offered")
	}
	if conns.Elastic != nil {
		index := services.NewOrderIndex(conns.Elastic, cfg.Elastic.Index)
		opts = append(opts, order.WithIndexer(index))
		st.search = index
	}
	composer := order.NewComposer(carts, st.catalog, st.orders,
		sequence.NewGenerator(counter, "orders", cfg.OrderIDPrefix, cfg.IDWidth),
		shipping, order.Config{Currency: cfg.Currency, StrictTransitions: cfg.StrictTransitions}, opts...)

	contacts := cache.NewCachedUsers(st.users, conns.Redis, cache.UserCacheTTL)
	tracker := ticket.NewTracker(st.tickets, st.orders,
		sequence.NewGenerator(counter, "tickets", cfg.TicketIDPrefix, cfg.IDWidth),
		ticket.Policy{RequireDelivered: cfg.TicketNeedsDelivery},
		ticket.WithNotifier(dispatcher, contacts))

	identity := auth.NewIdentityProvider(st.users,
		cache.NewRedisOTPStore(conns.Redis),
		cache.NewRedisLimiter(conns.Redis),
		cache.NewRedisRevocations(conns.Redis),
		dispatcher,
		auth.NewTokenSigner(cfg.JWTSecret, cfg.TokenTTL),
		auth.Config{OTPTTL: cfg.OTPTTL, OTPLength: cfg.OTPLength, MaxAttempts: cfg.OTPMaxAttempts, RequestsPerHour: cfg.OTPPerHour})

	var media services.Media = services.NewMemoryMedia()
	if conns.MinIO != nil {
		media = services.NewMediaStore(conns.MinIO, cfg.MinIO.Bucket)
	}

	h := &handlers.Handlers{
		Identity:       identity,
		Carts:          carts,
		Watcher:        cartStore,
		Orders:         composer,
		Catalog:        st.catalog,
		Tickets:        tracker,
		Media:          media,
		Search:         st.search,
		Coupons:        st.coupons,
		AllowedOrigins: cfg.CORSOrigins,
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Session-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	routes.RegisterRoutes(r, h, identity, cache.NewRedisLimiter(conns.Redis))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("🚀 ShoeMart API listening on port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ HTTP server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	dispatcher.Wait()
	log.Println("👋 Bye")
}
