// Package config reads the process configuration from the environment,
// after loading a .env file when one is present.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port        string
	Env         string
	Backend     string // "scylla" or "memory"
	CORSOrigins []string

	JWTSecret      string
	TokenTTL       time.Duration
	OTPTTL         time.Duration
	OTPLength      int
	OTPMaxAttempts int
	OTPPerHour     int

	Currency            string
	ShippingFlatFee     decimal.Decimal
	ShippingFreeAbove   decimal.Decimal
	OrderIDPrefix       string
	TicketIDPrefix      string
	IDWidth             int
	StrictTransitions   bool
	TicketNeedsDelivery bool

	StripeSecretKey     string
	StripeWebhookSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	SMSChannel   string

	Scylla  ScyllaConfig
	Redis   RedisConfig
	Elastic ElasticConfig
	MinIO   MinIOConfig
}

type ScyllaConfig struct {
	Hosts            []string
	Username         string
	Password         string
	CACertPath       string
	ProductsKeyspace string
	UsersKeyspace    string
	OrdersKeyspace   string
	Timeout          time.Duration
	NumConns         int
	Migrate          bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Load reads .env (a missing file is fine) and the environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️ No .env file found, using the process environment")
	} else {
		log.Println("✅ .env loaded")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() Config {
	return Config{
		Port:        str("PORT", "8080"),
		Env:         str("APP_ENV", "dev"),
		Backend:     strings.ToLower(str("STORE_BACKEND", "scylla")),
		CORSOrigins: list("CORS_ORIGINS", "http://localhost:3000"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       duration("TOKEN_TTL", 24*time.Hour),
		OTPTTL:         duration("OTP_TTL", 5*time.Minute),
		OTPLength:      integer("OTP_LENGTH", 6),
		OTPMaxAttempts: integer("OTP_MAX_ATTEMPTS", 5),
		OTPPerHour:     integer("OTP_PER_HOUR", 5),

		Currency:            strings.ToLower(str("CURRENCY", "inr")),
		ShippingFlatFee:     money("SHIPPING_FLAT_FEE", 79),
		ShippingFreeAbove:   money("SHIPPING_FREE_ABOVE", 999),
		OrderIDPrefix:       str("ORDER_ID_PREFIX", "ORD"),
		TicketIDPrefix:      str("TICKET_ID_PREFIX", "TKT"),
		IDWidth:             integer("ID_WIDTH", 6),
		StrictTransitions:   boolean("STRICT_ITEM_TRANSITIONS", false),
		TicketNeedsDelivery: boolean("TICKET_REQUIRE_DELIVERED", false),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     integer("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     str("MAIL_FROM", "noreply@shoemart.in"),
		SMSChannel:   str("SMS_CHANNEL", "sms:outbox"),

		Scylla: ScyllaConfig{
			Hosts:            list("SCYLLA_HOSTS", "127.0.0.1"),
			Username:         os.Getenv("SCYLLA_USERNAME"),
			Password:         os.Getenv("SCYLLA_PASSWORD"),
			CACertPath:       os.Getenv("SCYLLA_SSL_CA_PATH"),
			ProductsKeyspace: str("SCYLLA_KS_PRODUCTS", "shoemart_products"),
			UsersKeyspace:    str("SCYLLA_KS_USERS", "shoemart_users"),
			OrdersKeyspace:   str("SCYLLA_KS_ORDERS", "shoemart_orders"),
			Timeout:          duration("SCYLLA_TIMEOUT", 5*time.Second),
			NumConns:         integer("SCYLLA_NUM_CONNS", 20),
			Migrate:          boolean("SCYLLA_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_HOST"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       integer("REDIS_DB", 0),
		},
		Elastic: ElasticConfig{
			URL:      os.Getenv("ELASTIC_URL"),
			Username: os.Getenv("ELASTIC_USER"),
			Password: os.Getenv("ELASTIC_PASSWORD"),
			Index:    str("ELASTIC_ORDERS_INDEX", "orders"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    boolean("MINIO_USE_SSL", false),
			Bucket:    str("MINIO_BUCKET", "ticket-media"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() []string {
	var problems []string
	if len(c.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}
	if c.Backend != "scylla" && c.Backend != "memory" {
		problems = append(problems, "STORE_BACKEND must be scylla or memory")
	}
	if c.IDWidth < 1 || c.IDWidth > 18 {
		problems = append(problems, "ID_WIDTH must be between 1 and 18")
	}
	if c.Backend == "scylla" && c.Redis.Addr == "" {
		problems = append(problems, "REDIS_HOST is required with the scylla backend")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is required with STRIPE_SECRET_KEY")
	}
	return problems
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func list(key, def string) []string {
	var out []string
	for _, s := range strings.Split(str(key, def), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ %s=%q is not a number, using %d", key, v, def)
		return def
	}
	return n
}

func boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️ %s=%q is not a boolean, using %t", key, v, def)
		return def
	}
	return b
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

func money(key string, def int64) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return decimal.NewFromInt(def)
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		log.Printf("⚠️ %s=%q is not an amount, using %d", key, v, def)
		return decimal.NewFromInt(def)
	}
	return d
}

func (s ScyllaConfig) Keyspaces() []string {
	return []string{s.ProductsKeyspace, s.UsersKeyspace, s.OrdersKeyspace}
}
