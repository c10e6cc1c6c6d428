package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string
	CORSOrigin string

	RequestTimeout time.Duration

	RedisAddr      string
	RedisPassword  string
	GuestCartTTL   time.Duration
	IdempotencyTTL time.Duration

	KafkaBrokers        []string
	KafkaTopicOrderPaid string
	KafkaGroupID        string

	DefaultProvider string
	GatewayTimeout  time.Duration

	MercadoPagoAccessToken   string
	MercadoPagoPublicKey     string
	MercadoPagoWebhookSecret string

	WompiPublicKey       string
	WompiPrivateKey      string
	WompiIntegritySecret string
	WompiEventsSecret    string
	WompiSandbox         bool

	SuccessURL      string
	FailureURL      string
	PendingURL      string
	NotificationURL string

	Currency         string
	CurrencyDecimals int32
	TaxRate          decimal.Decimal
	ReferencePrefix  string

	ShippingBaseRate      decimal.Decimal
	ShippingPerKg         decimal.Decimal
	ShippingLocalCity     string
	ShippingLocalRate     decimal.Decimal
	ShippingFreeThreshold decimal.Decimal

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	OutboxInterval      time.Duration
}

// LoadConfig reads the environment (and an optional .env file) and
// validates it. Missing credentials are returned as an error so the
// process refuses to start.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getenv("DB_PORT", "5432"),
		AppPort:    getenv("APP_PORT", "8080"),
		AppEnv:     getenv("APP_ENV", "development"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		CORSOrigin: getenv("CORS_ORIGIN", "http://localhost:3000"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaTopicOrderPaid: getenv("KAFKA_TOPIC_ORDER_PAID", "order.paid"),
		KafkaGroupID:        getenv("KAFKA_GROUP_ID", "fulfillment"),

		DefaultProvider: strings.ToLower(getenv("PAYMENT_DEFAULT_PROVIDER", "mercadopago")),

		MercadoPagoAccessToken:   os.Getenv("MP_ACCESS_TOKEN"),
		MercadoPagoPublicKey:     os.Getenv("MP_PUBLIC_KEY"),
		MercadoPagoWebhookSecret: os.Getenv("MP_WEBHOOK_SECRET"),

		WompiPublicKey:       os.Getenv("WOMPI_PUBLIC_KEY"),
		WompiPrivateKey:      os.Getenv("WOMPI_PRIVATE_KEY"),
		WompiIntegritySecret: os.Getenv("WOMPI_INTEGRITY_SECRET"),
		WompiEventsSecret:    os.Getenv("WOMPI_EVENTS_SECRET"),
		WompiSandbox:         os.Getenv("WOMPI_SANDBOX") == "true",

		SuccessURL:      os.Getenv("SUCCESS_URL"),
		FailureURL:      os.Getenv("FAILURE_URL"),
		PendingURL:      os.Getenv("PENDING_URL"),
		NotificationURL: os.Getenv("NOTIFICATION_URL"),

		Currency:          getenv("CURRENCY", "COP"),
		ReferencePrefix:   getenv("ORDER_REFERENCE_PREFIX", "ORD"),
		ShippingLocalCity: os.Getenv("SHIPPING_LOCAL_CITY"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.GuestCartTTL, err = durationEnv("GUEST_CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconcileStaleAfter, err = durationEnv("RECONCILE_STALE_AFTER", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = durationEnv("OUTBOX_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}

	decimals, err := strconv.Atoi(getenv("CURRENCY_DECIMALS", "2"))
	if err != nil || decimals < 0 {
		return nil, errors.Errorf("invalid CURRENCY_DECIMALS %q", os.Getenv("CURRENCY_DECIMALS"))
	}
	cfg.CurrencyDecimals = int32(decimals)

	for _, d := range []struct {
		key  string
		def  string
		dest *decimal.Decimal
	}{
		{"TAX_RATE", "0.19", &cfg.TaxRate},
		{"SHIPPING_BASE_RATE", "12000", &cfg.ShippingBaseRate},
		{"SHIPPING_PER_KG", "2500", &cfg.ShippingPerKg},
		{"SHIPPING_LOCAL_RATE", "8000", &cfg.ShippingLocalRate},
		{"SHIPPING_FREE_THRESHOLD", "0", &cfg.ShippingFreeThreshold},
	} {
		v, err := decimal.NewFromString(getenv(d.key, d.def))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", d.key)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
		return errors.New("database settings DB_HOST, DB_USER and DB_NAME are required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TaxRate.IsNegative() {
		return errors.New("TAX_RATE must not be negative")
	}
	if !c.MercadoPagoEnabled() && !c.WompiEnabled() {
		return errors.New("no payment provider credentials: set MP_ACCESS_TOKEN or the WOMPI_* keys")
	}
	if c.WompiPrivateKey != "" && (c.WompiPublicKey == "" || c.WompiIntegritySecret == "") {
		return errors.New("WOMPI_PUBLIC_KEY and WOMPI_INTEGRITY_SECRET are required with WOMPI_PRIVATE_KEY")
	}
	switch c.DefaultProvider {
	case "mercadopago":
		if !c.MercadoPagoEnabled() {
			return errors.New("PAYMENT_DEFAULT_PROVIDER=mercadopago requires MP_ACCESS_TOKEN")
		}
	case "wompi":
		if !c.WompiEnabled() {
			return errors.New("PAYMENT_DEFAULT_PROVIDER=wompi requires WOMPI_PRIVATE_KEY")
		}
	default:
		return errors.Errorf("unknown PAYMENT_DEFAULT_PROVIDER %q", c.DefaultProvider)
	}
	return nil
}

func (c *Config) MercadoPagoEnabled() bool { return c.MercadoPagoAccessToken != "" }

func (c *Config) WompiEnabled() bool { return c.WompiPrivateKey != "" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}
