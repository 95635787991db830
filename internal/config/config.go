package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/pricing"
)

// DefaultWebhookSecret is the development fallback; it may not leave a local setup.
const DefaultWebhookSecret = "change-me"

type Config struct {
	TelegramToken string `validate:"required"`
	BotUsername   string `validate:"required"`

	Admins AdminSet

	DatabaseURL string `validate:"required"`

	DefaultCity string `validate:"required"`
	Catalog     Catalog

	PaymentsRealEnabled  bool
	PaymentProvider      string `validate:"oneof=stub yookassa midtrans"`
	PaymentWebhookSecret string `validate:"required"`

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string

	MidtransServerKey  string
	MidtransProduction bool

	HTTPAddr      string `validate:"required"`
	BasePublicURL string

	GoogleServiceAccountJSON string
	SpreadsheetID            string

	ArchiveCron        string        `validate:"required"`
	SessionIdleTimeout time.Duration `validate:"gt=0"`
	NotifyThrottle     time.Duration `validate:"gte=0"`
	GatewayTimeout     time.Duration `validate:"gt=0"`
}

// AdminSet is the read-only allowlist of administrator telegram ids.
type AdminSet map[int64]bool

func (s AdminSet) Has(tgID int64) bool { return s[tgID] }

func (s AdminSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	c.BotUsername = strings.TrimPrefix(envOr("BOT_USERNAME", "Events_Now_bot"), "@")
	c.Admins = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))
	c.DatabaseURL = envOr("DATABASE_URL", "file:eventsnow.db")
	c.DefaultCity = envOr("DEFAULT_CITY", "nojabrsk")

	c.PaymentsRealEnabled = envBool("PAYMENTS_REAL_ENABLED", false)
	c.PaymentProvider = envOr("PAYMENT_PROVIDER", "stub")
	c.PaymentWebhookSecret = envOr("PAYMENT_WEBHOOK_SECRET", DefaultWebhookSecret)
	c.YooKassaShopID = strings.TrimSpace(os.Getenv("YOOKASSA_SHOP_ID"))
	c.YooKassaSecretKey = strings.TrimSpace(os.Getenv("YOOKASSA_SECRET_KEY"))
	c.YooKassaReturnURL = strings.TrimSpace(os.Getenv("YOOKASSA_RETURN_URL"))
	c.MidtransServerKey = strings.TrimSpace(os.Getenv("MIDTRANS_SERVER_KEY"))
	c.MidtransProduction = envBool("MIDTRANS_PRODUCTION", false)

	c.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BASE_PUBLIC_URL")), "/")

	c.GoogleServiceAccountJSON = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	c.SpreadsheetID = strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))

	c.ArchiveCron = envOr("ARCHIVE_CRON", "10 0 * * *")

	var err error
	if c.SessionIdleTimeout, err = envDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return c, err
	}
	if c.NotifyThrottle, err = envDuration("NOTIFY_THROTTLE", 50*time.Millisecond); err != nil {
		return c, err
	}
	if c.GatewayTimeout, err = envDuration("GATEWAY_TIMEOUT", 15*time.Second); err != nil {
		return c, err
	}

	c.Catalog = DefaultCatalog()
	if path := strings.TrimSpace(os.Getenv("CATALOG_FILE")); path != "" {
		cat, err := LoadCatalog(path)
		if err != nil {
			return c, err
		}
		c.Catalog = cat
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, ok := c.Catalog.City(c.DefaultCity); !ok {
		return fmt.Errorf("config: DEFAULT_CITY %q is not in the city catalog", c.DefaultCity)
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	// секрет подписывает вебхуки и ссылки на выгрузку
	if c.PaymentWebhookSecret == DefaultWebhookSecret && !c.LocalDev() {
		return fmt.Errorf("config: PAYMENT_WEBHOOK_SECRET must be set when BASE_PUBLIC_URL is public")
	}
	if !c.PaymentsRealEnabled {
		return nil
	}
	switch c.PaymentProvider {
	case "yookassa":
		if c.YooKassaShopID == "" || c.YooKassaSecretKey == "" {
			return fmt.Errorf("config: YOOKASSA_SHOP_ID/YOOKASSA_SECRET_KEY are not set")
		}
	case "midtrans":
		if c.MidtransServerKey == "" {
			return fmt.Errorf("config: MIDTRANS_SERVER_KEY is not set")
		}
	}
	return nil
}

// LocalDev reports whether the bot has no public address yet.
func (c Config) LocalDev() bool {
	return c.BasePublicURL == "" || strings.Contains(c.BasePublicURL, "localhost") ||
		strings.Contains(c.BasePublicURL, "127.0.0.1")
}

// SheetsEnabled reports whether the Google Sheets ledger mirror is configured.
func (c Config) SheetsEnabled() bool {
	return c.GoogleServiceAccountJSON != "" && c.SpreadsheetID != ""
}

// ReturnURL is where the payment gateway sends the organizer after checkout.
func (c Config) ReturnURL() string {
	if c.YooKassaReturnURL != "" {
		return c.YooKassaReturnURL
	}
	if c.BasePublicURL != "" {
		return c.BasePublicURL
	}
	return "https://t.me/" + c.BotUsername
}

// ---------- catalog ----------

type City struct {
	Slug   string            `json:"slug" validate:"required"`
	Name   string            `json:"name" validate:"required"`
	Status models.CityStatus `json:"status" validate:"oneof=active coming_soon"`
}

func (c City) Active() bool { return c.Status == models.CityActive }

// Catalog is the static reference data: the city registry and per-category pricing.
type Catalog struct {
	Cities  []City        `json:"cities" validate:"required,min=1,dive"`
	Pricing pricing.Table `json:"pricing" validate:"required"`
}

func (c Catalog) City(slug string) (City, bool) {
	for _, city := range c.Cities {
		if city.Slug == slug {
			return city, true
		}
	}
	return City{}, false
}

// SortedCities returns cities ordered by display name.
func (c Catalog) SortedCities() []City {
	out := append([]City(nil), c.Cities...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	for _, cat := range models.Categories {
		if _, ok := c.Pricing[cat]; !ok {
			return fmt.Errorf("catalog: no pricing for category %s", cat)
		}
	}
	return c.Pricing.Validate()
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog file: %w", err)
	}
	var cat Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return Catalog{}, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return cat, cat.Validate()
}

func DefaultCatalog() Catalog {
	return Catalog{
		Cities: []City{
			{Slug: "nojabrsk", Name: "Ноябрьск", Status: models.CityActive},
			{Slug: "muravlenko", Name: "Муравленко", Status: models.CityComingSoon},
		},
		Pricing: pricing.Table{
			models.CategoryExhibition: {
				Name: "Выставка", Model: models.PricingPeriod, BasePricePerDay: 150,
				Packages: map[string]float64{"1_day": 1799},
			},
			models.CategoryMasterclass: {
				Name: "Мастер-класс", Model: models.PricingDaily,
				Packages: map[string]float64{"1_post": 699},
			},
			models.CategoryConcert: {
				Name: "Концерт", Model: models.PricingDaily,
				Packages: map[string]float64{"1_post": 1499},
			},
			models.CategoryPerformance: {
				Name: "Выступление", Model: models.PricingDaily,
				Packages: map[string]float64{"1_day": 499},
			},
			models.CategoryLecture: {
				Name: "Лекция/Семинар", Model: models.PricingDaily,
				Packages: map[string]float64{"1_post": 499},
			},
			models.CategoryOther: {
				Name: "Другое", Model: models.PricingDaily,
				Packages: map[string]float64{"1_day": 599},
			},
		},
	}
}

// ---------- env helpers ----------

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseAdminIDs(raw string) AdminSet {
	m := AdminSet{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
