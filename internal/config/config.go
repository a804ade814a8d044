package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Amadeus   AmadeusConfig
	Collector CollectorConfig
	Cron      CronConfig
	Telegram  TelegramConfig
	Webhook   WebhookConfig
	X         XConfig
	Email     EmailConfig
	Kafka     KafkaConfig
}

type HTTPConfig struct {
	Port string
	// AdminTokenHash is a bcrypt hash of the bearer token allowed to trigger
	// collection runs over HTTP. Empty disables the endpoint.
	AdminTokenHash string
	// OperatorTokenHash may trigger runs but has no other rights.
	OperatorTokenHash string
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type AmadeusConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	MaxResults   int
	Timeout      time.Duration
}

type CollectorConfig struct {
	// Routes overrides the default route list, e.g. "NRT:Tokyo:core,HKG:Hong Kong".
	Routes           string
	Weekends         int
	FetchDelay       time.Duration
	Timezone         string
	DailyWindowStart int
	DailyWindowEnd   int
}

type CronConfig struct {
	// Schedule is a standard cron expression or an interval in seconds.
	Schedule string
	LockKey  int64
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
	SiteURL  string
	// ImageURL is an optional share-card URL; "{code}" is replaced with the route code.
	ImageURL string
}

type WebhookConfig struct {
	URL  string
	Type string
}

type XConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

type EmailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
	To             string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8000")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "flight_ticker.db")
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("amadeus.base_url", "https://test.api.amadeus.com")
	v.SetDefault("amadeus.max_results", 5)
	v.SetDefault("amadeus.timeout", 30*time.Second)
	v.SetDefault("collector.weekends", 2)
	v.SetDefault("collector.fetch_delay", 800*time.Millisecond)
	v.SetDefault("collector.timezone", "Asia/Seoul")
	v.SetDefault("collector.daily_window_start", 9)
	v.SetDefault("collector.daily_window_end", 15)
	v.SetDefault("cron.schedule", "0 */6 * * *")
	v.SetDefault("cron.lock_key", 7201)
	v.SetDefault("telegram.site_url", "https://flight-ticker.vercel.app")
	v.SetDefault("webhook.type", "")
	v.SetDefault("email.from_name", "Flight Ticker")
	v.SetDefault("kafka.topic", "flightticker.price-drops")
}

// Load reads configuration from an optional file and the environment. Keys map
// to FLIGHTTICKER_* variables ("amadeus.client_id" -> FLIGHTTICKER_AMADEUS_CLIENT_ID).
// An empty path searches for flightticker.yaml in the working directory and
// /etc/flightticker.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLIGHTTICKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Accept the bare variable names used by older deployments.
	for key, env := range map[string]string{
		"amadeus.client_id":     "AMADEUS_CLIENT_ID",
		"amadeus.client_secret": "AMADEUS_CLIENT_SECRET",
		"telegram.bot_token":    "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":      "TELEGRAM_CHAT_ID",
		"webhook.url":           "ALERT_WEBHOOK_URL",
		"http.port":             "PORT",
	} {
		if err := v.BindEnv(key, "FLIGHTTICKER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flightticker")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/flightticker")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Port:              v.GetString("http.port"),
			AdminTokenHash:    v.GetString("http.admin_token_hash"),
			OperatorTokenHash: v.GetString("http.operator_token_hash"),
		},
		DB: DBConfig{
			Driver:      v.GetString("db.driver"),
			DSN:         v.GetString("db.dsn"),
			AutoMigrate: v.GetBool("db.auto_migrate"),
		},
		Amadeus: AmadeusConfig{
			BaseURL:      strings.TrimRight(v.GetString("amadeus.base_url"), "/"),
			ClientID:     v.GetString("amadeus.client_id"),
			ClientSecret: v.GetString("amadeus.client_secret"),
			MaxResults:   v.GetInt("amadeus.max_results"),
			Timeout:      v.GetDuration("amadeus.timeout"),
		},
		Collector: CollectorConfig{
			Routes:           v.GetString("collector.routes"),
			Weekends:         v.GetInt("collector.weekends"),
			FetchDelay:       v.GetDuration("collector.fetch_delay"),
			Timezone:         v.GetString("collector.timezone"),
			DailyWindowStart: v.GetInt("collector.daily_window_start"),
			DailyWindowEnd:   v.GetInt("collector.daily_window_end"),
		},
		Cron: CronConfig{
			Schedule: v.GetString("cron.schedule"),
			LockKey:  v.GetInt64("cron.lock_key"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetString("telegram.chat_id"),
			SiteURL:  v.GetString("telegram.site_url"),
			ImageURL: v.GetString("telegram.image_url"),
		},
		Webhook: WebhookConfig{
			URL:  v.GetString("webhook.url"),
			Type: v.GetString("webhook.type"),
		},
		X: XConfig{
			ConsumerKey:    v.GetString("x.consumer_key"),
			ConsumerSecret: v.GetString("x.consumer_secret"),
			AccessToken:    v.GetString("x.access_token"),
			AccessSecret:   v.GetString("x.access_secret"),
		},
		Email: EmailConfig{
			SendGridAPIKey: v.GetString("email.sendgrid_api_key"),
			FromAddress:    v.GetString("email.from_address"),
			FromName:       v.GetString("email.from_name"),
			To:             v.GetString("email.to"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.Collector.Weekends < 0 {
		return fmt.Errorf("collector.weekends must be >= 0 (got %d)", c.Collector.Weekends)
	}
	if c.Collector.FetchDelay < 0 {
		return fmt.Errorf("collector.fetch_delay must be >= 0 (got %s)", c.Collector.FetchDelay)
	}
	s, e := c.Collector.DailyWindowStart, c.Collector.DailyWindowEnd
	if s < 0 || s > 23 || e < 1 || e > 24 || s >= e {
		return fmt.Errorf("invalid daily collection window [%d,%d)", s, e)
	}
	if _, err := time.LoadLocation(c.Collector.Timezone); err != nil {
		return fmt.Errorf("collector.timezone: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
