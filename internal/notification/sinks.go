package notification

import (
	"net/http"
	"time"

	"github.com/bher20/flightticker/internal/alerting"
	"github.com/bher20/flightticker/internal/config"
)

// FromConfig builds a dispatcher with every known sink. Sinks whose
// credentials are missing are still registered and report Enabled() == false.
func FromConfig(cfg config.Config) *Dispatcher {
	client := &http.Client{Timeout: 15 * time.Second}
	return NewDispatcher(
		NewTelegramSink(TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			SiteURL:  cfg.Telegram.SiteURL,
			ImageURL: cfg.Telegram.ImageURL,
		}, client),
		alerting.NewAlerter(alerting.NewAlertConfig(cfg.Webhook.URL, cfg.Webhook.Type)),
		NewXSink(XConfig{
			ConsumerKey:    cfg.X.ConsumerKey,
			ConsumerSecret: cfg.X.ConsumerSecret,
			AccessToken:    cfg.X.AccessToken,
			AccessSecret:   cfg.X.AccessSecret,
		}, client),
		NewEmailSink(EmailConfig{
			APIKey:      cfg.Email.SendGridAPIKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			To:          cfg.Email.To,
		}),
		NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic),
	)
}
