package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		TelegramToken:        "123:abc",
		BotUsername:          "Events_Now_bot",
		DatabaseURL:          "file:test.db",
		DefaultCity:          "nojabrsk",
		Catalog:              DefaultCatalog(),
		PaymentProvider:      "stub",
		PaymentWebhookSecret: DefaultWebhookSecret,
		HTTPAddr:             ":8080",
		ArchiveCron:          "10 0 * * *",
		SessionIdleTimeout:   30 * time.Minute,
		GatewayTimeout:       15 * time.Second,
	}
}

func TestValidateDefaultSecretOnlyLocally(t *testing.T) {
	tests := []struct {
		base    string
		secret  string
		wantErr bool
	}{
		{"", DefaultWebhookSecret, false},
		{"http://localhost:8080", DefaultWebhookSecret, false},
		{"http://127.0.0.1:8080", DefaultWebhookSecret, false},
		{"https://bot.example.com", DefaultWebhookSecret, true},
		{"https://bot.example.com", "s3cr3t-value", false},
	}
	for _, tt := range tests {
		c := validConfig()
		c.BasePublicURL, c.PaymentWebhookSecret = tt.base, tt.secret
		err := c.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("base %q secret %q: got %v", tt.base, tt.secret, err)
		}
	}
}

func TestParseAdminIDs(t *testing.T) {
	got := parseAdminIDs(" 1000, x, 42 ,")
	if !got.Has(1000) || !got.Has(42) || len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	ids := got.IDs()
	if ids[0] != 42 || ids[1] != 1000 {
		t.Fatalf("ids %v", ids)
	}
}
