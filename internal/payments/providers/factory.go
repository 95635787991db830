package providers

import (
	"fmt"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/payments/midtrans"
	"eventsnow-bot/internal/payments/stub"
	"eventsnow-bot/internal/payments/yookassa"
)

func New(cfg config.Config) (payments.Provider, error) {
	switch cfg.PaymentProvider {
	case "stub":
		return stub.New(cfg.PaymentWebhookSecret, cfg.BasePublicURL), nil
	case "yookassa":
		return yookassa.New(yookassa.Config{
			ShopID:    cfg.YooKassaShopID,
			SecretKey: cfg.YooKassaSecretKey,
			Timeout:   cfg.GatewayTimeout,
		}), nil
	case "midtrans":
		return midtrans.New(cfg.MidtransServerKey, cfg.MidtransProduction), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.PaymentProvider)
	}
}
