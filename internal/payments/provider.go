package payments

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrGateway wraps every failure talking to the payment provider.
	ErrGateway   = errors.New("payment gateway error")
	ErrSignature = errors.New("invalid webhook signature")
	ErrPayload   = errors.New("invalid webhook payload")
)

type ChargeRequest struct {
	Amount         float64 `validate:"gt=0"`
	Description    string  `validate:"required"`
	ReturnURL      string  `validate:"required"`
	IdempotencyKey string  `validate:"required"`
	Metadata       map[string]string
}

// Charge is the provider-side payment created for a ChargeRequest.
type Charge struct {
	ExternalID  string
	RedirectURL string
}

type WebhookKind string

const (
	KindSucceeded WebhookKind = "succeeded"
	KindCanceled  WebhookKind = "canceled"
	KindOther     WebhookKind = "other"
)

type WebhookEvent struct {
	Kind       WebhookKind
	ExternalID string
	// Status is the provider's raw status string, kept for logs.
	Status string
	Amount float64
}

type Provider interface {
	Name() string

	// Создаёт платёж у провайдера и возвращает ссылку на оплату.
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)

	// Проверяет подпись вебхука и разбирает событие.
	ParseWebhook(ctx context.Context, body []byte, headers map[string]string) (WebhookEvent, error)
}

// Truncate cuts s to n runes; providers cap description lengths.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
