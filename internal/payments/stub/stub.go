package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/util"
)

// Stub provider:
// - CreateCharge: генерит ссылку /pay/stub?invoice=...
// - Webhook: POST /webhooks/stub с подписью X-Signature (HMAC SHA-256)

type Provider struct {
	secret   string
	baseURL  string
	validate *validator.Validate
}

func New(secret, baseURL string) *Provider {
	return &Provider{secret: secret, baseURL: strings.TrimRight(baseURL, "/"), validate: validator.New()}
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CreateCharge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	if err := p.validate.Struct(req); err != nil {
		return payments.Charge{}, fmt.Errorf("%w: %v", payments.ErrGateway, err)
	}
	// один ключ идемпотентности = один счёт
	invoice := "stub_" + req.IdempotencyKey

	q := url.Values{}
	q.Set("invoice", invoice)
	q.Set("amount", fmt.Sprintf("%.2f", req.Amount))
	link := "/pay/stub?" + q.Encode()
	if p.baseURL != "" {
		link = p.baseURL + link
	}
	return payments.Charge{ExternalID: invoice, RedirectURL: link}, nil
}

// WebhookPayload is the body the stub checkout page posts back.
type WebhookPayload struct {
	Invoice string  `json:"invoice" validate:"required"`
	Status  string  `json:"status" validate:"omitempty,oneof=paid cancelled"` // paid/cancelled
	Amount  float64 `json:"amount" validate:"gte=0"`
}

// Sign returns the X-Signature value for body.
func (p *Provider) Sign(body []byte) string {
	return util.HMACSHA256Hex(p.secret, string(body))
}

func (p *Provider) ParseWebhook(ctx context.Context, body []byte, headers map[string]string) (payments.WebhookEvent, error) {
	sig := headers["x-signature"]
	if sig == "" || !util.HMACEqual(sig, p.Sign(body)) {
		return payments.WebhookEvent{}, payments.ErrSignature
	}

	var pl WebhookPayload
	if err := json.Unmarshal(body, &pl); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}
	if err := p.validate.Struct(pl); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}

	status := strings.TrimSpace(pl.Status)
	if status == "" {
		status = "paid"
	}
	kind := payments.KindSucceeded
	if status == "cancelled" {
		kind = payments.KindCanceled
	}
	return payments.WebhookEvent{Kind: kind, ExternalID: pl.Invoice, Status: status, Amount: pl.Amount}, nil
}
