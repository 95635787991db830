package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"eventsnow-bot/internal/payments"
)

const defaultAPIBase = "https://api.yookassa.ru/v3"

type Config struct {
	ShopID    string
	SecretKey string
	// APIBase overrides the production endpoint (tests).
	APIBase string
	Timeout time.Duration
}

type Provider struct {
	cfg      Config
	http     *http.Client
	validate *validator.Validate
}

func New(cfg Config) *Provider {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Provider{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}
}

func (p *Provider) Name() string { return "yookassa" }

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type paymentObject struct {
	ID           string            `json:"id" validate:"required"`
	Status       string            `json:"status"`
	Amount       amount            `json:"amount"`
	Confirmation *confirmation     `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

func (p *Provider) CreateCharge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	if err := p.validate.Struct(req); err != nil {
		return payments.Charge{}, fmt.Errorf("%w: %v", payments.ErrGateway, err)
	}
	body, err := json.Marshal(createRequest{
		Amount:       amount{Value: fmt.Sprintf("%.2f", req.Amount), Currency: "RUB"},
		Confirmation: confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  payments.Truncate(req.Description, 128),
		Metadata:     req.Metadata,
	})
	if err != nil {
		return payments.Charge{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBase+"/payments", bytes.NewReader(body))
	if err != nil {
		return payments.Charge{}, err
	}
	httpReq.Header.Set("Idempotence-Key", req.IdempotencyKey)
	httpReq.Header.Set("Content-Type", "application/json")

	var obj paymentObject
	if err := p.do(httpReq, &obj); err != nil {
		return payments.Charge{}, err
	}
	if obj.ID == "" || obj.Confirmation == nil || obj.Confirmation.ConfirmationURL == "" {
		return payments.Charge{}, fmt.Errorf("%w: bad create response", payments.ErrGateway)
	}
	return payments.Charge{ExternalID: obj.ID, RedirectURL: obj.Confirmation.ConfirmationURL}, nil
}

type notification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event" validate:"required"`
	Object paymentObject `json:"object"`
}

// ParseWebhook decodes a payment.* notification. The notification itself is unsigned,
// so the reported status is re-read from the API before it is trusted.
func (p *Provider) ParseWebhook(ctx context.Context, body []byte, headers map[string]string) (payments.WebhookEvent, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}
	if err := p.validate.Struct(n); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}

	obj, err := p.fetch(ctx, n.Object.ID)
	if err != nil {
		return payments.WebhookEvent{}, err
	}

	ev := payments.WebhookEvent{ExternalID: obj.ID, Status: obj.Status, Kind: payments.KindOther}
	if v, err := strconv.ParseFloat(obj.Amount.Value, 64); err == nil {
		ev.Amount = v
	}
	switch obj.Status {
	case "succeeded":
		ev.Kind = payments.KindSucceeded
	case "canceled":
		ev.Kind = payments.KindCanceled
	}
	return ev, nil
}

func (p *Provider) fetch(ctx context.Context, id string) (paymentObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBase+"/payments/"+id, nil)
	if err != nil {
		return paymentObject{}, err
	}
	var obj paymentObject
	if err := p.do(req, &obj); err != nil {
		return paymentObject{}, err
	}
	return obj, nil
}

func (p *Provider) do(req *http.Request, out any) error {
	req.SetBasicAuth(p.cfg.ShopID, p.cfg.SecretKey)
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", payments.ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", payments.ErrGateway, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: %s %s: %d %s", payments.ErrGateway, req.Method, req.URL.Path,
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode: %v", payments.ErrGateway, err)
	}
	return nil
}
