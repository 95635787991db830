package midtrans

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"eventsnow-bot/internal/payments"
)

type Provider struct {
	serverKey string
	snap      snap.Client
	validate  *validator.Validate
}

func New(serverKey string, production bool) *Provider {
	p := &Provider{serverKey: serverKey, validate: validator.New()}
	if production {
		p.snap.New(serverKey, mt.Production)
	} else {
		p.snap.New(serverKey, mt.Sandbox)
	}
	return p
}

func (p *Provider) Name() string { return "midtrans" }

// CreateCharge opens a Snap transaction; the idempotency key doubles as the order id.
func (p *Provider) CreateCharge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	if err := p.validate.Struct(req); err != nil {
		return payments.Charge{}, fmt.Errorf("%w: %v", payments.ErrGateway, err)
	}
	gross := int64(math.Round(req.Amount))
	sreq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{OrderID: req.IdempotencyKey, GrossAmt: gross},
		Items: &[]mt.ItemDetails{{
			ID:    req.IdempotencyKey,
			Price: gross,
			Qty:   1,
			Name:  payments.Truncate(req.Description, 50),
		}},
		Callbacks:    &snap.Callbacks{Finish: req.ReturnURL},
		CustomField1: payments.Truncate(req.Metadata["event_id"], 40),
	}

	type result struct {
		resp *snap.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, merr := p.snap.CreateTransaction(sreq)
		if merr != nil {
			done <- result{err: merr}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return payments.Charge{}, fmt.Errorf("%w: %v", payments.ErrGateway, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return payments.Charge{}, fmt.Errorf("%w: %v", payments.ErrGateway, r.err)
		}
		if r.resp == nil || r.resp.RedirectURL == "" {
			return payments.Charge{}, fmt.Errorf("%w: empty snap response", payments.ErrGateway)
		}
		return payments.Charge{ExternalID: req.IdempotencyKey, RedirectURL: r.resp.RedirectURL}, nil
	}
}

// Notification is the HTTP notification Midtrans posts after a status change.
type Notification struct {
	TransactionStatus string `json:"transaction_status" validate:"required"` // capture, settlement, pending, deny, cancel, expire, failure
	StatusCode        string `json:"status_code" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	OrderID           string `json:"order_id" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// Signature is SHA512(order_id + status_code + gross_amount + server key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func (p *Provider) ParseWebhook(ctx context.Context, body []byte, headers map[string]string) (payments.WebhookEvent, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}
	if err := p.validate.Struct(n); err != nil {
		return payments.WebhookEvent{}, fmt.Errorf("%w: %v", payments.ErrPayload, err)
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, p.serverKey)
	if strings.ToLower(n.SignatureKey) != want {
		return payments.WebhookEvent{}, payments.ErrSignature
	}

	ev := payments.WebhookEvent{ExternalID: n.OrderID, Status: n.TransactionStatus, Kind: kindOf(n)}
	if v, err := strconv.ParseFloat(n.GrossAmount, 64); err == nil {
		ev.Amount = v
	}
	return ev, nil
}

func kindOf(n Notification) payments.WebhookKind {
	switch n.TransactionStatus {
	case "settlement":
		return payments.KindSucceeded
	case "capture":
		if n.FraudStatus == "" || n.FraudStatus == "accept" {
			return payments.KindSucceeded
		}
		return payments.KindOther
	case "deny", "cancel", "expire", "failure":
		return payments.KindCanceled
	default:
		return payments.KindOther
	}
}
