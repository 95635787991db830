package stub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eventsnow-bot/internal/payments"
)

func TestCreateChargeLink(t *testing.T) {
	p := New("secret", "https://bot.example.com/")
	ch, err := p.CreateCharge(context.Background(), payments.ChargeRequest{
		Amount: 1499, Description: "Размещение", ReturnURL: "https://t.me/x", IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ExternalID != "stub_k1" {
		t.Fatalf("external id %q", ch.ExternalID)
	}
	again, err := p.CreateCharge(context.Background(), payments.ChargeRequest{
		Amount: 1499, Description: "Размещение", ReturnURL: "https://t.me/x", IdempotencyKey: "k1",
	})
	if err != nil || again.ExternalID != ch.ExternalID {
		t.Fatalf("same key must give the same invoice: %q %v", again.ExternalID, err)
	}
	if !strings.HasPrefix(ch.RedirectURL, "https://bot.example.com/pay/stub?") || !strings.Contains(ch.RedirectURL, ch.ExternalID) {
		t.Fatalf("redirect %q", ch.RedirectURL)
	}
}

func TestCreateChargeRejectsZeroAmount(t *testing.T) {
	p := New("secret", "")
	_, err := p.CreateCharge(context.Background(), payments.ChargeRequest{Description: "x", ReturnURL: "u", IdempotencyKey: "k"})
	if !errors.Is(err, payments.ErrGateway) {
		t.Fatalf("got %v", err)
	}
}

func TestParseWebhook(t *testing.T) {
	p := New("secret", "")
	body := []byte(`{"invoice":"stub_1","status":"paid","amount":1499}`)

	if _, err := p.ParseWebhook(context.Background(), body, map[string]string{}); !errors.Is(err, payments.ErrSignature) {
		t.Fatalf("missing signature: %v", err)
	}
	if _, err := p.ParseWebhook(context.Background(), body, map[string]string{"x-signature": "deadbeef"}); !errors.Is(err, payments.ErrSignature) {
		t.Fatalf("bad signature: %v", err)
	}

	ev, err := p.ParseWebhook(context.Background(), body, map[string]string{"x-signature": p.Sign(body)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != payments.KindSucceeded || ev.ExternalID != "stub_1" || ev.Amount != 1499 {
		t.Fatalf("event %+v", ev)
	}

	cancel := []byte(`{"invoice":"stub_1","status":"cancelled"}`)
	ev, err = p.ParseWebhook(context.Background(), cancel, map[string]string{"x-signature": p.Sign(cancel)})
	if err != nil || ev.Kind != payments.KindCanceled {
		t.Fatalf("cancel: %+v %v", ev, err)
	}

	bad := []byte(`{"invoice":"stub_1","status":"refunded"}`)
	if _, err := p.ParseWebhook(context.Background(), bad, map[string]string{"x-signature": p.Sign(bad)}); !errors.Is(err, payments.ErrPayload) {
		t.Fatalf("bad status: %v", err)
	}
}
