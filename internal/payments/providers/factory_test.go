package providers

import (
	"testing"

	"eventsnow-bot/internal/config"
)

func TestNewPicksProvider(t *testing.T) {
	cases := map[string]string{"stub": "stub", "yookassa": "yookassa", "midtrans": "midtrans"}
	for in, want := range cases {
		p, err := New(config.Config{PaymentProvider: in, PaymentWebhookSecret: "s"})
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if p.Name() != want {
			t.Errorf("%s: got %s", in, p.Name())
		}
	}
	if _, err := New(config.Config{PaymentProvider: "paypal"}); err == nil {
		t.Fatal("unknown provider must fail")
	}
}
