package server

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/moderation"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/util"
)

const maxWebhookBody = 1 << 20

// Payments is the part of the moderation service the webhook drives.
type Payments interface {
	ConfirmPayment(ctx context.Context, c moderation.Confirmation) (moderation.ConfirmResult, error)
	FailPayment(ctx context.Context, transactionID string, status models.PaymentStatus) (*models.Payment, error)
}

// Events feeds the CSV export.
type Events interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]models.Event, error)
}

type Server struct {
	cfg      config.Config
	payments Payments
	events   Events
	gateway  payments.Provider
}

// New builds the HTTP server. gw may be nil when payments run in test mode;
// webhooks then answer 404.
func New(cfg config.Config, pay Payments, events Events, gw payments.Provider) *http.Server {
	s := &Server{cfg: cfg, payments: pay, events: events, gateway: gw}
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Routes(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": util.NowISO()})
	})
	r.Get("/pay/stub", s.handleStubPage)
	r.Post("/webhooks/{provider}", s.handleWebhook)
	r.Get("/export/events.csv", s.handleExport)
	return r
}

// Stub payment page (for testing)
func (s *Server) handleStubPage(w http.ResponseWriter, r *http.Request) {
	invoice := r.URL.Query().Get("invoice")
	if invoice == "" {
		http.Error(w, "invoice required", http.StatusBadRequest)
		return
	}
	amount := r.URL.Query().Get("amount")
	inv, _ := json.Marshal(invoice)
	page := `<!doctype html><html><head><meta charset="utf-8"><title>Stub Pay</title></head><body>
<h2>Оплата размещения (тестовый провайдер)</h2>
<p>Счёт: ` + html.EscapeString(invoice) + `</p>
<p>Сумма: ` + html.EscapeString(amount) + ` ₽</p>
<button onclick="send('paid')">Оплатить</button>
<button onclick="send('cancelled')">Отменить</button>
<pre id="out"></pre>
<script>
async function send(status){
  const body = JSON.stringify({invoice: ` + string(inv) + `, status});
  const res = await fetch("/webhooks/stub", {method:"POST", headers: {"Content-Type":"application/json"}, body});
  document.getElementById("out").textContent = await res.text();
}
</script>
</body></html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	if s.gateway == nil || s.gateway.Name() != name {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	headers := map[string]string{}
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	// DEV: если подпись не пришла (stub-страница), досчитаем её на сервере
	if name == "stub" && headers["x-signature"] == "" && s.cfg.LocalDev() {
		headers["x-signature"] = util.HMACSHA256Hex(s.cfg.PaymentWebhookSecret, string(body))
	}

	ev, err := s.gateway.ParseWebhook(r.Context(), body, headers)
	switch {
	case errors.Is(err, payments.ErrSignature):
		log.Printf("webhook %s: %v", name, err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	case errors.Is(err, payments.ErrPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("webhook %s: %v", name, err)
		http.Error(w, "gateway unavailable", http.StatusBadGateway)
		return
	}

	switch ev.Kind {
	case payments.KindSucceeded:
		res, err := s.payments.ConfirmPayment(r.Context(), moderation.Confirmation{
			Source:        moderation.SourceWebhook,
			TransactionID: ev.ExternalID,
			Amount:        ev.Amount,
		})
		if err != nil {
			s.webhookError(w, name, ev, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             true,
			"event_id":       res.Event.ID,
			"status":         res.Event.Status,
			"already_active": res.AlreadyActive,
			"ts":             util.NowISO(),
		})
	case payments.KindCanceled:
		p, err := s.payments.FailPayment(r.Context(), ev.ExternalID, failStatus(ev.Status))
		if err != nil {
			s.webhookError(w, name, ev, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"event_id":   p.EventID,
			"pay_status": p.Status,
			"ts":         util.NowISO(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "gateway_status": ev.Status})
	}
}

// webhookError answers 200 for facts the bot has no use for, so the gateway stops retrying.
func (s *Server) webhookError(w http.ResponseWriter, name string, ev payments.WebhookEvent, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Printf("webhook %s: unknown transaction %s, ignored", name, ev.ExternalID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
	case errors.Is(err, moderation.ErrWrongState):
		log.Printf("webhook %s: transaction %s hit an event in the wrong state, ignored", name, ev.ExternalID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
	default:
		log.Printf("webhook %s: transaction %s: %v", name, ev.ExternalID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func failStatus(gatewayStatus string) models.PaymentStatus {
	switch gatewayStatus {
	case "deny", "failure", "failed":
		return models.PaymentFailed
	}
	return models.PaymentCancelled
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
