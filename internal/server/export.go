package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"eventsnow-bot/internal/render"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/util"
)

// ExportToken signs the CSV link an admin gets in the bot.
func ExportToken(secret, city string) string {
	return util.HMACSHA256Hex(secret, "export:"+city)
}

// ExportURL is the admin-only CSV link for the city's events.
func ExportURL(baseURL, secret, city string) string {
	q := url.Values{}
	q.Set("city", city)
	q.Set("token", ExportToken(secret, city))
	return strings.TrimRight(baseURL, "/") + "/export/events.csv?" + q.Encode()
}

// CSV export (admin-only link with token = HMAC)
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	token := r.URL.Query().Get("token")
	if city == "" || token == "" {
		http.Error(w, "city and token required", http.StatusBadRequest)
		return
	}
	if !util.HMACEqual(token, ExportToken(s.cfg.PaymentWebhookSecret, city)) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	csv, err := BuildEventsCSV(r.Context(), s.events, city)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events_`+url.PathEscape(city)+`.csv"`)
	_, _ = w.Write([]byte(csv))
}

// BuildEventsCSV lists every event of the city, newest first.
func BuildEventsCSV(ctx context.Context, events Events, city string) (string, error) {
	list, err := events.ListEvents(ctx, store.EventFilter{City: city})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("id,title,category,status,payment_status,schedule,time,location,contact,organizer_tg_id,resubmitted_from,created_at\n")
	for i := range list {
		e := &list[i]
		start, end := e.TimeRange()
		from := ""
		if e.ResubmittedFromID != nil {
			from = fmt.Sprint(*e.ResubmittedFromID)
		}
		cols := []string{
			fmt.Sprint(e.ID),
			e.Title,
			string(e.Category),
			string(e.Status),
			string(e.PaymentStatus),
			render.Schedule(e),
			start + "-" + end,
			e.Location,
			e.Contact,
			fmt.Sprint(e.UserID),
			from,
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for j, c := range cols {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(escapeCSV(c))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

var _ Events = (*store.Store)(nil)
