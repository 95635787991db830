package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/render"
)

const (
	SheetPayments   = "Payments"
	SheetModeration = "Moderation"
)

var headers = map[string][]interface{}{
	SheetPayments:   {"ts", "event_id", "title", "city", "category", "organizer_tg_id", "amount", "system", "transaction_id", "package"},
	SheetModeration: {"ts", "event_id", "title", "city", "category", "action", "admin_tg_id", "status", "reject_reason"},
}

// Ledger appends moderation and payment facts to the spreadsheet. It never reads them back.
type Ledger struct {
	t   table
	now func() time.Time

	mu     sync.Mutex
	headed map[string]bool
}

func NewLedger(c *Client) *Ledger { return newLedger(c) }

func newLedger(t table) *Ledger {
	return &Ledger{t: t, now: time.Now, headed: map[string]bool{}}
}

func (l *Ledger) AppendPayment(ctx context.Context, e *models.Event, p *models.Payment) error {
	txID := ""
	if p.TransactionID != nil {
		txID = *p.TransactionID
	}
	pkg := p.PackageDaily
	if p.PricingModel == models.PricingPeriod {
		pkg = p.PackagePeriod
	}
	return l.appendRow(ctx, SheetPayments, []interface{}{
		l.ts(), e.ID, e.Title, e.CitySlug, string(e.Category), e.UserID,
		render.Money(p.Amount), p.PaymentSystem, txID, pkg,
	})
}

func (l *Ledger) AppendModeration(ctx context.Context, e *models.Event, action string, actorID int64) error {
	reason := ""
	if e.RejectReason != nil {
		reason = *e.RejectReason
	}
	return l.appendRow(ctx, SheetModeration, []interface{}{
		l.ts(), e.ID, e.Title, e.CitySlug, string(e.Category), action, actorID, string(e.Status), reason,
	})
}

func (l *Ledger) ts() string { return l.now().UTC().Format(time.RFC3339) }

func (l *Ledger) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	if err := l.ensureHeader(ctx, sheet); err != nil {
		return fmt.Errorf("sheets %s header: %w", sheet, err)
	}
	if err := l.t.append(ctx, sheet+"!A:Z", [][]interface{}{row}); err != nil {
		return fmt.Errorf("sheets %s append: %w", sheet, err)
	}
	return nil
}

// ensureHeader writes the header row once per process when the sheet is empty.
func (l *Ledger) ensureHeader(ctx context.Context, sheet string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.headed[sheet] {
		return nil
	}
	values, err := l.t.get(ctx, sheet+"!A1:Z1")
	if err != nil {
		return err
	}
	if len(values) == 0 || len(values[0]) == 0 {
		if err := l.t.update(ctx, sheet+"!A1", [][]interface{}{headers[sheet]}); err != nil {
			return err
		}
	}
	l.headed[sheet] = true
	return nil
}
