package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/render"
	"eventsnow-bot/internal/util"
)

// Action is a button attached to a message. URL actions open a link, others send Data back.
type Action struct {
	Label string
	Data  string
	URL   string
}

type Message struct {
	Text        string
	PhotoFileID string
	// Rows of actions; each inner slice is one keyboard row.
	Actions [][]Action
}

// Sender delivers one message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// Recipients resolves who lives in a city and has used the bot.
type Recipients interface {
	ListCityRecipients(ctx context.Context, city string) ([]models.User, error)
}

type Result struct {
	Sent       int
	Failed     int
	Skipped    int
	Recipients int
}

type Options struct {
	Throttle    time.Duration
	SendTimeout time.Duration
	BotUsername string
}

type FanOut struct {
	users   Recipients
	sender  Sender
	catalog config.Catalog
	opts    Options
	sleep   func(context.Context, time.Duration)
}

func NewFanOut(users Recipients, sender Sender, cat config.Catalog, opts Options) *FanOut {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &FanOut{users: users, sender: sender, catalog: cat, opts: opts, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// DeepLink is the shareable t.me link that opens the event preview.
func DeepLink(botUsername string, eventID uint) string {
	return fmt.Sprintf("https://t.me/%s?start=app_event_%d", botUsername, eventID)
}

// Publish sends the new-event push to every active resident of the event's city
// except its organizer. Delivery errors are counted, never returned.
func (f *FanOut) Publish(ctx context.Context, e *models.Event) (Result, error) {
	users, err := f.users.ListCityRecipients(ctx, e.CitySlug)
	if err != nil {
		return Result{}, fmt.Errorf("fan-out recipients: %w", err)
	}
	res := Result{Recipients: len(users)}
	if len(users) == 0 {
		log.Printf("notify: no recipients for event %d city=%s", e.ID, e.CitySlug)
		return res, nil
	}

	msg := f.PushMessage(e)
	for i, u := range users {
		if u.TelegramID == e.UserID {
			res.Skipped++
			continue
		}
		if ctx.Err() != nil {
			res.Failed += len(users) - i
			break
		}
		sctx, cancel := context.WithTimeout(ctx, f.opts.SendTimeout)
		err := f.sender.Send(sctx, u.TelegramID, msg)
		cancel()
		if err != nil {
			res.Failed++
			log.Printf("notify: event %d -> %d: %v", e.ID, u.TelegramID, err)
		} else {
			res.Sent++
		}
		f.sleep(ctx, f.opts.Throttle)
	}
	log.Printf("notify: event %d done sent=%d failed=%d skipped=%d recipients=%d",
		e.ID, res.Sent, res.Failed, res.Skipped, res.Recipients)
	return res, nil
}

// PushMessage renders the publish notification for residents.
func (f *FanOut) PushMessage(e *models.Event) Message {
	start, end := e.TimeRange()
	var b strings.Builder
	b.WriteString("🆕 Новое событие в твоём городе!\n\n")
	fmt.Fprintf(&b, "🎫 *%s*\n", render.Escape(e.Title))
	fmt.Fprintf(&b, "🏷️ %s\n", render.CategoryName(f.catalog.Pricing, e.Category))
	fmt.Fprintf(&b, "📍 %s\n", render.Escape(e.Location))
	fmt.Fprintf(&b, "🗓️ %s\n", render.Schedule(e))
	fmt.Fprintf(&b, "⏰ %s–%s\n", start, end)
	fmt.Fprintf(&b, "💰 Цена: %s\n\n", render.Admission(e))
	fmt.Fprintf(&b, "📝 %s", render.Escape(util.Shorten(e.Description, 160)))

	msg := Message{Text: b.String()}
	if len(e.Photos) > 0 {
		msg.PhotoFileID = e.Photos[0].FileID
	}
	view := Action{Label: "👉 Посмотреть", Data: fmt.Sprintf("res:view:%d", e.ID)}
	if f.opts.BotUsername != "" {
		view = Action{Label: "👉 Посмотреть", URL: DeepLink(f.opts.BotUsername, e.ID)}
	}
	msg.Actions = [][]Action{{view}}
	return msg
}
