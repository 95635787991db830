package tgbot

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/moderation"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/wizard"
)

const (
	flowReject    = "reject_reason"
	flowComment   = "comment"
	flowFeedback  = "feedback"
	flowBroadcast = "broadcast"
	flowCleanup   = "cleanup"
)

const msgTryAgain = "⚠️ Что-то пошло не так. Попробуйте ещё раз."

type App struct {
	cfg      config.Config
	client   *Client
	st       *store.Store
	svc      *moderation.Service
	wz       *wizard.Machine
	sessions *wizard.Registry
	queue    *dispatcher
	now      func() time.Time

	// simple in-memory state for one-message flows (reasons, comments, broadcasts)
	mu    sync.Mutex
	state map[int64]userState
}

type userState struct {
	Flow    string
	EventID uint
	Data    string
}

type Deps struct {
	Store    *store.Store
	Service  *moderation.Service
	Wizard   *wizard.Machine
	Sessions *wizard.Registry
}

func New(cfg config.Config, c *Client, d Deps) *App {
	return &App{
		cfg:      cfg,
		client:   c,
		st:       d.Store,
		svc:      d.Service,
		wz:       d.Wizard,
		sessions: d.Sessions,
		queue:    newDispatcher(),
		now:      time.Now,
		state:    map[int64]userState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.client.bot.GetUpdatesChan(u)
	defer a.queue.Wait()

	for {
		select {
		case <-ctx.Done():
			a.client.bot.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			a.Dispatch(ctx, upd)
		}
	}
}

// Dispatch queues the update behind earlier updates of the same user.
func (a *App) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	var from *tgbotapi.User
	switch {
	case upd.Message != nil:
		from = upd.Message.From
	case upd.CallbackQuery != nil:
		from = upd.CallbackQuery.From
	}
	if from == nil || from.IsBot {
		return
	}
	a.queue.Do(from.ID, "update", func() { a.handleUpdate(ctx, upd) })
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var (
		from *tgbotapi.User
		err  error
	)
	if upd.Message != nil {
		from = upd.Message.From
		a.touch(ctx, from)
		err = a.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		from = upd.CallbackQuery.From
		a.touch(ctx, from)
		err = a.handleCallback(ctx, upd.CallbackQuery)
	}
	if err != nil {
		log.Printf("tgbot: update from %d: %v", from.ID, err)
		_ = a.sendText(from.ID, userMessage(err))
	}
}

// userMessage maps a failure to what the user is told.
func userMessage(err error) string {
	switch {
	case errors.Is(err, moderation.ErrForbidden):
		return "⛔ Доступ запрещён."
	case errors.Is(err, models.ErrNotFound):
		return "Событие не найдено или недоступно."
	case errors.Is(err, moderation.ErrWrongState):
		return "Заявка уже обработана или находится в другом статусе."
	}
	return msgTryAgain
}

func (a *App) touch(ctx context.Context, u *tgbotapi.User) {
	in := touchInput(u)
	in.CitySlug = a.cfg.DefaultCity
	if a.svc.IsAdmin(u.ID) {
		in.Role = models.RoleAdmin
	}
	if _, err := a.st.TouchUser(ctx, in); err != nil {
		log.Printf("tgbot: touch user %d: %v", u.ID, err)
	}
}

func touchInput(u *tgbotapi.User) store.TouchInput {
	return store.TouchInput{
		TelegramID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

func (a *App) send(tgID int64, msg notify.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.client.Send(ctx, tgID, msg)
}

func (a *App) sendText(tgID int64, text string) error {
	return a.send(tgID, notify.Message{Text: text})
}

func (a *App) getState(tgID int64) userState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state[tgID]
}

func (a *App) setState(tgID int64, st userState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st.Flow == "" {
		delete(a.state, tgID)
		return
	}
	a.state[tgID] = st
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	tgID := m.From.ID
	txt := strings.TrimSpace(m.Text)

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			a.setState(tgID, userState{})
			if id := deepLinkEvent(m.CommandArguments()); id != 0 {
				return a.showEvent(ctx, tgID, id)
			}
			return a.showStart(ctx, tgID)
		case "admin":
			a.setState(tgID, userState{})
			if !a.svc.IsAdmin(tgID) {
				return a.sendText(tgID, "⛔ Доступ запрещён.")
			}
			return a.showAdminMenu(tgID)
		case "new":
			a.setState(tgID, userState{})
			return a.startWizard(tgID)
		case "my":
			return a.showMyEvents(ctx, tgID)
		case "cancel":
			a.setState(tgID, userState{})
			a.sessions.Drop(tgID)
			return a.sendText(tgID, "Отменено. /start — главное меню.")
		}
	}

	// flow-based input
	if st := a.getState(tgID); st.Flow != "" {
		return a.handleFlowInput(ctx, m.From, txt, st)
	}

	if s, ok := a.sessions.Get(tgID, a.now()); ok {
		if len(m.Photo) > 0 {
			// the last size is the largest
			return a.wizardInput(ctx, m.From, s, wizard.Photo(m.Photo[len(m.Photo)-1].FileID))
		}
		return a.wizardInput(ctx, m.From, s, wizard.Text(txt))
	}

	// default: show main menu
	return a.showStart(ctx, tgID)
}

func (a *App) handleFlowInput(ctx context.Context, from *tgbotapi.User, txt string, st userState) error {
	switch st.Flow {
	case flowReject:
		return a.handleRejectReason(ctx, from.ID, txt, st)
	case flowComment:
		return a.handleCommentFlow(ctx, from.ID, txt, st)
	case flowFeedback:
		return a.handleFeedbackFlow(ctx, from, txt)
	case flowBroadcast:
		return a.handleBroadcastFlow(ctx, from.ID, txt)
	case flowCleanup:
		return a.handleCleanupFlow(ctx, from.ID, txt)
	default:
		a.setState(from.ID, userState{})
		return a.sendText(from.ID, "Сброс состояния. Нажми /start")
	}
}

// deepLinkEvent understands "e<id>" and "app_event_<id>" start payloads.
func deepLinkEvent(arg string) uint {
	arg = strings.TrimSpace(arg)
	var raw string
	switch {
	case strings.HasPrefix(arg, "app_event_"):
		raw = strings.TrimPrefix(arg, "app_event_")
	case strings.HasPrefix(arg, "e"):
		raw = strings.TrimPrefix(arg, "e")
	default:
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	_, _ = a.client.api.Request(tgbotapi.NewCallback(q.ID, ""))

	prefix, rest, _ := strings.Cut(data, ":")
	switch prefix {
	case "org":
		return a.handleOrganizerCallback(ctx, q.From, rest)
	case "pay":
		return a.handlePaymentCallback(ctx, tgID, data)
	case "adm":
		return a.handleAdminCallback(ctx, tgID, data)
	case "res":
		return a.handleResidentCallback(ctx, tgID, rest)
	case "fav":
		return a.handleFavoriteCallback(ctx, tgID, rest)
	}
	return nil
}

// splitArg returns the verb and the numeric tail of "verb:<n>".
func splitArg(rest string) (string, uint64) {
	verb, arg, _ := strings.Cut(rest, ":")
	n, _ := strconv.ParseUint(arg, 10, 64)
	return verb, n
}
