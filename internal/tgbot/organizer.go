package tgbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/moderation"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/render"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/util"
	"eventsnow-bot/internal/wizard"
)

func (a *App) handleOrganizerCallback(ctx context.Context, from *tgbotapi.User, rest string) error {
	tgID := from.ID
	switch rest {
	case "new":
		a.setState(tgID, userState{})
		return a.startWizard(tgID)
	case "mine":
		return a.showMyEvents(ctx, tgID)
	}
	if verb, n := splitArg(rest); verb == "resubmit" && n > 0 {
		e, err := a.svc.Resubmit(ctx, tgID, uint(n))
		if err != nil {
			return err
		}
		return a.sendText(tgID, fmt.Sprintf("🔁 Заявка отправлена повторно (#%d). Ожидайте решения модератора.", e.ID))
	}

	// всё остальное: кнопки мастера заявки
	s, ok := a.sessions.Get(tgID, a.now())
	if !ok {
		return a.send(tgID, notify.Message{
			Text:    "⌛ Черновик не найден или устарел. Начните заново.",
			Actions: [][]notify.Action{{{Label: "➕ Новая заявка", Data: "org:new"}}},
		})
	}
	return a.wizardInput(ctx, from, s, wizard.Action(rest))
}

func (a *App) startWizard(tgID int64) error {
	s, reply := a.wz.Start(tgID)
	a.sessions.Begin(s, a.now())
	return a.sendReply(tgID, reply)
}

func (a *App) wizardInput(ctx context.Context, from *tgbotapi.User, s *wizard.Session, in wizard.Input) error {
	tgID := from.ID
	reply, err := a.wz.Input(s, in)
	var ve *wizard.ValidationError
	switch {
	case errors.Is(err, wizard.ErrAlreadySubmitting):
		return a.sendText(tgID, "⏳ Заявка уже отправляется, подождите.")
	case errors.Is(err, wizard.ErrFinished):
		a.sessions.Drop(tgID)
		return a.showStart(ctx, tgID)
	case errors.As(err, &ve):
		return a.sendReply(tgID, reply)
	case err != nil:
		return err
	}

	if reply.Cancelled {
		a.sessions.Drop(tgID)
		return a.sendText(tgID, reply.Prompt+"\n/new — новая заявка, /start — меню.")
	}
	if reply.Submit != nil {
		e, err := a.svc.Submit(ctx, touchInput(from), *reply.Submit)
		if err != nil {
			log.Printf("tgbot: submit from %d: %v", tgID, err)
			a.wz.Reopen(s)
			r := a.wz.Prompt(s)
			r.Prompt = "⚠️ Не удалось сохранить заявку. Попробуйте отправить ещё раз.\n\n" + r.Prompt
			return a.sendReply(tgID, r)
		}
		a.sessions.Drop(tgID)
		return a.sendText(tgID, fmt.Sprintf("✅ Заявка #%d отправлена на модерацию.\nМы сообщим о решении в этом чате.", e.ID))
	}
	return a.sendReply(tgID, reply)
}

// sendReply renders wizard options as inline buttons, two per row when there are many.
func (a *App) sendReply(tgID int64, r wizard.Reply) error {
	msg := notify.Message{Text: r.Prompt}
	perRow := 1
	if len(r.Options) > 4 {
		perRow = 2
	}
	var row []notify.Action
	for _, o := range r.Options {
		row = append(row, notify.Action{Label: o.Label, Data: "org:" + o.ID})
		if len(row) == perRow {
			msg.Actions = append(msg.Actions, row)
			row = nil
		}
	}
	if len(row) > 0 {
		msg.Actions = append(msg.Actions, row)
	}
	return a.send(tgID, msg)
}

func (a *App) showMyEvents(ctx context.Context, tgID int64) error {
	list, err := a.st.ListEvents(ctx, store.EventFilter{OwnerID: tgID, Limit: 20})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return a.send(tgID, notify.Message{
			Text:    "У вас пока нет заявок.",
			Actions: [][]notify.Action{{{Label: "➕ Разместить мероприятие", Data: "org:new"}}},
		})
	}
	var b strings.Builder
	b.WriteString("📂 *Мои заявки*\n\n")
	var rows [][]notify.Action
	for i := range list {
		e := &list[i]
		fmt.Fprintf(&b, "#%d %s · %s\n%s\n\n", e.ID, render.Escape(util.Shorten(e.Title, 50)), render.Schedule(e), statusLabel(e.Status))
		switch e.Status {
		case models.StatusApprovedWaitingPayment:
			rows = append(rows, []notify.Action{{Label: fmt.Sprintf("💳 Оплатить #%d", e.ID), Data: moderation.ActionData(moderation.ActPay, e.ID)}})
		case models.StatusRejected:
			rows = append(rows, []notify.Action{{Label: fmt.Sprintf("✏️ Отправить снова #%d", e.ID), Data: moderation.ActionData(moderation.ActResubmit, e.ID)}})
		case models.StatusActive:
			rows = append(rows, []notify.Action{{Label: fmt.Sprintf("👁 #%d", e.ID), Data: fmt.Sprintf("res:view:%d", e.ID)}})
		}
	}
	return a.send(tgID, notify.Message{Text: b.String(), Actions: rows})
}

// ---------- payments ----------

func (a *App) handlePaymentCallback(ctx context.Context, tgID int64, data string) error {
	act, id, ok := moderation.ParseAction(data)
	if !ok {
		return nil
	}
	switch act {
	case moderation.ActPay:
		ps, err := a.svc.StartPayment(ctx, tgID, id)
		switch {
		case errors.Is(err, payments.ErrGateway):
			return a.sendText(tgID, "⚠️ Не удалось начать оплату. Попробуйте ещё раз через минуту.")
		case errors.Is(err, moderation.ErrWrongState):
			return a.sendText(tgID, "Оплата для этой заявки сейчас недоступна.")
		case err != nil:
			return err
		}
		return a.send(tgID, moderation.PaymentMessage(ps))

	case moderation.ActPayTest:
		res, err := a.svc.ConfirmPayment(ctx, moderation.Confirmation{
			Source:  moderation.SourceTest,
			EventID: id,
			ActorID: tgID,
		})
		switch {
		case errors.Is(err, moderation.ErrTestPaymentsOff):
			return a.sendText(tgID, "Тестовая оплата отключена. Используйте кнопку «Оплатить».")
		case err != nil:
			return err
		}
		if res.AlreadyActive {
			return a.sendText(tgID, "Мероприятие уже оплачено и опубликовано ✅")
		}
		// the service already told the organizer
		return nil
	}
	return nil
}

func statusLabel(s models.EventStatus) string {
	switch s {
	case models.StatusDraft:
		return "📝 Черновик"
	case models.StatusPendingModeration:
		return "⏳ На модерации"
	case models.StatusApprovedWaitingPayment:
		return "💳 Одобрено, ждёт оплаты"
	case models.StatusActive:
		return "✅ Опубликовано"
	case models.StatusArchived:
		return "📦 В архиве"
	case models.StatusRejected:
		return "❌ Отклонено"
	}
	return string(s)
}
