package moderation

import (
	"fmt"
	"strconv"
	"strings"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/render"
)

// Action data offered by moderation messages. The transport routes them back by prefix.
const (
	ActApprove  = "adm:approve"
	ActReject   = "adm:reject"
	ActView     = "adm:view"
	ActPay      = "pay:start"
	ActPayTest  = "pay:test"
	ActResubmit = "org:resubmit"
)

func ActionData(act string, eventID uint) string {
	return act + ":" + strconv.FormatUint(uint64(eventID), 10)
}

// ParseAction splits "<prefix>:<verb>:<id>" into the action and the event id.
func ParseAction(data string) (act string, eventID uint, ok bool) {
	i := strings.LastIndexByte(data, ':')
	if i <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseUint(data[i+1:], 10, 64)
	if err != nil || id == 0 {
		return "", 0, false
	}
	return data[:i], uint(id), true
}

func notifyMessage(text string) notify.Message { return notify.Message{Text: text} }

// ModerationMessage is the card admins see for a pending event.
func (s *Service) ModerationMessage(e *models.Event, header string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", header)
	fmt.Fprintf(&b, "ID: `%d`\nОрганизатор: `%d`\n\n", e.ID, e.UserID)
	b.WriteString(render.EventCard(s.Catalog.Pricing, s.cityName(e.CitySlug), e))
	fmt.Fprintf(&b, "\nФото: %d", len(e.Photos))

	msg := notify.Message{Text: b.String()}
	if len(e.Photos) > 0 {
		msg.PhotoFileID = e.Photos[0].FileID
	}
	msg.Actions = [][]notify.Action{
		{
			{Label: "✅ Разместить", Data: ActionData(ActApprove, e.ID)},
			{Label: "❌ Отклонить", Data: ActionData(ActReject, e.ID)},
		},
		{{Label: "👁 Просмотр", Data: ActionData(ActView, e.ID)}},
	}
	return msg
}

func (s *Service) approvedMessage(e *models.Event) notify.Message {
	text := fmt.Sprintf("✅ *Одобрено:* %s\n\nОплатите размещение, после оплаты мероприятие появится в ленте города.",
		render.Escape(e.Title))
	rows := [][]notify.Action{{{Label: "💳 Оплатить", Data: ActionData(ActPay, e.ID)}}}
	if s.TestMode() {
		rows = append(rows, []notify.Action{{Label: "✅ Оплачено (тест)", Data: ActionData(ActPayTest, e.ID)}})
	}
	return notify.Message{Text: text, Actions: rows}
}

func rejectedMessage(e *models.Event) notify.Message {
	reason := ""
	if e.RejectReason != nil {
		reason = *e.RejectReason
	}
	text := fmt.Sprintf("❌ *Отклонено:* %s\n\n*Причина отказа:* %s\n\n"+
		"Устраните замечания администрации и направьте заявку на повторную модерацию.",
		render.Escape(e.Title), render.Escape(reason))
	row := []notify.Action{{Label: "✏️ Исправить и отправить снова", Data: ActionData(ActResubmit, e.ID)}}
	return notify.Message{Text: text, Actions: [][]notify.Action{row}}
}

func paymentFailedMessage(eventID uint) notify.Message {
	return notify.Message{
		Text:    "❌ *Оплата не прошла.*\nМероприятие ждёт оплаты, можно попробовать ещё раз.",
		Actions: [][]notify.Action{{{Label: "💳 Оплатить", Data: ActionData(ActPay, eventID)}}},
	}
}

// PaymentMessage tells the organizer how to pay for a started payment.
func PaymentMessage(ps PaymentStart) notify.Message {
	amount := render.Money(ps.Payment.Amount) + "₽"
	if ps.Test {
		return notify.Message{
			Text: fmt.Sprintf("💳 *Оплата размещения*\n\nК оплате: %s\n\nПока включён тестовый режим.\n"+
				"Нажмите «Оплачено (тест)» для продолжения.", amount),
			Actions: [][]notify.Action{{{Label: "✅ Оплачено (тест)", Data: ActionData(ActPayTest, ps.Event.ID)}}},
		}
	}
	return notify.Message{
		Text:    fmt.Sprintf("💳 *Оплата размещения*\n\nК оплате: %s\nПосле оплаты мероприятие будет опубликовано автоматически.", amount),
		Actions: [][]notify.Action{{{Label: "💳 Перейти к оплате", URL: ps.RedirectURL}}},
	}
}
