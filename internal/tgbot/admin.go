package tgbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow-bot/internal/moderation"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/server"
)

const (
	queuePage      = 10
	maxCleanupHour = 24 * 30
)

func (a *App) showAdminMenu(tgID int64) error {
	return a.send(tgID, notify.Message{
		Text: "🛠 *Админ-панель*",
		Actions: [][]notify.Action{
			{{Label: "📋 Очередь модерации", Data: "adm:queue"}},
			{{Label: "📊 Статистика", Data: "adm:stats"}, {Label: "📤 CSV выгрузка", Data: "adm:export"}},
			{{Label: "📢 Рассылка", Data: "adm:broadcast"}, {Label: "🧹 Очистка", Data: "adm:cleanup"}},
			{{Label: "🏠 В меню", Data: "res:menu"}},
		},
	})
}

func (a *App) handleAdminCallback(ctx context.Context, tgID int64, data string) error {
	// approve/reject/view guard themselves inside the service and leave an audit row
	if act, id, ok := moderation.ParseAction(data); ok {
		switch act {
		case moderation.ActApprove:
			_, err := a.svc.Approve(ctx, tgID, id)
			if err != nil {
				return err
			}
			return a.sendText(tgID, fmt.Sprintf("✅ Заявка #%d одобрена, организатор получил ссылку на оплату.", id))
		case moderation.ActReject:
			if !a.svc.IsAdmin(tgID) {
				return moderation.ErrForbidden
			}
			a.setState(tgID, userState{Flow: flowReject, EventID: id})
			return a.sendText(tgID, fmt.Sprintf("Напишите причину отказа для заявки #%d:", id))
		case moderation.ActView:
			return a.showEvent(ctx, tgID, id)
		case "adm:purge":
			if !a.svc.IsAdmin(tgID) {
				return moderation.ErrForbidden
			}
			return a.purge(ctx, tgID, int(id))
		}
	}

	if !a.svc.IsAdmin(tgID) {
		return a.sendText(tgID, "⛔ Доступ запрещён.")
	}
	switch data {
	case "adm:menu":
		return a.showAdminMenu(tgID)
	case "adm:queue":
		return a.showQueue(ctx, tgID)
	case "adm:stats":
		return a.showStats(ctx, tgID)
	case "adm:export":
		city := a.userCity(ctx, tgID)
		base := a.cfg.BasePublicURL
		if base == "" {
			base = "http://localhost" + a.cfg.HTTPAddr
		}
		link := server.ExportURL(base, a.cfg.PaymentWebhookSecret, city)
		return a.send(tgID, notify.Message{
			Text:    fmt.Sprintf("📤 CSV выгрузка мероприятий: *%s*", a.cityName(city)),
			Actions: [][]notify.Action{{{Label: "⬇️ Скачать CSV", URL: link}}},
		})
	case "adm:broadcast":
		a.setState(tgID, userState{Flow: flowBroadcast})
		return a.sendText(tgID, "📢 Рассылка. Введи текст сообщения (получат все пользователи активных городов):")
	case "adm:cleanup":
		a.setState(tgID, userState{Flow: flowCleanup})
		return a.sendText(tgID, "🧹 Удаление тестовых заявок. За сколько последних часов? (1-720)")
	}
	return nil
}

func (a *App) showQueue(ctx context.Context, tgID int64) error {
	list, err := a.svc.Pending(ctx, tgID, queuePage)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return a.sendText(tgID, "Очередь модерации пуста ✅")
	}
	for i := range list {
		if err := a.send(tgID, a.svc.ModerationMessage(&list[i], "⏳ *На модерации*")); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) handleRejectReason(ctx context.Context, tgID int64, txt string, st userState) error {
	_, err := a.svc.Reject(ctx, tgID, st.EventID, txt)
	if errors.Is(err, moderation.ErrReasonTooShort) {
		return a.sendText(tgID, "Причина слишком короткая. Напишите подробнее:")
	}
	a.setState(tgID, userState{})
	if err != nil {
		return err
	}
	return a.sendText(tgID, fmt.Sprintf("❌ Заявка #%d отклонена, организатор получил причину.", st.EventID))
}

func (a *App) showStats(ctx context.Context, tgID int64) error {
	counts, err := a.st.EventCountsByStatus(ctx)
	if err != nil {
		return err
	}
	us, err := a.st.UserStats(ctx, a.now(), 5)
	if err != nil {
		return err
	}
	if err := a.sendText(tgID, statsText(counts, us)); err != nil {
		return err
	}

	png, err := statusChart(counts)
	if errors.Is(err, errNoData) {
		return nil
	}
	if err != nil {
		log.Printf("tgbot: stats chart: %v", err)
		return nil
	}
	photo := tgbotapi.NewPhoto(tgID, tgbotapi.FileBytes{Name: "stats.png", Bytes: png})
	photo.Caption = "События по статусам"
	_, err = a.client.api.Send(photo)
	return err
}

func (a *App) handleBroadcastFlow(ctx context.Context, tgID int64, txt string) error {
	if txt == "" {
		return a.sendText(tgID, "Текст пустой. Введи ещё раз:")
	}
	a.setState(tgID, userState{})

	msg := notify.Message{Text: "📢 *Сообщение от EventsNow*\n\n" + txt}
	throttle := a.cfg.NotifyThrottle
	safeGo("broadcast", func() {
		ctx := context.WithoutCancel(ctx)
		sent, failed := 0, 0
		for _, c := range a.cfg.Catalog.SortedCities() {
			if !c.Active() {
				continue
			}
			users, err := a.st.ListCityRecipients(ctx, c.Slug)
			if err != nil {
				log.Printf("tgbot: broadcast recipients %s: %v", c.Slug, err)
				continue
			}
			for _, u := range users {
				if err := a.send(u.TelegramID, msg); err != nil {
					failed++
				} else {
					sent++
				}
				time.Sleep(throttle) // simple anti-flood
			}
		}
		log.Printf("tgbot: broadcast by %d: sent=%d failed=%d", tgID, sent, failed)
		_ = a.sendText(tgID, fmt.Sprintf("✅ Рассылка выполнена: %d доставлено, %d ошибок.", sent, failed))
	})
	return a.sendText(tgID, "⏳ Рассылка запущена.")
}

func (a *App) handleCleanupFlow(ctx context.Context, tgID int64, txt string) error {
	hours, err := strconv.Atoi(strings.TrimSpace(txt))
	if err != nil || hours < 1 || hours > maxCleanupHour {
		return a.sendText(tgID, fmt.Sprintf("Нужно число часов от 1 до %d:", maxCleanupHour))
	}
	a.setState(tgID, userState{})
	n, err := a.st.CountEventsSince(ctx, a.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return err
	}
	if n == 0 {
		return a.sendText(tgID, "За этот период заявок нет.")
	}
	return a.send(tgID, notify.Message{
		Text: fmt.Sprintf("Будет удалено заявок: *%d* (за последние %d ч) вместе с фото, оплатами и отзывами.", n, hours),
		Actions: [][]notify.Action{{
			{Label: "🗑 Удалить", Data: moderation.ActionData("adm:purge", uint(hours))},
			{Label: "Отмена", Data: "adm:menu"},
		}},
	})
}

func (a *App) purge(ctx context.Context, tgID int64, hours int) error {
	if hours < 1 || hours > maxCleanupHour {
		return nil
	}
	n, err := a.st.DeleteEventsSince(ctx, a.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return err
	}
	if err := a.st.LogModAction(ctx, tgID, "cleanup", 0, fmt.Sprintf("%dh: %d events", hours, n)); err != nil {
		log.Printf("tgbot: audit cleanup: %v", err)
	}
	log.Printf("tgbot: admin %d removed %d events created in the last %dh", tgID, n, hours)
	return a.sendText(tgID, fmt.Sprintf("🧹 Удалено заявок: %d.", n))
}
