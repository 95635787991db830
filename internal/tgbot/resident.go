package tgbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/render"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/util"
)

const (
	feedPageSize   = 8
	maxCommentLen  = 1000
	maxFeedbackLen = 2000
)

func (a *App) cityName(slug string) string {
	if c, ok := a.cfg.Catalog.City(slug); ok {
		return c.Name
	}
	return slug
}

func (a *App) userCity(ctx context.Context, tgID int64) string {
	u, err := a.st.GetUser(ctx, tgID)
	if err != nil || u.CitySlug == "" {
		return a.cfg.DefaultCity
	}
	return u.CitySlug
}

func (a *App) showStart(ctx context.Context, tgID int64) error {
	city := a.userCity(ctx, tgID)
	text := fmt.Sprintf("👋 *EventsNow*: афиша мероприятий твоего города.\n\nГород: *%s*", a.cityName(city))
	rows := [][]notify.Action{
		{{Label: "📅 Афиша", Data: "res:feed:0"}, {Label: "⭐ Избранное", Data: "fav:list"}},
		{{Label: "🏙 Сменить город", Data: "res:cities"}},
		{{Label: "➕ Разместить мероприятие", Data: "org:new"}, {Label: "📂 Мои заявки", Data: "org:mine"}},
		{{Label: "💬 Обратная связь", Data: "res:feedback"}},
	}
	if a.svc.IsAdmin(tgID) {
		rows = append(rows, []notify.Action{{Label: "🛠 Админ-панель", Data: "adm:menu"}})
	}
	return a.send(tgID, notify.Message{Text: text, Actions: rows})
}

func (a *App) handleResidentCallback(ctx context.Context, tgID int64, rest string) error {
	if rest == "cities" {
		return a.showCities(tgID)
	}
	if rest == "feedback" {
		a.setState(tgID, userState{Flow: flowFeedback})
		return a.sendText(tgID, "💬 Напишите сообщение для команды EventsNow (идея, ошибка, пожелание):")
	}
	if rest == "menu" {
		return a.showStart(ctx, tgID)
	}
	if city, ok := strings.CutPrefix(rest, "city:"); ok {
		return a.pickCity(ctx, tgID, city)
	}

	verb, n := splitArg(rest)
	switch verb {
	case "feed":
		return a.showFeed(ctx, tgID, int(n))
	case "view":
		return a.showEvent(ctx, tgID, uint(n))
	case "comments":
		return a.showComments(ctx, tgID, uint(n))
	case "comment":
		if _, err := a.activeEvent(ctx, uint(n)); err != nil {
			return err
		}
		a.setState(tgID, userState{Flow: flowComment, EventID: uint(n)})
		return a.sendText(tgID, "✍️ Напишите отзыв. Оценку 1-5 можно поставить первой цифрой, например: `5 Отличный концерт!`")
	}
	return nil
}

func (a *App) showCities(tgID int64) error {
	var rows [][]notify.Action
	for _, c := range a.cfg.Catalog.SortedCities() {
		if c.Active() {
			rows = append(rows, []notify.Action{{Label: "🏙 " + c.Name, Data: "res:city:" + c.Slug}})
		} else {
			rows = append(rows, []notify.Action{{Label: "🔜 " + c.Name + " (скоро)", Data: "res:city:" + c.Slug}})
		}
	}
	return a.send(tgID, notify.Message{Text: "Выбери город:", Actions: rows})
}

func (a *App) pickCity(ctx context.Context, tgID int64, slug string) error {
	c, ok := a.cfg.Catalog.City(slug)
	if !ok {
		return a.sendText(tgID, "Город не найден.")
	}
	if !c.Active() {
		return a.sendText(tgID, fmt.Sprintf("🔜 %s скоро появится в EventsNow.", c.Name))
	}
	if err := a.st.SetUserCity(ctx, tgID, slug); err != nil {
		return err
	}
	return a.showStart(ctx, tgID)
}

func (a *App) showFeed(ctx context.Context, tgID int64, page int) error {
	if page < 0 {
		page = 0
	}
	city := a.userCity(ctx, tgID)
	list, err := a.st.ListEvents(ctx, store.EventFilter{
		City:     city,
		Statuses: []models.EventStatus{models.StatusActive},
		Limit:    feedPageSize + 1,
		Offset:   page * feedPageSize,
	})
	if err != nil {
		return err
	}
	if len(list) == 0 && page == 0 {
		return a.send(tgID, notify.Message{
			Text:    fmt.Sprintf("В городе *%s* пока нет мероприятий.", a.cityName(city)),
			Actions: [][]notify.Action{{{Label: "🏠 В меню", Data: "res:menu"}}},
		})
	}
	more := len(list) > feedPageSize
	if more {
		list = list[:feedPageSize]
	}

	var rows [][]notify.Action
	for i := range list {
		e := &list[i]
		label := fmt.Sprintf("%s · %s", util.Shorten(e.Title, 40), render.Schedule(e))
		rows = append(rows, []notify.Action{{Label: label, Data: fmt.Sprintf("res:view:%d", e.ID)}})
	}
	var nav []notify.Action
	if page > 0 {
		nav = append(nav, notify.Action{Label: "⬅️", Data: fmt.Sprintf("res:feed:%d", page-1)})
	}
	if more {
		nav = append(nav, notify.Action{Label: "➡️", Data: fmt.Sprintf("res:feed:%d", page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []notify.Action{{Label: "🏠 В меню", Data: "res:menu"}})
	text := fmt.Sprintf("📅 *Афиша: %s* (стр. %d)", a.cityName(city), page+1)
	return a.send(tgID, notify.Message{Text: text, Actions: rows})
}

func (a *App) activeEvent(ctx context.Context, id uint) (*models.Event, error) {
	e, err := a.st.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusActive {
		return nil, models.ErrNotFound
	}
	return e, nil
}

// showEvent renders the event card. Residents only see ACTIVE events; the owner and
// admins see any status.
func (a *App) showEvent(ctx context.Context, tgID int64, id uint) error {
	e, err := a.st.GetEvent(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return a.sendText(tgID, "Событие не найдено или недоступно.")
	}
	if err != nil {
		return err
	}
	privileged := e.UserID == tgID || a.svc.IsAdmin(tgID)
	if e.Status != models.StatusActive && !privileged {
		return a.sendText(tgID, "Событие не найдено или недоступно.")
	}

	var b strings.Builder
	b.WriteString(render.EventCard(a.cfg.Catalog.Pricing, a.cityName(e.CitySlug), e))
	if e.Status != models.StatusActive {
		fmt.Fprintf(&b, "\nСтатус: %s\n", statusLabel(e.Status))
	}
	msg := notify.Message{Text: b.String()}
	if len(e.Photos) > 0 {
		msg.PhotoFileID = e.Photos[0].FileID
	}
	if e.Status == models.StatusActive {
		fav, err := a.st.IsFavorite(ctx, tgID, e.ID)
		if err != nil {
			return err
		}
		favBtn := notify.Action{Label: "⭐ В избранное", Data: fmt.Sprintf("fav:add:%d", e.ID)}
		if fav {
			favBtn = notify.Action{Label: "✖️ Убрать из избранного", Data: fmt.Sprintf("fav:del:%d", e.ID)}
		}
		msg.Actions = [][]notify.Action{
			{favBtn},
			{
				{Label: "💬 Отзывы", Data: fmt.Sprintf("res:comments:%d", e.ID)},
				{Label: "✍️ Оставить отзыв", Data: fmt.Sprintf("res:comment:%d", e.ID)},
			},
		}
	}
	if err := a.send(tgID, msg); err != nil {
		return err
	}
	return a.sendExtraPhotos(tgID, e.Photos)
}

// sendExtraPhotos sends photos after the first one as an album.
func (a *App) sendExtraPhotos(tgID int64, photos []models.EventPhoto) error {
	if len(photos) < 2 {
		return nil
	}
	files := make([]interface{}, 0, len(photos)-1)
	for _, p := range photos[1:] {
		files = append(files, tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(p.FileID)))
	}
	if len(files) == 1 {
		_, err := a.client.api.Send(tgbotapi.NewPhoto(tgID, tgbotapi.FileID(photos[1].FileID)))
		return err
	}
	_, err := a.client.api.Request(tgbotapi.NewMediaGroup(tgID, files))
	return err
}

func (a *App) showComments(ctx context.Context, tgID int64, eventID uint) error {
	e, err := a.activeEvent(ctx, eventID)
	if err != nil {
		return err
	}
	list, err := a.st.ListComments(ctx, eventID, 10)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💬 *Отзывы: %s*\n\n", render.Escape(e.Title))
	if len(list) == 0 {
		b.WriteString("Пока нет отзывов.")
	}
	for _, c := range list {
		if c.Rating != nil {
			b.WriteString(strings.Repeat("⭐", *c.Rating) + " ")
		}
		fmt.Fprintf(&b, "%s\n_%s_\n\n", render.Escape(c.Text), c.CreatedAt.Format("02.01.2006"))
	}
	return a.send(tgID, notify.Message{
		Text:    b.String(),
		Actions: [][]notify.Action{{{Label: "✍️ Оставить отзыв", Data: fmt.Sprintf("res:comment:%d", eventID)}}},
	})
}

// parseComment splits an optional leading 1-5 rating from the text.
func parseComment(txt string) (*int, string) {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return nil, ""
	}
	r, size := utf8.DecodeRuneInString(txt)
	if r < '1' || r > '5' {
		return nil, txt
	}
	tail := txt[size:]
	if tail != "" && tail[0] != ' ' {
		return nil, txt
	}
	n := int(r - '0')
	return &n, strings.TrimSpace(tail)
}

func (a *App) handleCommentFlow(ctx context.Context, tgID int64, txt string, st userState) error {
	rating, text := parseComment(txt)
	if text == "" && rating == nil {
		return a.sendText(tgID, "Текст пустой. Напишите отзыв ещё раз:")
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return a.sendText(tgID, fmt.Sprintf("Слишком длинно, максимум %d символов.", maxCommentLen))
	}
	if _, err := a.activeEvent(ctx, st.EventID); err != nil {
		a.setState(tgID, userState{})
		return err
	}
	if err := a.st.AddComment(ctx, &models.Comment{EventID: st.EventID, UserID: tgID, Text: text, Rating: rating}); err != nil {
		return err
	}
	a.setState(tgID, userState{})
	return a.send(tgID, notify.Message{
		Text:    "✅ Спасибо за отзыв!",
		Actions: [][]notify.Action{{{Label: "👁 К событию", Data: fmt.Sprintf("res:view:%d", st.EventID)}}},
	})
}

func (a *App) handleFeedbackFlow(ctx context.Context, from *tgbotapi.User, txt string) error {
	if txt == "" {
		return a.sendText(from.ID, "Текст пустой. Введи ещё раз:")
	}
	if utf8.RuneCountInString(txt) > maxFeedbackLen {
		return a.sendText(from.ID, fmt.Sprintf("Слишком длинно, максимум %d символов.", maxFeedbackLen))
	}
	if err := a.st.AddFeedback(ctx, &models.Feedback{UserID: from.ID, Message: txt}); err != nil {
		return err
	}
	a.setState(from.ID, userState{})

	who := models.User{TelegramID: from.ID, Username: from.UserName, FirstName: from.FirstName, LastName: from.LastName}
	fwd := fmt.Sprintf("📨 *Обратная связь* от %s (`%d`):\n\n%s", render.Escape(who.DisplayName()), from.ID, render.Escape(txt))
	for _, id := range a.svc.Admins.IDs() {
		if err := a.sendText(id, fwd); err != nil {
			log.Printf("tgbot: forward feedback to %d: %v", id, err)
		}
	}
	return a.sendText(from.ID, "✅ Спасибо! Сообщение передано команде.")
}

// ---------- favorites ----------

func (a *App) handleFavoriteCallback(ctx context.Context, tgID int64, rest string) error {
	if rest == "list" {
		return a.showFavorites(ctx, tgID)
	}
	verb, n := splitArg(rest)
	id := uint(n)
	switch verb {
	case "add":
		if _, err := a.activeEvent(ctx, id); err != nil {
			return err
		}
		if err := a.st.AddFavorite(ctx, tgID, id); err != nil {
			return err
		}
		return a.sendText(tgID, "⭐ Добавлено в избранное.")
	case "del":
		if err := a.st.RemoveFavorite(ctx, tgID, id); err != nil {
			return err
		}
		return a.sendText(tgID, "Убрано из избранного.")
	}
	return nil
}

func (a *App) showFavorites(ctx context.Context, tgID int64) error {
	list, err := a.st.ListFavorites(ctx, tgID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return a.sendText(tgID, "⭐ В избранном пусто.")
	}
	var rows [][]notify.Action
	for i := range list {
		e := &list[i]
		rows = append(rows, []notify.Action{{
			Label: fmt.Sprintf("%s · %s", util.Shorten(e.Title, 40), render.Schedule(e)),
			Data:  fmt.Sprintf("res:view:%d", e.ID),
		}})
	}
	return a.send(tgID, notify.Message{Text: "⭐ *Избранное*", Actions: rows})
}
