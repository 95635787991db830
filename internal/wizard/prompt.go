package wizard

import (
	"fmt"
	"strings"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/render"
)

func (m *Machine) prompt(s *Session) Reply {
	r := Reply{Step: s.Step}
	switch s.Step {
	case StepCity:
		r.Prompt = "🎪 *Организатор*\n\nВыбери город размещения:"
		for _, c := range m.catalog.SortedCities() {
			label := c.Name
			if !c.Active() {
				label += " (скоро)"
			}
			r.Options = append(r.Options, Option{ID: actCityPrefix + c.Slug, Label: label})
		}
	case StepCategory:
		r.Prompt = fmt.Sprintf("Город: *%s*\n\nВыбери категорию мероприятия:", s.Draft.CityName)
		for _, c := range models.Categories {
			r.Options = append(r.Options, Option{ID: actCatPrefix + string(c), Label: render.CategoryName(m.catalog.Pricing, c)})
		}
	case StepTitle:
		r.Prompt = "Введите *название* мероприятия:"
	case StepDescription:
		r.Prompt = fmt.Sprintf("Введите *описание* мероприятия (до %d символов):", MaxDescriptionLen)
	case StepDateOrPeriod:
		if s.Draft.Category.UsesPeriod() {
			r.Prompt = fmt.Sprintf("Введите дату или период выставки:\n`%s` или `%s-%s`\n\nПример: `10.01.2026-17.01.2026`", datePattern, datePattern, datePattern)
		} else {
			r.Prompt = fmt.Sprintf("Введите дату: `%s`\n\nПример: `10.01.2026`", datePattern)
		}
	case StepTimeStart:
		r.Prompt = "Введите *время начала* `ЧЧ:ММ` (например `10:00`):"
	case StepTimeEnd:
		r.Prompt = "Введите *время окончания* `ЧЧ:ММ` (например `20:00`):"
	case StepLocation:
		r.Prompt = "Введите *место проведения* (адрес/площадка):"
	case StepContact:
		r.Prompt = "Введите *контакты* организатора (телефон/ник/ссылка):"
	case StepPriceMode:
		r.Prompt = "🎟️ Для выставок часто разные цены по возрастам.\n\nВыбери вариант заполнения цен:"
		r.Options = []Option{
			{ID: actModePrefix + string(PriceOne), Label: "1) Одна цена"},
			{ID: actModePrefix + string(PriceChildAdult), Label: "2) Детский / Взрослый"},
			{ID: actModePrefix + string(PriceFull), Label: "3) Дети / Студенты / Взрослые / Пенсионеры"},
		}
	case StepAdmissionPrice:
		if tiered(s.Draft.Category) {
			labels := make([]string, 0, len(s.Draft.PriceMode.TierKeys()))
			for _, k := range s.Draft.PriceMode.TierKeys() {
				labels = append(labels, render.TierLabel(k))
			}
			r.Prompt = fmt.Sprintf("Введите цены в формате: `%s`\nДопустимые категории: %s",
				tierExample(s.Draft.PriceMode), strings.Join(labels, ", "))
		} else {
			r.Prompt = "Введите стоимость билета (число) или `0` если бесплатно:"
		}
	case StepFreeKids:
		r.Prompt = "Есть ли бесплатный вход детям до *N* лет?"
		r.Options = []Option{{ID: ActKidsYes, Label: "Да"}, {ID: ActKidsNo, Label: "Нет"}}
	case StepFreeKidsAge:
		r.Prompt = "Укажи N (возраст), например: `6`"
	case StepPhotos:
		r.Prompt = fmt.Sprintf("📷 Пришлите до %d фото афиши (сейчас %d). Когда закончите, нажмите «Готово».",
			MaxPhotos, len(s.Draft.Photos))
		if len(s.Draft.Photos) > 0 {
			r.Options = append(r.Options, Option{ID: ActPhotosRemove, Label: "🗑 Удалить последнее"})
			r.Options = append(r.Options, Option{ID: ActPhotosDone, Label: "✅ Готово"})
		} else {
			r.Options = append(r.Options, Option{ID: ActPhotosSkip, Label: "⏭ Без фото"})
		}
	case StepConfirm:
		r.Prompt = m.summary(s)
		r.Options = []Option{{ID: ActConfirmYes, Label: "✅ Отправить"}, {ID: ActConfirmNo, Label: "❌ Отмена"}}
	}
	return r
}

func (m *Machine) summary(s *Session) string {
	e := s.Draft.Event(s.UserID)
	var b strings.Builder
	b.WriteString("🧾 *Черновик мероприятия*\n\n")
	b.WriteString(render.EventCard(m.catalog.Pricing, s.Draft.CityName, e))
	fmt.Fprintf(&b, "\nФото: %d\n", len(s.Draft.Photos))
	fmt.Fprintf(&b, "Стоимость размещения: %s\n\n", render.Placement(s.Draft.Placement, s.Draft.PlacementErr))
	b.WriteString("Отправить на модерацию?")
	return b.String()
}
