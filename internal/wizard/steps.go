package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/pricing"
	"eventsnow-bot/internal/util"
)

type handler func(s *Session, in Input) (Reply, error)

func (m *Machine) handlers() map[Step]handler {
	return map[Step]handler{
		StepCity:           m.city,
		StepCategory:       m.category,
		StepTitle:          m.title,
		StepDescription:    m.description,
		StepDateOrPeriod:   m.dateOrPeriod,
		StepTimeStart:      m.timeStart,
		StepTimeEnd:        m.timeEnd,
		StepLocation:       m.location,
		StepContact:        m.contact,
		StepPriceMode:      m.priceMode,
		StepAdmissionPrice: m.admissionPrice,
		StepFreeKids:       m.freeKids,
		StepFreeKidsAge:    m.freeKidsAge,
		StepPhotos:         m.photos,
		StepConfirm:        m.confirm,
	}
}

func textOf(in Input) (string, bool) {
	if in.Kind != InputText {
		return "", false
	}
	return strings.TrimSpace(in.Value), true
}

// choice accepts either a button action with the prefix or the same value typed as text.
func choice(in Input, prefix string) (string, bool) {
	switch in.Kind {
	case InputAction:
		if !strings.HasPrefix(in.Value, prefix) {
			return "", false
		}
		return strings.TrimPrefix(in.Value, prefix), true
	case InputText:
		return strings.TrimSpace(in.Value), true
	}
	return "", false
}

func (m *Machine) city(s *Session, in Input) (Reply, error) {
	v, ok := choice(in, actCityPrefix)
	if !ok || v == "" {
		return Reply{}, invalid(StepCity, "Выбери город кнопкой.")
	}
	for _, c := range m.catalog.Cities {
		if c.Slug == v || strings.EqualFold(c.Name, v) {
			if !c.Active() {
				return Reply{}, invalid(StepCity, "%s: скоро. Пока размещение там недоступно.", c.Name)
			}
			s.Draft.CitySlug, s.Draft.CityName = c.Slug, c.Name
			s.Step = StepCategory
			return Reply{}, nil
		}
	}
	return Reply{}, invalid(StepCity, "Город не найден.")
}

func (m *Machine) category(s *Session, in Input) (Reply, error) {
	v, ok := choice(in, actCatPrefix)
	if !ok {
		return Reply{}, invalid(StepCategory, "Выбери категорию кнопкой.")
	}
	cat := models.Category(strings.ToUpper(v))
	if !cat.IsValid() {
		for c, cfg := range m.catalog.Pricing {
			if strings.EqualFold(cfg.Name, v) {
				cat = c
			}
		}
	}
	if !cat.IsValid() {
		return Reply{}, invalid(StepCategory, "Неизвестная категория.")
	}
	if s.Draft.Category != cat {
		// смена категории меняет форму даты и цены
		s.Draft.EventDate, s.Draft.PeriodStart, s.Draft.PeriodEnd = nil, nil, nil
		s.Draft.PriceMode, s.Draft.Price, s.Draft.Tiers = "", nil, nil
	}
	s.Draft.Category = cat
	s.Step = StepTitle
	return Reply{}, nil
}

func (m *Machine) title(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	if !ok || utf8.RuneCountInString(v) < 3 {
		return Reply{}, invalid(StepTitle, "Название слишком короткое. Введите ещё раз.")
	}
	s.Draft.Title = v
	s.Step = StepDescription
	return Reply{}, nil
}

func (m *Machine) description(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	n := utf8.RuneCountInString(v)
	if !ok || n < 10 {
		return Reply{}, invalid(StepDescription, "Описание слишком короткое. Введите ещё раз.")
	}
	if n > MaxDescriptionLen {
		return Reply{}, invalid(StepDescription, "Описание длиннее %d символов. Сократите его.", MaxDescriptionLen)
	}
	s.Draft.Description = v
	s.Step = StepDateOrPeriod
	return Reply{}, nil
}

func (m *Machine) dateOrPeriod(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	if !ok {
		return Reply{}, invalid(StepDateOrPeriod, "Введите дату текстом.")
	}
	period := s.Draft.Category.UsesPeriod()
	if isRange(v) && !period {
		return Reply{}, invalid(StepDateOrPeriod, "Для этой категории нужна одна дата: %s", datePattern)
	}
	start, end, err := parseDateOrRange(v)
	if err != nil {
		if period {
			return Reply{}, invalid(StepDateOrPeriod, "Неверный формат. Повтори: %s или %s-%s", datePattern, datePattern, datePattern)
		}
		return Reply{}, invalid(StepDateOrPeriod, "Неверный формат. Повтори: %s", datePattern)
	}
	if period {
		s.Draft.EventDate = nil
		s.Draft.PeriodStart, s.Draft.PeriodEnd = &start, &end
	} else {
		s.Draft.PeriodStart, s.Draft.PeriodEnd = nil, nil
		s.Draft.EventDate = &start
	}
	s.Step = StepTimeStart
	return Reply{}, nil
}

func (m *Machine) timeStart(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	t, err := parseClock(v)
	if !ok || err != nil {
		return Reply{}, invalid(StepTimeStart, "Неверный формат времени. Пример: 10:00")
	}
	s.Draft.TimeStart = t
	s.Step = StepTimeEnd
	return Reply{}, nil
}

func (m *Machine) timeEnd(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	t, err := parseClock(v)
	if !ok || err != nil {
		return Reply{}, invalid(StepTimeEnd, "Неверный формат времени. Пример: 20:00")
	}
	s.Draft.TimeEnd = t
	s.Step = StepLocation
	return Reply{}, nil
}

func (m *Machine) location(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	if !ok || utf8.RuneCountInString(v) < 3 {
		return Reply{}, invalid(StepLocation, "Слишком коротко. Введите место ещё раз.")
	}
	s.Draft.Location = v
	s.Step = StepContact
	return Reply{}, nil
}

func (m *Machine) contact(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	if !ok || utf8.RuneCountInString(v) < 3 {
		return Reply{}, invalid(StepContact, "Слишком коротко. Введите контакты ещё раз.")
	}
	s.Draft.Contact = v
	if tiered(s.Draft.Category) {
		s.Step = StepPriceMode
	} else {
		s.Step = StepAdmissionPrice
	}
	return Reply{}, nil
}

// tiered reports whether the category collects admission prices per visitor group.
func tiered(c models.Category) bool { return c == models.CategoryExhibition }

func (m *Machine) priceMode(s *Session, in Input) (Reply, error) {
	v, ok := choice(in, actModePrefix)
	mode := PriceMode(strings.ToLower(v))
	if !ok || !mode.IsValid() {
		return Reply{}, invalid(StepPriceMode, "Неверный вариант.")
	}
	s.Draft.PriceMode = mode
	s.Step = StepAdmissionPrice
	return Reply{}, nil
}

func (m *Machine) admissionPrice(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	if !ok {
		return Reply{}, invalid(StepAdmissionPrice, "Введите цену текстом.")
	}
	if tiered(s.Draft.Category) {
		tiers, err := ParseTierPrices(v, s.Draft.PriceMode.TierKeys())
		if err != nil {
			return Reply{}, invalid(StepAdmissionPrice, "Неверный формат: %v. Пример: %s", err, tierExample(s.Draft.PriceMode))
		}
		s.Draft.Tiers, s.Draft.Price = tiers, nil
	} else {
		p, err := parsePrice(v)
		if err != nil {
			return Reply{}, invalid(StepAdmissionPrice, "Введите число (например 0 или 1500).")
		}
		s.Draft.Price, s.Draft.Tiers = &p, nil
	}
	s.Step = StepFreeKids
	return Reply{}, nil
}

func (m *Machine) freeKids(s *Session, in Input) (Reply, error) {
	var yes bool
	switch {
	case in.Kind == InputAction && in.Value == ActKidsYes:
		yes = true
	case in.Kind == InputAction && in.Value == ActKidsNo:
	case in.Kind == InputText:
		v := strings.ToLower(strings.TrimSpace(in.Value))
		if v != "нет" && v != "no" && !util.NormalizeBool(v) {
			return Reply{}, invalid(StepFreeKids, "Ответь «да» или «нет».")
		}
		yes = util.NormalizeBool(v)
	default:
		return Reply{}, invalid(StepFreeKids, "Ответь «да» или «нет».")
	}
	if yes {
		s.Step = StepFreeKidsAge
		return Reply{}, nil
	}
	s.Draft.FreeKidsUptoAge = nil
	s.Step = StepPhotos
	return Reply{}, nil
}

func (m *Machine) freeKidsAge(s *Session, in Input) (Reply, error) {
	v, ok := textOf(in)
	age, err := strconv.Atoi(v)
	if !ok || err != nil || age < 0 || age > MaxFreeKidsAge {
		return Reply{}, invalid(StepFreeKidsAge, "Нужно число от 0 до %d. Пример: 6", MaxFreeKidsAge)
	}
	s.Draft.FreeKidsUptoAge = &age
	s.Step = StepPhotos
	return Reply{}, nil
}

func (m *Machine) photos(s *Session, in Input) (Reply, error) {
	switch in.Kind {
	case InputPhoto:
		if in.Value == "" {
			return Reply{}, invalid(StepPhotos, "Пришлите изображение.")
		}
		if len(s.Draft.Photos) >= MaxPhotos {
			return Reply{}, invalid(StepPhotos, "Максимум %d фото. Сначала удалите одно.", MaxPhotos)
		}
		s.Draft.Photos = append(s.Draft.Photos, in.Value)
		return Reply{Prompt: fmt.Sprintf("Фото %d/%d добавлено.", len(s.Draft.Photos), MaxPhotos)}, nil
	case InputAction, InputText:
		switch strings.ToLower(strings.TrimSpace(in.Value)) {
		case ActPhotosDone, ActPhotosSkip, "готово", "пропустить", "done", "skip":
			m.preview(s)
			s.Step = StepConfirm
			return Reply{}, nil
		case ActPhotosRemove:
			if len(s.Draft.Photos) == 0 {
				return Reply{}, invalid(StepPhotos, "Фото пока нет.")
			}
			s.Draft.Photos = s.Draft.Photos[:len(s.Draft.Photos)-1]
			return Reply{Prompt: "Последнее фото удалено."}, nil
		}
	}
	return Reply{}, invalid(StepPhotos, "Нужно изображение. Или нажмите «Готово».")
}

// preview computes the advisory placement price; failures are kept as a note.
func (m *Machine) preview(s *Session) {
	u := pricing.Posts(1)
	if s.Draft.PeriodStart != nil && s.Draft.PeriodEnd != nil {
		u = pricing.Period(*s.Draft.PeriodStart, *s.Draft.PeriodEnd)
	}
	res, err := pricing.Calculate(m.catalog.Pricing, s.Draft.Category, u)
	if err != nil {
		s.Draft.Placement, s.Draft.PlacementErr = nil, err.Error()
		return
	}
	s.Draft.Placement, s.Draft.PlacementErr = &res, ""
}

func (m *Machine) confirm(s *Session, in Input) (Reply, error) {
	v := strings.ToLower(strings.TrimSpace(in.Value))
	switch {
	case v == ActConfirmNo || (in.Kind == InputText && (v == "нет" || v == "no")):
		s.Step = StepDone
		return Reply{Step: StepDone, Prompt: "Отменено. Можно начать заново.", Cancelled: true}, nil
	case v == ActConfirmYes || (in.Kind == InputText && util.NormalizeBool(v)):
		s.Step = StepDone
		s.Submitting = true
		d := s.Draft
		d.Photos = append([]string(nil), s.Draft.Photos...)
		return Reply{Step: StepDone, Submit: &d}, nil
	}
	return Reply{}, invalid(StepConfirm, "Нажмите «Отправить» или «Отмена».")
}

// Reopen returns a session whose submit failed to the confirm step so it can be retried.
func (m *Machine) Reopen(s *Session) {
	if s.Step == StepDone && s.Submitting {
		s.Step = StepConfirm
		s.Submitting = false
	}
}
