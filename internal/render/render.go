package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/pricing"
)

const dateLayout = "02.01.2006"

var tierOrder = []string{"all", "child", "student", "adult", "senior"}

var tierLabels = map[string]string{
	"all":     "все",
	"child":   "дети",
	"student": "студенты",
	"adult":   "взрослые",
	"senior":  "пенсионеры",
}

// TierLabel is the display name of a canonical tier key.
func TierLabel(key string) string {
	if l, ok := tierLabels[key]; ok {
		return l
	}
	return key
}

// CategoryName returns the configured display name of the category.
func CategoryName(t pricing.Table, c models.Category) string {
	if cfg, ok := t[c]; ok && cfg.Name != "" {
		return cfg.Name
	}
	return string(c)
}

func Date(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

// Schedule renders the date or period of an event.
func Schedule(e *models.Event) string {
	if e.IsPeriod() {
		return Date(e.PeriodStart) + "-" + Date(e.PeriodEnd)
	}
	return Date(e.EventDate)
}

func Money(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Admission renders either the flat price or the tier list.
func Admission(e *models.Event) string {
	if tiers := e.TierPrices(); len(tiers) > 0 {
		var parts []string
		seen := map[string]bool{}
		for _, k := range tierOrder {
			if v, ok := tiers[k]; ok {
				parts = append(parts, fmt.Sprintf("%s: %s", tierLabels[k], Money(v)))
				seen[k] = true
			}
		}
		var rest []string
		for k := range tiers {
			if !seen[k] {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			parts = append(parts, fmt.Sprintf("%s: %s", k, Money(tiers[k])))
		}
		return strings.Join(parts, ", ")
	}
	if e.PriceAdmission == nil {
		return "-"
	}
	if *e.PriceAdmission == 0 {
		return "бесплатно"
	}
	return Money(*e.PriceAdmission) + "₽"
}

func FreeKids(age *int) string {
	if age == nil {
		return "—"
	}
	return fmt.Sprintf("детям до %d лет", *age)
}

// Placement renders the placement price preview.
func Placement(res *pricing.Result, errText string) string {
	if errText != "" {
		return "не удалось рассчитать, напишите в поддержку"
	}
	if res == nil {
		return "—"
	}
	details := ""
	switch res.Model {
	case models.PricingPeriod:
		details = fmt.Sprintf(" • дней: %d", res.Count)
	case models.PricingDaily:
		details = fmt.Sprintf(" • постов: %d", res.Count)
	}
	return fmt.Sprintf("Пакет: %s%s • К оплате: %s₽", res.PackageName, details, Money(res.TotalPrice))
}

// EventCard is the full text of an event used in previews, moderation and listings.
func EventCard(t pricing.Table, cityName string, e *models.Event) string {
	start, end := e.TimeRange()
	priceLabel := "Цена билета"
	if e.Category == models.CategoryConcert {
		priceLabel = "Стоимость билета от"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", Escape(e.Title))
	fmt.Fprintf(&b, "Город: %s\n", cityName)
	fmt.Fprintf(&b, "Категория: %s\n", CategoryName(t, e.Category))
	fmt.Fprintf(&b, "Дата/период: %s\n", Schedule(e))
	fmt.Fprintf(&b, "Время: %s - %s\n", start, end)
	fmt.Fprintf(&b, "Место: %s\n", Escape(e.Location))
	fmt.Fprintf(&b, "Контакты: %s\n", Escape(e.Contact))
	fmt.Fprintf(&b, "%s: %s\n", priceLabel, Admission(e))
	fmt.Fprintf(&b, "Бесплатно: %s\n", FreeKids(e.FreeKidsUptoAge))
	if e.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", Escape(e.Description))
	}
	return b.String()
}

// Escape neutralises Markdown (v1) control characters in user text.
func Escape(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return r.Replace(s)
}
