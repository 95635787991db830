package wizard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"eventsnow-bot/internal/render"
)

const (
	datePattern = "ДД.ММ.ГГГГ"
	dateLayout  = "02.01.2006"
	clockLayout = "15:04"
)

// tierAliases maps the Russian labels organizers type to canonical tier keys.
var tierAliases = map[string]string{
	"все":        "all",
	"дети":       "child",
	"детский":    "child",
	"студенты":   "student",
	"взрослые":   "adult",
	"взрослый":   "adult",
	"пенсионеры": "senior",
}

func isRange(s string) bool { return strings.Contains(s, "-") }

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
}

// parseDateOrRange accepts "DD.MM.YYYY" or "DD.MM.YYYY-DD.MM.YYYY" with start <= end.
// A single date yields start == end.
func parseDateOrRange(s string) (time.Time, time.Time, error) {
	s = strings.TrimSpace(s)
	if !isRange(s) {
		d, err := parseDate(s)
		return d, d, err
	}
	a, b, _ := strings.Cut(s, "-")
	start, err := parseDate(a)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(b)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("start after end")
	}
	return start, end, nil
}

func parseClock(s string) (string, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return t.Format(clockLayout), nil
}

func parsePrice(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("price must be a non-negative number")
	}
	return v, nil
}

// ParseTierPrices parses "k=v" pairs separated by commas or semicolons. The result must
// contain exactly the keys in required, in any order.
func ParseTierPrices(text string, required []string) (map[string]float64, error) {
	if len(required) == 0 {
		return nil, errors.New("не выбран вариант цен")
	}
	allowed := make(map[string]bool, len(required))
	for _, k := range required {
		allowed[k] = true
	}

	raw := strings.ReplaceAll(strings.TrimSpace(text), ";", ",")
	out := map[string]float64{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("нет «=» в %q", part)
		}
		key := strings.ToLower(strings.TrimSpace(k))
		if alias, ok := tierAliases[key]; ok {
			key = alias
		}
		if !allowed[key] {
			return nil, fmt.Errorf("лишняя категория %q", strings.TrimSpace(k))
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("категория %q указана дважды", strings.TrimSpace(k))
		}
		price, err := parsePrice(v)
		if err != nil {
			return nil, fmt.Errorf("неверная цена %q", strings.TrimSpace(v))
		}
		out[key] = price
	}
	if len(out) == 0 {
		return nil, errors.New("пусто")
	}
	var missing []string
	for _, k := range required {
		if _, ok := out[k]; !ok {
			missing = append(missing, render.TierLabel(k))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("не хватает: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func tierExample(mode PriceMode) string {
	switch mode {
	case PriceChildAdult:
		return "дети=200, взрослые=500"
	case PriceFull:
		return "дети=200, студенты=300, взрослые=500, пенсионеры=250"
	default:
		return "все=500"
	}
}
