package tgbot

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/wcharczuk/go-chart/v2"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/render"
	"eventsnow-bot/internal/store"
)

var errNoData = errors.New("no data to chart")

var statusOrder = []models.EventStatus{
	models.StatusPendingModeration,
	models.StatusApprovedWaitingPayment,
	models.StatusActive,
	models.StatusRejected,
	models.StatusArchived,
}

func statsText(counts map[models.EventStatus]int64, us store.UserStats) string {
	var b strings.Builder
	b.WriteString("📊 *Статистика*\n\n*Мероприятия*\n")
	var total int64
	for _, st := range statusOrder {
		fmt.Fprintf(&b, "%s: %d\n", statusLabel(st), counts[st])
		total += counts[st]
	}
	fmt.Fprintf(&b, "Всего: %d\n\n", total+counts[models.StatusDraft])

	b.WriteString("*Пользователи*\n")
	fmt.Fprintf(&b, "Всего: %d\nНовых сегодня: %d\nАктивных за 7 дней: %d\nАктивных за 30 дней: %d\n",
		us.Total, us.NewToday, us.Active7d, us.Active30d)
	if len(us.Recent) > 0 {
		b.WriteString("\n*Последние активные*\n")
		for _, u := range us.Recent {
			fmt.Fprintf(&b, "• %s\n", render.Escape(u.DisplayName()))
		}
	}
	return b.String()
}

// statusChart renders event counts per status as a PNG bar chart.
func statusChart(counts map[models.EventStatus]int64) ([]byte, error) {
	bars := make([]chart.Value, 0, len(statusOrder))
	var total int64
	for _, st := range statusOrder {
		bars = append(bars, chart.Value{Label: string(st), Value: float64(counts[st])})
		total += counts[st]
	}
	if total == 0 {
		return nil, errNoData
	}

	graph := chart.BarChart{
		Title:      "Events by status",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		Height:     400,
		Width:      900,
		BarWidth:   80,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) },
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}
