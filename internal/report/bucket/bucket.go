// Package bucket turns grouped invoice counts into chart series.
package bucket

import (
	"math"
	"sort"
	"strings"
	"time"
)

type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

const (
	weeklySlots  = 7
	monthlySlots = 5
	yearlySlots  = 12

	// DayKeyLayout is the row key format for weekly rows.
	DayKeyLayout = "2006-01-02"

	SeriesSales    = "Sales"
	SeriesPurchase = "Purchase"
)

// ParsePeriod maps unknown or empty values to weekly.
func ParsePeriod(value string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(value))) {
	case PeriodMonthly:
		return PeriodMonthly
	case PeriodYearly:
		return PeriodYearly
	default:
		return PeriodWeekly
	}
}

// Row is one grouped count. Key is a day (2006-01-02) for weekly, a sortable
// week key (ISO year-week, or the week's Monday on sqlite) for monthly and a
// year-month (2006-01) for yearly.
type Row struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type Series struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

type Chart struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
}

// Categories is the category axis for period as of now.
func Categories(period Period, now time.Time) []string {
	today := day(now)
	switch period {
	case PeriodMonthly:
		return []string{"Week 1", "Week 2", "Week 3", "Week 4", "Week 5"}
	case PeriodYearly:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		out := make([]string, 0, yearlySlots)
		for i := yearlySlots - 1; i >= 0; i-- {
			out = append(out, first.AddDate(0, -i, 0).Format("Jan"))
		}
		return out
	default:
		out := make([]string, 0, weeklySlots)
		for i := weeklySlots - 1; i >= 0; i-- {
			out = append(out, today.AddDate(0, 0, -i).Format("Mon"))
		}
		return out
	}
}

// BuildChart places rows onto the category axis of period.
//
// Weekly rows land at 6 minus their distance in days from today and are
// dropped outside the window. Monthly rows are ranked by their distinct week
// keys, first five only. Yearly rows are placed by input position and a later
// row at the same slot replaces the earlier one.
func BuildChart(period Period, now time.Time, rows []Row) Chart {
	categories := Categories(period, now)
	sales := make([]float64, len(categories))
	purchase := make([]float64, len(categories))

	place := func(idx int, row Row, accumulate bool) {
		if idx < 0 || idx >= len(categories) {
			return
		}
		var target []float64
		switch strings.ToLower(strings.TrimSpace(row.Type)) {
		case "sales":
			target = sales
		case "purchase":
			target = purchase
		default:
			return
		}
		if accumulate {
			target[idx] += float64(row.Count)
		} else {
			target[idx] = float64(row.Count)
		}
	}

	switch period {
	case PeriodMonthly:
		slots := weekSlots(rows)
		for _, row := range rows {
			idx, ok := slots[row.Key]
			if !ok {
				continue
			}
			place(idx, row, true)
		}
	case PeriodYearly:
		for i, row := range rows {
			place(i, row, false)
		}
	default:
		today := day(now)
		for _, row := range rows {
			date, err := time.ParseInLocation(DayKeyLayout, strings.TrimSpace(row.Key), time.UTC)
			if err != nil {
				continue
			}
			diffDays := int(math.Floor(today.Sub(date).Hours() / 24))
			place(weeklySlots-1-diffDays, row, true)
		}
	}

	return Chart{
		Categories: categories,
		Series: []Series{
			{Name: SeriesSales, Data: sales},
			{Name: SeriesPurchase, Data: purchase},
		},
	}
}

func weekSlots(rows []Row) map[string]int {
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.Key]; ok {
			continue
		}
		seen[row.Key] = struct{}{}
		keys = append(keys, row.Key)
	}
	sort.Strings(keys)

	slots := make(map[string]int, monthlySlots)
	for i, key := range keys {
		if i >= monthlySlots {
			break
		}
		slots[key] = i
	}
	return slots
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
