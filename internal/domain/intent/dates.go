package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateRange is a resolved availability window.
type DateRange struct {
	From time.Time
	To   time.Time
}

// String renders the range the way it is stored on the conversation's
// booking intent, e.g. "2025-03-10 to 2025-03-12".
func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June, "julio": time.July,
	"agosto": time.August, "septiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

var (
	// "march 10 to march 12", "march 10 - 12", "10 de marzo al 12 de marzo"
	reMonthFirst = regexp.MustCompile(`([a-záéíóú]+)\s+(\d{1,2})\s*(?:to|-|–|al?|hasta)\s*(?:([a-záéíóú]+)\s+)?(\d{1,2})`)
	reDayFirst   = regexp.MustCompile(`(\d{1,2})\s+(?:de\s+)?([a-záéíóú]+)\s*(?:to|-|–|al?|hasta)\s*(\d{1,2})\s*(?:de\s+)?([a-záéíóú]*)`)
	// "10/03 - 12/03", "10/03/2025 to 12/03/2025"
	reNumeric = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\s*(?:to|-|–|al?|hasta)\s*(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?`)
)

// ExtractDateRange pulls an availability date range out of free text.
// Heuristic by design: anything it cannot resolve unambiguously falls
// through to the default rule, it never guesses.
func ExtractDateRange(text, locale string) (DateRange, bool) {
	now := time.Now()

	if m := reNumeric.FindStringSubmatch(text); m != nil {
		return buildNumericRange(m, locale, now)
	}
	if m := reMonthFirst.FindStringSubmatch(text); m != nil {
		fromMonth, ok := monthNames[m[1]]
		if !ok {
			return DateRange{}, false
		}
		toMonth := fromMonth
		if m[3] != "" {
			if mo, ok := monthNames[m[3]]; ok {
				toMonth = mo
			} else {
				return DateRange{}, false
			}
		}
		return buildRange(fromMonth, m[2], toMonth, m[4], now)
	}
	if m := reDayFirst.FindStringSubmatch(text); m != nil {
		fromMonth, ok := monthNames[m[2]]
		if !ok {
			return DateRange{}, false
		}
		toMonth := fromMonth
		if m[4] != "" {
			if mo, ok := monthNames[m[4]]; ok {
				toMonth = mo
			}
		}
		return buildRange(fromMonth, m[1], toMonth, m[3], now)
	}
	return DateRange{}, false
}

func buildRange(fromMonth time.Month, fromDayRaw string, toMonth time.Month, toDayRaw string, now time.Time) (DateRange, bool) {
	fromDay, err1 := strconv.Atoi(fromDayRaw)
	toDay, err2 := strconv.Atoi(toDayRaw)
	if err1 != nil || err2 != nil {
		return DateRange{}, false
	}

	year := now.Year()
	from := time.Date(year, fromMonth, fromDay, 0, 0, 0, 0, time.UTC)
	// A range in the past means next year's dates.
	if from.Before(now.Truncate(24 * time.Hour)) {
		year++
		from = time.Date(year, fromMonth, fromDay, 0, 0, 0, 0, time.UTC)
	}
	to := time.Date(year, toMonth, toDay, 0, 0, 0, 0, time.UTC)
	if to.Before(from) {
		return DateRange{}, false
	}
	if !validDay(fromMonth, fromDay) || !validDay(toMonth, toDay) {
		return DateRange{}, false
	}
	return DateRange{From: from, To: to}, true
}

func buildNumericRange(m []string, locale string, now time.Time) (DateRange, bool) {
	a1, _ := strconv.Atoi(m[1])
	a2, _ := strconv.Atoi(m[2])
	b1, _ := strconv.Atoi(m[4])
	b2, _ := strconv.Atoi(m[5])

	// en: month/day; es and most others: day/month.
	fromDay, fromMonth := a1, a2
	toDay, toMonth := b1, b2
	if locale == "en" {
		fromDay, fromMonth = a2, a1
		toDay, toMonth = b2, b1
	}
	if fromMonth < 1 || fromMonth > 12 || toMonth < 1 || toMonth > 12 {
		return DateRange{}, false
	}

	anchor := now
	if m[3] != "" {
		if y, err := strconv.Atoi(m[3]); err == nil {
			if y < 100 {
				y += 2000
			}
			anchor = time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return buildRange(time.Month(fromMonth), strconv.Itoa(fromDay), time.Month(toMonth), strconv.Itoa(toDay), anchor)
}

func validDay(month time.Month, day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	switch month {
	case time.April, time.June, time.September, time.November:
		return day <= 30
	case time.February:
		return day <= 29
	}
	return true
}
