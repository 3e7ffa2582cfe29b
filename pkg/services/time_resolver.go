package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// TimeResolver turns relative time expressions into closed date intervals.
// It recognizes a fixed set of expressions; everything else is either
// ambiguous (flagged, never guessed) or carries no time scope at all.
// "Last <period>" always means the most recent completed period, "this
// <period>" means period-to-date.
type TimeResolver struct {
	now func() time.Time
}

// NewTimeResolver creates a resolver. The now function exists so tests can
// pin the clock; nil means the wall clock.
func NewTimeResolver(now func() time.Time) *TimeResolver {
	if now == nil {
		now = time.Now
	}
	return &TimeResolver{now: now}
}

var (
	lastNDaysPattern = regexp.MustCompile(`\blast\s+(\d{1,4})\s+days?\b`)
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthYearPattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Phrases that signal a time scope without pinning one down. These resolve
// to nothing: the caller surfaces the ambiguity instead of inventing a
// window the user never asked for.
var ambiguousTimeMarkers = []string{
	"recently", "recent", "lately", "these days", "nowadays",
	"currently", "right now", "past few", "a while", "soon",
}

// Resolve maps the question's time expression to an inclusive date interval.
// The second return is true when the question references time ambiguously;
// in that case the interval is nil.
func (r *TimeResolver) Resolve(question string) (*models.TimeContext, bool) {
	lower := strings.ToLower(question)
	today := dateOnly(r.now().UTC())

	if tc := r.resolveLastNDays(lower, today); tc != nil {
		return tc, false
	}
	if tc := r.resolveNamedPeriod(lower, today); tc != nil {
		return tc, false
	}
	if tc := r.resolveISODates(lower); tc != nil {
		return tc, false
	}
	if tc := r.resolveMonthYear(lower); tc != nil {
		return tc, false
	}

	normalized := normalizeText(lower)
	for _, marker := range ambiguousTimeMarkers {
		if containsPhrase(normalized, marker) {
			return nil, true
		}
	}
	return nil, false
}

func (r *TimeResolver) resolveLastNDays(lower string, today time.Time) *models.TimeContext {
	m := lastNDaysPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return nil
	}
	// Completed days only: the window ends yesterday.
	return &models.TimeContext{
		StartDate:   today.AddDate(0, 0, -n),
		EndDate:     today.AddDate(0, 0, -1),
		Expression:  strings.Join(strings.Fields(m[0]), " "),
		Granularity: models.GranularityDay,
	}
}

func (r *TimeResolver) resolveNamedPeriod(lower string, today time.Time) *models.TimeContext {
	normalized := normalizeText(lower)
	match := func(phrase string) bool { return containsPhrase(normalized, phrase) }

	switch {
	case match("yesterday"):
		y := today.AddDate(0, 0, -1)
		return interval(y, y, "yesterday", models.GranularityDay)
	case match("today"):
		return interval(today, today, "today", models.GranularityDay)
	case match("this week"):
		return interval(weekStart(today), today, "this week", models.GranularityWeek)
	case match("last week"):
		start := weekStart(today).AddDate(0, 0, -7)
		return interval(start, start.AddDate(0, 0, 6), "last week", models.GranularityWeek)
	case match("this month"):
		return interval(monthStart(today), today, "this month", models.GranularityMonth)
	case match("last month"):
		start := monthStart(today).AddDate(0, -1, 0)
		return interval(start, start.AddDate(0, 1, -1), "last month", models.GranularityMonth)
	case match("this quarter"):
		return interval(quarterStart(today), today, "this quarter", models.GranularityQuarter)
	case match("last quarter"):
		start := quarterStart(today).AddDate(0, -3, 0)
		return interval(start, start.AddDate(0, 3, -1), "last quarter", models.GranularityQuarter)
	case match("this year"):
		return interval(yearStart(today), today, "this year", models.GranularityYear)
	case match("last year"):
		start := yearStart(today).AddDate(-1, 0, 0)
		return interval(start, start.AddDate(1, 0, -1), "last year", models.GranularityYear)
	}
	return nil
}

// resolveISODates picks up explicit YYYY-MM-DD dates. One date is a single
// day; two or more become the interval spanning the earliest and latest.
func (r *TimeResolver) resolveISODates(lower string) *models.TimeContext {
	matches := isoDatePattern.FindAllString(lower, -1)
	if len(matches) == 0 {
		return nil
	}

	var dates []time.Time
	for _, m := range matches {
		d, err := time.ParseInLocation("2006-01-02", m, time.UTC)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return nil
	}

	minDate, maxDate := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(minDate) {
			minDate = d
		}
		if d.After(maxDate) {
			maxDate = d
		}
	}

	expr := minDate.Format("2006-01-02")
	if !minDate.Equal(maxDate) {
		expr += " to " + maxDate.Format("2006-01-02")
	}
	return interval(minDate, maxDate, expr, models.GranularityDay)
}

func (r *TimeResolver) resolveMonthYear(lower string) *models.TimeContext {
	m := monthYearPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	start := time.Date(year, monthsByName[m[1]], 1, 0, 0, 0, 0, time.UTC)
	return interval(start, start.AddDate(0, 1, -1), m[1]+" "+m[2], models.GranularityMonth)
}

func interval(start, end time.Time, expr string, g models.TimeGranularity) *models.TimeContext {
	return &models.TimeContext{StartDate: start, EndDate: end, Expression: expr, Granularity: g}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday of t's ISO week.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func quarterStart(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}
