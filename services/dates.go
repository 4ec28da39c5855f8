package services

import (
	"math"
	"regexp"
	"strings"
	"time"

	"commodity-prices/models"
)

// genericLayouts emulate free-form date parsing. Ambiguous numeric dates are
// read month-first, as a generic parser does.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006/1/2",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"1-2-06",
	"2 January 2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"Monday, January 2, 2006",
}

// dayFirstLayouts are tried when the data uses day-before-month ordering.
var dayFirstLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2 January 2006",
	"2 Jan 2006",
	"2-Jan-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// indonesianMonths maps local month names (and common abbreviations) to the
// English names the time package understands.
var indonesianMonths = map[string]string{
	"januari":  "January",
	"februari": "February",
	"pebruari": "February",
	"maret":    "March",
	"mei":      "May",
	"juni":     "June",
	"juli":     "July",
	"agustus":  "August",
	"oktober":  "October",
	"nopember": "November",
	"desember": "December",
	"agu":      "Aug",
	"agt":      "Aug",
	"ags":      "Aug",
	"okt":      "Oct",
	"des":      "Dec",
	"peb":      "Feb",
}

var wordRe = regexp.MustCompile(`\p{L}+`)

func translateMonths(s string) string {
	return wordRe.ReplaceAllStringFunc(s, func(w string) string {
		if en, ok := indonesianMonths[strings.ToLower(w)]; ok {
			return en
		}
		return w
	})
}

// dateParser turns one non-null cell into a calendar date.
type dateParser func(v any) (time.Time, bool)

func layoutsParser(layouts []string) dateParser {
	return func(v any) (time.Time, bool) {
		switch x := v.(type) {
		case time.Time:
			return truncateToDate(x), true
		case string:
			s := translateMonths(strings.TrimSpace(x))
			for _, layout := range layouts {
				if t, err := time.Parse(layout, s); err == nil {
					return truncateToDate(t), true
				}
			}
		}
		return time.Time{}, false
	}
}

var (
	parseGeneric  = layoutsParser(genericLayouts)
	parseDayFirst = layoutsParser(dayFirstLayouts)
)

func parseLenient(v any) (time.Time, bool) {
	if t, ok := parseGeneric(v); ok {
		return t, true
	}
	if t, ok := layoutsParser(models.DateFormats)(v); ok {
		return t, true
	}
	return parseDayFirst(v)
}

// truncateToDate keeps the calendar date of t (in its own location) at UTC
// midnight.
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDateColumn converts a column of raw cells into calendar dates. It tries
// generic parsing, then each explicit format in models.DateFormats, then
// day-first parsing; each of those stages must parse every non-null value.
// As a last resort values are parsed one by one and failures become the zero
// time. It never fails.
func ParseDateColumn(values []any) []time.Time {
	out := make([]time.Time, len(values))

	if parseAll(values, out, parseGeneric) {
		return out
	}
	for _, layout := range models.DateFormats {
		if parseAll(values, out, layoutsParser([]string{layout})) {
			return out
		}
	}
	if parseAll(values, out, parseDayFirst) {
		return out
	}

	for i, v := range values {
		if isNull(v) {
			out[i] = time.Time{}
			continue
		}
		out[i], _ = parseLenient(v)
	}
	return out
}

// parseAll fills out using p and reports whether every non-null value parsed.
func parseAll(values []any, out []time.Time, p dateParser) bool {
	for i, v := range values {
		if isNull(v) {
			out[i] = time.Time{}
			continue
		}
		t, ok := p(v)
		if !ok {
			return false
		}
		out[i] = t
	}
	return true
}

// looksLikeDates reports whether every value parses with the generic parser.
func looksLikeDates(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := parseGeneric(v); !ok {
			return false
		}
	}
	return true
}

// isNull reports whether a raw cell is missing.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	case time.Time:
		return x.IsZero()
	}
	return false
}

// nonNull returns the non-null values of a column, keeping at most limit of
// them when limit > 0.
func nonNull(values []any, limit int) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if isNull(v) {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
