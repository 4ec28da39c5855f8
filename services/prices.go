package services

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// PriceNotation selects how thousands and decimal separators are read from
// price text.
type PriceNotation string

const (
	// NotationEuropean drops every '.' and reads ',' as the decimal point.
	NotationEuropean PriceNotation = "european"
	// NotationAuto guesses the separators from the shape of each value.
	NotationAuto PriceNotation = "auto"
)

// ParsePriceNotation maps a config value to a notation. Unknown values fall
// back to NotationEuropean.
func ParsePriceNotation(s string) PriceNotation {
	if PriceNotation(strings.ToLower(strings.TrimSpace(s))) == NotationAuto {
		return NotationAuto
	}
	return NotationEuropean
}

var currencyReplacer = strings.NewReplacer(
	"Rp", "", "rp", "", "RP", "", "IDR", "",
	"$", "", "€", "", "£", "", "¥", "",
)

// ParsePriceValue converts one raw cell into a price using European notation.
// The second return value is false when the cell is missing or not numeric.
func ParsePriceValue(v any) (float64, bool) {
	return ParsePriceValueWith(v, NotationEuropean)
}

// ParsePriceValueWith converts one raw cell into a price using notation n.
func ParsePriceValueWith(v any, n PriceNotation) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case []byte:
		return parsePriceString(string(x), n)
	case string:
		return parsePriceString(x, n)
	}
	return 0, false
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parsePriceString(raw string, n PriceNotation) (float64, bool) {
	s := currencyReplacer.Replace(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}

	if n == NotationAuto {
		s = normalizeAuto(s)
	} else {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

// normalizeAuto rewrites s so strconv can read it. When both separators
// appear the last one is the decimal point. A lone separator followed by
// exactly three digits is read as a thousands separator.
func normalizeAuto(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && trailingDigits(s[comma+1:]) != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case dot >= 0:
		if strings.Count(s, ".") > 1 || trailingDigits(s[dot+1:]) == 3 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

func trailingDigits(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n++
	}
	return n
}
