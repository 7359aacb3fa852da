package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extraction is layered: structured label lookups first, label-anchored
// regexes over the plain text second, positional heuristics last. Dates
// and amounts follow the Italian source locale of the relay templates.

var monthsByPrefix = map[string]time.Month{
	"gen": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"mag": time.May,
	"giu": time.June,
	"lug": time.July,
	"ago": time.August,
	"set": time.September,
	"ott": time.October,
	"nov": time.November,
	"dic": time.December,
}

var (
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	// "gio 3 set 2026", "3 settembre 2026", "3 set" (year optional).
	wordDatePattern = regexp.MustCompile(`(?i)\b(?:lun|mar|mer|gio|ven|sab|dom)?\.?\s*(\d{1,2})\s+([a-zà-ù]{3,})\.?\s*(\d{4})?`)
	amountPattern   = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})*,\d{1,2}|\d{1,3}(?:\.\d{3})+|\d+,\d{1,2}|\d+(?:\.\d{1,2})?)`)
	thousandsOnly   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	currencyPattern = regexp.MustCompile(`(?i)\b(EUR|USD|GBP|CHF)\b`)
)

// ParseDate reads the first date in s, accepting dd/mm/yyyy and the
// Italian day-month(-year) word form with an optional weekday prefix.
// A missing year is completed with the current year and rolled forward
// one year when the result would already be in the past, since quoted
// stay dates always look ahead.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	if m := numericDatePattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if validDate(year, time.Month(month), day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	if m := wordDatePattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthsByPrefix[monthPrefix(m[2])]
		if !ok {
			return time.Time{}, false
		}
		if m[3] != "" {
			year, _ := strconv.Atoi(m[3])
			if validDate(year, month, day) {
				return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
			}
			return time.Time{}, false
		}
		if !validDate(now.Year(), month, day) {
			return time.Time{}, false
		}
		date := time.Date(now.Year(), month, day, 0, 0, 0, 0, time.UTC)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(today) {
			date = date.AddDate(1, 0, 0)
		}
		return date, true
	}
	return time.Time{}, false
}

// ParseDates reads every date in s, in order of appearance.
func ParseDates(s string, now time.Time) []time.Time {
	var dates []time.Time
	for _, m := range numericDatePattern.FindAllString(s, -1) {
		if d, ok := ParseDate(m, now); ok {
			dates = append(dates, d)
		}
	}
	if len(dates) > 0 {
		return dates
	}
	for _, m := range wordDatePattern.FindAllString(s, -1) {
		if d, ok := ParseDate(m, now); ok {
			dates = append(dates, d)
		}
	}
	return dates
}

// ParseAmount reads the first monetary amount in s, normalizing the
// Italian convention of "." thousands and "," decimals. The currency
// comes from an explicit code or the euro sign, defaulting to EUR.
func ParseAmount(s string) (float64, string, bool) {
	m := amountPattern.FindString(s)
	if m == "" {
		return 0, "", false
	}
	normalized := m
	switch {
	case strings.Contains(m, ","):
		normalized = strings.ReplaceAll(m, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	case thousandsOnly.MatchString(m):
		normalized = strings.ReplaceAll(m, ".", "")
	}
	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, "", false
	}

	currency := "EUR"
	if c := currencyPattern.FindString(s); c != "" {
		currency = strings.ToUpper(c)
	} else if strings.Contains(s, "$") {
		currency = "USD"
	} else if strings.Contains(s, "£") {
		currency = "GBP"
	}
	return amount, currency, true
}

// LabelValue scans the text line by line for the first line starting with
// one of the labels (case-insensitive) and returns the remainder after
// the label and an optional separator. When the remainder is empty the
// value is taken from the next non-blank line, covering table layouts
// flattened with the header above the cell.
func LabelValue(text string, labels ...string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "*#|- "))
		for _, label := range labels {
			if len(trimmed) < len(label) || !strings.EqualFold(trimmed[:len(label)], label) {
				continue
			}
			rest := strings.TrimSpace(strings.TrimLeft(trimmed[len(label):], ":*  \t"))
			if rest != "" {
				return rest
			}
			for j := i + 1; j < len(lines) && j <= i+2; j++ {
				if next := strings.TrimSpace(strings.TrimLeft(lines[j], "*#|- ")); next != "" {
					return next
				}
			}
			return ""
		}
	}
	return ""
}

// DatePairAfterHeader finds a line mentioning both header words and reads
// the first two dates that follow it; the first is returned first. This
// is the positional fallback for layouts where the dates sit under a
// "Check-in  Check-out" header row with no labels of their own.
func DatePairAfterHeader(text string, now time.Time, first, second string) (time.Time, time.Time, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, strings.ToLower(first)) || !strings.Contains(lower, strings.ToLower(second)) {
			continue
		}
		var dates []time.Time
		for j := i; j < len(lines) && j <= i+4 && len(dates) < 2; j++ {
			region := lines[j]
			if j == i {
				// The header line itself may carry the dates inline.
				region = stripHeaderWords(region, first, second)
			}
			dates = append(dates, ParseDates(region, now)...)
		}
		if len(dates) >= 2 {
			return dates[0], dates[1], true
		}
	}
	return time.Time{}, time.Time{}, false
}

func stripHeaderWords(line string, words ...string) string {
	for _, w := range words {
		for {
			idx := strings.Index(strings.ToLower(line), strings.ToLower(w))
			if idx < 0 {
				break
			}
			line = line[:idx] + line[idx+len(w):]
		}
	}
	return line
}

// monthPrefix lowercases and truncates an Italian month token to its
// three-letter table key.
func monthPrefix(token string) string {
	token = strings.ToLower(token)
	if len(token) > 3 {
		return token[:3]
	}
	return token
}

func validDate(year int, month time.Month, day int) bool {
	if year < 2000 || year > 2100 || day < 1 {
		return false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return d.Month() == month && d.Day() == day
}
