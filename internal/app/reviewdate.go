package app

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"landdev/internal/domain"
)

// sentinelDate is what the scraper writes when it has no review date.
var sentinelDate = time.Date(1969, time.December, 31, 0, 0, 0, 0, time.UTC)

// msCutoff separates epoch milliseconds (above) from epoch seconds.
const msCutoff = 1e12

var relativeDate = regexp.MustCompile(`(?i)^\s*(\d+|an?|one)\s+(year|month|week|day|hour)s?\s+ago\s*$`)

// NormalizeReviewDate picks the best available calendar date for a review:
// a valid absolute date, then relative text resolved against ref, then the
// 15th of year/month. It returns nil when none applies.
func NormalizeReviewDate(absolute, original *string, year, month *int, ref *time.Time) *time.Time {
	if absolute != nil {
		if t, ok := domain.ParseDate(*absolute); ok && !t.Equal(sentinelDate) {
			return &t
		}
	}
	if original != nil && ref != nil {
		if t, ok := resolveRelative(*original, *ref); ok {
			return &t
		}
	}
	if year != nil && month != nil && *month >= 1 && *month <= 12 && *year > 0 && *year <= 9999 {
		t := time.Date(*year, time.Month(*month), 15, 0, 0, 0, 0, time.UTC)
		return &t
	}
	return nil
}

// maxRelativeCount bounds "N units ago" so hour offsets stay inside time.Duration.
const maxRelativeCount = 1_000_000

func resolveRelative(s string, ref time.Time) (time.Time, bool) {
	ref = ref.UTC()
	var t time.Time
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		t = ref
	case "yesterday":
		t = ref.AddDate(0, 0, -1)
	default:
		m := relativeDate.FindStringSubmatch(s)
		if m == nil {
			return time.Time{}, false
		}
		n := 1
		if m[1][0] >= '0' && m[1][0] <= '9' {
			v, err := strconv.Atoi(m[1])
			if err != nil || v > maxRelativeCount {
				return time.Time{}, false
			}
			n = v
		}
		switch strings.ToLower(m[2]) {
		case "year":
			t = ref.AddDate(-n, 0, 0)
		case "month":
			t = ref.AddDate(0, -n, 0)
		case "week":
			t = ref.AddDate(0, 0, -7*n)
		case "day":
			t = ref.AddDate(0, 0, -n)
		case "hour":
			t = ref.Add(-time.Duration(n) * time.Hour)
		}
	}
	if t.Year() < 1000 || t.Year() > 9999 || t.After(ref) {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// NormalizeRequestTimestamp reads epoch millis (> 1e12), epoch seconds, or an
// ISO/calendar string. Anything else yields nil.
func NormalizeRequestTimestamp(v any) *time.Time {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	case time.Time:
		t := x.UTC()
		return &t
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	ms := f
	if f <= msCutoff {
		ms = f * 1000
	}
	if ms < minStoredMillis || ms > maxStoredMillis {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

// DATETIME bounds: 1000-01-01 through 9999-12-31.
var (
	minStoredMillis = float64(time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	maxStoredMillis = float64(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).UnixMilli())
)

// normalizeReview converts a scraped review into its stored form.
func normalizeReview(r domain.RawReview) domain.StoredReview {
	scraped := NormalizeRequestTimestamp(r.ScrapedAt)
	return domain.StoredReview{
		PropertyName:       strings.TrimSpace(r.PropertyName),
		ProjectID:          r.ProjectID,
		ReviewerName:       r.ReviewerName,
		ReviewText:         r.ReviewText,
		Rating:             r.Rating,
		ReviewDate:         NormalizeReviewDate(r.ReviewDate, r.ReviewDateOriginal, r.ReviewYear, r.ReviewMonth, scraped),
		ReviewDateOriginal: r.ReviewDateOriginal,
		ReviewYear:         r.ReviewYear,
		ReviewMonth:        r.ReviewMonth,
		ScrapedAt:          scraped,
		RequestTimestamp:   NormalizeRequestTimestamp(r.RequestTimestamp),
		Source:             r.Source,
	}
}
