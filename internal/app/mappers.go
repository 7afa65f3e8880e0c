package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"landdev/internal/domain"
)

/********** alias registry (single source of truth) **********/

// Scrapers for different review sites name the same attribute differently.
var reviewAliases = map[string][]string{
	"reviewer":      {"reviewer_name", "reviewer", "author", "name", "userName", "user.name", "reviewer.name"},
	"text":          {"review_text", "text", "review", "comment", "content", "body"},
	"date":          {"review_date", "date", "published_at", "publishedAtDate"},
	"date_original": {"review_date_original", "date_text", "relative_date", "publishAt", "time_ago"},
	"source":        {"source", "platform", "site"},
	"rating":        {"rating", "stars", "score", "rating.value"},
	"year":          {"review_year", "year"},
	"month":         {"review_month", "month"},
	"scraped_at":    {"scraped_at", "scrapedAt", "scraped"},
	"request_ts":    {"request_timestamp", "requestTimestamp", "requested_at"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, key string) *string {
	for _, p := range reviewAliases[key] {
		if s, ok := lookupAny(m, p).(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return &s
			}
		}
	}
	return nil
}

// firstRawAlias returns the first present value, whatever its type.
func firstRawAlias(m map[string]any, key string) any {
	for _, p := range reviewAliases[key] {
		if v := lookupAny(m, p); v != nil {
			return v
		}
	}
	return nil
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, key string) *float64 {
	for _, p := range reviewAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func getIntFlexible(m map[string]any, key string) *int {
	if f := getFloatFlexible(m, key); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

/********** reviews mapper **********/

// mapReviews converts scraper payloads for src into raw reviews. The property
// identity always comes from the configured source, not the payload.
func mapReviews(src domain.ReviewSource, in []map[string]any) []domain.RawReview {
	out := make([]domain.RawReview, 0, len(in))
	for _, r := range in {
		rv := domain.RawReview{
			PropertyName:       src.PropertyName,
			ProjectID:          src.ProjectID,
			ReviewerName:       firstNonEmptyAlias(r, "reviewer"),
			ReviewText:         firstNonEmptyAlias(r, "text"),
			Rating:             getFloatFlexible(r, "rating"),
			ReviewDate:         firstNonEmptyAlias(r, "date"),
			ReviewDateOriginal: firstNonEmptyAlias(r, "date_original"),
			ReviewYear:         getIntFlexible(r, "year"),
			ReviewMonth:        getIntFlexible(r, "month"),
			ScrapedAt:          firstRawAlias(r, "scraped_at"),
			RequestTimestamp:   firstRawAlias(r, "request_ts"),
			Source:             firstNonEmptyAlias(r, "source"),
		}
		// nothing to identify or show
		if rv.ReviewerName == nil && rv.ReviewText == nil && rv.Rating == nil {
			continue
		}
		out = append(out, rv)
	}
	return out
}
