package domain

import (
	"strings"
	"time"
)

// RawReview is a scraped review as delivered by the scraper.
// ScrapedAt and RequestTimestamp may be epoch seconds, epoch millis or ISO strings.
type RawReview struct {
	PropertyName       string   `json:"property_name"`
	ProjectID          *int64   `json:"project_id,omitempty"`
	ReviewerName       *string  `json:"reviewer_name,omitempty"`
	ReviewText         *string  `json:"review_text,omitempty"`
	Rating             *float64 `json:"rating,omitempty"`
	ReviewDate         *string  `json:"review_date,omitempty"`
	ReviewDateOriginal *string  `json:"review_date_original,omitempty"`
	ReviewYear         *int     `json:"review_year,omitempty"`
	ReviewMonth        *int     `json:"review_month,omitempty"`
	ScrapedAt          any      `json:"scraped_at,omitempty"`
	RequestTimestamp   any      `json:"request_timestamp,omitempty"`
	Source             *string  `json:"source,omitempty"`
}

type StoredReview struct {
	ID                 int64      `json:"id"`
	PropertyName       string     `json:"property_name"`
	ProjectID          *int64     `json:"project_id"`
	ReviewerName       *string    `json:"reviewer_name"`
	ReviewText         *string    `json:"review_text"`
	Rating             *float64   `json:"rating"`
	ReviewDate         *time.Time `json:"review_date"`
	ReviewDateOriginal *string    `json:"review_date_original"`
	ReviewYear         *int       `json:"review_year"`
	ReviewMonth        *int       `json:"review_month"`
	ScrapedAt          *time.Time `json:"scraped_at"`
	RequestTimestamp   *time.Time `json:"request_timestamp"`
	Source             *string    `json:"source"`
	CreatedAt          *time.Time `json:"created_at"`
}

type ReviewQuery struct {
	Property *string
	Limit    int
}

// ReviewSource is one property the scraper is configured to collect reviews for.
type ReviewSource struct {
	ID           int64
	PropertyName string
	ProjectID    *int64
	SourceURL    *string
}

type IngestResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

type DedupeResult struct {
	Deleted int64   `json:"deleted"`
	DryRun  bool    `json:"dryRun"`
	IDs     []int64 `json:"ids,omitempty"`
}

// DedupeKey is the coarse review identity used by the maintenance pass:
// trimmed, lowercased, whitespace-collapsed property and reviewer names.
// A nil reviewer keys as the empty string.
func DedupeKey(property string, reviewer *string) string {
	r := ""
	if reviewer != nil {
		r = normalizeName(*reviewer)
	}
	return normalizeName(property) + "\x00" + r
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
