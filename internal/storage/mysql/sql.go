package mysql

const insertReviewSQL = `
INSERT INTO reviews
  (property_name, project_id, reviewer_name, review_text, rating, review_date,
   review_date_original, review_year, review_month, scraped_at, request_timestamp, source)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const reviewColumns = `id, property_name, project_id, reviewer_name, review_text, rating, review_date,
  review_date_original, review_year, review_month, scraped_at, request_timestamp, source, created_at`

// Keeps one row per (normalized property, normalized reviewer): latest scrape,
// then latest review date, then latest creation, then highest id. NULL times
// rank as the oldest possible instant. Keys compare by code point, so accented
// names stay distinct. The derived table is materialized, so
// deleting from reviews while ranking it is allowed.
const dedupeReviewsSQL = `
DELETE r FROM reviews r
JOIN (
  SELECT id,
         ROW_NUMBER() OVER (
           PARTITION BY
             LOWER(TRIM(REGEXP_REPLACE(property_name, '[[:space:]]+', ' '))) COLLATE utf8mb4_bin,
             LOWER(TRIM(REGEXP_REPLACE(COALESCE(reviewer_name, ''), '[[:space:]]+', ' '))) COLLATE utf8mb4_bin
           ORDER BY
             COALESCE(scraped_at,  TIMESTAMP '1000-01-01 00:00:00') DESC,
             COALESCE(review_date, DATE '1000-01-01') DESC,
             COALESCE(created_at,  TIMESTAMP '1000-01-01 00:00:00') DESC,
             id DESC
         ) AS rn
  FROM reviews
) ranked ON ranked.id = r.id
WHERE ranked.rn > 1
`

const dedupeCandidatesSQL = `
SELECT id, property_name, reviewer_name, review_date, scraped_at, created_at
FROM reviews
`
