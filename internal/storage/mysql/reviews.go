package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"landdev/internal/domain"
)

func (r *Repo) InsertIfAbsent(ctx context.Context, rv domain.StoredReview) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertReviewSQL,
		rv.PropertyName,
		valInt64(rv.ProjectID),
		valStr(rv.ReviewerName),
		valStr(rv.ReviewText),
		valF64(rv.Rating),
		valTime(rv.ReviewDate),
		valStr(rv.ReviewDateOriginal),
		valInt(rv.ReviewYear),
		valInt(rv.ReviewMonth),
		valTime(rv.ScrapedAt),
		valTime(rv.RequestTimestamp),
		valStr(rv.Source),
	)
	if err == nil {
		return true, nil
	}
	if err = classify(err); errors.Is(err, domain.ErrDuplicate) {
		return false, nil
	}
	return false, err
}

func (r *Repo) RankAndDeleteDuplicates(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, dedupeReviewsSQL)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) ListReviews(ctx context.Context, q domain.ReviewQuery) ([]domain.StoredReview, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b := r.sq.Select(reviewColumns).From("reviews")
	if q.Property != nil {
		b = b.Where(sq.Eq{"property_name": *q.Property})
	}
	sqlStr, args, err := b.OrderBy("scraped_at DESC", "id DESC").Limit(uint64(q.Limit)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.StoredReview{}
	for rows.Next() {
		var (
			rv                           domain.StoredReview
			projectID, year, month       sql.NullInt64
			reviewer, text, orig, source sql.NullString
			rating                       sql.NullFloat64
			reviewDate, scraped, reqTS   sql.NullTime
			createdAt                    sql.NullTime
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.PropertyName,
			&projectID,
			&reviewer,
			&text,
			&rating,
			&reviewDate,
			&orig,
			&year,
			&month,
			&scraped,
			&reqTS,
			&source,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if projectID.Valid {
			v := projectID.Int64
			rv.ProjectID = &v
		}
		rv.ReviewerName = strPtr(reviewer)
		rv.ReviewText = strPtr(text)
		rv.ReviewDateOriginal = strPtr(orig)
		rv.Source = strPtr(source)
		if rating.Valid {
			f := rating.Float64
			rv.Rating = &f
		}
		rv.ReviewYear = intPtr(year)
		rv.ReviewMonth = intPtr(month)
		rv.ReviewDate = timePtr(reviewDate)
		rv.ScrapedAt = timePtr(scraped)
		rv.RequestTimestamp = timePtr(reqTS)
		rv.CreatedAt = timePtr(createdAt)
		out = append(out, rv)
	}
	return out, rows.Err()
}

// ListDedupeCandidates returns the identity and ranking columns of every review.
func (r *Repo) ListDedupeCandidates(ctx context.Context) ([]domain.StoredReview, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, dedupeCandidatesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredReview
	for rows.Next() {
		var (
			rv                           domain.StoredReview
			reviewer                     sql.NullString
			reviewDate, scraped, created sql.NullTime
		)
		if err := rows.Scan(&rv.ID, &rv.PropertyName, &reviewer, &reviewDate, &scraped, &created); err != nil {
			return nil, err
		}
		rv.ReviewerName = strPtr(reviewer)
		rv.ReviewDate = timePtr(reviewDate)
		rv.ScrapedAt = timePtr(scraped)
		rv.CreatedAt = timePtr(created)
		out = append(out, rv)
	}
	return out, rows.Err()
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
