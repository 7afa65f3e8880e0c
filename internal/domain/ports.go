package domain

import "context"

type RecordRepository interface {
	GetByID(ctx context.Context, e *Entity, id int64) (Record, error)
	List(ctx context.Context, e *Entity, q ListQuery) ([]Record, error)
	Insert(ctx context.Context, e *Entity, values []Assignment) (int64, error)
	// UpdateFields applies ch atomically: core columns first, then the primary
	// table, with derived fields recomputed from the final operand values.
	UpdateFields(ctx context.Context, e *Entity, id int64, ch Changes) error
	Delete(ctx context.Context, e *Entity, id int64) error
}

type ReviewRepository interface {
	// InsertIfAbsent reports false when the review collides with the ingestion
	// uniqueness key; any other failure is returned.
	InsertIfAbsent(ctx context.Context, r StoredReview) (bool, error)
	RankAndDeleteDuplicates(ctx context.Context) (int64, error)
	ListReviews(ctx context.Context, q ReviewQuery) ([]StoredReview, error)
	ListDedupeCandidates(ctx context.Context) ([]StoredReview, error)
}

type ScraperClient interface {
	GetReviews(ctx context.Context, src ReviewSource) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
