package app

import (
	"context"
	"encoding/json"
	"time"

	"landdev/internal/domain"
)

type QueryService struct {
	records  domain.RecordRepository
	reviews  domain.ReviewRepository
	cache    domain.Cache
	reg      *domain.Registry
	cacheTTL time.Duration
}

func NewQueryService(rec domain.RecordRepository, rev domain.ReviewRepository, c domain.Cache, reg *domain.Registry, ttl time.Duration) *QueryService {
	return &QueryService{records: rec, reviews: rev, cache: c, reg: reg, cacheTTL: ttl}
}

// GetRecord reads one joined record. Entities whose view spans two tables are
// never cached, since a core write cannot evict every extension key.
func (s *QueryService) GetRecord(ctx context.Context, entity string, id int64) (domain.Record, error) {
	e, err := lookupEntity(s.reg, entity)
	if err != nil {
		return nil, err
	}
	cacheable := s.cache != nil && s.reg.Cacheable(e)
	key := recordKey(entity, id)
	if cacheable {
		var rec domain.Record
		if ok, _ := s.cache.Get(ctx, key, &rec); ok {
			return rec, nil
		}
	}
	rec, err := s.records.GetByID(ctx, e, id)
	if err != nil {
		return nil, err
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, rec, int(s.cacheTTL.Seconds()))
	}
	return rec, nil
}

type ListParams struct {
	Limit   int
	Offset  int
	Filters map[string]string // field name -> raw value
}

// ListRecords lists an entity newest first. Filters must name readable fields.
func (s *QueryService) ListRecords(ctx context.Context, entity string, p ListParams) ([]domain.Record, error) {
	e, err := lookupEntity(s.reg, entity)
	if err != nil {
		return nil, err
	}
	q := domain.ListQuery{Limit: p.Limit, Offset: p.Offset}
	for name, raw := range p.Filters {
		f, ok := e.Field(name)
		if !ok {
			return nil, domain.Invalid("cannot filter on unknown field %s", name)
		}
		b, _ := json.Marshal(raw)
		v, err := f.Coerce(b)
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, domain.Assignment{Field: f, Value: v})
	}
	return s.records.List(ctx, e, q)
}

func (s *QueryService) ListReviews(ctx context.Context, property string, limit int) ([]domain.StoredReview, error) {
	var (
		key    string
		cached bool
	)
	if s.cache != nil {
		key, cached = reviewsKey(ctx, s.cache, property, limit)
	}
	if cached {
		var out []domain.StoredReview
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	q := domain.ReviewQuery{Limit: limit}
	if property != "" {
		q.Property = &property
	}
	rs, err := s.reviews.ListReviews(ctx, q)
	if err != nil {
		return nil, err
	}
	// optional size guard
	if cached {
		if b, _ := json.Marshal(rs); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, rs, int(s.cacheTTL.Seconds()))
		}
	}
	return rs, nil
}

const reviewConfigEntity = "property-review-configs"

// ReviewSources returns every enabled property-review config as a scrape source.
func (s *QueryService) ReviewSources(ctx context.Context) ([]domain.ReviewSource, error) {
	recs, err := s.ListRecords(ctx, reviewConfigEntity, ListParams{
		Limit:   10_000,
		Filters: map[string]string{"enabled": "true"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReviewSource, 0, len(recs))
	for _, r := range recs {
		src := domain.ReviewSource{}
		src.ID, _ = r["id"].(int64)
		src.PropertyName, _ = r["propertyName"].(string)
		if v, ok := r["projectId"].(int64); ok {
			src.ProjectID = &v
		}
		if v, ok := r["sourceUrl"].(string); ok {
			src.SourceURL = &v
		}
		out = append(out, src)
	}
	return out, nil
}
