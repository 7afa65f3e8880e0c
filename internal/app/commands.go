package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"landdev/internal/adapters/observability"
	"landdev/internal/domain"
)

type IngestionService struct {
	scraper domain.ScraperClient
	repo    domain.ReviewRepository
	cache   domain.Cache
	workers int
}

func NewIngestionService(s domain.ScraperClient, r domain.ReviewRepository, cache domain.Cache, workers int) *IngestionService {
	if workers <= 0 {
		workers = 1
	}
	return &IngestionService{scraper: s, repo: r, cache: cache, workers: workers}
}

// IngestBatch normalizes and inserts each review. Reviews that collide with the
// ingestion uniqueness key are counted as skipped; any other failure aborts the
// batch and is returned without counts.
func (s *IngestionService) IngestBatch(ctx context.Context, batch []domain.RawReview) (domain.IngestResult, error) {
	if len(batch) == 0 {
		return domain.IngestResult{}, domain.Invalid("reviews must be a non-empty array")
	}
	for i, r := range batch {
		if strings.TrimSpace(r.PropertyName) == "" {
			return domain.IngestResult{}, domain.Invalid("reviews[%d]: property_name is required", i)
		}
	}

	batchID := uuid.NewString()
	var inserted, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range batch {
		rv := normalizeReview(batch[i])
		g.Go(func() error {
			ok, err := s.repo.InsertIfAbsent(gctx, rv)
			if err != nil {
				return fmt.Errorf("insert review for %q: %w", rv.PropertyName, err)
			}
			if ok {
				inserted.Add(1)
				observability.ObserveIngest("inserted")
			} else {
				skipped.Add(1)
				observability.ObserveIngest("skipped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("batch", batchID).Int("total", len(batch)).Msg("review batch aborted")
		return domain.IngestResult{}, err
	}

	if s.cache != nil && inserted.Load() > 0 {
		invalidateReviews(ctx, s.cache)
	}

	res := domain.IngestResult{Inserted: int(inserted.Load()), Skipped: int(skipped.Load()), Total: len(batch)}
	log.Info().Str("batch", batchID).
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Int("total", res.Total).
		Msg("review batch ingested")
	return res, nil
}

// IngestSource pulls one property's reviews from the scraper and ingests them.
// A source the scraper does not know, or refuses, is logged and skipped.
func (s *IngestionService) IngestSource(ctx context.Context, src domain.ReviewSource) (domain.IngestResult, error) {
	payload, err := s.scraper.GetReviews(ctx, src)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			log.Warn().Str("property", src.PropertyName).Msg("scraper has no reviews for property")
			return domain.IngestResult{}, nil
		case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
			log.Warn().Str("property", src.PropertyName).Msg("scraper refused property")
			return domain.IngestResult{}, nil
		}
		return domain.IngestResult{}, err
	}

	batch := mapReviews(src, payload)
	if len(batch) == 0 {
		return domain.IngestResult{}, nil
	}
	return s.IngestBatch(ctx, batch)
}

// reviewsGenKey holds the current review-list generation. Every cached list
// key embeds it, so replacing it drops all lists at once regardless of
// property or limit.
const reviewsGenKey = "reviews:gen"

func invalidateReviews(ctx context.Context, c domain.Cache) {
	if err := c.Set(ctx, reviewsGenKey, uuid.NewString(), 0); err != nil {
		log.Warn().Err(err).Msg("review cache invalidation failed")
	}
}

// reviewsKey returns the list key under the current generation. It reports
// false when the generation cannot be read, in which case callers bypass the cache.
func reviewsKey(ctx context.Context, c domain.Cache, property string, limit int) (string, bool) {
	var gen string
	ok, err := c.Get(ctx, reviewsGenKey, &gen)
	if err != nil {
		return "", false
	}
	if !ok || gen == "" {
		gen = uuid.NewString()
		if err := c.Set(ctx, reviewsGenKey, gen, 0); err != nil {
			return "", false
		}
	}
	if property == "" {
		property = "*"
	}
	return fmt.Sprintf("reviews:%s:%s:%d", gen, strings.ToLower(property), limit), true
}
