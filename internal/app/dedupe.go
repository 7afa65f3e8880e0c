package app

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"landdev/internal/adapters/observability"
	"landdev/internal/domain"
)

// MaintenanceService runs destructive review maintenance. Callers must not run
// it while ingestion is in flight against the same rows.
type MaintenanceService struct {
	repo  domain.ReviewRepository
	cache domain.Cache
}

func NewMaintenanceService(r domain.ReviewRepository, c domain.Cache) *MaintenanceService {
	return &MaintenanceService{repo: r, cache: c}
}

// Dedupe keeps the best review per (property, reviewer) identity and deletes the
// rest. With dryRun it only reports the ids that would be deleted.
func (s *MaintenanceService) Dedupe(ctx context.Context, dryRun bool) (domain.DedupeResult, error) {
	if dryRun {
		rows, err := s.repo.ListDedupeCandidates(ctx)
		if err != nil {
			return domain.DedupeResult{}, err
		}
		ids := RankDuplicates(rows)
		return domain.DedupeResult{Deleted: int64(len(ids)), DryRun: true, IDs: ids}, nil
	}

	n, err := s.repo.RankAndDeleteDuplicates(ctx)
	if err != nil {
		return domain.DedupeResult{}, err
	}
	observability.ObserveDedupe(n)
	if n > 0 && s.cache != nil {
		invalidateReviews(ctx, s.cache)
	}
	log.Info().Int64("deleted", n).Msg("review dedupe pass finished")
	return domain.DedupeResult{Deleted: n}, nil
}

// RankDuplicates groups reviews by DedupeKey and returns the ids of every row
// except the best one per group, in ascending order. Ranking: latest scrape,
// latest review date, latest creation, highest id; missing times rank oldest.
func RankDuplicates(rows []domain.StoredReview) []int64 {
	groups := map[string][]domain.StoredReview{}
	for _, r := range rows {
		k := domain.DedupeKey(r.PropertyName, r.ReviewerName)
		groups[k] = append(groups[k], r)
	}

	var losers []int64
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		sort.Slice(g, func(i, j int) bool { return better(g[i], g[j]) })
		for _, r := range g[1:] {
			losers = append(losers, r.ID)
		}
	}
	sort.Slice(losers, func(i, j int) bool { return losers[i] < losers[j] })
	return losers
}

func better(a, b domain.StoredReview) bool {
	for _, pair := range [][2]*time.Time{
		{a.ScrapedAt, b.ScrapedAt},
		{a.ReviewDate, b.ReviewDate},
		{a.CreatedAt, b.CreatedAt},
	} {
		ta, tb := orOldest(pair[0]), orOldest(pair[1])
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	}
	return a.ID > b.ID
}

var oldest = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

func orOldest(t *time.Time) time.Time {
	if t == nil {
		return oldest
	}
	return *t
}
