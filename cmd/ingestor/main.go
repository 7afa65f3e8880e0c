package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"landdev/internal/adapters/observability"
	redisad "landdev/internal/adapters/redis"
	"landdev/internal/adapters/scraper"
	"landdev/internal/app"
	"landdev/internal/domain"
	"landdev/internal/shared"
	mysqlrepo "landdev/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "ingestor")

	log.Info().
		Str("base", cfg.ScraperBase).
		Int("workers", cfg.Workers).
		Bool("dedupe", cfg.DedupeAfterIngest).
		Msg("ingestor starting")

	entities, err := shared.LoadRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("entity registry invalid")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpen)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db, cfg.DBTimeout)

	client, err := scraper.New(cfg.ScraperBase, cfg.ScraperKey, cfg.ScraperRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scraper client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	q := app.NewQueryService(repo, repo, cache, entities, cfg.CacheTTL)
	ing := app.NewIngestionService(client, repo, cache, cfg.Workers)

	sources, err := q.ReviewSources(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("loading review sources failed")
	}
	log.Info().Int("sources", len(sources)).Msg("review sources loaded")

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup
	var inserted, skipped, failed atomic.Int64

	for _, src := range sources {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("ingestion interrupted")
			break
		}

		wg.Add(1)
		go func(src domain.ReviewSource) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := ing.IngestSource(ctx, src)
			if err != nil {
				failed.Add(1)
				log.Warn().Str("property", src.PropertyName).Err(err).Msg("ingest failed")
				return
			}
			inserted.Add(int64(res.Inserted))
			skipped.Add(int64(res.Skipped))
			log.Info().Str("property", src.PropertyName).
				Int("inserted", res.Inserted).Int("skipped", res.Skipped).
				Msg("ingest ok")
		}(src)
	}

	wg.Wait()
	log.Info().
		Int64("inserted", inserted.Load()).
		Int64("skipped", skipped.Load()).
		Int64("failed", failed.Load()).
		Msg("ingestion completed")

	// dedupe runs only after every insert above has finished
	if cfg.DedupeAfterIngest && ctx.Err() == nil {
		res, err := app.NewMaintenanceService(repo, cache).Dedupe(ctx, false)
		if err != nil {
			log.Error().Err(err).Msg("dedupe failed")
			return
		}
		log.Info().Int64("deleted", res.Deleted).Msg("dedupe completed")
	}
}
