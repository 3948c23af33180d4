package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	badgehandler "acclaim/internal/badge/handler"
	badgemetrics "acclaim/internal/badge/metrics"
	badgemodels "acclaim/internal/badge/models"
	badgestore "acclaim/internal/badge/store"
	badgesvc "acclaim/internal/badge/service"
	"acclaim/internal/competency"
	"acclaim/internal/evidence"
	"acclaim/internal/platform/config"
	"acclaim/internal/platform/httpserver"
	"acclaim/internal/platform/logger"
	"acclaim/internal/platform/metrics"
	"acclaim/internal/platform/middleware"
	platformredis "acclaim/internal/platform/redis"
	"acclaim/internal/process"
	rechandler "acclaim/internal/recognition/handler"
	recmetrics "acclaim/internal/recognition/metrics"
	recsvc "acclaim/internal/recognition/service"
	evaluationstore "acclaim/internal/recognition/store/evaluation"
	evidencestore "acclaim/internal/recognition/store/evidence"
	requeststore "acclaim/internal/recognition/store/request"
	id "acclaim/pkg/domain"
	"acclaim/pkg/platform/lock"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	// A broken level table is a deploy error, not a request error.
	if err := badgemodels.ValidateLevelTable(); err != nil {
		return fmt.Errorf("certification level table: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.New()
	recognitionMetrics := recmetrics.New()
	badgeMetrics := badgemetrics.New()

	var (
		requests    recsvc.RequestStore
		evaluations recsvc.EvaluationStore
		evidenceRef recsvc.EvidenceRowStore
		badges      badgesvc.BadgeStore
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		requestStore := requeststore.NewPostgres(db)
		evaluationStore := evaluationstore.NewPostgres(db)
		evidenceStore := evidencestore.NewPostgres(db)
		badgeStore := badgestore.NewPostgres(db)
		for _, ensure := range []func(context.Context) error{
			requestStore.EnsureSchema,
			evaluationStore.EnsureSchema,
			evidenceStore.EnsureSchema,
			badgeStore.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}
		requests = requestStore
		evaluations = evaluationStore
		evidenceRef = evidenceStore
		badges = badgeStore
		log.Info("storage: postgres")
	} else {
		requests = requeststore.NewInMemory()
		evaluations = evaluationstore.NewInMemory()
		evidenceRef = evidencestore.NewInMemory()
		badges = badgestore.NewInMemory()
		log.Info("storage: in-memory")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var locks lock.Keyed
	if redisClient != nil {
		locks = lock.NewRedis(redisClient.Client, cfg.AttributionTTL)
		log.Info("attribution locks: redis")
	} else {
		locks = lock.NewLocal()
		log.Info("attribution locks: local")
	}

	directory := buildDirectory(cfg, log)
	var catalog recsvc.CompetencyDirectory = directory
	if redisClient != nil {
		catalog = competency.NewCached(directory, redisClient.Client, cfg.CatalogTTL, log)
	}

	var bridge process.Bridge
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaBridge, err := process.NewKafkaBridge(cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("connect process bridge: %w", err)
		}
		defer kafkaBridge.Close()
		bridge = kafkaBridge
		log.Info("process bridge: kafka", "topic", cfg.Kafka.Topic)
	} else {
		bridge = process.Noop{}
		log.Info("process bridge: noop")
	}

	badgeService := badgesvc.New(badges, locks, log, badgeMetrics)
	recognitionService := recsvc.New(
		requests, evaluations, evidenceRef,
		evidence.NewInMemory(), catalog, badgeService,
		bridge, log, recognitionMetrics,
	)

	actor := middleware.Actor(cfg.ActorHeader, cfg.JWTSigningKey, log)
	router := chi.NewRouter()
	rechandler.New(recognitionService, log, httpMetrics, actor).Register(router)
	badgehandler.New(badgeService, log, httpMetrics, actor).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting acclaim", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildDirectory seeds the static competency directory from configuration.
// Entries that do not parse are logged and skipped rather than failing boot.
func buildDirectory(cfg config.Server, log *slog.Logger) *competency.InMemory {
	directory := competency.NewInMemory()
	for raw, classification := range cfg.Catalog {
		competencyID, err := id.ParseCompetencyID(raw)
		if err != nil {
			log.Warn("skipping malformed catalog entry", "competency_id", raw)
			continue
		}
		directory.Set(competencyID, badgemodels.DomainClassification(classification))
	}
	return directory
}
