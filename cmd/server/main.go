// Command server runs the duffel synchronization service: the REST API for
// list mutations and the websocket change feed that keeps collaborators'
// views converged.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"duffel/internal/audit"
	"duffel/internal/auth"
	"duffel/internal/auth/device"
	"duffel/internal/hub"
	"duffel/internal/platform/config"
	"duffel/internal/platform/httpserver"
	"duffel/internal/platform/logger"
	"duffel/internal/platform/metrics"
	platformredis "duffel/internal/platform/redis"
	"duffel/internal/service"
	"duffel/internal/store"
	httptransport "duffel/internal/transport/http"
	"duffel/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run wires dependencies bottom-up (store, ACL, journal, hub, service,
// transports) and blocks until shutdown. Every backing system is optional:
// without Postgres/Redis/Kafka the server runs entirely in process, which
// is the development and test mode.
func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var st store.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres pool", "error", err)
			return err
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure schema", "error", err)
			return err
		}
		st = pg
		log.Info("store ready", "backend", "postgres")
	} else {
		st = store.NewMemory()
		log.Info("store ready", "backend", "memory")
	}

	var acl auth.ACL
	switch {
	case cfg.OpenAccess:
		acl = auth.Open{}
		log.Warn("open access enabled, every actor may join every list")
	case cfg.Redis.URL != "":
		rdb, err := platformredis.Open(ctx, cfg.Redis)
		if err != nil {
			log.Error("open redis", "error", err)
			return err
		}
		defer rdb.Close()
		acl = auth.NewRedisACL(rdb.Client)
		log.Info("acl ready", "backend", "redis")
	default:
		acl = auth.NewMemoryACL()
		log.Info("acl ready", "backend", "memory")
	}

	var journalStore audit.Store
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("open journal db", "error", err)
			return err
		}
		defer db.Close()

		pgJournal := audit.NewPostgresStore(db)
		if err := pgJournal.EnsureSchema(ctx); err != nil {
			log.Error("ensure journal schema", "error", err)
			return err
		}
		journalStore = pgJournal
	} else {
		journalStore = audit.NewInMemoryStore()
	}

	var opts []audit.PublisherOption
	if cfg.JournalBuffer > 0 {
		opts = append(opts, audit.WithAsyncBuffer(cfg.JournalBuffer))
	}
	journal := audit.NewPublisher(log, journalStore, m, opts...)
	defer journal.Close()

	var sink audit.Emitter = journal
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(ctx, log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("open kafka export", "error", err)
			return err
		}
		defer kafka.Close()
		sink = audit.Fanout{journal, kafka}
		log.Info("change export ready", "topic", cfg.Kafka.Topic, "brokers", len(cfg.Kafka.Brokers))
	}

	h := hub.New(log, acl, st, m, hub.WithQueueSize(cfg.HubQueueSize))
	svc := service.New(log, st, h, acl, service.WithJournal(sink))
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	fingerprints := device.NewService(cfg.Fingerprints)

	wsHandler := ws.NewHandler(log, h, tokens, fingerprints)
	handler := httptransport.NewHandler(log, svc, journal, tokens)
	router := httptransport.NewRouter(handler, wsHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m, log)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting duffel", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
