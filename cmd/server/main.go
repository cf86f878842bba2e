package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	gatehandler "tokengate/internal/gate/handler"
	gatemetrics "tokengate/internal/gate/metrics"
	gateservice "tokengate/internal/gate/service"
	gatestore "tokengate/internal/gate/store"
	identityhandler "tokengate/internal/identity/handler"
	identitymetrics "tokengate/internal/identity/metrics"
	identityservice "tokengate/internal/identity/service"
	identitystore "tokengate/internal/identity/store"
	messagehandler "tokengate/internal/message/handler"
	messagemetrics "tokengate/internal/message/metrics"
	messageservice "tokengate/internal/message/service"
	messagestore "tokengate/internal/message/store"
	"tokengate/internal/oracle"
	"tokengate/internal/platform/config"
	"tokengate/internal/platform/httpserver"
	"tokengate/internal/platform/logger"
	"tokengate/internal/platform/middleware"
	"tokengate/internal/platform/postgres"
	"tokengate/internal/platform/redis"
	"tokengate/internal/signature"
	httptransport "tokengate/internal/transport/http"
	"tokengate/pkg/platform/audit"
	"tokengate/pkg/platform/tx"
)

// main wires the three registries, their stores, and the server lifecycle.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Without Postgres every store is in-memory and a single serial runner
	// stands in for real transactions, mirroring the one-writer ledger the
	// registries model.
	var (
		runner        tx.Runner
		gateStore     gateservice.Store
		identityStore identityservice.Store
		messageStore  messageservice.Store
	)
	if db != nil {
		gatePG := gatestore.NewPostgres(db)
		identityPG := identitystore.NewPostgres(db)
		messagePG := messagestore.NewPostgres(db)
		for _, ensure := range []func(context.Context) error{
			gatePG.EnsureSchema, identityPG.EnsureSchema, messagePG.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				log.Error("schema migration failed", "error", err)
				os.Exit(1)
			}
		}
		runner = tx.NewSQLRunner(db)
		gateStore, identityStore, messageStore = gatePG, identityPG, messagePG
	} else {
		runner = tx.NewSerialRunner()
		gateStore = gatestore.NewMemory()
		identityStore = identitystore.NewMemory()
		messageStore = messagestore.NewMemory()
	}

	var balances oracle.Oracle = oracle.NewStatic()
	if redisClient != nil {
		balances = oracle.NewCached(balances, redisClient.Client, config.OracleCacheTTL)
	}

	publisher := audit.NewLogPublisher(log)
	verifier := signature.NewVerifier()

	gateSvc := gateservice.New(gateStore, balances, runner,
		gateservice.Config{MinCreateFee: cfg.MinCreateFee, MinJoinFee: cfg.MinJoinFee},
		gateservice.WithLogger(log),
		gateservice.WithAuditPublisher(publisher),
		gateservice.WithMetrics(gatemetrics.New()),
	)
	identitySvc := identityservice.New(identityStore, verifier, runner, cfg.RegistryName,
		identityservice.WithLogger(log),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithMetrics(identitymetrics.New()),
	)
	messageSvc := messageservice.New(messageStore, verifier, runner,
		messageservice.WithLogger(log),
		messageservice.WithAuditPublisher(publisher),
		messageservice.WithMetrics(messagemetrics.New()),
	)

	adminJWT := middleware.NewAdminValidator(cfg.AdminJWTKey)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Gate:     gatehandler.New(gateSvc, log, adminJWT),
		Identity: identityhandler.New(identitySvc, log),
		Message:  messagehandler.New(messageSvc, log),
		Gatherer: prometheus.DefaultGatherer,
		Checks:   healthChecks(db, redisClient),
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting tokengate", "addr", cfg.Addr, "postgres", db != nil, "redis", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func healthChecks(db *sql.DB, redisClient *redis.Client) []httptransport.HealthChecker {
	var checks []httptransport.HealthChecker
	if db != nil {
		checks = append(checks, pingChecker{db: db})
	}
	if redisClient != nil {
		checks = append(checks, redisClient)
	}
	return checks
}

type pingChecker struct {
	db *sql.DB
}

func (c pingChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
