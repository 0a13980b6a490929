package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/config"
	"tkfleet.io/internal/fleet"
	"tkfleet.io/internal/httpapi"
	"tkfleet.io/internal/location"
	"tkfleet.io/internal/obs"
	"tkfleet.io/internal/store/memory"
	"tkfleet.io/internal/store/pg"
	"tkfleet.io/internal/store/rdb"
)

var version = "0.1.0"

const janitorInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, cfg.StoreMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probe := httpapi.ReadyProbe{Checks: map[string]func(context.Context) error{}}

	var (
		store   fleet.Store
		refresh auth.RefreshTokenStore
		pgStore *pg.Store
	)
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe.Checks["postgres"] = pgStore.Ping
	} else {
		store = memory.New()
	}

	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer client.Close()
		refresh = rdb.NewRefreshTokens(client)
		probe.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	case pgStore != nil:
		tokens := pg.NewRefreshTokens(pgStore.DB())
		refresh = tokens
		go purgeRefreshTokens(ctx, tokens)
	default:
		refresh = memory.NewRefreshTokens()
	}

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), refresh,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	svc, err := fleet.NewService(store,
		fleet.WithIssuer(issuer),
		fleet.WithLockout(cfg.MaxFailedLogins, cfg.Lockout),
	)
	if err != nil {
		log.Fatalf("service: %v", err)
	}
	if cfg.Bootstrap() {
		bctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		root, err := svc.Bootstrap(bctx, cfg.BootstrapTenant, cfg.BootstrapUser, cfg.BootstrapPassword)
		cancel()
		if err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
		obs.Info("bootstrap_tenant_ready", map[string]any{"tenant_id": root.ID, "tenant": root.Name})
	}
	engine, err := location.NewEngine(store)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	// HTTP API
	api, err := httpapi.New(svc, engine, issuer,
		httpapi.WithReadiness(probe),
		httpapi.WithVersion(version),
		httpapi.WithStoreMode(cfg.StoreMode()),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
	)
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting", map[string]any{"version": version, "http_addr": srv.Addr, "store": cfg.StoreMode()})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(httpapi.UnaryLogging))
		httpapi.NewGRPCServer(probe, version).Register(grpcSrv)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		obs.Info("grpc_started", map[string]any{"grpc_addr": cfg.GRPCAddr})
	}

	<-ctx.Done()
	obs.Info("shutting_down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	obs.Info("stopped", nil)
}

// purgeRefreshTokens deletes long-expired refresh tokens until ctx ends.
func purgeRefreshTokens(ctx context.Context, tokens *pg.RefreshTokens) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.PurgeExpired(ctx, time.Now().UTC().Add(-24*time.Hour))
			if err != nil {
				obs.Error("refresh_purge_failed", err, nil)
				continue
			}
			if n > 0 {
				obs.Info("refresh_purged", map[string]any{"count": n})
			}
		}
	}
}
