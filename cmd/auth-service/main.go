// cmd/auth-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gomsle/internal/accounts"
	"gomsle/internal/apps"
	"gomsle/internal/identity"
	"gomsle/internal/mailer"
	"gomsle/internal/oauth"
	"gomsle/internal/token"
	"gomsle/pkg/config"
	"gomsle/pkg/db"
	"gomsle/pkg/logger"
	"gomsle/pkg/middleware"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)

	// 2. Connect backing stores (both optional; in-memory fallbacks for dev).
	dbPool := db.MustConnect(cfg, appLog)
	rdb := db.MustRedis(cfg, appLog)

	// 3. Stores: Postgres-backed when a pool is present, in-memory otherwise.
	var (
		accountStore  accounts.Store
		appStore      apps.Store
		identityStore identity.Store
	)
	if dbPool != nil {
		ctx := context.Background()
		if err := accounts.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("accounts schema", "err", err)
		}
		if err := apps.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("apps schema", "err", err)
		}
		if err := identity.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("identity schema", "err", err)
		}
		accountStore = accounts.NewPostgresStore(dbPool, appLog)
		appStore = apps.NewPostgresStore(dbPool, appLog)
		identityStore = identity.NewPostgresStore(dbPool, appLog)
	} else {
		accountStore = accounts.NewMemoryStore()
		appStore = apps.NewMemoryStore()
		identityStore = identity.NewMemoryStore()
	}

	var grants oauth.GrantStore
	if rdb != nil {
		grants = oauth.NewRedisGrantStore(rdb)
	} else {
		grants = oauth.NewMemoryGrantStore()
	}

	// 4. Outbound mail: real SMTP when configured, log-only in dev.
	var mail mailer.Sender
	if cfg.SMTPAddr != "" {
		mail = mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, appLog)
	} else {
		mail = mailer.NewLogSender(appLog)
	}

	// 5. Services.
	signer, err := token.NewHS256Signer(cfg.Issuer, cfg.SigningKey)
	if err != nil {
		appLog.Fatalw("signer", "err", err)
	}
	accountSvc := accounts.NewService(accountStore, mail, cfg.InvitationTTL, appLog)
	appSvc := apps.NewService(appStore, accountSvc, appLog)
	identitySvc := identity.NewService(identityStore, mail, signer, grants, cfg.SessionTTL, appLog)
	engine := oauth.NewEngine(appSvc, grants, signer, cfg.CodeTTL, cfg.AccessTokenTTL, cfg.IDTokenTTL, cfg.RefreshTokenTTL, appLog)

	// 6. HTTP router and middlewares.
	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recover(appLog))
	router.Use(middleware.Tracing(cfg))
	router.Use(middleware.Session(identitySvc.VerifySession))

	// 7. Basic operational endpoints.
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	// 8. Domain routes. Account and application management requires an
	// authenticated session; identity and protocol endpoints do not.
	identity.RegisterRoutes(router, identitySvc, appLog)
	oauth.RegisterRoutes(router, cfg, engine, identitySvc, appLog)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		accounts.RegisterRoutes(r, accountSvc, appLog)
		apps.RegisterRoutes(r, appSvc, appLog)
	})

	// 9. Start HTTP server asynchronously.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		appLog.Infow("auth-service listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 10. Wait for termination signal, then graceful shutdown.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	fmt.Println("auth-service stopped")
}
