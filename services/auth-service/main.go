package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"participium/pkg/authz"
	"participium/pkg/config"
	"participium/pkg/database"
	"participium/pkg/logger"
	"participium/pkg/middleware"
	"participium/pkg/response"
	"participium/pkg/store"
	"participium/services/auth-service/accounts"
)

const loginAttemptsPerMinute = 10

func main() {
	cfg := config.Load()
	l := logger.New(cfg.Env, "auth-service")

	db, err := database.ConnectPostgres(cfg.PostgresDSN, cfg.Env == "dev")
	if err != nil {
		l.Fatal().Err(err).Msg("postgres connect failed")
	}
	l.Info().Msg("running auto migration")
	if err := database.Migrate(db); err != nil {
		l.Fatal().Err(err).Msg("migration failed")
	}

	users := store.NewUserStore(db)
	guard := authz.NewGuard(store.NewDirectory(db))
	svc := accounts.NewService(users, guard, []byte(cfg.JWTSecret), cfg.TokenTTL)

	middleware.RegisterMetrics()
	r := accounts.NewRouter(l, accounts.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigins:    cfg.CORSOrigins,
		LoginRateLimit: loginAttemptsPerMinute,
	}, accounts.NewAuthHTTP(svc), healthHandler(db))

	srv := &http.Server{
		Addr:              ":" + cfg.AuthPort,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		l.Info().Str("addr", srv.Addr).Msg("auth service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	l.Info().Msg("shutdown complete")
}

func healthHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "UP", "service": "auth-service", "database": "connected"}
		if err := database.Ping(db); err != nil {
			health["status"] = "DOWN"
			health["database"] = "disconnected"
			response.JSON(w, http.StatusServiceUnavailable, health)
			return
		}
		response.JSON(w, http.StatusOK, health)
	}
}
