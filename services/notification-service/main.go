package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"participium/pkg/authz"
	"participium/pkg/config"
	"participium/pkg/database"
	"participium/pkg/logger"
	"participium/pkg/middleware"
	"participium/pkg/queue"
	"participium/pkg/store"
	"participium/services/notification-service/hub"
)

const queueName = "notifications"

func main() {
	cfg := config.Load()
	l := logger.New(cfg.Env, "notification-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.PostgresDSN, false)
	if err != nil {
		l.Fatal().Err(err).Msg("postgres connect failed")
	}
	guard := authz.NewGuard(store.NewDirectory(db))

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AMQPURI)
	if err != nil {
		l.Fatal().Err(err).Msg("rabbitmq connect failed")
	}
	defer conn.Close()
	defer ch.Close()
	q, err := queue.DeclareNotificationQueue(ch, queueName)
	if err != nil {
		l.Fatal().Err(err).Msg("queue declare failed")
	}
	l.Info().Str("queue", q.Name).Msg("listening to notifications queue")

	middleware.RegisterMetrics()

	h := hub.New(l.With().Str("component", "hub").Logger())
	go h.Run(ctx)
	go func() {
		err := queue.Consume(ctx, ch, q.Name, l, h.Broadcast)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Fatal().Err(err).Msg("consumer stopped")
		}
	}()

	// No write timeout: subscribe streams stay open.
	srv := &http.Server{
		Addr: ":" + cfg.NotificationPort,
		Handler: hub.NewRouter(l, hub.RouterConfig{
			JWTSecret:   []byte(cfg.JWTSecret),
			CORSOrigins: cfg.CORSOrigins,
		}, h, guard),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		l.Info().Str("addr", srv.Addr).Msg("notification service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	l.Info().Msg("shutdown complete")
}
