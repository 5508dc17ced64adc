package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"participium/pkg/authz"
	"participium/pkg/broadcast"
	"participium/pkg/config"
	"participium/pkg/database"
	"participium/pkg/lifecycle"
	"participium/pkg/logger"
	"participium/pkg/messaging"
	"participium/pkg/middleware"
	"participium/pkg/queue"
	"participium/pkg/response"
	"participium/pkg/security"
	"participium/pkg/storage"
	"participium/pkg/store"
	"participium/services/report-service/handlers"
)

func main() {
	cfg := config.Load()
	l := logger.New(cfg.Env, "report-service")
	ctx := context.Background()

	db, err := database.ConnectPostgres(cfg.PostgresDSN, cfg.Env == "dev")
	if err != nil {
		l.Fatal().Err(err).Msg("postgres connect failed")
	}
	if err := database.Migrate(db); err != nil {
		l.Fatal().Err(err).Msg("migration failed")
	}

	mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		l.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer mongoDB.Client().Disconnect(context.Background())

	key, err := security.KeyFrom(cfg.AnonEncKey, cfg.JWTSecret)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid anonymous reporter key")
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		l.Fatal().Err(err).Msg("sealer init failed")
	}

	reports := store.NewReportStore(db, sealer)
	directory := store.NewDirectory(db)
	conversations := store.NewConversationStore(mongoDB)
	if err := conversations.EnsureIndexes(ctx); err != nil {
		l.Fatal().Err(err).Msg("conversation indexes failed")
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AMQPURI)
	if err != nil {
		l.Fatal().Err(err).Msg("rabbitmq connect failed")
	}
	defer conn.Close()
	defer ch.Close()
	publisher, err := queue.NewPublisher(ch)
	if err != nil {
		l.Fatal().Err(err).Msg("exchange declare failed")
	}
	l.Info().Msg("connected to rabbitmq")

	broker, err := broadcast.NewBroker(cfg.RedisURL)
	if err != nil {
		l.Fatal().Err(err).Msg("redis connect failed")
	}
	defer broker.Close()

	photos, err := storage.NewPhotoStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		l.Fatal().Err(err).Msg("minio client failed")
	}
	if err := photos.EnsureBucket(ctx); err != nil {
		l.Fatal().Err(err).Str("bucket", cfg.MinioBucket).Msg("minio bucket failed")
	}

	machine := lifecycle.NewMachine(reports, directory,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithLogger(l.With().Str("component", "lifecycle").Logger()),
	)
	msgService := messaging.NewService(conversations, messaging.NewGate(reports), broker, l.With().Str("component", "messaging").Logger())

	middleware.RegisterMetrics()

	h := handlers.NewReportHTTP(handlers.Deps{
		Reports:   reports,
		Machine:   machine,
		Guard:     authz.NewGuard(directory),
		Messaging: msgService,
		Photos:    photos,
		Events:    publisher,
		Subscriber: handlers.SubscriberFunc(func(ctx context.Context, conversationID string) (handlers.MessageStream, error) {
			return broker.Subscribe(ctx, conversationID)
		}),
		ReviewRole: cfg.ReviewRoleName,
	})
	r := handlers.NewRouter(l, handlers.RouterConfig{
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	}, h, healthHandler(db, mongoDB.Client(), broker))

	// No write timeout: conversation streams stay open.
	srv := &http.Server{
		Addr:              ":" + cfg.ReportPort,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		l.Info().Str("addr", srv.Addr).Str("review_role", cfg.ReviewRoleName).Msg("report service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	l.Info().Msg("shutdown complete")
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(db *gorm.DB, client *mongo.Client, broker pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "mongo": "ok", "redis": "ok"}
		healthy := true
		if err := database.Ping(db); err != nil {
			checks["postgres"], healthy = err.Error(), false
		}
		if err := client.Ping(ctx, nil); err != nil {
			checks["mongo"], healthy = err.Error(), false
		}
		if err := broker.Ping(ctx); err != nil {
			checks["redis"], healthy = err.Error(), false
		}
		if !healthy {
			zerolog.Ctx(r.Context()).Warn().Interface("checks", checks).Msg("health check failed")
			response.JSON(w, http.StatusServiceUnavailable, response.APIResponse{Status: "error", Message: "unhealthy", Data: checks})
			return
		}
		response.Success(w, http.StatusOK, "report service healthy", checks)
	}
}
