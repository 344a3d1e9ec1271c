package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/solar-storefront/internal/cache"
	"github.com/flicky/solar-storefront/internal/config"
	"github.com/flicky/solar-storefront/internal/events"
	"github.com/flicky/solar-storefront/internal/handler"
	"github.com/flicky/solar-storefront/internal/mailer"
	"github.com/flicky/solar-storefront/internal/migrations"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
	"github.com/flicky/solar-storefront/internal/service"
	"github.com/flicky/solar-storefront/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	if cfg.DB.AutoMigrate {
		if err := migrations.Up(cfg.DB.MigrateDSN()); err != nil {
			log.Error("run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis, or in-process stores when disabled
	var (
		redisClient *redis.Client
		otpStore    cache.OTPStore
		seenEvents  cache.IdempotencyStore
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		otpStore = cache.NewRedisOTPStore(redisClient)
		seenEvents = cache.NewRedisIdempotencyStore(redisClient, "")
		log.Info("connected to Redis")
	} else {
		memStore := cache.NewMemoryOTPStore()
		go memStore.RunJanitor(ctx, time.Minute, log)
		otpStore = memStore
		seenEvents = cache.NewMemoryIdempotencyStore()
		log.Warn("redis disabled, using in-memory otp store")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	reviewRepo := repository.NewReviewRepository(dbPool)
	notificationRepo := repository.NewNotificationRepository(dbPool)

	// Notifications
	mail := mailer.New(cfg.Mail, log)
	hub := events.NewHub(cfg.Stream.ClientBuffer, log)
	defer hub.Close()
	notificationSvc := service.NewNotificationService(notificationRepo, hub, mail, log)

	// RabbitMQ, or direct delivery when disabled
	var (
		publisher          events.Publisher
		amqpConn           *amqp.Connection
		notificationWorker *worker.NotificationWorker
	)
	if cfg.RabbitMQ.Enabled {
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		consumeCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer consumeCh.Close()

		if err := worker.SetupRabbitMQ(consumeCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}

		publishCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer publishCh.Close()

		publisher = events.NewAMQPPublisher(publishCh)
		notificationWorker = worker.NewNotificationWorker(consumeCh, notificationSvc, seenEvents, log)
		log.Info("connected to RabbitMQ")
	} else {
		publisher = events.PublisherFunc(func(ctx context.Context, evt model.OrderEvent) error {
			return notificationSvc.HandleEvent(context.WithoutCancel(ctx), evt)
		})
		log.Warn("rabbitmq disabled, delivering order events in-process")
	}

	// Services
	otpSvc := service.NewOTPService(otpStore, mail, cfg.OTP, log)
	authSvc := service.NewAuthService(userRepo, otpSvc, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient)
	orderSvc := service.NewOrderService(orderRepo, productRepo, productSvc, publisher, log)
	paymentSvc := service.NewPaymentService(orderRepo, publisher, cfg.Payment.WebhookSecret, log)
	reviewSvc := service.NewReviewService(reviewRepo, orderRepo)

	if cfg.Admin.Email != "" {
		created, err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			log.Error("seed admin", "error", err)
			os.Exit(1)
		}
		if created {
			log.Info("admin account created", "email", cfg.Admin.Email)
		}
	}

	// Router
	if err := handler.RegisterValidators(); err != nil {
		log.Error("register validators", "error", err)
		os.Exit(1)
	}
	router := handler.NewRouter(handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Product:      handler.NewProductHandler(productSvc),
		Order:        handler.NewOrderHandler(orderSvc),
		Review:       handler.NewReviewHandler(reviewSvc),
		Payment:      handler.NewPaymentHandler(paymentSvc),
		Notification: handler.NewNotificationHandler(notificationSvc, hub, cfg.Stream.HeartbeatInterval),
		Health:       handler.NewHealthHandler(dbPool, redisClient, amqpConn),
	}, cfg.JWT.Secret, log)

	if notificationWorker != nil {
		if err := notificationWorker.Start(ctx); err != nil {
			log.Error("start notification worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	// Open event streams never finish on their own.
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if notificationWorker != nil {
		notificationWorker.Stop()
		time.Sleep(500 * time.Millisecond)
	}
	cancel()
	log.Info("server stopped")
}
