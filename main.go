package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paygateway/src/cache"
	"paygateway/src/configuration"
	"paygateway/src/configuration/database/postgres"
	redisconn "paygateway/src/configuration/database/redis"
	"paygateway/src/domain"
	"paygateway/src/gate"
	"paygateway/src/health"
	"paygateway/src/processor"
	"paygateway/src/queue"
	"paygateway/src/repository"
	"paygateway/src/service"
	"paygateway/src/worker"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	godotenv.Load()
	cfg := configuration.Load()

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisconn.NewRedisConnection(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	db, err := connectWithRetry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	sharedCache := cache.NewRedisCache(redisClient)
	repo := repository.NewPostgresPaymentRepository(db)
	idempotencyGate := gate.New(sharedCache, cfg.IdempotencyTTL)

	clients := processor.Registry{
		domain.ProcessorDefault:  processor.NewHTTPClient(domain.ProcessorDefault, cfg.ProcessorDefaultURL),
		domain.ProcessorFallback: processor.NewHTTPClient(domain.ProcessorFallback, cfg.ProcessorFallbackURL),
	}
	prober := health.NewProber(clients, cfg.ProbeTimeout, logger.With(zap.String("component", "prober")))
	healthCache := health.NewCache(prober, cfg.HealthCacheTTL, logger.With(zap.String("component", "health_cache")))
	selector := health.NewSelector(healthCache)

	taskQueue := queue.New(cfg.QueueCapacity, logger.With(zap.String("component", "queue")))
	executor := worker.NewExecutor(repo, sharedCache, clients, selector, healthCache, worker.Config{
		SubmitTimeout:     cfg.SubmitTimeout,
		RetryBackoff:      cfg.RetryBackoff,
		PaymentCacheTTL:   cfg.PaymentCacheTTL,
		FailureStreakSize: cfg.FailureStreakSize,
	}, logger.With(zap.String("component", "executor")))

	payments := service.NewPaymentService(repo, sharedCache, idempotencyGate, taskQueue, executor, service.Config{
		PaymentCacheTTL: cfg.PaymentCacheTTL,
	}, logger.With(zap.String("component", "payments")))

	taskQueue.Start(ctx, cfg.WorkerCount)

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Post("/payments", func(c fiber.Ctx) error {
		var req domain.PaymentRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		correlationID, err := uuid.Parse(req.CorrelationID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid correlation id"})
		}

		payment, err := payments.Admit(c.RequestCtx(), correlationID, req.Amount)
		switch {
		case errors.Is(err, domain.ErrDuplicateCorrelationID):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":         "payment with the same correlation id already exists",
				"correlationId": req.CorrelationID,
			})
		case errors.Is(err, domain.ErrInfrastructure):
			logger.Error("admission failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to accept payment"})
		case err != nil:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"paymentId":     payment.ID,
			"status":        payment.Status,
			"correlationId": payment.CorrelationID,
		})
	})

	app.Get("/payments-summary", func(c fiber.Ctx) error {
		from, to, err := parseWindow(c.Query("from"), c.Query("to"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		summary, err := payments.Summary(c.RequestCtx(), from, to)
		if err != nil {
			logger.Error("summary failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute summary"})
		}
		return c.Status(http.StatusOK).JSON(summary)
	})

	app.Get("/payments/:id", func(c fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payment id"})
		}
		payment, err := payments.Lookup(c.RequestCtx(), id)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
		}
		if err != nil {
			logger.Error("lookup failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load payment"})
		}
		return c.Status(http.StatusOK).JSON(payment)
	})

	app.Post("/purge-payments", func(c fiber.Ctx) error {
		if err := payments.Purge(c.RequestCtx()); err != nil {
			logger.Error("purge failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to purge payments"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		app.ShutdownWithTimeout(5 * time.Second)
	}()

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := app.Listen(cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	taskQueue.Wait()
}

func connectWithRetry(ctx context.Context, cfg *configuration.Config, logger *zap.Logger) (*sql.DB, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := postgres.NewPostgresConnection(ctx, cfg.DBConnectionString())
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Warn("database not ready, retrying",
			zap.Int("attempt", i+1), zap.Int("max", maxRetries), zap.Error(err))
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr == "" {
		from = time.Time{}
	} else {
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from datetime")
		}
	}
	if toStr == "" {
		to = time.Now().UTC()
	} else {
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to datetime")
		}
	}
	return from, to, nil
}

func runMigrations(cfg *configuration.Config) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.DBMigrationConnectionString())
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
