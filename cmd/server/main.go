package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/booking_service/internal/app"
	"github.com/Freeeeeet/booking_service/internal/config"
	"github.com/Freeeeeet/booking_service/internal/repository"
	"github.com/Freeeeeet/booking_service/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting booking service",
		zap.String("environment", cfg.Environment),
		zap.String("timezone", cfg.Timezone),
		zap.String("working_hours", cfg.WorkStart+"-"+cfg.WorkEnd),
		zap.Int("slot_duration_min", cfg.SlotDurationMin),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	// База может подниматься дольше сервиса - пингуем с backoff
	backoff := retry.WithMaxDuration(30*time.Second, retry.NewFibonacci(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("Database not ready yet", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("Database is unreachable", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	slotRepo := repository.NewSlotRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	requesterRepo := repository.NewRequesterRepository(pool)

	allocatorCfg := service.Config{
		WorkStart:          cfg.WorkStart,
		WorkEnd:            cfg.WorkEnd,
		SlotDuration:       cfg.SlotDurationMin,
		AdvanceNoticeHours: cfg.AdvanceNoticeHours,
		AllowWeekends:      cfg.AllowWeekends,
		RetentionDays:      cfg.RetentionDays,
		Location:           cfg.Location(),
	}

	allocator := service.NewAllocatorService(slotRepo, allocatorCfg, logger)
	bookings := service.NewBookingService(allocator, reservationRepo, requesterRepo, allocatorCfg, logger)

	sweeper := app.NewSweeper(allocator, bookings,
		time.Duration(cfg.CleanupIntervalHours)*time.Hour, logger)
	sweeper.Start(ctx)

	logger.Info("Booking service is up")

	<-ctx.Done()

	logger.Info("Shutting down")
	sweeper.Stop()
}
