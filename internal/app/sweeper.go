package app

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/booking_service/internal/service"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Sweeper управляет фоновой задачей retention: периодически удаляет слоты
// за пределами окна хранения и отменённые брони вместе с ними
type Sweeper struct {
	allocator *service.AllocatorService
	bookings  *service.BookingService
	interval  time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
}

// NewSweeper создаёт новый фоновый подметальщик
func NewSweeper(allocator *service.AllocatorService, bookings *service.BookingService, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		allocator: allocator,
		bookings:  bookings,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start запускает фоновую задачу
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting retention sweeper",
		zap.Duration("interval", s.interval))

	go s.runSweepTask(ctx)
}

// Stop останавливает фоновую задачу
func (s *Sweeper) Stop() {
	s.logger.Info("Stopping retention sweeper")
	close(s.stopChan)
}

// runSweepTask периодически запускает уборку. Первый проход сразу при старте.
func (s *Sweeper) runSweepTask(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Retention sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Retention sweep task cancelled")
			return
		}
	}
}

// sweep выполняет один проход уборки. Оба удаления идемпотентны, поэтому
// преходящие сбои хранилища перезапускаются с backoff; всё остальное
// (в т.ч. отмена контекста) не повторяется.
func (s *Sweeper) sweep(ctx context.Context) {
	s.logger.Info("Starting retention sweep")

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := s.allocator.Cleanup(ctx); err != nil {
			return markRetryable(err)
		}
		if _, err := s.bookings.PurgeCancelled(ctx); err != nil {
			return markRetryable(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Retention sweep failed", zap.Error(err))
		return
	}

	s.logger.Info("Retention sweep completed")
}

func markRetryable(err error) error {
	var transient *service.TransientStoreError
	if errors.As(err, &transient) {
		return retry.RetryableError(err)
	}
	return err
}
