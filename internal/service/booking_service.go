package service

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository"
	"github.com/Freeeeeet/booking_service/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotAllocator - часть аллокатора, нужная workflow бронирования.
// Workflow сам статус слота не трогает никогда, только через эти вызовы.
type SlotAllocator interface {
	Reserve(ctx context.Context, date, timeOfDay, holder string, metadata map[string]string) (*model.Slot, error)
	Release(ctx context.Context, slotID uuid.UUID, holder *string) (*model.Slot, error)
	Reschedule(ctx context.Context, currentSlotID uuid.UUID, newDate, newTimeOfDay string, holder *string) (*model.Slot, error)
}

// ReservationStore - контракт хранилища записей о бронях
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	GetByRequesterID(ctx context.Context, requesterID string) ([]*model.Reservation, error)
	HasConfirmedAt(ctx context.Context, requesterID, date, timeOfDay string) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*model.Reservation, error)
	Retarget(ctx context.Context, id, newSlotID uuid.UUID, newDate, newTime, reason string) (*model.Reservation, error)
	DeleteCancelledOlderThan(ctx context.Context, cutoffDate string) (int64, error)
}

// RequesterStore - контракт реестра заявителей
type RequesterStore interface {
	Register(ctx context.Context, req *model.Requester) error
	GetByID(ctx context.Context, id string) (*model.Requester, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// BookingService - workflow бронирования: владеет записями о бронях
// и связывает их со слотами через аллокатор. Связь между бронью и слотом -
// только slot_id, который workflow хранит у себя; аллокатор про брони
// не знает ничего.
type BookingService struct {
	allocator    SlotAllocator
	reservations ReservationStore
	requesters   RequesterStore
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

func NewBookingService(
	allocator SlotAllocator,
	reservations ReservationStore,
	requesters RequesterStore,
	cfg Config,
	logger *zap.Logger,
) *BookingService {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &BookingService{
		allocator:    allocator,
		reservations: reservations,
		requesters:   requesters,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().In(loc) },
	}
}

// WithClock подменяет источник времени для тестов
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// RegisterRequester идемпотентно заводит заявителя в реестре
func (s *BookingService) RegisterRequester(ctx context.Context, id, displayName string) error {
	if id == "" {
		return newValidationError(schedule.Violation{
			Rule:    "invalid-requester",
			Message: "requester id must not be empty",
		})
	}

	req := &model.Requester{ID: id, DisplayName: displayName}
	if err := s.requesters.Register(ctx, req); err != nil {
		return storeFailure("register requester", err)
	}

	return nil
}

// DeactivateRequester отключает заявителя: новые брони для него запрещены,
// существующие записи не трогаются
func (s *BookingService) DeactivateRequester(ctx context.Context, id string) error {
	err := s.requesters.SetActive(ctx, id, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Entity: "requester"}
		}
		return storeFailure("deactivate requester", err)
	}
	return nil
}

// Book бронирует слот по координатам и создаёт подтверждённую запись о брони.
// Проверка "у заявителя уже есть бронь на эти дату и время" предварительная
// и заведомо гоночная: от двойного захвата слота защищает только CAS
// аллокатора, от двойной записи одного заявителя - нет, это осознанно более
// слабая гарантия. Если запись о брони создать не удалось, слот освобождается
// компенсирующим Release.
func (s *BookingService) Book(ctx context.Context, requesterID, date, timeOfDay, notes string) (*model.Reservation, error) {
	req, err := s.requesters.GetByID(ctx, requesterID)
	if err != nil {
		return nil, storeFailure("lookup requester", err)
	}
	if req == nil {
		return nil, &NotFoundError{Entity: "requester"}
	}
	if !req.IsActive {
		return nil, &ConflictError{Reason: "requester is deactivated"}
	}

	taken, err := s.reservations.HasConfirmedAt(ctx, requesterID, date, timeOfDay)
	if err != nil {
		return nil, storeFailure("check duplicate claim", err)
	}
	if taken {
		return nil, &ConflictError{Reason: "requester already holds a reservation for this date and time"}
	}

	metadata := map[string]string{"requester_id": requesterID}
	if req.DisplayName != "" {
		metadata["requester_name"] = req.DisplayName
	}

	slot, err := s.allocator.Reserve(ctx, date, timeOfDay, requesterID, metadata)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		ID:          uuid.New(),
		RequesterID: requesterID,
		SlotID:      slot.ID,
		SlotDate:    slot.Date,
		SlotTime:    slot.StartTime,
		Status:      model.ReservationStatusConfirmed,
		Notes:       notes,
	}

	if err := s.reservations.Create(ctx, res); err != nil {
		// Слот занят, а записи о брони нет - снимаем бронь компенсацией
		if _, relErr := s.allocator.Release(ctx, slot.ID, &requesterID); relErr != nil {
			s.logger.Error("Failed to release slot after reservation insert failure",
				zap.String("slot_id", slot.ID.String()),
				zap.Error(relErr),
			)
		}
		return nil, storeFailure("create reservation", err)
	}

	s.logger.Info("Reservation created",
		zap.String("reservation_id", res.ID.String()),
		zap.String("requester_id", requesterID),
		zap.String("date", res.SlotDate),
		zap.String("time", res.SlotTime),
	)
	return res, nil
}

// Cancel отменяет бронь заявителя и освобождает слот. Отмена терминальна:
// запись остаётся с причиной и временем отмены, удалит её только retention.
// Слот освобождается после смены статуса записи; Release идемпотентен,
// поэтому преходящий сбой на этом шаге добирается повтором Release.
func (s *BookingService) Cancel(ctx context.Context, reservationID uuid.UUID, requesterID, reason string) (*model.Reservation, error) {
	res, err := s.getOwned(ctx, reservationID, requesterID)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.reservations.Cancel(ctx, reservationID, reason)
	if err != nil {
		return nil, mapReservationError("cancel reservation", err)
	}

	if _, err := s.allocator.Release(ctx, res.SlotID, &requesterID); err != nil {
		// Слот мог уже уйти под retention - это не сбой отмены
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			s.logger.Error("Reservation cancelled but slot release failed",
				zap.String("reservation_id", reservationID.String()),
				zap.String("slot_id", res.SlotID.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	s.logger.Info("Reservation cancelled",
		zap.String("reservation_id", cancelled.ID.String()),
		zap.String("requester_id", requesterID),
		zap.String("reason", reason),
	)
	return cancelled, nil
}

// Reschedule переносит бронь на новые координаты: аллокатор меняет слоты
// (release старого + reserve нового, см. его семантику отказа), после чего
// запись перенацеливается на новый слот с инкрементом счётчика переносов.
func (s *BookingService) Reschedule(ctx context.Context, reservationID uuid.UUID, requesterID, newDate, newTimeOfDay, reason string) (*model.Reservation, error) {
	res, err := s.getOwned(ctx, reservationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive() {
		return nil, &ConflictError{Reason: "reservation is cancelled"}
	}

	newSlot, err := s.allocator.Reschedule(ctx, res.SlotID, newDate, newTimeOfDay, &requesterID)
	if err != nil {
		return nil, err
	}

	updated, err := s.reservations.Retarget(ctx, res.ID, newSlot.ID, newSlot.Date, newSlot.StartTime, reason)
	if err != nil {
		// Новый слот уже забронирован, а запись не перенацелена - чинится
		// только вручную, поэтому громко в лог
		s.logger.Error("Slot moved but reservation retarget failed",
			zap.String("reservation_id", res.ID.String()),
			zap.String("new_slot_id", newSlot.ID.String()),
			zap.Error(err),
		)
		return nil, mapReservationError("retarget reservation", err)
	}

	s.logger.Info("Reservation rescheduled",
		zap.String("reservation_id", updated.ID.String()),
		zap.String("requester_id", requesterID),
		zap.String("date", updated.SlotDate),
		zap.String("time", updated.SlotTime),
		zap.Int("reschedule_count", updated.RescheduleCount),
	)
	return updated, nil
}

// GetByID возвращает бронь заявителя. Чужие и несуществующие ID неотличимы
func (s *BookingService) GetByID(ctx context.Context, reservationID uuid.UUID, requesterID string) (*model.Reservation, error) {
	return s.getOwned(ctx, reservationID, requesterID)
}

// ListForRequester возвращает все брони заявителя, свежие первыми
func (s *BookingService) ListForRequester(ctx context.Context, requesterID string) ([]*model.Reservation, error) {
	reservations, err := s.reservations.GetByRequesterID(ctx, requesterID)
	if err != nil {
		return nil, storeFailure("list reservations", err)
	}
	return reservations, nil
}

// PurgeCancelled удаляет отменённые брони, чья дата слота старше окна
// retention. Подтверждённые записи живут вечно.
func (s *BookingService) PurgeCancelled(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays).Format(schedule.DateLayout)

	deleted, err := s.reservations.DeleteCancelledOlderThan(ctx, cutoff)
	if err != nil {
		return 0, storeFailure("purge cancelled reservations", err)
	}

	if deleted > 0 {
		s.logger.Info("Cancelled reservations purged",
			zap.String("cutoff", cutoff),
			zap.Int64("deleted", deleted),
		)
	}
	return deleted, nil
}

// getOwned достаёт бронь, скрывая чужие записи за "not found": сам факт
// существования чужого ID не раскрывается
func (s *BookingService) getOwned(ctx context.Context, reservationID uuid.UUID, requesterID string) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, storeFailure("lookup reservation", err)
	}
	if res == nil || res.RequesterID != requesterID {
		return nil, &NotFoundError{Entity: "reservation"}
	}
	return res, nil
}

// mapReservationError переводит сентинели хранилища броней в ошибки границы
func mapReservationError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Entity: "reservation"}
	case errors.Is(err, repository.ErrNotConfirmed):
		return &ConflictError{Reason: "reservation is not confirmed"}
	default:
		return storeFailure(op, err)
	}
}
