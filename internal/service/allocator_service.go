package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository"
	"github.com/Freeeeeet/booking_service/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config - явная конфигурация аллокатора. Передаётся в конструктор целиком,
// внутри переходов никаких обращений к окружению нет.
type Config struct {
	WorkStart          string // "15:04"
	WorkEnd            string // "15:04"
	SlotDuration       int    // минуты
	AdvanceNoticeHours int
	AllowWeekends      bool
	RetentionDays      int
	Location           *time.Location
}

// Rules переводит конфигурацию в правила календарной математики
func (c Config) Rules() schedule.Rules {
	return schedule.Rules{
		WorkStart:     c.WorkStart,
		WorkEnd:       c.WorkEnd,
		Duration:      c.SlotDuration,
		AdvanceHours:  c.AdvanceNoticeHours,
		AllowWeekends: c.AllowWeekends,
	}
}

// SlotStore - контракт хранилища слотов. Все мутации статуса - одиночные
// условные записи: корректность под конкуренцией делегирована хранилищу,
// внутрипроцессных блокировок у аллокатора нет.
type SlotStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	GetByCoordinates(ctx context.Context, date, startTime string, duration int) (*model.Slot, error)
	FindByDateDuration(ctx context.Context, date string, duration int) ([]model.Slot, error)
	InsertIfAbsent(ctx context.Context, candidates []model.Slot) ([]model.Slot, error)
	Reserve(ctx context.Context, id uuid.UUID, holder string, metadata map[string]string) (*model.Slot, error)
	Release(ctx context.Context, id uuid.UUID, holder *string) (*model.Slot, error)
	DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error)
}

// AllocatorService владеет переходами состояния слотов: available ⇄ booked.
// Статус blocked - административный тупик, выставляется только вне API
// и для аллокатора невидим. Никто другой статус слота не меняет.
type AllocatorService struct {
	slots  SlotStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewAllocatorService(slots SlotStore, cfg Config, logger *zap.Logger) *AllocatorService {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
		cfg.Location = loc
	}
	return &AllocatorService{
		slots:  slots,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().In(loc) },
	}
}

// WithClock подменяет источник времени. Нужен тестам, где "сейчас" фиксировано.
func (s *AllocatorService) WithClock(now func() time.Time) *AllocatorService {
	s.now = now
	return s
}

// ListAvailable возвращает свободные слоты даты, проходящие по запасу
// времени, по возрастанию времени начала. Сетка дня материализуется лениво
// при первом обращении; конкурентную двойную генерацию гасит уникальный
// индекс, а не блокировка. Пустая выдача - не ошибка.
func (s *AllocatorService) ListAvailable(ctx context.Context, date string) ([]model.Slot, error) {
	now := s.now()
	offsets, err := schedule.AvailableOffsets(date, now, s.cfg.Rules())
	if err != nil {
		return nil, newValidationError(schedule.Violation{
			Rule:    schedule.RuleInvalidDate,
			Message: err.Error(),
		})
	}
	if len(offsets) == 0 {
		return nil, nil
	}

	existing, err := s.slots.FindByDateDuration(ctx, date, s.cfg.SlotDuration)
	if err != nil {
		return nil, storeFailure("list slots", err)
	}

	if len(existing) == 0 {
		existing, err = s.generateGrid(ctx, date)
		if err != nil {
			return nil, err
		}
	}

	eligible := make(map[string]struct{}, len(offsets))
	for _, off := range offsets {
		eligible[off] = struct{}{}
	}

	var available []model.Slot
	for _, slot := range existing {
		if !slot.IsAvailable() {
			continue
		}
		if _, ok := eligible[slot.StartTime]; !ok {
			continue
		}
		available = append(available, slot)
	}

	return available, nil
}

// generateGrid идемпотентно материализует сетку дня целиком, включая офсеты,
// уже не проходящие по запасу времени: сетка - свойство дня, а не момента
// запроса. Если вся пачка проиграла гонку конкурентному вызову, перечитываем.
func (s *AllocatorService) generateGrid(ctx context.Context, date string) ([]model.Slot, error) {
	grid, err := schedule.Grid(s.cfg.WorkStart, s.cfg.WorkEnd, s.cfg.SlotDuration)
	if err != nil {
		return nil, newValidationError(schedule.Violation{
			Rule:    schedule.RuleInvalidTime,
			Message: err.Error(),
		})
	}

	candidates := make([]model.Slot, 0, len(grid))
	for _, off := range grid {
		end, err := schedule.EndTime(off, s.cfg.SlotDuration)
		if err != nil {
			return nil, storeFailure("build grid", err)
		}
		candidates = append(candidates, model.Slot{
			ID:        uuid.New(),
			Date:      date,
			StartTime: off,
			EndTime:   end,
			Duration:  s.cfg.SlotDuration,
			Status:    model.SlotStatusAvailable,
		})
	}

	inserted, err := s.slots.InsertIfAbsent(ctx, candidates)
	if err != nil {
		return nil, storeFailure("generate grid", err)
	}

	if len(inserted) < len(candidates) {
		// Часть или вся сетка уже создана кем-то ещё - берём полную картину
		existing, err := s.slots.FindByDateDuration(ctx, date, s.cfg.SlotDuration)
		if err != nil {
			return nil, storeFailure("reread grid", err)
		}
		return existing, nil
	}

	s.logger.Info("Slot grid generated",
		zap.String("date", date),
		zap.Int("slots", len(inserted)),
	)
	return inserted, nil
}

// DateAvailability - результат выдачи по одной дате диапазона
type DateAvailability struct {
	Date  string
	Slots []model.Slot
	Err   error
}

// ListAvailableRange запрашивает доступность по каждой дате независимо
// и конкурентно. Ошибка одной даты не роняет остальные.
func (s *AllocatorService) ListAvailableRange(ctx context.Context, dates []string) []DateAvailability {
	results := make([]DateAvailability, len(dates))

	var wg sync.WaitGroup
	for i, date := range dates {
		wg.Add(1)
		go func(i int, date string) {
			defer wg.Done()
			slots, err := s.ListAvailable(ctx, date)
			results[i] = DateAvailability{Date: date, Slots: slots, Err: err}
		}(i, date)
	}
	wg.Wait()

	return results
}

// Reserve бронирует слот по координатам. Бизнес-правила перепроверяются
// в момент вызова, а не на момент генерации сетки. Сам переход - одиночный
// CAS в хранилище: из конкурентных претендентов выигрывает ровно один,
// остальные получают ConflictError. После успешного CAS запас времени
// перепроверяется ещё раз: если за окно гонки часы ушли за порог, бронь
// компенсируется обратным Release (два шага, не атомарно).
func (s *AllocatorService) Reserve(ctx context.Context, date, timeOfDay, holder string, metadata map[string]string) (*model.Slot, error) {
	violations := schedule.Validate(date, timeOfDay, s.now(), s.cfg.Rules())
	if len(violations) > 0 {
		return nil, newValidationError(violations...)
	}

	slot, err := s.slots.GetByCoordinates(ctx, date, timeOfDay, s.cfg.SlotDuration)
	if err != nil {
		return nil, storeFailure("lookup slot", err)
	}
	if slot == nil {
		return nil, &NotFoundError{Entity: "slot"}
	}

	booked, err := s.slots.Reserve(ctx, slot.ID, holder, metadata)
	if err != nil {
		return nil, mapStoreError("reserve slot", err)
	}

	// Повторная проверка запаса времени уже по зафиксированному слоту
	if !schedule.MeetsAdvanceNotice(booked.Date, booked.StartTime, s.now(), s.cfg.AdvanceNoticeHours) {
		if _, relErr := s.Release(ctx, booked.ID, &holder); relErr != nil {
			s.logger.Error("Failed to roll back late reservation",
				zap.String("slot_id", booked.ID.String()),
				zap.Error(relErr),
			)
		}
		return nil, newValidationError(schedule.Violation{
			Rule:    schedule.RuleAdvanceNotice,
			Message: "advance notice window closed during booking",
		})
	}

	s.logger.Info("Slot reserved",
		zap.String("slot_id", booked.ID.String()),
		zap.String("date", booked.Date),
		zap.String("time", booked.StartTime),
		zap.String("holder", holder),
	)
	return booked, nil
}

// Release освобождает слот. Уже свободный слот - идемпотентный успех:
// повтор после упавшего шага выше по стеку не должен становиться ошибкой.
// Если передан holder, слот освобождается только его держателем.
func (s *AllocatorService) Release(ctx context.Context, slotID uuid.UUID, holder *string) (*model.Slot, error) {
	slot, err := s.slots.Release(ctx, slotID, holder)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyAvailable) {
			return slot, nil
		}
		return nil, mapStoreError("release slot", err)
	}

	s.logger.Info("Slot released",
		zap.String("slot_id", slot.ID.String()),
		zap.String("date", slot.Date),
		zap.String("time", slot.StartTime),
	)
	return slot, nil
}

// ReleaseResult - исход освобождения одного слота из пачки
type ReleaseResult struct {
	SlotID uuid.UUID
	Slot   *model.Slot
	Err    error
}

// ReleaseMany освобождает слоты независимо и конкурентно, с поэлементным
// исходом: частичный провал ожидаем и не эскалируется в общий.
func (s *AllocatorService) ReleaseMany(ctx context.Context, slotIDs []uuid.UUID, holder *string) []ReleaseResult {
	results := make([]ReleaseResult, len(slotIDs))

	var wg sync.WaitGroup
	for i, id := range slotIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			slot, err := s.Release(ctx, id, holder)
			results[i] = ReleaseResult{SlotID: id, Slot: slot, Err: err}
		}(i, id)
	}
	wg.Wait()

	return results
}

// Reschedule переносит бронь со слота currentSlotID на новые координаты.
// Сначала fail-fast проверки: новые координаты валидны, целевой слот
// существует и свободен, текущий действительно забронирован (и именно
// holder'ом, если он передан). Затем release(старый) и reserve(новый)
// выполняются как два независимых атомарных шага одновременно - успех
// одного не зависит от исхода другого. Если reserve нового проиграл гонку,
// старый слот уже освобождён и обратно не бронируется: итог "старый отпущен,
// новый не занят" - единственный допустимый неатомарный исход, и ошибка
// говорит об этом явно. Повторять вызов вслепую нельзя, сначала перечитать
// состояние.
func (s *AllocatorService) Reschedule(ctx context.Context, currentSlotID uuid.UUID, newDate, newTimeOfDay string, holder *string) (*model.Slot, error) {
	violations := schedule.Validate(newDate, newTimeOfDay, s.now(), s.cfg.Rules())
	if len(violations) > 0 {
		return nil, newValidationError(violations...)
	}

	current, err := s.slots.GetByID(ctx, currentSlotID)
	if err != nil {
		return nil, storeFailure("lookup current slot", err)
	}
	if current == nil {
		return nil, &NotFoundError{Entity: "slot"}
	}
	if !current.IsBooked() || current.Holder == nil {
		return nil, &ConflictError{Reason: "current slot is not booked"}
	}
	if holder != nil && *current.Holder != *holder {
		return nil, &ConflictError{Reason: "slot is held by another requester"}
	}

	target, err := s.slots.GetByCoordinates(ctx, newDate, newTimeOfDay, s.cfg.SlotDuration)
	if err != nil {
		return nil, storeFailure("lookup target slot", err)
	}
	if target == nil {
		return nil, &NotFoundError{Entity: "slot"}
	}
	if !target.IsAvailable() {
		return nil, &ConflictError{Reason: "target slot is not available"}
	}

	nextHolder := *current.Holder
	nextMetadata := current.Metadata

	var (
		wg         sync.WaitGroup
		reserved   *model.Slot
		reserveErr error
		releaseErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, releaseErr = s.Release(ctx, currentSlotID, holder)
	}()
	go func() {
		defer wg.Done()
		booked, err := s.slots.Reserve(ctx, target.ID, nextHolder, nextMetadata)
		if err != nil {
			reserveErr = mapStoreError("reserve target slot", err)
			return
		}
		reserved = booked
	}()
	wg.Wait()

	if reserveErr != nil {
		if releaseErr == nil {
			s.logger.Warn("Reschedule lost target slot, current slot already released",
				zap.String("current_slot_id", currentSlotID.String()),
				zap.String("target_slot_id", target.ID.String()),
			)
			return nil, &ConflictError{
				Reason: "target slot was taken; the current slot has already been released",
			}
		}
		return nil, reserveErr
	}
	if releaseErr != nil {
		s.logger.Error("Reschedule reserved target but failed to release current slot",
			zap.String("current_slot_id", currentSlotID.String()),
			zap.String("target_slot_id", reserved.ID.String()),
			zap.Error(releaseErr),
		)
		return nil, releaseErr
	}

	s.logger.Info("Slot rescheduled",
		zap.String("from_slot_id", currentSlotID.String()),
		zap.String("to_slot_id", reserved.ID.String()),
		zap.String("holder", nextHolder),
	)
	return reserved, nil
}

// Cleanup удаляет слоты, чей день отстоит от "сейчас" дальше окна retention.
// Безопасно: прошедший слот бизнес-смысла не несёт, ссылающиеся брони уже
// разрешены слоем workflow.
func (s *AllocatorService) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays).Format(schedule.DateLayout)

	deleted, err := s.slots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, storeFailure("cleanup slots", err)
	}

	if deleted > 0 {
		s.logger.Info("Old slots removed",
			zap.String("cutoff", cutoff),
			zap.Int64("deleted", deleted),
		)
	}
	return deleted, nil
}

// mapStoreError переводит сентинели хранилища в ошибки границы сервиса.
// Всё неопознанное считается преходящим сбоем хранилища и наружу деталями
// не протекает.
func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Entity: "slot"}
	case errors.Is(err, repository.ErrSlotTaken):
		return &ConflictError{Reason: "slot is no longer available"}
	case errors.Is(err, repository.ErrHolderMismatch):
		return &ConflictError{Reason: "slot is held by another requester"}
	default:
		return storeFailure(op, err)
	}
}
