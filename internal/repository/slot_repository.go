package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, slot_date, start_time, end_time, duration_minutes, status, holder, metadata, booked_at, freed_at, created_at`

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE id = $1
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// GetByCoordinates получает слот по координатам (дата, время начала, длительность).
// Заблокированные слоты не участвуют в выдаче: их место в сетке считается пустым.
func (r *SlotRepository) GetByCoordinates(ctx context.Context, date, startTime string, duration int) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE slot_date = $1
		  AND start_time = $2
		  AND duration_minutes = $3
		  AND status <> 'blocked'
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, date, startTime, duration))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by coordinates: %w", err)
	}

	return slot, nil
}

// FindByDateDuration получает все слоты даты с указанной длительностью,
// по возрастанию времени начала
func (r *SlotRepository) FindByDateDuration(ctx context.Context, date string, duration int) ([]model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE slot_date = $1
		  AND duration_minutes = $2
		ORDER BY start_time
	`

	rows, err := r.Query(ctx, query, date, duration)
	if err != nil {
		return nil, fmt.Errorf("find slots by date: %w", err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}

	return slots, rows.Err()
}

// InsertIfAbsent вставляет пачку слотов-кандидатов, молча пропуская те,
// что уже созданы конкурентным вызовом (ON CONFLICT DO NOTHING по уникальному
// индексу). Возвращает только реально вставленные строки; пустой результат
// при непустом входе означает, что другой вызов успел сгенерировать всю сетку
// и вызывающий должен перечитать её.
func (r *SlotRepository) InsertIfAbsent(ctx context.Context, candidates []model.Slot) ([]model.Slot, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO slots (id, slot_date, start_time, end_time, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slot_date, start_time, duration_minutes) WHERE status <> 'blocked' DO NOTHING
		RETURNING ` + slotColumns + `
	`

	var inserted []model.Slot
	for _, c := range candidates {
		slot, err := scanSlot(r.QueryRow(ctx, query, c.ID, c.Date, c.StartTime, c.EndTime, c.Duration, model.SlotStatusAvailable))
		if err != nil {
			if base.IsNotFound(err) {
				// Конфликт уникальности: слот уже есть, строка не возвращается
				continue
			}
			return inserted, fmt.Errorf("insert slot %s %s: %w", c.Date, c.StartTime, err)
		}
		inserted = append(inserted, *slot)
	}

	return inserted, nil
}

// Reserve атомарно переводит слот из available в booked, записывая держателя
// и метаданные тем же условным UPDATE. Из N конкурентных вызовов на один слот
// успешен ровно один; проигравшие получают ErrSlotTaken, несуществующий
// ID - ErrNotFound.
func (r *SlotRepository) Reserve(ctx context.Context, id uuid.UUID, holder string, metadata map[string]string) (*model.Slot, error) {
	query := `
		UPDATE slots
		SET status = 'booked',
		    holder = $2,
		    metadata = $3,
		    booked_at = now(),
		    freed_at = NULL
		WHERE id = $1
		  AND status = 'available'
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, id, holder, metadata))
	if err == nil {
		return slot, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	// Условие UPDATE не сработало: различаем "слота нет" и "слот занят"
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("reserve slot %s: %w", id, ErrSlotTaken)
}

// Release атомарно переводит слот из booked в available, очищая держателя
// и метаданные. Если передан holder, освобождение проходит только когда слот
// держит именно он (ErrHolderMismatch иначе). Уже свободный слот даёт
// ErrAlreadyAvailable - вызывающий трактует это как идемпотентный успех.
func (r *SlotRepository) Release(ctx context.Context, id uuid.UUID, holder *string) (*model.Slot, error) {
	query := `
		UPDATE slots
		SET status = 'available',
		    holder = NULL,
		    metadata = NULL,
		    booked_at = NULL,
		    freed_at = now()
		WHERE id = $1
		  AND status = 'booked'
		  AND ($2::text IS NULL OR holder = $2)
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, id, holder))
	if err == nil {
		return slot, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case current == nil:
		return nil, ErrNotFound
	case current.Status == model.SlotStatusAvailable:
		return current, ErrAlreadyAvailable
	case current.Status == model.SlotStatusBooked:
		return nil, fmt.Errorf("release slot %s: %w", id, ErrHolderMismatch)
	default:
		return nil, fmt.Errorf("release slot %s: %w", id, ErrSlotTaken)
	}
}

// DeleteOlderThan удаляет слоты, чья дата строго раньше cutoffDate.
// Формат YYYY-MM-DD сравнивается лексикографически
func (r *SlotRepository) DeleteOlderThan(ctx context.Context, cutoffDate string) (int64, error) {
	query := `
		DELETE FROM slots
		WHERE slot_date < $1
	`

	deleted, err := r.ExecAffected(ctx, query, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete old slots: %w", err)
	}

	return deleted, nil
}

// scanner покрывает pgx.Row и pgx.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row scanner) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Duration,
		&slot.Status,
		&slot.Holder,
		&slot.Metadata,
		&slot.BookedAt,
		&slot.FreedAt,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}
