package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reservationColumns = `id, requester_id, slot_id, slot_date, slot_time, status, notes,
		cancelled_at, cancel_reason, rescheduled_at, reschedule_reason, reschedule_count,
		created_at, updated_at`

type ReservationRepository struct {
	*base.Repository
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт новую запись о брони
func (r *ReservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	query := `
		INSERT INTO reservations (id, requester_id, slot_id, slot_date, slot_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		res.ID,
		res.RequesterID,
		res.SlotID,
		res.SlotDate,
		res.SlotTime,
		res.Status,
		res.Notes,
	).Scan(&res.CreatedAt, &res.UpdatedAt)

	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("create reservation: %w", ErrDuplicate)
		}
		return fmt.Errorf("create reservation: %w", err)
	}

	return nil
}

// GetByID получает бронь по ID
func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE id = $1
	`

	res, err := scanReservation(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}

	return res, nil
}

// GetByRequesterID получает все брони заявителя, свежие первыми
func (r *ReservationRepository) GetByRequesterID(ctx context.Context, requesterID string) ([]*model.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE requester_id = $1
		ORDER BY slot_date DESC, slot_time DESC
	`

	rows, err := r.Query(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("get reservations by requester: %w", err)
	}
	defer rows.Close()

	var reservations []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}

// HasConfirmedAt проверяет, есть ли у заявителя подтверждённая бронь
// на указанные дату и время. Проверка предварительная: гонку двух
// одновременных Book она не закрывает, это делает CAS на слоте.
func (r *ReservationRepository) HasConfirmedAt(ctx context.Context, requesterID, date, timeOfDay string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM reservations
			WHERE requester_id = $1
			  AND slot_date = $2
			  AND slot_time = $3
			  AND status = 'confirmed'
		)
	`

	var exists bool
	err := r.QueryRow(ctx, query, requesterID, date, timeOfDay).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check confirmed reservation: %w", err)
	}

	return exists, nil
}

// Cancel условно переводит бронь из confirmed в cancelled, записывая причину
// и момент отмены. Уже отменённая бронь даёт ErrNotConfirmed.
func (r *ReservationRepository) Cancel(ctx context.Context, id uuid.UUID, reason string) (*model.Reservation, error) {
	query := `
		UPDATE reservations
		SET status = 'cancelled',
		    cancelled_at = now(),
		    cancel_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING ` + reservationColumns + `
	`

	res, err := scanReservation(r.QueryRow(ctx, query, id, reason))
	if err == nil {
		return res, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("cancel reservation %s: %w", id, ErrNotConfirmed)
}

// Retarget переносит подтверждённую бронь на другой слот: подменяет ссылку
// и денормализованные дату/время, увеличивает счётчик переносов. Счётчик
// только растёт, прежние значения даты и времени не сохраняются.
func (r *ReservationRepository) Retarget(ctx context.Context, id, newSlotID uuid.UUID, newDate, newTime, reason string) (*model.Reservation, error) {
	query := `
		UPDATE reservations
		SET slot_id = $2,
		    slot_date = $3,
		    slot_time = $4,
		    rescheduled_at = now(),
		    reschedule_reason = $5,
		    reschedule_count = reschedule_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING ` + reservationColumns + `
	`

	res, err := scanReservation(r.QueryRow(ctx, query, id, newSlotID, newDate, newTime, reason))
	if err == nil {
		return res, nil
	}
	if !base.IsNotFound(err) {
		return nil, fmt.Errorf("retarget reservation: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("retarget reservation %s: %w", id, ErrNotConfirmed)
}

// DeleteCancelledOlderThan удаляет отменённые брони, чья дата слота раньше
// cutoffDate. Подтверждённые записи retention не трогает никогда.
func (r *ReservationRepository) DeleteCancelledOlderThan(ctx context.Context, cutoffDate string) (int64, error) {
	query := `
		DELETE FROM reservations
		WHERE status = 'cancelled'
		  AND slot_date < $1
	`

	deleted, err := r.ExecAffected(ctx, query, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete cancelled reservations: %w", err)
	}

	return deleted, nil
}

func scanReservation(row scanner) (*model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(
		&res.ID,
		&res.RequesterID,
		&res.SlotID,
		&res.SlotDate,
		&res.SlotTime,
		&res.Status,
		&res.Notes,
		&res.CancelledAt,
		&res.CancelReason,
		&res.RescheduledAt,
		&res.RescheduleReason,
		&res.RescheduleCount,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
