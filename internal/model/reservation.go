package model

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed" // Подтверждена
	ReservationStatusCancelled ReservationStatus = "cancelled" // Отменена (терминальный статус)
)

// Reservation - долговременная запись о брони: связывает заявителя со слотом.
// Дата и время слота денормализованы на момент создания, чтобы запись
// оставалась читаемой после удаления слота по retention.
type Reservation struct {
	ID               uuid.UUID         `json:"id"`
	RequesterID      string            `json:"requester_id"`
	SlotID           uuid.UUID         `json:"slot_id"`
	SlotDate         string            `json:"slot_date"` // формат "2006-01-02"
	SlotTime         string            `json:"slot_time"` // формат "15:04"
	Status           ReservationStatus `json:"status"`
	Notes            string            `json:"notes"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason     *string           `json:"cancel_reason,omitempty"`
	RescheduledAt    *time.Time        `json:"rescheduled_at,omitempty"`
	RescheduleReason *string           `json:"reschedule_reason,omitempty"`
	RescheduleCount  int               `json:"reschedule_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsActive checks if the reservation is still in force
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusConfirmed
}

// IsCancelled checks if the reservation was cancelled
func (r *Reservation) IsCancelled() bool {
	return r.Status == ReservationStatusCancelled
}
