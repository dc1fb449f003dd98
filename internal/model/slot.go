package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available" // Свободен для брони
	SlotStatusBooked    SlotStatus = "booked"    // Забронирован
	SlotStatusBlocked   SlotStatus = "blocked"   // Закрыт администратором, через API не меняется
)

// Slot - один дискретный интервал записи на конкретную дату.
// Пара (Date, StartTime) вместе с Duration однозначно задаёт слот в сетке.
type Slot struct {
	ID        uuid.UUID         `json:"id"`
	Date      string            `json:"date"`       // формат "2006-01-02"
	StartTime string            `json:"start_time"` // формат "15:04"
	EndTime   string            `json:"end_time"`
	Duration  int               `json:"duration_minutes"`
	Status    SlotStatus        `json:"status"`
	Holder    *string           `json:"holder"` // указатель - может быть nil
	Metadata  map[string]string `json:"metadata,omitempty"`
	BookedAt  *time.Time        `json:"booked_at,omitempty"`
	FreedAt   *time.Time        `json:"freed_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// IsAvailable checks if the slot can be reserved
func (s *Slot) IsAvailable() bool {
	return s.Status == SlotStatusAvailable
}

// IsBooked checks if the slot is held by someone
func (s *Slot) IsBooked() bool {
	return s.Status == SlotStatusBooked
}
