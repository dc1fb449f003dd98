package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository"
	"github.com/google/uuid"
)

// fakeClock - управляемый источник времени для тестов
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeSlotStore - потокобезопасное хранилище слотов в памяти с той же
// семантикой условных записей и сентинелей, что у SlotRepository
type fakeSlotStore struct {
	mu            sync.Mutex
	slots         map[uuid.UUID]*model.Slot
	beforeReserve func(id uuid.UUID) // хук для воспроизведения гонок
}

func newFakeSlotStore() *fakeSlotStore {
	return &fakeSlotStore{slots: make(map[uuid.UUID]*model.Slot)}
}

func copySlot(s *model.Slot) *model.Slot {
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (f *fakeSlotStore) GetByID(_ context.Context, id uuid.UUID) (*model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, nil
	}
	return copySlot(s), nil
}

func (f *fakeSlotStore) GetByCoordinates(_ context.Context, date, startTime string, duration int) (*model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slots {
		if s.Date == date && s.StartTime == startTime && s.Duration == duration && s.Status != model.SlotStatusBlocked {
			return copySlot(s), nil
		}
	}
	return nil, nil
}

func (f *fakeSlotStore) FindByDateDuration(_ context.Context, date string, duration int) ([]model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Slot
	for _, s := range f.slots {
		if s.Date == date && s.Duration == duration {
			out = append(out, *copySlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (f *fakeSlotStore) InsertIfAbsent(_ context.Context, candidates []model.Slot) ([]model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inserted []model.Slot
	for _, c := range candidates {
		if f.existsLocked(c.Date, c.StartTime, c.Duration) {
			continue
		}
		cp := c
		cp.Status = model.SlotStatusAvailable
		cp.CreatedAt = time.Now()
		f.slots[cp.ID] = copySlot(&cp)
		inserted = append(inserted, cp)
	}
	return inserted, nil
}

func (f *fakeSlotStore) existsLocked(date, startTime string, duration int) bool {
	for _, s := range f.slots {
		if s.Date == date && s.StartTime == startTime && s.Duration == duration && s.Status != model.SlotStatusBlocked {
			return true
		}
	}
	return false
}

func (f *fakeSlotStore) Reserve(_ context.Context, id uuid.UUID, holder string, metadata map[string]string) (*model.Slot, error) {
	if f.beforeReserve != nil {
		f.beforeReserve(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.Status != model.SlotStatusAvailable {
		return nil, fmt.Errorf("reserve slot %s: %w", id, repository.ErrSlotTaken)
	}
	now := time.Now()
	s.Status = model.SlotStatusBooked
	s.Holder = &holder
	s.Metadata = metadata
	s.BookedAt = &now
	s.FreedAt = nil
	return copySlot(s), nil
}

func (f *fakeSlotStore) Release(_ context.Context, id uuid.UUID, holder *string) (*model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	switch s.Status {
	case model.SlotStatusAvailable:
		return copySlot(s), repository.ErrAlreadyAvailable
	case model.SlotStatusBlocked:
		return nil, fmt.Errorf("release slot %s: %w", id, repository.ErrSlotTaken)
	}
	if holder != nil && (s.Holder == nil || *s.Holder != *holder) {
		return nil, fmt.Errorf("release slot %s: %w", id, repository.ErrHolderMismatch)
	}
	now := time.Now()
	s.Status = model.SlotStatusAvailable
	s.Holder = nil
	s.Metadata = nil
	s.BookedAt = nil
	s.FreedAt = &now
	return copySlot(s), nil
}

func (f *fakeSlotStore) DeleteOlderThan(_ context.Context, cutoffDate string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, s := range f.slots {
		if s.Date < cutoffDate {
			delete(f.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

// bookDirect занимает слот напрямую, минуя аллокатор: имитация конкурента
func (f *fakeSlotStore) bookDirect(id uuid.UUID, holder string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[id]
	now := time.Now()
	s.Status = model.SlotStatusBooked
	s.Holder = &holder
	s.BookedAt = &now
}

// fakeReservationStore - хранилище броней в памяти
type fakeReservationStore struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]*model.Reservation
	failCreate   error // принудительный сбой вставки
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{reservations: make(map[uuid.UUID]*model.Reservation)}
}

func copyReservation(r *model.Reservation) *model.Reservation {
	cp := *r
	return &cp
}

func (f *fakeReservationStore) Create(_ context.Context, res *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	now := time.Now()
	res.CreatedAt = now
	res.UpdatedAt = now
	f.reservations[res.ID] = copyReservation(res)
	return nil
}

func (f *fakeReservationStore) GetByID(_ context.Context, id uuid.UUID) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, nil
	}
	return copyReservation(r), nil
}

func (f *fakeReservationStore) GetByRequesterID(_ context.Context, requesterID string) ([]*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Reservation
	for _, r := range f.reservations {
		if r.RequesterID == requesterID {
			out = append(out, copyReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotDate != out[j].SlotDate {
			return out[i].SlotDate > out[j].SlotDate
		}
		return out[i].SlotTime > out[j].SlotTime
	})
	return out, nil
}

func (f *fakeReservationStore) HasConfirmedAt(_ context.Context, requesterID, date, timeOfDay string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.RequesterID == requesterID && r.SlotDate == date && r.SlotTime == timeOfDay && r.Status == model.ReservationStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReservationStore) Cancel(_ context.Context, id uuid.UUID, reason string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status != model.ReservationStatusConfirmed {
		return nil, fmt.Errorf("cancel reservation %s: %w", id, repository.ErrNotConfirmed)
	}
	now := time.Now()
	r.Status = model.ReservationStatusCancelled
	r.CancelledAt = &now
	r.CancelReason = &reason
	r.UpdatedAt = now
	return copyReservation(r), nil
}

func (f *fakeReservationStore) Retarget(_ context.Context, id, newSlotID uuid.UUID, newDate, newTime, reason string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status != model.ReservationStatusConfirmed {
		return nil, fmt.Errorf("retarget reservation %s: %w", id, repository.ErrNotConfirmed)
	}
	now := time.Now()
	r.SlotID = newSlotID
	r.SlotDate = newDate
	r.SlotTime = newTime
	r.RescheduledAt = &now
	r.RescheduleReason = &reason
	r.RescheduleCount++
	r.UpdatedAt = now
	return copyReservation(r), nil
}

func (f *fakeReservationStore) DeleteCancelledOlderThan(_ context.Context, cutoffDate string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, r := range f.reservations {
		if r.Status == model.ReservationStatusCancelled && r.SlotDate < cutoffDate {
			delete(f.reservations, id)
			deleted++
		}
	}
	return deleted, nil
}

// fakeRequesterStore - реестр заявителей в памяти
type fakeRequesterStore struct {
	mu         sync.Mutex
	requesters map[string]*model.Requester
}

func newFakeRequesterStore() *fakeRequesterStore {
	return &fakeRequesterStore{requesters: make(map[string]*model.Requester)}
}

func (f *fakeRequesterStore) Register(_ context.Context, req *model.Requester) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requesters[req.ID]; ok {
		return nil
	}
	cp := *req
	cp.IsActive = true
	cp.CreatedAt = time.Now()
	f.requesters[req.ID] = &cp
	return nil
}

func (f *fakeRequesterStore) GetByID(_ context.Context, id string) (*model.Requester, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requesters[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequesterStore) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requesters[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.IsActive = active
	return nil
}
