package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Сентинельные ошибки хранилища. Сервисный слой проверяет их через errors.Is
// и переводит в свою таксономию (not-found / conflict / validation / transient).
var (
	// ErrNotFound - запись с таким идентификатором не существует.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate - нарушено ограничение уникальности.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSlotTaken - слот существует, но уже не в статусе available.
	ErrSlotTaken = errors.New("slot is not available")
	// ErrAlreadyAvailable - слот уже свободен, release превращается в no-op.
	ErrAlreadyAvailable = errors.New("slot is already available")
	// ErrHolderMismatch - слот забронирован другим заявителем.
	ErrHolderMismatch = errors.New("slot is held by another requester")
	// ErrNotConfirmed - бронь не в статусе confirmed, менять её нельзя.
	ErrNotConfirmed = errors.New("reservation is not confirmed")
)

// uniqueViolationCode код SQLSTATE для нарушения уникального индекса.
const uniqueViolationCode = "23505"

// IsUniqueViolation проверяет, что ошибка Postgres вызвана конфликтом
// уникального индекса (конкурентная генерация одной и той же сетки).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
