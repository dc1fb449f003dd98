package service

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/booking_service/internal/schedule"
)

// Таксономия ошибок на границе сервисного слоя. Вызывающая сторона различает
// виды через errors.As: каждому соответствует своё действие пользователя
// (исправить ввод / выбрать другой слот / повторить позже).

// ValidationError - вход нарушает бизнес-правила. Несёт полный список
// нарушений, а не первое попавшееся. Автоматический повтор бессмысленен.
type ValidationError struct {
	Violations []schedule.Violation
}

func (e *ValidationError) Error() string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Rule
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(codes, ", "))
}

// Has проверяет, нарушено ли правило с указанным кодом
func (e *ValidationError) Has(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func newValidationError(violations ...schedule.Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

// NotFoundError - сущность с таким идентификатором не существует.
// Сообщение намеренно не уточняет больше, чем вид сущности.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// ConflictError - сущность существует, но не в ожидаемом статусе: гонка
// проиграна или состояние уже изменилось. Повторять те же координаты
// бессмысленно, нужно перечитать доступность.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// TransientStoreError - хранилище недоступно или запрос не завершился.
// Одиночные условные записи атомарны, поэтому повтор с backoff безопасен;
// исключение - второй шаг переноса, перед повтором которого нужно
// перечитать, прошёл ли первый.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store failure in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func storeFailure(op string, err error) *TransientStoreError {
	return &TransientStoreError{Op: op, Err: err}
}
