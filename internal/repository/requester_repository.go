package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_service/internal/model"
	"github.com/Freeeeeet/booking_service/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RequesterRepository struct {
	*base.Repository
}

func NewRequesterRepository(pool *pgxpool.Pool) *RequesterRepository {
	return &RequesterRepository{Repository: base.NewRepository(pool)}
}

// Register идемпотентно регистрирует заявителя: повторный вызов с тем же ID
// не ошибка и ничего не перезаписывает
func (r *RequesterRepository) Register(ctx context.Context, req *model.Requester) error {
	query := `
		INSERT INTO requesters (id, display_name, is_active)
		VALUES ($1, $2, true)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.ExecAffected(ctx, query, req.ID, req.DisplayName); err != nil {
		return fmt.Errorf("register requester: %w", err)
	}

	return nil
}

// GetByID получает заявителя по ID
func (r *RequesterRepository) GetByID(ctx context.Context, id string) (*model.Requester, error) {
	query := `
		SELECT id, display_name, is_active, created_at
		FROM requesters
		WHERE id = $1
	`

	var req model.Requester
	err := r.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.DisplayName,
		&req.IsActive,
		&req.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get requester by id: %w", err)
	}

	return &req, nil
}

// SetActive включает или отключает заявителя
func (r *RequesterRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE requesters
		SET is_active = $2
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("set requester active: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set requester active %s: %w", id, ErrNotFound)
	}

	return nil
}
