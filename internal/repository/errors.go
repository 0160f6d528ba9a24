package repository

import (
	"errors"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = domain.ErrNotFound

	// ErrDuplicate дубликат записи
	ErrDuplicate = domain.ErrDuplicate

	// ErrInvalidData неверные данные
	ErrInvalidData = domain.ErrInvalidInput

	// ErrReceiptNotPending CAS-переход не выполнен: запись уже не в статусе pending
	ErrReceiptNotPending = errors.New("webhook receipt is not pending")
)

const pgUniqueViolation = "23505"

// isUniqueViolation проверяет код ошибки на нарушение уникальности
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
