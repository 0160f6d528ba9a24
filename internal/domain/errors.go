package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrDuplicateEvent событие уже обработано или обрабатывается другим вызовом
	ErrDuplicateEvent = errors.New("duplicate webhook event")

	// ErrCorrelationUnresolved не удалось связать объекты двух процессоров
	ErrCorrelationUnresolved = errors.New("cross-processor correlation unresolved")

	// ErrChargeRejected Conekta отклонила платеж
	ErrChargeRejected = errors.New("charge rejected by secondary processor")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")

	// ErrReplayNotAllowed событие нельзя обработать повторно в текущем статусе
	ErrReplayNotAllowed = errors.New("webhook event cannot be replayed")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
)

// RejectionCode причина отказа платежа
type RejectionCode string

const (
	RejectionCardDeclined      RejectionCode = "card_declined"
	RejectionInsufficientFunds RejectionCode = "insufficient_funds"
	RejectionGeneric           RejectionCode = "processing_error"
)

// ChargeRejectedError - типизированный отказ Conekta при создании заказа
type ChargeRejectedError struct {
	Code      RejectionCode
	Message   string
	InvoiceID string
}

// Error реализует интерфейс error
func (e *ChargeRejectedError) Error() string {
	return fmt.Sprintf("charge rejected [%s]: %s (invoice_id: %s)", e.Code, e.Message, e.InvoiceID)
}

// Is позволяет сравнивать с ErrChargeRejected
func (e *ChargeRejectedError) Is(target error) bool {
	return target == ErrChargeRejected
}

// UserMessage возвращает понятное клиенту сообщение
func (e *ChargeRejectedError) UserMessage() string {
	switch e.Code {
	case RejectionCardDeclined:
		return "Card declined. Please check your details or try another card."
	case RejectionInsufficientFunds:
		return "Insufficient funds on the card."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "The payment could not be processed."
	}
}

// NewChargeRejectedError приводит тип ошибки Conekta к RejectionCode
func NewChargeRejectedError(errorType, message, invoiceID string) *ChargeRejectedError {
	code := RejectionGeneric
	switch RejectionCode(errorType) {
	case RejectionCardDeclined:
		code = RejectionCardDeclined
	case RejectionInsufficientFunds:
		code = RejectionInsufficientFunds
	}
	return &ChargeRejectedError{Code: code, Message: message, InvoiceID: invoiceID}
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}
