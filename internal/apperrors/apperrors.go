// Package apperrors содержит виды ошибок процесса расчётов
// и их отображение в HTTP-ответы.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind определяет вид ошибки приложения.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInsufficientFunds
	KindGateway
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindGateway:
		return "gateway"
	case KindConsistency:
		return "consistency"
	default:
		return "internal"
	}
}

// Error описывает ошибку приложения: её вид, операцию, в которой она возникла,
// и сообщение, которое можно показать клиенту.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E создаёт ошибку приложения.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation создаёт ошибку некорректного или невыполнимого запроса.
func Validation(op, message string, err error) *Error {
	return E(KindValidation, op, message, err)
}

// NotFound создаёт ошибку для неизвестного мероприятия, заказа или транзакции.
func NotFound(op, message string, err error) *Error {
	return E(KindNotFound, op, message, err)
}

// Gateway создаёт ошибку неудачного или просроченного вызова платёжного шлюза.
func Gateway(op, message string, err error) *Error {
	return E(KindGateway, op, message, err)
}

// Consistency создаёт ошибку побочного эффекта, не выполненного после сохранения статуса.
func Consistency(op, message string, err error) *Error {
	return E(KindConsistency, op, message, err)
}

// KindOf возвращает вид первой ошибки приложения в цепочке.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is сообщает, относится ли err к указанному виду.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus возвращает HTTP-статус ответа для ошибки.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает сообщение об ошибке для клиента. Подробности от шлюза
// раскрываются только при установленном exposeDetail.
func PublicMessage(err error, exposeDetail bool) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusText(http.StatusInternalServerError)
	}

	switch appErr.Kind {
	case KindGateway:
		if exposeDetail && appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return http.StatusText(http.StatusBadGateway)
	case KindConsistency, KindInternal:
		return http.StatusText(http.StatusInternalServerError)
	}

	if appErr.Message != "" {
		return appErr.Message
	}
	return http.StatusText(HTTPStatus(err))
}
