package domain

import "errors"

var (
	// ErrMalformedEvent — событие не удалось разобрать или в нём нарушена структура.
	ErrMalformedEvent = errors.New("malformed order event")
	// ErrInvalidPageRequest — некорректные параметры страницы.
	ErrInvalidPageRequest = errors.New("invalid page request")
	// ErrInvalidCustomerID — идентификатор клиента должен быть положительным.
	ErrInvalidCustomerID = errors.New("customer id must be positive")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
)

// IsMalformedEvent проверяет, что ошибка вызвана некорректным входящим событием.
// Такие сообщения нет смысла доставлять повторно.
func IsMalformedEvent(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}
