package models

import "errors"

var (
	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrPaymentLinkNotFound платёжная ссылка не найдена.
	ErrPaymentLinkNotFound = errors.New("payment link not found")
	// ErrInvalidPlan неизвестный тариф.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrConflict конфликт конкурентной записи, операцию можно повторить.
	ErrConflict = errors.New("persistence conflict")
	// ErrPaymentApplied платёж уже применён к подписке.
	ErrPaymentApplied = errors.New("payment already applied")
	// ErrUpstreamUnavailable фид коэффициентов недоступен.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
