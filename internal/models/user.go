// Package models содержит доменные структуры сервиса: пользователей,
// подписки, платёжные ссылки, матчи с коэффициентами и недельную статистику.
package models

import (
	"strconv"
	"time"
)

// User представляет пользователя, пришедшего из чат-транспорта.
type User struct {
	ID           int64     `json:"id"`          // Внутренний идентификатор
	ExternalID   int64     `json:"external_id"` // Идентификатор чата (уникальный)
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	RegisteredAt time.Time `json:"registered_at"`
	TrialLeft    int       `json:"trial_left"` // Остаток пробных поисков, не меньше нуля
}

// DisplayName возвращает имя для админских сообщений.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "id" + strconv.FormatInt(u.ExternalID, 10)
}
