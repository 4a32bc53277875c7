// Package jwt реализует выпуск и проверку JWT токенов для клиентов API.
//
// Токены выпускаются для двух ролей: бот чат-транспорта и администратор.
package jwt

import (
	"time"
)

const (
	// RoleBot роль процесса чат-транспорта.
	RoleBot = "bot"
	// RoleAdmin роль администратора.
	RoleAdmin = "admin"
)

// Maker описывает выпуск и разбор JWT токенов.
type Maker interface {
	GenerateToken(subject, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на HS256 с общим секретом и временем жизни токена.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
