package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shenikar/neighborhood_alerts/internal/models"
)

// Issuer выпускает токены в формате внешнего сервиса авторизации.
// Используется в тестах и в alertsctl для локальной разработки.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer создает новый Issuer
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue выпускает HS256 токен для пользователя
func (i *Issuer) Issue(userID string, role models.Role, ttl time.Duration) (string, error) {
	now := i.now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
