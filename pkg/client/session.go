package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenStore хранит токен сессии на стороне клиента
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryStore - потокобезопасный TokenStore в памяти
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryStore) Clear() {
	s.SetToken("")
}

// checkToken декодирует токен без проверки подписи и смотрит только на срок действия.
// Это оптимистичная проверка: сервер все равно проверяет токен на каждом запросе.
func checkToken(token string, now time.Time) error {
	if token == "" {
		return fmt.Errorf("%w: no session token", ErrUnauthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: undecodable session token", ErrUnauthenticated)
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}
	return nil
}
