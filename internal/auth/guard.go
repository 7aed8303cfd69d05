package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shenikar/neighborhood_alerts/internal/models"
)

// ErrUnauthenticated возвращается при отсутствующем, испорченном или просроченном токене
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims - структура утверждений токена, выпускаемого внешним сервисом авторизации
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator определяет контракт проверки учетных данных
type Authenticator interface {
	Authenticate(credential string) (models.Identity, error)
}

// Guard проверяет bearer-токен и определяет личность вызывающего
type Guard struct {
	secret     []byte
	issuer     string
	skipVerify bool
	now        func() time.Time
	parser     *jwt.Parser
}

// Option настраивает Guard
type Option func(*Guard)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithIssuer требует совпадения утверждения iss
func WithIssuer(issuer string) Option {
	return func(g *Guard) { g.issuer = issuer }
}

// WithoutSignatureCheck отключает проверку подписи: токен только декодируется,
// доверие к выпуску остается на стороне внешнего сервиса.
func WithoutSignatureCheck() Option {
	return func(g *Guard) { g.skipVerify = true }
}

// NewGuard создает новый Guard
func NewGuard(secret string, opts ...Option) *Guard {
	g := &Guard{
		secret: []byte(secret),
		now:    time.Now,
		// Срок действия проверяем сами, чтобы граница exp <= now была однозначной
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()},
			SkipClaimsValidation: true,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate проверяет токен и возвращает личность вызывающего
func (g *Guard) Authenticate(credential string) (models.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return models.Identity{}, fmt.Errorf("%w: credential is missing", ErrUnauthenticated)
	}

	claims := &Claims{}
	if g.skipVerify {
		if _, _, err := g.parser.ParseUnverified(credential, claims); err != nil {
			return models.Identity{}, fmt.Errorf("%w: malformed token: %v", ErrUnauthenticated, err)
		}
	} else {
		_, err := g.parser.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return g.secret, nil
		})
		if err != nil {
			return models.Identity{}, fmt.Errorf("%w: invalid token: %v", ErrUnauthenticated, err)
		}
	}

	return g.identityFromClaims(claims)
}

func (g *Guard) identityFromClaims(claims *Claims) (models.Identity, error) {
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	if claims.ExpiresAt == nil {
		return models.Identity{}, fmt.Errorf("%w: token has no expiry", ErrUnauthenticated)
	}
	if !g.now().Before(claims.ExpiresAt.Time) {
		return models.Identity{}, fmt.Errorf("%w: token expired at %s", ErrUnauthenticated, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if g.issuer != "" && claims.Issuer != g.issuer {
		return models.Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrUnauthenticated, claims.Issuer)
	}

	role, ok := models.ParseRole(claims.Role)
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}

	return models.Identity{UserID: claims.Subject, Role: role}, nil
}

// ExtractBearer достает токен из заголовка Authorization
func ExtractBearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
