package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/neighborhood_alerts/internal/auth"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/sirupsen/logrus"
)

const identityKey = "identity"

// AuthMiddleware - middleware для аутентификации по bearer-токену.
// Токен проверяется на каждом запросе, личность кладется в контекст gin.
func AuthMiddleware(guard auth.Authenticator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			log.WithField("path", c.FullPath()).Warn("Bearer token missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
			return
		}

		identity, err := guard.Authenticate(token)
		if err != nil {
			log.WithError(err).WithField("path", c.FullPath()).Warn("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// identityFrom достает личность, установленную AuthMiddleware.
// Если middleware не отработал, возвращается пустая личность и сервис ответит ErrUnauthenticated.
func identityFrom(c *gin.Context) models.Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}
	}
	identity, _ := value.(models.Identity)
	return identity
}
