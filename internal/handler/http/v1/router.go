package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shenikar/neighborhood_alerts/internal/auth"
)

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard auth.Authenticator) {
	alerts := api.Group("/alerts", AuthMiddleware(guard, h.logger))
	{
		alerts.POST("", h.createAlert)
		alerts.GET("", h.listAlerts)
		// Статические пути регистрируются до /:id
		alerts.GET("/mine", h.listMyAlerts)
		alerts.GET("/nearby", h.listNearby)
		alerts.GET("/stats", h.getStats)
		alerts.GET("/:id", h.getAlert)
		alerts.PUT("/:id", h.updateAlert)
		alerts.DELETE("/:id", h.deleteAlert)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
