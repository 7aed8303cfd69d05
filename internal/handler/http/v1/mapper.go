package v1

import "github.com/shenikar/neighborhood_alerts/internal/models"

// ModelToAlertResponse преобразует доменную модель в DTO для ответа
func ModelToAlertResponse(model *models.Alert) *AlertResponse {
	return &AlertResponse{
		ID:              model.ID,
		OwnerID:         model.OwnerID,
		Title:           model.Title,
		Description:     model.Description,
		Category:        model.Category,
		Severity:        model.Severity,
		Latitude:        model.Latitude,
		Longitude:       model.Longitude,
		LocationLabel:   model.LocationLabel,
		MediaURL:        model.MediaURL,
		ConfidenceScore: model.ConfidenceScore,
		CreatedAt:       model.CreatedAt,
	}
}

// ModelsToAlertResponses преобразует слайс моделей в слайс DTO
func ModelsToAlertResponses(alerts []*models.Alert) []*AlertResponse {
	responses := make([]*AlertResponse, len(alerts))
	for i, model := range alerts {
		responses[i] = ModelToAlertResponse(model)
	}
	return responses
}

func ModelToStatsResponse(stats *models.AlertStats) *StatsResponse {
	return &StatsResponse{
		WindowMinutes: stats.WindowMinutes,
		Total:         stats.Total,
		BySeverity:    stats.BySeverity,
	}
}
