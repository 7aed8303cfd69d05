package service

import "github.com/shenikar/neighborhood_alerts/internal/models"

// Classification - результат классификации нового алерта
type Classification struct {
	Category   string
	Severity   string
	Confidence *float64
}

// Classifier назначает категорию и уровень опасности новому алерту
type Classifier interface {
	Classify(input models.AlertInput) Classification
}

// DefaultClassifier назначает фиксированные значения, оценка уверенности не заполняется
type DefaultClassifier struct{}

func (DefaultClassifier) Classify(models.AlertInput) Classification {
	return Classification{
		Category: models.DefaultCategory,
		Severity: models.DefaultSeverity,
	}
}
