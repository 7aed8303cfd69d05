// Package dashboard собирает представление ленты алертов на стороне клиента:
// поиск, сортировка, постраничный вывод и точки для карты.
// Функции не делают сетевых запросов и работают с уже загруженным списком.
package dashboard

import (
	"math"
	"sort"
	"strings"

	"github.com/shenikar/neighborhood_alerts/pkg/client"
)

// PageSize - количество алертов на странице
const PageSize = 10

type SortOrder string

const (
	Newest SortOrder = "newest"
	Oldest SortOrder = "oldest"
)

// ParseSortOrder разбирает порядок сортировки; неизвестное значение дает Newest
func ParseSortOrder(s string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(s))) == Oldest {
		return Oldest
	}
	return Newest
}

// Query - состояние элементов управления ленты
type Query struct {
	Search string
	Sort   SortOrder
	Page   int
}

type Page struct {
	Items      []client.Alert
	Number     int
	TotalPages int
	Total      int
}

// Marker - точка алерта на карте
type Marker struct {
	AlertID   string
	Title     string
	Severity  string
	Latitude  float64
	Longitude float64
}

type View struct {
	Page    Page
	Markers []Marker
}

// Filter оставляет алерты, у которых заголовок, категория или место содержат query без учета регистра.
// Пробелы в query значимы.
func Filter(alerts []client.Alert, query string) []client.Alert {
	query = strings.ToLower(query)
	result := make([]client.Alert, 0, len(alerts))
	for _, a := range alerts {
		if query == "" ||
			strings.Contains(strings.ToLower(a.Title), query) ||
			strings.Contains(strings.ToLower(a.Category), query) ||
			strings.Contains(strings.ToLower(a.LocationLabel), query) {
			result = append(result, a)
		}
	}
	return result
}

// Sort возвращает отсортированную по времени создания копию. При равном времени сохраняется исходный порядок.
func Sort(alerts []client.Alert, order SortOrder) []client.Alert {
	sorted := make([]client.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if order == Oldest {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// Paginate возвращает страницу с номером page (с 1). Номер вне диапазона прижимается к границе.
func Paginate(alerts []client.Alert, page int) Page {
	total := len(alerts)
	totalPages := (total + PageSize - 1) / PageSize
	page = clampPage(page, totalPages)

	start := (page - 1) * PageSize
	end := min(start+PageSize, total)
	items := make([]client.Alert, 0, end-start)
	if start < end {
		items = append(items, alerts[start:end]...)
	}

	return Page{
		Items:      items,
		Number:     page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// Markers возвращает точки для карты. Алерты без координат в список не попадают.
func Markers(alerts []client.Alert) []Marker {
	markers := make([]Marker, 0, len(alerts))
	for _, a := range alerts {
		if !validCoordinate(a.Latitude) || !validCoordinate(a.Longitude) {
			continue
		}
		markers = append(markers, Marker{
			AlertID:   a.ID,
			Title:     a.Title,
			Severity:  a.Severity,
			Latitude:  *a.Latitude,
			Longitude: *a.Longitude,
		})
	}
	return markers
}

// Build собирает ленту: фильтр, сортировка, страница. Карта строится по всем загруженным алертам.
func Build(alerts []client.Alert, q Query) View {
	visible := Sort(Filter(alerts, q.Search), q.Sort)
	return View{
		Page:    Paginate(visible, q.Page),
		Markers: Markers(alerts),
	}
}

func clampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

func validCoordinate(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
