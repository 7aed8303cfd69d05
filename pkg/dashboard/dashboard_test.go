package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shenikar/neighborhood_alerts/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func alertAt(id string, minutes int) client.Alert {
	return client.Alert{
		ID:        id,
		Title:     "Alert " + id,
		Category:  "General",
		Latitude:  f(12.97),
		Longitude: f(77.59),
		CreatedAt: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func manyAlerts(n int) []client.Alert {
	alerts := make([]client.Alert, n)
	for i := range alerts {
		alerts[i] = alertAt(fmt.Sprintf("%02d", i), i)
	}
	return alerts
}

func ids(alerts []client.Alert) []string {
	result := make([]string, len(alerts))
	for i, a := range alerts {
		result[i] = a.ID
	}
	return result
}

func TestFilter(t *testing.T) {
	alerts := []client.Alert{
		{ID: "1", Title: "Fire near market", Category: "General", LocationLabel: "Main St"},
		{ID: "2", Title: "Broken light", Category: "Infrastructure", LocationLabel: "MG Road"},
		{ID: "3", Title: "Suspicious car", Category: "Crime", LocationLabel: ""},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty query matches all", query: "", want: []string{"1", "2", "3"}},
		{name: "title case-insensitive", query: "FIRE", want: []string{"1"}},
		{name: "category", query: "infra", want: []string{"2"}},
		{name: "location label", query: "mg road", want: []string{"2"}},
		{name: "union of fields", query: "r", want: []string{"1", "2", "3"}},
		{name: "no match", query: "flood", want: []string{}},
		{name: "spaces are significant", query: " fire", want: []string{}},
		{name: "inner space matches", query: "near m", want: []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(alerts, tt.query)))
		})
	}
}

func TestSort_StableOnEqualTimestamps(t *testing.T) {
	alerts := []client.Alert{alertAt("a", 5), alertAt("b", 1), alertAt("c", 5), alertAt("d", 3)}

	assert.Equal(t, []string{"a", "c", "d", "b"}, ids(Sort(alerts, Newest)))
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(Sort(alerts, Oldest)))
	// Исходный список не меняется
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(alerts))
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, Oldest, ParseSortOrder(" Oldest "))
	assert.Equal(t, Newest, ParseSortOrder("newest"))
	assert.Equal(t, Newest, ParseSortOrder("random"))
}

func TestPaginate(t *testing.T) {
	alerts := manyAlerts(23)

	tests := []struct {
		name      string
		page      int
		wantNum   int
		wantItems int
		wantFirst string
	}{
		{name: "first page", page: 1, wantNum: 1, wantItems: 10, wantFirst: "00"},
		{name: "last partial page", page: 3, wantNum: 3, wantItems: 3, wantFirst: "20"},
		{name: "clamps above range", page: 99, wantNum: 3, wantItems: 3, wantFirst: "20"},
		{name: "clamps below range", page: -4, wantNum: 1, wantItems: 10, wantFirst: "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Paginate(alerts, tt.page)

			assert.Equal(t, tt.wantNum, page.Number)
			assert.Equal(t, 3, page.TotalPages)
			assert.Equal(t, 23, page.Total)
			require.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantFirst, page.Items[0].ID)
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	page := Paginate(nil, 3)

	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 0, page.TotalPages)
	assert.Empty(t, page.Items)
}

func TestMarkers_SkipsAlertsWithoutCoordinates(t *testing.T) {
	alerts := []client.Alert{
		{ID: "ok", Latitude: f(12.9), Longitude: f(77.5)},
		{ID: "none"},
		{ID: "lat-only", Latitude: f(12.9)},
		{ID: "nan", Latitude: f(math.NaN()), Longitude: f(77.5)},
		{ID: "zero", Latitude: f(0), Longitude: f(0)},
	}

	markers := Markers(alerts)

	require.Len(t, markers, 2)
	assert.Equal(t, "ok", markers[0].AlertID)
	assert.Equal(t, "zero", markers[1].AlertID)
}

func TestBuild_ListKeepsAlertsWithoutCoordinates(t *testing.T) {
	alerts := []client.Alert{alertAt("a", 1), {ID: "b", Title: "No coords", CreatedAt: base.Add(time.Hour)}}

	view := Build(alerts, Query{Sort: Newest, Page: 1})

	assert.Equal(t, []string{"b", "a"}, ids(view.Page.Items))
	require.Len(t, view.Markers, 1)
	assert.Equal(t, "a", view.Markers[0].AlertID)
}

type listerFunc func(ctx context.Context) ([]client.Alert, error)

func (fn listerFunc) ListAlerts(ctx context.Context) ([]client.Alert, error) { return fn(ctx) }

func staticLister(alerts []client.Alert) listerFunc {
	return func(context.Context) ([]client.Alert, error) { return alerts, nil }
}

func TestBoard_LoadingThenReady(t *testing.T) {
	board := NewBoard(staticLister(manyAlerts(15)))

	assert.Equal(t, StatusLoading, board.State().Status)

	require.NoError(t, board.Refresh(context.Background()))

	state := board.State()
	assert.Equal(t, StatusReady, state.Status)
	assert.Equal(t, 2, state.View.Page.TotalPages)
	// По умолчанию новые первыми
	assert.Equal(t, "14", state.View.Page.Items[0].ID)
}

func TestBoard_ErrorStateWithoutRetry(t *testing.T) {
	var calls int32
	board := NewBoard(listerFunc(func(context.Context) ([]client.Alert, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("Failed to fetch alerts")
	}))

	err := board.Refresh(context.Background())

	require.Error(t, err)
	state := board.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, "Failed to fetch alerts", state.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBoard_SearchAndSortResetPage(t *testing.T) {
	board := NewBoard(staticLister(manyAlerts(25)))
	require.NoError(t, board.Refresh(context.Background()))

	board.SetPage(3)
	assert.Equal(t, 3, board.State().Query.Page)

	board.SetSearch("alert")
	assert.Equal(t, 1, board.State().Query.Page)

	board.SetPage(2)
	board.SetSort(Oldest)
	state := board.State()
	assert.Equal(t, 1, state.Query.Page)
	assert.Equal(t, "alert", state.Query.Search)
}

func TestBoard_PageChangeKeepsSearchAndSort(t *testing.T) {
	board := NewBoard(staticLister(manyAlerts(25)))
	require.NoError(t, board.Refresh(context.Background()))
	board.SetSearch("alert")
	board.SetSort(Oldest)

	board.NextPage()
	board.NextPage()
	board.NextPage() // за последней страницей

	state := board.State()
	assert.Equal(t, 3, state.Query.Page)
	assert.Equal(t, "alert", state.Query.Search)
	assert.Equal(t, Oldest, state.Query.Sort)
	assert.Equal(t, "20", state.View.Page.Items[0].ID)

	board.PrevPage()
	assert.Equal(t, 2, board.State().Query.Page)
}

func TestBoard_LastDispatchedFetchWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	stale := []client.Alert{alertAt("stale", 1)}
	fresh := []client.Alert{alertAt("fresh", 2)}

	board := NewBoard(listerFunc(func(context.Context) ([]client.Alert, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return stale, nil
		}
		return fresh, nil
	}))

	done := make(chan error, 1)
	go func() { done <- board.Refresh(context.Background()) }()
	<-started

	require.NoError(t, board.Refresh(context.Background()))
	close(release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	state := board.State()
	assert.Equal(t, StatusReady, state.Status)
	assert.Equal(t, []string{"fresh"}, ids(state.View.Page.Items))
}
