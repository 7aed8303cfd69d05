package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/shenikar/neighborhood_alerts/pkg/client"
)

// ErrSuperseded возвращается из Refresh, если пока шла загрузка, был запущен более новый Refresh.
// Результат такой загрузки отбрасывается.
var ErrSuperseded = errors.New("dashboard: fetch superseded by a newer one")

type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "loading"
}

// AlertLister загружает ленту; *client.Client удовлетворяет этому интерфейсу
type AlertLister interface {
	ListAlerts(ctx context.Context) ([]client.Alert, error)
}

// State - снимок состояния ленты. View заполнен только в StatusReady.
type State struct {
	Status Status
	Error  string
	Query  Query
	View   View
}

// Board хранит состояние ленты: Loading -> Ready | Error.
// Повторных попыток загрузки нет, ошибка показывается пользователю.
type Board struct {
	mu     sync.Mutex
	lister AlertLister
	status Status
	errMsg string
	alerts []client.Alert
	query  Query
	seq    uint64
}

func NewBoard(lister AlertLister) *Board {
	return &Board{
		lister: lister,
		status: StatusLoading,
		query:  Query{Sort: Newest, Page: 1},
	}
}

// Refresh загружает ленту. Применяется только результат последнего запущенного Refresh.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.status = StatusLoading
	b.errMsg = ""
	b.mu.Unlock()

	alerts, err := b.lister.ListAlerts(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.seq {
		return ErrSuperseded
	}
	if err != nil {
		b.status = StatusError
		b.errMsg = err.Error()
		return err
	}
	b.alerts = alerts
	b.status = StatusReady
	b.query.Page = b.clampedPage(b.query.Page)
	return nil
}

// SetSearch меняет строку поиска и возвращает на первую страницу
func (b *Board) SetSearch(search string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Search = search
	b.query.Page = 1
}

// SetSort меняет порядок сортировки и возвращает на первую страницу
func (b *Board) SetSort(order SortOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Sort = order
	b.query.Page = 1
}

// SetPage переходит на страницу, не трогая поиск и сортировку
func (b *Board) SetPage(page int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Page = b.clampedPage(page)
}

func (b *Board) NextPage() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Page = b.clampedPage(b.query.Page + 1)
}

func (b *Board) PrevPage() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query.Page = b.clampedPage(b.query.Page - 1)
}

func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := State{Status: b.status, Error: b.errMsg, Query: b.query}
	if b.status == StatusReady {
		state.View = Build(b.alerts, b.query)
	}
	return state
}

// clampedPage прижимает номер страницы, когда лента загружена. Вызывается под b.mu.
func (b *Board) clampedPage(page int) int {
	if b.status != StatusReady {
		return max(page, 1)
	}
	filtered := Filter(b.alerts, b.query.Search)
	return clampPage(page, (len(filtered)+PageSize-1)/PageSize)
}
