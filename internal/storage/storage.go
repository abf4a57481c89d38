package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается, если записи нет.
var ErrNotFound = errors.New("record not found")

// HistoryRecord фиксирует один запрос форматирования.
type HistoryRecord struct {
	RequestID string        `json:"request_id"`
	Source    string        `json:"source"`
	Subject   string        `json:"subject,omitempty"`
	Path      string        `json:"path"`
	Provider  string        `json:"provider,omitempty"`
	Status    string        `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	ExitCode  int           `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	TS        time.Time     `json:"ts"`
}

// HistoryQuery задает фильтры выборки истории.
type HistoryQuery struct {
	From  time.Time
	To    time.Time
	Path  string
	Limit int
}

// Store описывает операции хранилища.
type Store interface {
	SaveHistory(ctx context.Context, rec HistoryRecord) error
	LatestForPath(ctx context.Context, path string) (HistoryRecord, error)
	QueryHistory(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error)
	Close() error
}
