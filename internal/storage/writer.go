package storage

import "context"

// HistoryWriter позволяет использовать Store как приемник истории.
type HistoryWriter interface {
	SaveHistory(ctx context.Context, rec HistoryRecord) error
}

// Discard — HistoryWriter, который ничего не сохраняет.
type Discard struct{}

func (Discard) SaveHistory(ctx context.Context, rec HistoryRecord) error { return nil }
