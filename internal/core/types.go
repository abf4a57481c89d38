package core

import (
	"context"

	"hellmfmt/internal/formatter"
)

// Provider определяет контракт модуля форматирования.
type Provider interface {
	Name() string
	Init(ctx context.Context) error
	// Handles сообщает, умеет ли модуль форматировать файл по этому пути.
	Handles(path string) bool
	Format(ctx context.Context, req formatter.FormatRequest) (string, error)
}

// Outcome — результат одного файла в пакетном форматировании.
type Outcome struct {
	Path     string
	Provider string
	Result   formatter.Result
	// Skipped — файл не запускался: ctx отменили раньше, чем до него дошла очередь.
	Skipped bool
}
