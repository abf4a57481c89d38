package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"hellmfmt/internal/formatter"
)

var (
	errProviderExists   = errors.New("provider already registered")
	errUnknownProvider  = errors.New("unknown provider")
	errInvalidArguments = errors.New("invalid arguments")
	// ErrNoProvider возвращается, если ни один модуль не берет файл.
	ErrNoProvider = errors.New("no formatter for file")
)

// Registry хранит модули форматирования в порядке регистрации.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry создает пустой реестр модулей.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register добавляет модуль; имя должно быть уникальным.
func (r *Registry) Register(ctx context.Context, provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil: %w", errInvalidArguments)
	}
	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name is empty: %w", errInvalidArguments)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%s: %w", name, errProviderExists)
	}
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}
	r.providers[name] = provider
	r.order = append(r.order, name)
	return nil
}

// Resolve находит первый модуль, который берет файл.
func (r *Registry) Resolve(path string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if p := r.providers[name]; p.Handles(path) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNoProvider)
}

// Format форматирует файл модулем, подобранным по пути.
func (r *Registry) Format(ctx context.Context, req formatter.FormatRequest) (string, string, error) {
	p, err := r.Resolve(req.FilePath)
	if err != nil {
		return "", "", err
	}
	text, err := p.Format(ctx, req)
	return text, p.Name(), err
}

// FormatWith вызывает модуль по имени.
func (r *Registry) FormatWith(ctx context.Context, name string, req formatter.FormatRequest) (string, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", name, errUnknownProvider)
	}
	return p.Format(ctx, req)
}

// FormatAll форматирует файлы параллельно, не больше jobs одновременно.
// Ошибка одного файла не отменяет остальные; результаты идут в порядке reqs.
// Возвращает ctx.Err(), если контекст отменен до конца пакета.
func (r *Registry) FormatAll(ctx context.Context, reqs []formatter.FormatRequest, jobs int) ([]Outcome, error) {
	return Batch(ctx, reqs, jobs, func(ctx context.Context, req formatter.FormatRequest) Outcome {
		text, name, err := r.Format(ctx, req)
		return Outcome{Path: req.FilePath, Provider: name, Result: formatter.NewResult(text, err)}
	})
}

// Batch выполняет fn для каждого запроса, не больше jobs одновременно
// (jobs <= 0 — по числу GOMAXPROCS). Запросы, до которых очередь дошла
// после отмены ctx, получают ошибку контекста без запуска fn.
func Batch(ctx context.Context, reqs []formatter.FormatRequest, jobs int, fn func(ctx context.Context, req formatter.FormatRequest) Outcome) ([]Outcome, error) {
	out := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(min(jobs, len(reqs)))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Path: req.FilePath, Result: formatter.NewResult("", err), Skipped: true}
			continue
		}
		g.Go(func() error {
			// Индексы уникальны для каждой горутины, мьютекс не нужен.
			out[i] = fn(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

// Providers возвращает имена модулей в порядке регистрации.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
