package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"hellmfmt/internal/core"
	"hellmfmt/internal/formatter"
	"hellmfmt/internal/project"
	"hellmfmt/internal/transports/common"
)

// Resolver сообщает, есть ли провайдер для файла.
type Resolver interface {
	Resolve(path string) (core.Provider, error)
}

type fileStamp struct {
	mod  time.Time
	size int64
}

// Watcher опрашивает каталоги и переформатирует измененные файлы.
// Первый проход только запоминает состояние файлов.
type Watcher struct {
	service  *common.Service
	resolver Resolver
	dirs     []string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	seen   map[string]fileStamp
	primed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher создает watch-хост.
func NewWatcher(service *common.Service, resolver Resolver, dirs []string, interval time.Duration, lg *slog.Logger) *Watcher {
	if lg == nil {
		lg = slog.Default()
	}
	return &Watcher{
		service:  service,
		resolver: resolver,
		dirs:     append([]string(nil), dirs...),
		interval: interval,
		logger:   lg.With("transport", "watch"),
		seen:     make(map[string]fileStamp),
	}
}

func (w *Watcher) Name() string { return "watch" }

// Start запускает опрос в фоне.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return errors.New("watch already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	w.mu.Unlock()

	sched := core.NewScheduler(w.interval)
	sched.OnError = func(err error) {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("watch scan failed", "err", err)
		}
	}
	sched.Add(w.Scan)
	w.logger.Info("watching", "dirs", w.dirs, "interval", w.interval)
	go func() {
		defer close(done)
		sched.Start(runCtx)
	}()
	return nil
}

// Stop отменяет опрос и ждет текущий проход; запущенный форматтер будет остановлен.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run опрашивает каталоги до отмены ctx.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop(context.Background())
}

// Scan выполняет один проход опроса.
func (w *Watcher) Scan(ctx context.Context) error {
	current := make(map[string]fileStamp)
	for _, dir := range w.dirs {
		if err := w.collect(ctx, dir, current); err != nil {
			return fmt.Errorf("scan %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	prev, primed := w.seen, w.primed
	w.mu.Unlock()

	var changed []string
	if primed {
		for path, st := range current {
			old, ok := prev[path]
			if !ok || !old.mod.Equal(st.mod) || old.size != st.size {
				changed = append(changed, path)
			}
		}
	}
	sort.Strings(changed)

	for _, path := range changed {
		if ctx.Err() != nil {
			break
		}
		if !w.formatFile(ctx, path) {
			continue
		}
		// Собственная запись не должна считаться изменением.
		if info, err := os.Stat(path); err == nil {
			current[path] = fileStamp{mod: info.ModTime(), size: info.Size()}
		}
	}

	w.mu.Lock()
	w.seen, w.primed = current, true
	w.mu.Unlock()
	return ctx.Err()
}

func (w *Watcher) collect(ctx context.Context, root string, out map[string]fileStamp) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, err := w.resolver.Resolve(path); err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = fileStamp{mod: info.ModTime(), size: info.Size()}
		return nil
	})
}

// formatFile возвращает true, если файл был перезаписан.
func (w *Watcher) formatFile(ctx context.Context, path string) bool {
	original, err := os.ReadFile(path) // #nosec G304 -- путь получен обходом наблюдаемого каталога.
	if err != nil {
		w.logger.Warn("read changed file", "path", path, "err", err)
		return false
	}
	req := formatter.FormatRequest{FilePath: path}
	if m, err := project.Discover(filepath.Dir(path)); err == nil && m != nil {
		req.WorkingDir = m.Root
	}
	res := w.service.Format(ctx, "", req)
	if !res.OK() {
		if ctx.Err() == nil {
			w.logger.Warn("HeLLM format error", "path", path, "error_code", common.ErrorCode(res.Err), "message", formatter.UserMessage(res.Err))
		}
		return false
	}
	if res.Text == string(original) {
		return false
	}
	if err := WriteFormatted(path, res.Text); err != nil {
		w.logger.Warn("rewrite file", "path", path, "err", err)
		return false
	}
	w.logger.Info("formatted", "path", path)
	return true
}
