package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hellmfmt/internal/config"
	"hellmfmt/internal/core"
	"hellmfmt/internal/modules/hellm"
	"hellmfmt/internal/project"
	"hellmfmt/internal/storage"
	"hellmfmt/internal/storage/sqlite"
	"hellmfmt/internal/transports/common"
	"hellmfmt/internal/transports/web"
)

// Options переопределяет параметры форматтера поверх конфига и hellm.toml.
type Options struct {
	// StartDir — каталог, от которого ищется hellm.toml; пустой — поиск не выполняется.
	StartDir   string
	Executable string
	Timeout    time.Duration
}

// App агрегирует зависимости ядра.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Registry   *core.Registry
	Module     *hellm.Module
	Manifest   *project.Manifest
	Authorizer *core.PathAuthorizer
	Limiter    *common.RateLimiter
	// Store nil, если история выключена.
	Store storage.Store
}

// NewApp строит приложение: реестр модулей, хранилище истории и политику доступа.
// Приоритет параметров форматтера: флаги, затем hellm.toml, затем конфиг.
func NewApp(ctx context.Context, cfg config.Config, lg *slog.Logger, opts Options) (*App, error) {
	if lg == nil {
		lg = slog.Default()
	}

	var manifest *project.Manifest
	if opts.StartDir != "" {
		m, err := project.Discover(opts.StartDir)
		if err != nil {
			return nil, fmt.Errorf("load project manifest: %w", err)
		}
		manifest = m
	}

	exe, timeout, grace := cfg.Formatter.Executable, cfg.Timeout(), cfg.Grace()
	if manifest != nil {
		if manifest.Format.Executable != "" {
			exe = manifest.Format.Executable
		}
		if manifest.Format.Timeout.Duration > 0 {
			timeout = manifest.Format.Timeout.Duration
		}
		if manifest.Format.Grace.Duration > 0 {
			grace = manifest.Format.Grace.Duration
		}
		lg.Debug("project manifest applied", "manifest", manifest.Path)
	}
	if opts.Executable != "" {
		exe = opts.Executable
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	module := hellm.New(exe, timeout, grace, lg)
	r := core.NewRegistry()
	if err := r.Register(ctx, module); err != nil {
		return nil, fmt.Errorf("register hellm module: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     lg,
		Registry:   r,
		Module:     module,
		Manifest:   manifest,
		Authorizer: core.NewPathAuthorizer(cfg.Security.AllowedRoots),
		Limiter:    common.NewRateLimiter(cfg.Security.RateLimit, time.Duration(cfg.Security.RateWindowMS)*time.Millisecond),
	}

	if cfg.SQLite.Enabled {
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.Store = st
	}
	return a, nil
}

// History возвращает приемник истории; без хранилища записи отбрасываются.
func (a *App) History() storage.HistoryWriter {
	if a.Store == nil {
		return storage.Discard{}
	}
	return a.Store
}

// LocalService — пайплайн для локальных транспортов (cli, lsp, watch):
// пользователь уже владеет файлами, поэтому без authz и лимитов.
func (a *App) LocalService(source string) *common.Service {
	return &common.Service{
		Source:    source,
		Formatter: a.Registry,
		History:   a.History(),
		Logger:    a.Logger,
	}
}

// RemoteService — пайплайн для сетевых транспортов.
func (a *App) RemoteService(source string) *common.Service {
	svc := a.LocalService(source)
	svc.Authorizer = a.Authorizer
	svc.RateLimiter = a.Limiter
	return svc
}

// WorkingDir — каталог запуска форматтера для файлов этого приложения.
func (a *App) WorkingDir() string {
	if a.Manifest != nil {
		return a.Manifest.Root
	}
	return ""
}

// Close высвобождает ресурсы приложения.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// Hosts собирает хосты для serve: web и, если заданы каталоги, watch.
func (a *App) Hosts() (*core.HostManager, error) {
	hosts := core.NewHostManager()

	tokens := make([]web.TokenEntry, 0, len(a.Config.Web.Tokens))
	for _, token := range a.Config.Web.Tokens {
		tokens = append(tokens, web.TokenEntry{
			ID:          token.ID,
			TokenSHA256: token.TokenSHA256,
			Subject:     token.Subject,
			Enabled:     token.Enabled,
		})
	}
	if len(a.Authorizer.Roots()) == 0 {
		a.Logger.Warn("security.allowed_roots is empty: every web format request will be denied")
	}
	webAdapter := web.NewAdapter(a.RemoteService("web"), a.Store, web.Config{
		ListenAddr:         a.Config.Web.ListenAddr,
		ReadTimeout:        time.Duration(a.Config.Web.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:       time.Duration(a.Config.Web.WriteTimeoutMS) * time.Millisecond,
		RequestTimeout:     time.Duration(a.Config.Web.RequestTimeoutMS) * time.Millisecond,
		ShutdownTimeout:    time.Duration(a.Config.Web.ShutdownTimeoutS) * time.Second,
		MaxRequestBody:     a.Config.Web.MaxBodyBytes,
		AllowSubjectHeader: a.Config.Web.AllowSubjectHeader,
		Tokens:             tokens,
	}, a.Logger.With("transport", "web"))
	if err := hosts.Register(webAdapter); err != nil {
		return nil, fmt.Errorf("register web transport: %w", err)
	}

	if len(a.Config.Watch.Dirs) > 0 {
		w := NewWatcher(a.LocalService("watch"), a.Registry, a.Config.Watch.Dirs, a.Config.WatchInterval(), a.Logger)
		if err := hosts.Register(w); err != nil {
			return nil, fmt.Errorf("register watch host: %w", err)
		}
	}
	return hosts, nil
}

// Serve запускает хосты и держит их до отмены ctx.
func (a *App) Serve(ctx context.Context) error {
	hosts, err := a.Hosts()
	if err != nil {
		return err
	}
	if err := hosts.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hosts.StopAll(stopCtx); err != nil {
		return fmt.Errorf("stop transports: %w", err)
	}
	return nil
}
