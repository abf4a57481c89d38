package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hellmfmt/internal/app"
	"hellmfmt/internal/config"
	"hellmfmt/pkg/logger"
)

// ErrCheckFailed возвращается `format --check`, если есть неотформатированные
// файлы или ошибки форматтера.
var ErrCheckFailed = errors.New("some files are not formatted")

// ErrReported оборачивает ошибки, о которых команда уже сообщила в stderr.
var ErrReported = errors.New("already reported")

// env — общее состояние команд после разбора глобальных флагов.
type env struct {
	version    string
	configPath string
	colorMode  string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	useColor bool
}

// New создает корневую CLI-команду.
func New(version string) *cobra.Command {
	e := &env{version: version}
	root := &cobra.Command{
		Use:           "hellmfmt",
		Short:         "Форматирование HeLLM-исходников через `hellm parse`",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.Version = version

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "path to YAML config")
	flags.StringVar(&e.colorMode, "color", "auto", "colorize output (auto|on|off)")
	flags.StringVar(&e.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(newVersionCmd(e))
	root.AddCommand(newFormatCmd(e))
	root.AddCommand(newWatchCmd(e))
	root.AddCommand(newLSPCmd(e))
	root.AddCommand(newServeCmd(e))
	root.AddCommand(newHistoryCmd(e))
	root.AddCommand(newDoctorCmd(e))
	return root
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg

	level := e.logLevel
	if level == "" {
		level = cfg.Agent.LogLevel
	}
	// stdout занят результатом форматирования или протоколом LSP.
	e.logger = logger.New(cmd.ErrOrStderr(), level)

	switch e.colorMode {
	case "on":
		e.useColor = true
	case "off":
		e.useColor = false
	case "auto":
		e.useColor = isTerminal(cmd.OutOrStdout())
	default:
		return fmt.Errorf("invalid --color %q (want auto|on|off)", e.colorMode)
	}
	return nil
}

func (e *env) newApp(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.NewApp(ctx, e.cfg, e.logger, opts)
}

func (e *env) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if e.useColor {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// isTerminal проверяет, является ли вывод терминалом.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
