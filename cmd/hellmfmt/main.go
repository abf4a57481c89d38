package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"hellmfmt/internal/transports/cli"
	"hellmfmt/pkg/logger"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.New(buildVersion())
	err := root.ExecuteContext(ctx)
	stop()
	code, report := exitCode(err)
	if report {
		// Логгер команды мог не успеть собраться, если упал разбор флагов.
		logger.New(os.Stderr, "").Error("command failed", "err", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode выбирает код выхода и нужно ли еще раз печатать ошибку.
func exitCode(err error) (int, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, context.Canceled):
		return 130, false
	case errors.Is(err, cli.ErrCheckFailed), errors.Is(err, cli.ErrReported):
		return 1, false
	default:
		return 1, true
	}
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}
