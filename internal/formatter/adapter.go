package formatter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// Subcommand — точка входа форматирования во внешнем инструменте.
	Subcommand = "parse"
	// DefaultExecutable ищется через PATH.
	DefaultExecutable = "hellm"
	// DefaultGrace — пауза между SIGTERM и SIGKILL.
	DefaultGrace = 2 * time.Second
)

// FormatRequest описывает один запуск форматтера.
type FormatRequest struct {
	FilePath   string
	WorkingDir string
	// Executable пустой — используется Adapter.Executable.
	Executable string
	// Timeout > 0 заменяет бюджет времени провайдера. Adapter.Format его
	// не читает: там бюджет передается явно.
	Timeout time.Duration
}

// Adapter запускает внешний форматтер как `<exe> parse <file>` и
// классифицирует результат.
type Adapter struct {
	Executable string
	Grace      time.Duration
	Logger     *slog.Logger
}

// New создает адаптер; пустые значения заменяются значениями по умолчанию.
func New(executable string, grace time.Duration, lg *slog.Logger) *Adapter {
	return &Adapter{Executable: executable, Grace: grace, Logger: lg}
}

// Format запускает форматтер и ждет одного из исходов: выход процесса,
// ошибка запуска, истечение timeout или отмена ctx. timeout <= 0 отключает
// ограничение. При отмене ctx возвращается обернутый ctx.Err().
func (a *Adapter) Format(ctx context.Context, req FormatRequest, timeout time.Duration) (string, error) {
	exe := req.Executable
	if exe == "" {
		exe = a.executable()
	}
	lg := a.logger().With("file", req.FilePath, "executable", exe)

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.Command(exe, Subcommand, req.FilePath) // #nosec G204 -- путь к форматтеру задается конфигом оператора.
	cmd.Dir = req.WorkingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Потомок может держать pipe открытым после выхода лидера.
	cmd.WaitDelay = a.grace()
	setProcAttr(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		lg.Debug("formatter spawn failed", "err", err)
		return "", &Error{Kind: SpawnError, Message: err.Error()}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		lg.Debug("formatter exited", "pid", cmd.Process.Pid, "elapsed", time.Since(started))
		// Лидер вышел, но фоновые потомки в его группе могли остаться.
		reapGroup(lg, cmd, waitErr)
		return classify(lg, exe, cmd.ProcessState, waitErr, stdout.Bytes(), stderr.Bytes())
	case <-runCtx.Done():
	}

	a.terminate(cmd, done)
	if err := ctx.Err(); err != nil {
		lg.Debug("formatter canceled", "pid", cmd.Process.Pid, "err", err)
		return "", fmt.Errorf("format %s: %w", req.FilePath, err)
	}
	lg.Warn("formatter timed out", "pid", cmd.Process.Pid, "timeout", timeout)
	return "", &Error{Kind: Timeout, Message: fmt.Sprintf("formatting timed out after %s", timeout)}
}

func classify(lg *slog.Logger, exe string, state *os.ProcessState, waitErr error, stdout, stderr []byte) (string, error) {
	if state == nil {
		// Wait не дошел до процесса: считаем, что запуск не состоялся.
		msg := "process state unavailable"
		if waitErr != nil {
			msg = waitErr.Error()
		}
		return "", &Error{Kind: SpawnError, Message: msg}
	}
	code := state.ExitCode()
	if code == 0 {
		if len(stderr) > 0 {
			lg.Debug("formatter stderr on success", "stderr", string(stderr))
		}
		return string(stdout), nil
	}
	return "", &Error{
		Kind:     NonZeroExit,
		Message:  fmt.Sprintf("%s %s failed with code %d: %s", filepath.Base(exe), Subcommand, code, stderr),
		ExitCode: code,
		Stderr:   string(stderr),
	}
}

func (a *Adapter) executable() string {
	if a == nil || a.Executable == "" {
		return DefaultExecutable
	}
	return a.Executable
}

func (a *Adapter) grace() time.Duration {
	if a == nil || a.Grace <= 0 {
		return DefaultGrace
	}
	return a.Grace
}

func (a *Adapter) logger() *slog.Logger {
	if a == nil || a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
