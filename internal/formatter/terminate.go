package formatter

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"fortio.org/safecast"
	"github.com/shirou/gopsutil/v3/process"
)

// terminate останавливает процесс и его потомков: сначала мягко, после
// grace — принудительно. Возвращает результат Wait; после возврата лидер
// гарантированно собран.
func (a *Adapter) terminate(cmd *exec.Cmd, done <-chan error) error {
	ctx := context.Background()
	lg := a.logger().With("pid", cmd.Process.Pid)

	// Дерево снимаем до сигналов: после смерти лидера потомки теряют родителя.
	tree := descendants(ctx, cmd.Process.Pid)

	if err := interrupt(cmd.Process); err != nil {
		lg.Debug("graceful stop failed, killing", "err", err)
		return forceKill(ctx, cmd, tree, done)
	}
	for _, p := range tree {
		_ = p.TerminateWithContext(ctx)
	}

	timer := time.NewTimer(a.grace())
	defer timer.Stop()
	select {
	case err := <-done:
		sweep(ctx, cmd, tree)
		return err
	case <-timer.C:
	}
	lg.Warn("formatter ignored termination signal, killing", "grace", a.grace())
	return forceKill(ctx, cmd, tree, done)
}

func forceKill(ctx context.Context, cmd *exec.Cmd, tree []*process.Process, done <-chan error) error {
	_ = kill(cmd.Process)
	for _, p := range tree {
		_ = p.KillWithContext(ctx)
	}
	return <-done
}

// reapGroup убивает группу процессов форматтера после его выхода.
// Группа живет, пока в ней есть хоть один процесс, поэтому pgid не
// переиспользуется.
func reapGroup(lg *slog.Logger, cmd *exec.Cmd, waitErr error) {
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		lg.Warn("formatter left output pipes open after exit, killing its process group")
	}
	_ = kill(cmd.Process)
}

// sweep добивает потомков, переживших мягкую остановку лидера.
func sweep(ctx context.Context, cmd *exec.Cmd, tree []*process.Process) {
	_ = kill(cmd.Process)
	for _, p := range tree {
		if running, err := p.IsRunningWithContext(ctx); err == nil && running {
			_ = p.KillWithContext(ctx)
		}
	}
}

// descendants обходит дерево потомков pid в ширину.
func descendants(ctx context.Context, pid int) []*process.Process {
	root, err := safecast.Conv[int32](pid)
	if err != nil {
		return nil
	}
	p, err := process.NewProcessWithContext(ctx, root)
	if err != nil {
		return nil
	}
	var out []*process.Process
	queue := []*process.Process{p}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := cur.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}
