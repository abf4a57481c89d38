//go:build unix

package formatter

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr выносит форматтер в отдельную группу процессов, чтобы сигнал
// доходил до всего дерева.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interrupt(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

func kill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
