//go:build !unix

package formatter

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// interrupt на Windows не поддерживается и вернет ошибку; тогда
// terminate сразу перейдет к kill.
func interrupt(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func kill(p *os.Process) error {
	return p.Kill()
}
