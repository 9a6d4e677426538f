//go:build unix

package bootstrap

import (
	"os"
	"os/exec"
	"syscall"
)

// ExecWorkload replaces the current process with argv via execve, preserving
// the environment and stdio. Signal handling belongs to the workload from
// here on. It returns only on error.
func ExecWorkload(argv []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, argv, os.Environ())
}
