//go:build !unix

package bootstrap

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// ExecWorkload approximates exec on platforms without execve: the workload
// runs as a child with inherited stdio, signals are forwarded, and the parent
// exits with the child's status.
func ExecWorkload(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for s := range sigs {
			_ = cmd.Process.Signal(s)
		}
	}()

	err := cmd.Wait()
	signal.Stop(sigs)
	close(sigs)
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	return err
}
