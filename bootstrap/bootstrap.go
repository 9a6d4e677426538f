// Package bootstrap implements the container startup sequence: block until the
// database accepts connections, apply schema migrations, run the idempotent
// data seed, then replace the process with the requested workload.
//
// Only the application role runs migrations and seeding; auxiliary roles
// (workers, one-off commands) go straight from the readiness wait to exec.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// ErrDependencyUnreachable is returned by WaitForDependency when the
// configured maximum wait elapses without a successful connection.
var ErrDependencyUnreachable = errors.New("dependency unreachable")

// Role selects which startup steps run before exec.
type Role string

const (
	// RoleApplication runs migrations and seeding before exec.
	RoleApplication Role = "application"
	// RoleAuxiliary skips migrations and seeding.
	RoleAuxiliary Role = "auxiliary"
)

// RoleForCommand derives the startup role from the command line: the first
// argument equal to appCommand marks the application server container. Every
// other command is auxiliary. Kept for compatibility with compose files that
// pass the raw command; new deployments can set the role explicitly.
func RoleForCommand(appCommand string, argv []string) Role {
	if len(argv) > 0 && argv[0] == appCommand {
		return RoleApplication
	}
	return RoleAuxiliary
}

// Orchestrator holds the injected steps of the startup sequence. All fields
// except Dial, Migrate, Seed and Exec have working defaults.
type Orchestrator struct {
	// Dial attempts a single TCP-level reachability probe. Defaults to a
	// net.Dialer with a per-attempt timeout of PollInterval.
	Dial func(ctx context.Context, addr string) (net.Conn, error)

	// Migrate applies pending schema migrations. Fatal on error.
	Migrate func(ctx context.Context) error

	// Seed runs the idempotent initial-data step. Fatal on error.
	Seed func(ctx context.Context) error

	// Exec replaces the current process with the workload. On success it
	// does not return.
	Exec func(argv []string) error

	// PollInterval is the fixed delay between failed probes. Defaults to 2s.
	PollInterval time.Duration

	// MaxWait bounds the readiness wait. Zero means wait forever, matching
	// the compose-era behavior where the database always eventually starts.
	MaxWait time.Duration
}

func (o *Orchestrator) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return 2 * time.Second
}

// WaitForDependency polls addr until a TCP connection succeeds. The first
// attempt is immediate; each failure sleeps PollInterval before the next try.
// A single successful dial is sufficient. When MaxWait is set and exceeded it
// returns ErrDependencyUnreachable wrapping the last dial error; context
// cancellation aborts the wait.
func (o *Orchestrator) WaitForDependency(ctx context.Context, addr string) error {
	dial := o.Dial
	if dial == nil {
		d := net.Dialer{Timeout: o.pollInterval()}
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}

	var deadline time.Time
	if o.MaxWait > 0 {
		deadline = time.Now().Add(o.MaxWait)
	}

	attempts := 0
	var lastErr error
	for {
		attempts++
		conn, err := dial(ctx, addr)
		if err == nil {
			_ = conn.Close()
			slog.Info("dependency reachable", slog.String("addr", addr), slog.Int("attempts", attempts))
			return nil
		}
		lastErr = err
		slog.Info("waiting for dependency", slog.String("addr", addr), slog.Int("attempt", attempts))

		if !deadline.IsZero() && !time.Now().Add(o.pollInterval()).Before(deadline) {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrDependencyUnreachable, addr, attempts, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval()):
		}
	}
}

// Run executes the full startup sequence for the given role and then execs
// argv. It returns only on error: a successful exec replaces the process.
func (o *Orchestrator) Run(ctx context.Context, role Role, depAddr string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command to exec")
	}

	if err := o.WaitForDependency(ctx, depAddr); err != nil {
		return fmt.Errorf("wait for dependency: %w", err)
	}

	if role == RoleApplication {
		slog.Info("running migrations")
		if err := o.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("running initial data setup")
		if err := o.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	slog.Info("handing off to workload", slog.Any("argv", argv))
	if err := o.Exec(argv); err != nil {
		return fmt.Errorf("exec %s: %w", argv[0], err)
	}
	return nil
}
