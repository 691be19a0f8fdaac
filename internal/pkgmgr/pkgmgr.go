// Package pkgmgr implements per-family package manager strategies: pending
// update checks, dry-run simulations, streamed upgrades and autoremove.
package pkgmgr

import (
	"context"
	"errors"
	"time"

	"github.com/andrej220/fleetup/internal/distro"
)

var (
	// ErrUnknownDistro is returned for hosts whose family could not be
	// classified; it is terminal for the operation, never retried.
	ErrUnknownDistro = errors.New("unrecognized distro")
	// ErrUnsupported marks an operation a family does not implement.
	ErrUnsupported = errors.New("autoremove implemented for debian only")
)

// Runner executes remote commands on an already-open connection.
// *sshexec.Client satisfies it; tests use MockRunner.
type Runner interface {
	Run(ctx context.Context, cmd string) (exitCode int, stdout, stderr string, err error)
	RunTimeout(ctx context.Context, cmd string, timeout time.Duration) (exitCode int, stdout, stderr string, err error)
	Stream(ctx context.Context, cmd string) (<-chan string, <-chan int, error)
}

// Preview is the outcome of a dry-run: how many packages an apply would
// touch, plus the unmodified remote stdout for rendering.
type Preview struct {
	Count  int
	Detail string
	Note   string
}

// Manager is one family's strategy set. All counts it reports are clamped
// non-negative.
type Manager interface {
	Family() distro.Family

	// Check refreshes the index and counts pending updates.
	Check(ctx context.Context, r Runner) (count int, note string, err error)
	// Simulate dry-runs an upgrade, keeping full output as detail.
	Simulate(ctx context.Context, r Runner) (Preview, error)
	// Upgrade applies pending updates, streaming remote output.
	Upgrade(ctx context.Context, r Runner) (<-chan string, <-chan int, error)
	// AutoremovePreview dry-runs removal of orphaned packages.
	AutoremovePreview(ctx context.Context, r Runner) (Preview, error)
	// Autoremove purges orphaned packages, streaming remote output.
	Autoremove(ctx context.Context, r Runner) (<-chan string, <-chan int, error)
}

// ForFamily resolves the strategy for a family. The set is closed: adding
// a family means adding a case here, checked at compile time against the
// distro enum's consumers.
func ForFamily(f distro.Family) (Manager, error) {
	switch f {
	case distro.Debian:
		return debianManager{}, nil
	case distro.RPM:
		return rpmManager{}, nil
	case distro.Arch:
		return archManager{}, nil
	default:
		return nil, ErrUnknownDistro
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
