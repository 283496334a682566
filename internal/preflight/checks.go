package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tenderq/internal/config"
	"tenderq/internal/deps"
)

const checkTimeout = 5 * time.Second

// Pinger is the subset of the work store used for connectivity checks.
type Pinger interface {
	Ping(ctx context.Context) error
	Describe() string
}

// QueueProbe is the subset of a transport used for connectivity checks.
type QueueProbe interface {
	Len(ctx context.Context) (int64, error)
	Describe() string
}

// CheckStore verifies that the work store answers queries.
func CheckStore(ctx context.Context, s Pinger) Result {
	const name = "Work store"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := s.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", s.Describe(), err)}
	}
	return Result{Name: name, Passed: true, Detail: s.Describe()}
}

// CheckTransport verifies that the queue backend is reachable and reports its depth.
func CheckTransport(ctx context.Context, t QueueProbe) Result {
	const name = "Queue transport"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	n, err := t.Len(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", t.Describe(), err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d queued)", t.Describe(), n)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the helper binaries for the given config. Both
// the daemon and the CLI health command use this.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}
