// Package dispatch runs kernels as independent work units on the host CPU.
//
// A launch covers the unit index space [0, units). Units are partitioned into
// contiguous groups of GroupSize, and groups are handed to Workers goroutines.
// Launch returns once every unit has run; LaunchAsync returns a Completion
// instead. A Stream runs its submissions one after another.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tomoproj/pkg/errs"
	"tomoproj/pkg/logging"
)

// DefaultGroupSize is the number of units per work group when none is set.
const DefaultGroupSize = 64

// Kernel processes one work unit.
type Kernel func(unit int)

// Dispatcher launches kernels. The zero value is not usable; call New.
type Dispatcher struct {
	workers   int
	groupSize int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of goroutines per launch. Values <= 0 select
// GOMAXPROCS. One worker runs every unit in order on the calling goroutine.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithGroupSize sets the number of units per work group. Values <= 0 keep
// DefaultGroupSize.
func WithGroupSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.groupSize = n
		}
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers:   runtime.GOMAXPROCS(0),
		groupSize: DefaultGroupSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Workers returns the number of goroutines used per launch.
func (d *Dispatcher) Workers() int { return d.workers }

// GroupSize returns the number of units per work group.
func (d *Dispatcher) GroupSize() int { return d.groupSize }

// Launch runs kernel once for every unit in [0, units) and blocks until all
// have finished.
//
// ctx is checked only before the launch is issued; a running launch always
// completes. A panic in any unit stops further groups from starting and is
// returned as errs.ErrDeviceExecution.
func (d *Dispatcher) Launch(ctx context.Context, name string, units int, kernel Kernel) error {
	const op = "dispatch.Launch"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("launch %s not issued: %w", name, err)
	}
	if units < 0 {
		return errs.Configuration(op, "launch %s: negative unit count %d", name, units)
	}
	if units == 0 {
		return nil
	}

	groups := (units + d.groupSize - 1) / d.groupSize
	workers := min(d.workers, groups)
	start := time.Now()

	var (
		next    atomic.Int64
		failed  atomic.Bool
		errOnce sync.Once
		runErr  error
	)
	fail := func(unit int, r any) {
		errOnce.Do(func() {
			runErr = errs.Wrap(op, errs.ErrDeviceExecution, fmt.Errorf("%v", r),
				"kernel %s faulted in unit %d", name, unit)
		})
		failed.Store(true)
	}

	runGroup := func(g int) {
		lo := g * d.groupSize
		hi := min(lo+d.groupSize, units)
		unit := lo
		defer func() {
			if r := recover(); r != nil {
				fail(unit, r)
			}
		}()
		for ; unit < hi; unit++ {
			kernel(unit)
		}
	}

	if workers == 1 {
		for g := 0; g < groups && !failed.Load(); g++ {
			runGroup(g)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for !failed.Load() {
					g := int(next.Add(1) - 1)
					if g >= groups {
						return
					}
					runGroup(g)
				}
			}()
		}
		wg.Wait()
	}

	logging.Logger().Debug("kernel launch",
		"kernel", name, "units", units, "groups", groups, "workers", workers,
		"elapsed", time.Since(start), "failed", runErr != nil)
	return runErr
}

// LaunchAsync issues a launch and returns immediately. Cancellation of ctx is
// observed only before the launch starts.
func (d *Dispatcher) LaunchAsync(ctx context.Context, name string, units int, kernel Kernel) *Completion {
	return Go(func() error {
		return d.Launch(ctx, name, units, kernel)
	})
}
