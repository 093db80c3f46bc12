package countdown

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"calendar-countdown/clock"
)

// Fetcher looks up the event after exclude.
type Fetcher interface {
	NextEvent(ctx context.Context, exclude int64, nonce string) (Target, bool, error)
}

// RenderFunc receives the machine after every transition.
type RenderFunc func(state State, target Target, display string)

// Runner drives a Machine with a ticker, a retry timer and asynchronous lookups.
type Runner struct {
	machine *Machine
	fetcher Fetcher
	clock   clock.Clock
	render  RenderFunc

	TickInterval time.Duration
	RetryDelay   time.Duration
}

func NewRunner(seed Target, fetcher Fetcher, clk clock.Clock, render RenderFunc) *Runner {
	if clk == nil {
		clk = clock.NewSystem(time.Local)
	}
	if render == nil {
		render = func(State, Target, string) {}
	}
	return &Runner{
		machine:      NewMachine(seed),
		fetcher:      fetcher,
		clock:        clk,
		render:       render,
		TickInterval: TickInterval,
		RetryDelay:   RetryDelay,
	}
}

// Run blocks until the countdown is exhausted (nil) or ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.TickInterval)
	defer ticker.Stop()

	results := make(chan Result, 1)
	var retry *time.Timer
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	act := r.machine.Tick(r.clock.Now())
	for {
		r.render(r.machine.State(), r.machine.Target(), r.machine.Display())
		switch act {
		case Lookup:
			target := r.machine.Target()
			go r.lookup(ctx, target.ID, target.Nonce, results)
		case ScheduleRetry:
			retry = time.NewTimer(r.RetryDelay)
			retryC = retry.C
		}
		if r.machine.State() == Exhausted {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			act = r.machine.Tick(r.clock.Now())
		case res := <-results:
			act = r.machine.Resolve(res, r.clock.Now())
		case <-retryC:
			retryC = nil
			act = r.machine.Retry()
		}
	}
}

func (r *Runner) lookup(ctx context.Context, exclude int64, nonce string, out chan<- Result) {
	target, found, err := r.fetcher.NextEvent(ctx, exclude, nonce)
	if err != nil {
		log.WithError(err).WithField("exclude", exclude).Warn("countdown lookup failed")
	}
	select {
	case out <- Result{Target: target, Found: found, Err: err}:
	case <-ctx.Done():
	}
}
