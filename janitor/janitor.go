// Package janitor periodically prunes expired idempotency records and
// any other prunable caches registered with it.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	lifecycle "github.com/goliatone/go-lifecycle"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// Prunable is anything holding expirable records. The idempotency
// cache satisfies it.
type Prunable interface {
	Prune() int
}

// Janitor sweeps registered targets on a cron schedule.
type Janitor struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	schedule string
	location *time.Location
	targets  []Prunable
	logger   lifecycle.Logger
	entryID  rcron.EntryID
	started  bool
}

type Option func(*Janitor)

// WithSchedule sets the cron expression for the sweep.
func WithSchedule(expr string) Option {
	return func(j *Janitor) {
		if expr != "" {
			j.schedule = expr
		}
	}
}

// WithLocation sets the scheduler timezone.
func WithLocation(loc *time.Location) Option {
	return func(j *Janitor) {
		if loc != nil {
			j.location = loc
		}
	}
}

func WithLogger(l lifecycle.Logger) Option {
	return func(j *Janitor) {
		j.logger = lifecycle.NormalizeLogger(l)
	}
}

// New builds a janitor with the given targets.
func New(targets []Prunable, opts ...Option) *Janitor {
	j := &Janitor{
		schedule: DefaultSchedule,
		location: time.Local,
		targets:  append([]Prunable(nil), targets...),
		logger:   lifecycle.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	j.cron = rcron.New(rcron.WithLocation(j.location))
	return j
}

// Register adds a target to future sweeps.
func (j *Janitor) Register(target Prunable) {
	if target == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.targets = append(j.targets, target)
}

// Sweep prunes every target immediately and returns the total removed.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	targets := append([]Prunable(nil), j.targets...)
	j.mu.Unlock()

	total := 0
	for _, target := range targets {
		total += target.Prune()
	}
	if total > 0 {
		lifecycle.WithLoggerFields(j.logger, map[string]any{"removed": total}).
			Debug("pruned expired records")
	}
	return total
}

// Start schedules the sweep and begins the cron loop.
func (j *Janitor) Start(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return nil
	}

	entryID, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() })
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", j.schedule, err)
	}
	j.entryID = entryID
	j.cron.Start()
	j.started = true
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.cron.Remove(j.entryID)
	j.started = false
	stopCtx := j.cron.Stop()
	j.mu.Unlock()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
