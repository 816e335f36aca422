// Package scheduler runs queued work in two independent lanes.
//
// Each lane owns an insertion-ordered pending set and a busy flag. A tick
// starts the oldest pending entry of every idle lane; the entry stays in the
// set until its job returns, so a resubmission while it runs is absorbed and
// never starts a second run. The day lane and the sensor lane may run at the
// same time, a lane never runs two jobs at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/metrics"
)

var log = logging.Component("scheduler")

// Lane identifies a work stream.
type Lane string

const (
	Days    Lane = "days"
	Sensors Lane = "sensors"
)

// Job processes one queue entry. Jobs are not cancelled once started.
type Job func(ctx context.Context, key string) error

// ErrUnknownLane is returned for a lane the scheduler does not own.
var ErrUnknownLane = errors.New("unknown lane")

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is how often idle lanes look for pending work.
	TickInterval time.Duration

	// DrainTimeout is how long Run waits for running jobs after shutdown.
	DrainTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: time.Second,
		DrainTimeout: 30 * time.Second,
	}
}

type lane struct {
	name    Lane
	job     Job
	order   []string
	pending map[string]struct{}
	busy    bool
	current string
}

func (l *lane) remove(key string) {
	if _, ok := l.pending[key]; !ok {
		return
	}
	delete(l.pending, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Scheduler owns the lanes. All lane state is guarded by mu and changed only
// through its methods.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	lanes map[Lane]*lane

	wg sync.WaitGroup

	tickInterval time.Duration
	drainTimeout time.Duration
}

// New creates a scheduler with one lane per job.
func New(cfg *Config, dayJob, sensorJob Job) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Scheduler{
		lanes:        make(map[Lane]*lane, 2),
		tickInterval: cfg.TickInterval,
		drainTimeout: cfg.DrainTimeout,
	}
	if s.tickInterval <= 0 {
		s.tickInterval = time.Second
	}
	for name, job := range map[Lane]Job{Days: dayJob, Sensors: sensorJob} {
		s.lanes[name] = &lane{name: name, job: job, pending: make(map[string]struct{})}
	}
	return s
}

// Enqueue adds key to a lane. It reports false when the key is already
// pending or running.
func (s *Scheduler) Enqueue(name Lane, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}
	if _, dup := l.pending[key]; dup {
		return false, nil
	}
	l.pending[key] = struct{}{}
	l.order = append(l.order, key)
	metrics.SetQueueDepth(string(name), len(l.order))
	log.Info("entry queued", "lane", name, "key", key, "pending", len(l.order))
	return true, nil
}

// Contains reports whether key is pending or running in a lane.
func (s *Scheduler) Contains(name Lane, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[name]
	if !ok {
		return false
	}
	_, found := l.pending[key]
	return found
}

// Pending returns a lane's entries in insertion order.
func (s *Scheduler) Pending(name Lane) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), l.order...)
}

// Busy reports whether a lane is running a job.
func (s *Scheduler) Busy(name Lane) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[name]
	return ok && l.busy
}

// Running returns the key a lane is working on.
func (s *Scheduler) Running(name Lane) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[name]
	if !ok || !l.busy {
		return "", false
	}
	return l.current, true
}

// Tick starts the oldest pending entry of every idle lane. Jobs run on a
// context that keeps ctx's values but ignores its cancellation.
func (s *Scheduler) Tick(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.lanes {
		if l.busy || len(l.order) == 0 || l.job == nil {
			continue
		}
		key := l.order[0]
		l.busy = true
		l.current = key
		metrics.SetLaneBusy(string(l.name), true)

		s.wg.Add(1)
		go s.runJob(jobCtx, l, key)
	}
}

func (s *Scheduler) runJob(ctx context.Context, l *lane, key string) {
	defer s.wg.Done()

	runID := uuid.NewString()
	runLog := log.With("lane", l.name, "key", key, "run_id", runID)
	runLog.Info("run started")
	start := time.Now()

	err := safeRun(ctx, l.job, key)

	elapsed := time.Since(start)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		runLog.Error("run failed", "error", err, "elapsed", elapsed)
	} else {
		runLog.Info("run finished", "elapsed", elapsed)
	}
	metrics.ObserveRun(string(l.name), result, elapsed)

	s.mu.Lock()
	l.remove(key)
	l.busy = false
	l.current = ""
	depth := len(l.order)
	s.mu.Unlock()

	metrics.SetLaneBusy(string(l.name), false)
	metrics.SetQueueDepth(string(l.name), depth)
}

func safeRun(ctx context.Context, job Job, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx, key)
}

// Run ticks until ctx is done, then waits up to the drain timeout for
// running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("scheduler started", "tick", s.tickInterval)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.drainTimeout <= 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		log.Info("scheduler stopped")
		return nil
	case <-time.After(s.drainTimeout):
		log.Warn("drain timeout, abandoning running jobs", "timeout", s.drainTimeout)
		return fmt.Errorf("scheduler drain timed out after %s", s.drainTimeout)
	}
}
