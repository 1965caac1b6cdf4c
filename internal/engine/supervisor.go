package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"areazero/internal/runtime"
)

const (
	DefaultGracePeriod  = 3 * time.Second
	DefaultPollInterval = time.Second
)

// ErrNotStarted is returned by HandleTerminate when no monitor is active.
var ErrNotStarted = errors.New("supervisor not started")

// State is the lifecycle state of the current generation.
type State string

const (
	StateIdle       State = "idle"
	StateSpawning   State = "spawning"
	StateRunning    State = "running"
	StateExited     State = "exited_unexpectedly"
	StateSignaled   State = "signaled"
	StateGraceWait  State = "grace_wait"
	StateSpawnError State = "spawn_failed"
)

// Generation describes one lifetime of the supervised child.
type Generation struct {
	Number    int
	Pid       int
	State     State
	StartedAt time.Time
}

// Options configures a Supervisor. A non-positive PollInterval or a negative
// GracePeriod falls back to the package defaults.
type Options struct {
	Spec         runtime.Spec
	GracePeriod  time.Duration
	PollInterval time.Duration
	// SpawnRetries is the number of additional launch attempts made after a
	// spawn failure before it is reported as fatal.
	SpawnRetries int
	// Signal is forwarded to the child on terminate requests. Defaults to
	// SIGTERM.
	Signal os.Signal
	Events chan<- Event
}

// Supervisor keeps exactly one instance of an executable running. It
// relaunches the child whenever it exits on its own and performs a graceful
// handoff when asked to terminate.
//
// Start, HandleTerminate and Run must be called from a single goroutine. The
// only other goroutine is the monitor, and HandleTerminate always waits for
// it to return before touching the child.
type Supervisor struct {
	launcher     runtime.Launcher
	spec         runtime.Spec
	grace        time.Duration
	poll         time.Duration
	spawnRetries int
	termSignal   os.Signal
	events       chan<- Event

	sleep func(context.Context, time.Duration) error

	monitorCancel context.CancelFunc
	monitorDone   chan error

	mu      sync.Mutex
	current runtime.Handle
	gen     Generation
}

// New constructs a supervisor that launches processes through launcher.
func New(launcher runtime.Launcher, opts Options) *Supervisor {
	s := &Supervisor{
		launcher:     launcher,
		spec:         opts.Spec,
		grace:        opts.GracePeriod,
		poll:         opts.PollInterval,
		spawnRetries: opts.SpawnRetries,
		termSignal:   opts.Signal,
		events:       opts.Events,
		sleep:        sleepWithContext,
		gen:          Generation{State: StateIdle},
	}
	if s.grace < 0 {
		s.grace = DefaultGracePeriod
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.spawnRetries < 0 {
		s.spawnRetries = 0
	}
	if s.termSignal == nil {
		s.termSignal = syscall.SIGTERM
	}
	return s
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run launches the child and serves terminate requests until ctx is done or
// a launch fails fatally. Each value received on terminate starts one
// HandleTerminate cycle; requests that arrive during the grace period are
// dropped.
func (s *Supervisor) Run(ctx context.Context, terminate <-chan os.Signal) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if err := s.stopMonitor(); err != nil {
				return err
			}
			return ctx.Err()
		case err := <-s.monitorDone:
			// The monitor only returns on its own when relaunching failed.
			s.monitorCancel()
			s.monitorCancel, s.monitorDone = nil, nil
			if err == nil {
				err = ctx.Err()
			}
			return err
		case <-terminate:
			if err := s.HandleTerminate(ctx, terminate); err != nil {
				return err
			}
		}
	}
}

// Start launches a new child and begins monitoring it in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	h, err := s.Launch(ctx)
	if err != nil {
		return err
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	s.monitorCancel = cancel
	s.monitorDone = done
	go func() {
		done <- s.Monitor(monitorCtx, h)
	}()
	return nil
}

// Launch spawns the configured executable and records it as the current
// child. Spawn failures are retried SpawnRetries times, one poll interval
// apart, before being returned.
func (s *Supervisor) Launch(ctx context.Context) (runtime.Handle, error) {
	attempts := 0
	for {
		s.setState(StateSpawning)
		sendEvent(s.events, EventTypeLaunching, "info", s.Current(), fmt.Sprintf("Launching '%s'", s.spec.Path), nil)

		h, err := s.launcher.Start(ctx, s.spec)
		if err == nil {
			gen := s.setCurrent(h)
			sendEvent(s.events, EventTypeRunning, "info", gen, fmt.Sprintf("'%s' running (pid %d)", s.spec.Path, gen.Pid), nil)
			return h, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		attempts++
		s.setState(StateSpawnError)
		sendEvent(s.events, EventTypeError, "error", s.Current(), fmt.Sprintf("Failed to launch '%s': %v", s.spec.Path, err), err)
		if attempts > s.spawnRetries {
			return nil, fmt.Errorf("spawn failed after %d attempt(s): %w", attempts, err)
		}
		if err := s.sleep(ctx, s.poll); err != nil {
			return nil, err
		}
	}
}

// Monitor polls h for exit once per poll interval and relaunches the child
// whenever it exits. The loop keeps running against each new handle and
// returns nil once ctx is cancelled. A non-nil error means a relaunch failed.
func (s *Supervisor) Monitor(ctx context.Context, h runtime.Handle) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.poll)
		exit, err := h.Wait(waitCtx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			// Poll interval elapsed; the child is still alive.
			continue
		}

		s.setState(StateExited)
		msg := fmt.Sprintf("'%s' exited without being signaled! (code %d)", s.spec.Path, exit.Code)
		sendEvent(s.events, EventTypeExited, "warn", s.Current(), msg, exit.Err)

		h, err = s.Launch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// HandleTerminate performs one graceful handoff: it stops the monitor,
// forwards the termination signal to the current child, waits for the grace
// period and starts a new generation. Further requests received on
// terminate while waiting are logged and dropped.
func (s *Supervisor) HandleTerminate(ctx context.Context, terminate <-chan os.Signal) error {
	if s.monitorCancel == nil {
		return ErrNotStarted
	}
	if err := s.stopMonitor(); err != nil {
		return err
	}

	s.mu.Lock()
	h := s.current
	s.mu.Unlock()

	s.setState(StateSignaled)
	gen := s.Current()
	sendEvent(s.events, EventTypeSignaling, "info", gen, fmt.Sprintf("Signaling '%s' (pid %d)...", s.spec.Path, gen.Pid), nil)
	if h != nil {
		if err := h.Signal(s.termSignal); err != nil {
			msg := fmt.Sprintf("Signal delivery to pid %d failed: %v", gen.Pid, err)
			if errors.Is(err, runtime.ErrProcessDone) {
				msg = fmt.Sprintf("'%s' (pid %d) had already exited", s.spec.Path, gen.Pid)
			}
			sendEvent(s.events, EventTypeError, "warn", gen, msg, err)
		}
	}

	s.setState(StateGraceWait)
	sendEvent(s.events, EventTypeWaiting, "info", s.Current(), fmt.Sprintf("Waiting signaling period (%s)...", s.grace), nil)
	if err := s.graceWait(ctx, terminate); err != nil {
		return err
	}

	return s.Start(ctx)
}

func (s *Supervisor) graceWait(ctx context.Context, terminate <-chan os.Signal) error {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case sig := <-terminate:
			sendEvent(s.events, EventTypeIgnored, "warn", s.Current(), fmt.Sprintf("Received %v during signaling period; ignoring", sig), nil)
		}
	}
}

func (s *Supervisor) stopMonitor() error {
	if s.monitorCancel == nil {
		return nil
	}
	s.monitorCancel()
	err := <-s.monitorDone
	s.monitorCancel, s.monitorDone = nil, nil
	return err
}

// Current returns a snapshot of the current generation.
func (s *Supervisor) Current() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Supervisor) setCurrent(h runtime.Handle) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = h
	s.gen = Generation{
		Number:    s.gen.Number + 1,
		Pid:       h.Pid(),
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	return s.gen
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.State = state
}
