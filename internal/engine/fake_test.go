package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"areazero/internal/runtime"
)

type fakeLauncher struct {
	mu       sync.Mutex
	nextPid  int
	handles  []*fakeHandle
	failures int
	startErr error

	// exitImmediately makes every launched child exit right away.
	exitImmediately bool
	// exitOnSignal makes children exit when signalled.
	exitOnSignal bool

	overlap bool
	startCh chan *fakeHandle
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		nextPid:      100,
		exitOnSignal: true,
		startCh:      make(chan *fakeHandle, 64),
	}
}

func (f *fakeLauncher) Start(ctx context.Context, spec runtime.Spec) (runtime.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		err := f.startErr
		if err == nil {
			err = errors.New("exec format error")
		}
		return nil, err
	}
	if n := len(f.handles); n > 0 && !f.handles[n-1].Exited() {
		f.overlap = true
	}
	f.nextPid++
	h := &fakeHandle{
		pid:          f.nextPid,
		done:         make(chan struct{}),
		exitOnSignal: f.exitOnSignal,
	}
	if f.exitImmediately {
		// Keep a crash loop from spinning without pause.
		time.Sleep(time.Millisecond)
		h.exitWith(1)
	}
	f.handles = append(f.handles, h)
	select {
	case f.startCh <- h:
	default:
	}
	return h, nil
}

func (f *fakeLauncher) started() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeHandle(nil), f.handles...)
}

func (f *fakeLauncher) sawOverlap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

type fakeHandle struct {
	pid          int
	done         chan struct{}
	once         sync.Once
	exit         runtime.Exit
	exitOnSignal bool

	mu        sync.Mutex
	signals   []os.Signal
	signalErr error
}

func (f *fakeHandle) Pid() int { return f.pid }

func (f *fakeHandle) exitWith(code int) {
	f.once.Do(func() {
		f.exit = runtime.Exit{Code: code}
		close(f.done)
	})
}

func (f *fakeHandle) Wait(ctx context.Context) (runtime.Exit, error) {
	select {
	case <-f.done:
		return f.exit, nil
	case <-ctx.Done():
		return runtime.Exit{}, ctx.Err()
	}
}

func (f *fakeHandle) Signal(sig os.Signal) error {
	if f.Exited() {
		return runtime.ErrProcessDone
	}
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	err := f.signalErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if f.exitOnSignal {
		f.exitWith(-1)
	}
	return nil
}

func (f *fakeHandle) Exited() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeHandle) received() []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.signals...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

// collectEvents drains the returned channel in the background until the test
// ends.
func collectEvents(t *testing.T) (chan<- Event, *eventLog) {
	t.Helper()
	ch := make(chan Event, 16)
	log := &eventLog{done: make(chan struct{})}
	go func() {
		defer close(log.done)
		for evt := range ch {
			log.mu.Lock()
			log.events = append(log.events, evt)
			log.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		close(ch)
		<-log.done
	})
	return ch, log
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) types() []EventType {
	events := l.snapshot()
	out := make([]EventType, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Type)
	}
	return out
}

func (l *eventLog) count(t EventType) int {
	n := 0
	for _, evt := range l.snapshot() {
		if evt.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) first(t EventType) (Event, bool) {
	for _, evt := range l.snapshot() {
		if evt.Type == t {
			return evt, true
		}
	}
	return Event{}, false
}

func containsSequence(events []EventType, seq []EventType) bool {
	if len(seq) == 0 {
		return true
	}
	idx := 0
	for _, t := range events {
		if t == seq[idx] {
			idx++
			if idx == len(seq) {
				return true
			}
		}
	}
	return false
}

func waitForStart(t *testing.T, ch <-chan *fakeHandle) *fakeHandle {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for launcher start")
		return nil
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
