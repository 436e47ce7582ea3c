// File: internal/stream/multiplexer.go
// Brief: Per-target fan-in of container log streams into one entry channel.

package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 2 * time.Second
	// Consecutive non-startup failures tolerated before a target is abandoned.
	maxReconnectAttempts = 5

	scannerInitial = 64 * 1024
	scannerMax     = 1024 * 1024
)

// ErrNoTargets is returned by Run when there is nothing to stream.
var ErrNoTargets = errors.New("no targets matched the selection criteria")

// ErrAllTargetsFailed is returned when every target terminated with an error.
var ErrAllTargetsFailed = errors.New("all log targets failed")

// EventKind classifies non-fatal per-target diagnostics.
type EventKind string

const (
	// EventReconnecting: a transient failure triggered a backoff retry.
	EventReconnecting EventKind = "reconnecting"
	// EventAbandoned: the target failed permanently or exhausted retries.
	EventAbandoned EventKind = "abandoned"
	// EventEnded: the source closed its stream cleanly.
	EventEnded EventKind = "ended"
)

// SourceEvent reports a change in one target's stream without affecting the
// rest of the pipeline.
type SourceEvent struct {
	Target Target
	Kind   EventKind
	Err    error
}

// Multiplexer opens one goroutine-backed stream per target and merges every
// line into a single bounded channel.
//
// Ordering contract: lines from the same target arrive on Entries in source
// order. Lines from different targets have no defined relative order; the
// interleaving is purely arrival order and callers must not rely on it
// beyond approximate chronology.
//
// Lifecycle contract: without follow, Run returns once every target has
// drained. With follow, clean stream ends must NOT end the session — during
// a rolling restart every old pod's stream closes before discovery reports
// the replacements — so Run stays open for runtime Add until the context is
// cancelled or every target has failed for good.
type Multiplexer struct {
	streamer LogStreamer
	opts     Options
	log      logr.Logger

	entries chan Entry
	events  chan SourceEvent

	mu         sync.Mutex
	tasks      map[Target]*task
	closed     bool
	total      int
	failed     int
	active     int
	idle       chan struct{}
	idleClosed bool
	errs       []error
	pending    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// task is one target's running stream. done is closed after the goroutine
// has deregistered itself, so Remove can wait for a full stop before the
// caller re-adds the same target.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMultiplexer builds a multiplexer whose merged channel holds at most
// capacity entries; when it is full, per-target readers block (backpressure)
// rather than dropping lines.
func NewMultiplexer(streamer LogStreamer, opts Options, logger logr.Logger, capacity int) *Multiplexer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Multiplexer{
		streamer: streamer,
		opts:     opts,
		log:      logger.WithName("multiplexer"),
		entries:  make(chan Entry, capacity),
		events:   make(chan SourceEvent, 64),
		tasks:    make(map[Target]*task),
		idle:     make(chan struct{}),
	}
}

// Entries returns the merged entry channel. It is closed when Run returns.
func (m *Multiplexer) Entries() <-chan Entry { return m.entries }

// Events returns the non-fatal diagnostic channel. Events are dropped rather
// than blocking the hot path when no one is listening.
func (m *Multiplexer) Events() <-chan SourceEvent { return m.events }

// Run streams every target until the session ends (see the lifecycle
// contract on Multiplexer). It returns ErrNoTargets for an empty target set
// and an aggregate error wrapping ErrAllTargetsFailed when every target
// terminated abnormally.
func (m *Multiplexer) Run(ctx context.Context, targets []Target) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	// Registration hold: keeps the session from looking idle while the
	// initial targets are still being added.
	m.active = 1
	m.mu.Unlock()
	defer m.cancel()

	for _, target := range targets {
		m.Add(target)
	}
	m.finishTask()

	m.await(ctx)

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.pending.Wait()
	close(m.entries)
	close(m.events)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.V(1).Info("multiplexer finished", "targets", m.total, "failed", m.failed)
	if ctx.Err() == nil && m.total > 0 && m.failed == m.total {
		return fmt.Errorf("%w: %w", ErrAllTargetsFailed, errors.Join(m.errs...))
	}
	return nil
}

// await blocks until the session should end. The idle channel fires whenever
// the active count reaches zero; without follow that is the end, with follow
// the session only ends on cancellation or once every target has failed.
func (m *Multiplexer) await(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.idleClosed {
			m.idle = make(chan struct{})
			m.idleClosed = false
		}
		idle := m.idle
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-idle:
		}
		if !m.opts.Follow {
			return
		}
		m.mu.Lock()
		allFailed := m.total > 0 && m.failed == m.total
		m.mu.Unlock()
		if allFailed {
			return
		}
	}
}

func (m *Multiplexer) finishTask() {
	m.mu.Lock()
	m.active--
	if m.active == 0 && !m.idleClosed {
		m.idleClosed = true
		close(m.idle)
	}
	m.mu.Unlock()
}

// Add starts streaming a new target at runtime. Adding an already-active
// target is a no-op. It reports whether a stream was started.
func (m *Multiplexer) Add(target Target) bool {
	m.mu.Lock()
	if m.closed || m.ctx == nil {
		m.mu.Unlock()
		return false
	}
	if _, running := m.tasks[target]; running {
		m.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(m.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.tasks[target] = t
	m.total++
	m.active++
	m.pending.Add(1)
	m.mu.Unlock()

	m.log.V(1).Info("starting target stream", "target", target.String())
	go func() {
		defer m.pending.Done()
		err := m.runTarget(ctx, target)
		m.mu.Lock()
		delete(m.tasks, target)
		if err != nil {
			m.failed++
			m.errs = append(m.errs, fmt.Errorf("%s: %w", target.String(), err))
		}
		m.mu.Unlock()
		close(t.done)
		m.finishTask()
	}()
	return true
}

// Remove cancels one target's stream without disturbing the others. It
// returns only after the stream has fully stopped, so a caller replacing a
// restarted container can Remove then Add without the old task shadowing the
// new one.
func (m *Multiplexer) Remove(target Target) {
	m.mu.Lock()
	t, ok := m.tasks[target]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.log.V(1).Info("stopping target stream", "target", target.String())
	t.cancel()
	<-t.done
}

func (m *Multiplexer) runTarget(ctx context.Context, target Target) error {
	backoff := initialBackoff
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		rc, err := m.streamer.Stream(ctx, target, m.opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if m.streamer.Permanent(err) {
				m.emit(SourceEvent{Target: target, Kind: EventAbandoned, Err: err})
				return err
			}
			if !retryableStartupErr(err) {
				attempts++
				if attempts > maxReconnectAttempts {
					err = fmt.Errorf("giving up after %d reconnect attempts: %w", attempts-1, err)
					m.emit(SourceEvent{Target: target, Kind: EventAbandoned, Err: err})
					return err
				}
			}
			m.emit(SourceEvent{Target: target, Kind: EventReconnecting, Err: err})
			if !m.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		attempts = 0
		backoff = initialBackoff
		scanErr := m.copyLines(ctx, target, rc)
		_ = rc.Close()
		switch {
		case ctx.Err() != nil:
			return nil
		case scanErr == nil || scanErr == io.EOF:
			m.emit(SourceEvent{Target: target, Kind: EventEnded})
			m.log.V(1).Info("target stream finished", "target", target.String())
			return nil
		default:
			attempts++
			if attempts > maxReconnectAttempts {
				scanErr = fmt.Errorf("giving up after %d reconnect attempts: %w", attempts-1, scanErr)
				m.emit(SourceEvent{Target: target, Kind: EventAbandoned, Err: scanErr})
				return scanErr
			}
			m.emit(SourceEvent{Target: target, Kind: EventReconnecting, Err: scanErr})
			if !m.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
		}
	}
}

// copyLines reads whole lines off the stream and forwards them as entries.
// The scanner only yields complete lines, so cancellation mid-line never
// emits a partial entry.
func (m *Multiplexer) copyLines(ctx context.Context, target Target, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerInitial), scannerMax)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		entry := Entry{
			Namespace: target.Namespace,
			Pod:       target.Pod,
			Container: target.Container,
			Message:   line,
		}
		if m.opts.Timestamps {
			entry.Timestamp, entry.Message = splitTimestamp(line)
		}
		select {
		case <-ctx.Done():
			return nil
		case m.entries <- entry:
		}
	}
	return scanner.Err()
}

// splitTimestamp strips the RFC3339 prefix the apiserver prepends when
// timestamps were requested. Lines without a parseable prefix pass through
// untouched.
func splitTimestamp(line string) (*time.Time, string) {
	idx := strings.IndexByte(line, ' ')
	if idx <= 0 {
		return nil, line
	}
	ts, err := time.Parse(time.RFC3339Nano, line[:idx])
	if err != nil {
		return nil, line
	}
	return &ts, line[idx+1:]
}

func (m *Multiplexer) emit(ev SourceEvent) {
	if ev.Err != nil {
		m.log.V(1).Info("source event", "target", ev.Target.String(), "kind", string(ev.Kind), "error", ev.Err.Error())
	}
	select {
	case m.events <- ev:
	default:
	}
}

func (m *Multiplexer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
