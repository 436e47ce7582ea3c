// File: internal/filter/manager.go
// Brief: Live-swappable filter state plus bounded backlog replay.

package filter

import (
	"context"
	"sync"

	"github.com/example/ktail/internal/stream"
	"github.com/go-logr/logr"
)

// Manager supports interactive sessions where the include/exclude filters
// change while the stream is live. Every raw entry is recorded in a bounded
// backlog before filtering, so a new filter can be replayed against
// already-seen history without re-contacting the cluster.
//
// Ingestion (Run) and filter edits (SetInclude/SetExclude/Replay) run on
// different goroutines; the RWMutex keeps the backlog's ring invariants and
// guarantees replay sees a consistent snapshot. The writer is never blocked
// longer than a reader's snapshot copy.
type Manager struct {
	log logr.Logger

	mu      sync.RWMutex
	spec    Spec
	backlog *backlog
}

// NewManager compiles the initial filters and allocates the backlog. A zero
// capacity disables retroactive replay.
func NewManager(includeText, excludeText string, capacity int, logger logr.Logger) (*Manager, error) {
	spec, err := ParseSpec(includeText, excludeText)
	if err != nil {
		return nil, err
	}
	return &Manager{
		log:     logger.WithName("filtermgr"),
		spec:    spec,
		backlog: newBacklog(capacity),
	}, nil
}

// Run consumes the raw stream: each entry is recorded in the backlog and, if
// it passes the current spec, forwarded to the returned channel. The channel
// closes when the input closes or the context ends; the backlog and spec stay
// queryable afterwards.
func (m *Manager) Run(ctx context.Context, in <-chan stream.Entry) <-chan stream.Entry {
	out := make(chan stream.Entry, outputQueueDepth)
	go func() {
		defer close(out)
		var processed, passed int
		for {
			select {
			case <-ctx.Done():
				m.log.V(1).Info("ingestion stopped", "processed", processed, "passed", passed)
				return
			case entry, ok := <-in:
				if !ok {
					m.log.V(1).Info("input drained", "processed", processed, "passed", passed)
					return
				}
				processed++
				m.mu.Lock()
				m.backlog.push(entry)
				spec := m.spec
				m.mu.Unlock()
				if !spec.Accept(entry.Message) {
					continue
				}
				passed++
				select {
				case <-ctx.Done():
					return
				case out <- entry:
				}
			}
		}
	}()
	return out
}

// SetInclude parses and installs a new include expression. On a parse error
// the previous spec stays in effect and the error is returned to the caller.
func (m *Manager) SetInclude(text string) error {
	return m.swap(text, m.currentExcludeText())
}

// SetExclude parses and installs a new exclude expression, with the same
// failure semantics as SetInclude.
func (m *Manager) SetExclude(text string) error {
	return m.swap(m.currentIncludeText(), text)
}

func (m *Manager) swap(includeText, excludeText string) error {
	spec, err := ParseSpec(includeText, excludeText)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.spec = spec
	m.mu.Unlock()
	m.log.V(1).Info("filter spec replaced", "include", includeText, "exclude", excludeText)
	return nil
}

// Replay returns the subset of the backlog visible under the current spec,
// oldest-first. The backlog is copied inside the read lock and evaluated
// outside it, so ingestion is only paused for the copy.
func (m *Manager) Replay() []stream.Entry {
	m.mu.RLock()
	entries := m.backlog.snapshot()
	spec := m.spec
	m.mu.RUnlock()

	visible := entries[:0]
	for _, entry := range entries {
		if spec.Accept(entry.Message) {
			visible = append(visible, entry)
		}
	}
	return visible
}

// ShouldInclude tests one entry against the live spec without touching the
// backlog.
func (m *Manager) ShouldInclude(entry stream.Entry) bool {
	m.mu.RLock()
	spec := m.spec
	m.mu.RUnlock()
	return spec.Accept(entry.Message)
}

// CurrentSpec returns the active include and exclude expression texts.
func (m *Manager) CurrentSpec() (include, exclude string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spec.IncludeText, m.spec.ExcludeText
}

// SetCapacity resizes the backlog at runtime, keeping the newest entries.
func (m *Manager) SetCapacity(capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backlog.resize(capacity)
}

// Len reports how many raw entries the backlog currently retains.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backlog.len()
}

func (m *Manager) currentIncludeText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spec.IncludeText
}

func (m *Manager) currentExcludeText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spec.ExcludeText
}
