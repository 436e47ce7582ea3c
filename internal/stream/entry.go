// File: internal/stream/entry.go
// Brief: Log entry and target identity types shared across the pipeline.

// Package stream turns a set of pod/container targets into one merged channel
// of log entries. Each target is served by its own cancellable goroutine; the
// multiplexer preserves per-target line order while interleaving targets in
// arrival order.
package stream

import (
	"fmt"
	"time"
)

// Target identifies one log source: a container within a pod within a
// namespace.
type Target struct {
	Namespace string
	Pod       string
	Container string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s", t.Namespace, t.Pod, t.Container)
}

// Entry is one observed log line plus its origin. Entries are never mutated
// after construction; replay paths copy them by value.
type Entry struct {
	Namespace string
	Pod       string
	Container string
	Message   string
	Timestamp *time.Time
}

// Target returns the identity the entry originated from.
func (e Entry) Target() Target {
	return Target{Namespace: e.Namespace, Pod: e.Pod, Container: e.Container}
}
