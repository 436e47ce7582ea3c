// File: internal/filter/spec.go
// Brief: Include/exclude filter pair applied to log messages.

// Package filter applies compiled pattern expressions to the multiplexed log
// stream: a fixed worker pool for batch filtering, and a dynamic manager that
// supports live filter swaps with bounded-backlog replay.
package filter

import (
	"github.com/example/ktail/internal/pattern"
)

// Spec is the filter pair currently in effect. A Spec is immutable; filter
// changes install a brand-new value rather than mutating one that workers
// may be reading.
type Spec struct {
	Include pattern.Expr
	Exclude pattern.Expr

	// Original expression texts, kept for introspection/display.
	IncludeText string
	ExcludeText string
}

// ParseSpec compiles both expressions. Blank texts compile to nil
// expressions, which behave as "no restriction".
func ParseSpec(includeText, excludeText string) (Spec, error) {
	include, err := pattern.Parse(includeText)
	if err != nil {
		return Spec{}, err
	}
	exclude, err := pattern.Parse(excludeText)
	if err != nil {
		return Spec{}, err
	}
	return Spec{
		Include:     include,
		Exclude:     exclude,
		IncludeText: includeText,
		ExcludeText: excludeText,
	}, nil
}

// Accept reports whether a message passes: the include expression must match
// (or be absent) and the exclude expression must not match (or be absent).
func (s Spec) Accept(message string) bool {
	if !pattern.Matches(s.Include, message) {
		return false
	}
	if s.Exclude != nil && s.Exclude.Match(message) {
		return false
	}
	return true
}
