// File: internal/pattern/pattern.go
// Brief: Internal pattern package implementation for 'pattern'.

// Package pattern implements the boolean filter-expression language used by
// ktail's include/exclude filters. An expression combines regular-expression
// atoms and quoted substring atoms with &&, ||, ! and parentheses, and is
// compiled once into an immutable tree that many workers can evaluate
// concurrently without synchronization.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Expr is a compiled filter expression. Implementations are pure: Match never
// mutates state, so a single tree is safe for concurrent use.
type Expr interface {
	// Match reports whether the expression accepts the given log line.
	Match(line string) bool
	// String renders the expression in parseable form.
	String() string
}

// ParseError describes a syntax or regex-compilation failure, carrying the
// offending input fragment and its byte offset.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filter expression: %s at position %d in %q", e.Msg, e.Pos, e.Input)
}

type regexExpr struct {
	re *regexp.Regexp
}

func (e *regexExpr) Match(line string) bool { return e.re.MatchString(line) }
func (e *regexExpr) String() string         { return e.re.String() }

type containsExpr struct {
	text string
}

func (e *containsExpr) Match(line string) bool { return strings.Contains(line, e.text) }
func (e *containsExpr) String() string         { return fmt.Sprintf("%q", e.text) }

type andExpr struct {
	left, right Expr
}

func (e *andExpr) Match(line string) bool { return e.left.Match(line) && e.right.Match(line) }
func (e *andExpr) String() string {
	return fmt.Sprintf("(%s && %s)", e.left.String(), e.right.String())
}

type orExpr struct {
	left, right Expr
}

func (e *orExpr) Match(line string) bool { return e.left.Match(line) || e.right.Match(line) }
func (e *orExpr) String() string {
	return fmt.Sprintf("(%s || %s)", e.left.String(), e.right.String())
}

type notExpr struct {
	inner Expr
}

func (e *notExpr) Match(line string) bool { return !e.inner.Match(line) }
func (e *notExpr) String() string         { return "!" + e.inner.String() }

// Matches is a nil-tolerant helper: a nil expression means "no filter" and
// accepts every line.
func Matches(expr Expr, line string) bool {
	if expr == nil {
		return true
	}
	return expr.Match(line)
}
