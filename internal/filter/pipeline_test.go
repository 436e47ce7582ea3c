// pipeline_test.go covers worker-pool filtering: composition, ordering, and
// panic isolation.
package filter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/ktail/internal/stream"
	"github.com/go-logr/logr"
)

func entryFor(pod, message string) stream.Entry {
	return stream.Entry{Namespace: "default", Pod: pod, Container: "app", Message: message}
}

func mustSpec(t *testing.T, include, exclude string) Spec {
	t.Helper()
	spec, err := ParseSpec(include, exclude)
	if err != nil {
		t.Fatalf("ParseSpec(%q, %q): %v", include, exclude, err)
	}
	return spec
}

func runPipeline(t *testing.T, spec Spec, workers int, entries []stream.Entry) []stream.Entry {
	t.Helper()
	in := make(chan stream.Entry)
	go func() {
		defer close(in)
		for _, entry := range entries {
			in <- entry
		}
	}()
	out := NewPipeline(logr.Discard()).Start(context.Background(), in, spec, workers)
	var got []stream.Entry
	for entry := range out {
		got = append(got, entry)
	}
	return got
}

func TestIncludeExcludeComposition(t *testing.T) {
	spec := mustSpec(t, `"error" || "warn"`, `"debug"`)
	cases := []struct {
		message string
		want    bool
	}{
		{"error: db down", true},
		{"warn: disk", true},
		{"info: fine", false},
		{"error with debug detail", false},
		{"debug only", false},
	}
	var entries []stream.Entry
	for _, tc := range cases {
		entries = append(entries, entryFor("p", tc.message))
	}
	got := runPipeline(t, spec, 4, entries)
	want := map[string]bool{}
	for _, tc := range cases {
		if tc.want {
			want[tc.message] = true
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d accepted entries, got %d", len(want), len(got))
	}
	for _, entry := range got {
		if !want[entry.Message] {
			t.Fatalf("entry %q should have been filtered out", entry.Message)
		}
	}
}

func TestExcludeWinsOverInclude(t *testing.T) {
	// Even when include matches, a matching exclude rejects the entry.
	spec := mustSpec(t, `"error" || "warn"`, `"debug"`)
	if spec.Accept("WARN debug retry") {
		t.Fatalf("exclude must win over include")
	}
	// Case-sensitivity check: quoted atoms are exact.
	if spec.Accept("WARN retry") {
		t.Fatalf(`"warn" must not match upper-case WARN`)
	}
	if !spec.Accept("warn retry") {
		t.Fatalf("lower-case warn should pass")
	}
}

func TestEmptySpecPassesEverything(t *testing.T) {
	spec := mustSpec(t, "", "")
	entries := []stream.Entry{entryFor("p", "anything"), entryFor("p", "")}
	got := runPipeline(t, spec, 2, entries)
	if len(got) != len(entries) {
		t.Fatalf("empty filters must pass every entry, got %d of %d", len(got), len(entries))
	}
}

func TestPerSourceOrderPreserved(t *testing.T) {
	// Several pods interleaved on input; each pod's accepted lines must keep
	// their relative order on output even with many workers.
	spec := mustSpec(t, "keep", "")
	pods := []string{"api-0", "api-1", "api-2", "api-3"}
	var entries []stream.Entry
	for i := 0; i < 400; i++ {
		pod := pods[i%len(pods)]
		msg := fmt.Sprintf("keep %s seq=%04d", pod, i)
		if i%7 == 0 {
			msg = fmt.Sprintf("drop %s seq=%04d", pod, i)
		}
		entries = append(entries, entryFor(pod, msg))
	}
	got := runPipeline(t, spec, 8, entries)

	lastSeq := map[string]string{}
	for _, entry := range got {
		if prev, ok := lastSeq[entry.Pod]; ok && prev >= entry.Message {
			t.Fatalf("per-source order violated for %s: %q then %q", entry.Pod, prev, entry.Message)
		}
		lastSeq[entry.Pod] = entry.Message
	}
	wantCount := 0
	for i := range entries {
		if i%7 != 0 {
			wantCount++
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d accepted entries, got %d", wantCount, len(got))
	}
}

type panickyExpr struct{ trigger string }

func (e *panickyExpr) Match(line string) bool {
	if line == e.trigger {
		panic("pathological input")
	}
	return true
}

func (e *panickyExpr) String() string { return "<panicky>" }

func TestMatcherPanicDropsOnlyThatEntry(t *testing.T) {
	spec := Spec{Include: &panickyExpr{trigger: "boom"}}
	entries := []stream.Entry{
		entryFor("p", "first"),
		entryFor("p", "boom"),
		entryFor("p", "last"),
	}
	got := runPipeline(t, spec, 2, entries)
	if len(got) != 2 {
		t.Fatalf("panic should drop exactly the offending entry, got %d entries", len(got))
	}
	if got[0].Message != "first" || got[1].Message != "last" {
		t.Fatalf("unexpected surviving entries: %v", got)
	}
}

func TestStartRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan stream.Entry)
	out := NewPipeline(logr.Discard()).Start(ctx, in, mustSpec(t, "", ""), 2)
	in <- entryFor("p", "one")
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("output channel not closed after cancellation")
		}
	}
}

func TestRecommendedWorkerCount(t *testing.T) {
	if got := RecommendedWorkerCount(); got < 2 {
		t.Fatalf("worker count floor is 2, got %d", got)
	}
}
