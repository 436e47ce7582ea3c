package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/example/ktail/internal/stream"
)

func entry(ns, pod, container, msg string) stream.Entry {
	return stream.Entry{Namespace: ns, Pod: pod, Container: container, Message: msg}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":     ModeText,
		"text": ModeText,
		"JSON": ModeJSON,
		" raw": ModeRaw,
	}
	for input, want := range cases {
		got, err := ParseMode(input)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseMode("yaml"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestTextModePrefixesSource(t *testing.T) {
	var buf strings.Builder
	f, err := New(&buf, Options{Mode: ModeText, ColorMode: "never"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Write(entry("prod", "web-0", "app", "request served")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := buf.String()
	if got != "prod/web-0[app] request served\n" {
		t.Fatalf("unexpected text output: %q", got)
	}
}

func TestTextModeTimestamps(t *testing.T) {
	var buf strings.Builder
	f, err := New(&buf, Options{Mode: ModeText, ColorMode: "never", Timestamps: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	e := entry("prod", "web-0", "app", "hello")
	e.Timestamp = &ts
	if err := f.Write(e); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "2026-03-14T09:26:53Z prod/web-0[app]") {
		t.Fatalf("timestamp missing from prefix: %q", buf.String())
	}
}

func TestCustomTemplate(t *testing.T) {
	var buf strings.Builder
	f, err := New(&buf, Options{Mode: ModeText, ColorMode: "never", Template: "{{.Pod}}|{{.Message}}"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Write(entry("prod", "web-0", "app", "x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "web-0|x\n" {
		t.Fatalf("unexpected template output: %q", buf.String())
	}
}

func TestBadTemplateFailsAtConstruction(t *testing.T) {
	if _, err := New(&strings.Builder{}, Options{Template: "{{.Pod"}); err == nil {
		t.Fatalf("expected parse error for malformed template")
	}
}

func TestJSONMode(t *testing.T) {
	var buf strings.Builder
	f, err := New(&buf, Options{Mode: ModeJSON})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Write(entry("prod", "web-0", "app", `quoted "msg"`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(buf.String()), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["pod"] != "web-0" || decoded["message"] != `quoted "msg"` {
		t.Fatalf("unexpected JSON fields: %v", decoded)
	}
}

func TestRawModePassesThrough(t *testing.T) {
	var buf strings.Builder
	f, err := New(&buf, Options{Mode: ModeRaw})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Write(entry("prod", "web-0", "app", "plain line")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "plain line\n" {
		t.Fatalf("raw mode should not decorate: %q", buf.String())
	}
}

func TestPaletteIndexIsStable(t *testing.T) {
	idx := paletteIndex("prod/web-0/app", len(DefaultColorPalette()))
	for i := 0; i < 10; i++ {
		if paletteIndex("prod/web-0/app", len(DefaultColorPalette())) != idx {
			t.Fatalf("palette index must be deterministic")
		}
	}
}
