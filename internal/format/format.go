// File: internal/format/format.go
// Brief: Terminal rendering of log entries with hashed source colors.

// Package format renders filtered log entries to a writer. Text mode prefixes
// each line with a colored namespace/pod/container token so interleaved
// sources stay visually distinct; JSON mode emits one object per line for
// machine consumers; raw mode passes messages through untouched.
package format

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fatih/color"

	"github.com/example/ktail/internal/stream"
)

// Mode selects the output rendering.
type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
	ModeRaw  Mode = "raw"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeText, "":
		return ModeText, nil
	case ModeJSON:
		return ModeJSON, nil
	case ModeRaw:
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown output mode %q (expected text, json, or raw)", value)
}

// DefaultTemplate is the text-mode layout when no override is given.
const DefaultTemplate = "{{.Prefix}} {{.Message}}"

// Options configure a Formatter.
type Options struct {
	Mode       Mode
	Template   string
	Timestamps bool
	ColorMode  string // auto, always, never
}

// templateEntry is the data handed to the text template.
type templateEntry struct {
	Prefix    string
	Timestamp string
	Namespace string
	Pod       string
	Container string
	Message   string
}

// jsonEntry is the line shape emitted in JSON mode.
type jsonEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`
	Container string `json:"container"`
	Message   string `json:"message"`
}

// Formatter writes rendered entries. Write is serialized internally so a
// single Formatter may sit behind a fan-in of sources.
type Formatter struct {
	opts    Options
	tmpl    *template.Template
	palette []*color.Color

	mu      sync.Mutex
	w       io.Writer
	bufPool sync.Pool
}

// New builds a formatter for w. The template is parsed once up front so a bad
// override fails at startup rather than mid-stream.
func New(w io.Writer, opts Options) (*Formatter, error) {
	if opts.Mode == "" {
		opts.Mode = ModeText
	}
	text := opts.Template
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("ktail").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	switch opts.ColorMode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	}
	return &Formatter{
		opts:    opts,
		tmpl:    tmpl,
		palette: DefaultColorPalette(),
		w:       w,
		bufPool: sync.Pool{New: func() interface{} { return &strings.Builder{} }},
	}, nil
}

// Write renders one entry and appends a newline.
func (f *Formatter) Write(entry stream.Entry) error {
	switch f.opts.Mode {
	case ModeJSON:
		return f.writeJSON(entry)
	case ModeRaw:
		return f.writeLine(entry.Message)
	default:
		return f.writeText(entry)
	}
}

func (f *Formatter) writeText(entry stream.Entry) error {
	prefix := fmt.Sprintf("%s/%s[%s]", entry.Namespace, entry.Pod, entry.Container)
	colored := f.colorFor(entry.Target().String()).Sprint(prefix)

	data := templateEntry{
		Prefix:    colored,
		Namespace: entry.Namespace,
		Pod:       entry.Pod,
		Container: entry.Container,
		Message:   entry.Message,
	}
	if f.opts.Timestamps && entry.Timestamp != nil {
		data.Timestamp = entry.Timestamp.Format(time.RFC3339)
		data.Prefix = data.Timestamp + " " + data.Prefix
	}

	buf := f.bufPool.Get().(*strings.Builder)
	buf.Reset()
	defer f.bufPool.Put(buf)
	if err := f.tmpl.Execute(buf, data); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return f.writeLine(buf.String())
}

func (f *Formatter) writeJSON(entry stream.Entry) error {
	line := jsonEntry{
		Namespace: entry.Namespace,
		Pod:       entry.Pod,
		Container: entry.Container,
		Message:   entry.Message,
	}
	if entry.Timestamp != nil {
		line.Timestamp = entry.Timestamp.Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return f.writeLine(string(raw))
}

func (f *Formatter) writeLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintln(f.w, line)
	return err
}

// colorFor picks a stable palette entry for a source token.
func (f *Formatter) colorFor(seed string) *color.Color {
	if len(f.palette) == 0 {
		return color.New()
	}
	return f.palette[paletteIndex(seed, len(f.palette))]
}

func paletteIndex(seed string, length int) int {
	if length == 0 {
		return 0
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(seed))
	return int(hasher.Sum32()) % length
}

// DefaultColorPalette returns the color rotation applied to source prefixes.
func DefaultColorPalette() []*color.Color {
	return []*color.Color{
		color.New(color.Bold, color.FgHiCyan),
		color.New(color.Bold, color.FgHiMagenta),
		color.New(color.Bold, color.FgHiGreen),
		color.New(color.Bold, color.FgHiYellow),
		color.New(color.Bold, color.FgHiBlue),
		color.New(color.Bold, color.FgHiRed),
		color.New(color.FgHiMagenta, color.BgBlack),
		color.New(color.FgHiBlue, color.BgBlack),
		color.New(color.FgHiGreen, color.BgBlack),
		color.New(color.FgHiCyan, color.BgBlack),
		color.New(color.FgHiYellow, color.BgBlack),
	}
}
