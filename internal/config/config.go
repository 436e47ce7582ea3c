// File: internal/config/config.go
// Brief: Flag plumbing and validated runtime options for ktail.

// Package config defines the flag plumbing and runtime options for ktail,
// translating Cobra/Viper flag values into a strongly typed struct the
// discovery, streaming, and filtering pipelines consume.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/ktail/internal/format"
	"github.com/example/ktail/internal/pattern"
)

// Options holds all CLI configuration used by the tail pipeline.
type Options struct {
	PodQuery          string
	Namespaces        []string
	AllNamespaces     bool
	LabelSelector     string
	FieldSelector     string
	ContainerFilters  []string
	ExcludePods       []string
	AllContainers     bool
	Include           string
	Exclude           string
	Follow            bool
	NoFollow          bool
	SinceRaw          string
	Since             time.Duration
	TailLines         int64
	ShowTimestamp     bool
	Template          string
	TemplateFile      string
	OutputFormat      string
	ColorMode         string
	Workers           int
	BacklogSize       int
	Monitor           bool
	MonitorIntervalMS int
	KubeConfigPath    string
	Context           string
	LogLevel          string

	PodRegex        *regexp.Regexp
	ContainerRegex  []*regexp.Regexp
	ExcludePodRegex []*regexp.Regexp
	OutputMode      format.Mode
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Follow:            true,
		TailLines:         10,
		ColorMode:         "auto",
		OutputFormat:      "text",
		BacklogSize:       10000,
		MonitorIntervalMS: 15000,
		LogLevel:          "info",
	}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches flags to an arbitrary FlagSet and returns the flag names
// for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.BoolVarP(&o.AllNamespaces, "all-namespaces", "A", false, "If present, tail across all namespaces (overrides --namespace)")
	names = append(names, "all-namespaces")
	fs.StringSliceVarP(&o.Namespaces, "namespace", "n", nil, "Kubernetes namespace to use. Defaults to the context namespace; repeat or use comma-separated values for multiple.")
	names = append(names, "namespace")
	fs.StringVarP(&o.LabelSelector, "selector", "l", "", "Label selector to filter pods")
	names = append(names, "selector")
	fs.StringVar(&o.FieldSelector, "field-selector", "", "Field selector to filter pods (e.g. spec.nodeName=kind-control-plane)")
	names = append(names, "field-selector")
	fs.StringSliceVarP(&o.ContainerFilters, "container", "c", nil, "Regex filter for container names (repeat to OR multiple)")
	names = append(names, "container")
	fs.StringSliceVar(&o.ExcludePods, "exclude-pod", nil, "Regex for pod names to exclude")
	names = append(names, "exclude-pod")
	fs.BoolVar(&o.AllContainers, "all-containers", false, "Stream every container of each matched pod instead of the first")
	names = append(names, "all-containers")
	fs.StringVarP(&o.Include, "include", "i", "", "Pattern expression log lines must match (supports &&, ||, !, parentheses, \"quoted\" substrings)")
	names = append(names, "include")
	fs.StringVarP(&o.Exclude, "exclude", "x", "", "Pattern expression to skip log lines that match")
	names = append(names, "exclude")
	fs.BoolVarP(&o.Follow, "follow", "f", true, "Follow log output")
	names = append(names, "follow")
	fs.BoolVar(&o.NoFollow, "no-follow", false, "Alias for --follow=false")
	names = append(names, "no-follow")
	fs.StringVarP(&o.SinceRaw, "since", "s", "", "Return logs newer than a relative duration like 5s, 2m, or 3h")
	names = append(names, "since")
	fs.Int64VarP(&o.TailLines, "tail", "t", 10, "Number of historic log lines to show, -1 for all available")
	names = append(names, "tail")
	fs.BoolVarP(&o.ShowTimestamp, "timestamps", "T", false, "Show timestamps in output")
	names = append(names, "timestamps")
	fs.StringVarP(&o.Template, "template", "p", "", "Go template for log lines; available fields: Prefix, Timestamp, Namespace, Pod, Container, Message")
	names = append(names, "template")
	fs.StringVar(&o.TemplateFile, "template-file", "", "Path to a Go template file for log output")
	names = append(names, "template-file")
	fs.StringVarP(&o.OutputFormat, "output", "o", "text", "Output mode: text, json, or raw")
	names = append(names, "output")
	fs.StringVarP(&o.ColorMode, "color", "m", "auto", "Force set color output. 'auto': colorize if tty attached, 'always': always colorize, 'never': never colorize")
	names = append(names, "color")
	fs.IntVarP(&o.Workers, "workers", "w", 0, "Filter worker count (0 uses a CPU-derived default)")
	names = append(names, "workers")
	fs.IntVar(&o.BacklogSize, "backlog", 10000, "Lines retained for replay when the filter changes (0 disables retention)")
	names = append(names, "backlog")
	fs.BoolVar(&o.Monitor, "monitor", false, "Sample CPU/memory usage of matched pods via the metrics API")
	names = append(names, "monitor")
	fs.IntVar(&o.MonitorIntervalMS, "monitor-interval", 15000, "Metrics sampling interval in milliseconds")
	names = append(names, "monitor-interval")
	fs.StringVar(&o.KubeConfigPath, "kubeconfig", "", "Path to the kubeconfig file (defaults to standard loading rules)")
	names = append(names, "kubeconfig")
	fs.StringVar(&o.Context, "context", "", "Kubeconfig context to use")
	names = append(names, "context")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Diagnostic log level: debug, info, warn, or error")
	names = append(names, "log-level")
	return names
}

// Validate ensures provided options are coherent, compiles regex inputs, and
// parses the filter expressions so malformed input fails before any stream
// is opened.
func (o *Options) Validate() error {
	if o.PodQuery == "" {
		o.PodQuery = ".*"
	}
	// "namespace/pod-regex" shorthand mirrors kubectl conventions.
	if strings.Contains(o.PodQuery, "/") {
		parts := strings.SplitN(o.PodQuery, "/", 2)
		if len(parts) == 2 && parts[1] != "" {
			namespaceHint := strings.TrimSpace(parts[0])
			o.PodQuery = parts[1]
			if namespaceHint != "" && len(o.Namespaces) == 0 && !o.AllNamespaces {
				o.Namespaces = []string{namespaceHint}
			}
		}
	}
	re, err := regexp.Compile(o.PodQuery)
	if err != nil {
		return fmt.Errorf("invalid pod regex %q: %w", o.PodQuery, err)
	}
	o.PodRegex = re
	for _, val := range o.ContainerFilters {
		re, err := regexp.Compile(val)
		if err != nil {
			return fmt.Errorf("invalid container regex %q: %w", val, err)
		}
		o.ContainerRegex = append(o.ContainerRegex, re)
	}
	for _, val := range o.ExcludePods {
		re, err := regexp.Compile(val)
		if err != nil {
			return fmt.Errorf("invalid exclude-pod regex %q: %w", val, err)
		}
		o.ExcludePodRegex = append(o.ExcludePodRegex, re)
	}
	if _, err := pattern.Parse(o.Include); err != nil {
		return fmt.Errorf("invalid --include expression: %w", err)
	}
	if _, err := pattern.Parse(o.Exclude); err != nil {
		return fmt.Errorf("invalid --exclude expression: %w", err)
	}
	if o.SinceRaw != "" {
		dur, err := time.ParseDuration(o.SinceRaw)
		if err != nil {
			return fmt.Errorf("invalid since duration %q: %w", o.SinceRaw, err)
		}
		if dur < 0 {
			return fmt.Errorf("--since cannot be negative")
		}
		o.Since = dur
	}
	if o.TailLines < -1 {
		return fmt.Errorf("--tail cannot be less than -1")
	}
	if o.Workers < 0 {
		return fmt.Errorf("--workers cannot be negative")
	}
	if o.BacklogSize < 0 {
		return fmt.Errorf("--backlog cannot be negative")
	}
	if o.MonitorIntervalMS <= 0 {
		return fmt.Errorf("--monitor-interval must be positive")
	}
	if strings.TrimSpace(o.TemplateFile) != "" {
		data, err := os.ReadFile(o.TemplateFile)
		if err != nil {
			return fmt.Errorf("read template file %q: %w", o.TemplateFile, err)
		}
		o.Template = string(data)
	}
	if o.NoFollow {
		o.Follow = false
	}
	mode, err := format.ParseMode(o.OutputFormat)
	if err != nil {
		return err
	}
	o.OutputMode = mode
	switch strings.ToLower(o.ColorMode) {
	case "", "auto":
		o.ColorMode = "auto"
	case "always":
		o.ColorMode = "always"
	case "never":
		o.ColorMode = "never"
	default:
		return fmt.Errorf("invalid --color value %q (allowed: auto, always, never)", o.ColorMode)
	}
	if o.AllNamespaces && len(o.Namespaces) > 0 {
		return fmt.Errorf("cannot combine --all-namespaces with explicit --namespace")
	}
	for idx, ns := range o.Namespaces {
		o.Namespaces[idx] = strings.TrimSpace(ns)
	}
	o.FieldSelector = strings.TrimSpace(o.FieldSelector)
	return nil
}

// MonitorInterval returns the metrics sampling interval as a duration.
func (o *Options) MonitorInterval() time.Duration {
	return time.Duration(o.MonitorIntervalMS) * time.Millisecond
}
