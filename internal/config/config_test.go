package config

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/example/ktail/internal/format"
)

func TestValidateDefaults(t *testing.T) {
	o := NewOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if o.PodQuery != ".*" {
		t.Fatalf("empty pod query should default to .*, got %q", o.PodQuery)
	}
	if o.OutputMode != format.ModeText {
		t.Fatalf("default output mode should be text, got %q", o.OutputMode)
	}
}

func TestValidateNamespaceShorthand(t *testing.T) {
	o := NewOptions()
	o.PodQuery = "prod/web-.*"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.PodQuery != "web-.*" {
		t.Fatalf("pod query should drop the namespace hint, got %q", o.PodQuery)
	}
	if len(o.Namespaces) != 1 || o.Namespaces[0] != "prod" {
		t.Fatalf("namespace hint should be applied, got %v", o.Namespaces)
	}
}

func TestValidateShorthandDoesNotOverrideExplicitNamespace(t *testing.T) {
	o := NewOptions()
	o.PodQuery = "prod/web-.*"
	o.Namespaces = []string{"staging"}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(o.Namespaces) != 1 || o.Namespaces[0] != "staging" {
		t.Fatalf("explicit namespace must win, got %v", o.Namespaces)
	}
}

func TestValidateRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
		want   string
	}{
		{"bad pod regex", func(o *Options) { o.PodQuery = "([" }, "invalid pod regex"},
		{"bad container regex", func(o *Options) { o.ContainerFilters = []string{"(("} }, "invalid container regex"},
		{"bad include", func(o *Options) { o.Include = "ERROR &&" }, "invalid --include"},
		{"bad exclude", func(o *Options) { o.Exclude = "(debug" }, "invalid --exclude"},
		{"bad since", func(o *Options) { o.SinceRaw = "yesterday" }, "invalid since duration"},
		{"negative workers", func(o *Options) { o.Workers = -1 }, "--workers"},
		{"negative backlog", func(o *Options) { o.BacklogSize = -1 }, "--backlog"},
		{"bad output", func(o *Options) { o.OutputFormat = "yaml" }, "unknown output mode"},
		{"bad color", func(o *Options) { o.ColorMode = "rainbow" }, "invalid --color"},
		{"namespace conflict", func(o *Options) {
			o.AllNamespaces = true
			o.Namespaces = []string{"default"}
		}, "cannot combine"},
	}
	for _, tc := range cases {
		o := NewOptions()
		tc.mutate(o)
		err := o.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestValidateNoFollowAlias(t *testing.T) {
	o := NewOptions()
	o.NoFollow = true
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.Follow {
		t.Fatalf("--no-follow should disable follow")
	}
}

func TestBindFlagsParsesShortAndLong(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("ktail", pflag.ContinueOnError)
	o.BindFlags(fs)
	if err := fs.Parse([]string{"-A", "--include", `ERROR && !"debug"`, "-w", "4", "--backlog", "500"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !o.AllNamespaces || o.Workers != 4 || o.BacklogSize != 500 {
		t.Fatalf("flags not bound: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
