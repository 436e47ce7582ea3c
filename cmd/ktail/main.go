// main.go bootstraps ktail: it builds the root Cobra command, wires viper env
// and config-file binding, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"

	"github.com/example/ktail/internal/config"
	"github.com/example/ktail/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	initKlogFlags()

	opts := config.NewOptions()
	var kubeLogLevel int
	cmd := &cobra.Command{
		Use:           "ktail [POD_QUERY]",
		Short:         "Multi-pod Kubernetes log tailer with boolean filter expressions",
		Long:          "ktail streams logs from every matching pod concurrently and filters them with composable pattern expressions (&&, ||, !, quoted substrings).",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if kubeLogLevel == 0 {
				if val := strings.TrimSpace(os.Getenv("KTAIL_KUBE_LOG_LEVEL")); val != "" {
					n, err := strconv.Atoi(val)
					if err != nil {
						return fmt.Errorf("invalid KTAIL_KUBE_LOG_LEVEL %q: %w", val, err)
					}
					kubeLogLevel = n
				}
			}
			if kubeLogLevel > 0 {
				_ = flag.CommandLine.Set("v", strconv.Itoa(kubeLogLevel))
				_ = flag.CommandLine.Set("logtostderr", "true")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.PodQuery = args[0]
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(opts.LogLevel)
			if err != nil {
				return err
			}
			return runTail(cmd.Context(), opts, logger, os.Stdout)
		},
	}
	opts.BindFlags(cmd.Flags())
	cmd.PersistentFlags().IntVar(&kubeLogLevel, "kube-log-level", 0, "Kubernetes client-go verbosity (klog -v); can also set KTAIL_KUBE_LOG_LEVEL")
	cmd.Example = `  # Tail checkout pods in prod-payments, errors that are not health checks
  ktail 'checkout-.*' -n prod-payments --include '(ERROR || WARN) && !"healthz"'

  # Every container of every pod matching a label, as JSON
  ktail -l app=api --all-containers -o json

  # One-shot: last 50 lines from each pod, no follow
  ktail 'worker-.*' --tail 50 --no-follow`
	bindViper(cmd)
	return cmd
}

// initKlogFlags registers client-go's klog flags so --kube-log-level can
// raise API verbosity without a separate flag namespace.
func initKlogFlags() {
	if flag.CommandLine.Lookup("v") == nil {
		klog.InitFlags(flag.CommandLine)
	}
}

func bindViper(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("KTAIL")
	v.AutomaticEnv()
	configFile := os.Getenv("KTAIL_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			cobra.CheckErr(err)
		}
		if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
			cobra.CheckErr(err)
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if !v.IsSet(f.Name) {
					return
				}
				val := fmt.Sprintf("%v", v.Get(f.Name))
				if val != "" {
					_ = f.Value.Set(val)
				}
			})
		}
	})
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "ktail"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "ktail"))
		add(filepath.Join(home, ".ktail"))
	}
	return dirs
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case apierrors.IsUnauthorized(err):
		message = fmt.Sprintf("%s\nHint: kubeconfig credentials were rejected. Run 'kubectl config view' to confirm the active user.", err)
	case apierrors.IsForbidden(err):
		message = fmt.Sprintf("%s\nHint: missing Kubernetes permissions. ktail needs get/list/watch on pods and pods/log.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
