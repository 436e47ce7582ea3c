// run.go assembles the tail pipeline: discovery feeds the multiplexer, the
// multiplexer feeds the filter stage, and the filter stage feeds the
// formatter.
package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/example/ktail/internal/config"
	"github.com/example/ktail/internal/discover"
	"github.com/example/ktail/internal/filter"
	"github.com/example/ktail/internal/format"
	"github.com/example/ktail/internal/kube"
	"github.com/example/ktail/internal/metrics"
	"github.com/example/ktail/internal/stream"
)

func runTail(ctx context.Context, opts *config.Options, logger logr.Logger, out io.Writer) error {
	client, err := kube.New(opts.KubeConfigPath, opts.Context)
	if err != nil {
		return err
	}

	namespaces := opts.Namespaces
	if len(namespaces) == 0 && !opts.AllNamespaces && client.Namespace != "" {
		namespaces = []string{client.Namespace}
	}
	sel := discover.Selector{
		PodRegex:        opts.PodRegex,
		ExcludePodRegex: opts.ExcludePodRegex,
		ContainerRegex:  opts.ContainerRegex,
		Namespaces:      namespaces,
		AllNamespaces:   opts.AllNamespaces,
		LabelSelector:   opts.LabelSelector,
		FieldSelector:   opts.FieldSelector,
		AllContainers:   opts.AllContainers,
	}
	targets, err := discover.List(ctx, client.Clientset, sel)
	if err != nil {
		return fmt.Errorf("discover pods: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no pods match %q in %s", opts.PodQuery, describeNamespaces(sel))
	}
	logger.V(1).Info("resolved targets", "count", len(targets))

	formatter, err := format.New(out, format.Options{
		Mode:       opts.OutputMode,
		Template:   opts.Template,
		Timestamps: opts.ShowTimestamp,
		ColorMode:  opts.ColorMode,
	})
	if err != nil {
		return err
	}

	streamer := stream.NewKubeStreamer(client.Clientset)
	streamOpts := stream.Options{
		Follow:     opts.Follow,
		TailLines:  opts.TailLines,
		Since:      opts.Since,
		Timestamps: opts.ShowTimestamp || opts.OutputMode == format.ModeJSON,
	}
	mux := stream.NewMultiplexer(streamer, streamOpts, logger, 0)

	// When mux.Run returns the session is over either way (channels are
	// closed), so the remaining goroutines must be torn down even when it
	// returns nil. endSession cancels the group without marking the outer
	// context cancelled.
	sessionCtx, endSession := context.WithCancel(ctx)
	defer endSession()
	g, gctx := errgroup.WithContext(sessionCtx)

	// The filter stage: with a backlog the manager filters serially while
	// retaining raw lines for replay; with --backlog=0 the sharded worker
	// pool filters in parallel with no retention.
	var filtered <-chan stream.Entry
	if opts.BacklogSize > 0 {
		manager, err := filter.NewManager(opts.Include, opts.Exclude, opts.BacklogSize, logger)
		if err != nil {
			return err
		}
		filtered = manager.Run(gctx, mux.Entries())
	} else {
		spec, err := filter.ParseSpec(opts.Include, opts.Exclude)
		if err != nil {
			return err
		}
		filtered = filter.NewPipeline(logger).Start(gctx, mux.Entries(), spec, opts.Workers)
	}

	g.Go(func() error {
		defer endSession()
		return mux.Run(gctx, targets)
	})
	g.Go(func() error {
		drainEvents(mux.Events(), logger)
		return nil
	})
	g.Go(func() error {
		for entry := range filtered {
			if err := formatter.Write(entry); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}
		return nil
	})

	if opts.Follow {
		watcher := discover.NewWatcher(client.Clientset, sel, logger,
			func(t stream.Target) {
				if mux.Add(t) {
					logger.V(1).Info("pod appeared", "target", t.String())
				}
			},
			func(t stream.Target) {
				mux.Remove(t)
				logger.V(1).Info("pod gone", "target", t.String())
			},
		)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if opts.Monitor {
		if !opts.Follow {
			logger.Info("--monitor requires --follow; skipping usage sampling")
		} else {
			collector := metrics.NewCollector(client.Metrics, metrics.Options{
				Namespaces:    namespaces,
				AllNamespaces: opts.AllNamespaces,
				LabelSelector: opts.LabelSelector,
				Interval:      opts.MonitorInterval(),
			}, logger)
			g.Go(func() error {
				return collector.Run(gctx)
			})
			g.Go(func() error {
				reportUsage(gctx, collector, opts.MonitorInterval(), logger)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func drainEvents(events <-chan stream.SourceEvent, logger logr.Logger) {
	for ev := range events {
		switch ev.Kind {
		case stream.EventReconnecting:
			logger.V(1).Info("reconnecting to source", "target", ev.Target.String(), "error", errString(ev.Err))
		case stream.EventAbandoned:
			logger.Info("source abandoned", "target", ev.Target.String(), "error", errString(ev.Err))
		case stream.EventEnded:
			logger.V(1).Info("source ended", "target", ev.Target.String())
		}
	}
}

func reportUsage(ctx context.Context, collector *metrics.Collector, interval time.Duration, logger logr.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, usage := range collector.Snapshot() {
				logger.Info("pod usage",
					"namespace", usage.Namespace,
					"pod", usage.Pod,
					"cpu_milli", usage.CPUm,
					"memory_bytes", usage.MemoryBytes,
				)
			}
		}
	}
}

func describeNamespaces(sel discover.Selector) string {
	if sel.AllNamespaces {
		return "any namespace"
	}
	if len(sel.Namespaces) == 0 {
		return "namespace \"default\""
	}
	return fmt.Sprintf("namespace(s) %s", strings.Join(sel.Namespaces, ", "))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
