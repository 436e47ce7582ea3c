// File: internal/metrics/collector.go
// Brief: Periodic pod CPU/memory sampler over the metrics API.

// Package metrics samples CPU and memory usage for the pods being tailed,
// keeping a bounded window per pod for display collaborators.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// PodKey identifies a sampled pod.
type PodKey struct {
	Namespace string
	Pod       string
}

// PodUsage is the latest reading for one pod.
type PodUsage struct {
	Namespace   string
	Pod         string
	CPUm        int64
	MemoryBytes int64
	ObservedAt  time.Time
}

// Options configure the collector.
type Options struct {
	Namespaces    []string
	AllNamespaces bool
	LabelSelector string
	Interval      time.Duration
	WindowSize    int
}

// Collector polls the metrics API on an interval and records per-pod series.
type Collector struct {
	client metricsclient.Interface
	opts   Options
	log    logr.Logger

	mu     sync.RWMutex
	series map[PodKey]*Series
}

// NewCollector builds a collector; a zero interval defaults to 15s and a zero
// window to 240 samples (an hour at the default interval).
func NewCollector(client metricsclient.Interface, opts Options, logger logr.Logger) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 240
	}
	return &Collector{
		client: client,
		opts:   opts,
		log:    logger.WithName("metrics"),
		series: make(map[PodKey]*Series),
	}
}

// Run polls until the context ends. Poll failures are diagnostics, not fatal:
// the metrics API being briefly unavailable must not end a log session.
func (c *Collector) Run(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("metrics client is not initialized")
	}
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	if err := c.sample(ctx); err != nil {
		c.log.V(1).Info("initial metrics sample failed", "error", err.Error())
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.sample(ctx); err != nil {
				c.log.V(1).Info("metrics sample failed", "error", err.Error())
			}
		}
	}
}

func (c *Collector) sample(ctx context.Context) error {
	now := time.Now()
	for _, ns := range c.resolveNamespaces() {
		list, err := c.client.MetricsV1beta1().PodMetricses(ns).List(ctx, metav1.ListOptions{
			LabelSelector: c.opts.LabelSelector,
		})
		if err != nil {
			return fmt.Errorf("list pod metrics in namespace %q: %w", ns, err)
		}
		for i := range list.Items {
			metric := list.Items[i]
			var totalCPU, totalMem int64
			for _, container := range metric.Containers {
				if cpu := container.Usage.Cpu(); cpu != nil {
					totalCPU += cpu.MilliValue()
				}
				if mem := container.Usage.Memory(); mem != nil {
					totalMem += mem.Value()
				}
			}
			c.record(PodKey{Namespace: metric.Namespace, Pod: metric.Name}, Sample{
				At:          now,
				CPUm:        totalCPU,
				MemoryBytes: totalMem,
			})
		}
	}
	return nil
}

func (c *Collector) record(key PodKey, sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	series, ok := c.series[key]
	if !ok {
		series = NewSeries(c.opts.WindowSize)
		c.series[key] = series
	}
	series.Push(sample)
}

// Snapshot returns the latest reading per pod, sorted by namespace then pod.
func (c *Collector) Snapshot() []PodUsage {
	c.mu.RLock()
	out := make([]PodUsage, 0, len(c.series))
	for key, series := range c.series {
		latest, ok := series.Latest()
		if !ok {
			continue
		}
		out = append(out, PodUsage{
			Namespace:   key.Namespace,
			Pod:         key.Pod,
			CPUm:        latest.CPUm,
			MemoryBytes: latest.MemoryBytes,
			ObservedAt:  latest.At,
		})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace == out[j].Namespace {
			return out[i].Pod < out[j].Pod
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out
}

// Window copies one pod's retained samples oldest-first.
func (c *Collector) Window(key PodKey) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series, ok := c.series[key]
	if !ok {
		return nil
	}
	return series.Window()
}

func (c *Collector) resolveNamespaces() []string {
	if c.opts.AllNamespaces || len(c.opts.Namespaces) == 0 {
		return []string{metav1.NamespaceAll}
	}
	return c.opts.Namespaces
}
