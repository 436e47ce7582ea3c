// File: internal/filter/pipeline.go
// Brief: Fixed worker pool applying a Spec to the multiplexed entry stream.

package filter

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/example/ktail/internal/stream"
	"github.com/go-logr/logr"
)

const (
	workerQueueDepth = 64
	outputQueueDepth = 256
)

// Pipeline filters a raw entry stream with bounded parallelism.
//
// Entries are sharded to workers by a hash of their target identity, so all
// lines from one container are handled by the same FIFO worker and can never
// reorder relative to each other. Cross-target output order is arrival order,
// the same contract the multiplexer gives. Every queue is bounded: when the
// consumer falls behind, workers block, the dispatcher blocks, and the
// pressure reaches the multiplexer's channel send. Nothing is dropped.
type Pipeline struct {
	log logr.Logger
}

// NewPipeline returns a pipeline that logs worker diagnostics to logger.
func NewPipeline(logger logr.Logger) *Pipeline {
	return &Pipeline{log: logger.WithName("filter")}
}

// RecommendedWorkerCount is the default pool size when the caller does not
// override it.
func RecommendedWorkerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// Start launches the worker pool and returns the filtered stream. The output
// channel is closed once the input closes (or the context ends) and all
// workers have drained.
func (p *Pipeline) Start(ctx context.Context, in <-chan stream.Entry, spec Spec, workers int) <-chan stream.Entry {
	if workers <= 0 {
		workers = RecommendedWorkerCount()
	}
	out := make(chan stream.Entry, outputQueueDepth)
	queues := make([]chan stream.Entry, workers)
	for i := range queues {
		queues[i] = make(chan stream.Entry, workerQueueDepth)
	}

	var wg sync.WaitGroup
	for i := range queues {
		wg.Add(1)
		go func(queue <-chan stream.Entry) {
			defer wg.Done()
			for entry := range queue {
				if !p.accept(spec, entry) {
					continue
				}
				select {
				case <-ctx.Done():
				case out <- entry:
				}
			}
		}(queues[i])
	}

	go func() {
		defer func() {
			for _, queue := range queues {
				close(queue)
			}
			wg.Wait()
			close(out)
		}()
		p.log.V(1).Info("filter pipeline started", "workers", workers)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-in:
				if !ok {
					return
				}
				queue := queues[shardFor(entry, workers)]
				select {
				case <-ctx.Done():
					return
				case queue <- entry:
				}
			}
		}
	}()
	return out
}

// accept isolates a matching panic to the single entry: the entry is dropped
// with a diagnostic and the worker keeps running.
func (p *Pipeline) accept(spec Spec, entry stream.Entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Info("dropping entry after matcher panic", "target", entry.Target().String(), "panic", r)
			ok = false
		}
	}()
	return spec.Accept(entry.Message)
}

// shardFor maps a target identity onto a worker index.
func shardFor(entry stream.Entry, workers int) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(entry.Namespace))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(entry.Pod))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(entry.Container))
	return int(hasher.Sum32() % uint32(workers))
}
