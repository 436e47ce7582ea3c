// File: internal/discover/list.go
// Brief: One-shot pod listing across namespaces.

package discover

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/ktail/internal/stream"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// List resolves the current set of matching targets with one pod listing per
// namespace, run concurrently.
func List(ctx context.Context, client kubernetes.Interface, sel Selector) ([]stream.Target, error) {
	listOpts := metav1.ListOptions{
		LabelSelector: sel.LabelSelector,
		FieldSelector: sel.FieldSelector,
	}

	var (
		mu      sync.Mutex
		targets []stream.Target
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, ns := range sel.ResolveNamespaces() {
		eg.Go(func() error {
			list, err := client.CoreV1().Pods(ns).List(egCtx, listOpts)
			if err != nil {
				return fmt.Errorf("list pods in %q: %w", ns, err)
			}
			var matched []stream.Target
			for i := range list.Items {
				pod := &list.Items[i]
				if !sel.MatchesPod(pod) {
					continue
				}
				if !podHasStarted(pod) {
					continue
				}
				matched = append(matched, sel.Targets(pod)...)
			}
			if len(matched) == 0 {
				return nil
			}
			mu.Lock()
			targets = append(targets, matched...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Namespace != targets[j].Namespace {
			return targets[i].Namespace < targets[j].Namespace
		}
		if targets[i].Pod != targets[j].Pod {
			return targets[i].Pod < targets[j].Pod
		}
		return targets[i].Container < targets[j].Container
	})
	return targets, nil
}

// podHasStarted filters out pods that cannot serve logs yet; pending pods in
// follow mode are picked up later by the watcher once they start.
func podHasStarted(pod *corev1.Pod) bool {
	switch pod.Status.Phase {
	case corev1.PodPending:
		return false
	case "":
		return false
	default:
		return true
	}
}
