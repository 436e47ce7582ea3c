// watcher_test.go covers the watcher's incarnation tracking: restarted or
// replaced containers must be torn down and re-added, duplicates must not.
package discover

import (
	"regexp"
	"testing"

	"github.com/example/ktail/internal/stream"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/cache"
)

type callbackLog struct {
	added   []stream.Target
	removed []stream.Target
}

func newTestWatcher() (*Watcher, *callbackLog) {
	calls := &callbackLog{}
	sel := Selector{PodRegex: regexp.MustCompile(".*")}
	w := NewWatcher(nil, sel, logr.Discard(),
		func(t stream.Target) { calls.added = append(calls.added, t) },
		func(t stream.Target) { calls.removed = append(calls.removed, t) },
	)
	return w, calls
}

func statusPod(namespace, name string, uid types.UID, restarts int32, containers ...string) *corev1.Pod {
	p := pod(namespace, name, corev1.PodRunning, containers...)
	p.UID = uid
	for _, c := range containers {
		p.Status.ContainerStatuses = append(p.Status.ContainerStatuses, corev1.ContainerStatus{
			Name:         c,
			RestartCount: restarts,
		})
	}
	return p
}

func TestWatcherAddsNewTargetOnce(t *testing.T) {
	w, calls := newTestWatcher()
	p := statusPod("default", "web-0", "uid-1", 0, "app")
	w.handlePodAdd(p)
	w.handlePodAdd(p)
	if len(calls.added) != 1 {
		t.Fatalf("expected a single add for repeated identical events, got %d", len(calls.added))
	}
	if len(calls.removed) != 0 {
		t.Fatalf("unexpected removes: %v", calls.removed)
	}
	want := stream.Target{Namespace: "default", Pod: "web-0", Container: "app"}
	if calls.added[0] != want {
		t.Fatalf("unexpected target %v", calls.added[0])
	}
}

func TestWatcherIgnoresPendingPods(t *testing.T) {
	w, calls := newTestWatcher()
	w.handlePodAdd(pod("default", "web-0", corev1.PodPending, "app"))
	if len(calls.added) != 0 {
		t.Fatalf("pending pods must not be tailed, got %v", calls.added)
	}
}

func TestWatcherRetailsRestartedContainer(t *testing.T) {
	// A container restart closes its log stream on the server side; the
	// bumped restart count must trigger remove-then-add so the new container
	// gets tailed.
	w, calls := newTestWatcher()
	w.handlePodAdd(statusPod("default", "web-0", "uid-1", 0, "app"))
	w.handlePodAdd(statusPod("default", "web-0", "uid-1", 1, "app"))

	if len(calls.added) != 2 {
		t.Fatalf("expected re-add after restart, got %d adds", len(calls.added))
	}
	if len(calls.removed) != 1 {
		t.Fatalf("expected the stale stream to be removed first, got %d removes", len(calls.removed))
	}
	want := stream.Target{Namespace: "default", Pod: "web-0", Container: "app"}
	if calls.removed[0] != want || calls.added[1] != want {
		t.Fatalf("remove/add must name the restarted target: %v %v", calls.removed, calls.added)
	}
}

func TestWatcherRetailsRecreatedPod(t *testing.T) {
	// StatefulSet pods come back under the same name with a fresh UID.
	w, calls := newTestWatcher()
	w.handlePodAdd(statusPod("default", "db-0", "uid-old", 0, "postgres"))
	w.handlePodAdd(statusPod("default", "db-0", "uid-new", 0, "postgres"))

	if len(calls.added) != 2 || len(calls.removed) != 1 {
		t.Fatalf("expected remove+add for a recreated pod, got %d adds %d removes",
			len(calls.added), len(calls.removed))
	}
}

func TestWatcherDeleteRemovesAllPodTargets(t *testing.T) {
	w, calls := newTestWatcher()
	w.sel.AllContainers = true
	p := statusPod("default", "web-0", "uid-1", 0, "app", "sidecar")
	w.handlePodAdd(p)
	if len(calls.added) != 2 {
		t.Fatalf("expected both containers added, got %v", calls.added)
	}
	w.handlePodDelete(p)
	if len(calls.removed) != 2 {
		t.Fatalf("expected both containers removed, got %v", calls.removed)
	}
	// A delete for an unknown pod is a no-op.
	w.handlePodDelete(statusPod("default", "other-0", "uid-2", 0, "app"))
	if len(calls.removed) != 2 {
		t.Fatalf("unknown pod delete must not fire callbacks, got %v", calls.removed)
	}
}

func TestWatcherDeleteHandlesTombstone(t *testing.T) {
	w, calls := newTestWatcher()
	p := statusPod("default", "web-0", "uid-1", 0, "app")
	w.handlePodAdd(p)
	w.handlePodDelete(cache.DeletedFinalStateUnknown{Key: "default/web-0", Obj: p})
	if len(calls.removed) != 1 {
		t.Fatalf("tombstoned delete must still remove the target, got %v", calls.removed)
	}
}
