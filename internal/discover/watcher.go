// File: internal/discover/watcher.go
// Brief: Informer-backed discovery feeding target add/remove callbacks.

package discover

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ktail/internal/stream"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// Watcher keeps the target set current while following: it runs one pod
// informer per namespace and invokes the callbacks as matching pods appear,
// restart, or vanish.
type Watcher struct {
	client   kubernetes.Interface
	sel      Selector
	log      logr.Logger
	onAdd    func(stream.Target)
	onRemove func(stream.Target)

	mu     sync.Mutex
	active map[stream.Target]containerState
}

// containerState identifies one concrete incarnation of a container. A new
// pod UID or a bumped restart count means the old stream is dead and the
// target needs a fresh tail.
type containerState struct {
	uid      types.UID
	restarts int32
}

// NewWatcher builds a watcher; onAdd/onRemove are typically the multiplexer's
// Add and Remove.
func NewWatcher(client kubernetes.Interface, sel Selector, logger logr.Logger, onAdd, onRemove func(stream.Target)) *Watcher {
	return &Watcher{
		client:   client,
		sel:      sel,
		log:      logger.WithName("discover"),
		onAdd:    onAdd,
		onRemove: onRemove,
		active:   make(map[stream.Target]containerState),
	}
}

// Run starts the informers and blocks until the context ends.
func (w *Watcher) Run(ctx context.Context) error {
	informers := w.createInformers()
	if len(informers) == 0 {
		return fmt.Errorf("no informers could be configured")
	}
	for _, informer := range informers {
		_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
			AddFunc:    w.handlePodAdd,
			UpdateFunc: func(oldObj, newObj interface{}) { w.handlePodAdd(newObj) },
			DeleteFunc: w.handlePodDelete,
		})
		if err != nil {
			return fmt.Errorf("register pod event handler: %w", err)
		}
		go informer.Run(ctx.Done())
	}

	synced := make([]cache.InformerSynced, 0, len(informers))
	for _, informer := range informers {
		synced = append(synced, informer.HasSynced)
	}
	if !cache.WaitForCacheSync(ctx.Done(), synced...) {
		return fmt.Errorf("pod informers did not sync before cancellation")
	}
	w.log.V(1).Info("pod informers synced", "count", len(informers))
	<-ctx.Done()
	return nil
}

func (w *Watcher) createInformers() []cache.SharedIndexInformer {
	namespaces := w.sel.ResolveNamespaces()
	informers := make([]cache.SharedIndexInformer, 0, len(namespaces))
	for _, ns := range namespaces {
		namespace := ns
		lw := &cache.ListWatch{
			ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
				options.LabelSelector = w.sel.LabelSelector
				options.FieldSelector = w.sel.FieldSelector
				return w.client.CoreV1().Pods(namespace).List(context.Background(), options)
			},
			WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
				options.LabelSelector = w.sel.LabelSelector
				options.FieldSelector = w.sel.FieldSelector
				return w.client.CoreV1().Pods(namespace).Watch(context.Background(), options)
			},
		}
		informer := cache.NewSharedIndexInformer(
			lw,
			&corev1.Pod{},
			0,
			cache.Indexers{cache.NamespaceIndex: cache.MetaNamespaceIndexFunc},
		)
		informers = append(informers, informer)
		if namespace == metav1.NamespaceAll {
			break
		}
	}
	return informers
}

func (w *Watcher) handlePodAdd(obj interface{}) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return
	}
	if !w.sel.MatchesPod(pod) {
		return
	}
	if pod.Status.Phase == corev1.PodPending {
		// Streamed once it starts; the update handler fires again then.
		return
	}
	for _, target := range w.sel.Targets(pod) {
		state := containerState{uid: pod.UID, restarts: restartCountFor(pod, target.Container)}
		w.mu.Lock()
		prev, known := w.active[target]
		w.active[target] = state
		w.mu.Unlock()
		switch {
		case !known:
			w.log.V(1).Info("target appeared", "target", target.String())
			w.onAdd(target)
		case prev != state:
			// Same name, new incarnation: the old stream ended with the old
			// container, so tear it down before tailing the new one.
			w.log.V(1).Info("target restarted", "target", target.String(), "restarts", state.restarts)
			w.onRemove(target)
			w.onAdd(target)
		}
	}
}

// restartCountFor reports the restart count of the named container, checking
// regular and init container statuses.
func restartCountFor(pod *corev1.Pod, container string) int32 {
	for _, status := range pod.Status.ContainerStatuses {
		if status.Name == container {
			return status.RestartCount
		}
	}
	for _, status := range pod.Status.InitContainerStatuses {
		if status.Name == container {
			return status.RestartCount
		}
	}
	return 0
}

func (w *Watcher) handlePodDelete(obj interface{}) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		tombstone, cast := obj.(cache.DeletedFinalStateUnknown)
		if !cast {
			return
		}
		pod, _ = tombstone.Obj.(*corev1.Pod)
		if pod == nil {
			return
		}
	}
	var removed []stream.Target
	w.mu.Lock()
	for target := range w.active {
		if target.Namespace == pod.Namespace && target.Pod == pod.Name {
			delete(w.active, target)
			removed = append(removed, target)
		}
	}
	w.mu.Unlock()
	for _, target := range removed {
		w.log.V(1).Info("target removed", "target", target.String())
		w.onRemove(target)
	}
}
