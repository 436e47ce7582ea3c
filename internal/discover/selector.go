// File: internal/discover/selector.go
// Brief: Pod/container selection criteria shared by list and watch discovery.

// Package discover resolves which (namespace, pod, container) targets match
// the user's selection criteria, both as a one-shot listing and as an
// informer-backed watch that tracks pods appearing and disappearing.
package discover

import (
	"regexp"

	"github.com/example/ktail/internal/stream"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Selector describes which pods and containers to stream.
type Selector struct {
	PodRegex        *regexp.Regexp
	ExcludePodRegex []*regexp.Regexp
	ContainerRegex  []*regexp.Regexp
	Namespaces      []string
	AllNamespaces   bool
	LabelSelector   string
	FieldSelector   string
	// AllContainers streams every container. When false and no container
	// regex is given, only each pod's first container is streamed, matching
	// kubectl's default.
	AllContainers bool
}

// ResolveNamespaces returns the namespaces to query; all-namespaces collapses
// to the API's catch-all.
func (s Selector) ResolveNamespaces() []string {
	if s.AllNamespaces {
		return []string{metav1.NamespaceAll}
	}
	if len(s.Namespaces) == 0 {
		return []string{"default"}
	}
	return s.Namespaces
}

// MatchesPod applies the name and exclusion filters.
func (s Selector) MatchesPod(pod *corev1.Pod) bool {
	if pod == nil {
		return false
	}
	if s.PodRegex != nil && !s.PodRegex.MatchString(pod.Name) {
		return false
	}
	for _, re := range s.ExcludePodRegex {
		if re.MatchString(pod.Name) {
			return false
		}
	}
	return true
}

// Targets expands a matched pod into the container targets to stream.
func (s Selector) Targets(pod *corev1.Pod) []stream.Target {
	containers := s.selectContainers(pod)
	targets := make([]stream.Target, 0, len(containers))
	for _, name := range containers {
		targets = append(targets, stream.Target{
			Namespace: pod.Namespace,
			Pod:       pod.Name,
			Container: name,
		})
	}
	return targets
}

func (s Selector) selectContainers(pod *corev1.Pod) []string {
	if len(s.ContainerRegex) == 0 && !s.AllContainers {
		if len(pod.Spec.Containers) == 0 {
			return nil
		}
		return []string{pod.Spec.Containers[0].Name}
	}
	all := make([]corev1.Container, 0, len(pod.Spec.InitContainers)+len(pod.Spec.Containers))
	all = append(all, pod.Spec.InitContainers...)
	all = append(all, pod.Spec.Containers...)
	var names []string
	for _, container := range all {
		if s.containerIncluded(container.Name) {
			names = append(names, container.Name)
		}
	}
	return names
}

func (s Selector) containerIncluded(name string) bool {
	if len(s.ContainerRegex) == 0 {
		return true
	}
	for _, re := range s.ContainerRegex {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
