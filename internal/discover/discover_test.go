// discover_test.go covers selector semantics and one-shot listing against a
// fake clientset.
package discover

import (
	"context"
	"regexp"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func pod(namespace, name string, phase corev1.PodPhase, containers ...string) *corev1.Pod {
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Status:     corev1.PodStatus{Phase: phase},
	}
	for _, c := range containers {
		p.Spec.Containers = append(p.Spec.Containers, corev1.Container{Name: c})
	}
	return p
}

func TestSelectorFirstContainerDefault(t *testing.T) {
	sel := Selector{PodRegex: regexp.MustCompile(".*")}
	targets := sel.Targets(pod("default", "web-0", corev1.PodRunning, "app", "sidecar"))
	if len(targets) != 1 || targets[0].Container != "app" {
		t.Fatalf("default should stream only the first container, got %v", targets)
	}
}

func TestSelectorAllContainers(t *testing.T) {
	sel := Selector{PodRegex: regexp.MustCompile(".*"), AllContainers: true}
	targets := sel.Targets(pod("default", "web-0", corev1.PodRunning, "app", "sidecar"))
	if len(targets) != 2 {
		t.Fatalf("expected both containers, got %v", targets)
	}
}

func TestSelectorContainerRegex(t *testing.T) {
	sel := Selector{
		PodRegex:       regexp.MustCompile(".*"),
		ContainerRegex: []*regexp.Regexp{regexp.MustCompile("^side")},
	}
	targets := sel.Targets(pod("default", "web-0", corev1.PodRunning, "app", "sidecar"))
	if len(targets) != 1 || targets[0].Container != "sidecar" {
		t.Fatalf("container regex should select the sidecar, got %v", targets)
	}
}

func TestSelectorPodExclusion(t *testing.T) {
	sel := Selector{
		PodRegex:        regexp.MustCompile("^web"),
		ExcludePodRegex: []*regexp.Regexp{regexp.MustCompile("canary")},
	}
	if sel.MatchesPod(pod("default", "web-canary-0", corev1.PodRunning, "app")) {
		t.Fatalf("excluded pod must not match")
	}
	if !sel.MatchesPod(pod("default", "web-0", corev1.PodRunning, "app")) {
		t.Fatalf("plain pod should match")
	}
	if sel.MatchesPod(pod("default", "db-0", corev1.PodRunning, "app")) {
		t.Fatalf("non-matching name must not match")
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("default", "web-1", corev1.PodRunning, "app"),
		pod("default", "web-0", corev1.PodRunning, "app"),
		pod("default", "db-0", corev1.PodRunning, "postgres"),
		pod("default", "web-pending", corev1.PodPending, "app"),
		pod("other", "web-9", corev1.PodRunning, "app"),
	)
	sel := Selector{
		PodRegex:   regexp.MustCompile("^web"),
		Namespaces: []string{"default"},
	}
	targets, err := List(context.Background(), client, sel)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected two running web pods in default, got %v", targets)
	}
	if targets[0].Pod != "web-0" || targets[1].Pod != "web-1" {
		t.Fatalf("targets should be sorted, got %v", targets)
	}
}

func TestListAllNamespaces(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("default", "web-0", corev1.PodRunning, "app"),
		pod("other", "web-1", corev1.PodRunning, "app"),
	)
	sel := Selector{PodRegex: regexp.MustCompile("^web"), AllNamespaces: true}
	targets, err := List(context.Background(), client, sel)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected pods from every namespace, got %v", targets)
	}
}
