// File: internal/stream/streamer.go
// Brief: Log source collaborator interface and the Kubernetes implementation.

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
)

// Options controls how each target's log stream is opened.
type Options struct {
	Follow     bool
	TailLines  int64
	Since      time.Duration
	Timestamps bool
}

// LogStreamer is the cluster-side collaborator: it opens a raw line stream
// for one target and classifies failures so the multiplexer can decide
// between reconnecting and abandoning the target.
type LogStreamer interface {
	Stream(ctx context.Context, target Target, opts Options) (io.ReadCloser, error)
	// Permanent reports whether the error means the target can never be
	// streamed again (deleted, forbidden), as opposed to a transient blip
	// worth retrying.
	Permanent(err error) bool
}

// KubeStreamer streams container logs through the Kubernetes API.
type KubeStreamer struct {
	client kubernetes.Interface
}

// NewKubeStreamer wraps a clientset as a LogStreamer.
func NewKubeStreamer(client kubernetes.Interface) *KubeStreamer {
	return &KubeStreamer{client: client}
}

func (s *KubeStreamer) Stream(ctx context.Context, target Target, opts Options) (io.ReadCloser, error) {
	logOpts := &corev1.PodLogOptions{
		Container:  target.Container,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	if opts.Since > 0 {
		seconds := int64(opts.Since.Seconds())
		logOpts.SinceSeconds = &seconds
	}
	if opts.TailLines >= 0 {
		tail := opts.TailLines
		logOpts.TailLines = &tail
	}
	return s.client.CoreV1().Pods(target.Namespace).GetLogs(target.Pod, logOpts).Stream(ctx)
}

func (s *KubeStreamer) Permanent(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsNotFound(err) || apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) || apierrors.IsGone(err) {
		return true
	}
	return false
}

// retryableStartupErr reports whether the error is the apiserver telling us
// the container has not produced logs yet. The status payload is preferred;
// client-go sometimes wraps errors so the message is matched as a fallback.
func retryableStartupErr(err error) bool {
	if err == nil {
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		apiStatus, ok := e.(apierrors.APIStatus)
		if !ok {
			continue
		}
		if startupMessage(apiStatus.Status().Message) {
			return true
		}
	}
	return startupMessage(err.Error())
}

func startupMessage(msg string) bool {
	msg = strings.ToLower(msg)
	if strings.Contains(msg, "is waiting to start") {
		return true
	}
	return strings.Contains(msg, "containercreating") || strings.Contains(msg, "podinitializing")
}
