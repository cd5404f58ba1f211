/*
Copyright 2025 The Kubermatic Kubernetes Platform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reflector keeps one resource collection flowing into the
// event queue. It lists the current state, tails a watch stream from
// the list's resourceVersion and starts over from a fresh list
// whenever anything goes wrong.
package reflector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/metrics"
	"k8c.io/network-policy-agent/pkg/queue"

	"k8s.io/utils/clock"
)

const (
	initialRestartDelay = time.Second
	maxRestartDelay     = 30 * time.Second
)

// Client is the part of the API client the reflector consumes.
type Client interface {
	List(ctx context.Context, resource kubeapi.ResourceType) (*kubeapi.ResourceList, error)
	OpenWatch(ctx context.Context, resource kubeapi.ResourceType, resourceVersion string) (*kubeapi.WatchStream, error)
}

// Reflector drives the resync-and-watch loop for a single resource type.
type Reflector struct {
	log            *zap.SugaredLogger
	client         Client
	resource       kubeapi.ResourceType
	queue          *queue.EventQueue
	enqueueTimeout time.Duration
	clock          clock.Clock
}

// New creates a reflector feeding updates for the given resource type
// into the queue.
func New(client Client, resource kubeapi.ResourceType, q *queue.EventQueue, enqueueTimeout time.Duration, log *zap.SugaredLogger) *Reflector {
	if enqueueTimeout <= 0 {
		enqueueTimeout = queue.DefaultEnqueueTimeout
	}

	return &Reflector{
		log:            log.With("resource", resource),
		client:         client,
		resource:       resource,
		queue:          q,
		enqueueTimeout: enqueueTimeout,
		clock:          clock.RealClock{},
	}
}

// Run loops until ctx is cancelled. Every failure, whether from the
// API, the transport or a full queue, is logged and answered with a
// delayed restart from a fresh resync, so the loop never silently
// stops. Restart delays back off exponentially and reset once a watch
// stream was successfully opened again.
func (r *Reflector) Run(ctx context.Context) {
	delay := initialRestartDelay

	for {
		streamed, err := r.listAndWatch(ctx)
		if ctx.Err() != nil {
			return
		}

		if streamed {
			delay = initialRestartDelay
		}

		r.log.Warnw("Restarting watch", "class", classify(err), "delay", delay, zap.Error(err))
		metrics.WatchRestartsTotal.WithLabelValues(string(r.resource)).Inc()
		if errors.Is(err, queue.ErrFull) {
			metrics.QueueFullTotal.WithLabelValues(string(r.resource)).Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(delay):
		}

		delay = nextDelay(delay)
	}
}

// listAndWatch runs one full cycle. streamed reports whether a watch
// stream was opened, which is what resets the restart backoff.
func (r *Reflector) listAndWatch(ctx context.Context) (streamed bool, err error) {
	cursor, err := r.resync(ctx)
	if err != nil {
		return false, err
	}

	stream, err := r.client.OpenWatch(ctx, r.resource, cursor)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	r.log.Infow("Watching for changes", "resourceVersion", cursor)

	return true, r.consume(ctx, stream, cursor)
}

// resync enqueues the full current state as ADDED updates, in list
// order, and returns the cursor to start the watch from.
func (r *Reflector) resync(ctx context.Context) (string, error) {
	list, err := r.client.List(ctx, r.resource)
	if err != nil {
		return "", err
	}

	for i := range list.Items {
		update := kubeapi.Update{
			Event:    kubeapi.EventAdded,
			Resource: r.resource,
			Object:   &list.Items[i],
		}
		if err := r.queue.Enqueue(ctx, update, r.enqueueTimeout); err != nil {
			return "", fmt.Errorf("failed to enqueue the state snapshot: %w", err)
		}
	}

	r.log.Infow("Synced the current state", "items", len(list.Items), "resourceVersion", list.ResourceVersion)

	return list.ResourceVersion, nil
}

func (r *Reflector) consume(ctx context.Context, stream *kubeapi.WatchStream, cursor string) error {
	for {
		update, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("watch stream ended at resourceVersion %q", cursor)
			}
			return err
		}

		if err := r.queue.Enqueue(ctx, *update, r.enqueueTimeout); err != nil {
			return fmt.Errorf("failed to enqueue a %s update: %w", update.Event, err)
		}

		if next := update.Object.GetResourceVersion(); next != "" && next != cursor {
			r.log.Debugw("Advanced the cursor", "from", cursor, "to", next)
			cursor = next
		}
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxRestartDelay {
		next = maxRestartDelay
	}

	return next
}

func classify(err error) string {
	apiErr := &kubeapi.APIError{}

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, queue.ErrFull):
		return "queue_full"
	case errors.As(err, &apiErr):
		return "api"
	default:
		return "transport"
	}
}
