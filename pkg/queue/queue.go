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

package queue

import (
	"context"
	"errors"
	"time"

	"k8c.io/network-policy-agent/pkg/kubeapi"
)

const (
	DefaultCapacity       = 256
	DefaultEnqueueTimeout = 10 * time.Second
)

// ErrFull is returned when an update could not be enqueued within the
// enqueue timeout. Producers treat this as a lost event and resync.
var ErrFull = errors.New("event queue is full")

// EventQueue is the bounded buffer between the reflectors and the
// dispatcher. A full queue pushes back on the producers instead of
// dropping updates or growing without limit.
type EventQueue struct {
	items chan kubeapi.Update
}

// New creates a queue holding up to capacity updates.
func New(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &EventQueue{items: make(chan kubeapi.Update, capacity)}
}

// Enqueue adds the update to the queue, waiting up to timeout for free
// space. A queue still full after the timeout is reported as ErrFull,
// never dropped silently.
func (q *EventQueue) Enqueue(ctx context.Context, update kubeapi.Update, timeout time.Duration) error {
	select {
	case q.items <- update:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- update:
		return nil
	case <-timer.C:
		return ErrFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an update is available or ctx is done.
func (q *EventQueue) Dequeue(ctx context.Context) (kubeapi.Update, error) {
	select {
	case update := <-q.items:
		return update, nil
	case <-ctx.Done():
		return kubeapi.Update{}, ctx.Err()
	}
}

// Len is the number of updates currently waiting.
func (q *EventQueue) Len() int {
	return len(q.items)
}
