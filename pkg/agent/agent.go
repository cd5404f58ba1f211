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

// Package agent contains the dispatching core: one reflector per
// watched resource type feeds a shared queue, a single dispatcher
// drains it and invokes the registered reconciliation handlers.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/metrics"
	"k8c.io/network-policy-agent/pkg/policystore"
	"k8c.io/network-policy-agent/pkg/queue"
	"k8c.io/network-policy-agent/pkg/reflector"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Handler reconciles one observed object change against the policy
// store. Handlers run on the dispatcher goroutine, one at a time, and
// are the only code allowed to touch the cache.
type Handler func(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, cache *Cache) error

type handlerKey struct {
	resource kubeapi.ResourceType
	event    kubeapi.EventType
}

// Config wires an Agent.
type Config struct {
	Client reflector.Client
	Store  policystore.Store
	// Queue to dispatch from. A fresh default-sized queue when nil.
	Queue          *queue.EventQueue
	EnqueueTimeout time.Duration
	// Tier the translated policies are written to.
	Tier      string
	TierOrder int
	// Resources to watch. All supported resource types when nil.
	Resources []kubeapi.ResourceType
}

// Agent owns the reflectors, the queue, the dispatcher and the cache.
type Agent struct {
	log            *zap.SugaredLogger
	client         reflector.Client
	store          policystore.Store
	queue          *queue.EventQueue
	enqueueTimeout time.Duration
	tier           string
	tierOrder      int
	resources      []kubeapi.ResourceType
	handlers       map[handlerKey]Handler
	cache          *Cache
}

// New creates an agent. Handlers are registered separately before Run.
func New(cfg Config, log *zap.SugaredLogger) *Agent {
	if cfg.Queue == nil {
		cfg.Queue = queue.New(queue.DefaultCapacity)
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = queue.DefaultEnqueueTimeout
	}
	if cfg.Tier == "" {
		cfg.Tier = policystore.DefaultTier
	}
	if cfg.TierOrder == 0 {
		cfg.TierOrder = policystore.DefaultTierOrder
	}
	if cfg.Resources == nil {
		cfg.Resources = kubeapi.WatchedResources
	}

	return &Agent{
		log:            log,
		client:         cfg.Client,
		store:          cfg.Store,
		queue:          cfg.Queue,
		enqueueTimeout: cfg.EnqueueTimeout,
		tier:           cfg.Tier,
		tierOrder:      cfg.TierOrder,
		resources:      cfg.Resources,
		handlers:       map[handlerKey]Handler{},
		cache:          NewCache(),
	}
}

// Queue exposes the dispatch queue, e.g. for the depth gauge.
func (a *Agent) Queue() *queue.EventQueue {
	return a.queue
}

// Register installs the handler for a (resource type, event) pair.
// MODIFIED events resolve to the ADDED handler, registering one is a
// configuration mistake.
func (a *Agent) Register(resource kubeapi.ResourceType, event kubeapi.EventType, handler Handler) {
	a.log.Debugw("Registered a handler", "resource", resource, "event", event)
	a.handlers[handlerKey{resource: resource, event: event}] = handler
}

// Run bootstraps the tier and the cache, starts the reflectors and
// dispatches updates until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.store.EnsureTier(ctx, a.tier, a.tierOrder); err != nil {
		return fmt.Errorf("failed to ensure tier %q: %w", a.tier, err)
	}

	if err := a.seedCache(ctx); err != nil {
		return fmt.Errorf("failed to seed the label cache: %w", err)
	}

	for _, resource := range a.resources {
		r := reflector.New(a.client, resource, a.queue, a.enqueueTimeout, a.log)
		go r.Run(ctx)
	}

	a.dispatch(ctx)

	return nil
}

// seedCache primes the label cache with the state the previous agent
// run left in the store.
func (a *Agent) seedCache(ctx context.Context) error {
	endpoints, err := a.store.ListWorkloadEndpoints(ctx)
	if err != nil {
		return err
	}

	for _, endpoint := range endpoints {
		a.cache.SetLabels(endpoint.WorkloadID, endpoint.Labels)
	}

	a.log.Infow("Seeded the label cache", "workloads", a.cache.Len())

	return nil
}

func (a *Agent) dispatch(ctx context.Context) {
	a.log.Info("Dispatching updates")

	for {
		update, err := a.queue.Dequeue(ctx)
		if err != nil {
			a.log.Infow("Stopped dispatching", zap.Error(err))
			return
		}

		a.process(ctx, update)
	}
}

// process handles a single update. Nothing a handler does may take the
// dispatcher down, failed updates are logged and dropped.
func (a *Agent) process(ctx context.Context, update kubeapi.Update) {
	key, err := kubeapi.KeyOf(update.Object)
	if err != nil {
		a.log.Errorw("Dropping a malformed update", "resource", update.Resource, "event", update.Event, zap.Error(err))
		metrics.UpdatesDroppedTotal.WithLabelValues("malformed").Inc()
		return
	}

	handler, ok := a.handler(update.Resource, update.Event)
	if !ok {
		a.log.Warnw("No handler registered", "resource", update.Resource, "event", update.Event, "key", key)
		metrics.UpdatesDroppedTotal.WithLabelValues("no_handler").Inc()
		return
	}

	metrics.EventsProcessedTotal.WithLabelValues(string(update.Resource), string(update.Event)).Inc()

	if err := handler(ctx, key, update.Object, a.cache); err != nil {
		a.log.Errorw("Handler failed", "resource", update.Resource, "event", update.Event, "key", key, "object", update.Object.Object, zap.Error(err))
		metrics.HandlerErrorsTotal.WithLabelValues(string(update.Resource), string(update.Event)).Inc()
	}
}

func (a *Agent) handler(resource kubeapi.ResourceType, event kubeapi.EventType) (Handler, bool) {
	// A modified object is handled exactly like a newly added one.
	if event == kubeapi.EventModified {
		event = kubeapi.EventAdded
	}

	handler, ok := a.handlers[handlerKey{resource: resource, event: event}]

	return handler, ok
}
