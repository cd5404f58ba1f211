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

package handlers

import (
	"context"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/agent"
	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/policystore"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// NamespaceHandler keeps one profile per namespace, the default for
// workloads no policy selects.
type NamespaceHandler struct {
	log   *zap.SugaredLogger
	store policystore.Store
}

func NewNamespaceHandler(store policystore.Store, log *zap.SugaredLogger) *NamespaceHandler {
	return &NamespaceHandler{
		log:   log,
		store: store,
	}
}

func (h *NamespaceHandler) OnUpsert(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, _ *agent.Cache) error {
	isolated := obj.GetAnnotations()[IsolationAnnotation] == IsolationDefaultDeny

	inbound := policystore.Rule{Action: policystore.ActionAllow}
	if isolated {
		inbound = policystore.Rule{Action: policystore.ActionDeny}
	}

	profile := &policystore.Profile{
		Labels:        map[string]string{NamespaceLabel: key.Name},
		InboundRules:  []policystore.Rule{inbound},
		OutboundRules: []policystore.Rule{{Action: policystore.ActionAllow}},
	}

	h.log.Infow("Applying namespace profile", "profile", profileName(key.Name), "isolated", isolated)

	return h.store.ApplyProfile(ctx, profileName(key.Name), profile)
}

func (h *NamespaceHandler) OnDelete(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, _ *agent.Cache) error {
	h.log.Infow("Deleting namespace profile", "profile", profileName(key.Name))

	return h.store.DeleteProfile(ctx, profileName(key.Name))
}
