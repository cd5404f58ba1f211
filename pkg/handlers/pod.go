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
	"fmt"
	"maps"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/agent"
	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/policystore"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// PodHandler mirrors pod labels onto the matching workload endpoint so
// that policy selectors can match them. The endpoint record itself is
// created and removed by the CNI plugin; the handler only maintains the
// label set.
type PodHandler struct {
	log   *zap.SugaredLogger
	store policystore.Store
}

func NewPodHandler(store policystore.Store, log *zap.SugaredLogger) *PodHandler {
	return &PodHandler{
		log:   log,
		store: store,
	}
}

func (h *PodHandler) OnUpsert(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, cache *agent.Cache) error {
	if hostNetwork, _, _ := unstructured.NestedBool(obj.Object, "spec", "hostNetwork"); hostNetwork {
		h.log.Debugw("Ignoring a host network pod", "pod", key)

		return nil
	}

	workloadID := key.String()
	desired := desiredLabels(key.Namespace, obj.GetLabels())

	if maps.Equal(cache.Labels(workloadID), desired) {
		h.log.Debugw("Workload labels are already up to date", "workload", workloadID)

		return nil
	}

	if err := h.store.SetWorkloadLabels(ctx, workloadID, desired); err != nil {
		return fmt.Errorf("failed to update labels of workload %q: %w", workloadID, err)
	}

	cache.SetLabels(workloadID, desired)
	h.log.Infow("Updated workload labels", "workload", workloadID, "labels", desired)

	return nil
}

// OnDelete only forgets the cached labels. The endpoint record is
// removed by the CNI plugin when the pod's network is torn down.
func (h *PodHandler) OnDelete(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, cache *agent.Cache) error {
	cache.Delete(key.String())

	return nil
}

// desiredLabels copies the pod labels and stamps the namespace label on
// top so that namespace profiles select their pods.
func desiredLabels(namespace string, podLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(podLabels)+1)
	for k, v := range podLabels {
		labels[k] = v
	}
	labels[NamespaceLabel] = namespace

	return labels
}
