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
	"sort"
	"strings"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/agent"
	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/policystore"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// NetworkPolicyHandler translates NetworkPolicy objects into policies
// in the agent's tier.
type NetworkPolicyHandler struct {
	log   *zap.SugaredLogger
	store policystore.Store
	tier  string
}

func NewNetworkPolicyHandler(store policystore.Store, tier string, log *zap.SugaredLogger) *NetworkPolicyHandler {
	if tier == "" {
		tier = policystore.DefaultTier
	}

	return &NetworkPolicyHandler{
		log:   log,
		store: store,
		tier:  tier,
	}
}

func (h *NetworkPolicyHandler) OnUpsert(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, _ *agent.Cache) error {
	matchLabels, _, err := unstructured.NestedStringMap(obj.Object, "spec", "podSelector", "matchLabels")
	if err != nil {
		return fmt.Errorf("invalid pod selector: %w", err)
	}

	policy := &policystore.Policy{
		Order:         policystore.DefaultTierOrder,
		Selector:      workloadSelector(key.Namespace, matchLabels),
		InboundRules:  inboundRules(key.Namespace, obj),
		OutboundRules: []policystore.Rule{{Action: policystore.ActionAllow}},
	}

	h.log.Infow("Applying network policy", "policy", policyName(key), "selector", policy.Selector)

	return h.store.ApplyPolicy(ctx, h.tier, policyName(key), policy)
}

func (h *NetworkPolicyHandler) OnDelete(ctx context.Context, key kubeapi.Key, obj *unstructured.Unstructured, _ *agent.Cache) error {
	h.log.Infow("Deleting network policy", "policy", policyName(key))

	return h.store.DeletePolicy(ctx, h.tier, policyName(key))
}

// inboundRules translates spec.ingress into allow rules. Peers without
// a pod selector and named ports are not translatable and are skipped.
func inboundRules(namespace string, obj *unstructured.Unstructured) []policystore.Rule {
	rules := []policystore.Rule{}

	ingress, _, _ := unstructured.NestedSlice(obj.Object, "spec", "ingress")
	for _, entry := range ingress {
		entryMap, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		sources := sourceSelectors(namespace, entryMap)
		byProtocol := portsByProtocol(entryMap)

		if len(byProtocol) == 0 {
			if len(sources) == 0 {
				rules = append(rules, policystore.Rule{Action: policystore.ActionAllow})
				continue
			}
			for _, source := range sources {
				rules = append(rules, policystore.Rule{Action: policystore.ActionAllow, SrcSelector: source})
			}
			continue
		}

		protocols := make([]string, 0, len(byProtocol))
		for protocol := range byProtocol {
			protocols = append(protocols, protocol)
		}
		sort.Strings(protocols)

		for _, protocol := range protocols {
			if len(sources) == 0 {
				rules = append(rules, policystore.Rule{
					Action:   policystore.ActionAllow,
					Protocol: protocol,
					DstPorts: byProtocol[protocol],
				})
				continue
			}
			for _, source := range sources {
				rules = append(rules, policystore.Rule{
					Action:      policystore.ActionAllow,
					Protocol:    protocol,
					SrcSelector: source,
					DstPorts:    byProtocol[protocol],
				})
			}
		}
	}

	return rules
}

func sourceSelectors(namespace string, entry map[string]interface{}) []string {
	from, _, _ := unstructured.NestedSlice(entry, "from")
	selectors := make([]string, 0, len(from))

	for _, peer := range from {
		peerMap, ok := peer.(map[string]interface{})
		if !ok {
			continue
		}
		if _, found, _ := unstructured.NestedMap(peerMap, "podSelector"); !found {
			continue
		}

		matchLabels, _, _ := unstructured.NestedStringMap(peerMap, "podSelector", "matchLabels")
		selectors = append(selectors, workloadSelector(namespace, matchLabels))
	}

	return selectors
}

func portsByProtocol(entry map[string]interface{}) map[string][]int32 {
	ports, _, _ := unstructured.NestedSlice(entry, "ports")
	byProtocol := map[string][]int32{}

	for _, port := range ports {
		portMap, ok := port.(map[string]interface{})
		if !ok {
			continue
		}

		number, ok := portNumber(portMap["port"])
		if !ok {
			continue
		}

		protocol := "tcp"
		if value, ok := portMap["protocol"].(string); ok && value != "" {
			protocol = strings.ToLower(value)
		}

		byProtocol[protocol] = append(byProtocol[protocol], number)
	}

	return byProtocol
}

func portNumber(value interface{}) (int32, bool) {
	switch number := value.(type) {
	case int64:
		return int32(number), true
	case float64:
		return int32(number), true
	default:
		return 0, false
	}
}
