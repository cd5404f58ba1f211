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

// Package policystore persists the translated policy state for the
// enforcement layer. The agent is the only writer for tiers, policies
// and profiles; workload endpoints are created by the CNI plugin and
// only get their labels updated here.
package policystore

const (
	// DefaultTier is the tier all translated network policies live in.
	DefaultTier = "k8s-network-policy"

	// DefaultTierOrder places the tier relative to manually managed ones.
	DefaultTierOrder = 50

	// DefaultPrefix is the root of the agent's etcd keyspace.
	DefaultPrefix = "/network-policy/v1"
)

// Rule actions.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Tier metadata. Tiers group policies and order them relative to other
// tiers, lower order wins.
type Tier struct {
	Order int `json:"order"`
}

// Rule is a single match-and-act entry in a policy or profile.
type Rule struct {
	Action      string  `json:"action"`
	Protocol    string  `json:"protocol,omitempty"`
	SrcSelector string  `json:"src_selector,omitempty"`
	DstSelector string  `json:"dst_selector,omitempty"`
	DstPorts    []int32 `json:"dst_ports,omitempty"`
}

// Policy selects workloads by label and applies ordered rules to them.
type Policy struct {
	Order         int    `json:"order"`
	Selector      string `json:"selector"`
	InboundRules  []Rule `json:"inbound_rules"`
	OutboundRules []Rule `json:"outbound_rules"`
}

// Profile is the per-namespace default applied to workloads that no
// policy selects.
type Profile struct {
	Labels        map[string]string `json:"labels,omitempty"`
	InboundRules  []Rule            `json:"inbound_rules"`
	OutboundRules []Rule            `json:"outbound_rules"`
}

// WorkloadEndpoint is the slice of the CNI plugin's endpoint record the
// agent cares about.
type WorkloadEndpoint struct {
	WorkloadID string            `json:"workload_id"`
	Labels     map[string]string `json:"labels,omitempty"`
}
