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

// Package handlers translates watched Kubernetes objects into policy
// store records: network policies into tiered policies, namespaces
// into profiles and pod labels into workload endpoint labels.
package handlers

import (
	"fmt"
	"sort"
	"strings"

	"k8c.io/network-policy-agent/pkg/kubeapi"
)

const (
	// NamespaceLabel is stamped into every workload's label set so
	// selectors can scope to a namespace.
	NamespaceLabel = "policy.k8c.io/namespace"

	// IsolationAnnotation on a namespace switches its default profile
	// from allowing to denying inbound traffic.
	IsolationAnnotation = "policy.k8c.io/isolation"

	// IsolationDefaultDeny is the only recognized isolation value.
	IsolationDefaultDeny = "DefaultDeny"
)

// policyName is the store-side name of a translated network policy.
func policyName(key kubeapi.Key) string {
	return key.Namespace + "." + key.Name
}

// profileName is the store-side name of a namespace profile.
func profileName(namespace string) string {
	return "ns." + namespace
}

// workloadSelector builds the conjunctive label selector matching the
// given labels within one namespace. Terms are emitted in a stable
// order.
func workloadSelector(namespace string, matchLabels map[string]string) string {
	terms := make([]string, 0, len(matchLabels)+1)
	terms = append(terms, fmt.Sprintf("%s == %q", NamespaceLabel, namespace))

	keys := make([]string, 0, len(matchLabels))
	for key := range matchLabels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		terms = append(terms, fmt.Sprintf("%s == %q", key, matchLabels[key]))
	}

	return strings.Join(terms, " && ")
}
