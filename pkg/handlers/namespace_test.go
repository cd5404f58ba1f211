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
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/agent"
	"k8c.io/network-policy-agent/pkg/kubeapi"
	"k8c.io/network-policy-agent/pkg/policystore"
)

func TestNamespaceUpsertWritesTheDefaultProfile(t *testing.T) {
	testCases := []struct {
		name        string
		annotations map[string]interface{}
		wantInbound policystore.Rule
	}{
		{
			name:        "open namespaces allow inbound traffic",
			annotations: nil,
			wantInbound: policystore.Rule{Action: policystore.ActionAllow},
		},
		{
			name:        "isolated namespaces deny inbound traffic",
			annotations: map[string]interface{}{IsolationAnnotation: IsolationDefaultDeny},
			wantInbound: policystore.Rule{Action: policystore.ActionDeny},
		},
		{
			name:        "unknown isolation values keep the namespace open",
			annotations: map[string]interface{}{IsolationAnnotation: "Strict"},
			wantInbound: policystore.Rule{Action: policystore.ActionAllow},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			store := newRecordingStore()
			handler := NewNamespaceHandler(store, zap.NewNop().Sugar())

			key := kubeapi.Key{Name: "prod"}
			require.NoError(t, handler.OnUpsert(context.Background(), key, namespaceObj("prod", testCase.annotations), agent.NewCache()))

			profile := store.profiles["ns.prod"]
			require.NotNil(t, profile, "expected a profile for the namespace")

			expected := &policystore.Profile{
				Labels:        map[string]string{NamespaceLabel: "prod"},
				InboundRules:  []policystore.Rule{testCase.wantInbound},
				OutboundRules: []policystore.Rule{{Action: policystore.ActionAllow}},
			}

			if diff := deep.Equal(profile, expected); diff != nil {
				t.Errorf("unexpected profile: %v", diff)
			}
		})
	}
}

func TestNamespaceDeleteRemovesTheProfile(t *testing.T) {
	store := newRecordingStore()
	store.profiles["ns.prod"] = &policystore.Profile{}

	handler := NewNamespaceHandler(store, zap.NewNop().Sugar())
	key := kubeapi.Key{Name: "prod"}

	require.NoError(t, handler.OnDelete(context.Background(), key, namespaceObj("prod", nil), agent.NewCache()))
	assert.Empty(t, store.profiles)
}
