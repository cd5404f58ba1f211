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

package policystore

import (
	"encoding/json"
	"testing"

	"github.com/go-test/deep"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.uber.org/zap"
)

func TestKeyLayout(t *testing.T) {
	const prefix = "/network-policy/v1"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "tier metadata",
			got:  tierMetadataKey(prefix, "k8s-network-policy"),
			want: "/network-policy/v1/tiers/k8s-network-policy/metadata",
		},
		{
			name: "policy",
			got:  policyKey(prefix, "k8s-network-policy", "default.allow-web"),
			want: "/network-policy/v1/tiers/k8s-network-policy/policies/default.allow-web",
		},
		{
			name: "profile",
			got:  profileKey(prefix, "ns.default"),
			want: "/network-policy/v1/profiles/ns.default",
		},
		{
			name: "workload",
			got:  workloadKey(prefix, "default/web-0"),
			want: "/network-policy/v1/workloads/default/web-0",
		},
		{
			name: "workloads prefix",
			got:  workloadsPrefix(prefix),
			want: "/network-policy/v1/workloads/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDecodeWorkloadEndpoints(t *testing.T) {
	const prefix = "/network-policy/v1/workloads/"

	kvs := []*mvccpb.KeyValue{
		{
			Key:   []byte(prefix + "default/web-0"),
			Value: []byte(`{"workload_id":"default/web-0","labels":{"app":"web"}}`),
		},
		{
			Key:   []byte(prefix + "default/broken"),
			Value: []byte(`{{{`),
		},
		{
			Key:   []byte(prefix + "default/unlabelled"),
			Value: []byte(`{"ipv4_nets":["10.0.0.4/32"]}`),
		},
	}

	endpoints := decodeWorkloadEndpoints(prefix, kvs, zap.NewNop().Sugar())

	want := []WorkloadEndpoint{
		{WorkloadID: "default/web-0", Labels: map[string]string{"app": "web"}},
		{WorkloadID: "default/unlabelled"},
	}
	if diff := deep.Equal(endpoints, want); diff != nil {
		t.Errorf("decoded endpoints diff: %v", diff)
	}
}

func TestMergeEndpointLabelsKeepsForeignFields(t *testing.T) {
	current := []byte(`{"workload_id":"default/web-0","labels":{"app":"old"},"ipv4_nets":["10.0.0.4/32"],"mac":"ee:ee:ee:ee:ee:ee"}`)

	merged, err := mergeEndpointLabels(current, "default/web-0", map[string]string{"app": "new"})
	if err != nil {
		t.Fatal(err)
	}

	decoded := map[string]interface{}{}
	if err := json.Unmarshal(merged, &decoded); err != nil {
		t.Fatal(err)
	}

	if got := decoded["workload_id"]; got != "default/web-0" {
		t.Errorf("workload_id = %v", got)
	}
	if got := decoded["mac"]; got != "ee:ee:ee:ee:ee:ee" {
		t.Errorf("the CNI plugin's mac field was lost, got %v", got)
	}
	labels, ok := decoded["labels"].(map[string]interface{})
	if !ok || labels["app"] != "new" {
		t.Errorf("labels = %v, want app=new", decoded["labels"])
	}
}

func TestMergeEndpointLabelsStartsOverOnBrokenRecords(t *testing.T) {
	merged, err := mergeEndpointLabels([]byte(`{{{`), "default/web-0", map[string]string{"app": "web"})
	if err != nil {
		t.Fatal(err)
	}

	want := WorkloadEndpoint{}
	if err := json.Unmarshal(merged, &want); err != nil {
		t.Fatal(err)
	}
	if want.WorkloadID != "default/web-0" || want.Labels["app"] != "web" {
		t.Errorf("merged endpoint = %+v", want)
	}
}

func TestNewEtcdStoreRequiresEndpoints(t *testing.T) {
	if _, err := NewEtcdStore(Config{}, zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected an error without endpoints")
	}
}
