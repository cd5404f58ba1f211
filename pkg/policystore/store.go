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
	"context"
	"errors"
	"path"
)

// ErrWorkloadNotFound is returned when labels are set on a workload
// endpoint the CNI plugin has not created yet.
var ErrWorkloadNotFound = errors.New("workload endpoint not found")

// Store is the policy store the reconciliation handlers write to.
type Store interface {
	// EnsureTier creates or updates the tier metadata. Idempotent.
	EnsureTier(ctx context.Context, name string, order int) error
	// ListWorkloadEndpoints returns all known workload endpoints.
	ListWorkloadEndpoints(ctx context.Context) ([]WorkloadEndpoint, error)
	// SetWorkloadLabels replaces the label set of an existing endpoint.
	SetWorkloadLabels(ctx context.Context, workloadID string, labels map[string]string) error
	// ApplyPolicy creates or replaces a policy in the given tier.
	ApplyPolicy(ctx context.Context, tier, name string, policy *Policy) error
	// DeletePolicy removes a policy. Deleting an absent policy is a no-op.
	DeletePolicy(ctx context.Context, tier, name string) error
	// ApplyProfile creates or replaces a profile.
	ApplyProfile(ctx context.Context, name string, profile *Profile) error
	// DeleteProfile removes a profile. Deleting an absent profile is a no-op.
	DeleteProfile(ctx context.Context, name string) error
	Close() error
}

func tierMetadataKey(prefix, tier string) string {
	return path.Join(prefix, "tiers", tier, "metadata")
}

func policyKey(prefix, tier, name string) string {
	return path.Join(prefix, "tiers", tier, "policies", name)
}

func profileKey(prefix, name string) string {
	return path.Join(prefix, "profiles", name)
}

func workloadKey(prefix, workloadID string) string {
	return path.Join(prefix, "workloads", workloadID)
}

func workloadsPrefix(prefix string) string {
	return path.Join(prefix, "workloads") + "/"
}
