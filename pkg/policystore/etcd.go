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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Config configures the etcd-backed store.
type Config struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration

	// Client certificate and CA, all three empty for plaintext etcd.
	CertFile string
	KeyFile  string
	CAFile   string
}

// EtcdStore implements Store on an etcd keyspace.
type EtcdStore struct {
	log    *zap.SugaredLogger
	client *clientv3.Client
	prefix string
}

var _ Store = &EtcdStore{}

// NewEtcdStore connects to etcd and returns the store rooted at the
// configured prefix.
func NewEtcdStore(cfg Config, log *zap.SugaredLogger) (*EtcdStore, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no etcd endpoints configured")
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	prefix := strings.TrimSuffix(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	clientConfig := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" || cfg.CAFile != "" {
		tlsInfo := transport.TLSInfo{
			CertFile:      cfg.CertFile,
			KeyFile:       cfg.KeyFile,
			TrustedCAFile: cfg.CAFile,
		}
		tlsConfig, err := tlsInfo.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build the etcd TLS configuration: %w", err)
		}
		clientConfig.TLS = tlsConfig
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to establish client connection: %w", err)
	}

	return &EtcdStore{
		log:    log,
		client: client,
		prefix: prefix,
	}, nil
}

func (s *EtcdStore) EnsureTier(ctx context.Context, name string, order int) error {
	value, err := json.Marshal(Tier{Order: order})
	if err != nil {
		return fmt.Errorf("failed to encode tier metadata: %w", err)
	}

	if _, err := s.client.Put(ctx, tierMetadataKey(s.prefix, name), string(value)); err != nil {
		return fmt.Errorf("failed to write tier %q: %w", name, err)
	}

	return nil
}

func (s *EtcdStore) ListWorkloadEndpoints(ctx context.Context) ([]WorkloadEndpoint, error) {
	prefix := workloadsPrefix(s.prefix)

	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list workload endpoints: %w", err)
	}

	return decodeWorkloadEndpoints(prefix, resp.Kvs, s.log), nil
}

// decodeWorkloadEndpoints decodes the raw key-values, skipping broken
// records instead of failing the whole listing.
func decodeWorkloadEndpoints(prefix string, kvs []*mvccpb.KeyValue, log *zap.SugaredLogger) []WorkloadEndpoint {
	endpoints := make([]WorkloadEndpoint, 0, len(kvs))

	for _, kv := range kvs {
		endpoint := WorkloadEndpoint{}
		if err := json.Unmarshal(kv.Value, &endpoint); err != nil {
			log.Errorw("Skipping an undecodable workload endpoint", "key", string(kv.Key), zap.Error(err))
			continue
		}
		if endpoint.WorkloadID == "" {
			endpoint.WorkloadID = strings.TrimPrefix(string(kv.Key), prefix)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints
}

func (s *EtcdStore) SetWorkloadLabels(ctx context.Context, workloadID string, labels map[string]string) error {
	key := workloadKey(s.prefix, workloadID)

	get, err := s.client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read workload endpoint %q: %w", workloadID, err)
	}
	if len(get.Kvs) == 0 {
		return fmt.Errorf("%w: %s", ErrWorkloadNotFound, workloadID)
	}
	kv := get.Kvs[0]

	value, err := mergeEndpointLabels(kv.Value, workloadID, labels)
	if err != nil {
		return fmt.Errorf("failed to encode workload endpoint %q: %w", workloadID, err)
	}

	// Guarded write so a concurrent CNI update is not overwritten.
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to update workload endpoint %q: %w", workloadID, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("workload endpoint %q changed concurrently", workloadID)
	}

	return nil
}

// mergeEndpointLabels rewrites the labels of an endpoint record while
// keeping all fields the CNI plugin wrote.
func mergeEndpointLabels(current []byte, workloadID string, labels map[string]string) ([]byte, error) {
	endpoint := map[string]interface{}{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &endpoint); err != nil {
			endpoint = map[string]interface{}{}
		}
	}

	endpoint["workload_id"] = workloadID
	endpoint["labels"] = labels

	return json.Marshal(endpoint)
}

func (s *EtcdStore) ApplyPolicy(ctx context.Context, tier, name string, policy *Policy) error {
	value, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy %q: %w", name, err)
	}

	if _, err := s.client.Put(ctx, policyKey(s.prefix, tier, name), string(value)); err != nil {
		return fmt.Errorf("failed to write policy %q: %w", name, err)
	}

	return nil
}

func (s *EtcdStore) DeletePolicy(ctx context.Context, tier, name string) error {
	if _, err := s.client.Delete(ctx, policyKey(s.prefix, tier, name)); err != nil {
		return fmt.Errorf("failed to delete policy %q: %w", name, err)
	}

	return nil
}

func (s *EtcdStore) ApplyProfile(ctx context.Context, name string, profile *Profile) error {
	value, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile %q: %w", name, err)
	}

	if _, err := s.client.Put(ctx, profileKey(s.prefix, name), string(value)); err != nil {
		return fmt.Errorf("failed to write profile %q: %w", name, err)
	}

	return nil
}

func (s *EtcdStore) DeleteProfile(ctx context.Context, name string) error {
	if _, err := s.client.Delete(ctx, profileKey(s.prefix, name)); err != nil {
		return fmt.Errorf("failed to delete profile %q: %w", name, err)
	}

	return nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
