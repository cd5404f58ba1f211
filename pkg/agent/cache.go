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

package agent

// Cache remembers the labels last written to the policy store per
// workload, so handlers can skip redundant writes. It is owned by the
// dispatcher goroutine and must only be touched from handler
// invocations, which is why it carries no lock.
type Cache struct {
	labels map[string]map[string]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{labels: map[string]map[string]string{}}
}

// Labels returns the last written labels of a workload, nil when the
// workload is unknown.
func (c *Cache) Labels(workloadID string) map[string]string {
	return c.labels[workloadID]
}

// SetLabels records the labels written for a workload.
func (c *Cache) SetLabels(workloadID string, labels map[string]string) {
	c.labels[workloadID] = labels
}

// Delete forgets a workload.
func (c *Cache) Delete(workloadID string) {
	delete(c.labels, workloadID)
}

// Len is the number of known workloads.
func (c *Cache) Len() int {
	return len(c.labels)
}
