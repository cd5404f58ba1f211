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

// Package kubeapi talks to the Kubernetes API the way the agent needs
// it: one-shot collection lists and long-running watch streams, decoded
// into untyped objects. It is deliberately not a general purpose client.
package kubeapi

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// EventType is the kind of change a watch event reports.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
	// EventError is injected by the API server into a watch stream when
	// the stream cannot be continued, e.g. because the requested
	// resourceVersion has been compacted away.
	EventError EventType = "ERROR"
)

// ResourceType names a watched collection.
type ResourceType string

const (
	NetworkPolicies ResourceType = "NetworkPolicy"
	Namespaces      ResourceType = "Namespace"
	Pods            ResourceType = "Pod"
)

// WatchedResources are the collections the agent keeps in sync.
var WatchedResources = []ResourceType{NetworkPolicies, Namespaces, Pods}

// Path returns the URL path of the resource collection.
func (r ResourceType) Path() (string, error) {
	switch r {
	case NetworkPolicies:
		return "/apis/networking.k8s.io/v1/networkpolicies", nil
	case Namespaces:
		return "/api/v1/namespaces", nil
	case Pods:
		return "/api/v1/pods", nil
	default:
		return "", fmt.Errorf("no collection path known for resource type %q", r)
	}
}

// Update is a single observed change, either synthesized from a list
// during resync or decoded from a watch stream.
type Update struct {
	Event    EventType
	Resource ResourceType
	Object   *unstructured.Unstructured
}

// ErrNoObjectName flags objects that cannot be keyed and therefore
// cannot be processed at all.
var ErrNoObjectName = errors.New("object has no metadata.name")

// Key identifies a resource within its collection.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// KeyOf derives the Key of an object from its metadata.
func KeyOf(obj *unstructured.Unstructured) (Key, error) {
	if obj == nil || obj.GetName() == "" {
		return Key{}, ErrNoObjectName
	}

	return Key{Namespace: obj.GetNamespace(), Name: obj.GetName()}, nil
}

// ResourceList is the decoded response of a collection list.
type ResourceList struct {
	Items []unstructured.Unstructured
	// ResourceVersion is the point in the server's change history the
	// list corresponds to. Watches resume from it.
	ResourceVersion string
}
