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

package kubeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"k8c.io/network-policy-agent/pkg/credentials"
	"k8c.io/network-policy-agent/pkg/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Address:     server.URL,
		TokenSource: credentials.Static("test-token"),
	}, log.NewDefault().Sugar())
	require.NoError(t, err)

	return client
}

func TestListDecodesCollection(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{
			"kind": "PodList",
			"metadata": {"resourceVersion": "500"},
			"items": [
				{"kind": "Pod", "metadata": {"name": "web-0", "namespace": "default"}},
				{"kind": "Pod", "metadata": {"name": "web-1", "namespace": "default"}}
			]
		}`)
	}))

	list, err := client.List(context.Background(), Pods)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/pods", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)

	assert.Equal(t, "500", list.ResourceVersion)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "web-0", list.Items[0].GetName())
	assert.Equal(t, "web-1", list.Items[1].GetName())
}

func TestListAcceptsItemsWithoutKind(t *testing.T) {
	// Collection items carry no kind of their own.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"kind": "PodList",
			"metadata": {"resourceVersion": "10"},
			"items": [
				{"metadata": {"name": "a", "namespace": "ns", "resourceVersion": "5"}}
			]
		}`)
	}))

	list, err := client.List(context.Background(), Pods)
	require.NoError(t, err)

	assert.Equal(t, "10", list.ResourceVersion)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "a", list.Items[0].GetName())

	key, err := KeyOf(&list.Items[0])
	require.NoError(t, err)
	assert.Equal(t, "ns/a", key.String())
}

func TestListWithoutToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"items": [], "metadata": {}}`)
	}))
	defer server.Close()

	client, err := NewClient(Config{Address: server.URL}, log.NewDefault().Sugar())
	require.NoError(t, err)

	_, err = client.List(context.Background(), Namespaces)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestListSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pods is forbidden", http.StatusForbidden)
	}))

	_, err := client.List(context.Background(), Pods)
	require.Error(t, err)

	apiErr := &APIError{}
	require.True(t, errors.As(err, &apiErr), "expected an *APIError, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, Pods, apiErr.Resource)
	assert.Contains(t, apiErr.Message, "forbidden")
}

func TestListRejectsUnknownResource(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("the request should never reach the server")
	}))

	_, err := client.List(context.Background(), ResourceType("Gadget"))
	require.Error(t, err)
}

func TestOpenWatchRequestShape(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
	}))

	stream, err := client.OpenWatch(context.Background(), NetworkPolicies, "1234")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "/apis/networking.k8s.io/v1/networkpolicies", gotPath)
	assert.Equal(t, []string{"true"}, gotQuery["watch"])
	assert.Equal(t, []string{"1234"}, gotQuery["resourceVersion"])
}

func TestOpenWatchWithoutCursor(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))

	stream, err := client.OpenWatch(context.Background(), Pods, "")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"true"}, gotQuery["watch"])
	assert.NotContains(t, gotQuery, "resourceVersion")
}

func TestWatchStreamDeliversUpdates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"ADDED","object":{"kind":"Pod","metadata":{"name":"web-0","namespace":"default","resourceVersion":"101"}}}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `{"type":"DELETED","object":{"kind":"Pod","metadata":{"name":"web-0","namespace":"default","resourceVersion":"102"}}}`)
	}))

	stream, err := client.OpenWatch(context.Background(), Pods, "")
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, EventAdded, first.Event)
	assert.Equal(t, Pods, first.Resource)
	assert.Equal(t, "web-0", first.Object.GetName())
	assert.Equal(t, "101", first.Object.GetResourceVersion())

	// The blank keep-alive lines must be invisible to the caller.
	second, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, EventDeleted, second.Event)
	assert.Equal(t, "102", second.Object.GetResourceVersion())

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWatchStreamResourceFromObjectKind(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"ADDED","object":{"kind":"NetworkPolicy","metadata":{"name":"allow-web","namespace":"default"}}}`)
	}))

	stream, err := client.OpenWatch(context.Background(), Pods, "")
	require.NoError(t, err)
	defer stream.Close()

	update, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, NetworkPolicies, update.Resource)
}

func TestWatchStreamKeepsResourceForObjectsWithoutKind(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"MODIFIED","object":{"metadata":{"name":"a","namespace":"ns","resourceVersion":"6"}}}`)
	}))

	stream, err := client.OpenWatch(context.Background(), Pods, "")
	require.NoError(t, err)
	defer stream.Close()

	update, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, EventModified, update.Event)
	assert.Equal(t, Pods, update.Resource)
	assert.Equal(t, "a", update.Object.GetName())
	assert.Equal(t, "6", update.Object.GetResourceVersion())
}

func TestWatchStreamErrorEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"ERROR","object":{"kind":"Status","message":"too old resource version"}}`)
	}))

	stream, err := client.OpenWatch(context.Background(), Namespaces, "1")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.Error(t, err)

	apiErr := &APIError{}
	require.True(t, errors.As(err, &apiErr), "expected an *APIError, got %T", err)
	assert.Equal(t, Namespaces, apiErr.Resource)
	assert.Zero(t, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "too old resource version")
}

func TestWatchStreamMalformedLine(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"ADDED","object":`)
	}))

	stream, err := client.OpenWatch(context.Background(), Pods, "")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestOpenWatchSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "watch is gone", http.StatusGone)
	}))

	_, err := client.OpenWatch(context.Background(), Pods, "1")
	require.Error(t, err)

	apiErr := &APIError{}
	require.True(t, errors.As(err, &apiErr), "expected an *APIError, got %T", err)
	assert.Equal(t, http.StatusGone, apiErr.StatusCode)
}

func TestNewClientRejectsEmptyAddress(t *testing.T) {
	_, err := NewClient(Config{}, log.NewDefault().Sugar())
	require.Error(t, err)
}
