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
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"k8c.io/network-policy-agent/pkg/credentials"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	// DefaultAddress resolves via the /etc/hosts entry the agent can
	// manage itself, so it works before cluster DNS does.
	DefaultAddress = "https://kubernetes.default:443"

	defaultListTimeout = 30 * time.Second

	// Single watch events carry whole objects and can get large.
	maxEventSize = 10 * 1024 * 1024
)

// Config configures a Client.
type Config struct {
	// Address is the base URL of the API server.
	Address string
	// TokenSource yields the bearer token for each request. A nil source
	// or an empty token sends requests unauthenticated.
	TokenSource credentials.Source
	// CAFile verifies the serving certificate. When empty, verification
	// is disabled.
	CAFile string
	// ListTimeout bounds one-shot requests.
	ListTimeout time.Duration
}

// Client performs list and watch requests against a single API server.
type Client struct {
	log     *zap.SugaredLogger
	baseURL string
	tokens  credentials.Source

	listClient  *http.Client
	watchClient *http.Client
}

// NewClient validates the config and builds the two HTTP clients, a
// timeout-bounded one for lists and an unbounded one for watch streams.
func NewClient(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	baseURL := strings.TrimSuffix(cfg.Address, "/")
	if baseURL == "" {
		return nil, errors.New("no API server address configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API server address %q: %w", cfg.Address, err)
	}

	tlsConfig := &tls.Config{}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %q", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	} else {
		log.Warnw("No CA file configured, disabling TLS verification for the API server")
		tlsConfig.InsecureSkipVerify = true
	}

	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = defaultListTimeout
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}

	return &Client{
		log:     log,
		baseURL: baseURL,
		tokens:  cfg.TokenSource,
		listClient: &http.Client{
			Transport: transport,
			Timeout:   listTimeout,
		},
		// Watches are long-running and must not be cut off by a global
		// request timeout.
		watchClient: &http.Client{
			Transport: transport,
		},
	}, nil
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %q: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return req, nil
}

// listResponse mirrors the wire shape of a collection list. Items stay
// raw maps because collection items omit kind, which the unstructured
// scheme refuses to decode.
type listResponse struct {
	Metadata struct {
		ResourceVersion string `json:"resourceVersion"`
	} `json:"metadata"`
	Items []map[string]interface{} `json:"items"`
}

// List fetches the current state of the given collection.
func (c *Client) List(ctx context.Context, resource ResourceType) (*ResourceList, error) {
	path, err := resource.Path()
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.listClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resource, resp)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", resource, err)
	}

	items := make([]unstructured.Unstructured, len(list.Items))
	for i, item := range list.Items {
		items[i] = unstructured.Unstructured{Object: item}
	}

	return &ResourceList{
		Items:           items,
		ResourceVersion: list.Metadata.ResourceVersion,
	}, nil
}

// OpenWatch starts streaming changes of the given collection. With a
// non-empty resourceVersion the stream resumes from that point in the
// server's history, otherwise it starts at the current state.
func (c *Client) OpenWatch(ctx context.Context, resource ResourceType, resourceVersion string) (*WatchStream, error) {
	path, err := resource.Path()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("watch", "true")
	if resourceVersion != "" {
		query.Set("resourceVersion", resourceVersion)
	}

	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.watchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s watch: %w", resource, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, newAPIError(resource, resp)
	}

	return NewWatchStream(resource, resp.Body), nil
}

// NewWatchStream decodes watch events from an already-open stream,
// usually a response body.
func NewWatchStream(resource ResourceType, body io.ReadCloser) *WatchStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	return &WatchStream{
		resource: resource,
		body:     body,
		scanner:  scanner,
	}
}

// WatchStream decodes newline-delimited watch events from a streaming
// response. Not safe for concurrent use.
type WatchStream struct {
	resource ResourceType
	body     io.ReadCloser
	scanner  *bufio.Scanner
}

// watchEvent is the wire envelope of a single watch line.
type watchEvent struct {
	Type   EventType       `json:"type"`
	Object json.RawMessage `json:"object"`
}

// Next blocks until the next event arrives. It returns io.EOF when the
// server closes the stream and *APIError when the server injects an
// ERROR envelope into it.
func (s *WatchStream) Next() (*Update, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		// Blank lines are keep-alives on quiet streams.
		if len(line) == 0 {
			continue
		}

		var event watchEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to decode %s watch event: %w", s.resource, err)
		}

		if event.Type == EventError {
			return nil, &APIError{
				Resource: s.resource,
				Message:  strings.TrimSpace(string(event.Object)),
			}
		}

		// Decoded into the raw map because objects may omit kind,
		// which the unstructured scheme refuses.
		obj := &unstructured.Unstructured{}
		if err := json.Unmarshal(event.Object, &obj.Object); err != nil {
			return nil, fmt.Errorf("failed to decode %s watch object: %w", s.resource, err)
		}

		// Trust the object over the stream it arrived on, matching how
		// the server labels events.
		resource := s.resource
		if kind := obj.GetKind(); kind != "" {
			resource = ResourceType(kind)
		}

		return &Update{Event: event.Type, Resource: resource, Object: obj}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s watch stream broke: %w", s.resource, err)
	}

	return nil, io.EOF
}

// Close terminates the stream.
func (s *WatchStream) Close() error {
	return s.body.Close()
}
