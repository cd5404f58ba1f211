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
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is an error the API server itself reported, either as a
// non-success HTTP status or as an ERROR envelope on a watch stream.
// Everything else coming out of the client is a transport or decode
// problem.
type APIError struct {
	Resource ResourceType
	// StatusCode is zero for errors delivered inside a watch stream.
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %s", e.Resource, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s watch reported an error: %s", e.Resource, e.Message)
}

func newAPIError(resource ResourceType, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return &APIError{
		Resource:   resource,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
