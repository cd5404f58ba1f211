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

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{name: "json", format: FormatJSON},
		{name: "console", format: FormatConsole},
		{name: "empty", format: Format(""), wantErr: true},
		{name: "unknown", format: Format("xml"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := NewDefaultOptions()
			opts.Format = tc.format

			err := opts.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFormatSet(t *testing.T) {
	var format Format

	require.NoError(t, format.Set("json"))
	assert.Equal(t, FormatJSON, format)

	require.NoError(t, format.Set("Console"))
	assert.Equal(t, FormatConsole, format)

	require.Error(t, format.Set("xml"))
}
