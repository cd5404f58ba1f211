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

package flagopts

import (
	"testing"

	"github.com/go-test/deep"
)

func TestStringArray_Set(t *testing.T) {
	tests := []struct {
		name string
		args string
		want StringArray
	}{
		{
			name: "simple",
			args: "hello",
			want: StringArray{"hello"},
		},
		{
			name: "empty",
			args: "",
			want: nil,
		},
		{
			name: "few of them",
			args: "hello,world",
			want: StringArray{"hello", "world"},
		},
		{
			name: "with gaps",
			args: "hello,,,world",
			want: StringArray{"hello", "world"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s StringArray
			if err := s.Set(tt.args); err != nil {
				t.Fatalf("StringArray.Set() error = %v", err)
			}
			if diff := deep.Equal(s, tt.want); diff != nil {
				t.Errorf("StringArray.Set() diff: %v", diff)
			}
		})
	}
}
