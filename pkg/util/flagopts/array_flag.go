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
	"strings"
)

// StringArray is an implementation flag.Value for parsing comma separated flags
type StringArray []string

// String is flag.Value implementation method
func (s StringArray) String() string {
	return strings.Join(s, ",")
}

// Set is flag.Value implementation method
func (s *StringArray) Set(val string) error {
	tmp := strings.Split(val, ",")

	var result []string
	for _, item := range tmp {
		if item != "" {
			result = append(result, item)
		}
	}
	*s = result
	return nil
}
