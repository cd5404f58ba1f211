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
	"flag"
	"fmt"
	"strings"
)

// Format repesents a logging format, e.g. JSON or plaintext.
type Format string

const (
	// FormatJSON formats messages as JSON objects, one per line.
	FormatJSON Format = "JSON"
	// FormatConsole formats messages as human readable lines, using
	// whitespace to separate the individual fields.
	FormatConsole Format = "Console"
)

// AvailableFormats is the list of all formats this package supports.
var AvailableFormats = Formats{FormatJSON, FormatConsole}

// Formats is a list of Format values.
type Formats []Format

func (f Formats) String() string {
	formats := make([]string, len(f))
	for i, format := range f {
		formats[i] = string(format)
	}

	return strings.Join(formats, ", ")
}

// String returns the format name, so that Format satisfies flag.Value.
func (f Format) String() string {
	return string(f)
}

// Set sets the format and validates it, so that Format satisfies flag.Value.
func (f *Format) Set(s string) error {
	format := Format(s)

	for _, available := range AvailableFormats {
		if strings.EqualFold(string(available), s) {
			*f = available
			return nil
		}
	}

	return fmt.Errorf("invalid format %q, available formats are %v", format, AvailableFormats)
}

// Options configure the logger created by New.
type Options struct {
	// Debug enables more verbose logging.
	Debug bool
	// Format controls the output format.
	Format Format
}

// NewDefaultOptions returns non-debug, JSON formatted logging options.
func NewDefaultOptions() Options {
	return Options{
		Debug:  false,
		Format: FormatJSON,
	}
}

// AddFlags registers the log flags on the given flag set. Must be called
// before flag.Parse.
func (o *Options) AddFlags(fs *flag.FlagSet) {
	fs.BoolVar(&o.Debug, "log-debug", o.Debug, "Enables debug logging")
	fs.Var(&o.Format, "log-format", fmt.Sprintf("Log format, one of %v", AvailableFormats))
}

func (o Options) Validate() error {
	var valid bool
	for _, available := range AvailableFormats {
		if o.Format == available {
			valid = true
			break
		}
	}

	if !valid {
		return fmt.Errorf("invalid log format %q, available formats are %v", o.Format, AvailableFormats)
	}

	return nil
}
