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

package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"k8c.io/network-policy-agent/pkg/log"
)

func TestStaticToken(t *testing.T) {
	if token := Static("secret").Token(); token != "secret" {
		t.Fatalf("expected token %q, got %q", "secret", token)
	}
}

func TestFileSourceReadsInitialToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("initial\n"), 0600); err != nil {
		t.Fatal(err)
	}

	source, err := NewFileSource(path, log.NewDefault().Sugar())
	if err != nil {
		t.Fatalf("failed to create file source: %v", err)
	}
	defer source.Close()

	if token := source.Token(); token != "initial" {
		t.Fatalf("expected token %q, got %q", "initial", token)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "no-such-token"), log.NewDefault().Sugar()); err == nil {
		t.Fatal("expected an error for a missing token file")
	}
}

func TestFileSourcePicksUpRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	source, err := NewFileSource(path, log.NewDefault().Sugar())
	if err != nil {
		t.Fatalf("failed to create file source: %v", err)
	}
	defer source.Close()

	if err := os.WriteFile(path, []byte("new"), 0600); err != nil {
		t.Fatal(err)
	}

	waitForToken(t, source, "new")
}

func TestFileSourceSurvivesRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatal(err)
	}

	source, err := NewFileSource(path, log.NewDefault().Sugar())
	if err != nil {
		t.Fatalf("failed to create file source: %v", err)
	}
	defer source.Close()

	// The kubelet replaces the token atomically instead of rewriting it
	// in place.
	rotate := func(token string) {
		t.Helper()
		tmp := filepath.Join(dir, "token.tmp")
		if err := os.WriteFile(tmp, []byte(token), 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}
	}

	rotate("second")
	waitForToken(t, source, "second")

	// A second rotation only surfaces if the watch outlived the first.
	rotate("third")
	waitForToken(t, source, "third")
}

// waitForToken polls because the watcher delivers events asynchronously.
func waitForToken(t *testing.T, source *FileSource, want string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for source.Token() != want {
		select {
		case <-deadline:
			t.Fatalf("token was not reloaded, still %q", source.Token())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
