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

// Package credentials provides bearer tokens for talking to the
// Kubernetes API. Tokens either come from the environment or from a
// service account token file that is re-read when the kubelet rotates it.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// DefaultTokenFile is where the service account admission controller
// mounts the token inside a pod.
const DefaultTokenFile = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Source yields the bearer token to authenticate API requests with.
// An empty token means the request is sent unauthenticated.
type Source interface {
	Token() string
}

// Static is a Source returning a fixed token.
type Static string

func (s Static) Token() string {
	return string(s)
}

// FileSource reads the token from a file and keeps it current by
// watching the containing directory for changes.
type FileSource struct {
	log     *zap.SugaredLogger
	path    string
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	token string
}

// NewFileSource reads the token file once and starts watching it for
// changes. Callers must Close the source when done.
func NewFileSource(path string, log *zap.SugaredLogger) (*FileSource, error) {
	s := &FileSource{
		log:  log,
		path: filepath.Clean(path),
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed creating a new file watcher: %w", err)
	}
	// The token is rotated by replacing the file, which orphans a watch
	// on the file itself, so the directory is watched instead.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed adding %q to the file watcher: %w", dir, err)
	}
	s.watcher = watcher

	go s.watch()

	return s, nil
}

// Token returns the most recently read token.
func (s *FileSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Close stops watching the token file.
func (s *FileSource) Close() error {
	return s.watcher.Close()
}

func (s *FileSource) watch() {
	for {
		select {
		case e, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.concerns(e) {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Errorw("Failed reloading service account token", zap.Error(err))
				continue
			}
			s.log.Debugw("Reloaded service account token", "path", s.path)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Errorw("Error occurred during watching the token file", zap.Error(err))
		}
	}
}

// concerns reports whether the event can have changed the token. The
// kubelet rotates projected tokens by swapping a symlinked directory,
// which emits events for sibling names only, so creates and renames
// anywhere in the directory count as well.
func (s *FileSource) concerns(e fsnotify.Event) bool {
	if filepath.Clean(e.Name) == s.path {
		return e.Op&(fsnotify.Write|fsnotify.Create) != 0
	}

	return e.Op&(fsnotify.Create|fsnotify.Rename) != 0
}

func (s *FileSource) reload() error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read token file %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(string(content))
	s.mu.Unlock()

	return nil
}
