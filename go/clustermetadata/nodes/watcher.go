// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Watcher reloads a nodes configuration file whenever it changes on disk
// and publishes it. A file that fails to load is logged and skipped; the
// previously published configuration stays authoritative.
type Watcher struct {
	fs        afero.Fs
	path      string
	publisher *Publisher
	logger    *slog.Logger
}

// NewWatcher returns a Watcher for the file at path on the OS filesystem.
func NewWatcher(path string, publisher *Publisher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:        afero.NewOsFs(),
		path:      filepath.Clean(path),
		publisher: publisher,
		logger:    logger.With("path", path),
	}
}

// Reload reads the file once and publishes it. It reports whether a new
// version was published.
func (w *Watcher) Reload() (bool, error) {
	nc, err := LoadNodesConfiguration(w.fs, w.path)
	if err != nil {
		return false, err
	}
	return w.publisher.Publish(nc), nil
}

// Run loads the file, publishes it, and then keeps reloading on changes
// until ctx is done. The initial load must succeed. The containing
// directory is watched so that editors replacing the file by rename are
// picked up.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.Reload(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			published, err := w.Reload()
			if err != nil {
				w.logger.Warn("failed to reload nodes configuration, keeping previous", "error", err, "event", ev.Op.String())
				continue
			}
			w.logger.Debug("reloaded nodes configuration", "published", published, "event", ev.Op.String())
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
