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

/*
Package topo is the read and write path for log metadata: the catalog of
logs, each log's epoch history, and its trim point.

The package defines the plug-in interfaces Conn and Factory that metadata
backends implement. etcd is the production backend (etcdtopo); memorytopo
serves tests and local runs.

Data layout below the backend root:

	logs/<id>/Log      LogConfig
	logs/<id>/Epochs   []EpochRecord, ordered by epoch
	logs/<id>/Trim     TrimPoint

All files are YAML.
*/
package topo

import (
	"fmt"
	"sort"
	"sync"
)

const (
	// LogsPath is the directory holding one subdirectory per log.
	LogsPath = "logs"

	LogFile    = "Log"
	EpochsFile = "Epochs"
	TrimFile   = "Trim"
)

var (
	factoriesMu sync.Mutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a Factory under name. Backends call it from
// init. Registering a name twice panics.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factories[name] != nil {
		panic(fmt.Sprintf("duplicate topo.Factory registration for %v", name))
	}
	factories[name] = factory
}

// Implementations returns the registered backend names, sorted.
func Implementations() []string {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenConn creates a Conn with the named backend implementation.
func OpenConn(implementation, root string, serverAddrs []string) (Conn, error) {
	factoriesMu.Lock()
	factory, ok := factories[implementation]
	factoriesMu.Unlock()
	if !ok {
		return nil, NewError(NoImplementation, implementation)
	}
	return factory.Create(root, serverAddrs)
}
