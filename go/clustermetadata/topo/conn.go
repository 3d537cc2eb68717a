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

package topo

import (
	"context"
)

// Version is an opaque per-file version handed out by a backend. Passing it
// back to Update or Delete makes the operation conditional on the file not
// having changed since.
type Version interface {
	String() string
}

// KVInfo is one entry returned by List.
type KVInfo struct {
	Key     []byte
	Value   []byte
	Version Version
}

// Conn is the plug-in interface a metadata backend implements. Paths are
// relative to the root the Conn was created with.
//
// Implementations return TopoError values for the conditions they
// describe: NoNode for missing files, NodeExists on Create of an existing
// file, BadVersion on a version mismatch.
type Conn interface {
	// Create writes a new file. It fails with NodeExists if the file exists.
	Create(ctx context.Context, filePath string, contents []byte) (Version, error)

	// Update writes a file. A nil version writes unconditionally and
	// creates the file if needed.
	Update(ctx context.Context, filePath string, contents []byte, version Version) (Version, error)

	// Get reads a file and its version.
	Get(ctx context.Context, filePath string) ([]byte, Version, error)

	// List returns every file whose path starts with filePathPrefix. Keys
	// are full backend keys. It fails with NoNode when nothing matches.
	List(ctx context.Context, filePathPrefix string) ([]KVInfo, error)

	// Delete removes a file. A non-nil version makes it conditional.
	Delete(ctx context.Context, filePath string, version Version) error

	// Close releases the connection.
	Close() error
}

// Factory creates Conns for one backend implementation.
type Factory interface {
	Create(root string, serverAddrs []string) (Conn, error)
}
