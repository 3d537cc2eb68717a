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

// Package memorytopo implements topo.Conn in memory. It is meant for tests
// and local runs: every Conn created by one Factory shares the same data,
// and the Factory can inject per-operation errors and latency.
package memorytopo

import (
	"context"
	"errors"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
)

// Implementation is the name memorytopo registers under.
const Implementation = "memory"

// Operation names a Conn method for fault injection.
type Operation int

const (
	Create Operation = iota
	Update
	Get
	List
	Delete
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "Create"
	case Update:
		return "Update"
	case Get:
		return "Get"
	case List:
		return "List"
	case Delete:
		return "Delete"
	}
	return "Unknown"
}

type file struct {
	contents []byte
	version  NodeVersion
}

type operationError struct {
	pattern *regexp.Regexp
	err     error
}

// Factory owns the shared in-memory data and hands out Conns.
type Factory struct {
	mu sync.Mutex
	// files is keyed by the full path, root included.
	files      map[string]*file
	generation NodeVersion

	// err, when set, fails every operation.
	err             error
	operationErrors map[Operation][]operationError
	latency         map[Operation]time.Duration
	calls           map[Operation]int
}

var _ topo.Factory = (*Factory)(nil)

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		files:           make(map[string]*file),
		operationErrors: make(map[Operation][]operationError),
		latency:         make(map[Operation]time.Duration),
		calls:           make(map[Operation]int),
	}
}

// NewServerAndFactory returns a LogStore over a fresh Factory rooted at
// root, and the Factory for fault injection.
func NewServerAndFactory(root string) (*topo.LogStore, *Factory) {
	f := NewFactory()
	conn, _ := f.Create(root, nil)
	return topo.NewLogStore(conn, nil), f
}

func init() {
	topo.RegisterFactory(Implementation, NewFactory())
}

// Create implements topo.Factory. The server addresses are ignored.
func (f *Factory) Create(root string, serverAddrs []string) (topo.Conn, error) {
	return &conn{factory: f, root: root}, nil
}

// SetError makes every operation fail with err. A nil err clears it.
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// AddOperationError makes op fail with err for paths matching the regular
// expression pathPattern. Paths are relative to the Conn root.
func (f *Factory) AddOperationError(op Operation, pathPattern string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operationErrors[op] = append(f.operationErrors[op], operationError{
		pattern: regexp.MustCompile(pathPattern),
		err:     err,
	})
}

// ClearOperationErrors removes all injected operation errors.
func (f *Factory) ClearOperationErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operationErrors = make(map[Operation][]operationError)
}

// SetLatency delays every call of op by d, or until the caller's context
// ends.
func (f *Factory) SetLatency(op Operation, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency[op] = d
}

// Calls returns how many times op was invoked.
func (f *Factory) Calls(op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// getOperationError returns the injected error for op on filePath. Must be
// called with mu held.
func (f *Factory) getOperationError(op Operation, filePath string) error {
	if f.err != nil {
		return f.err
	}
	for _, oe := range f.operationErrors[op] {
		if oe.pattern.MatchString(filePath) {
			return oe.err
		}
	}
	return nil
}

type conn struct {
	factory *Factory
	root    string

	mu     sync.Mutex
	closed bool
}

var _ topo.Conn = (*conn)(nil)

// begin counts the call, applies latency and returns any injected error.
// On success the factory lock is held and the caller must release it.
func (c *conn) begin(ctx context.Context, op Operation, filePath string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return topo.NewError(topo.Interrupted, "connection closed")
	}

	c.factory.mu.Lock()
	c.factory.calls[op]++
	delay := c.factory.latency[op]
	c.factory.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return convertContextError(ctx.Err(), filePath)
		}
	}
	if err := ctx.Err(); err != nil {
		return convertContextError(err, filePath)
	}

	c.factory.mu.Lock()
	if err := c.factory.getOperationError(op, filePath); err != nil {
		c.factory.mu.Unlock()
		return err
	}
	return nil
}

func convertContextError(err error, filePath string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return topo.NewError(topo.Timeout, filePath)
	}
	return topo.NewError(topo.Interrupted, filePath)
}

func (c *conn) fullPath(filePath string) string {
	return path.Join(c.root, filePath)
}

// Create implements topo.Conn.
func (c *conn) Create(ctx context.Context, filePath string, contents []byte) (topo.Version, error) {
	if err := c.begin(ctx, Create, filePath); err != nil {
		return nil, err
	}
	defer c.factory.mu.Unlock()

	p := c.fullPath(filePath)
	if _, ok := c.factory.files[p]; ok {
		return nil, topo.NewError(topo.NodeExists, filePath)
	}
	return c.factory.write(p, contents), nil
}

// Update implements topo.Conn.
func (c *conn) Update(ctx context.Context, filePath string, contents []byte, version topo.Version) (topo.Version, error) {
	if err := c.begin(ctx, Update, filePath); err != nil {
		return nil, err
	}
	defer c.factory.mu.Unlock()

	p := c.fullPath(filePath)
	if version != nil {
		f, ok := c.factory.files[p]
		if !ok {
			return nil, topo.NewError(topo.NoNode, filePath)
		}
		if f.version != version.(NodeVersion) {
			return nil, topo.NewError(topo.BadVersion, filePath)
		}
	}
	return c.factory.write(p, contents), nil
}

// write stores a copy of contents under a new version. Must be called with
// mu held.
func (f *Factory) write(p string, contents []byte) NodeVersion {
	f.generation++
	f.files[p] = &file{
		contents: append([]byte(nil), contents...),
		version:  f.generation,
	}
	return f.generation
}

// Get implements topo.Conn.
func (c *conn) Get(ctx context.Context, filePath string) ([]byte, topo.Version, error) {
	if err := c.begin(ctx, Get, filePath); err != nil {
		return nil, nil, err
	}
	defer c.factory.mu.Unlock()

	f, ok := c.factory.files[c.fullPath(filePath)]
	if !ok {
		return nil, nil, topo.NewError(topo.NoNode, filePath)
	}
	return append([]byte(nil), f.contents...), f.version, nil
}

// List implements topo.Conn.
func (c *conn) List(ctx context.Context, filePathPrefix string) ([]topo.KVInfo, error) {
	if err := c.begin(ctx, List, filePathPrefix); err != nil {
		return nil, err
	}
	defer c.factory.mu.Unlock()

	prefix := c.fullPath(filePathPrefix)
	if strings.HasSuffix(filePathPrefix, "/") {
		prefix += "/"
	}
	var out []topo.KVInfo
	for p, f := range c.factory.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, topo.KVInfo{
			Key:     []byte(p),
			Value:   append([]byte(nil), f.contents...),
			Version: f.version,
		})
	}
	if len(out) == 0 {
		return nil, topo.NewError(topo.NoNode, filePathPrefix)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

// Delete implements topo.Conn.
func (c *conn) Delete(ctx context.Context, filePath string, version topo.Version) error {
	if err := c.begin(ctx, Delete, filePath); err != nil {
		return err
	}
	defer c.factory.mu.Unlock()

	p := c.fullPath(filePath)
	f, ok := c.factory.files[p]
	if !ok {
		return topo.NewError(topo.NoNode, filePath)
	}
	if version != nil && f.version != version.(NodeVersion) {
		return topo.NewError(topo.BadVersion, filePath)
	}
	delete(c.factory.files, p)
	return nil
}

// Close implements topo.Conn.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
