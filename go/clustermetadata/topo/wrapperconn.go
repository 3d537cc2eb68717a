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
	"errors"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/tools/retry"
)

// WrapperConn wraps a Conn with automatic reconnection. While no connection
// is established, operations fail with Unavailable.
type WrapperConn struct {
	newFunc func() (Conn, error)
	logger  *slog.Logger

	// ctx ends the retry loop on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	wrapped  Conn
	retrying bool
	closed   bool
}

var _ Conn = (*WrapperConn)(nil)

// NewWrapperConn creates a connection wrapper that uses newFunc to establish
// connections. If the initial attempt fails, it keeps retrying in the
// background.
func NewWrapperConn(newFunc func() (Conn, error), logger *slog.Logger) *WrapperConn {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WrapperConn{newFunc: newFunc, logger: logger, ctx: ctx, cancel: cancel}

	conn, err := newFunc()
	if err != nil {
		c.handleConnectionError(nil, err)
	} else {
		c.wrapped = conn
	}
	return c
}

// handleConnectionError starts a reconnect for errors that suggest the
// connection is gone.
func (c *WrapperConn) handleConnectionError(conn Conn, err error) {
	if conn == nil {
		c.logger.Error("topo connection error, will keep retrying", "error", err)
		go c.retryConnection()
		return
	}
	if !connectionLost(err) {
		return
	}
	c.logger.Error("topo connection error, will keep retrying", "error", err)
	go c.retryConnection()
}

// connectionLost reports whether err points at the connection rather than
// the request.
func connectionLost(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		// The caller gave up.
		return false
	case IsErrType(err, Timeout), IsErrType(err, Unavailable):
		return true
	}
	switch mterrors.Code(err) {
	case codes.Unavailable, codes.FailedPrecondition:
		return true
	}
	return false
}

// retryConnection loops until a connection is established or the wrapper is
// closed. Only one loop runs at a time.
func (c *WrapperConn) retryConnection() {
	mustReturn := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.retrying {
			return true
		}
		c.retrying = true
		if c.wrapped != nil {
			go func(old Conn) { _ = old.Close() }(c.wrapped)
			c.wrapped = nil
		}
		return false
	}()
	if mustReturn {
		return
	}
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.retrying = false
	}()

	r := retry.New(10*time.Millisecond, 30*time.Second, retry.WithInitialDelay())
	for _, err := range r.Attempts(c.ctx) {
		if err != nil {
			return
		}
		conn, err := c.newFunc()
		mustContinue := func() bool {
			// closed must not change between the check and the assignment
			// of wrapped, or Close would miss the new connection.
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.closed {
				if conn != nil {
					_ = conn.Close()
				}
				return false
			}
			if err != nil {
				return true
			}
			c.wrapped = conn
			return false
		}()
		if !mustContinue {
			c.logger.Info("topo connection established", "attempts", r.Attempt())
			return
		}
	}
}

func (c *WrapperConn) getConnection() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wrapped == nil {
		return nil, NewError(Unavailable, "no connection available")
	}
	return c.wrapped, nil
}

// Connected reports whether a connection is currently held.
func (c *WrapperConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wrapped != nil
}

// Create implements Conn.
func (c *WrapperConn) Create(ctx context.Context, filePath string, contents []byte) (Version, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}
	v, err := conn.Create(ctx, filePath, contents)
	c.handleConnectionError(conn, err)
	return v, err
}

// Update implements Conn.
func (c *WrapperConn) Update(ctx context.Context, filePath string, contents []byte, version Version) (Version, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}
	v, err := conn.Update(ctx, filePath, contents, version)
	c.handleConnectionError(conn, err)
	return v, err
}

// Get implements Conn.
func (c *WrapperConn) Get(ctx context.Context, filePath string) ([]byte, Version, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, nil, err
	}
	data, v, err := conn.Get(ctx, filePath)
	c.handleConnectionError(conn, err)
	return data, v, err
}

// List implements Conn.
func (c *WrapperConn) List(ctx context.Context, filePathPrefix string) ([]KVInfo, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}
	kvs, err := conn.List(ctx, filePathPrefix)
	c.handleConnectionError(conn, err)
	return kvs, err
}

// Delete implements Conn.
func (c *WrapperConn) Delete(ctx context.Context, filePath string, version Version) error {
	conn, err := c.getConnection()
	if err != nil {
		return err
	}
	err = conn.Delete(ctx, filePath, version)
	c.handleConnectionError(conn, err)
	return err
}

// Close stops any reconnect loop and closes the current connection.
func (c *WrapperConn) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.wrapped == nil {
		return nil
	}
	err := c.wrapped.Close()
	c.wrapped = nil
	return err
}
