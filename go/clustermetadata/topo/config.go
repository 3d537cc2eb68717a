// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package topo

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/viperutil"
)

// Config selects and locates the metadata backend.
type Config struct {
	implementation viperutil.Value[string]
	addresses      viperutil.Value[[]string]
	root           viperutil.Value[string]
}

func NewConfig(reg *viperutil.Registry) *Config {
	return &Config{
		implementation: viperutil.Configure(reg, "topo-implementation", viperutil.Options[string]{
			Default:  "etcd",
			FlagName: "topo-implementation",
			EnvVars:  []string{"LS_TOPO_IMPLEMENTATION"},
		}),
		addresses: viperutil.Configure(reg, "topo-addresses", viperutil.Options[[]string]{
			Default:  nil,
			FlagName: "topo-addresses",
			EnvVars:  []string{"LS_TOPO_ADDRESSES"},
		}),
		root: viperutil.Configure(reg, "topo-root", viperutil.Options[string]{
			Default:  "/logsafety",
			FlagName: "topo-root",
			EnvVars:  []string{"LS_TOPO_ROOT"},
		}),
	}
}

// RegisterFlags registers the topo flags on fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.String("topo-implementation", c.implementation.Default(), fmt.Sprintf("the topology implementation to use (%s)", strings.Join(Implementations(), ", ")))
	fs.StringSlice("topo-addresses", c.addresses.Default(), "the addresses of the topology servers")
	fs.String("topo-root", c.root.Default(), "the path of the log metadata in the topology server")
	viperutil.BindFlags(fs, c.implementation, c.addresses, c.root)
}

func (c *Config) Implementation() string { return c.implementation.Get() }
func (c *Config) Addresses() []string    { return c.addresses.Get() }
func (c *Config) Root() string           { return c.root.Get() }

// Open connects to the configured backend. Backends other than memory need
// at least one address. The connection is re-established in the background
// whenever it is lost.
func (c *Config) Open(logger *slog.Logger) (*LogStore, error) {
	impl, addrs, root := c.Implementation(), c.Addresses(), c.Root()
	if root == "" {
		return nil, mterrors.NewInvalidConfiguration("topo-root must be non-empty")
	}
	if !slices.Contains(Implementations(), impl) {
		return nil, mterrors.NewInvalidConfiguration("unknown topo-implementation %q, want one of %s", impl, strings.Join(Implementations(), ", "))
	}
	if len(addrs) == 0 && impl != "memory" {
		return nil, mterrors.NewInvalidConfiguration("topo-addresses must be configured for %s", impl)
	}
	conn := NewWrapperConn(func() (Conn, error) {
		return OpenConn(impl, root, addrs)
	}, logger)
	return NewLogStore(conn, logger), nil
}
