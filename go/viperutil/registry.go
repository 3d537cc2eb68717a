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

package viperutil

import (
	"sync"

	"github.com/spf13/viper"
)

// Registry holds the static and dynamic viper instances for configuration.
// Each command builds its own registry, so tests and subcommands never share
// configuration state.
//
// Static values never change after LoadConfig, except through Set.
// Dynamic values are re-read whenever the loaded config file changes.
type Registry struct {
	static *viper.Viper

	// mu guards dynamic and notify. viper.Viper is not safe for concurrent
	// use, and dynamic is written by the config watcher.
	mu       sync.RWMutex
	dynamic  *viper.Viper
	notify   []chan<- struct{}
	watching bool
}

// NewRegistry creates a new isolated configuration registry.
//
// Example usage:
//
//	reg := viperutil.NewRegistry()
//	abort := viperutil.Configure(reg, "abort-on-error", viperutil.Options[bool]{
//	    Default:  true,
//	    FlagName: "abort-on-error",
//	    Dynamic:  true,
//	})
func NewRegistry() *Registry {
	return &Registry{
		static:  viper.New(),
		dynamic: viper.New(),
	}
}

// Combined returns a viper instance combining the static and dynamic registries.
// Debug handlers use it to render every configured value.
func (reg *Registry) Combined() *viper.Viper {
	v := viper.New()
	_ = v.MergeConfigMap(reg.static.AllSettings())

	reg.mu.RLock()
	_ = v.MergeConfigMap(reg.dynamic.AllSettings())
	reg.mu.RUnlock()

	v.SetConfigFile(reg.static.ConfigFileUsed())
	return v
}

// readDynamic (re)loads file into the dynamic viper and notifies
// subscribers without blocking.
func (reg *Registry) readDynamic(file string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.dynamic.SetConfigFile(file)
	if err := reg.dynamic.ReadInConfig(); err != nil {
		return err
	}
	for _, ch := range reg.notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}
