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
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options configures a Value.
type Options[T any] struct {
	// Default is used when no flag, environment variable or config file
	// provides a value.
	Default T
	// FlagName is the flag bound by BindFlags. Empty means the value has no
	// flag.
	FlagName string
	// EnvVars are checked in order after flags.
	EnvVars []string
	// Dynamic values are re-read when the config file changes.
	Dynamic bool
	// GetFunc overrides the getter derived from T.
	GetFunc func(v *viper.Viper) func(key string) T
}

// Value is a typed handle on one configuration key.
type Value[T any] interface {
	Key() string
	Get() T
	Set(v T)
	Default() T

	flagName() string
	bindFlag(f *pflag.Flag) error
}

// Registerable is a Value of any type, as accepted by BindFlags.
type Registerable interface {
	Key() string
	flagName() string
	bindFlag(f *pflag.Flag) error
}

type base[T any] struct {
	key      string
	flag     string
	def      T
	getFunc  func(v *viper.Viper) func(key string) T
	registry *Registry
}

func (b *base[T]) Key() string      { return b.key }
func (b *base[T]) Default() T       { return b.def }
func (b *base[T]) flagName() string { return b.flag }

type staticValue[T any] struct {
	base[T]
}

func (s *staticValue[T]) Get() T {
	return s.getFunc(s.registry.static)(s.key)
}

func (s *staticValue[T]) Set(v T) {
	s.registry.static.Set(s.key, v)
}

func (s *staticValue[T]) bindFlag(f *pflag.Flag) error {
	return s.registry.static.BindPFlag(s.key, f)
}

type dynamicValue[T any] struct {
	base[T]
}

func (d *dynamicValue[T]) Get() T {
	d.registry.mu.RLock()
	defer d.registry.mu.RUnlock()
	return d.getFunc(d.registry.dynamic)(d.key)
}

func (d *dynamicValue[T]) Set(v T) {
	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()
	d.registry.dynamic.Set(d.key, v)
}

func (d *dynamicValue[T]) bindFlag(f *pflag.Flag) error {
	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()
	return d.registry.dynamic.BindPFlag(d.key, f)
}

// Configure registers key in reg and returns its typed handle. It panics if
// T has no built-in getter and opts.GetFunc is nil, or if binding an
// environment variable fails; both are programming errors.
func Configure[T any](reg *Registry, key string, opts Options[T]) Value[T] {
	getFunc := opts.GetFunc
	if getFunc == nil {
		getFunc = GetFuncForType[T]()
	}
	b := base[T]{
		key:      key,
		flag:     opts.FlagName,
		def:      opts.Default,
		getFunc:  getFunc,
		registry: reg,
	}

	bind := func(v *viper.Viper) {
		v.SetDefault(key, opts.Default)
		if len(opts.EnvVars) > 0 {
			if err := v.BindEnv(append([]string{key}, opts.EnvVars...)...); err != nil {
				panic(fmt.Sprintf("viperutil: binding env for %s: %v", key, err))
			}
		}
	}

	if opts.Dynamic {
		reg.mu.Lock()
		bind(reg.dynamic)
		reg.mu.Unlock()
		return &dynamicValue[T]{base: b}
	}
	bind(reg.static)
	return &staticValue[T]{base: b}
}

// BindFlags binds each value to its flag in fs. Values without a flag name,
// or whose flag is not defined in fs, are skipped.
func BindFlags(fs *pflag.FlagSet, values ...Registerable) {
	for _, v := range values {
		name := v.flagName()
		if name == "" {
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.bindFlag(f); err != nil {
			panic(fmt.Sprintf("viperutil: binding flag %s to %s: %v", name, v.Key(), err))
		}
	}
}

// GetFuncForType returns the viper getter for T. It panics for types that
// need an explicit Options.GetFunc.
func GetFuncForType[T any]() func(v *viper.Viper) func(key string) T {
	var (
		zero T
		f    any
	)
	switch any(zero).(type) {
	case bool:
		f = func(v *viper.Viper) func(string) bool { return v.GetBool }
	case int:
		f = func(v *viper.Viper) func(string) int { return v.GetInt }
	case int64:
		f = func(v *viper.Viper) func(string) int64 { return v.GetInt64 }
	case uint64:
		f = func(v *viper.Viper) func(string) uint64 { return v.GetUint64 }
	case float64:
		f = func(v *viper.Viper) func(string) float64 { return v.GetFloat64 }
	case string:
		f = func(v *viper.Viper) func(string) string { return v.GetString }
	case []string:
		f = func(v *viper.Viper) func(string) []string { return v.GetStringSlice }
	case time.Duration:
		f = func(v *viper.Viper) func(string) time.Duration { return v.GetDuration }
	default:
		panic(fmt.Sprintf("viperutil: no getter for %T; set Options.GetFunc", zero))
	}
	return f.(func(v *viper.Viper) func(key string) T)
}
