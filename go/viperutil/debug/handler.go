// Copyright 2023 The Vitess Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Modifications Copyright 2025 Supabase, Inc.

package debug

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/multigres/logsafety/go/viperutil"
)

// Config is the document rendered by HandlerFunc.
type Config struct {
	ConfigFile string            `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Flags      map[string]string `json:"command_line_flags" yaml:"command_line_flags"`
	Settings   map[string]any    `json:"viper_config" yaml:"viper_config"`
}

// Snapshot collects the flags changed on fs and every value of reg.
func Snapshot(reg *viperutil.Registry, fs *pflag.FlagSet) Config {
	v := reg.Combined()
	c := Config{
		ConfigFile: v.ConfigFileUsed(),
		Flags:      make(map[string]string),
		Settings:   v.AllSettings(),
	}
	if fs != nil {
		fs.VisitAll(func(flag *pflag.Flag) {
			if flag.Changed {
				c.Flags[flag.Name] = flag.Value.String()
			}
		})
	}
	return c
}

// HandlerFunc returns an http.HandlerFunc that renders the combined config
// registry (both static and dynamic) for debugging purposes.
//
// Example requests:
//   - GET /debug/config
//   - GET /debug/config?format=yaml
//   - GET /debug/config?format=text
func HandlerFunc(reg *viperutil.Registry, fs *pflag.FlagSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := Snapshot(reg, fs)
		switch format := strings.ToLower(r.URL.Query().Get("format")); format {
		case "", "json":
			w.Header().Set("Content-Type", "application/json")
			encoder := json.NewEncoder(w)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(c); err != nil {
				http.Error(w, fmt.Sprintf("failed to encode JSON: %v", err), http.StatusInternalServerError)
			}
		case "yaml":
			w.Header().Set("Content-Type", "application/yaml")
			if err := yaml.NewEncoder(w).Encode(c); err != nil {
				http.Error(w, fmt.Sprintf("failed to encode YAML: %v", err), http.StatusInternalServerError)
			}
		case "text":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			writeText(w, c)
		default:
			http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		}
	}
}

func writeText(w http.ResponseWriter, c Config) {
	if c.ConfigFile != "" {
		fmt.Fprintf(w, "config file: %s\n", c.ConfigFile)
	}
	names := make([]string, 0, len(c.Flags))
	for name := range c.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "--%s=%s\n", name, c.Flags[name])
	}

	keys := make([]string, 0, len(c.Settings))
	for k := range c.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, c.Settings[k])
	}
}
