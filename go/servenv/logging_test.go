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

package servenv

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/viperutil"
)

// newTestLogger returns a Logger writing to buffers and restores the slog
// default afterwards.
func newTestLogger(t *testing.T, args ...string) (*Logger, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	lg := NewLogger(viperutil.NewRegistry())
	var stdout, stderr bytes.Buffer
	lg.stdout, lg.stderr = &stdout, &stderr

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	lg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return lg, &stdout, &stderr
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantLevel  slog.Level
		wantStdout bool
		wantJSON   bool
	}{
		{
			name:      "defaults",
			wantLevel: slog.LevelInfo,
		},
		{
			name:       "json on stdout",
			args:       []string{"--log-format=json", "--log-output=stdout", "--log-level=debug"},
			wantLevel:  slog.LevelDebug,
			wantStdout: true,
			wantJSON:   true,
		},
		{
			name:      "unknown values fall back",
			args:      []string{"--log-format=xml", "--log-level=loud"},
			wantLevel: slog.LevelInfo,
		},
		{
			name:      "upper case level",
			args:      []string{"--log-level=ERROR"},
			wantLevel: slog.LevelError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, stdout, stderr := newTestLogger(t, tt.args...)
			l := lg.SetupLogging()
			assert.Equal(t, tt.wantLevel, lg.GetLogLevel())
			assert.Same(t, l, slog.Default())

			l.Error("boom", "log", 7)
			out, quiet := stderr, stdout
			if tt.wantStdout {
				out, quiet = stdout, stderr
			}
			assert.Empty(t, quiet.String())
			assert.Contains(t, out.String(), "boom")
			if tt.wantJSON {
				var last map[string]any
				lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
				require.NoError(t, json.Unmarshal(lines[len(lines)-1], &last))
				assert.Equal(t, "boom", last["msg"])
				assert.EqualValues(t, 7, last["log"])
			}
		})
	}
}

func TestSetupLoggingOnce(t *testing.T) {
	lg, _, _ := newTestLogger(t)
	var setups int
	lg.OnLoggingSetup(func(*slog.Logger) { setups++ })

	first := lg.SetupLogging()
	second := lg.SetupLogging()
	assert.Same(t, first, second)
	assert.Same(t, first, lg.GetLogger())
	assert.Equal(t, 1, setups)
}

func TestGetLoggerBeforeSetup(t *testing.T) {
	lg, _, _ := newTestLogger(t)
	assert.Same(t, slog.Default(), lg.GetLogger())
}

func TestLogFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logsafety.log")
	lg, stdout, stderr := newTestLogger(t, "--log-output="+path)
	lg.SetupLogging().Warn("written to file")
	require.NoError(t, lg.Close())
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestUnwritableLogFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "logsafety.log")
	lg, _, stderr := newTestLogger(t, "--log-output="+path)
	lg.SetupLogging().Warn("fallback")
	assert.Contains(t, stderr.String(), "fallback")
}

func TestReloadLevel(t *testing.T) {
	lg, _, stderr := newTestLogger(t)
	var changes []slog.Level
	lg.OnLoggingChange(func(*slog.Logger) { changes = append(changes, lg.GetLogLevel()) })

	l := lg.SetupLogging()
	l.Debug("hidden")
	assert.NotContains(t, stderr.String(), "hidden")

	lg.logLevel.Set("debug")
	lg.ReloadLevel()
	lg.ReloadLevel()
	l.Debug("shown")
	assert.Contains(t, stderr.String(), "shown")
	assert.Equal(t, []slog.Level{slog.LevelDebug}, changes)
}

// tagHandler adds a fixed attribute to every record.
type tagHandler struct {
	slog.Handler
	tag string
}

func (h tagHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("tag", h.tag))
	return h.Handler.Handle(ctx, r)
}

func TestWrapHandler(t *testing.T) {
	lg, _, stderr := newTestLogger(t, "--log-format=json")
	lg.WrapHandler(func(h slog.Handler) slog.Handler { return tagHandler{Handler: h, tag: "inner"} })
	lg.WrapHandler(func(h slog.Handler) slog.Handler { return tagHandler{Handler: h, tag: "outer"} })

	lg.SetupLogging().Info("wrapped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &rec))
	assert.Equal(t, "wrapped", rec["msg"])
	// Both wrappers ran; the inner one added its attribute last.
	assert.Equal(t, "inner", rec["tag"])
}
