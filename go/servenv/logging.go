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

// Package servenv holds the process environment shared by the logsafety
// commands: structured logging configured through flags, environment and
// the config file.
package servenv

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/multigres/logsafety/go/viperutil"
)

type Logger struct {
	// Logging configuration values
	logLevel  viperutil.Value[string]
	logFormat viperutil.Value[string]
	logOutput viperutil.Value[string]

	stdout io.Writer
	stderr io.Writer

	// level backs the handler; ReloadLevel updates it in place.
	level slog.LevelVar

	loggerOnce sync.Once
	loggerMu   sync.Mutex
	logger     *slog.Logger
	file       *os.File

	hooksMu            sync.Mutex
	loggingSetupHooks  []func(*slog.Logger)
	loggingChangeHooks []func(*slog.Logger)
	handlerWrappers    []func(slog.Handler) slog.Handler
}

func NewLogger(reg *viperutil.Registry) *Logger {
	return &Logger{
		logLevel: viperutil.Configure(reg, "log-level", viperutil.Options[string]{
			Default:  "info",
			FlagName: "log-level",
			EnvVars:  []string{"LS_LOG_LEVEL"},
			Dynamic:  true,
		}),
		logFormat: viperutil.Configure(reg, "log-format", viperutil.Options[string]{
			Default:  "text",
			FlagName: "log-format",
			EnvVars:  []string{"LS_LOG_FORMAT"},
		}),
		logOutput: viperutil.Configure(reg, "log-output", viperutil.Options[string]{
			Default:  "stderr",
			FlagName: "log-output",
			EnvVars:  []string{"LS_LOG_OUTPUT"},
		}),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// RegisterFlags registers logging-related command line flags.
// This must be called before the flags are parsed.
func (lg *Logger) RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", lg.logLevel.Default(), "Log level (debug, info, warn, error)")
	fs.String("log-format", lg.logFormat.Default(), "Log format (json, text)")
	fs.String("log-output", lg.logOutput.Default(), "Log output (stdout, stderr, or file path)")
	viperutil.BindFlags(fs, lg.logLevel, lg.logFormat, lg.logOutput)
}

// OnLoggingSetup registers a callback run once the logger is created.
func (lg *Logger) OnLoggingSetup(f func(*slog.Logger)) {
	lg.hooksMu.Lock()
	defer lg.hooksMu.Unlock()
	lg.loggingSetupHooks = append(lg.loggingSetupHooks, f)
}

// OnLoggingChange registers a callback run after the log level is reloaded.
func (lg *Logger) OnLoggingChange(f func(*slog.Logger)) {
	lg.hooksMu.Lock()
	defer lg.hooksMu.Unlock()
	lg.loggingChangeHooks = append(lg.loggingChangeHooks, f)
}

// WrapHandler registers a decorator applied to the handler built by
// SetupLogging. It has no effect once logging is set up.
func (lg *Logger) WrapHandler(f func(slog.Handler) slog.Handler) {
	lg.hooksMu.Lock()
	defer lg.hooksMu.Unlock()
	lg.handlerWrappers = append(lg.handlerWrappers, f)
}

// SetupLogging builds the logger from the configured values and installs it
// as the slog default. Only the first call has an effect. Unknown levels
// fall back to info, unknown formats to text, and unwritable files to
// stderr.
func (lg *Logger) SetupLogging() *slog.Logger {
	lg.loggerOnce.Do(func() {
		lg.level.Set(parseLevel(lg.logLevel.Get()))

		output := lg.openOutput(lg.logOutput.Get())
		opts := &slog.HandlerOptions{Level: &lg.level}
		var handler slog.Handler
		switch strings.ToLower(lg.logFormat.Get()) {
		case "json":
			handler = slog.NewJSONHandler(output, opts)
		default:
			handler = slog.NewTextHandler(output, opts)
		}
		lg.hooksMu.Lock()
		for _, wrap := range lg.handlerWrappers {
			handler = wrap(handler)
		}
		lg.hooksMu.Unlock()

		newLogger := slog.New(handler)
		slog.SetDefault(newLogger)

		lg.loggerMu.Lock()
		lg.logger = newLogger
		lg.loggerMu.Unlock()

		lg.fireHooks(newLogger, true)

		newLogger.Debug("logging initialized",
			"level", lg.level.Level().String(),
			"format", lg.logFormat.Get(),
			"output", lg.logOutput.Get(),
		)
	})
	return lg.GetLogger()
}

func (lg *Logger) openOutput(dest string) io.Writer {
	switch strings.ToLower(dest) {
	case "stdout":
		return lg.stdout
	case "", "stderr":
		return lg.stderr
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return lg.stderr
	}
	lg.file = file
	return file
}

// GetLogger returns the configured logger, or slog.Default() before
// SetupLogging.
func (lg *Logger) GetLogger() *slog.Logger {
	lg.loggerMu.Lock()
	defer lg.loggerMu.Unlock()
	if lg.logger == nil {
		return slog.Default()
	}
	return lg.logger
}

// GetLogLevel returns the level currently in effect.
func (lg *Logger) GetLogLevel() slog.Level {
	return lg.level.Level()
}

// ReloadLevel re-reads the log level and runs the change hooks if it
// differs from the level in effect.
func (lg *Logger) ReloadLevel() {
	level := parseLevel(lg.logLevel.Get())
	if level == lg.level.Level() {
		return
	}
	lg.level.Set(level)
	l := lg.GetLogger()
	l.Info("log level changed", "level", level.String())
	lg.fireHooks(l, false)
}

// FollowConfig reloads the log level on every config file change until ctx
// is done.
func (lg *Logger) FollowConfig(ctx context.Context, reg *viperutil.Registry) {
	ch := make(chan struct{}, 1)
	viperutil.NotifyConfigReload(reg, ch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				lg.ReloadLevel()
			}
		}
	}()
}

// Close releases the log file, if any.
func (lg *Logger) Close() error {
	lg.loggerMu.Lock()
	defer lg.loggerMu.Unlock()
	if lg.file == nil {
		return nil
	}
	err := lg.file.Close()
	lg.file = nil
	return err
}

func (lg *Logger) fireHooks(l *slog.Logger, setup bool) {
	lg.hooksMu.Lock()
	hooks := lg.loggingChangeHooks
	if setup {
		hooks = lg.loggingSetupHooks
	}
	hooks = append(([]func(*slog.Logger))(nil), hooks...)
	lg.hooksMu.Unlock()

	for _, hook := range hooks {
		hook(l)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
