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

// logsafety answers whether taking storage shards or sequencers out of
// service would cost a log cluster write availability, read availability,
// rebuilding progress, or capacity.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/multigres/logsafety/go/cmd/logsafety/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	lc := command.New()
	err := lc.RootCommand().ExecuteContext(ctx)
	lc.Close()
	stop()

	switch {
	case err == nil:
	case errors.Is(err, command.ErrUnsafe):
		os.Exit(command.ExitUnsafe)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
