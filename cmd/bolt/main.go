// Copyright 2024 The Bolt Authors.
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

// Command bolt is a thin CLI shell over pkg/bolt.Runtime. Full CLI
// dispatch, argument parsing conventions, and the Compose→Boltfile
// translator are out of scope (spec.md §1 Non-goals) and belong to an
// external front end; this binary exists only so the core's API surface
// is reachable from a shell for manual probing during development.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/bolt-rt/bolt/internal/boltlog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&probeDriverCommand{}, "")
	subcommands.Register(&planBindingCommand{}, "")
	subcommands.Register(&analyzeFirewallCommand{}, "")
	subcommands.Register(&remediateFirewallCommand{}, "")
	subcommands.Register(&resolvePortConflictsCommand{}, "")
	subcommands.Register(&migrateNFTablesCommand{}, "")

	boltlog.SetLevel(logLevelFromEnv())

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
