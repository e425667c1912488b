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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/bolt-rt/bolt/pkg/bolt"
)

// analyzeFirewallCommand implements subcommands.Command for
// "analyze-firewall".
type analyzeFirewallCommand struct{}

func (*analyzeFirewallCommand) Name() string     { return "analyze-firewall" }
func (*analyzeFirewallCommand) Synopsis() string { return "scan for dangerous rules, port conflicts, and duplicates" }
func (*analyzeFirewallCommand) Usage() string {
	return "analyze-firewall - scan for dangerous rules, port conflicts, and duplicates\n"
}
func (*analyzeFirewallCommand) SetFlags(*flag.FlagSet) {}

func (*analyzeFirewallCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	rt := bolt.New()
	report, err := rt.AnalyzeDockerFirewall(ctx)
	if err != nil {
		fmt.Println("analysis failed:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("dangerous=%d port_issues=%d duplicate_groups=%d stale_interfaces=%d\n",
		len(report.Dangerous), len(report.PortIssues), len(report.Duplicates), len(report.StaleInterfaces))
	return subcommands.ExitSuccess
}

// remediateFirewallCommand implements subcommands.Command for
// "remediate-firewall".
type remediateFirewallCommand struct {
	dryRun bool
}

func (*remediateFirewallCommand) Name() string { return "remediate-firewall" }
func (*remediateFirewallCommand) Synopsis() string {
	return "install the restrictive Docker-remediation rule set"
}
func (*remediateFirewallCommand) Usage() string {
	return "remediate-firewall [-dry-run] - install the restrictive Docker-remediation rule set\n"
}
func (r *remediateFirewallCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.dryRun, "dry-run", false, "render the change without applying it")
}

func (r *remediateFirewallCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	rt := bolt.New()
	report, err := rt.RemediateDockerFirewall(ctx, r.dryRun)
	if err != nil {
		fmt.Println("remediation failed:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("dry_run=%v rules_removed=%d rules_added=%d\n", report.DryRun, len(report.RulesRemoved), len(report.RulesAdded))
	return subcommands.ExitSuccess
}

// resolvePortConflictsCommand implements subcommands.Command for
// "resolve-port-conflicts".
type resolvePortConflictsCommand struct{}

func (*resolvePortConflictsCommand) Name() string { return "resolve-port-conflicts" }
func (*resolvePortConflictsCommand) Synopsis() string {
	return "relocate Bolt allocations that collide with a host or Docker listener"
}
func (*resolvePortConflictsCommand) Usage() string {
	return "resolve-port-conflicts - relocate colliding port allocations and rewrite their rules\n"
}
func (*resolvePortConflictsCommand) SetFlags(*flag.FlagSet) {}

func (*resolvePortConflictsCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	rt := bolt.New()
	relocations, err := rt.ResolvePortConflicts(ctx)
	if err != nil {
		fmt.Println("port conflict resolution failed:", err)
		return subcommands.ExitFailure
	}
	for _, reloc := range relocations {
		fmt.Printf("%s/%d -> %d\n", reloc.Protocol, reloc.OldPort, reloc.NewPort)
	}
	fmt.Printf("relocated=%d\n", len(relocations))
	return subcommands.ExitSuccess
}

// migrateNFTablesCommand implements subcommands.Command for
// "migrate-nftables".
type migrateNFTablesCommand struct {
	render bool
}

func (*migrateNFTablesCommand) Name() string     { return "migrate-nftables" }
func (*migrateNFTablesCommand) Synopsis() string { return "translate the current model to nftables" }
func (*migrateNFTablesCommand) Usage() string {
	return "migrate-nftables [-render] - translate the current model to nftables\n"
}
func (m *migrateNFTablesCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.render, "render", false, "print the textual nft(8) config instead of installing it")
}

func (m *migrateNFTablesCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	rt := bolt.New()
	if m.render {
		fmt.Print(rt.RenderNFTablesConfig())
		return subcommands.ExitSuccess
	}
	if err := rt.MigrateToNFTables(); err != nil {
		fmt.Println("migration failed:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
