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

// Package apply renders a firewall model into an iptables-restore blob and
// submits it to the kernel as a single atomic operation, backing up the
// prior state first so a failed restore can always be undone.
package apply

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// managedTables are the tables Bolt fully owns and therefore fully
// replaces on every apply.
var managedTables = []model.Table{model.TableFilter, model.TableNAT}

// RenderBlob produces an iptables-restore-style text blob for every
// managed table in m: chain declarations (built-ins and Bolt's own),
// then "-A" rules in chain+priority order, each table terminated by
// COMMIT.
func RenderBlob(m *model.Model) string {
	var b strings.Builder
	for _, table := range managedTables {
		renderTable(&b, m, table)
	}
	return b.String()
}

func renderTable(b *strings.Builder, m *model.Model, table model.Table) {
	fmt.Fprintf(b, "*%s\n", table)

	chains := m.Chains()
	var tableChains []model.Chain
	for _, c := range chains {
		if c.Table == table {
			tableChains = append(tableChains, c)
		}
	}
	// Model.Chains ranges a map; sort by name so the rendered blob is
	// byte-identical across calls with identical rule state.
	sort.Slice(tableChains, func(i, j int) bool { return tableChains[i].Name < tableChains[j].Name })

	for _, c := range tableChains {
		if !isBuiltinChain(c.Name) {
			// Custom chains (Bolt's own) always declare as user-defined;
			// their default verdict is irrelevant since every packet
			// either matches a rule or falls through to the jump point's
			// own chain policy.
			fmt.Fprintf(b, ":%s - [0:0]\n", c.Name)
			continue
		}
		policy := "ACCEPT"
		switch c.Policy {
		case model.PolicyDrop, model.PolicyReject:
			// iptables-restore chain policy only supports ACCEPT/DROP.
			policy = "DROP"
		}
		fmt.Fprintf(b, ":%s %s [0:0]\n", c.Name, policy)
	}

	for _, c := range tableChains {
		for _, r := range m.ChainRules(table, c.Name) {
			if !r.Enabled {
				continue
			}
			fmt.Fprintln(b, renderRule(r))
		}
	}

	b.WriteString("COMMIT\n")
}

func isBuiltinChain(name string) bool {
	switch name {
	case "INPUT", "OUTPUT", "FORWARD", "PREROUTING", "POSTROUTING":
		return true
	default:
		return false
	}
}

// renderRule formats r as an iptables-restore "-A chain ..." line.
func renderRule(r model.Rule) string {
	var parts []string
	parts = append(parts, "-A", r.Chain)
	if r.Protocol != "" {
		parts = append(parts, "-p", r.Protocol)
	}
	if r.Source != "" {
		parts = append(parts, "-s", r.Source)
	}
	if r.Destination != "" {
		parts = append(parts, "-d", r.Destination)
	}
	if r.IfaceIn != "" {
		parts = append(parts, "-i", r.IfaceIn)
	}
	if r.IfaceOut != "" {
		parts = append(parts, "-o", r.IfaceOut)
	}
	if r.SPort != "" {
		parts = append(parts, "--sport", r.SPort)
	}
	if r.DPort != "" {
		parts = append(parts, "--dport", r.DPort)
	}
	if r.State != "" {
		parts = append(parts, "-m", "state", "--state", r.State)
	}
	if r.Comment != "" {
		parts = append(parts, "-m", "comment", "--comment", fmt.Sprintf("%q", r.Comment))
	}
	if r.Target != "" {
		parts = append(parts, "-j", r.Target)
	}
	if r.ToDestination != "" {
		parts = append(parts, "--to-destination", r.ToDestination)
	}
	return strings.Join(parts, " ")
}
