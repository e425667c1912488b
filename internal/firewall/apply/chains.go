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

package apply

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// boltChain describes one of Bolt's own chains and the built-in chain its
// jump rule belongs on.
type boltChain struct {
	table      model.Table
	name       string
	policy     model.Policy
	jumpChain  string // built-in chain the jump rule is inserted into
	jumpAtHead bool   // true: insert at position 1, ahead of any existing rule
}

// boltChains is the fixed set of chains Bolt owns, per spec.md §4.G.
var boltChains = []boltChain{
	{table: model.TableFilter, name: "BOLT-INPUT", policy: model.PolicyDrop, jumpChain: "INPUT", jumpAtHead: true},
	{table: model.TableFilter, name: "BOLT-OUTPUT", policy: model.PolicyAccept, jumpChain: "OUTPUT", jumpAtHead: true},
	{table: model.TableFilter, name: "BOLT-FORWARD", policy: model.PolicyDrop, jumpChain: "FORWARD", jumpAtHead: true},
	{table: model.TableNAT, name: "BOLT-PREROUTING", policy: model.PolicyAccept, jumpChain: "PREROUTING", jumpAtHead: true},
	{table: model.TableNAT, name: "BOLT-POSTROUTING", policy: model.PolicyAccept, jumpChain: "POSTROUTING", jumpAtHead: true},
}

// IPTables is the subset of *iptables.IPTables this package depends on, so
// tests can substitute a fake without touching the host's netfilter tables.
type IPTables interface {
	NewChain(table, chain string) error
	ChainExists(table, chain string) (bool, error)
	ClearChain(table, chain string) error
	Exists(table, chain string, rulespec ...string) (bool, error)
	Insert(table, chain string, pos int, rulespec ...string) error
	AppendUnique(table, chain string, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

// newIPTables constructs the real go-iptables client.
func newIPTables() (IPTables, error) {
	return iptables.New()
}

// BootstrapChains idempotently creates every Bolt-owned chain (if it does
// not already exist) and makes sure each built-in chain jumps to it. It
// never clears an existing Bolt chain's rules — Apply (via RenderBlob) is
// what keeps rule contents in sync; this only guarantees chain existence
// and wiring, so calling it repeatedly is always safe.
func BootstrapChains(ipt IPTables) error {
	for _, bc := range boltChains {
		exists, err := ipt.ChainExists(string(bc.table), bc.name)
		if err != nil {
			return fmt.Errorf("checking chain %s/%s: %w", bc.table, bc.name, err)
		}
		if !exists {
			if err := ipt.NewChain(string(bc.table), bc.name); err != nil {
				return fmt.Errorf("creating chain %s/%s: %w", bc.table, bc.name, err)
			}
		}

		jumpSpec := []string{"-j", bc.name}
		alreadyJumped, err := ipt.Exists(string(bc.table), bc.jumpChain, jumpSpec...)
		if err != nil {
			return fmt.Errorf("checking jump %s/%s -> %s: %w", bc.table, bc.jumpChain, bc.name, err)
		}
		if !alreadyJumped {
			if bc.jumpAtHead {
				err = ipt.Insert(string(bc.table), bc.jumpChain, 1, jumpSpec...)
			} else {
				err = ipt.AppendUnique(string(bc.table), bc.jumpChain, jumpSpec...)
			}
			if err != nil {
				return fmt.Errorf("wiring jump %s/%s -> %s: %w", bc.table, bc.jumpChain, bc.name, err)
			}
		}
	}
	return nil
}

// dockerRemediationRules returns the restrictive rule set spec.md §4.G
// prescribes for BOLT-FORWARD once a dangerous Docker ACCEPT-from-anywhere
// rule has been flagged: allow established/related traffic and the RFC1918
// ranges, drop everything else.
func dockerRemediationRules() []model.Rule {
	const base = uint32(500)
	return []model.Rule{
		{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT", State: "ESTABLISHED,RELATED", Priority: base + 30, Creator: model.CreatorBolt, Enabled: true, Comment: "docker-remediation: established/related"},
		{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT", Source: "10.0.0.0/8", Priority: base + 20, Creator: model.CreatorBolt, Enabled: true, Comment: "docker-remediation: rfc1918"},
		{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT", Source: "172.16.0.0/12", Priority: base + 20, Creator: model.CreatorBolt, Enabled: true, Comment: "docker-remediation: rfc1918"},
		{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT", Source: "192.168.0.0/16", Priority: base + 20, Creator: model.CreatorBolt, Enabled: true, Comment: "docker-remediation: rfc1918"},
		{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "DROP", Priority: base, Creator: model.CreatorBolt, Enabled: true, Comment: "docker-remediation: default deny"},
	}
}

// RemediateDockerFirewall returns the restrictive BOLT-FORWARD rule set
// from dockerRemediationRules. It does not touch a Model; the caller adds
// the returned rules via m.AddRule before Apply renders the new blob.
func RemediateDockerFirewall() []model.Rule {
	return dockerRemediationRules()
}
