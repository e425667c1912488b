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

// Package model is the in-memory mirror of the host's packet-filter state:
// partitioned by table and chain, mutable offline, never itself touching
// the kernel. internal/firewall/apply is the only component that writes
// host state from a Model.
package model

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bolt-rt/bolt/internal/bolterr"
)

// Table is a packet-filter table.
type Table string

const (
	TableFilter   Table = "filter"
	TableNAT      Table = "nat"
	TableMangle   Table = "mangle"
	TableRaw      Table = "raw"
	TableSecurity Table = "security"
)

// validChains lists, per table, the chains Bolt recognizes: the table's
// built-in chains plus Bolt's own custom chains and, in filter, DOCKER-USER.
var validChains = map[Table]map[string]bool{
	TableFilter: {
		"INPUT": true, "OUTPUT": true, "FORWARD": true,
		"BOLT-INPUT": true, "BOLT-OUTPUT": true, "BOLT-FORWARD": true,
		"DOCKER-USER": true,
	},
	TableNAT: {
		"PREROUTING": true, "POSTROUTING": true, "OUTPUT": true,
		"BOLT-PREROUTING": true, "BOLT-POSTROUTING": true,
	},
	TableMangle:   {"PREROUTING": true, "INPUT": true, "FORWARD": true, "OUTPUT": true, "POSTROUTING": true},
	TableRaw:      {"PREROUTING": true, "OUTPUT": true},
	TableSecurity: {"INPUT": true, "OUTPUT": true, "FORWARD": true},
}

// ValidChain reports whether chain belongs to table.
func ValidChain(table Table, chain string) bool {
	chains, ok := validChains[table]
	if !ok {
		return false
	}
	return chains[chain]
}

// Creator tags who produced a rule.
type Creator string

const (
	CreatorBolt      Creator = "bolt"
	CreatorDocker    Creator = "docker"
	CreatorUser      Creator = "user"
	CreatorSystem    Creator = "system"
	CreatorMigration Creator = "migration"
)

// Rule is one packet-filter rule.
type Rule struct {
	ID          string
	Table       Table
	Chain       string
	Target      string
	Protocol    string
	Source      string
	Destination string
	SPort       string
	DPort       string
	IfaceIn     string
	IfaceOut    string
	State       string
	// ToDestination is a DNAT/SNAT target's "ip[:port]", rendered as
	// --to-destination. Only meaningful when Target is "DNAT" or "SNAT".
	ToDestination string
	Comment       string
	Priority      uint32
	Enabled       bool
	Creator       Creator
	// insertionSeq breaks ties between rules with equal Priority, in
	// insertion order, per the rule-ordering invariant; ID is the final
	// tiebreak. Restore re-inserts rules through AddRule, so restored rules
	// get fresh sequence numbers in the order the backup lists them.
	insertionSeq uint64
}

// Policy is a chain's default verdict.
type Policy string

const (
	PolicyAccept Policy = "ACCEPT"
	PolicyDrop   Policy = "DROP"
	PolicyReject Policy = "REJECT"
)

// Chain is one table+chain pair and its ordered rule membership.
type Chain struct {
	Name    string
	Table   Table
	Policy  Policy
	RuleIDs []string
}

// Model is the full in-memory mirror, guarded by an RWMutex: reads (probes,
// conflict scans) take the read lock, mutations and applies take the write
// lock exclusively.
type Model struct {
	mu      sync.RWMutex
	rules   map[string]*Rule
	chains  map[chainKey]*Chain
	nextSeq uint64
}

type chainKey struct {
	table Table
	name  string
}

// New returns an empty Model.
func New() *Model {
	return &Model{
		rules:  make(map[string]*Rule),
		chains: make(map[chainKey]*Chain),
	}
}

// EnsureChain registers chain (idempotently) with the given default policy.
func (m *Model) EnsureChain(table Table, name string, policy Policy) *Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chainKey{table, name}
	if c, ok := m.chains[key]; ok {
		return c
	}
	c := &Chain{Name: name, Table: table, Policy: policy}
	m.chains[key] = c
	return c
}

// AddRule assigns r a fresh ID if empty, validates table/chain, and inserts
// it into chain order (priority, then insertion order, then ID).
func (m *Model) AddRule(r Rule) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ValidChain(r.Table, r.Chain) {
		return Rule{}, bolterr.Wrap(bolterr.KindInvalidSpec, "rule chain "+r.Chain+" does not belong to table "+string(r.Table), nil)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := m.rules[r.ID]; exists {
		return Rule{}, bolterr.Wrap(bolterr.KindInvalidSpec, "duplicate rule id "+r.ID, nil)
	}

	m.nextSeq++
	r.insertionSeq = m.nextSeq
	stored := r
	m.rules[r.ID] = &stored

	key := chainKey{r.Table, r.Chain}
	c, ok := m.chains[key]
	if !ok {
		c = &Chain{Name: r.Chain, Table: r.Table, Policy: PolicyAccept}
		m.chains[key] = c
	}
	c.RuleIDs = append(c.RuleIDs, r.ID)
	m.sortChainLocked(c)

	return stripSeq(stored), nil
}

// RemoveRule deletes the rule with the given id, if present.
func (m *Model) RemoveRule(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return
	}
	delete(m.rules, id)
	key := chainKey{r.Table, r.Chain}
	c, ok := m.chains[key]
	if !ok {
		return
	}
	for i, rid := range c.RuleIDs {
		if rid == id {
			c.RuleIDs = append(c.RuleIDs[:i], c.RuleIDs[i+1:]...)
			break
		}
	}
}

// ReplaceRule atomically removes old and inserts replacement under the
// same lock, so no intermediate state is observable to a concurrent reader.
func (m *Model) ReplaceRule(oldID string, replacement Rule) (Rule, error) {
	m.mu.Lock()
	r, ok := m.rules[oldID]
	if ok {
		delete(m.rules, oldID)
		key := chainKey{r.Table, r.Chain}
		if c, ok := m.chains[key]; ok {
			for i, rid := range c.RuleIDs {
				if rid == oldID {
					c.RuleIDs = append(c.RuleIDs[:i], c.RuleIDs[i+1:]...)
					break
				}
			}
		}
	}
	m.mu.Unlock()
	return m.AddRule(replacement)
}

// Rule returns a copy of the rule with the given id.
func (m *Model) Rule(id string) (Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return Rule{}, false
	}
	return stripSeq(*r), true
}

// ChainRules returns the rules of table/chain in evaluation order.
func (m *Model) ChainRules(table Table, chain string) []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chains[chainKey{table, chain}]
	if !ok {
		return nil
	}
	out := make([]Rule, 0, len(c.RuleIDs))
	for _, id := range c.RuleIDs {
		if r, ok := m.rules[id]; ok {
			out = append(out, stripSeq(*r))
		}
	}
	return out
}

// AllRules returns every rule across every table/chain, in no particular
// order (callers that need evaluation order should use ChainRules
// instead).
func (m *Model) AllRules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, stripSeq(*r))
	}
	return out
}

// Chains returns every registered chain.
func (m *Model) Chains() []Chain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chain, 0, len(m.chains))
	for _, c := range m.chains {
		cp := *c
		cp.RuleIDs = append([]string(nil), c.RuleIDs...)
		out = append(out, cp)
	}
	return out
}

func (m *Model) sortChainLocked(c *Chain) {
	sort.SliceStable(c.RuleIDs, func(i, j int) bool {
		a, b := m.rules[c.RuleIDs[i]], m.rules[c.RuleIDs[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.insertionSeq != b.insertionSeq {
			return a.insertionSeq < b.insertionSeq
		}
		return a.ID < b.ID
	})
}

func stripSeq(r Rule) Rule {
	r.insertionSeq = 0
	return r
}
