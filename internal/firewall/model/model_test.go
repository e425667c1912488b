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

package model

import (
	"testing"
	"time"
)

func TestAddRuleRejectsInvalidChain(t *testing.T) {
	m := New()
	_, err := m.AddRule(Rule{Table: TableFilter, Chain: "NOT-A-CHAIN", Target: "ACCEPT"})
	if err == nil {
		t.Fatal("expected an error for an invalid table/chain pairing")
	}
}

func TestAddRuleRejectsDuplicateID(t *testing.T) {
	m := New()
	r, err := m.AddRule(Rule{ID: "dup", Table: TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "dup" {
		t.Fatalf("expected preserved ID, got %q", r.ID)
	}
	if _, err := m.AddRule(Rule{ID: "dup", Table: TableFilter, Chain: "BOLT-INPUT", Target: "DROP"}); err == nil {
		t.Fatal("expected duplicate ID to be rejected")
	}
}

func TestChainOrderingByPriorityThenInsertionThenID(t *testing.T) {
	m := New()
	low, _ := m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-INPUT", Priority: 100, Target: "A"})
	high, _ := m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-INPUT", Priority: 200, Target: "B"})
	sameAsLow, _ := m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-INPUT", Priority: 100, Target: "C"})

	rules := m.ChainRules(TableFilter, "BOLT-INPUT")
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	if rules[0].ID != high.ID {
		t.Errorf("expected highest priority rule first, got %+v", rules[0])
	}
	if rules[1].ID != low.ID || rules[2].ID != sameAsLow.ID {
		t.Errorf("expected equal-priority rules in insertion order, got [%s, %s]", rules[1].ID, rules[2].ID)
	}
}

func TestRemoveRule(t *testing.T) {
	m := New()
	r, _ := m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT"})
	m.RemoveRule(r.ID)
	if _, ok := m.Rule(r.ID); ok {
		t.Fatal("rule should be gone after RemoveRule")
	}
	if rules := m.ChainRules(TableFilter, "BOLT-INPUT"); len(rules) != 0 {
		t.Fatalf("expected empty chain, got %d rules", len(rules))
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := New()
	m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Priority: 10})
	m.AddRule(Rule{Table: TableNAT, Chain: "BOLT-PREROUTING", Target: "DNAT", Priority: 20})

	backup := m.Snapshot("pre-mutate", time.Unix(0, 0))

	m.AddRule(Rule{Table: TableFilter, Chain: "BOLT-OUTPUT", Target: "DROP"})
	if len(m.AllRules()) != 3 {
		t.Fatalf("expected 3 rules before restore, got %d", len(m.AllRules()))
	}

	m.Restore(backup)
	if len(m.AllRules()) != 2 {
		t.Fatalf("expected 2 rules after restore, got %d", len(m.AllRules()))
	}
}
