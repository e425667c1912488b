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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/firewall/model"
)

type fakeIPTables struct {
	chains map[string]bool
	jumps  map[string]bool
}

func newFakeIPTables() *fakeIPTables {
	return &fakeIPTables{chains: map[string]bool{}, jumps: map[string]bool{}}
}

func key(table, chain string) string { return table + "/" + chain }

func (f *fakeIPTables) NewChain(table, chain string) error {
	f.chains[key(table, chain)] = true
	return nil
}
func (f *fakeIPTables) ChainExists(table, chain string) (bool, error) {
	return f.chains[key(table, chain)], nil
}
func (f *fakeIPTables) ClearChain(table, chain string) error { return nil }
func (f *fakeIPTables) Exists(table, chain string, rulespec ...string) (bool, error) {
	return f.jumps[key(table, chain)+"|"+strings.Join(rulespec, " ")], nil
}
func (f *fakeIPTables) Insert(table, chain string, pos int, rulespec ...string) error {
	f.jumps[key(table, chain)+"|"+strings.Join(rulespec, " ")] = true
	return nil
}
func (f *fakeIPTables) AppendUnique(table, chain string, rulespec ...string) error {
	f.jumps[key(table, chain)+"|"+strings.Join(rulespec, " ")] = true
	return nil
}
func (f *fakeIPTables) Delete(table, chain string, rulespec ...string) error {
	delete(f.jumps, key(table, chain)+"|"+strings.Join(rulespec, " "))
	return nil
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func newTestApplier(run restoreRunner) *Applier {
	return &Applier{
		run:        run,
		newIPT:     func() (IPTables, error) { return newFakeIPTables(), nil },
		now:        fixedNow,
		maxBackups: 30,
	}
}

func TestBootstrapChainsIsIdempotent(t *testing.T) {
	ipt := newFakeIPTables()
	if err := BootstrapChains(ipt); err != nil {
		t.Fatal(err)
	}
	if err := BootstrapChains(ipt); err != nil {
		t.Fatal(err)
	}
	if !ipt.chains["filter/BOLT-INPUT"] {
		t.Fatal("expected BOLT-INPUT to be created")
	}
	if !ipt.jumps["filter/INPUT|-j BOLT-INPUT"] {
		t.Fatal("expected INPUT to jump to BOLT-INPUT")
	}
}

func TestApplySuccessRecordsBackup(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Protocol: "tcp", DPort: "22", Enabled: true, Creator: model.CreatorBolt})

	called := false
	a := newTestApplier(func(ctx context.Context, blob string) (string, error) {
		called = true
		if !strings.Contains(blob, "-A BOLT-INPUT") {
			t.Fatalf("expected rendered blob to contain BOLT-INPUT rule, got:\n%s", blob)
		}
		return "", nil
	})

	if err := a.Apply(context.Background(), m, false); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected restore runner to be invoked")
	}
	if len(a.Backups()) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(a.Backups()))
	}
}

func TestApplyDryRunSkipsRestore(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Enabled: true, Creator: model.CreatorBolt})

	called := false
	a := newTestApplier(func(ctx context.Context, blob string) (string, error) {
		called = true
		return "", nil
	})

	if err := a.Apply(context.Background(), m, true); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("dry run must not invoke the restore runner")
	}
	if len(a.Backups()) != 0 {
		t.Fatal("dry run must not record a backup")
	}
}

func TestApplyBenignStderrIsNotAFailure(t *testing.T) {
	m := model.New()
	a := newTestApplier(func(ctx context.Context, blob string) (string, error) {
		return "iptables-restore: Chain already exists", errors.New("exit status 1")
	})
	if err := a.Apply(context.Background(), m, false); err != nil {
		t.Fatalf("expected benign stderr to be tolerated, got %v", err)
	}
}

func TestApplyFailureRestoresModel(t *testing.T) {
	m := model.New()
	first, _ := m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Protocol: "tcp", DPort: "22", Enabled: true, Creator: model.CreatorBolt})
	second, _ := m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-OUTPUT", Target: "DROP", Enabled: true, Creator: model.CreatorBolt})

	a := newTestApplier(func(ctx context.Context, blob string) (string, error) {
		return "iptables-restore: line 4 failed", errors.New("exit status 1")
	})

	err := a.Apply(context.Background(), m, false)
	if !errors.Is(err, bolterr.ApplyFailed) {
		t.Fatalf("expected ApplyFailed, got %v", err)
	}

	rules := m.AllRules()
	if len(rules) != 2 {
		t.Fatalf("expected model restored to its pre-apply 2 rules, got %d", len(rules))
	}
	ids := map[string]bool{}
	for _, r := range rules {
		ids[r.ID] = true
	}
	if !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("expected restored rules to keep their original ids, got %+v", rules)
	}
	if len(a.Backups()) != 0 {
		t.Fatal("a failed apply must not record a backup")
	}
}

func TestPortForwardRulesRoundTrip(t *testing.T) {
	rules := PortForwardRules("pf1", 8080, 80, "172.17.0.5", "tcp")
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	ids := RemovePortForwardRules("pf1")
	if ids[0] != rules[0].ID || ids[1] != rules[1].ID {
		t.Fatalf("RemovePortForwardRules ids %v do not match PortForwardRules ids [%s %s]", ids, rules[0].ID, rules[1].ID)
	}
}

func TestPortForwardDNATRendersToDestination(t *testing.T) {
	rules := PortForwardRules("pf1", 8080, 80, "172.17.0.5", "tcp")
	dnat := rules[0]
	if dnat.ToDestination != "172.17.0.5:80" {
		t.Fatalf("ToDestination = %q, want 172.17.0.5:80", dnat.ToDestination)
	}
	line := renderRule(dnat)
	if !strings.Contains(line, "-j DNAT") || !strings.Contains(line, "--to-destination 172.17.0.5:80") {
		t.Fatalf("rendered DNAT rule missing target: %q", line)
	}

	forward := rules[1]
	if forward.State != "NEW,ESTABLISHED,RELATED" {
		t.Fatalf("forward-accept State = %q, want NEW,ESTABLISHED,RELATED", forward.State)
	}
	fline := renderRule(forward)
	if !strings.Contains(fline, "--state NEW,ESTABLISHED,RELATED") {
		t.Fatalf("rendered forward rule missing state match: %q", fline)
	}
}

func TestRenderBlobIsDeterministic(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Protocol: "tcp", DPort: "22", Enabled: true, Creator: model.CreatorBolt})
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "DROP", Enabled: true, Creator: model.CreatorBolt})

	first := RenderBlob(m)
	second := RenderBlob(m)
	if first != second {
		t.Fatalf("RenderBlob is not deterministic:\n%s\n---\n%s", first, second)
	}
}
