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

package conflict

import (
	"context"
	"testing"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

type fakeIfaceLister map[string]bool

func (f fakeIfaceLister) Interfaces() (map[string]bool, error) { return f, nil }

func TestScanFlagsStaleInterface(t *testing.T) {
	m := model.New()
	m.EnsureChain(model.TableFilter, "BOLT-FORWARD", model.PolicyDrop)
	rule, err := m.AddRule(model.Rule{
		Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT",
		IfaceIn: "veth-stale", Creator: model.CreatorBolt, Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(fakeChecker{}, fixedNow)
	mgr.SetIfaceLister(fakeIfaceLister{"lo": true, "eth0": true})

	report, err := Scan(context.Background(), m, mgr)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.StaleInterfaces) != 1 || report.StaleInterfaces[0].Rule.ID != rule.ID {
		t.Fatalf("expected one stale-interface finding for %s, got %+v", rule.ID, report.StaleInterfaces)
	}
}

func TestScanSkipsInterfaceCheckWithoutLister(t *testing.T) {
	m := model.New()
	m.EnsureChain(model.TableFilter, "BOLT-FORWARD", model.PolicyDrop)
	if _, err := m.AddRule(model.Rule{
		Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT",
		IfaceIn: "veth-stale", Creator: model.CreatorBolt, Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(fakeChecker{}, fixedNow)
	report, err := Scan(context.Background(), m, mgr)
	if err != nil {
		t.Fatal(err)
	}
	if report.StaleInterfaces != nil {
		t.Fatalf("expected no stale-interface findings without a lister, got %+v", report.StaleInterfaces)
	}
}
