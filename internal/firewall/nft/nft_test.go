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

package nft

import (
	"strings"
	"testing"

	"github.com/google/nftables"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

type fakeConn struct {
	tables  []*nftables.Table
	chains  []*nftables.Chain
	rules   []*nftables.Rule
	flushed bool
}

func (f *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	f.tables = append(f.tables, t)
	return t
}
func (f *fakeConn) AddChain(c *nftables.Chain) *nftables.Chain {
	f.chains = append(f.chains, c)
	return c
}
func (f *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	f.rules = append(f.rules, r)
	return r
}
func (f *fakeConn) Flush() error {
	f.flushed = true
	return nil
}

func TestMigrateInstallsFiveChains(t *testing.T) {
	conn := &fakeConn{}
	mig := NewMigratorWithConn(conn)
	m := model.New()

	if err := mig.Migrate(m); err != nil {
		t.Fatal(err)
	}
	if len(conn.tables) != 1 || conn.tables[0].Name != "bolt" {
		t.Fatalf("expected one table named bolt, got %+v", conn.tables)
	}
	if len(conn.chains) != 5 {
		t.Fatalf("expected 5 chains, got %d", len(conn.chains))
	}
	if !conn.flushed {
		t.Fatal("expected Flush to be called")
	}
}

func TestMigrateTranslatesPortForwardsToNativeExprs(t *testing.T) {
	conn := &fakeConn{}
	mig := NewMigratorWithConn(conn)
	m := model.New()
	m.AddRule(model.Rule{
		Table: model.TableNAT, Chain: "BOLT-PREROUTING", Target: "DNAT",
		Protocol: "tcp", DPort: "8080", ToDestination: "172.17.0.5:80",
		Priority: 1000, Enabled: true, Creator: model.CreatorBolt,
	})
	m.AddRule(model.Rule{
		Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT",
		Protocol: "tcp", Destination: "172.17.0.5", DPort: "80",
		State:    "NEW,ESTABLISHED,RELATED",
		Priority: 1000, Enabled: true, Creator: model.CreatorBolt,
	})

	baseRuleCount := 4 // loopback + established(input) + established(forward) + masquerade
	if err := mig.Migrate(m); err != nil {
		t.Fatal(err)
	}
	if len(conn.rules) != baseRuleCount+2 {
		t.Fatalf("expected %d base rules plus 2 port-forward rules, got %d", baseRuleCount+2, len(conn.rules))
	}
	if !conn.flushed {
		t.Fatal("expected Flush to be called")
	}
}

func TestMigrateRejectsUnsupportedProtocol(t *testing.T) {
	conn := &fakeConn{}
	mig := NewMigratorWithConn(conn)
	m := model.New()
	m.AddRule(model.Rule{
		Table: model.TableNAT, Chain: "BOLT-PREROUTING", Target: "DNAT",
		Protocol: "sctp", DPort: "8080", ToDestination: "172.17.0.5:80",
		Enabled: true, Creator: model.CreatorBolt,
	})

	if err := mig.Migrate(m); err == nil {
		t.Fatal("expected Migrate to reject an unsupported port-forward protocol")
	}
}

func TestRenderConfigIncludesPortForward(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{
		Table: model.TableNAT, Chain: "BOLT-PREROUTING", Target: "DNAT",
		Protocol: "tcp", DPort: "8080", ToDestination: "172.17.0.5:80",
		Comment: "port-forward:172.17.0.5:80",
		Priority: 1000, Enabled: true, Creator: model.CreatorBolt,
	})
	m.AddRule(model.Rule{
		Table: model.TableFilter, Chain: "BOLT-FORWARD", Target: "ACCEPT",
		Protocol: "tcp", Destination: "172.17.0.5", DPort: "80",
		State:    "NEW,ESTABLISHED,RELATED",
		Priority: 1000, Enabled: true, Creator: model.CreatorBolt,
	})

	cfg := RenderConfig(m)
	if !strings.Contains(cfg, "table inet bolt") {
		t.Fatalf("expected table declaration, got:\n%s", cfg)
	}
	if !strings.Contains(cfg, "dnat to 172.17.0.5:80") {
		t.Fatalf("expected DNAT line, got:\n%s", cfg)
	}
	if !strings.Contains(cfg, "ip daddr 172.17.0.5 tcp dport 80 accept") {
		t.Fatalf("expected forward accept line, got:\n%s", cfg)
	}
}
