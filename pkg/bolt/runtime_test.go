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

package bolt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bolt-rt/bolt/internal/firewall/apply"
	"github.com/bolt-rt/bolt/internal/firewall/conflict"
	"github.com/bolt-rt/bolt/internal/firewall/model"
	"github.com/bolt-rt/bolt/internal/gpu/driver"
)

type noopIPTables struct{}

func (noopIPTables) NewChain(table, chain string) error                          { return nil }
func (noopIPTables) ChainExists(table, chain string) (bool, error)               { return true, nil }
func (noopIPTables) ClearChain(table, chain string) error                        { return nil }
func (noopIPTables) Exists(table, chain string, rulespec ...string) (bool, error) { return true, nil }
func (noopIPTables) Insert(table, chain string, pos int, rulespec ...string) error { return nil }
func (noopIPTables) AppendUnique(table, chain string, rulespec ...string) error    { return nil }
func (noopIPTables) Delete(table, chain string, rulespec ...string) error          { return nil }

type noopPortChecker struct{}

func (noopPortChecker) SystemPortInUse(ctx context.Context, port uint16) (bool, error) {
	return false, nil
}
func (noopPortChecker) DockerPortInUse(ctx context.Context, port uint16) (bool, error) {
	return false, nil
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func newTestRuntime(t *testing.T) (*Runtime, *[]string) {
	var renderedBlobs []string
	applier := apply.NewApplierWithHooks(
		func(ctx context.Context, blob string) (string, error) {
			renderedBlobs = append(renderedBlobs, blob)
			return "", nil
		},
		func() (apply.IPTables, error) { return noopIPTables{}, nil },
		fixedNow,
	)
	rt := newForTesting(driver.NewProber(), conflict.NewManager(noopPortChecker{}, fixedNow), applier)
	return rt, &renderedBlobs
}

func TestCreateThenRemovePortForward(t *testing.T) {
	rt, blobs := newTestRuntime(t)
	ctx := context.Background()

	if err := rt.CreatePortForward(ctx, 8080, "172.17.0.5", 80, "tcp"); err != nil {
		t.Fatal(err)
	}
	if len(*blobs) != 1 || !strings.Contains((*blobs)[0], "-A BOLT-PREROUTING") {
		t.Fatalf("expected a rendered blob containing the DNAT rule, got %v", *blobs)
	}

	if err := rt.RemovePortForward(ctx, 8080, "tcp"); err != nil {
		t.Fatal(err)
	}
	if len(*blobs) != 2 || strings.Contains((*blobs)[1], "port-forward") {
		t.Fatalf("expected the second apply's blob to no longer contain the port forward, got %v", *blobs)
	}
}

func TestCreatePortForwardConflictReleasesNothingDouble(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	if err := rt.CreatePortForward(ctx, 9090, "172.17.0.5", 80, "tcp"); err != nil {
		t.Fatal(err)
	}
	err := rt.CreatePortForward(ctx, 9090, "172.17.0.6", 81, "tcp")
	if err == nil {
		t.Fatal("expected a port-in-use error on the second allocation of the same port")
	}
	if allocs := rt.ports.Allocations(); len(allocs) != 1 || allocs[0].Port != 9090 {
		t.Fatalf("expected the first allocation of 9090 to survive the failed second one, got %+v", allocs)
	}
}

func TestRemediateDockerFirewallDryRunDoesNotRecordBackup(t *testing.T) {
	rt, blobs := newTestRuntime(t)
	report, err := rt.RemediateDockerFirewall(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || len(report.RulesAdded) == 0 {
		t.Fatalf("expected a dry-run report with rules added, got %+v", report)
	}
	if len(*blobs) != 0 {
		t.Fatal("dry run must not invoke the restore runner")
	}
	if len(rt.Backups()) != 0 {
		t.Fatal("dry run must not record a backup")
	}
}

func TestRemediateDockerFirewallRemovesDangerousRule(t *testing.T) {
	rt, _ := newTestRuntime(t)
	dangerous, err := rt.firewal.AddRule(model.Rule{
		Table: model.TableFilter, Chain: "DOCKER-USER", Target: "ACCEPT",
		Source: "0.0.0.0/0", Enabled: true, Creator: model.CreatorDocker,
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := rt.RemediateDockerFirewall(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.RulesRemoved) != 1 || report.RulesRemoved[0].ID != dangerous.ID {
		t.Fatalf("expected the dangerous rule to be reported removed, got %+v", report.RulesRemoved)
	}
	if len(report.RulesAdded) == 0 {
		t.Fatalf("expected the restrictive rule set to be added, got %+v", report)
	}
	if _, ok := rt.firewal.Rule(dangerous.ID); ok {
		t.Fatal("expected the dangerous rule to be removed from the model")
	}
}

// toggleDockerPortChecker reports port as Docker-held once active is true,
// simulating Docker publishing a container on a port Bolt already
// allocated, rather than the conflict existing at allocation time.
type toggleDockerPortChecker struct {
	port   uint16
	active *bool
}

func (c toggleDockerPortChecker) SystemPortInUse(ctx context.Context, port uint16) (bool, error) {
	return false, nil
}
func (c toggleDockerPortChecker) DockerPortInUse(ctx context.Context, port uint16) (bool, error) {
	return *c.active && port == c.port, nil
}

func TestResolvePortConflictsRelocatesAndRewritesRules(t *testing.T) {
	var conflicted bool
	checker := toggleDockerPortChecker{port: 8080, active: &conflicted}

	var blobs []string
	applier := apply.NewApplierWithHooks(
		func(ctx context.Context, blob string) (string, error) {
			blobs = append(blobs, blob)
			return "", nil
		},
		func() (apply.IPTables, error) { return noopIPTables{}, nil },
		fixedNow,
	)
	rt := newForTesting(driver.NewProber(), conflict.NewManager(checker, fixedNow), applier)

	if err := rt.CreatePortForward(context.Background(), 8080, "172.17.0.5", 80, "tcp"); err != nil {
		t.Fatal(err)
	}

	conflicted = true
	relocations, err := rt.ResolvePortConflicts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(relocations) != 1 || relocations[0].OldPort != 8080 || relocations[0].NewPort != 9080 || relocations[0].Protocol != "tcp" {
		t.Fatalf("expected a relocation from 8080/tcp to 9080, got %+v", relocations)
	}

	allocs := rt.ports.Allocations()
	if len(allocs) != 1 || allocs[0].Port != 9080 {
		t.Fatalf("expected the allocation to move to port 9080, got %+v", allocs)
	}

	if len(blobs) != 2 {
		t.Fatalf("expected CreatePortForward and ResolvePortConflicts to each apply once, got %d applies", len(blobs))
	}
	if !strings.Contains(blobs[1], "--dport 9080") {
		t.Fatalf("expected the relocated rule's new port in the re-applied blob, got:\n%s", blobs[1])
	}
	if strings.Contains(blobs[1], "--dport 8080") {
		t.Fatalf("expected the old port to no longer appear in the re-applied blob, got:\n%s", blobs[1])
	}
}

func TestRenderNFTablesConfigReflectsPortForwards(t *testing.T) {
	rt, _ := newTestRuntime(t)
	if err := rt.CreatePortForward(context.Background(), 8443, "172.17.0.9", 443, "tcp"); err != nil {
		t.Fatal(err)
	}
	cfg := rt.RenderNFTablesConfig()
	if !strings.Contains(cfg, "dnat to 172.17.0.9:443") {
		t.Fatalf("expected the nftables render to include the port forward, got:\n%s", cfg)
	}
}
