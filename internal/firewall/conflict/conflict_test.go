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
	"errors"
	"testing"
	"time"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/firewall/model"
)

type fakeChecker struct {
	systemUsed map[uint16]bool
	dockerUsed map[uint16]bool
}

func (f fakeChecker) SystemPortInUse(ctx context.Context, port uint16) (bool, error) {
	return f.systemUsed[port], nil
}
func (f fakeChecker) DockerPortInUse(ctx context.Context, port uint16) (bool, error) {
	return f.dockerUsed[port], nil
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func TestAllocateExplicitPortConflictsWithBolt(t *testing.T) {
	m := NewManager(fakeChecker{}, fixedNow)
	if _, err := m.Allocate(context.Background(), 8080, "tcp", "c1", "", PurposeContainerPort); err != nil {
		t.Fatal(err)
	}
	_, err := m.Allocate(context.Background(), 8080, "tcp", "c2", "", PurposeContainerPort)
	if !errors.Is(err, bolterr.PortInUse) {
		t.Fatalf("expected PortInUse, got %v", err)
	}
}

func TestAllocateExplicitPortConflictsWithHost(t *testing.T) {
	m := NewManager(fakeChecker{systemUsed: map[uint16]bool{22: true}}, fixedNow)
	_, err := m.Allocate(context.Background(), 22, "tcp", "c1", "", PurposeContainerPort)
	if !errors.Is(err, bolterr.PortInUse) {
		t.Fatalf("expected PortInUse, got %v", err)
	}
}

func TestAllocateAutoPicksFirstFree(t *testing.T) {
	m := NewManager(fakeChecker{systemUsed: map[uint16]bool{1024: true, 1025: true}}, fixedNow)
	a, err := m.Allocate(context.Background(), 0, "tcp", "c1", "", PurposeContainerPort)
	if err != nil {
		t.Fatal(err)
	}
	if a.Port != 1026 {
		t.Fatalf("expected port 1026, got %d", a.Port)
	}
}

func TestFindAvailableInRange(t *testing.T) {
	m := NewManager(fakeChecker{systemUsed: map[uint16]bool{9080: true}}, fixedNow)
	port, err := m.FindAvailableInRange(context.Background(), 9080, 9082, "tcp")
	if err != nil {
		t.Fatal(err)
	}
	if port != 9081 {
		t.Fatalf("expected 9081, got %d", port)
	}
}

func TestScanFlagsDangerousDockerRule(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "DOCKER-USER", Target: "ACCEPT", Source: "0.0.0.0/0", Creator: model.CreatorDocker})
	report, err := Scan(context.Background(), m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Dangerous) != 1 {
		t.Fatalf("expected 1 dangerous rule, got %d", len(report.Dangerous))
	}
}

func TestScanFindsDuplicateBoltRules(t *testing.T) {
	m := model.New()
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Protocol: "tcp", DPort: "80", Creator: model.CreatorBolt})
	m.AddRule(model.Rule{Table: model.TableFilter, Chain: "BOLT-INPUT", Target: "ACCEPT", Protocol: "tcp", DPort: "80", Creator: model.CreatorBolt})
	report, err := Scan(context.Background(), m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Duplicates) != 1 || len(report.Duplicates[0].Rules) != 2 {
		t.Fatalf("expected one duplicate group of 2, got %+v", report.Duplicates)
	}
}

func TestResolvePreferHigherPriority(t *testing.T) {
	low := model.Rule{ID: "low", Priority: 10}
	high := model.Rule{ID: "high", Priority: 90}
	group := DuplicateGroup{Rules: []model.Rule{low, high}}
	keep, remove := Resolve(group, PreferHigherPriority)
	if keep.ID != "high" {
		t.Fatalf("expected to keep high-priority rule, kept %q", keep.ID)
	}
	if len(remove) != 1 || remove[0] != "low" {
		t.Fatalf("expected to remove [low], got %v", remove)
	}
}

func TestResolveManualReviewRemovesNothing(t *testing.T) {
	group := DuplicateGroup{Rules: []model.Rule{{ID: "a"}, {ID: "b"}}}
	_, remove := Resolve(group, ManualReview)
	if remove != nil {
		t.Fatalf("ManualReview should not remove anything, got %v", remove)
	}
}
