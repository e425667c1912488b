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

// Package conflict allocates ports, detects conflicting or dangerous
// firewall state, and resolves conflicts per a selectable policy, the way
// firewall_advanced.rs's PortManager and ConflictResolver cooperate in the
// original implementation.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/boltlog"
)

var log = boltlog.For("firewall.conflict")

// Purpose is why a port was allocated.
type Purpose string

const (
	PurposeContainerPort Purpose = "container_port"
	PurposeServicePort   Purpose = "service_port"
	PurposeLoadBalancer  Purpose = "load_balancer"
	PurposeVPN           Purpose = "vpn"
	PurposeMonitoring    Purpose = "monitoring"
	PurposeSystem        Purpose = "system"
)

// FreeRangeStart/End bound the unreserved, freely-allocatable port range;
// ReservedRangeEnd is the top of the reserved range above it.
const (
	FreeRangeStart   = 1024
	FreeRangeEnd     = 32767
	ReservedRangeEnd = 65535
)

// Allocation is one (port, protocol) reservation.
type Allocation struct {
	Port        uint16
	Protocol    string
	ContainerID string
	Service     string
	AllocatedAt time.Time
	Purpose     Purpose
}

type allocKey struct {
	port     uint16
	protocol string
}

// HostPortChecker reports whether a port is already held outside Bolt's own
// allocation table — by the OS (netstat-style sweep) or by Docker.
type HostPortChecker interface {
	SystemPortInUse(ctx context.Context, port uint16) (bool, error)
	DockerPortInUse(ctx context.Context, port uint16) (bool, error)
}

// Manager tracks Bolt's port allocations and detects collisions against
// both its own table and the host.
type Manager struct {
	mu      sync.Mutex
	checker HostPortChecker
	now     func() time.Time
	ifaces  IfaceLister

	allocations map[allocKey]Allocation
}

// NewManager returns a Manager backed by checker. now defaults to
// time.Now if nil; tests may override it for determinism.
func NewManager(checker HostPortChecker, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		checker:     checker,
		now:         now,
		allocations: make(map[allocKey]Allocation),
	}
}

// SetIfaceLister attaches the lister Scan uses to detect rules that
// reference an interface no longer present on the host. Left nil, Scan
// skips that check, which is the default until a caller opts in.
func (m *Manager) SetIfaceLister(l IfaceLister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ifaces = l
}

// Allocate reserves a port. If port is 0, the first free slot in
// [FreeRangeStart, FreeRangeEnd] is drawn. If port is nonzero, the call
// fails with bolterr.KindPortInUse when the slot is already held by Bolt,
// the OS, or Docker.
func (m *Manager) Allocate(ctx context.Context, port uint16, protocol string, containerID, service string, purpose Purpose) (Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if port == 0 {
		free, err := m.firstFreeLocked(ctx, protocol)
		if err != nil {
			return Allocation{}, err
		}
		port = free
	} else if conflict, err := m.conflictedLocked(ctx, port, protocol); err != nil {
		return Allocation{}, err
	} else if conflict != "" {
		return Allocation{}, bolterr.Wrap(bolterr.KindPortInUse, fmt.Sprintf("port %d/%s already in use (%s)", port, protocol, conflict), nil)
	}

	alloc := Allocation{
		Port: port, Protocol: protocol, ContainerID: containerID, Service: service,
		AllocatedAt: m.now(), Purpose: purpose,
	}
	m.allocations[allocKey{port, protocol}] = alloc
	return alloc, nil
}

// Release frees a (port, protocol) allocation.
func (m *Manager) Release(port uint16, protocol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allocations, allocKey{port, protocol})
}

// Move reassigns an existing allocation to a new port, used by conflict
// resolution; the caller is responsible for rewriting any firewall rules
// that reference the old port before releasing it.
func (m *Manager) Move(oldPort uint16, newPort uint16, protocol string) (Allocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.allocations[allocKey{oldPort, protocol}]
	if !ok {
		return Allocation{}, false
	}
	delete(m.allocations, allocKey{oldPort, protocol})
	old.Port = newPort
	m.allocations[allocKey{newPort, protocol}] = old
	return old, true
}

// Allocations returns every current allocation, sorted by port then
// protocol for deterministic iteration.
func (m *Manager) Allocations() []Allocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Allocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}

func (m *Manager) firstFreeLocked(ctx context.Context, protocol string) (uint16, error) {
	for p := FreeRangeStart; p <= FreeRangeEnd; p++ {
		port := uint16(p)
		if conflict, err := m.conflictedLocked(ctx, port, protocol); err != nil {
			return 0, err
		} else if conflict == "" {
			return port, nil
		}
	}
	return 0, bolterr.Wrap(bolterr.KindPortInUse, "no free port available in the unreserved range", nil)
}

// conflictedLocked returns a non-empty reason string if port/protocol is
// already held, or "" if free. Must be called with m.mu held.
func (m *Manager) conflictedLocked(ctx context.Context, port uint16, protocol string) (string, error) {
	if _, ok := m.allocations[allocKey{port, protocol}]; ok {
		return "bolt", nil
	}
	if m.checker == nil {
		return "", nil
	}
	if used, err := m.checker.SystemPortInUse(ctx, port); err != nil {
		return "", bolterr.Wrap(bolterr.KindTransient, "checking system port usage", err)
	} else if used {
		return "system", nil
	}
	if used, err := m.checker.DockerPortInUse(ctx, port); err != nil {
		return "", bolterr.Wrap(bolterr.KindTransient, "checking docker port usage", err)
	} else if used {
		return "docker", nil
	}
	return "", nil
}

// FindAvailableInRange searches [start, end] inclusive for the first port
// not conflicted against Bolt's table or the host, used by port-collision
// resolution to relocate an allocation (spec.md §4.F: search p+1000..p+2000).
func (m *Manager) FindAvailableInRange(ctx context.Context, start, end uint16, protocol string) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := int(start); p <= int(end); p++ {
		port := uint16(p)
		if conflict, err := m.conflictedLocked(ctx, port, protocol); err != nil {
			return 0, err
		} else if conflict == "" {
			return port, nil
		}
	}
	return 0, bolterr.Wrap(bolterr.KindPortInUse, fmt.Sprintf("no available port in range %d-%d", start, end), nil)
}
