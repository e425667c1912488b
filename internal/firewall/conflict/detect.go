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

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// Policy selects how a detected conflict is resolved.
type Policy string

const (
	PreferNewest         Policy = "prefer_newest"
	PreferOldest         Policy = "prefer_oldest"
	PreferHigherPriority Policy = "prefer_higher_priority"
	ManualReview         Policy = "manual_review"
	Merge                Policy = "merge"
)

// DangerousRule flags a Docker-created rule that ACCEPTs from 0.0.0.0/0.
type DangerousRule struct {
	Rule   model.Rule
	Reason string
}

// PortConflict flags a Bolt allocation that collides with a host listener
// or a Docker-published port.
type PortConflict struct {
	Allocation Allocation
	HeldBy     string // "system" or "docker"
}

// IfaceLister reports the interface names present on the host; satisfied
// by internal/firewall/netiface.NetlinkLister.
type IfaceLister interface {
	Interfaces() (map[string]bool, error)
}

// StaleInterfaceRule flags a Bolt rule whose IfaceIn/IfaceOut no longer
// names an interface present on the host — typically a torn-down Docker
// bridge or veth left behind after a container exits.
type StaleInterfaceRule struct {
	Rule  model.Rule
	Iface string
}

// DuplicateGroup is a set of rules whose (table, chain, match tuple,
// target) coincide, and are therefore coalescing candidates.
type DuplicateGroup struct {
	Key   matchKey
	Rules []model.Rule
}

type matchKey struct {
	table       model.Table
	chain       string
	target      string
	protocol    string
	source      string
	destination string
	sport       string
	dport       string
}

// Report is the result of a full conflict scan.
type Report struct {
	Dangerous       []DangerousRule
	PortIssues      []PortConflict
	Duplicates      []DuplicateGroup
	StaleInterfaces []StaleInterfaceRule
}

// Scan runs the three detectors described in spec.md §4.F: dangerous
// Docker rules, port conflicts between Bolt's allocations and the host,
// and duplicate Bolt rules eligible for merging. When ports has an
// IfaceLister set, it also flags Bolt rules naming an interface that is
// not present on the host.
func Scan(ctx context.Context, m *model.Model, ports *Manager) (Report, error) {
	var report Report

	for _, r := range m.AllRules() {
		if isDangerousDockerRule(r) {
			report.Dangerous = append(report.Dangerous, DangerousRule{Rule: r, Reason: "ACCEPT from 0.0.0.0/0 on a Docker-managed chain"})
		}
	}

	if ports != nil && ports.checker != nil {
		for _, a := range ports.Allocations() {
			if used, err := ports.checker.SystemPortInUse(ctx, a.Port); err == nil && used {
				report.PortIssues = append(report.PortIssues, PortConflict{Allocation: a, HeldBy: "system"})
				continue
			}
			if used, err := ports.checker.DockerPortInUse(ctx, a.Port); err == nil && used {
				report.PortIssues = append(report.PortIssues, PortConflict{Allocation: a, HeldBy: "docker"})
			}
		}
	}

	report.Duplicates = findDuplicates(m)

	if ports != nil && ports.ifaces != nil {
		stale, err := findStaleInterfaces(m, ports.ifaces)
		if err != nil {
			return Report{}, err
		}
		report.StaleInterfaces = stale
	}

	return report, nil
}

// findStaleInterfaces flags Bolt-created rules whose IfaceIn/IfaceOut name
// an interface the lister doesn't report as present.
func findStaleInterfaces(m *model.Model, lister IfaceLister) ([]StaleInterfaceRule, error) {
	present, err := lister.Interfaces()
	if err != nil {
		return nil, err
	}

	var stale []StaleInterfaceRule
	for _, r := range m.AllRules() {
		if r.Creator != model.CreatorBolt {
			continue
		}
		for _, iface := range []string{r.IfaceIn, r.IfaceOut} {
			if iface != "" && !present[iface] {
				stale = append(stale, StaleInterfaceRule{Rule: r, Iface: iface})
			}
		}
	}
	return stale, nil
}

func isDangerousDockerRule(r model.Rule) bool {
	if r.Creator != model.CreatorDocker {
		return false
	}
	return r.Target == "ACCEPT" && (r.Source == "0.0.0.0/0" || r.Source == "")
}

// findDuplicates groups rules by their full match tuple, restricted to
// Bolt-created rules since only those may be merged automatically.
func findDuplicates(m *model.Model) []DuplicateGroup {
	groups := map[matchKey][]model.Rule{}
	var order []matchKey
	for _, r := range m.AllRules() {
		if r.Creator != model.CreatorBolt {
			continue
		}
		k := matchKey{r.Table, r.Chain, r.Target, r.Protocol, r.Source, r.Destination, r.SPort, r.DPort}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out []DuplicateGroup
	for _, k := range order {
		if len(groups[k]) > 1 {
			out = append(out, DuplicateGroup{Key: k, Rules: groups[k]})
		}
	}
	return out
}

// Resolve applies policy to a DuplicateGroup, returning the rule IDs that
// should be removed (the group's survivor is kept). ManualReview returns no
// removals; the group is left for a human decision.
func Resolve(group DuplicateGroup, policy Policy) (keep model.Rule, remove []string) {
	if len(group.Rules) == 0 {
		return model.Rule{}, nil
	}
	switch policy {
	case PreferOldest:
		keep = group.Rules[0]
	case PreferHigherPriority:
		keep = group.Rules[0]
		for _, r := range group.Rules[1:] {
			if r.Priority > keep.Priority {
				keep = r
			}
		}
	case ManualReview:
		return model.Rule{}, nil
	case Merge:
		keep = group.Rules[0]
	case PreferNewest:
		fallthrough
	default:
		keep = group.Rules[len(group.Rules)-1]
	}
	for _, r := range group.Rules {
		if r.ID != keep.ID {
			remove = append(remove, r.ID)
		}
	}
	return keep, remove
}
