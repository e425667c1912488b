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

// Package nvconf defines the NVIDIA driver capability vocabulary shared by
// the driver probe and the binding planner, mirroring the capability-set
// type gVisor's own nvproxy/nvconf package exposes to runsc/specutils.
package nvconf

import (
	"sort"
	"strings"
)

// Capability is one NVIDIA_DRIVER_CAPABILITIES token.
type Capability string

// The capability tokens nvidia-container-runtime understands.
const (
	Compute  Capability = "compute"
	Utility  Capability = "utility"
	Graphics Capability = "graphics"
	Video    Capability = "video"
	Display  Capability = "display"
	Ngx      Capability = "ngx"
	// All is a pseudo-capability meaning "every supported capability".
	All Capability = "all"
)

// SupportedCaps is the full universe of capabilities Bolt knows about.
var SupportedCaps = DriverCaps{
	Compute:  {},
	Utility:  {},
	Graphics: {},
	Video:    {},
	Display:  {},
	Ngx:      {},
}

// DriverCaps is a set of capabilities.
type DriverCaps map[Capability]struct{}

// DriverCapsFromString parses a comma-separated NVIDIA_DRIVER_CAPABILITIES
// value such as "compute,utility" or "all".
func DriverCapsFromString(s string) DriverCaps {
	caps := DriverCaps{}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		caps[Capability(tok)] = struct{}{}
	}
	return caps
}

// HasAll reports whether the set contains the "all" pseudo-capability.
func (c DriverCaps) HasAll() bool {
	_, ok := c[All]
	return ok
}

// Expand replaces an "all" pseudo-capability with SupportedCaps' members,
// returning a new set; c is left unmodified.
func (c DriverCaps) Expand() DriverCaps {
	if !c.HasAll() {
		return c.Clone()
	}
	out := DriverCaps{}
	for cap := range SupportedCaps {
		out[cap] = struct{}{}
	}
	return out
}

// Clone returns a shallow copy of c.
func (c DriverCaps) Clone() DriverCaps {
	out := make(DriverCaps, len(c))
	for k := range c {
		out[k] = struct{}{}
	}
	return out
}

// Union returns the union of c and other (with "all" expanded on both sides).
func (c DriverCaps) Union(other DriverCaps) DriverCaps {
	out := c.Expand()
	for cap := range other.Expand() {
		out[cap] = struct{}{}
	}
	return out
}

// Intersect returns the intersection of c and other (with "all" expanded).
func (c DriverCaps) Intersect(other DriverCaps) DriverCaps {
	a, b := c.Expand(), other.Expand()
	out := DriverCaps{}
	for cap := range a {
		if _, ok := b[cap]; ok {
			out[cap] = struct{}{}
		}
	}
	return out
}

// Has reports whether cap is in the set (treating "all" as a superset).
func (c DriverCaps) Has(cap Capability) bool {
	if c.HasAll() {
		return true
	}
	_, ok := c[cap]
	return ok
}

// String renders the set as a sorted, comma-joined token list, so the same
// set always serializes identically (needed for BindingPlan determinism).
func (c DriverCaps) String() string {
	toks := make([]string, 0, len(c))
	for cap := range c {
		toks = append(toks, string(cap))
	}
	sort.Strings(toks)
	return strings.Join(toks, ",")
}

// DefaultDriverCaps is what's granted when NVIDIA_DRIVER_CAPABILITIES is
// unset or empty, matching nvidia-container-toolkit's default.
var DefaultDriverCaps = DriverCaps{Utility: {}, Compute: {}}
