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

// Package resolver turns a device spec string (as accepted by
// NVIDIA_VISIBLE_DEVICES) into a set of GPU indices, mirroring the grammar
// runsc/specutils.ParseNvidiaVisibleDevices implements for the sentry's
// nvproxy. UUID and name tokens are looked up in the inventory; numeric
// indices, comma lists and ranges are not checked against it.
package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/gpu/inventory"
)

// Resolve parses spec against devices and returns the resolved indices in
// ascending, deduplicated order. Returns bolterr.KindInvalidSpec if the
// spec is malformed or resolves to an empty set.
func Resolve(spec string, devices []inventory.GPUDevice) ([]uint32, error) {
	spec = strings.TrimSpace(spec)

	var indices []uint32
	switch {
	case spec == "all":
		for _, d := range devices {
			indices = append(indices, d.Index)
		}
	case strings.Contains(spec, ","):
		for _, tok := range strings.Split(spec, ",") {
			idx, err := parseIndexToken(strings.TrimSpace(tok), devices)
			if err != nil {
				return nil, err
			}
			indices = append(indices, idx)
		}
	case strings.Contains(spec, "-") && isRange(spec):
		lo, hi, err := parseRange(spec)
		if err != nil {
			return nil, err
		}
		for i := lo; i <= hi; i++ {
			indices = append(indices, i)
		}
	default:
		idx, err := parseSingleToken(spec, devices)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}

	resolved := dedupeSorted(indices)
	if len(resolved) == 0 {
		return nil, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("device spec %q resolved to no devices", spec), nil)
	}
	return resolved, nil
}

// isRange distinguishes "a-b" range syntax from a bare UUID, which also
// contains hyphens (e.g. "GPU-1234-5678-...").
func isRange(spec string) bool {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return false
	}
	_, err1 := strconv.ParseUint(parts[0], 10, 32)
	_, err2 := strconv.ParseUint(parts[1], 10, 32)
	return err1 == nil && err2 == nil
}

func parseRange(spec string) (lo, hi uint32, err error) {
	parts := strings.SplitN(spec, "-", 2)
	a, err1 := strconv.ParseUint(parts[0], 10, 32)
	b, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("invalid range %q", spec), nil)
	}
	if b < a {
		return 0, 0, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("invalid range %q: end before start", spec), nil)
	}
	return uint32(a), uint32(b), nil
}

func parseIndexToken(tok string, devices []inventory.GPUDevice) (uint32, error) {
	idx, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("invalid device index %q in comma list", tok), err)
	}
	return uint32(idx), nil
}

// parseSingleToken implements the single-token fallback chain: numeric
// index, then exact UUID match, then case-insensitive name substring match
// (first hit).
func parseSingleToken(tok string, devices []inventory.GPUDevice) (uint32, error) {
	if idx, err := strconv.ParseUint(tok, 10, 32); err == nil {
		return uint32(idx), nil
	}

	for _, d := range devices {
		if d.UUID == tok {
			return d.Index, nil
		}
	}

	lower := strings.ToLower(tok)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			return d.Index, nil
		}
	}

	return 0, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("device spec %q did not match an index, UUID, or name substring", tok), nil)
}

func dedupeSorted(indices []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(indices))
	out := make([]uint32, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
