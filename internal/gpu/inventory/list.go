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

package inventory

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/bolt-rt/bolt/internal/boltlog"
)

var log = boltlog.For("gpu.inventory")

// List enumerates the host's NVIDIA GPUs, trying NVML, then the vendor CLI,
// then a sysfs scan, and returning the first tier that succeeds. The
// returned devices are contiguously indexed 0..N per the inventory
// invariant; a Tier that reports sparse indices (sysfs, when some /dev
// entries are missing) is re-indexed to close gaps while UUID and PCI
// identity are preserved.
func List(ctx context.Context) (Inventory, error) {
	if inv, err := listViaNVML(); err == nil {
		log.WithField("tier", inv.Tier).Info("GPU inventory collected")
		return reindex(inv), nil
	} else {
		log.WithError(err).Debug("NVML unavailable, trying vendor CLI")
	}

	if inv, err := listViaVendorCLI(ctx); err == nil {
		log.WithField("tier", inv.Tier).Info("GPU inventory collected")
		return reindex(inv), nil
	} else {
		log.WithError(err).Debug("vendor CLI unavailable, trying sysfs")
	}

	inv, err := listViaSysfs()
	if err != nil {
		return Inventory{}, err
	}
	log.WithField("tier", inv.Tier).Warn("GPU inventory collected via low-fidelity sysfs fallback")
	return reindex(inv), nil
}

func reindex(inv Inventory) Inventory {
	sort.Slice(inv.Devices, func(i, j int) bool { return inv.Devices[i].Index < inv.Devices[j].Index })
	for i := range inv.Devices {
		inv.Devices[i].Index = uint32(i)
	}
	return inv
}

// parseComputeCapability parses a "major.minor" string as produced by NVML
// or nvidia-smi's compute_cap query field.
func parseComputeCapability(s string) (major, minor int, ok bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	min, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}
