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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const nvidiaVendorID = "0x10de"

// listViaSysfs is the last-resort tier: it walks /sys/class/drm for DRM
// cards owned by the NVIDIA PCI vendor, and complements that with a scan of
// /dev/nvidia{N} for devices missing a DRI entry. It cannot determine
// memory size or compute capability, so those fields are left zero/Unknown
// and Inventory.SysfsFallback is set so callers can warn downstream.
func listViaSysfs() (Inventory, error) {
	found := map[uint32]string{}

	if entries, err := os.ReadDir("/sys/class/drm"); err == nil {
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
				continue
			}
			idxStr := strings.TrimPrefix(name, "card")
			idx, err := strconv.ParseUint(idxStr, 10, 32)
			if err != nil {
				continue
			}
			vendorPath := filepath.Join("/sys/class/drm", name, "device", "vendor")
			vendor, err := os.ReadFile(vendorPath)
			if err != nil || strings.TrimSpace(string(vendor)) != nvidiaVendorID {
				continue
			}
			found[uint32(idx)] = fmt.Sprintf("NVIDIA GPU %d", idx)
		}
	}

	if entries, err := os.ReadDir("/dev"); err == nil {
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, "nvidia") || len(name) <= len("nvidia") {
				continue
			}
			idxStr := name[len("nvidia"):]
			idx, err := strconv.ParseUint(idxStr, 10, 32)
			if err != nil {
				continue
			}
			if _, ok := found[uint32(idx)]; !ok {
				found[uint32(idx)] = fmt.Sprintf("NVIDIA GPU %d", idx)
			}
		}
	}

	if len(found) == 0 {
		return Inventory{}, fmt.Errorf("no NVIDIA devices found under /sys/class/drm or /dev")
	}

	indices := make([]uint32, 0, len(found))
	for idx := range found {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	devices := make([]GPUDevice, 0, len(indices))
	for _, idx := range indices {
		devices = append(devices, GPUDevice{
			Index:             idx,
			UUID:              fmt.Sprintf("sysfs-detected-%d", idx),
			Name:              found[idx],
			ComputeCapability: "Unknown",
		})
	}

	return Inventory{
		Tier:          TierSysfs,
		Devices:       devices,
		DriverVersion: "unknown",
		SysfsFallback: true,
	}, nil
}
