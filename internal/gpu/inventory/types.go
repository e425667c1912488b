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

// Package inventory lists the NVIDIA GPUs present on the host, trying NVML,
// then the vendor CLI, then a sysfs scan, in that order.
package inventory

// Tier identifies which detection method produced a GPUDevice.
type Tier int

const (
	TierNVML Tier = iota
	TierVendorCLI
	TierSysfs
)

func (t Tier) String() string {
	switch t {
	case TierNVML:
		return "nvml"
	case TierVendorCLI:
		return "vendor-cli"
	case TierSysfs:
		return "sysfs"
	default:
		return "unknown"
	}
}

// GPUDevice describes one NVIDIA GPU found on the host. Fields left at
// their zero value were not obtainable from the tier that produced this
// record.
type GPUDevice struct {
	Index             uint32
	UUID              string
	Name              string
	MemoryMB          uint32
	ComputeCapability string
	PCIBusID          string
	PowerLimitW       uint32
	TemperatureC      uint32
}

// ComputeCapabilityAtLeast reports whether d's compute capability is known
// and numerically >= major.minor, used to decide Tensor Core availability
// for AI/ML workload overlays.
func (d GPUDevice) ComputeCapabilityAtLeast(major, minor int) bool {
	cmaj, cmin, ok := parseComputeCapability(d.ComputeCapability)
	if !ok {
		return false
	}
	if cmaj != major {
		return cmaj > major
	}
	return cmin >= minor
}

// Inventory is the result of a successful list_gpus call.
type Inventory struct {
	Tier          Tier
	Devices       []GPUDevice
	DriverVersion string
	CUDAVersion   string
	// SysfsFallback is true when Tier == TierSysfs, flagged so callers can
	// attach a low-fidelity warning to any derived BindingPlan.
	SysfsFallback bool
}

// GPUUsage is a point-in-time utilization sample, gathered on demand rather
// than as part of the inventory itself.
type GPUUsage struct {
	Index          uint32
	UUID           string
	GPUUtilPercent uint32
	MemUtilPercent uint32
	MemoryUsedMB   uint32
	TemperatureC   uint32
	PowerDrawW     uint32
}
