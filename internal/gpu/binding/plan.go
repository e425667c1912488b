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

package binding

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/gpu/driver"
	"github.com/bolt-rt/bolt/internal/gpu/inventory"
	"github.com/bolt-rt/bolt/internal/gpu/nvconf"
)

// existsFunc is overridden in tests so planning is deterministic without a
// real GPU host.
var existsFunc = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Plan composes a BindingPlan for workload running against the resolved
// device indices, given the host's detected driver variant and its GPU
// inventory. Given the same arguments and the same host device nodes (it
// stats /dev entries), Plan produces a byte-identical plan (same device order, same env
// iteration order), per the determinism requirement in spec.md §4.D.
func Plan(workload Workload, variant driver.Result, indices []uint32, inv inventory.Inventory) (BindingPlan, error) {
	byIndex := make(map[uint32]inventory.GPUDevice, len(inv.Devices))
	for _, d := range inv.Devices {
		byIndex[d.Index] = d
	}

	plan := BindingPlan{}

	devices, warnings, err := commonDeviceBindings(indices)
	if err != nil {
		return BindingPlan{}, err
	}
	plan.Devices = devices
	plan.Warnings = append(plan.Warnings, warnings...)

	variantEnv, variantGlobs := variantComposition(variant.Variant)
	plan.LibraryGlobs = variantGlobs

	baseCaps := variant.Capabilities.SupportedDriverCaps
	demanded := nvconf.DriverCaps{}

	env := []EnvVar{
		{Key: "NVIDIA_REQUIRE_CUDA", Value: "cuda>=11.0"},
		{Key: "NVIDIA_REQUIRE_DRIVER", Value: "driver>=470"},
	}
	env = append(env, variantEnv...)

	switch workload.Class {
	case Gaming:
		demanded = nvconf.SupportedCaps.Clone()
		env = append(env, gamingOverlay(workload, variant, indices, byIndex)...)
		plan.Warnings = append(plan.Warnings, gamingWarnings(workload, indices, byIndex)...)
	case Ai:
		demanded = nvconf.DriverCaps{nvconf.Compute: {}, nvconf.Utility: {}}
		env = append(env, cudaVisibleDevicesEnv(indices)...)
		env = append(env, aiOverlay(workload, indices, byIndex)...)
	case Ml:
		demanded = nvconf.DriverCaps{nvconf.Compute: {}, nvconf.Utility: {}}
		env = append(env, cudaVisibleDevicesEnv(indices)...)
		env = append(env, mlOverlay(workload, indices, byIndex)...)
	case Compute:
		demanded = nvconf.DriverCaps{nvconf.Compute: {}, nvconf.Utility: {}}
		// Only the Scientific and Generic compute profiles are CUDA
		// workloads; Rendering and Crypto profiles use the GPU without CUDA
		// device selection.
		if workload.ComputeKind == ComputeScientific || workload.ComputeKind == ComputeGeneric {
			env = append(env, cudaVisibleDevicesEnv(indices)...)
		}
		env = append(env, computeOverlay(workload)...)
	}

	// NVIDIA_DRIVER_CAPABILITIES is the union of the variant default and the
	// workload's demand, intersected with what the variant actually
	// supports; anything demanded but unsupported is dropped with a
	// warning rather than failing the plan.
	effectiveCaps := nvconf.DefaultDriverCaps.Union(demanded).Intersect(baseCaps)
	for cap := range demanded.Expand() {
		if !baseCaps.Has(cap) {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("capability %q requested but unsupported by driver variant %s", cap, variant.Variant))
		}
	}
	plan.DriverCaps = effectiveCaps

	env = append(env, EnvVar{Key: "NVIDIA_DRIVER_CAPABILITIES", Value: effectiveCaps.String()})
	plan.Env = env

	return plan, nil
}

// commonDeviceBindings returns the device bindings every variant requires
// regardless of workload: the control/UVM nodes and one /dev/nvidia{N} per
// resolved index, plus optional DRI nodes when present on the host.
func commonDeviceBindings(indices []uint32) ([]DeviceBinding, []string, error) {
	var devices []DeviceBinding
	var warnings []string

	required := []string{"/dev/nvidiactl", "/dev/nvidia-uvm"}
	for _, path := range required {
		if !existsFunc(path) {
			return nil, nil, bolterr.Wrap(bolterr.KindDeviceMissing, fmt.Sprintf("required device %s is absent", path), nil)
		}
		devices = append(devices, DeviceBinding{HostPath: path, ContainerPath: path, Read: true, Write: true, Kind: CharDevice, Required: true})
	}

	for _, optional := range []string{"/dev/nvidia-uvm-tools", "/dev/nvidia-modeset"} {
		if existsFunc(optional) {
			devices = append(devices, DeviceBinding{HostPath: optional, ContainerPath: optional, Read: true, Write: true, Kind: CharDevice, Required: false})
		} else {
			warnings = append(warnings, fmt.Sprintf("optional device %s not present on host", optional))
		}
	}

	for _, idx := range indices {
		path := "/dev/nvidia" + strconv.FormatUint(uint64(idx), 10)
		if !existsFunc(path) {
			return nil, nil, bolterr.Wrap(bolterr.KindDeviceMissing, fmt.Sprintf("required device %s is absent", path), nil)
		}
		devices = append(devices, DeviceBinding{HostPath: path, ContainerPath: path, Read: true, Write: true, Kind: CharDevice, Required: true})

		renderPath := fmt.Sprintf("/dev/dri/renderD%d", 128+idx)
		if existsFunc(renderPath) {
			devices = append(devices, DeviceBinding{HostPath: renderPath, ContainerPath: renderPath, Read: true, Write: true, Kind: CharDevice, Required: false})
		}
		cardPath := fmt.Sprintf("/dev/dri/card%d", idx)
		if existsFunc(cardPath) {
			devices = append(devices, DeviceBinding{HostPath: cardPath, ContainerPath: cardPath, Read: true, Write: true, Kind: CharDevice, Required: false})
		}
	}

	return devices, warnings, nil
}

func cudaVisibleDevicesEnv(indices []uint32) []EnvVar {
	toks := make([]string, len(indices))
	for i, idx := range indices {
		toks[i] = strconv.FormatUint(uint64(idx), 10)
	}
	return []EnvVar{{Key: "CUDA_VISIBLE_DEVICES", Value: strings.Join(toks, ",")}}
}
