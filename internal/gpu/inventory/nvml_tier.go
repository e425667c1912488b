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

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// listViaNVML enumerates GPUs through the NVML bindings, the highest
// fidelity tier: it is the only tier that reports the default power
// management limit (the vendor CLI tier reports power.max_limit instead).
func listViaNVML() (Inventory, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return Inventory{}, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return Inventory{}, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}

	devices := make([]GPUDevice, 0, count)
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return Inventory{}, fmt.Errorf("nvml device handle %d: %s", i, nvml.ErrorString(ret))
		}
		devices = append(devices, deviceFromNVML(uint32(i), dev))
	}

	driverVersion, ret := nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		driverVersion = "unknown"
	}
	cudaVersion := ""
	if v, ret := nvml.SystemGetCudaDriverVersion(); ret == nvml.SUCCESS {
		cudaVersion = fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
	}

	return Inventory{
		Tier:          TierNVML,
		Devices:       devices,
		DriverVersion: driverVersion,
		CUDAVersion:   cudaVersion,
	}, nil
}

func deviceFromNVML(index uint32, dev nvml.Device) GPUDevice {
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		name = fmt.Sprintf("Unknown GPU %d", index)
	}
	uuid, ret := dev.GetUUID()
	if ret != nvml.SUCCESS {
		uuid = fmt.Sprintf("unknown-uuid-%d", index)
	}

	var memoryMB uint32
	if mem, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
		memoryMB = uint32(mem.Total / 1024 / 1024)
	}

	computeCapability := "Unknown"
	if major, minor, ret := dev.GetCudaComputeCapability(); ret == nvml.SUCCESS {
		computeCapability = fmt.Sprintf("%d.%d", major, minor)
	}

	pciBusID := fmt.Sprintf("unknown-pci-%d", index)
	if pci, ret := dev.GetPciInfo(); ret == nvml.SUCCESS {
		pciBusID = fmt.Sprintf("%04X:%02X:%02X.0", pci.Domain, pci.Bus, pci.Device)
	}

	var powerLimitW uint32
	if mw, ret := dev.GetPowerManagementDefaultLimit(); ret == nvml.SUCCESS {
		powerLimitW = uint32(mw / 1000)
	}

	var temperatureC uint32
	if t, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		temperatureC = t
	}

	return GPUDevice{
		Index:             index,
		UUID:              uuid,
		Name:              name,
		MemoryMB:          memoryMB,
		ComputeCapability: computeCapability,
		PCIBusID:          pciBusID,
		PowerLimitW:       powerLimitW,
		TemperatureC:      temperatureC,
	}
}
