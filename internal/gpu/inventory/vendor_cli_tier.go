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
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const smiQueryFields = "index,uuid,name,memory.total,compute_cap,pci.bus_id,power.max_limit,temperature.gpu"

// listViaVendorCLI enumerates GPUs by invoking nvidia-smi in query mode,
// CSV output, one line per device.
func listViaVendorCLI(ctx context.Context) (Inventory, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu="+smiQueryFields,
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return Inventory{}, fmt.Errorf("nvidia-smi: %w", err)
	}

	r := csv.NewReader(strings.NewReader(string(out)))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var devices []GPUDevice
	for {
		fields, err := r.Read()
		if err != nil {
			break
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) < 6 {
			continue
		}
		devices = append(devices, GPUDevice{
			Index:             uint32(atoiOr(fields[0], 0)),
			UUID:              fields[1],
			Name:              fields[2],
			MemoryMB:          uint32(atoiOr(fields[3], 0)),
			ComputeCapability: fields[4],
			PCIBusID:          fields[5],
			PowerLimitW:       uint32(fieldOr(fields, 6)),
			TemperatureC:      uint32(fieldOr(fields, 7)),
		})
	}

	driverVersion, _ := driverVersionFromSMI(ctx)
	cudaVersion, _ := cudaVersionFromSMI(ctx)

	return Inventory{
		Tier:          TierVendorCLI,
		Devices:       devices,
		DriverVersion: driverVersion,
		CUDAVersion:   cudaVersion,
	}, nil
}

func driverVersionFromSMI(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=driver_version", "--format=csv,noheader").Output()
	if err != nil {
		return "unknown", err
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "unknown", fmt.Errorf("no driver version reported")
	}
	return strings.TrimSpace(lines[0]), nil
}

func cudaVersionFromSMI(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi").Output()
	if err != nil {
		return "", err
	}
	const marker = "CUDA Version: "
	idx := strings.Index(string(out), marker)
	if idx < 0 {
		return "", fmt.Errorf("CUDA version not found in nvidia-smi output")
	}
	rest := string(out)[idx+len(marker):]
	end := strings.IndexAny(rest, " \n")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end]), nil
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func fieldOr(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}
	return atoiOr(fields[i], 0)
}
