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

// Monitor samples current utilization for every GPU nvidia-smi can see. It
// is a point-in-time query, not part of the cached Inventory, since
// utilization changes continuously and callers that poll it (health
// dashboards, autoscalers) want a fresh read every call.
func Monitor(ctx context.Context) ([]GPUUsage, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,utilization.gpu,utilization.memory,memory.used,temperature.gpu,power.draw",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}

	r := csv.NewReader(strings.NewReader(string(out)))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var usage []GPUUsage
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
		idx, _ := strconv.ParseUint(fields[0], 10, 32)
		usage = append(usage, GPUUsage{
			Index:          uint32(idx),
			GPUUtilPercent: uint32(atoiOr(fields[1], 0)),
			MemUtilPercent: uint32(atoiOr(fields[2], 0)),
			MemoryUsedMB:   uint32(atoiOr(fields[3], 0)),
			TemperatureC:   uint32(atoiOr(fields[4], 0)),
			PowerDrawW:     uint32(atoiOr(fields[5], 0)),
		})
	}
	return usage, nil
}

// SupportsTensorCores reports whether any device in devices has compute
// capability >= 7.0 (Volta and later), the Tensor Core cutoff used by the
// AI/ML workload overlay.
func SupportsTensorCores(devices []GPUDevice) bool {
	for _, d := range devices {
		if d.ComputeCapabilityAtLeast(7, 0) {
			return true
		}
	}
	return false
}
