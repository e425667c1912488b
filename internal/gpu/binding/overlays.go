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
	"strings"

	"github.com/bolt-rt/bolt/internal/gpu/driver"
	"github.com/bolt-rt/bolt/internal/gpu/inventory"
)

// gamingOverlay implements the Gaming workload overlay: full capability
// set, DLSS/ray-tracing hints gated on variant support, with a warning when
// DLSS is requested on a non-RTX GPU.
func gamingOverlay(w Workload, variant driver.Result, indices []uint32, byIndex map[uint32]inventory.GPUDevice) []EnvVar {
	var env []EnvVar
	if w.DLSS && variant.Capabilities.SupportsRayTracing {
		env = append(env, EnvVar{Key: "NVIDIA_ENABLE_DLSS", Value: "1"}, EnvVar{Key: "DLSS_PERFMODE", Value: "BALANCED"})
	}
	if w.RayTracing && variant.Capabilities.SupportsRayTracing {
		env = append(env, EnvVar{Key: "NVIDIA_ENABLE_RTX", Value: "1"})
	}
	return env
}

// gamingWarnings reports a DLSS-on-non-RTX mismatch, appended by the
// caller after the device lookup so Plan keeps one warning path.
func gamingWarnings(w Workload, indices []uint32, byIndex map[uint32]inventory.GPUDevice) []string {
	if !w.DLSS {
		return nil
	}
	var warnings []string
	for _, idx := range indices {
		d, ok := byIndex[idx]
		if ok && !strings.Contains(strings.ToUpper(d.Name), "RTX") {
			warnings = append(warnings, "DLSS requested on a non-RTX GPU: "+d.Name)
		}
	}
	return warnings
}

// aiOverlay implements the Ai workload overlay: multi-GPU is an env hint
// only (device binding already includes every resolved index).
func aiOverlay(w Workload, indices []uint32, byIndex map[uint32]inventory.GPUDevice) []EnvVar {
	var env []EnvVar
	if w.MultiGPU && len(indices) > 1 {
		env = append(env, EnvVar{Key: "NVIDIA_MULTI_GPU", Value: "1"})
	}
	if w.FlashAttention {
		env = append(env, EnvVar{Key: "NVIDIA_FLASH_ATTENTION", Value: "1"})
	}
	if w.KVCache {
		env = append(env, EnvVar{Key: "NVIDIA_KV_CACHE", Value: "1"})
	}
	if tensorCoresAvailable(indices, byIndex) {
		env = append(env, EnvVar{Key: "NVIDIA_TENSOR_CORES", Value: "available"})
	}
	return env
}

// mlOverlay implements the Ml workload overlay.
func mlOverlay(w Workload, indices []uint32, byIndex map[uint32]inventory.GPUDevice) []EnvVar {
	var env []EnvVar
	if w.Framework != "" {
		env = append(env, EnvVar{Key: "NVIDIA_ML_FRAMEWORK", Value: w.Framework})
	}
	if w.MixedPrecision {
		env = append(env, EnvVar{Key: "NVIDIA_MIXED_PRECISION", Value: "1"})
	}
	if w.Distributed && len(indices) > 1 {
		env = append(env, EnvVar{Key: "NVIDIA_DISTRIBUTED_TRAINING", Value: "1"})
	}
	if tensorCoresAvailable(indices, byIndex) {
		env = append(env, EnvVar{Key: "NVIDIA_TENSOR_CORES", Value: "available"})
	}
	return env
}

// computeOverlay implements the Compute workload overlay; kind only
// influences env/warnings, never device selection.
func computeOverlay(w Workload) []EnvVar {
	switch w.ComputeKind {
	case ComputeScientific:
		env := []EnvVar{{Key: "NVIDIA_COMPUTE_PROFILE", Value: "scientific"}}
		if w.PeerToPeer {
			env = append(env, EnvVar{Key: "NVIDIA_PEER_TO_PEER", Value: "1"})
		}
		return env
	case ComputeRendering:
		return []EnvVar{{Key: "NVIDIA_COMPUTE_PROFILE", Value: "rendering"}}
	case ComputeCrypto:
		return []EnvVar{{Key: "NVIDIA_COMPUTE_PROFILE", Value: "crypto"}}
	default:
		return []EnvVar{{Key: "NVIDIA_COMPUTE_PROFILE", Value: "generic"}}
	}
}

func tensorCoresAvailable(indices []uint32, byIndex map[uint32]inventory.GPUDevice) bool {
	for _, idx := range indices {
		if d, ok := byIndex[idx]; ok && d.ComputeCapabilityAtLeast(7, 0) {
			return true
		}
	}
	return false
}
