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
	"strconv"
	"strings"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/gpu/nvconf"
)

// Process environment keys the Docker/nvidia-container-runtime ecosystem
// uses to request GPU access, so containers launched with `docker run
// --gpus` or a legacy nvidia-docker image keep working against Bolt without
// modification.
const (
	envVisibleDevices = "NVIDIA_VISIBLE_DEVICES"
	envDriverCaps     = "NVIDIA_DRIVER_CAPABILITIES"
	envCudaVersion    = "CUDA_VERSION"
	envRequireCuda    = "NVIDIA_REQUIRE_CUDA"
)

// lookupEnv returns the value of key in env (a process-style "KEY=value"
// slice) and whether it was present.
func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

// DeviceSpecFromEnv extracts the device spec a caller requested via
// NVIDIA_VISIBLE_DEVICES, for workloads launched the Docker way (an env var
// on the container process) rather than through a Bolt-native -devices flag.
//
// A value of "none" means "driver access without any GPU device bound" and
// is reported via ok=false; an absent variable is reported the same way, so
// callers can tell "nothing requested" from an explicit, resolvable spec.
func DeviceSpecFromEnv(env []string) (spec string, ok bool, err error) {
	raw, present := lookupEnv(env, envVisibleDevices)
	if !present || raw == "" || raw == "none" {
		return "", false, nil
	}
	if raw == "all" {
		return "all", true, nil
	}

	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if strings.HasPrefix(tok, "GPU-") {
			continue
		}
		if _, err := strconv.ParseUint(tok, 10, 32); err != nil {
			return "", false, bolterr.Wrap(bolterr.KindInvalidSpec, fmt.Sprintf("invalid token %q in %s=%q", tok, envVisibleDevices, raw), err)
		}
	}
	return raw, true, nil
}

// IsLegacyCudaImage reports whether env carries the marker pair a pre-GPU-flag
// CUDA image ships: CUDA_VERSION set without a corresponding
// NVIDIA_REQUIRE_CUDA constraint. Such images rely on the runtime to grant a
// permissive default capability set rather than declaring one themselves.
func IsLegacyCudaImage(env []string) bool {
	cudaVersion, _ := lookupEnv(env, envCudaVersion)
	requireCuda, _ := lookupEnv(env, envRequireCuda)
	return cudaVersion != "" && requireCuda == ""
}

// RestrictDriverCapsFromEnv narrows plan's already-computed DriverCaps to
// whatever the caller explicitly listed in NVIDIA_DRIVER_CAPABILITIES,
// updating both plan.DriverCaps and the corresponding env entry in
// plan.Env. It is a no-op when the variable is absent: workload-class-driven
// planning in Plan already picked a sensible default.
//
// An explicit but entirely disjoint request (e.g. "display" on a
// compute-only plan) is an error rather than a silent empty set, mirroring
// nvidia-container-runtime-hook's refusal to start a container whose
// requested capabilities can't be satisfied.
func RestrictDriverCapsFromEnv(plan *BindingPlan, env []string) error {
	raw, present := lookupEnv(env, envDriverCaps)
	if !present || raw == "" {
		return nil
	}

	requested := nvconf.DriverCapsFromString(raw)
	restricted := plan.DriverCaps.Intersect(requested)
	if len(restricted) == 0 {
		return bolterr.Wrap(bolterr.KindInvalidSpec,
			fmt.Sprintf("requested %s=%q shares no capability with the planned set %q", envDriverCaps, raw, plan.DriverCaps), nil)
	}

	plan.DriverCaps = restricted
	for i, e := range plan.Env {
		if e.Key == envDriverCaps {
			plan.Env[i].Value = restricted.String()
			return nil
		}
	}
	plan.Env = append(plan.Env, EnvVar{Key: envDriverCaps, Value: restricted.String()})
	return nil
}
