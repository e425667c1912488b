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

package launcher

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/bolt-rt/bolt/internal/gpu/binding"
)

// nvidiaCtlPath is the control device a GPU-aware OCI runtime injects into
// spec.Linux.Devices once a device plugin (or `docker run --gpus`) has
// allocated GPUs to the container.
const nvidiaCtlPath = "/dev/nvidiactl"

// GPUDevicesRequested reports whether spec already names the NVIDIA control
// device, the signal a launcher uses to decide whether to call PlanBinding
// at all before handing the container off to the runtime.
func GPUDevicesRequested(spec *specs.Spec) bool {
	if spec == nil || spec.Linux == nil {
		return false
	}
	for _, dev := range spec.Linux.Devices {
		if dev.Path == nvidiaCtlPath {
			return true
		}
	}
	return false
}

// DeviceSpecFromOCISpec extracts a Bolt device spec from an OCI container
// spec's process environment, so a launcher that only has a specs.Spec in
// hand (rather than a bare env slice) can still drive PlanBinding.
func DeviceSpecFromOCISpec(spec *specs.Spec) (deviceSpec string, ok bool, err error) {
	if spec == nil || spec.Process == nil {
		return "", false, nil
	}
	return binding.DeviceSpecFromEnv(spec.Process.Env)
}
