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

// Package binding composes a BindingPlan from a driver variant, a workload
// class, and a resolved device set, the way runsc/specutils composes the
// nvproxy device list and capability env for a sandboxed container.
package binding

import "github.com/bolt-rt/bolt/internal/gpu/nvconf"

// DeviceKind distinguishes character and block device nodes.
type DeviceKind int

const (
	CharDevice DeviceKind = iota
	BlockDevice
)

// DeviceBinding is one device node exposed to the container.
type DeviceBinding struct {
	HostPath      string
	ContainerPath string
	Read          bool
	Write         bool
	Kind          DeviceKind
	// Required bindings must exist on the host or planning fails;
	// optional bindings are skipped when absent (a missing
	// /dev/nvidia-uvm-tools or /dev/nvidia-modeset also adds a plan warning).
	Required bool
}

// EnvVar is one ordered environment entry. BindingPlan keeps env as a slice
// rather than a map so that iteration order — and therefore plan
// serialization — is deterministic per the determinism requirement in
// spec.md §4.D.
type EnvVar struct {
	Key   string
	Value string
}

// ComputeKind selects the Compute workload's hint profile.
type ComputeKind int

const (
	ComputeScientific ComputeKind = iota
	ComputeRendering
	ComputeCrypto
	ComputeGeneric
)

// Workload is the sum type of things a BindingPlan can be built for.
type Workload struct {
	Class WorkloadClass

	// Gaming fields.
	DLSS       bool
	RayTracing bool

	// Ai fields.
	FlashAttention bool
	KVCache        bool
	MultiGPU       bool

	// Ml fields.
	Framework      string
	MixedPrecision bool
	Distributed    bool

	// Compute fields.
	ComputeKind ComputeKind
	PeerToPeer  bool
}

// WorkloadClass is the discriminant of Workload.
type WorkloadClass int

const (
	Gaming WorkloadClass = iota
	Ai
	Ml
	Compute
)

func (c WorkloadClass) String() string {
	switch c {
	case Gaming:
		return "gaming"
	case Ai:
		return "ai"
	case Ml:
		return "ml"
	case Compute:
		return "compute"
	default:
		return "unknown"
	}
}

// BindingPlan is the fully composed result handed back to the launcher. It
// owns no references into driver/inventory state: every field is a plain
// value, so two plans built from equal inputs compare equal.
type BindingPlan struct {
	Devices      []DeviceBinding
	Env          []EnvVar
	LibraryGlobs []string
	DriverCaps   nvconf.DriverCaps
	Warnings     []string
}
