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

// Package driver identifies the NVIDIA driver variant installed on the
// host and the capabilities that variant grants, the way
// runsc/specutils.NVProxyEnabled and friends discriminate driver support
// before the sentry enables its nvproxy.
package driver

import "github.com/bolt-rt/bolt/internal/gpu/nvconf"

// Variant is the kind of NVIDIA (or nouveau) kernel driver stack present on
// the host.
type Variant int

const (
	// Unknown is the zero value; never returned from a successful Detect.
	Unknown Variant = iota
	// NvidiaOpen is the NVIDIA Open GPU Kernel Modules stack.
	NvidiaOpen
	// Proprietary is the closed-source NVIDIA driver.
	Proprietary
	// NouveauLegacy is the nouveau DRM driver without an NVK Vulkan ICD.
	NouveauLegacy
	// NvkVulkan is nouveau with Mesa's NVK Vulkan driver available.
	NvkVulkan
)

func (v Variant) String() string {
	switch v {
	case NvidiaOpen:
		return "nvidia-open"
	case Proprietary:
		return "proprietary"
	case NouveauLegacy:
		return "nouveau-legacy"
	case NvkVulkan:
		return "nvk-vulkan"
	default:
		return "unknown"
	}
}

// Capabilities describes what a Variant supports, independent of any
// specific workload request.
type Capabilities struct {
	SupportsNVAPI       bool
	SupportsCUDA        bool
	SupportsVulkan      bool
	SupportsRayTracing  bool
	SupportsTensorCores bool
	SupportedDriverCaps nvconf.DriverCaps
}

// capabilitiesFor returns the fixed capability profile for a variant, per
// the Variant-specific composition table.
func capabilitiesFor(v Variant) Capabilities {
	switch v {
	case NvidiaOpen:
		return Capabilities{
			SupportsNVAPI:       true,
			SupportsCUDA:        true,
			SupportsVulkan:      true,
			SupportsRayTracing:  true,
			SupportsTensorCores: true,
			SupportedDriverCaps: nvconf.SupportedCaps.Clone(),
		}
	case Proprietary:
		return Capabilities{
			SupportsNVAPI:       true,
			SupportsCUDA:        true,
			SupportsVulkan:      true,
			SupportsRayTracing:  true,
			SupportsTensorCores: true,
			SupportedDriverCaps: nvconf.SupportedCaps.Clone(),
		}
	case NouveauLegacy:
		return Capabilities{
			SupportsVulkan:      false,
			SupportedDriverCaps: nvconf.DriverCaps{nvconf.Utility: {}, nvconf.Graphics: {}, nvconf.Display: {}},
		}
	case NvkVulkan:
		return Capabilities{
			SupportsVulkan:      true,
			SupportedDriverCaps: nvconf.DriverCaps{nvconf.Utility: {}, nvconf.Graphics: {}, nvconf.Display: {}, nvconf.Video: {}},
		}
	default:
		return Capabilities{}
	}
}

// Result is the outcome of a successful Detect.
type Result struct {
	Variant      Variant
	Capabilities Capabilities
	// ModesetEnabled records whether nvidia_drm's modeset parameter was
	// observed as "Y", which strengthens NvidiaOpen detection confidence
	// but does not change the outcome on its own.
	ModesetEnabled bool
}
