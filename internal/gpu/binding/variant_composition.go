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

import "github.com/bolt-rt/bolt/internal/gpu/driver"

// variantComposition returns the env additions and library globs fixed by
// the driver variant, per the composition table in spec.md §4.D.
func variantComposition(v driver.Variant) ([]EnvVar, []string) {
	switch v {
	case driver.NvidiaOpen:
		return []EnvVar{
				{Key: "__GL_GSP_OPTIMIZATIONS", Value: "1"},
				{Key: "__GL_TURING_OPTIMIZATIONS", Value: "1"},
				{Key: "VK_LAYER_PATH", Value: "/usr/share/vulkan/implicit_layer.d"},
				{Key: "WINE_ENABLE_NVAPI", Value: "1"},
				{Key: "DXVK_ENABLE_NVAPI", Value: "1"},
			}, []string{
				"nvidia-*", "libGL*", "libEGL*", "libvulkan*", "libcuda*",
			}
	case driver.Proprietary:
		return []EnvVar{
				{Key: "WINE_ENABLE_NVAPI", Value: "1"},
				{Key: "DXVK_ENABLE_NVAPI", Value: "1"},
				{Key: "DXVK_NVAPI_ALLOW_OTHER", Value: "1"},
			}, []string{
				"nvidia-*", "libGL*", "libEGL*", "libvulkan*", "libcuda*",
			}
	case driver.NouveauLegacy:
		return []EnvVar{
				{Key: "MESA_LOADER_DRIVER_OVERRIDE", Value: "nouveau"},
				{Key: "GALLIUM_DRIVER", Value: "nouveau"},
				{Key: "DXVK_ENABLE_NVAPI", Value: "0"},
			}, []string{
				"nouveau_dri*", "libGL*", "libEGL*",
			}
	case driver.NvkVulkan:
		return []EnvVar{
				{Key: "MESA_LOADER_DRIVER_OVERRIDE", Value: "nouveau"},
				{Key: "GALLIUM_DRIVER", Value: "nouveau"},
				{Key: "DXVK_ENABLE_NVAPI", Value: "0"},
				{Key: "VK_ICD_FILENAMES", Value: "/usr/share/vulkan/icd.d/nouveau_icd.x86_64.json"},
				{Key: "VKD3D_CONFIG", Value: "vulkan"},
			}, []string{
				"nouveau_dri*", "libGL*", "libEGL*", "libvulkan_nouveau*",
			}
	default:
		return nil, nil
	}
}
