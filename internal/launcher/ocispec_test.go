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
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestGPUDevicesRequested(t *testing.T) {
	if GPUDevicesRequested(nil) {
		t.Fatal("nil spec should not request GPUs")
	}
	if GPUDevicesRequested(&specs.Spec{}) {
		t.Fatal("spec with no Linux section should not request GPUs")
	}

	spec := &specs.Spec{Linux: &specs.Linux{Devices: []specs.LinuxDevice{{Path: "/dev/nvidiactl"}}}}
	if !GPUDevicesRequested(spec) {
		t.Fatal("spec naming /dev/nvidiactl should request GPUs")
	}
}

func TestDeviceSpecFromOCISpec(t *testing.T) {
	spec := &specs.Spec{Process: &specs.Process{Env: []string{"NVIDIA_VISIBLE_DEVICES=0,1"}}}
	got, ok, err := DeviceSpecFromOCISpec(spec)
	if err != nil || !ok || got != "0,1" {
		t.Fatalf("got spec=%q ok=%v err=%v", got, ok, err)
	}

	if _, ok, err := DeviceSpecFromOCISpec(&specs.Spec{}); err != nil || ok {
		t.Fatalf("spec with no Process should report ok=false, got ok=%v err=%v", ok, err)
	}
}
