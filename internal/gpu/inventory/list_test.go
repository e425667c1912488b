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

import "testing"

func TestReindexClosesGaps(t *testing.T) {
	inv := Inventory{Devices: []GPUDevice{
		{Index: 5, UUID: "gpu-5"},
		{Index: 1, UUID: "gpu-1"},
	}}
	got := reindex(inv)
	if got.Devices[0].Index != 0 || got.Devices[0].UUID != "gpu-1" {
		t.Fatalf("expected gpu-1 at index 0, got %+v", got.Devices[0])
	}
	if got.Devices[1].Index != 1 || got.Devices[1].UUID != "gpu-5" {
		t.Fatalf("expected gpu-5 at index 1, got %+v", got.Devices[1])
	}
}

func TestParseComputeCapability(t *testing.T) {
	cases := []struct {
		in    string
		major int
		minor int
		ok    bool
	}{
		{"7.5", 7, 5, true},
		{"8.9", 8, 9, true},
		{"Unknown", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		major, minor, ok := parseComputeCapability(c.in)
		if ok != c.ok || major != c.major || minor != c.minor {
			t.Errorf("parseComputeCapability(%q) = (%d, %d, %v), want (%d, %d, %v)",
				c.in, major, minor, ok, c.major, c.minor, c.ok)
		}
	}
}

func TestComputeCapabilityAtLeast(t *testing.T) {
	d := GPUDevice{ComputeCapability: "7.5"}
	if !d.ComputeCapabilityAtLeast(7, 0) {
		t.Error("7.5 should be >= 7.0")
	}
	if d.ComputeCapabilityAtLeast(8, 0) {
		t.Error("7.5 should not be >= 8.0")
	}
	unknown := GPUDevice{ComputeCapability: "Unknown"}
	if unknown.ComputeCapabilityAtLeast(0, 0) {
		t.Error("Unknown compute capability should never satisfy a minimum")
	}
}

func TestSupportsTensorCores(t *testing.T) {
	none := []GPUDevice{{ComputeCapability: "6.1"}}
	if SupportsTensorCores(none) {
		t.Error("Pascal (6.1) should not report Tensor Core support")
	}
	some := []GPUDevice{{ComputeCapability: "6.1"}, {ComputeCapability: "8.6"}}
	if !SupportsTensorCores(some) {
		t.Error("Ampere (8.6) should report Tensor Core support")
	}
}
