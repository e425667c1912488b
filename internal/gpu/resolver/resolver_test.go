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

package resolver

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/gpu/inventory"
)

func testDevices() []inventory.GPUDevice {
	return []inventory.GPUDevice{
		{Index: 0, UUID: "GPU-aaaa", Name: "NVIDIA GeForce RTX 4090"},
		{Index: 1, UUID: "GPU-bbbb", Name: "NVIDIA GeForce RTX 3080"},
		{Index: 2, UUID: "GPU-cccc", Name: "Tesla T4"},
	}
}

func TestResolveAll(t *testing.T) {
	got, err := Resolve("all", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve(all) = %v, want %v", got, want)
	}
}

func TestResolveCommaList(t *testing.T) {
	got, err := Resolve("2,0,0", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve(2,0,0) = %v, want %v", got, want)
	}
}

func TestResolveRange(t *testing.T) {
	got, err := Resolve("0-1", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve(0-1) = %v, want %v", got, want)
	}
}

func TestResolveRangeRejectsBackwards(t *testing.T) {
	_, err := Resolve("2-0", testDevices())
	assertInvalidSpec(t, err)
}

func TestResolveSingleIndex(t *testing.T) {
	got, err := Resolve("1", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint32{1}) {
		t.Errorf("Resolve(1) = %v, want [1]", got)
	}
}

func TestResolveUUID(t *testing.T) {
	got, err := Resolve("GPU-cccc", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint32{2}) {
		t.Errorf("Resolve(GPU-cccc) = %v, want [2]", got)
	}
}

func TestResolveNameSubstring(t *testing.T) {
	got, err := Resolve("tesla", testDevices())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []uint32{2}) {
		t.Errorf("Resolve(tesla) = %v, want [2]", got)
	}
}

func TestResolveEmptySetIsInvalidSpec(t *testing.T) {
	_, err := Resolve("nonexistent-gpu-name", testDevices())
	assertInvalidSpec(t, err)
}

func TestResolveAllOnEmptyInventoryIsInvalidSpec(t *testing.T) {
	_, err := Resolve("all", nil)
	assertInvalidSpec(t, err)
}

func assertInvalidSpec(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errors.Is(err, bolterr.InvalidSpec) {
		t.Fatalf("expected bolterr.InvalidSpec, got %v", err)
	}
}
