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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/bolt-rt/bolt/pkg/bolt"
)

// probeDriverCommand implements subcommands.Command for "probe-driver".
type probeDriverCommand struct{}

func (*probeDriverCommand) Name() string     { return "probe-driver" }
func (*probeDriverCommand) Synopsis() string { return "detect the host's NVIDIA/nouveau driver variant" }
func (*probeDriverCommand) Usage() string {
	return "probe-driver - detect the host's NVIDIA/nouveau driver variant\n"
}
func (*probeDriverCommand) SetFlags(*flag.FlagSet) {}

func (*probeDriverCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	rt := bolt.New()
	result, err := rt.ProbeDriver(ctx)
	if err != nil {
		fmt.Println("probe failed:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("variant=%s nvapi=%v cuda=%v vulkan=%v rtx=%v tensor_cores=%v caps=%s\n",
		result.Variant, result.Capabilities.SupportsNVAPI, result.Capabilities.SupportsCUDA,
		result.Capabilities.SupportsVulkan, result.Capabilities.SupportsRayTracing,
		result.Capabilities.SupportsTensorCores, result.Capabilities.SupportedDriverCaps)
	return subcommands.ExitSuccess
}
