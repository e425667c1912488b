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
	"os"

	"github.com/google/subcommands"

	"github.com/bolt-rt/bolt/internal/gpu/binding"
	"github.com/bolt-rt/bolt/pkg/bolt"
)

// planBindingCommand implements subcommands.Command for "plan-binding".
type planBindingCommand struct {
	workload      string
	devices       string
	fromDockerEnv bool
}

func (*planBindingCommand) Name() string     { return "plan-binding" }
func (*planBindingCommand) Synopsis() string { return "compose a GPU binding plan for a workload" }
func (*planBindingCommand) Usage() string {
	return "plan-binding -workload=<gaming|ai|ml|compute> -devices=<spec> - compose a GPU binding plan\n"
}

func (p *planBindingCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.workload, "workload", "ai", "workload class: gaming|ai|ml|compute")
	f.StringVar(&p.devices, "devices", "all", "device spec: all|comma-list|range|index|uuid|name")
	f.BoolVar(&p.fromDockerEnv, "from-docker-env", false, "read NVIDIA_VISIBLE_DEVICES/NVIDIA_DRIVER_CAPABILITIES from the process environment instead of -devices")
}

func (p *planBindingCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	workload, err := workloadFromFlag(p.workload)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitUsageError
	}

	rt := bolt.New()
	var plan binding.BindingPlan
	if p.fromDockerEnv {
		plan, err = rt.PlanBindingFromDockerEnv(ctx, workload, os.Environ())
	} else {
		plan, err = rt.PlanBinding(ctx, workload, p.devices)
	}
	if err != nil {
		fmt.Println("planning failed:", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("devices=%d env=%d library_globs=%v warnings=%v\n",
		len(plan.Devices), len(plan.Env), plan.LibraryGlobs, plan.Warnings)
	for _, e := range plan.Env {
		fmt.Printf("  %s=%s\n", e.Key, e.Value)
	}
	return subcommands.ExitSuccess
}

func workloadFromFlag(name string) (binding.Workload, error) {
	switch name {
	case "gaming":
		return binding.Workload{Class: binding.Gaming}, nil
	case "ai":
		return binding.Workload{Class: binding.Ai}, nil
	case "ml":
		return binding.Workload{Class: binding.Ml}, nil
	case "compute":
		return binding.Workload{Class: binding.Compute, ComputeKind: binding.ComputeGeneric}, nil
	default:
		return binding.Workload{}, fmt.Errorf("unknown workload class %q", name)
	}
}
