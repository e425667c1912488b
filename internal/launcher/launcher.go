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

// Package launcher declares the interface an external container launcher
// implements to consume a BindingPlan. Nothing in this module calls it —
// OCI image building, pulling, rootfs assembly, and actually running a
// container are explicitly out of scope (spec.md §1 Non-goals). The
// interface exists so the handoff point is documented: this core produces
// a BindingPlan value and mutates host firewall state; a launcher honors
// both, including applying BindingPlan.Env to the container process
// itself rather than this package ever calling os.Setenv globally.
package launcher

import "context"

// Launcher is implemented by the external container runtime that actually
// starts processes. ApplyEnv receives the already-composed environment
// from a gpu/binding.BindingPlan and is responsible for making it visible
// to pid's container (e.g. writing it into the OCI spec before the
// container process execs, not by mutating this process's environment).
type Launcher interface {
	ApplyEnv(ctx context.Context, pid int, env []string) error
}
