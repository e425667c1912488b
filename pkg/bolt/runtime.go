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

// Package bolt is the public facade over the GPU-passthrough and
// Docker-iptables-remediation core: the library surface spec.md §6
// describes as "the core is library-shaped." Runtime is the single entry
// point a launcher embeds; everything else in this module is reached
// through it.
package bolt

import (
	"context"
	"strconv"
	"time"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/boltlog"
	"github.com/bolt-rt/bolt/internal/firewall/apply"
	"github.com/bolt-rt/bolt/internal/firewall/conflict"
	"github.com/bolt-rt/bolt/internal/firewall/model"
	"github.com/bolt-rt/bolt/internal/firewall/netiface"
	"github.com/bolt-rt/bolt/internal/firewall/nft"
	"github.com/bolt-rt/bolt/internal/gpu/binding"
	"github.com/bolt-rt/bolt/internal/gpu/driver"
	"github.com/bolt-rt/bolt/internal/gpu/inventory"
	"github.com/bolt-rt/bolt/internal/gpu/resolver"
)

var log = boltlog.For("bolt")

// Runtime wires together the GPU subsystem (A-D) and the firewall
// subsystem (E-H) behind the API spec.md §6 names.
type Runtime struct {
	prober  *driver.Prober
	firewal *model.Model
	ports   *conflict.Manager
	applier *apply.Applier
}

// New returns a Runtime with an empty firewall model and a fresh,
// uncached driver prober.
func New() *Runtime {
	m := model.New()
	bootstrapModelChains(m)
	ports := conflict.NewManager(conflict.ProcNetChecker{}, time.Now)
	ports.SetIfaceLister(netiface.NetlinkLister{})
	return &Runtime{
		prober:  driver.NewProber(),
		firewal: m,
		ports:   ports,
		applier: apply.NewApplier(),
	}
}

// newForTesting builds a Runtime from already-constructed internals, so
// tests can substitute fakes for the applier's restore runner, the
// iptables client, and the port checker without touching host state.
func newForTesting(prober *driver.Prober, ports *conflict.Manager, applier *apply.Applier) *Runtime {
	m := model.New()
	bootstrapModelChains(m)
	return &Runtime{prober: prober, firewal: m, ports: ports, applier: applier}
}

// bootstrapModelChains registers Bolt's five owned chains in the
// in-memory model so AddRule's valid-chain check accepts them before the
// first real Apply.
func bootstrapModelChains(m *model.Model) {
	m.EnsureChain(model.TableFilter, "BOLT-INPUT", model.PolicyDrop)
	m.EnsureChain(model.TableFilter, "BOLT-OUTPUT", model.PolicyAccept)
	m.EnsureChain(model.TableFilter, "BOLT-FORWARD", model.PolicyDrop)
	m.EnsureChain(model.TableNAT, "BOLT-PREROUTING", model.PolicyAccept)
	m.EnsureChain(model.TableNAT, "BOLT-POSTROUTING", model.PolicyAccept)
}

// ProbeDriver implements probe_driver(): detects and caches the host's
// NVIDIA/nouveau driver variant.
func (r *Runtime) ProbeDriver(ctx context.Context) (driver.Result, error) {
	return r.prober.Detect(ctx)
}

// InvalidateDriverProbe forces the next ProbeDriver call to re-run
// detection instead of returning the cached result.
func (r *Runtime) InvalidateDriverProbe() {
	r.prober.Invalidate()
}

// PlanBinding implements plan_binding(workload, device_spec): probes the
// driver (cached), lists the current GPU inventory, resolves deviceSpec
// against it, and composes the BindingPlan.
func (r *Runtime) PlanBinding(ctx context.Context, workload binding.Workload, deviceSpec string) (binding.BindingPlan, error) {
	variant, err := r.prober.Detect(ctx)
	if err != nil {
		return binding.BindingPlan{}, err
	}

	inv, err := inventory.List(ctx)
	if err != nil {
		return binding.BindingPlan{}, err
	}
	if inv.SysfsFallback {
		log.Warn("GPU inventory fell back to sysfs scan; memory/compute-capability fields may be unavailable")
	}

	indices, err := resolver.Resolve(deviceSpec, inv.Devices)
	if err != nil {
		return binding.BindingPlan{}, err
	}

	return binding.Plan(workload, variant, indices, inv)
}

// PlanBindingFromDockerEnv implements plan_binding for callers invoked the
// Docker way: the device spec and capability restriction travel as
// NVIDIA_VISIBLE_DEVICES / NVIDIA_DRIVER_CAPABILITIES entries in env
// (typically os.Environ() of the container process) rather than as an
// explicit -devices flag, so images and compose files written against
// nvidia-container-runtime keep working unmodified against Bolt.
func (r *Runtime) PlanBindingFromDockerEnv(ctx context.Context, workload binding.Workload, env []string) (binding.BindingPlan, error) {
	spec, ok, err := binding.DeviceSpecFromEnv(env)
	if err != nil {
		return binding.BindingPlan{}, err
	}
	if !ok {
		return binding.BindingPlan{}, bolterr.Wrap(bolterr.KindInvalidSpec, "no GPU device requested via NVIDIA_VISIBLE_DEVICES", nil)
	}

	plan, err := r.PlanBinding(ctx, workload, spec)
	if err != nil {
		return binding.BindingPlan{}, err
	}
	if err := binding.RestrictDriverCapsFromEnv(&plan, env); err != nil {
		return binding.BindingPlan{}, err
	}
	return plan, nil
}

// CreatePortForward implements create_port_forward(): allocates the
// external port (failing with bolterr.KindPortInUse on conflict), adds
// the paired NAT DNAT + filter FORWARD-accept rules to the model, and
// applies the updated model atomically.
func (r *Runtime) CreatePortForward(ctx context.Context, externalPort uint16, internalIP string, internalPort uint16, protocol string) error {
	alloc, err := r.ports.Allocate(ctx, externalPort, protocol, "", "", conflict.PurposeContainerPort)
	if err != nil {
		return err
	}

	id := "pf-" + protocol + "-" + strconv.Itoa(int(alloc.Port))
	undo := func() {
		for _, ruleID := range apply.RemovePortForwardRules(id) {
			r.firewal.RemoveRule(ruleID)
		}
		r.ports.Release(alloc.Port, protocol)
	}
	for _, rule := range apply.PortForwardRules(id, alloc.Port, internalPort, internalIP, protocol) {
		if _, err := r.firewal.AddRule(rule); err != nil {
			undo()
			return bolterr.Wrap(bolterr.KindApplyFailed, "adding port forward rule", err)
		}
	}

	if err := r.applier.Apply(ctx, r.firewal, false); err != nil {
		undo()
		return err
	}
	return nil
}

// RemovePortForward implements remove_port_forward(): removes both halves
// of the port forward from the model, releases the port allocation, and
// re-applies.
func (r *Runtime) RemovePortForward(ctx context.Context, externalPort uint16, protocol string) error {
	id := "pf-" + protocol + "-" + strconv.Itoa(int(externalPort))
	for _, ruleID := range apply.RemovePortForwardRules(id) {
		r.firewal.RemoveRule(ruleID)
	}
	r.ports.Release(externalPort, protocol)
	return r.applier.Apply(ctx, r.firewal, false)
}

// AnalysisReport is the result of AnalyzeDockerFirewall.
type AnalysisReport = conflict.Report

// AnalyzeDockerFirewall implements analyze_docker_firewall(): runs the
// conflict scan (dangerous rules, port conflicts, duplicates) read-only.
func (r *Runtime) AnalyzeDockerFirewall(ctx context.Context) (AnalysisReport, error) {
	return conflict.Scan(ctx, r.firewal, r.ports)
}

// ChangeReport summarizes what RemediateDockerFirewall changed.
type ChangeReport struct {
	RulesRemoved []model.Rule
	RulesAdded   []model.Rule
	DryRun       bool
}

// RemediateDockerFirewall implements remediate_docker_firewall(dry_run):
// scans for dangerous Docker-created ACCEPT-from-anywhere rules, removes
// them, installs the restrictive established/related + RFC1918 +
// default-deny rule set into BOLT-FORWARD in their place, and applies the
// result unless dryRun is set. Per spec.md §4.F, this is the "replace with
// the restrictive Bolt-chain set" resolution for dangerous rules, not a
// purely additive one.
func (r *Runtime) RemediateDockerFirewall(ctx context.Context, dryRun bool) (ChangeReport, error) {
	report, err := conflict.Scan(ctx, r.firewal, r.ports)
	if err != nil {
		return ChangeReport{}, err
	}

	var removed []model.Rule
	for _, d := range report.Dangerous {
		r.firewal.RemoveRule(d.Rule.ID)
		removed = append(removed, d.Rule)
	}

	added := apply.RemediateDockerFirewall()
	for _, rule := range added {
		if _, err := r.firewal.AddRule(rule); err != nil {
			return ChangeReport{}, err
		}
	}
	if err := r.applier.Apply(ctx, r.firewal, dryRun); err != nil {
		return ChangeReport{}, err
	}
	return ChangeReport{RulesRemoved: removed, RulesAdded: added, DryRun: dryRun}, nil
}

// PortRelocation describes one port-collision resolution performed by
// ResolvePortConflicts: the allocation moved from OldPort to NewPort and
// every firewall rule that referenced OldPort was rewritten to match.
type PortRelocation struct {
	OldPort  uint16
	NewPort  uint16
	Protocol string
}

// ResolvePortConflicts implements the automatic port-collision resolution
// spec.md §4.F describes: for every Bolt allocation the scan finds
// colliding with a host or Docker listener, search [port+1000, port+2000]
// for a free slot, move the allocation there, rewrite every firewall rule
// that references the old port, and re-apply the model atomically.
func (r *Runtime) ResolvePortConflicts(ctx context.Context) ([]PortRelocation, error) {
	report, err := conflict.Scan(ctx, r.firewal, r.ports)
	if err != nil {
		return nil, err
	}

	var relocations []PortRelocation
	for _, issue := range report.PortIssues {
		old := issue.Allocation
		newPort, err := r.ports.FindAvailableInRange(ctx, old.Port+1000, old.Port+2000, old.Protocol)
		if err != nil {
			return relocations, err
		}
		if _, ok := r.ports.Move(old.Port, newPort, old.Protocol); !ok {
			continue
		}
		r.rewritePortReferences(old.Port, newPort, old.Protocol)
		relocations = append(relocations, PortRelocation{OldPort: old.Port, NewPort: newPort, Protocol: old.Protocol})
	}

	if len(relocations) == 0 {
		return relocations, nil
	}
	return relocations, r.applier.Apply(ctx, r.firewal, false)
}

// rewritePortReferences updates every rule whose DPort names oldPort under
// protocol to newPort instead, preserving the rule's identity and every
// other field.
func (r *Runtime) rewritePortReferences(oldPort, newPort uint16, protocol string) {
	oldStr := strconv.Itoa(int(oldPort))
	newStr := strconv.Itoa(int(newPort))
	for _, rule := range r.firewal.AllRules() {
		if rule.Protocol != protocol || rule.DPort != oldStr {
			continue
		}
		rule.DPort = newStr
		if _, err := r.firewal.ReplaceRule(rule.ID, rule); err != nil {
			log.WithField("rule", rule.ID).Warnf("rewriting port-conflict rule failed: %v", err)
		}
	}
}

// MigrateToNFTables implements migrate_to_nftables(): translates the
// current model into an equivalent nftables configuration and installs
// it as a single atomic netlink batch.
func (r *Runtime) MigrateToNFTables() error {
	mig, err := nft.NewMigrator()
	if err != nil {
		return err
	}
	return mig.Migrate(r.firewal)
}

// RenderNFTablesConfig returns the textual nft(8) equivalent of the
// current model, for dry-run inspection before MigrateToNFTables cuts
// traffic over.
func (r *Runtime) RenderNFTablesConfig() string {
	return nft.RenderConfig(r.firewal)
}

// Backups returns the firewall applier's retained backup history.
func (r *Runtime) Backups() []model.Backup {
	return r.applier.Backups()
}
