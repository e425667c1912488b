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

package driver

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/boltlog"
)

var log = boltlog.For("gpu.driver")

// openKernelModules are the modules that, together, indicate the NVIDIA
// Open GPU Kernel Modules stack rather than the proprietary driver.
var openKernelModules = []string{
	"/sys/module/nvidia_drm",
	"/sys/module/nvidia_modeset",
	"/sys/module/nvidia_uvm",
}

var openDriverIndicators = []string{
	"/usr/src/nvidia-open",
	"/var/lib/dkms/nvidia-open",
}

var gspFirmwarePaths = []string{
	"/lib/firmware/nvidia",
	"/usr/lib/firmware/nvidia",
}

// turingOrLaterSeries lists GPU name substrings (lower-cased) for Turing
// and later generations, which NVIDIA Open modules support.
var turingOrLaterSeries = []string{
	"rtx 20", "rtx 30", "rtx 40", "rtx 50", "gtx 16",
	"quadro rtx", "tesla t", "tesla v100",
	"a100", "a40", "a30", "a10",
	"h100", "h800", "l40", "l4",
}

// nvkICDPaths are locations where a Mesa NVK/nouveau Vulkan ICD is
// typically installed.
var nvkICDPaths = []string{
	"/usr/share/vulkan/icd.d/nouveau_icd.x86_64.json",
	"/usr/lib/x86_64-linux-gnu/libvulkan_nouveau.so",
}

// Prober detects the host's NVIDIA driver variant, caching the result for
// the process lifetime until Invalidate is called. A host's driver variant
// does not change without a reboot or driver reinstall, so probing once per
// process is sufficient and avoids repeatedly shelling out to nvidia-smi
// and vulkaninfo on every Binding Planner call.
type Prober struct {
	mu       sync.Mutex
	once     sync.Once
	cached   Result
	cacheErr error
}

// NewProber returns a Prober with no cached result.
func NewProber() *Prober {
	return &Prober{}
}

// Invalidate clears the cached detection result, forcing the next Detect
// call to re-probe the host.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.once = sync.Once{}
	p.cached = Result{}
	p.cacheErr = nil
}

// Detect returns the cached driver Result, probing the host on first call
// (or after Invalidate). Returns a *bolterr.Error of KindNoNvidia if no
// driver variant could be matched.
func (p *Prober) Detect(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.once.Do(func() {
		p.cached, p.cacheErr = detect(ctx)
	})
	return p.cached, p.cacheErr
}

func detect(ctx context.Context) (Result, error) {
	log.Debug("detecting NVIDIA driver type")

	if open, modeset, err := checkNvidiaOpenDriver(ctx); err == nil && open {
		log.Info("NVIDIA Open GPU Kernel Modules detected")
		return Result{Variant: NvidiaOpen, Capabilities: capabilitiesFor(NvidiaOpen), ModesetEnabled: modeset}, nil
	}

	if exists("/sys/module/nvidia") || exists("/proc/driver/nvidia") {
		log.Info("NVIDIA proprietary driver detected")
		return Result{Variant: Proprietary, Capabilities: capabilitiesFor(Proprietary)}, nil
	}

	if exists("/sys/module/nouveau") {
		if checkNVKSupport(ctx) {
			log.Info("nouveau + NVK Vulkan driver detected")
			return Result{Variant: NvkVulkan, Capabilities: capabilitiesFor(NvkVulkan)}, nil
		}
		log.Info("nouveau driver detected")
		return Result{Variant: NouveauLegacy, Capabilities: capabilitiesFor(NouveauLegacy)}, nil
	}

	return Result{}, bolterr.Wrap(bolterr.KindNoNvidia, "no NVIDIA or nouveau driver modules found", nil)
}

// checkNvidiaOpenDriver reports whether the Open GPU Kernel Modules stack is
// present, and whether nvidia_drm's modeset parameter reads "Y".
func checkNvidiaOpenDriver(ctx context.Context) (open bool, modeset bool, err error) {
	found := 0
	for _, m := range openKernelModules {
		if exists(m) {
			found++
		}
	}
	if found < len(openKernelModules) {
		return false, false, nil
	}

	for _, indicator := range openDriverIndicators {
		if exists(indicator) {
			return true, modesetEnabled(), nil
		}
	}

	var gsp, turing bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gsp = checkGSPFirmwareSupport(gctx)
		return nil
	})
	g.Go(func() error {
		turing = checkTuringOrLaterGPU(gctx)
		return nil
	})
	// Detection probes are best-effort; errgroup is used only to run them
	// concurrently within the probe timeout budget, never to fail detect().
	_ = g.Wait()

	if gsp || turing {
		return true, modesetEnabled(), nil
	}
	return false, false, nil
}

func modesetEnabled() bool {
	data, err := os.ReadFile("/sys/module/nvidia_drm/parameters/modeset")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "Y"
}

func checkGSPFirmwareSupport(ctx context.Context) bool {
	for _, p := range gspFirmwarePaths {
		if exists(p) {
			return true
		}
	}
	out, err := runContext(ctx, "dmesg", "-t")
	if err != nil {
		return false
	}
	return strings.Contains(out, "GSP") && strings.Contains(out, "nvidia")
}

func checkTuringOrLaterGPU(ctx context.Context) bool {
	out, err := runContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		name := strings.ToLower(strings.TrimSpace(line))
		if name == "" {
			continue
		}
		for _, series := range turingOrLaterSeries {
			if strings.Contains(name, series) {
				return true
			}
		}
	}
	return false
}

func checkNVKSupport(ctx context.Context) bool {
	out, err := runContext(ctx, "vulkaninfo", "--summary")
	if err == nil && (strings.Contains(out, "NVK") || strings.Contains(out, "nouveau")) {
		return true
	}
	for _, p := range nvkICDPaths {
		if exists(p) {
			return true
		}
	}
	return false
}

// existsFunc is overridden in tests so driver-variant detection is
// deterministic without a real NVIDIA/nouveau host, matching
// internal/gpu/binding's existsFunc seam.
var existsFunc = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func exists(path string) bool {
	return existsFunc(path)
}

// runContextFunc is overridden in tests to fake dmesg/nvidia-smi/vulkaninfo
// output without shelling out on the test host.
var runContextFunc = func(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}

func runContext(ctx context.Context, name string, args ...string) (string, error) {
	return runContextFunc(ctx, name, args...)
}
