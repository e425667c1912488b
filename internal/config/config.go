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

// Package config holds the subset of Bolt's TOML configuration that the
// GPU and firewall subsystems own directly. Top-level config file
// discovery, merging, and the rest of Bolt's settings belong to the
// out-of-scope configuration loader; this package only defines the
// fragment documented in SPEC_FULL.md and a loader for it.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the GPU/firewall-relevant configuration fragment.
type Config struct {
	GPU      GPUConfig      `toml:"gpu"`
	Firewall FirewallConfig `toml:"firewall"`
}

// GPUConfig controls probe behavior.
type GPUConfig struct {
	// ProbeTimeout is the per-step probe duration loaded from the config
	// file. The driver prober does not read it: its probe steps run under
	// the caller's context with no deadline of their own.
	ProbeTimeout time.Duration `toml:"probe_timeout"`
	// AllowedDriverCapabilities restricts which capabilities a workload may
	// request, mirroring nvproxy's --nvproxy-allowed-driver-capabilities.
	AllowedDriverCapabilities []string `toml:"allowed_driver_capabilities"`
}

// FirewallConfig controls the firewall/port subsystem.
type FirewallConfig struct {
	PortRangeStart   uint16 `toml:"port_range_start"`
	PortRangeEnd     uint16 `toml:"port_range_end"`
	ReservedRangeEnd uint16 `toml:"reserved_range_end"`
	BackupDir        string `toml:"backup_dir"`
	BackupRetention  int    `toml:"backup_retention"`
	DryRun           bool   `toml:"dry_run"`
}

// Default returns the configuration baseline described in SPEC_FULL.md.
func Default() Config {
	return Config{
		GPU: GPUConfig{
			ProbeTimeout:              3 * time.Second,
			AllowedDriverCapabilities: []string{"all"},
		},
		Firewall: FirewallConfig{
			PortRangeStart:   1024,
			PortRangeEnd:     32767,
			ReservedRangeEnd: 65535,
			BackupDir:        "/var/lib/bolt/firewall-backups",
			BackupRetention:  30,
			DryRun:           false,
		},
	}
}

// Load reads a TOML fragment from path, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
