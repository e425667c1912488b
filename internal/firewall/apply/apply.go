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

package apply

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/boltlog"
	"github.com/bolt-rt/bolt/internal/firewall/model"
)

var log = boltlog.For("firewall.apply")

// benignRestoreStderr lists iptables-restore stderr substrings that mean
// "already in the state we wanted", not a real failure — restoring a blob
// that re-declares an existing chain is expected on every re-apply.
var benignRestoreStderr = []string{
	"Chain already exists",
	"File exists",
}

// restoreRunner abstracts the invocation of iptables-restore so tests can
// substitute a recording fake instead of touching host netfilter state.
type restoreRunner func(ctx context.Context, blob string) (stderr string, err error)

// Applier renders a Model into the kernel's packet-filter tables as a
// single atomic operation, keeping a rolling backup history so a failed or
// unwanted apply can always be undone.
type Applier struct {
	run        restoreRunner
	newIPT     func() (IPTables, error)
	now        func() time.Time
	backups    []model.Backup
	maxBackups int
}

// NewApplier returns an Applier that shells out to iptables-restore and
// go-iptables for real host changes.
func NewApplier() *Applier {
	return &Applier{
		run:        execIptablesRestore,
		newIPT:     newIPTables,
		now:        time.Now,
		maxBackups: 30,
	}
}

// NewApplierWithHooks returns an Applier with its restore invocation and
// iptables-client construction overridden, so callers embedding an
// Applier (e.g. pkg/bolt.Runtime) can be exercised in tests without
// touching host netfilter state.
func NewApplierWithHooks(run func(ctx context.Context, blob string) (stderr string, err error), newIPT func() (IPTables, error), now func() time.Time) *Applier {
	return &Applier{run: run, newIPT: newIPT, now: now, maxBackups: 30}
}

// Apply bootstraps Bolt's chains, backs up the model's current rule set,
// then renders and restores the full blob. On any failure — a restore
// error whose stderr isn't in benignRestoreStderr — the model is restored
// to its pre-call backup and bolterr.KindApplyFailed is returned, so a
// failed apply always leaves both the kernel and the Model the way they
// were found (testable property 5). dryRun skips the restore invocation
// and chain bootstrap, only logging the rendered blob.
func (a *Applier) Apply(ctx context.Context, m *model.Model, dryRun bool) error {
	backup := m.Snapshot("pre-apply", a.now())

	blob := RenderBlob(m)

	if dryRun {
		log.WithField("rules", len(backup.Rules)).Debug("dry run: would restore blob\n" + blob)
		return nil
	}

	if a.newIPT != nil {
		ipt, err := a.newIPT()
		if err != nil {
			return bolterr.Wrap(bolterr.KindApplyFailed, "constructing iptables client", err)
		}
		if err := BootstrapChains(ipt); err != nil {
			return bolterr.Wrap(bolterr.KindApplyFailed, "bootstrapping bolt chains", err)
		}
	}

	stderr, err := a.run(ctx, blob)
	if err != nil && !isBenign(stderr) {
		m.Restore(backup)
		return bolterr.Wrap(bolterr.KindApplyFailed, "iptables-restore failed: "+strings.TrimSpace(stderr), err)
	}

	a.recordBackup(backup)
	return nil
}

// Rollback restores m to the most recent backup taken before the last
// successful Apply call, re-rendering and re-restoring it.
func (a *Applier) Rollback(ctx context.Context, m *model.Model) error {
	if len(a.backups) == 0 {
		return bolterr.New(bolterr.KindApplyFailed, "no backup available to roll back to")
	}
	last := a.backups[len(a.backups)-1]
	m.Restore(last)
	return a.Apply(ctx, m, false)
}

// Backups returns the retained backup history, oldest first.
func (a *Applier) Backups() []model.Backup {
	out := make([]model.Backup, len(a.backups))
	copy(out, a.backups)
	return out
}

func (a *Applier) recordBackup(b model.Backup) {
	a.backups = append(a.backups, b)
	if len(a.backups) > a.maxBackups {
		trim := len(a.backups) - a.maxBackups
		a.backups = a.backups[trim:]
	}
}

func isBenign(stderr string) bool {
	for _, s := range benignRestoreStderr {
		if strings.Contains(stderr, s) {
			return true
		}
	}
	return false
}

// execIptablesRestore writes blob to a temp file and invokes
// `iptables-restore` against it, mirroring the original implementation's
// own use of the restore utility for an all-or-nothing apply instead of
// issuing rules one at a time.
func execIptablesRestore(ctx context.Context, blob string) (string, error) {
	f, err := os.CreateTemp("", "bolt-iptables-restore-*.rules")
	if err != nil {
		return "", err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(blob); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "iptables-restore", "--counters", path)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err = cmd.Run()
	return stderr.String(), err
}
