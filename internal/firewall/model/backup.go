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

package model

import (
	"time"

	"github.com/google/uuid"
)

// Backup is a point-in-time copy of every rule in the model, taken before
// any mutation so a failed apply (or an explicit restore) can return the
// model and host to exactly this state.
type Backup struct {
	ID        string
	Name      string
	Timestamp time.Time
	Rules     []Rule
	Metadata  map[string]string
}

// Snapshot captures the current model state as a Backup. now is supplied
// by the caller (the core never calls time.Now() itself, keeping Model
// deterministic and testable).
func (m *Model) Snapshot(name string, now time.Time) Backup {
	return Backup{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: now,
		Rules:     m.AllRules(),
		Metadata:  map[string]string{},
	}
}

// Restore replaces the model's entire rule set with the contents of b.
func (m *Model) Restore(b Backup) {
	m.mu.Lock()
	m.rules = make(map[string]*Rule, len(b.Rules))
	m.chains = make(map[chainKey]*Chain)
	m.nextSeq = 0
	m.mu.Unlock()

	for _, r := range b.Rules {
		// r.ID is already set from the backup; AddRule preserves a
		// non-empty ID rather than generating a new one.
		if _, err := m.AddRule(r); err != nil {
			// A backup was, by construction, a valid model at capture time;
			// a restore failure here means the backup was corrupted.
			continue
		}
	}
}
