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
	"fmt"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// portForwardPriority is the fixed priority spec.md §4.G assigns both
// halves of a port forward, so they sort ahead of the general-purpose
// rules in their chains but never collide with the remediation rules'
// priority band.
const portForwardPriority = 1000

// PortForwardRules returns the two rules (a NAT DNAT rule and a filter
// FORWARD accept rule) that together implement forwarding externalPort on
// the host to internalIP:internalPort inside a container. Both carry the
// same id prefix so RemovePortForward can find and remove the pair.
func PortForwardRules(id string, externalPort, internalPort uint16, internalIP, protocol string) []model.Rule {
	dport := fmt.Sprintf("%d", externalPort)
	dnatTo := fmt.Sprintf("%s:%d", internalIP, internalPort)
	return []model.Rule{
		{
			ID:            id + "-dnat",
			Table:         model.TableNAT,
			Chain:         "BOLT-PREROUTING",
			Target:        "DNAT",
			Protocol:      protocol,
			DPort:         dport,
			ToDestination: dnatTo,
			Comment:       "port-forward:" + dnatTo,
			Priority:      portForwardPriority,
			Enabled:       true,
			Creator:       model.CreatorBolt,
		},
		{
			ID:          id + "-forward",
			Table:       model.TableFilter,
			Chain:       "BOLT-FORWARD",
			Target:      "ACCEPT",
			Protocol:    protocol,
			Destination: internalIP,
			DPort:       fmt.Sprintf("%d", internalPort),
			State:       "NEW,ESTABLISHED,RELATED",
			Comment:     "port-forward:" + dnatTo,
			Priority:    portForwardPriority,
			Enabled:     true,
			Creator:     model.CreatorBolt,
		},
	}
}

// RemovePortForwardRules returns the rule IDs PortForwardRules would have
// created for id, so the caller can RemoveRule both halves.
func RemovePortForwardRules(id string) []string {
	return []string{id + "-dnat", id + "-forward"}
}
