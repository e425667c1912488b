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

package nft

import (
	"fmt"
	"strings"

	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// RenderConfig produces the textual `nft -f`-compatible equivalent of what
// Migrate submits over netlink, port forwards included, for dry-run
// rendering.
func RenderConfig(m *model.Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "table inet %s {\n", tableName)

	fmt.Fprintln(&b, "\tchain input {")
	fmt.Fprintln(&b, "\t\ttype filter hook input priority 0; policy drop;")
	fmt.Fprintln(&b, "\t\tiifname \"lo\" accept")
	fmt.Fprintln(&b, "\t\tct state established,related accept")
	fmt.Fprintln(&b, "\t}")

	fmt.Fprintln(&b, "\tchain forward {")
	fmt.Fprintln(&b, "\t\ttype filter hook forward priority 0; policy drop;")
	fmt.Fprintln(&b, "\t\tct state established,related accept")
	for _, r := range m.ChainRules(model.TableFilter, "BOLT-FORWARD") {
		if r.Target != "ACCEPT" || !r.Enabled || r.Destination == "" {
			continue
		}
		fmt.Fprintf(&b, "\t\tip daddr %s %s dport %s accept\n", r.Destination, protoOrTCP(r.Protocol), r.DPort)
	}
	fmt.Fprintln(&b, "\t}")

	fmt.Fprintln(&b, "\tchain output {")
	fmt.Fprintln(&b, "\t\ttype filter hook output priority 0; policy accept;")
	fmt.Fprintln(&b, "\t}")

	fmt.Fprintln(&b, "\tchain prerouting {")
	fmt.Fprintln(&b, "\t\ttype nat hook prerouting priority -100; policy accept;")
	for _, r := range m.ChainRules(model.TableNAT, "BOLT-PREROUTING") {
		if r.Target != "DNAT" || !r.Enabled || r.ToDestination == "" {
			continue
		}
		fmt.Fprintf(&b, "\t\t%s dport %s dnat to %s\n", protoOrTCP(r.Protocol), r.DPort, r.ToDestination)
	}
	fmt.Fprintln(&b, "\t}")

	fmt.Fprintln(&b, "\tchain postrouting {")
	fmt.Fprintln(&b, "\t\ttype nat hook postrouting priority 100; policy accept;")
	fmt.Fprintln(&b, "\t\toifname != \"lo\" masquerade")
	fmt.Fprintln(&b, "\t}")

	b.WriteString("}\n")
	return b.String()
}

func protoOrTCP(proto string) string {
	if proto == "" {
		return "tcp"
	}
	return proto
}
