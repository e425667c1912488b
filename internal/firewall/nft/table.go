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

// Package nft installs the nftables-native equivalent of Bolt's iptables
// configuration: an "inet bolt" table with the fixed chain/hook/priority
// layout from spec.md §4.H, submitted to the kernel as a single atomic
// netlink batch.
package nft

import (
	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

// chainSpec is one of the five fixed chains Migrate installs.
type chainSpec struct {
	name     string
	hook     *nftables.ChainHook
	priority *nftables.ChainPriority
	policy   *nftables.ChainPolicy
}

func acceptPolicy() *nftables.ChainPolicy { p := nftables.ChainPolicyAccept; return &p }
func dropPolicy() *nftables.ChainPolicy   { p := nftables.ChainPolicyDrop; return &p }

// chainSpecs is the exact hook/priority/policy table from spec.md §4.H:
// input and forward default-deny with established/related (and, for
// input, loopback) fast-accepted; output default-accept; prerouting/
// postrouting as NAT hooks with postrouting masquerading non-loopback
// egress.
func chainSpecs() []chainSpec {
	return []chainSpec{
		{name: "input", hook: nftables.ChainHookInput, priority: nftables.ChainPriorityFilter, policy: dropPolicy()},
		{name: "forward", hook: nftables.ChainHookForward, priority: nftables.ChainPriorityFilter, policy: dropPolicy()},
		{name: "output", hook: nftables.ChainHookOutput, priority: nftables.ChainPriorityFilter, policy: acceptPolicy()},
		{name: "prerouting", hook: nftables.ChainHookPrerouting, priority: nftables.ChainPriorityNATDest, policy: acceptPolicy()},
		{name: "postrouting", hook: nftables.ChainHookPostrouting, priority: nftables.ChainPriorityNATSource, policy: acceptPolicy()},
	}
}

// establishedRelatedExprs matches ct state established,related and accepts.
func establishedRelatedExprs() []expr.Any {
	return []expr.Any{
		&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
			Xor:            binaryUint32(0),
		},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: binaryUint32(0)},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}
}

// loopbackAcceptExprs matches iifname "lo" and accepts, for input only.
func loopbackAcceptExprs() []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifname("lo")},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}
}

// masqueradeNonLoopbackExprs matches !oifname "lo" and masquerades, for
// postrouting egress.
func masqueradeNonLoopbackExprs() []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: ifname("lo")},
		&expr.Masq{},
	}
}

func ifname(name string) []byte {
	b := make([]byte, 16)
	copy(b, name)
	return b
}

func binaryUint32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
