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
	"net"
	"strconv"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"github.com/bolt-rt/bolt/internal/bolterr"
	"github.com/bolt-rt/bolt/internal/firewall/model"
)

// nfprotoIPv4 is NFPROTO_IPV4 from <linux/netfilter/nf_tables.h>, the
// address-family byte the NAT expression's Family field expects.
const nfprotoIPv4 = 2

// l4Proto maps a Rule.Protocol string to its IPPROTO_* number. Bolt only
// ever sets "tcp" or "udp"; an empty Protocol defaults to tcp, matching
// RenderConfig's own protoOrTCP fallback.
func l4Proto(protocol string) (byte, error) {
	switch protocol {
	case "", "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	default:
		return 0, bolterr.Wrap(bolterr.KindInvalidSpec, "unsupported port-forward protocol "+protocol, nil)
	}
}

func portBytes(s string) ([]byte, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil, bolterr.Wrap(bolterr.KindInvalidSpec, "invalid port "+s, err)
	}
	return []byte{byte(p >> 8), byte(p)}, nil
}

// splitToDestination parses a Rule.ToDestination ("ip:port") into its IPv4
// address and port bytes.
func splitToDestination(toDestination string) (net.IP, []byte, error) {
	host, port, err := net.SplitHostPort(toDestination)
	if err != nil {
		return nil, nil, bolterr.Wrap(bolterr.KindInvalidSpec, "invalid --to-destination "+toDestination, err)
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, nil, bolterr.Wrap(bolterr.KindInvalidSpec, "invalid --to-destination address "+host, nil)
	}
	portBs, err := portBytes(port)
	if err != nil {
		return nil, nil, err
	}
	return ip, portBs, nil
}

// dnatExprs builds the prerouting-chain match+verdict expressions for one
// port forward: match the external dport on protocol, then rewrite the
// destination address and port to r.ToDestination.
func dnatExprs(r model.Rule) ([]expr.Any, error) {
	proto, err := l4Proto(r.Protocol)
	if err != nil {
		return nil, err
	}
	dport, err := portBytes(r.DPort)
	if err != nil {
		return nil, err
	}
	destIP, destPort, err := splitToDestination(r.ToDestination)
	if err != nil {
		return nil, err
	}

	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 2, Len: 2},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: dport},
		&expr.Immediate{Register: 1, Data: destIP},
		&expr.Immediate{Register: 2, Data: destPort},
		&expr.NAT{
			Type:        expr.NATTypeDestNAT,
			Family:      nfprotoIPv4,
			RegAddrMin:  1,
			RegAddrMax:  1,
			RegProtoMin: 2,
			RegProtoMax: 2,
		},
	}, nil
}

// forwardAcceptExprs builds the forward-chain match+verdict expressions
// for one port forward's paired accept rule: match the internal
// destination address/port on protocol and NEW,ESTABLISHED,RELATED state,
// then accept.
func forwardAcceptExprs(r model.Rule) ([]expr.Any, error) {
	proto, err := l4Proto(r.Protocol)
	if err != nil {
		return nil, err
	}
	dport, err := portBytes(r.DPort)
	if err != nil {
		return nil, err
	}
	destIP := net.ParseIP(r.Destination).To4()
	if destIP == nil {
		return nil, bolterr.Wrap(bolterr.KindInvalidSpec, "invalid forward-accept destination "+r.Destination, nil)
	}

	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 16, Len: 4},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: destIP},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 2, Len: 2},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: dport},
		&expr.Ct{Register: 1, Key: expr.CtKeySTATE},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryUint32(expr.CtStateBitNEW | expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
			Xor:            binaryUint32(0),
		},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: binaryUint32(0)},
		&expr.Verdict{Kind: expr.VerdictAccept},
	}, nil
}

// installPortForwards translates every enabled BOLT-PREROUTING DNAT rule in
// m that carries a ToDestination, plus its paired BOLT-FORWARD accept rule,
// into native nftables expressions and adds them to the corresponding
// chain, so a migrated host's live ruleset carries the same port forwards
// the iptables configuration it replaces did (spec.md's S6 testable
// property: "subsequent traffic tests must show the same accept/drop
// decisions as the iptables configuration it replaces").
func installPortForwards(conn Conn, table *nftables.Table, chains map[string]*nftables.Chain, m *model.Model) (int, error) {
	installed := 0
	for _, r := range m.ChainRules(model.TableNAT, "BOLT-PREROUTING") {
		if r.Target != "DNAT" || !r.Enabled || r.ToDestination == "" {
			continue
		}
		exprs, err := dnatExprs(r)
		if err != nil {
			return installed, err
		}
		conn.AddRule(&nftables.Rule{Table: table, Chain: chains["prerouting"], Exprs: exprs})
		installed++
	}

	for _, r := range m.ChainRules(model.TableFilter, "BOLT-FORWARD") {
		if r.Target != "ACCEPT" || !r.Enabled || r.Destination == "" {
			continue
		}
		exprs, err := forwardAcceptExprs(r)
		if err != nil {
			return installed, err
		}
		conn.AddRule(&nftables.Rule{Table: table, Chain: chains["forward"], Exprs: exprs})
	}

	return installed, nil
}
