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

// Package netiface lists the network interfaces actually present on the
// host, the way runsc/boot composes a sandbox's link set before handing it
// to netstack — except here the list feeds a safety check rather than a
// virtual NIC, letting the conflict detector flag firewall rules that
// reference an interface (a torn-down docker0 bridge, a stale vethXXXX)
// that no longer exists.
package netiface

import "github.com/vishvananda/netlink"

// Lister reports the set of interface names currently present on the host.
type Lister interface {
	Interfaces() (map[string]bool, error)
}

// NetlinkLister is the real Lister, backed by a netlink link dump.
type NetlinkLister struct{}

// Interfaces implements Lister by listing every link netlink knows about.
func (NetlinkLister) Interfaces() (map[string]bool, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(links))
	for _, l := range links {
		names[l.Attrs().Name] = true
	}
	return names, nil
}
