// Copyright 2018 The gVisor Authors.
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

// Package route ingests configured routes and produces the
// non-decreasing-by-prefix-length sequence the DIR-24-8 builder
// requires.
//
// The original collaborator walked a singly-linked list kept sorted by
// insertion; here the pending set is kept in a github.com/google/btree
// ordered tree instead, giving the same walk order without manual list
// splicing (see SPEC_FULL.md, "Re-architect as an ordered sequence of
// values").
package route

import (
	"fmt"
	"net"

	"github.com/google/btree"

	"github.com/l3fwd/l3fwd/pkg/neterr"
)

// Pending is one route as supplied by configuration, before next-hop id
// allocation.
type Pending struct {
	// NetworkH is the network address with its host portion zeroed, in
	// host byte order.
	NetworkH uint32

	// MaskH is the prefix mask in host byte order; 0 for the default
	// route.
	MaskH uint32

	// PrefixLen is the prefix length, 0..32.
	PrefixLen int

	// Port is the egress interface index, 0..255.
	Port uint8

	// NextHopMAC is the next-hop's Ethernet address.
	NextHopMAC net.HardwareAddr

	// seq is the insertion order, used to keep the btree's walk stable
	// among routes of equal prefix length.
	seq int
}

// List is the sorted sequence of pending routes, non-decreasing by
// PrefixLen and, among ties, by insertion order.
type List struct {
	tree *btree.BTreeG[Pending]
	next int
}

func less(a, b Pending) bool {
	if a.PrefixLen != b.PrefixLen {
		return a.PrefixLen < b.PrefixLen
	}
	return a.seq < b.seq
}

// NewList returns an empty route list.
func NewList() *List {
	return &List{tree: btree.NewG(32, less)}
}

// Add ingests one route: network in network byte order, prefix in
// [0,32]. The host portion of the network is zeroed per spec.md §4.1
// step 2. Duplicates are permitted; among routes of equal prefix length,
// later-inserted routes win during fill because fill visits ties in
// insertion order.
func (l *List) Add(network net.IP, prefix int, port uint8, nextHopMAC net.HardwareAddr) error {
	if prefix < 0 || prefix > 32 {
		return neterr.New(neterr.CodeFormat, fmt.Sprintf("prefix length %d out of range [0,32]", prefix))
	}
	ip4 := network.To4()
	if ip4 == nil {
		return neterr.New(neterr.CodeFormat, fmt.Sprintf("%s is not an IPv4 address", network))
	}
	if len(nextHopMAC) != 6 {
		return neterr.New(neterr.CodeFormat, fmt.Sprintf("next-hop MAC %s is not 6 bytes", nextHopMAC))
	}

	netH := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
	maskH := uint32(0)
	if prefix > 0 {
		maskH = ^uint32(0) << (32 - prefix)
	}
	netH &= maskH

	mac := make(net.HardwareAddr, 6)
	copy(mac, nextHopMAC)

	l.tree.ReplaceOrInsert(Pending{
		NetworkH:   netH,
		MaskH:      maskH,
		PrefixLen:  prefix,
		Port:       port,
		NextHopMAC: mac,
		seq:        l.next,
	})
	l.next++
	return nil
}

// Len returns the number of ingested routes.
func (l *List) Len() int {
	return l.tree.Len()
}

// Sorted returns the routes non-decreasing by prefix length, ties broken
// by insertion order. This is the exact walk order the DIR-24-8 filler
// requires (spec.md §4.3).
func (l *List) Sorted() []Pending {
	out := make([]Pending, 0, l.tree.Len())
	l.tree.Ascend(func(p Pending) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Find returns the most recently inserted route matching network/prefix
// exactly, for test and debug tooling. It is not on the fast path; the
// DIR-24-8 lookup in pkg/fib is.
func (l *List) Find(network net.IP, prefix int) (Pending, bool) {
	var found Pending
	var ok bool
	ip4 := network.To4()
	if ip4 == nil {
		return Pending{}, false
	}
	netH := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
	maskH := uint32(0)
	if prefix > 0 {
		maskH = ^uint32(0) << (32 - prefix)
	}
	netH &= maskH

	l.tree.Ascend(func(p Pending) bool {
		if p.PrefixLen == prefix && p.NetworkH == netH {
			found = p
			ok = true
		}
		return true
	})
	return found, ok
}
