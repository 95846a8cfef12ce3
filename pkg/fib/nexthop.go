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

package fib

import (
	"net"

	"github.com/l3fwd/l3fwd/pkg/neterr"
)

// initNoNextHops is the initial next-hop map capacity (spec.md §4.2,
// INIT_NO_NXT_HOPS). The map grows by this amount each time it fills.
const initNoNextHops = 20

// maxNextHops is the largest next-hop id a TBLlong entry (8 bits) or a
// TBL24 non-long index (15 bits, but constrained here to match TBLlong's
// width) can address. Id 0 is the reserved "no route" sentinel, so ids
// run 1..maxNextHops.
const maxNextHops = 255

// NextHop is the egress disposition for a matched route: the port to
// transmit on and the destination MAC to write into the Ethernet
// header.
type NextHop struct {
	Port uint8
	MAC  [6]byte
}

// nextHopAllocator assigns 8-bit next-hop ids to distinct (port, MAC)
// pairs, reusing an id when the same pair recurs (spec.md §4.2 step 2).
type nextHopAllocator struct {
	// hops is 1-indexed; hops[0] is an unused sentinel entry so that id
	// 0 never collides with a real assignment.
	hops  []NextHop
	count int
}

func newNextHopAllocator() *nextHopAllocator {
	return &nextHopAllocator{hops: make([]NextHop, initNoNextHops+1)}
}

// allocate returns the next-hop id for (port, mac), assigning a fresh one
// if this exact pair hasn't been seen yet.
func (a *nextHopAllocator) allocate(port uint8, mac net.HardwareAddr) (uint8, error) {
	var m [6]byte
	copy(m[:], mac)

	for id := 1; id <= a.count; id++ {
		if a.hops[id].Port == port && a.hops[id].MAC == m {
			return uint8(id), nil
		}
	}

	if a.count+1 > maxNextHops {
		return 0, neterr.New(neterr.CodeOutOfMemory, "next-hop map capacity exceeded (255)")
	}
	if a.count+1 >= len(a.hops) {
		grown := make([]NextHop, len(a.hops)+initNoNextHops)
		copy(grown, a.hops)
		a.hops = grown
	}
	a.count++
	a.hops[a.count] = NextHop{Port: port, MAC: m}
	return uint8(a.count), nil
}

// table returns the populated next-hop map, sized exactly to the number
// of distinct ids assigned (plus the unused sentinel at index 0).
func (a *nextHopAllocator) table() []NextHop {
	out := make([]NextHop, a.count+1)
	copy(out, a.hops[:a.count+1])
	return out
}
