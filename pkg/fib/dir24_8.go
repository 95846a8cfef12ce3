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

// Package fib implements the DIR-24-8 two-level direct lookup table:
// O(1) worst-case longest-prefix-match for IPv4 routes, built once from
// a sorted route list and queried read-only thereafter by every worker.
package fib

import (
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/route"
)

const (
	// tbl24Bits is the number of top bits TBL24 is indexed by.
	tbl24Bits = 24
	// tbl24Size is 2^24, one entry per possible /24 prefix.
	tbl24Size = 1 << tbl24Bits

	// tblLongBlockSize is the number of entries in one TBLlong block,
	// one per possible value of the low 8 bits of an address.
	tblLongBlockSize = 256

	// tblLongMaxEntries bounds the number of TBLlong blocks; TBL24's
	// 15-bit index field could address far more, but this cap keeps
	// TBLlong at a fixed, modest size (1 MiB of uint8 entries).
	tblLongMaxEntries = 4096
)

// indicatorBit is bit 15 of a packed TBL24 entry: 0 means the remaining
// 15 bits are a next-hop id, 1 means they index a TBLlong block.
const indicatorBit = uint16(1) << 15
const indexMask = indicatorBit - 1

func packEntry(isLong bool, index uint32) uint16 {
	v := uint16(index) & indexMask
	if isLong {
		v |= indicatorBit
	}
	return v
}

func entryIsLong(e uint16) bool   { return e&indicatorBit != 0 }
func entryIndex(e uint16) uint32  { return uint32(e & indexMask) }

// Table is the built, immutable DIR-24-8 forwarding table. The zero
// value is not usable; construct with Build. Once built, a Table is
// safe for concurrent read-only use by any number of goroutines with no
// synchronization, because nothing ever mutates it again.
type Table struct {
	tbl24            []uint16
	tblLong          []uint8
	noTblLongEntries int
	nextHops         []NextHop
}

// Build constructs a Table from routes. routes must be non-decreasing by
// PrefixLen (route.List.Sorted already guarantees this); that ordering
// is the precondition that lets less-specific routes be overwritten
// in-place by more-specific ones during the fill pass (spec.md §4.3).
func Build(routes []route.Pending) (*Table, error) {
	alloc := newNextHopAllocator()
	hopIDs := make([]uint8, len(routes))
	for i, r := range routes {
		id, err := alloc.allocate(r.Port, r.NextHopMAC)
		if err != nil {
			return nil, err
		}
		hopIDs[i] = id
	}

	t := &Table{
		tbl24:    make([]uint16, tbl24Size),
		nextHops: alloc.table(),
	}

	for i, r := range routes {
		if err := t.fillRoute(r, hopIDs[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// fillRoute writes one route's next-hop id into TBL24, allocating and
// pre-filling a TBLlong block the first time a /25+ route falls under a
// given /24 (spec.md §4.3).
func (t *Table) fillRoute(r route.Pending, id uint8) error {
	netH, maskH := r.NetworkH, r.MaskH

	if r.PrefixLen <= 24 {
		start := netH >> 8
		end := (netH + ^maskH) >> 8
		entry := packEntry(false, uint32(id))
		for i := start; i <= end; i++ {
			t.tbl24[i] = entry
		}
		return nil
	}

	slotIdx := netH >> 8
	slot := t.tbl24[slotIdx]

	var blockIdx uint32
	if entryIsLong(slot) {
		// A previous /25+ route under this same /24 already created
		// the block; reuse it instead of allocating a fresh one
		// (spec.md §9, resolving the TBLlong-reuse open question).
		blockIdx = entryIndex(slot)
	} else {
		if t.noTblLongEntries >= tblLongMaxEntries {
			return neterr.New(neterr.CodeOutOfMemory, "TBLlong block count exceeded TBLlong_MAX_ENTRIES")
		}
		if t.tblLong == nil {
			t.tblLong = make([]uint8, tblLongMaxEntries*tblLongBlockSize)
		}
		blockIdx = uint32(t.noTblLongEntries)
		t.noTblLongEntries++
		t.tbl24[slotIdx] = packEntry(true, blockIdx)

		// Pre-fill the new block with whatever less-specific next-hop
		// previously covered this /24, preserving it outside the
		// sub-range this route overwrites.
		prevID := uint8(entryIndex(slot))
		base := int(blockIdx) * tblLongBlockSize
		block := t.tblLong[base : base+tblLongBlockSize]
		for i := range block {
			block[i] = prevID
		}
	}

	base := int(blockIdx) * tblLongBlockSize
	startOct := netH & 0xFF
	endOct := startOct + (^maskH & 0xFF)
	for i := startOct; i <= endOct; i++ {
		t.tblLong[base+int(i)] = id
	}
	return nil
}

// Lookup returns the next-hop for dstH, an IPv4 address in host byte
// order. It never blocks, never allocates, and branches exactly once
// (spec.md §4.4).
func (t *Table) Lookup(dstH uint32) (NextHop, bool) {
	slot := t.tbl24[dstH>>8]

	var id uint8
	if !entryIsLong(slot) {
		id = uint8(entryIndex(slot))
	} else {
		base := int(entryIndex(slot)) * tblLongBlockSize
		id = t.tblLong[base+int(dstH&0xFF)]
	}

	if id == 0 {
		return NextHop{}, false
	}
	return t.nextHops[id], true
}

// NoTblLongEntries returns the number of allocated TBLlong blocks, for
// tests and invariant checks.
func (t *Table) NoTblLongEntries() int {
	return t.noTblLongEntries
}

// NextHopCount returns the number of distinct next-hop ids assigned
// (excluding the reserved id 0), for tests and invariant checks.
func (t *Table) NextHopCount() int {
	return len(t.nextHops) - 1
}

// Release drops the table's backing arrays, making it unusable. It is
// only safe to call once every worker holding a reference to this Table
// has stopped (spec.md §5's "optional clean-shutdown entry point").
func (t *Table) Release() {
	t.tbl24 = nil
	t.tblLong = nil
	t.nextHops = nil
}
