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

// Package netio defines the kernel-bypass packet I/O contract the
// forwarding core is built against (spec.md §6), plus two concrete
// devices: an in-memory SimDevice for tests, and an AF_PACKET-backed
// device for manual end-to-end testing on real or virtual NICs. Real
// kernel-bypass device initialization (core mask, memory pool setup,
// execution-context binding) remains out of scope; only the interface
// contract is specified here.
package netio

import "net"

// Buffer is a single packet buffer as delivered by the I/O substrate. A
// Buffer's Frame is the full Ethernet frame, with no headroom; workers
// read and write header fields in place and never copy it.
//
// Ownership follows move semantics (spec.md §9): a worker that receives
// a Buffer from ReceiveBurst owns it until it either transmits it (via
// TransmitBurst, which transfers ownership back to the device) or drops
// it (via FreeBuffer, which returns it to its pool). A Buffer must not
// be touched after either call.
type Buffer struct {
	// Frame is the buffer's active contents: destination MAC, source
	// MAC, EtherType, and payload, back to back with no gaps.
	Frame []byte
}

// Device is the contract the forwarding core needs from the underlying
// kernel-bypass packet I/O framework. Implementations must be safe for
// one goroutine per (port, queue) pair to call concurrently, since each
// worker owns exactly one receive queue per port.
type Device interface {
	// ConfigureDevice prepares port with the given number of receive
	// queues, one per bound interface (spec.md §5).
	ConfigureDevice(port int, numRxQueues int) error

	// MAC returns port's Ethernet address, as learned from the device.
	MAC(port int) (net.HardwareAddr, error)

	// ReceiveBurst is non-blocking: it returns immediately with
	// however many buffers (up to len(out)) are currently available on
	// port's queue, 0 if none.
	ReceiveBurst(port, queue int, out []*Buffer) (n int, err error)

	// TransmitBurst is non-blocking: it attempts to enqueue every
	// buffer in bufs on port's queue and returns how many were
	// accepted. Accepted buffers' ownership transfers to the device.
	TransmitBurst(port, queue int, bufs []*Buffer) (accepted int, err error)

	// FreeBuffer returns b to its pool. Called on every drop path.
	FreeBuffer(b *Buffer)
}

// Runtime is the contract for starting and joining per-interface worker
// execution contexts (spec.md §6's launch_on_context/wait_all_contexts).
// Real kernel-bypass runtimes pin each context to a dedicated OS thread
// or core; GoroutineRuntime, the stand-in used here, does not pin —
// core affinity is part of the out-of-scope initialization collaborator.
type Runtime interface {
	// LaunchOnContext starts fn running on execution context contextID
	// and returns immediately. fn takes no arguments; it runs until it
	// returns on its own (a worker does so when a context it captured
	// is canceled).
	LaunchOnContext(contextID int, fn func())

	// WaitAllContexts blocks until every goroutine started by
	// LaunchOnContext has returned.
	WaitAllContexts()
}
