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

package netio

import (
	"fmt"
	"net"
	"sync"
)

// SimDevice is an in-memory Device used by tests to drive the data
// plane without hardware: each port has one inbound queue per bound
// interface that the test injects frames into, and an outbound log that
// records every transmitted and dropped buffer.
type SimDevice struct {
	mu        sync.Mutex
	macs      map[int]net.HardwareAddr
	rxQueues  map[[2]int][]*Buffer // (port, queue) -> pending inbound
	sent      map[[2]int][]*Buffer // (port, queue) -> transmitted, in order
	freed     []*Buffer
}

// NewSimDevice returns an empty SimDevice.
func NewSimDevice() *SimDevice {
	return &SimDevice{
		macs:     make(map[int]net.HardwareAddr),
		rxQueues: make(map[[2]int][]*Buffer),
		sent:     make(map[[2]int][]*Buffer),
	}
}

// SetMAC fixes the MAC address MAC will report for port.
func (d *SimDevice) SetMAC(port int, mac net.HardwareAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.macs[port] = mac
}

// Inject appends a buffer to port/queue's inbound queue, to be returned
// by a subsequent ReceiveBurst.
func (d *SimDevice) Inject(port, queue int, frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := &Buffer{Frame: append([]byte(nil), frame...)}
	key := [2]int{port, queue}
	d.rxQueues[key] = append(d.rxQueues[key], buf)
}

// Sent returns every buffer accepted by TransmitBurst on port/queue, in
// transmission order.
func (d *SimDevice) Sent(port, queue int) []*Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Buffer(nil), d.sent[[2]int{port, queue}]...)
}

// Freed returns every buffer passed to FreeBuffer, in drop order.
func (d *SimDevice) Freed() []*Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Buffer(nil), d.freed...)
}

func (d *SimDevice) ConfigureDevice(port int, numRxQueues int) error {
	return nil
}

func (d *SimDevice) MAC(port int) (net.HardwareAddr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mac, ok := d.macs[port]
	if !ok {
		return nil, fmt.Errorf("netio: no MAC configured for port %d", port)
	}
	return mac, nil
}

func (d *SimDevice) ReceiveBurst(port, queue int, out []*Buffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]int{port, queue}
	pending := d.rxQueues[key]
	n := copy(out, pending)
	d.rxQueues[key] = pending[n:]
	return n, nil
}

func (d *SimDevice) TransmitBurst(port, queue int, bufs []*Buffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]int{port, queue}
	d.sent[key] = append(d.sent[key], bufs...)
	return len(bufs), nil
}

func (d *SimDevice) FreeBuffer(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed = append(d.freed, b)
}
