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

//go:build linux

package netio

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// AFPacketDevice is a Device backed by one Linux AF_PACKET raw socket
// per bound interface. It is not a kernel-bypass substrate — every
// frame still crosses the kernel's socket layer — but it satisfies the
// same Device contract as a real DPDK-class backend, so the rest of the
// forwarding core (pkg/ethernet, pkg/ipv4, pkg/arp, pkg/worker) runs
// unmodified against it. Useful for manually exercising the whole stack
// against a real NIC or veth pair without specialized hardware.
type AFPacketDevice struct {
	mu    sync.Mutex
	ports map[int]*afPacketPort
}

type afPacketPort struct {
	ifaceName string
	ifindex   int
	fd        int
	mac       net.HardwareAddr
}

// NewAFPacketDevice returns a Device whose port indices map to the given
// interface names in order: port 0 is ifaceNames[0], and so on.
func NewAFPacketDevice(ifaceNames []string) (*AFPacketDevice, error) {
	d := &AFPacketDevice{ports: make(map[int]*afPacketPort, len(ifaceNames))}
	for port, name := range ifaceNames {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("netio: interface %q: %w", name, err)
		}
		d.ports[port] = &afPacketPort{ifaceName: name, ifindex: iface.Index, mac: iface.HardwareAddr, fd: -1}
	}
	return d, nil
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

func (d *AFPacketDevice) ConfigureDevice(port int, numRxQueues int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[port]
	if !ok {
		return fmt.Errorf("netio: unknown port %d", port)
	}
	if p.fd != -1 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("netio: socket(AF_PACKET): %w", err)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  p.ifindex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netio: bind(%s): %w", p.ifaceName, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("netio: set nonblocking(%s): %w", p.ifaceName, err)
	}
	p.fd = fd
	return nil
}

func (d *AFPacketDevice) MAC(port int) (net.HardwareAddr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[port]
	if !ok {
		return nil, fmt.Errorf("netio: unknown port %d", port)
	}
	return p.mac, nil
}

func (d *AFPacketDevice) ReceiveBurst(port, queue int, out []*Buffer) (int, error) {
	d.mu.Lock()
	p, ok := d.ports[port]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("netio: unknown port %d", port)
	}

	n := 0
	for n < len(out) {
		frame := make([]byte, 65536)
		nRead, _, err := unix.Recvfrom(p.fd, frame, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return n, fmt.Errorf("netio: recvfrom(%s): %w", p.ifaceName, err)
		}
		if nRead == 0 {
			break
		}
		out[n] = &Buffer{Frame: frame[:nRead]}
		n++
	}
	return n, nil
}

func (d *AFPacketDevice) TransmitBurst(port, queue int, bufs []*Buffer) (int, error) {
	d.mu.Lock()
	p, ok := d.ports[port]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("netio: unknown port %d", port)
	}

	addr := &unix.SockaddrLinklayer{Ifindex: p.ifindex}
	accepted := 0
	for _, b := range bufs {
		if err := unix.Sendto(p.fd, b.Frame, 0, addr); err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return accepted, fmt.Errorf("netio: sendto(%s): %w", p.ifaceName, err)
		}
		accepted++
	}
	return accepted, nil
}

func (d *AFPacketDevice) FreeBuffer(b *Buffer) {
	// Backed by Go's garbage collector; nothing to return to a pool.
}

// Close releases every configured port's socket.
func (d *AFPacketDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, p := range d.ports {
		if p.fd == -1 {
			continue
		}
		if err := unix.Close(p.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		p.fd = -1
	}
	return firstErr
}
