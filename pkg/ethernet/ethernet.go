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

// Package ethernet dispatches incoming Ethernet II frames to the ARP
// responder or IPv4 forwarder by EtherType, and writes outgoing frames'
// link-layer headers before handing them to the device for transmission.
//
// Field offsets and EtherType naming follow the convention used by the
// caser789/ethernet reference package in the retrieval pack, adapted
// here to read and write directly on a fixed-offset byte slice instead
// of allocating a parsed Frame struct per packet, since the fast path
// must not allocate (spec.md §1).
package ethernet

import (
	"encoding/binary"
	"net"

	"github.com/l3fwd/l3fwd/pkg/ifconfig"
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/netio"
)

// HeaderLen is the length of an untagged Ethernet II header: two
// 6-byte hardware addresses plus a 2-byte EtherType.
const HeaderLen = 14

// Field offsets within an untagged Ethernet II frame.
const (
	offDestination = 0
	offSource      = 6
	offEtherType   = 12
	offPayload     = 14
)

// EtherType identifies the upper-layer protocol carried by a frame.
type EtherType uint16

// EtherType values this dispatcher recognizes.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// Broadcast is the reserved hardware address meaning "every device on
// this LAN segment."
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Destination returns frame's destination hardware address.
func Destination(frame []byte) net.HardwareAddr {
	return net.HardwareAddr(frame[offDestination : offDestination+6])
}

// Source returns frame's source hardware address.
func Source(frame []byte) net.HardwareAddr {
	return net.HardwareAddr(frame[offSource : offSource+6])
}

// Type returns frame's EtherType.
func Type(frame []byte) EtherType {
	return EtherType(binary.BigEndian.Uint16(frame[offEtherType : offEtherType+2]))
}

// Payload returns the bytes following the Ethernet header.
func Payload(frame []byte) []byte {
	return frame[offPayload:]
}

// SetHeader writes dst and src into frame's Ethernet header, leaving the
// EtherType and payload untouched. Used by the sender immediately
// before transmission.
func SetHeader(frame []byte, dst, src net.HardwareAddr) {
	copy(frame[offDestination:offDestination+6], dst)
	copy(frame[offSource:offSource+6], src)
}

// Send prepares buf's frame for transmission toward dst on egress,
// and busy-retries TransmitBurst until the device accepts it, per
// spec §4.8: a single-frame enqueue is the cheapest correct
// backpressure under kernel-bypass poll-mode semantics, so there is no
// deferred-frame queue to fall back to. The source MAC is queried from
// dev for egress's port; if that query fails, buf is freed and the
// error returned.
func Send(dev netio.Device, egress ifconfig.Interface, dst net.HardwareAddr, buf *netio.Buffer) error {
	src, err := dev.MAC(int(egress.Port))
	if err != nil {
		dev.FreeBuffer(buf)
		return err
	}
	SetHeader(buf.Frame, dst, src)

	for {
		accepted, err := dev.TransmitBurst(int(egress.Port), egress.TxQueue(), []*netio.Buffer{buf})
		if err != nil {
			dev.FreeBuffer(buf)
			return err
		}
		if accepted > 0 {
			return nil
		}
	}
}

// IPv4Forwarder is the subset of *ipv4.Forwarder that Handle needs.
// Declared locally so pkg/ethernet does not import pkg/ipv4, which
// itself imports pkg/ethernet for the header helpers above.
type IPv4Forwarder interface {
	Forward(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device) error
}

// ARPResponder is the subset of *arp.Responder that Handle needs.
type ARPResponder interface {
	Handle(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device) error
}

// Handle classifies one incoming frame and dispatches it.
//
//   - Frames shorter than the Ethernet header are rejected as
//     INVALID_PACKET.
//   - Frames not addressed to ifc (unicast) or to the broadcast address
//     are silently discarded (the promiscuous-mode filter).
//   - IPv4 frames go to fwd.Forward; only its INVALID_PACKET errors
//     propagate.
//   - ARP frames go to responder.Handle; its errors never propagate,
//     since they only describe dropped traffic, not frame corruption.
//   - Any other EtherType is reported as NOT_SUPPORTED.
func Handle(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device, fwd IPv4Forwarder, responder ARPResponder) error {
	frame := buf.Frame
	if len(frame) < HeaderLen {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeInvalidPacket, "frame shorter than Ethernet header")
	}

	dst := Destination(frame)
	if !macEqual(dst, ifc.MAC) && !macEqual(dst, Broadcast) {
		dev.FreeBuffer(buf)
		return nil
	}

	switch Type(frame) {
	case EtherTypeIPv4:
		if err := fwd.Forward(buf, ifc, dev); err != nil {
			if neterr.CodeOf(err) == neterr.CodeInvalidPacket {
				return err
			}
			return nil
		}
		return nil
	case EtherTypeARP:
		_ = responder.Handle(buf, ifc, dev)
		return nil
	default:
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeNotSupported, "unrecognized EtherType")
	}
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
