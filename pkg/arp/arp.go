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

// Package arp implements the RFC 826 ARP request/reply exchange the
// router needs to answer "who has this IP" queries for its own
// interfaces. Field layout follows the caser789/arp reference package
// in the retrieval pack, but where that package parses into an
// allocated Packet via UnmarshalBinary, Handle here reads and writes
// fields directly on the incoming frame's buffer, since the fast path
// must not allocate (spec.md §1).
package arp

import (
	"encoding/binary"
	"net"

	"github.com/l3fwd/l3fwd/pkg/ethernet"
	"github.com/l3fwd/l3fwd/pkg/ifconfig"
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/netio"
)

// Operation is an ARP operation code.
type Operation uint16

// Operation values this responder recognizes.
const (
	OperationRequest Operation = 1
	OperationReply   Operation = 2
)

const (
	hardwareTypeEthernet = 1
	protocolTypeIPv4     = 0x0800
	macLength            = 6
	ipLength             = 4
)

// BodyLen is the byte length of an ARP message body for Ethernet/IPv4:
// 2 (hardware type) + 2 (protocol type) + 1 (MAC length) + 1 (IP length)
// + 2 (operation) + 6 (sender MAC) + 4 (sender IP) + 6 (target MAC) +
// 4 (target IP).
const BodyLen = 28

const (
	offHardwareType = 0
	offProtocolType = 2
	offMACLength    = 4
	offIPLength     = 5
	offOperation    = 6
	offSenderMAC    = 8
	offSenderIP     = 14
	offTargetMAC    = 18
	offTargetIP     = 24
)

func hardwareType(body []byte) uint16 { return binary.BigEndian.Uint16(body[offHardwareType:]) }
func protocolType(body []byte) uint16 { return binary.BigEndian.Uint16(body[offProtocolType:]) }
func operation(body []byte) Operation { return Operation(binary.BigEndian.Uint16(body[offOperation:])) }
func senderMAC(body []byte) net.HardwareAddr {
	return net.HardwareAddr(body[offSenderMAC : offSenderMAC+macLength])
}
func senderIP(body []byte) net.IP { return net.IP(body[offSenderIP : offSenderIP+ipLength]) }
func targetIP(body []byte) net.IP { return net.IP(body[offTargetIP : offTargetIP+ipLength]) }

// Responder answers ARP requests for the router's own interfaces.
// It holds no state of its own: the interface whose address the
// request must match is supplied by the caller on each call, since
// every worker already knows which interface a frame arrived on.
type Responder struct{}

// Handle processes one incoming ARP frame addressed to ifc.
//
// buf's frame must already have its Ethernet header validated by the
// caller; buf.Frame still holds the whole frame, and Handle reads the
// ARP body starting at the Ethernet payload offset.
//
// Checks run in the order length, operation, target protocol address,
// hardware/protocol type, then address-length fields, each producing
// its own classified error: buf is freed and Handle returns as soon as
// one fails, before anything is mutated. Only once every check passes
// does it turn buf's frame in place into a reply and hand it to dev
// for transmission.
func (r *Responder) Handle(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device) error {
	frame := buf.Frame
	if len(frame) < ethernet.HeaderLen {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeInvalidPacket, "frame too short for ARP payload")
	}
	body := frame[ethernet.HeaderLen:]

	if len(body) < BodyLen {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeInvalidPacket, "ARP body shorter than 28 bytes")
	}
	if operation(body) != OperationRequest {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeNotSupported, "ARP operation is not a request")
	}
	if !targetIP(body).Equal(ifc.IP) {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeNotForMe, "ARP target is not the ingress interface's IP")
	}
	if hardwareType(body) != hardwareTypeEthernet || protocolType(body) != protocolTypeIPv4 {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeNotSupported, "unsupported ARP hardware or protocol type")
	}
	if body[offMACLength] != macLength || body[offIPLength] != ipLength {
		dev.FreeBuffer(buf)
		return neterr.New(neterr.CodeInvalidPacket, "unsupported ARP address lengths")
	}

	requesterMAC := append(net.HardwareAddr(nil), senderMAC(body)...)
	requesterIP := append(net.IP(nil), senderIP(body)...)

	binary.BigEndian.PutUint16(body[offOperation:], uint16(OperationReply))
	copy(body[offTargetMAC:offTargetMAC+macLength], requesterMAC)
	copy(body[offTargetIP:offTargetIP+ipLength], requesterIP)
	copy(body[offSenderMAC:offSenderMAC+macLength], ifc.MAC)
	copy(body[offSenderIP:offSenderIP+ipLength], ifc.IP.To4())

	return ethernet.Send(dev, ifc, requesterMAC, buf)
}
