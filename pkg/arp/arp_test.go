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

package arp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/l3fwd/l3fwd/pkg/ifconfig"
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/netio"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func buildRequest(senderMACv net.HardwareAddr, senderIPv net.IP, targetIPv net.IP) []byte {
	frame := make([]byte, 14+BodyLen)
	copy(frame[0:6], mustMAC("ff:ff:ff:ff:ff:ff"))
	copy(frame[6:12], senderMACv)
	binary.BigEndian.PutUint16(frame[12:14], 0x0806)

	body := frame[14:]
	binary.BigEndian.PutUint16(body[offHardwareType:], hardwareTypeEthernet)
	binary.BigEndian.PutUint16(body[offProtocolType:], protocolTypeIPv4)
	body[offMACLength] = macLength
	body[offIPLength] = ipLength
	binary.BigEndian.PutUint16(body[offOperation:], uint16(OperationRequest))
	copy(body[offSenderMAC:], senderMACv)
	copy(body[offSenderIP:], senderIPv.To4())
	copy(body[offTargetMAC:], net.HardwareAddr{0, 0, 0, 0, 0, 0})
	copy(body[offTargetIP:], targetIPv.To4())
	return frame
}

func TestHandleRepliesToRequestForOwnIP(t *testing.T) {
	ifc := ifconfig.Interface{
		Port: 0,
		IP:   net.ParseIP("10.0.0.1").To4(),
		MAC:  mustMAC("aa:aa:aa:aa:aa:aa"),
	}
	table := ifconfig.New([]ifconfig.Interface{ifc})
	ifc, _ = table.ByPort(0)

	requesterMAC := mustMAC("bb:bb:bb:bb:bb:bb")
	requesterIP := net.ParseIP("10.0.0.2")
	frame := buildRequest(requesterMAC, requesterIP, ifc.IP)

	dev := netio.NewSimDevice()
	dev.SetMAC(0, ifc.MAC)
	r := &Responder{}

	buf := &netio.Buffer{Frame: frame}
	if err := r.Handle(buf, ifc, dev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sent := dev.Sent(int(ifc.Port), ifc.TxQueue())
	if len(sent) != 1 {
		t.Fatalf("expected 1 transmitted frame, got %d", len(sent))
	}
	reply := sent[0].Frame
	if got := net.HardwareAddr(reply[0:6]).String(); got != requesterMAC.String() {
		t.Errorf("reply dst MAC = %s, want %s", got, requesterMAC)
	}
	body := reply[14:]
	if operation(body) != OperationReply {
		t.Errorf("operation = %d, want reply", operation(body))
	}
	if !senderIP(body).Equal(ifc.IP) {
		t.Errorf("reply sender IP = %s, want %s", senderIP(body), ifc.IP)
	}
	if got := senderMAC(body).String(); got != ifc.MAC.String() {
		t.Errorf("reply sender MAC = %s, want %s", got, ifc.MAC)
	}
	if !targetIP(body).Equal(requesterIP.To4()) {
		t.Errorf("reply target IP = %s, want %s", targetIP(body), requesterIP)
	}
}

func TestHandleDropsRequestForOtherIP(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, IP: net.ParseIP("10.0.0.1").To4(), MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	table := ifconfig.New([]ifconfig.Interface{ifc})
	ifc, _ = table.ByPort(0)

	frame := buildRequest(mustMAC("bb:bb:bb:bb:bb:bb"), net.ParseIP("10.0.0.2"), net.ParseIP("10.0.0.99"))
	dev := netio.NewSimDevice()
	dev.SetMAC(0, ifc.MAC)
	r := &Responder{}

	buf := &netio.Buffer{Frame: frame}
	err := r.Handle(buf, ifc, dev)
	if neterr.CodeOf(err) != neterr.CodeNotForMe {
		t.Fatalf("Handle code = %v, want %v (err: %v)", neterr.CodeOf(err), neterr.CodeNotForMe, err)
	}
	if sent := dev.Sent(int(ifc.Port), ifc.TxQueue()); len(sent) != 0 {
		t.Errorf("expected no transmission, got %d", len(sent))
	}
	if freed := dev.Freed(); len(freed) != 1 {
		t.Errorf("expected buffer to be freed, got %d frees", len(freed))
	}
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, IP: net.ParseIP("10.0.0.1").To4(), MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	table := ifconfig.New([]ifconfig.Interface{ifc})
	ifc, _ = table.ByPort(0)

	frame := make([]byte, 14+4) // far too short a body
	dev := netio.NewSimDevice()
	dev.SetMAC(0, ifc.MAC)
	r := &Responder{}

	buf := &netio.Buffer{Frame: frame}
	if err := r.Handle(buf, ifc, dev); err == nil {
		t.Fatal("expected an error for a malformed ARP body")
	}
}
