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

package ethernet

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

type stubForwarder struct {
	called bool
	err    error
}

func (s *stubForwarder) Forward(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device) error {
	s.called = true
	return s.err
}

type stubResponder struct {
	called bool
	err    error
}

func (s *stubResponder) Handle(buf *netio.Buffer, ifc ifconfig.Interface, dev netio.Device) error {
	s.called = true
	return s.err
}

func frameWithType(dst, src net.HardwareAddr, etherType EtherType) []byte {
	frame := make([]byte, HeaderLen+4)
	copy(frame[offDestination:], dst)
	copy(frame[offSource:], src)
	binary.BigEndian.PutUint16(frame[offEtherType:], uint16(etherType))
	return frame
}

func TestHandleDispatchesIPv4(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	fwd := &stubForwarder{}
	resp := &stubResponder{}

	frame := frameWithType(ifc.MAC, mustMAC("bb:bb:bb:bb:bb:bb"), EtherTypeIPv4)
	buf := &netio.Buffer{Frame: frame}

	if err := Handle(buf, ifc, dev, fwd, resp); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !fwd.called {
		t.Error("expected IPv4 forwarder to be invoked")
	}
	if resp.called {
		t.Error("did not expect ARP responder to be invoked")
	}
}

func TestHandleDispatchesARP(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	fwd := &stubForwarder{}
	resp := &stubResponder{}

	frame := frameWithType(Broadcast, mustMAC("bb:bb:bb:bb:bb:bb"), EtherTypeARP)
	buf := &netio.Buffer{Frame: frame}

	if err := Handle(buf, ifc, dev, fwd, resp); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.called {
		t.Error("expected ARP responder to be invoked")
	}
	if fwd.called {
		t.Error("did not expect IPv4 forwarder to be invoked")
	}
}

func TestHandleDropsFrameForOtherDestination(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	fwd := &stubForwarder{}
	resp := &stubResponder{}

	frame := frameWithType(mustMAC("cc:cc:cc:cc:cc:cc"), mustMAC("bb:bb:bb:bb:bb:bb"), EtherTypeIPv4)
	buf := &netio.Buffer{Frame: frame}

	if err := Handle(buf, ifc, dev, fwd, resp); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fwd.called || resp.called {
		t.Error("expected frame to be silently dropped")
	}
	if freed := dev.Freed(); len(freed) != 1 {
		t.Errorf("expected buffer to be freed, got %d", len(freed))
	}
}

func TestHandleRejectsUnknownEtherType(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	fwd := &stubForwarder{}
	resp := &stubResponder{}

	frame := frameWithType(ifc.MAC, mustMAC("bb:bb:bb:bb:bb:bb"), 0x9999)
	buf := &netio.Buffer{Frame: frame}

	err := Handle(buf, ifc, dev, fwd, resp)
	if neterr.CodeOf(err) != neterr.CodeNotSupported {
		t.Fatalf("err = %v, want CodeNotSupported", err)
	}
}

func TestHandlePropagatesInvalidPacketFromForwarder(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	fwd := &stubForwarder{err: neterr.New(neterr.CodeInvalidPacket, "bad header")}
	resp := &stubResponder{}

	frame := frameWithType(ifc.MAC, mustMAC("bb:bb:bb:bb:bb:bb"), EtherTypeIPv4)
	buf := &netio.Buffer{Frame: frame}

	err := Handle(buf, ifc, dev, fwd, resp)
	if neterr.CodeOf(err) != neterr.CodeInvalidPacket {
		t.Fatalf("err = %v, want CodeInvalidPacket", err)
	}
}

func TestHandleRejectsShortFrame(t *testing.T) {
	ifc := ifconfig.Interface{Port: 0, MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	dev := netio.NewSimDevice()
	buf := &netio.Buffer{Frame: make([]byte, 4)}

	err := Handle(buf, ifc, dev, &stubForwarder{}, &stubResponder{})
	if neterr.CodeOf(err) != neterr.CodeInvalidPacket {
		t.Fatalf("err = %v, want CodeInvalidPacket", err)
	}
}
