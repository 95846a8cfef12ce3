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

package worker

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/l3fwd/l3fwd/pkg/arp"
	"github.com/l3fwd/l3fwd/pkg/fib"
	"github.com/l3fwd/l3fwd/pkg/ifconfig"
	"github.com/l3fwd/l3fwd/pkg/ipv4"
	"github.com/l3fwd/l3fwd/pkg/netio"
	"github.com/l3fwd/l3fwd/pkg/rlog"
	"github.com/l3fwd/l3fwd/pkg/route"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func buildIPv4Frame(dstMAC, srcMAC net.HardwareAddr, dstIP, srcIP net.IP, ttlVal byte) []byte {
	frame := make([]byte, 14+20)
	copy(frame[0:6], dstMAC)
	copy(frame[6:12], srcMAC)
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)

	hdr := frame[14:]
	hdr[0] = 0x45
	binary.BigEndian.PutUint16(hdr[2:4], 20)
	hdr[8] = ttlVal
	hdr[9] = 17
	copy(hdr[12:16], srcIP.To4())
	copy(hdr[16:20], dstIP.To4())
	csum := ipv4.Checksum(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], csum)
	return frame
}

func TestWorkerForwardsInjectedBurst(t *testing.T) {
	ingress := ifconfig.Interface{Port: 0, IP: net.ParseIP("192.168.0.1").To4(), MAC: mustMAC("aa:aa:aa:aa:aa:aa")}
	egress := ifconfig.Interface{Port: 1, IP: net.ParseIP("192.168.1.1").To4(), MAC: mustMAC("bb:bb:bb:bb:bb:bb")}
	table := ifconfig.New([]ifconfig.Interface{ingress, egress})
	ingress, _ = table.ByPort(0)
	egress, _ = table.ByPort(1)

	nextHopMAC := mustMAC("cc:cc:cc:cc:cc:cc")
	routes := route.NewList()
	if err := routes.Add(net.ParseIP("10.0.0.0"), 24, 1, nextHopMAC); err != nil {
		t.Fatalf("Add: %v", err)
	}
	fibTable, err := fib.Build(routes.Sorted())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dev := netio.NewSimDevice()
	dev.SetMAC(0, ingress.MAC)
	dev.SetMAC(1, egress.MAC)

	fwd := &ipv4.Forwarder{FIB: fibTable, Interfaces: table}
	responder := &arp.Responder{}
	w := New(ingress, dev, fwd, responder, rlog.New(false))

	frame := buildIPv4Frame(ingress.MAC, mustMAC("dd:dd:dd:dd:dd:dd"), net.ParseIP("10.0.0.42"), net.ParseIP("192.168.0.2"), 64)
	dev.Inject(int(ingress.Port), ingress.ContextID-1, frame)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(dev.Sent(int(egress.Port), egress.TxQueue())) == 1 {
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("timed out waiting for forwarded frame")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	sent := dev.Sent(int(egress.Port), egress.TxQueue())
	if len(sent) != 1 {
		t.Fatalf("expected 1 forwarded frame, got %d", len(sent))
	}
	if got := net.HardwareAddr(sent[0].Frame[0:6]).String(); got != nextHopMAC.String() {
		t.Errorf("forwarded dst MAC = %s, want %s", got, nextHopMAC)
	}
}
