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

// Package worker runs the per-interface receive loop described in
// spec.md §4.9: pull a burst of frames from one interface's receive
// queue, hand each to the Ethernet dispatcher in arrival order, and
// idle briefly when nothing was waiting. Every worker owns one
// interface for its entire lifetime and shares no mutable state with
// any other worker.
package worker

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/l3fwd/l3fwd/pkg/arp"
	"github.com/l3fwd/l3fwd/pkg/ethernet"
	"github.com/l3fwd/l3fwd/pkg/ifconfig"
	"github.com/l3fwd/l3fwd/pkg/ipv4"
	"github.com/l3fwd/l3fwd/pkg/neterr"
	"github.com/l3fwd/l3fwd/pkg/netio"
)

// BurstSize is the maximum number of frames pulled from a receive
// queue per poll, spec.md's THREAD_BUFSIZE.
const BurstSize = 64

// IdleSleep is how long a worker waits before polling again after an
// empty burst, amortizing wasted polling (spec.md §4.9).
const IdleSleep = 100 * time.Microsecond

// Worker runs the receive loop for exactly one bound interface.
type Worker struct {
	Interface ifconfig.Interface
	Device    netio.Device
	Forwarder *ipv4.Forwarder
	Responder *arp.Responder
	Log       logr.Logger

	bufs [BurstSize]*netio.Buffer
}

// New returns a Worker for ifc, reusing its own fixed-size burst
// buffer across every Run iteration so the fast path never allocates.
func New(ifc ifconfig.Interface, dev netio.Device, fwd *ipv4.Forwarder, responder *arp.Responder, log logr.Logger) *Worker {
	return &Worker{Interface: ifc, Device: dev, Forwarder: fwd, Responder: responder, Log: log}
}

// Run polls w's interface forever, in the manner of spec.md §4.9's
// pseudocode loop. It only returns when ctx is canceled, which is the
// ambient addition over the spec's "no exit condition": production
// operation never cancels this context, but tests and the clean
// shutdown path (pkg/boot) do.
func (w *Worker) Run(ctx context.Context) {
	queue := w.Interface.ContextID - 1
	port := int(w.Interface.Port)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := w.Device.ReceiveBurst(port, queue, w.bufs[:])
		if err != nil {
			w.Log.Error(err, "receive burst failed", "port", port, "queue", queue)
			time.Sleep(IdleSleep)
			continue
		}
		if n == 0 {
			time.Sleep(IdleSleep)
			continue
		}

		for i := 0; i < n; i++ {
			w.handle(w.bufs[i])
			w.bufs[i] = nil
		}
	}
}

func (w *Worker) handle(buf *netio.Buffer) {
	err := ethernet.Handle(buf, w.Interface, w.Device, w.Forwarder, w.Responder)
	if err == nil {
		return
	}
	switch neterr.CodeOf(err) {
	case neterr.CodeInvalidPacket, neterr.CodeNotSupported:
		w.Log.V(1).Info("dropped frame", "reason", err.Error(), "port", w.Interface.Port)
	default:
		w.Log.Error(err, "unexpected error handling frame", "port", w.Interface.Port)
	}
}
