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

import "sync"

// GoroutineRuntime is the Go stand-in for the real kernel-bypass
// runtime's launch_on_context/wait_all_contexts pair: it starts one
// goroutine per execution context and joins them all on shutdown. It
// does not pin goroutines to OS threads or cores; that level of control
// belongs to the out-of-scope initialization collaborator (spec.md §6).
type GoroutineRuntime struct {
	wg sync.WaitGroup
}

// LaunchOnContext starts fn in a new goroutine. contextID is accepted
// for interface parity with the real runtime but otherwise unused here.
func (r *GoroutineRuntime) LaunchOnContext(contextID int, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// WaitAllContexts blocks until every launched goroutine has returned.
func (r *GoroutineRuntime) WaitAllContexts() {
	r.wg.Wait()
}
