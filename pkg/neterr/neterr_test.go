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

package neterr

import (
	"errors"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := New(CodeNoRoute, "no matching prefix")
	if got, want := e.Error(), "NO_ROUTE: no matching prefix"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("short read")
	e := Wrap(CodeInvalidPacket, "header truncated", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is(e, cause) = false, want true")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(CodeTTLExpired, "")); got != CodeTTLExpired {
		t.Fatalf("CodeOf = %v, want %v", got, CodeTTLExpired)
	}
	if got := CodeOf(errors.New("plain")); got != CodeGeneric {
		t.Fatalf("CodeOf(plain) = %v, want %v", got, CodeGeneric)
	}
}
