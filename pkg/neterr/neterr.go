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

// Package neterr defines the closed set of error codes surfaced by the
// forwarding data plane and by startup, per the error taxonomy.
package neterr

import "fmt"

// Code classifies an error returned by a data-plane or startup operation.
type Code int

const (
	// CodeInvalidPacket marks a frame or packet malformed at L2 or L3:
	// bad size, checksum, version, IHL, length mismatch, or ARP fields.
	CodeInvalidPacket Code = iota + 1

	// CodeNotSupported marks an EtherType other than IPv4/ARP, an ARP
	// operation other than request, or an unrecognized ARP hardware or
	// protocol type.
	CodeNotSupported

	// CodeNotForMe marks an ARP request whose target protocol address is
	// not the ingress interface's address.
	CodeNotForMe

	// CodeTTLExpired marks an IPv4 packet whose TTL reached zero after
	// decrement.
	CodeTTLExpired

	// CodeNoRoute marks a longest-prefix-match miss.
	CodeNoRoute

	// CodeOutOfMemory marks an allocation or capacity failure during
	// table construction.
	CodeOutOfMemory

	// CodeConfig marks a malformed startup configuration.
	CodeConfig

	// CodeLaunch marks a failure to bring up a device port (configure
	// it or read its MAC) or a worker execution context at startup.
	CodeLaunch

	// CodeFormat marks a malformed CLI argument or config file value.
	CodeFormat

	// CodeGeneric marks any other startup failure.
	CodeGeneric
)

func (c Code) String() string {
	switch c {
	case CodeInvalidPacket:
		return "INVALID_PACKET"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodeNotForMe:
		return "NOT_FOR_ME"
	case CodeTTLExpired:
		return "TTL_EXPIRED"
	case CodeNoRoute:
		return "NO_ROUTE"
	case CodeOutOfMemory:
		return "OUT_OF_MEMORY"
	case CodeConfig:
		return "CONFIG"
	case CodeLaunch:
		return "LAUNCH"
	case CodeFormat:
		return "FORMAT"
	case CodeGeneric:
		return "GENERIC"
	default:
		return "UNKNOWN"
	}
}

// Error is a neterr-coded error. It wraps an optional underlying cause so
// %w-style unwrapping still works for callers that care.
type Error struct {
	Code   Code
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Cause)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given code and reason.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Wrap builds an *Error with the given code, reason, and underlying cause.
func Wrap(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, Cause: cause}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, and CodeGeneric otherwise.
func CodeOf(err error) Code {
	var nerr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			nerr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if nerr == nil {
		return CodeGeneric
	}
	return nerr.Code
}
