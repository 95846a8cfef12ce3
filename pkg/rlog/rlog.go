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

// Package rlog provides the structured logger threaded through startup
// wiring and, at higher verbosity, through the data plane's diagnostic
// paths.
package rlog

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Verbosity levels. Higher numbers are more detailed; logr convention is
// that V(n) calls are enabled iff n <= the configured level.
const (
	LevelInfo    = 0
	LevelVerbose = 1
)

// New returns a logger writing to stderr at the given verbosity level.
// A level of LevelInfo disables V(1)+ data-plane tracing entirely, matching
// "data-plane errors are invisible to the user except in verbose builds."
func New(verbose bool) logr.Logger {
	level := LevelInfo
	if verbose {
		level = LevelVerbose
	}
	std := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	stdr.SetVerbosity(level)
	return stdr.New(std)
}

// Enabled reports whether the given logger would emit a V(LevelVerbose)
// call. Used by callers that want to skip building a log message entirely
// on the fast path when verbosity is off.
func Enabled(log logr.Logger) bool {
	return log.V(LevelVerbose).Enabled()
}
