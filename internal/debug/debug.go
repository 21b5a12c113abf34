// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build debug

// Package debug includes debugging helpers.
//
// Building with the debug tag enables invariant assertions and stderr
// logging throughout the engine. Release builds compile all of it away.
package debug

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Enabled is true if the engine is being built with the debug tag.
const Enabled = true

// Assert panics with a formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic("minipb: assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// Log prints debugging information to stderr, prefixed with the caller's
// function name.
func Log(format string, args ...any) {
	pc, _, line, _ := runtime.Caller(1)
	name := runtime.FuncForPC(pc).Name()
	name = name[strings.LastIndex(name, "/")+1:]
	fmt.Fprintf(os.Stderr, "%s:%d: %s\n", name, line, fmt.Sprintf(format, args...))
}
