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

//go:build !debug

// Package debug includes debugging helpers.
//
// Building with the debug tag enables invariant assertions and stderr
// logging throughout the engine. Release builds compile all of it away.
package debug

// Enabled is true if the engine is being built with the debug tag.
const Enabled = false

// Assert panics with a formatted message if cond is false.
//
// In release builds this is a no-op that the compiler can delete.
func Assert(bool, string, ...any) {}

// Log prints debugging information to stderr.
func Log(string, ...any) {}
