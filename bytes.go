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

package minipb

import (
	"fmt"
	"sync/atomic"

	"buf.build/go/minipb/internal/debug"
)

// Mode describes who owns the storage behind a [Bytes].
type Mode uint8

const (
	// ModeOwned means the buffer belongs to the Bytes and is reused across
	// [Bytes.Recycle] calls.
	ModeOwned Mode = iota
	// ModeAlias means the buffer is borrowed from an external source (such
	// as a decoder's input window) for the lifetime of the Bytes.
	ModeAlias
	// ModeStatic means the buffer has process lifetime.
	ModeStatic
)

// Bytes is a variable-length byte blob with explicit ownership.
//
// A Bytes is either owned, aliasing, or static; see [Mode]. Aliasing is what
// makes zero-copy decoding possible: the decoder hands out strings that
// point directly into its input window. Holders participate in reference
// counting via [Bytes.Ref] and [Bytes.Unref]; the count is atomic, so a
// sealed schema holding static strings may be shared across goroutines.
//
// The zero value is an empty owned string with a reference count of zero;
// call [Bytes.Recycle] before use.
type Bytes struct {
	data []byte
	mode Mode
	refs atomic.Int32
}

// NewOwned returns an empty owned string with the given capacity.
func NewOwned(capacity int) *Bytes {
	b := &Bytes{data: make([]byte, 0, capacity)}
	b.refs.Store(1)
	return b
}

// NewAlias returns a string aliasing p. The caller must keep p valid and
// unchanged for as long as the string is referenced.
func NewAlias(p []byte) *Bytes {
	b := &Bytes{data: p, mode: ModeAlias}
	b.refs.Store(1)
	return b
}

// NewStatic returns a string over storage with process lifetime, such as a
// byte-slice constant.
func NewStatic(p []byte) *Bytes {
	b := &Bytes{data: p, mode: ModeStatic}
	b.refs.Store(1)
	return b
}

// Ref acquires an additional reference and returns b.
func (b *Bytes) Ref() *Bytes {
	debug.Assert(b.refs.Load() > 0, "ref of dead Bytes")
	b.refs.Add(1)
	return b
}

// Unref releases one reference. When the count reaches zero the storage is
// dropped and the string may no longer be read.
func (b *Bytes) Unref() {
	n := b.refs.Add(-1)
	debug.Assert(n >= 0, "unref of dead Bytes")
	if n == 0 {
		b.data = nil
	}
}

// Recycle resets b to an empty string with a reference count of one.
//
// Recycle is the caller's promise that no other holder exists. An owned
// string keeps its capacity; an aliasing or static string drops its borrow
// and becomes owned. The string's mode is changed afterwards only by
// whoever fills it (for example [ByteSource.Get], which may alias).
func (b *Bytes) Recycle() {
	if b.mode == ModeOwned && b.data != nil {
		b.data = b.data[:0]
	} else {
		b.data = nil
		b.mode = ModeOwned
	}
	b.refs.Store(1)
}

// Append appends p to the string.
//
// Appending to an aliasing or static string first promotes it to owned by
// copying the aliased bytes.
func (b *Bytes) Append(p []byte) {
	debug.Assert(b.refs.Load() > 0, "append to dead Bytes")
	if b.mode != ModeOwned {
		owned := make([]byte, len(b.data), len(b.data)+len(p))
		copy(owned, b.data)
		b.data = owned
		b.mode = ModeOwned
	}
	b.data = append(b.data, p...)
}

// setAlias points b at p without copying. b must be freshly recycled.
func (b *Bytes) setAlias(p []byte) {
	debug.Assert(len(b.data) == 0, "alias over non-empty Bytes")
	b.data = p
	b.mode = ModeAlias
}

// Len returns the length of the string in bytes.
func (b *Bytes) Len() int { return len(b.data) }

// Mode returns the ownership mode of the string.
func (b *Bytes) Mode() Mode { return b.mode }

// Bytes returns the contents. The slice aliases the string's storage and is
// valid only while the caller holds a reference.
func (b *Bytes) Bytes() []byte {
	debug.Assert(b.refs.Load() > 0, "read of dead Bytes")
	return b.data
}

// String implements [fmt.Stringer].
func (b *Bytes) String() string { return string(b.data) }

// Format implements [fmt.Formatter]. %s prints the contents; %v prints the
// length and contents.
func (b *Bytes) Format(s fmt.State, verb rune) {
	switch verb {
	case 's', 'q':
		fmt.Fprintf(s, fmt.FormatString(s, verb), string(b.data))
	default:
		fmt.Fprintf(s, "(%d)%q", len(b.data), string(b.data))
	}
}
