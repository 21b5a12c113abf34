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

// Package zigzag implements the zigzag encoding used by the sint32 and
// sint64 scalar types.
package zigzag

import (
	"unsafe"

	"google.golang.org/protobuf/encoding/protowire"
)

// Int is any integer type a zigzag value may decode into.
type Int interface {
	~int32 | ~int64 | ~uint32 | ~uint64
}

// Decode decodes a zigzag-encoded value of any width.
//
// The input is masked to the width of T first, so a 32-bit value that was
// widened with sign extension still decodes correctly.
func Decode[T Int](raw T) T {
	n := uint64(raw)
	n &= (1 << (unsafe.Sizeof(raw) * 8)) - 1

	return T(protowire.DecodeZigZag(n))
}

// Decode64 is a helper for calling Decode with a raw 64-bit input.
func Decode64[T Int](raw uint64) T {
	return Decode(T(raw))
}

// Encode zigzag-encodes v into the low bits of a uint64.
func Encode[T Int](v T) uint64 {
	wide := protowire.EncodeZigZag(int64(v))
	wide &= (1 << (unsafe.Sizeof(v) * 8)) - 1
	return wide
}
