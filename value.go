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
	"math"

	"buf.build/go/minipb/internal/zigzag"
)

// Value is a single decoded protobuf value of any scalar, string, or enum
// type. Numeric values are stored as raw bits tagged with their declared
// type; strings and bytes carry a [*Bytes].
type Value struct {
	typ  FieldType
	bits uint64
	str  *Bytes
}

// Type returns the declared type this value was decoded as.
func (v Value) Type() FieldType { return v.typ }

// The 32-bit types store their bit pattern zero-extended, never
// sign-extended; sign reappears in the typed accessors. This keeps every
// construction path — decoder, slab reads, literals — bit-identical.

func Int32Value(n int32) Value    { return Value{typ: TypeInt32, bits: uint64(uint32(n))} }
func Int64Value(n int64) Value    { return Value{typ: TypeInt64, bits: uint64(n)} }
func UInt32Value(n uint32) Value  { return Value{typ: TypeUInt32, bits: uint64(n)} }
func UInt64Value(n uint64) Value  { return Value{typ: TypeUInt64, bits: n} }
func SInt32Value(n int32) Value   { return Value{typ: TypeSInt32, bits: uint64(uint32(n))} }
func SInt64Value(n int64) Value   { return Value{typ: TypeSInt64, bits: uint64(n)} }
func Fixed32Value(n uint32) Value { return Value{typ: TypeFixed32, bits: uint64(n)} }
func Fixed64Value(n uint64) Value { return Value{typ: TypeFixed64, bits: n} }
func EnumValue(n int32) Value     { return Value{typ: TypeEnum, bits: uint64(uint32(n))} }

func BoolValue(b bool) Value {
	v := Value{typ: TypeBool}
	if b {
		v.bits = 1
	}
	return v
}

func Float32Value(f float32) Value {
	return Value{typ: TypeFloat, bits: uint64(math.Float32bits(f))}
}

func Float64Value(f float64) Value {
	return Value{typ: TypeDouble, bits: math.Float64bits(f)}
}

// BytesValue wraps a string or bytes payload. The Value does not take its
// own reference; the caller's reference covers it.
func BytesValue(typ FieldType, b *Bytes) Value {
	return Value{typ: typ, str: b}
}

// TypedValue builds a Value of the given declared type from raw bits. It is
// what the decoder uses internally and is exported for Sink implementations
// that synthesize values.
func TypedValue(typ FieldType, bits uint64) Value {
	return Value{typ: typ, bits: bits}
}

// Bits returns the raw bit pattern of a numeric value.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) Int32() int32     { return int32(v.bits) }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) UInt32() uint32   { return uint32(v.bits) }
func (v Value) UInt64() uint64   { return v.bits }
func (v Value) Bool() bool       { return v.bits != 0 }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }
func (v Value) Enum() int32      { return int32(v.bits) }

// Bytes returns the string payload, or nil for numeric values.
func (v Value) Bytes() *Bytes { return v.str }

// String implements [fmt.Stringer].
func (v Value) String() string {
	switch v.typ {
	case TypeDouble:
		return fmt.Sprint(v.Float64())
	case TypeFloat:
		return fmt.Sprint(v.Float32())
	case TypeInt32, TypeSInt32, TypeSFixed32, TypeEnum:
		return fmt.Sprint(v.Int32())
	case TypeInt64, TypeSInt64, TypeSFixed64:
		return fmt.Sprint(v.Int64())
	case TypeUInt32, TypeFixed32:
		return fmt.Sprint(v.UInt32())
	case TypeUInt64, TypeFixed64:
		return fmt.Sprint(v.UInt64())
	case TypeBool:
		return fmt.Sprint(v.Bool())
	case TypeString, TypeBytes:
		return fmt.Sprintf("%q", v.str.Bytes())
	}
	return fmt.Sprintf("Value(%d)", v.typ)
}

// valueOf converts a raw wire integer into a Value per the declared type.
// This is the post-decode sign interpretation step: zigzag for sintNN,
// truncation for the 32-bit types, bit reinterpretation for floats.
func valueOf(ft FieldType, raw uint64) Value {
	switch ft {
	case TypeInt32, TypeEnum, TypeSFixed32:
		raw = uint64(uint32(raw)) // Truncate sign-extension bytes.
	case TypeUInt32, TypeFixed32, TypeFloat:
		raw = uint64(uint32(raw))
	case TypeSInt32:
		raw = uint64(uint32(zigzag.Decode64[int32](raw)))
	case TypeSInt64:
		raw = uint64(zigzag.Decode64[int64](raw))
	case TypeBool:
		if raw != 0 {
			raw = 1
		}
	}
	return Value{typ: ft, bits: raw}
}

// wireBits returns the raw wire integer for v, inverting [valueOf]. For
// fixed and float types this is the little-endian payload; for varint types
// it is the varint value, with zigzag applied for sintNN.
func wireBits(v Value) uint64 {
	switch v.typ {
	case TypeSInt32:
		return zigzag.Encode(v.Int32())
	case TypeSInt64:
		return zigzag.Encode(v.Int64())
	case TypeInt32, TypeEnum:
		// Negative int32 values are encoded sign-extended to ten bytes.
		return uint64(int64(v.Int32()))
	}
	return v.bits
}
