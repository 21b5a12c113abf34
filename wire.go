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
	"encoding/binary"
	"fmt"
)

// WireType is one of the six on-the-wire encodings.
type WireType uint8

const (
	WireVarint     WireType = 0
	Wire64Bit      WireType = 1
	WireDelimited  WireType = 2
	WireStartGroup WireType = 3
	WireEndGroup   WireType = 4
	Wire32Bit      WireType = 5
)

// String implements [fmt.Stringer].
func (wt WireType) String() string {
	switch wt {
	case WireVarint:
		return "VARINT"
	case Wire64Bit:
		return "64BIT"
	case WireDelimited:
		return "DELIMITED"
	case WireStartGroup:
		return "START_GROUP"
	case WireEndGroup:
		return "END_GROUP"
	case Wire32Bit:
		return "32BIT"
	}
	return fmt.Sprintf("WireType(%d)", uint8(wt))
}

// FieldType is the declared schema type of a field. The values match the
// google.protobuf.FieldDescriptorProto.Type enum.
type FieldType uint8

const (
	// TypeNone is not a real type; it is the sentinel [Callbacks].Tag returns to
	// skip a field.
	TypeNone FieldType = 0

	TypeDouble   FieldType = 1
	TypeFloat    FieldType = 2
	TypeInt64    FieldType = 3
	TypeUInt64   FieldType = 4
	TypeInt32    FieldType = 5
	TypeFixed64  FieldType = 6
	TypeFixed32  FieldType = 7
	TypeBool     FieldType = 8
	TypeString   FieldType = 9
	TypeGroup    FieldType = 10
	TypeMessage  FieldType = 11
	TypeBytes    FieldType = 12
	TypeUInt32   FieldType = 13
	TypeEnum     FieldType = 14
	TypeSFixed32 FieldType = 15
	TypeSFixed64 FieldType = 16
	TypeSInt32   FieldType = 17
	TypeSInt64   FieldType = 18
)

// typeInfo is the per-declared-type metadata table: the wire type a field of
// that type is encoded with, and the size and alignment of its slot in a
// message layout.
var typeInfo = [...]struct {
	wire        WireType
	size, align uint32
}{
	TypeDouble:   {Wire64Bit, 8, 8},
	TypeFloat:    {Wire32Bit, 4, 4},
	TypeInt64:    {WireVarint, 8, 8},
	TypeUInt64:   {WireVarint, 8, 8},
	TypeInt32:    {WireVarint, 4, 4},
	TypeFixed64:  {Wire64Bit, 8, 8},
	TypeFixed32:  {Wire32Bit, 4, 4},
	TypeBool:     {WireVarint, 1, 1},
	TypeString:   {WireDelimited, 8, 8},
	TypeGroup:    {WireStartGroup, 8, 8},
	TypeMessage:  {WireDelimited, 8, 8},
	TypeBytes:    {WireDelimited, 8, 8},
	TypeUInt32:   {WireVarint, 4, 4},
	TypeEnum:     {WireVarint, 4, 4},
	TypeSFixed32: {Wire32Bit, 4, 4},
	TypeSFixed64: {Wire64Bit, 8, 8},
	TypeSInt32:   {WireVarint, 4, 4},
	TypeSInt64:   {WireVarint, 8, 8},
}

// ExpectedWireType returns the wire type values of the given declared type
// are encoded with.
func ExpectedWireType(ft FieldType) WireType {
	return typeInfo[ft].wire
}

// IsPrimitive reports whether ft is a numeric or bool type, i.e. one that
// may appear inside a packed repeated field.
func (ft FieldType) IsPrimitive() bool {
	switch ft {
	case TypeString, TypeBytes, TypeMessage, TypeGroup, TypeNone:
		return false
	}
	return true
}

// CheckType reports whether wt is a legal on-the-wire type for field f.
// A repeated primitive field additionally accepts DELIMITED, which is how
// packed elements arrive; for a singular field the mismatch is an error.
func CheckType(wt WireType, f *FieldDef) bool {
	if f.Type == TypeGroup {
		return wt == WireStartGroup
	}
	if typeInfo[f.Type].wire == wt {
		return true
	}
	return wt == WireDelimited && f.Type.IsPrimitive() && f.Label == LabelRepeated
}

// Tag is the varint prefix on each wire field.
type Tag struct {
	Number int32
	Wire   WireType
}

// maxVarintLen is the longest legal varint: 2^64-1 takes 10 base-128 bytes.
const maxVarintLen = 10

// getVarint decodes a varint from the front of b.
//
// Returns the value and the number of bytes consumed. If b ends before the
// varint does, the error is errNeedMore so the caller can retry with more
// data; after maxVarintLen continuation bytes the varint can never
// terminate and the error is final.
func getVarint(b []byte, offset int64) (uint64, int, error) {
	var v uint64
	for i := 0; i < len(b) && i < maxVarintLen; i++ {
		c := b[i]
		v |= uint64(c&0x7f) << (7 * i)
		if c < 0x80 {
			return v, i + 1, nil
		}
	}
	if len(b) >= maxVarintLen {
		return 0, 0, statusf(CodeUnterminatedVarint, offset, "unterminated varint")
	}
	return 0, 0, errNeedMore
}

// skipVarint is getVarint without materializing the value.
func skipVarint(b []byte, offset int64) (int, error) {
	for i := 0; i < len(b) && i < maxVarintLen; i++ {
		if b[i] < 0x80 {
			return i + 1, nil
		}
	}
	if len(b) >= maxVarintLen {
		return 0, statusf(CodeUnterminatedVarint, offset, "unterminated varint")
	}
	return 0, errNeedMore
}

// getFixed32 reads a little-endian 32-bit value from the front of b.
func getFixed32(b []byte) (uint32, int, error) {
	if len(b) < 4 {
		return 0, 0, errNeedMore
	}
	return binary.LittleEndian.Uint32(b), 4, nil
}

// getFixed64 reads a little-endian 64-bit value from the front of b.
func getFixed64(b []byte) (uint64, int, error) {
	if len(b) < 8 {
		return 0, 0, errNeedMore
	}
	return binary.LittleEndian.Uint64(b), 8, nil
}

// getTag decodes a field tag from the front of b.
func getTag(b []byte, offset int64) (Tag, int, error) {
	raw, n, err := getVarint(b, offset)
	if err != nil {
		return Tag{}, 0, err
	}
	num := raw >> 3
	if num == 0 || num > 1<<29-1 {
		return Tag{}, 0, statusf(CodeBadWireType, offset, "invalid field number %d", num)
	}
	return Tag{Number: int32(num), Wire: WireType(raw & 7)}, n, nil
}
