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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestGetVarint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []byte
		want uint64
		n    int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x01}, 1, 1},
		{[]byte{0x7f}, 127, 1},
		{[]byte{0x96, 0x01}, 150, 2},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, math.MaxUint64, 10},
	}
	for _, tt := range tests {
		v, n, err := getVarint(tt.in, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.n, n)

		// Cross-check against the reference implementation.
		ref, refN := protowire.ConsumeVarint(tt.in)
		assert.Equal(t, ref, v)
		assert.Equal(t, refN, n)
	}
}

func TestGetVarintTruncated(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{
		{},
		{0x96},
		{0xff, 0xff},
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, // 9 continuation bytes
	} {
		_, _, err := getVarint(in, 0)
		assert.ErrorIs(t, err, errNeedMore, "input %x is retryable", in)
	}
}

func TestGetVarintUnterminated(t *testing.T) {
	t.Parallel()
	in := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, _, err := getVarint(in, 0)
	assert.ErrorIs(t, err, ErrUnterminatedVarint, "ten continuation bytes can never terminate")

	_, err = skipVarint(in, 0)
	assert.ErrorIs(t, err, ErrUnterminatedVarint)
}

func TestGetFixed(t *testing.T) {
	t.Parallel()
	v32, n, err := getFixed32([]byte{0x78, 0x56, 0x34, 0x12, 0xaa})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v32)
	assert.Equal(t, 4, n)

	v64, n, err := getFixed64([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0807060504030201), v64)
	assert.Equal(t, 8, n)

	_, _, err = getFixed32([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errNeedMore)
	_, _, err = getFixed64([]byte{1, 2, 3, 4, 5, 6, 7})
	assert.ErrorIs(t, err, errNeedMore)
}

func TestGetTag(t *testing.T) {
	t.Parallel()
	tag, n, err := getTag([]byte{0x08}, 0)
	require.NoError(t, err)
	assert.Equal(t, Tag{Number: 1, Wire: WireVarint}, tag)
	assert.Equal(t, 1, n)

	tag, _, err = getTag([]byte{0x13}, 0)
	require.NoError(t, err)
	assert.Equal(t, Tag{Number: 2, Wire: WireStartGroup}, tag)

	_, _, err = getTag([]byte{0x00}, 0)
	assert.Error(t, err, "field number zero is invalid")
}

func TestCheckType(t *testing.T) {
	t.Parallel()
	singular := func(ft FieldType) *FieldDef { return &FieldDef{Label: LabelOptional, Type: ft} }
	repeated := func(ft FieldType) *FieldDef { return &FieldDef{Label: LabelRepeated, Type: ft} }

	assert.True(t, CheckType(WireVarint, singular(TypeInt32)))
	assert.True(t, CheckType(WireDelimited, repeated(TypeInt32)), "packed run")
	assert.True(t, CheckType(WireVarint, repeated(TypeInt32)), "unpacked repeated element")
	assert.True(t, CheckType(WireDelimited, singular(TypeString)))
	assert.True(t, CheckType(WireDelimited, singular(TypeMessage)))
	assert.True(t, CheckType(Wire64Bit, singular(TypeDouble)))
	assert.True(t, CheckType(Wire32Bit, singular(TypeFloat)))
	assert.True(t, CheckType(WireStartGroup, singular(TypeGroup)))

	assert.False(t, CheckType(WireDelimited, singular(TypeInt32)), "a singular scalar is never delimited")
	assert.False(t, CheckType(WireDelimited, repeated(TypeGroup)))
	assert.False(t, CheckType(WireVarint, singular(TypeGroup)))
	assert.False(t, CheckType(WireDelimited, singular(TypeGroup)))
	assert.False(t, CheckType(Wire32Bit, singular(TypeInt32)))
	assert.False(t, CheckType(Wire64Bit, singular(TypeFloat)))
}

func TestValueOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int32(150), valueOf(TypeInt32, 150).Int32())
	assert.Equal(t, int32(-1), valueOf(TypeInt32, math.MaxUint64).Int32(), "sign-extended wire form")
	assert.Equal(t, int64(-1), valueOf(TypeInt64, math.MaxUint64).Int64())
	assert.Equal(t, int32(-2), valueOf(TypeSInt32, 3).Int32())
	assert.Equal(t, int32(2147483647), valueOf(TypeSInt32, 0xfffffffe).Int32())
	assert.Equal(t, int64(-2), valueOf(TypeSInt64, 3).Int64())
	assert.True(t, valueOf(TypeBool, 1).Bool())
	assert.False(t, valueOf(TypeBool, 0).Bool())
	assert.True(t, valueOf(TypeBool, 300).Bool(), "any nonzero varint is true")
	assert.Equal(t, float32(1.5), valueOf(TypeFloat, uint64(math.Float32bits(1.5))).Float32())
	assert.Equal(t, 2.25, valueOf(TypeDouble, math.Float64bits(2.25)).Float64())
	assert.Equal(t, int32(7), valueOf(TypeEnum, 7).Enum())
}

func TestWireBitsRoundTrip(t *testing.T) {
	t.Parallel()
	values := []Value{
		Int32Value(-150),
		Int64Value(-1),
		UInt32Value(math.MaxUint32),
		UInt64Value(math.MaxUint64),
		SInt32Value(-2),
		SInt32Value(math.MaxInt32),
		SInt64Value(math.MinInt64),
		BoolValue(true),
		Float32Value(1.5),
		Float64Value(-2.25),
		EnumValue(-3),
	}
	for _, v := range values {
		got := valueOf(v.Type(), wireBits(v))
		assert.Equal(t, v.Bits(), got.Bits(), "%v survives the wire", v)
	}
}
