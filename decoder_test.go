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

package minipb_test

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"gopkg.in/yaml.v3"

	"buf.build/go/minipb"
)

// drain pulls everything out of src, rendering each event as one line.
func drain(src minipb.Source) ([]string, error) {
	var out []string
	var walk func() error
	walk = func() error {
		for {
			f, err := src.GetDef()
			if err != nil {
				return err
			}
			if f == nil {
				return nil
			}
			switch {
			case f.IsSubmessage():
				if err := src.StartMsg(); err != nil {
					return err
				}
				out = append(out, "start "+f.Name)
				if err := walk(); err != nil {
					return err
				}
				if err := src.EndMsg(); err != nil {
					return err
				}
				out = append(out, "end "+f.Name)
			case f.IsString():
				s := minipb.NewOwned(0)
				if err := src.GetStr(s); err != nil {
					return err
				}
				out = append(out, fmt.Sprintf("%s: %q", f.Name, s.Bytes()))
			default:
				v, err := src.GetVal()
				if err != nil {
					return err
				}
				out = append(out, fmt.Sprintf("%s: %v", f.Name, v))
			}
		}
	}
	err := walk()
	return out, err
}

func TestDecodeVarint(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, "1: 150")
	require.Equal(t, []byte{0x08, 0x96, 0x01}, in)

	dec := decoderFor(t, ctx, "test.Outer", in)
	events, err := drain(dec)
	require.NoError(t, err)
	assert.Equal(t, []string{"i32: 150"}, events)
	assert.True(t, dec.EOF())
}

func TestDecodeString(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, `5: {"hello"}`)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{`s: "hello"`}, events)
}

func TestDecodeNested(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, "3: {1: 150}")
	require.Equal(t, []byte{0x1a, 0x03, 0x08, 0x96, 0x01}, in)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{"start inner", "a: 150", "end inner"}, events)
}

func TestDecodePacked(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, "4: {3 270 86942}")
	require.Equal(t, []byte{0x22, 0x06, 0x03, 0x8e, 0x02, 0x9e, 0xa7, 0x05}, in)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{"nums: 3", "nums: 270", "nums: 86942"}, events)
}

func TestDecodeGroup(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, "2: !{1: 42}")
	require.Equal(t, []byte{0x13, 0x08, 0x2a, 0x14}, in)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{"start g", "a: 42", "end g"}, events)
}

func TestDecodeUnknownFieldsSkipped(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, `
		99: 5
		98: {"ignore me"}
		97: !{1: 1 2: !{3: 4}}
		1: 150
	`)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{"i32: 150"}, events)
}

func TestDecodeWireTypeMismatch(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	// Field 1 is int32; 32BIT is not an acceptable wire type for it.
	in := []byte{0x0d, 0x01, 0x00, 0x00, 0x00}

	_, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.ErrorIs(t, err, minipb.ErrBadWireType)
}

// nest wraps payload in n levels of test.Node's "next" field.
func nest(payload []byte, n int) []byte {
	for i := 0; i < n; i++ {
		wrapped := protowire.AppendTag(nil, 1, protowire.BytesType)
		wrapped = protowire.AppendVarint(wrapped, uint64(len(payload)))
		payload = append(wrapped, payload...)
	}
	return payload
}

func TestDecodeNestingOverflow(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := nest(scope(t, "2: 1"), minipb.DefaultMaxDepth+1)

	_, err := drain(decoderFor(t, ctx, "test.Node", in))
	require.ErrorIs(t, err, minipb.ErrNestingOverflow)

	// One level fewer fits.
	in = nest(scope(t, "2: 1"), minipb.DefaultMaxDepth)
	_, err = drain(decoderFor(t, ctx, "test.Node", in))
	require.NoError(t, err)

	// The limit is configurable.
	in = nest(scope(t, "2: 1"), 3)
	_, err = drain(decoderFor(t, ctx, "test.Node", in, minipb.WithMaxDepth(2)))
	require.ErrorIs(t, err, minipb.ErrNestingOverflow)
}

func TestDecodeSubmsgExceedsParent(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	// Outer submessage claims 3 bytes, inner claims 10.
	in := []byte{0x0a, 0x03, 0x0a, 0x0a, 0x00}

	_, err := drain(decoderFor(t, ctx, "test.Node", in))
	require.ErrorIs(t, err, minipb.ErrSubmsgExceedsParent)
}

func TestDecodeTruncatedVarint(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	dec := decoderFor(t, ctx, "test.Outer", []byte{0x08, 0x96})

	f, err := dec.GetDef()
	require.NoError(t, err)
	require.NotNil(t, f)
	_, err = dec.GetVal()
	require.ErrorIs(t, err, minipb.ErrUnterminatedVarint)
}

func TestDecodeGroupMismatch(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	// START_GROUP for field 2, but END_GROUP for field 3.
	in := []byte{0x13, 0x08, 0x2a, 0x1c}

	_, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.ErrorIs(t, err, minipb.ErrGroupMismatch)
}

func TestDecodeEOFSemantics(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	dec := decoderFor(t, ctx, "test.Outer", scope(t, "3: {1: 150}"))

	assert.False(t, dec.EOF(), "EOF is not predictive")
	f, err := dec.GetDef()
	require.NoError(t, err)
	require.Equal(t, "inner", f.Name)
	require.NoError(t, dec.StartMsg())

	f, err = dec.GetDef()
	require.NoError(t, err)
	require.Equal(t, "a", f.Name)
	_, err = dec.GetVal()
	require.NoError(t, err)

	f, err = dec.GetDef()
	require.NoError(t, err)
	require.Nil(t, f, "end of submessage")
	assert.True(t, dec.EOF())

	require.NoError(t, dec.EndMsg())
	assert.False(t, dec.EOF(), "EndMsg clears a submessage-scope EOF")

	f, err = dec.GetDef()
	require.NoError(t, err)
	require.Nil(t, f)
	assert.True(t, dec.EOF())
}

func TestDecodeEarlyEndMsg(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	dec := decoderFor(t, ctx, "test.Outer", scope(t, "3: {1: 150} 1: 7"))

	_, err := dec.GetDef()
	require.NoError(t, err)
	require.NoError(t, dec.StartMsg())
	require.NoError(t, dec.EndMsg(), "EndMsg before the submessage is exhausted skips the rest")

	f, err := dec.GetDef()
	require.NoError(t, err)
	require.Equal(t, "i32", f.Name)
}

func TestDecodeImplicitSkip(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	dec := decoderFor(t, ctx, "test.Outer", scope(t, `1: 150 5: {"x"} 2: !{1: 1} 4: {1 2 3}`))

	names := []string{}
	for {
		f, err := dec.GetDef()
		require.NoError(t, err)
		if f == nil {
			break
		}
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"i32", "s", "g", "nums"}, names)
}

func TestDecodeAliasing(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, `5: {"hello"}`)
	dec := decoderFor(t, ctx, "test.Outer", in)

	_, err := dec.GetDef()
	require.NoError(t, err)
	s := minipb.NewOwned(0)
	require.NoError(t, dec.GetStr(s))
	require.Equal(t, "hello", s.String())
	assert.Equal(t, minipb.ModeAlias, s.Mode())
	assert.Same(t, &in[2], &s.Bytes()[0], "string aliases the input buffer")
}

func TestDecodeFromReader(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, `3: {1: 150} 5: {"hello"} 4: {3 270}`)

	src := minipb.NewReaderSource(bytes.NewReader(in))
	dec := minipb.NewDecoder(src, ctx.Message("test.Outer"))
	events, err := drain(dec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"start inner", "a: 150", "end inner",
		`s: "hello"`,
		"nums: 3", "nums: 270",
	}, events)
}

func TestDecodeReaderStringOwned(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	src := minipb.NewReaderSource(bytes.NewReader(scope(t, `5: {"hello"}`)))
	dec := minipb.NewDecoder(src, ctx.Message("test.Outer"))

	_, err := dec.GetDef()
	require.NoError(t, err)
	s := minipb.NewOwned(0)
	require.NoError(t, dec.GetStr(s))
	assert.Equal(t, "hello", s.String())
	assert.Equal(t, minipb.ModeOwned, s.Mode(), "an io.Reader source cannot alias")
}

func TestDecodeAllScalarTypes(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	in := scope(t, `
		6: 18446744073709551615
		7: 3    # zigzag(-2)
		8: 599  # zigzag(-300)
		9: 7i32
		10: 8i64
		11: -9i32
		12: -10i64
		13: 1.5i32
		14: 2.25
		15: true
		16: 2
	`)

	events, err := drain(decoderFor(t, ctx, "test.Outer", in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"u64: 18446744073709551615",
		"s32: -2",
		"s64: -300",
		"f32: 7",
		"f64: 8",
		"sf32: -9",
		"sf64: -10",
		"fl: 1.5",
		"db: 2.25",
		"b: true",
		"color: 2",
	}, events)
}

/* YAML conformance corpus. **************************************************/

type conformanceCase struct {
	Name       string   `yaml:"name"`
	Message    string   `yaml:"message"`
	Protoscope string   `yaml:"protoscope"`
	Hex        string   `yaml:"hex"`
	Events     []string `yaml:"events"`
	Error      string   `yaml:"error"`
}

var conformanceErrors = map[string]error{
	"unterminated_varint":   minipb.ErrUnterminatedVarint,
	"bad_wire_type":         minipb.ErrBadWireType,
	"nesting_overflow":      minipb.ErrNestingOverflow,
	"submsg_exceeds_parent": minipb.ErrSubmsgExceedsParent,
	"group_mismatch":        minipb.ErrGroupMismatch,
	"premature_eof":         minipb.ErrPrematureEOF,
}

func TestDecodeConformance(t *testing.T) {
	t.Parallel()
	raw, err := os.ReadFile("testdata/conformance.yaml")
	require.NoError(t, err)
	var cases []conformanceCase
	require.NoError(t, yaml.Unmarshal(raw, &cases))

	ctx := testContext(t)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			var in []byte
			if tc.Hex != "" {
				var err error
				in, err = hex.DecodeString(strings.ReplaceAll(tc.Hex, " ", ""))
				require.NoError(t, err)
			} else {
				in = scope(t, tc.Protoscope)
			}

			events, err := drain(decoderFor(t, ctx, tc.Message, in))
			if tc.Error != "" {
				want, ok := conformanceErrors[tc.Error]
				require.True(t, ok, "unknown error name %q", tc.Error)
				require.ErrorIs(t, err, want)
				return
			}
			require.NoError(t, err)
			if len(tc.Events) == 0 {
				tc.Events = nil
			}
			assert.Equal(t, tc.Events, events)
		})
	}
}
