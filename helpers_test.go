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
	"testing"

	"github.com/protocolbuffers/protoscope"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"buf.build/go/minipb"
)

const (
	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
)

func field(
	num int32, name string,
	label descriptorpb.FieldDescriptorProto_Label,
	typ descriptorpb.FieldDescriptorProto_Type,
	opts ...func(*descriptorpb.FieldDescriptorProto),
) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  label.Enum(),
		Type:   typ.Enum(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func typed(name string) func(*descriptorpb.FieldDescriptorProto) {
	return func(f *descriptorpb.FieldDescriptorProto) { f.TypeName = proto.String(name) }
}

func packed(f *descriptorpb.FieldDescriptorProto) {
	f.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
}

func withDefault(text string) func(*descriptorpb.FieldDescriptorProto) {
	return func(f *descriptorpb.FieldDescriptorProto) { f.DefaultValue = proto.String(text) }
}

// testFileSet is the schema most tests run against, in descriptor form.
func testFileSet() *descriptorpb.FileDescriptorSet {
	ty := descriptorpb.FieldDescriptorProto_TYPE_INT32
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{{
		Name:    proto.String("test.proto"),
		Package: proto.String("test"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Color"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("RED"), Number: proto.Int32(1)},
				{Name: proto.String("GREEN"), Number: proto.Int32(2)},
				{Name: proto.String("BLUE"), Number: proto.Int32(3)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Inner"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field(1, "a", optional, ty),
				},
			},
			{
				Name: proto.String("Node"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field(1, "next", optional, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typed(".test.Node")),
					field(2, "val", optional, ty),
				},
			},
			{
				Name: proto.String("Outer"),
				NestedType: []*descriptorpb.DescriptorProto{{
					Name: proto.String("G"),
					Field: []*descriptorpb.FieldDescriptorProto{
						field(1, "a", optional, ty),
					},
				}},
				Field: []*descriptorpb.FieldDescriptorProto{
					field(1, "i32", optional, ty),
					field(2, "g", optional, descriptorpb.FieldDescriptorProto_TYPE_GROUP, typed(".test.Outer.G")),
					field(3, "inner", optional, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typed(".test.Inner")),
					field(4, "nums", repeated, ty, packed),
					field(5, "s", optional, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field(6, "u64", optional, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					field(7, "s32", optional, descriptorpb.FieldDescriptorProto_TYPE_SINT32),
					field(8, "s64", optional, descriptorpb.FieldDescriptorProto_TYPE_SINT64),
					field(9, "f32", optional, descriptorpb.FieldDescriptorProto_TYPE_FIXED32),
					field(10, "f64", optional, descriptorpb.FieldDescriptorProto_TYPE_FIXED64),
					field(11, "sf32", optional, descriptorpb.FieldDescriptorProto_TYPE_SFIXED32),
					field(12, "sf64", optional, descriptorpb.FieldDescriptorProto_TYPE_SFIXED64),
					field(13, "fl", optional, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					field(14, "db", optional, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					field(15, "b", optional, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					field(16, "color", optional, descriptorpb.FieldDescriptorProto_TYPE_ENUM, typed(".test.Color"), withDefault("GREEN")),
					field(17, "raw", optional, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					field(18, "tags", repeated, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field(19, "inners", repeated, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typed(".test.Inner")),
					field(20, "d32", optional, ty, withDefault("-7")),
				},
			},
		},
	}}}
}

// testContext loads testFileSet through the engine's own loader.
func testContext(t *testing.T) *minipb.Context {
	t.Helper()
	b, err := proto.Marshal(testFileSet())
	require.NoError(t, err)

	ctx := minipb.NewContext()
	require.NoError(t, ctx.AddDescriptorSet(b))
	return ctx
}

// refDescriptor exposes the same schema as a protoreflect descriptor, for
// cross-checking against the reference implementation via dynamicpb.
func refDescriptor(t *testing.T, name protoreflect.FullName) protoreflect.MessageDescriptor {
	t.Helper()
	files, err := protodesc.NewFiles(testFileSet())
	require.NoError(t, err)
	desc, err := files.FindDescriptorByName(name)
	require.NoError(t, err)
	md, ok := desc.(protoreflect.MessageDescriptor)
	require.True(t, ok)
	return md
}

// scope assembles wire bytes from protoscope text.
func scope(t *testing.T, src string) []byte {
	t.Helper()
	b, err := protoscope.NewScanner(src).Exec()
	require.NoError(t, err)
	return b
}

// decoderFor returns a decoder over in-memory bytes for the named message.
func decoderFor(t *testing.T, ctx *minipb.Context, name string, b []byte, opts ...minipb.Option) *minipb.Decoder {
	t.Helper()
	md := ctx.Message(name)
	require.NotNil(t, md, "message %q", name)
	return minipb.NewDecoder(minipb.NewBytesSource(b), md, opts...)
}
