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

// The bootstrap schema: the subset of google.protobuf's descriptor.proto
// that the engine needs in order to parse a FileDescriptorSet — its own
// schema format — with no external input. Compiled into the binary as
// static defs; [Context.AddDescriptorSet] decodes against these.

func bfield(num int32, name string, label Label, ft FieldType) *FieldDef {
	return &FieldDef{Number: num, Name: name, Label: label, Type: ft, Bit: -1}
}

func bmsg(name string, fields ...*FieldDef) *MessageDef {
	m := &MessageDef{FullName: name, Fields: fields}
	finishMessage(m)
	return m
}

var bootstrapFileDescriptorSet = func() *MessageDef {
	enumValue := bmsg("google.protobuf.EnumValueDescriptorProto",
		bfield(1, "name", LabelOptional, TypeString),
		bfield(2, "number", LabelOptional, TypeInt32),
	)
	enum := bmsg("google.protobuf.EnumDescriptorProto",
		bfield(1, "name", LabelOptional, TypeString),
		bfield(2, "value", LabelRepeated, TypeMessage),
	)
	enum.FieldByNumber(2).Message = enumValue

	fieldOptions := bmsg("google.protobuf.FieldOptions",
		bfield(2, "packed", LabelOptional, TypeBool),
	)
	field := bmsg("google.protobuf.FieldDescriptorProto",
		bfield(1, "name", LabelOptional, TypeString),
		bfield(3, "number", LabelOptional, TypeInt32),
		bfield(4, "label", LabelOptional, TypeEnum),
		bfield(5, "type", LabelOptional, TypeEnum),
		bfield(6, "type_name", LabelOptional, TypeString),
		bfield(7, "default_value", LabelOptional, TypeString),
		bfield(8, "options", LabelOptional, TypeMessage),
	)
	field.FieldByNumber(8).Message = fieldOptions

	message := bmsg("google.protobuf.DescriptorProto",
		bfield(1, "name", LabelOptional, TypeString),
		bfield(2, "field", LabelRepeated, TypeMessage),
		bfield(3, "nested_type", LabelRepeated, TypeMessage),
		bfield(4, "enum_type", LabelRepeated, TypeMessage),
	)
	message.FieldByNumber(2).Message = field
	message.FieldByNumber(3).Message = message // DescriptorProto is recursive.
	message.FieldByNumber(4).Message = enum

	file := bmsg("google.protobuf.FileDescriptorProto",
		bfield(1, "name", LabelOptional, TypeString),
		bfield(2, "package", LabelOptional, TypeString),
		bfield(4, "message_type", LabelRepeated, TypeMessage),
		bfield(5, "enum_type", LabelRepeated, TypeMessage),
		bfield(12, "syntax", LabelOptional, TypeString),
	)
	file.FieldByNumber(4).Message = message
	file.FieldByNumber(5).Message = enum

	set := bmsg("google.protobuf.FileDescriptorSet",
		bfield(1, "file", LabelRepeated, TypeMessage),
	)
	set.FieldByNumber(1).Message = file
	return set
}()

// Values of FieldDescriptorProto.Label and .Type are shared with the wire
// form of the bootstrap schema, so [Label] and [FieldType] use the proto
// enum numbering directly.
const (
	minFieldType = TypeDouble
	maxFieldType = TypeSInt64
)
