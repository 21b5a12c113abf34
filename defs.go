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

// Label is a field's cardinality.
type Label uint8

const (
	LabelOptional Label = 1
	LabelRequired Label = 2
	LabelRepeated Label = 3
)

// FieldDef describes one field of a message. FieldDefs are immutable once
// their [Context] has sealed them.
type FieldDef struct {
	Number int32
	Name   string
	Label  Label
	Type   FieldType

	// Packed is set for repeated primitive fields whose elements are encoded
	// as one DELIMITED blob.
	Packed bool

	// Message and Enum are the resolved target descriptors for message,
	// group, and enum fields. They are direct references after sealing;
	// cycles in the descriptor graph are permitted, so traversals must track
	// visited messages themselves.
	Message *MessageDef
	Enum    *EnumDef

	// Offset and Bit locate the field inside the in-memory layout computed
	// at seal time: Offset is the byte offset of the field's slot, and Bit
	// is the index of its set-bit, or -1 for repeated fields.
	Offset uint32
	Bit    int32

	// Default holds the field's default value for primitive and enum types.
	Default Value

	// typeName is the unresolved dotted name recorded during the parse pass
	// and consumed by sealing.
	typeName string
}

// WireType returns the wire type values of this field are encoded with.
func (f *FieldDef) WireType() WireType { return typeInfo[f.Type].wire }

// IsSubmessage reports whether the field is a message or group, i.e.
// whether [Source.StartMsg] is legal after pulling this def.
func (f *FieldDef) IsSubmessage() bool {
	return f.Type == TypeMessage || f.Type == TypeGroup
}

// IsString reports whether the field is a string or bytes field.
func (f *FieldDef) IsString() bool {
	return f.Type == TypeString || f.Type == TypeBytes
}

// denseLimit is the largest field number stored in a MessageDef's dense
// number table; everything above it goes to the spill map. Most messages
// number their fields from 1, so the dense table almost always wins.
const denseLimit = 64

// MessageDef describes a message type: its fields, their number-based
// lookup table, and the in-memory layout computed at seal time.
type MessageDef struct {
	FullName string

	// Fields in field-number order.
	Fields []*FieldDef

	// Size is the total byte size of one in-memory instance of this message,
	// including the set-bitmap, rounded up to pointer alignment.
	Size uint32

	// BitmapOffset is the byte offset of the set-bitmap within the layout;
	// set-bit i of field f lives at byte BitmapOffset + f.Bit/8.
	BitmapOffset uint32

	dense []*FieldDef         // Indexed directly by field number.
	spill map[int32]*FieldDef // Numbers above denseLimit.
}

// FieldByNumber returns the field with the given number, or nil if the
// message has no such field.
func (m *MessageDef) FieldByNumber(n int32) *FieldDef {
	if n >= 0 && int(n) < len(m.dense) {
		return m.dense[n]
	}
	return m.spill[n]
}

// FieldByName returns the field with the given declared name, or nil.
func (m *MessageDef) FieldByName(name string) *FieldDef {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// EnumDef describes an enum type: a two-way mapping between symbolic names
// and int32 values.
type EnumDef struct {
	FullName string

	// Default is the enum's default value, the first declared value.
	Default int32

	byName   map[string]int32
	byNumber map[int32]string
}

// ValueByName returns the number for the given symbolic name.
func (e *EnumDef) ValueByName(name string) (int32, bool) {
	n, ok := e.byName[name]
	return n, ok
}

// NameByValue returns the symbolic name for the given number, or "".
func (e *EnumDef) NameByValue(n int32) string {
	return e.byNumber[n]
}
