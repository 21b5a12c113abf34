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

// Package msg is an in-memory message layer on top of the streaming core.
//
// A [Message] stores scalar fields in a byte slab laid out by the schema's
// seal pass — each field at the offset and set-bit the [minipb.MessageDef]
// assigns — and reference fields (strings, submessages, repeated fields) at
// the side. [Build] fills one from any [minipb.Source];
// [Message.Stream] plays one back into any [minipb.Sink].
package msg

import (
	"bytes"
	"encoding/binary"

	"buf.build/go/minipb"
)

// Message is a mutable in-memory instance of one message type.
type Message struct {
	def  *minipb.MessageDef
	data []byte

	strs map[int32]*minipb.Bytes
	msgs map[int32]*Message

	repVals map[int32][]minipb.Value
	repStrs map[int32][]*minipb.Bytes
	repMsgs map[int32][]*Message
}

// New returns an empty message of the given type.
func New(def *minipb.MessageDef) *Message {
	return &Message{def: def, data: make([]byte, def.Size)}
}

// Def returns the message's type.
func (m *Message) Def() *minipb.MessageDef { return m.def }

// Has reports whether the non-repeated field f is set.
func (m *Message) Has(f *minipb.FieldDef) bool {
	if f.Bit < 0 {
		return false
	}
	return m.data[m.def.BitmapOffset+uint32(f.Bit)/8]&(1<<(uint32(f.Bit)%8)) != 0
}

func (m *Message) setBit(f *minipb.FieldDef) {
	if f.Bit >= 0 {
		m.data[m.def.BitmapOffset+uint32(f.Bit)/8] |= 1 << (uint32(f.Bit) % 8)
	}
}

// GetVal returns the numeric value of f, or the field's default if unset.
func (m *Message) GetVal(f *minipb.FieldDef) minipb.Value {
	if !m.Has(f) {
		return f.Default
	}
	var bits uint64
	switch w := slotWidth(f.Type); w {
	case 1:
		bits = uint64(m.data[f.Offset])
	case 4:
		bits = uint64(binary.LittleEndian.Uint32(m.data[f.Offset:]))
	default:
		bits = binary.LittleEndian.Uint64(m.data[f.Offset:])
	}
	return minipb.TypedValue(f.Type, bits)
}

// SetVal sets the numeric value of f.
func (m *Message) SetVal(f *minipb.FieldDef, v minipb.Value) {
	switch w := slotWidth(f.Type); w {
	case 1:
		m.data[f.Offset] = byte(v.Bits())
	case 4:
		binary.LittleEndian.PutUint32(m.data[f.Offset:], uint32(v.Bits()))
	default:
		binary.LittleEndian.PutUint64(m.data[f.Offset:], v.Bits())
	}
	m.setBit(f)
}

// GetStr returns the string value of f, or the field's default if unset.
func (m *Message) GetStr(f *minipb.FieldDef) *minipb.Bytes {
	if s := m.strs[f.Number]; s != nil {
		return s
	}
	return f.Default.Bytes()
}

// SetStr sets the string value of f, taking a reference on s.
func (m *Message) SetStr(f *minipb.FieldDef, s *minipb.Bytes) {
	if m.strs == nil {
		m.strs = map[int32]*minipb.Bytes{}
	}
	if old := m.strs[f.Number]; old != nil {
		old.Unref()
	}
	m.strs[f.Number] = s.Ref()
	m.setBit(f)
}

// GetMsg returns the submessage value of f, or nil.
func (m *Message) GetMsg(f *minipb.FieldDef) *Message { return m.msgs[f.Number] }

// SetMsg sets the submessage value of f.
func (m *Message) SetMsg(f *minipb.FieldDef, sub *Message) {
	if m.msgs == nil {
		m.msgs = map[int32]*Message{}
	}
	m.msgs[f.Number] = sub
	m.setBit(f)
}

// Len returns the number of elements in the repeated field f.
func (m *Message) Len(f *minipb.FieldDef) int {
	switch {
	case f.IsSubmessage():
		return len(m.repMsgs[f.Number])
	case f.IsString():
		return len(m.repStrs[f.Number])
	default:
		return len(m.repVals[f.Number])
	}
}

// ValAt returns element i of the repeated numeric field f.
func (m *Message) ValAt(f *minipb.FieldDef, i int) minipb.Value {
	return m.repVals[f.Number][i]
}

// StrAt returns element i of the repeated string field f.
func (m *Message) StrAt(f *minipb.FieldDef, i int) *minipb.Bytes {
	return m.repStrs[f.Number][i]
}

// MsgAt returns element i of the repeated message field f.
func (m *Message) MsgAt(f *minipb.FieldDef, i int) *Message {
	return m.repMsgs[f.Number][i]
}

// AppendVal appends to the repeated numeric field f.
func (m *Message) AppendVal(f *minipb.FieldDef, v minipb.Value) {
	if m.repVals == nil {
		m.repVals = map[int32][]minipb.Value{}
	}
	m.repVals[f.Number] = append(m.repVals[f.Number], v)
}

// AppendStr appends to the repeated string field f, taking a reference.
func (m *Message) AppendStr(f *minipb.FieldDef, s *minipb.Bytes) {
	if m.repStrs == nil {
		m.repStrs = map[int32][]*minipb.Bytes{}
	}
	m.repStrs[f.Number] = append(m.repStrs[f.Number], s.Ref())
}

// AppendMsg appends to the repeated message field f.
func (m *Message) AppendMsg(f *minipb.FieldDef, sub *Message) {
	if m.repMsgs == nil {
		m.repMsgs = map[int32][]*Message{}
	}
	m.repMsgs[f.Number] = append(m.repMsgs[f.Number], sub)
}

func slotWidth(ft minipb.FieldType) int {
	switch ft {
	case minipb.TypeBool:
		return 1
	case minipb.TypeInt32, minipb.TypeUInt32, minipb.TypeSInt32,
		minipb.TypeFixed32, minipb.TypeSFixed32, minipb.TypeFloat,
		minipb.TypeEnum:
		return 4
	}
	return 8
}

// Build pulls one whole message of type def out of src.
func Build(src minipb.Source, def *minipb.MessageDef) (*Message, error) {
	m := New(def)
	if err := m.fill(src); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) fill(src minipb.Source) error {
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
			sub := New(f.Message)
			if err := sub.fill(src); err != nil {
				return err
			}
			if err := src.EndMsg(); err != nil {
				return err
			}
			if f.Label == minipb.LabelRepeated {
				m.AppendMsg(f, sub)
			} else {
				m.SetMsg(f, sub)
			}
		case f.IsString():
			s := minipb.NewOwned(0)
			if err := src.GetStr(s); err != nil {
				s.Unref()
				return err
			}
			if f.Label == minipb.LabelRepeated {
				m.AppendStr(f, s)
			} else {
				m.SetStr(f, s)
			}
			s.Unref()
		default:
			v, err := src.GetVal()
			if err != nil {
				return err
			}
			if f.Label == minipb.LabelRepeated {
				m.AppendVal(f, v)
			} else {
				m.SetVal(f, v)
			}
		}
	}
}

// Stream plays the message back into sink, fields in number order.
func (m *Message) Stream(sink minipb.Sink) error {
	for _, f := range m.def.Fields {
		if f.Label == minipb.LabelRepeated {
			if err := m.streamRepeated(sink, f); err != nil {
				return err
			}
			continue
		}
		if !m.Has(f) {
			continue
		}
		if err := sink.PutDef(f); err != nil {
			return err
		}
		switch {
		case f.IsSubmessage():
			if err := sink.StartMsg(); err != nil {
				return err
			}
			if err := m.GetMsg(f).Stream(sink); err != nil {
				return err
			}
			if err := sink.EndMsg(); err != nil {
				return err
			}
		case f.IsString():
			if err := sink.PutStr(m.GetStr(f)); err != nil {
				return err
			}
		default:
			if err := sink.PutVal(m.GetVal(f)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Message) streamRepeated(sink minipb.Sink, f *minipb.FieldDef) error {
	for i, n := 0, m.Len(f); i < n; i++ {
		if err := sink.PutDef(f); err != nil {
			return err
		}
		switch {
		case f.IsSubmessage():
			if err := sink.StartMsg(); err != nil {
				return err
			}
			if err := m.MsgAt(f, i).Stream(sink); err != nil {
				return err
			}
			if err := sink.EndMsg(); err != nil {
				return err
			}
		case f.IsString():
			if err := sink.PutStr(m.StrAt(f, i)); err != nil {
				return err
			}
		default:
			if err := sink.PutVal(m.ValAt(f, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Marshal serializes the message to the wire format.
func Marshal(m *Message) ([]byte, error) {
	sink := minipb.NewBufferSink()
	if err := m.Stream(minipb.NewEncoder(sink)); err != nil {
		return nil, err
	}
	return sink.Bytes(), nil
}

// Unmarshal decodes one message of type def from b.
func Unmarshal(b []byte, def *minipb.MessageDef) (*Message, error) {
	return Build(minipb.NewDecoder(minipb.NewBytesSource(b), def), def)
}

// Equal reports whether two messages of the same type have the same set
// fields with the same values.
func Equal(a, b *Message) bool {
	if a.def != b.def {
		return false
	}
	for _, f := range a.def.Fields {
		if f.Label == minipb.LabelRepeated {
			if a.Len(f) != b.Len(f) {
				return false
			}
			for i, n := 0, a.Len(f); i < n; i++ {
				switch {
				case f.IsSubmessage():
					if !Equal(a.MsgAt(f, i), b.MsgAt(f, i)) {
						return false
					}
				case f.IsString():
					if !bytes.Equal(a.StrAt(f, i).Bytes(), b.StrAt(f, i).Bytes()) {
						return false
					}
				default:
					if a.ValAt(f, i).Bits() != b.ValAt(f, i).Bits() {
						return false
					}
				}
			}
			continue
		}
		if a.Has(f) != b.Has(f) {
			return false
		}
		if !a.Has(f) {
			continue
		}
		switch {
		case f.IsSubmessage():
			if !Equal(a.GetMsg(f), b.GetMsg(f)) {
				return false
			}
		case f.IsString():
			if !bytes.Equal(a.GetStr(f).Bytes(), b.GetStr(f).Bytes()) {
				return false
			}
		default:
			if a.GetVal(f).Bits() != b.GetVal(f).Bits() {
				return false
			}
		}
	}
	return true
}
