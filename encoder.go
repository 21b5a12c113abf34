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
	"google.golang.org/protobuf/encoding/protowire"
)

// encoderFrame holds a parent's partial output while a delimited submessage
// accumulates; the submessage's length prefix can only be written once the
// submessage is complete. Group frames need no buffering, only a tag at
// each end.
type encoderFrame struct {
	parent []byte
	field  *FieldDef
	group  bool
}

// Encoder is a [Sink] that serializes the values pushed into it to the wire
// format and hands the bytes to a [ByteSink].
//
// Repeated primitive fields are written one tag per element, which any
// conforming decoder accepts for packed-declared fields too.
type Encoder struct {
	sink  ByteSink
	cur   []byte
	stack []encoderFrame
	field *FieldDef
	str   *Bytes
}

var _ Sink = (*Encoder)(nil)

// NewEncoder returns a Sink serializing to sink.
func NewEncoder(sink ByteSink) *Encoder {
	return &Encoder{sink: sink, str: NewOwned(0)}
}

// PutDef implements [Sink].
func (e *Encoder) PutDef(f *FieldDef) error {
	e.field = f
	return nil
}

func (e *Encoder) tag(wt WireType) {
	e.cur = protowire.AppendTag(e.cur, protowire.Number(e.field.Number), protowire.Type(wt))
}

// PutVal implements [Sink].
func (e *Encoder) PutVal(v Value) error {
	if e.field == nil {
		panic("minipb: PutVal without PutDef")
	}
	bits := wireBits(v)
	switch wt := e.field.WireType(); wt {
	case WireVarint:
		e.tag(wt)
		e.cur = protowire.AppendVarint(e.cur, bits)
	case Wire64Bit:
		e.tag(wt)
		e.cur = protowire.AppendFixed64(e.cur, bits)
	case Wire32Bit:
		e.tag(wt)
		e.cur = protowire.AppendFixed32(e.cur, uint32(bits))
	default:
		panic("minipb: PutVal on a non-numeric field")
	}
	return e.flush()
}

// PutStr implements [Sink]. The field may be a string or bytes field, or a
// message field whose payload the caller already has serialized.
func (e *Encoder) PutStr(b *Bytes) error {
	if e.field == nil {
		panic("minipb: PutStr without PutDef")
	}
	e.tag(WireDelimited)
	e.cur = protowire.AppendVarint(e.cur, uint64(b.Len()))
	e.cur = append(e.cur, b.Bytes()...)
	return e.flush()
}

// StartMsg implements [Sink].
func (e *Encoder) StartMsg() error {
	f := e.field
	if f == nil || !f.IsSubmessage() {
		panic("minipb: StartMsg without a submessage def")
	}
	if f.Type == TypeGroup {
		e.tag(WireStartGroup)
		e.stack = append(e.stack, encoderFrame{field: f, group: true})
		return nil
	}
	e.stack = append(e.stack, encoderFrame{parent: e.cur, field: f})
	e.cur = nil
	return nil
}

// EndMsg implements [Sink].
func (e *Encoder) EndMsg() error {
	if len(e.stack) == 0 {
		panic("minipb: EndMsg without an open submessage")
	}
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	if top.group {
		e.cur = protowire.AppendTag(e.cur, protowire.Number(top.field.Number), protowire.EndGroupType)
	} else {
		payload := e.cur
		e.cur = top.parent
		e.cur = protowire.AppendTag(e.cur, protowire.Number(top.field.Number), protowire.BytesType)
		e.cur = protowire.AppendVarint(e.cur, uint64(len(payload)))
		e.cur = append(e.cur, payload...)
	}
	return e.flush()
}

// flush hands completed top-level bytes to the sink. Inside a delimited
// submessage nothing can flush, since the submessage's length is still
// unknown.
func (e *Encoder) flush() error {
	for _, f := range e.stack {
		if !f.group {
			return nil
		}
	}
	for len(e.cur) > 0 {
		e.str.Recycle()
		e.str.Append(e.cur)
		n, err := e.sink.Put(e.str)
		if err != nil {
			return err
		}
		e.cur = e.cur[n:]
	}
	e.cur = nil
	return nil
}
