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
	"errors"
	"io"
	"math"

	"buf.build/go/minipb/internal/debug"
)

// DefaultMaxDepth is the default limit on submessage nesting.
const DefaultMaxDepth = 64

type limits struct {
	maxDepth int
}

// Option is a configuration setting for [NewDecoder] and [NewParser].
type Option func(*limits)

// WithMaxDepth sets the maximum submessage nesting depth. Inputs that nest
// deeper fail with [CodeNestingOverflow]. Large values enable potential DoS
// vectors.
func WithMaxDepth(n int) Option {
	return func(l *limits) { l.maxDepth = n }
}

func applyOptions(opts []Option) limits {
	l := limits{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}
	return l
}

type decoderState uint8

const (
	decWantDef decoderState = iota
	decWantVal
	decWantStr
	decWantStart
)

// decoderFrame is one level of submessage nesting. end is the absolute
// offset at which the submessage terminates; 0 marks a group frame, which
// terminates at its END_GROUP tag instead, and the top-level frame is
// unbounded.
type decoderFrame struct {
	end   int64
	group int32
	msg   *MessageDef
}

// Decoder is a [Source] that decodes the wire format pulled from a
// [ByteSource], binding field numbers to declared types through a sealed
// [MessageDef].
//
// Unknown field numbers are not errors; their values are consumed per their
// wire type and discarded, descending into unknown groups to find their
// end.
type Decoder struct {
	src      ByteSource
	buf      *Bytes
	pos      int
	primed   bool
	maxDepth int

	frames []decoderFrame
	depth  int

	field *FieldDef
	wire  WireType
	state decoderState

	delim     int   // Pending delimited length for a string or submessage.
	packedEnd int64 // End offset of the packed run being drained, or 0.
	groupEnd  bool  // The top frame's END_GROUP tag was already consumed.

	err error
	eof bool
}

var _ Source = (*Decoder)(nil)

// NewDecoder returns a Source decoding messages of type md from src.
func NewDecoder(src ByteSource, md *MessageDef, opts ...Option) *Decoder {
	l := applyOptions(opts)
	d := &Decoder{
		src:      src,
		buf:      NewOwned(0),
		maxDepth: l.maxDepth,
		frames:   make([]decoderFrame, l.maxDepth+1),
	}
	d.frames[0] = decoderFrame{end: math.MaxInt64, msg: md}
	return d
}

// EOF implements [Source]. It follows feof semantics: true only after a
// read failed at end-of-stream or end-of-submessage; [Decoder.EndMsg]
// clears it for the enclosing scope.
func (d *Decoder) EOF() bool { return d.eof }

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

func (d *Decoder) available() int { return d.buf.Len() - d.pos }

func (d *Decoder) window() []byte { return d.buf.Bytes()[d.pos:] }

// pull blocks until at least min unread bytes are buffered, or the source
// ends. Consumed bytes stay in the buffer so aliasing strings remain valid
// for the rest of the parse.
func (d *Decoder) pull(min int) error {
	for d.available() < min {
		need := min - d.available()
		var err error
		if !d.primed {
			d.primed = true
			err = d.src.Get(d.buf, need)
		} else {
			err = d.src.Append(d.buf, need)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTag reads the next field tag. io.EOF comes back bare only when the
// stream ends cleanly on a tag boundary.
func (d *Decoder) readTag() (Tag, error) {
	for {
		tag, n, err := getTag(d.window(), int64(d.pos))
		switch {
		case err == nil:
			d.pos += n
			return tag, nil
		case errors.Is(err, errNeedMore):
			if perr := d.pull(d.available() + 1); perr != nil {
				if !errors.Is(perr, io.EOF) {
					return Tag{}, perr
				}
				if d.available() == 0 {
					return Tag{}, io.EOF
				}
				return Tag{}, statusf(CodeUnterminatedVarint, int64(d.pos), "unterminated varint")
			}
		default:
			return Tag{}, err
		}
	}
}

// readVarint reads a full varint, which must be present: truncation is an
// error here, unlike at a tag boundary.
func (d *Decoder) readVarint() (uint64, error) {
	for {
		v, n, err := getVarint(d.window(), int64(d.pos))
		switch {
		case err == nil:
			d.pos += n
			return v, nil
		case errors.Is(err, errNeedMore):
			if perr := d.pull(d.available() + 1); perr != nil {
				if !errors.Is(perr, io.EOF) {
					return 0, perr
				}
				if d.available() == 0 {
					return 0, statusf(CodePrematureEOF, int64(d.pos), "stream ended inside a value")
				}
				return 0, statusf(CodeUnterminatedVarint, int64(d.pos), "unterminated varint")
			}
		default:
			return 0, err
		}
	}
}

func (d *Decoder) readFixed(n int) (uint64, error) {
	if err := d.pull(n); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, statusf(CodePrematureEOF, int64(d.pos), "stream ended inside a %d-byte value", n)
		}
		return 0, err
	}
	var v uint64
	if n == 4 {
		u, _, _ := getFixed32(d.window())
		v = uint64(u)
	} else {
		v, _, _ = getFixed64(d.window())
	}
	d.pos += n
	return v, nil
}

// GetDef implements [Source]. A value left unconsumed from the previous def
// is skipped.
func (d *Decoder) GetDef() (*FieldDef, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.state != decWantDef {
		if err := d.SkipVal(); err != nil {
			return nil, err
		}
	}
	if d.groupEnd {
		// The top group's END_GROUP tag was already seen; only EndMsg moves
		// the stream forward now.
		d.eof = true
		return nil, nil
	}
	if d.packedEnd > 0 {
		if int64(d.pos) < d.packedEnd {
			d.state = decWantVal
			return d.field, nil
		}
		d.packedEnd = 0
	}
	for {
		top := &d.frames[d.depth]
		if top.end > 0 {
			if int64(d.pos) > top.end {
				return nil, d.fail(statusf(CodeSubmsgExceedsParent, int64(d.pos),
					"field overruns end of submessage %s", top.msg.FullName))
			}
			if int64(d.pos) == top.end {
				d.eof = true
				return nil, nil
			}
		}

		tag, err := d.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if d.depth > 0 {
					return nil, d.fail(statusf(CodePrematureEOF, int64(d.pos),
						"stream ended inside submessage %s", top.msg.FullName))
				}
				d.eof = true
				return nil, nil
			}
			return nil, d.fail(err)
		}

		if tag.Wire == WireEndGroup {
			if top.end != 0 || top.group != tag.Number {
				return nil, d.fail(statusf(CodeGroupMismatch, int64(d.pos),
					"end group %d inside %s", tag.Number, top.msg.FullName))
			}
			d.groupEnd = true
			d.eof = true
			return nil, nil
		}

		f := top.msg.FieldByNumber(tag.Number)
		if f == nil {
			if err := d.skipUnknown(tag); err != nil {
				return nil, d.fail(err)
			}
			continue
		}
		if !CheckType(tag.Wire, f) {
			return nil, d.fail(statusf(CodeBadWireType, int64(d.pos),
				"field %s.%s: wire type %v for declared type %d",
				top.msg.FullName, f.Name, tag.Wire, f.Type))
		}

		d.field, d.wire = f, tag.Wire
		if tag.Wire == WireDelimited {
			length, err := d.readVarint()
			if err != nil {
				return nil, d.fail(err)
			}
			end := int64(d.pos) + int64(length)
			if top.end > 0 && end > top.end {
				return nil, d.fail(statusf(CodeSubmsgExceedsParent, int64(d.pos),
					"field %s.%s of length %d exceeds end of parent",
					top.msg.FullName, f.Name, length))
			}
			switch {
			case f.Type == TypeMessage:
				d.delim = int(length)
				d.state = decWantStart
			case f.IsString():
				d.delim = int(length)
				d.state = decWantStr
			default:
				// Packed run. All of it must be buffered; packed data does
				// not stream the way submessages do.
				if length == 0 {
					continue
				}
				if err := d.pull(int(length)); err != nil {
					return nil, d.fail(statusf(CodePrematureEOF, int64(d.pos),
						"stream ended inside packed field %s.%s", top.msg.FullName, f.Name))
				}
				d.packedEnd = end
				d.state = decWantVal
			}
		} else if tag.Wire == WireStartGroup {
			d.state = decWantStart
		} else {
			d.state = decWantVal
		}
		return f, nil
	}
}

// GetVal implements [Source].
func (d *Decoder) GetVal() (Value, error) {
	if d.err != nil {
		return Value{}, d.err
	}
	if d.state != decWantVal {
		panic("minipb: GetVal without a pending value")
	}

	wire := d.wire
	if wire == WireDelimited {
		// Packed element: decode per the field's natural wire type.
		wire = d.field.WireType()
	}

	var raw uint64
	var err error
	switch wire {
	case WireVarint:
		if d.packedEnd > 0 {
			raw, err = d.packedVarint()
		} else {
			raw, err = d.readVarint()
		}
	case Wire64Bit:
		raw, err = d.readFixed(8)
	case Wire32Bit:
		raw, err = d.readFixed(4)
	default:
		panic("minipb: GetVal on a non-numeric field")
	}
	if err != nil {
		return Value{}, d.fail(err)
	}
	if d.packedEnd > 0 && int64(d.pos) > d.packedEnd {
		return Value{}, d.fail(statusf(CodeSubmsgExceedsParent, int64(d.pos),
			"packed element extends past the field's length"))
	}
	d.state = decWantDef
	return valueOf(d.field.Type, raw), nil
}

// packedVarint decodes a varint clamped to the packed run, so an element
// that crosses the delimiter is caught rather than consumed from whatever
// follows.
func (d *Decoder) packedVarint() (uint64, error) {
	w := d.buf.Bytes()[d.pos:int(d.packedEnd)]
	v, n, err := getVarint(w, int64(d.pos))
	if err != nil {
		return 0, statusf(CodeSubmsgExceedsParent, int64(d.pos),
			"packed element extends past the field's length")
	}
	d.pos += n
	return v, nil
}

// GetStr implements [Source]. dst aliases the input window when the byte
// source handed out stable storage, and owns a copy otherwise.
func (d *Decoder) GetStr(dst *Bytes) error {
	if d.err != nil {
		return d.err
	}
	if d.state != decWantStr {
		panic("minipb: GetStr without a pending string")
	}
	if err := d.pull(d.delim); err != nil {
		return d.fail(statusf(CodePrematureEOF, int64(d.pos),
			"stream ended inside string field %s", d.field.Name))
	}
	w := d.buf.Bytes()[d.pos : d.pos+d.delim]
	if d.buf.Mode() != ModeOwned {
		dst.setAlias(w)
	} else {
		dst.Append(w)
	}
	d.pos += d.delim
	d.delim = 0
	d.state = decWantDef
	return nil
}

// SkipVal implements [Source].
func (d *Decoder) SkipVal() error {
	if d.err != nil {
		return d.err
	}
	var err error
	switch d.state {
	case decWantDef:
		panic("minipb: SkipVal without a pending value")
	case decWantVal:
		if d.packedEnd > 0 {
			// Skipping a packed field discards the rest of the run.
			err = d.skipN(int(d.packedEnd - int64(d.pos)))
			d.packedEnd = 0
		} else {
			err = d.skipWire(d.wire)
		}
	case decWantStr:
		err = d.skipN(d.delim)
		d.delim = 0
	case decWantStart:
		if d.wire == WireStartGroup {
			err = d.skipGroup(d.field.Number)
		} else {
			err = d.skipN(d.delim)
			d.delim = 0
		}
	}
	if err != nil {
		return d.fail(err)
	}
	d.state = decWantDef
	return nil
}

func (d *Decoder) skipN(n int) error {
	if err := d.pull(n); err != nil {
		return statusf(CodePrematureEOF, int64(d.pos), "stream ended inside a skipped value")
	}
	d.pos += n
	return nil
}

func (d *Decoder) skipWire(wt WireType) error {
	switch wt {
	case WireVarint:
		_, err := d.readVarint()
		return err
	case Wire64Bit:
		return d.skipN(8)
	case Wire32Bit:
		return d.skipN(4)
	case WireDelimited:
		length, err := d.readVarint()
		if err != nil {
			return err
		}
		return d.skipN(int(length))
	}
	return statusf(CodeBadWireType, int64(d.pos), "cannot skip wire type %v", wt)
}

// skipUnknown discards the value for a field number the current message
// does not declare.
func (d *Decoder) skipUnknown(tag Tag) error {
	if tag.Wire == WireStartGroup {
		return d.skipGroup(tag.Number)
	}
	return d.skipWire(tag.Wire)
}

// skipGroup consumes a balanced group body, including the END_GROUP tag
// matching num. Nested groups must match their own numbers.
func (d *Decoder) skipGroup(num int32) error {
	open := make([]int32, 1, 8)
	open[0] = num
	for len(open) > 0 {
		if len(open) > d.maxDepth {
			return statusf(CodeNestingOverflow, int64(d.pos),
				"groups nested deeper than %d", d.maxDepth)
		}
		tag, err := d.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return statusf(CodePrematureEOF, int64(d.pos), "stream ended inside group %d", num)
			}
			return err
		}
		switch tag.Wire {
		case WireStartGroup:
			open = append(open, tag.Number)
		case WireEndGroup:
			if open[len(open)-1] != tag.Number {
				return statusf(CodeGroupMismatch, int64(d.pos),
					"end group %d closing group %d", tag.Number, open[len(open)-1])
			}
			open = open[:len(open)-1]
		default:
			if err := d.skipWire(tag.Wire); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartMsg implements [Source].
func (d *Decoder) StartMsg() error {
	if d.err != nil {
		return d.err
	}
	if d.state != decWantStart {
		panic("minipb: StartMsg without a pending submessage")
	}
	debug.Assert(d.field.Message != nil, "unsealed field %q", d.field.Name)
	if d.depth+1 > d.maxDepth {
		return d.fail(statusf(CodeNestingOverflow, int64(d.pos),
			"submessages nested deeper than %d", d.maxDepth))
	}
	d.depth++
	if d.wire == WireStartGroup {
		d.frames[d.depth] = decoderFrame{end: 0, group: d.field.Number, msg: d.field.Message}
	} else {
		d.frames[d.depth] = decoderFrame{end: int64(d.pos) + int64(d.delim), msg: d.field.Message}
		d.delim = 0
	}
	d.state = decWantDef
	return nil
}

// EndMsg implements [Source]. Called before the submessage is exhausted, it
// skips the remainder. It clears a submessage-scope EOF.
func (d *Decoder) EndMsg() error {
	if d.err != nil {
		return d.err
	}
	if d.depth == 0 {
		panic("minipb: EndMsg without an open submessage")
	}
	// Consume whatever value was left pending inside the submessage, so the
	// scan below starts on a tag boundary.
	if d.state != decWantDef {
		if err := d.SkipVal(); err != nil {
			return err
		}
	}

	top := &d.frames[d.depth]
	if top.end == 0 {
		if !d.groupEnd {
			if err := d.skipGroup(top.group); err != nil {
				return d.fail(err)
			}
		}
		d.groupEnd = false
	} else if int64(d.pos) < top.end {
		if err := d.skipN(int(top.end - int64(d.pos))); err != nil {
			return d.fail(err)
		}
	}
	d.depth--
	d.eof = false
	return nil
}
