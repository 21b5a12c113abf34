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
)

// Callbacks are the client half of a [Parser]. Exactly one of Value, Str,
// or a SubmsgStart/SubmsgEnd pair fires per wire element the client opted
// to parse.
type Callbacks struct {
	// Tag is called immediately after each tag. The client decides whether
	// it wants the corresponding value: it returns the field's declared
	// type (the tag only carries the wire type) plus an opaque per-field
	// cookie handed back in the following callback, or [TypeNone] to skip
	// the value, submessages and all. The client is responsible for
	// checking that the wire type is appropriate for the declared type; see
	// [CheckType].
	Tag func(p *Parser, tag Tag) (FieldType, any)

	// Value is called once per numeric value — several times in a row for a
	// single tag in the case of packed arrays.
	Value func(p *Parser, v Value, fd any) error

	// Str is called once per length-delimited string. The string aliases
	// the buffer passed to [Parser.Parse] and must not be retained past the
	// callback without copying.
	Str func(p *Parser, s *Bytes, fd any) error

	// SubmsgStart and SubmsgEnd bracket every submessage and group. Both
	// are called with the submessage's frame on top of the stack.
	SubmsgStart func(p *Parser, fd any)
	SubmsgEnd   func(p *Parser)
}

// parseFrame is one level of the parse stack. End is the absolute stream
// offset at which the frame's submessage terminates; 0 marks an unbounded
// group frame. A frame pushed for a field the client skipped suppresses all
// callbacks until it pops.
type parseFrame struct {
	End   int64
	group int32
	skip  bool
}

// Parser is a streaming, callback-based wire-format parser.
//
// The client registers [Callbacks] and feeds bytes with [Parser.Parse] as
// they become available; the data need not all be available at once. A
// Parser is exclusively owned by its caller for the duration of a Parse
// call.
type Parser struct {
	cbs Callbacks

	offset int64
	frames []parseFrame
	depth  int

	udata     []byte
	udataSize int

	maxDepth int
	suspend  Code // What Finish reports if the stream ends here.
	err      error
}

// NewParser returns a parser delivering events to cbs. udataSize is how
// many bytes of scratch each stack frame carries for the client; the slab
// backing all frames is allocated once, here, and reused across submessage
// enter and leave.
func NewParser(udataSize int, cbs Callbacks, opts ...Option) *Parser {
	l := applyOptions(opts)
	p := &Parser{
		cbs:       cbs,
		maxDepth:  l.maxDepth,
		udataSize: udataSize,
		frames:    make([]parseFrame, l.maxDepth+1),
		udata:     make([]byte, (l.maxDepth+1)*udataSize),
	}
	p.Reset()
	return p
}

// Reset returns the parser to its initial state so an unrelated message can
// be parsed. Callbacks and limits are retained.
func (p *Parser) Reset() {
	p.offset = 0
	p.depth = 0
	// The top-level message is not delimited; we can keep receiving data
	// for it indefinitely.
	p.frames[0] = parseFrame{End: -1}
	p.suspend = 0
	p.err = nil
}

// Offset returns the number of bytes of the stream consumed so far.
func (p *Parser) Offset() int64 { return p.offset }

// Depth returns the current submessage nesting depth.
func (p *Parser) Depth() int { return p.depth }

// FrameData returns the current frame's user-data scratch region, of the
// size given to [NewParser]. The region is not cleared between uses.
func (p *Parser) FrameData() []byte {
	return p.udata[p.depth*p.udataSize : (p.depth+1)*p.udataSize]
}

// Parse consumes protobuf data from buf, invoking callbacks as it goes, and
// returns the number of bytes consumed. A partial element at the end of buf
// — half a varint, a string whose payload has not all arrived — is not
// consumed: the caller re-invokes Parse with the unconsumed tail plus more
// data, and the element's Tag callback fires again on the retry. If the
// stream is truly over instead, the caller invokes [Parser.Finish].
func (p *Parser) Parse(buf []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.suspend = 0
	pos := 0
	for pos < len(buf) {
		n, err := p.parseOne(buf, pos)
		if errors.Is(err, errNeedMore) {
			return pos, nil
		}
		if err != nil {
			p.err = err
			return pos, err
		}
		p.offset += int64(n - pos)
		pos = n

		// Pop every delimited frame the cursor has reached the end of.
		// Group frames pop only at their END_GROUP tag.
		for {
			top := &p.frames[p.depth]
			if top.End <= 0 || p.offset < top.End {
				break
			}
			if p.offset > top.End {
				p.err = statusf(CodeSubmsgExceedsParent, p.offset,
					"field overruns end of submessage")
				return pos, p.err
			}
			p.pop()
		}
	}
	return pos, nil
}

// Finish tells the parser the stream is over. It fails if the stream ended
// inside an element or inside a group.
func (p *Parser) Finish() error {
	if p.err != nil {
		return p.err
	}
	if p.suspend != CodeOK {
		p.err = statusf(p.suspend, p.offset, "stream ended inside an element")
		return p.err
	}
	if p.depth > 0 {
		p.err = statusf(CodePrematureEOF, p.offset, "stream ended with %d open submessages", p.depth)
		return p.err
	}
	return nil
}

func (p *Parser) push(f parseFrame) error {
	if p.depth+1 > p.maxDepth {
		return statusf(CodeNestingOverflow, p.offset,
			"submessages nested deeper than %d", p.maxDepth)
	}
	p.depth++
	p.frames[p.depth] = f
	return nil
}

func (p *Parser) pop() {
	if !p.frames[p.depth].skip && p.cbs.SubmsgEnd != nil {
		p.cbs.SubmsgEnd(p)
	}
	p.depth--
}

// need records what a truncated stream at this point amounts to, then
// signals suspension.
func (p *Parser) need(code Code) error {
	if p.suspend == CodeOK {
		p.suspend = code
	}
	return errNeedMore
}

// parseOne parses a single wire element — one tag plus its value, or a
// group boundary — starting at pos, and returns the position after it.
func (p *Parser) parseOne(buf []byte, pos int) (int, error) {
	start := pos
	tag, n, err := getTag(buf[pos:], p.offset)
	if errors.Is(err, errNeedMore) {
		return 0, p.need(CodeUnterminatedVarint)
	}
	if err != nil {
		return 0, err
	}
	pos += n

	top := &p.frames[p.depth]
	if top.skip {
		return p.parseSkipped(buf, pos, tag)
	}

	switch tag.Wire {
	case WireEndGroup:
		if top.End != 0 || top.group != tag.Number {
			return 0, statusf(CodeGroupMismatch, p.offset,
				"end group %d does not close the current frame", tag.Number)
		}
		p.pop()
		return pos, nil

	case WireStartGroup:
		ft, fd := p.tagCB(tag)
		if err := p.push(parseFrame{End: 0, group: tag.Number, skip: ft == TypeNone}); err != nil {
			return 0, err
		}
		if ft != TypeNone && p.cbs.SubmsgStart != nil {
			p.cbs.SubmsgStart(p, fd)
		}
		return pos, nil

	case WireDelimited:
		return p.parseDelimited(buf, start, pos, tag)

	default:
		ft, fd := p.tagCB(tag)
		if ft == TypeNone {
			return p.skipWireValue(buf, pos, tag.Wire)
		}
		raw, n, err := p.wireValue(buf, pos, tag.Wire)
		if err != nil {
			return 0, err
		}
		if p.cbs.Value != nil {
			if err := p.cbs.Value(p, valueOf(ft, raw), fd); err != nil {
				return 0, err
			}
		}
		return n, nil
	}
}

// parseDelimited handles a DELIMITED element: a string, a submessage, or a
// packed array, per the declared type the tag callback returns. start is
// where the element's tag began, which anchors buffer positions to stream
// offsets: the stream offset of buf[i] is p.offset + (i - start).
func (p *Parser) parseDelimited(buf []byte, start, pos int, tag Tag) (int, error) {
	// Whether we are parsing or skipping the field, we always need the
	// length.
	length64, n, err := getVarint(buf[pos:], p.offset)
	if errors.Is(err, errNeedMore) {
		return 0, p.need(CodeUnterminatedVarint)
	}
	if err != nil {
		return 0, err
	}
	pos += n
	length := int(length64)

	ft, fd := p.tagCB(tag)

	if ft == TypeMessage || ft == TypeGroup {
		// Submessages stream: the payload need not be buffered yet.
		end := p.offset + int64(pos-start) + int64(length)
		parent := p.frames[p.depth]
		if parent.End > 0 && end > parent.End {
			return 0, statusf(CodeSubmsgExceedsParent, p.offset,
				"submessage of length %d exceeds end of parent", length)
		}
		if err := p.push(parseFrame{End: end}); err != nil {
			return 0, err
		}
		if p.cbs.SubmsgStart != nil {
			p.cbs.SubmsgStart(p, fd)
		}
		return pos, nil
	}

	// Strings and packed arrays require all the delimited data to be
	// available. This could be relaxed if desired.
	if pos+length > len(buf) {
		return 0, p.need(CodePrematureEOF)
	}

	if ft == TypeNone {
		return pos + length, nil
	}

	if ft == TypeString || ft == TypeBytes {
		if p.cbs.Str != nil {
			s := NewAlias(buf[pos : pos+length])
			if err := p.cbs.Str(p, s, fd); err != nil {
				return 0, err
			}
		}
		return pos + length, nil
	}

	// Packed array: one value callback per element, and the elements must
	// add up to exactly the declared length.
	elemEnd := pos + length
	for pos < elemEnd {
		raw, n, err := p.wireValue(buf[:elemEnd], pos, ExpectedWireType(ft))
		if err != nil {
			if errors.Is(err, errNeedMore) {
				p.suspend = 0
				return 0, statusf(CodeSubmsgExceedsParent, p.offset,
					"packed element extends past the field's length")
			}
			return 0, err
		}
		pos = n
		if p.cbs.Value != nil {
			if err := p.cbs.Value(p, valueOf(ft, raw), fd); err != nil {
				return 0, err
			}
		}
	}
	return pos, nil
}

// parseSkipped consumes one element inside a skipped group without firing
// callbacks.
func (p *Parser) parseSkipped(buf []byte, pos int, tag Tag) (int, error) {
	switch tag.Wire {
	case WireEndGroup:
		top := p.frames[p.depth]
		if top.End != 0 || top.group != tag.Number {
			return 0, statusf(CodeGroupMismatch, p.offset,
				"end group %d does not close the current frame", tag.Number)
		}
		p.pop()
		return pos, nil
	case WireStartGroup:
		if err := p.push(parseFrame{End: 0, group: tag.Number, skip: true}); err != nil {
			return 0, err
		}
		return pos, nil
	default:
		return p.skipWireValue(buf, pos, tag.Wire)
	}
}

// skipWireValue consumes a value per its wire type without decoding it.
func (p *Parser) skipWireValue(buf []byte, pos int, wt WireType) (int, error) {
	switch wt {
	case WireVarint:
		n, err := skipVarint(buf[pos:], p.offset)
		if errors.Is(err, errNeedMore) {
			return 0, p.need(CodeUnterminatedVarint)
		}
		if err != nil {
			return 0, err
		}
		return pos + n, nil
	case Wire64Bit:
		if pos+8 > len(buf) {
			return 0, p.need(CodePrematureEOF)
		}
		return pos + 8, nil
	case Wire32Bit:
		if pos+4 > len(buf) {
			return 0, p.need(CodePrematureEOF)
		}
		return pos + 4, nil
	case WireDelimited:
		length, n, err := getVarint(buf[pos:], p.offset)
		if errors.Is(err, errNeedMore) {
			return 0, p.need(CodeUnterminatedVarint)
		}
		if err != nil {
			return 0, err
		}
		pos += n
		if pos+int(length) > len(buf) {
			return 0, p.need(CodePrematureEOF)
		}
		return pos + int(length), nil
	}
	return 0, statusf(CodeBadWireType, p.offset, "cannot skip wire type %v", wt)
}

// wireValue reads one raw wire integer of the given wire type.
func (p *Parser) wireValue(buf []byte, pos int, wt WireType) (uint64, int, error) {
	switch wt {
	case WireVarint:
		v, n, err := getVarint(buf[pos:], p.offset)
		if errors.Is(err, errNeedMore) {
			return 0, 0, p.need(CodeUnterminatedVarint)
		}
		if err != nil {
			return 0, 0, err
		}
		return v, pos + n, nil
	case Wire64Bit:
		if pos+8 > len(buf) {
			return 0, 0, p.need(CodePrematureEOF)
		}
		v, _, _ := getFixed64(buf[pos:])
		return v, pos + 8, nil
	case Wire32Bit:
		if pos+4 > len(buf) {
			return 0, 0, p.need(CodePrematureEOF)
		}
		v, _, _ := getFixed32(buf[pos:])
		return uint64(v), pos + 4, nil
	}
	return 0, 0, statusf(CodeBadWireType, p.offset, "wire type %v has no value", wt)
}

func (p *Parser) tagCB(tag Tag) (FieldType, any) {
	if p.cbs.Tag == nil {
		return TypeNone, nil
	}
	return p.cbs.Tag(p, tag)
}
