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

// Note! The EOF flags work like feof() in C; they cannot report end-of-file
// until a read has failed due to eof. They cannot preemptively tell you that
// the next call will fail due to eof. Since these are the semantics that C
// and UNIX provide, we're stuck with them if we want to support plain
// io.Reader byte sources.

// Source is a pull parser for protobuf values.
//
// The calling discipline: [Source.GetDef] must be called before each value.
// It returns (nil, nil) at the end of the stream, or at the end of the
// current submessage; which of the two is told apart by nesting depth.
// After a def for a submessage or group field, the caller either descends
// with [Source.StartMsg] or discards with [Source.SkipVal]; for any other
// field it calls [Source.GetVal], [Source.GetStr], or [Source.SkipVal].
type Source interface {
	// GetDef retrieves the def for the next field in the stream. Returns
	// (nil, nil) on end of stream, which may simply mean the end of the
	// current submessage.
	GetDef() (*FieldDef, error)

	// GetVal retrieves the numeric value following the most recent GetDef.
	GetVal() (Value, error)

	// GetStr retrieves the string value following the most recent GetDef.
	// dst must be a newly-recycled string; it aliases the input window when
	// the underlying byte source permits, and owns a copy otherwise.
	GetStr(dst *Bytes) error

	// SkipVal consumes and discards the value following the most recent
	// GetDef, descending into unknown submessages to find their end.
	SkipVal() error

	// StartMsg descends into a submessage. It may only be called when
	// [FieldDef.IsSubmessage] is true for a def that was just pulled.
	StartMsg() error

	// EndMsg stops reading a submessage. It may be called before the
	// submessage is exhausted, in which case the remainder is skipped.
	// EndMsg clears an EOF raised by the submessage's end.
	EndMsg() error

	// EOF reports whether a previous read failed for end-of-stream (or
	// end-of-submessage) rather than error.
	EOF() bool
}

// Sink is a push interface for protobuf values, the mirror of [Source].
//
// Submessage framing is explicit — [Sink.StartMsg] may seem redundant, but
// a caller could have a submessage already serialized, and therefore put it
// as a string instead of its individual elements.
type Sink interface {
	// PutDef announces the field the next value belongs to.
	PutDef(*FieldDef) error

	// PutVal puts a numeric value for the announced field.
	PutVal(Value) error

	// PutStr puts a string value for the announced field.
	PutStr(*Bytes) error

	// StartMsg opens a submessage for the announced field.
	StartMsg() error

	// EndMsg closes the innermost open submessage.
	EndMsg() error
}

// ByteSource is a pull interface for bytes.
//
// End-of-stream surfaces as [io.EOF] from Get and Append, after which
// [ByteSource.EOF] reports true. A short read that still delivers bytes is
// not an error.
type ByteSource interface {
	// Get fills dst, which must be newly recycled, with the next bytes of
	// the stream: at least min of them, unless the stream ends first, in
	// which case whatever remains is delivered. Get returns io.EOF only
	// when not a single byte is left. The implementation may alias its own
	// storage into dst rather than copy.
	Get(dst *Bytes, min int) error

	// Append appends the next n bytes of the stream in place to dst. If
	// fewer than n remain, the remainder is appended and Append returns
	// io.EOF. This is used when the caller needs one contiguous string of
	// the existing data in dst plus more data.
	Append(dst *Bytes, n int) error

	// EOF reports whether a previous read failed for end-of-stream.
	EOF() bool
}

// ByteSink is a push interface for bytes.
type ByteSink interface {
	// Put writes the string. Returns the number of bytes actually consumed,
	// which may be fewer than the string holds; the caller retries with the
	// remainder.
	Put(*Bytes) (int, error)
}

// StreamData pumps src into sink until EOF or error, propagating
// submessage nesting.
func StreamData(src Source, sink Sink) error {
	depth := 0
	str := NewOwned(0)
	defer str.Unref()
	for {
		f, err := src.GetDef()
		if err != nil {
			return err
		}
		if f == nil {
			if depth == 0 {
				return nil
			}
			if err := src.EndMsg(); err != nil {
				return err
			}
			if err := sink.EndMsg(); err != nil {
				return err
			}
			depth--
			continue
		}
		if err := sink.PutDef(f); err != nil {
			return err
		}
		switch {
		case f.IsSubmessage():
			if err := src.StartMsg(); err != nil {
				return err
			}
			if err := sink.StartMsg(); err != nil {
				return err
			}
			depth++
		case f.IsString():
			str.Recycle()
			if err := src.GetStr(str); err != nil {
				return err
			}
			if err := sink.PutStr(str); err != nil {
				return err
			}
		default:
			v, err := src.GetVal()
			if err != nil {
				return err
			}
			if err := sink.PutVal(v); err != nil {
				return err
			}
		}
	}
}
