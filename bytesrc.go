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
	"io"
)

// BytesSource is a [ByteSource] over an in-memory buffer. Reads alias the
// buffer, so strings produced by a decoder on top of a BytesSource are
// zero-copy and remain valid as long as the buffer does.
type BytesSource struct {
	buf []byte
	pos int
	eof bool
}

// NewBytesSource returns a ByteSource reading from buf.
func NewBytesSource(buf []byte) *BytesSource {
	return &BytesSource{buf: buf}
}

// Get implements [ByteSource]. The entire remaining buffer is delivered as
// an alias, regardless of min.
func (s *BytesSource) Get(dst *Bytes, min int) error {
	if s.pos >= len(s.buf) {
		s.eof = true
		return io.EOF
	}
	dst.setAlias(s.buf[s.pos:])
	s.pos = len(s.buf)
	return nil
}

// Append implements [ByteSource]. The first Get already delivered the whole
// buffer, so any append means the caller wants bytes that do not exist.
func (s *BytesSource) Append(dst *Bytes, n int) error {
	s.eof = true
	return io.EOF
}

// EOF implements [ByteSource].
func (s *BytesSource) EOF() bool { return s.eof }

// ReaderSource is a [ByteSource] over an [io.Reader]. Reads copy into the
// destination string, which therefore ends up owned, not aliasing.
type ReaderSource struct {
	r   io.Reader
	eof bool
	tmp []byte
}

// NewReaderSource returns a ByteSource reading from r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r, tmp: make([]byte, 4096)}
}

func (s *ReaderSource) read(dst *Bytes, n int) (int, error) {
	total := 0
	for total < n {
		chunk := s.tmp
		if want := n - total; want < len(chunk) {
			chunk = chunk[:want]
		}
		got, err := s.r.Read(chunk)
		dst.Append(chunk[:got])
		total += got
		if err == io.EOF {
			s.eof = total == 0
			if total == 0 {
				return 0, io.EOF
			}
			return total, io.EOF
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Get implements [ByteSource].
func (s *ReaderSource) Get(dst *Bytes, min int) error {
	n, err := s.read(dst, min)
	if err == io.EOF && n > 0 {
		return nil // Short read; the next call fails.
	}
	return err
}

// Append implements [ByteSource].
func (s *ReaderSource) Append(dst *Bytes, n int) error {
	_, err := s.read(dst, n)
	if err == io.EOF {
		// Appending less than asked is a failed read, even if some bytes
		// arrived.
		s.eof = true
	}
	return err
}

// EOF implements [ByteSource].
func (s *ReaderSource) EOF() bool { return s.eof }

// BufferSink is a [ByteSink] that accumulates everything in memory.
type BufferSink struct {
	buf []byte
}

// NewBufferSink returns an empty in-memory sink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// Put implements [ByteSink].
func (s *BufferSink) Put(b *Bytes) (int, error) {
	s.buf = append(s.buf, b.Bytes()...)
	return b.Len(), nil
}

// Bytes returns everything written so far.
func (s *BufferSink) Bytes() []byte { return s.buf }

// Reset discards everything written so far.
func (s *BufferSink) Reset() { s.buf = s.buf[:0] }

// FixedSink is a [ByteSink] with a fixed capacity. A write past the end
// consumes what fits; once full, further writes fail with
// [CodeOutOfMemory].
type FixedSink struct {
	buf []byte
}

// NewFixedSink returns a sink that accepts at most capacity bytes.
func NewFixedSink(capacity int) *FixedSink {
	return &FixedSink{buf: make([]byte, 0, capacity)}
}

// Put implements [ByteSink].
func (s *FixedSink) Put(b *Bytes) (int, error) {
	room := cap(s.buf) - len(s.buf)
	if room == 0 {
		return 0, statusf(CodeOutOfMemory, -1, "fixed sink full (%d bytes)", cap(s.buf))
	}
	n := min(room, b.Len())
	s.buf = append(s.buf, b.Bytes()[:n]...)
	return n, nil
}

// Bytes returns everything written so far.
func (s *FixedSink) Bytes() []byte { return s.buf }

// WriterSink is a [ByteSink] over an [io.Writer].
type WriterSink struct {
	w io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Put implements [ByteSink].
func (s *WriterSink) Put(b *Bytes) (int, error) {
	return s.w.Write(b.Bytes())
}
