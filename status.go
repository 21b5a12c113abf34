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
	"fmt"
)

// Code classifies the failure recorded in a [Status].
type Code int

const (
	CodeOK Code = iota
	CodeOutOfMemory
	CodeUnterminatedVarint
	CodeBadWireType
	CodeNestingOverflow
	CodeSubmsgExceedsParent
	CodeGroupMismatch
	CodePrematureEOF
	CodeBadRef
	CodeDuplicateSymbol
	CodeMalformedDescriptor
)

// Sentinels for each code, so that callers can match a Status with
// [errors.Is] without caring about the offset or message.
var (
	ErrOutOfMemory         = errors.New("out of memory")
	ErrUnterminatedVarint  = errors.New("unterminated varint")
	ErrBadWireType         = errors.New("wire type does not match declared type")
	ErrNestingOverflow     = errors.New("submessage nesting too deep")
	ErrSubmsgExceedsParent = errors.New("submessage extends past end of parent")
	ErrGroupMismatch       = errors.New("mismatching end group marker")
	ErrPrematureEOF        = errors.New("stream ended inside a value")
	ErrBadRef              = errors.New("reference to unknown type")
	ErrDuplicateSymbol     = errors.New("duplicate symbol")
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// errNeedMore is an internal suspension signal: the current element does
	// not fit in the buffered bytes. It never escapes to callers; the decoder
	// refills and retries, and the parser rewinds to the element start.
	errNeedMore = errors.New("need more data")
)

var sentinels = [...]error{
	CodeOK:                  nil,
	CodeOutOfMemory:         ErrOutOfMemory,
	CodeUnterminatedVarint:  ErrUnterminatedVarint,
	CodeBadWireType:         ErrBadWireType,
	CodeNestingOverflow:     ErrNestingOverflow,
	CodeSubmsgExceedsParent: ErrSubmsgExceedsParent,
	CodeGroupMismatch:       ErrGroupMismatch,
	CodePrematureEOF:        ErrPrematureEOF,
	CodeBadRef:              ErrBadRef,
	CodeDuplicateSymbol:     ErrDuplicateSymbol,
	CodeMalformedDescriptor: ErrMalformedDescriptor,
}

// Status is the error type produced by every fallible operation in this
// package. It carries a [Code], a human-readable message, and, for stream
// errors, the byte offset at which the failure was detected.
type Status struct {
	code   Code
	msg    string
	offset int64
}

func statusf(code Code, offset int64, format string, args ...any) *Status {
	return &Status{code: code, msg: fmt.Sprintf(format, args...), offset: offset}
}

// Code returns the status code.
func (s *Status) Code() Code { return s.code }

// Offset returns the stream offset at which the error occurred, or -1 if the
// error is not associated with a stream position.
func (s *Status) Offset() int64 { return s.offset }

// Unwrap implements error unwrapping viz [errors.Unwrap].
func (s *Status) Unwrap() error {
	if int(s.code) < len(sentinels) {
		return sentinels[s.code]
	}
	return nil
}

// Error implements [error].
func (s *Status) Error() string {
	if s.offset >= 0 {
		return fmt.Sprintf("minipb: %s at offset %d/%#x", s.msg, s.offset, s.offset)
	}
	return "minipb: " + s.msg
}

// CodeOf extracts the [Code] from an error produced by this package.
// Returns [CodeOK] for nil and -1 for errors from elsewhere.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.code
	}
	return -1
}
