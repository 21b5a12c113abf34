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

// Package textfmt pretty-prints a protobuf value stream.
//
// The printer is a [minipb.Sink], so it can sit at the end of any stream:
// behind a decoder via [minipb.StreamData], behind an in-memory message, or
// behind hand-fed values.
package textfmt

import (
	"fmt"
	"io"
	"strings"

	"buf.build/go/minipb"
)

// Printer is a [minipb.Sink] that writes one "name: value" line per field,
// bracing and indenting submessages.
type Printer struct {
	w      io.Writer
	indent int
	field  *minipb.FieldDef
	err    error
}

var _ minipb.Sink = (*Printer)(nil)

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes everything in src to w through a new [Printer]. It is
// shorthand for [minipb.StreamData].
func Print(w io.Writer, src minipb.Source) error {
	return minipb.StreamData(src, NewPrinter(w))
}

func (p *Printer) printf(format string, args ...any) error {
	if p.err != nil {
		return p.err
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
	return p.err
}

func (p *Printer) prefix() string {
	return strings.Repeat("  ", p.indent)
}

// PutDef implements [minipb.Sink].
func (p *Printer) PutDef(f *minipb.FieldDef) error {
	p.field = f
	return p.err
}

// PutVal implements [minipb.Sink]. Enum values print symbolically when the
// field's enum knows their name.
func (p *Printer) PutVal(v minipb.Value) error {
	if v.Type() == minipb.TypeEnum && p.field.Enum != nil {
		if name := p.field.Enum.NameByValue(v.Enum()); name != "" {
			return p.printf("%s%s: %s\n", p.prefix(), p.field.Name, name)
		}
	}
	return p.printf("%s%s: %v\n", p.prefix(), p.field.Name, v)
}

// PutStr implements [minipb.Sink].
func (p *Printer) PutStr(s *minipb.Bytes) error {
	return p.printf("%s%s: %q\n", p.prefix(), p.field.Name, s.Bytes())
}

// StartMsg implements [minipb.Sink].
func (p *Printer) StartMsg() error {
	if err := p.printf("%s%s {\n", p.prefix(), p.field.Name); err != nil {
		return err
	}
	p.indent++
	return nil
}

// EndMsg implements [minipb.Sink].
func (p *Printer) EndMsg() error {
	if p.indent == 0 {
		panic("textfmt: EndMsg without an open submessage")
	}
	p.indent--
	return p.printf("%s}\n", p.prefix())
}
