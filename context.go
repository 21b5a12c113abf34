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
	"sort"
	"strconv"
	"strings"
)

// Context owns the descriptors loaded from one or more descriptor sets and
// resolves fully-qualified dotted names to them.
//
// A Context is mutable while descriptor sets are being added and read-only
// afterwards; a sealed Context may be shared across goroutines. Loading is
// transactional: a failed [Context.AddDescriptorSet] leaves the Context
// unchanged.
type Context struct {
	messages map[string]*MessageDef
	enums    map[string]*EnumDef
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{
		messages: map[string]*MessageDef{},
		enums:    map[string]*EnumDef{},
	}
}

// Message returns the message descriptor with the given fully-qualified
// name, or nil.
func (c *Context) Message(name string) *MessageDef { return c.messages[name] }

// Enum returns the enum descriptor with the given fully-qualified name, or
// nil.
func (c *Context) Enum(name string) *EnumDef { return c.enums[name] }

// Lookup returns the descriptor with the given fully-qualified name: a
// [*MessageDef], a [*EnumDef], or nil.
func (c *Context) Lookup(name string) any {
	if m := c.messages[name]; m != nil {
		return m
	}
	if e := c.enums[name]; e != nil {
		return e
	}
	return nil
}

// AddDescriptorSet loads a serialized google.protobuf.FileDescriptorSet.
//
// Loading is a two-pass protocol. The parse pass decodes the set with this
// engine's own decoder, driven by the bootstrap schema compiled into the
// binary, and allocates descriptors with their type references still
// symbolic. The seal pass resolves every reference to a direct one, checks
// for dangling names, and computes each message's in-memory layout. Either
// pass failing leaves the Context untouched.
func (c *Context) AddDescriptorSet(b []byte) error {
	dec := NewDecoder(NewBytesSource(b), bootstrapFileDescriptorSet)
	var files []*rawFile
	for {
		f, err := dec.GetDef()
		if err != nil {
			return malformed(err)
		}
		if f == nil {
			break
		}
		if f.Name != "file" {
			if err := dec.SkipVal(); err != nil {
				return malformed(err)
			}
			continue
		}
		if err := dec.StartMsg(); err != nil {
			return malformed(err)
		}
		file, err := parseFile(dec)
		if err != nil {
			return malformed(err)
		}
		if err := dec.EndMsg(); err != nil {
			return malformed(err)
		}
		files = append(files, file)
	}

	st := &stage{ctx: c}
	for _, file := range files {
		if err := st.register(file); err != nil {
			return err
		}
	}
	if err := st.seal(); err != nil {
		return err
	}

	for name, m := range st.messages {
		c.messages[name] = m
	}
	for name, e := range st.enums {
		c.enums[name] = e
	}
	return nil
}

// malformed wraps wire-level and structural errors from the parse pass;
// errors that already carry a schema-specific code pass through.
func malformed(err error) error {
	var s *Status
	if errors.As(err, &s) {
		switch s.code {
		case CodeDuplicateSymbol, CodeBadRef, CodeMalformedDescriptor:
			return err
		}
	}
	return statusf(CodeMalformedDescriptor, -1, "malformed descriptor set: %v", err)
}

/* Parse pass. ***************************************************************/

// The raw* types hold a descriptor set exactly as parsed, before names are
// qualified and references resolved. FileDescriptorProto imposes no order
// on its fields, so nothing here may depend on, say, the package arriving
// before the message types.

type rawFile struct {
	pkg    string
	syntax string
	msgs   []*rawMsg
	enums  []*rawEnum
}

type rawMsg struct {
	name   string
	fields []*rawField
	nested []*rawMsg
	enums  []*rawEnum
}

type rawField struct {
	name        string
	number      int32
	label       Label
	typ         FieldType
	typeName    string
	packed      bool
	packedSet   bool
	defaultText string
	defaultSet  bool
}

type rawEnum struct {
	name   string
	values []rawEnumValue
}

type rawEnumValue struct {
	name   string
	number int32
}

func getString(dec *Decoder) (string, error) {
	s := NewOwned(0)
	defer s.Unref()
	if err := dec.GetStr(s); err != nil {
		return "", err
	}
	return s.String(), nil
}

func parseFile(dec *Decoder) (*rawFile, error) {
	file := &rawFile{}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return nil, err
		}
		if f == nil {
			return file, nil
		}
		switch f.Name {
		case "package":
			if file.pkg, err = getString(dec); err != nil {
				return nil, err
			}
		case "syntax":
			if file.syntax, err = getString(dec); err != nil {
				return nil, err
			}
		case "message_type":
			m, err := parseMessageProto(dec)
			if err != nil {
				return nil, err
			}
			file.msgs = append(file.msgs, m)
		case "enum_type":
			e, err := parseEnumProto(dec)
			if err != nil {
				return nil, err
			}
			file.enums = append(file.enums, e)
		default:
			if err := dec.SkipVal(); err != nil {
				return nil, err
			}
		}
	}
}

func parseMessageProto(dec *Decoder) (*rawMsg, error) {
	if err := dec.StartMsg(); err != nil {
		return nil, err
	}
	m := &rawMsg{}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return nil, err
		}
		if f == nil {
			return m, dec.EndMsg()
		}
		switch f.Name {
		case "name":
			if m.name, err = getString(dec); err != nil {
				return nil, err
			}
		case "field":
			fd, err := parseFieldProto(dec)
			if err != nil {
				return nil, err
			}
			m.fields = append(m.fields, fd)
		case "nested_type":
			nested, err := parseMessageProto(dec)
			if err != nil {
				return nil, err
			}
			m.nested = append(m.nested, nested)
		case "enum_type":
			e, err := parseEnumProto(dec)
			if err != nil {
				return nil, err
			}
			m.enums = append(m.enums, e)
		default:
			if err := dec.SkipVal(); err != nil {
				return nil, err
			}
		}
	}
}

func parseFieldProto(dec *Decoder) (*rawField, error) {
	if err := dec.StartMsg(); err != nil {
		return nil, err
	}
	fd := &rawField{}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return nil, err
		}
		if f == nil {
			return fd, dec.EndMsg()
		}
		switch f.Name {
		case "name":
			if fd.name, err = getString(dec); err != nil {
				return nil, err
			}
		case "number":
			v, err := dec.GetVal()
			if err != nil {
				return nil, err
			}
			fd.number = v.Int32()
		case "label":
			v, err := dec.GetVal()
			if err != nil {
				return nil, err
			}
			fd.label = Label(v.Enum())
		case "type":
			v, err := dec.GetVal()
			if err != nil {
				return nil, err
			}
			fd.typ = FieldType(v.Enum())
		case "type_name":
			if fd.typeName, err = getString(dec); err != nil {
				return nil, err
			}
		case "default_value":
			if fd.defaultText, err = getString(dec); err != nil {
				return nil, err
			}
			fd.defaultSet = true
		case "options":
			if err := parseFieldOptions(dec, fd); err != nil {
				return nil, err
			}
		default:
			if err := dec.SkipVal(); err != nil {
				return nil, err
			}
		}
	}
}

func parseFieldOptions(dec *Decoder, fd *rawField) error {
	if err := dec.StartMsg(); err != nil {
		return err
	}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return err
		}
		if f == nil {
			return dec.EndMsg()
		}
		if f.Name == "packed" {
			v, err := dec.GetVal()
			if err != nil {
				return err
			}
			fd.packed = v.Bool()
			fd.packedSet = true
			continue
		}
		if err := dec.SkipVal(); err != nil {
			return err
		}
	}
}

func parseEnumProto(dec *Decoder) (*rawEnum, error) {
	if err := dec.StartMsg(); err != nil {
		return nil, err
	}
	e := &rawEnum{}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return nil, err
		}
		if f == nil {
			return e, dec.EndMsg()
		}
		switch f.Name {
		case "name":
			if e.name, err = getString(dec); err != nil {
				return nil, err
			}
		case "value":
			v, err := parseEnumValueProto(dec)
			if err != nil {
				return nil, err
			}
			e.values = append(e.values, v)
		default:
			if err := dec.SkipVal(); err != nil {
				return nil, err
			}
		}
	}
}

func parseEnumValueProto(dec *Decoder) (rawEnumValue, error) {
	var v rawEnumValue
	if err := dec.StartMsg(); err != nil {
		return v, err
	}
	for {
		f, err := dec.GetDef()
		if err != nil {
			return v, err
		}
		if f == nil {
			return v, dec.EndMsg()
		}
		switch f.Name {
		case "name":
			if v.name, err = getString(dec); err != nil {
				return v, err
			}
		case "number":
			val, err := dec.GetVal()
			if err != nil {
				return v, err
			}
			v.number = val.Int32()
		default:
			if err := dec.SkipVal(); err != nil {
				return v, err
			}
		}
	}
}

/* Seal pass. ****************************************************************/

// stage accumulates one AddDescriptorSet call's descriptors so that a
// failure can throw all of them away without touching the Context.
type stage struct {
	ctx      *Context
	messages map[string]*MessageDef
	enums    map[string]*EnumDef
	order    []*MessageDef
	raw      map[*FieldDef]*rawField
}

func (st *stage) register(file *rawFile) error {
	if st.messages == nil {
		st.messages = map[string]*MessageDef{}
		st.enums = map[string]*EnumDef{}
		st.raw = map[*FieldDef]*rawField{}
	}
	for _, m := range file.msgs {
		if err := st.registerMessage(file, file.pkg, m); err != nil {
			return err
		}
	}
	for _, e := range file.enums {
		if err := st.registerEnum(file.pkg, e); err != nil {
			return err
		}
	}
	return nil
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func (st *stage) checkFresh(name string) error {
	if name == "" {
		return statusf(CodeMalformedDescriptor, -1, "descriptor with no name")
	}
	if st.messages[name] != nil || st.enums[name] != nil ||
		st.ctx.messages[name] != nil || st.ctx.enums[name] != nil {
		return statusf(CodeDuplicateSymbol, -1, "duplicate symbol %q", name)
	}
	return nil
}

func (st *stage) registerMessage(file *rawFile, scope string, raw *rawMsg) error {
	name := qualify(scope, raw.name)
	if err := st.checkFresh(name); err != nil {
		return err
	}
	m := &MessageDef{FullName: name}
	seen := map[int32]bool{}
	for _, rf := range raw.fields {
		if rf.number <= 0 {
			return statusf(CodeMalformedDescriptor, -1,
				"%s.%s: field number %d", name, rf.name, rf.number)
		}
		if seen[rf.number] {
			return statusf(CodeMalformedDescriptor, -1,
				"%s: duplicate field number %d", name, rf.number)
		}
		seen[rf.number] = true
		if rf.typ < minFieldType || rf.typ > maxFieldType {
			return statusf(CodeMalformedDescriptor, -1,
				"%s.%s: unknown declared type %d", name, rf.name, rf.typ)
		}
		if rf.label < LabelOptional || rf.label > LabelRepeated {
			return statusf(CodeMalformedDescriptor, -1,
				"%s.%s: unknown label %d", name, rf.name, rf.label)
		}
		f := &FieldDef{
			Number:   rf.number,
			Name:     rf.name,
			Label:    rf.label,
			Type:     rf.typ,
			typeName: rf.typeName,
			Packed:   rf.packed,
		}
		if !rf.packedSet && file.syntax == "proto3" &&
			rf.label == LabelRepeated && rf.typ.IsPrimitive() {
			f.Packed = true
		}
		m.Fields = append(m.Fields, f)
		st.raw[f] = rf
	}
	st.messages[name] = m
	st.order = append(st.order, m)

	for _, nested := range raw.nested {
		if err := st.registerMessage(file, name, nested); err != nil {
			return err
		}
	}
	for _, e := range raw.enums {
		if err := st.registerEnum(name, e); err != nil {
			return err
		}
	}
	return nil
}

func (st *stage) registerEnum(scope string, raw *rawEnum) error {
	name := qualify(scope, raw.name)
	if err := st.checkFresh(name); err != nil {
		return err
	}
	e := &EnumDef{
		FullName: name,
		byName:   map[string]int32{},
		byNumber: map[int32]string{},
	}
	for i, v := range raw.values {
		if i == 0 {
			e.Default = v.number
		}
		e.byName[v.name] = v.number
		if _, dup := e.byNumber[v.number]; !dup {
			e.byNumber[v.number] = v.name
		}
	}
	st.enums[name] = e
	return nil
}

// seal resolves every symbolic type reference to a direct one and computes
// each message's layout. Cycles in the descriptor graph are fine; names
// resolve through the symbol table, not through traversal.
func (st *stage) seal() error {
	for _, m := range st.order {
		for _, f := range m.Fields {
			if err := st.resolveField(m, f); err != nil {
				return err
			}
			if err := st.applyDefault(m, f); err != nil {
				return err
			}
		}
		finishMessage(m)
	}
	return nil
}

func (st *stage) resolveField(m *MessageDef, f *FieldDef) error {
	switch f.Type {
	case TypeMessage, TypeGroup:
		target := st.lookupMessage(m.FullName, f.typeName)
		if target == nil {
			return statusf(CodeBadRef, -1,
				"%s.%s: unknown message type %q", m.FullName, f.Name, f.typeName)
		}
		f.Message = target
	case TypeEnum:
		target := st.lookupEnum(m.FullName, f.typeName)
		if target == nil {
			return statusf(CodeBadRef, -1,
				"%s.%s: unknown enum type %q", m.FullName, f.Name, f.typeName)
		}
		f.Enum = target
	}
	f.typeName = ""
	return nil
}

// candidates yields the names a reference can mean, per protobuf scoping: a
// leading dot is absolute; otherwise the name resolves relative to the
// referencing scope, innermost outward.
func candidates(scope, name string, try func(string) bool) {
	if rest, ok := strings.CutPrefix(name, "."); ok {
		try(rest)
		return
	}
	for {
		if try(qualify(scope, name)) {
			return
		}
		dot := strings.LastIndexByte(scope, '.')
		if dot < 0 {
			if scope != "" {
				try(name)
			}
			return
		}
		scope = scope[:dot]
	}
}

func (st *stage) lookupMessage(scope, name string) *MessageDef {
	var found *MessageDef
	candidates(scope, name, func(fqn string) bool {
		if m := st.messages[fqn]; m != nil {
			found = m
			return true
		}
		if m := st.ctx.messages[fqn]; m != nil {
			found = m
			return true
		}
		return false
	})
	return found
}

func (st *stage) lookupEnum(scope, name string) *EnumDef {
	var found *EnumDef
	candidates(scope, name, func(fqn string) bool {
		if e := st.enums[fqn]; e != nil {
			found = e
			return true
		}
		if e := st.ctx.enums[fqn]; e != nil {
			found = e
			return true
		}
		return false
	})
	return found
}

// applyDefault fills f.Default from the declared default_value text, or the
// type's zero value.
func (st *stage) applyDefault(m *MessageDef, f *FieldDef) error {
	raw := st.raw[f]
	text := ""
	if raw != nil && raw.defaultSet {
		text = raw.defaultText
	}
	bad := func() error {
		return statusf(CodeMalformedDescriptor, -1,
			"%s.%s: bad default %q", m.FullName, f.Name, text)
	}
	switch f.Type {
	case TypeString, TypeBytes:
		if text != "" {
			f.Default = BytesValue(f.Type, NewStatic([]byte(text)))
		}
	case TypeEnum:
		def := f.Enum.Default
		if text != "" {
			n, ok := f.Enum.ValueByName(text)
			if !ok {
				return bad()
			}
			def = n
		}
		f.Default = EnumValue(def)
	case TypeBool:
		f.Default = BoolValue(text == "true")
	case TypeFloat:
		v, err := parseFloatDefault(text, 32)
		if err != nil {
			return bad()
		}
		f.Default = Float32Value(float32(v))
	case TypeDouble:
		v, err := parseFloatDefault(text, 64)
		if err != nil {
			return bad()
		}
		f.Default = Float64Value(v)
	case TypeUInt32, TypeUInt64, TypeFixed32, TypeFixed64:
		var v uint64
		if text != "" {
			var err error
			if v, err = strconv.ParseUint(text, 10, 64); err != nil {
				return bad()
			}
		}
		f.Default = TypedValue(f.Type, truncateBits(f.Type, v))
	default:
		var v int64
		if text != "" {
			var err error
			if v, err = strconv.ParseInt(text, 10, 64); err != nil {
				return bad()
			}
		}
		f.Default = TypedValue(f.Type, truncateBits(f.Type, uint64(v)))
	}
	return nil
}

// truncateBits clips a default to the field's width. Unlike [valueOf] this
// takes the value itself, not its wire form, so no zigzag is involved.
func truncateBits(ft FieldType, bits uint64) uint64 {
	switch ft {
	case TypeInt32, TypeSInt32, TypeSFixed32, TypeUInt32, TypeFixed32:
		return uint64(uint32(bits))
	}
	return bits
}

func parseFloatDefault(text string, bits int) (float64, error) {
	if text == "" {
		return 0, nil
	}
	return strconv.ParseFloat(text, bits)
}

/* Layout. *******************************************************************/

// slotSize returns the size and alignment of a field's slot in the message
// layout. Repeated fields and the reference types get a pointer-sized slot.
func slotSize(f *FieldDef) (size, align uint32) {
	if f.Label == LabelRepeated || f.IsString() || f.IsSubmessage() {
		return 8, 8
	}
	info := typeInfo[f.Type]
	return info.size, info.align
}

// finishMessage computes the message's layout and number lookup table:
// fields at natural alignment in number order, the set-bitmap at the end,
// total size rounded to pointer alignment.
func finishMessage(m *MessageDef) {
	sort.SliceStable(m.Fields, func(i, j int) bool {
		return m.Fields[i].Number < m.Fields[j].Number
	})

	var off uint32
	var bits int32
	for _, f := range m.Fields {
		size, align := slotSize(f)
		off = (off + align - 1) &^ (align - 1)
		f.Offset = off
		off += size
		if f.Label == LabelRepeated {
			f.Bit = -1
		} else {
			f.Bit = bits
			bits++
		}
	}
	m.BitmapOffset = off
	m.Size = (off + uint32(bits+7)/8 + 7) &^ 7

	maxNum := int32(0)
	if n := len(m.Fields); n > 0 {
		maxNum = m.Fields[n-1].Number
	}
	if maxNum <= denseLimit {
		m.dense = make([]*FieldDef, maxNum+1)
		for _, f := range m.Fields {
			m.dense[f.Number] = f
		}
		return
	}
	m.dense = make([]*FieldDef, denseLimit+1)
	m.spill = map[int32]*FieldDef{}
	for _, f := range m.Fields {
		if f.Number <= denseLimit {
			m.dense[f.Number] = f
		} else {
			m.spill[f.Number] = f
		}
	}
}
