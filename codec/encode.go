// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"

	"github.com/lorawan-schema/payload-codec/schema"
)

// Encode runs the schema walk in reverse: values maps field names to
// the transformed values a decode would have produced, and the result
// carries the serialized payload. Scalars absent from values encode as
// a zero default; conditional participation is inferred from which
// field names are present.
func Encode(s *schema.Schema, values map[string]any) *EncodeResult {
	return EncodeWithLimits(s, values, DefaultLimits())
}

// EncodeWithLimits is Encode with caller-supplied bounds.
func EncodeWithLimits(s *schema.Schema, values map[string]any, limits Limits) *EncodeResult {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	e := &encoder{
		buf:    &Buffer{},
		endian: s.Endian,
		values: values,
		vars:   make(map[string]float64),
		sites:  make(map[string]scalarSite),
		limits: limits,
	}
	if e.endian == "" {
		e.endian = schema.EndianBig
	}

	res := &EncodeResult{}
	if err := e.walk(s.Fields); err != nil {
		res.Errors = append(res.Errors, err)
	}
	res.Bytes = e.buf.Bytes()
	res.Warnings = e.warnings
	return res
}

// scalarSite remembers where a scalar landed in the output so a later
// flagged node can back-patch its flags word.
type scalarSite struct {
	pos    int
	width  int
	endian schema.Endian
}

type encoder struct {
	buf      *Buffer
	endian   schema.Endian
	values   map[string]any
	vars     map[string]float64
	sites    map[string]scalarSite
	warnings []string
	limits   Limits
	depth    int

	// Inside a TLV record body, array values are zipped back into
	// repeated records: elemIdx selects the element for this record.
	inTLV   bool
	elemIdx int
}

func (e *encoder) enter() error {
	e.depth++
	if e.depth > e.limits.MaxDepth {
		return fmt.Errorf("%w: depth %d", ErrRecursionLimitExceeded, e.depth)
	}
	return nil
}

func (e *encoder) leave() {
	e.depth--
}

func (e *encoder) warnf(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// lookup resolves the caller-supplied value for a field name. Inside a
// TLV body an array value yields its elemIdx-th element; an index past
// the array's end reads as absent.
func (e *encoder) lookup(name string) (any, bool) {
	v, ok := e.values[name]
	if !ok {
		return nil, false
	}
	if e.inTLV {
		if arr, isArr := v.([]any); isArr {
			if e.elemIdx >= len(arr) {
				return nil, false
			}
			return arr[e.elemIdx], true
		}
		if e.elemIdx > 0 {
			return nil, false
		}
	}
	return v, true
}

func (e *encoder) walk(fields []schema.Field) error {
	for _, f := range fields {
		var err error
		switch n := f.(type) {
		case *schema.Scalar:
			err = e.scalar(n)
		case *schema.ByteGroup:
			err = e.byteGroup(n)
		case *schema.Computed:
			err = e.computed(n)
		case *schema.Switch:
			err = e.switchNode(n)
		case *schema.Flagged:
			err = e.flagged(n)
		case *schema.TLV:
			err = e.tlv(n)
		default:
			err = fmt.Errorf("%w: field variant %T", ErrBadSchema, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) fieldEndian(ed schema.Endian) schema.Endian {
	if ed == "" {
		return e.endian
	}
	return ed
}

func (e *encoder) scalar(n *schema.Scalar) error {
	if n.Name == "" {
		e.buf.WriteZeros(n.Width)
		return nil
	}
	endian := e.fieldEndian(n.Endian)

	value, ok := e.lookup(n.Name)
	if !ok {
		value = float64(0)
	}
	raw, err := invertTransform(n.Transform, value, n.Name)
	if err != nil {
		return err
	}

	e.sites[n.Name] = scalarSite{pos: e.buf.Len(), width: n.Width, endian: endian}
	switch n.Kind {
	case schema.KindUint:
		err = e.buf.WriteUint(raw, n.Width, endian)
	case schema.KindInt:
		err = e.buf.WriteSint(raw, n.Width, endian)
	case schema.KindFloat:
		err = e.buf.WriteFloat(raw, n.Width, endian)
	default:
		err = fmt.Errorf("%w: scalar kind %d", ErrBadSchema, n.Kind)
	}
	if err != nil {
		return fmt.Errorf("field %q: %w", n.Name, err)
	}
	e.vars[n.Name] = raw
	return nil
}

func (e *encoder) byteGroup(n *schema.ByteGroup) error {
	var b byte
	for i := range n.Members {
		m := &n.Members[i]
		value, ok := e.lookup(m.Name)
		if !ok {
			continue // unused bits stay zero
		}
		raw, err := invertTransform(m.Transform, value, m.Name)
		if err != nil {
			return err
		}
		limit := float64(uint64(1) << m.BitWidth)
		if raw < 0 || raw >= limit {
			return fmt.Errorf("%w: field %q: %v does not fit %d bits",
				ErrOverflow, m.Name, raw, m.BitWidth)
		}
		b = InsertBits(b, m.BitOffset, m.BitWidth, uint8(raw))
		e.vars[m.Name] = raw
	}
	return e.buf.WriteByte(b)
}

// computed occupies no bytes; it only re-binds the variable so a later
// switch or flagged node can discriminate on it.
func (e *encoder) computed(n *schema.Computed) error {
	if value, ok := e.lookup(n.Name); ok {
		raw, err := invertTransform(n.Transform, value, n.Name)
		if err != nil {
			return err
		}
		e.vars[n.Name] = raw
		return nil
	}
	if raw, err := evalExpr(n.Expr, e.vars); err == nil {
		e.vars[n.Name] = raw
	}
	return nil
}

func (e *encoder) switchNode(n *schema.Switch) error {
	disc, bound := e.vars[n.On]
	var body []schema.Field
	if bound {
		value := int64(disc)
		var matches []int
		for i := range n.Cases {
			if caseMatches(&n.Cases[i], value) {
				matches = append(matches, i)
			}
		}
		switch {
		case len(matches) == 1:
			body = n.Cases[matches[0]].Fields
		case len(matches) == 0 && n.Default != nil:
			body = n.Default
		default:
			return fmt.Errorf("%w: $%s = %d selects %d cases",
				ErrAmbiguousCase, n.On, value, len(matches))
		}
	} else {
		// No discriminant supplied; fall back to presence of each
		// case's field names in the value map.
		var matches []int
		for i := range n.Cases {
			if e.anyPresent(n.Cases[i].Fields) {
				matches = append(matches, i)
			}
		}
		switch {
		case len(matches) == 1:
			body = n.Cases[matches[0]].Fields
		case len(matches) == 0 && n.Default != nil:
			body = n.Default
		default:
			return fmt.Errorf("%w: $%s unbound and %d cases have values present",
				ErrAmbiguousCase, n.On, len(matches))
		}
	}

	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	return e.walk(body)
}

func (e *encoder) flagged(n *schema.Flagged) error {
	site, ok := e.sites[n.FlagsField]
	if !ok {
		return fmt.Errorf("flagged on $%s: %w", n.FlagsField, ErrComputeReferenceMissing)
	}

	var flags uint64
	for _, g := range n.Groups {
		if e.anyPresent(g.Fields) {
			flags |= 1 << g.Bit
		}
	}
	if _, supplied := e.values[n.FlagsField]; supplied {
		if raw := e.vars[n.FlagsField]; uint64(raw) != flags {
			e.warnf("flags $%s: supplied %d overridden by derived %d",
				n.FlagsField, uint64(raw), flags)
		}
	}
	if err := e.buf.PatchUint(site.pos, flags, site.width, site.endian); err != nil {
		return err
	}
	e.vars[n.FlagsField] = float64(flags)

	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	for _, g := range n.Groups {
		if flags&(1<<g.Bit) == 0 {
			continue
		}
		if err := e.walk(g.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) tlv(n *schema.TLV) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	wasInTLV, wasIdx := e.inTLV, e.elemIdx
	defer func() { e.inTLV, e.elemIdx = wasInTLV, wasIdx }()
	e.inTLV = true

	for i := range n.Cases {
		c := &n.Cases[i]
		count := e.recordCount(c.Fields)
		for rec := 0; rec < count; rec++ {
			e.elemIdx = rec
			if err := e.buf.WriteUint(float64(c.Tag), n.TagWidth, e.endian); err != nil {
				return err
			}
			if n.TypeWidth > 0 {
				var typ uint64
				if c.Type != nil {
					typ = *c.Type
				}
				if err := e.buf.WriteUint(float64(typ), n.TypeWidth, e.endian); err != nil {
					return err
				}
			}
			lenPos := -1
			if n.LengthWidth > 0 {
				lenPos = e.buf.Len()
				e.buf.WriteZeros(n.LengthWidth)
			}
			bodyStart := e.buf.Len()
			if err := e.walk(c.Fields); err != nil {
				return err
			}
			if lenPos >= 0 {
				bodyLen := uint64(e.buf.Len() - bodyStart)
				if err := e.buf.PatchUint(lenPos, bodyLen, n.LengthWidth, e.endian); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// recordCount returns how many TLV records a case body serializes: the
// longest array among its field names, one for plain values, zero when
// every name is absent.
func (e *encoder) recordCount(fields []schema.Field) int {
	count := 0
	for _, name := range fieldNames(fields) {
		v, ok := e.values[name]
		if !ok {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			if len(arr) > count {
				count = len(arr)
			}
		} else if count < 1 {
			count = 1
		}
	}
	return count
}

// anyPresent reports whether any named field in the subtree has a value
// supplied by the caller.
func (e *encoder) anyPresent(fields []schema.Field) bool {
	for _, name := range fieldNames(fields) {
		if _, ok := e.lookup(name); ok {
			return true
		}
	}
	return false
}

// fieldNames collects every named field in a subtree, including those
// nested under conditionals.
func fieldNames(fields []schema.Field) []string {
	var names []string
	for _, f := range fields {
		switch n := f.(type) {
		case *schema.Scalar:
			if n.Name != "" {
				names = append(names, n.Name)
			}
		case *schema.ByteGroup:
			for i := range n.Members {
				names = append(names, n.Members[i].Name)
			}
		case *schema.Computed:
			names = append(names, n.Name)
		case *schema.Switch:
			for i := range n.Cases {
				names = append(names, fieldNames(n.Cases[i].Fields)...)
			}
			names = append(names, fieldNames(n.Default)...)
		case *schema.Flagged:
			for _, g := range n.Groups {
				names = append(names, fieldNames(g.Fields)...)
			}
		case *schema.TLV:
			for i := range n.Cases {
				names = append(names, fieldNames(n.Cases[i].Fields)...)
			}
		}
	}
	return names
}
