// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"

	"github.com/Velocidex/ordereddict"

	"github.com/lorawan-schema/payload-codec/schema"
)

// Limits bounds a single decode/encode call. The recursion depth
// counter is threaded through the walk explicitly rather than relying
// on the host call stack, so the bound is a testable property of the
// engine and not a platform detail.
type Limits struct {
	// MaxDepth caps nested conditional bodies (switch, flagged, TLV).
	MaxDepth int
}

// DefaultMaxDepth is the conditional nesting bound used by Decode and
// Encode.
const DefaultMaxDepth = 32

// DefaultLimits returns the standard limits.
func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth}
}

// Decode executes the schema against payload and returns a structured
// result. It never panics, whatever the input bytes: structural faults
// (underrun, recursion bound) abort the walk and are reported in the
// result's error list alongside the partial output.
func Decode(s *schema.Schema, payload []byte) *Result {
	return DecodeWithLimits(s, payload, DefaultLimits())
}

// DecodeWithLimits is Decode with caller-supplied bounds.
func DecodeWithLimits(s *schema.Schema, payload []byte, limits Limits) *Result {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	d := &decoder{
		cur:    NewCursor(payload),
		endian: s.Endian,
		vars:   make(map[string]float64),
		out:    ordereddict.NewDict(),
		limits: limits,
	}
	if d.endian == "" {
		d.endian = schema.EndianBig
	}

	res := &Result{Data: d.out}
	if err := d.walk(s.Fields); err != nil {
		res.Errors = append(res.Errors, err)
	}
	res.Quality = d.quality
	res.Warnings = d.warnings
	res.Consumed = d.cur.Pos()
	return res
}

// decoder carries the call-scoped state of one decode walk: the cursor,
// the raw pre-transform variable bindings used by expressions and
// discriminants, and the ordered user-visible output.
type decoder struct {
	cur      *Cursor
	endian   schema.Endian
	vars     map[string]float64
	out      *ordereddict.Dict
	quality  map[string]string
	warnings []string
	limits   Limits
	depth    int
	tlvDepth int
}

// enter accounts one level of conditional nesting.
func (d *decoder) enter() error {
	d.depth++
	if d.depth > d.limits.MaxDepth {
		return fmt.Errorf("%w: depth %d", ErrRecursionLimitExceeded, d.depth)
	}
	return nil
}

func (d *decoder) leave() {
	d.depth--
}

func (d *decoder) warnf(format string, args ...any) {
	d.warnings = append(d.warnings, fmt.Sprintf(format, args...))
}

// emit records a user-visible value. Inside a TLV body repeated names
// merge into arrays, matching repeated records from multi-channel
// devices; everywhere else the name is set once.
func (d *decoder) emit(name string, value any) {
	if name == "" {
		return
	}
	if d.tlvDepth > 0 {
		if prev, ok := d.out.Get(name); ok {
			if arr, isArr := prev.([]any); isArr {
				d.out.Update(name, append(arr, value))
			} else {
				d.out.Update(name, []any{prev, value})
			}
			return
		}
	}
	d.out.Set(name, value)
}

func (d *decoder) classify(name string, sem *schema.Semantics, v float64) {
	if q, ok := classifyQuality(sem, v); ok {
		if d.quality == nil {
			d.quality = make(map[string]string)
		}
		d.quality[name] = q
	}
}

func (d *decoder) walk(fields []schema.Field) error {
	for _, f := range fields {
		var err error
		switch n := f.(type) {
		case *schema.Scalar:
			err = d.scalar(n)
		case *schema.ByteGroup:
			err = d.byteGroup(n)
		case *schema.Computed:
			err = d.computed(n)
		case *schema.Switch:
			err = d.switchNode(n)
		case *schema.Flagged:
			err = d.flagged(n)
		case *schema.TLV:
			err = d.tlv(n)
		default:
			err = fmt.Errorf("%w: field variant %T", ErrBadSchema, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) fieldEndian(e schema.Endian) schema.Endian {
	if e == "" {
		return d.endian
	}
	return e
}

func (d *decoder) scalar(n *schema.Scalar) error {
	endian := d.fieldEndian(n.Endian)
	var raw float64
	switch n.Kind {
	case schema.KindUint:
		u, err := d.cur.ReadUint(n.Width, endian)
		if err != nil {
			return fmt.Errorf("field %q: %w", n.Name, err)
		}
		raw = float64(u)
	case schema.KindInt:
		i, err := d.cur.ReadSint(n.Width, endian)
		if err != nil {
			return fmt.Errorf("field %q: %w", n.Name, err)
		}
		raw = float64(i)
	case schema.KindFloat:
		f, err := d.cur.ReadFloat(n.Width, endian)
		if err != nil {
			return fmt.Errorf("field %q: %w", n.Name, err)
		}
		raw = f
	default:
		return fmt.Errorf("%w: scalar kind %d", ErrBadSchema, n.Kind)
	}

	if n.Name == "" {
		return nil // padding
	}
	d.vars[n.Name] = raw
	out, numeric := applyTransform(n.Transform, raw)
	d.emit(n.Name, out)
	d.classify(n.Name, n.Semantics, numeric)
	return nil
}

func (d *decoder) byteGroup(n *schema.ByteGroup) error {
	b, err := d.cur.PeekByte()
	if err != nil {
		return fmt.Errorf("byte_group: %w", err)
	}
	for i := range n.Members {
		m := &n.Members[i]
		raw := float64(ExtractBits(b, m.BitOffset, m.BitWidth))
		d.vars[m.Name] = raw
		out, numeric := applyTransform(m.Transform, raw)
		d.emit(m.Name, out)
		d.classify(m.Name, m.Semantics, numeric)
	}
	// One byte per group, however many bits the members covered.
	return d.cur.Skip(1)
}

func (d *decoder) computed(n *schema.Computed) error {
	raw, err := evalExpr(n.Expr, d.vars)
	if err != nil {
		return fmt.Errorf("field %q: %w", n.Name, err)
	}
	d.vars[n.Name] = raw
	out, numeric := applyTransform(n.Transform, raw)
	d.emit(n.Name, out)
	d.classify(n.Name, n.Semantics, numeric)
	return nil
}

func (d *decoder) switchNode(n *schema.Switch) error {
	disc, ok := d.vars[n.On]
	if !ok {
		return fmt.Errorf("switch on $%s: %w", n.On, ErrComputeReferenceMissing)
	}
	value := int64(disc)

	body := n.Default
	matched := false
	for _, c := range n.Cases {
		if caseMatches(&c, value) {
			body = c.Fields
			matched = true
			break
		}
	}
	if !matched && n.Default == nil {
		// Nothing is fabricated for the unmatched value; the rest of
		// the schema still decodes.
		d.warnf("no matching case for $%s = %d", n.On, value)
		return nil
	}

	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	return d.walk(body)
}

func caseMatches(c *schema.SwitchCase, value int64) bool {
	for _, m := range c.Match {
		if m == value {
			return true
		}
	}
	if c.Min != nil || c.Max != nil {
		if c.Min != nil && value < *c.Min {
			return false
		}
		if c.Max != nil && value > *c.Max {
			return false
		}
		return true
	}
	return false
}

func (d *decoder) flagged(n *schema.Flagged) error {
	disc, ok := d.vars[n.FlagsField]
	if !ok {
		return fmt.Errorf("flagged on $%s: %w", n.FlagsField, ErrComputeReferenceMissing)
	}
	flags := uint64(disc)

	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	for _, g := range n.Groups {
		if flags&(1<<g.Bit) == 0 {
			continue
		}
		if err := d.walk(g.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) tlv(n *schema.TLV) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()

	headerWidth := n.TagWidth + n.TypeWidth + n.LengthWidth
	d.tlvDepth++
	defer func() { d.tlvDepth-- }()

	for {
		// Too few bytes for a header is the designed end-of-payload
		// condition, not an underrun: TLV streams rarely carry an
		// explicit end marker.
		if d.cur.Remaining() < headerWidth {
			return nil
		}
		start := d.cur.Pos()

		tag, err := d.cur.ReadUint(n.TagWidth, d.endian)
		if err != nil {
			return nil
		}
		var typ uint64
		if n.TypeWidth > 0 {
			if typ, err = d.cur.ReadUint(n.TypeWidth, d.endian); err != nil {
				return nil
			}
		}
		length := -1
		if n.LengthWidth > 0 {
			l, err := d.cur.ReadUint(n.LengthWidth, d.endian)
			if err != nil {
				return nil
			}
			length = int(l)
		}

		c := findTLVCase(n, tag, typ)
		if c == nil {
			switch n.Unknown {
			case schema.UnknownError:
				return fmt.Errorf("tlv tag %d: %w", tag, ErrNoMatchingCase)
			case schema.UnknownSkip:
				if err := d.cur.Skip(length); err != nil {
					d.warnf("tlv tag %d: truncated unknown record", tag)
					return nil
				}
				d.warnf("tlv tag %d: unknown, skipped %d bytes", tag, length)
				continue
			default:
				// Terminate cleanly on the first unknown tag.
				return nil
			}
		}

		if err := d.walk(c.Fields); err != nil {
			return err
		}
		// The header is at least one byte, so the loop always strictly
		// advances; this guard only protects against corrupt IR.
		if d.cur.Pos() <= start {
			return nil
		}
	}
}

func findTLVCase(n *schema.TLV, tag, typ uint64) *schema.TLVCase {
	for i := range n.Cases {
		c := &n.Cases[i]
		if c.Tag != tag {
			continue
		}
		if n.TypeWidth > 0 && c.Type != nil && *c.Type != typ {
			continue
		}
		return c
	}
	return nil
}
