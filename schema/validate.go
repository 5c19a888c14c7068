// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is wrapped by every validation failure.
var ErrInvalidSchema = errors.New("schema: invalid schema")

// MaxFlagBit is the highest flag bit index a Flagged group may gate on.
const MaxFlagBit = 63

// Validate checks the structural invariants the codec relies on: field
// names unique within their scope, computed expressions referencing only
// variables bound earlier in declaration order, and width/bit ranges in
// bounds. The loader calls this before returning a Schema; callers
// building IR programmatically should call it themselves.
func (s *Schema) Validate() error {
	switch s.Endian {
	case EndianBig, EndianLittle:
	default:
		return fmt.Errorf("%w: endian must be %q or %q, got %q",
			ErrInvalidSchema, EndianBig, EndianLittle, s.Endian)
	}
	_, err := validateFields(s.Fields, newScope())
	return err
}

// scope tracks the variable names bound so far on one decode path.
// Branch bodies validate against a copy so that mutually exclusive
// branches may shadow each other.
type scope map[string]struct{}

func newScope() scope {
	return make(scope)
}

func (sc scope) clone() scope {
	out := make(scope, len(sc))
	for k := range sc {
		out[k] = struct{}{}
	}
	return out
}

func (sc scope) bind(name string) error {
	if _, dup := sc[name]; dup {
		return fmt.Errorf("%w: duplicate field name %q in scope", ErrInvalidSchema, name)
	}
	sc[name] = struct{}{}
	return nil
}

// validateFields walks one field list, threading the scope through
// sequential fields and copying it into branch bodies. It returns the
// scope as extended by this list.
func validateFields(fields []Field, sc scope) (scope, error) {
	for _, f := range fields {
		var err error
		switch n := f.(type) {
		case *Scalar:
			err = validateScalar(n, sc)
		case *ByteGroup:
			err = validateByteGroup(n, sc)
		case *Computed:
			err = validateComputed(n, sc)
		case *Switch:
			err = validateSwitch(n, sc)
		case *Flagged:
			err = validateFlagged(n, sc)
		case *TLV:
			err = validateTLV(n, sc)
		default:
			err = fmt.Errorf("%w: unknown field variant %T", ErrInvalidSchema, f)
		}
		if err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func validateScalar(n *Scalar, sc scope) error {
	switch n.Kind {
	case KindUint, KindInt:
		if n.Width < 1 || n.Width > 8 {
			return fmt.Errorf("%w: field %q: integer width %d out of range 1..8",
				ErrInvalidSchema, n.Name, n.Width)
		}
	case KindFloat:
		if n.Width != 2 && n.Width != 4 && n.Width != 8 {
			return fmt.Errorf("%w: field %q: float width must be 2, 4 or 8, got %d",
				ErrInvalidSchema, n.Name, n.Width)
		}
	default:
		return fmt.Errorf("%w: field %q: unknown scalar kind", ErrInvalidSchema, n.Name)
	}
	switch n.Endian {
	case "", EndianBig, EndianLittle:
	default:
		return fmt.Errorf("%w: field %q: bad endian %q", ErrInvalidSchema, n.Name, n.Endian)
	}
	if err := validateTransform(n.Transform, n.Name); err != nil {
		return err
	}
	if n.Name == "" {
		return nil // padding, binds nothing
	}
	return sc.bind(n.Name)
}

func validateByteGroup(n *ByteGroup, sc scope) error {
	if len(n.Members) == 0 {
		return fmt.Errorf("%w: byte_group has no members", ErrInvalidSchema)
	}
	for i := range n.Members {
		m := &n.Members[i]
		if m.Name == "" {
			return fmt.Errorf("%w: byte_group member %d has no name", ErrInvalidSchema, i)
		}
		if m.BitWidth < 1 || m.BitWidth > 8 {
			return fmt.Errorf("%w: bitfield %q: width %d out of range 1..8",
				ErrInvalidSchema, m.Name, m.BitWidth)
		}
		if m.BitOffset < 0 || m.BitOffset+m.BitWidth > 8 {
			return fmt.Errorf("%w: bitfield %q: bits [%d,%d) exceed one byte",
				ErrInvalidSchema, m.Name, m.BitOffset, m.BitOffset+m.BitWidth)
		}
		if err := validateTransform(m.Transform, m.Name); err != nil {
			return err
		}
		if err := sc.bind(m.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateComputed(n *Computed, sc scope) error {
	if n.Name == "" {
		return fmt.Errorf("%w: computed field has no name", ErrInvalidSchema)
	}
	if n.Expr == nil {
		return fmt.Errorf("%w: computed field %q has no expression", ErrInvalidSchema, n.Name)
	}
	if err := validateExpr(n.Expr, sc, n.Name); err != nil {
		return err
	}
	if err := validateTransform(n.Transform, n.Name); err != nil {
		return err
	}
	return sc.bind(n.Name)
}

func validateSwitch(n *Switch, sc scope) error {
	if n.On == "" {
		return fmt.Errorf("%w: switch has no discriminant", ErrInvalidSchema)
	}
	if _, bound := sc[n.On]; !bound {
		return fmt.Errorf("%w: switch discriminant %q not bound before use",
			ErrInvalidSchema, n.On)
	}
	if len(n.Cases) == 0 && n.Default == nil {
		return fmt.Errorf("%w: switch on %q has no cases", ErrInvalidSchema, n.On)
	}
	for i, c := range n.Cases {
		if len(c.Match) == 0 && c.Min == nil && c.Max == nil {
			return fmt.Errorf("%w: switch on %q: case %d matches nothing",
				ErrInvalidSchema, n.On, i)
		}
		if _, err := validateFields(c.Fields, sc.clone()); err != nil {
			return err
		}
	}
	if n.Default != nil {
		if _, err := validateFields(n.Default, sc.clone()); err != nil {
			return err
		}
	}
	return nil
}

func validateFlagged(n *Flagged, sc scope) error {
	if n.FlagsField == "" {
		return fmt.Errorf("%w: flagged has no flags field", ErrInvalidSchema)
	}
	if _, bound := sc[n.FlagsField]; !bound {
		return fmt.Errorf("%w: flagged field %q not bound before use",
			ErrInvalidSchema, n.FlagsField)
	}
	seen := map[int]struct{}{}
	for _, g := range n.Groups {
		if g.Bit < 0 || g.Bit > MaxFlagBit {
			return fmt.Errorf("%w: flagged bit %d out of range 0..%d",
				ErrInvalidSchema, g.Bit, MaxFlagBit)
		}
		if _, dup := seen[g.Bit]; dup {
			return fmt.Errorf("%w: flagged bit %d declared twice", ErrInvalidSchema, g.Bit)
		}
		seen[g.Bit] = struct{}{}
		// Groups are not mutually exclusive: any subset of bits may be
		// set, so their bindings share one scope.
		var err error
		if sc, err = validateFields(g.Fields, sc); err != nil {
			return err
		}
	}
	return nil
}

func validateTLV(n *TLV, sc scope) error {
	if n.TagWidth < 1 || n.TagWidth > 4 {
		return fmt.Errorf("%w: tlv tag width %d out of range 1..4", ErrInvalidSchema, n.TagWidth)
	}
	if n.TypeWidth < 0 || n.TypeWidth > 4 {
		return fmt.Errorf("%w: tlv type width %d out of range 0..4", ErrInvalidSchema, n.TypeWidth)
	}
	if n.LengthWidth < 0 || n.LengthWidth > 4 {
		return fmt.Errorf("%w: tlv length width %d out of range 0..4", ErrInvalidSchema, n.LengthWidth)
	}
	switch n.Unknown {
	case UnknownTerminate, UnknownError:
	case UnknownSkip:
		if n.LengthWidth == 0 {
			return fmt.Errorf("%w: tlv unknown=skip requires a length word", ErrInvalidSchema)
		}
	default:
		return fmt.Errorf("%w: tlv unknown policy %q", ErrInvalidSchema, n.Unknown)
	}
	if len(n.Cases) == 0 {
		return fmt.Errorf("%w: tlv has no cases", ErrInvalidSchema)
	}
	type caseKey struct {
		tag     uint64
		typ     uint64
		anyType bool
	}
	seen := map[caseKey]struct{}{}
	for _, c := range n.Cases {
		k := caseKey{tag: c.Tag, anyType: c.Type == nil}
		if c.Type != nil {
			k.typ = *c.Type
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: tlv tag %d declared twice", ErrInvalidSchema, c.Tag)
		}
		seen[k] = struct{}{}
		if _, err := validateFields(c.Fields, sc.clone()); err != nil {
			return err
		}
	}
	return nil
}

func validateTransform(t *Transform, name string) error {
	if t == nil {
		return nil
	}
	for _, op := range t.Ops {
		if !op.Op.Arithmetic() {
			return fmt.Errorf("%w: field %q: %s is not a transform op",
				ErrInvalidSchema, name, op.Op)
		}
		switch op.Op {
		case OpDiv, OpMod, OpIdiv:
			if op.Operand == 0 {
				return fmt.Errorf("%w: field %q: %s by zero", ErrInvalidSchema, name, op.Op)
			}
		}
	}
	if t.RoundDecimals != nil && (*t.RoundDecimals < 0 || *t.RoundDecimals > 15) {
		return fmt.Errorf("%w: field %q: round decimals %d out of range 0..15",
			ErrInvalidSchema, name, *t.RoundDecimals)
	}
	return nil
}

func validateExpr(e Expr, sc scope, field string) error {
	switch n := e.(type) {
	case *Literal:
		return nil
	case *VarRef:
		if _, bound := sc[n.Name]; !bound {
			return fmt.Errorf("%w: computed field %q references %q before it is bound",
				ErrInvalidSchema, field, n.Name)
		}
		return nil
	case *BinaryOp:
		if err := validateExpr(n.A, sc, field); err != nil {
			return err
		}
		return validateExpr(n.B, sc, field)
	case *Guard:
		for _, cl := range n.Clauses {
			if err := validateExpr(cl.When, sc, field); err != nil {
				return err
			}
			if err := validateExpr(cl.Value, sc, field); err != nil {
				return err
			}
		}
		if n.Else == nil {
			return fmt.Errorf("%w: computed field %q: guard has no else", ErrInvalidSchema, field)
		}
		return validateExpr(n.Else, sc, field)
	default:
		return fmt.Errorf("%w: computed field %q: unknown expression %T", ErrInvalidSchema, field, e)
	}
}
