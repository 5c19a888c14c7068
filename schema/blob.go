// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Binary schema blob framing. The body is deterministic CBOR so the
// same IR always serializes to identical bytes.
const (
	blobMagic   = "PS"
	BlobVersion = 0x03
)

// ErrBlob is wrapped by blob encode/decode failures.
var ErrBlob = errors.New("schema: bad binary schema blob")

var (
	blobEncMode cbor.EncMode
	blobDecMode cbor.DecMode
)

func init() {
	var err error
	blobEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("schema: CBOR encoder initialization failed: " + err.Error())
	}
	blobDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("schema: CBOR decoder initialization failed: " + err.Error())
	}
}

// Wire form of the IR. The Field and Expr interfaces flatten into
// kind-tagged structs for serialization; FromBlob rebuilds the unions.

type wireSchema struct {
	Name        string      `cbor:"1,keyasint,omitempty"`
	Version     int         `cbor:"2,keyasint,omitempty"`
	Description string      `cbor:"3,keyasint,omitempty"`
	Endian      Endian      `cbor:"4,keyasint"`
	Fields      []wireField `cbor:"5,keyasint"`
}

type wireField struct {
	Kind        string          `cbor:"1,keyasint"`
	Name        string          `cbor:"2,keyasint,omitempty"`
	ScalarKind  uint8           `cbor:"3,keyasint,omitempty"`
	Width       int             `cbor:"4,keyasint,omitempty"`
	Endian      Endian          `cbor:"5,keyasint,omitempty"`
	Transform   *wireTransform  `cbor:"6,keyasint,omitempty"`
	Semantics   *wireSemantics  `cbor:"7,keyasint,omitempty"`
	Members     []wireBitfield  `cbor:"8,keyasint,omitempty"`
	Expr        *wireExpr       `cbor:"9,keyasint,omitempty"`
	On          string          `cbor:"10,keyasint,omitempty"`
	Cases       []wireCase      `cbor:"11,keyasint,omitempty"`
	Default     []wireField     `cbor:"12,keyasint,omitempty"`
	HasDefault  bool            `cbor:"13,keyasint,omitempty"`
	FlagsField  string          `cbor:"14,keyasint,omitempty"`
	Groups      []wireFlagGroup `cbor:"15,keyasint,omitempty"`
	TagWidth    int             `cbor:"16,keyasint,omitempty"`
	TypeWidth   int             `cbor:"17,keyasint,omitempty"`
	LengthWidth int             `cbor:"18,keyasint,omitempty"`
	Unknown     string          `cbor:"19,keyasint,omitempty"`
}

type wireBitfield struct {
	Name      string         `cbor:"1,keyasint"`
	BitOffset int            `cbor:"2,keyasint,omitempty"`
	BitWidth  int            `cbor:"3,keyasint"`
	Transform *wireTransform `cbor:"4,keyasint,omitempty"`
	Semantics *wireSemantics `cbor:"5,keyasint,omitempty"`
}

type wireCase struct {
	Match  []int64     `cbor:"1,keyasint,omitempty"`
	Min    *int64      `cbor:"2,keyasint,omitempty"`
	Max    *int64      `cbor:"3,keyasint,omitempty"`
	Tag    uint64      `cbor:"4,keyasint,omitempty"`
	Type   *uint64     `cbor:"5,keyasint,omitempty"`
	Fields []wireField `cbor:"6,keyasint,omitempty"`
}

type wireFlagGroup struct {
	Bit    int         `cbor:"1,keyasint"`
	Fields []wireField `cbor:"2,keyasint,omitempty"`
}

type wireTransform struct {
	Polynomial []float64  `cbor:"1,keyasint,omitempty"`
	Ops        []wireOp   `cbor:"2,keyasint,omitempty"`
	Lookup     []wireLook `cbor:"3,keyasint,omitempty"`
	Round      *int       `cbor:"4,keyasint,omitempty"`
}

type wireOp struct {
	Op      uint8   `cbor:"1,keyasint"`
	Operand float64 `cbor:"2,keyasint"`
}

type wireLook struct {
	Key   int64  `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

type wireSemantics struct {
	RangeMin   *float64 `cbor:"1,keyasint,omitempty"`
	RangeMax   *float64 `cbor:"2,keyasint,omitempty"`
	Resolution float64  `cbor:"3,keyasint,omitempty"`
	UneceUnit  string   `cbor:"4,keyasint,omitempty"`
	IPSO       int      `cbor:"5,keyasint,omitempty"`
}

type wireExpr struct {
	Kind    string       `cbor:"1,keyasint"`
	Value   float64      `cbor:"2,keyasint,omitempty"`
	Name    string       `cbor:"3,keyasint,omitempty"`
	Op      uint8        `cbor:"4,keyasint,omitempty"`
	A       *wireExpr    `cbor:"5,keyasint,omitempty"`
	B       *wireExpr    `cbor:"6,keyasint,omitempty"`
	Clauses []wireClause `cbor:"7,keyasint,omitempty"`
	Else    *wireExpr    `cbor:"8,keyasint,omitempty"`
}

type wireClause struct {
	When  *wireExpr `cbor:"1,keyasint"`
	Value *wireExpr `cbor:"2,keyasint"`
}

// ToBlob serializes the schema to its opaque binary form: the "PS"
// magic, a format version byte, and a deterministic CBOR body.
func (s *Schema) ToBlob() ([]byte, error) {
	ws := wireSchema{
		Name:        s.Name,
		Version:     s.Version,
		Description: s.Description,
		Endian:      s.Endian,
		Fields:      fieldsToWire(s.Fields),
	}
	body, err := blobEncMode.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlob, err)
	}
	out := make([]byte, 0, len(body)+3)
	out = append(out, blobMagic...)
	out = append(out, BlobVersion)
	return append(out, body...), nil
}

// FromBlob deserializes a binary schema blob and validates the IR.
func FromBlob(data []byte) (*Schema, error) {
	if len(data) < 3 || string(data[:2]) != blobMagic {
		return nil, fmt.Errorf("%w: missing %q magic", ErrBlob, blobMagic)
	}
	if data[2] != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBlob, data[2])
	}
	var ws wireSchema
	if err := blobDecMode.Unmarshal(data[3:], &ws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlob, err)
	}
	fields, err := fieldsFromWire(ws.Fields)
	if err != nil {
		return nil, err
	}
	s := &Schema{
		Name:        ws.Name,
		Version:     ws.Version,
		Description: ws.Description,
		Endian:      ws.Endian,
		Fields:      fields,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func fieldsToWire(fields []Field) []wireField {
	out := make([]wireField, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldToWire(f))
	}
	return out
}

func fieldToWire(f Field) wireField {
	switch n := f.(type) {
	case *Scalar:
		return wireField{
			Kind: "scalar", Name: n.Name, ScalarKind: uint8(n.Kind),
			Width: n.Width, Endian: n.Endian,
			Transform: transformToWire(n.Transform),
			Semantics: semanticsToWire(n.Semantics),
		}
	case *ByteGroup:
		members := make([]wireBitfield, 0, len(n.Members))
		for _, m := range n.Members {
			members = append(members, wireBitfield{
				Name: m.Name, BitOffset: m.BitOffset, BitWidth: m.BitWidth,
				Transform: transformToWire(m.Transform),
				Semantics: semanticsToWire(m.Semantics),
			})
		}
		return wireField{Kind: "byte_group", Members: members}
	case *Computed:
		return wireField{
			Kind: "computed", Name: n.Name, Expr: exprToWire(n.Expr),
			Transform: transformToWire(n.Transform),
			Semantics: semanticsToWire(n.Semantics),
		}
	case *Switch:
		cases := make([]wireCase, 0, len(n.Cases))
		for _, c := range n.Cases {
			cases = append(cases, wireCase{
				Match: c.Match, Min: c.Min, Max: c.Max,
				Fields: fieldsToWire(c.Fields),
			})
		}
		return wireField{
			Kind: "switch", On: n.On, Cases: cases,
			Default: fieldsToWire(n.Default), HasDefault: n.Default != nil,
		}
	case *Flagged:
		groups := make([]wireFlagGroup, 0, len(n.Groups))
		for _, g := range n.Groups {
			groups = append(groups, wireFlagGroup{Bit: g.Bit, Fields: fieldsToWire(g.Fields)})
		}
		return wireField{Kind: "flagged", FlagsField: n.FlagsField, Groups: groups}
	case *TLV:
		cases := make([]wireCase, 0, len(n.Cases))
		for _, c := range n.Cases {
			cases = append(cases, wireCase{Tag: c.Tag, Type: c.Type, Fields: fieldsToWire(c.Fields)})
		}
		return wireField{
			Kind: "tlv", TagWidth: n.TagWidth, TypeWidth: n.TypeWidth,
			LengthWidth: n.LengthWidth, Unknown: string(n.Unknown), Cases: cases,
		}
	}
	return wireField{Kind: "unknown"}
}

func fieldsFromWire(fields []wireField) ([]Field, error) {
	out := make([]Field, 0, len(fields))
	for i := range fields {
		f, err := fieldFromWire(&fields[i])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func fieldFromWire(w *wireField) (Field, error) {
	switch w.Kind {
	case "scalar":
		return &Scalar{
			Name: w.Name, Kind: ScalarKind(w.ScalarKind), Width: w.Width,
			Endian: w.Endian, Transform: transformFromWire(w.Transform),
			Semantics: semanticsFromWire(w.Semantics),
		}, nil
	case "byte_group":
		g := &ByteGroup{Members: make([]Bitfield, 0, len(w.Members))}
		for _, m := range w.Members {
			g.Members = append(g.Members, Bitfield{
				Name: m.Name, BitOffset: m.BitOffset, BitWidth: m.BitWidth,
				Transform: transformFromWire(m.Transform),
				Semantics: semanticsFromWire(m.Semantics),
			})
		}
		return g, nil
	case "computed":
		expr, err := exprFromWire(w.Expr)
		if err != nil {
			return nil, err
		}
		return &Computed{
			Name: w.Name, Expr: expr,
			Transform: transformFromWire(w.Transform),
			Semantics: semanticsFromWire(w.Semantics),
		}, nil
	case "switch":
		sw := &Switch{On: w.On}
		for _, c := range w.Cases {
			fields, err := fieldsFromWire(c.Fields)
			if err != nil {
				return nil, err
			}
			sw.Cases = append(sw.Cases, SwitchCase{Match: c.Match, Min: c.Min, Max: c.Max, Fields: fields})
		}
		if w.HasDefault {
			def, err := fieldsFromWire(w.Default)
			if err != nil {
				return nil, err
			}
			if def == nil {
				def = []Field{}
			}
			sw.Default = def
		}
		return sw, nil
	case "flagged":
		fl := &Flagged{FlagsField: w.FlagsField}
		for _, g := range w.Groups {
			fields, err := fieldsFromWire(g.Fields)
			if err != nil {
				return nil, err
			}
			fl.Groups = append(fl.Groups, FlagGroup{Bit: g.Bit, Fields: fields})
		}
		return fl, nil
	case "tlv":
		t := &TLV{
			TagWidth: w.TagWidth, TypeWidth: w.TypeWidth,
			LengthWidth: w.LengthWidth, Unknown: UnknownPolicy(w.Unknown),
		}
		for _, c := range w.Cases {
			fields, err := fieldsFromWire(c.Fields)
			if err != nil {
				return nil, err
			}
			t.Cases = append(t.Cases, TLVCase{Tag: c.Tag, Type: c.Type, Fields: fields})
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: unknown field kind %q", ErrBlob, w.Kind)
}

func transformToWire(t *Transform) *wireTransform {
	if t.Empty() {
		return nil
	}
	w := &wireTransform{Polynomial: t.Polynomial, Round: t.RoundDecimals}
	for _, op := range t.Ops {
		w.Ops = append(w.Ops, wireOp{Op: uint8(op.Op), Operand: op.Operand})
	}
	for _, e := range t.Lookup {
		w.Lookup = append(w.Lookup, wireLook{Key: e.Key, Value: e.Value})
	}
	return w
}

func transformFromWire(w *wireTransform) *Transform {
	if w == nil {
		return nil
	}
	t := &Transform{Polynomial: w.Polynomial, RoundDecimals: w.Round}
	for _, op := range w.Ops {
		t.Ops = append(t.Ops, TransformOp{Op: OpKind(op.Op), Operand: op.Operand})
	}
	for _, e := range w.Lookup {
		t.Lookup = append(t.Lookup, LookupEntry{Key: e.Key, Value: e.Value})
	}
	return t
}

func semanticsToWire(s *Semantics) *wireSemantics {
	if s == nil {
		return nil
	}
	w := &wireSemantics{Resolution: s.Resolution, UneceUnit: s.UneceUnit, IPSO: s.IPSO}
	if s.ValidRange != nil {
		lo, hi := s.ValidRange.Min, s.ValidRange.Max
		w.RangeMin, w.RangeMax = &lo, &hi
	}
	return w
}

func semanticsFromWire(w *wireSemantics) *Semantics {
	if w == nil {
		return nil
	}
	s := &Semantics{Resolution: w.Resolution, UneceUnit: w.UneceUnit, IPSO: w.IPSO}
	if w.RangeMin != nil && w.RangeMax != nil {
		s.ValidRange = &Range{Min: *w.RangeMin, Max: *w.RangeMax}
	}
	return s
}

func exprToWire(e Expr) *wireExpr {
	switch n := e.(type) {
	case *Literal:
		return &wireExpr{Kind: "lit", Value: n.Value}
	case *VarRef:
		return &wireExpr{Kind: "var", Name: n.Name}
	case *BinaryOp:
		return &wireExpr{Kind: "bin", Op: uint8(n.Op), A: exprToWire(n.A), B: exprToWire(n.B)}
	case *Guard:
		w := &wireExpr{Kind: "guard", Else: exprToWire(n.Else)}
		for _, cl := range n.Clauses {
			w.Clauses = append(w.Clauses, wireClause{When: exprToWire(cl.When), Value: exprToWire(cl.Value)})
		}
		return w
	}
	return nil
}

func exprFromWire(w *wireExpr) (Expr, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: missing expression", ErrBlob)
	}
	switch w.Kind {
	case "lit":
		return &Literal{Value: w.Value}, nil
	case "var":
		return &VarRef{Name: w.Name}, nil
	case "bin":
		a, err := exprFromWire(w.A)
		if err != nil {
			return nil, err
		}
		b, err := exprFromWire(w.B)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: OpKind(w.Op), A: a, B: b}, nil
	case "guard":
		g := &Guard{}
		for _, cl := range w.Clauses {
			when, err := exprFromWire(cl.When)
			if err != nil {
				return nil, err
			}
			value, err := exprFromWire(cl.Value)
			if err != nil {
				return nil, err
			}
			g.Clauses = append(g.Clauses, GuardClause{When: when, Value: value})
		}
		var err error
		if g.Else, err = exprFromWire(w.Else); err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: unknown expression kind %q", ErrBlob, w.Kind)
}
