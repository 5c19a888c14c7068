// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalars(t *testing.T) {
	s, err := Parse(`
name: scalars
version: 2
description: every scalar type
endian: little
fields:
  - name: a
    type: u8
  - name: b
    type: s16
    endian: big
  - name: c
    type: u24
  - name: d
    type: f32
  - name: e
    type: i16
`)
	require.NoError(t, err)
	assert.Equal(t, "scalars", s.Name)
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, EndianLittle, s.Endian)
	require.Len(t, s.Fields, 5)

	a := s.Fields[0].(*Scalar)
	assert.Equal(t, KindUint, a.Kind)
	assert.Equal(t, 1, a.Width)

	b := s.Fields[1].(*Scalar)
	assert.Equal(t, KindInt, b.Kind)
	assert.Equal(t, 2, b.Width)
	assert.Equal(t, EndianBig, b.Endian)

	c := s.Fields[2].(*Scalar)
	assert.Equal(t, 3, c.Width)

	d := s.Fields[3].(*Scalar)
	assert.Equal(t, KindFloat, d.Kind)
	assert.Equal(t, 4, d.Width)

	e := s.Fields[4].(*Scalar)
	assert.Equal(t, KindInt, e.Kind)
}

func TestParseDefaultEndian(t *testing.T) {
	s, err := Parse("name: x\nfields:\n  - name: a\n    type: u8\n")
	require.NoError(t, err)
	assert.Equal(t, EndianBig, s.Endian)
}

func TestParseTransformOrder(t *testing.T) {
	// Shortcut op keys apply in document order.
	s, err := Parse(`
name: order
fields:
  - name: a
    type: u8
    add: 10
    div: 2
`)
	require.NoError(t, err)
	tr := s.Fields[0].(*Scalar).Transform
	require.NotNil(t, tr)
	require.Len(t, tr.Ops, 2)
	assert.Equal(t, OpAdd, tr.Ops[0].Op)
	assert.Equal(t, 10.0, tr.Ops[0].Operand)
	assert.Equal(t, OpDiv, tr.Ops[1].Op)

	// Reversed document order reverses the pipeline.
	s, err = Parse(`
name: order
fields:
  - name: a
    type: u8
    div: 2
    add: 10
`)
	require.NoError(t, err)
	tr = s.Fields[0].(*Scalar).Transform
	assert.Equal(t, OpDiv, tr.Ops[0].Op)
	assert.Equal(t, OpAdd, tr.Ops[1].Op)
}

func TestParseTransformStages(t *testing.T) {
	s, err := Parse(`
name: stages
fields:
  - name: a
    type: u16
    transform:
      - mult: 0.1
      - sub: 40
    polynomial: [1, 2, 0.5]
    round: 2
    lookup:
      0: "off"
      1: "on"
`)
	require.NoError(t, err)
	tr := s.Fields[0].(*Scalar).Transform
	require.NotNil(t, tr)
	require.Len(t, tr.Ops, 2)
	assert.Equal(t, OpMul, tr.Ops[0].Op)
	assert.Equal(t, OpSub, tr.Ops[1].Op)
	assert.Equal(t, []float64{1, 2, 0.5}, tr.Polynomial)
	require.NotNil(t, tr.RoundDecimals)
	assert.Equal(t, 2, *tr.RoundDecimals)
	assert.Equal(t, []LookupEntry{{Key: 0, Value: "off"}, {Key: 1, Value: "on"}}, tr.Lookup)
}

func TestParseSemantics(t *testing.T) {
	s, err := Parse(`
name: sem
fields:
  - name: temperature
    type: s16
    div: 100
    valid_range: [-40, 85]
    resolution: 0.01
    unece_unit: CEL
    ipso: 3303
`)
	require.NoError(t, err)
	sem := s.Fields[0].(*Scalar).Semantics
	require.NotNil(t, sem)
	require.NotNil(t, sem.ValidRange)
	assert.Equal(t, -40.0, sem.ValidRange.Min)
	assert.Equal(t, 85.0, sem.ValidRange.Max)
	assert.Equal(t, 0.01, sem.Resolution)
	assert.Equal(t, "CEL", sem.UneceUnit)
	assert.Equal(t, 3303, sem.IPSO)
}

func TestParseRef(t *testing.T) {
	s, err := Parse(`
name: refs
defs:
  temp:
    name: temperature
    type: s16
    div: 100
fields:
  - $ref: temp
  - $ref: temp
    name: temperature_2
`)
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)

	first := s.Fields[0].(*Scalar)
	assert.Equal(t, "temperature", first.Name)
	assert.Equal(t, 2, first.Width)
	require.NotNil(t, first.Transform)

	// An override replaces the referenced key.
	second := s.Fields[1].(*Scalar)
	assert.Equal(t, "temperature_2", second.Name)
	assert.Equal(t, KindInt, second.Kind)
}

func TestParseRefErrors(t *testing.T) {
	_, err := Parse(`
name: refs
fields:
  - $ref: missing
`)
	require.ErrorIs(t, err, ErrParse)

	// A reference cycle must fail, not hang.
	_, err = Parse(`
name: refs
defs:
  a:
    $ref: b
  b:
    $ref: a
fields:
  - $ref: a
`)
	require.ErrorIs(t, err, ErrParse)
}

func TestParseJSONC(t *testing.T) {
	s, err := Parse(`{
  // environmental sensor
  "name": "env_sensor",
  "fields": [
    {"name": "temperature", "type": "s16", "div": 100},
    {"name": "humidity", "type": "u8", "mult": 0.5},
  ]
}`)
	require.NoError(t, err)
	assert.Equal(t, "env_sensor", s.Name)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "humidity", s.Fields[1].(*Scalar).Name)
}

func TestParseByteGroup(t *testing.T) {
	s, err := Parse(`
name: bits
fields:
  - byte_group:
      - name: mode
        bit_offset: 0
        bits: 3
      - name: alarm
        bit_offset: 7
`)
	require.NoError(t, err)
	g := s.Fields[0].(*ByteGroup)
	require.Len(t, g.Members, 2)
	assert.Equal(t, 3, g.Members[0].BitWidth)
	// bits defaults to one.
	assert.Equal(t, 1, g.Members[1].BitWidth)
	assert.Equal(t, 7, g.Members[1].BitOffset)
}

func TestParseComputedAndGuard(t *testing.T) {
	s, err := Parse(`
name: comp
fields:
  - name: raw
    type: u8
  - name: scaled
    type: compute
    compute:
      op: mul
      a: $raw
      b: 0.5
  - name: clamped
    type: number
    ref: $raw
    guard:
      when:
        - field: $raw
          gt: 100
          value: 100
      else: $raw
`)
	require.NoError(t, err)

	scaled := s.Fields[1].(*Computed)
	bin := scaled.Expr.(*BinaryOp)
	assert.Equal(t, OpMul, bin.Op)
	assert.Equal(t, "raw", bin.A.(*VarRef).Name)
	assert.Equal(t, 0.5, bin.B.(*Literal).Value)

	clamped := s.Fields[2].(*Computed)
	g := clamped.Expr.(*Guard)
	require.Len(t, g.Clauses, 1)
	when := g.Clauses[0].When.(*BinaryOp)
	assert.Equal(t, OpGt, when.Op)
	assert.Equal(t, 100.0, g.Clauses[0].Value.(*Literal).Value)
	assert.Equal(t, "raw", g.Else.(*VarRef).Name)
}

func TestParseMatch(t *testing.T) {
	s, err := Parse(`
name: multi
fields:
  - name: msg_type
    type: u8
  - name: body
    type: match
    on: $msg_type
    cases:
      - case: 1
        fields:
          - name: temperature
            type: s8
      - case: [2, 3]
        fields:
          - name: humidity
            type: u8
      - case: {min: 10, max: 20}
        fields:
          - name: battery
            type: u16
      - default: true
        fields:
          - name: rest
            type: u8
`)
	require.NoError(t, err)
	sw := s.Fields[1].(*Switch)
	assert.Equal(t, "msg_type", sw.On)
	require.Len(t, sw.Cases, 3)
	assert.Equal(t, []int64{1}, sw.Cases[0].Match)
	assert.Equal(t, []int64{2, 3}, sw.Cases[1].Match)
	require.NotNil(t, sw.Cases[2].Min)
	assert.Equal(t, int64(10), *sw.Cases[2].Min)
	assert.Equal(t, int64(20), *sw.Cases[2].Max)
	require.NotNil(t, sw.Default)
	assert.Len(t, sw.Default, 1)
}

func TestParseFlagged(t *testing.T) {
	s, err := Parse(`
name: optional
fields:
  - name: flags
    type: u8
  - flagged:
      field: $flags
      groups:
        - bit: 0
          fields:
            - name: temperature
              type: u8
        - bit: 5
          fields:
            - name: humidity
              type: u8
`)
	require.NoError(t, err)
	fl := s.Fields[1].(*Flagged)
	assert.Equal(t, "flags", fl.FlagsField)
	require.Len(t, fl.Groups, 2)
	assert.Equal(t, 0, fl.Groups[0].Bit)
	assert.Equal(t, 5, fl.Groups[1].Bit)
}

func TestParseTLV(t *testing.T) {
	s, err := Parse(`
name: channels
fields:
  - tlv:
      tag_size: 2
      type_size: 1
      length_size: 1
      unknown: skip
      cases:
        "5":
          - name: a
            type: u8
        "[6, 1]":
          - name: b
            type: u8
`)
	require.NoError(t, err)
	tlv := s.Fields[0].(*TLV)
	assert.Equal(t, 2, tlv.TagWidth)
	assert.Equal(t, 1, tlv.TypeWidth)
	assert.Equal(t, 1, tlv.LengthWidth)
	assert.Equal(t, UnknownSkip, tlv.Unknown)
	require.Len(t, tlv.Cases, 2)
	assert.Equal(t, uint64(5), tlv.Cases[0].Tag)
	assert.Nil(t, tlv.Cases[0].Type)
	require.NotNil(t, tlv.Cases[1].Type)
	assert.Equal(t, uint64(1), *tlv.Cases[1].Type)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown type", "name: x\nfields:\n  - name: a\n    type: q99\n"},
		{"unknown top-level key", "name: x\nbogus: 1\nfields: []\n"},
		{"fields not a list", "name: x\nfields: 7\n"},
		{"not yaml", "fields: [unclosed"},
		{"computed without expression", `
name: x
fields:
  - name: a
    type: compute
`},
		{"match without cases", `
name: x
fields:
  - name: a
    type: u8
  - type: match
    on: $a
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseRunsValidation(t *testing.T) {
	// A forward reference parses but fails validation.
	_, err := Parse(`
name: x
fields:
  - name: early
    type: compute
    ref: $late
  - name: late
    type: u8
`)
	require.ErrorIs(t, err, ErrInvalidSchema)
}
