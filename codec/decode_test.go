// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-schema/payload-codec/schema"
)

const envSensorYAML = `
name: env_sensor
endian: big
fields:
  - name: temperature
    type: s16
    div: 100
    valid_range: [-40, 85]
  - name: humidity
    type: u8
    mult: 0.5
  - name: battery_mv
    type: u16
  - name: status
    type: u8
    lookup:
      0: ok
      1: low_battery
`

func mustParse(t *testing.T, text string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(text)
	require.NoError(t, err)
	return s
}

func TestDecodeEnvSensor(t *testing.T) {
	s := mustParse(t, envSensorYAML)

	res := Decode(s, []byte{0x09, 0x29, 0x82, 0x0C, 0xE4, 0x00})
	require.NoError(t, res.Err())
	assert.Equal(t, 6, res.Consumed)
	assert.Empty(t, res.Warnings)

	temp, ok := res.Float("temperature")
	require.True(t, ok)
	assert.InDelta(t, 23.45, temp, 1e-9)

	hum, _ := res.Float("humidity")
	assert.Equal(t, 65.0, hum)

	batt, _ := res.Float("battery_mv")
	assert.Equal(t, 3300.0, batt)

	status, _ := res.Get("status")
	assert.Equal(t, "ok", status)

	// Output order mirrors declaration order.
	assert.Equal(t, []string{"temperature", "humidity", "battery_mv", "status"},
		res.Data.Keys())

	assert.Equal(t, QualityInRange, res.Quality["temperature"])
}

func TestDecodeEnvSensorColdDry(t *testing.T) {
	s := mustParse(t, envSensorYAML)

	res := Decode(s, []byte{0xFE, 0x0C, 0x14, 0x0B, 0xB8, 0x01})
	require.NoError(t, res.Err())

	temp, _ := res.Float("temperature")
	assert.InDelta(t, -5.0, temp, 1e-9)
	hum, _ := res.Float("humidity")
	assert.Equal(t, 10.0, hum)
	batt, _ := res.Float("battery_mv")
	assert.Equal(t, 3000.0, batt)
	status, _ := res.Get("status")
	assert.Equal(t, "low_battery", status)
}

func TestDecodeQualityOutOfRange(t *testing.T) {
	s := mustParse(t, envSensorYAML)

	// 0x2EE0 = 12000 raw = 120.0 degrees, above the declared range.
	res := Decode(s, []byte{0x2E, 0xE0, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, res.Err())
	assert.Equal(t, QualityOutOfRange, res.Quality["temperature"])

	// The value itself is reported untouched.
	temp, _ := res.Float("temperature")
	assert.InDelta(t, 120.0, temp, 1e-9)
}

func TestDecodeUnderrunPartial(t *testing.T) {
	s := mustParse(t, envSensorYAML)

	res := Decode(s, []byte{0x09, 0x29, 0x82})
	require.ErrorIs(t, res.Err(), ErrBufferUnderrun)
	assert.Equal(t, 3, res.Consumed)

	// Fields decoded before the underrun are retained.
	temp, ok := res.Float("temperature")
	require.True(t, ok)
	assert.InDelta(t, 23.45, temp, 1e-9)
	hum, ok := res.Float("humidity")
	require.True(t, ok)
	assert.Equal(t, 65.0, hum)
	_, ok = res.Get("battery_mv")
	assert.False(t, ok)
}

func TestDecodeEmptyPayload(t *testing.T) {
	s := mustParse(t, envSensorYAML)

	res := Decode(s, nil)
	require.ErrorIs(t, res.Err(), ErrBufferUnderrun)
	assert.Equal(t, 0, res.Consumed)
	assert.Empty(t, res.Data.Keys())
}

func TestDecodeEndianness(t *testing.T) {
	s := mustParse(t, `
name: little
endian: little
fields:
  - name: a
    type: u16
  - name: b
    type: u16
    endian: big
`)

	res := Decode(s, []byte{0x00, 0x01, 0x00, 0x01})
	require.NoError(t, res.Err())
	a, _ := res.Float("a")
	assert.Equal(t, 256.0, a)
	b, _ := res.Float("b")
	assert.Equal(t, 1.0, b)
}

func TestDecodePadding(t *testing.T) {
	s := mustParse(t, `
name: padded
fields:
  - name: a
    type: u8
  - type: skip
    length: 2
  - name: b
    type: u8
`)

	res := Decode(s, []byte{0x01, 0xAA, 0xBB, 0x02})
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"a", "b"}, res.Data.Keys())
	b, _ := res.Float("b")
	assert.Equal(t, 2.0, b)
	assert.Equal(t, 4, res.Consumed)
}

func TestDecodeByteGroup(t *testing.T) {
	s := mustParse(t, `
name: bits
fields:
  - byte_group:
      - name: low
        bit_offset: 0
        bits: 2
      - name: mid
        bit_offset: 4
        bits: 2
      - name: high
        bit_offset: 6
        bits: 2
  - name: after
    type: u8
`)

	res := Decode(s, []byte{0xB4, 0x07})
	require.NoError(t, res.Err())

	low, _ := res.Float("low")
	assert.Equal(t, 0.0, low)
	mid, _ := res.Float("mid")
	assert.Equal(t, 3.0, mid)
	high, _ := res.Float("high")
	assert.Equal(t, 2.0, high)

	// The group consumes exactly one byte.
	after, _ := res.Float("after")
	assert.Equal(t, 7.0, after)
	assert.Equal(t, 2, res.Consumed)
}

func TestDecodeComputed(t *testing.T) {
	s := mustParse(t, `
name: computed
fields:
  - name: raw
    type: u8
  - name: doubled
    type: compute
    compute:
      op: mul
      a: $raw
      b: 2
`)

	res := Decode(s, []byte{0x05})
	require.NoError(t, res.Err())
	doubled, _ := res.Float("doubled")
	assert.Equal(t, 10.0, doubled)
	// Computed fields consume no payload bytes.
	assert.Equal(t, 1, res.Consumed)
}

func TestDecodeGuard(t *testing.T) {
	s := mustParse(t, `
name: clamped
fields:
  - name: raw
    type: u8
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

	res := Decode(s, []byte{0xFF})
	require.NoError(t, res.Err())
	v, _ := res.Float("clamped")
	assert.Equal(t, 100.0, v)

	res = Decode(s, []byte{0x05})
	v, _ = res.Float("clamped")
	assert.Equal(t, 5.0, v)
}

func TestDecodeSwitch(t *testing.T) {
	s := mustParse(t, `
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
  - name: crc
    type: u8
`)

	res := Decode(s, []byte{0x01, 0xFB, 0x99})
	require.NoError(t, res.Err())
	temp, _ := res.Float("temperature")
	assert.Equal(t, -5.0, temp)

	res = Decode(s, []byte{0x03, 0x42, 0x99})
	hum, _ := res.Float("humidity")
	assert.Equal(t, 66.0, hum)

	res = Decode(s, []byte{0x0F, 0x0B, 0xB8, 0x99})
	batt, _ := res.Float("battery")
	assert.Equal(t, 3000.0, batt)
}

func TestDecodeSwitchNoMatch(t *testing.T) {
	s := mustParse(t, `
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
  - name: crc
    type: u8
`)

	// Unmatched discriminant: warn and keep decoding the remainder.
	res := Decode(s, []byte{0x63, 0x07})
	require.NoError(t, res.Err())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no matching case")

	_, ok := res.Get("temperature")
	assert.False(t, ok)
	crc, _ := res.Float("crc")
	assert.Equal(t, 7.0, crc)
}

func TestDecodeSwitchDefault(t *testing.T) {
	s := mustParse(t, `
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
      - default: true
        fields:
          - name: unknown_body
            type: u8
`)

	res := Decode(s, []byte{0x63, 0x2A})
	require.NoError(t, res.Err())
	assert.Empty(t, res.Warnings)
	v, _ := res.Float("unknown_body")
	assert.Equal(t, 42.0, v)
}

const flaggedYAML = `
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
        - bit: 2
          fields:
            - name: humidity
              type: u8
`

func TestDecodeFlagged(t *testing.T) {
	s := mustParse(t, flaggedYAML)

	res := Decode(s, []byte{0x05, 0x14, 0x42})
	require.NoError(t, res.Err())
	temp, _ := res.Float("temperature")
	assert.Equal(t, 20.0, temp)
	hum, _ := res.Float("humidity")
	assert.Equal(t, 66.0, hum)
}

func TestDecodeFlaggedAbsence(t *testing.T) {
	s := mustParse(t, flaggedYAML)

	// Bit 2 clear: nothing under that group may appear in the output.
	res := Decode(s, []byte{0x01, 0x14})
	require.NoError(t, res.Err())
	temp, _ := res.Float("temperature")
	assert.Equal(t, 20.0, temp)
	_, ok := res.Get("humidity")
	assert.False(t, ok)

	// All bits clear: only the flags field itself decodes.
	res = Decode(s, []byte{0x00})
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"flags"}, res.Data.Keys())
}

const tlvYAML = `
name: channels
fields:
  - tlv:
      tag_size: 1
      cases:
        "1":
          - name: temperature
            type: s16
            div: 10
        "2":
          - name: humidity
            type: u8
`

func TestDecodeTLV(t *testing.T) {
	s := mustParse(t, tlvYAML)

	res := Decode(s, []byte{0x01, 0x00, 0xFA, 0x02, 0x55})
	require.NoError(t, res.Err())
	temp, _ := res.Float("temperature")
	assert.Equal(t, 25.0, temp)
	hum, _ := res.Float("humidity")
	assert.Equal(t, 85.0, hum)
	assert.Equal(t, 5, res.Consumed)
}

func TestDecodeTLVRepeatedTags(t *testing.T) {
	s := mustParse(t, tlvYAML)

	// The same tag twice merges into an array, preserving order.
	res := Decode(s, []byte{0x01, 0x00, 0x0A, 0x01, 0x00, 0x14})
	require.NoError(t, res.Err())
	v, ok := res.Get("temperature")
	require.True(t, ok)
	assert.Equal(t, []any{1.0, 2.0}, v)
}

func TestDecodeTLVUnknownTerminates(t *testing.T) {
	s := mustParse(t, tlvYAML)

	// An unknown tag is the designed end of the stream, not an error.
	res := Decode(s, []byte{0x01, 0x00, 0x0A, 0x63, 0xFF, 0xFF})
	require.NoError(t, res.Err())
	assert.Empty(t, res.Warnings)
	temp, _ := res.Float("temperature")
	assert.Equal(t, 1.0, temp)
}

func TestDecodeTLVTruncatedBody(t *testing.T) {
	s := mustParse(t, tlvYAML)

	// A known tag with a truncated body is a real underrun.
	res := Decode(s, []byte{0x01, 0x00})
	require.ErrorIs(t, res.Err(), ErrBufferUnderrun)
}

func TestDecodeTLVUnknownSkip(t *testing.T) {
	s := mustParse(t, `
name: ltv
fields:
  - tlv:
      tag_size: 1
      length_size: 1
      unknown: skip
      cases:
        "1":
          - name: temperature
            type: u8
`)

	res := Decode(s, []byte{0x63, 0x02, 0xAA, 0xBB, 0x01, 0x01, 0x14})
	require.NoError(t, res.Err())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "unknown")
	temp, _ := res.Float("temperature")
	assert.Equal(t, 20.0, temp)
}

func TestDecodeTLVUnknownError(t *testing.T) {
	s := mustParse(t, `
name: strict
fields:
  - tlv:
      tag_size: 1
      unknown: error
      cases:
        "1":
          - name: temperature
            type: u8
`)

	res := Decode(s, []byte{0x63, 0x00})
	require.ErrorIs(t, res.Err(), ErrNoMatchingCase)
}

func TestDecodeTLVTypeWord(t *testing.T) {
	s := mustParse(t, `
name: typed
fields:
  - tlv:
      tag_size: 1
      type_size: 1
      cases:
        "[5, 1]":
          - name: a
            type: u8
        "5,2":
          - name: b
            type: u8
`)

	res := Decode(s, []byte{0x05, 0x01, 0x0A, 0x05, 0x02, 0x0B})
	require.NoError(t, res.Err())
	a, _ := res.Float("a")
	assert.Equal(t, 10.0, a)
	b, _ := res.Float("b")
	assert.Equal(t, 11.0, b)
}

// nestedSwitches builds a schema whose switch bodies nest depth levels
// deep, every level matching discriminant 0.
func nestedSwitches(depth int) *schema.Schema {
	var body []schema.Field
	for i := 0; i < depth; i++ {
		body = []schema.Field{&schema.Switch{
			On:    "d",
			Cases: []schema.SwitchCase{{Match: []int64{0}, Fields: body}},
		}}
	}
	fields := append([]schema.Field{
		&schema.Scalar{Name: "d", Kind: schema.KindUint, Width: 1},
	}, body...)
	return &schema.Schema{Name: "nested", Endian: schema.EndianBig, Fields: fields}
}

func TestDecodeRecursionLimit(t *testing.T) {
	deep := nestedSwitches(40)
	require.NoError(t, deep.Validate())

	res := Decode(deep, []byte{0x00})
	require.ErrorIs(t, res.Err(), ErrRecursionLimitExceeded)

	// The discriminant decoded before the abort is retained.
	d, ok := res.Float("d")
	require.True(t, ok)
	assert.Equal(t, 0.0, d)

	shallow := nestedSwitches(10)
	require.NoError(t, shallow.Validate())
	res = Decode(shallow, []byte{0x00})
	require.NoError(t, res.Err())

	res = DecodeWithLimits(shallow, []byte{0x00}, Limits{MaxDepth: 8})
	require.ErrorIs(t, res.Err(), ErrRecursionLimitExceeded)
}
