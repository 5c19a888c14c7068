// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Fuzz targets for the decode engine.
//
// Run with:
//   go test -fuzz=FuzzDecode -fuzztime=60s
//   go test -fuzz=FuzzDecodeEncode -fuzztime=60s

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lorawan-schema/payload-codec/schema"
)

const fuzzSchemaYAML = `
name: fuzz_target
endian: big
fields:
  - name: temperature
    type: s16
    div: 100
  - name: humidity
    type: u8
    mult: 0.5
  - byte_group:
      - name: mode
        bit_offset: 0
        bits: 3
      - name: alarm
        bit_offset: 7
        bits: 1
  - name: body
    type: match
    on: $mode
    cases:
      - case: 0
        fields:
          - name: battery_mv
            type: u16
      - case: 1
        fields:
          - name: extras
            type: u8
  - name: opts
    type: u8
  - flagged:
      field: $opts
      groups:
        - bit: 0
          fields:
            - name: co2
              type: u16
  - tlv:
      tag_size: 1
      cases:
        "1":
          - name: lux
            type: u16
`

// FuzzDecode asserts the never-crash contract: any byte sequence of
// any length yields a structured result.
func FuzzDecode(f *testing.F) {
	s, err := schema.Parse(fuzzSchemaYAML)
	if err != nil {
		f.Fatal(err)
	}

	f.Add([]byte{})
	f.Add([]byte{0x09, 0x29, 0x82, 0x00, 0x0C, 0xE4, 0x00})
	f.Add([]byte{0xFE, 0x0C, 0x14, 0x01, 0x2A, 0x01, 0x01, 0x02, 0x03})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		res := Decode(s, data)
		if res == nil {
			t.Fatal("decode returned nil result")
		}
		if res.Data == nil {
			t.Fatal("decode returned nil data map")
		}
		if res.Consumed < 0 || res.Consumed > len(data) {
			t.Fatalf("consumed %d of %d bytes", res.Consumed, len(data))
		}
	})
}

// FuzzDecodeEncode asserts the round-trip property: values decoded
// without error re-encode and decode to the same values.
func FuzzDecodeEncode(f *testing.F) {
	s, err := schema.Parse(fuzzSchemaYAML)
	if err != nil {
		f.Fatal(err)
	}

	f.Add([]byte{0x09, 0x29, 0x82, 0x00, 0x0C, 0xE4, 0x00})
	f.Add([]byte{0x00, 0x64, 0x10, 0x01, 0x07, 0x00})
	f.Add([]byte{0x01, 0x02, 0x03, 0x80, 0x01, 0x01, 0x00, 0x42})

	f.Fuzz(func(t *testing.T, data []byte) {
		first := Decode(s, data)
		if first.Err() != nil {
			return
		}
		// Encode derives the flags value from group presence, so flag
		// bits that gate nothing are not preserved.
		if o, ok := first.Float("opts"); ok && uint64(o)&^uint64(1) != 0 {
			return
		}

		values := map[string]any{}
		for _, k := range first.Data.Keys() {
			v, _ := first.Data.Get(k)
			values[k] = v
		}
		enc := Encode(s, values)
		if enc.Err() != nil {
			// Encode may legitimately reject what decode tolerated
			// (e.g. an unmatched switch decoded with a warning).
			return
		}

		second := Decode(s, enc.Bytes)
		require.NoError(t, second.Err())
		for _, k := range first.Data.Keys() {
			a, _ := first.Data.Get(k)
			b, _ := second.Data.Get(k)
			require.Equal(t, a, b, "field %s after round trip", k)
		}
	})
}

// FuzzTLVTermination asserts the TLV loop bound: decode terminates on
// any input and never consumes more than the buffer holds.
func FuzzTLVTermination(f *testing.F) {
	s, err := schema.Parse(`
name: tlv_fuzz
fields:
  - tlv:
      tag_size: 1
      length_size: 1
      unknown: skip
      cases:
        "1":
          - name: a
            type: u8
        "2":
          - name: b
            type: u16
`)
	if err != nil {
		f.Fatal(err)
	}

	f.Add([]byte{0x01, 0x01, 0x05})
	f.Add([]byte{0x63, 0xFF})
	f.Add([]byte{0x01, 0x01, 0x05, 0x02, 0x02, 0x01, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		res := Decode(s, data)
		if res.Consumed > len(data) {
			t.Fatalf("consumed %d of %d bytes", res.Consumed, len(data))
		}
	})
}
