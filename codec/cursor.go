// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package codec executes a resolved schema against a byte payload:
// decode walks the ordered field list producing a declaration-ordered
// value map, encode runs the same walk in reverse. Both are pure
// functions of (schema, input) and are safe to call concurrently
// against a shared schema.
package codec

import (
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/lorawan-schema/payload-codec/schema"
)

// Cursor reads sized integers, IEEE floats and bit ranges from a
// bounded buffer. Every read that would pass the buffer end fails with
// ErrBufferUnderrun; nothing is zero-padded.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor wraps payload without copying it.
func NewCursor(payload []byte) *Cursor {
	return &Cursor{data: payload}
}

// Pos returns the current byte offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// read consumes n bytes.
func (c *Cursor) read(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrBufferUnderrun, n, c.pos, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// PeekByte returns the byte at the cursor without consuming it.
func (c *Cursor) PeekByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d, have 0", ErrBufferUnderrun, c.pos)
	}
	return c.data[c.pos], nil
}

// Skip consumes n bytes without interpreting them.
func (c *Cursor) Skip(n int) error {
	_, err := c.read(n)
	return err
}

// ReadUint reads a width-byte unsigned integer.
func (c *Cursor) ReadUint(width int, endian schema.Endian) (uint64, error) {
	b, err := c.read(width)
	if err != nil {
		return 0, err
	}
	return packUint(b, endian), nil
}

// ReadSint reads a width-byte two's-complement integer, sign-extending
// from the field's bit width.
func (c *Cursor) ReadSint(width int, endian schema.Endian) (int64, error) {
	u, err := c.ReadUint(width, endian)
	if err != nil {
		return 0, err
	}
	return signExtend(u, width), nil
}

// ReadFloat reads an IEEE 754 binary16/32/64 value.
func (c *Cursor) ReadFloat(width int, endian schema.Endian) (float64, error) {
	u, err := c.ReadUint(width, endian)
	if err != nil {
		return 0, err
	}
	switch width {
	case 2:
		return float64(float16.Frombits(uint16(u)).Float32()), nil
	case 4:
		return float64(math.Float32frombits(uint32(u))), nil
	case 8:
		return math.Float64frombits(u), nil
	}
	return 0, fmt.Errorf("%w: float width %d", ErrBadSchema, width)
}

func packUint(b []byte, endian schema.Endian) uint64 {
	var v uint64
	if endian == schema.EndianLittle {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	} else {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
	}
	return v
}

func signExtend(u uint64, width int) int64 {
	bits := uint(width * 8)
	if bits >= 64 {
		return int64(u)
	}
	sign := uint64(1) << (bits - 1)
	if u >= sign {
		return int64(u) - int64(1)<<bits
	}
	return int64(u)
}

// ExtractBits returns the bitWidth-wide range at bitOffset within b.
// Bit 0 is the least significant bit: extracting offset 4 width 2 from
// 0b10110100 yields 0b11.
func ExtractBits(b byte, bitOffset, bitWidth int) uint8 {
	mask := byte(1<<bitWidth - 1)
	return (b >> bitOffset) & mask
}

// InsertBits writes val into the bitWidth-wide range at bitOffset of b.
func InsertBits(b byte, bitOffset, bitWidth int, val uint8) byte {
	mask := byte(1<<bitWidth-1) << bitOffset
	return b&^mask | (val<<bitOffset)&mask
}

// Buffer is the write-side mirror of Cursor. Integer writes round their
// value to the nearest integer before packing and fail with ErrOverflow
// when the rounded value does not fit the field width.
type Buffer struct {
	buf []byte
}

// Bytes returns the accumulated output.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// WriteByte appends one raw byte.
func (b *Buffer) WriteByte(v byte) error {
	b.buf = append(b.buf, v)
	return nil
}

// WriteZeros appends n zero bytes.
func (b *Buffer) WriteZeros(n int) {
	b.buf = append(b.buf, make([]byte, n)...)
}

// WriteUint rounds v to the nearest integer and packs it into width
// bytes.
func (b *Buffer) WriteUint(v float64, width int, endian schema.Endian) error {
	r := math.Round(v)
	max := math.Ldexp(1, width*8) // 2^(8w), exact for width <= 8
	if r < 0 || r >= max {
		return fmt.Errorf("%w: %v does not fit u%d", ErrOverflow, v, width*8)
	}
	b.appendUint(uint64(r), width, endian)
	return nil
}

// WriteSint rounds v to the nearest integer and packs its
// two's-complement representation into width bytes.
func (b *Buffer) WriteSint(v float64, width int, endian schema.Endian) error {
	r := math.Round(v)
	lim := math.Ldexp(1, width*8-1)
	if r < -lim || r >= lim {
		return fmt.Errorf("%w: %v does not fit s%d", ErrOverflow, v, width*8)
	}
	i := int64(r)
	if i < 0 && width < 8 {
		i += int64(1) << uint(width*8)
	}
	b.appendUint(uint64(i), width, endian)
	return nil
}

// WriteFloat packs an IEEE 754 binary16/32/64 value.
func (b *Buffer) WriteFloat(v float64, width int, endian schema.Endian) error {
	switch width {
	case 2:
		b.appendUint(uint64(float16.Fromfloat32(float32(v)).Bits()), 2, endian)
	case 4:
		b.appendUint(uint64(math.Float32bits(float32(v))), 4, endian)
	case 8:
		b.appendUint(math.Float64bits(v), 8, endian)
	default:
		return fmt.Errorf("%w: float width %d", ErrBadSchema, width)
	}
	return nil
}

// PatchUint overwrites width bytes at pos with val. Used to back-patch
// flags and TLV length words after their dependents are serialized.
func (b *Buffer) PatchUint(pos int, val uint64, width int, endian schema.Endian) error {
	if pos < 0 || pos+width > len(b.buf) {
		return fmt.Errorf("%w: patch [%d,%d) outside buffer of %d",
			ErrOverflow, pos, pos+width, len(b.buf))
	}
	if endian == schema.EndianLittle {
		for i := 0; i < width; i++ {
			b.buf[pos+i] = byte(val >> (8 * i))
		}
	} else {
		for i := width - 1; i >= 0; i-- {
			b.buf[pos+i] = byte(val)
			val >>= 8
		}
	}
	return nil
}

func (b *Buffer) appendUint(val uint64, width int, endian schema.Endian) {
	if endian == schema.EndianLittle {
		for i := 0; i < width; i++ {
			b.buf = append(b.buf, byte(val>>(8*i)))
		}
	} else {
		for i := width - 1; i >= 0; i-- {
			b.buf = append(b.buf, byte(val>>(8*i)))
		}
	}
}
