// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import "errors"

// Error taxonomy. Every failure surfaced by Decode/Encode wraps one of
// these sentinels, so callers can classify with errors.Is. Nothing in
// this package panics on input: structural faults abort the current
// call and come back through the result's error list with whatever
// partial output was produced.
var (
	// ErrBufferUnderrun indicates fewer bytes remained than a field or
	// header needed. Out-of-range reads never substitute zero bytes.
	ErrBufferUnderrun = errors.New("codec: buffer underrun")

	// ErrComputeReferenceMissing indicates a compute/guard expression
	// or a structure discriminant referenced an unbound variable.
	ErrComputeReferenceMissing = errors.New("codec: compute reference missing")

	// ErrRecursionLimitExceeded indicates nested conditional depth
	// exceeded the configured bound.
	ErrRecursionLimitExceeded = errors.New("codec: recursion limit exceeded")

	// ErrNoMatchingCase indicates a switch discriminant matched no case
	// and no default was declared. On decode this is a warning, not an
	// abort; a TLV with unknown=error promotes it to an abort.
	ErrNoMatchingCase = errors.New("codec: no matching case")

	// ErrAmbiguousCase indicates encode-time case selection matched
	// zero or more than one case.
	ErrAmbiguousCase = errors.New("codec: ambiguous case selection")

	// ErrOverflow indicates an encode-time value does not fit the
	// target field's bit width after inverse transform.
	ErrOverflow = errors.New("codec: value overflows field width")

	// ErrNotInvertible indicates an encode-time transform cannot be
	// reversed (mod/idiv stages, or a polynomial of degree above 1).
	ErrNotInvertible = errors.New("codec: transform not invertible")

	// ErrDivisionByZero indicates an expression divided by zero at
	// evaluation time.
	ErrDivisionByZero = errors.New("codec: division by zero")

	// ErrBadSchema indicates the IR contained a variant the engine does
	// not know. A validated schema never triggers this.
	ErrBadSchema = errors.New("codec: malformed schema IR")
)
