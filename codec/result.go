// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"github.com/Velocidex/ordereddict"
)

// Result is the structured outcome of a decode call, shaped for the
// TS013 {data, warnings, errors} payload-codec convention. Data is
// always non-nil and preserves schema declaration order; on a
// structural fault it holds whatever was decoded before the abort.
type Result struct {
	// Data maps field names to decoded, transformed values.
	Data *ordereddict.Dict
	// Quality maps field names with a valid_range to "in_range" or
	// "out_of_range". Nil when no field declares a range.
	Quality map[string]string
	// Consumed is the number of payload bytes the walk consumed.
	Consumed int
	// Warnings are recoverable conditions: unmatched switch cases,
	// skipped unknown TLV records.
	Warnings []string
	// Errors are the structural faults that aborted the walk, each
	// wrapping one of the package sentinel errors.
	Errors []error
}

// Err returns the first structural error, or nil when the decode
// completed cleanly.
func (r *Result) Err() error {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return nil
}

// Get returns a decoded field value by name.
func (r *Result) Get(name string) (any, bool) {
	return r.Data.Get(name)
}

// Float returns a decoded numeric field by name.
func (r *Result) Float(name string) (float64, bool) {
	v, ok := r.Data.Get(name)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// EncodeResult is the structured outcome of an encode call. On a
// structural fault Bytes holds the bytes serialized before the abort.
type EncodeResult struct {
	Bytes    []byte
	Warnings []string
	Errors   []error
}

// Err returns the first structural error, or nil when the encode
// completed cleanly.
func (r *EncodeResult) Err() error {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return nil
}
