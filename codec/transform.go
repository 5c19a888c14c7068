// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"
	"math"

	"github.com/lorawan-schema/payload-codec/schema"
)

// Quality classification values attached to the side-channel quality
// map when a field declares a valid_range.
const (
	QualityInRange    = "in_range"
	QualityOutOfRange = "out_of_range"
)

// applyTransform runs the decode-direction pipeline on a raw numeric
// value: polynomial, linear ops in declared order, lookup, rounding.
// The returned value is a string when a lookup entry matched, otherwise
// the numeric result. The numeric result is also returned separately
// for quality classification and variable binding.
func applyTransform(t *schema.Transform, raw float64) (out any, numeric float64) {
	v := raw
	if t == nil {
		return v, v
	}
	if len(t.Polynomial) > 0 {
		v = evalPolynomial(t.Polynomial, v)
	}
	for _, op := range t.Ops {
		v = applyOp(op.Op, v, op.Operand)
	}
	for _, e := range t.Lookup {
		if v == float64(e.Key) {
			return e.Value, v
		}
	}
	if t.RoundDecimals != nil {
		v = roundDecimals(v, *t.RoundDecimals)
	}
	return v, v
}

// applyOp applies one linear transform operation. mod and idiv use
// floored-division semantics: idiv(a,b) = floor(a/b) and
// mod(a,b) = a - b*floor(a/b), so the mod result's sign follows the
// divisor. Division by zero cannot occur on validated schemas.
func applyOp(op schema.OpKind, a, b float64) float64 {
	switch op {
	case schema.OpAdd:
		return a + b
	case schema.OpSub:
		return a - b
	case schema.OpMul:
		return a * b
	case schema.OpDiv:
		if b == 0 {
			return 0
		}
		return a / b
	case schema.OpMod:
		if b == 0 {
			return 0
		}
		return a - b*math.Floor(a/b)
	case schema.OpIdiv:
		if b == 0 {
			return 0
		}
		return math.Floor(a / b)
	}
	return a
}

// evalPolynomial evaluates c0 + c1*x + c2*x^2 + ... by Horner's method.
func evalPolynomial(coeffs []float64, x float64) float64 {
	v := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		v = v*x + coeffs[i]
	}
	return v
}

func roundDecimals(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// classifyQuality compares the final numeric value against the field's
// valid_range, if any. The value itself is never altered.
func classifyQuality(sem *schema.Semantics, v float64) (string, bool) {
	if sem == nil || sem.ValidRange == nil {
		return "", false
	}
	if v < sem.ValidRange.Min || v > sem.ValidRange.Max {
		return QualityOutOfRange, true
	}
	return QualityInRange, true
}

// invertTransform solves the pipeline for the raw value given the final
// value: lookup inverts value-to-key (first match wins on duplicates),
// the linear ops run in reverse order with inverse operations, and the
// polynomial inverts only for degree <= 1. mod and idiv stages lose
// information and fail with ErrNotInvertible.
func invertTransform(t *schema.Transform, value any, field string) (float64, error) {
	if t == nil {
		v, ok := toFloat(value)
		if !ok {
			return 0, fmt.Errorf("%w: field %q: value %v is not numeric",
				ErrNotInvertible, field, value)
		}
		return v, nil
	}

	var v float64
	if s, ok := value.(string); ok {
		found := false
		for _, e := range t.Lookup {
			if e.Value == s {
				v = float64(e.Key)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: field %q: %q has no lookup entry",
				ErrNotInvertible, field, s)
		}
	} else if f, ok := toFloat(value); ok {
		v = f
	} else {
		return 0, fmt.Errorf("%w: field %q: value %v is not numeric",
			ErrNotInvertible, field, value)
	}

	for i := len(t.Ops) - 1; i >= 0; i-- {
		op := t.Ops[i]
		switch op.Op {
		case schema.OpAdd:
			v -= op.Operand
		case schema.OpSub:
			v += op.Operand
		case schema.OpMul:
			if op.Operand == 0 {
				return 0, fmt.Errorf("%w: field %q: mult by zero", ErrNotInvertible, field)
			}
			v /= op.Operand
		case schema.OpDiv:
			v *= op.Operand
		case schema.OpMod, schema.OpIdiv:
			return 0, fmt.Errorf("%w: field %q: %s stage", ErrNotInvertible, field, op.Op)
		}
	}

	switch len(t.Polynomial) {
	case 0:
	case 2:
		c0, c1 := t.Polynomial[0], t.Polynomial[1]
		if c1 == 0 {
			return 0, fmt.Errorf("%w: field %q: polynomial with zero slope",
				ErrNotInvertible, field)
		}
		v = (v - c0) / c1
	default:
		return 0, fmt.Errorf("%w: field %q: polynomial of degree %d",
			ErrNotInvertible, field, len(t.Polynomial)-1)
	}
	return v, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
