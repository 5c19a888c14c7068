// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"
	"math"

	"github.com/lorawan-schema/payload-codec/schema"
)

// evalExpr evaluates a computed-field expression against the variables
// bound so far. Evaluation is side-effect free and total over any
// well-formed tree; referencing an unbound variable is an error, never
// a silent zero. Comparison and logical operators yield 0 or 1.
func evalExpr(e schema.Expr, vars map[string]float64) (float64, error) {
	switch n := e.(type) {
	case *schema.Literal:
		return n.Value, nil
	case *schema.VarRef:
		v, ok := vars[n.Name]
		if !ok {
			return 0, fmt.Errorf("%w: $%s", ErrComputeReferenceMissing, n.Name)
		}
		return v, nil
	case *schema.BinaryOp:
		a, err := evalExpr(n.A, vars)
		if err != nil {
			return 0, err
		}
		// Short-circuit the logical ops so a guard can probe one
		// variable before using another.
		switch n.Op {
		case schema.OpAnd:
			if a == 0 {
				return 0, nil
			}
			b, err := evalExpr(n.B, vars)
			if err != nil {
				return 0, err
			}
			return bool01(b != 0), nil
		case schema.OpOr:
			if a != 0 {
				return 1, nil
			}
			b, err := evalExpr(n.B, vars)
			if err != nil {
				return 0, err
			}
			return bool01(b != 0), nil
		}
		b, err := evalExpr(n.B, vars)
		if err != nil {
			return 0, err
		}
		return evalBinary(n.Op, a, b)
	case *schema.Guard:
		for _, cl := range n.Clauses {
			cond, err := evalExpr(cl.When, vars)
			if err != nil {
				return 0, err
			}
			if cond != 0 {
				return evalExpr(cl.Value, vars)
			}
		}
		return evalExpr(n.Else, vars)
	}
	return 0, fmt.Errorf("%w: unknown expression node %T", ErrBadSchema, e)
}

func evalBinary(op schema.OpKind, a, b float64) (float64, error) {
	switch op {
	case schema.OpAdd:
		return a + b, nil
	case schema.OpSub:
		return a - b, nil
	case schema.OpMul:
		return a * b, nil
	case schema.OpDiv:
		if b == 0 {
			return 0, fmt.Errorf("%w: %v / 0", ErrDivisionByZero, a)
		}
		return a / b, nil
	case schema.OpMod:
		if b == 0 {
			return 0, fmt.Errorf("%w: %v mod 0", ErrDivisionByZero, a)
		}
		return a - b*math.Floor(a/b), nil
	case schema.OpIdiv:
		if b == 0 {
			return 0, fmt.Errorf("%w: %v idiv 0", ErrDivisionByZero, a)
		}
		return math.Floor(a / b), nil
	case schema.OpGt:
		return bool01(a > b), nil
	case schema.OpGte:
		return bool01(a >= b), nil
	case schema.OpLt:
		return bool01(a < b), nil
	case schema.OpLte:
		return bool01(a <= b), nil
	case schema.OpEq:
		return bool01(a == b), nil
	case schema.OpNe:
		return bool01(a != b), nil
	}
	return 0, fmt.Errorf("%w: unknown operator %s", ErrBadSchema, op)
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
