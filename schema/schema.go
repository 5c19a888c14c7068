// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package schema defines the resolved schema intermediate representation
// consumed by the codec engine, plus the YAML/JSON loader and the binary
// schema blob used for hot-swap and native bindings.
//
// A Schema is immutable once constructed and may be shared across
// concurrent decode/encode calls without synchronization.
package schema

// Endian selects the byte order for multi-byte scalar fields.
type Endian string

const (
	EndianBig    Endian = "big"
	EndianLittle Endian = "little"
)

// ScalarKind classifies the primitive representation of a Scalar field.
type ScalarKind uint8

const (
	KindUint ScalarKind = iota
	KindInt
	KindFloat
)

func (k ScalarKind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	}
	return "unknown"
}

// OpKind identifies an arithmetic or comparison operator. Arithmetic ops
// appear in transform pipelines and expressions; comparison and logical
// ops appear only in expressions, where they evaluate to 0 or 1.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod  // floored modulo: result sign follows the divisor
	OpIdiv // floored integer division
	OpGt
	OpGte
	OpLt
	OpLte
	OpEq
	OpNe
	OpAnd
	OpOr
)

var opNames = map[OpKind]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpMod: "mod", OpIdiv: "idiv",
	OpGt: "gt", OpGte: "gte", OpLt: "lt", OpLte: "lte",
	OpEq: "eq", OpNe: "ne", OpAnd: "and", OpOr: "or",
}

func (op OpKind) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "unknown"
}

// ParseOp maps an operator name to its OpKind. "mult" is accepted as an
// alias for "mul" to match the schema dialect.
func ParseOp(name string) (OpKind, bool) {
	if name == "mult" {
		return OpMul, true
	}
	for op, s := range opNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

// Arithmetic reports whether op is usable in a transform pipeline.
func (op OpKind) Arithmetic() bool {
	return op <= OpIdiv
}

// Schema is the root of the IR: an ordered field list plus defaults.
type Schema struct {
	Name        string
	Version     int
	Description string
	Endian      Endian
	Fields      []Field
}

// Field is the closed set of field-node variants. Exactly the types
// Scalar, ByteGroup, Computed, Switch, Flagged and TLV implement it;
// the codec matches exhaustively and treats anything else as corrupt IR.
type Field interface {
	isField()
}

func (*Scalar) isField()    {}
func (*ByteGroup) isField() {}
func (*Computed) isField()  {}
func (*Switch) isField()    {}
func (*Flagged) isField()   {}
func (*TLV) isField()       {}

// Scalar is a fixed-size primitive field. An empty Name marks padding:
// the bytes are consumed (decode) or zero-filled (encode) and no value
// is bound or emitted.
type Scalar struct {
	Name      string
	Kind      ScalarKind
	Width     int    // bytes; 1..8 for integers, 2/4/8 for floats
	Endian    Endian // "" inherits the schema endian
	Transform *Transform
	Semantics *Semantics
}

// Bitfield is a member of a ByteGroup, addressing a bit range within the
// shared byte. Bit 0 is the least significant bit.
type Bitfield struct {
	Name      string
	BitOffset int
	BitWidth  int
	Transform *Transform
	Semantics *Semantics
}

// ByteGroup packs multiple named bitfields into one byte. All members
// read the same byte; the cursor advances exactly one byte after the
// group regardless of how many bits the members cover.
type ByteGroup struct {
	Members []Bitfield
}

// Computed derives a value from previously bound variables. It consumes
// no payload bytes. The expression may only reference variables bound
// earlier in declaration order; Validate rejects forward references.
type Computed struct {
	Name      string
	Expr      Expr
	Transform *Transform
	Semantics *Semantics
}

// SwitchCase matches a discriminant value. Match lists exact values;
// Min/Max define an inclusive range (either or both may be set instead
// of Match).
type SwitchCase struct {
	Match  []int64
	Min    *int64
	Max    *int64
	Fields []Field
}

// Switch selects one case body by the value of an already-bound
// discriminant variable.
type Switch struct {
	On      string
	Cases   []SwitchCase
	Default []Field // nil when no default case is declared
}

// FlagGroup is a field list gated by one bit of the flags variable.
type FlagGroup struct {
	Bit    int
	Fields []Field
}

// Flagged gates optional field groups on individual bits of an
// already-bound flags variable. Groups decode in declared order and
// encode in ascending bit order.
type Flagged struct {
	FlagsField string
	Groups     []FlagGroup
}

// UnknownPolicy controls TLV behavior for an unmatched tag.
type UnknownPolicy string

const (
	// UnknownTerminate ends the TLV loop cleanly. This is the default:
	// most devices do not terminate TLV streams with an end marker, so
	// an unknown tag usually means the stream is over.
	UnknownTerminate UnknownPolicy = ""
	// UnknownSkip skips the record body using the length word. Requires
	// LengthWidth > 0.
	UnknownSkip UnknownPolicy = "skip"
	// UnknownError aborts the decode with a NoMatchingCase error.
	UnknownError UnknownPolicy = "error"
)

// TLVCase binds a tag (and optional secondary type word) to a field list.
type TLVCase struct {
	Tag    uint64
	Type   *uint64 // nil matches any type word when TypeWidth > 0
	Fields []Field
}

// TLV is a repeating tag-addressed field loop. Each iteration reads a
// fixed-width tag header (plus optional type and length words), selects
// the matching case and decodes its fields inline. Insufficient bytes
// for a header end the loop cleanly.
type TLV struct {
	TagWidth    int // bytes, 1..4
	TypeWidth   int // bytes, 0 = no type word
	LengthWidth int // bytes, 0 = no length word
	Unknown     UnknownPolicy
	Cases       []TLVCase
}

// TransformOp is one linear operation in a transform pipeline.
type TransformOp struct {
	Op      OpKind
	Operand float64
}

// LookupEntry maps a numeric key to a display value. On encode the
// table is inverted value-to-key; the first matching entry wins when
// values repeat.
type LookupEntry struct {
	Key   int64
	Value string
}

// Transform is the per-field value pipeline, applied on decode as:
// polynomial, linear ops in declared order, lookup, rounding. Encode
// applies the exact inverse in reverse order.
type Transform struct {
	Polynomial    []float64 // ascending coefficients: c0 + c1*x + c2*x^2 + ...
	Ops           []TransformOp
	Lookup        []LookupEntry
	RoundDecimals *int
}

// Empty reports whether the transform has no effect.
func (t *Transform) Empty() bool {
	return t == nil || (len(t.Polynomial) == 0 && len(t.Ops) == 0 &&
		len(t.Lookup) == 0 && t.RoundDecimals == nil)
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64
	Max float64
}

// Semantics annotate a field for downstream consumers. They never alter
// parsing: ValidRange only classifies the decoded value into the
// side-channel quality map.
type Semantics struct {
	ValidRange *Range
	Resolution float64
	UneceUnit  string
	IPSO       int
}

// Expr is the closed set of expression-node variants used by Computed
// fields: Literal, VarRef, BinaryOp and Guard.
type Expr interface {
	isExpr()
}

func (*Literal) isExpr()  {}
func (*VarRef) isExpr()   {}
func (*BinaryOp) isExpr() {}
func (*Guard) isExpr()    {}

// Literal is a constant operand.
type Literal struct {
	Value float64
}

// VarRef references a previously bound variable by name (without the
// leading "$" of the schema dialect).
type VarRef struct {
	Name string
}

// BinaryOp applies Op to two sub-expressions. Comparison and logical
// ops yield 0 or 1.
type BinaryOp struct {
	Op OpKind
	A  Expr
	B  Expr
}

// GuardClause pairs a boolean condition with the value to use when the
// condition is truthy (nonzero).
type GuardClause struct {
	When  Expr
	Value Expr
}

// Guard evaluates its clauses in order; the first truthy When supplies
// the value, otherwise Else does.
type Guard struct {
	Clauses []GuardClause
	Else    Expr
}
