// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrParse is wrapped by every loader failure.
var ErrParse = errors.New("schema: parse error")

// maxRefDepth bounds chained $ref resolution so a reference cycle in the
// defs section fails instead of recursing forever.
const maxRefDepth = 16

// Parse loads a schema document from YAML or JSON text, resolves $ref
// entries against the defs section and validates the resulting IR.
// JSON documents may carry comments and trailing commas (JSONC).
//
// The loader works on the yaml.Node tree rather than decoded maps so
// that the declared order of transform operations survives: within a
// transform stage (and for the top-level add/sub/mult/div/mod/idiv
// shortcuts) operations apply in document key order.
func Parse(text string) (*Schema, error) {
	src := strings.TrimSpace(text)
	if strings.HasPrefix(src, "{") {
		src = string(jsonc.ToJSON([]byte(src)))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	root := unwrapDocument(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document is not a mapping", ErrParse)
	}

	p := &parser{defs: map[string]*yaml.Node{}}
	if defs := mapValue(root, "defs"); defs != nil && defs.Kind == yaml.MappingNode {
		for k, v := range mapPairs(defs) {
			p.defs[k] = v
		}
	}

	s := &Schema{Endian: EndianBig}
	for key, val := range mapPairs(root) {
		switch key {
		case "name":
			s.Name = val.Value
		case "description":
			s.Description = val.Value
		case "version":
			v, err := nodeInt(val)
			if err != nil {
				return nil, fmt.Errorf("%w: version: %v", ErrParse, err)
			}
			s.Version = int(v)
		case "endian":
			s.Endian = Endian(val.Value)
		case "fields":
			fields, err := p.fieldList(val)
			if err != nil {
				return nil, err
			}
			s.Fields = fields
		case "defs":
			// handled above
		default:
			return nil, fmt.Errorf("%w: unknown top-level key %q", ErrParse, key)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

type parser struct {
	defs map[string]*yaml.Node
}

func (p *parser) fieldList(node *yaml.Node) ([]Field, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: fields must be a sequence", ErrParse)
	}
	fields := make([]Field, 0, len(node.Content))
	for _, item := range node.Content {
		f, err := p.field(item)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (p *parser) field(node *yaml.Node) (Field, error) {
	node, err := p.resolveRef(node, 0)
	if err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: field entry must be a mapping", ErrParse)
	}

	// Inline structural forms carry their definition under a single key.
	if bg := mapValue(node, "byte_group"); bg != nil {
		return p.byteGroup(bg)
	}
	if fl := mapValue(node, "flagged"); fl != nil {
		return p.flagged(fl)
	}
	if tlv := mapValue(node, "tlv"); tlv != nil {
		return p.tlv(tlv)
	}

	typ := ""
	if tn := mapValue(node, "type"); tn != nil {
		typ = tn.Value
	}
	switch typ {
	case "match", "switch":
		return p.match(node)
	case "compute", "number":
		return p.computed(node)
	case "tlv":
		return p.tlv(node)
	case "skip":
		width := 1
		if ln := mapValue(node, "length"); ln != nil {
			v, err := nodeInt(ln)
			if err != nil {
				return nil, fmt.Errorf("%w: skip length: %v", ErrParse, err)
			}
			width = int(v)
		}
		return &Scalar{Kind: KindUint, Width: width}, nil
	}
	return p.scalar(node, typ)
}

// resolveRef replaces {$ref: name, ...overrides} with the referenced
// defs entry, overriding any keys the entry repeats. Chained references
// resolve up to maxRefDepth deep.
func (p *parser) resolveRef(node *yaml.Node, depth int) (*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return node, nil
	}
	refNode := mapValue(node, "$ref")
	if refNode == nil {
		return node, nil
	}
	if depth >= maxRefDepth {
		return nil, fmt.Errorf("%w: $ref chain exceeds depth %d", ErrParse, maxRefDepth)
	}
	def, ok := p.defs[refNode.Value]
	if !ok {
		return nil, fmt.Errorf("%w: $ref %q not found in defs", ErrParse, refNode.Value)
	}
	def, err := p.resolveRef(def, depth+1)
	if err != nil {
		return nil, err
	}
	if def.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: $ref %q is not a mapping", ErrParse, refNode.Value)
	}

	merged := &yaml.Node{Kind: yaml.MappingNode}
	replace := func(key string, keyNode, valNode *yaml.Node) {
		for i := 0; i < len(merged.Content)-1; i += 2 {
			if merged.Content[i].Value == key {
				merged.Content[i+1] = valNode
				return
			}
		}
		merged.Content = append(merged.Content, keyNode, valNode)
	}
	for i := 0; i < len(def.Content)-1; i += 2 {
		replace(def.Content[i].Value, def.Content[i], def.Content[i+1])
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == "$ref" {
			continue
		}
		replace(node.Content[i].Value, node.Content[i], node.Content[i+1])
	}
	return merged, nil
}

// scalarTypes maps the shorthand type names of the schema dialect. The
// i-prefixed aliases match the legacy dialect the reference accepts.
var scalarTypes = map[string]struct {
	kind  ScalarKind
	width int
}{
	"u8": {KindUint, 1}, "u16": {KindUint, 2}, "u24": {KindUint, 3},
	"u32": {KindUint, 4}, "u64": {KindUint, 8},
	"s8": {KindInt, 1}, "s16": {KindInt, 2}, "s24": {KindInt, 3},
	"s32": {KindInt, 4}, "s64": {KindInt, 8},
	"i8": {KindInt, 1}, "i16": {KindInt, 2}, "i32": {KindInt, 4}, "i64": {KindInt, 8},
	"f16": {KindFloat, 2}, "f32": {KindFloat, 4}, "f64": {KindFloat, 8},
}

func (p *parser) scalar(node *yaml.Node, typ string) (Field, error) {
	spec, ok := scalarTypes[strings.ToLower(typ)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field type %q", ErrParse, typ)
	}
	f := &Scalar{Kind: spec.kind, Width: spec.width}
	for key, val := range mapPairs(node) {
		switch key {
		case "name":
			f.Name = val.Value
		case "type":
		case "length":
			v, err := nodeInt(val)
			if err != nil {
				return nil, fmt.Errorf("%w: length: %v", ErrParse, err)
			}
			f.Width = int(v)
		case "endian":
			f.Endian = Endian(val.Value)
		default:
			// transform/semantics keys, handled in order below
		}
	}
	t, sem, err := p.transformAndSemantics(node, f.Name)
	if err != nil {
		return nil, err
	}
	f.Transform, f.Semantics = t, sem
	return f, nil
}

func (p *parser) byteGroup(node *yaml.Node) (Field, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: byte_group must be a sequence of members", ErrParse)
	}
	g := &ByteGroup{}
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: byte_group member must be a mapping", ErrParse)
		}
		m := Bitfield{BitWidth: 1}
		for key, val := range mapPairs(item) {
			switch key {
			case "name":
				m.Name = val.Value
			case "bit_offset":
				v, err := nodeInt(val)
				if err != nil {
					return nil, fmt.Errorf("%w: bit_offset: %v", ErrParse, err)
				}
				m.BitOffset = int(v)
			case "bits":
				v, err := nodeInt(val)
				if err != nil {
					return nil, fmt.Errorf("%w: bits: %v", ErrParse, err)
				}
				m.BitWidth = int(v)
			}
		}
		t, sem, err := p.transformAndSemantics(item, m.Name)
		if err != nil {
			return nil, err
		}
		m.Transform, m.Semantics = t, sem
		g.Members = append(g.Members, m)
	}
	return g, nil
}

func (p *parser) computed(node *yaml.Node) (Field, error) {
	f := &Computed{}
	if n := mapValue(node, "name"); n != nil {
		f.Name = n.Value
	}

	var base Expr
	if ref := mapValue(node, "ref"); ref != nil {
		base = &VarRef{Name: strings.TrimPrefix(ref.Value, "$")}
	} else if comp := mapValue(node, "compute"); comp != nil {
		e, err := p.expr(comp)
		if err != nil {
			return nil, err
		}
		base = e
	} else if val := mapValue(node, "value"); val != nil {
		v, err := nodeFloat(val)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: value: %v", ErrParse, f.Name, err)
		}
		base = &Literal{Value: v}
	}

	if g := mapValue(node, "guard"); g != nil {
		guard, err := p.guard(g, base, f.Name)
		if err != nil {
			return nil, err
		}
		f.Expr = guard
	} else {
		f.Expr = base
	}
	if f.Expr == nil {
		return nil, fmt.Errorf("%w: computed field %q needs ref, compute, value or guard",
			ErrParse, f.Name)
	}

	t, sem, err := p.transformAndSemantics(node, f.Name)
	if err != nil {
		return nil, err
	}
	f.Transform, f.Semantics = t, sem
	return f, nil
}

// expr parses an expression node: a numeric literal, a "$name"
// reference, or a {op, a, b} mapping with recursively parsed operands.
func (p *parser) expr(node *yaml.Node) (Expr, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(node.Value, "$") {
			return &VarRef{Name: node.Value[1:]}, nil
		}
		v, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: expression operand %q is neither a number nor a $reference",
				ErrParse, node.Value)
		}
		return &Literal{Value: v}, nil
	case yaml.MappingNode:
		opNode := mapValue(node, "op")
		if opNode == nil {
			return nil, fmt.Errorf("%w: expression mapping needs an op", ErrParse)
		}
		op, ok := ParseOp(opNode.Value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown expression op %q", ErrParse, opNode.Value)
		}
		a, b := mapValue(node, "a"), mapValue(node, "b")
		if a == nil || b == nil {
			return nil, fmt.Errorf("%w: op %q needs operands a and b", ErrParse, opNode.Value)
		}
		ea, err := p.expr(a)
		if err != nil {
			return nil, err
		}
		eb, err := p.expr(b)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: op, A: ea, B: eb}, nil
	}
	return nil, fmt.Errorf("%w: bad expression node", ErrParse)
}

// guard parses {when: [clauses], else: expr}. Each clause names a field
// and one or more comparators; multiple comparators AND together. A
// clause without an explicit value uses the computed base expression.
func (p *parser) guard(node *yaml.Node, base Expr, fieldName string) (Expr, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: guard must be a mapping", ErrParse)
	}
	g := &Guard{}
	whenNode := mapValue(node, "when")
	if whenNode == nil || whenNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: field %q: guard needs a when list", ErrParse, fieldName)
	}
	for _, cl := range whenNode.Content {
		if cl.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: guard clause must be a mapping", ErrParse)
		}
		var subject Expr
		if fn := mapValue(cl, "field"); fn != nil {
			subject = &VarRef{Name: strings.TrimPrefix(fn.Value, "$")}
		}
		var cond Expr
		for key, val := range mapPairs(cl) {
			op, ok := ParseOp(key)
			if !ok || op.Arithmetic() {
				continue
			}
			if subject == nil {
				return nil, fmt.Errorf("%w: field %q: guard clause has comparators but no field",
					ErrParse, fieldName)
			}
			operand, err := p.expr(val)
			if err != nil {
				return nil, err
			}
			cmp := Expr(&BinaryOp{Op: op, A: subject, B: operand})
			if cond == nil {
				cond = cmp
			} else {
				cond = &BinaryOp{Op: OpAnd, A: cond, B: cmp}
			}
		}
		if cond == nil {
			return nil, fmt.Errorf("%w: field %q: guard clause has no condition", ErrParse, fieldName)
		}
		value := base
		if vn := mapValue(cl, "value"); vn != nil {
			e, err := p.expr(vn)
			if err != nil {
				return nil, err
			}
			value = e
		}
		if value == nil {
			return nil, fmt.Errorf("%w: field %q: guard clause has no value", ErrParse, fieldName)
		}
		g.Clauses = append(g.Clauses, GuardClause{When: cond, Value: value})
	}
	elseNode := mapValue(node, "else")
	if elseNode == nil {
		return nil, fmt.Errorf("%w: field %q: guard needs an else", ErrParse, fieldName)
	}
	e, err := p.expr(elseNode)
	if err != nil {
		return nil, err
	}
	g.Else = e
	return g, nil
}

func (p *parser) match(node *yaml.Node) (Field, error) {
	sw := &Switch{}
	if on := mapValue(node, "on"); on != nil {
		sw.On = strings.TrimPrefix(on.Value, "$")
	}
	casesNode := mapValue(node, "cases")
	if casesNode == nil || casesNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: match on %q needs a cases list", ErrParse, sw.On)
	}
	for _, cn := range casesNode.Content {
		if cn.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: match case must be a mapping", ErrParse)
		}
		var fields []Field
		if fn := mapValue(cn, "fields"); fn != nil {
			var err error
			if fields, err = p.fieldList(fn); err != nil {
				return nil, err
			}
		}
		if dn := mapValue(cn, "default"); dn != nil && dn.Value == "true" {
			sw.Default = fields
			continue
		}
		caseNode := mapValue(cn, "case")
		if caseNode == nil {
			caseNode = mapValue(cn, "match") // legacy key
		}
		if caseNode == nil {
			return nil, fmt.Errorf("%w: match case needs a case value or default", ErrParse)
		}
		c := SwitchCase{Fields: fields}
		switch caseNode.Kind {
		case yaml.ScalarNode:
			v, err := nodeInt(caseNode)
			if err != nil {
				return nil, fmt.Errorf("%w: case value: %v", ErrParse, err)
			}
			c.Match = []int64{v}
		case yaml.SequenceNode:
			for _, item := range caseNode.Content {
				v, err := nodeInt(item)
				if err != nil {
					return nil, fmt.Errorf("%w: case value: %v", ErrParse, err)
				}
				c.Match = append(c.Match, v)
			}
		case yaml.MappingNode:
			if mn := mapValue(caseNode, "min"); mn != nil {
				v, err := nodeInt(mn)
				if err != nil {
					return nil, fmt.Errorf("%w: case min: %v", ErrParse, err)
				}
				c.Min = &v
			}
			if mn := mapValue(caseNode, "max"); mn != nil {
				v, err := nodeInt(mn)
				if err != nil {
					return nil, fmt.Errorf("%w: case max: %v", ErrParse, err)
				}
				c.Max = &v
			}
		}
		sw.Cases = append(sw.Cases, c)
	}
	return sw, nil
}

func (p *parser) flagged(node *yaml.Node) (Field, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: flagged must be a mapping", ErrParse)
	}
	fl := &Flagged{}
	if fn := mapValue(node, "field"); fn != nil {
		fl.FlagsField = strings.TrimPrefix(fn.Value, "$")
	}
	groupsNode := mapValue(node, "groups")
	if groupsNode == nil || groupsNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: flagged %q needs a groups list", ErrParse, fl.FlagsField)
	}
	for _, gn := range groupsNode.Content {
		g := FlagGroup{}
		if bn := mapValue(gn, "bit"); bn != nil {
			v, err := nodeInt(bn)
			if err != nil {
				return nil, fmt.Errorf("%w: flagged bit: %v", ErrParse, err)
			}
			g.Bit = int(v)
		}
		if fn := mapValue(gn, "fields"); fn != nil {
			var err error
			if g.Fields, err = p.fieldList(fn); err != nil {
				return nil, err
			}
		}
		fl.Groups = append(fl.Groups, g)
	}
	return fl, nil
}

func (p *parser) tlv(node *yaml.Node) (Field, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: tlv must be a mapping", ErrParse)
	}
	t := &TLV{TagWidth: 1}
	for key, val := range mapPairs(node) {
		switch key {
		case "type":
		case "tag_size":
			v, err := nodeInt(val)
			if err != nil {
				return nil, fmt.Errorf("%w: tag_size: %v", ErrParse, err)
			}
			t.TagWidth = int(v)
		case "type_size":
			v, err := nodeInt(val)
			if err != nil {
				return nil, fmt.Errorf("%w: type_size: %v", ErrParse, err)
			}
			t.TypeWidth = int(v)
		case "length_size":
			v, err := nodeInt(val)
			if err != nil {
				return nil, fmt.Errorf("%w: length_size: %v", ErrParse, err)
			}
			t.LengthWidth = int(v)
		case "unknown":
			t.Unknown = UnknownPolicy(val.Value)
		case "cases":
			if val.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: tlv cases must be a mapping", ErrParse)
			}
			for keyStr, fieldsNode := range mapPairs(val) {
				c, err := p.tlvCase(keyStr, fieldsNode)
				if err != nil {
					return nil, err
				}
				t.Cases = append(t.Cases, c)
			}
		default:
			return nil, fmt.Errorf("%w: unknown tlv key %q", ErrParse, key)
		}
	}
	return t, nil
}

// tlvCase parses one cases entry. The key is the tag ("5"), or a
// tag/type pair ("[5,1]" or "5,1") when a type word is configured.
func (p *parser) tlvCase(key string, fieldsNode *yaml.Node) (TLVCase, error) {
	c := TLVCase{}
	trimmed := strings.Trim(strings.TrimSpace(key), "[]")
	parts := strings.Split(trimmed, ",")
	tag, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 0, 32)
	if err != nil {
		return c, fmt.Errorf("%w: tlv case key %q: %v", ErrParse, key, err)
	}
	c.Tag = tag
	if len(parts) > 1 {
		typ, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 0, 32)
		if err != nil {
			return c, fmt.Errorf("%w: tlv case key %q: %v", ErrParse, key, err)
		}
		c.Type = &typ
	}
	if c.Fields, err = p.fieldList(fieldsNode); err != nil {
		return c, err
	}
	return c, nil
}

// transformOpKeys are the mapping keys that contribute linear transform
// operations, applied in document key order.
var transformOpKeys = map[string]OpKind{
	"add": OpAdd, "sub": OpSub, "mult": OpMul, "mul": OpMul,
	"div": OpDiv, "mod": OpMod, "idiv": OpIdiv,
}

// transformAndSemantics collects the transform pipeline and semantic
// annotations from a field mapping. Top-level op shortcuts and the
// stages of a transform list both preserve key order.
func (p *parser) transformAndSemantics(node *yaml.Node, fieldName string) (*Transform, *Semantics, error) {
	t := &Transform{}
	var sem *Semantics
	ensureSem := func() *Semantics {
		if sem == nil {
			sem = &Semantics{}
		}
		return sem
	}

	for key, val := range mapPairs(node) {
		if op, ok := transformOpKeys[key]; ok {
			v, err := nodeFloat(val)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: %s: %v", ErrParse, fieldName, key, err)
			}
			t.Ops = append(t.Ops, TransformOp{Op: op, Operand: v})
			continue
		}
		switch key {
		case "transform", "modifiers":
			if val.Kind != yaml.SequenceNode {
				return nil, nil, fmt.Errorf("%w: field %q: transform must be a stage list",
					ErrParse, fieldName)
			}
			for _, stage := range val.Content {
				for sk, sv := range mapPairs(stage) {
					op, ok := transformOpKeys[sk]
					if !ok {
						return nil, nil, fmt.Errorf("%w: field %q: unknown transform op %q",
							ErrParse, fieldName, sk)
					}
					v, err := nodeFloat(sv)
					if err != nil {
						return nil, nil, fmt.Errorf("%w: field %q: %s: %v", ErrParse, fieldName, sk, err)
					}
					t.Ops = append(t.Ops, TransformOp{Op: op, Operand: v})
				}
			}
		case "polynomial":
			if val.Kind != yaml.SequenceNode {
				return nil, nil, fmt.Errorf("%w: field %q: polynomial must be a list",
					ErrParse, fieldName)
			}
			for _, cn := range val.Content {
				v, err := nodeFloat(cn)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: field %q: polynomial: %v", ErrParse, fieldName, err)
				}
				t.Polynomial = append(t.Polynomial, v)
			}
		case "lookup":
			if val.Kind != yaml.MappingNode {
				return nil, nil, fmt.Errorf("%w: field %q: lookup must be a mapping",
					ErrParse, fieldName)
			}
			for lk, lv := range mapPairs(val) {
				k, err := strconv.ParseInt(lk, 0, 64)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: field %q: lookup key %q: %v",
						ErrParse, fieldName, lk, err)
				}
				t.Lookup = append(t.Lookup, LookupEntry{Key: k, Value: lv.Value})
			}
		case "round":
			v, err := nodeInt(val)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: round: %v", ErrParse, fieldName, err)
			}
			d := int(v)
			t.RoundDecimals = &d
		case "valid_range":
			if val.Kind != yaml.SequenceNode || len(val.Content) != 2 {
				return nil, nil, fmt.Errorf("%w: field %q: valid_range must be [min, max]",
					ErrParse, fieldName)
			}
			lo, err := nodeFloat(val.Content[0])
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: valid_range: %v", ErrParse, fieldName, err)
			}
			hi, err := nodeFloat(val.Content[1])
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: valid_range: %v", ErrParse, fieldName, err)
			}
			ensureSem().ValidRange = &Range{Min: lo, Max: hi}
		case "resolution":
			v, err := nodeFloat(val)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: resolution: %v", ErrParse, fieldName, err)
			}
			ensureSem().Resolution = v
		case "unece_unit":
			ensureSem().UneceUnit = val.Value
		case "ipso":
			v, err := nodeInt(val)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field %q: ipso: %v", ErrParse, fieldName, err)
			}
			ensureSem().IPSO = int(v)
		}
	}

	if t.Empty() {
		t = nil
	}
	return t, sem, nil
}

// Node helpers.

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

// mapValue returns the value node for key in a mapping node, or nil.
func mapValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(n.Content)-1; i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// mapPairs iterates a mapping node's key/value pairs in document order.
func mapPairs(n *yaml.Node) func(yield func(string, *yaml.Node) bool) {
	return func(yield func(string, *yaml.Node) bool) {
		if n == nil || n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i < len(n.Content)-1; i += 2 {
			if !yield(n.Content[i].Value, n.Content[i+1]) {
				return
			}
		}
	}
}

func nodeInt(n *yaml.Node) (int64, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("expected an integer")
	}
	return strconv.ParseInt(n.Value, 0, 64)
}

func nodeFloat(n *yaml.Node) (float64, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("expected a number")
	}
	return strconv.ParseFloat(n.Value, 64)
}
