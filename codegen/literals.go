package codegen

import (
	"math"
	"strings"

	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
	"github.com/quartzlang/quartz/object"
)

// DigitValue maps a single digit character to its value in base, the way
// mruby's mrb_digitmap does, returning ok=false for characters that are
// not a valid digit in that base (original_source/codegen.c readint).
func DigitValue(ch byte, base int) (int, bool) {
	var v int
	switch {
	case ch >= '0' && ch <= '9':
		v = int(ch - '0')
	case ch >= 'a' && ch <= 'z':
		v = int(ch-'a') + 10
	case ch >= 'A' && ch <= 'Z':
		v = int(ch-'A') + 10
	default:
		return 0, false
	}
	if v >= base {
		return 0, false
	}
	return v, true
}

// ParseInteger reads a digit run in the given base, ignoring '_' separators
// and accepting one leading '+' (the parser has already stripped any
// 0x/0b/0o radix prefix; a leading '-' is never part of an integer literal
// token — NEGATE handles that at the AST level). It never errors on
// magnitude: an overflowing literal silently widens to float, per spec.md §7.
func ParseInteger(raw string, base int) (value int64, overflow bool, err error) {
	raw = trimLeadingPlus(raw)
	saw := false
	for i := 0; i < len(raw); i++ {
		if raw[i] == '_' {
			continue
		}
		d, ok := DigitValue(raw[i], base)
		if !ok {
			return 0, false, &Error{Msg: "invalid digit in integer literal: " + raw}
		}
		saw = true
		next := value*int64(base) + int64(d)
		if next < value || (value != 0 && next/int64(base) != value) {
			overflow = true
			continue
		}
		value = next
	}
	if !saw {
		return 0, false, &Error{Msg: "empty integer literal"}
	}
	return value, overflow, nil
}

func parseFloatFallback(raw string, base int) float64 {
	var f float64
	for i := 0; i < len(raw); i++ {
		if raw[i] == '_' {
			continue
		}
		d, ok := DigitValue(raw[i], base)
		if !ok {
			continue
		}
		f = f*float64(base) + float64(d)
	}
	return f
}

// genIntLit emits LOADI for a literal that fits a signed 16-bit immediate
// (spec.md §8 scenario 1), else falls back to a float pool entry on
// overflow (scenario 2), else an integer pool entry.
func genIntLit(s *Scope, n *ast.IntLit, val bool) error {
	if !val {
		return nil // pure literal, no side effect to preserve
	}
	value, overflow, err := ParseInteger(n.Value, n.Base)
	if err != nil {
		return s.errorf("%s", err.Error())
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	if overflow {
		f := parseFloatFallback(n.Value, n.Base)
		idx := s.IR.AddConst(object.Float{Value: f})
		s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
		return nil
	}
	if value >= math.MinInt16 && value <= math.MaxInt16 {
		s.emitPeep(irep.Instruction{Op: irep.LOADI, A: reg, B: int(value)}, val)
		return nil
	}
	idx := s.IR.AddConst(object.Integer{Value: value})
	s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
	return nil
}

func genFloatLit(s *Scope, n *ast.FloatLit, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddConst(object.Float{Value: n.Value})
	s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
	return nil
}

// genNegate constant-folds -INT and -FLOAT directly into the pool entry or
// immediate; any other operand compiles as "0 - expr" (spec.md §4.6).
func genNegate(s *Scope, n *ast.Negate, val bool) error {
	switch op := n.Operand.(type) {
	case *ast.IntLit:
		value, overflow, err := ParseInteger(op.Value, op.Base)
		if err != nil {
			return s.errorf("%s", err.Error())
		}
		if !val {
			return nil
		}
		reg, err := s.push()
		if err != nil {
			return err
		}
		if overflow {
			f := -parseFloatFallback(op.Value, op.Base)
			idx := s.IR.AddConst(object.Float{Value: f})
			s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
			return nil
		}
		neg := -value
		if neg >= math.MinInt16 && neg <= math.MaxInt16 {
			s.emitPeep(irep.Instruction{Op: irep.LOADI, A: reg, B: int(neg)}, val)
			return nil
		}
		idx := s.IR.AddConst(object.Integer{Value: neg})
		s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
		return nil
	case *ast.FloatLit:
		if !val {
			return nil
		}
		reg, err := s.push()
		if err != nil {
			return err
		}
		idx := s.IR.AddConst(object.Float{Value: -op.Value})
		s.emitPeep(irep.Instruction{Op: irep.LOADL, A: reg, B: idx}, val)
		return nil
	default:
		zero, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.LOADI, A: zero, B: 0}, VAL)
		if err := genNode(s, n.Operand, VAL); err != nil {
			return err
		}
		s.pop()
		if !val {
			s.pop()
		}
		s.emitPeep(irep.Instruction{Op: irep.SUB, A: zero}, val)
		return nil
	}
}

func genStrLit(s *Scope, n *ast.StrLit, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddConst(object.Str{Value: n.Value})
	s.emitPeep(irep.Instruction{Op: irep.STRING, A: reg, B: idx}, val)
	return nil
}

// genDStr compiles a dynamic-string template: the first part becomes the
// accumulator, each subsequent part STRCATs in, folding adjacent literal
// empty strings away via the peephole (spec.md §4.6, §4.4).
func genDStr(s *Scope, parts []ast.Node, val bool) error {
	if len(parts) == 0 {
		if !val {
			return nil
		}
		reg, err := s.push()
		if err != nil {
			return err
		}
		idx := s.IR.AddConst(object.Str{Value: ""})
		s.emitPeep(irep.Instruction{Op: irep.STRING, A: reg, B: idx}, val)
		return nil
	}
	acc, err := s.push()
	if err != nil {
		return err
	}
	if err := genPartInto(s, parts[0], acc); err != nil {
		return err
	}
	for _, p := range parts[1:] {
		if err := genNode(s, p, VAL); err != nil {
			return err
		}
		src := s.top()
		s.pop()
		s.emitPeep(irep.Instruction{Op: irep.STRCAT, A: acc, B: src}, VAL)
	}
	if !val {
		s.pop()
	}
	return nil
}

// genPartInto evaluates a DStr/DSym/DRegexp/DXStr literal part directly
// into reg, the accumulator register, rather than pushing a fresh one.
func genPartInto(s *Scope, part ast.Node, reg int) error {
	if sl, ok := part.(*ast.StrLit); ok {
		idx := s.IR.AddConst(object.Str{Value: sl.Value})
		s.emitPeep(irep.Instruction{Op: irep.STRING, A: reg, B: idx}, VAL)
		return nil
	}
	if err := genNode(s, part, VAL); err != nil {
		return err
	}
	src := s.top()
	s.pop()
	if src != reg {
		s.emitPeep(irep.Instruction{Op: irep.MOVE, A: reg, B: src}, VAL)
	}
	return nil
}

func genHeredoc(s *Scope, n *ast.Heredoc, val bool) error {
	return genDStr(s, n.Parts, val)
}

func genSymLit(s *Scope, n *ast.SymLit, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: reg, B: idx}, val)
	return nil
}

// genDSym builds the interpolated string the symbol names, then interns it
// (spec.md §4.6, SYM/DSYM).
func genDSym(s *Scope, n *ast.DSym, val bool) error {
	if err := genDStr(s, n.Parts, VAL); err != nil {
		return err
	}
	reg := s.top()
	if !val {
		s.pop()
		return nil
	}
	s.emitPeep(irep.Instruction{Op: irep.INTERN, A: reg, B: reg}, val)
	return nil
}

// genRegexClassRef pushes a register holding the Regexp class: an OCLASS
// base (as in classdef.go's constNameAndBase) followed by a GETMCNST
// lookup (as in codegen.go's genColon2) (original_source/codegen.c
// NODE_REGX/NODE_DREGX).
func genRegexClassRef(s *Scope) (int, error) {
	reg, err := s.push()
	if err != nil {
		return 0, err
	}
	idx := s.IR.AddSym("Regexp")
	s.emitPeep(irep.Instruction{Op: irep.OCLASS, A: reg}, VAL)
	s.emitPeep(irep.Instruction{Op: irep.GETMCNST, A: reg, B: idx}, VAL)
	return reg, nil
}

// genKernelRef pushes a register holding the Kernel module, the base for
// the backtick SEND that implements XSTR/DXSTR.
func genKernelRef(s *Scope) (int, error) {
	reg, err := s.push()
	if err != nil {
		return 0, err
	}
	idx := s.IR.AddSym("Kernel")
	s.emitPeep(irep.Instruction{Op: irep.OCLASS, A: reg}, VAL)
	s.emitPeep(irep.Instruction{Op: irep.GETMCNST, A: reg, B: idx}, VAL)
	return reg, nil
}

// genRegexp compiles a non-interpolated regexp literal to
// Regexp.compile(source[, flags]) (spec.md §4.6; original_source/codegen.c
// NODE_REGX, which likewise only emits this sequence under val).
func genRegexp(s *Scope, n *ast.Regexp, val bool) error {
	if !val {
		return nil
	}
	recv, err := genRegexClassRef(s)
	if err != nil {
		return err
	}
	argc := 1
	idx := s.IR.AddConst(object.Str{Value: n.Source})
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.STRING, A: reg, B: idx}, VAL)
	if n.Flags != "" {
		fidx := s.IR.AddConst(object.Str{Value: n.Flags})
		freg, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.STRING, A: freg, B: fidx}, VAL)
		s.pop()
		argc++
	}
	s.pop()
	sym, err := s.IR.AddMethodSym("compile")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: argc}, val)
	return nil
}

// genDRegexp compiles an interpolated regexp literal: builds the source
// string the same way genDStr does, then the Regexp.compile(source[,
// flags]) send (original_source/codegen.c NODE_DREGX).
func genDRegexp(s *Scope, n *ast.DRegexp, val bool) error {
	if !val {
		for _, p := range n.Parts {
			if err := genNode(s, p, NOVAL); err != nil {
				return err
			}
		}
		return nil
	}
	recv, err := genRegexClassRef(s)
	if err != nil {
		return err
	}
	if err := genDStr(s, n.Parts, VAL); err != nil {
		return err
	}
	argc := 1
	if n.Flags != "" {
		fidx := s.IR.AddConst(object.Str{Value: n.Flags})
		freg, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.STRING, A: freg, B: fidx}, VAL)
		s.pop()
		argc++
	}
	s.pop()
	sym, err := s.IR.AddMethodSym("compile")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: argc}, val)
	return nil
}

// genXStr compiles a non-interpolated backtick command string to
// Kernel.`(cmd) (spec.md §4.6; original_source/codegen.c NODE_XSTR).
func genXStr(s *Scope, n *ast.XStr, val bool) error {
	recv, err := genKernelRef(s)
	if err != nil {
		return err
	}
	idx := s.IR.AddConst(object.Str{Value: n.Value})
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.STRING, A: reg, B: idx}, VAL)
	s.pop()
	sym, err := s.IR.AddMethodSym("`")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: 1}, val)
	if !val {
		s.pop()
	}
	return nil
}

// genDXStr compiles an interpolated backtick command string: builds the
// command via genDStr, then the Kernel.`(cmd) send (original_source/codegen.c
// NODE_DXSTR).
func genDXStr(s *Scope, n *ast.DXStr, val bool) error {
	recv, err := genKernelRef(s)
	if err != nil {
		return err
	}
	if err := genDStr(s, n.Parts, VAL); err != nil {
		return err
	}
	s.pop()
	sym, err := s.IR.AddMethodSym("`")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: 1}, val)
	if !val {
		s.pop()
	}
	return nil
}

// genWordsLit/genSymbolsLit build a literal array of strings/symbols,
// %w[...] and %i[...] (supplemented from original_source/codegen.c's
// words/symbols handling; not explicitly itemized in spec.md §4.6 but
// covered by its ARRAY-literal machinery).
func genWordsLit(s *Scope, words []ast.Node, val bool) error {
	return genArrayOf(s, words, val)
}

func genSymbolsLit(s *Scope, words []ast.Node, val bool) error {
	if !val {
		for _, w := range words {
			if err := genNode(s, w, NOVAL); err != nil {
				return err
			}
		}
		return nil
	}
	base, err := s.pushN(len(words))
	if err != nil {
		return err
	}
	s.popN(len(words))
	for i, w := range words {
		dest, err := s.push()
		if err != nil {
			return err
		}
		_ = dest
		switch wn := w.(type) {
		case *ast.SymLit:
			idx := s.IR.AddSym(wn.Name)
			s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: base + i, B: idx}, VAL)
		default:
			if err := genNode(s, w, VAL); err != nil {
				return err
			}
			src := s.top()
			s.pop()
			s.emitPeep(irep.Instruction{Op: irep.INTERN, A: base + i, B: src}, VAL)
		}
	}
	s.popN(len(words))
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.ARRAY, A: reg, B: len(words)}, val)
	return nil
}

func genArrayOf(s *Scope, elems []ast.Node, val bool) error {
	if !val {
		for _, e := range elems {
			if err := genNode(s, e, NOVAL); err != nil {
				return err
			}
		}
		return nil
	}
	base := s.sp
	for _, e := range elems {
		if err := genNode(s, e, VAL); err != nil {
			return err
		}
	}
	s.popN(len(elems))
	reg, err := s.push()
	if err != nil {
		return err
	}
	_ = base
	s.emitPeep(irep.Instruction{Op: irep.ARRAY, A: reg, B: len(elems)}, val)
	return nil
}

// trimLeadingPlus strips a single leading '+' from a raw numeric token,
// the only sign readint itself accepts; a leading '-' is never part of the
// token and is always an outer NEGATE node instead (spec.md §9, Open
// Questions).
func trimLeadingPlus(raw string) string {
	return strings.TrimPrefix(raw, "+")
}
