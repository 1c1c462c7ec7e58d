package codegen

import (
	"strconv"

	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
)

// Options configures a single Generate call (spec.md §6, upstream
// interface: filename table, current file index, no_optimize flag).
type Options struct {
	Filename   string
	NoOptimize bool
}

// Generate walks prog and produces the top-level *irep.IREP, the sole
// entry point external callers (a parser driver, a REPL, a disassembler
// CLI) use (spec.md §1, §6).
func Generate(prog *ast.Program, opts Options) (*irep.IREP, error) {
	top := newScope(nil, true, opts.Filename, 0, opts.NoOptimize)
	top.IR.Filenames = []string{opts.Filename}

	if err := genBody(top, prog.Stmts, VAL); err != nil {
		return nil, err
	}
	emitImplicitReturn(top, VAL)
	return top.IR, nil
}

// emitImplicitReturn appends a trailing RETURN at the end of the top level
// and of any method/lambda/block/class/module/singleton body that falls
// off the end without one. val must match the val the preceding genBody
// call for this same body used: with VAL, the body's last statement has
// already left its value on top of the register stack, so that value is
// what gets returned; with NOVAL (class/module/singleton bodies, which
// have no return value), a fresh nil is loaded and returned instead.
func emitImplicitReturn(s *Scope, val bool) {
	if last := s.last(); last != nil && last.Op == irep.RETURN {
		return
	}
	if val {
		reg := s.top()
		s.emitPeep(irep.Instruction{Op: irep.RETURN, A: reg, B: irep.RNormal}, NOVAL)
		s.pop()
		return
	}
	reg, err := s.push()
	if err != nil {
		return // register file already exhausted; an earlier node reported it
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: reg}, VAL)
	s.emitPeep(irep.Instruction{Op: irep.RETURN, A: reg, B: irep.RNormal}, NOVAL)
	s.pop()
}

// genBody compiles a statement list: every statement but the last is
// generated with NOVAL (its result, if any, is discarded), and the last
// one inherits val from the caller (spec.md §4.6, BEGIN).
func genBody(s *Scope, stmts []ast.Node, val bool) error {
	if len(stmts) == 0 {
		if val {
			reg, err := s.push()
			if err != nil {
				return err
			}
			s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: reg}, val)
		}
		return nil
	}
	for _, stmt := range stmts[:len(stmts)-1] {
		if err := genNode(s, stmt, NOVAL); err != nil {
			return err
		}
	}
	return genNode(s, stmts[len(stmts)-1], val)
}

// genNode is the single dispatch point over every AST node tag
// (spec.md §2, §4.6).
func genNode(s *Scope, n ast.Node, val bool) error {
	s.Line = n.Pos().Line

	switch node := n.(type) {
	case *ast.Program:
		return genBody(s, node.Stmts, val)
	case *ast.Begin:
		return genBody(s, node.Stmts, val)

	case *ast.IntLit:
		return genIntLit(s, node, val)
	case *ast.FloatLit:
		return genFloatLit(s, node, val)
	case *ast.Negate:
		return genNegate(s, node, val)
	case *ast.StrLit:
		return genStrLit(s, node, val)
	case *ast.DStr:
		return genDStr(s, node.Parts, val)
	case *ast.Heredoc:
		return genHeredoc(s, node, val)
	case *ast.SymLit:
		return genSymLit(s, node, val)
	case *ast.DSym:
		return genDSym(s, node, val)
	case *ast.Regexp:
		return genRegexp(s, node, val)
	case *ast.DRegexp:
		return genDRegexp(s, node, val)
	case *ast.XStr:
		return genXStr(s, node, val)
	case *ast.DXStr:
		return genDXStr(s, node, val)
	case *ast.WordsLit:
		return genWordsLit(s, node.Words, val)
	case *ast.SymbolsLit:
		return genSymbolsLit(s, node.Words, val)
	case *ast.ArrayLit:
		return genArrayLitNode(s, node, val)
	case *ast.HashLit:
		return genHashLit(s, node, val)
	case *ast.RangeLit:
		return genRangeLit(s, node, val)

	case *ast.TrueLit:
		return genConstOp(s, irep.LOADT, val)
	case *ast.FalseLit:
		return genConstOp(s, irep.LOADF, val)
	case *ast.NilLit:
		return genConstOp(s, irep.LOADNIL, val)
	case *ast.SelfLit:
		return genConstOp(s, irep.LOADSELF, val)

	case *ast.LVar:
		return genLVar(s, node, val)
	case *ast.GVar:
		return genGVar(s, node, val)
	case *ast.IVar:
		return genIVar(s, node, val)
	case *ast.CVar:
		return genCVar(s, node, val)
	case *ast.ConstRef:
		return genConstRef(s, node, val)
	case *ast.Colon2:
		return genColon2(s, node, val)
	case *ast.Colon3:
		return genColon3(s, node, val)
	case *ast.BackRef:
		return genBackRef(s, node, val)
	case *ast.NthRef:
		return genNthRef(s, node, val)

	case *ast.Assign:
		return genAssign(s, node, val)
	case *ast.MAsgn:
		return genMAsgn(s, node, val)
	case *ast.OpAssign:
		return genOpAssign(s, node, val)

	case *ast.If:
		return genIf(s, node, val)
	case *ast.And:
		return genAnd(s, node, val)
	case *ast.Or:
		return genOr(s, node, val)
	case *ast.While:
		return genWhile(s, node, val)
	case *ast.For:
		return genFor(s, node, val)
	case *ast.Case:
		return genCase(s, node, val)
	case *ast.BeginRescue:
		return genBeginRescue(s, node, val)

	case *ast.Return:
		return genReturn(s, node)
	case *ast.Break:
		return genBreak(s, node)
	case *ast.NextStmt:
		return genNext(s, node)
	case *ast.Redo:
		return genRedo(s)
	case *ast.Retry:
		return genRetry(s)

	case *ast.Call:
		return genCall(s, node, val)
	case *ast.Super:
		return genSuper(s, node, val)
	case *ast.Yield:
		return genYield(s, node, val)
	case *ast.Lambda:
		return genLambda(s, node, val)

	case *ast.MethodDef:
		return genMethodDef(s, node, val)
	case *ast.ClassDef:
		return genClassDef(s, node, val)
	case *ast.ModuleDef:
		return genModuleDef(s, node, val)
	case *ast.SClassDef:
		return genSClassDef(s, node, val)
	case *ast.Alias:
		return genAlias(s, node, val)
	case *ast.Undef:
		return genUndef(s, node, val)

	case *ast.Splat:
		return genNode(s, node.Value, val)
	case *ast.DoubleSplat:
		return genNode(s, node.Value, val)

	default:
		return s.errorf("codegen: unhandled node type %T", n)
	}
}

// genConstOp emits a zero-operand value-producing opcode (LOADT/LOADF/
// LOADNIL/LOADSELF) into a fresh register, or does nothing for NOVAL since
// these are all pure (spec.md §4.6).
func genConstOp(s *Scope, op irep.Opcode, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: op, A: reg}, val)
	return nil
}

func genArrayLitNode(s *Scope, n *ast.ArrayLit, val bool) error {
	return genArrayOf(s, n.Elements, val)
}

func genRangeLit(s *Scope, n *ast.RangeLit, val bool) error {
	if err := genNode(s, n.Low, VAL); err != nil {
		return err
	}
	if err := genNode(s, n.High, VAL); err != nil {
		return err
	}
	if !val {
		s.popN(2)
		return nil
	}
	low := s.sp - 2
	excl := 0
	if n.Exclusive {
		excl = 1
	}
	s.popN(2)
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.RANGE, A: reg, B: low, C: excl}, val)
	return nil
}

func genHashLit(s *Scope, n *ast.HashLit, val bool) error {
	if !val {
		for _, pair := range n.Pairs {
			if err := genNode(s, pair.Key, NOVAL); err != nil {
				return err
			}
			if err := genNode(s, pair.Value, NOVAL); err != nil {
				return err
			}
		}
		return nil
	}
	base := s.sp
	for _, pair := range n.Pairs {
		if err := genNode(s, pair.Key, VAL); err != nil {
			return err
		}
		if err := genNode(s, pair.Value, VAL); err != nil {
			return err
		}
	}
	s.popN(2 * len(n.Pairs))
	reg, err := s.push()
	if err != nil {
		return err
	}
	_ = base
	s.emitPeep(irep.Instruction{Op: irep.HASH, A: reg, B: len(n.Pairs)}, val)
	return nil
}

func genLVar(s *Scope, n *ast.LVar, val bool) error {
	if !val {
		return nil
	}
	reg, depth, ok := s.resolveVar(n.Name)
	dest, err := s.push()
	if err != nil {
		return err
	}
	if !ok {
		return s.errorf("undefined local variable or method '%s'", n.Name)
	}
	if depth == 0 {
		s.emitPeep(irep.Instruction{Op: irep.MOVE, A: dest, B: reg}, val)
		return nil
	}
	s.emitPeep(irep.Instruction{Op: irep.GETUPVAR, A: dest, B: reg, C: depth}, val)
	return nil
}

func genGVar(s *Scope, n *ast.GVar, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETGLOBAL, A: reg, B: idx}, val)
	return nil
}

func genIVar(s *Scope, n *ast.IVar, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETIV, A: reg, B: idx}, val)
	return nil
}

func genCVar(s *Scope, n *ast.CVar, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETCV, A: reg, B: idx}, val)
	return nil
}

func genConstRef(s *Scope, n *ast.ConstRef, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETCONST, A: reg, B: idx}, val)
	return nil
}

func genColon2(s *Scope, n *ast.Colon2, val bool) error {
	if err := genNode(s, n.Base, VAL); err != nil {
		return err
	}
	if !val {
		s.pop()
		return nil
	}
	base := s.top()
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETMCNST, A: base, B: idx}, val)
	return nil
}

func genColon3(s *Scope, n *ast.Colon3, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym(n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETCONST, A: reg, B: idx}, val)
	return nil
}

func genBackRef(s *Scope, n *ast.BackRef, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym("$" + n.Name)
	s.emitPeep(irep.Instruction{Op: irep.GETGLOBAL, A: reg, B: idx}, val)
	return nil
}

func genNthRef(s *Scope, n *ast.NthRef, val bool) error {
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	idx := s.IR.AddSym("$" + strconv.Itoa(n.N))
	s.emitPeep(irep.Instruction{Op: irep.GETGLOBAL, A: reg, B: idx}, val)
	return nil
}
