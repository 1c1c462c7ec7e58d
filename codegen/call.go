package codegen

import (
	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
)

// fastBinOps names the arithmetic/comparison methods genCall emits as the
// dedicated register-pair opcode (spec.md §4.7) instead of a full SEND,
// mirroring emitBinOp's operator set — the VM falls back to a real method
// dispatch on a type it can't handle inline, so this is always safe.
var fastBinOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"<": true, "<=": true, ">": true, ">=": true, "==": true,
}

// genCall compiles CALL/FCALL/SCALL (spec.md §4.7): receiver (or an
// implicit self), a safe-navigation nil guard when Safe is set, argument
// evaluation in either plain or send-vector mode, and a trailing block.
func genCall(s *Scope, n *ast.Call, val bool) error {
	var recv int
	if n.Receiver != nil {
		if err := genNode(s, n.Receiver, VAL); err != nil {
			return err
		}
		recv = s.top()
	} else {
		reg, err := s.push()
		if err != nil {
			return err
		}
		recv = reg
		s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: recv}, VAL)
	}

	skipChain := noChain
	if n.Safe {
		chain, err := genNilGuard(s, recv)
		if err != nil {
			return err
		}
		skipChain = chain
	}

	if !n.Safe && n.Block == nil && len(n.Args) == 1 && fastBinOps[n.Method] {
		if _, isSplat := n.Args[0].(*ast.Splat); !isSplat {
			if err := genNode(s, n.Args[0], VAL); err != nil {
				return err
			}
			if err := emitBinOp(s, n.Method, recv); err != nil {
				return err
			}
			s.pop()
			if !val {
				s.pop()
			}
			return nil
		}
	}

	argc, hasBlock, hasSplat, err := genCallArgs(s, n.Args, n.Block)
	if err != nil {
		return err
	}

	sym, err := s.IR.AddMethodSym(n.Method)
	if err != nil {
		return err
	}
	op := irep.SEND
	if hasBlock {
		op = irep.SENDB
	}
	c := argc
	if hasSplat {
		c = irep.CallMaxArgs
	}
	s.emitPeep(irep.Instruction{Op: op, A: recv, B: sym, C: c}, val)

	if n.Safe {
		end := s.newLabel()
		if err := s.dispatch(skipChain, end); err != nil {
			return err
		}
	}
	if !val {
		s.pop()
	}
	return nil
}

// genNilGuard emits "is recv nil?" and returns the pending-jump chain to
// thread the safe-navigation skip through (spec.md §8 scenario 6): a copy
// of recv is tested against a fresh nil so the original receiver register
// survives for the call that follows when the guard doesn't fire.
func genNilGuard(s *Scope, recv int) (int, error) {
	tmp, err := s.push()
	if err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: tmp, B: recv}, VAL)
	if _, err := s.push(); err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: tmp + 1}, VAL)
	s.emitPeep(irep.Instruction{Op: irep.EQ, A: tmp}, VAL)
	s.popN(2)
	return s.emitJump(irep.JMPIF, tmp, noChain), nil
}

// genCallArgs evaluates args (switching to send-vector mode — a single
// array argument — when any argument is a splat, or there are more than
// CallMaxArgs-1 of them) and a trailing block, returning the argc to pass
// to SEND/SENDB (meaningless when hasSplat, by convention 0).
func genCallArgs(s *Scope, args []ast.Node, block *ast.BlockArg) (argc int, hasBlock bool, hasSplat bool, err error) {
	for _, a := range args {
		if _, ok := a.(*ast.Splat); ok {
			hasSplat = true
			break
		}
	}
	if len(args) >= irep.CallMaxArgs {
		hasSplat = true
	}

	if hasSplat {
		if err := genSendVectorArgs(s, args); err != nil {
			return 0, false, false, err
		}
	} else {
		for _, a := range args {
			if err := genNode(s, a, VAL); err != nil {
				return 0, false, false, err
			}
		}
		argc = len(args)
	}

	if block != nil {
		if err := genBlockArg(s, block); err != nil {
			return 0, false, false, err
		}
		hasBlock = true
	}
	return argc, hasBlock, hasSplat, nil
}

// genSendVectorArgs builds the single array argument send-vector mode
// passes in place of individually numbered argument registers.
func genSendVectorArgs(s *Scope, args []ast.Node) error {
	base, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.ARRAY, A: base, B: 0}, VAL)
	for _, a := range args {
		if splat, ok := a.(*ast.Splat); ok {
			if err := genNode(s, splat.Value, VAL); err != nil {
				return err
			}
			src := s.top()
			s.pop()
			s.emitPeep(irep.Instruction{Op: irep.ARYCAT, A: base, B: src}, VAL)
			continue
		}
		if err := genNode(s, a, VAL); err != nil {
			return err
		}
		src := s.top()
		s.pop()
		s.emitPeep(irep.Instruction{Op: irep.ARYPUSH, A: base, B: src}, VAL)
	}
	return nil
}

// blockKind/lambdaKind distinguish LAMBDA's "c" operand: a block attached
// to a call (kind 1) unwinds differently on BREAK than a free-standing
// lambda/proc literal (kind 0, see genLambda).
const (
	lambdaKind = 0
	blockKind  = 1
)

func genBlockArg(s *Scope, block *ast.BlockArg) error {
	child := s.enterScope(false)
	if err := bindParams(child, block.Params); err != nil {
		return err
	}
	child.pushLoop(loopBlock, 0)
	if err := genBody(child, block.Body, VAL); err != nil {
		return err
	}
	child.popLoop()
	emitImplicitReturn(child, VAL)
	idx := s.leaveScope(child)

	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LAMBDA, A: reg, B: idx, C: blockKind}, VAL)
	return nil
}

// genLambda compiles a `->(...){...}`/`lambda{}`/`proc{}` expression node
// into a child IREP plus a LAMBDA instruction producing the closure value
// (spec.md §4.6, LAMBDA/BLOCK). Being a pure expression, it is skipped
// entirely under NOVAL.
func genLambda(s *Scope, n *ast.Lambda, val bool) error {
	if !val {
		return nil
	}
	child := s.enterScope(false)
	if err := bindParams(child, n.Params); err != nil {
		return err
	}
	child.pushLoop(loopBlock, 0)
	if err := genBody(child, n.Body, VAL); err != nil {
		return err
	}
	child.popLoop()
	emitImplicitReturn(child, VAL)
	idx := s.leaveScope(child)

	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LAMBDA, A: reg, B: idx, C: lambdaKind}, val)
	return nil
}

// genSuper compiles SUPER/ZSUPER. ZSUPER (Explicit == false) forwards the
// enclosing method's own arguments exactly, via ARGARY walking out to the
// mscope boundary (spec.md §4.6, §4.7; GLOSSARY "Method scope").
func genSuper(s *Scope, n *ast.Super, val bool) error {
	method := s.enclosingMethod()
	if method == nil {
		return s.errorf("super called outside of a method")
	}

	recv, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: recv}, VAL)

	var argc int
	var hasBlock, hasSplat bool
	if n.Explicit {
		argc, hasBlock, hasSplat, err = genCallArgs(s, n.Args, n.Block)
		if err != nil {
			return err
		}
	} else {
		dest, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.ARGARY, A: dest, B: method.AInfo.Mandatory}, VAL)
		hasSplat = true
	}

	op := irep.SUPER
	c := argc
	if hasSplat {
		c = irep.CallMaxArgs
	}
	if hasBlock {
		op = irep.SENDB // a block was explicitly supplied to super(...)
	}
	s.emitPeep(irep.Instruction{Op: op, A: recv, C: c}, val)
	if !val {
		s.pop()
	}
	return nil
}

// genYield compiles YIELD via BLKPUSH (spec.md §4.6).
func genYield(s *Scope, n *ast.Yield, val bool) error {
	if !s.withinMethodBody() {
		return s.errorf("yield outside of a method")
	}
	base, err := s.push()
	if err != nil {
		return err
	}
	argc, _, hasSplat, err := genCallArgs(s, n.Args, nil)
	if err != nil {
		return err
	}
	c := argc
	if hasSplat {
		c = irep.CallMaxArgs
	}
	s.emitPeep(irep.Instruction{Op: irep.BLKPUSH, A: base, B: c}, val)
	if !val {
		s.pop()
	}
	return nil
}

// bindParams declares one local per parameter in ABI order and, when there
// is at least one parameter, emits the ENTER opcode with the packed
// argument specification; mandatory parameters after a `*rest` count as
// post-rest (pa), and `**name` sets no keyword bits (spec.md §4.6
// DEF/SDEF/LAMBDA; §6 ENTER argspec). Optional parameters' default-value
// code follows ENTER directly, one label per parameter — the dispatch
// table into these labels is the (out-of-scope) VM's responsibility, not
// codegen's.
func bindParams(s *Scope, params []ast.Param) error {
	var mandatory, optional, post, keyword int
	var rest, hasBlock bool
	for _, p := range params {
		switch {
		case p.Block:
			hasBlock = true
		case p.Splat:
			rest = true
		case p.DoubleSplat:
			// bound as a local below; sets no ka/kd bits
		case p.Default != nil:
			optional++
		case rest:
			post++
		default:
			mandatory++
		}
	}
	spec := irep.ArgSpec{
		Mandatory: mandatory,
		Optional:  optional,
		Rest:      rest,
		Post:      post,
		Keyword:   keyword,
		Block:     hasBlock,
	}
	s.AInfo = spec
	if len(params) > 0 {
		s.emitPeep(irep.Instruction{Op: irep.ENTER, B: spec.Pack()}, NOVAL)
	}

	for _, p := range params {
		reg, err := s.declareLocal(p.Name)
		if err != nil {
			return err
		}
		if p.Default == nil {
			continue
		}
		s.newLabel()
		if err := genNode(s, p.Default, VAL); err != nil {
			return err
		}
		src := s.top()
		s.pop()
		if src != reg {
			s.emitPeep(irep.Instruction{Op: irep.MOVE, A: reg, B: src}, VAL)
		}
	}
	return nil
}
