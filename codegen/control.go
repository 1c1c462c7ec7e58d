package codegen

import (
	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
)

// literalTruth reports whether cond is a literal whose truthiness is known
// at compile time, the one constant-folding the generator performs beyond
// `literal +/- integer` and empty-string STRCAT elision (spec.md §1
// Non-goals; §8 scenario "if true then X else Y end ≡ X").
func literalTruth(n ast.Node) (truthy bool, ok bool) {
	switch n.(type) {
	case *ast.TrueLit, *ast.SelfLit:
		return true, true
	case *ast.FalseLit, *ast.NilLit:
		return false, true
	default:
		return false, false
	}
}

func genIf(s *Scope, n *ast.If, val bool) error {
	if truthy, ok := literalTruth(n.Cond); ok {
		if truthy {
			return genBody(s, n.Then, val)
		}
		return genBody(s, n.Else, val)
	}

	if err := genNode(s, n.Cond, VAL); err != nil {
		return err
	}
	cond := s.top()
	s.pop()

	elseChain := s.emitJump(irep.JMPNOT, cond, noChain)
	if err := genBody(s, n.Then, val); err != nil {
		return err
	}
	if val {
		s.pop() // Else will reclaim and overwrite the same register
	}
	doneChain := s.emitJump(irep.JMP, 0, noChain)

	elseStart := s.newLabel()
	if err := s.dispatch(elseChain, elseStart); err != nil {
		return err
	}
	if err := genBody(s, n.Else, val); err != nil {
		return err
	}

	end := s.newLabel()
	if err := s.dispatch(doneChain, end); err != nil {
		return err
	}
	if val {
		if _, err := s.push(); err != nil {
			return err
		}
	}
	return nil
}

func genAnd(s *Scope, n *ast.And, val bool) error {
	if err := genNode(s, n.LHS, VAL); err != nil {
		return err
	}
	reg := s.top()
	chain := s.emitJump(irep.JMPNOT, reg, noChain)
	s.pop()
	if err := genNode(s, n.RHS, VAL); err != nil {
		return err
	}
	end := s.newLabel()
	if err := s.dispatch(chain, end); err != nil {
		return err
	}
	if !val {
		s.pop()
	}
	return nil
}

func genOr(s *Scope, n *ast.Or, val bool) error {
	if err := genNode(s, n.LHS, VAL); err != nil {
		return err
	}
	reg := s.top()
	chain := s.emitJump(irep.JMPIF, reg, noChain)
	s.pop()
	if err := genNode(s, n.RHS, VAL); err != nil {
		return err
	}
	end := s.newLabel()
	if err := s.dispatch(chain, end); err != nil {
		return err
	}
	if !val {
		s.pop()
	}
	return nil
}

// genWhile compiles WHILE/UNTIL and BEGIN..END WHILE/UNTIL (spec.md §4.6).
// BREAK links into the loop's PC1 chain (the shared loop-exit target,
// also reached on ordinary condition failure); NEXT links into PC2
// (re-check the condition); REDO links into PC3 (re-enter the body).
func genWhile(s *Scope, n *ast.While, val bool) error {
	// BREAK unconditionally writes its value through rec.Acc regardless of
	// val (genBreak has no way to tell, at the point it runs, whether this
	// particular loop's result is wanted) — so acc always needs a real
	// register, never the zero value, or an unvalued loop's BREAK would
	// clobber register 0 (self).
	acc, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: acc}, VAL)
	rec := s.pushLoop(loopNormal, acc)

	loopOp := irep.JMPIF
	if n.Negate {
		loopOp = irep.JMPNOT
	}
	exitOp := irep.JMPNOT
	if n.Negate {
		exitOp = irep.JMPIF
	}

	if n.DoWhile {
		bodyStart := s.newLabel()
		if err := s.dispatchLinked(rec.PC3, bodyStart); err != nil {
			return err
		}
		if err := genBody(s, n.Body, NOVAL); err != nil {
			return err
		}
		condStart := s.newLabel()
		if err := s.dispatchLinked(rec.PC2, condStart); err != nil {
			return err
		}
		if err := genNode(s, n.Cond, VAL); err != nil {
			return err
		}
		cond := s.top()
		s.pop()
		s.emitJumpTo(loopOp, cond, bodyStart)
	} else {
		top := s.newLabel()
		if err := genNode(s, n.Cond, VAL); err != nil {
			return err
		}
		cond := s.top()
		s.pop()
		rec.PC1 = s.emitJump(exitOp, cond, rec.PC1)

		bodyStart := s.newLabel()
		if err := s.dispatchLinked(rec.PC3, bodyStart); err != nil {
			return err
		}
		if err := genBody(s, n.Body, NOVAL); err != nil {
			return err
		}
		if err := s.dispatchLinked(rec.PC2, top); err != nil {
			return err
		}
		s.emitJumpTo(irep.JMP, 0, top)
	}

	end := s.newLabel()
	if err := s.dispatchLinked(rec.PC1, end); err != nil {
		return err
	}
	s.popLoop()
	if !val {
		s.pop()
	}
	return nil
}

// genFor desugars FOR into a call to .each with the loop variables bound
// as the block's parameters (spec.md §4.6, FOR).
func genFor(s *Scope, n *ast.For, val bool) error {
	block := &ast.BlockArg{Params: forParamsFromVars(n.Vars), Body: n.Body}
	call := &ast.Call{Receiver: n.Iter, Method: "each", Block: block}
	return genCall(s, call, val)
}

func forParamsFromVars(vars []ast.Node) []ast.Param {
	params := make([]ast.Param, 0, len(vars))
	for _, v := range vars {
		if lv, ok := v.(*ast.LVar); ok {
			params = append(params, ast.Param{Name: lv.Name})
		}
	}
	return params
}

// genCaseEqq emits a `pattern === subject` (or `pattern === self` when
// there is no case subject) send and returns the register holding the
// boolean result (spec.md §4.6, CASE).
func genCaseEqq(s *Scope, hasSubject bool, subjReg int, pattern ast.Node) (int, error) {
	if err := genNode(s, pattern, VAL); err != nil {
		return 0, err
	}
	recv := s.top()
	arg, err := s.push()
	if err != nil {
		return 0, err
	}
	if hasSubject {
		s.emitPeep(irep.Instruction{Op: irep.MOVE, A: arg, B: subjReg}, VAL)
	} else {
		s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: arg}, VAL)
	}
	sym, err := s.IR.AddMethodSym("===")
	if err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: 1}, VAL)
	s.pop()
	return recv, nil
}

// genCase compiles CASE/WHEN. A `when *a` splat pattern tests containment
// via a case-equality helper call rather than inlining a loop over the
// array (spec.md §4.6, §9 supplemented feature: __case_eqq).
func genCase(s *Scope, n *ast.Case, val bool) error {
	hasSubject := n.Subject != nil
	subjReg := 0
	if hasSubject {
		if err := genNode(s, n.Subject, VAL); err != nil {
			return err
		}
		subjReg = s.top()
	}

	var result int
	if val {
		reg, err := s.push()
		if err != nil {
			return err
		}
		result = reg
		s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: result}, VAL)
	}

	doneChain := noChain
	nextClause := noChain
	for i, when := range n.Whens {
		if i > 0 {
			lbl := s.newLabel()
			if err := s.dispatchLinked(nextClause, lbl); err != nil {
				return err
			}
			nextClause = noChain
		}

		bodyChain := noChain
		for _, pat := range when.Patterns {
			if splat, ok := pat.(*ast.Splat); ok {
				matched, err := genCaseEqqSplat(s, hasSubject, subjReg, splat.Value)
				if err != nil {
					return err
				}
				bodyChain = s.emitJump(irep.JMPIF, matched, bodyChain)
				s.pop()
				continue
			}
			matched, err := genCaseEqq(s, hasSubject, subjReg, pat)
			if err != nil {
				return err
			}
			bodyChain = s.emitJump(irep.JMPIF, matched, bodyChain)
			s.pop()
		}
		nextClause = s.emitJump(irep.JMP, 0, nextClause)

		bodyStart := s.newLabel()
		if err := s.dispatchLinked(bodyChain, bodyStart); err != nil {
			return err
		}
		if val {
			s.pop() // body writes into the same result register
		}
		if err := genBody(s, when.Body, val); err != nil {
			return err
		}
		doneChain = s.emitJump(irep.JMP, 0, doneChain)
	}

	if nextClause != noChain {
		lbl := s.newLabel()
		if err := s.dispatchLinked(nextClause, lbl); err != nil {
			return err
		}
	}
	if len(n.Else) > 0 {
		if val {
			s.pop()
		}
		if err := genBody(s, n.Else, val); err != nil {
			return err
		}
	}

	end := s.newLabel()
	if err := s.dispatchLinked(doneChain, end); err != nil {
		return err
	}
	if val {
		if _, err := s.push(); err != nil {
			return err
		}
	}
	return nil
}

// genCaseEqqSplat implements `when *array`: each element of array is
// tested via ===, matching if any one does (the __case_eqq helper in
// original_source/codegen.c folds this into a single runtime call; here
// too it is one SEND of __case_eqq to the array, with the subject, or
// self when there is none, as its single argument).
func genCaseEqqSplat(s *Scope, hasSubject bool, subjReg int, arr ast.Node) (int, error) {
	if err := genNode(s, arr, VAL); err != nil {
		return 0, err
	}
	recv := s.top()
	arg, err := s.push()
	if err != nil {
		return 0, err
	}
	if hasSubject {
		s.emitPeep(irep.Instruction{Op: irep.MOVE, A: arg, B: subjReg}, VAL)
	} else {
		s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: arg}, VAL)
	}
	sym, err := s.IR.AddMethodSym("__case_eqq")
	if err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: recv, B: sym, C: 1}, VAL)
	s.pop()
	return recv, nil
}

// genBeginRescue compiles BEGIN..RESCUE..ELSE..ENSURE (spec.md §4.6).
// ENSURE brackets the protected region with EPUSH/EPOP around a child
// IREP holding the ensure body; RESCUE dispatches ONERR to the handler
// chain and RAISE re-raises when no rescue clause matches.
func genBeginRescue(s *Scope, n *ast.BeginRescue, val bool) error {
	hasEnsure := len(n.Ensure) > 0
	if hasEnsure {
		child := s.enterScope(false)
		if err := genBody(child, n.Ensure, NOVAL); err != nil {
			return err
		}
		emitImplicitReturn(child, NOVAL)
		idx := s.leaveScope(child)
		s.emitPeep(irep.Instruction{Op: irep.EPUSH, A: 0, B: idx}, NOVAL)
		s.ensureLevel++
	}

	hasRescue := len(n.Rescues) > 0
	var rec *loopRecord
	var onerr int
	if hasRescue {
		rec = s.pushLoop(loopRescue, 0)
		onerr = s.emit(irep.Instruction{Op: irep.ONERR})
	}

	if err := genBody(s, n.Body, val); err != nil {
		return err
	}

	if hasRescue {
		s.emitPeep(irep.Instruction{Op: irep.POPERR, A: 1}, NOVAL)
		if len(n.Else) > 0 {
			if val {
				s.pop()
			}
			if err := genBody(s, n.Else, val); err != nil {
				return err
			}
		}
		doneChain := s.emitJump(irep.JMP, 0, noChain)

		handlerPC := s.newLabel()
		if err := s.dispatch(onerr, handlerPC); err != nil {
			return err
		}

		nextClause := noChain
		for i, resc := range n.Rescues {
			if i > 0 {
				lbl := s.newLabel()
				if err := s.dispatchLinked(nextClause, lbl); err != nil {
					return err
				}
				nextClause = noChain
			}

			var bodyChain int
			if len(resc.Classes) == 0 {
				bodyChain = s.emitJump(irep.JMP, 0, noChain)
			} else {
				bodyChain = noChain
				for _, cls := range resc.Classes {
					matched, err := genCaseEqq(s, false, 0, cls)
					if err != nil {
						return err
					}
					bodyChain = s.emitJump(irep.JMPIF, matched, bodyChain)
					s.pop()
				}
				nextClause = s.emitJump(irep.JMP, 0, nextClause)
			}

			bodyStart := s.newLabel()
			if err := s.dispatchLinked(bodyChain, bodyStart); err != nil {
				return err
			}
			if resc.Var != nil {
				if err := bindRescueVar(s, resc.Var); err != nil {
					return err
				}
			}
			if val {
				s.pop()
			}
			if err := genBody(s, resc.Body, val); err != nil {
				return err
			}
			doneChain = s.emitJump(irep.JMP, 0, doneChain)
		}

		if nextClause != noChain {
			lbl := s.newLabel()
			if err := s.dispatchLinked(nextClause, lbl); err != nil {
				return err
			}
		}
		s.emitPeep(irep.Instruction{Op: irep.RAISE}, NOVAL)

		end := s.newLabel()
		if err := s.dispatchLinked(doneChain, end); err != nil {
			return err
		}
		if err := s.dispatchLinked(rec.PC1, onerr); err != nil {
			return err
		}
		s.popLoop()
	}

	if hasEnsure {
		s.ensureLevel--
		s.emitPeep(irep.Instruction{Op: irep.EPOP, A: 1}, NOVAL)
	}
	return nil
}

// bindRescueVar declares (or resolves) the local naming the caught
// exception and loads it from the interpreter's "current exception"
// special slot, conventionally special-variable index 1 ($!).
func bindRescueVar(s *Scope, v ast.Node) error {
	lv, ok := v.(*ast.LVar)
	if !ok {
		return s.errorf("invalid rescue variable")
	}
	reg, _, ok := s.resolveVar(lv.Name)
	if !ok {
		r, err := s.declareLocal(lv.Name)
		if err != nil {
			return err
		}
		reg = r
	}
	s.emitPeep(irep.Instruction{Op: irep.GETSPECIAL, A: reg, B: 1}, VAL)
	return nil
}

func genReturn(s *Scope, n *ast.Return) error {
	reg, err := genOptionalValue(s, n.Value)
	if err != nil {
		return err
	}
	kind := irep.RNormal
	if !s.MScope {
		kind = irep.RReturn
	}
	s.emitPeep(irep.Instruction{Op: irep.RETURN, A: reg, B: kind}, NOVAL)
	return nil
}

func genBreak(s *Scope, n *ast.Break) error {
	rec, err := s.linkBreak()
	if err != nil {
		return err
	}
	reg, err := genOptionalValue(s, n.Value)
	if err != nil {
		return err
	}
	if rec.Kind == loopBlock {
		s.emitPeep(irep.Instruction{Op: irep.RETURN, A: reg, B: irep.RBreak}, NOVAL)
		return nil
	}
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: rec.Acc, B: reg}, VAL)
	rec.PC1 = s.emitJump(irep.JMP, 0, rec.PC1)
	return nil
}

func genNext(s *Scope, n *ast.NextStmt) error {
	rec, err := s.linkNextRedo()
	if err != nil {
		return err
	}
	if rec.Kind == loopBlock {
		reg, err := genOptionalValue(s, n.Value)
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.RETURN, A: reg, B: irep.RNormal}, NOVAL)
		return nil
	}
	if n.Value != nil {
		if err := genNode(s, n.Value, NOVAL); err != nil {
			return err
		}
	}
	rec.PC2 = s.emitJump(irep.JMP, 0, rec.PC2)
	return nil
}

func genRedo(s *Scope) error {
	rec, err := s.linkNextRedo()
	if err != nil {
		return err
	}
	rec.PC3 = s.emitJump(irep.JMP, 0, rec.PC3)
	return nil
}

func genRetry(s *Scope) error {
	rec, err := s.nearestRescue()
	if err != nil {
		return err
	}
	rec.PC1 = s.emitJump(irep.JMP, 0, rec.PC1)
	return nil
}

// genOptionalValue compiles an optional RETURN/BREAK/NEXT operand,
// defaulting to nil, always leaving the value in a freshly pushed
// register it returns.
func genOptionalValue(s *Scope, v ast.Node) (int, error) {
	if v == nil {
		reg, err := s.push()
		if err != nil {
			return 0, err
		}
		s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: reg}, VAL)
		return reg, nil
	}
	if err := genNode(s, v, VAL); err != nil {
		return 0, err
	}
	return s.top(), nil
}
