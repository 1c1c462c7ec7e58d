package codegen

import (
	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
)

// genAssign compiles a single-target ASGN (spec.md §4.8): the attribute
// (`recv.m =`) and `a::B =` forms need receiver-aware codegen distinct
// from a plain register/symbol store, so they're dispatched before the
// common path.
func genAssign(s *Scope, n *ast.Assign, val bool) error {
	return genAssignTo(s, n.LHS, n.RHS, val)
}

func genAssignTo(s *Scope, lhs ast.Node, rhs ast.Node, val bool) error {
	switch t := lhs.(type) {
	case *ast.Call:
		return genAttrAssign(s, t, rhs, val)
	case *ast.Colon2:
		return genColon2Assign(s, t, rhs, val)
	}
	// A fresh plain local reserves its register before rhs is walked, so
	// rhs's own scratch registers always land above it: that's what lets
	// the peephole retarget an arithmetic producer straight into the new
	// local (spec.md §8 scenario 5) instead of leaving a dead MOVE behind.
	if lv, ok := lhs.(*ast.LVar); ok {
		if _, _, found := s.resolveVar(lv.Name); !found {
			if _, err := s.declareLocal(lv.Name); err != nil {
				return err
			}
		}
	}
	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	src := s.top()
	if err := assignRegTo(s, lhs, src, val); err != nil {
		return err
	}
	if !val {
		s.pop()
	}
	return nil
}

// assignRegTo stores the value already sitting in register src into lhs,
// without re-evaluating rhs — the primitive gen_vmassignment builds on
// for destructuring (spec.md §4.8). val carries the enclosing assignment
// expression's own val: when false, src is about to be discarded by the
// caller regardless of what ends up in it, which is what lets the MOVE
// this emits retarget an arithmetic or producer chain straight into lhs's
// register instead (spec.md §8 scenario 5) — see emitPeep's `!val` guards.
func assignRegTo(s *Scope, lhs ast.Node, src int, val bool) error {
	switch t := lhs.(type) {
	case nil:
		return nil // a splat/rest slot with no binding target: no-op
	case *ast.LVar:
		reg, depth, ok := s.resolveVar(t.Name)
		if !ok {
			r, err := s.declareLocal(t.Name)
			if err != nil {
				return err
			}
			reg, depth = r, 0
		}
		if depth == 0 {
			if src != reg {
				s.emitPeep(irep.Instruction{Op: irep.MOVE, A: reg, B: src}, val)
			}
			return nil
		}
		s.emitPeep(irep.Instruction{Op: irep.SETUPVAR, A: src, B: reg, C: depth}, val)
		return nil
	case *ast.IVar:
		idx := s.IR.AddSym(t.Name)
		s.emitPeep(irep.Instruction{Op: irep.SETIV, A: src, B: idx}, val)
		return nil
	case *ast.GVar:
		idx := s.IR.AddSym(t.Name)
		s.emitPeep(irep.Instruction{Op: irep.SETGLOBAL, A: src, B: idx}, val)
		return nil
	case *ast.CVar:
		idx := s.IR.AddSym(t.Name)
		s.emitPeep(irep.Instruction{Op: irep.SETCV, A: src, B: idx}, val)
		return nil
	case *ast.ConstRef:
		idx := s.IR.AddSym(t.Name)
		s.emitPeep(irep.Instruction{Op: irep.SETCONST, A: src, B: idx}, val)
		return nil
	default:
		return s.errorf("invalid assignment target")
	}
}

func genColon2Assign(s *Scope, t *ast.Colon2, rhs ast.Node, val bool) error {
	if err := genNode(s, t.Base, VAL); err != nil {
		return err
	}
	base := s.top()
	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	value := s.top()
	idx := s.IR.AddSym(t.Name)
	s.emitPeep(irep.Instruction{Op: irep.SETMCNST, A: base, B: idx}, VAL)
	s.pop()
	if val {
		if value != base {
			s.emitPeep(irep.Instruction{Op: irep.MOVE, A: base, B: value}, VAL)
		}
		return nil
	}
	s.pop()
	return nil
}

// genAttrAssign rewrites `recv.m = v` (and `recv[i] = v`, whose Call node
// already carries Method == "[]") into a call to the setter method
// (spec.md §4.8, "recv.m= attr-setter call").
func genAttrAssign(s *Scope, t *ast.Call, rhs ast.Node, val bool) error {
	method := t.Method + "="
	args := make([]ast.Node, 0, len(t.Args)+1)
	args = append(args, t.Args...)
	args = append(args, rhs)
	call := &ast.Call{Receiver: t.Receiver, Method: method, Args: args, Safe: t.Safe}
	return genCall(s, call, val)
}

// genMAsgn compiles destructuring assignment (spec.md §4.8, §8 scenario
// 4): pre-names load directly via AREF, an optional rest plus any
// post-names load via a single APOST.
func genMAsgn(s *Scope, n *ast.MAsgn, val bool) error {
	var arrReg int
	if len(n.RHS) == 1 {
		if err := genNode(s, n.RHS[0], VAL); err != nil {
			return err
		}
		arrReg = s.top()
	} else {
		if err := genArrayOf(s, n.RHS, VAL); err != nil {
			return err
		}
		arrReg = s.top()
	}

	for i, pre := range n.Pre {
		dest, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.AREF, A: dest, B: arrReg, C: i}, VAL)
		if err := assignRegTo(s, pre, dest, NOVAL); err != nil {
			return err
		}
		s.pop()
	}

	if n.Rest != nil || len(n.Post) > 0 {
		tailCount := len(n.Post)
		if n.Rest != nil {
			tailCount++
		}
		tailBase, err := s.pushN(tailCount)
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.APOST, A: tailBase, B: len(n.Pre), C: len(n.Post)}, VAL)
		idx := tailBase
		if n.Rest != nil {
			if err := assignRegTo(s, n.Rest, idx, NOVAL); err != nil {
				return err
			}
			idx++
		}
		for _, post := range n.Post {
			if err := assignRegTo(s, post, idx, NOVAL); err != nil {
				return err
			}
			idx++
		}
		s.popN(tailCount)
	}

	if !val {
		s.pop()
	}
	return nil
}

// genOpAssign compiles `lhs op= rhs`: `||=`/`&&=` short-circuit on the
// current value of lhs, everything else desugars to `lhs = lhs op rhs`
// (spec.md §4.8).
func genOpAssign(s *Scope, n *ast.OpAssign, val bool) error {
	if call, ok := n.LHS.(*ast.Call); ok {
		switch n.Op {
		case "||":
			return genAttrOpAssignShortCircuit(s, call, n.RHS, val, irep.JMPIF)
		case "&&":
			return genAttrOpAssignShortCircuit(s, call, n.RHS, val, irep.JMPNOT)
		default:
			return genAttrOpAssign(s, call, n.Op, n.RHS, val)
		}
	}

	switch n.Op {
	case "||":
		return genOpAssignShortCircuit(s, n.LHS, n.RHS, val, irep.JMPIF)
	case "&&":
		return genOpAssignShortCircuit(s, n.LHS, n.RHS, val, irep.JMPNOT)
	default:
		return genOpAssignPlain(s, n.LHS, n.Op, n.RHS, val)
	}
}

func genOpAssignPlain(s *Scope, lhs ast.Node, op string, rhs ast.Node, val bool) error {
	if err := genNode(s, lhs, VAL); err != nil {
		return err
	}
	cur := s.top()
	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	if err := emitBinOp(s, op, cur); err != nil {
		return err
	}
	s.pop()
	if err := assignRegTo(s, lhs, cur, val); err != nil {
		return err
	}
	if !val {
		s.pop()
	}
	return nil
}

// genOpAssignShortCircuit implements `lhs ||= rhs` / `lhs &&= rhs` for a
// plain (non-attribute) lhs: skipOp decides, from lhs's own current
// value, whether rhs is even evaluated.
func genOpAssignShortCircuit(s *Scope, lhs ast.Node, rhs ast.Node, val bool, skipOp irep.Opcode) error {
	if err := genNode(s, lhs, VAL); err != nil {
		return err
	}
	cur := s.top()
	chain := s.emitJump(skipOp, cur, noChain)
	s.pop()
	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	if err := assignRegTo(s, lhs, s.top(), val); err != nil {
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

// emitBinOp emits the two-adjacent-register binary opcode for a `+ - *
// / < <= > >= ==` operator, consuming reg+1 and leaving the result in
// reg (spec.md §4.7's operator-opcode convention).
func emitBinOp(s *Scope, op string, reg int) error {
	var code irep.Opcode
	switch op {
	case "+":
		code = irep.ADD
	case "-":
		code = irep.SUB
	case "*":
		code = irep.MUL
	case "/":
		code = irep.DIV
	case "<":
		code = irep.LT
	case "<=":
		code = irep.LE
	case ">":
		code = irep.GT
	case ">=":
		code = irep.GE
	case "==":
		code = irep.EQ
	default:
		return s.errorf("unsupported operator assignment: %s", op)
	}
	s.emitPeep(irep.Instruction{Op: code, A: reg}, VAL)
	return nil
}

// genAttrOpAssign implements `recv.attr op= rhs`: evaluate the receiver
// once, call the getter, combine, call the setter with the same receiver
// (spec.md §4.8, "attribute op= spilling to caller register").
func genAttrOpAssign(s *Scope, call *ast.Call, op string, rhs ast.Node, val bool) error {
	if err := genNode(s, call.Receiver, VAL); err != nil {
		return err
	}
	recvHolder := s.top()
	cur, err := genAttrGetter(s, call, recvHolder)
	if err != nil {
		return err
	}
	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	if err := emitBinOp(s, op, cur); err != nil {
		return err
	}
	s.pop()
	if err := genAttrSetter(s, call, recvHolder, cur); err != nil {
		return err
	}
	return finishAttrAssign(s, recvHolder, cur, val)
}

func genAttrOpAssignShortCircuit(s *Scope, call *ast.Call, rhs ast.Node, val bool, skipOp irep.Opcode) error {
	if err := genNode(s, call.Receiver, VAL); err != nil {
		return err
	}
	recvHolder := s.top()
	cur, err := genAttrGetter(s, call, recvHolder)
	if err != nil {
		return err
	}
	skipChain := s.emitJump(skipOp, cur, noChain)

	if err := genNode(s, rhs, VAL); err != nil {
		return err
	}
	rhsReg := s.top()
	s.pop()
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: cur, B: rhsReg}, VAL)
	if err := genAttrSetter(s, call, recvHolder, cur); err != nil {
		return err
	}

	end := s.newLabel()
	if err := s.dispatch(skipChain, end); err != nil {
		return err
	}
	return finishAttrAssign(s, recvHolder, cur, val)
}

// genAttrGetter emits `recv.method` into a fresh register and returns it.
func genAttrGetter(s *Scope, call *ast.Call, recvHolder int) (int, error) {
	getterRecv, err := s.push()
	if err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: getterRecv, B: recvHolder}, VAL)
	sym, err := s.IR.AddMethodSym(call.Method)
	if err != nil {
		return 0, err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: getterRecv, B: sym, C: 0}, VAL)
	return getterRecv, nil
}

// genAttrSetter emits `recv.method = value`, discarding its result.
func genAttrSetter(s *Scope, call *ast.Call, recvHolder int, value int) error {
	setterRecv, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: setterRecv, B: recvHolder}, VAL)
	argReg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.MOVE, A: argReg, B: value}, VAL)
	setSym, err := s.IR.AddMethodSym(call.Method + "=")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: setterRecv, B: setSym, C: 1}, VAL)
	s.popN(2)
	return nil
}

// finishAttrAssign collapses recvHolder/cur down to the single register
// the val=VAL convention expects, holding the assigned value (Ruby's
// attribute op= evaluates to the assigned value, not the setter's
// return).
func finishAttrAssign(s *Scope, recvHolder int, cur int, val bool) error {
	if val {
		s.emitPeep(irep.Instruction{Op: irep.MOVE, A: recvHolder, B: cur}, VAL)
		s.pop()
		return nil
	}
	s.pop()
	return nil
}
