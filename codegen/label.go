package codegen

import "github.com/quartzlang/quartz/irep"

// noChain is this implementation's pending-jump-chain terminator. The
// mruby original reuses pc 0 for "end of list" because an IREP's first
// instruction is never itself a pending jump in practice; Go code should
// not rely on that, so chains here are terminated by -1 instead. The
// technique — repurposing a jump's offset field as a link to the previous
// pending jump targeting the same label — is unchanged (spec.md §4.1/§4.5).
const noChain = -1

// emitJump emits a forward jump instruction, threading it onto the pending
// chain whose current head is chainHead (noChain if this is the first).
// It returns the jump's own pc, which becomes the new chain head.
func (s *Scope) emitJump(op irep.Opcode, cond int, chainHead int) int {
	return s.emit(irep.Instruction{Op: op, A: cond, B: chainHead})
}

// dispatch resolves a single pending jump at pc to target, converting its
// B field from a chain-link pc into a real signed relative offset.
func (s *Scope) dispatch(pc int, target int) error {
	ins := &s.IR.Instructions[pc]
	if !irep.IsJump(ins.Op) {
		return s.errorf("internal error: dispatch on non-jump opcode %v", ins.Op)
	}
	ins.B = target - pc
	return nil
}

// emitJumpTo emits a jump whose target pc is already known — a backward
// branch to a loop's top, for instance — computing its offset directly
// with no chain involved.
func (s *Scope) emitJumpTo(op irep.Opcode, cond int, target int) int {
	pc := s.pc()
	s.emit(irep.Instruction{Op: op, A: cond, B: target - pc})
	return pc
}

// dispatchLinked walks the pending-jump chain starting at head, resolving
// every link to target, in O(chain length) with no auxiliary storage.
func (s *Scope) dispatchLinked(head int, target int) error {
	cur := head
	for cur != noChain {
		prev := s.IR.Instructions[cur].B
		if err := s.dispatch(cur, target); err != nil {
			return err
		}
		cur = prev
	}
	return nil
}
