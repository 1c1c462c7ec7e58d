package codegen

import (
	"github.com/quartzlang/quartz/irep"
	"github.com/quartzlang/quartz/object"
)

// producerOps target a single destination register in field A and have no
// other observable side effect — the MOVE-elimination rule (spec.md §4.4,
// row "MOVE A B | one of {ARRAY,HASH,...} targeting B") is allowed to
// retarget any of them straight to the MOVE's destination.
var producerOps = map[irep.Opcode]bool{
	irep.ARRAY: true, irep.HASH: true, irep.RANGE: true, irep.AREF: true,
	irep.GETUPVAR: true, irep.LOADSYM: true, irep.GETGLOBAL: true,
	irep.GETIV: true, irep.GETCV: true, irep.GETCONST: true,
	irep.GETSPECIAL: true, irep.LOADL: true, irep.STRING: true,
	irep.SCLASS: true, irep.LOADNIL: true, irep.LOADSELF: true,
	irep.LOADT: true, irep.LOADF: true, irep.OCLASS: true,
}

// arithOps compute their result in place into field A from an immediate in
// field B, reading only A itself as their register operand — unlike
// producerOps they aren't self-contained, so eliminating `MOVE A B` in
// favor of one requires retargeting the whole same-register chain behind
// it (retargetChain), and — like producerOps — only when B isn't needed
// under its own name afterward (spec.md §8 scenario 5, `LOADI Rk,1; ADDI
// Rk,+,2; MOVE R_x,Rk`).
//
// Deliberately excludes ADD/SUB/MUL/DIV and the comparisons: those are FA
// format, reading an *implicit* second register operand at A+1 rather
// than an immediate. Moving their A field would silently repoint that
// second read at whatever happens to sit at the new A+1 — a different
// register pair, not the one the arithmetic was actually computed on.
// ADDI/SUBI's B is a constant, so they have no such hazard.
var arithOps = map[irep.Opcode]bool{
	irep.ADDI: true, irep.SUBI: true,
}

// setterOps are the single-register-read store instructions: each reads
// its value from field A rather than writing one, so "MOVE into A, then
// setter reads A" collapses the same way across all of them (spec.md
// §4.4) — and a RETURN immediately following one can inherit that same
// source register in place of the setter's own A.
var setterOps = map[irep.Opcode]bool{
	irep.SETIV: true, irep.SETCV: true, irep.SETCONST: true,
	irep.SETMCNST: true, irep.SETGLOBAL: true, irep.SETUPVAR: true,
}

// nlocals is the boundary below which a register is a named local rather
// than scratch space on the evaluation stack (spec.md §3).
func (s *Scope) nlocals() int { return len(s.Locals) + 1 }

// emitPeep emits ins, first trying the peephole rewrite table of
// spec.md §4.4 against the previously emitted instruction. val mirrors
// the node generator's val flag: when true, the destination register of
// ins is observed by a consumer, so rewrites that would destroy it are
// suppressed (handled by callers only invoking emitPeep with val=false
// for purely intermediate producer instructions whose register does get
// consumed — see call sites). Peepholing is skipped entirely when
// s.NoOptimize is set.
func (s *Scope) emitPeep(ins irep.Instruction, val bool) int {
	if s.NoOptimize {
		return s.emit(ins)
	}

	nlocals := s.nlocals()

	switch ins.Op {
	case irep.MOVE:
		if ins.A == ins.B {
			return s.pc() // identity move: drop
		}
		if last := s.last(); last != nil {
			scratch := ins.B >= nlocals
			switch {
			case last.Op == irep.MOVE && last.A == ins.A:
				// the move we're about to emit immediately overwrites what
				// the prior move just wrote: the prior move was dead.
				*last = ins
				last.Line = s.Line
				return s.pc() - 1
			case last.Op == irep.MOVE && last.B == ins.A && last.A == ins.B && scratch:
				return s.pc() // MOVE B A ; MOVE A B, A scratch: swap is identity, drop
			case last.Op == irep.MOVE && last.A == ins.B && scratch && !val:
				// Collapsing through the intermediate MOVE drops the write to B
				// (ins.B) entirely, same hazard as the LOADI/arithOps/producerOps
				// retargets below: only safe once B's own name is no longer read.
				if fused, ok := s.fuseMoveChain(last, ins); ok {
					return fused
				}
			case last.Op == irep.LOADI && last.A == ins.B && scratch && !val:
				// Gated on !val for the same reason as arithOps/producerOps below:
				// retargeting the LOADI leaves B unwritten, which is only safe
				// when nothing past this MOVE still reads the value under B's name.
				last.A = ins.A
				return s.pc() - 1
			case arithOps[last.Op] && last.A == ins.B && scratch && !val:
				// ADDI/SUBI read and write A in place, so unlike LOADI the
				// instruction alone isn't a self-contained producer:
				// retargeting it without also retargeting the same-register
				// chain feeding it (the LOADI that seeded the value, plus any
				// earlier fused ADDI/SUBI) would read from a register that was
				// never written. retargetChain only commits if that whole chain
				// resolves cleanly back to a LOADI; gated on !val like the
				// producerOps rule below: B keeps holding the value only as
				// long as nothing past this MOVE still reads it there.
				if s.retargetChain(ins.B, ins.A) {
					return s.pc() - 1
				}
			case producerOps[last.Op] && last.A == ins.B && scratch && !val:
				last.A = ins.A
				return s.pc() - 1
			}
		}

	case irep.SETIV, irep.SETCV, irep.SETCONST, irep.SETMCNST, irep.SETGLOBAL:
		if last := s.last(); last != nil && last.Op == irep.MOVE && last.A == ins.A {
			ins.A = last.B
			s.dropLast()
		}

	case irep.SETUPVAR:
		if last := s.last(); last != nil && last.Op == irep.MOVE && last.A == ins.A {
			ins.A = last.B
			s.dropLast()
		}

	case irep.EPOP:
		if last := s.last(); last != nil && last.Op == irep.EPOP {
			last.A += ins.A
			return s.pc() - 1
		}

	case irep.POPERR:
		if last := s.last(); last != nil && last.Op == irep.POPERR {
			last.A += ins.A
			return s.pc() - 1
		}

	case irep.RETURN:
		if last := s.last(); last != nil {
			if last.Op == irep.RETURN {
				return s.pc() - 1 // unreachable second return: drop
			}
			if last.Op == irep.MOVE && last.A == ins.A && ins.A >= nlocals {
				ins.A = last.B
				s.dropLast()
			} else if setterOps[last.Op] && last.A == ins.A {
				ins.A = s.repeepholeSetter(*last)
			}
		}

	case irep.ADD, irep.SUB:
		if last := s.last(); last != nil && last.Op == irep.LOADI && last.A == ins.A+1 {
			if k := last.B; k >= -127 && k <= 127 {
				newOp := irep.ADDI
				if ins.Op == irep.SUB {
					newOp = irep.SUBI
					k = -k
				}
				s.dropLast()
				return s.emit(irep.Instruction{Op: newOp, A: ins.A, B: k})
			}
		}

	case irep.STRCAT:
		if last := s.last(); last != nil {
			if last.Op == irep.STRING && last.A == ins.B && s.constIsEmptyString(last.B) {
				s.dropLast()
				return s.pc() // elided concat of ""
			}
			if last.Op == irep.LOADNIL && last.A == ins.B {
				s.dropLast()
				return s.pc() // concatenating nil is a no-op
			}
		}

	case irep.JMPIF, irep.JMPNOT:
		if last := s.last(); last != nil && last.Op == irep.MOVE && last.A == ins.A {
			ins.A = last.B
			s.dropLast()
		}
	}

	return s.emit(ins)
}

// retargetChain retargets the contiguous run of ADDI/SUBI instructions,
// walking backward from the last emitted one, that build a value at
// register from in place, together with the LOADI that seeded it, to
// build that value at register to instead. It first walks the run
// read-only to confirm it bottoms out cleanly in a LOADI — every link
// plain ADDI/SUBI on the same register — and only then mutates; a chain
// that doesn't resolve to a LOADI (e.g. it's fed by a register-pair ADD,
// or from is a parameter/a register some other instruction also writes)
// is left completely untouched, never partially retargeted. Returns
// whether it committed.
func (s *Scope) retargetChain(from, to int) bool {
	end := s.pc()
	pc := end - 1
	for pc >= 0 && s.IR.Instructions[pc].A == from && arithOps[s.IR.Instructions[pc].Op] {
		pc--
	}
	if pc < 0 || s.IR.Instructions[pc].A != from || s.IR.Instructions[pc].Op != irep.LOADI {
		return false
	}
	for i := pc; i < end; i++ {
		s.IR.Instructions[i].A = to
	}
	return true
}

// fuseMoveChain implements "MOVE A B ; prior MOVE B C, B>=nlocals -> MOVE A
// C, reapply peephole".
func (s *Scope) fuseMoveChain(last *irep.Instruction, ins irep.Instruction) (int, bool) {
	if last.A != ins.B {
		return 0, false
	}
	fused := irep.Instruction{Op: irep.MOVE, A: ins.A, B: last.B}
	s.dropLast()
	return s.emitPeep(fused, false), true
}

// repeepholeSetter re-applies the "MOVE into the setter's source, then the
// setter reads it directly" collapse (the same rule the SETIV/SETCV/
// SETCONST/SETMCNST/SETGLOBAL/SETUPVAR cases above apply when the setter
// is freshly emitted) to a setter instruction that has already been
// committed, and returns the register a RETURN immediately following it
// should read from instead (spec.md §4.4, RETURN row).
func (s *Scope) repeepholeSetter(setter irep.Instruction) int {
	s.dropLast() // drop the setter; last() now sees what preceded it
	if prev := s.last(); prev != nil && prev.Op == irep.MOVE && prev.A == setter.A && setter.A >= s.nlocals() {
		setter.A = prev.B
		s.dropLast()
	}
	s.emit(setter)
	return setter.A
}

// constIsEmptyString reports whether pool slot idx holds the empty string,
// the case gen_strcat elides entirely (spec.md §4.4, STRCAT row).
func (s *Scope) constIsEmptyString(idx int) bool {
	if idx < 0 || idx >= len(s.IR.Constants) {
		return false
	}
	str, ok := s.IR.Constants[idx].(object.Str)
	return ok && str.Value == ""
}
