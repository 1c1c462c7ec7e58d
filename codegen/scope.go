// Package codegen implements the bytecode code generator: a recursive
// tree-walker over an *ast.Program that produces a tree of *irep.IREP
// units for a register-plus-stack virtual machine (spec.md §1-§2).
package codegen

import (
	"github.com/quartzlang/quartz/irep"
)

// val flags whether the caller of a node's codegen will consume a result
// (spec.md §4.6): VAL leaves the result in the top register and bumps sp
// by one; NOVAL leaves sp unchanged.
const (
	NOVAL = false
	VAL   = true
)

// maxRegs is the register-file ceiling (spec.md §3): 0 ≤ sp ≤ 511.
const maxRegs = 512

// localVar is one declared local, in declaration order.
type localVar struct {
	Name string
	Reg  int
}

// Scope is live code-generation state bound to exactly one IREP: one per
// lexical compilation unit (top level, method body, block/lambda body,
// class/module body, singleton body). See spec.md §3.
type Scope struct {
	Parent *Scope
	IR     *irep.IREP

	Locals []localVar
	sp     int // stack pointer: index of next free register
	lastlabel int

	AInfo  irep.ArgSpec
	MScope bool // true for method bodies and the top level; closure/upvar searches for ARGARY/YIELD stop here

	loop *loopRecord
	ensureLevel int

	File       string
	FileIdx    int
	Line       int
	NoOptimize bool
}

// newScope allocates a Scope bound to a fresh IREP, linked to parent (nil
// for the top level).
func newScope(parent *Scope, mscope bool, file string, fileIdx int, noOpt bool) *Scope {
	s := &Scope{
		Parent:     parent,
		IR:         &irep.IREP{Filename: file},
		MScope:     mscope,
		File:       file,
		FileIdx:    fileIdx,
		NoOptimize: noOpt,
		lastlabel:  -1,
	}
	if parent != nil {
		s.loop = nil
	}
	// register 0 is always the receiver, self.
	s.sp = 1
	s.IR.NLocals = 1
	s.IR.NRegs = 1
	return s
}

// enterScope creates a child scope for a method/block/class/module/
// singleton body and appends its IREP to the parent in source order once
// finished (see leaveScope).
func (s *Scope) enterScope(mscope bool) *Scope {
	return newScope(s, mscope, s.File, s.FileIdx, s.NoOptimize)
}

// leaveScope appends child's IREP (whose NRegs push has kept current) to
// s's child list and returns its index.
func (s *Scope) leaveScope(child *Scope) int {
	return s.IR.AddChild(child.IR)
}

// declareLocal adds name as a new local in the next register slot and
// returns that register index.
func (s *Scope) declareLocal(name string) (int, error) {
	reg, err := s.push()
	if err != nil {
		return 0, err
	}
	s.Locals = append(s.Locals, localVar{Name: name, Reg: reg})
	s.IR.Locals = append(s.IR.Locals, name)
	s.IR.NLocals = len(s.Locals) + 1 // +1 for self in register 0
	return reg, nil
}

// resolveLocal looks up name among this scope's own locals only.
func (s *Scope) resolveLocal(name string) (int, bool) {
	for i := len(s.Locals) - 1; i >= 0; i-- {
		if s.Locals[i].Name == name {
			return s.Locals[i].Reg, true
		}
	}
	return 0, false
}

// --- register stack discipline (spec.md §4.2) ---

// push reserves the next register, bumping the IREP's high-water nregs,
// and errors if the 511 ceiling is exceeded.
func (s *Scope) push() (int, error) {
	reg := s.sp
	s.sp++
	if s.sp > maxRegs-1 {
		return 0, s.errorf("too complex expression")
	}
	if s.sp > s.IR.NRegs {
		s.IR.NRegs = s.sp
	}
	return reg, nil
}

// pushN reserves n consecutive registers and returns the first.
func (s *Scope) pushN(n int) (int, error) {
	base := s.sp
	for i := 0; i < n; i++ {
		if _, err := s.push(); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// pop frees the top register.
func (s *Scope) pop() { s.sp-- }

// popN frees the top n registers.
func (s *Scope) popN(n int) { s.sp -= n }

// top returns the index of the most recently pushed register.
func (s *Scope) top() int { return s.sp - 1 }

// --- instruction buffer (spec.md §4.1) ---

func (s *Scope) pc() int { return len(s.IR.Instructions) }

// newLabel marks the current pc as a label site and returns it.
func (s *Scope) newLabel() int {
	s.lastlabel = s.pc()
	return s.lastlabel
}

// emit appends an already-built instruction, stamping the current line,
// and returns its pc. It never peepholes; use emitPeep for instructions
// that are eligible for rewriting.
func (s *Scope) emit(ins irep.Instruction) int {
	ins.Line = s.Line
	pc := s.pc()
	s.IR.Instructions = append(s.IR.Instructions, ins)
	return pc
}

// last returns a pointer to the most recently emitted instruction, or nil
// if the buffer is empty or a label sits at the current pc (meaning there
// is no safe "prior instruction" to rewrite).
func (s *Scope) last() *irep.Instruction {
	if s.pc() == 0 || s.lastlabel == s.pc() {
		return nil
	}
	return &s.IR.Instructions[s.pc()-1]
}

func (s *Scope) dropLast() {
	s.IR.Instructions = s.IR.Instructions[:s.pc()-1]
}
