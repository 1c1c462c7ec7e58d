package codegen

import (
	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
)

// genMethodDef compiles DEF/SDEF (spec.md §4.6): the body becomes a
// child IREP, and METHOD attaches it to either self (DEF) or an explicit
// singleton receiver (SDEF, `def self.foo` / `def obj.foo`).
func genMethodDef(s *Scope, n *ast.MethodDef, val bool) error {
	child := s.enterScope(true)
	if err := bindParams(child, n.Params); err != nil {
		return err
	}
	if err := genBody(child, n.Body, VAL); err != nil {
		return err
	}
	emitImplicitReturn(child, VAL)
	idx := s.leaveScope(child)

	sym, err := s.IR.AddMethodSym(n.Name)
	if err != nil {
		return err
	}

	var target int
	if n.Singleton != nil {
		if err := genNode(s, n.Singleton, VAL); err != nil {
			return err
		}
		target = s.top()
		s.emitPeep(irep.Instruction{Op: irep.SCLASS, A: target}, VAL)
	} else {
		reg, err := s.push()
		if err != nil {
			return err
		}
		target = reg
		s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: target}, VAL)
	}
	s.emitPeep(irep.Instruction{Op: irep.METHOD, A: target, B: sym, C: idx}, VAL)

	if !val {
		s.pop()
		return nil
	}
	// DEF evaluates to the defined method's name, as a symbol.
	s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: target, B: sym}, val)
	return nil
}

// constNameAndBase resolves a CLASS/MODULE name to the register holding
// its defining scope (OCLASS for a bare constant, an explicit base for
// `A::B`, TCLASS for `::B`) plus the constant's own name.
func constNameAndBase(s *Scope, name ast.Node) (int, string, error) {
	switch t := name.(type) {
	case *ast.ConstRef:
		reg, err := s.push()
		if err != nil {
			return 0, "", err
		}
		s.emitPeep(irep.Instruction{Op: irep.OCLASS, A: reg}, VAL)
		return reg, t.Name, nil
	case *ast.Colon2:
		if err := genNode(s, t.Base, VAL); err != nil {
			return 0, "", err
		}
		return s.top(), t.Name, nil
	case *ast.Colon3:
		reg, err := s.push()
		if err != nil {
			return 0, "", err
		}
		s.emitPeep(irep.Instruction{Op: irep.TCLASS, A: reg}, VAL)
		return reg, t.Name, nil
	default:
		return 0, "", s.errorf("invalid class/module name")
	}
}

// genClassDef compiles CLASS (spec.md §4.6): CLASS opens/reopens the
// class (operating on base and the superclass pushed immediately after
// it, the ADD/SUB-style adjacent-register convention), then EXEC runs
// the body's child IREP in that context.
func genClassDef(s *Scope, n *ast.ClassDef, val bool) error {
	base, name, err := constNameAndBase(s, n.Name)
	if err != nil {
		return err
	}
	if n.Super != nil {
		if err := genNode(s, n.Super, VAL); err != nil {
			return err
		}
	} else {
		reg, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: reg}, VAL)
	}
	sym := s.IR.AddSym(name)
	s.emitPeep(irep.Instruction{Op: irep.CLASS, A: base, B: sym}, VAL)
	s.pop() // drop the superclass register's bookkeeping

	child := s.enterScope(false)
	if err := genBody(child, n.Body, NOVAL); err != nil {
		return err
	}
	emitImplicitReturn(child, NOVAL)
	cidx := s.leaveScope(child)
	s.emitPeep(irep.Instruction{Op: irep.EXEC, A: base, B: cidx}, val)
	if !val {
		s.pop()
	}
	return nil
}

func genModuleDef(s *Scope, n *ast.ModuleDef, val bool) error {
	base, name, err := constNameAndBase(s, n.Name)
	if err != nil {
		return err
	}
	sym := s.IR.AddSym(name)
	s.emitPeep(irep.Instruction{Op: irep.MODULE, A: base, B: sym}, VAL)

	child := s.enterScope(false)
	if err := genBody(child, n.Body, NOVAL); err != nil {
		return err
	}
	emitImplicitReturn(child, NOVAL)
	cidx := s.leaveScope(child)
	s.emitPeep(irep.Instruction{Op: irep.EXEC, A: base, B: cidx}, val)
	if !val {
		s.pop()
	}
	return nil
}

// genSClassDef compiles `class << obj ... end`.
func genSClassDef(s *Scope, n *ast.SClassDef, val bool) error {
	if err := genNode(s, n.Object, VAL); err != nil {
		return err
	}
	base := s.top()
	s.emitPeep(irep.Instruction{Op: irep.SCLASS, A: base}, VAL)

	child := s.enterScope(false)
	if err := genBody(child, n.Body, NOVAL); err != nil {
		return err
	}
	emitImplicitReturn(child, NOVAL)
	cidx := s.leaveScope(child)
	s.emitPeep(irep.Instruction{Op: irep.EXEC, A: base, B: cidx}, val)
	if !val {
		s.pop()
	}
	return nil
}

// genAlias and genUndef have no dedicated opcodes (spec.md's opcode set
// has none): both compile to a runtime helper-method send on self, the
// same pattern CASE's splat patterns use for __case_eqq.
func genAlias(s *Scope, n *ast.Alias, val bool) error {
	self, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: self}, VAL)

	newSym := s.IR.AddSym(n.New)
	oldSym := s.IR.AddSym(n.Old)
	newReg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: newReg, B: newSym}, VAL)
	oldReg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: oldReg, B: oldSym}, VAL)

	sendSym, err := s.IR.AddMethodSym("__alias_method")
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.SEND, A: self, B: sendSym, C: 2}, val)
	if !val {
		s.pop()
	}
	return nil
}

func genUndef(s *Scope, n *ast.Undef, val bool) error {
	callSym, err := s.IR.AddMethodSym("__undef_method")
	if err != nil {
		return err
	}
	for _, name := range n.Names {
		self, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.LOADSELF, A: self}, VAL)
		sym := s.IR.AddSym(name)
		reg, err := s.push()
		if err != nil {
			return err
		}
		s.emitPeep(irep.Instruction{Op: irep.LOADSYM, A: reg, B: sym}, VAL)
		s.emitPeep(irep.Instruction{Op: irep.SEND, A: self, B: callSym, C: 1}, NOVAL)
		s.popN(2)
	}
	if !val {
		return nil
	}
	reg, err := s.push()
	if err != nil {
		return err
	}
	s.emitPeep(irep.Instruction{Op: irep.LOADNIL, A: reg}, val)
	return nil
}
