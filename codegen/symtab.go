package codegen

// resolveVar looks up name against s and its enclosing scopes, stopping at
// the first scope — of any kind — that declares it (spec.md §4.6, LVAR).
// depth is the number of enclosing-scope hops crossed: 0 means a plain
// local of s itself (emit MOVE), depth>0 means an upvar (emit GETUPVAR/
// SETUPVAR with frame distance depth).
func (s *Scope) resolveVar(name string) (reg int, depth int, ok bool) {
	cur := s
	for d := 0; cur != nil; d++ {
		if reg, found := cur.resolveLocal(name); found {
			return reg, d, true
		}
		cur = cur.Parent
	}
	return 0, 0, false
}

// enclosingMethod walks outward from s to the nearest scope with MScope
// set, the boundary ZSUPER/SUPER/YIELD consult for the caller's ARGARY
// (spec.md §4.6, SUPER/ZSUPER/YIELD; GLOSSARY "Method scope"). Unlike
// resolveVar's plain-LVAR walk, this one is blind to ordinary block/loop
// scopes and only stops at an actual method boundary.
func (s *Scope) enclosingMethod() *Scope {
	cur := s
	for cur != nil {
		if cur.MScope {
			return cur
		}
		cur = cur.Parent
	}
	return nil
}

// withinMethodBody reports whether s or any scope enclosing it is a method
// scope (MScope, which the top level also has) — used to decide whether
// SUPER/YIELD/ZSUPER are even legal at this point (spec.md §4.6 edge
// cases). Class/module/singleton bodies are not boundaries: the walk
// passes through them.
func (s *Scope) withinMethodBody() bool {
	return s.enclosingMethod() != nil
}
