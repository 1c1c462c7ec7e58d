package codegen

import "github.com/quartzlang/quartz/irep"

// loopKind distinguishes the five kinds of loop/rescue context a BREAK,
// NEXT, REDO, RETRY, or RETURN may need to walk through or target
// (spec.md §3).
type loopKind int

const (
	loopNormal loopKind = iota // while/until
	loopBlock                  // a block passed to a method call
	loopFor                    // for..in; genFor compiles through a block (loopBlock), so nothing pushes this kind
	loopBegin                  // not pushed by any generator; do-while loops use loopNormal
	loopRescue                 // a rescue clause's protected region
)

// loopRecord is one entry in the per-scope loop/rescue context stack.
// pc1/pc2/pc3 are independent pending-jump chain heads: BREAK links into
// PC1, NEXT into PC2 and REDO into PC3; on a loopRescue record PC1 holds
// the RETRY jumps back to its ONERR (spec.md §3, §4.6).
type loopRecord struct {
	Kind        loopKind
	PC1, PC2, PC3 int
	EnsureLevel int
	Acc         int // register BREAK writes its value through for loopNormal
	Enclosing   *loopRecord
}

// pushLoop opens a new loop/rescue context, linking it onto s.loop.
func (s *Scope) pushLoop(kind loopKind, acc int) *loopRecord {
	rec := &loopRecord{
		Kind:        kind,
		PC1:         noChain,
		PC2:         noChain,
		PC3:         noChain,
		EnsureLevel: s.ensureLevel,
		Acc:         acc,
		Enclosing:   s.loop,
	}
	s.loop = rec
	return rec
}

// popLoop closes the innermost loop/rescue context, restoring the parent.
func (s *Scope) popLoop() {
	s.loop = s.loop.Enclosing
}

// linkBreak threads a forward jump for BREAK onto the nearest enclosing
// loopNormal/loopFor/loopBegin/loopBlock context's break chain (PC1),
// emitting the EPOP/POPERR unwind needed to cross any ensure/rescue
// blocks entered since the loop started.
func (s *Scope) linkBreak() (*loopRecord, error) {
	rec := s.loop
	for rec != nil && rec.Kind == loopRescue {
		rec = rec.Enclosing
	}
	if rec == nil {
		return nil, s.errorf("break outside of a loop")
	}
	if delta := s.ensureLevel - rec.EnsureLevel; delta > 0 {
		s.emitPeep(irep.Instruction{Op: irep.EPOP, A: delta}, NOVAL)
	}
	return rec, nil
}

// linkNextRedo resolves the nearest enclosing loop context for NEXT/REDO,
// which target PC2 and PC3 respectively (no cross-ensure unwind: both stay
// within the loop body).
func (s *Scope) linkNextRedo() (*loopRecord, error) {
	rec := s.loop
	for rec != nil && rec.Kind == loopRescue {
		rec = rec.Enclosing
	}
	if rec == nil {
		return nil, s.errorf("next/redo outside of a loop")
	}
	return rec, nil
}

// nearestRescue finds the nearest enclosing loopRescue context for RETRY.
func (s *Scope) nearestRescue() (*loopRecord, error) {
	rec := s.loop
	for rec != nil && rec.Kind != loopRescue {
		rec = rec.Enclosing
	}
	if rec == nil {
		return nil, s.errorf("retry outside of a rescue clause")
	}
	return rec, nil
}
