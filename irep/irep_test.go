package irep

import (
	"strings"
	"testing"

	"github.com/quartzlang/quartz/object"
)

func TestAddConstDedupsByStructuralEquality(t *testing.T) {
	ir := &IREP{}
	i1 := ir.AddConst(object.Integer{Value: 42})
	i2 := ir.AddConst(object.Integer{Value: 42})
	if i1 != i2 {
		t.Fatalf("AddConst did not dedup identical Integers: %d != %d", i1, i2)
	}
	i3 := ir.AddConst(object.Float{Value: 42})
	if i3 == i1 {
		t.Fatalf("AddConst conflated Integer{42} with Float{42}")
	}
	if len(ir.Constants) != 2 {
		t.Fatalf("expected 2 distinct constants, got %d", len(ir.Constants))
	}
}

func TestAddMethodSymDedupsAndReservesPrefix(t *testing.T) {
	ir := &IREP{}
	i1, err := ir.AddMethodSym("foo")
	if err != nil {
		t.Fatal(err)
	}
	i2, err := ir.AddMethodSym("foo")
	if err != nil {
		t.Fatal(err)
	}
	if i1 != i2 {
		t.Fatalf("AddMethodSym did not dedup: %d != %d", i1, i2)
	}
	if i1 != 0 {
		t.Fatalf("first method symbol should be index 0, got %d", i1)
	}
}

func TestAddMethodSymOverflowsPastPrefix(t *testing.T) {
	ir := &IREP{}
	for i := 0; i < MethodSymPrefixLen; i++ {
		if _, err := ir.AddMethodSym(string(rune('a')) + string(rune(i))); err != nil {
			t.Fatalf("unexpected error filling the method-symbol prefix: %v", err)
		}
	}
	if _, err := ir.AddMethodSym("one_too_many"); err == nil {
		t.Fatal("expected an error once the 256-entry method-symbol prefix is full")
	}
}

func TestAddSymDedupsAcrossWholeTable(t *testing.T) {
	ir := &IREP{}
	_, _ = ir.AddMethodSym("foo")
	i := ir.AddSym("foo")
	if i != 0 {
		t.Fatalf("AddSym should find the existing method-symbol-prefix entry, got new index %d", i)
	}
	if len(ir.Symbols) != 1 {
		t.Fatalf("expected no duplicate symbol entries, got %d", len(ir.Symbols))
	}
}

func TestAddChildAssignsSequentialIndices(t *testing.T) {
	ir := &IREP{}
	c0 := &IREP{}
	c1 := &IREP{}
	if idx := ir.AddChild(c0); idx != 0 {
		t.Fatalf("first child index = %d, want 0", idx)
	}
	if idx := ir.AddChild(c1); idx != 1 {
		t.Fatalf("second child index = %d, want 1", idx)
	}
	if len(ir.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(ir.Children))
	}
}

func TestDisassembleIncludesChildren(t *testing.T) {
	child := &IREP{
		Instructions: []Instruction{{Op: LOADNIL, A: 1}, {Op: RETURN, A: 1, B: RNormal}},
		NLocals:      1,
		NRegs:        2,
	}
	top := &IREP{
		Instructions: []Instruction{{Op: LOADI, A: 1, B: 1}, {Op: RETURN, A: 1, B: RNormal}},
		Constants:    []object.Value{object.Str{Value: "hi"}},
		Symbols:      []object.Sym{{Name: "foo"}},
		Children:     []*IREP{child},
		NLocals:      1,
		NRegs:        2,
	}

	out := top.Disassemble()
	for _, want := range []string{"LOADI", "RETURN", "pool[0]", "sym[0]", "child[0]:"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestEncodeAndLinesAreParallel(t *testing.T) {
	ir := &IREP{
		Instructions: []Instruction{
			{Op: LOADI, A: 1, B: 1, Line: 3},
			{Op: RETURN, A: 1, B: RNormal, Line: 4},
		},
	}
	words := ir.Encode()
	lines := ir.Lines()
	if len(words) != 2 || len(lines) != 2 {
		t.Fatalf("expected 2 words and 2 lines, got %d/%d", len(words), len(lines))
	}
	if lines[0] != 3 || lines[1] != 4 {
		t.Fatalf("Lines() = %v, want [3 4]", lines)
	}
	decoded, err := Decode(words[0])
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Op != LOADI || decoded.A != 1 || decoded.B != 1 {
		t.Fatalf("decoded first word wrong: %+v", decoded)
	}
}
