package codegen

import (
	"math"
	"testing"

	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/irep"
	"github.com/quartzlang/quartz/lexer"
	"github.com/quartzlang/quartz/object"
	"github.com/quartzlang/quartz/parser"
)

func mustGenerate(t *testing.T, src string, opts Options) *irep.IREP {
	t.Helper()
	p := parser.New(lexer.New(src, 0))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("%q: parse errors: %v", src, errs)
	}
	ir, err := Generate(prog, opts)
	if err != nil {
		t.Fatalf("%q: Generate: %v", src, err)
	}
	return ir
}

func gen(t *testing.T, src string) *irep.IREP {
	return mustGenerate(t, src, Options{Filename: "<test>"})
}

// --- spec.md §8 scenario 1: literal integer ---

func TestScenarioLiteralInteger(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{&ast.IntLit{Value: "42", Base: 10}}}
	ir, err := Generate(prog, Options{Filename: "<test>"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ir.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2: %v", len(ir.Instructions), ir.Instructions)
	}
	if got := ir.Instructions[0]; got.Op != irep.LOADI || got.A != 1 || got.B != 42 {
		t.Errorf("instr[0] = %+v, want LOADI R1, 42", got)
	}
	if got := ir.Instructions[1]; got.Op != irep.RETURN || got.A != 1 || got.B != irep.RNormal {
		t.Errorf("instr[1] = %+v, want RETURN R1 NORMAL", got)
	}
	if ir.NRegs != 2 {
		t.Errorf("NRegs = %d, want 2", ir.NRegs)
	}
	if len(ir.Constants) != 0 {
		t.Errorf("Constants = %v, want empty", ir.Constants)
	}
}

// --- spec.md §8 scenario 2: integer overflow ---

func TestScenarioIntegerOverflow(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.IntLit{Value: "99999999999999999999999", Base: 10},
	}}
	ir, err := Generate(prog, Options{Filename: "<test>"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ir.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2: %v", len(ir.Instructions), ir.Instructions)
	}
	if got := ir.Instructions[0]; got.Op != irep.LOADL || got.A != 1 || got.B != 0 {
		t.Errorf("instr[0] = %+v, want LOADL R1, pool[0]", got)
	}
	if got := ir.Instructions[1]; got.Op != irep.RETURN || got.A != 1 || got.B != irep.RNormal {
		t.Errorf("instr[1] = %+v, want RETURN R1 NORMAL", got)
	}
	if len(ir.Constants) != 1 {
		t.Fatalf("Constants = %v, want 1 entry", ir.Constants)
	}
	f, ok := ir.Constants[0].(object.Float)
	if !ok {
		t.Fatalf("pool[0] = %T, want object.Float", ir.Constants[0])
	}
	const want = 1e23
	if math.Abs(f.Value-want)/want > 0.01 {
		t.Errorf("pool[0] = %v, want approximately %v", f.Value, want)
	}
}

// --- spec.md §8 scenario 3: closure upvar ---

func TestScenarioClosureUpvar(t *testing.T) {
	ir := gen(t, "def f\nx = 1\n-> { x }\nend")
	if len(ir.Children) != 1 {
		t.Fatalf("top Children = %d, want 1 (f's method body)", len(ir.Children))
	}
	method := ir.Children[0]
	if len(method.Children) != 1 {
		t.Fatalf("method Children = %d, want 1 (the lambda)", len(method.Children))
	}
	lambda := method.Children[0]
	if len(lambda.Instructions) != 2 {
		t.Fatalf("lambda body has %d instructions, want 2: %v", len(lambda.Instructions), lambda.Instructions)
	}
	up := lambda.Instructions[0]
	if up.Op != irep.GETUPVAR {
		t.Fatalf("instr[0] = %+v, want GETUPVAR", up)
	}
	ret := lambda.Instructions[1]
	if ret.Op != irep.RETURN || ret.A != up.A || ret.B != irep.RNormal {
		t.Errorf("instr[1] = %+v, want RETURN R%d NORMAL", ret, up.A)
	}
}

// --- spec.md §8 scenario 4: multiple assignment ---

func TestScenarioMultipleAssignment(t *testing.T) {
	ir := gen(t, "a, *b, c = [1, 2, 3, 4]")
	var apost *irep.Instruction
	for i := range ir.Instructions {
		if ir.Instructions[i].Op == irep.APOST {
			apost = &ir.Instructions[i]
			break
		}
	}
	if apost == nil {
		t.Fatalf("no APOST instruction found in %v", ir.Instructions)
	}
	if apost.B != 1 || apost.C != 1 {
		t.Errorf("APOST = %+v, want B=1 (1 pre-name), C=1 (1 post-name)", apost)
	}
}

// --- spec.md §8 scenario 5: peephole MOVE-fusion ---

// The assignment itself must be a non-last (NOVAL) statement: the MOVE ←
// producer retarget rule only fires once the assigned-to register's old
// contents (the rhs's own scratch register) are no longer needed under
// their own name, which is exactly what NOVAL guarantees and VAL doesn't
// (see assignRegTo's val parameter). The trailing `x` forces that; its own
// read-back MOVE into a scratch register is then fused into the final
// RETURN by the `RETURN A ; MOVE A B, A scratch -> RETURN B` rule, so no
// MOVE is left and the RETURN reads x's register directly.
func TestScenarioPeepholeMoveFusion(t *testing.T) {
	ir := gen(t, "x = 1 + 2\nx")
	if len(ir.Instructions) < 2 {
		t.Fatalf("got %d instructions, want at least 2: %v", len(ir.Instructions), ir.Instructions)
	}
	loadi := ir.Instructions[0]
	addi := ir.Instructions[1]
	if loadi.Op != irep.LOADI || loadi.B != 1 {
		t.Fatalf("instr[0] = %+v, want LOADI _, 1", loadi)
	}
	if addi.Op != irep.ADDI || addi.B != 2 {
		t.Fatalf("instr[1] = %+v, want ADDI _, 2", addi)
	}
	if addi.A != loadi.A {
		t.Errorf("ADDI.A = %d, LOADI.A = %d: peephole should fuse the assignment's MOVE into ADDI's destination register", addi.A, loadi.A)
	}
	moves := 0
	for _, ins := range ir.Instructions {
		if ins.Op == irep.MOVE {
			moves++
			if ins.B != addi.A {
				t.Errorf("MOVE %+v does not read x's register (%d)", ins, addi.A)
			}
		}
	}
	if moves != 0 {
		t.Errorf("got %d MOVE instructions, want none (assignment fused into ADDI, read-back fused into RETURN): %v", moves, ir.Instructions)
	}
	ret := ir.Instructions[len(ir.Instructions)-1]
	if ret.Op != irep.RETURN || ret.A != addi.A {
		t.Errorf("last instr = %+v, want RETURN reading x's register (%d)", ret, addi.A)
	}
}

func TestPeepholeDisabledKeepsTheMove(t *testing.T) {
	ir := mustGenerate(t, "x = 1 + 2", Options{Filename: "<test>", NoOptimize: true})
	sawMove := false
	for _, ins := range ir.Instructions {
		if ins.Op == irep.MOVE {
			sawMove = true
		}
	}
	if !sawMove {
		t.Errorf("NoOptimize=true should leave the MOVE un-fused: %v", ir.Instructions)
	}
}

// --- spec.md §8 scenario 6: safe navigation ---

func TestScenarioSafeNavigation(t *testing.T) {
	ir := gen(t, "obj&.m")
	var sawNilCheck, sawJumpIf, sawSend bool
	for _, ins := range ir.Instructions {
		switch ins.Op {
		case irep.EQ:
			sawNilCheck = true
		case irep.JMPIF:
			sawJumpIf = true
		case irep.SEND:
			sawSend = true
		}
	}
	if !sawNilCheck || !sawJumpIf || !sawSend {
		t.Errorf("safe navigation should emit an EQ nil-guard, a JMPIF skip, and a SEND: %v", ir.Instructions)
	}
}

// --- §8 invariants ---

func TestInvariantRegisterBounds(t *testing.T) {
	ir := gen(t, "def f(a, b)\nx = a + b\ny = x * 2\nend")
	method := ir.Children[0]
	if method.NLocals > method.NRegs || method.NRegs > 512 {
		t.Errorf("NLocals=%d NRegs=%d, want NLocals<=NRegs<=512", method.NLocals, method.NRegs)
	}
}

func TestInvariantNoDanglingJumps(t *testing.T) {
	ir := gen(t, "if x\n1\nelse\n2\nend")
	for pc, ins := range ir.Instructions {
		if !irep.IsJump(ins.Op) {
			continue
		}
		target := pc + ins.B // B is a signed offset relative to its own pc
		if target < 0 || target >= len(ir.Instructions) {
			t.Errorf("jump %+v at pc %d targets pc %d, out of [0, %d)", ins, pc, target, len(ir.Instructions))
		}
	}
}

func TestInvariantReturnKindIsDefined(t *testing.T) {
	ir := gen(t, "42")
	for _, ins := range ir.Instructions {
		if ins.Op != irep.RETURN {
			continue
		}
		switch ins.B {
		case irep.RNormal, irep.RBreak, irep.RReturn:
		default:
			t.Errorf("RETURN with undefined kind %d", ins.B)
		}
	}
}

func TestInvariantNoDuplicateConstants(t *testing.T) {
	// A literal string compiled under NOVAL is skipped entirely, so
	// elements need to stay live (an array keeps each one under VAL) to
	// actually exercise the constant-pool dedup.
	ir := gen(t, `["hi", "hi", "bye"]`)
	seen := map[string]bool{}
	for _, c := range ir.Constants {
		key := string(c.Type()) + ":" + c.Inspect()
		if seen[key] {
			t.Errorf("duplicate constant pool entry: %v", c)
		}
		seen[key] = true
	}
}

// --- §8 round-trip & equivalence ---

func TestCompilingSameASTTwiceIsBitIdentical(t *testing.T) {
	prog1 := &ast.Program{Stmts: []ast.Node{&ast.IntLit{Value: "7", Base: 10}}}
	prog2 := &ast.Program{Stmts: []ast.Node{&ast.IntLit{Value: "7", Base: 10}}}
	ir1, err := Generate(prog1, Options{Filename: "<test>"})
	if err != nil {
		t.Fatal(err)
	}
	ir2, err := Generate(prog2, Options{Filename: "<test>"})
	if err != nil {
		t.Fatal(err)
	}
	w1, w2 := ir1.Encode(), ir2.Encode()
	if len(w1) != len(w2) {
		t.Fatalf("different instruction counts: %d vs %d", len(w1), len(w2))
	}
	for i := range w1 {
		if w1[i] != w2[i] {
			t.Errorf("word[%d] differs: %#x vs %#x", i, w1[i], w2[i])
		}
	}
}

func TestSmallOperandUsesADDI(t *testing.T) {
	ir := gen(t, "1 + 2")
	found := false
	for _, ins := range ir.Instructions {
		if ins.Op == irep.ADDI {
			found = true
		}
	}
	if !found {
		t.Errorf("1 + 2 should compile to ADDI (|k|<=127): %v", ir.Instructions)
	}
}

func TestLargeOperandUsesADDWithLoadi(t *testing.T) {
	ir := gen(t, "1 + 200")
	var sawADD, sawLoadiLarge bool
	for _, ins := range ir.Instructions {
		if ins.Op == irep.ADD {
			sawADD = true
		}
		if ins.Op == irep.LOADI && ins.B == 200 {
			sawLoadiLarge = true
		}
	}
	if !sawADD || !sawLoadiLarge {
		t.Errorf("1 + 200 should compile to ADD with a LOADI 200 predecessor (|k|>127): %v", ir.Instructions)
	}
}

func TestIfTrueLiteralCompilesLikeThenBranch(t *testing.T) {
	withTrue := gen(t, "if true\n1\nelse\n2\nend")
	direct := gen(t, "1")
	if len(withTrue.Instructions) != len(direct.Instructions) {
		t.Fatalf("if true...else...end should compile identically to its then-branch: %v vs %v",
			withTrue.Instructions, direct.Instructions)
	}
	for i := range withTrue.Instructions {
		a, b := withTrue.Instructions[i], direct.Instructions[i]
		if a.Op != b.Op || a.A != b.A || a.B != b.B || a.C != b.C {
			t.Errorf("instr[%d] = %+v, want %+v", i, a, b)
		}
	}
}

func TestIfFalseLiteralCompilesLikeElseBranch(t *testing.T) {
	withFalse := gen(t, "if false\n1\nelse\n2\nend")
	direct := gen(t, "2")
	if len(withFalse.Instructions) != len(direct.Instructions) {
		t.Fatalf("if false...else...end should compile identically to its else-branch: %v vs %v",
			withFalse.Instructions, direct.Instructions)
	}
}

// --- additional node-kind coverage ---

func TestMethodDefEpilogueDefinesMethod(t *testing.T) {
	ir := gen(t, "def foo\n1\nend")
	var sawMethod bool
	for _, ins := range ir.Instructions {
		if ins.Op == irep.METHOD {
			sawMethod = true
		}
	}
	if !sawMethod {
		t.Errorf("a top-level def should emit METHOD: %v", ir.Instructions)
	}
	if len(ir.Children) != 1 {
		t.Fatalf("Children = %d, want 1", len(ir.Children))
	}
	body := ir.Children[0]
	last := body.Instructions[len(body.Instructions)-1]
	if last.Op != irep.RETURN {
		t.Errorf("method body should end in RETURN, got %+v", last)
	}
}

func TestClassBodyHasNoValueReturn(t *testing.T) {
	ir := gen(t, "class Foo\n1\nend")
	if len(ir.Children) != 1 {
		t.Fatalf("Children = %d, want 1", len(ir.Children))
	}
	body := ir.Children[0]
	last := body.Instructions[len(body.Instructions)-1]
	if last.Op != irep.RETURN {
		t.Fatalf("class body should end in RETURN, got %+v", last)
	}
	// The instruction before RETURN should load a fresh nil (NOVAL body),
	// not reuse the register the last statement (the literal 1) computed.
	prev := body.Instructions[len(body.Instructions)-2]
	if prev.Op != irep.LOADNIL {
		t.Errorf("class body's implicit return should load a fresh nil, got %+v", prev)
	}
}

func TestTopLevelImplicitReturnUsesLastExpressionValue(t *testing.T) {
	// The first two statements are pure literals compiled under NOVAL, so
	// genIntLit emits nothing for them; only the final (VAL) statement's
	// value should reach RETURN.
	ir := gen(t, "1\n2\n3")
	if len(ir.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2 (leading NOVAL literals emit nothing): %v",
			len(ir.Instructions), ir.Instructions)
	}
	loadi, last := ir.Instructions[0], ir.Instructions[1]
	if last.Op != irep.RETURN || loadi.Op != irep.LOADI || loadi.B != 3 {
		t.Fatalf("want LOADI _, 3 then RETURN of that register, got %+v then %+v", loadi, last)
	}
	if last.A != loadi.A {
		t.Errorf("RETURN should return the last statement's own value, RETURN.A=%d LOADI.A=%d", last.A, loadi.A)
	}
}
