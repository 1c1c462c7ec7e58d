package parser

import (
	"testing"

	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/lexer"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	p := New(lexer.New(input, 0))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("%q: unexpected parse errors: %v", input, errs)
	}
	return prog
}

func parseExpectErrors(t *testing.T, input string) []string {
	t.Helper()
	p := New(lexer.New(input, 0))
	p.ParseProgram()
	return p.Errors()
}

func firstStmt(t *testing.T, input string) ast.Node {
	t.Helper()
	prog := parse(t, input)
	if len(prog.Stmts) != 1 {
		t.Fatalf("%q: got %d statements, want 1", input, len(prog.Stmts))
	}
	return prog.Stmts[0]
}

func TestPlainExpressionStatementIsImplicitSelfCall(t *testing.T) {
	stmt := firstStmt(t, "foo")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Receiver != nil || call.Method != "foo" {
		t.Errorf("got Call{Receiver: %v, Method: %q}, want implicit-self foo", call.Receiver, call.Method)
	}
}

func TestAssignmentDeclaresLocalThenReadsAsLVar(t *testing.T) {
	prog := parse(t, "x = 1\nx")
	if len(prog.Stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(prog.Stmts))
	}
	assign, ok := prog.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("stmt[0] = %T, want *ast.Assign", prog.Stmts[0])
	}
	lv, ok := assign.LHS.(*ast.LVar)
	if !ok || lv.Name != "x" {
		t.Fatalf("Assign.LHS = %+v, want LVar{Name: x}", assign.LHS)
	}
	second, ok := prog.Stmts[1].(*ast.LVar)
	if !ok || second.Name != "x" {
		t.Fatalf("stmt[1] = %+v, want LVar{Name: x} (not a Call, since x was assigned)", prog.Stmts[1])
	}
}

func TestMultipleAssignmentWithSplat(t *testing.T) {
	stmt := firstStmt(t, "a, *b, c = 1, 2, 3, 4")
	m, ok := stmt.(*ast.MAsgn)
	if !ok {
		t.Fatalf("got %T, want *ast.MAsgn", stmt)
	}
	if len(m.Pre) != 1 || m.Pre[0].(*ast.LVar).Name != "a" {
		t.Fatalf("Pre = %+v, want [LVar{a}]", m.Pre)
	}
	if m.Rest == nil || m.Rest.(*ast.LVar).Name != "b" {
		t.Fatalf("Rest = %+v, want LVar{b}", m.Rest)
	}
	if len(m.Post) != 1 || m.Post[0].(*ast.LVar).Name != "c" {
		t.Fatalf("Post = %+v, want [LVar{c}]", m.Post)
	}
	if len(m.RHS) != 4 {
		t.Fatalf("RHS has %d elements, want 4", len(m.RHS))
	}
}

func TestMultipleAssignmentWithoutSplat(t *testing.T) {
	stmt := firstStmt(t, "a, b = 1, 2")
	m, ok := stmt.(*ast.MAsgn)
	if !ok {
		t.Fatalf("got %T, want *ast.MAsgn", stmt)
	}
	if m.Rest != nil {
		t.Fatalf("Rest = %+v, want nil", m.Rest)
	}
	if len(m.Pre) != 2 || len(m.Post) != 0 {
		t.Fatalf("Pre/Post = %v/%v, want 2/0", m.Pre, m.Post)
	}
}

func TestOpAssign(t *testing.T) {
	stmt := firstStmt(t, "x ||= 1")
	op, ok := stmt.(*ast.OpAssign)
	if !ok {
		t.Fatalf("got %T, want *ast.OpAssign", stmt)
	}
	if op.Op != "||" {
		t.Errorf("Op = %q, want \"||\"", op.Op)
	}
}

func TestBinaryOperatorDesugarsToCall(t *testing.T) {
	stmt := firstStmt(t, "1 + 2")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Method != "+" {
		t.Errorf("Method = %q, want \"+\"", call.Method)
	}
	if _, ok := call.Receiver.(*ast.IntLit); !ok {
		t.Errorf("Receiver = %T, want *ast.IntLit", call.Receiver)
	}
	if len(call.Args) != 1 {
		t.Fatalf("Args = %v, want 1 element", call.Args)
	}
}

func TestTernaryDesugarsToIf(t *testing.T) {
	stmt := firstStmt(t, "x ? 1 : 2")
	ifNode, ok := stmt.(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", stmt)
	}
	if len(ifNode.Then) != 1 || len(ifNode.Else) != 1 {
		t.Fatalf("Then/Else = %v/%v, want 1 element each", ifNode.Then, ifNode.Else)
	}
}

func TestUnlessDesugarsToSwappedIf(t *testing.T) {
	stmt := firstStmt(t, "unless x\n1\nelse\n2\nend")
	ifNode, ok := stmt.(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", stmt)
	}
	if len(ifNode.Then) != 1 {
		t.Fatalf("Then = %v, want the else-branch body (1 stmt)", ifNode.Then)
	}
	if lit, ok := ifNode.Then[0].(*ast.IntLit); !ok || lit.Value != "2" {
		t.Errorf("Then[0] = %+v, want IntLit{2} (unless swaps branches)", ifNode.Then[0])
	}
	if len(ifNode.Else) != 1 {
		t.Fatalf("Else = %v, want the then-branch body (1 stmt)", ifNode.Else)
	}
	if lit, ok := ifNode.Else[0].(*ast.IntLit); !ok || lit.Value != "1" {
		t.Errorf("Else[0] = %+v, want IntLit{1}", ifNode.Else[0])
	}
}

func TestIfModifier(t *testing.T) {
	stmt := firstStmt(t, "x = 1 if cond")
	ifNode, ok := stmt.(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", stmt)
	}
	if len(ifNode.Then) != 1 {
		t.Fatalf("Then = %v, want 1 stmt", ifNode.Then)
	}
	if _, ok := ifNode.Then[0].(*ast.Assign); !ok {
		t.Errorf("Then[0] = %T, want *ast.Assign", ifNode.Then[0])
	}
}

func TestUnlessModifierNegatesIntoElse(t *testing.T) {
	stmt := firstStmt(t, "x = 1 unless cond")
	ifNode, ok := stmt.(*ast.If)
	if !ok {
		t.Fatalf("got %T, want *ast.If", stmt)
	}
	if len(ifNode.Then) != 0 || len(ifNode.Else) != 1 {
		t.Fatalf("Then/Else = %v/%v, want 0/1", ifNode.Then, ifNode.Else)
	}
}

func TestWhileLoop(t *testing.T) {
	stmt := firstStmt(t, "while x\ny\nend")
	w, ok := stmt.(*ast.While)
	if !ok {
		t.Fatalf("got %T, want *ast.While", stmt)
	}
	if w.Negate || w.DoWhile {
		t.Errorf("While{Negate: %v, DoWhile: %v}, want both false", w.Negate, w.DoWhile)
	}
}

func TestUntilLoopSetsNegate(t *testing.T) {
	stmt := firstStmt(t, "until x\ny\nend")
	w, ok := stmt.(*ast.While)
	if !ok {
		t.Fatalf("got %T, want *ast.While", stmt)
	}
	if !w.Negate {
		t.Errorf("Negate = false, want true for until")
	}
}

func TestBeginEndWhileIsDoWhileLoop(t *testing.T) {
	stmt := firstStmt(t, "begin\nx\nend while cond")
	w, ok := stmt.(*ast.While)
	if !ok {
		t.Fatalf("got %T, want *ast.While (begin...end while desugars to a do-while loop)", stmt)
	}
	if !w.DoWhile {
		t.Errorf("DoWhile = false, want true")
	}
	if len(w.Body) != 1 {
		t.Fatalf("Body = %v, want 1 stmt", w.Body)
	}
}

func TestNthRefParsesAsNthRef(t *testing.T) {
	stmt := firstStmt(t, "$1")
	ref, ok := stmt.(*ast.NthRef)
	if !ok {
		t.Fatalf("got %T, want *ast.NthRef", stmt)
	}
	if ref.N != 1 {
		t.Errorf("N = %d, want 1", ref.N)
	}
}

func TestPlainGVarParsesAsGVar(t *testing.T) {
	stmt := firstStmt(t, "$foo")
	gv, ok := stmt.(*ast.GVar)
	if !ok {
		t.Fatalf("got %T, want *ast.GVar", stmt)
	}
	if gv.Name != "$foo" {
		t.Errorf("Name = %q, want \"$foo\"", gv.Name)
	}
}

func TestOperatorMethodDefName(t *testing.T) {
	stmt := firstStmt(t, "def +(other)\nend")
	def, ok := stmt.(*ast.MethodDef)
	if !ok {
		t.Fatalf("got %T, want *ast.MethodDef", stmt)
	}
	if def.Name != "+" {
		t.Errorf("Name = %q, want \"+\"", def.Name)
	}
	if len(def.Params) != 1 || def.Params[0].Name != "other" {
		t.Fatalf("Params = %+v, want [other]", def.Params)
	}
}

func TestIndexSetterMethodDefName(t *testing.T) {
	stmt := firstStmt(t, "def []=(k, v)\nend")
	def, ok := stmt.(*ast.MethodDef)
	if !ok {
		t.Fatalf("got %T, want *ast.MethodDef", stmt)
	}
	if def.Name != "[]=" {
		t.Errorf("Name = %q, want \"[]=\"", def.Name)
	}
}

func TestParenthesizedExpression(t *testing.T) {
	stmt := firstStmt(t, "(1 + 2) * 3")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Method != "*" {
		t.Errorf("Method = %q, want \"*\"", call.Method)
	}
	inner, ok := call.Receiver.(*ast.Call)
	if !ok || inner.Method != "+" {
		t.Fatalf("Receiver = %+v, want the parenthesized + call", call.Receiver)
	}
}

func TestArrayLiteralWithSplat(t *testing.T) {
	stmt := firstStmt(t, "[1, *xs, 2]")
	arr, ok := stmt.(*ast.ArrayLit)
	if !ok {
		t.Fatalf("got %T, want *ast.ArrayLit", stmt)
	}
	if len(arr.Elements) != 3 {
		t.Fatalf("Elements = %v, want 3", arr.Elements)
	}
	if _, ok := arr.Elements[1].(*ast.Splat); !ok {
		t.Errorf("Elements[1] = %T, want *ast.Splat", arr.Elements[1])
	}
}

func TestHashLiteral(t *testing.T) {
	stmt := firstStmt(t, `{"a" => 1, "b" => 2}`)
	h, ok := stmt.(*ast.HashLit)
	if !ok {
		t.Fatalf("got %T, want *ast.HashLit", stmt)
	}
	if len(h.Pairs) != 2 {
		t.Fatalf("Pairs = %v, want 2", h.Pairs)
	}
}

func TestArrowLambda(t *testing.T) {
	stmt := firstStmt(t, "->(x, y) { x + y }")
	lam, ok := stmt.(*ast.Lambda)
	if !ok {
		t.Fatalf("got %T, want *ast.Lambda", stmt)
	}
	if lam.IsProc {
		t.Errorf("IsProc = true, want false for ->")
	}
	if len(lam.Params) != 2 {
		t.Fatalf("Params = %+v, want 2", lam.Params)
	}
	if len(lam.Body) != 1 {
		t.Fatalf("Body = %v, want 1 stmt", lam.Body)
	}
}

func TestDoBlockAttachesToCall(t *testing.T) {
	stmt := firstStmt(t, "foo do |x|\nx\nend")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Block == nil {
		t.Fatal("Block is nil, want a BlockArg")
	}
	if len(call.Block.Params) != 1 || call.Block.Params[0].Name != "x" {
		t.Fatalf("Block.Params = %+v, want [x]", call.Block.Params)
	}
}

func TestBraceBlockAttachesToCall(t *testing.T) {
	stmt := firstStmt(t, "foo { |x| x }")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Block == nil {
		t.Fatal("Block is nil, want a BlockArg")
	}
}

func TestBlockParamsAreLocalInsideBlockOnly(t *testing.T) {
	prog := parse(t, "foo do |x|\nx\nend\nx")
	call := prog.Stmts[0].(*ast.Call)
	inner := call.Block.Body[0]
	if _, ok := inner.(*ast.LVar); !ok {
		t.Fatalf("block body x = %T, want *ast.LVar (declared by the block param)", inner)
	}
	outer := prog.Stmts[1]
	if _, ok := outer.(*ast.Call); !ok {
		t.Fatalf("outer x = %T, want *ast.Call (block params don't leak out)", outer)
	}
}

func TestRescueAndEnsureClauses(t *testing.T) {
	stmt := firstStmt(t, "begin\nfoo\nrescue StandardError => e\nbar\nensure\nbaz\nend")
	br, ok := stmt.(*ast.BeginRescue)
	if !ok {
		t.Fatalf("got %T, want *ast.BeginRescue", stmt)
	}
	if len(br.Rescues) != 1 {
		t.Fatalf("Rescues = %v, want 1", br.Rescues)
	}
	rc := br.Rescues[0]
	if len(rc.Classes) != 1 {
		t.Fatalf("Classes = %v, want 1", rc.Classes)
	}
	if rc.Var == nil || rc.Var.(*ast.LVar).Name != "e" {
		t.Fatalf("Var = %+v, want LVar{e}", rc.Var)
	}
	if len(br.Ensure) != 1 {
		t.Fatalf("Ensure = %v, want 1 stmt", br.Ensure)
	}
}

func TestSafeNavigation(t *testing.T) {
	stmt := firstStmt(t, "obj&.m")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if !call.Safe {
		t.Errorf("Safe = false, want true for &.")
	}
	if call.Method != "m" {
		t.Errorf("Method = %q, want \"m\"", call.Method)
	}
}

func TestMethodCallWithArgsAndBlock(t *testing.T) {
	stmt := firstStmt(t, "recv.each(1, 2) { |x| x }")
	call, ok := stmt.(*ast.Call)
	if !ok {
		t.Fatalf("got %T, want *ast.Call", stmt)
	}
	if call.Method != "each" || len(call.Args) != 2 || call.Block == nil {
		t.Fatalf("Call = %+v, want Method=each, 2 args, a block", call)
	}
}

func TestClassDefWithSuperclass(t *testing.T) {
	stmt := firstStmt(t, "class Foo < Bar\nend")
	cd, ok := stmt.(*ast.ClassDef)
	if !ok {
		t.Fatalf("got %T, want *ast.ClassDef", stmt)
	}
	if cd.Name.(*ast.ConstRef).Name != "Foo" {
		t.Errorf("Name = %+v, want ConstRef{Foo}", cd.Name)
	}
	if cd.Super == nil || cd.Super.(*ast.ConstRef).Name != "Bar" {
		t.Fatalf("Super = %+v, want ConstRef{Bar}", cd.Super)
	}
}

func TestCaseWhenWithSplat(t *testing.T) {
	stmt := firstStmt(t, "case x\nwhen *ys\n1\nelse\n2\nend")
	c, ok := stmt.(*ast.Case)
	if !ok {
		t.Fatalf("got %T, want *ast.Case", stmt)
	}
	if len(c.Whens) != 1 {
		t.Fatalf("Whens = %v, want 1", c.Whens)
	}
	if _, ok := c.Whens[0].Patterns[0].(*ast.Splat); !ok {
		t.Errorf("Whens[0].Patterns[0] = %T, want *ast.Splat", c.Whens[0].Patterns[0])
	}
	if len(c.Else) != 1 {
		t.Fatalf("Else = %v, want 1", c.Else)
	}
}

func TestForLoopDeclaresLoopVar(t *testing.T) {
	stmt := firstStmt(t, "for x in xs\nx\nend")
	f, ok := stmt.(*ast.For)
	if !ok {
		t.Fatalf("got %T, want *ast.For", stmt)
	}
	if len(f.Vars) != 1 || f.Vars[0].(*ast.LVar).Name != "x" {
		t.Fatalf("Vars = %+v, want [LVar{x}]", f.Vars)
	}
	if _, ok := f.Body[0].(*ast.LVar); !ok {
		t.Fatalf("Body[0] = %T, want *ast.LVar (x declared by the for-loop var)", f.Body[0])
	}
}

func TestParserReportsErrorOnMalformedInput(t *testing.T) {
	errs := parseExpectErrors(t, "def foo(\n")
	if len(errs) == 0 {
		t.Fatal("expected parse errors for an unterminated parameter list, got none")
	}
}

func TestYieldWithArgs(t *testing.T) {
	stmt := firstStmt(t, "yield 1, 2")
	y, ok := stmt.(*ast.Yield)
	if !ok {
		t.Fatalf("got %T, want *ast.Yield", stmt)
	}
	if len(y.Args) != 2 {
		t.Fatalf("Args = %v, want 2", y.Args)
	}
}

func TestSuperWithoutArgsIsImplicit(t *testing.T) {
	stmt := firstStmt(t, "super")
	s, ok := stmt.(*ast.Super)
	if !ok {
		t.Fatalf("got %T, want *ast.Super", stmt)
	}
	if s.Explicit {
		t.Errorf("Explicit = true, want false for bare super")
	}
}

func TestSuperWithArgsIsExplicit(t *testing.T) {
	stmt := firstStmt(t, "super(1, 2)")
	s, ok := stmt.(*ast.Super)
	if !ok {
		t.Fatalf("got %T, want *ast.Super", stmt)
	}
	if !s.Explicit || len(s.Args) != 2 {
		t.Fatalf("Super = %+v, want Explicit=true, 2 args", s)
	}
}
