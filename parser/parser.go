// Package parser implements the syntactic analyzer for Quartz.
//
// The parser takes the token stream from package lexer and builds the
// abstract syntax tree package codegen consumes. It is a recursive-descent
// parser with Pratt parsing (precedence climbing) for expressions, the same
// overall shape as a classic textbook parser, adapted for a line-sensitive,
// keyword-`end`-delimited grammar: statements are separated by newlines or
// semicolons, blocks close with `end` rather than braces, and an identifier
// is only ever parsed as a local-variable read once the parser has seen it
// assigned — anything else is an implicit-self method call.
//
// Because Quartz's grammar needs unbounded lookahead in a few spots (most
// notably telling a multiple-assignment target list apart from an ordinary
// expression statement), the parser buffers the whole token stream up front
// rather than keeping only a one-token lookahead.
package parser

import (
	"fmt"
	"strings"

	"github.com/quartzlang/quartz/ast"
	"github.com/quartzlang/quartz/lexer"
	"github.com/quartzlang/quartz/token"
)

// Precedence levels, lowest to highest.
const (
	Lowest int = iota
	AssignPrec
	TernaryPrec
	RangePrec
	LogicOrPrec
	LogicAndPrec
	EqualsPrec
	CompPrec
	BitOrPrec
	BitAndPrec
	ShiftPrec
	SumPrec
	ProductPrec
	UnaryPrec
	PowerPrec
	PostfixPrec
)

var precedences = map[token.Type]int{
	token.QUESTION: TernaryPrec,
	token.OROR: LogicOrPrec, token.OR: LogicOrPrec,
	token.ANDAND: LogicAndPrec, token.AND: LogicAndPrec,
	token.DOTDOT: RangePrec, token.DOTDOTDOT: RangePrec,
	token.EQ: EqualsPrec, token.NOTEQ: EqualsPrec, token.CASEEQ: EqualsPrec, token.CMP: EqualsPrec,
	token.LT: CompPrec, token.LTE: CompPrec, token.GT: CompPrec, token.GTE: CompPrec,
	token.PIPE: BitOrPrec, token.CARET: BitOrPrec,
	token.AMP: BitAndPrec,
	token.LSHIFT: ShiftPrec, token.RSHIFT: ShiftPrec,
	token.PLUS: SumPrec, token.MINUS: SumPrec,
	token.STAR: ProductPrec, token.SLASH: ProductPrec, token.PERCENT: ProductPrec,
	token.DSTAR: PowerPrec,
	token.LPAREN: PostfixPrec, token.LBRACKET: PostfixPrec, token.DOT: PostfixPrec, token.SAFENAV: PostfixPrec,
}

var assignOps = map[token.Type]string{
	token.PLUSEQ: "+", token.MINUSEQ: "-", token.STAREQ: "*", token.SLASHEQ: "/",
	token.OREQ: "||", token.ANDEQ: "&&",
}

var binaryMethod = map[token.Type]string{
	token.PLUS: "+", token.MINUS: "-", token.STAR: "*", token.SLASH: "/", token.PERCENT: "%",
	token.EQ: "==", token.NOTEQ: "!=", token.CASEEQ: "===", token.CMP: "<=>",
	token.LT: "<", token.LTE: "<=", token.GT: ">", token.GTE: ">=",
	token.PIPE: "|", token.CARET: "^", token.AMP: "&",
	token.LSHIFT: "<<", token.RSHIFT: ">>", token.DSTAR: "**",
}

// Parser builds an *ast.Program from a token stream (see [New]).
type Parser struct {
	toks   []token.Token
	pos    int
	errors []string
	scopes []map[string]bool
}

// New buffers every token l produces and returns a ready-to-use Parser.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{scopes: []map[string]bool{{}}}
	for {
		t := l.NextToken()
		p.toks = append(p.toks, t)
		if t.Type == token.EOF {
			break
		}
	}
	return p
}

// Errors returns every syntax error collected while parsing.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

// --- token-stream primitives ---

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) curIs(t token.Type) bool { return p.cur().Type == t }
func (p *Parser) peek(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}
func (p *Parser) advance() token.Token {
	t := p.cur()
	if t.Type != token.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) expect(t token.Type) token.Token {
	if !p.curIs(t) {
		p.errorf("line %d: expected %s, got %s (%q)", p.cur().Line, t, p.cur().Type, p.cur().Literal)
		return p.cur()
	}
	return p.advance()
}

// skipTerm consumes any run of statement terminators (newline, `;`).
func (p *Parser) skipTerm() {
	for p.curIs(token.NEWLINE) || p.curIs(token.SEMICOLON) {
		p.advance()
	}
}

// skipNL consumes newlines only — used inside bracketed/paren contexts and
// right after binary operators, where a line break never ends a statement.
func (p *Parser) skipNL() {
	for p.curIs(token.NEWLINE) {
		p.advance()
	}
}

func (p *Parser) atStmtEnd() bool {
	switch p.cur().Type {
	case token.NEWLINE, token.SEMICOLON, token.EOF, token.END, token.ELSE, token.ELSIF,
		token.WHEN, token.RESCUE, token.ENSURE, token.RBRACE:
		return true
	default:
		return false
	}
}

// consumeThenOrDo skips an optional `then`/`do` plus surrounding newlines,
// the way `if cond then` / `while cond do` permit (and a bare newline
// equally serves as the separator).
func (p *Parser) consumeThenOrDo() {
	p.skipNL()
	if p.curIs(token.THEN) || p.curIs(token.DO) {
		p.advance()
	}
	p.skipNL()
}

// --- local-variable scope tracking ---
//
// codegen's LVar resolution errors on an unresolved name (spec.md §4.6), so
// the parser must decide, at parse time, whether a bare identifier reads an
// already-assigned local or calls a method implicitly on self — exactly the
// ambiguity a real Ruby parser resolves in the same way.

func (p *Parser) pushScope() { p.scopes = append(p.scopes, map[string]bool{}) }
func (p *Parser) popScope()  { p.scopes = p.scopes[:len(p.scopes)-1] }

func (p *Parser) declareLocal(name string) {
	p.scopes[len(p.scopes)-1][name] = true
}

func (p *Parser) isLocal(name string) bool {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if p.scopes[i][name] {
			return true
		}
	}
	return false
}

// --- program / statement lists ---

// ParseProgram parses the whole token stream into an *ast.Program.
// Check [Parser.Errors] afterward for any syntax errors encountered.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{Position: ast.NewPosition(p.cur())}
	prog.Stmts = p.parseStmtList(token.EOF)
	return prog
}

// parseStmtList reads statements until the current token is EOF or one of
// enders (left unconsumed for the caller to match against).
func (p *Parser) parseStmtList(enders ...token.Type) []ast.Node {
	var stmts []ast.Node
	for {
		p.skipTerm()
		if p.curIs(token.EOF) {
			return stmts
		}
		for _, e := range enders {
			if p.curIs(e) {
				return stmts
			}
		}
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if !p.atStmtEnd() {
			p.errorf("line %d: unexpected token %s (%q) after statement", p.cur().Line, p.cur().Type, p.cur().Literal)
			p.advance()
		}
	}
}

func (p *Parser) parseStatement() ast.Node {
	var stmt ast.Node
	switch p.cur().Type {
	case token.DEF:
		stmt = p.parseDef()
	case token.CLASS:
		stmt = p.parseClass()
	case token.MODULE:
		stmt = p.parseModule()
	case token.IF:
		stmt = p.parseIf()
	case token.UNLESS:
		stmt = p.parseUnless()
	case token.WHILE:
		stmt = p.parseWhile(false)
	case token.UNTIL:
		stmt = p.parseWhile(true)
	case token.FOR:
		stmt = p.parseFor()
	case token.CASE:
		stmt = p.parseCase()
	case token.BEGIN:
		stmt = p.parseBegin()
	case token.RETURN:
		stmt = p.parseReturn()
	case token.BREAK:
		stmt = p.parseBreak()
	case token.NEXT:
		stmt = p.parseNext()
	case token.REDO:
		pos := ast.NewPosition(p.advance())
		return &ast.Redo{Position: pos}
	case token.RETRY:
		pos := ast.NewPosition(p.advance())
		return &ast.Retry{Position: pos}
	case token.ALIAS:
		stmt = p.parseAlias()
	case token.UNDEF:
		stmt = p.parseUndef()
	default:
		stmt = p.parseExprStatement()
	}
	return p.parseModifiers(stmt)
}

// parseModifiers wraps stmt in trailing `if`/`unless`/`while`/`until`
// modifiers, e.g. `x += 1 while n > 0`. A `begin...end while cond` (or
// `until`) is Ruby's one post-test loop form — stmt arrives as a bare
// *ast.Begin precisely when it began with the `begin` keyword, so that's
// the signal to set DoWhile instead of wrapping it as a fresh body.
func (p *Parser) parseModifiers(stmt ast.Node) ast.Node {
	for {
		switch p.cur().Type {
		case token.IF:
			pos := ast.NewPosition(p.advance())
			cond := p.parseExpr(Lowest)
			stmt = &ast.If{Position: pos, Cond: cond, Then: []ast.Node{stmt}}
		case token.UNLESS:
			pos := ast.NewPosition(p.advance())
			cond := p.parseExpr(Lowest)
			stmt = &ast.If{Position: pos, Cond: cond, Else: []ast.Node{stmt}}
		case token.WHILE, token.UNTIL:
			negate := p.cur().Type == token.UNTIL
			pos := ast.NewPosition(p.advance())
			cond := p.parseExpr(Lowest)
			if begin, ok := stmt.(*ast.Begin); ok {
				stmt = &ast.While{Position: pos, Cond: cond, Body: begin.Stmts, Negate: negate, DoWhile: true}
			} else {
				stmt = &ast.While{Position: pos, Cond: cond, Body: []ast.Node{stmt}, Negate: negate}
			}
		default:
			return stmt
		}
	}
}

// --- simple statements ---

func (p *Parser) parseReturn() ast.Node {
	pos := ast.NewPosition(p.advance())
	if p.atStmtEnd() {
		return &ast.Return{Position: pos}
	}
	return &ast.Return{Position: pos, Value: p.parseExpr(Lowest)}
}

func (p *Parser) parseBreak() ast.Node {
	pos := ast.NewPosition(p.advance())
	if p.atStmtEnd() {
		return &ast.Break{Position: pos}
	}
	return &ast.Break{Position: pos, Value: p.parseExpr(Lowest)}
}

func (p *Parser) parseNext() ast.Node {
	pos := ast.NewPosition(p.advance())
	if p.atStmtEnd() {
		return &ast.NextStmt{Position: pos}
	}
	return &ast.NextStmt{Position: pos, Value: p.parseExpr(Lowest)}
}

// parseMethodNameToken reads a bindable method name — a plain identifier,
// an operator token (`+`, `==`, ...), `[]`/`[]=`, or a symbol literal (for
// `alias :foo :bar`) — returning its bare text.
func (p *Parser) parseMethodNameToken() string {
	t := p.cur()
	switch t.Type {
	case token.IDENT, token.CONST, token.SYMBOL:
		p.advance()
		return t.Literal
	case token.LBRACKET:
		p.advance()
		p.expect(token.RBRACKET)
		if p.curIs(token.ASSIGN) {
			p.advance()
			return "[]="
		}
		return "[]"
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.EQ, token.NOTEQ, token.CASEEQ, token.CMP,
		token.LT, token.LTE, token.GT, token.GTE, token.BANG, token.LSHIFT:
		p.advance()
		return string(t.Type)
	default:
		p.errorf("line %d: expected a method name, got %s", t.Line, t.Type)
		p.advance()
		return t.Literal
	}
}

func (p *Parser) parseAlias() ast.Node {
	pos := ast.NewPosition(p.advance())
	newName := p.parseMethodNameToken()
	oldName := p.parseMethodNameToken()
	return &ast.Alias{Position: pos, New: newName, Old: oldName}
}

func (p *Parser) parseUndef() ast.Node {
	pos := ast.NewPosition(p.advance())
	names := []string{p.parseMethodNameToken()}
	for p.curIs(token.COMMA) {
		p.advance()
		names = append(names, p.parseMethodNameToken())
	}
	return &ast.Undef{Position: pos, Names: names}
}

// --- def / class / module / alias ---

func (p *Parser) parseParamList() []ast.Param {
	var params []ast.Param
	if !p.curIs(token.LPAREN) {
		return params
	}
	p.advance()
	p.skipNL()
	for !p.curIs(token.RPAREN) {
		var param ast.Param
		switch p.cur().Type {
		case token.STAR:
			p.advance()
			param.Splat = true
			if p.curIs(token.IDENT) {
				param.Name = p.advance().Literal
			}
		case token.DSTAR:
			p.advance()
			param.DoubleSplat = true
			param.Name = p.expect(token.IDENT).Literal
		case token.AMP:
			p.advance()
			param.Block = true
			param.Name = p.expect(token.IDENT).Literal
		default:
			param.Name = p.expect(token.IDENT).Literal
			if p.curIs(token.ASSIGN) {
				p.advance()
				param.Default = p.parseExpr(AssignPrec)
			}
		}
		if param.Name != "" {
			p.declareLocal(param.Name)
		}
		params = append(params, param)
		p.skipNL()
		if p.curIs(token.COMMA) {
			p.advance()
			p.skipNL()
			continue
		}
		break
	}
	p.skipNL()
	p.expect(token.RPAREN)
	return params
}

// parseBodyWithRescue reads a statement list that may carry bare
// `rescue`/`ensure` clauses without an enclosing `begin` — the implicit
// exception-handling region every method/block body admits in Ruby.
func (p *Parser) parseBodyWithRescue(end token.Type) []ast.Node {
	body := p.parseStmtList(token.RESCUE, token.ELSE, token.ENSURE, end)
	rescues, elseBody, ensureBody := p.parseRescueTail(end)
	if len(rescues) == 0 && len(elseBody) == 0 && len(ensureBody) == 0 {
		return body
	}
	return []ast.Node{&ast.BeginRescue{Body: body, Rescues: rescues, Else: elseBody, Ensure: ensureBody}}
}

func (p *Parser) parseDef() ast.Node {
	pos := ast.NewPosition(p.advance())

	var singleton ast.Node
	var name string
	first := p.cur()
	switch first.Type {
	case token.SELF:
		p.advance()
		if p.curIs(token.DOT) {
			p.advance()
			singleton = &ast.SelfLit{Position: pos}
			name = p.parseMethodNameToken()
		} else {
			name = "self"
		}
	case token.CONST:
		p.advance()
		if p.curIs(token.DOT) {
			p.advance()
			singleton = &ast.ConstRef{Position: pos, Name: first.Literal}
			name = p.parseMethodNameToken()
		} else {
			name = first.Literal
		}
	default:
		name = p.parseMethodNameToken()
		if p.curIs(token.DOT) {
			p.advance()
			singleton = &ast.LVar{Position: pos, Name: name}
			name = p.parseMethodNameToken()
		}
	}

	p.pushScope()
	params := p.parseParamList()
	p.skipTerm()
	body := p.parseBodyWithRescue(token.END)
	p.popScope()
	p.expect(token.END)
	return &ast.MethodDef{Position: pos, Name: name, Singleton: singleton, Params: params, Body: body}
}

// parseConstPath parses `Name`, `Base::Name`, or a leading `::Name`.
func (p *Parser) parseConstPath() ast.Node {
	pos := ast.NewPosition(p.cur())
	var node ast.Node
	if p.curIs(token.SCOPE) {
		p.advance()
		node = &ast.Colon3{Position: pos, Name: p.expect(token.CONST).Literal}
	} else {
		node = &ast.ConstRef{Position: pos, Name: p.expect(token.CONST).Literal}
	}
	for p.curIs(token.SCOPE) {
		p.advance()
		node = &ast.Colon2{Position: pos, Base: node, Name: p.expect(token.CONST).Literal}
	}
	return node
}

func (p *Parser) parseClass() ast.Node {
	pos := ast.NewPosition(p.advance())
	if p.curIs(token.LSHIFT) {
		p.advance()
		obj := p.parseExpr(Lowest)
		p.skipTerm()
		p.pushScope()
		body := p.parseStmtList(token.END)
		p.popScope()
		p.expect(token.END)
		return &ast.SClassDef{Position: pos, Object: obj, Body: body}
	}

	name := p.parseConstPath()
	var super ast.Node
	if p.curIs(token.LT) {
		p.advance()
		super = p.parseExpr(PostfixPrec)
	}
	p.skipTerm()
	p.pushScope()
	body := p.parseStmtList(token.END)
	p.popScope()
	p.expect(token.END)
	return &ast.ClassDef{Position: pos, Name: name, Super: super, Body: body}
}

func (p *Parser) parseModule() ast.Node {
	pos := ast.NewPosition(p.advance())
	name := p.parseConstPath()
	p.skipTerm()
	p.pushScope()
	body := p.parseStmtList(token.END)
	p.popScope()
	p.expect(token.END)
	return &ast.ModuleDef{Position: pos, Name: name, Body: body}
}

// --- if / unless / while / until / for / case / begin ---

func (p *Parser) parseIf() ast.Node {
	pos := ast.NewPosition(p.advance())
	cond := p.parseExpr(Lowest)
	p.consumeThenOrDo()
	thenStmts := p.parseStmtList(token.ELSIF, token.ELSE, token.END)
	elseStmts := p.parseIfTail()
	p.expect(token.END)
	return &ast.If{Position: pos, Cond: cond, Then: thenStmts, Else: elseStmts}
}

// parseIfTail handles an `elsif` chain or a final `else`, leaving `end`
// unconsumed for the outermost caller.
func (p *Parser) parseIfTail() []ast.Node {
	switch p.cur().Type {
	case token.ELSIF:
		pos := ast.NewPosition(p.advance())
		cond := p.parseExpr(Lowest)
		p.consumeThenOrDo()
		thenStmts := p.parseStmtList(token.ELSIF, token.ELSE, token.END)
		elseStmts := p.parseIfTail()
		return []ast.Node{&ast.If{Position: pos, Cond: cond, Then: thenStmts, Else: elseStmts}}
	case token.ELSE:
		p.advance()
		return p.parseStmtList(token.END)
	default:
		return nil
	}
}

func (p *Parser) parseUnless() ast.Node {
	pos := ast.NewPosition(p.advance())
	cond := p.parseExpr(Lowest)
	p.consumeThenOrDo()
	elseStmts := p.parseStmtList(token.ELSE, token.END)
	var thenStmts []ast.Node
	if p.curIs(token.ELSE) {
		p.advance()
		thenStmts = p.parseStmtList(token.END)
	}
	p.expect(token.END)
	return &ast.If{Position: pos, Cond: cond, Then: thenStmts, Else: elseStmts}
}

func (p *Parser) parseWhile(negate bool) ast.Node {
	pos := ast.NewPosition(p.advance())
	cond := p.parseExpr(Lowest)
	p.consumeThenOrDo()
	body := p.parseStmtList(token.END)
	p.expect(token.END)
	return &ast.While{Position: pos, Cond: cond, Body: body, Negate: negate}
}

func (p *Parser) parseFor() ast.Node {
	pos := ast.NewPosition(p.advance())
	var vars []ast.Node
	for {
		name := p.expect(token.IDENT).Literal
		p.declareLocal(name)
		vars = append(vars, &ast.LVar{Position: pos, Name: name})
		if p.curIs(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.IN)
	iter := p.parseExpr(Lowest)
	p.consumeThenOrDo()
	body := p.parseStmtList(token.END)
	p.expect(token.END)
	return &ast.For{Position: pos, Vars: vars, Iter: iter, Body: body}
}

func (p *Parser) parseCase() ast.Node {
	pos := ast.NewPosition(p.advance())
	var subject ast.Node
	p.skipNL()
	if !p.curIs(token.WHEN) {
		subject = p.parseExpr(Lowest)
	}
	p.skipTerm()

	var whens []ast.WhenClause
	for p.curIs(token.WHEN) {
		p.advance()
		var patterns []ast.Node
		for {
			if p.curIs(token.STAR) {
				spos := ast.NewPosition(p.advance())
				patterns = append(patterns, &ast.Splat{Position: spos, Value: p.parseExpr(TernaryPrec)})
			} else {
				patterns = append(patterns, p.parseExpr(TernaryPrec))
			}
			if p.curIs(token.COMMA) {
				p.advance()
				p.skipNL()
				continue
			}
			break
		}
		p.consumeThenOrDo()
		body := p.parseStmtList(token.WHEN, token.ELSE, token.END)
		whens = append(whens, ast.WhenClause{Patterns: patterns, Body: body})
	}
	var elseBody []ast.Node
	if p.curIs(token.ELSE) {
		p.advance()
		elseBody = p.parseStmtList(token.END)
	}
	p.expect(token.END)
	return &ast.Case{Position: pos, Subject: subject, Whens: whens, Else: elseBody}
}

// parseRescueTail reads `rescue`/`else`/`ensure` clauses up to (but not
// including) end, shared by parseBegin and parseBodyWithRescue.
func (p *Parser) parseRescueTail(end token.Type) (rescues []ast.RescueClause, elseBody, ensureBody []ast.Node) {
	for p.curIs(token.RESCUE) {
		p.advance()
		var classes []ast.Node
		var varNode ast.Node
		if !p.curIs(token.FATARROW) && !p.atStmtEnd() && !p.curIs(token.THEN) {
			classes = append(classes, p.parseExpr(TernaryPrec))
			for p.curIs(token.COMMA) {
				p.advance()
				classes = append(classes, p.parseExpr(TernaryPrec))
			}
		}
		if p.curIs(token.FATARROW) {
			p.advance()
			name := p.expect(token.IDENT).Literal
			p.declareLocal(name)
			varNode = &ast.LVar{Name: name}
		}
		p.consumeThenOrDo()
		body := p.parseStmtList(token.RESCUE, token.ELSE, token.ENSURE, end)
		rescues = append(rescues, ast.RescueClause{Classes: classes, Var: varNode, Body: body})
	}
	if p.curIs(token.ELSE) {
		p.advance()
		elseBody = p.parseStmtList(token.ENSURE, end)
	}
	if p.curIs(token.ENSURE) {
		p.advance()
		ensureBody = p.parseStmtList(end)
	}
	return rescues, elseBody, ensureBody
}

func (p *Parser) parseBegin() ast.Node {
	pos := ast.NewPosition(p.advance())
	body := p.parseStmtList(token.RESCUE, token.ELSE, token.ENSURE, token.END)
	rescues, elseBody, ensureBody := p.parseRescueTail(token.END)
	p.expect(token.END)
	if len(rescues) == 0 && len(elseBody) == 0 && len(ensureBody) == 0 {
		return &ast.Begin{Position: pos, Stmts: body}
	}
	return &ast.BeginRescue{Position: pos, Body: body, Rescues: rescues, Else: elseBody, Ensure: ensureBody}
}

// --- expression statements: assignment / multiple-assignment detection ---

func (p *Parser) parseExprStatement() ast.Node {
	first := p.parseExpr(AssignPrec) // stop at assignment, and at `,`'s implicit masgn boundary
	if p.curIs(token.COMMA) {
		return p.parseMAsgnTail(first)
	}
	return p.parseAssignTail(first)
}

// parseMAsgnTail is reached once a leading comma reveals a multiple-
// assignment target list: `a, b = 1, 2`, `a, *b, c = xs`.
func (p *Parser) parseMAsgnTail(first ast.Node) ast.Node {
	pos := first.Pos()
	var pre []ast.Node
	var rest ast.Node
	var post []ast.Node
	seenRest := false

	target := asAssignTarget(first)
	for {
		if splat, ok := target.(*ast.Splat); ok {
			seenRest = true
			rest = splat.Value
		} else if seenRest {
			post = append(post, target)
		} else {
			pre = append(pre, target)
		}
		if !p.curIs(token.COMMA) {
			break
		}
		p.advance()
		p.skipNL()
		if p.curIs(token.STAR) {
			spos := ast.NewPosition(p.advance())
			target = &ast.Splat{Position: spos, Value: asAssignTarget(p.parseExpr(RangePrec + 1))}
		} else {
			target = asAssignTarget(p.parseExpr(RangePrec + 1))
		}
	}

	var restList []ast.Node
	if rest != nil {
		restList = []ast.Node{rest}
	}
	p.declareMAsgnTargets(pre, restList, post)
	p.expect(token.ASSIGN)
	p.skipNL()
	rhs := []ast.Node{p.parseExpr(AssignPrec)}
	for p.curIs(token.COMMA) {
		p.advance()
		p.skipNL()
		rhs = append(rhs, p.parseExpr(AssignPrec))
	}
	return &ast.MAsgn{Position: pos, Pre: pre, Rest: rest, Post: post, RHS: rhs}
}

func (p *Parser) declareMAsgnTargets(lists ...[]ast.Node) {
	for _, list := range lists {
		for _, n := range list {
			if lv, ok := n.(*ast.LVar); ok {
				p.declareLocal(lv.Name)
			}
		}
	}
}

// parseAssignTail turns a plain or compound assignment operator following
// an already-parsed expression into Assign/OpAssign, declaring a new bare
// LVar target as a local the moment it's assigned.
func (p *Parser) parseAssignTail(lhs ast.Node) ast.Node {
	switch {
	case p.curIs(token.ASSIGN):
		pos := ast.NewPosition(p.advance())
		p.skipNL()
		if lv, ok := lhs.(*ast.LVar); ok {
			p.declareLocal(lv.Name)
		}
		rhs := p.parseExpr(AssignPrec)
		return &ast.Assign{Position: pos, LHS: lhs, RHS: rhs}
	case assignOps[p.cur().Type] != "":
		op := assignOps[p.cur().Type]
		pos := ast.NewPosition(p.advance())
		p.skipNL()
		if lv, ok := lhs.(*ast.LVar); ok {
			p.declareLocal(lv.Name)
		}
		rhs := p.parseExpr(AssignPrec)
		return &ast.OpAssign{Position: pos, LHS: lhs, Op: op, RHS: rhs}
	default:
		return lhs
	}
}

// --- Pratt expression parser ---

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.cur().Type]; ok {
		return pr
	}
	return Lowest
}

func (p *Parser) parseExpr(min int) ast.Node {
	left := p.parsePrefix()
	for !p.atStmtEnd() && min < p.peekPrecedence() {
		next := p.parseInfix(left)
		if next == nil {
			return left
		}
		left = next
	}
	return left
}

func (p *Parser) parsePrefix() ast.Node {
	t := p.cur()
	switch t.Type {
	case token.INT:
		p.advance()
		base := 10
		switch {
		case strings.HasPrefix(t.Literal, "0x") || strings.HasPrefix(t.Literal, "0X"):
			base = 16
		case strings.HasPrefix(t.Literal, "0b") || strings.HasPrefix(t.Literal, "0B"):
			base = 2
		case strings.HasPrefix(t.Literal, "0o") || strings.HasPrefix(t.Literal, "0O"):
			base = 8
		}
		digits := t.Literal
		if base != 10 {
			digits = digits[2:]
		}
		return &ast.IntLit{Position: ast.NewPosition(t), Value: digits, Base: base}
	case token.FLOAT:
		p.advance()
		return &ast.FloatLit{Position: ast.NewPosition(t), Value: parseFloatLiteral(t.Literal)}
	case token.STRING:
		p.advance()
		return &ast.StrLit{Position: ast.NewPosition(t), Value: t.Literal}
	case token.SYMBOL:
		p.advance()
		return &ast.SymLit{Position: ast.NewPosition(t), Name: t.Literal}
	case token.TRUE:
		p.advance()
		return &ast.TrueLit{Position: ast.NewPosition(t)}
	case token.FALSE:
		p.advance()
		return &ast.FalseLit{Position: ast.NewPosition(t)}
	case token.NIL:
		p.advance()
		return &ast.NilLit{Position: ast.NewPosition(t)}
	case token.SELF:
		p.advance()
		return p.parsePostfix(&ast.SelfLit{Position: ast.NewPosition(t)})
	case token.IVAR:
		p.advance()
		return &ast.IVar{Position: ast.NewPosition(t), Name: t.Literal}
	case token.CVAR:
		p.advance()
		return &ast.CVar{Position: ast.NewPosition(t), Name: t.Literal}
	case token.GVAR:
		p.advance()
		return parseGVar(t)
	case token.CONST:
		p.advance()
		node := ast.Node(&ast.ConstRef{Position: ast.NewPosition(t), Name: t.Literal})
		for p.curIs(token.SCOPE) && p.peek(1).Type == token.CONST {
			p.advance()
			name := p.expect(token.CONST).Literal
			node = &ast.Colon2{Position: ast.NewPosition(t), Base: node, Name: name}
		}
		return p.parsePostfix(node)
	case token.SCOPE:
		p.advance()
		name := p.expect(token.CONST).Literal
		return p.parsePostfix(&ast.Colon3{Position: ast.NewPosition(t), Name: name})
	case token.IDENT:
		return p.parsePostfix(p.parseIdentOrCall(t))
	case token.BANG:
		p.advance()
		operand := p.parseExpr(UnaryPrec)
		return &ast.Call{Position: ast.NewPosition(t), Receiver: operand, Method: "!"}
	case token.NOT:
		p.advance()
		operand := p.parseExpr(UnaryPrec)
		return &ast.Call{Position: ast.NewPosition(t), Receiver: operand, Method: "!"}
	case token.MINUS:
		p.advance()
		return &ast.Negate{Position: ast.NewPosition(t), Operand: p.parseExpr(UnaryPrec)}
	case token.LPAREN:
		p.advance()
		p.skipNL()
		expr := p.parseExpr(Lowest)
		p.skipNL()
		p.expect(token.RPAREN)
		return p.parsePostfix(expr)
	case token.LBRACKET:
		return p.parsePostfix(p.parseArrayLit())
	case token.LBRACE:
		return p.parseHashLit()
	case token.ARROW:
		return p.parseArrowLambda()
	case token.YIELD:
		return p.parseYield()
	case token.SUPER:
		return p.parseSuper()
	default:
		p.errorf("line %d: no prefix parse for %s (%q)", t.Line, t.Type, t.Literal)
		p.advance()
		return &ast.NilLit{Position: ast.NewPosition(t)}
	}
}

func parseGVar(t token.Token) ast.Node {
	pos := ast.NewPosition(t)
	if len(t.Literal) > 1 {
		allDigits := true
		for _, r := range t.Literal[1:] {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			n := 0
			for _, r := range t.Literal[1:] {
				n = n*10 + int(r-'0')
			}
			return &ast.NthRef{Position: pos, N: n}
		}
	}
	return &ast.GVar{Position: pos, Name: t.Literal}
}

// parseIdentOrCall decides, from the parser's local-variable tracking,
// whether a bare identifier is an LVar read or an implicit-self call —
// and parses a parenthesized/bare argument list either way.
//
// A name the tracker has never seen is still an LVar, not a call, the
// moment it's directly followed by `=` or a compound-assignment operator:
// that is exactly the position that declares it. Without this lookahead
// the declare-on-assign step in parseAssignTail never fires, since it only
// declares a name already shaped like an LVar.
func (p *Parser) parseIdentOrCall(t token.Token) ast.Node {
	p.advance()
	pos := ast.NewPosition(t)
	if p.curIs(token.LPAREN) {
		args, block := p.parseCallArgsAndBlock()
		return &ast.Call{Position: pos, Method: t.Literal, Args: args, Block: block}
	}
	if p.isLocal(t.Literal) || p.curIs(token.ASSIGN) || assignOps[p.cur().Type] != "" {
		return &ast.LVar{Position: pos, Name: t.Literal}
	}
	block := p.parseTrailingBlock()
	return &ast.Call{Position: pos, Method: t.Literal, Block: block}
}

// asAssignTarget rewrites a bare, receiver-less, argument-less Call back
// into an LVar — the shape parseMAsgnTail's comma-separated targets parse
// as before the surrounding syntax (a leading comma) reveals they're
// actually assignment targets rather than calls.
func asAssignTarget(n ast.Node) ast.Node {
	if c, ok := n.(*ast.Call); ok && c.Receiver == nil && len(c.Args) == 0 && c.Block == nil {
		return &ast.LVar{Position: c.Position, Name: c.Method}
	}
	return n
}

// parsePostfix handles the left-recursive suffixes: `.method`, `&.method`,
// `[index]`, `::Const`, and a trailing block attached to the call just
// built.
func (p *Parser) parsePostfix(left ast.Node) ast.Node {
	for {
		switch p.cur().Type {
		case token.DOT, token.SAFENAV:
			safe := p.cur().Type == token.SAFENAV
			pos := ast.NewPosition(p.advance())
			method := p.parseMethodNameToken()
			var args []ast.Node
			var block *ast.BlockArg
			if p.curIs(token.LPAREN) {
				args, block = p.parseCallArgsAndBlock()
			} else {
				block = p.parseTrailingBlock()
			}
			left = &ast.Call{Position: pos, Receiver: left, Method: method, Args: args, Block: block, Safe: safe}
		case token.LBRACKET:
			pos := ast.NewPosition(p.advance())
			p.skipNL()
			var idx []ast.Node
			for !p.curIs(token.RBRACKET) {
				idx = append(idx, p.parseExpr(AssignPrec))
				if p.curIs(token.COMMA) {
					p.advance()
					p.skipNL()
					continue
				}
				break
			}
			p.skipNL()
			p.expect(token.RBRACKET)
			left = &ast.Call{Position: pos, Receiver: left, Method: "[]", Args: idx}
		default:
			return left
		}
	}
}

func (p *Parser) parseCallArgsAndBlock() ([]ast.Node, *ast.BlockArg) {
	p.expect(token.LPAREN)
	p.skipNL()
	var args []ast.Node
	for !p.curIs(token.RPAREN) {
		args = append(args, p.parseCallArg())
		p.skipNL()
		if p.curIs(token.COMMA) {
			p.advance()
			p.skipNL()
			continue
		}
		break
	}
	p.skipNL()
	p.expect(token.RPAREN)
	return args, p.parseTrailingBlock()
}

func (p *Parser) parseCallArg() ast.Node {
	if p.curIs(token.STAR) {
		pos := ast.NewPosition(p.advance())
		return &ast.Splat{Position: pos, Value: p.parseExpr(AssignPrec)}
	}
	if p.curIs(token.DSTAR) {
		pos := ast.NewPosition(p.advance())
		return &ast.DoubleSplat{Position: pos, Value: p.parseExpr(AssignPrec)}
	}
	return p.parseExpr(AssignPrec)
}

// parseTrailingBlock parses an optional `{ ... }` or `do ... end` block
// attached to the call just parsed.
func (p *Parser) parseTrailingBlock() *ast.BlockArg {
	switch p.cur().Type {
	case token.LBRACE:
		pos := ast.NewPosition(p.advance())
		params := p.parseBlockParams()
		p.skipTerm()
		p.pushScope()
		for _, prm := range params {
			p.declareLocal(prm.Name)
		}
		body := p.parseStmtList(token.RBRACE)
		p.popScope()
		p.expect(token.RBRACE)
		return &ast.BlockArg{Position: pos, Params: params, Body: body}
	case token.DO:
		pos := ast.NewPosition(p.advance())
		params := p.parseBlockParams()
		p.skipTerm()
		p.pushScope()
		for _, prm := range params {
			p.declareLocal(prm.Name)
		}
		body := p.parseStmtList(token.END)
		p.popScope()
		p.expect(token.END)
		return &ast.BlockArg{Position: pos, Params: params, Body: body}
	default:
		return nil
	}
}

func (p *Parser) parseBlockParams() []ast.Param {
	if !p.curIs(token.PIPE) {
		return nil
	}
	p.advance()
	var params []ast.Param
	for !p.curIs(token.PIPE) {
		var param ast.Param
		switch p.cur().Type {
		case token.STAR:
			p.advance()
			param.Splat = true
			param.Name = p.expect(token.IDENT).Literal
		default:
			param.Name = p.expect(token.IDENT).Literal
		}
		params = append(params, param)
		if p.curIs(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.PIPE)
	return params
}

func (p *Parser) parseYield() ast.Node {
	pos := ast.NewPosition(p.advance())
	var args []ast.Node
	if p.curIs(token.LPAREN) {
		args, _ = p.parseCallArgsAndBlock()
	} else if !p.atStmtEnd() && !yieldStops(p.cur().Type) {
		args = append(args, p.parseCallArg())
		for p.curIs(token.COMMA) {
			p.advance()
			args = append(args, p.parseCallArg())
		}
	}
	return p.parsePostfix(&ast.Yield{Position: pos, Args: args})
}

func yieldStops(t token.Type) bool {
	switch t {
	case token.DOT, token.SAFENAV, token.RPAREN, token.RBRACKET, token.RBRACE:
		return true
	default:
		return false
	}
}

func (p *Parser) parseSuper() ast.Node {
	pos := ast.NewPosition(p.advance())
	if p.curIs(token.LPAREN) {
		args, block := p.parseCallArgsAndBlock()
		return &ast.Super{Position: pos, Args: args, Block: block, Explicit: true}
	}
	block := p.parseTrailingBlock()
	return &ast.Super{Position: pos, Block: block, Explicit: false}
}

func (p *Parser) parseArrayLit() ast.Node {
	pos := ast.NewPosition(p.advance())
	p.skipNL()
	var elems []ast.Node
	for !p.curIs(token.RBRACKET) {
		elems = append(elems, p.parseCallArg())
		p.skipNL()
		if p.curIs(token.COMMA) {
			p.advance()
			p.skipNL()
			continue
		}
		break
	}
	p.skipNL()
	p.expect(token.RBRACKET)
	return &ast.ArrayLit{Position: pos, Elements: elems}
}

func (p *Parser) parseHashLit() ast.Node {
	pos := ast.NewPosition(p.advance())
	p.skipNL()
	var pairs []ast.HashPair
	for !p.curIs(token.RBRACE) {
		var key ast.Node
		if p.curIs(token.DSTAR) {
			spos := ast.NewPosition(p.advance())
			val := p.parseExpr(AssignPrec)
			pairs = append(pairs, ast.HashPair{Key: &ast.DoubleSplat{Position: spos, Value: val}, Value: val})
			p.skipNL()
			if p.curIs(token.COMMA) {
				p.advance()
				p.skipNL()
			}
			continue
		}
		if (p.curIs(token.IDENT) || p.curIs(token.CONST)) && p.peek(1).Type == token.COLON {
			kt := p.advance()
			key = &ast.SymLit{Position: ast.NewPosition(kt), Name: kt.Literal}
			p.advance() // ':'
		} else {
			key = p.parseExpr(AssignPrec)
			p.skipNL()
			p.expect(token.FATARROW)
		}
		p.skipNL()
		value := p.parseExpr(AssignPrec)
		pairs = append(pairs, ast.HashPair{Key: key, Value: value})
		p.skipNL()
		if p.curIs(token.COMMA) {
			p.advance()
			p.skipNL()
			continue
		}
		break
	}
	p.skipNL()
	p.expect(token.RBRACE)
	return &ast.HashLit{Position: pos, Pairs: pairs}
}

func (p *Parser) parseArrowLambda() ast.Node {
	pos := ast.NewPosition(p.advance())
	p.pushScope()
	params := p.parseParamList()
	var body []ast.Node
	switch p.cur().Type {
	case token.LBRACE:
		p.advance()
		p.skipTerm()
		body = p.parseStmtList(token.RBRACE)
		p.expect(token.RBRACE)
	case token.DO:
		p.advance()
		p.skipTerm()
		body = p.parseStmtList(token.END)
		p.expect(token.END)
	default:
		p.errorf("line %d: expected '{' or 'do' to start a lambda body", p.cur().Line)
	}
	p.popScope()
	return &ast.Lambda{Position: pos, Params: params, Body: body}
}

// parseInfix dispatches a binary/ternary/range operator already confirmed
// by peekPrecedence, or nil if p.cur() turns out not to be one after all
// (the `?:` and range forms need their own structure, not a generic
// left/right pair).
func (p *Parser) parseInfix(left ast.Node) ast.Node {
	t := p.cur()
	switch t.Type {
	case token.QUESTION:
		p.advance()
		p.skipNL()
		thenExpr := p.parseExpr(AssignPrec)
		p.skipNL()
		p.expect(token.COLON)
		p.skipNL()
		elseExpr := p.parseExpr(AssignPrec)
		return &ast.If{Position: ast.NewPosition(t), Cond: left, Then: []ast.Node{thenExpr}, Else: []ast.Node{elseExpr}}
	case token.DOTDOT, token.DOTDOTDOT:
		p.advance()
		p.skipNL()
		high := p.parseExpr(RangePrec)
		return &ast.RangeLit{Position: ast.NewPosition(t), Low: left, High: high, Exclusive: t.Type == token.DOTDOTDOT}
	case token.ANDAND, token.AND:
		p.advance()
		p.skipNL()
		rhs := p.parseExpr(LogicAndPrec)
		return &ast.And{Position: ast.NewPosition(t), LHS: left, RHS: rhs}
	case token.OROR, token.OR:
		p.advance()
		p.skipNL()
		rhs := p.parseExpr(LogicOrPrec)
		return &ast.Or{Position: ast.NewPosition(t), LHS: left, RHS: rhs}
	default:
		if method, ok := binaryMethod[t.Type]; ok {
			pos := ast.NewPosition(p.advance())
			p.skipNL()
			prec := precedences[t.Type]
			rhs := p.parseExpr(prec)
			return &ast.Call{Position: pos, Receiver: left, Method: method, Args: []ast.Node{rhs}}
		}
		return nil
	}
}

// parseFloatLiteral parses a float literal's text directly (codegen's
// IntLit keeps its raw text for base/overflow handling, but floats carry
// no base ambiguity, so the parser resolves the value once, here).
func parseFloatLiteral(raw string) float64 {
	raw = strings.ReplaceAll(raw, "_", "")
	var whole, frac float64
	var sign float64 = 1
	i := 0
	if i < len(raw) && raw[i] == '-' {
		sign = -1
		i++
	}
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		whole = whole*10 + float64(raw[i]-'0')
		i++
	}
	if i < len(raw) && raw[i] == '.' {
		i++
		div := 1.0
		for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
			frac = frac*10 + float64(raw[i]-'0')
			div *= 10
			i++
		}
		whole += frac / div
	}
	value := sign * whole
	if i < len(raw) && (raw[i] == 'e' || raw[i] == 'E') {
		i++
		expSign := 1
		if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
			if raw[i] == '-' {
				expSign = -1
			}
			i++
		}
		exp := 0
		for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
			exp = exp*10 + int(raw[i]-'0')
			i++
		}
		for ; exp > 0; exp-- {
			if expSign > 0 {
				value *= 10
			} else {
				value /= 10
			}
		}
	}
	return value
}
