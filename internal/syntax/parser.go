package syntax

import "fmt"

// Parser is a hand-written recursive-descent parser over a pre-tokenized
// buffer. Backtracking (used to disambiguate a grouping expression from a
// lambda parameter list) is implemented with plain index save/restore
// rather than an event-list marker, since the whole token buffer already
// lives in memory.
type Parser struct {
	toks []Token
	pos  int
	errs []string
}

// NewParser tokenizes src and prepares a Parser over it.
func NewParser(src string) *Parser {
	return &Parser{toks: NewLexer(src).Tokenize()}
}

// Errors returns the syntax errors accumulated during parsing. The core
// compiler treats these as out of scope (§7 class 1); they exist here only
// because this package also stands in for the external parser.
func (p *Parser) Errors() []string { return p.errs }

func (p *Parser) cur() Token       { return p.toks[p.pos] }
func (p *Parser) at(off int) Token {
	i := p.pos + off
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(tt TokenType) bool { return p.cur().Type == tt }

func (p *Parser) accept(tt TokenType) (Token, bool) {
	if p.check(tt) {
		return p.advance(), true
	}
	return Token{}, false
}

func (p *Parser) expect(tt TokenType) Token {
	if t, ok := p.accept(tt); ok {
		return t
	}
	t := p.cur()
	p.errs = append(p.errs, fmt.Sprintf("%d:%d: expected %s, found %s", t.Range.Start.Line, t.Range.Start.Column, tt, t.Type))
	return t
}

func (p *Parser) mark() int      { return p.pos }
func (p *Parser) reset(m int)    { p.pos = m }

func rangeOf(a, b Token) Range { return Range{a.Range.Start, b.Range.End} }

// ParseFile parses an entire source file into a list of top-level defines.
// Parsing never aborts: a token that cannot start a definition is reported
// and skipped one at a time, and a definition missing its binding operator
// is kept with a Missing value, matching lowering's own "always produce
// something" discipline.
func (p *Parser) ParseFile() *File {
	f := &File{}
	for !p.check(EOF) {
		start := p.pos
		d := p.parseDefine(true)
		if p.pos == start {
			p.advance()
			continue
		}
		if d != nil {
			f.Defs = append(f.Defs, d)
		}
		p.accept(SEMI)
	}
	return f
}

// parseDefine parses `name :: expr`, `name : T : expr`, `name := expr`, or
// `name : T = expr`. atRoot is not consulted; both mutable and immutable
// forms are always accepted syntactically (the indexer is responsible for
// NonBindingAtRoot, §4.2).
func (p *Parser) parseDefine(atRoot bool) *Define {
	nameTok := p.expect(IDENT)
	def := &Define{Name: nameTok.Text, NameRange: nameTok.Range}

	switch {
	case p.check(DCOLON):
		p.advance()
		def.Mutable = false
		def.Value = p.parseExpr()
	case p.check(WALRUS):
		p.advance()
		def.Mutable = true
		def.Value = p.parseExpr()
	case p.check(COLON):
		p.advance()
		def.Type = p.parseTypeExpr()
		if p.check(COLON) {
			p.advance()
			def.Mutable = false
		} else {
			p.expect(ASSIGN)
			def.Mutable = true
		}
		def.Value = p.parseExpr()
	default:
		p.errs = append(p.errs, fmt.Sprintf("%d:%d: expected binding operator after %q", nameTok.Range.Start.Line, nameTok.Range.Start.Column, nameTok.Text))
		def.Value = &Missing{baseExpr{nameTok.Range}}
	}
	end := p.at(-1)
	def.Range = rangeOf(nameTok, end)
	return def
}

// looksLikeDefine reports whether the tokens at the current position begin
// a Define (`IDENT (:: | := | : ... (= | :))`), without consuming anything.
func (p *Parser) looksLikeDefine() bool {
	if !p.check(IDENT) {
		return false
	}
	switch p.at(1).Type {
	case DCOLON, WALRUS:
		return true
	case COLON:
		// name : <type> (= | :) -- scan forward past a type expression for
		// the defining operator. Type expressions never contain unparenthesized
		// `=`/`::`/`:=` at top level, so a shallow bracket/paren-aware scan
		// suffices.
		depth := 0
		for i := 2; ; i++ {
			t := p.at(i)
			switch t.Type {
			case LPAREN, LBRACKET, LBRACE:
				depth++
			case RPAREN, RBRACKET, RBRACE:
				if depth == 0 {
					return false
				}
				depth--
			case ASSIGN, DCOLON:
				if depth == 0 {
					return true
				}
			case COLON:
				if depth == 0 {
					return true
				}
			case SEMI, EOF:
				if depth == 0 {
					return false
				}
			}
			if i > 200 {
				return false
			}
		}
	}
	return false
}

// parseBlock parses `{ stmt* tail? }`.
func (p *Parser) parseBlock() Expr {
	open := p.expect(LBRACE)
	b := &Block{}
	for !p.check(RBRACE) && !p.check(EOF) {
		if p.looksLikeDefine() {
			def := p.parseDefine(false)
			p.accept(SEMI)
			b.Stmts = append(b.Stmts, LocalDefStmt{Def: def, Range: def.Range})
			continue
		}

		e := p.parseExpr()

		if p.check(ASSIGN) {
			p.advance()
			val := p.parseExpr()
			p.accept(SEMI)
			b.Stmts = append(b.Stmts, AssignStmt{Source: e, Value: val, Range: rangeOf(p.toks[0], p.at(-1))})
			continue
		}

		if _, ok := p.accept(SEMI); ok {
			b.Stmts = append(b.Stmts, ExprStmt{Expr: e, Range: e.Span()})
			continue
		}
		if p.check(RBRACE) {
			b.Tail = e
			break
		}
		if IsBlockLike(e) {
			b.Stmts = append(b.Stmts, ExprStmt{Expr: e, Range: e.Span()})
			continue
		}
		// Best-effort recovery: treat as a statement anyway.
		b.Stmts = append(b.Stmts, ExprStmt{Expr: e, Range: e.Span()})
	}
	closeTok := p.expect(RBRACE)
	b.baseExpr = baseExpr{rangeOf(open, closeTok)}
	return b
}

// parseExpr parses a full expression, including logical-or at the loosest
// precedence.
func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	lhs := p.parseAnd()
	for p.check(OROR) {
		op := p.advance()
		rhs := p.parseAnd()
		lhs = &Binary{baseExpr{rangeOf(firstTok(lhs), lastTokFrom(rhs))}, lhs, rhs, op.Text}
	}
	return lhs
}

func (p *Parser) parseAnd() Expr {
	lhs := p.parseCmp()
	for p.check(ANDAND) {
		op := p.advance()
		rhs := p.parseCmp()
		lhs = &Binary{baseExpr{rangeOf(firstTok(lhs), lastTokFrom(rhs))}, lhs, rhs, op.Text}
	}
	return lhs
}

func (p *Parser) parseCmp() Expr {
	lhs := p.parseAdd()
	for p.check(EQEQ) || p.check(NEQ) || p.check(LT) || p.check(GT) || p.check(LE) || p.check(GE) {
		op := p.advance()
		rhs := p.parseAdd()
		lhs = &Binary{baseExpr{Range{lhs.Span().Start, rhs.Span().End}}, lhs, rhs, op.Text}
	}
	return lhs
}

func (p *Parser) parseAdd() Expr {
	lhs := p.parseMul()
	for p.check(PLUS) || p.check(MINUS) {
		op := p.advance()
		rhs := p.parseMul()
		lhs = &Binary{baseExpr{Range{lhs.Span().Start, rhs.Span().End}}, lhs, rhs, op.Text}
	}
	return lhs
}

func (p *Parser) parseMul() Expr {
	lhs := p.parseUnary()
	for p.check(STAR) || p.check(SLASH) || p.check(PERCENT) {
		op := p.advance()
		rhs := p.parseUnary()
		lhs = &Binary{baseExpr{Range{lhs.Span().Start, rhs.Span().End}}, lhs, rhs, op.Text}
	}
	return lhs
}

func (p *Parser) parseUnary() Expr {
	switch p.cur().Type {
	case MINUS, PLUS, BANG:
		op := p.advance()
		operand := p.parseUnary()
		return &Unary{baseExpr{Range{op.Range.Start, operand.Span().End}}, operand, op.Text}
	case CARET:
		op := p.advance()
		mutable := false
		if p.check(KW_MUT) {
			p.advance()
			mutable = true
		}
		operand := p.parseUnary()
		return &Ref{baseExpr{Range{op.Range.Start, operand.Span().End}}, mutable, operand}
	}
	return p.parseCastPostfix()
}

// parseCastPostfix parses postfix operators (call, index, field access,
// trailing deref `^`) and `as` casts, all at the same binding strength,
// left to right.
func (p *Parser) parseCastPostfix() Expr {
	e := p.parsePrimary()
	for {
		switch p.cur().Type {
		case DOT:
			p.advance()
			field := p.expect(IDENT)
			e = &Path{baseExpr{Range{e.Span().Start, field.Range.End}}, e, field.Text, field.Range}
		case LPAREN:
			p.advance()
			var args []Expr
			for !p.check(RPAREN) && !p.check(EOF) {
				args = append(args, p.parseExpr())
				if !p.check(RPAREN) {
					p.expect(COMMA)
				}
			}
			close := p.expect(RPAREN)
			e = &Call{baseExpr{Range{e.Span().Start, close.Range.End}}, e, args}
		case LBRACKET:
			p.advance()
			idx := p.parseExpr()
			close := p.expect(RBRACKET)
			e = &Index{baseExpr{Range{e.Span().Start, close.Range.End}}, e, idx}
		case CARET:
			tok := p.advance()
			e = &Deref{baseExpr{Range{e.Span().Start, tok.Range.End}}, e}
		case KW_AS:
			p.advance()
			ty := p.parseTypeExpr()
			e = &Cast{baseExpr{Range{e.Span().Start, ty.Span().End}}, e, ty}
		case LBRACE:
			// `Ident { field: val, ... }` struct literal; only applies when e
			// is a plausible type expression (Ident or Path) and we are not
			// inside an if/while condition, where `{` instead opens the
			// body.
			if noStructLit || !isTypeLike(e) {
				return e
			}
			lit := p.parseStructLiteralBody(e)
			e = lit
		default:
			return e
		}
	}
}

func isTypeLike(e Expr) bool {
	switch e.(type) {
	case *Ident, *Path:
		return true
	}
	return false
}

func (p *Parser) parseStructLiteralBody(ty Expr) Expr {
	p.expect(LBRACE)
	var fields []FieldInit
	for !p.check(RBRACE) && !p.check(EOF) {
		nameTok := p.expect(IDENT)
		p.expect(COLON)
		val := p.parseExpr()
		fields = append(fields, FieldInit{Name: nameTok.Text, Value: val, Range: rangeOf(nameTok, p.at(-1))})
		if !p.check(RBRACE) {
			p.expect(COMMA)
		}
	}
	close := p.expect(RBRACE)
	return &StructLit{baseExpr{Range{ty.Span().Start, close.Range.End}}, ty, fields}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur()
	switch tok.Type {
	case INT:
		p.advance()
		return &IntLit{baseExpr{tok.Range}, tok.Text}
	case FLOAT:
		p.advance()
		return &FloatLit{baseExpr{tok.Range}, tok.Text}
	case STRING:
		p.advance()
		return &StringLit{baseExpr{tok.Range}, tok.Text}
	case CHAR:
		p.advance()
		return &CharLit{baseExpr{tok.Range}, tok.Text}
	case KW_TRUE:
		p.advance()
		return &BoolLit{baseExpr{tok.Range}, true}
	case KW_FALSE:
		p.advance()
		return &BoolLit{baseExpr{tok.Range}, false}
	case IDENT:
		p.advance()
		return &Ident{baseExpr{tok.Range}, tok.Text}
	case LBRACE:
		return p.parseBlock()
	case KW_IF:
		return p.parseIf()
	case KW_WHILE:
		return p.parseWhile()
	case KW_LOOP:
		return p.parseLoop()
	case KW_BREAK:
		p.advance()
		var val Expr
		if !p.atStmtBoundary() {
			val = p.parseExpr()
		}
		end := tok
		if val != nil {
			end = lastTokFrom(val)
		}
		return &Break{baseExpr{Range{tok.Range.Start, end.Range.End}}, val}
	case KW_CONTINUE:
		p.advance()
		return &Continue{baseExpr{tok.Range}}
	case KW_RETURN:
		p.advance()
		var val Expr
		if !p.atStmtBoundary() {
			val = p.parseExpr()
		}
		end := tok
		if val != nil {
			end = lastTokFrom(val)
		}
		return &Return{baseExpr{Range{tok.Range.Start, end.Range.End}}, val}
	case CARET:
		return p.parseUnary()
	case KW_DISTINCT:
		p.advance()
		inner := p.parseTypeExpr()
		return &Distinct{baseExpr{Range{tok.Range.Start, inner.Span().End}}, inner}
	case KW_STRUCT:
		return p.parseStructDecl()
	case KW_COMPTIME:
		p.advance()
		body := p.parseBlock()
		return &Comptime{baseExpr{Range{tok.Range.Start, body.Span().End}}, body}
	case KW_IMPORT:
		p.advance()
		strTok := p.expect(STRING)
		return &Import{baseExpr{Range{tok.Range.Start, strTok.Range.End}}, strTok.Text}
	case LBRACKET:
		return p.parseArrayTypeOrLiteral()
	case LPAREN:
		return p.parseParenOrLambda()
	}
	p.errs = append(p.errs, fmt.Sprintf("%d:%d: unexpected token %s", tok.Range.Start.Line, tok.Range.Start.Column, tok.Type))
	p.advance()
	return &Missing{baseExpr{tok.Range}}
}

func (p *Parser) atStmtBoundary() bool {
	switch p.cur().Type {
	case SEMI, RBRACE, EOF:
		return true
	}
	return false
}

func (p *Parser) parseIf() Expr {
	start := p.expect(KW_IF)
	cond := p.parseExprNoStructLit()
	body := p.parseBlock()
	var elseBranch Expr
	if p.check(KW_ELSE) {
		p.advance()
		if p.check(KW_IF) {
			elseBranch = p.parseIf()
		} else {
			elseBranch = p.parseBlock()
		}
	}
	end := lastTokFrom(body)
	if elseBranch != nil {
		end = lastTokFrom(elseBranch)
	}
	return &If{baseExpr{Range{start.Range.Start, end.Range.End}}, cond, body, elseBranch}
}

func (p *Parser) parseWhile() Expr {
	start := p.expect(KW_WHILE)
	cond := p.parseExprNoStructLit()
	body := p.parseBlock()
	return &While{baseExpr{Range{start.Range.Start, lastTokFrom(body).Range.End}}, cond, body}
}

func (p *Parser) parseLoop() Expr {
	start := p.expect(KW_LOOP)
	body := p.parseBlock()
	return &While{baseExpr{Range{start.Range.Start, lastTokFrom(body).Range.End}}, nil, body}
}

// parseExprNoStructLit parses an expression but refuses to interpret a
// following `{` as a struct-literal body, since if/while conditions are
// immediately followed by their brace-delimited body.
func (p *Parser) parseExprNoStructLit() Expr {
	noStructLit = true
	defer func() { noStructLit = false }()
	return p.parseExpr()
}

// noStructLit is a small parse-mode flag. A field would be more local, but
// the condition-vs-body ambiguity is confined to two call sites so a single
// package-level toggle (scoped by the defer above) keeps the common path
// free of an extra parameter thread.
var noStructLit bool

func (p *Parser) parseStructDecl() Expr {
	start := p.expect(KW_STRUCT)
	p.expect(LBRACE)
	var fields []Field
	for !p.check(RBRACE) && !p.check(EOF) {
		nameTok := p.expect(IDENT)
		p.expect(COLON)
		ty := p.parseTypeExpr()
		fields = append(fields, Field{Name: nameTok.Text, Type: ty, Range: rangeOf(nameTok, p.at(-1))})
		if !p.check(RBRACE) {
			p.expect(COMMA)
		}
	}
	close := p.expect(RBRACE)
	return &StructDecl{baseExpr{Range{start.Range.Start, close.Range.End}}, fields}
}

func (p *Parser) parseArrayTypeOrLiteral() Expr {
	open := p.expect(LBRACKET)
	var size Expr
	if !p.check(RBRACKET) {
		size = p.parseExpr()
	}
	close := p.expect(RBRACKET)
	elem := p.parseTypeExpr()
	end := lastTokFrom(elem)
	arr := &ArrayLit{baseExpr: baseExpr{Range{open.Range.Start, end.Range.End}}, Size: size, Elem: elem}
	if p.check(LBRACE) {
		p.advance()
		arr.HasItems = true
		for !p.check(RBRACE) && !p.check(EOF) {
			arr.Items = append(arr.Items, p.parseExpr())
			if !p.check(RBRACE) {
				p.expect(COMMA)
			}
		}
		closeB := p.expect(RBRACE)
		arr.baseExpr = baseExpr{Range{open.Range.Start, closeB.Range.End}}
	}
	_ = close
	return arr
}

// parseParenOrLambda disambiguates `(expr)` grouping from `(params) -> T {
// body }` / `(params) extern` by tentatively parsing a parameter list and
// checking what follows; on mismatch it backtracks and parses a plain
// grouped expression instead.
func (p *Parser) parseParenOrLambda() Expr {
	start := p.mark()
	open := p.expect(LPAREN)

	if params, ok := p.tryParseParamList(); ok {
		switch {
		case p.check(ARROW):
			p.advance()
			ret := p.parseTypeExpr()
			body := p.parseBlock()
			return &Lambda{baseExpr{Range{open.Range.Start, lastTokFrom(body).Range.End}}, params, ret, body, false}
		case p.check(LBRACE):
			body := p.parseBlock()
			return &Lambda{baseExpr{Range{open.Range.Start, lastTokFrom(body).Range.End}}, params, nil, body, false}
		case p.check(KW_EXTERN):
			ext := p.advance()
			return &Lambda{baseExpr{Range{open.Range.Start, ext.Range.End}}, params, nil, nil, true}
		}
	}

	p.reset(start)
	p.expect(LPAREN)
	inner := p.parseExpr()
	close := p.expect(RPAREN)
	_ = close
	return inner
}

// tryParseParamList attempts to parse `IDENT : Type (, IDENT : Type)* )`;
// every parameter needs both its name and its type. It consumes the closing RPAREN on success; on failure the caller must
// reset the parser position itself (tryParseParamList does not roll back).
func (p *Parser) tryParseParamList() (params []Param, ok bool) {
	savedErrs := len(p.errs)
	defer func() {
		if !ok {
			p.errs = p.errs[:savedErrs]
		}
	}()

	if p.check(RPAREN) {
		p.advance()
		return nil, true
	}
	for {
		if !p.check(IDENT) {
			return nil, false
		}
		nameTok := p.advance()
		var ty Expr
		if p.check(COLON) {
			p.advance()
			ty = p.parseTypeExpr()
		} else {
			return nil, false
		}
		params = append(params, Param{Name: nameTok.Text, Type: ty, Range: rangeOf(nameTok, p.at(-1))})
		if p.check(COMMA) {
			p.advance()
			continue
		}
		break
	}
	if !p.check(RPAREN) {
		return nil, false
	}
	p.advance()
	return params, true
}

// parseTypeExpr parses an expression in type position. Grammatically types
// and values share the same expression grammar (paths and struct literals
// are ambiguous until inference); the only type-specific production is the
// array-type form `[N] T`, already handled by parseArrayTypeOrLiteral via
// parsePrimary.
func (p *Parser) parseTypeExpr() Expr {
	saved := noStructLit
	noStructLit = true
	defer func() { noStructLit = saved }()
	return p.parseCastPostfix()
}

func firstTok(e Expr) Token {
	return Token{Range: Range{e.Span().Start, e.Span().Start}}
}

func lastTokFrom(e Expr) Token {
	return Token{Range: Range{e.Span().End, e.Span().End}}
}
