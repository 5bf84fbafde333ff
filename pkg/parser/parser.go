package parser

import (
	"strconv"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/symtab"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/typeChecker"
	"github.com/xplshn/mcc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
	tc       *typeChecker.TypeChecker
	syms     *symtab.Table
	// initializing is the variable whose initializer is being parsed
	initializing *ast.LocalVar
}

// NewParser creates and initializes a new Parser from a token stream
// terminated by an EOF token
func NewParser(tokens []token.Token, cfg *config.Config) *Parser {
	p := &Parser{
		tokens: tokens,
		cfg:    cfg,
		tc:     typeChecker.NewTypeChecker(cfg),
		syms:   symtab.New(),
	}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse consumes the whole token stream. The first error stops parsing and
// no program is returned.
func (p *Parser) Parse() (prog *ast.Program, err error) {
	defer util.Bailout(&err)
	var funcs []*ast.Function
	for !p.check(token.EOF) {
		funcs = append(funcs, p.parseFuncDef())
	}
	return &ast.Program{Funcs: funcs}, nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	syntaxError(p.current, "%s", message)
}

func syntaxError(tok token.Token, format string, args ...interface{}) {
	panic(util.Errorf(util.SyntaxError, tok, format, args...))
}

func (p *Parser) must(err error) {
	if err != nil {
		panic(err)
	}
}

func (p *Parser) mustNode(n *ast.Node, err error) *ast.Node {
	p.must(err)
	return n
}

// Declarations

func (p *Parser) parseFuncDef() *ast.Function {
	p.expect(token.Int, "expected a type specifier 'int'")
	retType := p.parsePointers(ast.TypeInt)
	nameTok := p.current
	p.expect(token.Ident, "expected a function name")

	fn := &ast.Function{Name: nameTok.Value, Tok: nameTok, ReturnType: retType}
	p.syms.PushFunction(fn)
	defer p.syms.PopFunction()

	p.expect(token.LParen, "expected '(' after function name")
	if !p.check(token.RParen) {
		for {
			p.expect(token.Int, "expected a type specifier 'int'")
			typ, tok := p.parseDeclarator(ast.TypeInt)
			if len(fn.Params) == p.cfg.MaxArgs {
				syntaxError(tok, "too many parameters, at most %d are supported", p.cfg.MaxArgs)
			}
			if _, hidden := p.syms.DeclareParam(tok.Value, typ.Decay(), tok); hidden != nil {
				syntaxError(tok, "redefinition of parameter '%s'", tok.Value)
			}
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")

	implicit := p.syms.LookupFunc(fn.Name)
	if prev := p.syms.DefineFunc(fn.Signature()); prev != nil {
		syntaxError(nameTok, "redefinition of function '%s'", fn.Name)
	}
	if implicit != nil {
		for _, call := range implicit.Calls {
			if call.Args != len(fn.Params) {
				syntaxError(call.Tok, "wrong number of arguments to '%s': expected %d, got %d", fn.Name, len(fn.Params), call.Args)
			}
		}
	}

	bodyTok := p.current
	p.expect(token.LBrace, "expected '{' before function body")
	fn.Body = p.parseCompoundStmt(bodyTok)
	return fn
}

// parsePointers consumes a run of '*' and wraps base once per star
func (p *Parser) parsePointers(base *ast.Type) *ast.Type {
	for p.match(token.Star) {
		base = ast.PointerTo(base)
	}
	return base
}

// parseDeclarator parses '*'* identifier ('[' number ']')? and returns the
// declared type and the identifier token.
func (p *Parser) parseDeclarator(base *ast.Type) (*ast.Type, token.Token) {
	typ := p.parsePointers(base)
	nameTok := p.current
	p.expect(token.Ident, "expected a variable name")
	if p.match(token.LBracket) {
		typ = ast.ArrayOf(typ, p.parseArrayLength())
		p.expect(token.RBracket, "expected ']' after array length")
	}
	return typ, nameTok
}

func (p *Parser) parseArrayLength() int {
	tok := p.current
	p.expect(token.Number, "expected an array length")
	n, err := strconv.Atoi(tok.Value)
	if err != nil || n <= 0 {
		syntaxError(tok, "invalid array length '%s'", tok.Value)
	}
	return n
}

// parseDeclaration parses 'int' declarator ('=' expr)? (',' ...)* ';'.
// Initializers become assignments; a declaration without any is an empty
// block.
func (p *Parser) parseDeclaration() *ast.Node {
	tok := p.current
	p.expect(token.Int, "expected a type specifier 'int'")

	var stmts []*ast.Node
	for {
		typ, nameTok := p.parseDeclarator(ast.TypeInt)
		v, hidden := p.syms.Declare(nameTok.Value, typ, nameTok)
		if hidden != nil {
			util.Warn(p.cfg, config.WarnShadow, nameTok, "declaration of '%s' shadows a previous declaration at line %d", v.Name, hidden.Tok.Line)
		}

		if eqTok := p.current; p.match(token.Eq) {
			p.initializing = v
			rhs := p.parseAssignmentExpr()
			p.initializing = nil
			assign := ast.NewAssign(eqTok, ast.NewVar(nameTok, v), rhs)
			stmts = append(stmts, ast.NewExprStmt(nameTok, assign))
		}

		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Semi, "expected ';' after declaration")
	return ast.NewBlock(tok, stmts)
}

// Statements

// parseCompoundStmt parses the inside of a block whose '{' was already
// consumed. Each item is annotated as soon as it is parsed.
func (p *Parser) parseCompoundStmt(tok token.Token) *ast.Node {
	var stmts []*ast.Node
	returned, warned := false, false
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		var stmt *ast.Node
		if p.check(token.Int) {
			stmt = p.parseDeclaration()
		} else {
			stmt = p.parseStmt()
			if returned && !warned {
				util.Warn(p.cfg, config.WarnUnreachableCode, stmt.Tok, "unreachable code after 'return'")
				warned = true
			}
			returned = returned || stmt.Type == ast.Return
		}
		p.must(p.tc.Annotate(stmt))
		stmts = append(stmts, stmt)
	}
	p.expect(token.RBrace, "expected '}'")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Return):
		expr := p.parseExpr()
		p.expect(token.Semi, "expected ';' after return value")
		return ast.NewReturn(tok, expr)

	case p.match(token.If):
		p.expect(token.LParen, "expected '(' after 'if'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after if condition")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)

	case p.match(token.While):
		p.expect(token.LParen, "expected '(' after 'while'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after while condition")
		return ast.NewWhile(tok, cond, p.parseStmt())

	case p.match(token.For):
		p.expect(token.LParen, "expected '(' after 'for'")
		var init, cond, inc *ast.Node
		if !p.check(token.Semi) {
			init = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after for initializer")
		if !p.check(token.Semi) {
			cond = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after for condition")
		if !p.check(token.RParen) {
			inc = p.parseExpr()
		}
		p.expect(token.RParen, "expected ')' after for clauses")
		return ast.NewFor(tok, init, cond, inc, p.parseStmt())

	case p.match(token.LBrace):
		return p.parseCompoundStmt(tok)

	case p.match(token.Semi):
		return ast.NewBlock(tok, nil)
	}

	expr := p.parseExpr()
	p.expect(token.Semi, "expected ';' after expression")
	return ast.NewExprStmt(tok, expr)
}

// Expressions, lowest precedence first

func (p *Parser) parseExpr() *ast.Node {
	return p.parseAssignmentExpr()
}

func (p *Parser) parseAssignmentExpr() *ast.Node {
	lhs := p.parseEqualityExpr()
	if tok := p.current; p.match(token.Eq) {
		return ast.NewAssign(tok, lhs, p.parseAssignmentExpr())
	}
	return lhs
}

func (p *Parser) parseEqualityExpr() *ast.Node {
	node := p.parseRelationalExpr()
	for {
		tok := p.current
		if !p.match(token.EqEq) && !p.match(token.Neq) {
			return node
		}
		node = ast.NewBinaryOp(tok, tok.Type, node, p.parseRelationalExpr())
	}
}

// parseRelationalExpr only ever builds '<' and '<='; 'a > b' becomes
// 'b < a' and 'a >= b' becomes 'b <= a'.
func (p *Parser) parseRelationalExpr() *ast.Node {
	node := p.parseAdditiveExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.Lt):
			node = ast.NewBinaryOp(tok, token.Lt, node, p.parseAdditiveExpr())
		case p.match(token.Lte):
			node = ast.NewBinaryOp(tok, token.Lte, node, p.parseAdditiveExpr())
		case p.match(token.Gt):
			node = ast.NewBinaryOp(tok, token.Lt, p.parseAdditiveExpr(), node)
		case p.match(token.Gte):
			node = ast.NewBinaryOp(tok, token.Lte, p.parseAdditiveExpr(), node)
		default:
			return node
		}
	}
}

func (p *Parser) parseAdditiveExpr() *ast.Node {
	node := p.parseMultiplicativeExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.Plus):
			node = p.mustNode(p.tc.NewAdd(tok, node, p.parseMultiplicativeExpr()))
		case p.match(token.Minus):
			node = p.mustNode(p.tc.NewSub(tok, node, p.parseMultiplicativeExpr()))
		default:
			return node
		}
	}
}

func (p *Parser) parseMultiplicativeExpr() *ast.Node {
	node := p.parseUnaryExpr()
	for {
		tok := p.current
		if !p.match(token.Star) && !p.match(token.Slash) && !p.match(token.Rem) {
			return node
		}
		node = ast.NewBinaryOp(tok, tok.Type, node, p.parseUnaryExpr())
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Plus):
		return p.parseUnaryExpr()
	case p.match(token.Minus):
		zero := ast.NewNumber(tok, 0)
		return p.mustNode(p.tc.NewSub(tok, zero, p.parseUnaryExpr()))
	case p.match(token.Star):
		return ast.NewIndirection(tok, p.parseUnaryExpr())
	case p.match(token.And):
		return ast.NewAddressOf(tok, p.parseUnaryExpr())
	case p.match(token.Sizeof):
		return p.parseSizeof(tok)
	}
	return p.parsePrimaryExpr()
}

// parseSizeof folds 'sizeof' into a literal. With the sizeof-type feature a
// parenthesised type name is accepted as well as an expression.
func (p *Parser) parseSizeof(tok token.Token) *ast.Node {
	if p.cfg.IsFeatureEnabled(config.FeatSizeofType) && p.check(token.LParen) && p.peek().Type == token.Int {
		p.advance()
		p.advance()
		typ := p.parsePointers(ast.TypeInt)
		if p.match(token.LBracket) {
			typ = ast.ArrayOf(typ, p.parseArrayLength())
			p.expect(token.RBracket, "expected ']' after array length")
		}
		p.expect(token.RParen, "expected ')' after type name")
		return typeChecker.SizeofType(tok, typ)
	}
	return p.mustNode(p.tc.Sizeof(tok, p.parseUnaryExpr()))
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')'")
		return expr

	case p.match(token.Number):
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			syntaxError(tok, "integer literal '%s' is out of range", tok.Value)
		}
		return ast.NewNumber(tok, val)

	case p.match(token.Ident):
		if p.check(token.LParen) {
			return p.parseFuncCall(tok)
		}
		v := p.syms.Lookup(tok.Value)
		if v == nil {
			syntaxError(tok, "undeclared variable '%s'", tok.Value)
		}
		if v == p.initializing {
			if !p.cfg.IsFeatureEnabled(config.FeatSelfInit) {
				syntaxError(tok, "'%s' is used in its own initializer", v.Name)
			}
			util.Warn(p.cfg, config.WarnSelfInit, tok, "'%s' is used in its own initializer", v.Name)
		}
		return ast.NewVar(tok, v)
	}
	syntaxError(tok, "expected an expression")
	return nil
}

func (p *Parser) parseFuncCall(nameTok token.Token) *ast.Node {
	p.expect(token.LParen, "expected '('")
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseAssignmentExpr())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after function arguments")

	name := nameTok.Value
	if len(args) > p.cfg.MaxArgs {
		syntaxError(nameTok, "too many arguments to '%s', at most %d are supported", name, p.cfg.MaxArgs)
	}

	sig := p.syms.LookupFunc(name)
	if sig == nil {
		util.Warn(p.cfg, config.WarnImplicitDecl, nameTok, "implicit declaration of function '%s'", name)
		sig = p.syms.Implicit(name, nameTok)
	}
	if sig.Implicit {
		sig.Calls = append(sig.Calls, ast.CallSite{Tok: nameTok, Args: len(args)})
	} else if len(args) != len(sig.Params) {
		syntaxError(nameTok, "wrong number of arguments to '%s': expected %d, got %d", name, len(sig.Params), len(args))
	}
	return ast.NewFuncCall(nameTok, name, args, sig.ReturnType)
}
