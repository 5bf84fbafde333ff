// Package typeChecker attaches a type to every expression node and rewrites
// pointer arithmetic into byte-scaled integer arithmetic.
package typeChecker

import (
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/util"
)

type TypeChecker struct {
	cfg *config.Config
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	return &TypeChecker{cfg: cfg}
}

func typeError(tok token.Token, format string, args ...interface{}) {
	panic(util.Errorf(util.TypeError, tok, format, args...))
}

// Check annotates the body of every function in prog. Running it on an
// already annotated program changes nothing.
func (tc *TypeChecker) Check(prog *ast.Program) (err error) {
	defer util.Bailout(&err)
	for _, fn := range prog.Funcs {
		tc.annotate(fn.Body)
	}
	return nil
}

// Annotate resolves the type of node and everything below it. Nodes that
// already carry a type are left alone.
func (tc *TypeChecker) Annotate(node *ast.Node) (err error) {
	defer util.Bailout(&err)
	tc.annotate(node)
	return nil
}

// NewAdd builds left + right, scaling the integer operand when the other
// one is a pointer or an array.
func (tc *TypeChecker) NewAdd(tok token.Token, left, right *ast.Node) (n *ast.Node, err error) {
	defer util.Bailout(&err)
	return tc.newAdd(tok, left, right), nil
}

// NewSub builds left - right. The difference of two pointers is their
// distance in elements.
func (tc *TypeChecker) NewSub(tok token.Token, left, right *ast.Node) (n *ast.Node, err error) {
	defer util.Bailout(&err)
	return tc.newSub(tok, left, right), nil
}

// Sizeof folds sizeof(operand) into an integer literal.
func (tc *TypeChecker) Sizeof(tok token.Token, operand *ast.Node) (n *ast.Node, err error) {
	defer util.Bailout(&err)
	tc.annotate(operand)
	return SizeofType(tok, operand.Typ), nil
}

func SizeofType(tok token.Token, typ *ast.Type) *ast.Node {
	return typed(ast.NewNumber(tok, int64(typ.Size())), ast.TypeInt)
}

func typed(n *ast.Node, t *ast.Type) *ast.Node {
	n.Typ = t
	return n
}

func (tc *TypeChecker) annotate(node *ast.Node) {
	if node == nil || node.Typ != nil {
		return
	}

	switch d := node.Data.(type) {
	case ast.NumberNode:
		node.Typ = ast.TypeInt
	case ast.VarNode:
		node.Typ = d.Var.Type
	case ast.AddressOfNode:
		tc.annotate(d.LValue)
		if d.LValue.Type != ast.Var && d.LValue.Type != ast.Indirection {
			typeError(d.LValue.Tok, "cannot take the address of an rvalue")
		}
		if d.LValue.Typ.Kind == ast.TYPE_ARRAY {
			node.Typ = ast.PointerTo(d.LValue.Typ.Base)
		} else {
			node.Typ = ast.PointerTo(d.LValue.Typ)
		}
	case ast.IndirectionNode:
		tc.annotate(d.Expr)
		if !d.Expr.Typ.HasBase() {
			typeError(node.Tok, "invalid pointer dereference of type '%s'", d.Expr.Typ)
		}
		node.Typ = d.Expr.Typ.Base
	case ast.BinaryOpNode:
		tc.annotateBinary(node, d)
	case ast.AssignNode:
		tc.annotate(d.Lhs)
		tc.annotate(d.Rhs)
		if (d.Lhs.Type != ast.Var && d.Lhs.Type != ast.Indirection) || d.Lhs.Typ.Kind == ast.TYPE_ARRAY {
			typeError(d.Lhs.Tok, "not an lvalue")
		}
		if d.Lhs.Typ.IsInt() != d.Rhs.Typ.Decay().IsInt() {
			util.Warn(tc.cfg, config.WarnExtra, node.Tok, "assigning to '%s' from '%s'", d.Lhs.Typ, d.Rhs.Typ)
		}
		node.Typ = d.Lhs.Typ
	case ast.FuncCallNode:
		for _, arg := range d.Args {
			tc.annotate(arg)
		}
		node.Typ = d.ReturnType
		if node.Typ == nil {
			node.Typ = ast.TypeInt
		}

	case ast.ExprStmtNode:
		tc.annotate(d.Expr)
	case ast.BlockNode:
		for _, stmt := range d.Stmts {
			tc.annotate(stmt)
		}
	case ast.IfNode:
		tc.annotate(d.Cond)
		tc.annotate(d.ThenBody)
		tc.annotate(d.ElseBody)
	case ast.WhileNode:
		tc.annotate(d.Cond)
		tc.annotate(d.Body)
	case ast.ForNode:
		tc.annotate(d.Init)
		tc.annotate(d.Cond)
		tc.annotate(d.Inc)
		tc.annotate(d.Body)
	case ast.ReturnNode:
		tc.annotate(d.Expr)
	}
}

func (tc *TypeChecker) annotateBinary(node *ast.Node, d ast.BinaryOpNode) {
	switch d.Op {
	case token.Plus:
		*node = *tc.newAdd(node.Tok, d.Left, d.Right)
		return
	case token.Minus:
		*node = *tc.newSub(node.Tok, d.Left, d.Right)
		return
	}

	tc.annotate(d.Left)
	tc.annotate(d.Right)
	switch d.Op {
	case token.Star, token.Slash, token.Rem:
		if !d.Left.Typ.IsInt() || !d.Right.Typ.IsInt() {
			invalidOperands(node.Tok, d.Left, d.Right)
		}
	case token.EqEq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		if d.Left.Typ.IsInt() != d.Right.Typ.IsInt() {
			util.Warn(tc.cfg, config.WarnExtra, node.Tok, "comparison between '%s' and '%s'", d.Left.Typ, d.Right.Typ)
		}
	}
	node.Typ = ast.TypeInt
}

func invalidOperands(tok token.Token, left, right *ast.Node) {
	typeError(tok, "invalid operands to binary %s ('%s' and '%s')", token.TypeStrings[tok.Type], left.Typ, right.Typ)
}

// scaled multiplies an integer expression by the size of elem
func scaled(tok token.Token, n *ast.Node, elem *ast.Type) *ast.Node {
	size := typed(ast.NewNumber(tok, int64(elem.Size())), ast.TypeInt)
	return typed(ast.NewBinaryOp(tok, token.Star, n, size), ast.TypeInt)
}

func (tc *TypeChecker) newAdd(tok token.Token, left, right *ast.Node) *ast.Node {
	tc.annotate(left)
	tc.annotate(right)

	if left.Typ.IsInt() && right.Typ.IsInt() {
		return typed(ast.NewBinaryOp(tok, token.Plus, left, right), ast.TypeInt)
	}
	if left.Typ.HasBase() && right.Typ.HasBase() {
		invalidOperands(tok, left, right)
	}
	// int + ptr is the same as ptr + int
	if left.Typ.IsInt() {
		left, right = right, left
	}
	return typed(ast.NewBinaryOp(tok, token.Plus, left, scaled(tok, right, left.Typ.Base)), left.Typ.Decay())
}

func (tc *TypeChecker) newSub(tok token.Token, left, right *ast.Node) *ast.Node {
	tc.annotate(left)
	tc.annotate(right)

	switch {
	case left.Typ.IsInt() && right.Typ.IsInt():
		return typed(ast.NewBinaryOp(tok, token.Minus, left, right), ast.TypeInt)
	case left.Typ.HasBase() && right.Typ.IsInt():
		return typed(ast.NewBinaryOp(tok, token.Minus, left, scaled(tok, right, left.Typ.Base)), left.Typ.Decay())
	case left.Typ.HasBase() && right.Typ.HasBase():
		if !left.Typ.Base.Equal(right.Typ.Base) {
			invalidOperands(tok, left, right)
		}
		diff := typed(ast.NewBinaryOp(tok, token.Minus, left, right), ast.TypeInt)
		size := typed(ast.NewNumber(tok, int64(left.Typ.Base.Size())), ast.TypeInt)
		return typed(ast.NewBinaryOp(tok, token.Slash, diff, size), ast.TypeInt)
	}
	invalidOperands(tok, left, right)
	return nil
}
