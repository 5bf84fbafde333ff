// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import "github.com/xplshn/mcc/pkg/token"

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	Var
	AddressOf
	Indirection
	BinaryOp
	Assign
	FuncCall

	// Statements
	ExprStmt
	Block
	If
	While
	For
	Return
)

var nodeTypeNames = [...]string{
	Number:      "Number",
	Var:         "Var",
	AddressOf:   "AddressOf",
	Indirection: "Indirection",
	BinaryOp:    "BinaryOp",
	Assign:      "Assign",
	FuncCall:    "FuncCall",
	ExprStmt:    "ExprStmt",
	Block:       "Block",
	If:          "If",
	While:       "While",
	For:         "For",
	Return:      "Return",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Unknown"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
	Typ  *Type // Set by the type checker
}

// IsExpr reports whether the node produces a value
func (n *Node) IsExpr() bool { return n.Type <= FuncCall }

// LocalVar is a named stack slot owned by one Function. Offset is the
// distance below the frame base and is filled in by the frame layout pass.
type LocalVar struct {
	Name   string
	Type   *Type
	Offset int
	Tok    token.Token
}

// Function is one function definition. Locals holds every local
// (parameters included) newest first; Params is in declaration order.
type Function struct {
	Name       string
	Tok        token.Token
	ReturnType *Type
	Params     []*LocalVar
	Locals     []*LocalVar
	Body       *Node
	StackSize  int
}

type Program struct {
	Funcs []*Function
}

// Signature describes a callable function. Implicit signatures come from
// calls to names that were never defined.
type Signature struct {
	Name       string
	Params     []*Type
	ReturnType *Type
	Implicit   bool
	Tok        token.Token
	// Calls holds every call made while the signature was still implicit,
	// so the definition can check their argument counts.
	Calls      []CallSite
}

type CallSite struct {
	Tok  token.Token
	Args int
}

func (f *Function) Signature() *Signature {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return &Signature{Name: f.Name, Params: params, ReturnType: f.ReturnType, Tok: f.Tok}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type VarNode struct{ Var *LocalVar }
type AddressOfNode struct{ LValue *Node }
type IndirectionNode struct{ Expr *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type AssignNode struct{ Lhs, Rhs *Node }
type FuncCallNode struct{ Name string; Args []*Node; ReturnType *Type }
type ExprStmtNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type WhileNode struct{ Cond, Body *Node }
type ForNode struct{ Init, Cond, Inc, Body *Node }
type ReturnNode struct{ Expr *Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewVar(tok token.Token, v *LocalVar) *Node {
	return newNode(tok, Var, VarNode{Var: v})
}
func NewAddressOf(tok token.Token, lvalue *Node) *Node {
	return newNode(tok, AddressOf, AddressOfNode{LValue: lvalue})
}
func NewIndirection(tok token.Token, expr *Node) *Node {
	return newNode(tok, Indirection, IndirectionNode{Expr: expr})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs})
}
func NewFuncCall(tok token.Token, name string, args []*Node, returnType *Type) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args, ReturnType: returnType})
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr})
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts})
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody})
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewFor(tok token.Token, init, cond, inc, body *Node) *Node {
	return newNode(tok, For, ForNode{Init: init, Cond: cond, Inc: inc, Body: body})
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr})
}

// Walk calls fn for n and every node below it in evaluation order.
// Returning false from fn skips that node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch d := n.Data.(type) {
	case AddressOfNode:
		Walk(d.LValue, fn)
	case IndirectionNode:
		Walk(d.Expr, fn)
	case BinaryOpNode:
		Walk(d.Left, fn)
		Walk(d.Right, fn)
	case AssignNode:
		Walk(d.Lhs, fn)
		Walk(d.Rhs, fn)
	case FuncCallNode:
		for _, a := range d.Args {
			Walk(a, fn)
		}
	case ExprStmtNode:
		Walk(d.Expr, fn)
	case BlockNode:
		for _, s := range d.Stmts {
			Walk(s, fn)
		}
	case IfNode:
		Walk(d.Cond, fn)
		Walk(d.ThenBody, fn)
		Walk(d.ElseBody, fn)
	case WhileNode:
		Walk(d.Cond, fn)
		Walk(d.Body, fn)
	case ForNode:
		Walk(d.Init, fn)
		Walk(d.Cond, fn)
		Walk(d.Inc, fn)
		Walk(d.Body, fn)
	case ReturnNode:
		Walk(d.Expr, fn)
	}
}
