package codegen

import (
	"math"
	"strconv"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/util"
)

func (ctx *Context) codegenNumber(v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		ctx.push(strconv.FormatInt(v, 10))
		return
	}
	ctx.emit("mov rax, %d", v)
	ctx.push("rax")
}

// codegenAddr pushes the address of an lvalue
func (ctx *Context) codegenAddr(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.VarNode:
		ctx.emit("lea rax, [rbp-%d]", d.Var.Offset)
		ctx.push("rax")
	case ast.IndirectionNode:
		ctx.codegenExpr(d.Expr)
	default:
		panic(util.Errorf(util.TypeError, node.Tok, "not an lvalue"))
	}
}

// load replaces the address on top of the stack with the value it points
// at. Arrays are left as addresses.
func (ctx *Context) load(typ *ast.Type) {
	if typ.Kind == ast.TYPE_ARRAY {
		return
	}
	ctx.pop("rax")
	if typ.Size() == 4 {
		ctx.emit("movsxd rax, dword ptr [rax]")
	} else {
		ctx.emit("mov rax, [rax]")
	}
	ctx.push("rax")
}

// store pops a value and an address, writes the value and pushes it back
func (ctx *Context) store(typ *ast.Type) {
	ctx.pop("rdi")
	ctx.pop("rax")
	if typ.Size() == 4 {
		ctx.emit("mov dword ptr [rax], edi")
	} else {
		ctx.emit("mov [rax], rdi")
	}
	ctx.push("rdi")
}

func (ctx *Context) codegenAssign(d ast.AssignNode) {
	ctx.codegenAddr(d.Lhs)
	ctx.codegenExpr(d.Rhs)
	ctx.store(d.Lhs.Typ)
}

func (ctx *Context) codegenBinaryOp(d ast.BinaryOpNode) {
	ctx.codegenExpr(d.Left)
	ctx.codegenExpr(d.Right)
	ctx.pop("rdi")
	ctx.pop("rax")

	switch d.Op {
	case token.Plus:
		ctx.emit("add rax, rdi")
	case token.Minus:
		ctx.emit("sub rax, rdi")
	case token.Star:
		ctx.emit("imul rax, rdi")
	case token.Slash:
		ctx.emit("cqo")
		ctx.emit("idiv rdi")
	case token.Rem:
		ctx.emit("cqo")
		ctx.emit("idiv rdi")
		ctx.emit("mov rax, rdx")
	case token.EqEq, token.Neq, token.Lt, token.Lte:
		ctx.emit("cmp rax, rdi")
		ctx.emit("%s al", setccFor(d.Op))
		ctx.emit("movzb rax, al")
	default:
		panic(util.Errorf(util.SyntaxError, d.Left.Tok, "unsupported operator '%s'", token.TypeStrings[d.Op]))
	}
	ctx.push("rax")
}

func setccFor(op token.Type) string {
	switch op {
	case token.EqEq:
		return "sete"
	case token.Neq:
		return "setne"
	case token.Lt:
		return "setl"
	}
	return "setle"
}

func (ctx *Context) codegenFuncCall(node *ast.Node, d ast.FuncCallNode) {
	if len(d.Args) > len(argRegs64) {
		panic(util.Errorf(util.SyntaxError, node.Tok, "too many arguments to '%s'", d.Name))
	}
	for _, arg := range d.Args {
		ctx.codegenExpr(arg)
	}
	for i := len(d.Args) - 1; i >= 0; i-- {
		ctx.pop(argRegs64[i])
	}

	ctx.emit("mov rax, 0")
	if ctx.depth%2 != 0 {
		ctx.emit("sub rsp, 8")
		ctx.emit("call %s", d.Name)
		ctx.emit("add rsp, 8")
	} else {
		ctx.emit("call %s", d.Name)
	}
	if node.Typ.Size() == 4 {
		ctx.emit("movsxd rax, eax")
	}
	ctx.push("rax")
}

func (ctx *Context) codegenReturn(d ast.ReturnNode) {
	ctx.codegenExpr(d.Expr)
	ctx.pop("rax")
	ctx.emit("jmp %s", ctx.returnLabel())
}

// branchIfZero pops the condition and jumps to target when it is 0
func (ctx *Context) branchIfZero(cond *ast.Node, target string) {
	ctx.codegenExpr(cond)
	ctx.pop("rax")
	ctx.emit("cmp rax, 0")
	ctx.emit("je %s", target)
}

func (ctx *Context) codegenIf(d ast.IfNode) {
	id := ctx.newLabelID()
	elseLabel, endLabel := labelName("else", id), labelName("end", id)
	ctx.branchIfZero(d.Cond, elseLabel)
	ctx.codegenStmt(d.ThenBody)
	ctx.emit("jmp %s", endLabel)
	ctx.label(elseLabel)
	ctx.codegenStmt(d.ElseBody)
	ctx.label(endLabel)
}

func (ctx *Context) codegenWhile(d ast.WhileNode) {
	id := ctx.newLabelID()
	beginLabel, endLabel := labelName("begin", id), labelName("end", id)
	ctx.label(beginLabel)
	ctx.branchIfZero(d.Cond, endLabel)
	ctx.codegenStmt(d.Body)
	ctx.emit("jmp %s", beginLabel)
	ctx.label(endLabel)
}

func (ctx *Context) codegenFor(d ast.ForNode) {
	id := ctx.newLabelID()
	beginLabel, endLabel := labelName("begin", id), labelName("end", id)
	if d.Init != nil {
		ctx.codegenExpr(d.Init)
		ctx.discard()
	}
	ctx.label(beginLabel)
	if d.Cond != nil {
		ctx.branchIfZero(d.Cond, endLabel)
	}
	ctx.codegenStmt(d.Body)
	if d.Inc != nil {
		ctx.codegenExpr(d.Inc)
		ctx.discard()
	}
	ctx.emit("jmp %s", beginLabel)
	ctx.label(endLabel)
}

func labelName(kind string, id int) string {
	return ".L." + kind + "." + strconv.Itoa(id)
}
