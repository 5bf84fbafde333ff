package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/util"
)

var (
	argRegs64 = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	argRegs32 = []string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}
)

// x86Backend emits Intel-syntax amd64 assembly. Every expression leaves one
// 8-byte value on the machine stack and every statement leaves rsp where it
// found it.
type x86Backend struct{}

func NewX86Backend() Backend { return &x86Backend{} }

func (b *x86Backend) Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error) {
	asm, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(asm), nil
}

func (b *x86Backend) GenerateIR(prog *ast.Program, cfg *config.Config) (asm string, err error) {
	defer util.Bailout(&err)
	ctx := NewContext(cfg)
	ctx.genProgram(prog)
	return ctx.out.String(), nil
}

// Context is the state of one x86 generation run
type Context struct {
	out        *strings.Builder
	cfg        *config.Config
	labelCount int
	// depth counts the 8-byte slots pushed since the prologue so calls can
	// keep rsp 16-byte aligned
	depth       int
	currentFunc *ast.Function
}

func NewContext(cfg *config.Config) *Context {
	return &Context{out: &strings.Builder{}, cfg: cfg}
}

func (ctx *Context) emit(format string, args ...interface{}) {
	ctx.out.WriteString("  ")
	fmt.Fprintf(ctx.out, format, args...)
	ctx.out.WriteByte('\n')
}

func (ctx *Context) label(name string) {
	ctx.out.WriteString(name + ":\n")
}

func (ctx *Context) newLabelID() int {
	ctx.labelCount++
	return ctx.labelCount
}

func (ctx *Context) push(operand string) {
	ctx.emit("push %s", operand)
	ctx.depth++
}

func (ctx *Context) pop(reg string) {
	ctx.emit("pop %s", reg)
	ctx.depth--
}

func (ctx *Context) discard() {
	ctx.emit("add rsp, 8")
	ctx.depth--
}

func (ctx *Context) genProgram(prog *ast.Program) {
	ctx.out.WriteString("  .intel_syntax noprefix\n")
	for _, fn := range prog.Funcs {
		ctx.genFunc(fn)
	}
}

func (ctx *Context) returnLabel() string {
	return ".L.return." + ctx.currentFunc.Name
}

func (ctx *Context) genFunc(fn *ast.Function) {
	ctx.currentFunc = fn
	ctx.depth = 0

	ctx.emit(".globl %s", fn.Name)
	ctx.label(fn.Name)
	ctx.emit("push rbp")
	ctx.emit("mov rbp, rsp")
	if fn.StackSize > 0 {
		ctx.emit("sub rsp, %d", fn.StackSize)
	}

	for i, param := range fn.Params {
		if param.Type.Size() == 4 {
			ctx.emit("mov dword ptr [rbp-%d], %s", param.Offset, argRegs32[i])
		} else {
			ctx.emit("mov [rbp-%d], %s", param.Offset, argRegs64[i])
		}
	}

	ctx.codegenStmt(fn.Body)

	// Falling off the end returns 0
	ctx.emit("mov rax, 0")
	ctx.label(ctx.returnLabel())
	ctx.emit("mov rsp, rbp")
	ctx.emit("pop rbp")
	ctx.emit("ret")
}

func (ctx *Context) codegenStmt(node *ast.Node) {
	if node == nil {
		return
	}
	switch d := node.Data.(type) {
	case ast.ExprStmtNode:
		ctx.codegenExpr(d.Expr)
		ctx.discard()
	case ast.BlockNode:
		for _, stmt := range d.Stmts {
			ctx.codegenStmt(stmt)
		}
	case ast.ReturnNode:
		ctx.codegenReturn(d)
	case ast.IfNode:
		ctx.codegenIf(d)
	case ast.WhileNode:
		ctx.codegenWhile(d)
	case ast.ForNode:
		ctx.codegenFor(d)
	default:
		panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in statement position", node.Type))
	}
}

func (ctx *Context) codegenExpr(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		ctx.codegenNumber(d.Value)
	case ast.VarNode, ast.IndirectionNode:
		ctx.codegenAddr(node)
		ctx.load(node.Typ)
	case ast.AddressOfNode:
		ctx.codegenAddr(d.LValue)
	case ast.AssignNode:
		ctx.codegenAssign(d)
	case ast.BinaryOpNode:
		ctx.codegenBinaryOp(d)
	case ast.FuncCallNode:
		ctx.codegenFuncCall(node, d)
	default:
		panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in expression position", node.Type))
	}
}
