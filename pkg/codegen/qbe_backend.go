package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/util"
)

// qbeBackend lowers the typed AST to QBE IL. Every value is an 'l'; locals
// live in one alloc16 block per function laid out exactly like the x86
// frame, so a local at offset off sits at %fp + (frame - off).
type qbeBackend struct {
	out        *strings.Builder
	currentFn  *ast.Function
	tempCount  int
	labelCount int
	terminated bool
}

func NewQBEBackend() Backend { return &qbeBackend{} }

func (b *qbeBackend) GenerateIR(prog *ast.Program, cfg *config.Config) (qbeIR string, err error) {
	defer util.Bailout(&err)
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.labelCount = 0
	for _, fn := range prog.Funcs {
		b.genFunc(fn)
	}
	return qbeIRBuilder.String(), nil
}

func qbeType(t *ast.Type) string {
	if t != nil && t.Size() == 4 {
		return "w"
	}
	return "l"
}

func (b *qbeBackend) newTemp() string {
	b.tempCount++
	return fmt.Sprintf("%%.%d", b.tempCount)
}

func (b *qbeBackend) newLabel(kind string) string {
	b.labelCount++
	return fmt.Sprintf("@%s.%d", kind, b.labelCount)
}

// instr writes one instruction, opening an unreachable block first if the
// previous instruction was a jump or return
func (b *qbeBackend) instr(format string, args ...interface{}) {
	if b.terminated {
		b.block(b.newLabel("dead"))
	}
	b.out.WriteString("\t")
	fmt.Fprintf(b.out, format, args...)
	b.out.WriteString("\n")
}

func (b *qbeBackend) terminator(format string, args ...interface{}) {
	b.instr(format, args...)
	b.terminated = true
}

func (b *qbeBackend) block(label string) {
	if !b.terminated {
		b.out.WriteString("\tjmp " + label + "\n")
	}
	b.out.WriteString(label + "\n")
	b.terminated = false
}

func (b *qbeBackend) genFunc(fn *ast.Function) {
	b.currentFn = fn
	b.tempCount = 0

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %%p%d", qbeType(p.Type), i)
	}
	fmt.Fprintf(b.out, "\nexport function %s $%s(%s) {\n", qbeType(fn.ReturnType), fn.Name, strings.Join(params, ", "))
	b.out.WriteString("@start\n")
	b.terminated = false

	if fn.StackSize > 0 {
		b.instr("%%fp =l alloc16 %d", fn.StackSize)
	}
	for i, p := range fn.Params {
		b.instr("store%s %%p%d, %s", qbeType(p.Type), i, b.varAddr(p))
	}

	b.genStmt(fn.Body)
	if !b.terminated {
		b.terminator("ret 0")
	}
	b.out.WriteString("}\n")
}

func (b *qbeBackend) varAddr(v *ast.LocalVar) string {
	t := b.newTemp()
	b.instr("%s =l add %%fp, %d", t, b.currentFn.StackSize-v.Offset)
	return t
}

func (b *qbeBackend) genStmt(node *ast.Node) {
	if node == nil {
		return
	}
	switch d := node.Data.(type) {
	case ast.ExprStmtNode:
		b.genExpr(d.Expr)
	case ast.BlockNode:
		for _, stmt := range d.Stmts {
			b.genStmt(stmt)
		}
	case ast.ReturnNode:
		val := b.genExpr(d.Expr)
		b.terminator("ret %s", val)
	case ast.IfNode:
		thenLabel, elseLabel, endLabel := b.newLabel("then"), b.newLabel("else"), b.newLabel("end")
		b.branch(d.Cond, thenLabel, elseLabel)
		b.block(thenLabel)
		b.genStmt(d.ThenBody)
		if !b.terminated {
			b.terminator("jmp %s", endLabel)
		}
		b.block(elseLabel)
		b.genStmt(d.ElseBody)
		b.block(endLabel)
	case ast.WhileNode:
		b.genLoop(nil, d.Cond, nil, d.Body)
	case ast.ForNode:
		b.genLoop(d.Init, d.Cond, d.Inc, d.Body)
	default:
		panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in statement position", node.Type))
	}
}

func (b *qbeBackend) genLoop(init, cond, inc, body *ast.Node) {
	if init != nil {
		b.genExpr(init)
	}
	beginLabel, bodyLabel, endLabel := b.newLabel("begin"), b.newLabel("body"), b.newLabel("end")
	b.block(beginLabel)
	if cond != nil {
		b.branch(cond, bodyLabel, endLabel)
	}
	b.block(bodyLabel)
	b.genStmt(body)
	if inc != nil {
		b.genExpr(inc)
	}
	b.terminator("jmp %s", beginLabel)
	b.block(endLabel)
}

func (b *qbeBackend) branch(cond *ast.Node, ifTrue, ifFalse string) {
	val := b.genExpr(cond)
	c := b.newTemp()
	b.instr("%s =w cnel %s, 0", c, val)
	b.terminator("jnz %s, %s, %s", c, ifTrue, ifFalse)
}

func (b *qbeBackend) genAddr(node *ast.Node) string {
	switch d := node.Data.(type) {
	case ast.VarNode:
		return b.varAddr(d.Var)
	case ast.IndirectionNode:
		return b.genExpr(d.Expr)
	}
	panic(util.Errorf(util.TypeError, node.Tok, "not an lvalue"))
}

func (b *qbeBackend) load(addr string, typ *ast.Type) string {
	if typ.Kind == ast.TYPE_ARRAY {
		return addr
	}
	t := b.newTemp()
	if typ.Size() == 4 {
		b.instr("%s =l loadsw %s", t, addr)
	} else {
		b.instr("%s =l loadl %s", t, addr)
	}
	return t
}

var qbeArith = map[token.Type]string{
	token.Plus:  "add",
	token.Minus: "sub",
	token.Star:  "mul",
	token.Slash: "div",
	token.Rem:   "rem",
}

var qbeCompare = map[token.Type]string{
	token.EqEq: "ceql",
	token.Neq:  "cnel",
	token.Lt:   "csltl",
	token.Lte:  "cslel",
}

func (b *qbeBackend) genExpr(node *ast.Node) string {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		return fmt.Sprintf("%d", d.Value)
	case ast.VarNode, ast.IndirectionNode:
		return b.load(b.genAddr(node), node.Typ)
	case ast.AddressOfNode:
		return b.genAddr(d.LValue)
	case ast.AssignNode:
		addr := b.genAddr(d.Lhs)
		val := b.genExpr(d.Rhs)
		b.instr("store%s %s, %s", qbeType(d.Lhs.Typ), val, addr)
		return val
	case ast.BinaryOpNode:
		l, r := b.genExpr(d.Left), b.genExpr(d.Right)
		t := b.newTemp()
		if op, ok := qbeArith[d.Op]; ok {
			b.instr("%s =l %s %s, %s", t, op, l, r)
			return t
		}
		if op, ok := qbeCompare[d.Op]; ok {
			b.instr("%s =w %s %s, %s", t, op, l, r)
			ext := b.newTemp()
			b.instr("%s =l extuw %s", ext, t)
			return ext
		}
		panic(util.Errorf(util.SyntaxError, node.Tok, "unsupported operator '%s'", token.TypeStrings[d.Op]))
	case ast.FuncCallNode:
		args := make([]string, len(d.Args))
		for i, arg := range d.Args {
			args[i] = fmt.Sprintf("%s %s", qbeType(arg.Typ.Decay()), b.genExpr(arg))
		}
		t := b.newTemp()
		if qbeType(node.Typ) == "w" {
			w := b.newTemp()
			b.instr("%s =w call $%s(%s)", w, d.Name, strings.Join(args, ", "))
			b.instr("%s =l extsw %s", t, w)
		} else {
			b.instr("%s =l call $%s(%s)", t, d.Name, strings.Join(args, ", "))
		}
		return t
	}
	panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in expression position", node.Type))
}
