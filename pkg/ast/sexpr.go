package ast

import (
	"fmt"
	"strings"

	"github.com/xplshn/mcc/pkg/token"
)

// Sexpr renders a node as an S-expression, e.g. (+ a (* b 4)).
// Missing optional children print as _.
func Sexpr(n *Node) string {
	var sb strings.Builder
	writeSexprOpts(&sb, n, false)
	return sb.String()
}

// SexprTyped is Sexpr with every expression suffixed by its type, e.g.
// (+:int* p 4:int)
func SexprTyped(n *Node) string {
	var sb strings.Builder
	writeSexprOpts(&sb, n, true)
	return sb.String()
}

func writeSexprOpts(sb *strings.Builder, n *Node, typed bool) {
	if n == nil {
		sb.WriteString("_")
		return
	}

	suffix := ""
	if typed && n.IsExpr() {
		suffix = ":" + TypeToString(n.Typ)
	}

	list := func(head string, children ...*Node) {
		sb.WriteString("(" + head + suffix)
		for _, c := range children {
			sb.WriteByte(' ')
			writeSexprOpts(sb, c, typed)
		}
		sb.WriteByte(')')
	}

	switch d := n.Data.(type) {
	case NumberNode:
		fmt.Fprintf(sb, "%d%s", d.Value, suffix)
	case VarNode:
		sb.WriteString(d.Var.Name + suffix)
	case AddressOfNode:
		list("&", d.LValue)
	case IndirectionNode:
		list("*", d.Expr)
	case BinaryOpNode:
		list(token.TypeStrings[d.Op], d.Left, d.Right)
	case AssignNode:
		list("=", d.Lhs, d.Rhs)
	case FuncCallNode:
		list("call "+d.Name, d.Args...)
	case ExprStmtNode:
		list("expr", d.Expr)
	case BlockNode:
		list("block", d.Stmts...)
	case IfNode:
		if d.ElseBody == nil {
			list("if", d.Cond, d.ThenBody)
		} else {
			list("if", d.Cond, d.ThenBody, d.ElseBody)
		}
	case WhileNode:
		list("while", d.Cond, d.Body)
	case ForNode:
		list("for", d.Init, d.Cond, d.Inc, d.Body)
	case ReturnNode:
		list("return", d.Expr)
	default:
		fmt.Fprintf(sb, "<%s>", n.Type)
	}
}

// Dump writes a readable listing of a program: one header per function with
// its locals and frame layout, followed by the typed body.
func Dump(prog *Program) string {
	var sb strings.Builder
	for i, fn := range prog.Funcs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		params := make([]string, len(fn.Params))
		for j, p := range fn.Params {
			params[j] = TypeToString(p.Type) + " " + p.Name
		}
		fmt.Fprintf(&sb, "func %s(%s) %s [frame %d]\n", fn.Name, strings.Join(params, ", "), TypeToString(fn.ReturnType), fn.StackSize)
		for j := len(fn.Locals) - 1; j >= 0; j-- {
			v := fn.Locals[j]
			fmt.Fprintf(&sb, "  local %s %s @ rbp-%d\n", v.Name, TypeToString(v.Type), v.Offset)
		}
		fmt.Fprintf(&sb, "  %s\n", SexprTyped(fn.Body))
	}
	return sb.String()
}
