// Package interp evaluates a typed program directly. It shares the frame
// layout and byte-scaled pointer arithmetic of the generated code and serves
// as the reference its output is checked against.
package interp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/token"
)

var (
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrDivideByZero = errors.New("division by zero")
)

// runtimeError aborts evaluation; Call turns it back into an error
type runtimeError struct{ err error }

type Interpreter struct {
	funcs    map[string]*ast.Function
	mem      []byte
	sp       uint64
	steps    int
	maxSteps int
}

// New prepares prog for evaluation. Frames are carved from the top of a
// memSize byte stack. A maxSteps of 0 means no limit.
func New(prog *ast.Program, memSize, maxSteps int) *Interpreter {
	funcs := make(map[string]*ast.Function, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		funcs[fn.Name] = fn
	}
	return &Interpreter{funcs: funcs, mem: make([]byte, memSize), sp: uint64(memSize) &^ 15, maxSteps: maxSteps}
}

// Run evaluates main
func Run(prog *ast.Program, memSize, maxSteps int) (int64, error) {
	return New(prog, memSize, maxSteps).Call("main")
}

func (in *Interpreter) Call(name string, args ...int64) (result int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(runtimeError)
			if !ok {
				panic(r)
			}
			err = re.err
		}
	}()
	return in.call(name, args, token.Token{}), nil
}

func fail(tok token.Token, format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	if tok.Line > 0 {
		err = fmt.Errorf("%d:%d: %w", tok.Line, tok.Column, err)
	}
	panic(runtimeError{err})
}

func (in *Interpreter) call(name string, args []int64, tok token.Token) int64 {
	fn, ok := in.funcs[name]
	if !ok {
		fail(tok, "undefined function '%s'", name)
	}
	if len(args) != len(fn.Params) {
		fail(tok, "'%s' expects %d arguments, got %d", name, len(fn.Params), len(args))
	}

	// 16 bytes stand in for the return address and saved frame pointer
	base := in.sp - 16
	if base < uint64(fn.StackSize) {
		fail(tok, "stack overflow calling '%s'", name)
	}
	savedSP := in.sp
	in.sp = base - uint64(fn.StackSize)
	defer func() { in.sp = savedSP }()

	f := &frame{base: base}
	for i, p := range fn.Params {
		in.store(f.addr(p), args[i], p.Type, p.Tok)
	}
	if returned, val := in.exec(f, fn.Body); returned {
		return val
	}
	return 0
}

type frame struct{ base uint64 }

func (f *frame) addr(v *ast.LocalVar) uint64 { return f.base - uint64(v.Offset) }

func (in *Interpreter) tick() {
	in.steps++
	if in.maxSteps > 0 && in.steps > in.maxSteps {
		panic(runtimeError{ErrStepLimit})
	}
}

func (in *Interpreter) bytesAt(addr uint64, size int, tok token.Token) []byte {
	if addr > uint64(len(in.mem)) || uint64(len(in.mem))-addr < uint64(size) {
		fail(tok, "memory access out of bounds at 0x%x", addr)
	}
	return in.mem[addr : addr+uint64(size)]
}

func (in *Interpreter) load(addr uint64, typ *ast.Type, tok token.Token) int64 {
	if typ.Kind == ast.TYPE_ARRAY {
		return int64(addr)
	}
	b := in.bytesAt(addr, typ.Size(), tok)
	if typ.Size() == 4 {
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (in *Interpreter) store(addr uint64, val int64, typ *ast.Type, tok token.Token) {
	b := in.bytesAt(addr, typ.Size(), tok)
	if typ.Size() == 4 {
		binary.LittleEndian.PutUint32(b, uint32(val))
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(val))
}

// exec runs a statement and reports whether it executed a return
func (in *Interpreter) exec(f *frame, node *ast.Node) (bool, int64) {
	if node == nil {
		return false, 0
	}
	in.tick()

	switch d := node.Data.(type) {
	case ast.ExprStmtNode:
		in.eval(f, d.Expr)
	case ast.BlockNode:
		for _, stmt := range d.Stmts {
			if returned, val := in.exec(f, stmt); returned {
				return true, val
			}
		}
	case ast.ReturnNode:
		return true, in.eval(f, d.Expr)
	case ast.IfNode:
		if in.eval(f, d.Cond) != 0 {
			return in.exec(f, d.ThenBody)
		}
		return in.exec(f, d.ElseBody)
	case ast.WhileNode:
		for in.eval(f, d.Cond) != 0 {
			if returned, val := in.exec(f, d.Body); returned {
				return true, val
			}
			in.tick()
		}
	case ast.ForNode:
		if d.Init != nil {
			in.eval(f, d.Init)
		}
		for d.Cond == nil || in.eval(f, d.Cond) != 0 {
			if returned, val := in.exec(f, d.Body); returned {
				return true, val
			}
			if d.Inc != nil {
				in.eval(f, d.Inc)
			}
			in.tick()
		}
	default:
		fail(node.Tok, "unexpected %s in statement position", node.Type)
	}
	return false, 0
}

func (in *Interpreter) addr(f *frame, node *ast.Node) uint64 {
	switch d := node.Data.(type) {
	case ast.VarNode:
		return f.addr(d.Var)
	case ast.IndirectionNode:
		return uint64(in.eval(f, d.Expr))
	}
	fail(node.Tok, "not an lvalue")
	return 0
}

func (in *Interpreter) eval(f *frame, node *ast.Node) int64 {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		return d.Value
	case ast.VarNode, ast.IndirectionNode:
		return in.load(in.addr(f, node), node.Typ, node.Tok)
	case ast.AddressOfNode:
		return int64(in.addr(f, d.LValue))
	case ast.AssignNode:
		addr := in.addr(f, d.Lhs)
		val := in.eval(f, d.Rhs)
		in.store(addr, val, d.Lhs.Typ, node.Tok)
		return val
	case ast.BinaryOpNode:
		return in.evalBinary(f, node, d)
	case ast.FuncCallNode:
		args := make([]int64, len(d.Args))
		for i, arg := range d.Args {
			args[i] = in.eval(f, arg)
		}
		val := in.call(d.Name, args, node.Tok)
		if node.Typ.Size() == 4 {
			val = int64(int32(val))
		}
		return val
	}
	fail(node.Tok, "unexpected %s in expression position", node.Type)
	return 0
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (in *Interpreter) evalBinary(f *frame, node *ast.Node, d ast.BinaryOpNode) int64 {
	l, r := in.eval(f, d.Left), in.eval(f, d.Right)
	switch d.Op {
	case token.Plus:
		return l + r
	case token.Minus:
		return l - r
	case token.Star:
		return l * r
	case token.Slash, token.Rem:
		if r == 0 {
			panic(runtimeError{fmt.Errorf("%d:%d: %w", node.Tok.Line, node.Tok.Column, ErrDivideByZero)})
		}
		if d.Op == token.Slash {
			return l / r
		}
		return l % r
	case token.EqEq:
		return boolToInt(l == r)
	case token.Neq:
		return boolToInt(l != r)
	case token.Lt:
		return boolToInt(l < r)
	case token.Lte:
		return boolToInt(l <= r)
	case token.Gt:
		return boolToInt(l > r)
	case token.Gte:
		return boolToInt(l >= r)
	}
	fail(node.Tok, "unsupported operator '%s'", token.TypeStrings[d.Op])
	return 0
}
