package codegen

import (
	"bytes"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/util"
)

// llvmBackend lowers the typed AST to LLVM IR text. Values are i64 and
// locals are addressed as integers into one byte array per function, with
// the same layout as the x86 frame.
type llvmBackend struct {
	mod        *ir.Module
	funcs      map[string]*ir.Func
	fn         *ast.Function
	llFunc     *ir.Func
	block      *ir.Block
	frameBase  value.Value
	blockCount int
}

func NewLLVMBackend() Backend { return &llvmBackend{} }

func (b *llvmBackend) Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error) {
	llvmIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(llvmIR), nil
}

func (b *llvmBackend) GenerateIR(prog *ast.Program, cfg *config.Config) (llvmIR string, err error) {
	defer util.Bailout(&err)
	b.mod = ir.NewModule()
	b.mod.TargetTriple = cfg.BackendTarget
	b.funcs = make(map[string]*ir.Func)

	// Declare everything first so calls can refer to functions defined later
	for _, fn := range prog.Funcs {
		params := make([]*ir.Param, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = ir.NewParam("arg."+p.Name, types.I64)
		}
		b.funcs[fn.Name] = b.mod.NewFunc(fn.Name, types.I64, params...)
	}
	for _, fn := range prog.Funcs {
		b.genFunc(fn)
	}
	return b.mod.String(), nil
}

func i64(v int64) *constant.Int { return constant.NewInt(types.I64, v) }

func (b *llvmBackend) newBlock(kind string) *ir.Block {
	b.blockCount++
	return b.llFunc.NewBlock(fmt.Sprintf("%s.%d", kind, b.blockCount))
}

// current returns the block to append to, starting an unreachable one when
// the current block is already terminated
func (b *llvmBackend) current() *ir.Block {
	if b.block.Term != nil {
		b.block = b.newBlock("dead")
	}
	return b.block
}

// enter jumps from the current block to next unless it is terminated, and
// continues in next
func (b *llvmBackend) enter(next *ir.Block) {
	if b.block.Term == nil {
		b.block.NewBr(next)
	}
	b.block = next
}

func (b *llvmBackend) genFunc(fn *ast.Function) {
	b.fn = fn
	b.llFunc = b.funcs[fn.Name]
	b.blockCount = 0
	b.block = b.llFunc.NewBlock("entry")

	if fn.StackSize > 0 {
		frame := b.block.NewAlloca(types.NewArray(uint64(fn.StackSize), types.I8))
		frame.Align = ir.Align(16)
		b.frameBase = b.block.NewPtrToInt(frame, types.I64)
	}
	for i, p := range fn.Params {
		b.store(b.varAddr(p), b.llFunc.Params[i], p.Type)
	}

	b.genStmt(fn.Body)
	if b.block.Term == nil {
		b.block.NewRet(i64(0))
	}
}

func (b *llvmBackend) varAddr(v *ast.LocalVar) value.Value {
	return b.current().NewAdd(b.frameBase, i64(int64(b.fn.StackSize-v.Offset)))
}

func (b *llvmBackend) load(addr value.Value, typ *ast.Type) value.Value {
	if typ.Kind == ast.TYPE_ARRAY {
		return addr
	}
	blk := b.current()
	if typ.Size() == 4 {
		ptr := blk.NewIntToPtr(addr, types.NewPointer(types.I32))
		return blk.NewSExt(blk.NewLoad(types.I32, ptr), types.I64)
	}
	ptr := blk.NewIntToPtr(addr, types.NewPointer(types.I64))
	return blk.NewLoad(types.I64, ptr)
}

func (b *llvmBackend) store(addr, val value.Value, typ *ast.Type) {
	blk := b.current()
	if typ.Size() == 4 {
		ptr := blk.NewIntToPtr(addr, types.NewPointer(types.I32))
		blk.NewStore(blk.NewTrunc(val, types.I32), ptr)
		return
	}
	ptr := blk.NewIntToPtr(addr, types.NewPointer(types.I64))
	blk.NewStore(val, ptr)
}

func (b *llvmBackend) genStmt(node *ast.Node) {
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
		b.current().NewRet(val)
	case ast.IfNode:
		thenBlock, elseBlock, endBlock := b.newBlock("then"), b.newBlock("else"), b.newBlock("end")
		b.branch(d.Cond, thenBlock, elseBlock)
		b.block = thenBlock
		b.genStmt(d.ThenBody)
		if b.block.Term == nil {
			b.block.NewBr(endBlock)
		}
		b.block = elseBlock
		b.genStmt(d.ElseBody)
		b.enter(endBlock)
	case ast.WhileNode:
		b.genLoop(nil, d.Cond, nil, d.Body)
	case ast.ForNode:
		b.genLoop(d.Init, d.Cond, d.Inc, d.Body)
	default:
		panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in statement position", node.Type))
	}
}

func (b *llvmBackend) genLoop(init, cond, inc, body *ast.Node) {
	if init != nil {
		b.genExpr(init)
	}
	beginBlock, bodyBlock, endBlock := b.newBlock("begin"), b.newBlock("body"), b.newBlock("end")
	b.enter(beginBlock)
	if cond != nil {
		b.branch(cond, bodyBlock, endBlock)
	}
	b.enter(bodyBlock)
	b.genStmt(body)
	if inc != nil {
		b.genExpr(inc)
	}
	b.current().NewBr(beginBlock)
	b.block = endBlock
}

func (b *llvmBackend) branch(cond *ast.Node, ifTrue, ifFalse *ir.Block) {
	val := b.genExpr(cond)
	blk := b.current()
	c := blk.NewICmp(enum.IPredNE, val, i64(0))
	blk.NewCondBr(c, ifTrue, ifFalse)
}

func (b *llvmBackend) genAddr(node *ast.Node) value.Value {
	switch d := node.Data.(type) {
	case ast.VarNode:
		return b.varAddr(d.Var)
	case ast.IndirectionNode:
		return b.genExpr(d.Expr)
	}
	panic(util.Errorf(util.TypeError, node.Tok, "not an lvalue"))
}

var llvmPredicates = map[token.Type]enum.IPred{
	token.EqEq: enum.IPredEQ,
	token.Neq:  enum.IPredNE,
	token.Lt:   enum.IPredSLT,
	token.Lte:  enum.IPredSLE,
}

func (b *llvmBackend) genExpr(node *ast.Node) value.Value {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		return i64(d.Value)
	case ast.VarNode, ast.IndirectionNode:
		return b.load(b.genAddr(node), node.Typ)
	case ast.AddressOfNode:
		return b.genAddr(d.LValue)
	case ast.AssignNode:
		addr := b.genAddr(d.Lhs)
		val := b.genExpr(d.Rhs)
		b.store(addr, val, d.Lhs.Typ)
		return val
	case ast.BinaryOpNode:
		return b.genBinaryOp(node, d)
	case ast.FuncCallNode:
		args := make([]value.Value, len(d.Args))
		for i, arg := range d.Args {
			args[i] = b.genExpr(arg)
		}
		callee, ok := b.funcs[d.Name]
		if !ok {
			callee = b.mod.NewFunc(d.Name, types.I64)
			callee.Sig.Variadic = true
			b.funcs[d.Name] = callee
		}
		blk := b.current()
		result := value.Value(blk.NewCall(callee, args...))
		if node.Typ.Size() == 4 {
			result = blk.NewSExt(blk.NewTrunc(result, types.I32), types.I64)
		}
		return result
	}
	panic(util.Errorf(util.SyntaxError, node.Tok, "unexpected %s in expression position", node.Type))
}

func (b *llvmBackend) genBinaryOp(node *ast.Node, d ast.BinaryOpNode) value.Value {
	l, r := b.genExpr(d.Left), b.genExpr(d.Right)
	blk := b.current()
	switch d.Op {
	case token.Plus:
		return blk.NewAdd(l, r)
	case token.Minus:
		return blk.NewSub(l, r)
	case token.Star:
		return blk.NewMul(l, r)
	case token.Slash:
		return blk.NewSDiv(l, r)
	case token.Rem:
		return blk.NewSRem(l, r)
	}
	if pred, ok := llvmPredicates[d.Op]; ok {
		return blk.NewZExt(blk.NewICmp(pred, l, r), types.I64)
	}
	panic(util.Errorf(util.SyntaxError, node.Tok, "unsupported operator '%s'", token.TypeStrings[d.Op]))
}
