package frame

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
)

func TestAlignTo(t *testing.T) {
	tests := []struct{ n, align, want int }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 8, 24},
		{5, 4, 8},
		{7, 1, 7},
		{7, 0, 7},
	}
	for _, tt := range tests {
		be.Equal(t, AlignTo(tt.n, tt.align), tt.want)
	}
}

// locals builds a newest-first list from declarations given in source order
func locals(vars ...*ast.LocalVar) []*ast.LocalVar {
	out := make([]*ast.LocalVar, len(vars))
	for i, v := range vars {
		out[len(vars)-1-i] = v
	}
	return out
}

func TestAssignFuncDeclarationOrder(t *testing.T) {
	a := &ast.LocalVar{Name: "a", Type: ast.TypeInt}
	p := &ast.LocalVar{Name: "p", Type: ast.PointerTo(ast.TypeInt)}
	arr := &ast.LocalVar{Name: "arr", Type: ast.ArrayOf(ast.TypeInt, 3)}
	b := &ast.LocalVar{Name: "b", Type: ast.TypeInt}
	fn := &ast.Function{Name: "f", Locals: locals(a, p, arr, b)}

	AssignFunc(fn, config.NewConfig())

	be.Equal(t, a.Offset, 4)
	be.Equal(t, p.Offset, 16)
	be.Equal(t, arr.Offset, 28)
	be.Equal(t, b.Offset, 32)
	be.Equal(t, fn.StackSize, 32)
}

func TestAssignFuncEmpty(t *testing.T) {
	fn := &ast.Function{Name: "main"}
	AssignFunc(fn, config.NewConfig())
	be.Equal(t, fn.StackSize, 0)
}

func TestAssignFrameReserveAndAlignment(t *testing.T) {
	cfg := config.NewConfig()
	cfg.FrameReserve = 8
	cfg.StackAlignment = 32
	x := &ast.LocalVar{Name: "x", Type: ast.TypeInt}
	fn := &ast.Function{Name: "f", Locals: locals(x)}

	AssignFunc(fn, cfg)
	be.Equal(t, x.Offset, 12)
	be.Equal(t, fn.StackSize, 32)
}

func TestAssignProgramIsPerFunction(t *testing.T) {
	cfg := config.NewConfig()
	x := &ast.LocalVar{Name: "x", Type: ast.TypeInt}
	y := &ast.LocalVar{Name: "y", Type: ast.TypeInt}
	f := &ast.Function{Name: "f", Locals: locals(x)}
	g := &ast.Function{Name: "g", Locals: locals(y, &ast.LocalVar{Name: "z", Type: ast.ArrayOf(ast.TypeInt, 5)})}
	prog := &ast.Program{Funcs: []*ast.Function{f, g}}

	Assign(prog, cfg)
	be.Equal(t, x.Offset, 4)
	be.Equal(t, y.Offset, 4)
	be.Equal(t, f.StackSize, 16)
	be.Equal(t, g.StackSize, 32)

	// rerunning changes nothing
	Assign(prog, cfg)
	be.Equal(t, x.Offset, 4)
	be.Equal(t, g.StackSize, 32)
	for _, fn := range prog.Funcs {
		be.Equal(t, fn.StackSize%cfg.StackAlignment, 0)
	}
}
