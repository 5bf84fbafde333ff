// Package frame lays out the stack frame of every function.
package frame

import (
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
)

// AlignTo rounds n up to the nearest multiple of align
func AlignTo(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// Assign gives every local of every function an offset below the frame
// base, in declaration order and after cfg.FrameReserve bytes, then rounds
// the frame size up to cfg.StackAlignment. Each function only ever touches
// its own locals, so the pass can be rerun safely.
func Assign(prog *ast.Program, cfg *config.Config) {
	for _, fn := range prog.Funcs {
		AssignFunc(fn, cfg)
	}
}

func AssignFunc(fn *ast.Function, cfg *config.Config) {
	offset := cfg.FrameReserve
	for i := len(fn.Locals) - 1; i >= 0; i-- {
		v := fn.Locals[i]
		offset = AlignTo(offset+v.Type.Size(), v.Type.Align())
		v.Offset = offset
	}
	fn.StackSize = AlignTo(offset, cfg.StackAlignment)
}
