package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
)

// Backend is the interface that all code generation backends must implement.
// Both methods expect a program that went through the type checker and the
// frame layout pass.
type Backend interface {
	// Generate produces the target assembly as a byte buffer.
	Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error)
	// GenerateIR returns the backend's intermediate text. For x86 this is
	// the assembly itself.
	GenerateIR(prog *ast.Program, cfg *config.Config) (string, error)
}

// Backends lists the accepted backend names
var Backends = []string{"x86", "qbe", "llvm"}

func SelectBackend(name string) (Backend, error) {
	switch name {
	case "x86":
		return NewX86Backend(), nil
	case "qbe":
		return NewQBEBackend(), nil
	case "llvm":
		return NewLLVMBackend(), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'", name)
}
