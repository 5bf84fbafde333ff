// Package compiler drives the pipeline: lexer, parser (with the type
// checker interleaved), frame layout and a code generation backend.
package compiler

import (
	"bytes"
	"fmt"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/codegen"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/emu"
	"github.com/xplshn/mcc/pkg/frame"
	"github.com/xplshn/mcc/pkg/interp"
	"github.com/xplshn/mcc/pkg/lexer"
	"github.com/xplshn/mcc/pkg/logging"
	"github.com/xplshn/mcc/pkg/parser"
	"github.com/xplshn/mcc/pkg/typeChecker"
	"github.com/xplshn/mcc/pkg/util"
)

// Frontend turns source text into a typed program with its frames laid out.
// name is only used in diagnostics.
func Frontend(name string, source []byte, cfg *config.Config) (*ast.Program, error) {
	content := []rune(string(source))
	util.SetSourceFiles([]util.SourceFileRecord{{Name: name, Content: content}})

	logging.Phase("Tokenizing '%s'...", name)
	tokens, err := lexer.Tokenize(content, 0, cfg)
	if err != nil {
		return nil, err
	}

	logging.Phase("Parsing tokens into AST...")
	prog, err := parser.NewParser(tokens, cfg).Parse()
	if err != nil {
		return nil, err
	}

	logging.Phase("Type checking...")
	if err := typeChecker.NewTypeChecker(cfg).Check(prog); err != nil {
		return nil, err
	}

	logging.Phase("Laying out stack frames...")
	frame.Assign(prog, cfg)
	return prog, nil
}

// Compile runs the whole pipeline with the backend named by cfg
func Compile(name string, source []byte, cfg *config.Config) (*bytes.Buffer, error) {
	prog, err := Frontend(name, source, cfg)
	if err != nil {
		return nil, err
	}
	backend, err := codegen.SelectBackend(cfg.BackendName)
	if err != nil {
		return nil, err
	}
	logging.Phase("Generating code with '%s' backend...", cfg.BackendName)
	out, err := backend.Generate(prog, cfg)
	if err != nil {
		return nil, fmt.Errorf("backend code generation failed: %w", err)
	}
	return out, nil
}

// CompileIR is Compile but stops at the backend's intermediate text
func CompileIR(name string, source []byte, cfg *config.Config) (string, error) {
	prog, err := Frontend(name, source, cfg)
	if err != nil {
		return "", err
	}
	backend, err := codegen.SelectBackend(cfg.BackendName)
	if err != nil {
		return "", err
	}
	logging.Phase("Dumping IR for '%s' backend...", cfg.BackendName)
	ir, err := backend.GenerateIR(prog, cfg)
	if err != nil {
		return "", fmt.Errorf("backend IR generation failed: %w", err)
	}
	return ir, nil
}

// Assembly compiles an already checked program with the x86 backend
func Assembly(prog *ast.Program, cfg *config.Config) (string, error) {
	return codegen.NewX86Backend().GenerateIR(prog, cfg)
}

// Execute compiles source for x86 whatever backend cfg names, runs it on the
// emulator and returns what main returned.
func Execute(name string, source []byte, cfg *config.Config) (int64, error) {
	prog, err := Frontend(name, source, cfg)
	if err != nil {
		return 0, err
	}
	asm, err := Assembly(prog, cfg)
	if err != nil {
		return 0, err
	}
	logging.Phase("Running on the emulator...")
	result, err := emu.Run(asm, cfg.EmuMemory, cfg.EmuSteps)
	if err != nil {
		return 0, fmt.Errorf("emulation failed: %w", err)
	}
	return result, nil
}

// Interpret evaluates source with the reference interpreter
func Interpret(name string, source []byte, cfg *config.Config) (int64, error) {
	prog, err := Frontend(name, source, cfg)
	if err != nil {
		return 0, err
	}
	logging.Phase("Interpreting...")
	result, err := interp.Run(prog, cfg.EmuMemory, cfg.EmuSteps)
	if err != nil {
		return 0, fmt.Errorf("interpretation failed: %w", err)
	}
	return result, nil
}
