package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/cli"
	"github.com/xplshn/mcc/pkg/compiler"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/logging"
	"github.com/xplshn/mcc/pkg/util"
)

func main() {
	app := cli.NewApp("mcc")
	app.Synopsis = "[options] <input.c>"
	app.Description = "A small C compiler: ints, pointers, arrays, functions and structured control flow, compiled to stack-machine x86-64 assembly, QBE or LLVM IR."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/mcc>"

	var (
		outFile    string
		backend    string
		target     string
		configFile string
		dumpIR     bool
		dumpAST    bool
		run        bool
		interpret  bool
		verbose    bool
		wall       bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> instead of stdout.", "file")
	fs.String(&backend, "backend", "t", "", "Select the code generator: x86, qbe or llvm.", "backend")
	fs.String(&target, "target", "", "", "Set the backend target (QBE target or LLVM triple).", "target")
	fs.String(&configFile, "config", "", "", "Read settings from a TOML file.", "file")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump the backend's intermediate representation and exit.")
	fs.Bool(&dumpAST, "dump-ast", "", false, "Dump the typed AST with frame layouts and exit.")
	fs.Bool(&run, "run", "", false, "Run the program on the built-in x86 emulator and exit with main's result.")
	fs.Bool(&interpret, "interp", "", false, "Evaluate the program with the reference interpreter and exit with main's result.")
	fs.Bool(&verbose, "verbose", "v", false, "Print compilation phases.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		logging.SetVerbose(verbose)

		if len(inputFiles) != 1 {
			util.Fatal(fmt.Errorf("expected exactly one input file, got %d", len(inputFiles)))
		}
		inputFile := inputFiles[0]

		// Settings from the config file come first so flags override them
		if configFile != "" {
			fileBackend, fileTarget, err := cfg.LoadFile(configFile)
			if err != nil {
				util.Fatal(err)
			}
			if backend == "" {
				backend = fileBackend
			}
			if target == "" {
				target = fileTarget
			}
		}
		if wall {
			cfg.ApplyFlag("-Wall")
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if err := cfg.SetBackend(backend, runtime.GOOS, runtime.GOARCH, target); err != nil {
			util.Fatal(err)
		}

		source, err := os.ReadFile(inputFile)
		if err != nil {
			util.Fatal(fmt.Errorf("could not read file '%s': %w", inputFile, err))
		}

		switch {
		case dumpAST:
			prog, err := compiler.Frontend(inputFile, source, cfg)
			if err != nil {
				util.Fatal(err)
			}
			emitOutput(outFile, ast.Dump(prog))
			return nil

		case run, interpret:
			exec := compiler.Execute
			if interpret {
				exec = compiler.Interpret
			}
			result, err := exec(inputFile, source, cfg)
			if err != nil {
				util.Fatal(err)
			}
			logging.Done("main returned %d", result)
			os.Exit(int(result & 0xff))

		case dumpIR:
			ir, err := compiler.CompileIR(inputFile, source, cfg)
			if err != nil {
				util.Fatal(err)
			}
			emitOutput(outFile, ir)
			return nil
		}

		out, err := compiler.Compile(inputFile, source, cfg)
		if err != nil {
			util.Fatal(err)
		}
		emitOutput(outFile, out.String())
		logging.Done("Compiled '%s' with the %s backend", inputFile, cfg.BackendName)
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func emitOutput(path, text string) {
	if err := writeOutput(path, text); err != nil {
		util.Fatal(err)
	}
}

func writeOutput(path, text string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	_, err := io.WriteString(w, text)
	return err
}
