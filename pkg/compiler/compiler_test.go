package compiler

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/casebook"
	"github.com/xplshn/mcc/pkg/config"
)

func quietConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.ApplyFlag("-Wno-all")
	cfg.EmuMemory = 1 << 16
	cfg.EmuSteps = 5_000_000
	return cfg
}

func TestCasebook(t *testing.T) {
	files, err := filepath.Glob("testdata/*.md")
	be.Err(t, err, nil)
	be.True(t, len(files) > 0)

	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), ".md"), func(t *testing.T) {
			content, err := os.ReadFile(file)
			be.Err(t, err, nil)

			cases, err := casebook.Extract(content)
			be.Err(t, err, nil)

			for _, tc := range cases {
				t.Run(tc.Name, func(t *testing.T) {
					for _, a := range tc.Assertions {
						runAssertion(t, file, tc, a)
					}
				})
			}
		})
	}
}

func runAssertion(t *testing.T, file string, tc casebook.TestCase, a casebook.Assertion) {
	t.Helper()
	source := []byte(tc.Source)

	switch a.Type {
	case casebook.AssertResult:
		want, err := strconv.ParseInt(a.Content, 10, 64)
		if err != nil {
			t.Fatalf("%s:%d: bad result %q", file, a.Line, a.Content)
		}
		got, err := Execute(file, source, quietConfig())
		if err != nil {
			t.Fatalf("%s:%d: emulator: %v", file, a.Line, err)
		}
		be.Equal(t, got, want)

		ref, err := Interpret(file, source, quietConfig())
		if err != nil {
			t.Fatalf("%s:%d: interpreter: %v", file, a.Line, err)
		}
		be.Equal(t, ref, want)

	case casebook.AssertCompileError:
		_, err := Frontend(file, source, quietConfig())
		if err == nil {
			t.Fatalf("%s:%d: expected a compile error, got none", file, a.Line)
		}
		if diff := cmp.Diff(a.Content, err.Error()); diff != "" {
			t.Errorf("%s:%d: compile error mismatch (-want +got):\n%s", file, a.Line, diff)
		}

	case casebook.AssertAsm:
		prog, err := Frontend(file, source, quietConfig())
		be.Err(t, err, nil)
		asm, err := Assembly(prog, quietConfig())
		be.Err(t, err, nil)
		if missing, ok := casebook.ContainsInOrder(asm, a.Content); !ok {
			t.Errorf("%s:%d: line %q not found in order in:\n%s", file, a.Line, missing, asm)
		}

	case casebook.AssertAST:
		prog, err := Frontend(file, source, quietConfig())
		be.Err(t, err, nil)
		var bodies []string
		for _, fn := range prog.Funcs {
			bodies = append(bodies, ast.Sexpr(fn.Body))
		}
		if diff := cmp.Diff(a.Content, strings.Join(bodies, "\n")); diff != "" {
			t.Errorf("%s:%d: ast mismatch (-want +got):\n%s", file, a.Line, diff)
		}
	}
}

func TestCompileBackends(t *testing.T) {
	src := []byte("int main() { int a[2]; *a = 3; *(a + 1) = 4; return *a + *(a + 1); }")
	for _, backend := range []string{"x86", "qbe", "llvm"} {
		t.Run(backend, func(t *testing.T) {
			cfg := quietConfig()
			be.Err(t, cfg.SetBackend(backend, "linux", "amd64", ""), nil)
			ir, err := CompileIR("a.c", src, cfg)
			be.Err(t, err, nil)
			be.True(t, strings.Contains(ir, "main"))
		})
	}
}

func TestCompileX86(t *testing.T) {
	out, err := Compile("a.c", []byte("int main() { return 7; }"), quietConfig())
	be.Err(t, err, nil)
	be.True(t, strings.Contains(out.String(), ".globl main"))

	_, err = Compile("a.c", []byte("int main() { return x; }"), quietConfig())
	be.Err(t, err, "undeclared variable 'x'")
}

func TestExecuteReportsRuntimeErrors(t *testing.T) {
	_, err := Execute("a.c", []byte("int main() { int z; z = 0; return 5 / z; }"), quietConfig())
	be.Err(t, err, "emulation failed")

	_, err = Interpret("a.c", []byte("int main() { int z; z = 0; return 5 / z; }"), quietConfig())
	be.Err(t, err, "interpretation failed")
}
