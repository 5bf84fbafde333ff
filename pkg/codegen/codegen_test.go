package codegen_test

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/codegen"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/emu"
	"github.com/xplshn/mcc/pkg/frame"
	"github.com/xplshn/mcc/pkg/lexer"
	"github.com/xplshn/mcc/pkg/parser"
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	for w := config.Warning(0); w < config.WarnCount; w++ {
		cfg.SetWarning(w, false)
	}
	return cfg
}

func frontend(t *testing.T, cfg *config.Config, src string) *ast.Program {
	t.Helper()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	be.Err(t, err, nil)
	prog, err := parser.NewParser(toks, cfg).Parse()
	be.Err(t, err, nil)
	frame.Assign(prog, cfg)
	return prog
}

func generate(t *testing.T, backend string, src string) string {
	t.Helper()
	cfg := testConfig()
	be.Err(t, cfg.SetBackend(backend, "linux", "amd64", ""), nil)
	b, err := codegen.SelectBackend(backend)
	be.Err(t, err, nil)
	out, err := b.GenerateIR(frontend(t, cfg, src), cfg)
	be.Err(t, err, nil)
	return out
}

// assertInOrder checks that every line of want is a substring of some line
// of got, in order
func assertInOrder(t *testing.T, got, want string) {
	t.Helper()
	lines := strings.Split(got, "\n")
	pos := 0
	for _, w := range strings.Split(want, "\n") {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		for pos < len(lines) && !strings.Contains(lines[pos], w) {
			pos++
		}
		if pos == len(lines) {
			t.Fatalf("missing %q in output:\n%s", w, got)
		}
		pos++
	}
}

func TestSelectBackend(t *testing.T) {
	for _, name := range codegen.Backends {
		b, err := codegen.SelectBackend(name)
		be.Err(t, err, nil)
		be.True(t, b != nil)
	}
	_, err := codegen.SelectBackend("arm")
	be.Err(t, err, "unsupported backend 'arm'")
}

func TestX86FunctionShape(t *testing.T) {
	asm := generate(t, "x86", "int main() { int a; a = 3; return a; }")
	assertInOrder(t, asm, `
.intel_syntax noprefix
.globl main
main:
push rbp
mov rbp, rsp
sub rsp, 16
lea rax, [rbp-4]
push rax
push 3
pop rdi
pop rax
mov dword ptr [rax], edi
push rdi
add rsp, 8
lea rax, [rbp-4]
push rax
pop rax
movsxd rax, dword ptr [rax]
push rax
pop rax
jmp .L.return.main
mov rax, 0
.L.return.main:
mov rsp, rbp
pop rbp
ret`)
}

func TestX86Parameters(t *testing.T) {
	asm := generate(t, "x86", "int f(int a, int *p) { return a; } int main() { int x; return f(1, &x); }")
	assertInOrder(t, asm, `
f:
sub rsp, 16
mov dword ptr [rbp-4], edi
mov [rbp-16], rsi
main:
pop rsi
pop rdi
mov rax, 0
call f
movsxd rax, eax`)
}

func TestX86PointerLoadsAreEightBytes(t *testing.T) {
	asm := generate(t, "x86", "int main() { int x; int *p; p = &x; *p = 5; return *p; }")
	assertInOrder(t, asm, `
lea rax, [rbp-16]
mov rax, [rax]
mov dword ptr [rax], edi`)
}

func TestX86Comparisons(t *testing.T) {
	asm := generate(t, "x86", "int main() { return (1 == 2) + (1 != 2) + (1 < 2) + (1 <= 2) + (2 > 1) + (2 >= 1); }")
	for _, cc := range []string{"sete al", "setne al", "setl al", "setle al"} {
		be.True(t, strings.Contains(asm, cc))
	}
	be.True(t, !strings.Contains(asm, "setg"))
	be.Equal(t, strings.Count(asm, "movzb rax, al"), 6)
}

func TestX86ControlFlowLabels(t *testing.T) {
	asm := generate(t, "x86", `int main() {
	int i;
	for (i = 0; i < 3; i = i + 1) { if (i == 1) i = i + 1; else i = i; }
	while (i) i = i - 1;
	return i;
}`)
	assertInOrder(t, asm, `
.L.begin.1:
cmp rax, 0
je .L.end.1
je .L.else.2
jmp .L.end.2
.L.else.2:
.L.end.2:
jmp .L.begin.1
.L.end.1:
.L.begin.3:
je .L.end.3
jmp .L.begin.3
.L.end.3:`)
}

func TestX86DivisionAndRemainder(t *testing.T) {
	asm := generate(t, "x86", "int main() { return 7 / 2 + 7 % 2; }")
	assertInOrder(t, asm, `
cqo
idiv rdi
cqo
idiv rdi
mov rax, rdx`)
}

func TestX86CallAlignment(t *testing.T) {
	// one value is pending on the stack when g is called
	asm := generate(t, "x86", "int g() { return 1; } int main() { return 1 + g(); }")
	assertInOrder(t, asm, `
push 1
mov rax, 0
sub rsp, 8
call g
add rsp, 8`)
}

func TestX86LargeConstant(t *testing.T) {
	asm := generate(t, "x86", "int main() { return 5000000000 - 4999999999; }")
	assertInOrder(t, asm, `
mov rax, 5000000000
push rax`)
}

func TestX86StackStaysBalanced(t *testing.T) {
	src := `
int fib(int n) { if (n <= 1) return n; return fib(n - 1) + fib(n - 2); }
int main() { int i; int s; s = 0; for (i = 0; i < 10; i = i + 1) s = s + fib(i); return s; }`
	asm := generate(t, "x86", src)
	got, err := emu.Run(asm, 1<<16, 1_000_000)
	be.Err(t, err, nil)
	be.Equal(t, got, int64(88))
}

func TestQBEIR(t *testing.T) {
	ir := generate(t, "qbe", "int add(int a, int b) { return a + b; } int main() { int x[2]; *x = 1; return add(*x, 2) < 4; }")
	assertInOrder(t, ir, `
export function w $add(w %p0, w %p1) {
@start
%fp =l alloc16 16
storew %p0, %.1
storew %p1, %.2
loadsw
add
ret
}
export function w $main() {
%fp =l alloc16 16
storew 1, %.1`)
	be.True(t, strings.Contains(ir, "=w call $add(w %"))
	be.True(t, strings.Contains(ir, "=l extsw"))
	be.True(t, strings.Contains(ir, "=w csltl"))
	be.True(t, strings.Contains(ir, "=l extuw"))
}

func TestQBEControlFlow(t *testing.T) {
	ir := generate(t, "qbe", "int main() { int i; i = 0; while (i < 5) i = i + 1; if (i) return i; return 0; }")
	assertInOrder(t, ir, `
jmp @begin.1
@begin.1
=w cnel
jnz
@body.2
jmp @begin.1
@end.3
jnz
@then.4
ret
@else.5
@end.6
ret 0
}`)
	be.True(t, !strings.Contains(ir, "@dead"))
}

func TestQBEDeadBlockAfterReturn(t *testing.T) {
	ir := generate(t, "qbe", "int main() { return 1; return 2; }")
	assertInOrder(t, ir, `
ret 1
@dead.1
ret 2
}`)
}

func TestQBEFallOffEndReturnsZero(t *testing.T) {
	ir := generate(t, "qbe", "int main() { int a; a = 1; }")
	assertInOrder(t, ir, `
storew 1,
ret 0
}`)
}

func TestLLVMIR(t *testing.T) {
	ir := generate(t, "llvm", "int twice(int n) { return n + n; } int main() { int *p; int v; p = &v; *p = twice(21); return ext(v); }")
	assertInOrder(t, ir, `
target triple = "x86_64-unknown-linux-gnu"
define i64 @twice(i64 %arg.n) {
entry:
alloca [16 x i8], align 16
ptrtoint
inttoptr
trunc i64 %arg.n to i32
define i64 @main() {
call i64 @twice(i64 21)
call i64 (...) @ext(`)
	be.True(t, strings.Contains(ir, "declare i64 @ext(...)"))
	be.True(t, strings.Contains(ir, "sext i32"))
	be.True(t, strings.Contains(ir, "load i64, i64*"))
}

func TestLLVMControlFlow(t *testing.T) {
	ir := generate(t, "llvm", "int main() { int i; for (i = 0; i < 3; i = i + 1) {} if (i == 3) return 1; else return 2; }")
	for _, want := range []string{
		"br label %begin.1",
		"icmp slt i64",
		"begin.1:",
		"body.2:",
		"end.3:",
		"then.4:",
		"else.5:",
		"end.6:",
		"ret i64 0",
	} {
		be.True(t, strings.Contains(ir, want))
	}
}

func TestBackendsAgreeOnFrameSize(t *testing.T) {
	src := "int main() { int a[5]; int *p; int b; return 0; }"
	asm := generate(t, "x86", src)
	qbe := generate(t, "qbe", src)
	llvm := generate(t, "llvm", src)
	be.True(t, strings.Contains(asm, "sub rsp, 48"))
	be.True(t, strings.Contains(qbe, "alloc16 48"))
	be.True(t, strings.Contains(llvm, "[48 x i8]"))
}
