package typeChecker_test

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/lexer"
	"github.com/xplshn/mcc/pkg/parser"
	"github.com/xplshn/mcc/pkg/token"
	"github.com/xplshn/mcc/pkg/typeChecker"
)

func quietConfig() *config.Config {
	cfg := config.NewConfig()
	for w := config.Warning(0); w < config.WarnCount; w++ {
		cfg.SetWarning(w, false)
	}
	return cfg
}

func parse(t *testing.T, src string) (*ast.Program, error) {
	t.Helper()
	cfg := quietConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	be.Err(t, err, nil)
	return parser.NewParser(toks, cfg).Parse()
}

// lastReturn finds the expression of the last return statement in main
func lastReturn(t *testing.T, prog *ast.Program) *ast.Node {
	t.Helper()
	var expr *ast.Node
	for _, fn := range prog.Funcs {
		if fn.Name != "main" {
			continue
		}
		ast.Walk(fn.Body, func(n *ast.Node) bool {
			if r, ok := n.Data.(ast.ReturnNode); ok {
				expr = r.Expr
			}
			return true
		})
	}
	be.True(t, expr != nil)
	return expr
}

func TestSizeofFolding(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"int", "int main() { return sizeof(int); }", 4},
		{"pointer type", "int main() { return sizeof(int*); }", 8},
		{"array type", "int main() { return sizeof(int[3]); }", 12},
		{"int variable", "int main() { int x; return sizeof x; }", 4},
		{"pointer variable", "int main() { int *p; return sizeof(p); }", 8},
		{"array variable", "int main() { int a[3]; return sizeof(a); }", 12},
		{"array element", "int main() { int *a[3]; return sizeof(*a); }", 8},
		{"pointer arithmetic", "int main() { int a[3]; return sizeof(a + 1); }", 8},
		{"nested", "int main() { return sizeof(sizeof(int)); }", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parse(t, tt.src)
			be.Err(t, err, nil)
			expr := lastReturn(t, prog)
			num, ok := expr.Data.(ast.NumberNode)
			be.True(t, ok)
			be.Equal(t, num.Value, tt.want)
			be.True(t, expr.Typ.IsInt())
		})
	}
}

func TestPointerArithmeticRewrite(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"int plus int", "int main() { int a; return a + 1; }", "(+:int a:int 1:int)"},
		{"pointer plus int", "int main() { int *p; return p + 2; }", "(+:int* p:int* (*:int 2:int 4:int))"},
		{"int plus pointer commutes", "int main() { int *p; return 2 + p; }", "(+:int* p:int* (*:int 2:int 4:int))"},
		{"pointer to pointer", "int main() { int **pp; return pp + 1; }", "(+:int** pp:int** (*:int 1:int 8:int))"},
		{"array decays", "int main() { int a[4]; return a + 1; }", "(+:int* a:int[4] (*:int 1:int 4:int))"},
		{"pointer minus int", "int main() { int *p; return p - 1; }", "(-:int* p:int* (*:int 1:int 4:int))"},
		{"pointer difference", "int main() { int *p; int *q; return q - p; }", "(/:int (-:int q:int* p:int*) 4:int)"},
		{"unary minus", "int main() { int a; return -a; }", "(-:int 0:int a:int)"},
		{"element access", "int main() { int a[3]; return *(a + 1); }", "(*:int (+:int* a:int[3] (*:int 1:int 4:int)))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parse(t, tt.src)
			be.Err(t, err, nil)
			be.Equal(t, ast.SexprTyped(lastReturn(t, prog)), tt.want)
		})
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	src := `
int sum(int *p, int n) {
	int s;
	s = 0;
	while (n > 0) { n = n - 1; s = s + *(p + n); }
	return s;
}
int main() {
	int a[3];
	int *q;
	q = a;
	*q = 1; *(q + 1) = 2; *(q + 2) = 3;
	return sum(a, 3) + (q + 2 - q) + (a + 2) - q;
}`
	prog, err := parse(t, src)
	be.Err(t, err, nil)

	tc := typeChecker.NewTypeChecker(quietConfig())
	be.Err(t, tc.Check(prog), nil)
	before := ast.Dump(prog)
	be.Err(t, tc.Check(prog), nil)
	be.Equal(t, ast.Dump(prog), before)

	// every expression is typed
	for _, fn := range prog.Funcs {
		ast.Walk(fn.Body, func(n *ast.Node) bool {
			if n.IsExpr() {
				be.True(t, n.Typ != nil)
			}
			return true
		})
	}
}

func TestAnnotateSkipsTypedNodes(t *testing.T) {
	tok := token.Token{Type: token.Plus}
	v := &ast.LocalVar{Name: "p", Type: ast.PointerTo(ast.TypeInt)}
	tc := typeChecker.NewTypeChecker(quietConfig())

	sum := ast.NewBinaryOp(tok, token.Plus, ast.NewVar(tok, v), ast.NewNumber(tok, 3))
	be.Err(t, tc.Annotate(sum), nil)
	be.Equal(t, ast.Sexpr(sum), "(+ p (* 3 4))")

	be.Err(t, tc.Annotate(sum), nil)
	be.Equal(t, ast.Sexpr(sum), "(+ p (* 3 4))")
}

func TestNewAddAndNewSub(t *testing.T) {
	tok := token.Token{Type: token.Minus, Line: 1, Column: 1}
	tc := typeChecker.NewTypeChecker(quietConfig())
	p := &ast.LocalVar{Name: "p", Type: ast.PointerTo(ast.TypeInt)}
	q := &ast.LocalVar{Name: "q", Type: ast.PointerTo(ast.PointerTo(ast.TypeInt))}

	n, err := tc.NewSub(tok, ast.NewVar(tok, p), ast.NewVar(tok, p))
	be.Err(t, err, nil)
	be.Equal(t, ast.Sexpr(n), "(/ (- p p) 4)")

	_, err = tc.NewSub(tok, ast.NewVar(tok, p), ast.NewVar(tok, q))
	be.Err(t, err, "invalid operands to binary -")

	_, err = tc.NewSub(tok, ast.NewNumber(tok, 1), ast.NewVar(tok, p))
	be.Err(t, err, "('int' and 'int*')")

	addTok := token.Token{Type: token.Plus, Line: 1, Column: 1}
	_, err = tc.NewAdd(addTok, ast.NewVar(addTok, p), ast.NewVar(addTok, p))
	be.Err(t, err, "1:1: type error: invalid operands to binary + ('int*' and 'int*')")
}

func TestTypeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"pointer plus pointer", "int main() { int *p; int *q; return p + q; }", "1:39: type error: invalid operands to binary + ('int*' and 'int*')"},
		{"pointer times int", "int main() { int *p; return p * 2; }", "invalid operands to binary *"},
		{"deref int", "int main() { int x; return *x; }", "invalid pointer dereference of type 'int'"},
		{"assign to rvalue", "int main() { int x; x + 1 = 2; return x; }", "not an lvalue"},
		{"assign to array", "int main() { int a[2]; int b[2]; a = b; return 0; }", "not an lvalue"},
		{"address of rvalue", "int main() { return &(1 + 2); }", "cannot take the address of an rvalue"},
		{"mismatched pointer difference", "int main() { int *p; int **q; return p - q; }", "invalid operands to binary -"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.src)
			be.Err(t, err, tt.want)
		})
	}
}

func TestAddressOfArrayIsElementPointer(t *testing.T) {
	prog, err := parse(t, "int main() { int a[3]; int *p; p = &a; return *p; }")
	be.Err(t, err, nil)
	var assign *ast.Node
	ast.Walk(prog.Funcs[0].Body, func(n *ast.Node) bool {
		if n.Type == ast.Assign {
			assign = n
		}
		return true
	})
	rhs := assign.Data.(ast.AssignNode).Rhs
	be.Equal(t, rhs.Typ.String(), "int*")
}

func TestFuncCallTypes(t *testing.T) {
	prog, err := parse(t, "int *id(int *p) { return p; } int main() { int x; return *id(&x) + undeclared(1); }")
	be.Err(t, err, nil)
	be.Equal(t, ast.SexprTyped(lastReturn(t, prog)),
		"(+:int (*:int (call id:int* (&:int* x:int))) (call undeclared:int 1:int))")
}
