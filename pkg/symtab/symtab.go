// Package symtab tracks local variables per function definition and the
// signatures of every function seen so far.
package symtab

import (
	"github.com/xplshn/mcc/pkg/ast"
	"github.com/xplshn/mcc/pkg/token"
)

type Table struct {
	scopes []*ast.Function
	funcs  map[string]*ast.Signature
}

func New() *Table {
	return &Table{funcs: make(map[string]*ast.Signature)}
}

// PushFunction makes fn the owner of every local declared until the matching
// PopFunction.
func (t *Table) PushFunction(fn *ast.Function) {
	t.scopes = append(t.scopes, fn)
}

func (t *Table) PopFunction() *ast.Function {
	if len(t.scopes) == 0 {
		return nil
	}
	fn := t.scopes[len(t.scopes)-1]
	t.scopes = t.scopes[:len(t.scopes)-1]
	return fn
}

func (t *Table) Current() *ast.Function {
	if len(t.scopes) == 0 {
		return nil
	}
	return t.scopes[len(t.scopes)-1]
}

// Declare adds a local to the current function and returns it together with
// the declaration it hides, if any.
func (t *Table) Declare(name string, typ *ast.Type, tok token.Token) (v, hidden *ast.LocalVar) {
	fn := t.Current()
	if fn == nil {
		return nil, nil
	}
	hidden = t.Lookup(name)
	v = &ast.LocalVar{Name: name, Type: typ, Tok: tok}
	fn.Locals = append([]*ast.LocalVar{v}, fn.Locals...)
	return v, hidden
}

// DeclareParam declares a local and records it as the next parameter
func (t *Table) DeclareParam(name string, typ *ast.Type, tok token.Token) (v, hidden *ast.LocalVar) {
	v, hidden = t.Declare(name, typ, tok)
	if v != nil {
		fn := t.Current()
		fn.Params = append(fn.Params, v)
	}
	return v, hidden
}

// Lookup returns the most recent declaration of name in the current function
func (t *Table) Lookup(name string) *ast.LocalVar {
	fn := t.Current()
	if fn == nil {
		return nil
	}
	for _, v := range fn.Locals {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// DefineFunc registers a function definition. It returns the earlier
// definition when name is already defined; implicit signatures are replaced.
func (t *Table) DefineFunc(sig *ast.Signature) (prev *ast.Signature) {
	if old, ok := t.funcs[sig.Name]; ok && !old.Implicit {
		return old
	}
	t.funcs[sig.Name] = sig
	return nil
}

func (t *Table) LookupFunc(name string) *ast.Signature {
	return t.funcs[name]
}

// Implicit registers name as a function returning int with unknown
// parameters, as if it had been called without a prior definition.
func (t *Table) Implicit(name string, tok token.Token) *ast.Signature {
	if sig, ok := t.funcs[name]; ok {
		return sig
	}
	sig := &ast.Signature{Name: name, ReturnType: ast.TypeInt, Implicit: true, Tok: tok}
	t.funcs[name] = sig
	return sig
}
