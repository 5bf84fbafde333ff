package ast

import "fmt"

// TypeKind defines the kind of a Type
type TypeKind int

const (
	TYPE_INT TypeKind = iota
	TYPE_POINTER
	TYPE_ARRAY
)

// Type is one of int, pointer-to Base, or array of Len Base elements
type Type struct {
	Kind TypeKind
	Base *Type
	Len  int
}

var TypeInt = &Type{Kind: TYPE_INT}

func PointerTo(base *Type) *Type {
	return &Type{Kind: TYPE_POINTER, Base: base}
}

func ArrayOf(base *Type, length int) *Type {
	return &Type{Kind: TYPE_ARRAY, Base: base, Len: length}
}

// Size returns the size of t in bytes
func (t *Type) Size() int {
	switch t.Kind {
	case TYPE_INT:
		return 4
	case TYPE_POINTER:
		return 8
	case TYPE_ARRAY:
		return t.Len * t.Base.Size()
	}
	return 0
}

func (t *Type) Align() int {
	if t.Kind == TYPE_ARRAY {
		return t.Base.Align()
	}
	return t.Size()
}

// HasBase reports whether t is a pointer or an array and so takes part in
// scaled arithmetic
func (t *Type) HasBase() bool {
	return t != nil && t.Base != nil
}

func (t *Type) IsInt() bool { return t != nil && t.Kind == TYPE_INT }

// Equal compares two types structurally
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.Len != o.Len {
		return false
	}
	if t.Base == nil {
		return o.Base == nil
	}
	return t.Base.Equal(o.Base)
}

// Decay turns an array type into a pointer to its element type
func (t *Type) Decay() *Type {
	if t.Kind == TYPE_ARRAY {
		return PointerTo(t.Base)
	}
	return t
}

func (t *Type) String() string { return TypeToString(t) }

// TypeToString renders a type the way it would be written in a declaration
// with the name left out, e.g. "int*[3]"
func TypeToString(t *Type) string {
	if t == nil {
		return "<untyped>"
	}
	switch t.Kind {
	case TYPE_INT:
		return "int"
	case TYPE_POINTER:
		return TypeToString(t.Base) + "*"
	case TYPE_ARRAY:
		return fmt.Sprintf("%s[%d]", TypeToString(t.Base), t.Len)
	}
	return "<unknown>"
}
