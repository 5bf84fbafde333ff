// Package casebook extracts compiler test cases from Markdown documents.
//
// A case starts at a heading "Test: <name>" and is followed by one ```c
// fence holding the program and one or more assertion fences:
//
//	result         the value main returns
//	compile-error  the expected diagnostic, "line:col: kind: message"
//	asm            lines that must appear, in order, in the x86 output
//	ast            the S-expression of every function body, one per line
package casebook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const InputFence = "c"

// AssertionType is the language tag of an assertion fence
type AssertionType string

const (
	AssertResult       AssertionType = "result"
	AssertCompileError AssertionType = "compile-error"
	AssertAsm          AssertionType = "asm"
	AssertAST          AssertionType = "ast"
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
}

type TestCase struct {
	Name       string
	Source     string
	Line       int
	Assertions []Assertion
}

func isAssertionFence(language string) bool {
	switch AssertionType(language) {
	case AssertResult, AssertCompileError, AssertAsm, AssertAST:
		return true
	}
	return false
}

// Extract parses a Markdown document and returns its test cases in order
func Extract(markdown []byte) ([]TestCase, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []TestCase
	var current *TestCase

	flush := func() error {
		if current == nil {
			return nil
		}
		if current.Source == "" {
			return fmt.Errorf("line %d: test '%s' has no c fence", current.Line, current.Name)
		}
		if len(current.Assertions) == 0 {
			return fmt.Errorf("line %d: test '%s' has no assertion fences", current.Line, current.Name)
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, markdown)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{Name: strings.TrimPrefix(heading, "Test: "), Line: lineOf(n, markdown)}

		case *ast.FencedCodeBlock:
			language := string(n.Language(markdown))
			lineNo := lineOf(n, markdown)
			if language == "" {
				return ast.WalkContinue, nil
			}
			if language != InputFence && !isAssertionFence(language) {
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s'", lineNo, language)
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of a test case", lineNo, language)
			}

			content := strings.TrimRight(fenceContent(n, markdown), "\n")
			if language == InputFence {
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple c fences in test '%s'", lineNo, current.Name)
				}
				current.Source = content
				return ast.WalkContinue, nil
			}
			current.Assertions = append(current.Assertions, Assertion{
				Type:    AssertionType(language),
				Content: content,
				Line:    lineNo,
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line of a node's first content line
func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}

// ContainsInOrder reports whether every non-blank line of want occurs in got
// in the same order, comparing trimmed lines. It returns the first missing
// line otherwise.
func ContainsInOrder(got, want string) (missing string, ok bool) {
	gotLines := strings.Split(got, "\n")
	pos := 0
	for _, w := range strings.Split(want, "\n") {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		found := false
		for pos < len(gotLines) {
			line := strings.TrimSpace(gotLines[pos])
			pos++
			if line == w {
				found = true
				break
			}
		}
		if !found {
			return w, false
		}
	}
	return "", true
}
