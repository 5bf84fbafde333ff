package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/mcc/pkg/config"
	"github.com/xplshn/mcc/pkg/token"
	"golang.org/x/term"
)

// ErrorKind classifies a CompileError.
type ErrorKind int

const (
	LexError ErrorKind = iota
	SyntaxError
	TypeError
)

func (k ErrorKind) String() string {
	switch k {
	case LexError:
		return "lex error"
	case SyntaxError:
		return "syntax error"
	case TypeError:
		return "type error"
	}
	return "error"
}

// CompileError is a fatal diagnostic tied to the token that caused it.
type CompileError struct {
	Kind ErrorKind
	Tok  token.Token
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", e.Tok.Line, e.Tok.Column, e.Kind, e.Msg)
}

// Errorf builds a CompileError.
func Errorf(kind ErrorKind, tok token.Token, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// Bailout recovers a *CompileError raised with panic and stores it in errp.
// Any other panic is re-raised.
func Bailout(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*CompileError); ok {
		*errp = ce
		return
	}
	panic(r)
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var (
	sourceFiles []SourceFileRecord
	output      io.Writer = os.Stderr
)

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// SetOutput redirects diagnostics, os.Stderr by default.
func SetOutput(w io.Writer) {
	output = w
}

func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

func useColor(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

func paint(w io.Writer, code, s string) string {
	if !useColor(w) {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), paint(w, "32", caret))
}

// Report prints err with its source position. Errors that are not
// CompileErrors are printed without a location.
func Report(w io.Writer, err error) {
	var ce *CompileError
	if !errors.As(err, &ce) {
		fmt.Fprintf(w, "mcc: %s %v\n", paint(w, "31", "error:"), err)
		return
	}
	filename, line, col := findFileAndLine(ce.Tok)
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", filename, line, col, paint(w, "31", ce.Kind.String()+":"), ce.Msg)
	printErrorLine(w, ce.Tok)
}

// Fatal reports err to the diagnostics writer and exits the program
func Fatal(err error) {
	Report(output, err)
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(output, "%s:%d:%d: %s ", filename, line, col, paint(output, "33", "warning:"))
	fmt.Fprintf(output, format, args...)
	fmt.Fprintf(output, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(output, tok)
}
