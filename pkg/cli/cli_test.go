package cli

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestParse(t *testing.T) {
	var out, backend string
	var run bool
	var defs []string

	fs := NewFlagSet("mcc")
	fs.String(&out, "output", "o", "a.s", "Place the output into <file>", "file")
	fs.String(&backend, "backend", "", "x86", "Code generator", "name")
	fs.Bool(&run, "run", "", false, "Run the program")
	fs.List(&defs, "define", "D", nil, "Define a name", "name")

	err := fs.Parse([]string{"-o", "out.s", "--backend=qbe", "--run", "-Dfoo", "-D", "bar", "main.c", "--", "-notaflag"})
	be.Err(t, err, nil)
	be.Equal(t, out, "out.s")
	be.Equal(t, backend, "qbe")
	be.True(t, run)
	be.Equal(t, defs, []string{"foo", "bar"})
	be.Equal(t, fs.Args(), []string{"main.c", "-notaflag"})
}

func TestParseShorthandValue(t *testing.T) {
	var out string
	fs := NewFlagSet("mcc")
	fs.String(&out, "output", "o", "", "Output file", "file")
	be.Err(t, fs.Parse([]string{"-oprog.s"}), nil)
	be.Equal(t, out, "prog.s")
}

func TestParseBoolValue(t *testing.T) {
	var run bool
	fs := NewFlagSet("mcc")
	fs.Bool(&run, "run", "r", true, "Run")
	be.Err(t, fs.Parse([]string{"--run=false"}), nil)
	be.True(t, !run)
	be.Err(t, fs.Parse([]string{"-r"}), nil)
	be.True(t, run)
	be.Err(t, fs.Parse([]string{"--run=maybe"}), "invalid boolean value 'maybe'")
}

func TestParseErrors(t *testing.T) {
	var out string
	fs := NewFlagSet("mcc")
	fs.String(&out, "output", "o", "", "Output file", "file")

	be.Err(t, fs.Parse([]string{"--verbose"}), "unknown flag: --verbose")
	be.Err(t, fs.Parse([]string{"-x"}), "unknown flag: -x")
	be.Err(t, fs.Parse([]string{"--output"}), "flag needs an argument: --output")
}

func TestFlagGroup(t *testing.T) {
	on, off := new(bool), new(bool)
	fs := NewFlagSet("mcc")
	fs.AddFlagGroup("Warning Flags", "Enable or disable warnings", "warning", "Available Warnings:", []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Warn about shadowing", Enabled: on, Disabled: off, Default: true},
	})
	be.Err(t, fs.Parse([]string{"-Wno-shadow"}), nil)
	be.True(t, !*on)
	be.True(t, *off)
}

func TestRedefinitionPanics(t *testing.T) {
	var a, b string
	fs := NewFlagSet("mcc")
	fs.String(&a, "output", "o", "", "", "")
	defer func() {
		r := recover()
		be.Equal(t, r, any("flag redefined: output"))
	}()
	fs.String(&b, "output", "", "", "", "")
}

func TestWriteHelp(t *testing.T) {
	var out string
	var run bool
	app := NewApp("mcc")
	app.Synopsis = "[options] <input.c>"
	app.Description = "A compiler for a small subset of C."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/mcc>"
	app.FlagSet.String(&out, "output", "o", "a.s", "Place the output into <file>", "file")
	app.FlagSet.Bool(&run, "run", "", false, "Run the program in the emulator after compiling it")
	app.FlagSet.AddFlagGroup("Warning Flags", "Enable or disable warnings", "warning", "Available Warnings:", []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Warn about shadowing", Enabled: new(bool), Disabled: new(bool), Default: true},
		{Name: "implicit-decl", Prefix: "W", Usage: "Warn about implicit declarations", Enabled: new(bool), Disabled: new(bool)},
	})

	var sb strings.Builder
	app.WriteHelp(&sb, 100)
	help := sb.String()

	for _, want := range []string{
		"Copyright: xplshn and contributors",
		"mcc [options] <input.c>",
		"-o, --output <file>",
		"|a.s|",
		"--run",
		"Warning Flags",
		"-W<warning>",
		"-Wno-<warning>",
		"Available Warnings:",
	} {
		be.True(t, strings.Contains(help, want))
	}
	// group members are listed under their group, not as options
	be.True(t, !strings.Contains(help, "--Wshadow"))
	lines := strings.Split(help, "\n")
	var shadow, implicit string
	for _, l := range lines {
		if strings.Contains(l, "Warn about shadowing") {
			shadow = l
		}
		if strings.Contains(l, "Warn about implicit") {
			implicit = l
		}
	}
	be.True(t, strings.HasSuffix(shadow, "|x|"))
	be.True(t, strings.HasSuffix(implicit, "|-|"))
}

func TestWrapText(t *testing.T) {
	be.Equal(t, wrapText("one two three four", 9), []string{"one two", "three", "four"})
	be.Equal(t, len(wrapText("", 10)), 0)
}
