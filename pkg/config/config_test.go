package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/mcc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	be.Equal(t, cfg.BackendName, "x86")
	be.Equal(t, cfg.StackAlignment, 16)
	be.Equal(t, cfg.FrameReserve, 0)
	be.Equal(t, cfg.MaxArgs, 6)
	be.True(t, cfg.IsFeatureEnabled(FeatSelfInit))
	be.True(t, cfg.IsFeatureEnabled(FeatCComments))
	be.True(t, cfg.IsWarningEnabled(WarnShadow))
	be.True(t, !cfg.IsWarningEnabled(WarnImplicitDecl))
	be.Equal(t, len(cfg.WarningMap), int(WarnCount))
	be.Equal(t, len(cfg.FeatureMap), int(FeatCount))
}

func TestApplyFlag(t *testing.T) {
	tests := []struct {
		flag    string
		check   func(*Config) bool
		applied bool
	}{
		{"-Wno-shadow", func(c *Config) bool { return c.IsWarningEnabled(WarnShadow) }, false},
		{"-Wimplicit-decl", func(c *Config) bool { return c.IsWarningEnabled(WarnImplicitDecl) }, true},
		{"-Fno-c-comments", func(c *Config) bool { return c.IsFeatureEnabled(FeatCComments) }, false},
		{"-Fsizeof-type", func(c *Config) bool { return c.IsFeatureEnabled(FeatSizeofType) }, true},
		{"-Wno-self-init", func(c *Config) bool { return c.IsWarningEnabled(WarnSelfInit) }, false},
		{"-Fno-self-init", func(c *Config) bool { return c.IsFeatureEnabled(FeatSelfInit) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cfg := NewConfig()
			cfg.ApplyFlag(tt.flag)
			be.Equal(t, tt.check(cfg), tt.applied)
		})
	}
}

func TestApplyFlagAll(t *testing.T) {
	cfg := NewConfig()
	cfg.ApplyFlag("-Wall")
	for w := Warning(0); w < WarnCount; w++ {
		be.True(t, cfg.IsWarningEnabled(w))
	}
	cfg.ApplyFlag("-Wno-all")
	for w := Warning(0); w < WarnCount; w++ {
		be.True(t, !cfg.IsWarningEnabled(w))
	}
	// features are not touched by -Wall
	be.True(t, cfg.IsFeatureEnabled(FeatSelfInit))

	// unknown names are ignored
	cfg.ApplyFlag("-Wbogus")
	cfg.ApplyFlag("-Fno-bogus")
}

func TestSetBackend(t *testing.T) {
	cfg := NewConfig()
	be.Err(t, cfg.SetBackend("qbe", "linux", "amd64", ""), nil)
	be.Equal(t, cfg.BackendName, "qbe")
	be.Equal(t, cfg.BackendTarget, "amd64_sysv")

	be.Err(t, cfg.SetBackend("llvm", "linux", "amd64", ""), nil)
	be.Equal(t, cfg.BackendTarget, "x86_64-unknown-linux-gnu")

	be.Err(t, cfg.SetBackend("llvm", "linux", "amd64", "x86_64-pc-linux-musl"), nil)
	be.Equal(t, cfg.BackendTarget, "x86_64-pc-linux-musl")

	be.Err(t, cfg.SetBackend("", "linux", "amd64", ""), nil)
	be.Equal(t, cfg.BackendName, "x86")

	be.Err(t, cfg.SetBackend("wasm", "linux", "amd64", ""), "unsupported backend 'wasm'")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcc.toml")
	be.Err(t, os.WriteFile(path, []byte(body), 0o644), nil)
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[target]
backend = "qbe"
name = "arm64"
stack_alignment = 32
frame_reserve = 8

[emulator]
memory = 65536
steps = 500

[warnings]
shadow = false
implicit-decl = true

[features]
self-init = false
`)
	cfg := NewConfig()
	backend, target, err := cfg.LoadFile(path)
	be.Err(t, err, nil)
	be.Equal(t, backend, "qbe")
	be.Equal(t, target, "arm64")
	be.Equal(t, cfg.StackAlignment, 32)
	be.Equal(t, cfg.FrameReserve, 8)
	be.Equal(t, cfg.EmuMemory, 65536)
	be.Equal(t, cfg.EmuSteps, 500)
	be.True(t, !cfg.IsWarningEnabled(WarnShadow))
	be.True(t, cfg.IsWarningEnabled(WarnImplicitDecl))
	be.True(t, !cfg.IsFeatureEnabled(FeatSelfInit))
	// absent keys keep their defaults
	be.True(t, cfg.IsWarningEnabled(WarnUnreachableCode))
	be.Equal(t, cfg.MaxArgs, 6)
}

func TestLoadFileEmpty(t *testing.T) {
	cfg := NewConfig()
	backend, target, err := cfg.LoadFile(writeConfig(t, ""))
	be.Err(t, err, nil)
	be.Equal(t, backend, "")
	be.Equal(t, target, "")
	be.Equal(t, cfg.StackAlignment, 16)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"alignment not a power of two", "[target]\nstack_alignment = 24\n", "stack_alignment must be a power of two >= 16, got 24"},
		{"alignment too small", "[target]\nstack_alignment = 4\n", "stack_alignment must be a power of two >= 16, got 4"},
		{"eight byte frames misalign calls", "[target]\nstack_alignment = 8\n", "stack_alignment must be a power of two >= 16, got 8"},
		{"negative reserve", "[target]\nframe_reserve = -8\n", "frame_reserve must not be negative"},
		{"unknown warning", "[warnings]\nloud = true\n", "unknown warning 'loud'"},
		{"unknown feature", "[features]\ngoto = true\n", "unknown feature 'goto'"},
		{"malformed", "[target\n", "failed to load config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewConfig().LoadFile(writeConfig(t, tt.body))
			be.Err(t, err, tt.want)
		})
	}

	_, _, err := NewConfig().LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	be.Err(t, err, "failed to load config file")
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("mcc")
	warnings, features := cfg.SetupFlagGroups(fs)
	be.Equal(t, len(warnings), int(WarnCount))
	be.Equal(t, len(features), int(FeatCount))
	be.True(t, fs.Lookup("Wshadow") != nil)
	be.True(t, fs.Lookup("Wno-shadow") != nil)
	be.True(t, fs.Lookup("Fno-self-init") != nil)

	err := fs.Parse([]string{"-Wno-shadow", "-Wimplicit-decl", "-Fno-sizeof-type", "main.c"})
	be.Err(t, err, nil)
	be.Equal(t, fs.Args(), []string{"main.c"})

	cfg.ApplyFlagGroups(warnings, features)
	be.True(t, !cfg.IsWarningEnabled(WarnShadow))
	be.True(t, cfg.IsWarningEnabled(WarnImplicitDecl))
	be.True(t, !cfg.IsFeatureEnabled(FeatSizeofType))
	// flags that were not given leave the configuration alone
	be.True(t, cfg.IsWarningEnabled(WarnUnreachableCode))
	be.True(t, cfg.IsFeatureEnabled(FeatCComments))
}
