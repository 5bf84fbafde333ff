package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/mcc/pkg/logging"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatSelfInit Feature = iota
	FeatCComments
	FeatSizeofType
	FeatCount
)

type Warning int

const (
	WarnShadow Warning = iota
	WarnSelfInit
	WarnImplicitDecl
	WarnUnreachableCode
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features      map[Feature]Info
	Warnings      map[Warning]Info
	FeatureMap    map[string]Feature
	WarningMap    map[string]Warning
	BackendName   string
	BackendTarget string
	// StackAlignment is the frame size granularity.
	StackAlignment int
	// FrameReserve is the number of bytes below the frame base set aside for
	// callee-saved registers before the first local.
	FrameReserve int
	MaxArgs      int
	EmuMemory    int
	EmuSteps     int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		BackendName:    "x86",
		StackAlignment: 16,
		MaxArgs:        6,
		EmuMemory:      1 << 20,
		EmuSteps:       10_000_000,
	}

	features := map[Feature]Info{
		FeatSelfInit:   {"self-init", true, "Allow a variable to appear in its own initializer."},
		FeatCComments:  {"c-comments", true, "Recognize '//' and '/* */' comments."},
		FeatSizeofType: {"sizeof-type", true, "Allow 'sizeof' applied to a parenthesised type name."},
	}

	warnings := map[Warning]Info{
		WarnShadow:          {"shadow", true, "Warn when a declaration hides an earlier one of the same name."},
		WarnSelfInit:        {"self-init", true, "Warn when a variable is used in its own initializer."},
		WarnImplicitDecl:    {"implicit-decl", false, "Warn about calls to functions that were not defined earlier."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements following a 'return' in the same block."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetBackend selects the code generator and configures its target.
func (c *Config) SetBackend(name, goos, goarch, target string) error {
	switch name {
	case "x86", "":
		c.BackendName = "x86"
		c.BackendTarget = "amd64_sysv"
	case "qbe":
		c.BackendName = "qbe"
		if target == "" {
			target = libqbe.DefaultTarget(goos, goarch)
		}
		c.BackendTarget = target
	case "llvm":
		c.BackendName = "llvm"
		if target == "" {
			target = "x86_64-unknown-linux-gnu"
		}
		c.BackendTarget = target
	default:
		return fmt.Errorf("unsupported backend '%s'. Supported: 'x86', 'qbe', 'llvm'", name)
	}

	if name == "qbe" {
		switch c.BackendTarget {
		case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		default:
			logging.Note("unrecognized or unsupported QBE target '%s'", c.BackendTarget)
		}
	}
	return nil
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag applies a single -W/-F style flag such as "-Wno-shadow".
func (c *Config) ApplyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	isWarning := true

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		isWarning = false
	default:
		name = trimmed
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	}
}
