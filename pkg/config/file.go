package config

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

type tomlFile struct {
	Target   tomlTarget      `toml:"target"`
	Emulator tomlEmulator    `toml:"emulator"`
	Warnings map[string]bool `toml:"warnings"`
	Features map[string]bool `toml:"features"`
}

type tomlTarget struct {
	Backend        string `toml:"backend"`
	Name           string `toml:"name"`
	StackAlignment int    `toml:"stack_alignment"`
	FrameReserve   int    `toml:"frame_reserve"`
}

type tomlEmulator struct {
	Memory int `toml:"memory"`
	Steps  int `toml:"steps"`
}

// LoadFile overlays the settings of a TOML configuration file. Keys that
// are absent keep their current value. Backend selection is returned so the
// caller can apply it together with the host platform.
func (c *Config) LoadFile(path string) (backend, target string, err error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to load config file '%s': %w", path, err)
	}

	var f tomlFile
	if err := tree.Unmarshal(&f); err != nil {
		return "", "", fmt.Errorf("malformed config file '%s': %w", path, err)
	}

	if f.Target.StackAlignment != 0 {
		a := f.Target.StackAlignment
		// calls are aligned by push parity, which needs 16-byte frames
		if a < 16 || a&(a-1) != 0 {
			return "", "", fmt.Errorf("%s: stack_alignment must be a power of two >= 16, got %d", path, a)
		}
		c.StackAlignment = a
	}
	if f.Target.FrameReserve < 0 {
		return "", "", fmt.Errorf("%s: frame_reserve must not be negative", path)
	}
	if f.Target.FrameReserve != 0 {
		c.FrameReserve = f.Target.FrameReserve
	}
	if f.Emulator.Memory != 0 {
		c.EmuMemory = f.Emulator.Memory
	}
	if f.Emulator.Steps != 0 {
		c.EmuSteps = f.Emulator.Steps
	}

	for name, on := range f.Warnings {
		w, ok := c.WarningMap[name]
		if !ok {
			return "", "", fmt.Errorf("%s: unknown warning '%s'", path, name)
		}
		c.SetWarning(w, on)
	}
	for name, on := range f.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return "", "", fmt.Errorf("%s: unknown feature '%s'", path, name)
		}
		c.SetFeature(ft, on)
	}
	return f.Target.Backend, f.Target.Name, nil
}
