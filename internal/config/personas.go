// ABOUTME: Persona preset loading from TOML files
// ABOUTME: Named presets resolved into agent persona fields

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// personaPreset is one named entry in a preset file.
type personaPreset struct {
	Base       string `toml:"base"`
	Age        string `toml:"age"`
	Background string `toml:"background"`
	Quirk      string `toml:"quirk"`
}

// LoadPersonas reads a TOML preset file and resolves any preset references
// in the config's agent personas. Explicit persona fields in the config win
// over the preset's. A missing file is only an error when a preset is
// actually referenced.
func LoadPersonas(path string, cfg *Config) error {
	needed := cfg.Agents.A.Persona.Preset != "" || cfg.Agents.B.Persona.Preset != ""

	var presets map[string]personaPreset
	if _, err := toml.DecodeFile(path, &presets); err != nil {
		if os.IsNotExist(err) {
			if needed {
				return fmt.Errorf("persona preset file %s not found", path)
			}
			return nil
		}
		return fmt.Errorf("parsing persona presets: %w", err)
	}

	if err := applyPreset(&cfg.Agents.A.Persona, presets, "agents.a"); err != nil {
		return err
	}
	return applyPreset(&cfg.Agents.B.Persona, presets, "agents.b")
}

// applyPreset fills empty persona fields from the named preset.
func applyPreset(p *PersonaConfig, presets map[string]personaPreset, section string) error {
	if p.Preset == "" {
		return nil
	}
	preset, ok := presets[p.Preset]
	if !ok {
		return fmt.Errorf("%s.persona.preset %q not found in preset file", section, p.Preset)
	}
	if p.Base == "" {
		p.Base = preset.Base
	}
	if p.Age == "" {
		p.Age = preset.Age
	}
	if p.Background == "" {
		p.Background = preset.Background
	}
	if p.Quirk == "" {
		p.Quirk = preset.Quirk
	}
	return nil
}
