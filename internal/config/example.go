// ABOUTME: Example config scaffolding written by the init command
// ABOUTME: Annotated YAML config plus a starter persona preset file

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const exampleConfig = `# parley configuration
agents:
  a:
    name: Agent_A
    url: http://localhost:11434
    model: llama3
    # timeout: 60s
    persona:
      # preset: scientist
      base: ""
      age: ""
      background: ""
      quirk: ""
    options:
      temperature: 0.8
  b:
    name: Agent_B
    url: http://localhost:11434
    model: llama3
    persona: {}
    options:
      temperature: 0.8

conversation:
  topic: the future of space exploration
  turns: 5
  delay: 1s
  max_chars: 0        # 0 disables reply truncation
  short_turn: false   # keep only the first complete sentence of each reply
  humanize: true
  greeting: ""        # defaults per humanize setting when empty

memory:
  enabled: true
  path: ${HOME}/.local/share/parley/parley.db

transcript:
  log_path: ""        # append a timestamped transcript log when set
  html_path: ""       # export the conversation as HTML on finish when set

logging:
  level: info
  format: text        # text or json
`

const examplePersonas = `# parley persona presets, referenced by agents.<x>.persona.preset
[scientist]
base = "A curious research scientist who loves explaining things"
background = "Spent a decade doing field work in Antarctica"
quirk = "Uses weather metaphors for everything"

[skeptic]
base = "A friendly skeptic who questions every claim"
age = "40s"
quirk = "Always asks for a source"
`

// WriteExample scaffolds a config file and a persona preset file next to it.
// Refuses to overwrite an existing config.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	personasPath := PersonasPath(path)
	if _, err := os.Stat(personasPath); err == nil {
		return nil
	}
	if err := os.WriteFile(personasPath, []byte(examplePersonas), 0o644); err != nil {
		return fmt.Errorf("writing persona preset file: %w", err)
	}
	return nil
}

// PersonasPath returns the persona preset file path that goes with a config
// file path.
func PersonasPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "personas.toml")
}
