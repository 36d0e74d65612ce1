// ABOUTME: Package documentation for the config package
// ABOUTME: Describes YAML loading, env expansion, and persona presets

// Package config loads and validates the parley configuration.
//
// Configuration is YAML. Environment variables written as ${VAR_NAME} are
// expanded before parsing, and duration fields are plain strings in the
// file ("1s", "500ms") parsed into time.Duration values. Fields absent from
// the file keep the built-in defaults; Load returns the first validation
// failure it finds.
//
// Persona presets live in a separate TOML file next to the config
// (personas.toml). An agent's persona may name a preset; explicit persona
// fields in the YAML override the preset's fields. PersonaConfig.String
// renders the populated fields into the single persona line used in the
// agent's system prompt.
//
// WriteExample scaffolds an annotated starter config and preset file for
// the init command.
package config
