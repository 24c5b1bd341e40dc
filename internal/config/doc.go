// Package config reads montage.toml, layers MONTAGE_* environment overrides
// and an optional .env secrets file on top, and validates the result.
//
// Paths are expanded (including ~) before Validate runs, so callers can use
// Config.Paths directly.
package config
