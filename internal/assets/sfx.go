package assets

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultMappings are used when the catalog lists no effects. Order matters
// for partial matches.
var defaultMappings = []Mapping{
	{Cue: "birds_chirping", File: "birds.mp3"},
	{Cue: "birds", File: "birds.mp3"},
	{Cue: "bird_sound", File: "birds.mp3"},
	{Cue: "soft_wind", File: "wind.mp3"},
	{Cue: "wind", File: "wind.mp3"},
	{Cue: "gentle_breeze", File: "wind.mp3"},
	{Cue: "door_open", File: "door_open.mp3"},
	{Cue: "door_close", File: "door_close.mp3"},
	{Cue: "footsteps", File: "footsteps.mp3"},
	{Cue: "footsteps_on_wood", File: "footsteps_wood.mp3"},
	{Cue: "window_open", File: "window.mp3"},
	{Cue: "morning_jazz", File: "jazz_light.mp3"},
	{Cue: "soft_morning_jazz_music", File: "jazz_light.mp3"},
	{Cue: "acoustic_guitar", File: "guitar_ambient.mp3"},
	{Cue: "water_flowing", File: "water.mp3"},
	{Cue: "whoosh", File: "whoosh.mp3"},
	{Cue: "subtle_transition", File: "transition.mp3"},
}

// NormalizeCue lowercases a cue and joins words with underscores.
func NormalizeCue(cue string) string {
	cue = strings.ToLower(strings.TrimSpace(cue))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(cue)
}

// SFXLibrary resolves cues to effect files under a directory.
type SFXLibrary struct {
	dir      string
	mappings []Mapping
}

// Effects returns the catalog's effect library.
func (c *Catalog) Effects() *SFXLibrary {
	if c == nil {
		return &SFXLibrary{mappings: defaultMappings}
	}
	mappings := defaultMappings
	if len(c.SFX) > 0 {
		mappings = make([]Mapping, 0, len(c.SFX))
		for _, m := range c.SFX {
			mappings = append(mappings, Mapping{Cue: NormalizeCue(m.Cue), File: m.File})
		}
	}
	return &SFXLibrary{dir: c.SFXDir, mappings: mappings}
}

// Available reports whether the effect directory exists.
func (l *SFXLibrary) Available() bool {
	if l == nil || l.dir == "" {
		return false
	}
	info, err := os.Stat(l.dir)
	return err == nil && info.IsDir()
}

// Resolve maps a cue to a file name: exact match first, then the first
// mapping whose cue contains or is contained in the normalized cue.
func (l *SFXLibrary) Resolve(cue string) (string, bool) {
	normalized := NormalizeCue(cue)
	if normalized == "" || l == nil {
		return "", false
	}
	for _, m := range l.mappings {
		if m.Cue == normalized {
			return m.File, true
		}
	}
	for _, m := range l.mappings {
		if strings.Contains(normalized, m.Cue) || strings.Contains(m.Cue, normalized) {
			return m.File, true
		}
	}
	return "", false
}

// Lookup returns the effect file for cue when it exists on disk.
func (l *SFXLibrary) Lookup(cue string) (string, bool) {
	if !l.Available() {
		return "", false
	}
	name, ok := l.Resolve(cue)
	if !ok {
		return "", false
	}
	path := filepath.Join(l.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
