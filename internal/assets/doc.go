// Package assets loads the background music and sound effect catalog.
//
// The catalog is a YAML file listing music tracks with their style, tags,
// dominant emotion and optional intensity curve, plus a sound effect
// directory and cue mappings. SelectBGM scores tracks against a run's style,
// script keywords and emotion distribution; SFXLibrary resolves free-form
// cue strings to effect files.
package assets
