package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"montage/internal/config"
	"montage/internal/services"
)

// DefaultCurve is the gentle intensity curve used by tracks without one.
var DefaultCurve = []float64{0.15, 0.2, 0.25, 0.2, 0.15}

// Track is one background music entry.
type Track struct {
	ID      string    `yaml:"id"`
	Path    string    `yaml:"path"`
	Style   string    `yaml:"style"`
	Tags    []string  `yaml:"tags"`
	Emotion string    `yaml:"emotion"`
	Curve   []float64 `yaml:"intensity_curve"`
}

// Mapping binds a normalized cue to an effect file name.
type Mapping struct {
	Cue  string `yaml:"cue"`
	File string `yaml:"file"`
}

// Catalog is the parsed asset catalog.
type Catalog struct {
	BGM    []Track   `yaml:"bgm"`
	SFXDir string    `yaml:"sfx_dir"`
	SFX    []Mapping `yaml:"sfx"`
}

// Load parses the catalog at path. Relative track paths and the effect
// directory resolve against the catalog's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "assets", "load", "asset catalog not found", err)
		}
		return nil, fmt.Errorf("read asset catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "load", "parse asset catalog", err)
	}
	base := filepath.Dir(path)
	for i := range cat.BGM {
		t := &cat.BGM[i]
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, services.Wrap(services.ErrConfiguration, "assets", "load", fmt.Sprintf("bgm entry %d has no id", i), nil)
		}
		if t.Path != "" && !isRemote(t.Path) && !filepath.IsAbs(t.Path) {
			t.Path = filepath.Join(base, t.Path)
		}
		if t.Style == "" {
			t.Style = StyleCozy
		}
		if len(t.Curve) == 0 {
			t.Curve = append([]float64(nil), DefaultCurve...)
		}
	}
	if cat.SFXDir != "" && !filepath.IsAbs(cat.SFXDir) {
		cat.SFXDir = filepath.Join(base, cat.SFXDir)
	}
	return &cat, nil
}

// LoadFromConfig loads paths.asset_catalog, returning an empty catalog when
// none is configured.
func LoadFromConfig(cfg *config.Config) (*Catalog, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.AssetCatalog) == "" {
		return &Catalog{}, nil
	}
	return Load(cfg.Paths.AssetCatalog)
}

// Track returns the entry with id.
func (c *Catalog) Track(id string) (Track, bool) {
	if c == nil {
		return Track{}, false
	}
	for _, t := range c.BGM {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "file://")
}
