package disk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadLayout reads a layout definition from a YAML (.yaml, .yml) or TOML
// (.toml) file and validates it.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("cannot read layout: %w", err)
	}

	var l Layout
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		l, err = ParseLayoutYAML(data)
	case ".toml":
		l, err = ParseLayoutTOML(data)
	default:
		return Layout{}, fmt.Errorf("unsupported layout file extension %q for %s", ext, path)
	}
	if err != nil {
		return Layout{}, fmt.Errorf("cannot load layout %s: %w", path, err)
	}
	return l, nil
}

func ParseLayoutYAML(data []byte) (Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return Layout{}, err
	}
	return finishLayout(l)
}

func ParseLayoutTOML(data []byte) (Layout, error) {
	var l Layout
	md, err := toml.Decode(string(data), &l)
	if err != nil {
		return Layout{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Layout{}, fmt.Errorf("unknown keys in layout: %v", undecoded)
	}
	return finishLayout(l)
}

func finishLayout(l Layout) (Layout, error) {
	if l.Name == "" {
		return Layout{}, fmt.Errorf("layout has no name")
	}
	if l.SectorSize == 0 {
		l.SectorSize = DefaultSectorSize
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
