package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/osbuild/dualboot-images/pkg/datasizes"
	"github.com/osbuild/dualboot-images/pkg/disk"
	"github.com/osbuild/dualboot-images/pkg/image"
)

// DefaultConfigPath is read if it exists and --config is not given.
var DefaultConfigPath = "/etc/dualboot-image/config.toml"

// Config holds the settings of the config file. Command line flags take
// precedence over it.
type Config struct {
	AssetsDir  string         `toml:"assets_dir"`
	Layout     string         `toml:"layout"`
	LayoutFile string         `toml:"layout_file"`
	Backend    string         `toml:"backend"`
	Size       datasizes.Size `toml:"size"`
	SecureBoot bool           `toml:"secure_boot"`
	SectorSize uint64         `toml:"sector_size"`
}

func defaultConfig() *Config {
	return &Config{
		Layout:     disk.DefaultLayoutName,
		Backend:    backendCgpt,
		Size:       datasizes.Size(image.DefaultSize),
		SecureBoot: true,
	}
}

// LoadConfig reads the TOML config at path on top of the defaults. A
// missing file is only an error if required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	md, err := toml.DecodeFile(path, config)
	if errors.Is(err, os.ErrNotExist) && !required {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("cannot load config %s: unknown keys %v", path, undecoded)
	}
	return config, nil
}

// layout resolves the configured layout, a layout file wins over a
// built-in name.
func (c *Config) layout() (disk.Layout, error) {
	var layout disk.Layout
	var err error
	if c.LayoutFile != "" {
		layout, err = disk.LoadLayout(c.LayoutFile)
	} else {
		layout, err = disk.GetLayout(c.Layout)
	}
	if err != nil {
		return disk.Layout{}, err
	}
	if c.SectorSize != 0 {
		layout.SectorSize = c.SectorSize
	}
	return layout, nil
}
