// Package config provides configuration management for kvmigrate.
package config

import (
	"os"
	"path/filepath"
)

// Paths holds the directories kvmigrate reads from.
type Paths struct {
	// ConfigDir is the directory for configuration files:
	// $XDG_CONFIG_HOME/kvmigrate, or ~/.config/kvmigrate.
	ConfigDir string

	// DataDir holds the generated SSH key, the inventory and the bond
	// check script: ~/.kvmigrate
	DataDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string
}

// GetPaths returns the kvmigrate paths for the current user.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{
		DataDir: filepath.Join(home, ".kvmigrate"),
	}

	// Respect XDG_CONFIG_HOME if set
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		p.ConfigDir = filepath.Join(xdgConfig, "kvmigrate")
	} else {
		p.ConfigDir = filepath.Join(home, ".config", "kvmigrate")
	}

	// Config file lives in data directory for simplicity
	p.ConfigFile = filepath.Join(p.DataDir, "config.yaml")

	return p, nil
}

// EnsureDirectories creates the config and data directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(p.DataDir, 0700); err != nil {
		return err
	}
	return nil
}
