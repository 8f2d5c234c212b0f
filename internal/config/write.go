package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitepipe/internal/glob"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = ".sitepipe.yml"

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the configuration to path. An existing file is only
// replaced when force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SourceDirs returns the literal base directory of every category's glob.
func (c *Config) SourceDirs() []string {
	seen := make(map[string]bool)
	dirs := make([]string, 0, len(c.Paths))
	for _, cat := range Categories() {
		base, _ := glob.Split(c.Mapping(cat).Src)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		dirs = append(dirs, base)
	}
	return dirs
}

// Scaffold creates the base directory of every category's source glob under
// root and returns the directories it created.
func (c *Config) Scaffold(root string) ([]string, error) {
	var created []string
	for _, dir := range c.SourceDirs() {
		full := filepath.Join(root, filepath.FromSlash(dir))
		if _, err := os.Stat(full); err == nil {
			continue
		}
		if err := os.MkdirAll(full, 0o755); err != nil {
			return created, fmt.Errorf("creating %s: %w", full, err)
		}
		created = append(created, full)
	}
	return created, nil
}

// LoadDotEnv loads SITEPIPE_* overrides from a .env file in dir when one
// exists. Variables already present in the environment win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
