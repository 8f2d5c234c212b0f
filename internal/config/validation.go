package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitepipe/internal/glob"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", ve.Field, ve.Message)
}

// Validate checks the invariants every command relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return &ValidationError{Field: "output", Message: "must not be empty"}
	}
	if isRootish(c.Output) {
		return &ValidationError{Field: "output", Value: c.Output, Message: "refusing to use the working directory or filesystem root as the output directory"}
	}

	for _, cat := range Categories() {
		m, ok := c.Paths[string(cat)]
		field := "paths." + string(cat)
		if !ok {
			return &ValidationError{Field: field, Message: "missing"}
		}
		if err := glob.Validate(m.Src); err != nil {
			return &ValidationError{Field: field + ".src", Value: m.Src, Message: err.Error()}
		}
		if strings.TrimSpace(m.Dest) == "" {
			return &ValidationError{Field: field + ".dest", Message: "must not be empty"}
		}
		if !within(c.Output, m.Dest) {
			return &ValidationError{
				Field:   field + ".dest",
				Value:   m.Dest,
				Message: fmt.Sprintf("destination %q is outside the output directory %q", m.Dest, c.Output),
			}
		}
		switch m.Reload {
		case ReloadFull, ReloadInject, ReloadNone:
		default:
			return &ValidationError{Field: field + ".reload", Value: m.Reload, Message: "must be one of full, inject, none"}
		}
	}
	for name := range c.Paths {
		if !IsCategory(name) {
			return &ValidationError{Field: "paths." + name, Message: "unknown asset category"}
		}
	}

	if strings.TrimSpace(c.Server.BaseDir) == "" {
		return &ValidationError{Field: "server.base_dir", Message: "must not be empty"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Value: c.Server.Port, Message: "port must be between 0 and 65535"}
	}
	if strings.ContainsAny(c.Server.Host, ";&|$`()<>\"'\\ ") {
		return &ValidationError{Field: "server.host", Value: c.Server.Host, Message: "contains invalid characters"}
	}

	switch c.Styles.Compiler {
	case CompilerBuiltin, CompilerSass:
	default:
		return &ValidationError{Field: "styles.compiler", Value: c.Styles.Compiler, Message: "must be builtin or sass"}
	}
	switch c.Styles.OutputStyle {
	case "expanded", "compressed":
	default:
		return &ValidationError{Field: "styles.output_style", Value: c.Styles.OutputStyle, Message: "must be expanded or compressed"}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Value: c.Log.Level, Message: err.Error()}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{Field: "log.format", Value: c.Log.Format, Message: "must be text or json"}
	}

	return nil
}

func isRootish(p string) bool {
	clean := filepath.Clean(p)
	return clean == "." || clean == string(filepath.Separator) || clean == ".."
}

// within reports whether child is root or a descendant of root.
func within(root, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
