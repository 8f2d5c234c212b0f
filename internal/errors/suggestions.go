package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	ConfigPath string
	SourceDir  string
	Port       int
}

// ConfigurationError generates suggestions for configuration problems
func ConfigurationError(message string, ctx *SuggestionContext) []ErrorSuggestion {
	configPath := ".sitepipe.yml"
	if ctx != nil && ctx.ConfigPath != "" {
		configPath = ctx.ConfigPath
	}

	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the configuration file",
			Description: "Validate the YAML in " + configPath,
			Command:     "cat " + configPath,
		},
		{
			Title:       "Regenerate a default configuration",
			Description: "Write a fresh configuration with every category filled in",
			Command:     "sitepipe init --force",
		},
	}

	if strings.Contains(message, "outside the output") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Keep destinations under the output directory",
			Description: "clean removes only the output directory, so every destination must live inside it",
			Example:     "output: public\npaths:\n  styles:\n    dest: public/css",
		})
	}
	if strings.Contains(message, "port") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:   "Use a valid port",
			Example: "server:\n  port: 3000",
		})
	}

	return suggestions
}

// MissingSourceError generates suggestions when the source tree is absent
func MissingSourceError(ctx *SuggestionContext) []ErrorSuggestion {
	dir := "app"
	if ctx != nil && ctx.SourceDir != "" {
		dir = ctx.SourceDir
	}
	return []ErrorSuggestion{
		{
			Title:       "Create the source skeleton",
			Description: "sitepipe init creates " + dir + "/ with one directory per asset category",
			Command:     "sitepipe init",
		},
		{
			Title:       "Point sitepipe at your sources",
			Description: "Set the source directory in the configuration",
			Example:     "source: " + dir,
		},
	}
}

// ServerStartError generates suggestions for dev server start failures
func ServerStartError(err error, ctx *SuggestionContext) []ErrorSuggestion {
	port := 3000
	if ctx != nil && ctx.Port != 0 {
		port = ctx.Port
	}

	var suggestions []ErrorSuggestion
	if strings.Contains(err.Error(), "address already in use") || strings.Contains(err.Error(), "bind") {
		suggestions = append(suggestions,
			ErrorSuggestion{
				Title:       "Port is already in use",
				Description: fmt.Sprintf("Another process is listening on port %d", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:   "Use a different port",
				Command: fmt.Sprintf("sitepipe watch --port %d", port+1),
			},
		)
	}
	return suggestions
}

// SassCompilerError generates suggestions when the external sass binary fails
func SassCompilerError(err error) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Use the built-in compiler",
			Description: "The built-in compiler handles variables, nesting, mixins and imports",
			Example:     "styles:\n  compiler: builtin",
		},
	}
	if strings.Contains(err.Error(), "not found") {
		suggestions = append([]ErrorSuggestion{{
			Title:       "Install Dart Sass",
			Description: "The sass executable must be on PATH",
			Command:     "npm install -g sass",
		}}, suggestions...)
	}
	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title = fmt.Sprintf("%s: %v", e.Title, e.OriginalError)
	}
	return FormatSuggestions(title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
