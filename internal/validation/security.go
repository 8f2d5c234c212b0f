// Package validation checks values that end up on a command line, either as
// the external stylesheet compiler and its arguments or as the URL handed to
// the system browser opener.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// shellMeta are characters that have no business in a binary name, a load
// path or a URL passed to exec.
const shellMeta = ";&|$`<>\"'\\\n\r\x00"

// ValidateArgument rejects arguments carrying shell metacharacters.
func ValidateArgument(arg string) error {
	if i := strings.IndexAny(arg, shellMeta); i >= 0 {
		return fmt.Errorf("contains dangerous character %q", arg[i])
	}
	return nil
}

// ValidateCommand checks a binary against an allowlist of base names. The
// binary may be given with a directory, as in /usr/local/bin/sass.
func ValidateCommand(binary string, allowed map[string]bool) error {
	if strings.TrimSpace(binary) == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if err := ValidateArgument(binary); err != nil {
		return fmt.Errorf("invalid command %q: %w", binary, err)
	}
	if !allowed[strings.ToLower(filepath.Base(binary))] {
		return fmt.Errorf("command %q is not allowed", binary)
	}
	return nil
}
