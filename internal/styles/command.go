package styles

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/validation"
)

// Binaries the external compiler may be.
var allowedSassBinaries = map[string]bool{
	"sass":      true,
	"dart-sass": true,
	"sass.bat":  true,
}

// SassCommand compiles stylesheets by piping them through an external Dart
// Sass executable.
type SassCommand struct {
	binary    string
	loadPaths []string
	style     string
}

// NewSassCommand validates binary and returns a command that runs it.
func NewSassCommand(binary string, loadPaths []string, style string) (*SassCommand, error) {
	if err := validateSassBinary(binary); err != nil {
		return nil, err
	}
	for _, p := range loadPaths {
		if err := validation.ValidateArgument(p); err != nil {
			return nil, fmt.Errorf("load path %q: %w", p, err)
		}
	}
	if style == "" {
		style = StyleExpanded
	}
	return &SassCommand{binary: binary, loadPaths: loadPaths, style: style}, nil
}

func validateSassBinary(binary string) error {
	if err := validation.ValidateCommand(binary, allowedSassBinaries); err != nil {
		return fmt.Errorf("sass binary: %w; use one of sass, dart-sass", err)
	}
	return nil
}

// Args returns the arguments used to compile the file at path.
func (s *SassCommand) Args(path string) []string {
	args := []string{"--stdin", "--no-source-map", "--style=" + s.style}
	if strings.EqualFold(filepath.Ext(path), ".sass") {
		args = append(args, "--indented")
	}
	args = append(args, "--load-path="+filepath.Dir(path))
	for _, p := range s.loadPaths {
		args = append(args, "--load-path="+p)
	}
	return args
}

// Compile runs the executable with src on stdin and returns its output.
func (s *SassCommand) Compile(ctx context.Context, path string, src []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.binary, s.Args(path)...)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s canceled: %w", s.binary, ctx.Err())
		}
		if d, ok := errors.ParseSassOutput(path, stderr.String()); ok {
			return nil, fmt.Errorf("%s: %w", s.binary, d)
		}
		return nil, fmt.Errorf("%s failed: %w\n%s", s.binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
