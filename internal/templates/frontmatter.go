package templates

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when front matter is opened but
// never closed.
var ErrMissingClosingDelimiter = errors.New("front matter: missing closing ---")

// SplitFrontMatter separates YAML front matter delimited by --- lines from
// the document body. Documents without front matter return a nil map and the
// whole input as body.
func SplitFrontMatter(content []byte) (map[string]any, []byte, error) {
	nl := "\n"
	if bytes.HasPrefix(content, []byte("---\r\n")) {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}

	rest := content[len(open):]
	var raw, body []byte
	if bytes.HasPrefix(rest, open) {
		body = rest[len(open):]
	} else {
		closeSeq := []byte(nl + "---" + nl)
		idx := bytes.Index(rest, closeSeq)
		switch {
		case idx >= 0:
			raw, body = rest[:idx+len(nl)], rest[idx+len(closeSeq):]
		case bytes.HasSuffix(rest, []byte(nl+"---")):
			raw, body = rest[:len(rest)-len("---")], nil
		default:
			return nil, nil, ErrMissingClosingDelimiter
		}
	}

	meta := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, nil, fmt.Errorf("front matter: %w", err)
		}
	}
	return meta, body, nil
}
