package styles

import (
	"strings"
)

// indentedToSCSS rewrites the whitespace-sensitive .sass syntax as SCSS.
// Every input line maps to the same output line so error positions stay
// meaningful.
func indentedToSCSS(file, src string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	out := make([]string, len(lines))

	var stack []int
	unit := ""

	indentOf := func(i int) (int, error) {
		line := lines[i]
		ws := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if ws == "" {
			return 0, nil
		}
		if strings.Contains(ws, " ") && strings.Contains(ws, "\t") {
			return 0, errorAt(pos{file: file, line: i + 1, col: 1}, "mixed tabs and spaces in indentation")
		}
		if unit == "" {
			unit = ws[:1]
		} else if ws[:1] != unit {
			return 0, errorAt(pos{file: file, line: i + 1, col: 1}, "inconsistent indentation")
		}
		return len(ws), nil
	}

	skip := func(trimmed string) bool {
		return trimmed == "" || strings.HasPrefix(trimmed, "//")
	}

	// comment blocks swallow every more-indented line that follows
	commentIndent := -1
	continuing := false

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if commentIndent >= 0 {
			ind, _ := indentOf(i)
			if trimmed == "" || ind > commentIndent {
				out[i] = ""
				continue
			}
			commentIndent = -1
		}
		if skip(trimmed) {
			if strings.HasPrefix(trimmed, "//") {
				ind, err := indentOf(i)
				if err != nil {
					return "", err
				}
				commentIndent = ind
			}
			out[i] = ""
			continue
		}
		if strings.HasPrefix(trimmed, "/*") {
			ind, err := indentOf(i)
			if err != nil {
				return "", err
			}
			commentIndent = ind
			out[i] = ""
			continue
		}

		ind, err := indentOf(i)
		if err != nil {
			return "", err
		}

		var prefix strings.Builder
		if !continuing {
			for len(stack) > 0 && ind <= stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
				prefix.WriteString("} ")
			}
		}

		body := convertIndentedLine(trimmed)

		// A selector list may continue on the next line after a comma.
		if strings.HasSuffix(trimmed, ",") {
			out[i] = prefix.String() + body
			continuing = true
			continue
		}
		continuing = false

		next := -1
		for j := i + 1; j < len(lines); j++ {
			if t := strings.TrimSpace(lines[j]); !skip(t) {
				next = j
				break
			}
		}
		opens := false
		if next >= 0 {
			nextInd, err := indentOf(next)
			if err != nil {
				return "", err
			}
			opens = nextInd > ind
		}

		if opens {
			out[i] = prefix.String() + body + " {"
			stack = append(stack, ind)
		} else {
			out[i] = prefix.String() + body + ";"
		}
	}

	closing := strings.Repeat(" }", len(stack))
	if len(out) > 0 {
		out[len(out)-1] += closing
	}
	return strings.Join(out, "\n"), nil
}

func convertIndentedLine(line string) string {
	switch {
	case strings.HasPrefix(line, "="):
		return "@mixin " + strings.TrimSpace(line[1:])
	case strings.HasPrefix(line, "+") && len(line) > 1 && isIdentStart(line[1]):
		return "@include " + strings.TrimSpace(line[1:])
	case strings.HasPrefix(line, "@import "):
		targets := splitTopLevel(strings.TrimPrefix(line, "@import "), ',')
		for i, t := range targets {
			t = strings.TrimSpace(t)
			if t != "" && t[0] != '"' && t[0] != '\'' && !strings.HasPrefix(t, "url(") {
				t = `"` + t + `"`
			}
			targets[i] = t
		}
		return "@import " + strings.Join(targets, ", ")
	}
	return line
}
