package styles

import (
	"sort"
	"strings"
)

type parser struct {
	file  string
	src   string
	i     int
	lines []int
}

func parse(file, src string) ([]node, error) {
	p := &parser{file: file, src: src, lines: []int{0}}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			p.lines = append(p.lines, i+1)
		}
	}
	return p.parseBlock(false)
}

func (p *parser) posAt(off int) pos {
	line := sort.Search(len(p.lines), func(i int) bool { return p.lines[i] > off })
	return pos{file: p.file, line: line, col: off - p.lines[line-1] + 1}
}

func (p *parser) eof() bool { return p.i >= len(p.src) }

func (p *parser) rest() string { return p.src[p.i:] }

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			p.i++
		case strings.HasPrefix(p.rest(), "//"):
			if nl := strings.IndexByte(p.rest(), '\n'); nl >= 0 {
				p.i += nl + 1
			} else {
				p.i = len(p.src)
			}
		default:
			return
		}
	}
}

func (p *parser) parseBlock(nested bool) ([]node, error) {
	var nodes []node
	for {
		p.skipSpace()
		if p.eof() {
			if nested {
				return nil, errorAt(p.posAt(len(p.src)), "expected \"}\"")
			}
			return nodes, nil
		}

		start := p.i
		switch c := p.src[p.i]; {
		case c == '}':
			if !nested {
				return nil, errorAt(p.posAt(start), "unexpected \"}\"")
			}
			p.i++
			return nodes, nil
		case c == ';':
			p.i++
		case strings.HasPrefix(p.rest(), "/*"):
			end := strings.Index(p.src[p.i+2:], "*/")
			if end < 0 {
				return nil, errorAt(p.posAt(start), "unterminated comment")
			}
			p.i += end + 4
			nodes = append(nodes, &commentNode{pos: p.posAt(start), text: p.src[start:p.i]})
		case c == '@':
			n, err := p.parseAtRule()
			if err != nil {
				return nil, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		case c == '$':
			n, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		default:
			n, err := p.parseRuleOrDecl()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
	}
}

// readChunk consumes text up to one of the stop bytes found outside quotes,
// parentheses and interpolation. The stop byte itself is left unread; 0 is
// returned at end of input.
func (p *parser) readChunk(stops string) (string, byte, error) {
	var b strings.Builder
	parens, interp := 0, 0
	for !p.eof() {
		c := p.src[p.i]
		switch {
		case c == '"' || c == '\'':
			start := p.i
			p.i++
			for !p.eof() && p.src[p.i] != c {
				if p.src[p.i] == '\n' {
					return "", 0, errorAt(p.posAt(start), "unterminated string")
				}
				if p.src[p.i] == '\\' && p.i+1 < len(p.src) {
					p.i++
				}
				p.i++
			}
			if p.eof() {
				return "", 0, errorAt(p.posAt(start), "unterminated string")
			}
			p.i++
			b.WriteString(p.src[start:p.i])
			continue
		case strings.HasPrefix(p.rest(), "/*"):
			end := strings.Index(p.src[p.i+2:], "*/")
			if end < 0 {
				return "", 0, errorAt(p.posAt(p.i), "unterminated comment")
			}
			p.i += end + 4
			continue
		case parens == 0 && interp == 0 && strings.HasPrefix(p.rest(), "//"):
			if nl := strings.IndexByte(p.rest(), '\n'); nl >= 0 {
				p.i += nl
			} else {
				p.i = len(p.src)
			}
			continue
		case strings.HasPrefix(p.rest(), "#{"):
			interp++
			b.WriteString("#{")
			p.i += 2
			continue
		case c == '}' && interp > 0:
			interp--
		case c == '(' || c == '[':
			parens++
		case (c == ')' || c == ']') && parens > 0:
			parens--
		case parens == 0 && interp == 0 && strings.IndexByte(stops, c) >= 0:
			return b.String(), c, nil
		}
		b.WriteByte(c)
		p.i++
	}
	return b.String(), 0, nil
}

func (p *parser) parseVariable() (node, error) {
	start := p.i
	text, stop, err := p.readChunk(";}")
	if err != nil {
		return nil, err
	}
	if stop == ';' {
		p.i++
	}
	at := p.posAt(start)
	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return nil, errorAt(at, "expected \":\" after variable name")
	}
	name := strings.TrimSpace(text[1:colon])
	if !isIdent(name) {
		return nil, errorAt(at, "invalid variable name %q", "$"+name)
	}
	v := &varNode{pos: at, name: name}
	value := strings.TrimSpace(text[colon+1:])
	for {
		switch {
		case strings.HasSuffix(value, "!default"):
			v.isDefault = true
			value = strings.TrimSpace(strings.TrimSuffix(value, "!default"))
			continue
		case strings.HasSuffix(value, "!global"):
			v.global = true
			value = strings.TrimSpace(strings.TrimSuffix(value, "!global"))
			continue
		}
		break
	}
	if value == "" {
		return nil, errorAt(at, "expected a value for $%s", name)
	}
	v.value = value
	return v, nil
}

func (p *parser) parseRuleOrDecl() (node, error) {
	start := p.i
	text, stop, err := p.readChunk("{;}")
	if err != nil {
		return nil, err
	}
	at := p.posAt(start)
	trimmed := strings.TrimSpace(text)

	if stop == '{' {
		p.i++
		children, err := p.parseBlock(true)
		if err != nil {
			return nil, err
		}
		if prop, value, ok := nestedProperty(trimmed); ok {
			return &declNode{pos: at, prop: prop, value: value, children: children}, nil
		}
		if trimmed == "" {
			return nil, errorAt(at, "expected selector")
		}
		return &ruleNode{pos: at, selector: trimmed, children: children}, nil
	}

	if stop == ';' {
		p.i++
	}
	prop, value, ok := splitDeclaration(trimmed)
	if !ok {
		return nil, errorAt(at, "expected \":\" in declaration %q", trimmed)
	}
	if value == "" {
		return nil, errorAt(at, "expected a value for %q", prop)
	}
	return &declNode{pos: at, prop: prop, value: value}, nil
}

func splitDeclaration(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "#{"):
			depth++
			i++
		case s[i] == '}' && depth > 0:
			depth--
		case s[i] == ':' && depth == 0:
			prop := strings.TrimSpace(s[:i])
			if prop == "" {
				return "", "", false
			}
			return prop, strings.TrimSpace(s[i+1:]), true
		}
	}
	return "", "", false
}

// nestedProperty recognises `font: {` and `font: 12px {` headers. A colon
// followed directly by a name, as in `a:hover`, is a selector.
func nestedProperty(s string) (string, string, bool) {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 || strings.Contains(s, "#{") {
		return "", "", false
	}
	prop := s[:colon]
	if !isIdent(prop) {
		return "", "", false
	}
	after := s[colon+1:]
	if after != "" && after[0] != ' ' && after[0] != '\t' && after[0] != '\n' {
		return "", "", false
	}
	return prop, strings.TrimSpace(after), true
}

func (p *parser) readIdent() string {
	start := p.i
	for !p.eof() && isIdentByte(p.src[p.i]) {
		p.i++
	}
	return p.src[start:p.i]
}

func (p *parser) parseAtRule() (node, error) {
	start := p.i
	at := p.posAt(start)
	p.i++
	name := p.readIdent()
	if name == "" {
		return nil, errorAt(at, "expected at-rule name")
	}

	switch name {
	case "mixin":
		header, err := p.header(at, name)
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock(true)
		if err != nil {
			return nil, err
		}
		mixinName, params, err := parseSignature(at, header)
		if err != nil {
			return nil, err
		}
		return &mixinNode{pos: at, name: mixinName, params: params, body: body}, nil

	case "include":
		text, stop, err := p.readChunk("{;}")
		if err != nil {
			return nil, err
		}
		inc := &includeNode{pos: at}
		inc.name, inc.args = splitCall(strings.TrimSpace(text))
		if !isIdent(inc.name) {
			return nil, errorAt(at, "invalid mixin name %q", inc.name)
		}
		switch stop {
		case ';':
			p.i++
		case '{':
			p.i++
			if inc.content, err = p.parseBlock(true); err != nil {
				return nil, err
			}
			inc.hasContent = true
		}
		return inc, nil

	case "content":
		if _, stop, err := p.readChunk(";}"); err != nil {
			return nil, err
		} else if stop == ';' {
			p.i++
		}
		return &contentNode{pos: at}, nil

	case "if":
		return p.parseIf(at)

	case "else":
		return nil, errorAt(at, "@else must follow @if")

	case "each":
		header, err := p.header(at, name)
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock(true)
		if err != nil {
			return nil, err
		}
		in := strings.Index(header, " in ")
		if in < 0 {
			return nil, errorAt(at, "expected \"in\" in @each")
		}
		n := &eachNode{pos: at, list: strings.TrimSpace(header[in+4:]), body: body}
		for _, v := range strings.Split(header[:in], ",") {
			v = strings.TrimSpace(v)
			if !strings.HasPrefix(v, "$") || !isIdent(v[1:]) {
				return nil, errorAt(at, "invalid @each variable %q", v)
			}
			n.vars = append(n.vars, v[1:])
		}
		return n, nil

	case "for":
		header, err := p.header(at, name)
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock(true)
		if err != nil {
			return nil, err
		}
		return parseFor(at, header, body)

	case "function", "return", "use", "forward", "extend", "while", "at-root":
		return nil, errorAt(at, "@%s is not supported", name)
	}

	text, stop, err := p.readChunk("{;}")
	if err != nil {
		return nil, err
	}
	n := &atRuleNode{pos: at, name: name, params: strings.TrimSpace(text)}
	switch stop {
	case ';':
		p.i++
	case '{':
		p.i++
		if n.children, err = p.parseBlock(true); err != nil {
			return nil, err
		}
		n.hasBlock = true
	}
	return n, nil
}

// header reads an at-rule prelude that must be followed by a block.
func (p *parser) header(at pos, name string) (string, error) {
	text, stop, err := p.readChunk("{;}")
	if err != nil {
		return "", err
	}
	if stop != '{' {
		return "", errorAt(at, "expected \"{\" after @%s", name)
	}
	p.i++
	return strings.TrimSpace(text), nil
}

func (p *parser) parseIf(at pos) (node, error) {
	cond, err := p.header(at, "if")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock(true)
	if err != nil {
		return nil, err
	}
	n := &ifNode{pos: at, branches: []ifBranch{{cond: cond, body: body}}}

	for {
		save := p.i
		p.skipSpace()
		if !strings.HasPrefix(p.rest(), "@else") {
			p.i = save
			return n, nil
		}
		elseAt := p.posAt(p.i)
		p.i += len("@else")
		p.skipSpace()

		branch := ifBranch{}
		if strings.HasPrefix(p.rest(), "if") && !isIdentByte(byteAt(p.rest(), 2)) {
			p.i += 2
			if branch.cond, err = p.header(elseAt, "else if"); err != nil {
				return nil, err
			}
			if branch.cond == "" {
				return nil, errorAt(elseAt, "expected condition after @else if")
			}
		} else {
			if p.eof() || p.src[p.i] != '{' {
				return nil, errorAt(elseAt, "expected \"{\" after @else")
			}
			p.i++
		}
		if branch.body, err = p.parseBlock(true); err != nil {
			return nil, err
		}
		n.branches = append(n.branches, branch)
		if branch.cond == "" {
			return n, nil
		}
	}
}

func parseFor(at pos, header string, body []node) (node, error) {
	fields := strings.Fields(header)
	if len(fields) < 5 || fields[1] != "from" {
		return nil, errorAt(at, "expected \"@for $var from <start> through <end>\"")
	}
	if !strings.HasPrefix(fields[0], "$") || !isIdent(fields[0][1:]) {
		return nil, errorAt(at, "invalid @for variable %q", fields[0])
	}
	n := &forNode{pos: at, variable: fields[0][1:], body: body}
	rest := strings.Join(fields[2:], " ")
	switch {
	case strings.Contains(rest, " through "):
		parts := strings.SplitN(rest, " through ", 2)
		n.from, n.to, n.inclusive = parts[0], parts[1], true
	case strings.Contains(rest, " to "):
		parts := strings.SplitN(rest, " to ", 2)
		n.from, n.to = parts[0], parts[1]
	default:
		return nil, errorAt(at, "expected \"through\" or \"to\" in @for")
	}
	return n, nil
}

// parseSignature splits `name($a, $b: 1px)`.
func parseSignature(at pos, header string) (string, []param, error) {
	name, args := splitCall(header)
	if !isIdent(name) {
		return "", nil, errorAt(at, "invalid mixin name %q", name)
	}
	var params []param
	for _, raw := range splitTopLevel(args, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, "$") {
			return "", nil, errorAt(at, "expected parameter name, got %q", raw)
		}
		prm := param{name: raw[1:]}
		if colon := strings.IndexByte(raw, ':'); colon >= 0 {
			prm.name = strings.TrimSpace(raw[1:colon])
			prm.fallback = strings.TrimSpace(raw[colon+1:])
			prm.hasValue = true
		}
		if !isIdent(prm.name) {
			return "", nil, errorAt(at, "invalid parameter name %q", "$"+prm.name)
		}
		params = append(params, prm)
	}
	return name, params, nil
}

// splitCall splits `name(args)` into its name and argument text.
func splitCall(s string) (string, string) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return strings.TrimSpace(s), ""
	}
	closing := strings.LastIndexByte(s, ')')
	if closing < open {
		closing = len(s)
	}
	return strings.TrimSpace(s[:open]), s[open+1 : closing]
}

// splitTopLevel splits s on sep outside quotes, parentheses and
// interpolation.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case (c == ')' || c == ']' || c == '}') && depth > 0:
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}
