package styles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type tokKind int

const (
	tEOF tokKind = iota
	tNum
	tStr
	tIdent
	tVar
	tHash
	tFunc
	tRaw
	tOp
	tLParen
	tRParen
	tComma
)

type token struct {
	kind  tokKind
	text  string
	quote byte
	num   number
	space bool
}

// CSS functions whose arguments are passed through untouched apart from
// variable substitution.
var rawFunctions = map[string]bool{
	"url": true, "calc": true, "var": true, "env": true, "min": true,
	"max": true, "clamp": true, "attr": true, "counter": true, "counters": true,
	"format": true, "local": true, "element": true, "expression": true,
	"-webkit-calc": true, "-moz-calc": true,
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpaceByte(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' }

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isHex(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func scanNumber(s string) (number, int) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '.' && isDigit(byteAt(s, i+1)) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	v, _ := strconv.ParseFloat(s[:i], 64)
	u := i
	if u < len(s) && s[u] == '%' {
		u++
	} else {
		for u < len(s) && (s[u] >= 'a' && s[u] <= 'z' || s[u] >= 'A' && s[u] <= 'Z') {
			u++
		}
	}
	return number{v: v, unit: s[i:u]}, u
}

// matchClose returns the index of the bracket closing the one at s[open].
func matchClose(s string, open int) int {
	closer := byte(')')
	if s[open] == '[' {
		closer = ']'
	}
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
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
		case c == s[open]:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func tokenize(s string) ([]token, error) {
	var toks []token
	space := false
	prevOperand := func() bool {
		if len(toks) == 0 {
			return false
		}
		switch toks[len(toks)-1].kind {
		case tNum, tStr, tIdent, tVar, tHash, tRaw, tRParen:
			return true
		}
		return false
	}

	for i := 0; i < len(s); {
		c := s[i]
		if isSpaceByte(c) {
			space = true
			i++
			continue
		}
		t := token{space: space}
		space = false
		next := byteAt(s, i+1)

		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(s) && s[j] != c {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string")
			}
			t.kind, t.text, t.quote = tStr, s[i+1:j], c
			i = j + 1

		case isDigit(c) || c == '.' && isDigit(next):
			n, w := scanNumber(s[i:])
			t.kind, t.num, t.text = tNum, n, s[i:i+w]
			i += w

		case c == '-' && (isDigit(next) || next == '.' && isDigit(byteAt(s, i+2))) && (!prevOperand() || t.space):
			n, w := scanNumber(s[i+1:])
			n.v = -n.v
			t.kind, t.num, t.text = tNum, n, s[i:i+1+w]
			i += 1 + w

		case c == '-' && (isIdentStart(next) || next == '-'):
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			t.kind, t.text = tIdent, s[i:j]
			if byteAt(s, j) == '(' {
				end := matchClose(s, j)
				if end < 0 {
					return nil, fmt.Errorf("unbalanced parentheses")
				}
				if rawFunctions[t.text] {
					t.kind, t.text = tRaw, s[i:end+1]
					i = end + 1
					break
				}
				t.kind = tFunc
				i = j + 1
				break
			}
			i = j

		case c == '-' && prevOperand() && t.space && next != 0 && !isSpaceByte(next):
			t.kind, t.text = tOp, "u-"
			i++

		case c == '$':
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("expected variable name after \"$\"")
			}
			t.kind, t.text = tVar, s[i+1:j]
			i = j

		case c == '#':
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			t.kind, t.text = tRaw, s[i:j]
			if n := j - i - 1; n == 3 || n == 4 || n == 6 || n == 8 {
				hex := true
				for k := i + 1; k < j; k++ {
					hex = hex && isHex(s[k])
				}
				if hex {
					t.kind = tHash
				}
			}
			i = j

		case isIdentStart(c) || c == '!' && isIdentStart(next):
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			name := s[i:j]
			if byteAt(s, j) == '.' && isIdentStart(byteAt(s, j+1)) {
				k := j + 1
				for k < len(s) && isIdentByte(s[k]) {
					k++
				}
				if byteAt(s, k) == '(' {
					return nil, fmt.Errorf("module functions are not supported: %s()", s[i:k])
				}
			}
			if byteAt(s, j) == '(' {
				if rawFunctions[strings.ToLower(name)] {
					end := matchClose(s, j)
					if end < 0 {
						return nil, fmt.Errorf("unbalanced parentheses in %s()", name)
					}
					t.kind, t.text = tRaw, s[i:end+1]
					i = end + 1
					break
				}
				t.kind, t.text = tFunc, name
				i = j + 1
				break
			}
			t.kind, t.text = tIdent, name
			i = j

		case c == '(':
			t.kind = tLParen
			i++
		case c == ')':
			t.kind = tRParen
			i++
		case c == ',':
			t.kind = tComma
			i++
		case c == '[':
			end := matchClose(s, i)
			if end < 0 {
				return nil, fmt.Errorf("unbalanced brackets")
			}
			t.kind, t.text = tRaw, s[i:end+1]
			i = end + 1
		case strings.HasPrefix(s[i:], "==") || strings.HasPrefix(s[i:], "!=") ||
			strings.HasPrefix(s[i:], "<=") || strings.HasPrefix(s[i:], ">="):
			t.kind, t.text = tOp, s[i:i+2]
			i += 2
		case strings.IndexByte("+-*/<>", c) >= 0:
			t.kind, t.text = tOp, string(c)
			i++
		default:
			t.kind, t.text = tRaw, string(c)
			i++
		}
		toks = append(toks, t)
	}
	return toks, nil
}

type exprParser struct {
	toks   []token
	i      int
	sc     *scope
	parens int
}

func (p *exprParser) peek() token {
	if p.i < len(p.toks) {
		return p.toks[p.i]
	}
	return token{kind: tEOF}
}

func (p *exprParser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tOp && t.kind != tIdent {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) startsOperand() bool {
	t := p.peek()
	switch t.kind {
	case tNum, tStr, tVar, tHash, tFunc, tRaw, tLParen:
		return true
	case tIdent:
		return t.text != "and" && t.text != "or"
	case tOp:
		return t.text == "u-"
	}
	return false
}

func (p *exprParser) commaList() (value, error) {
	first, err := p.spaceList()
	if err != nil {
		return nil, err
	}
	items := []value{first}
	for p.peek().kind == tComma {
		p.i++
		if k := p.peek().kind; k == tEOF || k == tRParen {
			break
		}
		v, err := p.spaceList()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if len(items) == 1 {
		return first, nil
	}
	return &list{items: items, comma: true}, nil
}

func (p *exprParser) spaceList() (value, error) {
	first, _, err := p.or()
	if err != nil {
		return nil, err
	}
	items := []value{first}
	for p.startsOperand() {
		next := p.peek()
		glued := !next.space && !strings.HasPrefix(next.text, "!")
		v, _, err := p.or()
		if err != nil {
			return nil, err
		}
		if glued {
			last := items[len(items)-1]
			items[len(items)-1] = &str{s: last.css(false) + v.css(false)}
			continue
		}
		items = append(items, v)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return &list{items: items}, nil
}

func (p *exprParser) or() (value, bool, error) {
	l, computed, err := p.and()
	if err != nil {
		return nil, false, err
	}
	for {
		if _, ok := p.isOp("or"); !ok {
			return l, computed, nil
		}
		p.i++
		r, _, err := p.and()
		if err != nil {
			return nil, false, err
		}
		if !truthy(l) {
			l = r
		}
		computed = true
	}
}

func (p *exprParser) and() (value, bool, error) {
	l, computed, err := p.equality()
	if err != nil {
		return nil, false, err
	}
	for {
		if _, ok := p.isOp("and"); !ok {
			return l, computed, nil
		}
		p.i++
		r, _, err := p.equality()
		if err != nil {
			return nil, false, err
		}
		if truthy(l) {
			l = r
		}
		computed = true
	}
}

func (p *exprParser) equality() (value, bool, error) {
	l, computed, err := p.relational()
	if err != nil {
		return nil, false, err
	}
	for {
		op, ok := p.isOp("==", "!=")
		if !ok {
			return l, computed, nil
		}
		p.i++
		r, _, err := p.relational()
		if err != nil {
			return nil, false, err
		}
		if l, err = compare(op, l, r); err != nil {
			return nil, false, err
		}
		computed = true
	}
}

func (p *exprParser) relational() (value, bool, error) {
	l, computed, err := p.additive()
	if err != nil {
		return nil, false, err
	}
	for {
		op, ok := p.isOp("<", ">", "<=", ">=")
		if !ok {
			return l, computed, nil
		}
		p.i++
		r, _, err := p.additive()
		if err != nil {
			return nil, false, err
		}
		if l, err = compare(op, l, r); err != nil {
			return nil, false, err
		}
		computed = true
	}
}

func (p *exprParser) additive() (value, bool, error) {
	l, computed, err := p.multiplicative()
	if err != nil {
		return nil, false, err
	}
	for {
		op, ok := p.isOp("+", "-")
		if !ok || p.peek().kind != tOp {
			return l, computed, nil
		}
		p.i++
		r, _, err := p.multiplicative()
		if err != nil {
			return nil, false, err
		}
		if l, err = arith(op, l, r); err != nil {
			return nil, false, err
		}
		computed = true
	}
}

func (p *exprParser) multiplicative() (value, bool, error) {
	l, computed, err := p.unary()
	if err != nil {
		return nil, false, err
	}
	for {
		op, ok := p.isOp("*", "/")
		if !ok || p.peek().kind != tOp {
			return l, computed, nil
		}
		opTok := p.peek()
		p.i++
		rightSpace := p.peek().space
		r, rc, err := p.unary()
		if err != nil {
			return nil, false, err
		}
		if op == "/" && p.parens == 0 && !computed && !rc {
			sep := "/"
			if opTok.space || rightSpace {
				sep = " / "
			}
			l = &str{s: l.css(false) + sep + r.css(false)}
			computed = false
			continue
		}
		if l, err = arith(op, l, r); err != nil {
			return nil, false, err
		}
		computed = true
	}
}

func (p *exprParser) unary() (value, bool, error) {
	t := p.peek()
	switch {
	case t.kind == tIdent && t.text == "not":
		p.i++
		v, _, err := p.unary()
		if err != nil {
			return nil, false, err
		}
		return boolean(!truthy(v)), true, nil
	case t.kind == tOp && (t.text == "-" || t.text == "u-"):
		p.i++
		v, _, err := p.unary()
		if err != nil {
			return nil, false, err
		}
		if n, ok := v.(*number); ok {
			return &number{v: -n.v, unit: n.unit}, true, nil
		}
		return &str{s: "-" + v.css(false)}, true, nil
	case t.kind == tOp && t.text == "+":
		p.i++
		return p.unary()
	}
	return p.primary()
}

func (p *exprParser) primary() (value, bool, error) {
	t := p.peek()
	p.i++
	switch t.kind {
	case tNum:
		n := t.num
		return &n, false, nil
	case tStr:
		return &str{s: t.text, quote: t.quote}, false, nil
	case tIdent:
		switch t.text {
		case "true":
			return boolean(true), false, nil
		case "false":
			return boolean(false), false, nil
		case "null":
			return null{}, false, nil
		}
		if c, ok := namedColor(t.text); ok {
			return c, false, nil
		}
		return &str{s: t.text}, false, nil
	case tHash:
		c, err := parseHex(t.text)
		if err != nil {
			return nil, false, err
		}
		return c, false, nil
	case tVar:
		v, ok := p.sc.lookup(t.text)
		if !ok {
			return nil, false, fmt.Errorf("undefined variable $%s", t.text)
		}
		return v, true, nil
	case tRaw:
		s, err := substituteVars(t.text, p.sc)
		if err != nil {
			return nil, false, err
		}
		return &str{s: s}, false, nil
	case tLParen:
		if p.peek().kind == tRParen {
			p.i++
			return &list{}, true, nil
		}
		p.parens++
		v, err := p.commaList()
		p.parens--
		if err != nil {
			return nil, false, err
		}
		if p.peek().kind != tRParen {
			return nil, false, fmt.Errorf("expected \")\"")
		}
		p.i++
		return v, true, nil
	case tFunc:
		return p.call(t.text)
	case tEOF:
		return nil, false, fmt.Errorf("expected expression")
	}
	return nil, false, fmt.Errorf("unexpected %q", t.text)
}

func (p *exprParser) call(name string) (value, bool, error) {
	outer := p.parens
	p.parens = 0
	defer func() { p.parens = outer }()

	var args []value
	for p.peek().kind != tRParen {
		if p.peek().kind == tEOF {
			return nil, false, fmt.Errorf("expected \")\" to close %s(", name)
		}
		a, err := p.spaceList()
		if err != nil {
			return nil, false, err
		}
		args = append(args, a)
		if p.peek().kind == tComma {
			p.i++
		}
	}
	p.i++

	v, ok, err := callBuiltin(name, args)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return v, true, nil
	}
	return &str{s: name + "(" + (&list{items: args, comma: true}).css(false) + ")"}, false, nil
}

var varRef = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_-]*`)

// substituteVars replaces variable references in text that is otherwise
// passed through verbatim.
func substituteVars(text string, sc *scope) (string, error) {
	var missing string
	out := varRef.ReplaceAllStringFunc(text, func(ref string) string {
		v, ok := sc.lookup(ref[1:])
		if !ok {
			if missing == "" {
				missing = ref
			}
			return ref
		}
		return unquote(v)
	})
	if missing != "" {
		return "", fmt.Errorf("undefined variable %s", missing)
	}
	return out, nil
}

// evalExpr evaluates a SassScript expression.
func evalExpr(src string, sc *scope) (value, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return null{}, nil
	}
	p := &exprParser{toks: toks, sc: sc}
	v, err := p.commaList()
	if err != nil {
		return nil, err
	}
	if p.i < len(p.toks) {
		return nil, fmt.Errorf("unexpected %q", p.toks[p.i].text)
	}
	return v, nil
}

// interpolate replaces every #{...} in s with the unquoted result of the
// expression inside.
func interpolate(s string, sc *scope) (string, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "#{")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:start])
		depth, end := 0, -1
		for i := start + 1; i < len(s); i++ {
			if s[i] == '{' {
				depth++
			} else if s[i] == '}' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}
		if end < 0 {
			return "", fmt.Errorf("unterminated interpolation")
		}
		v, err := evalExpr(s[start+2:end], sc)
		if err != nil {
			return "", err
		}
		b.WriteString(unquote(v))
		s = s[end+1:]
	}
}
