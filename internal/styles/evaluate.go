package styles

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type scope struct {
	vars   map[string]value
	mixins map[string]*mixinDef
	parent *scope
	// flow scopes belong to @if, @each and @for; assignments inside them
	// update existing variables all the way up to the globals.
	flow bool
}

type mixinDef struct {
	node  *mixinNode
	scope *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]value), mixins: make(map[string]*mixinDef), parent: parent}
}

func newFlowScope(parent *scope) *scope {
	s := newScope(parent)
	s.flow = true
	return s
}

func normName(name string) string { return strings.ReplaceAll(name, "_", "-") }

func (s *scope) lookup(name string) (value, bool) {
	n := normName(name)
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[n]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) root() *scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

func (s *scope) define(name string, v value) { s.vars[normName(name)] = v }

// set assigns to an existing variable when one is visible without crossing
// from a block scope into the globals, and declares a local otherwise.
func (s *scope) set(name string, v value) {
	n := normName(name)
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[n]; ok {
			cur.vars[n] = v
			return
		}
		if !cur.flow && cur.parent != nil && cur.parent.parent == nil {
			break
		}
	}
	s.vars[n] = v
}

func (s *scope) lookupMixin(name string) (*mixinDef, bool) {
	n := normName(name)
	for cur := s; cur != nil; cur = cur.parent {
		if m, ok := cur.mixins[n]; ok {
			return m, true
		}
	}
	return nil, false
}

type contentBlock struct {
	nodes []node
	scope *scope
	outer *contentBlock
}

// frame is where evaluated output goes.
type frame struct {
	selectors []string
	rule      *cssRule
	out       *[]cssNode
	// media is the innermost conditional at-rule and mediaOut the
	// container holding it, so nested queries can be merged.
	media       *cssAtRule
	mediaOut    *[]cssNode
	declOnly    *cssAtRule
	inKeyframes bool
	content     *contentBlock
}

type evaluator struct {
	c       *Compiler
	sheet   *stylesheet
	imports []string
}

func (e *evaluator) fail(at pos, err error) error {
	if _, ok := err.(*SyntaxError); ok {
		return err
	}
	return errorAt(at, "%s", err.Error())
}

func (e *evaluator) value(raw string, sc *scope) (value, error) {
	s, err := interpolate(raw, sc)
	if err != nil {
		return nil, err
	}
	return evalExpr(s, sc)
}

func (e *evaluator) evalNodes(nodes []node, sc *scope, f frame) error {
	for _, n := range nodes {
		if err := e.evalNode(n, sc, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) evalNode(n node, sc *scope, f frame) error {
	switch n := n.(type) {
	case *commentNode:
		if f.rule != nil {
			f.rule.decls = append(f.rule.decls, &cssDecl{comment: n.text})
		} else if f.declOnly != nil {
			f.declOnly.decls = append(f.declOnly.decls, &cssDecl{comment: n.text})
		} else {
			*f.out = append(*f.out, &cssComment{text: n.text})
		}

	case *varNode:
		if n.isDefault {
			if v, ok := sc.lookup(n.name); ok {
				if _, isNull := v.(null); !isNull {
					return nil
				}
			}
		}
		v, err := e.value(n.value, sc)
		if err != nil {
			return e.fail(n.pos, err)
		}
		if n.global {
			sc.root().define(n.name, v)
		} else {
			sc.set(n.name, v)
		}

	case *declNode:
		return e.evalDecl(n, "", sc, f)

	case *ruleNode:
		return e.evalRule(n, sc, f)

	case *atRuleNode:
		return e.evalAtRule(n, sc, f)

	case *mixinNode:
		sc.mixins[normName(n.name)] = &mixinDef{node: n, scope: sc}

	case *includeNode:
		return e.evalInclude(n, sc, f)

	case *contentNode:
		if f.content == nil {
			return nil
		}
		inner := f
		inner.content = f.content.outer
		return e.evalNodes(f.content.nodes, newScope(f.content.scope), inner)

	case *ifNode:
		for _, b := range n.branches {
			if b.cond != "" {
				v, err := e.value(b.cond, sc)
				if err != nil {
					return e.fail(n.pos, err)
				}
				if !truthy(v) {
					continue
				}
			}
			return e.evalNodes(b.body, newFlowScope(sc), f)
		}

	case *eachNode:
		v, err := e.value(n.list, sc)
		if err != nil {
			return e.fail(n.pos, err)
		}
		for _, item := range listItems(v) {
			inner := newFlowScope(sc)
			if len(n.vars) == 1 {
				inner.define(n.vars[0], item)
			} else {
				parts := listItems(item)
				for i, name := range n.vars {
					if i < len(parts) {
						inner.define(name, parts[i])
					} else {
						inner.define(name, null{})
					}
				}
			}
			if err := e.evalNodes(n.body, inner, f); err != nil {
				return err
			}
		}

	case *forNode:
		return e.evalFor(n, sc, f)

	default:
		return errorAt(n.position(), "unexpected statement")
	}
	return nil
}

func (e *evaluator) evalFor(n *forNode, sc *scope, f frame) error {
	bound := func(raw string) (*number, error) {
		v, err := e.value(raw, sc)
		if err != nil {
			return nil, err
		}
		num, ok := v.(*number)
		if !ok {
			return nil, fmt.Errorf("%s is not a number", v.css(false))
		}
		return num, nil
	}
	from, err := bound(n.from)
	if err != nil {
		return e.fail(n.pos, err)
	}
	to, err := bound(n.to)
	if err != nil {
		return e.fail(n.pos, err)
	}
	start, end := int(from.v), int(to.v)
	step := 1
	if end < start {
		step = -1
	}
	if n.inclusive {
		end += step
	}
	for i := start; i != end; i += step {
		inner := newFlowScope(sc)
		inner.define(n.variable, &number{v: float64(i), unit: from.unit})
		if err := e.evalNodes(n.body, inner, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) evalDecl(n *declNode, prefix string, sc *scope, f frame) error {
	target := f.rule
	var decls *[]*cssDecl
	switch {
	case target != nil:
		decls = &target.decls
	case f.declOnly != nil:
		decls = &f.declOnly.decls
	default:
		return errorAt(n.pos, "declarations may only be used within style rules")
	}

	prop, err := interpolate(n.prop, sc)
	if err != nil {
		return e.fail(n.pos, err)
	}
	if prefix != "" {
		prop = prefix + "-" + prop
	}

	if n.value != "" {
		var out string
		if verbatimValue(prop, n.value) {
			if out, err = interpolate(n.value, sc); err != nil {
				return e.fail(n.pos, err)
			}
		} else {
			v, err := e.value(n.value, sc)
			if err != nil {
				return e.fail(n.pos, err)
			}
			out = v.css(e.c.opts.OutputStyle == StyleCompressed)
		}
		if out != "" {
			*decls = append(*decls, &cssDecl{prop: prop, value: out})
		}
	}

	for _, child := range n.children {
		switch c := child.(type) {
		case *declNode:
			if err := e.evalDecl(c, prop, sc, f); err != nil {
				return err
			}
		case *commentNode:
		default:
			return errorAt(child.position(), "only properties may be nested in %q", prop)
		}
	}
	return nil
}

// verbatimValue reports whether a declaration's value is emitted as written,
// apart from interpolation. Custom properties, unicode ranges and legacy IE
// filters are not SassScript.
func verbatimValue(prop, value string) bool {
	if strings.HasPrefix(prop, "--") || strings.EqualFold(prop, "unicode-range") {
		return true
	}
	v := strings.TrimSpace(value)
	return len(v) >= len("progid:") && strings.EqualFold(v[:len("progid:")], "progid:")
}

var placeholder = regexp.MustCompile(`%[A-Za-z_-]`)

func (e *evaluator) evalRule(n *ruleNode, sc *scope, f frame) error {
	sel, err := interpolate(n.selector, sc)
	if err != nil {
		return e.fail(n.pos, err)
	}

	if f.inKeyframes {
		rule := &cssRule{selectors: splitSelectors(sel)}
		*f.out = append(*f.out, rule)
		inner := f
		inner.inKeyframes = false
		inner.rule = rule
		inner.selectors = rule.selectors
		return e.evalNodes(n.children, newScope(sc), inner)
	}
	if f.declOnly != nil {
		return errorAt(n.pos, "style rules are not allowed inside @%s", f.declOnly.name)
	}

	selectors, err := resolveSelectors(f.selectors, sel)
	if err != nil {
		return e.fail(n.pos, err)
	}
	rule := &cssRule{}
	for _, s := range selectors {
		if !placeholder.MatchString(s) {
			rule.selectors = append(rule.selectors, s)
		}
	}
	*f.out = append(*f.out, rule)

	inner := f
	inner.selectors = selectors
	inner.rule = rule
	return e.evalNodes(n.children, newScope(sc), inner)
}

var declarationAtRules = map[string]bool{
	"font-face": true, "page": true, "viewport": true, "counter-style": true, "font-feature-values": true,
}

func (e *evaluator) atParams(n *atRuleNode, sc *scope) (string, error) {
	params, err := interpolate(n.params, sc)
	if err != nil {
		return "", e.fail(n.pos, err)
	}
	if params, err = substituteVars(params, sc); err != nil {
		return "", e.fail(n.pos, err)
	}
	return params, nil
}

func (e *evaluator) evalAtRule(n *atRuleNode, sc *scope, f frame) error {
	name := n.name
	switch {
	case name == "import":
		return e.evalImport(n, sc, f)

	case name == "charset":
		if e.sheet.charset == "" {
			e.sheet.charset = n.params
		}
		return nil

	case name == "warn" || name == "debug":
		msg, err := e.value(n.params, sc)
		if err != nil {
			return e.fail(n.pos, err)
		}
		if e.c.opts.Warn != nil {
			e.c.opts.Warn(n.file, n.line, unquote(msg))
		}
		return nil

	case name == "error":
		msg, err := e.value(n.params, sc)
		if err != nil {
			return e.fail(n.pos, err)
		}
		return errorAt(n.pos, "%s", unquote(msg))

	case !n.hasBlock:
		params, err := e.atParams(n, sc)
		if err != nil {
			return err
		}
		e.sheet.statements = append(e.sheet.statements, strings.TrimSpace("@"+name+" "+params))
		return nil

	case declarationAtRules[name]:
		params, err := e.atParams(n, sc)
		if err != nil {
			return err
		}
		at := &cssAtRule{name: name, params: params, declBlock: true}
		*f.out = append(*f.out, at)
		inner := f
		inner.rule = nil
		inner.selectors = nil
		inner.declOnly = at
		return e.evalNodes(n.children, newScope(sc), inner)

	case strings.HasSuffix(name, "keyframes"):
		params, err := e.atParams(n, sc)
		if err != nil {
			return err
		}
		at := &cssAtRule{name: name, params: params}
		*f.out = append(*f.out, at)
		inner := f
		inner.rule = nil
		inner.selectors = nil
		inner.inKeyframes = true
		inner.out = &at.children
		return e.evalNodes(n.children, newScope(sc), inner)
	}

	params, err := e.atParams(n, sc)
	if err != nil {
		return err
	}

	inner := f
	var at *cssAtRule
	if f.media != nil && f.media.name == name && (name == "media" || name == "supports") {
		at = &cssAtRule{name: name, params: f.media.params + " and " + params}
		*f.mediaOut = append(*f.mediaOut, at)
		inner.mediaOut = f.mediaOut
	} else {
		at = &cssAtRule{name: name, params: params}
		*f.out = append(*f.out, at)
		inner.mediaOut = f.out
	}
	inner.media = at
	if f.rule != nil {
		r := &cssRule{selectors: f.rule.selectors}
		at.children = append(at.children, r)
		inner.rule = r
	}
	inner.out = &at.children
	return e.evalNodes(n.children, newScope(sc), inner)
}

func (e *evaluator) evalInclude(n *includeNode, sc *scope, f frame) error {
	def, ok := sc.lookupMixin(n.name)
	if !ok {
		return errorAt(n.pos, "undefined mixin %q", n.name)
	}

	var positional []value
	keyword := make(map[string]value)
	for _, raw := range splitTopLevel(n.args, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if name, expr, ok := keywordArg(raw); ok {
			v, err := e.value(expr, sc)
			if err != nil {
				return e.fail(n.pos, err)
			}
			keyword[normName(name)] = v
			continue
		}
		if len(keyword) > 0 {
			return errorAt(n.pos, "positional arguments must come before keyword arguments")
		}
		v, err := e.value(raw, sc)
		if err != nil {
			return e.fail(n.pos, err)
		}
		positional = append(positional, v)
	}

	params := def.node.params
	if len(positional) > len(params) {
		return errorAt(n.pos, "only %d argument(s) allowed for mixin %q, but %d were passed", len(params), n.name, len(positional))
	}
	ms := newScope(def.scope)
	for i, prm := range params {
		key := normName(prm.name)
		switch v, kw := keyword[key]; {
		case i < len(positional):
			if kw {
				return errorAt(n.pos, "argument $%s was passed both by position and by name", prm.name)
			}
			ms.define(prm.name, positional[i])
		case kw:
			ms.define(prm.name, v)
			delete(keyword, key)
		case prm.hasValue:
			v, err := e.value(prm.fallback, ms)
			if err != nil {
				return e.fail(def.node.pos, err)
			}
			ms.define(prm.name, v)
		default:
			return errorAt(n.pos, "missing argument $%s for mixin %q", prm.name, n.name)
		}
	}
	if len(keyword) > 0 {
		names := make([]string, 0, len(keyword))
		for name := range keyword {
			names = append(names, "$"+name)
		}
		sort.Strings(names)
		return errorAt(n.pos, "no argument named %s for mixin %q", strings.Join(names, ", "), n.name)
	}

	inner := f
	if n.hasContent {
		inner.content = &contentBlock{nodes: n.content, scope: sc, outer: f.content}
	} else {
		inner.content = nil
	}
	return e.evalNodes(def.node.body, ms, inner)
}

func keywordArg(raw string) (string, string, bool) {
	if !strings.HasPrefix(raw, "$") {
		return "", "", false
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return "", "", false
	}
	name := strings.TrimSpace(raw[1:colon])
	if !isIdent(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(raw[colon+1:]), true
}

func isPlainImport(target string) bool {
	t := strings.TrimSpace(target)
	if strings.HasPrefix(t, "url(") {
		return true
	}
	if t == "" || (t[0] != '"' && t[0] != '\'') {
		return false
	}
	end := strings.IndexByte(t[1:], t[0])
	if end < 0 {
		return false
	}
	path := t[1 : end+1]
	if strings.TrimSpace(t[end+2:]) != "" {
		return true
	}
	return strings.HasSuffix(path, ".css") ||
		strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "//")
}

func (e *evaluator) evalImport(n *atRuleNode, sc *scope, f frame) error {
	for _, target := range splitTopLevel(n.params, ',') {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if isPlainImport(target) {
			t, err := interpolate(target, sc)
			if err != nil {
				return e.fail(n.pos, err)
			}
			e.sheet.imports = append(e.sheet.imports, "@import "+t)
			continue
		}
		if len(target) < 2 || (target[0] != '"' && target[0] != '\'') || target[len(target)-1] != target[0] {
			return errorAt(n.pos, "expected a quoted import path, got %s", target)
		}
		if err := e.importFile(n, target[1:len(target)-1], sc, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) importFile(n *atRuleNode, target string, sc *scope, f frame) error {
	path, err := e.c.resolve(n.file, target)
	if err != nil {
		return errorAt(n.pos, "%s", err.Error())
	}
	for _, open := range e.imports {
		if open == path {
			return errorAt(n.pos, "%s is already being imported", target)
		}
	}
	nodes, err := e.c.load(path)
	if err != nil {
		return e.fail(n.pos, err)
	}
	e.imports = append(e.imports, path)
	defer func() { e.imports = e.imports[:len(e.imports)-1] }()
	return e.evalNodes(nodes, sc, f)
}

func splitSelectors(sel string) []string {
	var out []string
	for _, s := range splitTopLevel(sel, ',') {
		if s = normalizeSelector(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func resolveSelectors(parents []string, sel string) ([]string, error) {
	children := splitSelectors(sel)
	if len(children) == 0 {
		return nil, fmt.Errorf("expected selector")
	}
	if len(parents) == 0 {
		for _, c := range children {
			if strings.Contains(c, "&") {
				return nil, fmt.Errorf("top-level selectors may not contain the parent selector \"&\"")
			}
		}
		return children, nil
	}
	out := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, c := range children {
			if strings.Contains(c, "&") {
				out = append(out, normalizeSelector(strings.ReplaceAll(c, "&", p)))
			} else {
				out = append(out, normalizeSelector(p+" "+c))
			}
		}
	}
	return out, nil
}

// normalizeSelector collapses whitespace and puts single spaces around
// combinators.
func normalizeSelector(s string) string {
	var b strings.Builder
	depth := 0
	var quote byte
	pending := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case (c == ')' || c == ']') && depth > 0:
			depth--
		case depth == 0 && isSpaceByte(c):
			pending = true
			continue
		case depth == 0 && (c == '>' || c == '+' || c == '~'):
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(c)
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pending = false
		b.WriteByte(c)
	}
	return b.String()
}
