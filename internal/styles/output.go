package styles

import (
	"strings"
)

// Output styles.
const (
	StyleExpanded   = "expanded"
	StyleCompressed = "compressed"
)

type cssNode interface{}

type cssDecl struct {
	prop    string
	value   string
	comment string
	// pad indents prefixed declarations so their unprefixed names line up.
	pad int
}

type cssRule struct {
	selectors []string
	decls     []*cssDecl
}

type cssAtRule struct {
	name      string
	params    string
	children  []cssNode
	decls     []*cssDecl
	declBlock bool
}

type cssComment struct {
	text string
}

type stylesheet struct {
	charset    string
	imports    []string
	statements []string
	nodes      []cssNode
}

func (r *cssRule) empty() bool {
	if len(r.selectors) == 0 {
		return true
	}
	for _, d := range r.decls {
		if d.comment == "" {
			return false
		}
	}
	return true
}

func (a *cssAtRule) empty() bool {
	if a.declBlock {
		return len(a.decls) == 0
	}
	for _, c := range a.children {
		if !isEmpty(c) {
			return false
		}
	}
	return true
}

func isEmpty(n cssNode) bool {
	switch n := n.(type) {
	case *cssRule:
		return n.empty()
	case *cssAtRule:
		return n.empty()
	}
	return false
}

type printer struct {
	b          strings.Builder
	compressed bool
}

func render(sheet *stylesheet, style string) string {
	p := &printer{compressed: style == StyleCompressed}
	var head []string
	if sheet.charset != "" {
		head = append(head, "@charset "+sheet.charset+";")
	}
	for _, imp := range sheet.imports {
		head = append(head, imp+";")
	}
	for _, st := range sheet.statements {
		head = append(head, st+";")
	}

	if p.compressed {
		p.b.WriteString(strings.Join(head, ""))
		for _, n := range sheet.nodes {
			p.compressedNode(n)
		}
		out := p.b.String()
		if out != "" {
			out += "\n"
		}
		return out
	}

	blocks := append([]string(nil), head...)
	for _, n := range sheet.nodes {
		if isEmpty(n) {
			continue
		}
		p.b.Reset()
		p.expandedNode(n, 0)
		blocks = append(blocks, p.b.String())
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

func (p *printer) expandedNode(n cssNode, depth int) {
	switch n := n.(type) {
	case *cssComment:
		p.b.WriteString(indent(depth) + n.text)
	case *cssRule:
		p.b.WriteString(indent(depth) + strings.Join(n.selectors, ", ") + " {\n")
		p.expandedDecls(n.decls, depth+1)
		p.b.WriteString(indent(depth) + "}")
	case *cssAtRule:
		p.b.WriteString(indent(depth) + "@" + n.name)
		if n.params != "" {
			p.b.WriteString(" " + n.params)
		}
		p.b.WriteString(" {\n")
		if n.declBlock {
			p.expandedDecls(n.decls, depth+1)
		} else {
			first := true
			for _, c := range n.children {
				if isEmpty(c) {
					continue
				}
				if !first {
					p.b.WriteString("\n")
				}
				first = false
				p.expandedNode(c, depth+1)
			}
			p.b.WriteString("\n")
		}
		p.b.WriteString(indent(depth) + "}")
	}
}

func (p *printer) expandedDecls(decls []*cssDecl, depth int) {
	for _, d := range decls {
		if d.comment != "" {
			p.b.WriteString(indent(depth) + d.comment + "\n")
			continue
		}
		p.b.WriteString(indent(depth) + strings.Repeat(" ", d.pad) + d.prop + ": " + d.value + ";\n")
	}
}

func (p *printer) compressedNode(n cssNode) {
	if isEmpty(n) {
		return
	}
	switch n := n.(type) {
	case *cssComment:
		if strings.HasPrefix(n.text, "/*!") {
			p.b.WriteString(n.text)
		}
	case *cssRule:
		p.b.WriteString(strings.Join(n.selectors, ","))
		p.compressedDecls(n.decls)
	case *cssAtRule:
		p.b.WriteString("@" + n.name)
		if n.params != "" {
			p.b.WriteString(" " + n.params)
		}
		if n.declBlock {
			p.compressedDecls(n.decls)
			return
		}
		p.b.WriteString("{")
		for _, c := range n.children {
			p.compressedNode(c)
		}
		p.b.WriteString("}")
	}
}

func (p *printer) compressedDecls(decls []*cssDecl) {
	p.b.WriteString("{")
	first := true
	for _, d := range decls {
		if d.comment != "" {
			continue
		}
		if !first {
			p.b.WriteString(";")
		}
		first = false
		p.b.WriteString(d.prop + ":" + d.value)
	}
	p.b.WriteString("}")
}
