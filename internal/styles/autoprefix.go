package styles

import (
	"strconv"
	"strings"
)

// AutoprefixOptions controls vendor prefixing.
type AutoprefixOptions struct {
	Enabled bool
	// Grid adds the -ms- grid properties understood by old Edge and IE.
	Grid bool
	// Cascade indents prefixed declarations so the unprefixed names line up.
	Cascade bool
}

var propertyPrefixes = map[string][]string{
	"appearance":           {"-webkit-", "-moz-"},
	"backdrop-filter":      {"-webkit-"},
	"box-decoration-break": {"-webkit-"},
	"clip-path":            {"-webkit-"},
	"hyphens":              {"-webkit-", "-ms-"},
	"mask":                 {"-webkit-"},
	"mask-image":           {"-webkit-"},
	"mask-position":        {"-webkit-"},
	"mask-repeat":          {"-webkit-"},
	"mask-size":            {"-webkit-"},
	"print-color-adjust":   {"-webkit-"},
	"tab-size":             {"-moz-"},
	"text-emphasis":        {"-webkit-"},
	"text-size-adjust":     {"-webkit-", "-moz-", "-ms-"},
	"user-select":          {"-webkit-", "-moz-", "-ms-"},
}

var selectorPrefixes = []struct {
	pseudo   string
	prefixed []string
}{
	{"::placeholder", []string{"::-webkit-input-placeholder", "::-moz-placeholder", ":-ms-input-placeholder"}},
	{"::selection", []string{"::-moz-selection"}},
}

type prefixer struct {
	opts     AutoprefixOptions
	expanded bool
}

// autoprefix rewrites the stylesheet in place.
func autoprefix(sheet *stylesheet, opts AutoprefixOptions, style string) {
	if !opts.Enabled {
		return
	}
	p := &prefixer{opts: opts, expanded: style != StyleCompressed}
	sheet.nodes = p.nodes(sheet.nodes)
}

func (p *prefixer) nodes(in []cssNode) []cssNode {
	out := make([]cssNode, 0, len(in))
	for _, n := range in {
		switch n := n.(type) {
		case *cssRule:
			out = append(out, p.selectorCopies(n)...)
			n.decls = p.decls(n.decls)
			out = append(out, n)
		case *cssAtRule:
			if n.declBlock {
				n.decls = p.decls(n.decls)
			} else {
				n.children = p.nodes(n.children)
			}
			out = append(out, n)
		default:
			out = append(out, n)
		}
	}
	return out
}

// selectorCopies duplicates rules that use pseudo-elements browsers only
// understand with a prefix. Each copy stands alone because an unknown
// selector invalidates the whole list it appears in.
func (p *prefixer) selectorCopies(r *cssRule) []cssNode {
	var copies []cssNode
	for _, sp := range selectorPrefixes {
		uses := false
		for _, s := range r.selectors {
			if strings.Contains(s, sp.pseudo) {
				uses = true
			}
		}
		if !uses {
			continue
		}
		for _, alt := range sp.prefixed {
			c := &cssRule{}
			for _, s := range r.selectors {
				c.selectors = append(c.selectors, strings.ReplaceAll(s, sp.pseudo, alt))
			}
			for _, d := range r.decls {
				dup := *d
				c.decls = append(c.decls, &dup)
			}
			copies = append(copies, c)
		}
	}
	return copies
}

func (p *prefixer) decls(in []*cssDecl) []*cssDecl {
	present := make(map[string]bool, len(in))
	for _, d := range in {
		present[d.prop] = true
	}

	out := make([]*cssDecl, 0, len(in))
	for _, d := range in {
		if d.comment != "" {
			out = append(out, d)
			continue
		}
		prop := strings.ToLower(d.prop)

		if prefixes, ok := propertyPrefixes[prop]; ok {
			widest := 0
			var added []*cssDecl
			for _, pre := range prefixes {
				if present[pre+prop] {
					continue
				}
				added = append(added, &cssDecl{prop: pre + d.prop, value: d.value, pad: len(pre)})
				if len(pre) > widest {
					widest = len(pre)
				}
			}
			if p.opts.Cascade && p.expanded && len(added) > 0 {
				for _, a := range added {
					a.pad = widest - a.pad
				}
				d.pad = widest
			} else {
				for _, a := range added {
					a.pad = 0
				}
			}
			out = append(out, added...)
			out = append(out, d)
			continue
		}

		if prop == "position" && strings.EqualFold(strings.TrimSpace(d.value), "sticky") {
			out = append(out, &cssDecl{prop: d.prop, value: "-webkit-sticky"}, d)
			continue
		}

		if p.opts.Grid {
			out = append(out, gridFallbacks(prop, d.value)...)
		}
		out = append(out, d)
	}
	return out
}

func gridFallbacks(prop, value string) []*cssDecl {
	v := strings.TrimSpace(value)
	switch prop {
	case "display":
		switch v {
		case "grid":
			return []*cssDecl{{prop: "display", value: "-ms-grid"}}
		case "inline-grid":
			return []*cssDecl{{prop: "display", value: "-ms-inline-grid"}}
		}
	case "grid-template-columns":
		return []*cssDecl{{prop: "-ms-grid-columns", value: msTrackList(v)}}
	case "grid-template-rows":
		return []*cssDecl{{prop: "-ms-grid-rows", value: msTrackList(v)}}
	case "grid-row", "grid-column":
		axis := strings.TrimPrefix(prop, "grid-")
		start, span, ok := gridPlacement(v)
		if !ok {
			return nil
		}
		out := []*cssDecl{{prop: "-ms-grid-" + axis, value: strconv.Itoa(start)}}
		if span > 1 {
			out = append(out, &cssDecl{prop: "-ms-grid-" + axis + "-span", value: strconv.Itoa(span)})
		}
		return out
	}
	return nil
}

// msTrackList converts repeat(n, size) into the old (size)[n] syntax.
func msTrackList(v string) string {
	var b strings.Builder
	for {
		i := strings.Index(v, "repeat(")
		if i < 0 {
			b.WriteString(v)
			return b.String()
		}
		end := matchClose(v, i+len("repeat"))
		if end < 0 {
			b.WriteString(v)
			return b.String()
		}
		b.WriteString(v[:i])
		args := splitTopLevel(v[i+len("repeat("):end], ',')
		if len(args) == 2 {
			b.WriteString("(" + strings.TrimSpace(args[1]) + ")[" + strings.TrimSpace(args[0]) + "]")
		} else {
			b.WriteString(v[i : end+1])
		}
		v = v[end+1:]
	}
}

func gridPlacement(v string) (start, span int, ok bool) {
	parts := strings.Split(v, "/")
	first, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return first, 1, true
	}
	second := strings.TrimSpace(parts[1])
	if strings.HasPrefix(second, "span") {
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(second, "span")))
		if err != nil {
			return 0, 0, false
		}
		return first, n, true
	}
	end, err := strconv.Atoi(second)
	if err != nil || end <= first {
		return 0, 0, false
	}
	return first, end - first, true
}
