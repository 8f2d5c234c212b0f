package templates

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "br": true,
	"button": true, "cite": true, "code": true, "data": true, "dfn": true,
	"em": true, "i": true, "img": true, "input": true, "kbd": true, "label": true,
	"mark": true, "q": true, "s": true, "samp": true, "small": true, "span": true,
	"strong": true, "sub": true, "sup": true, "time": true, "u": true, "var": true,
	"wbr": true,
}

// Elements whose contents are written exactly as parsed.
var rawElements = map[string]bool{
	"pre": true, "textarea": true, "script": true, "style": true,
}

// Pretty re-indents an HTML document or fragment, two spaces per level.
// Block elements go on their own lines; elements holding only text and
// inline markup stay on one line with whitespace collapsed.
func Pretty(src []byte) ([]byte, error) {
	var nodes []*html.Node
	if isDocument(src) {
		doc, err := html.Parse(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parsing html: %w", err)
		}
		for c := doc.FirstChild; c != nil; c = c.NextSibling {
			nodes = append(nodes, c)
		}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		var err error
		if nodes, err = html.ParseFragment(bytes.NewReader(src), body); err != nil {
			return nil, fmt.Errorf("parsing html: %w", err)
		}
	}

	var b bytes.Buffer
	p := &prettyPrinter{w: &b}
	for _, n := range nodes {
		if err := p.node(n, 0); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

func isDocument(src []byte) bool {
	head := strings.ToLower(string(bytes.TrimSpace(src[:min(len(src), 512)])))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

type prettyPrinter struct {
	w *bytes.Buffer
}

func (p *prettyPrinter) line(depth int, s string) {
	p.w.WriteString(strings.Repeat("  ", depth))
	p.w.WriteString(s)
	p.w.WriteByte('\n')
}

func (p *prettyPrinter) node(n *html.Node, depth int) error {
	switch n.Type {
	case html.DoctypeNode:
		p.line(depth, "<!DOCTYPE "+n.Data+">")
	case html.CommentNode:
		p.line(depth, "<!--"+n.Data+"-->")
	case html.TextNode:
		if text := strings.TrimSpace(collapseSpace(n.Data)); text != "" {
			p.line(depth, html.EscapeString(text))
		}
	case html.ElementNode:
		switch {
		case rawElements[n.Data]:
			var b bytes.Buffer
			if err := html.Render(&b, n); err != nil {
				return err
			}
			p.line(depth, b.String())
		case voidElements[n.Data]:
			p.line(depth, openTag(n))
		case inlineOnly(n):
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				inline(&b, c)
			}
			p.line(depth, openTag(n)+strings.TrimSpace(b.String())+"</"+n.Data+">")
		default:
			p.line(depth, openTag(n))
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if err := p.node(c, depth+1); err != nil {
					return err
				}
			}
			p.line(depth, "</"+n.Data+">")
		}
	}
	return nil
}

func inlineOnly(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode, html.CommentNode:
		case html.ElementNode:
			if !inlineElements[c.Data] || !inlineOnly(c) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func inline(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(html.EscapeString(collapseSpace(n.Data)))
	case html.CommentNode:
		b.WriteString("<!--" + n.Data + "-->")
	case html.ElementNode:
		b.WriteString(openTag(n))
		if voidElements[n.Data] {
			return
		}
		var inner strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			inline(&inner, c)
		}
		b.WriteString(inner.String())
		b.WriteString("</" + n.Data + ">")
	}
}

func openTag(n *html.Node) string {
	var b strings.Builder
	b.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + key
		}
		b.WriteString(" " + key + `="` + html.EscapeString(a.Val) + `"`)
	}
	b.WriteString(">")
	return b.String()
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}
