// Package styles compiles SCSS and indented Sass stylesheets to CSS and
// adds vendor prefixes to the result.
//
// The compiler covers the part of Sass that static sites lean on: variables,
// nesting with parent references, mixins with content blocks, @import of
// partials, control flow with @if, @each and @for, arithmetic on numbers with
// units and a handful of color functions. Anything else is reported as a
// positioned error rather than silently emitted.
package styles

import "fmt"

type pos struct {
	file string
	line int
	col  int
}

// SyntaxError is a compile error at a position in a stylesheet.
type SyntaxError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// Position returns where the error happened.
func (e *SyntaxError) Position() (string, int, int) {
	return e.File, e.Line, e.Column
}

// Msg returns the message without the position prefix.
func (e *SyntaxError) Msg() string {
	return e.Message
}

func errorAt(p pos, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{File: p.file, Line: p.line, Column: p.col, Message: fmt.Sprintf(format, args...)}
}

type node interface {
	position() pos
}

type ruleNode struct {
	pos
	selector string
	children []node
}

type declNode struct {
	pos
	prop     string
	value    string
	children []node // nested properties, `font: { family: x }`
}

type varNode struct {
	pos
	name      string
	value     string
	isDefault bool
	global    bool
}

type atRuleNode struct {
	pos
	name     string
	params   string
	children []node
	hasBlock bool
}

type commentNode struct {
	pos
	text string
}

type mixinNode struct {
	pos
	name   string
	params []param
	body   []node
}

type param struct {
	name     string
	fallback string
	hasValue bool
}

type includeNode struct {
	pos
	name       string
	args       string
	content    []node
	hasContent bool
}

type contentNode struct {
	pos
}

type ifNode struct {
	pos
	branches []ifBranch
}

type ifBranch struct {
	cond string // empty for @else
	body []node
}

type eachNode struct {
	pos
	vars []string
	list string
	body []node
}

type forNode struct {
	pos
	variable  string
	from, to  string
	inclusive bool
	body      []node
}

func (p pos) position() pos { return p }
