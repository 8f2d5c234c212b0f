package styles

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

func compile(t *testing.T, src string, opts Options) string {
	t.Helper()
	out, err := NewCompiler(afero.NewMemMapFs(), opts).Compile("app/sass/main.scss", []byte(src))
	require.NoError(t, err)
	return string(out)
}

func TestCompileExpanded(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "variables and nesting",
			src: `$primary: #336699;
$pad: 10px;

.nav {
  color: $primary;
  padding: $pad * 2;
  a {
    color: red;
    &:hover { text-decoration: underline; }
  }
}`,
			want: `.nav {
  color: #336699;
  padding: 20px;
}

.nav a {
  color: red;
}

.nav a:hover {
  text-decoration: underline;
}
`,
		},
		{
			name: "media queries bubble with the parent selector",
			src: `.card {
  width: 100%;
  @media (min-width: 768px) {
    width: 50%;
  }
}`,
			want: `.card {
  width: 100%;
}

@media (min-width: 768px) {
  .card {
    width: 50%;
  }
}
`,
		},
		{
			name: "nested media queries merge",
			src: `$bp: 600px;
@media screen {
  .a {
    @media (min-width: $bp) { color: red; }
  }
}`,
			want: `@media screen and (min-width: 600px) {
  .a {
    color: red;
  }
}
`,
		},
		{
			name: "mixins with defaults, keywords and content",
			src: `@mixin button($bg, $fg: white) {
  background: $bg;
  color: $fg;
  @content;
}
.btn {
  @include button(blue) {
    border: 0;
  }
}
.alt { @include button($fg: black, $bg: green); }`,
			want: `.btn {
  background: blue;
  color: white;
  border: 0;
}

.alt {
  background: green;
  color: black;
}
`,
		},
		{
			name: "selector lists expand against every parent",
			src:  `.a, .b { > p, + span { margin: 0; } }`,
			want: `.a > p, .a + span, .b > p, .b + span {
  margin: 0;
}
`,
		},
		{
			name: "parent suffixes",
			src:  `.block { &__el { color: red; } &--mod { color: blue; } }`,
			want: `.block__el {
  color: red;
}

.block--mod {
  color: blue;
}
`,
		},
		{
			name: "nested properties",
			src:  `.f { font: { family: serif; size: 12px; } }`,
			want: `.f {
  font-family: serif;
  font-size: 12px;
}
`,
		},
		{
			name: "slash is division only inside parentheses or with variables",
			src: `$w: 100px;
.x { font: 12px/1.5 sans-serif; width: (100px / 4); height: $w / 2; }`,
			want: `.x {
  font: 12px/1.5 sans-serif;
  width: 25px;
  height: 50px;
}
`,
		},
		{
			name: "color functions",
			src:  `.c { color: darken(#ffffff, 20%); background: rgba(#000, .5); }`,
			want: `.c {
  color: #cccccc;
  background: rgba(0, 0, 0, 0.5);
}
`,
		},
		{
			name: "control flow",
			src: `$sizes: sm 10px, lg 20px;
@each $name, $size in $sizes {
  .p-#{$name} { padding: $size; }
}
@for $i from 1 through 2 {
  .m-#{$i} { margin: $i * 4px; }
}
$dark: true;
.t { @if $dark { color: white; } @else { color: black; } }`,
			want: `.p-sm {
  padding: 10px;
}

.p-lg {
  padding: 20px;
}

.m-1 {
  margin: 4px;
}

.m-2 {
  margin: 8px;
}

.t {
  color: white;
}
`,
		},
		{
			name: "default variables keep earlier values",
			src: `$c: red;
$c: blue !default;
$d: green !default;
.a { color: $c; background: $d; }`,
			want: `.a {
  color: red;
  background: green;
}
`,
		},
		{
			name: "comments, keyframes and font-face pass through",
			src: `/* header */
// dropped
@font-face { font-family: "Inter"; src: url(inter.woff2) format("woff2"); }
@keyframes spin { from { transform: rotate(0deg); } to { transform: rotate(360deg); } }`,
			want: `/* header */

@font-face {
  font-family: "Inter";
  src: url(inter.woff2) format("woff2");
}

@keyframes spin {
  from {
    transform: rotate(0deg);
  }
  to {
    transform: rotate(360deg);
  }
}
`,
		},
		{
			name: "plain css imports are hoisted",
			src: `.a { color: red; }
@import url(reset.css);`,
			want: `@import url(reset.css);

.a {
  color: red;
}
`,
		},
		{
			name: "placeholders are not emitted",
			src:  `%hidden { color: red; } .shown { color: blue; }`,
			want: `.shown {
  color: blue;
}
`,
		},
		{
			name: "custom properties keep their value",
			src:  `$x: 4px; :root { --gap: #{$x}; --raw: a  b; }`,
			want: `:root {
  --gap: 4px;
  --raw: a  b;
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compile(t, tt.src, Options{}))
		})
	}
}

func TestCompileCompressed(t *testing.T) {
	src := `/*! keep */
/* drop */
a, b { color: red; margin: 0 auto; }
@media print { a { display: none; } }`
	out := compile(t, src, Options{OutputStyle: StyleCompressed})
	assert.Equal(t, "/*! keep */a,b{color:red;margin:0 auto}@media print{a{display:none}}\n", out)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		message string
	}{
		{"unclosed block", "a {\n  color: red;\n", 3, `expected "}"`},
		{"undefined variable", "a {\n  color: $nope;\n}", 2, "undefined variable $nope"},
		{"undefined mixin", "a { @include missing; }", 1, `undefined mixin "missing"`},
		{"missing argument", "@mixin m($a) { b: $a; }\na { @include m; }", 2, "missing argument $a"},
		{"unsupported at-rule", "a {\n  @extend .b;\n}", 2, "@extend is not supported"},
		{"declaration at top level", "color: red;", 1, "declarations may only be used within style rules"},
		{"parent selector at top level", "& .a { color: red; }", 1, "parent selector"},
		{"incompatible units", "a { width: 1px + 1em; }", 1, "incompatible units px and em"},
		{"error at-rule", "@error \"stop here\";", 1, "stop here"},
		{"missing import", "@import \"nowhere\";", 1, "can't find stylesheet to import"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompiler(afero.NewMemMapFs(), Options{}).Compile("app/sass/main.scss", []byte(tt.src))
			require.Error(t, err)

			var se *SyntaxError
			require.True(t, errors.As(err, &se), "want a positioned error, got %T", err)
			assert.Equal(t, "app/sass/main.scss", se.File)
			assert.Equal(t, tt.line, se.Line)
			assert.Contains(t, se.Message, tt.message)

			file, line, col := se.Position()
			assert.Equal(t, se.File, file)
			assert.Equal(t, se.Line, line)
			assert.Positive(t, col)
		})
	}
}

func TestCompileKeepsLegacyValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"important without a space", ".a { color: red!important; }", "  color: red !important;"},
		{"important with a space", ".a { margin: 0 auto !important; }", "  margin: 0 auto !important;"},
		{"ie alpha filter", ".a { filter: alpha(opacity=50); }", "  filter: alpha(opacity=50);"},
		{
			"progid filter",
			".a { filter: progid:DXImageTransform.Microsoft.gradient(startColorstr='#80000000', endColorstr='#80000000'); }",
			"  filter: progid:DXImageTransform.Microsoft.gradient(startColorstr='#80000000', endColorstr='#80000000');",
		},
		{
			"unicode range",
			"@font-face { font-family: x; unicode-range: U+0000-00FF, U+0131; }",
			"  unicode-range: U+0000-00FF, U+0131;",
		},
		{
			"interpolation in a verbatim value",
			"$lo: \"0000\";\n@font-face { unicode-range: U+#{$lo}-00FF; }",
			"  unicode-range: U+0000-00FF;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, compile(t, tt.src, Options{}), tt.want)
		})
	}
}

func TestModuleFunctionsAreRejected(t *testing.T) {
	_, err := NewCompiler(afero.NewMemMapFs(), Options{}).Compile("app/sass/main.scss", []byte(".a { width: math.div(10px, 2); }"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module functions are not supported: math.div()")

	v, err := evalExpr("a.b", newScope(nil))
	require.NoError(t, err)
	assert.Equal(t, "a.b", v.css(false))
}

func TestCompileImports(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"app/sass/_vars.scss":           "$c: #fff;",
		"app/sass/components/_btn.scss": ".btn { color: $c; }",
		"vendor/sass/_grid.scss":        ".row { display: flex; }",
		"app/sass/main.scss":            "@import \"vars\", \"components/btn\";\n@import \"grid\";\nbody { color: $c; }",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	c := NewCompiler(fs, Options{LoadPaths: []string{"vendor/sass"}})
	out, err := c.Compile("app/sass/main.scss", []byte(files["app/sass/main.scss"]))
	require.NoError(t, err)
	assert.Equal(t, `.btn {
  color: #fff;
}

.row {
  display: flex;
}

body {
  color: #fff;
}
`, string(out))
}

func TestCompileImportCycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "app/sass/a.scss", []byte(`@import "b";`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "app/sass/_b.scss", []byte(`@import "a";`), 0o644))

	_, err := NewCompiler(fs, Options{}).Compile("app/sass/a.scss", []byte(`@import "b";`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already being imported")

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "app/sass/_b.scss", se.File)
}

func TestCompileIndentedSyntax(t *testing.T) {
	src := `$c: red

=pad($x)
  padding: $x

.a
  color: $c
  // a comment
  .b
    +pad(4px)
    margin: 0
`
	out, err := NewCompiler(afero.NewMemMapFs(), Options{}).Compile("app/sass/main.sass", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, `.a {
  color: red;
}

.a .b {
  padding: 4px;
  margin: 0;
}
`, string(out))
}

func TestIndentedErrorsKeepLineNumbers(t *testing.T) {
	src := ".a\n  color: $missing\n"
	_, err := NewCompiler(afero.NewMemMapFs(), Options{}).Compile("app/sass/main.sass", []byte(src))
	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Line)
}

func TestAutoprefix(t *testing.T) {
	src := `.a { user-select: none; position: sticky; }
.g { display: grid; grid-template-columns: repeat(3, 1fr); grid-column: 1 / 3; }`

	t.Run("without cascade", func(t *testing.T) {
		out := compile(t, src, Options{Autoprefix: AutoprefixOptions{Enabled: true, Grid: true}})
		assert.Equal(t, `.a {
  -webkit-user-select: none;
  -moz-user-select: none;
  -ms-user-select: none;
  user-select: none;
  position: -webkit-sticky;
  position: sticky;
}

.g {
  display: -ms-grid;
  display: grid;
  -ms-grid-columns: (1fr)[3];
  grid-template-columns: repeat(3, 1fr);
  -ms-grid-column: 1;
  -ms-grid-column-span: 2;
  grid-column: 1 / 3;
}
`, out)
	})

	t.Run("cascade aligns prefixes", func(t *testing.T) {
		out := compile(t, `.a { user-select: none; }`, Options{Autoprefix: AutoprefixOptions{Enabled: true, Cascade: true}})
		assert.Equal(t, `.a {
  -webkit-user-select: none;
     -moz-user-select: none;
      -ms-user-select: none;
          user-select: none;
}
`, out)
	})

	t.Run("grid off", func(t *testing.T) {
		out := compile(t, `.g { display: grid; }`, Options{Autoprefix: AutoprefixOptions{Enabled: true}})
		assert.NotContains(t, out, "-ms-grid")
	})

	t.Run("disabled", func(t *testing.T) {
		out := compile(t, `.a { user-select: none; }`, Options{})
		assert.NotContains(t, out, "-webkit-")
	})

	t.Run("existing prefixes are kept once", func(t *testing.T) {
		out := compile(t, `.a { -webkit-user-select: text; user-select: none; }`, Options{Autoprefix: AutoprefixOptions{Enabled: true}})
		assert.Equal(t, 1, countOf(out, "-webkit-user-select"))
	})

	t.Run("placeholder selectors", func(t *testing.T) {
		out := compile(t, `input::placeholder { color: gray; }`, Options{Autoprefix: AutoprefixOptions{Enabled: true}})
		assert.Contains(t, out, "input::-webkit-input-placeholder {")
		assert.Contains(t, out, "input::-moz-placeholder {")
		assert.Contains(t, out, "input::placeholder {")
	})
}

func countOf(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestTransform(t *testing.T) {
	c := NewCompiler(afero.NewMemMapFs(), Options{})
	tr := Transform(c, nil)

	out, err := tr.Apply(context.Background(), &pipeline.File{
		Path:     "app/sass/site.scss",
		Rel:      "site.scss",
		Contents: []byte("$c: red; a { color: $c; }"),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "site.css", out[0].Rel)
	assert.Equal(t, "a {\n  color: red;\n}\n", string(out[0].Contents))

	out, err = tr.Apply(context.Background(), &pipeline.File{Path: "app/sass/_vars.scss", Rel: "_vars.scss"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPrefixCompiledCSS(t *testing.T) {
	c := NewCompiler(afero.NewMemMapFs(), Options{Autoprefix: AutoprefixOptions{Enabled: true}})
	out, err := c.Prefix("app/sass/site.scss", []byte(".a{appearance:none}"))
	require.NoError(t, err)
	assert.Equal(t, ".a {\n  -webkit-appearance: none;\n  -moz-appearance: none;\n  appearance: none;\n}\n", string(out))
}

func TestSassCommand(t *testing.T) {
	_, err := NewSassCommand("rm", nil, "")
	assert.Error(t, err)

	_, err = NewSassCommand("sass; rm -rf /", nil, "")
	assert.Error(t, err)

	_, err = NewSassCommand("sass", []string{"vendor;evil"}, "")
	assert.Error(t, err)

	cmd, err := NewSassCommand("/usr/local/bin/sass", []string{"vendor/sass"}, StyleCompressed)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--stdin", "--no-source-map", "--style=compressed", "--indented",
		"--load-path=app/sass", "--load-path=vendor/sass",
	}, cmd.Args("app/sass/main.sass"))
	assert.NotContains(t, cmd.Args("app/sass/main.scss"), "--indented")
}
