package styles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type value interface {
	css(compressed bool) string
}

type number struct {
	v    float64
	unit string
}

type str struct {
	s     string
	quote byte
}

type color struct {
	r, g, b, a float64
	raw        string
}

type list struct {
	items []value
	comma bool
}

type boolean bool

type null struct{}

func (n *number) css(bool) string { return formatNumber(n.v) + n.unit }

func (s *str) css(bool) string {
	if s.quote == 0 {
		return s.s
	}
	return string(s.quote) + s.s + string(s.quote)
}

func (c *color) css(bool) string {
	if c.raw != "" {
		return c.raw
	}
	r, g, b := channel(c.r), channel(c.g), channel(c.b)
	if c.a >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, formatNumber(math.Max(c.a, 0)))
}

func (l *list) css(compressed bool) string {
	sep := " "
	if l.comma {
		sep = ", "
		if compressed {
			sep = ","
		}
	}
	parts := make([]string, 0, len(l.items))
	for _, item := range l.items {
		if _, ok := item.(null); ok {
			continue
		}
		parts = append(parts, item.css(compressed))
	}
	return strings.Join(parts, sep)
}

func (b boolean) css(bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (null) css(bool) string { return "" }

func channel(v float64) int {
	return int(math.Round(math.Max(0, math.Min(255, v))))
}

func formatNumber(v float64) string {
	r := math.Round(v*1e10) / 1e10
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func truthy(v value) bool {
	switch t := v.(type) {
	case boolean:
		return bool(t)
	case null:
		return false
	}
	return true
}

func unquote(v value) string {
	if s, ok := v.(*str); ok {
		return s.s
	}
	return v.css(false)
}

func listItems(v value) []value {
	if l, ok := v.(*list); ok {
		return l.items
	}
	return []value{v}
}

var unitFactors = map[string]struct {
	group  string
	factor float64
}{
	"px":   {"length", 1},
	"in":   {"length", 96},
	"cm":   {"length", 96 / 2.54},
	"mm":   {"length", 96 / 25.4},
	"q":    {"length", 96 / 101.6},
	"pt":   {"length", 4.0 / 3.0},
	"pc":   {"length", 16},
	"s":    {"time", 1000},
	"ms":   {"time", 1},
	"deg":  {"angle", 1},
	"grad": {"angle", 0.9},
	"rad":  {"angle", 180 / math.Pi},
	"turn": {"angle", 360},
}

// convert expresses n in unit, when the two units measure the same thing.
func convert(n *number, unit string) (float64, bool) {
	if n.unit == unit || n.unit == "" || unit == "" {
		return n.v, true
	}
	from, ok1 := unitFactors[strings.ToLower(n.unit)]
	to, ok2 := unitFactors[strings.ToLower(unit)]
	if !ok1 || !ok2 || from.group != to.group {
		return 0, false
	}
	return n.v * from.factor / to.factor, true
}

func arith(op string, a, b value) (value, error) {
	an, aok := a.(*number)
	bn, bok := b.(*number)
	if !aok || !bok {
		_, ac := a.(*color)
		_, bc := b.(*color)
		if ac || bc {
			return nil, fmt.Errorf("undefined operation \"%s %s %s\"", a.css(false), op, b.css(false))
		}
		switch op {
		case "+":
			if s, ok := a.(*str); ok {
				return &str{s: s.s + unquote(b), quote: s.quote}, nil
			}
			return &str{s: a.css(false) + unquote(b)}, nil
		case "-":
			return &str{s: a.css(false) + "-" + b.css(false)}, nil
		}
		return nil, fmt.Errorf("undefined operation \"%s %s %s\"", a.css(false), op, b.css(false))
	}

	switch op {
	case "+", "-":
		unit := an.unit
		if unit == "" {
			unit = bn.unit
		}
		bv, ok := convert(bn, unit)
		if !ok {
			return nil, fmt.Errorf("incompatible units %s and %s", an.unit, bn.unit)
		}
		av, _ := convert(an, unit)
		if op == "+" {
			return &number{v: av + bv, unit: unit}, nil
		}
		return &number{v: av - bv, unit: unit}, nil
	case "*":
		if an.unit != "" && bn.unit != "" {
			return nil, fmt.Errorf("cannot multiply %s by %s", an.css(false), bn.css(false))
		}
		return &number{v: an.v * bn.v, unit: an.unit + bn.unit}, nil
	case "/":
		if bn.v == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		if bn.unit == "" {
			return &number{v: an.v / bn.v, unit: an.unit}, nil
		}
		if an.unit == "" {
			return nil, fmt.Errorf("cannot divide %s by %s", an.css(false), bn.css(false))
		}
		bv, ok := convert(bn, an.unit)
		if !ok {
			return nil, fmt.Errorf("incompatible units %s and %s", an.unit, bn.unit)
		}
		return &number{v: an.v / bv}, nil
	case "%":
		if bn.v == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return &number{v: math.Mod(an.v, bn.v), unit: an.unit}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func compare(op string, a, b value) (value, error) {
	if op == "==" || op == "!=" {
		eq := equal(a, b)
		if op == "!=" {
			eq = !eq
		}
		return boolean(eq), nil
	}
	an, aok := a.(*number)
	bn, bok := b.(*number)
	if !aok || !bok {
		return nil, fmt.Errorf("%s is not a number", pickNonNumber(a, b).css(false))
	}
	bv, ok := convert(bn, an.unit)
	if !ok {
		return nil, fmt.Errorf("incompatible units %s and %s", an.unit, bn.unit)
	}
	switch op {
	case "<":
		return boolean(an.v < bv), nil
	case "<=":
		return boolean(an.v <= bv), nil
	case ">":
		return boolean(an.v > bv), nil
	default:
		return boolean(an.v >= bv), nil
	}
}

func pickNonNumber(a, b value) value {
	if _, ok := a.(*number); !ok {
		return a
	}
	return b
}

func equal(a, b value) bool {
	an, aok := a.(*number)
	bn, bok := b.(*number)
	if aok && bok {
		if an.unit != bn.unit && (an.unit == "" || bn.unit == "") {
			return false
		}
		bv, ok := convert(bn, an.unit)
		return ok && math.Abs(an.v-bv) < 1e-10
	}
	if aok != bok {
		return false
	}
	return unquote(a) == unquote(b)
}

// Colors.

var namedColors = map[string][4]float64{
	"black":       {0, 0, 0, 1},
	"white":       {255, 255, 255, 1},
	"red":         {255, 0, 0, 1},
	"green":       {0, 128, 0, 1},
	"blue":        {0, 0, 255, 1},
	"yellow":      {255, 255, 0, 1},
	"orange":      {255, 165, 0, 1},
	"purple":      {128, 0, 128, 1},
	"gray":        {128, 128, 128, 1},
	"grey":        {128, 128, 128, 1},
	"silver":      {192, 192, 192, 1},
	"maroon":      {128, 0, 0, 1},
	"navy":        {0, 0, 128, 1},
	"teal":        {0, 128, 128, 1},
	"olive":       {128, 128, 0, 1},
	"lime":        {0, 255, 0, 1},
	"aqua":        {0, 255, 255, 1},
	"fuchsia":     {255, 0, 255, 1},
	"transparent": {0, 0, 0, 0},
}

func namedColor(name string) (*color, bool) {
	c, ok := namedColors[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &color{r: c[0], g: c[1], b: c[2], a: c[3], raw: name}, true
}

func parseHex(raw string) (*color, error) {
	h := strings.TrimPrefix(raw, "#")
	expand := func(s string) string {
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			b.WriteByte(s[i])
			b.WriteByte(s[i])
		}
		return b.String()
	}
	switch len(h) {
	case 3, 4:
		h = expand(h)
	case 6, 8:
	default:
		return nil, fmt.Errorf("invalid color %q", raw)
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q", raw)
	}
	c := &color{a: 1, raw: raw}
	if len(h) == 8 {
		c.a = float64(v&0xff) / 255
		v >>= 8
	}
	c.r, c.g, c.b = float64(v>>16&0xff), float64(v>>8&0xff), float64(v&0xff)
	return c, nil
}

func (c *color) hsl() (h, s, l float64) {
	r, g, b := c.r/255, c.g/255, c.b/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l = (hi + lo) / 2
	if hi == lo {
		return 0, 0, l * 100
	}
	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h * 60, s * 100, l * 100
}

func fromHSL(h, s, l, a float64) *color {
	h = math.Mod(math.Mod(h, 360)+360, 360) / 360
	s = math.Max(0, math.Min(100, s)) / 100
	l = math.Max(0, math.Min(100, l)) / 100
	if s == 0 {
		return &color{r: l * 255, g: l * 255, b: l * 255, a: a}
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hue := func(t float64) float64 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		switch {
		case t < 1.0/6:
			return p + (q-p)*6*t
		case t < 0.5:
			return q
		case t < 2.0/3:
			return p + (q-p)*(2.0/3-t)*6
		}
		return p
	}
	return &color{r: hue(h+1.0/3) * 255, g: hue(h) * 255, b: hue(h-1.0/3) * 255, a: a}
}

// Built-in functions. The boolean result reports whether name is one.

func callBuiltin(name string, args []value) (value, bool, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, false, nil
	}
	v, err := fn(args)
	if err != nil {
		return nil, true, fmt.Errorf("%s(): %w", name, err)
	}
	return v, true, nil
}

var builtins map[string]func(args []value) (value, error)

func init() {
	builtins = map[string]func(args []value) (value, error){
		"lighten":        adjustLightness(1),
		"darken":         adjustLightness(-1),
		"saturate":       adjustSaturation(1),
		"desaturate":     adjustSaturation(-1),
		"transparentize": adjustAlpha(-1),
		"fade-out":       adjustAlpha(-1),
		"opacify":        adjustAlpha(1),
		"fade-in":        adjustAlpha(1),
		"rgba":           rgbaFn,
		"mix":            mixFn,
		"percentage": func(args []value) (value, error) {
			n, err := numberArg(args, 0, "number")
			if err != nil {
				return nil, err
			}
			return &number{v: n.v * 100, unit: "%"}, nil
		},
		"round": roundingFn(math.Round),
		"ceil":  roundingFn(math.Ceil),
		"floor": roundingFn(math.Floor),
		"abs":   roundingFn(math.Abs),
		"unquote": func(args []value) (value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expected 1 argument")
			}
			return &str{s: unquote(args[0])}, nil
		},
		"quote": func(args []value) (value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expected 1 argument")
			}
			return &str{s: unquote(args[0]), quote: '"'}, nil
		},
		"if": func(args []value) (value, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("expected 3 arguments")
			}
			if truthy(args[0]) {
				return args[1], nil
			}
			return args[2], nil
		},
		"length": func(args []value) (value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expected 1 argument")
			}
			return &number{v: float64(len(listItems(args[0])))}, nil
		},
		"nth": func(args []value) (value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("expected 2 arguments")
			}
			items := listItems(args[0])
			n, err := numberArg(args, 1, "n")
			if err != nil {
				return nil, err
			}
			i := int(n.v)
			if i < 0 {
				i = len(items) + i + 1
			}
			if i < 1 || i > len(items) {
				return nil, fmt.Errorf("index %d out of bounds for a list of %d", int(n.v), len(items))
			}
			return items[i-1], nil
		},
	}
}

func numberArg(args []value, i int, name string) (*number, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument $%s", name)
	}
	n, ok := args[i].(*number)
	if !ok {
		return nil, fmt.Errorf("$%s: %s is not a number", name, args[i].css(false))
	}
	return n, nil
}

func colorArg(args []value, i int) (*color, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument $color")
	}
	c, ok := args[i].(*color)
	if !ok {
		return nil, fmt.Errorf("$color: %s is not a color", args[i].css(false))
	}
	return c, nil
}

func adjustLightness(sign float64) func([]value) (value, error) {
	return func(args []value) (value, error) {
		c, err := colorArg(args, 0)
		if err != nil {
			return nil, err
		}
		amt, err := numberArg(args, 1, "amount")
		if err != nil {
			return nil, err
		}
		h, s, l := c.hsl()
		return fromHSL(h, s, l+sign*amt.v, c.a), nil
	}
}

func adjustSaturation(sign float64) func([]value) (value, error) {
	return func(args []value) (value, error) {
		c, err := colorArg(args, 0)
		if err != nil {
			return nil, err
		}
		amt, err := numberArg(args, 1, "amount")
		if err != nil {
			return nil, err
		}
		h, s, l := c.hsl()
		return fromHSL(h, s+sign*amt.v, l, c.a), nil
	}
}

func adjustAlpha(sign float64) func([]value) (value, error) {
	return func(args []value) (value, error) {
		c, err := colorArg(args, 0)
		if err != nil {
			return nil, err
		}
		amt, err := numberArg(args, 1, "amount")
		if err != nil {
			return nil, err
		}
		a := math.Max(0, math.Min(1, c.a+sign*amt.v))
		return &color{r: c.r, g: c.g, b: c.b, a: a}, nil
	}
}

func rgbaFn(args []value) (value, error) {
	if len(args) != 2 {
		return &str{s: "rgba(" + (&list{items: args, comma: true}).css(false) + ")"}, nil
	}
	c, err := colorArg(args, 0)
	if err != nil {
		return nil, err
	}
	a, err := numberArg(args, 1, "alpha")
	if err != nil {
		return nil, err
	}
	alpha := a.v
	if a.unit == "%" {
		alpha /= 100
	}
	return &color{r: c.r, g: c.g, b: c.b, a: math.Max(0, math.Min(1, alpha))}, nil
}

func mixFn(args []value) (value, error) {
	c1, err := colorArg(args, 0)
	if err != nil {
		return nil, err
	}
	c2, err := colorArg(args, 1)
	if err != nil {
		return nil, err
	}
	w := 0.5
	if len(args) > 2 {
		n, err := numberArg(args, 2, "weight")
		if err != nil {
			return nil, err
		}
		w = n.v / 100
	}
	mixc := func(a, b float64) float64 { return a*w + b*(1-w) }
	return &color{r: mixc(c1.r, c2.r), g: mixc(c1.g, c2.g), b: mixc(c1.b, c2.b), a: mixc(c1.a, c2.a)}, nil
}

func roundingFn(fn func(float64) float64) func([]value) (value, error) {
	return func(args []value) (value, error) {
		n, err := numberArg(args, 0, "number")
		if err != nil {
			return nil, err
		}
		return &number{v: fn(n.v), unit: n.unit}, nil
	}
}
