package catalog

import (
	"fmt"
	"math"
	"strconv"
)

// Role is an abstract spectral role bound to a concrete band per sensor.
type Role string

// Supported band roles.
const (
	RoleRed     Role = "RED"
	RoleGreen   Role = "GREEN"
	RoleBlue    Role = "BLUE"
	RoleNIR     Role = "NIR"
	RoleRedEdge Role = "RED_EDGE"
)

// ConstantL is the soil brightness correction used by soil-adjusted indices.
const ConstantL = "L"

// Roles lists every role in binding order (see Profile.Bindings).
var Roles = []Role{RoleRed, RoleBlue, RoleGreen, RoleNIR, RoleRedEdge}

// Env supplies per-pixel values while an expression is evaluated.
type Env interface {
	Band(r Role) float64
	Constant(name string) float64
}

// Expr is a node of a closed arithmetic expression tree over band roles and
// named constants. Only the constructors in this file produce Expr values.
type Expr interface {
	// Eval computes the value for one pixel. Undefined results (division by
	// zero, square root of a negative) are NaN.
	Eval(env Env) float64

	// String renders the canonical, fully parenthesised expression.
	String() string

	walk(fn func(Expr))
}

type number float64

type constant string

type ref Role

type binary struct {
	op   byte
	l, r Expr
}

type sqrtCall struct{ x Expr }

type powCall struct{ base, exp Expr }

// Num returns a numeric literal.
func Num(v float64) Expr { return number(v) }

// Const returns a reference to a named constant such as L.
func Const(name string) Expr { return constant(name) }

// Ref returns a reference to a band role.
func Ref(r Role) Expr { return ref(r) }

// Add returns l + r.
func Add(l, r Expr) Expr { return binary{'+', l, r} }

// Sub returns l - r.
func Sub(l, r Expr) Expr { return binary{'-', l, r} }

// Mul returns l * r.
func Mul(l, r Expr) Expr { return binary{'*', l, r} }

// Div returns l / r. Division by zero yields NaN.
func Div(l, r Expr) Expr { return binary{'/', l, r} }

// Sqrt returns the square root of x.
func Sqrt(x Expr) Expr { return sqrtCall{x} }

// Pow returns base raised to exp.
func Pow(base, exp Expr) Expr { return powCall{base, exp} }

// NormalizedDifference returns (a - b) / (a + b).
func NormalizedDifference(a, b Role) Expr {
	return Div(Sub(Ref(a), Ref(b)), Add(Ref(a), Ref(b)))
}

func (n number) Eval(Env) float64 { return float64(n) }
func (n number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}
func (n number) walk(fn func(Expr)) { fn(n) }

func (c constant) Eval(env Env) float64 { return env.Constant(string(c)) }
func (c constant) String() string       { return string(c) }
func (c constant) walk(fn func(Expr))   { fn(c) }

func (r ref) Eval(env Env) float64 { return env.Band(Role(r)) }
func (r ref) String() string       { return string(r) }
func (r ref) walk(fn func(Expr))   { fn(r) }

func (b binary) Eval(env Env) float64 {
	l, r := b.l.Eval(env), b.r.Eval(env)
	var v float64
	switch b.op {
	case '+':
		v = l + r
	case '-':
		v = l - r
	case '*':
		v = l * r
	case '/':
		if r == 0 {
			return math.NaN()
		}
		v = l / r
	}
	return finite(v)
}

func (b binary) String() string {
	return fmt.Sprintf("(%s %c %s)", b.l, b.op, b.r)
}

func (b binary) walk(fn func(Expr)) {
	fn(b)
	b.l.walk(fn)
	b.r.walk(fn)
}

func (s sqrtCall) Eval(env Env) float64 { return finite(math.Sqrt(s.x.Eval(env))) }
func (s sqrtCall) String() string       { return fmt.Sprintf("sqrt(%s)", s.x) }
func (s sqrtCall) walk(fn func(Expr)) {
	fn(s)
	s.x.walk(fn)
}

func (p powCall) Eval(env Env) float64 {
	return finite(math.Pow(p.base.Eval(env), p.exp.Eval(env)))
}
func (p powCall) String() string { return fmt.Sprintf("pow(%s, %s)", p.base, p.exp) }
func (p powCall) walk(fn func(Expr)) {
	fn(p)
	p.base.walk(fn)
	p.exp.walk(fn)
}

// finite maps infinities to NaN so every undefined pixel is no-data.
func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ReferencedRoles returns the distinct roles used by e, in first-use order.
func ReferencedRoles(e Expr) []Role {
	var roles []Role
	seen := make(map[Role]bool)
	e.walk(func(n Expr) {
		if r, ok := n.(ref); ok && !seen[Role(r)] {
			seen[Role(r)] = true
			roles = append(roles, Role(r))
		}
	})
	return roles
}

// ReferencedConstants returns the distinct constant names used by e.
func ReferencedConstants(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	e.walk(func(n Expr) {
		if c, ok := n.(constant); ok && !seen[string(c)] {
			seen[string(c)] = true
			names = append(names, string(c))
		}
	})
	return names
}

// MapEnv is an Env backed by maps. Missing entries evaluate to NaN.
type MapEnv struct {
	Bands     map[Role]float64
	Constants map[string]float64
}

// Band implements Env.
func (m MapEnv) Band(r Role) float64 {
	if v, ok := m.Bands[r]; ok {
		return v
	}
	return math.NaN()
}

// Constant implements Env.
func (m MapEnv) Constant(name string) float64 {
	if v, ok := m.Constants[name]; ok {
		return v
	}
	return math.NaN()
}
