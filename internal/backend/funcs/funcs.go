// Package funcs is the Go-function backend: step definitions and hooks are
// plain Go functions registered against regular expressions.
//
//	b := funcs.New()
//	b.Given(`^I have (\d+) cukes$`, func(n int) error { ... })
//	b.Before(func(ctx context.Context, s *glue.Scenario) error { ... }, funcs.WithTags("@db"))
//
// Capture groups are converted to the function's parameter types. A leading
// context.Context parameter receives the step context and a trailing
// *pickle.DocString or *pickle.DataTable parameter receives the step
// argument.
package funcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
)

// Name is the backend name.
const Name = "funcs"

// Option configures a step or hook registration.
type Option func(*options)

type options struct {
	tags     string
	order    *int
	timeout  time.Duration
	location string
}

// WithTags scopes a hook to scenarios matching a tag expression.
func WithTags(expression string) Option {
	return func(o *options) { o.tags = expression }
}

// WithOrder sets the order of a hook.
func WithOrder(order int) Option {
	return func(o *options) { o.order = &order }
}

// WithTimeout bounds a step or hook body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLocation overrides the recorded source location.
func WithLocation(location string) Option {
	return func(o *options) { o.location = location }
}

type stepRegistration struct {
	pattern string
	fn      any
	opts    options
}

type hookRegistration struct {
	phase event.Phase
	fn    any
	opts  options
}

// Backend collects Go-function glue until it is loaded into a registry.
type Backend struct {
	steps []stepRegistration
	hooks []hookRegistration
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{}
}

// Name implements glue.Backend.
func (b *Backend) Name() string { return Name }

// Given registers a step definition.
func (b *Backend) Given(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// When registers a step definition.
func (b *Backend) When(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// Then registers a step definition.
func (b *Backend) Then(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// And registers a step definition.
func (b *Backend) And(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// But registers a step definition.
func (b *Backend) But(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// Step registers a step definition independent of keyword.
func (b *Backend) Step(pattern string, fn any, opts ...Option) *Backend {
	return b.step(pattern, fn, opts)
}

// Before registers a before hook. fn is one of func(), func() error,
// func(context.Context) error or func(context.Context, *glue.Scenario) error.
func (b *Backend) Before(fn any, opts ...Option) *Backend {
	return b.hook(event.PhaseBefore, fn, opts)
}

// After registers an after hook. See Before for accepted signatures.
func (b *Backend) After(fn any, opts ...Option) *Backend {
	return b.hook(event.PhaseAfter, fn, opts)
}

func (b *Backend) step(pattern string, fn any, opts []Option) *Backend {
	o := collect(opts)
	b.steps = append(b.steps, stepRegistration{pattern: pattern, fn: fn, opts: o})
	return b
}

func (b *Backend) hook(phase event.Phase, fn any, opts []Option) *Backend {
	o := collect(opts)
	b.hooks = append(b.hooks, hookRegistration{phase: phase, fn: fn, opts: o})
	return b
}

// collect applies opts and records the caller of the public registration
// method as location.
func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.location == "" {
		if _, file, line, ok := runtime.Caller(3); ok {
			o.location = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	return o
}

// LoadGlue implements glue.Backend. Signature errors surface here, at load
// time, so a misconfigured suite fails before any scenario runs.
func (b *Backend) LoadGlue(r *glue.Registry) error {
	var errs []error
	for _, s := range b.steps {
		def, err := newStepDefinition(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.AddStepDefinition(def); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range b.hooks {
		body, err := hookBody(h.fn)
		if err != nil {
			errs = append(errs, fmt.Errorf("hook at %s: %w", h.opts.location, err))
			continue
		}
		order := glue.DefaultBeforeOrder
		if h.phase == event.PhaseAfter {
			order = glue.DefaultAfterOrder
		}
		if h.opts.order != nil {
			order = *h.opts.order
		}
		err = r.AddHook(glue.HookDefinition{
			Phase:         h.phase,
			TagExpression: h.opts.tags,
			Order:         order,
			Timeout:       h.opts.timeout,
			Body:          body,
			Location:      h.opts.location,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func hookBody(fn any) (glue.HookBody, error) {
	switch f := fn.(type) {
	case func(context.Context, *glue.Scenario) error:
		return f, nil
	case func(context.Context) error:
		return func(ctx context.Context, _ *glue.Scenario) error { return f(ctx) }, nil
	case func(*glue.Scenario):
		return func(_ context.Context, s *glue.Scenario) error { f(s); return nil }, nil
	case func() error:
		return func(context.Context, *glue.Scenario) error { return f() }, nil
	case func():
		return func(context.Context, *glue.Scenario) error { f(); return nil }, nil
	case nil:
		return nil, errors.New("nil hook function")
	default:
		return nil, fmt.Errorf("unsupported hook signature %T", fn)
	}
}

// Snippet implements glue.Backend.
func (b *Backend) Snippet(step *pickle.Step) string {
	pattern, params := glue.SnippetPattern(step.Text)

	args := make([]string, 0, len(params)+1)
	for i, p := range params {
		args = append(args, fmt.Sprintf("arg%d %s", i+1, p))
	}
	switch step.Argument.(type) {
	case *pickle.DocString:
		args = append(args, "doc *pickle.DocString")
	case *pickle.DataTable:
		args = append(args, "table *pickle.DataTable")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "b.%s(`%s`, func(%s) error {\n", glue.SnippetKeyword(step.Keyword), pattern, strings.Join(args, ", "))
	sb.WriteString("\t// Write code here that turns the phrase above into concrete actions\n")
	sb.WriteString("\treturn glue.ErrPending\n")
	sb.WriteString("})\n")
	return sb.String()
}

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	docStringType = reflect.TypeOf((*pickle.DocString)(nil))
	dataTableType = reflect.TypeOf((*pickle.DataTable)(nil))
)

// stepDefinition adapts a Go function to glue.StepDefinition.
type stepDefinition struct {
	expr     *glue.Expression
	fn       reflect.Value
	location string
	timeout  time.Duration
	withCtx  bool
	params   []reflect.Type
	argParam reflect.Type
}

func newStepDefinition(s stepRegistration) (*stepDefinition, error) {
	expr, err := glue.CompileExpression(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("step at %s: %w", s.opts.location, err)
	}
	fn := reflect.ValueOf(s.fn)
	if s.fn == nil || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("step %q at %s: expected a function, got %T", s.pattern, s.opts.location, s.fn)
	}

	def := &stepDefinition{expr: expr, fn: fn, location: s.opts.location, timeout: s.opts.timeout}
	ft := fn.Type()

	in := make([]reflect.Type, ft.NumIn())
	for i := range in {
		in[i] = ft.In(i)
	}
	if len(in) > 0 && in[0] == contextType {
		def.withCtx = true
		in = in[1:]
	}
	if n := len(in); n > 0 && (in[n-1] == docStringType || in[n-1] == dataTableType) {
		def.argParam = in[n-1]
		in = in[:n-1]
	}
	for _, t := range in {
		if !convertible(t) {
			return nil, fmt.Errorf("step %q at %s: unsupported parameter type %s", s.pattern, s.opts.location, t)
		}
	}
	if len(in) != expr.NumArgs() {
		return nil, fmt.Errorf("step %q at %s: pattern has %d capture groups but function takes %d arguments",
			s.pattern, s.opts.location, expr.NumArgs(), len(in))
	}
	def.params = in

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errorType {
			return nil, fmt.Errorf("step %q at %s: return type must be error", s.pattern, s.opts.location)
		}
	default:
		return nil, fmt.Errorf("step %q at %s: too many return values", s.pattern, s.opts.location)
	}
	return def, nil
}

func (d *stepDefinition) Pattern() string                    { return d.expr.Source() }
func (d *stepDefinition) Location() string                   { return d.location }
func (d *stepDefinition) Timeout() time.Duration             { return d.timeout }
func (d *stepDefinition) Match(text string) ([]string, bool) { return d.expr.Match(text) }

// Execute converts the captured arguments and calls the function.
func (d *stepDefinition) Execute(ctx context.Context, args []string, arg pickle.Argument) error {
	in := make([]reflect.Value, 0, len(args)+2)
	if d.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, raw := range args {
		v, err := convert(raw, d.params[i])
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		in = append(in, v)
	}
	if d.argParam != nil {
		v := reflect.Zero(d.argParam)
		if arg != nil && reflect.TypeOf(arg) == d.argParam {
			v = reflect.ValueOf(arg)
		}
		in = append(in, v)
	}

	out := d.fn.Call(in)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func convertible(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Int, reflect.Int64, reflect.Float64, reflect.Bool:
		return true
	}
	return false
}

func convert(raw string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s", raw, t)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s", raw, t)
		}
		v.SetFloat(f)
	case reflect.Bool:
		bv, err := strconv.ParseBool(raw)
		if err != nil {
			return v, fmt.Errorf("cannot convert %q to %s", raw, t)
		}
		v.SetBool(bv)
	}
	return v, nil
}
