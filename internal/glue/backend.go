// Package glue holds step definitions and hooks contributed by backends and
// resolves scenario steps to executable bindings.
//
// Backends register glue into a Registry once, at load time. After Freeze
// the registry is read-only and may be shared by concurrent sessions without
// locking.
package glue

import (
	"context"
	"time"

	"github.com/roach88/cuke/internal/pickle"
)

// Backend is one step-authoring style.
type Backend interface {
	// Name identifies the backend in diagnostics.
	Name() string
	// LoadGlue registers the backend's step definitions and hooks.
	LoadGlue(r *Registry) error
	// Snippet suggests an implementation for an undefined step.
	Snippet(step *pickle.Step) string
}

// Provider yields the available backends.
type Provider func() ([]Backend, error)

// Backends returns a provider over a fixed set of backends.
func Backends(backends ...Backend) Provider {
	return func() ([]Backend, error) {
		return backends, nil
	}
}

// StepDefinition binds a step text pattern to an executable body.
type StepDefinition interface {
	// Pattern is the source pattern, unique within a registry.
	Pattern() string
	// Location identifies where the definition was declared.
	Location() string
	// Match returns the captured arguments when text matches.
	Match(text string) ([]string, bool)
	// Execute runs the body with the captured arguments and the optional
	// step argument.
	Execute(ctx context.Context, args []string, arg pickle.Argument) error
	// Timeout bounds Execute; zero means unbounded.
	Timeout() time.Duration
}

// StepDefinitionReporter observes every loaded step definition.
type StepDefinitionReporter interface {
	StepDefinitionLoaded(backend string, def StepDefinition)
}

// ReporterFunc adapts a function to StepDefinitionReporter.
type ReporterFunc func(backend string, def StepDefinition)

// StepDefinitionLoaded implements StepDefinitionReporter.
func (f ReporterFunc) StepDefinitionLoaded(backend string, def StepDefinition) {
	f(backend, def)
}

// Binding is a step resolved to exactly one definition.
type Binding struct {
	Step       *pickle.Step
	Definition StepDefinition
	Args       []string
}

// Location returns the definition location.
func (b *Binding) Location() string {
	return b.Definition.Location()
}

// Execute runs the definition under its timeout.
func (b *Binding) Execute(ctx context.Context) error {
	return Invoke(ctx, b.Definition.Timeout(), func(ctx context.Context) error {
		return b.Definition.Execute(ctx, b.Args, b.Step.Argument)
	})
}
