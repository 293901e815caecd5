// Package shell is a backend whose glue is written as shell scripts in YAML
// files.
//
// Every step definition pairs a regular expression with a script. The script
// runs under `sh -c` with the captured groups as positional parameters
// ($1..$n) and as CUKE_ARG_1..CUKE_ARG_n. A script exiting with status 75
// (EX_TEMPFAIL) marks the step pending; any other non-zero status fails it
// with the tail of the combined output.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/glue"
	"github.com/roach88/cuke/internal/pickle"
)

// Name is the backend name.
const Name = "shell"

// ExitPending is the script exit status that marks a step pending.
const ExitPending = 75

// outputTail is the number of output bytes kept in failure messages.
const outputTail = 2048

// Backend runs glue defined in YAML files.
type Backend struct {
	paths []string
	files []*GlueFile
	shell string
	dir   string
	env   []string
}

// Option configures a Backend.
type Option func(*Backend)

// WithShell sets the interpreter, "sh" by default.
func WithShell(shell string) Option {
	return func(b *Backend) { b.shell = shell }
}

// WithDir sets the working directory of scripts.
func WithDir(dir string) Option {
	return func(b *Backend) { b.dir = dir }
}

// WithEnv adds KEY=value pairs to the script environment.
func WithEnv(env ...string) Option {
	return func(b *Backend) { b.env = append(b.env, env...) }
}

// WithFiles adds already parsed glue files.
func WithFiles(files ...*GlueFile) Option {
	return func(b *Backend) { b.files = append(b.files, files...) }
}

// New creates a backend reading glue files from paths at load time.
func New(paths []string, opts ...Option) *Backend {
	b := &Backend{paths: paths, shell: "sh"}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements glue.Backend.
func (b *Backend) Name() string { return Name }

// LoadGlue implements glue.Backend.
func (b *Backend) LoadGlue(r *glue.Registry) error {
	files := b.files
	if len(b.paths) > 0 {
		loaded, err := LoadGlueFiles(b.paths)
		if err != nil {
			return err
		}
		files = append(append([]*GlueFile(nil), files...), loaded...)
	}

	var errs []error
	for _, f := range files {
		for _, s := range f.Steps {
			expr, err := glue.CompileExpression(s.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s:%d: %w", f.path, s.Line, err))
				continue
			}
			def := &stepDefinition{
				backend:  b,
				expr:     expr,
				script:   s.Run,
				timeout:  s.Timeout,
				location: location(f.path, s.Line),
			}
			if err := r.AddStepDefinition(def); err != nil {
				errs = append(errs, err)
			}
		}
		for _, h := range f.Hooks {
			phase := event.PhaseBefore
			order := glue.DefaultBeforeOrder
			if h.Phase == "after" {
				phase = event.PhaseAfter
				order = glue.DefaultAfterOrder
			}
			if h.Order != nil {
				order = *h.Order
			}
			script := h.Run
			err := r.AddHook(glue.HookDefinition{
				Phase:         phase,
				TagExpression: h.Tags,
				Order:         order,
				Timeout:       h.Timeout,
				Location:      location(f.path, h.Line),
				Body: func(ctx context.Context, s *glue.Scenario) error {
					return b.run(ctx, script, nil, nil, s)
				},
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func location(path string, line int) string {
	if line == 0 {
		return path
	}
	return fmt.Sprintf("%s:%d", path, line)
}

// Snippet implements glue.Backend. The suggestion is a YAML step entry whose
// script reports the step as pending.
func (b *Backend) Snippet(step *pickle.Step) string {
	pattern, _ := glue.SnippetPattern(step.Text)
	var sb strings.Builder
	fmt.Fprintf(&sb, "- pattern: '%s'\n", strings.ReplaceAll(pattern, "'", "''"))
	sb.WriteString("  run: |\n")
	sb.WriteString("    # Write code here that turns the phrase above into concrete actions\n")
	fmt.Fprintf(&sb, "    exit %d\n", ExitPending)
	return sb.String()
}

// ExitError is returned when a script exits with a failing status.
type ExitError struct {
	Script   string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("script exited with status %d", e.ExitCode)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}

func (b *Backend) run(ctx context.Context, script string, args []string, arg pickle.Argument, s *glue.Scenario) error {
	cmd := exec.CommandContext(ctx, b.shell, append([]string{"-c", script, Name}, args...)...)
	cmd.Dir = b.dir
	cmd.Env = append(os.Environ(), b.env...)
	cmd.Env = append(cmd.Env, environment(args, arg, s)...)
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if s != nil && out.Len() > 0 && err == nil {
		s.Write(out.String())
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("start %s: %w", b.shell, err)
	}
	if exitErr.ExitCode() == ExitPending {
		return glue.Pending(strings.TrimSpace(tail(out.String())))
	}
	return &ExitError{Script: script, ExitCode: exitErr.ExitCode(), Output: tail(out.String())}
}

func tail(s string) string {
	if len(s) <= outputTail {
		return s
	}
	return "..." + s[len(s)-outputTail:]
}

func environment(args []string, arg pickle.Argument, s *glue.Scenario) []string {
	env := []string{"CUKE_ARGC=" + strconv.Itoa(len(args))}
	for i, a := range args {
		env = append(env, fmt.Sprintf("CUKE_ARG_%d=%s", i+1, a))
	}
	switch a := arg.(type) {
	case *pickle.DocString:
		env = append(env, "CUKE_DOCSTRING="+a.Content)
	case *pickle.DataTable:
		rows := make([]string, len(a.Rows))
		for i, r := range a.Rows {
			rows[i] = strings.Join(r, "\t")
		}
		env = append(env, "CUKE_TABLE="+strings.Join(rows, "\n"))
	}
	if s != nil {
		env = append(env,
			"CUKE_SCENARIO="+s.Name(),
			"CUKE_URI="+s.URI(),
			"CUKE_LINE="+strconv.Itoa(s.Line()),
			"CUKE_TAGS="+strings.Join(s.Tags(), " "),
			"CUKE_STATUS="+s.Status().String(),
		)
	}
	return env
}

// stepDefinition adapts a script to glue.StepDefinition.
type stepDefinition struct {
	backend  *Backend
	expr     *glue.Expression
	script   string
	timeout  time.Duration
	location string
}

func (d *stepDefinition) Pattern() string                    { return d.expr.Source() }
func (d *stepDefinition) Location() string                   { return d.location }
func (d *stepDefinition) Timeout() time.Duration             { return d.timeout }
func (d *stepDefinition) Match(text string) ([]string, bool) { return d.expr.Match(text) }

// Execute implements glue.StepDefinition.
func (d *stepDefinition) Execute(ctx context.Context, args []string, arg pickle.Argument) error {
	s, _ := glue.ScenarioFromContext(ctx)
	return d.backend.run(ctx, d.script, args, arg, s)
}
