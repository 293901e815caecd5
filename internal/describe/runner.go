package describe

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/runtime"
)

// ErrNoStepDescriptions is returned by DescribeChild on runners built
// without step descriptions.
var ErrNoStepDescriptions = errors.New("pickle runner does not describe its steps")

// Options configures the description tree.
type Options struct {
	// StepNotifications describes every step as a child of its scenario.
	StepNotifications bool
	// FilenameCompatibleNames sanitizes display names.
	FilenameCompatibleNames bool
	// Strict reports pending and undefined outcomes as failures.
	Strict bool
}

// PickleRunner describes and runs one scenario.
type PickleRunner interface {
	Description() *Description
	DescribeChild(step *pickle.Step) (*Description, error)
	Pickle() *pickle.Pickle
	// Run drives the whole scenario through the session's runner and
	// reports its outcome to n.
	Run(ctx context.Context, n Notifier) error
}

type pickleRunner struct {
	bridge      *Bridge
	pickle      *pickle.Pickle
	description *Description
	steps       map[*pickle.Step]*Description
}

func (r *pickleRunner) Pickle() *pickle.Pickle { return r.pickle }

func (r *pickleRunner) Description() *Description { return r.description }

func (r *pickleRunner) Run(ctx context.Context, n Notifier) error {
	return r.bridge.runUnit(ctx, r, n)
}

// DescribeChild returns the description of step.
func (r *pickleRunner) DescribeChild(step *pickle.Step) (*Description, error) {
	if r.steps == nil {
		return nil, ErrNoStepDescriptions
	}
	d, ok := r.steps[step]
	if !ok {
		return nil, fmt.Errorf("step %q does not belong to scenario %s", step.Text, r.description.Identity)
	}
	return d, nil
}

// WithStepDescriptions builds a runner whose description is a suite with one
// child per step.
func WithStepDescriptions(b *Bridge, p *pickle.Pickle) PickleRunner {
	name := CreateName(p.Name, b.opts.FilenameCompatibleNames)
	r := &pickleRunner{
		bridge:      b,
		pickle:      p,
		description: &Description{DisplayName: name, Identity: NewPickleID(p)},
		steps:       make(map[*pickle.Step]*Description, len(p.Steps)),
	}
	for _, step := range p.Steps {
		text := step.Text
		if b.opts.FilenameCompatibleNames {
			text = Sanitize(text)
		}
		d := &Description{DisplayName: text, ClassName: name, Identity: NewPickleStepID(p, step)}
		r.steps[step] = d
		r.description.AddChild(d)
	}
	return r
}

// NoStepDescriptions builds a runner whose description is a single test
// named after the scenario, grouped under featureName.
func NoStepDescriptions(b *Bridge, featureName string, p *pickle.Pickle) PickleRunner {
	return &pickleRunner{
		bridge: b,
		pickle: p,
		description: &Description{
			DisplayName: CreateName(p.Name, b.opts.FilenameCompatibleNames),
			ClassName:   CreateName(featureName, b.opts.FilenameCompatibleNames),
			Identity:    NewPickleID(p),
		},
	}
}

// FeatureRunner groups the selected scenarios of one feature.
type FeatureRunner struct {
	feature     *pickle.Feature
	children    []PickleRunner
	description *Description
}

// Feature returns the feature.
func (f *FeatureRunner) Feature() *pickle.Feature { return f.feature }

// Children returns the scenario runners in document order.
func (f *FeatureRunner) Children() []PickleRunner { return f.children }

// Description returns the feature node.
func (f *FeatureRunner) Description() *Description { return f.description }

// IsEmpty reports whether no scenario of the feature was selected.
func (f *FeatureRunner) IsEmpty() bool { return len(f.children) == 0 }

// Run runs every scenario of the feature.
func (f *FeatureRunner) Run(ctx context.Context, n Notifier) error {
	for _, c := range f.children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Run(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// featureName returns the feature title, falling back to its URI.
func featureName(f *pickle.Feature) string {
	if f.Name != "" {
		return f.Name
	}
	return f.URI
}

// Bridge connects a runtime to a host test runner.
//
// A Bridge owns one runtime.Session; scenarios run through it one at a time.
type Bridge struct {
	rt       *runtime.Runtime
	session  *runtime.Session
	opts     Options
	reporter *reporter
	features []*FeatureRunner
}

// New loads the features and the glue of rt and builds the description tree.
// Configuration errors are returned before any event is published.
func New(ctx context.Context, rt *runtime.Runtime, opts Options) (*Bridge, error) {
	features, err := rt.LoadFeatures(ctx)
	if err != nil {
		return nil, err
	}
	session, err := rt.NewSession()
	if err != nil {
		return nil, err
	}

	b := &Bridge{rt: rt, session: session, opts: opts}
	b.reporter = newReporter(opts.Strict)
	b.reporter.subscribe(session.Bus())

	for _, f := range features {
		pickles, err := rt.FilteredPickles(f)
		if err != nil {
			return nil, err
		}
		name := featureName(f)
		fr := &FeatureRunner{
			feature:     f,
			description: &Description{DisplayName: CreateName(name, opts.FilenameCompatibleNames)},
		}
		for _, p := range pickles {
			var pr PickleRunner
			if opts.StepNotifications {
				pr = WithStepDescriptions(b, p)
			} else {
				pr = NoStepDescriptions(b, name, p)
			}
			fr.children = append(fr.children, pr)
			fr.description.AddChild(pr.Description())
		}
		b.features = append(b.features, fr)
	}
	return b, nil
}

// Features returns the feature runners, including empty ones.
func (b *Bridge) Features() []*FeatureRunner { return b.features }

// Description returns a suite node holding every non-empty feature.
func (b *Bridge) Description() *Description {
	root := &Description{DisplayName: "cuke"}
	for _, f := range b.features {
		if !f.IsEmpty() {
			root.AddChild(f.Description())
		}
	}
	return root
}

// Run runs every feature between RunStarted and RunFinished.
func (b *Bridge) Run(ctx context.Context, n Notifier) error {
	b.rt.ReportStepDefinitions(nil)
	b.rt.Start()
	defer b.rt.Finish()
	for _, f := range b.features {
		if err := f.Run(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) runUnit(ctx context.Context, r *pickleRunner, n Notifier) error {
	b.reporter.start(r, n)
	defer b.reporter.stop()
	_, err := b.session.RunPickle(ctx, r.pickle)
	return err
}
