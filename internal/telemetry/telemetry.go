// Package telemetry exports a run as OpenTelemetry traces.
//
// The Tracer subscribes to the root bus and turns the event stream into one
// span per run, with a child span per scenario and grandchild spans per step
// and hook. Span times are derived from event timestamps, so spans replayed
// from a flushed batch keep their original timing.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/cuke/internal/event"
	"github.com/roach88/cuke/internal/pickle"
	"github.com/roach88/cuke/internal/result"
)

// InstrumentationName names the tracer.
const InstrumentationName = "github.com/roach88/cuke"

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string
	Insecure    bool
	Headers     string
	ServiceName string
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Init builds a tracer provider exporting over OTLP/gRPC. Without an
// endpoint it returns a nil provider and a no-op shutdown.
func Init(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled() {
		return nil, func(context.Context) error { return nil }, nil
	}

	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	if headers := parseKeyValueList(cfg.Headers); len(headers) > 0 {
		options = append(options, otlptracegrpc.WithHeaders(headers))
	}
	exporter, err := otlptracegrpc.New(ctx, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", defaultIfEmpty(cfg.ServiceName, "cuke")))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	return provider, provider.Shutdown, nil
}

// Tracer converts events into spans.
type Tracer struct {
	tracer trace.Tracer

	mu        sync.Mutex
	base      time.Time
	baseTS    int64
	runCtx    context.Context
	runSpan   trace.Span
	scenarios map[*pickle.Pickle]*scenarioSpans
}

type scenarioSpans struct {
	ctx   context.Context
	span  trace.Span
	steps map[int]trace.Span
	hooks map[string]trace.Span
}

// NewTracer creates a Tracer using tp.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer:    tp.Tracer(InstrumentationName),
		runCtx:    context.Background(),
		scenarios: make(map[*pickle.Pickle]*scenarioSpans),
	}
}

// Subscribe registers the tracer on b.
func (t *Tracer) Subscribe(b event.Bus) {
	event.On(b, t.onRunStarted)
	event.On(b, t.onRunFinished)
	event.On(b, t.onScenarioStarted)
	event.On(b, t.onScenarioFinished)
	event.On(b, t.onStepStarted)
	event.On(b, t.onStepFinished)
	event.On(b, t.onHookStarted)
	event.On(b, t.onHookFinished)
}

// wall maps an event timestamp to wall-clock time.
func (t *Tracer) wall(e event.Event) time.Time {
	if t.base.IsZero() {
		t.base, t.baseTS = time.Now(), e.Timestamp()
	}
	return t.base.Add(time.Duration(e.Timestamp() - t.baseTS))
}

func (t *Tracer) onRunStarted(e event.RunStarted) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runCtx, t.runSpan = t.tracer.Start(context.Background(), "cuke.run",
		trace.WithTimestamp(t.wall(e)),
		trace.WithAttributes(attribute.String("cuke.run_id", e.RunID)),
	)
}

func (t *Tracer) onRunFinished(e event.RunFinished) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runSpan != nil {
		t.runSpan.End(trace.WithTimestamp(t.wall(e)))
		t.runSpan = nil
	}
}

func (t *Tracer) onScenarioStarted(e event.ScenarioStarted) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, span := t.tracer.Start(t.runCtx, "cuke.scenario",
		trace.WithTimestamp(t.wall(e)),
		trace.WithAttributes(
			attribute.String("cuke.scenario", e.Pickle.Name),
			attribute.String("cuke.uri", e.Pickle.URI),
			attribute.Int("cuke.line", e.Pickle.Line()),
			attribute.StringSlice("cuke.tags", e.Pickle.TagNames()),
		),
	)
	t.scenarios[e.Pickle] = &scenarioSpans{
		ctx:   ctx,
		span:  span,
		steps: make(map[int]trace.Span),
		hooks: make(map[string]trace.Span),
	}
}

func (t *Tracer) onScenarioFinished(e event.ScenarioFinished) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenarios[e.Pickle]
	if !ok {
		return
	}
	delete(t.scenarios, e.Pickle)
	end(s.span, e.Result, t.wall(e))
}

func (t *Tracer) onStepStarted(e event.StepStarted) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenarios[e.Pickle]
	if !ok {
		return
	}
	_, span := t.tracer.Start(s.ctx, "cuke.step",
		trace.WithTimestamp(t.wall(e)),
		trace.WithAttributes(
			attribute.String("cuke.step", e.Step.KeywordText()+" "+e.Step.Text),
			attribute.Int("cuke.step_line", e.Step.Line()),
			attribute.String("cuke.location", e.Location),
		),
	)
	s.steps[e.Index] = span
}

func (t *Tracer) onStepFinished(e event.StepFinished) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenarios[e.Pickle]
	if !ok {
		return
	}
	if span, ok := s.steps[e.Index]; ok {
		delete(s.steps, e.Index)
		end(span, e.Result, t.wall(e))
	}
}

func hookKey(phase event.Phase, location string) string {
	return string(phase) + " " + location
}

func (t *Tracer) onHookStarted(e event.HookStarted) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenarios[e.Pickle]
	if !ok {
		return
	}
	_, span := t.tracer.Start(s.ctx, "cuke.hook",
		trace.WithTimestamp(t.wall(e)),
		trace.WithAttributes(
			attribute.String("cuke.phase", string(e.Phase)),
			attribute.String("cuke.location", e.Location),
		),
	)
	s.hooks[hookKey(e.Phase, e.Location)] = span
}

func (t *Tracer) onHookFinished(e event.HookFinished) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenarios[e.Pickle]
	if !ok {
		return
	}
	key := hookKey(e.Phase, e.Location)
	if span, ok := s.hooks[key]; ok {
		delete(s.hooks, key)
		end(span, e.Result, t.wall(e))
	}
}

// end sets the span status from res and ends it at ts.
func end(span trace.Span, res result.Result, ts time.Time) {
	span.SetAttributes(attribute.String("cuke.status", res.Status.String()))
	switch {
	case res.Status == result.Failed || res.Status == result.Ambiguous:
		if res.Err != nil {
			span.RecordError(res.Err, trace.WithTimestamp(ts))
			span.SetStatus(codes.Error, res.Err.Error())
		} else {
			span.SetStatus(codes.Error, res.Status.String())
		}
	case res.Status == result.Passed:
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(ts))
}

func parseKeyValueList(value string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(val)
	}
	return out
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
