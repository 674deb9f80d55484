package ampyobs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Propagator moves W3C trace context in and out of carriers. Build one per
// process (Init does) and hand it to whoever needs it.
type Propagator struct {
	tm  propagation.TextMapPropagator
	log Logger
}

// NewPropagator builds a propagator from OTEL_PROPAGATORS style names
// ("tracecontext", "baggage", "none"). No names means "tracecontext".
func NewPropagator(log Logger, names ...string) (*Propagator, error) {
	if log == nil {
		log = NopLogger()
	}
	if len(names) == 0 {
		names = []string{"tracecontext"}
	}

	var props []propagation.TextMapPropagator
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "tracecontext":
			props = append(props, propagation.TraceContext{})
		case "baggage":
			props = append(props, propagation.Baggage{})
		case "none", "":
		default:
			return nil, fmt.Errorf("unsupported propagator: %s (use 'tracecontext' or 'baggage')", n)
		}
	}

	return &Propagator{
		tm:  propagation.NewCompositeTextMapPropagator(props...),
		log: log,
	}, nil
}

// Fields returns the carrier keys this propagator reads and writes.
func (p *Propagator) Fields() []string { return p.tm.Fields() }

// Extract returns ctx enriched with the remote span context found in g.
// Missing or malformed entries leave ctx unchanged.
func (p *Propagator) Extract(ctx context.Context, g Getter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if g == nil {
		return ctx
	}

	out := p.tm.Extract(ctx, textMap{get: g})

	sc := trace.SpanContextFromContext(out)
	p.log.Debug(ctx, "trace context extracted",
		zap.Strings("keys", g.Keys()),
		zap.Bool("remote", sc.IsRemote()),
		zap.Bool("valid", sc.IsValid()),
	)
	return out
}

// SpanContext extracts the remote span context from g, or the zero value.
func (p *Propagator) SpanContext(g Getter) trace.SpanContext {
	return trace.SpanContextFromContext(p.Extract(context.Background(), g))
}

// Inject writes the span context in ctx into s, overwriting existing keys.
// Nothing is written when ctx carries no valid span context.
func (p *Propagator) Inject(ctx context.Context, s Setter) {
	if s == nil {
		return
	}
	p.tm.Inject(ctx, textMap{set: s})

	p.log.Debug(ctx, "trace context injected",
		zap.Bool("valid", trace.SpanContextFromContext(ctx).IsValid()),
	)
}

// InjectSpanContext writes sc into s.
func (p *Propagator) InjectSpanContext(sc trace.SpanContext, s Setter) {
	p.Inject(trace.ContextWithSpanContext(context.Background(), sc), s)
}

// textMap bridges the Getter/Setter pair to propagation.TextMapCarrier.
type textMap struct {
	get Getter
	set Setter
}

func (t textMap) Get(key string) string {
	if t.get == nil {
		return ""
	}
	return first(t.get.Values(key))
}

func (t textMap) Set(key, value string) {
	if t.set != nil {
		t.set.Set(key, value)
	}
}

func (t textMap) Keys() []string {
	if t.get == nil {
		return nil
	}
	return t.get.Keys()
}
