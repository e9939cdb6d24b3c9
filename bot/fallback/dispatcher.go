package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/bot/routing"
)

// Dispatcher hands a fallen-through request to a generative backend.
// Backends are tried in fixed priority order: the first configured one
// wins, with at most one substitution on failure before reverting to
// the cascade's own fallback content.
type Dispatcher struct {
	backends []Backend
	sem      *semaphore.Weighted
	clock    routing.Clock
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock injects a deterministic clock for tests.
func WithClock(c routing.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// WithMaxConcurrent caps in-flight generative calls across requests.
func WithMaxConcurrent(n int64) DispatcherOption {
	return func(d *Dispatcher) { d.sem = semaphore.NewWeighted(n) }
}

// NewDispatcher creates a dispatcher over the priority-ordered backends.
func NewDispatcher(backends []Backend, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		backends: backends,
		sem:      semaphore.NewWeighted(8),
		clock:    routing.SystemClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether any backend is configured.
func (d *Dispatcher) Enabled() bool { return len(d.backends) > 0 }

// candidates returns the backends eligible for this request: the
// primary plus at most one substitute.
func (d *Dispatcher) candidates() []Backend {
	if len(d.backends) > 2 {
		return d.backends[:2]
	}
	return d.backends
}

// Dispatch runs the buffered mode: the backend's complete answer
// replaces the default-fallback content and a synthetic trace step
// records the backend used. Backend failure reverts transparently to
// the cascade content with the trace mode annotated.
func (d *Dispatcher) Dispatch(ctx context.Context, p *Prompt, res *routing.Result) *routing.Result {
	if !d.Enabled() {
		return res
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.annotateFailure(res, d.backends[0].Name(), "dispatch capacity unavailable")
		return res
	}
	defer d.sem.Release(1)

	start := d.clock.Now()
	var lastErr error
	var lastName string
	for _, backend := range d.candidates() {
		lastName = backend.Name()
		content, err := backend.Complete(ctx, p)
		if err != nil {
			lastErr = err
			slog.Warn("fallback.backend_failed", "backend", backend.Name(), "error", err)
			continue
		}
		elapsed := d.clock.Now().Sub(start)
		res.Content = content
		res.Trace.Mode = routing.ModeGenerative
		res.Trace.FinalLayer = routing.LayerGenerativeDispatch
		res.Trace.FinalLayerName = backend.Name()
		appendDispatchStep(res.Trace, backend.Name(), routing.StatusMatched, elapsed.Seconds()*1000, nil)
		slog.Debug("fallback.dispatch", "backend", backend.Name(), "duration_ms", elapsed.Milliseconds())
		return res
	}

	d.annotateFailure(res, lastName, fmt.Sprintf("all backends failed: %v", lastErr))
	return res
}

// DispatchStream runs the streamed mode. The returned channel carries
// the trace event first (so clients can render pipeline metadata before
// any content), then content deltas in upstream order, then the
// terminal sentinel. The channel closes after the sentinel.
func (d *Dispatcher) DispatchStream(ctx context.Context, p *Prompt, res *routing.Result) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		contentChan, errChan, backend := d.openStream(ctx, p)
		if contentChan == nil {
			// No backend produced a stream: emit the cascade's own
			// content so the consumer still gets a complete envelope.
			if backend != "" {
				d.annotateFailure(res, backend, "stream start failed")
			}
			emit(ctx, events, Event{Trace: res.Trace})
			emit(ctx, events, Event{Content: res.Content})
			emit(ctx, events, Event{Done: true})
			return
		}

		res.Trace.Mode = routing.ModeGenerative
		res.Trace.FinalLayer = routing.LayerGenerativeDispatch
		res.Trace.FinalLayerName = backend
		appendDispatchStep(res.Trace, backend, routing.StatusMatched, 0, map[string]any{"streamed": true})
		if !emit(ctx, events, Event{Trace: res.Trace}) {
			return
		}

		relayed := 0
		var streamErr error
		for contentChan != nil || errChan != nil {
			// Pending deltas outrank a pending error: tokens the
			// upstream already delivered must reach the consumer in
			// order before the failure is handled.
			select {
			case delta, ok := <-contentChan:
				if !ok {
					contentChan = nil
					continue
				}
				if delta == "" {
					continue
				}
				relayed++
				if !emit(ctx, events, Event{Content: delta}) {
					return
				}
				continue
			default:
			}

			select {
			case delta, ok := <-contentChan:
				if !ok {
					contentChan = nil
					continue
				}
				if delta == "" {
					continue
				}
				relayed++
				if !emit(ctx, events, Event{Content: delta}) {
					return
				}
			case err, ok := <-errChan:
				if !ok {
					errChan = nil
					continue
				}
				streamErr = err
				errChan = nil
			case <-ctx.Done():
				// Downstream went away; the backend goroutine sees the
				// same ctx and releases the upstream connection.
				return
			}
		}
		if streamErr != nil {
			// Mid-stream failure is never surfaced as an error.
			slog.Warn("fallback.stream_failed", "backend", backend, "error", streamErr)
			if relayed == 0 {
				emit(ctx, events, Event{Content: res.Content})
			}
		}
		emit(ctx, events, Event{Done: true})
	}()

	return events
}

// openStream tries the primary backend and at most one substitute.
// Returns nil channels when no backend could start; the backend name is
// "" when none was configured at all.
func (d *Dispatcher) openStream(ctx context.Context, p *Prompt) (<-chan string, <-chan error, string) {
	if !d.Enabled() {
		return nil, nil, ""
	}
	var lastName string
	for _, backend := range d.candidates() {
		lastName = backend.Name()
		contentChan, errChan, err := backend.Stream(ctx, p)
		if err != nil {
			slog.Warn("fallback.stream_start_failed", "backend", backend.Name(), "error", err)
			continue
		}
		return contentChan, errChan, backend.Name()
	}
	return nil, nil, lastName
}

func (d *Dispatcher) annotateFailure(res *routing.Result, backend, detail string) {
	res.Trace.Mode = routing.ModeGenerativeFailed
	details := map[string]any{"error": detail}
	if backend != "" {
		details["backend"] = backend
	}
	appendDispatchStep(res.Trace, "generative_dispatch", routing.StatusChecked, 0, details)
}

// FailedBackend returns the backend recorded on a failed dispatch step,
// or "none" when the trace carries no attribution.
func FailedBackend(trace *routing.PipelineTrace) string {
	if trace == nil || len(trace.Steps) == 0 {
		return "none"
	}
	last := trace.Steps[len(trace.Steps)-1]
	if last.Layer != routing.LayerGenerativeDispatch {
		return "none"
	}
	if name, ok := last.Details["backend"].(string); ok && name != "" {
		return name
	}
	return "none"
}

// appendDispatchStep folds the synthetic dispatch step into an
// already-finished trace, keeping the total duration consistent.
func appendDispatchStep(trace *routing.PipelineTrace, name string, status routing.StepStatus, durationMs float64, details map[string]any) {
	trace.Steps = append(trace.Steps, routing.PipelineStep{
		Layer:       routing.LayerGenerativeDispatch,
		Name:        name,
		Description: "Hand-off to a generative backend",
		Status:      status,
		DurationMs:  durationMs,
		Details:     details,
	})
	trace.TotalDurationMs += durationMs
}

// emit sends an event unless the consumer is gone. Returns false when
// the dispatch should stop.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// BuildPrompt assembles the generative prompt for a business: a system
// prompt grounding the model in the storefront plus the raw history.
func BuildPrompt(cfg *business.Config, history []routing.Message, message string) *Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "คุณคือแอดมินร้าน %s ตอบลูกค้าอย่างสุภาพ กระชับ เป็นภาษาเดียวกับลูกค้า\n", cfg.BusinessName)
	b.WriteString("ห้ามยืนยันจำนวนสต็อกสินค้า ให้แจ้งว่าจะเช็คกับทีมงานเสมอ\n")
	if len(cfg.Products) > 0 {
		b.WriteString("สินค้าในร้าน:\n")
		for i, p := range cfg.Products {
			if i >= 20 {
				break
			}
			fmt.Fprintf(&b, "- %s (%.0f บาท, %s)\n", p.Name, p.Price, p.Category)
		}
	}
	return &Prompt{
		System:  b.String(),
		History: history,
		Message: message,
	}
}
