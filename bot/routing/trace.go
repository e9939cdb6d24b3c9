package routing

import (
	"math"
	"sort"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Clock abstracts wall-clock access so tests can supply a deterministic
// clock. The real pipeline uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TraceBuilder accumulates one PipelineStep per layer as the cascade
// runs and produces the finished PipelineTrace. It has no matching
// logic of its own.
type TraceBuilder struct {
	clock       Clock
	start       time.Time
	userMessage string
	steps       map[int]PipelineStep
}

// NewTraceBuilder starts a trace for one request.
func NewTraceBuilder(clock Clock, userMessage string) *TraceBuilder {
	return &TraceBuilder{
		clock:       clock,
		start:       clock.Now(),
		userMessage: userMessage,
		steps:       make(map[int]PipelineStep, layerCount+1),
	}
}

// Start returns the trace's start time, usable as a layer start stamp.
func (b *TraceBuilder) Start() time.Time { return b.start }

// Record captures the outcome of one layer. Elapsed time is measured
// from start to now and rounded to two decimal places.
func (b *TraceBuilder) Record(layer int, status StepStatus, start time.Time, details map[string]any) {
	b.steps[layer] = PipelineStep{
		Layer:       layer,
		Name:        LayerName(layer),
		Description: b.describe(layer),
		Status:      status,
		DurationMs:  roundMs(b.clock.Now().Sub(start)),
		Details:     details,
	}
}

func (b *TraceBuilder) describe(layer int) string {
	if layer >= 0 && layer < layerCount {
		return layerTable[layer].description
	}
	if layer == LayerGenerativeDispatch {
		return "Hand-off to a generative backend"
	}
	return ""
}

// Finish fills every unrecorded layer as not_reached, orders the steps
// by layer number, and computes the total duration.
func (b *TraceBuilder) Finish(finalLayer int, finalIntent string, mode TraceMode) *PipelineTrace {
	for layer := 0; layer < layerCount; layer++ {
		if _, ok := b.steps[layer]; !ok {
			b.steps[layer] = PipelineStep{
				Layer:       layer,
				Name:        LayerName(layer),
				Description: b.describe(layer),
				Status:      StatusNotReached,
				DurationMs:  0,
			}
		}
	}

	steps := make([]PipelineStep, 0, len(b.steps))
	for _, s := range b.steps {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Layer < steps[j].Layer })

	return &PipelineTrace{
		ID:              shortuuid.New(),
		TotalDurationMs: roundMs(b.clock.Now().Sub(b.start)),
		Mode:            mode,
		Steps:           steps,
		FinalLayer:      finalLayer,
		FinalLayerName:  LayerName(finalLayer),
		FinalIntent:     finalIntent,
		UserMessage:     b.userMessage,
		Timestamp:       b.start,
	}
}

func roundMs(d time.Duration) float64 {
	ms := float64(d.Microseconds()) / 1000.0
	return math.Round(ms*100) / 100
}
