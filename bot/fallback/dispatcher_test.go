package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/bot/routing"
)

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// fakeBackend scripts both entry points.
type fakeBackend struct {
	name string

	completeContent string
	completeErr     error
	completeCalls   int

	streamDeltas   []string
	streamStartErr error
	streamMidErr   error
	streamCalls    int
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Complete(ctx context.Context, p *Prompt) (string, error) {
	b.completeCalls++
	if b.completeErr != nil {
		return "", b.completeErr
	}
	return b.completeContent, nil
}

func (b *fakeBackend) Stream(ctx context.Context, p *Prompt) (<-chan string, <-chan error, error) {
	b.streamCalls++
	if b.streamStartErr != nil {
		return nil, nil, b.streamStartErr
	}
	contentChan := make(chan string, len(b.streamDeltas)+1)
	errChan := make(chan error, 1)
	go func() {
		defer close(contentChan)
		defer close(errChan)
		for _, d := range b.streamDeltas {
			contentChan <- d
		}
		if b.streamMidErr != nil {
			errChan <- b.streamMidErr
		}
	}()
	return contentChan, errChan, nil
}

// fallbackResult builds a cascade result that fell through to the
// default fallback layer.
func fallbackResult(content string) *routing.Result {
	tb := routing.NewTraceBuilder(newFakeClock(), "test message")
	return &routing.Result{
		Content: content,
		Trace:   tb.Finish(routing.LayerDefaultFallback, "", routing.ModeRule),
	}
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestDispatchSuccess(t *testing.T) {
	backend := &fakeBackend{name: "openai", completeContent: "คำตอบจากโมเดลค่ะ"}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	assert.Equal(t, "คำตอบจากโมเดลค่ะ", out.Content)
	assert.Equal(t, routing.ModeGenerative, out.Trace.Mode)
	assert.Equal(t, routing.LayerGenerativeDispatch, out.Trace.FinalLayer)
	assert.Equal(t, "openai", out.Trace.FinalLayerName)

	// The synthetic dispatch step extends the fixed 15-layer trace.
	require.Len(t, out.Trace.Steps, 16)
	last := out.Trace.Steps[15]
	assert.Equal(t, routing.LayerGenerativeDispatch, last.Layer)
	assert.Equal(t, routing.StatusMatched, last.Status)
}

func TestDispatchSubstitutesOnce(t *testing.T) {
	primary := &fakeBackend{name: "openai", completeErr: errors.New("rate limited")}
	secondary := &fakeBackend{name: "deepseek", completeContent: "secondary answer"}
	d := NewDispatcher([]Backend{primary, secondary}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	assert.Equal(t, 1, primary.completeCalls)
	assert.Equal(t, 1, secondary.completeCalls)
	assert.Equal(t, "secondary answer", out.Content)
	assert.Equal(t, "deepseek", out.Trace.FinalLayerName)
}

// A third backend is never consulted: one substitution at most.
func TestDispatchAtMostOneSubstitution(t *testing.T) {
	first := &fakeBackend{name: "a", completeErr: errors.New("down")}
	second := &fakeBackend{name: "b", completeErr: errors.New("down")}
	third := &fakeBackend{name: "c", completeContent: "never used"}
	d := NewDispatcher([]Backend{first, second, third}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	assert.Equal(t, 0, third.completeCalls)
	assert.Equal(t, "default copy", out.Content)
	assert.Equal(t, routing.ModeGenerativeFailed, out.Trace.Mode)
}

func TestDispatchAllFailRevertsContent(t *testing.T) {
	backend := &fakeBackend{name: "openai", completeErr: errors.New("boom")}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	assert.Equal(t, "default copy", out.Content)
	assert.Equal(t, routing.ModeGenerativeFailed, out.Trace.Mode)
	// Final layer still points at the cascade's own decision.
	assert.Equal(t, routing.LayerDefaultFallback, out.Trace.FinalLayer)

	require.Len(t, out.Trace.Steps, 16)
	last := out.Trace.Steps[15]
	assert.Equal(t, routing.StatusChecked, last.Status)
	assert.Contains(t, last.Details["error"], "boom")
}

func TestDispatchNoBackends(t *testing.T) {
	d := NewDispatcher(nil)
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	assert.False(t, d.Enabled())
	assert.Equal(t, "default copy", out.Content)
	assert.Equal(t, routing.ModeRule, out.Trace.Mode)
	assert.Len(t, out.Trace.Steps, 15)
}

func TestDispatchStreamOrdering(t *testing.T) {
	backend := &fakeBackend{name: "openai", streamDeltas: []string{"สวัส", "ดีค่ะ"}}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	require.Len(t, events, 4)
	// Trace first, before any content.
	require.NotNil(t, events[0].Trace)
	assert.Equal(t, routing.ModeGenerative, events[0].Trace.Mode)
	assert.Equal(t, "openai", events[0].Trace.FinalLayerName)
	assert.Equal(t, "สวัส", events[1].Content)
	assert.Equal(t, "ดีค่ะ", events[2].Content)
	assert.True(t, events[3].Done)
}

func TestDispatchStreamDropsEmptyDeltas(t *testing.T) {
	backend := &fakeBackend{name: "openai", streamDeltas: []string{"", "จริง", ""}}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	require.Len(t, events, 3)
	assert.Equal(t, "จริง", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestDispatchStreamNoBackends(t *testing.T) {
	d := NewDispatcher(nil)
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	require.Len(t, events, 3)
	require.NotNil(t, events[0].Trace)
	// Without a backend the envelope carries the cascade's own answer
	// and the trace stays in rule mode.
	assert.Equal(t, routing.ModeRule, events[0].Trace.Mode)
	assert.Equal(t, "default copy", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestDispatchStreamStartFailureFallsBack(t *testing.T) {
	backend := &fakeBackend{name: "openai", streamStartErr: errors.New("connect refused")}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	require.Len(t, events, 3)
	assert.Equal(t, routing.ModeGenerativeFailed, events[0].Trace.Mode)
	assert.Equal(t, "default copy", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestDispatchStreamSubstitutesOnStartFailure(t *testing.T) {
	primary := &fakeBackend{name: "openai", streamStartErr: errors.New("down")}
	secondary := &fakeBackend{name: "deepseek", streamDeltas: []string{"ok"}}
	d := NewDispatcher([]Backend{primary, secondary}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	assert.Equal(t, 1, primary.streamCalls)
	assert.Equal(t, 1, secondary.streamCalls)
	require.NotEmpty(t, events)
	assert.Equal(t, "deepseek", events[0].Trace.FinalLayerName)
}

// A mid-stream failure before any delta was relayed still delivers the
// cascade content so the client never ends up with an empty reply.
func TestDispatchStreamMidErrorBeforeContent(t *testing.T) {
	backend := &fakeBackend{name: "openai", streamMidErr: errors.New("reset")}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

	require.Len(t, events, 3)
	require.NotNil(t, events[0].Trace)
	assert.Equal(t, "default copy", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestDispatchStreamContextCancelled(t *testing.T) {
	backend := &fakeBackend{name: "openai", streamDeltas: []string{"a", "b"}}
	d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := d.DispatchStream(ctx, &Prompt{Message: "m"}, res)

	// The channel must close promptly instead of hanging.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	cfg := &business.Config{
		BusinessID:   "b1",
		BusinessName: "ร้านทดสอบ",
		Products: []*business.Product{
			{ID: "p1", Name: "iPhone 15", Price: 32900, Category: "มือถือ", Status: business.ProductActive},
		},
	}
	history := []routing.Message{{Role: routing.RoleUser, Content: "สวัสดี"}}

	p := BuildPrompt(cfg, history, "มีอะไรแนะนำ")

	assert.Contains(t, p.System, "ร้านทดสอบ")
	assert.Contains(t, p.System, "iPhone 15")
	// The stock-safety rule rides along in every prompt.
	assert.Contains(t, p.System, "ห้ามยืนยันจำนวนสต็อก")
	assert.Equal(t, history, p.History)
	assert.Equal(t, "มีอะไรแนะนำ", p.Message)
}

// Tokens the upstream already delivered must all reach the consumer in
// order even when a failure is queued right behind them.
func TestDispatchStreamMidErrorAfterContent(t *testing.T) {
	for i := 0; i < 50; i++ {
		backend := &fakeBackend{
			name:         "openai",
			streamDeltas: []string{"tok1", "tok2", "tok3"},
			streamMidErr: errors.New("reset"),
		}
		d := NewDispatcher([]Backend{backend}, WithClock(newFakeClock()))
		res := fallbackResult("default copy")

		events := collect(d.DispatchStream(context.Background(), &Prompt{Message: "m"}, res))

		require.Len(t, events, 5)
		require.NotNil(t, events[0].Trace)
		assert.Equal(t, "tok1", events[1].Content)
		assert.Equal(t, "tok2", events[2].Content)
		assert.Equal(t, "tok3", events[3].Content)
		assert.True(t, events[4].Done)
	}
}

func TestDispatchFailureRecordsBackend(t *testing.T) {
	first := &fakeBackend{name: "openai", completeErr: errors.New("boom")}
	second := &fakeBackend{name: "deepseek", completeErr: errors.New("boom too")}
	d := NewDispatcher([]Backend{first, second}, WithClock(newFakeClock()))
	res := fallbackResult("default copy")

	out := d.Dispatch(context.Background(), &Prompt{Message: "m"}, res)

	last := out.Trace.Steps[len(out.Trace.Steps)-1]
	assert.Equal(t, "deepseek", last.Details["backend"])
	assert.Equal(t, "deepseek", FailedBackend(out.Trace))
}

func TestFailedBackendWithoutDispatchStep(t *testing.T) {
	res := fallbackResult("default copy")

	assert.Equal(t, "none", FailedBackend(res.Trace))
	assert.Equal(t, "none", FailedBackend(nil))
}
