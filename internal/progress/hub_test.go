package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		FlushInterval:  time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageHarvestStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubFlushOnInterval verifies small batches still reach sinks.
func TestHubFlushOnInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		FlushInterval:  20 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageHarvestStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNeverBlocks asserts Emit returns promptly with a full queue.
func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		queue:  make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageHarvestStart))
	hub.Emit(sampleEvent(StageHarvestStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
}

// TestHubDroppedCountsEveryDrop checks the lifetime total survives drop warnings.
func TestHubDroppedCountsEveryDrop(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := &Hub{
		queue:   make(chan Event),
		logger:  zap.New(core),
		dropLog: rate.Sometimes{First: 1, Interval: time.Hour},
	}
	for range 5 {
		hub.Emit(sampleEvent(StageHarvestStart))
	}
	require.Equal(t, int64(5), hub.Dropped())

	warnings := logs.FilterMessage("progress events dropped").All()
	require.Len(t, warnings, 1)
	require.Equal(t, int64(1), warnings[0].ContextMap()["dropped"])
}

// TestHubFlushOnClose ensures Close drains buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		FlushInterval:  time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageHarvestStart))
	hub.Emit(sampleEvent(StageHarvestDone))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageHarvestStart))
	require.Len(t, sink.Batches(), 1)
}

// TestHubSkipsInvalidEvents keeps malformed events away from sinks.
func TestHubSkipsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{FlushInterval: time.Minute}, sink)
	hub.Emit(Event{Stage: StageHarvestStart})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubToleratesSinkErrors keeps delivering to healthy sinks.
func TestHubToleratesSinkErrors(t *testing.T) {
	t.Parallel()

	good := newStubSink()
	hub := NewHub(Config{FlushInterval: time.Minute}, failingSink{}, nil, good)
	hub.Emit(sampleEvent(StageVerifyStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, good.Batches(), 1)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageHarvestStart))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := sampleEvent(StageCheckDone)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing run id", func(e *Event) { e.RunID = uuid.Nil }},
		{"missing timestamp", func(e *Event) { e.TS = time.Time{} }},
		{"unknown stage", func(e *Event) { e.Stage = "NOPE" }},
		{"check without url", func(e *Event) { e.URL = "" }},
		{"check without outcome", func(e *Event) { e.Outcome = "" }},
		{"negative duration", func(e *Event) { e.Dur = -time.Second }},
		{"page without number", func(e *Event) { e.Stage = StagePageFetched; e.Page = 0 }},
	}
	for _, tt := range tests {
		evt := valid
		tt.mutate(&evt)
		require.Error(t, evt.Validate(), tt.name)
	}
}

func TestEventTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, Event{Stage: StageHarvestDone}.Terminal())
	require.True(t, Event{Stage: StageHarvestError}.Terminal())
	require.True(t, Event{Stage: StageVerifyDone}.Terminal())
	require.False(t, Event{Stage: StagePageFetched}.Terminal())
}

func TestEmitterFunc(t *testing.T) {
	t.Parallel()

	var got []Stage
	var e Emitter = EmitterFunc(func(evt Event) { got = append(got, evt.Stage) })
	e.Emit(Event{Stage: StageVerifyStart})
	Discard.Emit(Event{Stage: StageVerifyDone})
	require.Equal(t, []Stage{StageVerifyStart}, got)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []Event) error { return errors.New("sink down") }
func (failingSink) Close(context.Context) error            { return errors.New("sink down") }

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:   uuid.New(),
		TS:      time.Now().UTC(),
		Stage:   stage,
		Page:    1,
		URL:     "https://x.org/display/FOO",
		Outcome: audit.OutcomeReachable,
	}
}
