// Package session runs analysis sessions: it pulls landmark frames
// from a source, drives the exercise state machine frame by frame and
// finalizes an immutable result. One pipeline per session, sessions
// share no mutable state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gymbro/formcore/internal/analysis"
	"github.com/gymbro/formcore/internal/pose"
	"github.com/gymbro/formcore/internal/telemetry/metrics"
	"github.com/gymbro/formcore/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrSessionCancelled is the terminal non-error outcome of a
	// cancelled session. No result is produced.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrNotFinalized is returned by Result before the pipeline ran
	// to completion.
	ErrNotFinalized = errors.New("session not finalized")
	// ErrAlreadyRunning guards Run against double invocation.
	ErrAlreadyRunning = errors.New("session already running")
)

// State is the session lifecycle state.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateFinalized State = "finalized"
	StateCancelled State = "cancelled"
)

// Result is the immutable outcome of a finalized session.
type Result struct {
	SessionID string            `json:"sessionId"`
	Exercise  analysis.Exercise `json:"exercise"`
	*analysis.Summary
}

type Pipeline struct {
	id       string
	exercise analysis.Exercise
	cfg      *analysis.Config
	machine  *analysis.Machine
	src      pose.Source
	overlay  OverlaySink
	manager  *metrics.Manager

	mu        sync.Mutex
	state     State
	reps      []analysis.RepRecord
	result    *Result
	lastIndex int64

	stopOnce   sync.Once
	stopCh     chan struct{}
	cancelOnce sync.Once
	cancelCh   chan struct{}
}

type NewPipelineParams struct {
	Exercise analysis.Exercise
	Source   pose.Source
	// Overlay may be nil; annotations are then discarded.
	Overlay OverlaySink
	// Manager may be nil (no metrics recorded, e.g. in library use).
	Manager *metrics.Manager
	// Config overrides the default threshold table when set.
	Config *analysis.Config
}

// NewPipeline validates the exercise type and builds a session in the
// Created state. Unknown exercise types fail here, before any frame
// is processed.
func NewPipeline(params NewPipelineParams) (*Pipeline, error) {
	cfg := params.Config
	if cfg == nil {
		var err error
		cfg, err = analysis.ConfigFor(params.Exercise)
		if err != nil {
			return nil, fmt.Errorf("load threshold config: %w", err)
		}
	}

	machine, err := analysis.NewMachine(cfg)
	if err != nil {
		return nil, fmt.Errorf("new state machine: %w", err)
	}

	overlay := params.Overlay
	if overlay == nil {
		overlay = NopOverlay{}
	}

	return &Pipeline{
		id:        uuid.NewString(),
		exercise:  params.Exercise,
		cfg:       cfg,
		machine:   machine,
		src:       params.Source,
		overlay:   overlay,
		manager:   params.Manager,
		state:     StateCreated,
		lastIndex: -1,
		stopCh:    make(chan struct{}),
		cancelCh:  make(chan struct{}),
	}, nil
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) Exercise() analysis.Exercise { return p.exercise }

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop requests a graceful finalize: the pipeline stops pulling frames
// and produces a result from the reps counted so far.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Cancel aborts the session. Terminal: no result is ever produced.
func (p *Pipeline) Cancel() {
	p.cancelOnce.Do(func() { close(p.cancelCh) })
}

// Result returns the finalized session result, ErrNotFinalized while
// the session still runs, or ErrSessionCancelled.
func (p *Pipeline) Result() (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateFinalized:
		return p.result, nil
	case StateCancelled:
		return nil, ErrSessionCancelled
	default:
		return nil, ErrNotFinalized
	}
}

// Run processes the frame stream until end-of-stream, Stop or Cancel.
// It returns nil after finalizing, ErrSessionCancelled after
// cancellation (ctx cancellation counts as cancel).
func (p *Pipeline) Run(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.run")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("session_id", p.id),
		attribute.String("exercise", string(p.exercise)),
	)

	p.mu.Lock()
	if p.state != StateCreated {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.state = StateRunning
	p.mu.Unlock()

	if p.manager != nil {
		p.manager.CounterSessionsStarted.Inc()
		p.manager.GaugeActiveSessions.Inc()
		defer p.manager.GaugeActiveSessions.Dec()
	}
	startedAt := time.Now()

	// cancel unblocks the source read too
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-p.cancelCh:
			cancelRun()
		case <-p.stopCh:
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	for {
		// cooperative stop/cancel check between frames
		select {
		case <-p.cancelCh:
			return p.toCancelled()
		case <-ctx.Done():
			return p.toCancelled()
		case <-p.stopCh:
			return p.finalize(startedAt)
		default:
		}

		frame, ferr := p.src.Next(runCtx)
		if ferr != nil {
			switch {
			case errors.Is(ferr, pose.ErrEndOfStream):
				return p.finalize(startedAt)
			case errors.Is(ferr, context.Canceled), errors.Is(ferr, context.DeadlineExceeded):
				select {
				case <-p.stopCh:
					return p.finalize(startedAt)
				default:
					return p.toCancelled()
				}
			default:
				return p.toCancelled()
			}
		}

		p.processFrame(frame)
	}
}

func (p *Pipeline) processFrame(frame pose.Frame) {
	frameStart := time.Now()

	if frame.Index <= p.lastIndex {
		// out-of-order delivery is not tolerated, the frame is
		// rejected and the stream position kept
		log.Warnf("session %s: rejecting stale frame %d (last seen %d)",
			p.id, frame.Index, p.lastIndex)
		if p.manager != nil {
			p.manager.CounterFramesOutOfOrder.Inc()
		}
		return
	}

	// frame indices start at 0, so the distance to the last processed
	// index counts every frame that never reached us (dropped upstream
	// or evicted under backpressure), leading ones included
	missed := int(frame.Index - p.lastIndex - 1)
	gap := 0
	if p.lastIndex >= 0 {
		gap = missed
	}
	p.lastIndex = frame.Index

	if missed > 0 && p.manager != nil {
		p.manager.CounterFramesDropped.Add(float64(missed))
	}

	values := analysis.Compute(frame, p.machine.Metrics(), p.cfg.MinConfidence)
	events := p.machine.Step(frame.Index, gap, values)

	var eventNames []string
	for _, ev := range events {
		eventNames = append(eventNames, ev.Kind.String())
		switch ev.Kind {
		case analysis.RepCompleted:
			p.mu.Lock()
			p.reps = append(p.reps, *ev.Rep)
			p.mu.Unlock()
			if p.manager != nil {
				p.manager.CounterRepsCompleted.Inc()
			}
			log.Debugf("session %s: rep %d completed, extremum %.1f",
				p.id, ev.Rep.Number, ev.Rep.Extremum)
		case analysis.PartialAttempt:
			if p.manager != nil {
				p.manager.CounterPartialAttempts.Inc()
			}
		case analysis.TrackingSuspended:
			if p.manager != nil {
				p.manager.CounterTrackingSuspends.Inc()
			}
			log.Debugf("session %s: tracking suspended at frame %d", p.id, frame.Index)
		}
	}

	// fire-and-forget: overlay failures never affect analysis
	if renderErr := p.overlay.Render(Annotation{
		FrameIndex: frame.Index,
		Phase:      string(p.machine.Phase()),
		Suspended:  p.machine.Suspended(),
		Metrics:    values,
		RepsCount:  p.machine.RepsDone(),
		Events:     eventNames,
	}); renderErr != nil {
		log.Tracef("session %s: overlay render: %s", p.id, renderErr)
	}

	if p.manager != nil {
		p.manager.CounterFramesProcessed.Inc()
		p.manager.HistogramFrameDuration.Observe(time.Since(frameStart).Seconds())
	}
}

func (p *Pipeline) finalize(startedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result = &Result{
		SessionID: p.id,
		Exercise:  p.exercise,
		Summary:   analysis.Summarize(p.exercise, p.reps),
	}
	p.state = StateFinalized

	if p.manager != nil {
		p.manager.CounterSessionsFinalized.Inc()
		p.manager.HistogramSessionDuration.Observe(time.Since(startedAt).Seconds())
	}
	log.Infof("session %s finalized: %d reps", p.id, p.result.RepsCount)
	return nil
}

func (p *Pipeline) toCancelled() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateCancelled
	if p.manager != nil {
		p.manager.CounterSessionsCancelled.Inc()
	}
	log.Infof("session %s cancelled", p.id)
	return ErrSessionCancelled
}
