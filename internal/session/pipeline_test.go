package session_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gymbro/formcore/internal/analysis"
	"github.com/gymbro/formcore/internal/pose"
	"github.com/gymbro/formcore/internal/session"
	"github.com/gymbro/formcore/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// rotatedFrom places a landmark at distance r from (x, y), rotated
// from the upward direction by deg degrees.
func rotatedFrom(x, y, r, deg float64) pose.Landmark {
	rad := deg * math.Pi / 180
	return pose.Landmark{
		X:          x + r*math.Sin(rad),
		Y:          y - r*math.Cos(rad),
		Confidence: 1,
	}
}

// squatFrame builds a detected frame with the left leg bent to the
// given knee angle and the torso upright.
func squatFrame(index int64, kneeAngle float64) pose.Frame {
	f := pose.Frame{Index: index, Detected: true}
	for j := range f.Landmarks {
		f.Landmarks[j] = pose.Landmark{X: 0.5, Y: 0.5, Confidence: 1}
	}
	f.Landmarks[pose.LeftKnee] = pose.Landmark{X: 0.5, Y: 0.5, Confidence: 1}
	f.Landmarks[pose.LeftHip] = pose.Landmark{X: 0.5, Y: 0.3, Confidence: 1}
	f.Landmarks[pose.LeftShoulder] = pose.Landmark{X: 0.5, Y: 0.1, Confidence: 1}
	f.Landmarks[pose.LeftAnkle] = rotatedFrom(0.5, 0.5, 0.2, kneeAngle)
	return f
}

// one full squat: stand, descend, bottom, ascend, stand
func squatRepFrames() []pose.Frame {
	angles := []float64{180, 155, 145, 158, 170}
	frames := make([]pose.Frame, 0, len(angles))
	for i, a := range angles {
		frames = append(frames, squatFrame(int64(i), a))
	}
	return frames
}

func TestPipeline_FullSquatRun(t *testing.T) {
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(squatRepFrames()),
		Manager:  metrics.NewTestManager(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pipeline.ID())
	assert.Equal(t, session.StateCreated, pipeline.State())

	require.NoError(t, pipeline.Run(context.Background()))
	assert.Equal(t, session.StateFinalized, pipeline.State())

	result, err := pipeline.Result()
	require.NoError(t, err)
	assert.Equal(t, pipeline.ID(), result.SessionID)
	assert.Equal(t, analysis.Squat, result.Exercise)
	assert.Equal(t, 1, result.RepsCount)
	require.Len(t, result.PerRep, 1)
	assert.InDelta(t, 145, result.PerRep[0].Extremum, 1e-6)
}

func TestPipeline_OverlayGetsEveryFrame(t *testing.T) {
	ctrl := gomock.NewController(t)
	overlayMock := NewMockOverlaySink(ctrl)

	frames := squatRepFrames()
	var annotated []session.Annotation
	overlayMock.EXPECT().
		Render(gomock.Any()).
		DoAndReturn(func(a session.Annotation) error {
			annotated = append(annotated, a)
			return nil
		}).
		Times(len(frames))

	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(frames),
		Overlay:  overlayMock,
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(context.Background()))

	require.Len(t, annotated, len(frames))
	assert.Equal(t, int64(0), annotated[0].FrameIndex)
	assert.Equal(t, string(analysis.SquatStanding), annotated[0].Phase)
	// the rep completes on the last frame
	last := annotated[len(annotated)-1]
	assert.Equal(t, 1, last.RepsCount)
	assert.Contains(t, last.Events, analysis.RepCompleted.String())
}

func TestPipeline_OverlayErrorsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	overlayMock := NewMockOverlaySink(ctrl)
	overlayMock.EXPECT().
		Render(gomock.Any()).
		Return(errors.New("render failed")).
		AnyTimes()

	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(squatRepFrames()),
		Overlay:  overlayMock,
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(context.Background()))

	result, err := pipeline.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepsCount)
}

func TestPipeline_UnknownExercise(t *testing.T) {
	_, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Exercise("jumping-jacks"),
		Source:   pose.NewSliceSource(nil),
	})
	assert.Error(t, err)
}

func TestPipeline_RunTwice(t *testing.T) {
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(squatRepFrames()),
	})
	require.NoError(t, err)

	require.NoError(t, pipeline.Run(context.Background()))
	assert.ErrorIs(t, pipeline.Run(context.Background()), session.ErrAlreadyRunning)
}

func TestPipeline_ResultBeforeRun(t *testing.T) {
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(nil),
	})
	require.NoError(t, err)

	_, err = pipeline.Result()
	assert.ErrorIs(t, err, session.ErrNotFinalized)
}

func TestPipeline_StaleFramesRejected(t *testing.T) {
	stale := squatFrame(1, 70) // duplicate index, must not reach the machine
	frames := []pose.Frame{
		squatFrame(0, 180),
		squatFrame(1, 155),
		stale,
		squatFrame(2, 145),
		squatFrame(3, 158),
		squatFrame(4, 170),
	}

	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(frames),
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(context.Background()))

	result, err := pipeline.Result()
	require.NoError(t, err)
	require.Equal(t, 1, result.RepsCount)
	// had the stale frame been processed, the extremum would be 70
	assert.InDelta(t, 145, result.PerRep[0].Extremum, 1e-6)
}

func TestPipeline_Cancel(t *testing.T) {
	src := pose.NewLiveSource(4)
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   src,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Run(context.Background())
	}()

	require.NoError(t, src.Push(squatFrame(0, 180)))
	pipeline.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, session.ErrSessionCancelled)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}

	assert.Equal(t, session.StateCancelled, pipeline.State())
	_, err = pipeline.Result()
	assert.ErrorIs(t, err, session.ErrSessionCancelled)
}

func TestPipeline_StopFinalizesEarly(t *testing.T) {
	src := pose.NewLiveSource(4)
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   src,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Run(context.Background())
	}()

	pipeline.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop")
	}

	result, err := pipeline.Result()
	require.NoError(t, err)
	assert.Equal(t, 0, result.RepsCount)
}

func TestPipeline_EndOfLiveStreamFinalizes(t *testing.T) {
	src := pose.NewLiveSource(8)
	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   src,
	})
	require.NoError(t, err)

	for _, f := range squatRepFrames() {
		require.NoError(t, src.Push(f))
	}
	src.Close()

	require.NoError(t, pipeline.Run(context.Background()))

	result, err := pipeline.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepsCount)
}

// two full squats, a shade deeper on the second one
func squatTwoRepFrames() []pose.Frame {
	angles := []float64{180, 155, 145, 158, 170, 155, 143, 162, 178}
	frames := make([]pose.Frame, 0, len(angles))
	for i, a := range angles {
		frames = append(frames, squatFrame(int64(i), a))
	}
	return frames
}

func TestPipeline_GapFeedsDroppedCounter(t *testing.T) {
	manager := metrics.NewTestManager()
	frames := []pose.Frame{
		squatFrame(0, 180),
		squatFrame(1, 155),
		// frames 2 and 3 never arrive
		squatFrame(4, 145),
		squatFrame(5, 158),
		squatFrame(6, 170),
	}

	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   pose.NewSliceSource(frames),
		Manager:  manager,
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(context.Background()))

	assert.Equal(t, float64(2), testutil.ToFloat64(manager.CounterFramesDropped))

	// a short gap does not cost the rep
	result, err := pipeline.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepsCount)
}

func TestPipeline_BackpressureDropsCounted(t *testing.T) {
	manager := metrics.NewTestManager()
	src := pose.NewLiveSource(2)

	// producer outruns the consumer: the two oldest frames get evicted
	// before the pipeline reads anything
	for i, a := range []float64{180, 175, 170, 165} {
		require.NoError(t, src.Push(squatFrame(int64(i), a)))
	}
	require.Equal(t, uint64(2), src.Dropped())
	src.Close()

	pipeline, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   src,
		Manager:  manager,
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Run(context.Background()))

	assert.Equal(t, float64(2), testutil.ToFloat64(manager.CounterFramesDropped))
}

func TestPipeline_InterleavedSessionsIndependent(t *testing.T) {
	solo := func(frames []pose.Frame) *analysis.Summary {
		pipeline, err := session.NewPipeline(session.NewPipelineParams{
			Exercise: analysis.Squat,
			Source:   pose.NewSliceSource(frames),
		})
		require.NoError(t, err)
		require.NoError(t, pipeline.Run(context.Background()))
		result, err := pipeline.Result()
		require.NoError(t, err)
		return result.Summary
	}

	framesA := squatRepFrames()
	framesB := squatTwoRepFrames()
	baselineA := solo(framesA)
	baselineB := solo(framesB)

	srcA := pose.NewLiveSource(16)
	srcB := pose.NewLiveSource(16)
	pipelineA, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   srcA,
	})
	require.NoError(t, err)
	pipelineB, err := session.NewPipeline(session.NewPipelineParams{
		Exercise: analysis.Squat,
		Source:   srcB,
	})
	require.NoError(t, err)

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- pipelineA.Run(context.Background()) }()
	go func() { doneB <- pipelineB.Run(context.Background()) }()

	// feed both sessions in alternating order
	for i := 0; i < len(framesA) || i < len(framesB); i++ {
		if i < len(framesA) {
			require.NoError(t, srcA.Push(framesA[i]))
		}
		if i < len(framesB) {
			require.NoError(t, srcB.Push(framesB[i]))
		}
	}
	srcA.Close()
	srcB.Close()
	require.NoError(t, <-doneA)
	require.NoError(t, <-doneB)

	resultA, err := pipelineA.Result()
	require.NoError(t, err)
	resultB, err := pipelineB.Result()
	require.NoError(t, err)

	// neither session sees the other: both match their solo baselines
	assert.Equal(t, baselineA, resultA.Summary)
	assert.Equal(t, baselineB, resultB.Summary)
	assert.Equal(t, 1, resultA.RepsCount)
	assert.Equal(t, 2, resultB.RepsCount)
}

func TestPipeline_Deterministic(t *testing.T) {
	run := func() *session.Result {
		pipeline, err := session.NewPipeline(session.NewPipelineParams{
			Exercise: analysis.Squat,
			Source:   pose.NewSliceSource(squatRepFrames()),
		})
		require.NoError(t, err)
		require.NoError(t, pipeline.Run(context.Background()))
		result, err := pipeline.Result()
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()
	assert.Equal(t, first.Summary, second.Summary)
}
