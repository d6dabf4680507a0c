package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gymbro/formcore/internal/analysis"
	"github.com/gymbro/formcore/internal/pose"
	"github.com/gymbro/formcore/internal/session"
	"github.com/gymbro/formcore/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*session.Handler, *mux.Router) {
	t.Helper()

	manager := session.NewManager(session.NewManagerParams{
		Metrics:        metrics.NewTestManager(),
		LiveBufferSize: 32,
	})
	t.Cleanup(manager.Shutdown)

	handler := session.NewHandler(manager)
	r := mux.NewRouter()
	r.HandleFunc("/analysis/exercises", handler.HandleListExercises).Methods("GET")
	r.HandleFunc("/analysis/analyze", handler.HandleAnalyze).Methods("POST")
	r.HandleFunc("/analysis/session", handler.HandleStart).Methods("POST")
	r.HandleFunc("/analysis/session/{id}/frames", handler.HandlePushFrames).Methods("POST")
	r.HandleFunc("/analysis/session/{id}/finalize", handler.HandleFinalize).Methods("POST")
	r.HandleFunc("/analysis/session/{id}/cancel", handler.HandleCancel).Methods("POST")
	r.HandleFunc("/analysis/session/{id}/result", handler.HandleResult).Methods("GET")
	return handler, r
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func wireFrames(frames []pose.Frame) []pose.FrameInput {
	inputs := make([]pose.FrameInput, 0, len(frames))
	for _, f := range frames {
		in := pose.FrameInput{Index: f.Index, Detected: f.Detected}
		if f.Detected {
			in.Landmarks = make([]pose.LandmarkInput, pose.NumJoints)
			for j, lm := range f.Landmarks {
				in.Landmarks[j] = pose.LandmarkInput{
					X: lm.X, Y: lm.Y, Z: lm.Z, Confidence: lm.Confidence,
				}
			}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

func startSession(t *testing.T, r *mux.Router, exercise string) string {
	t.Helper()

	rr := doJSON(t, r, "POST", "/analysis/session", session.StartSessionRequest{Exercise: exercise})
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp session.StartSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, exercise, resp.Exercise)
	return resp.SessionID
}

func TestHandler_SessionFlow(t *testing.T) {
	_, r := newTestHandler(t)
	id := startSession(t, r, "squat")

	rr := doJSON(t, r, "POST", fmt.Sprintf("/analysis/session/%s/frames", id),
		session.PushFramesRequest{Frames: wireFrames(squatRepFrames())})
	require.Equal(t, http.StatusOK, rr.Code)

	var pushResp session.PushFramesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pushResp))
	assert.Equal(t, 5, pushResp.Accepted)

	rr = doJSON(t, r, "POST", fmt.Sprintf("/analysis/session/%s/finalize", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result session.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, id, result.SessionID)
	assert.Equal(t, analysis.Squat, result.Exercise)
	assert.Equal(t, 1, result.RepsCount)

	// result stays retrievable after finalization
	rr = doJSON(t, r, "GET", fmt.Sprintf("/analysis/session/%s/result", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var again session.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.Equal(t, result.Summary, again.Summary)
}

func TestHandler_StartUnknownExercise(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/session", session.StartSessionRequest{Exercise: "handstand"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_StartInvalidContentType(t *testing.T) {
	_, r := newTestHandler(t)
	req := httptest.NewRequest("POST", "/analysis/session", bytes.NewBufferString(`{"exercise":"squat"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_StartWithThresholdOverride(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/session", session.StartSessionRequest{
		Exercise:   "squat",
		Thresholds: map[string]float64{"knee_enter_bottom": 140},
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestHandler_StartUnknownThreshold(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/session", session.StartSessionRequest{
		Exercise:   "squat",
		Thresholds: map[string]float64{"elbow_enter_bottom": 140},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_PushFramesUnknownSession(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/session/nope/frames",
		session.PushFramesRequest{Frames: wireFrames(squatRepFrames())})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_PushInvalidFrame(t *testing.T) {
	_, r := newTestHandler(t)
	id := startSession(t, r, "squat")

	rr := doJSON(t, r, "POST", fmt.Sprintf("/analysis/session/%s/frames", id),
		session.PushFramesRequest{Frames: []pose.FrameInput{{Index: -1}}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_ResultWhileRunning(t *testing.T) {
	_, r := newTestHandler(t)
	id := startSession(t, r, "pushup")

	rr := doJSON(t, r, "GET", fmt.Sprintf("/analysis/session/%s/result", id), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_Cancel(t *testing.T) {
	_, r := newTestHandler(t)
	id := startSession(t, r, "deadlift")

	rr := doJSON(t, r, "POST", fmt.Sprintf("/analysis/session/%s/cancel", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp session.CancelSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.CancelledID)

	// cancelled sessions are gone
	rr = doJSON(t, r, "GET", fmt.Sprintf("/analysis/session/%s/result", id), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestManager_ShutdownCancelsRunning(t *testing.T) {
	manager := session.NewManager(session.NewManagerParams{
		Metrics:        metrics.NewTestManager(),
		LiveBufferSize: 8,
	})

	pipeline, err := manager.Start(context.Background(), analysis.Squat, nil)
	require.NoError(t, err)

	manager.Shutdown()

	assert.Equal(t, session.StateCancelled, pipeline.State())
	_, err = pipeline.Result()
	assert.ErrorIs(t, err, session.ErrSessionCancelled)
}

func TestHandler_ListExercises(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "GET", "/analysis/exercises", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp session.ExercisesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.ElementsMatch(t,
		[]string{"squat", "pushup", "pullup", "deadlift", "benchpress"},
		resp.Exercises,
	)
}

func TestHandler_Analyze(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/analyze", session.AnalyzeRequest{
		Exercise: "squat",
		Frames:   wireFrames(squatRepFrames()),
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var result session.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.RepsCount)
	require.Len(t, result.PerRep, 1)
	assert.InDelta(t, 145, result.PerRep[0].Extremum, 1e-6)
}

func TestHandler_AnalyzeThresholdOverride(t *testing.T) {
	_, r := newTestHandler(t)
	// demand more depth than the input sequence reaches: no rep counted
	rr := doJSON(t, r, "POST", "/analysis/analyze", session.AnalyzeRequest{
		Exercise:   "squat",
		Thresholds: map[string]float64{"knee_enter_bottom": 120},
		Frames:     wireFrames(squatRepFrames()),
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var result session.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 0, result.RepsCount)
}

func TestHandler_AnalyzeNoFrames(t *testing.T) {
	_, r := newTestHandler(t)
	rr := doJSON(t, r, "POST", "/analysis/analyze", session.AnalyzeRequest{Exercise: "squat"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
