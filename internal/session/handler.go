package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/gymbro/formcore/internal/analysis"
	"github.com/gymbro/formcore/internal/pose"
	"github.com/gymbro/formcore/internal/telemetry/metrics"
	"github.com/gymbro/formcore/internal/telemetry/tracing"
	"github.com/gymbro/formcore/pkg"
)

var ErrSessionNotFound = errors.New("session not found")

// liveSession couples a running pipeline with the source its frames
// get pushed into and the goroutine running it.
type liveSession struct {
	pipeline *Pipeline
	src      *pose.LiveSource
	done     chan struct{}
	runErr   error
}

// Manager owns all live sessions of the process. Sessions are kept
// after finalization so the result stays retrievable; cancelled
// sessions are removed.
type Manager struct {
	metrics        *metrics.Manager
	minConfidence  float64
	liveBufferSize int

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type NewManagerParams struct {
	Metrics *metrics.Manager
	// MinConfidence overrides the default landmark confidence gate
	// when positive.
	MinConfidence  float64
	LiveBufferSize int
}

func NewManager(params NewManagerParams) *Manager {
	return &Manager{
		metrics:        params.Metrics,
		minConfidence:  params.MinConfidence,
		liveBufferSize: params.LiveBufferSize,
		sessions:       make(map[string]*liveSession),
	}
}

type StartSessionRequest struct {
	Exercise   string             `json:"exercise"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
	Exercise  string `json:"exercise"`
}

// Start creates a session with a live frame source and runs its
// pipeline in the background.
func (m *Manager) Start(ctx context.Context, exercise analysis.Exercise, thresholds map[string]float64) (*Pipeline, error) {
	cfg, err := analysis.ConfigFor(exercise)
	if err != nil {
		return nil, err
	}
	if m.minConfidence > 0 {
		cfg.MinConfidence = m.minConfidence
	}
	for name, value := range thresholds {
		cfg, err = cfg.WithThreshold(name, value)
		if err != nil {
			return nil, err
		}
	}

	src := pose.NewLiveSource(m.liveBufferSize)
	pipeline, err := NewPipeline(NewPipelineParams{
		Exercise: exercise,
		Source:   src,
		Manager:  m.metrics,
		Config:   cfg,
	})
	if err != nil {
		return nil, err
	}

	ls := &liveSession{
		pipeline: pipeline,
		src:      src,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[pipeline.ID()] = ls
	m.mu.Unlock()

	// the pipeline outlives the request that started it
	go func() {
		defer close(ls.done)
		ls.runErr = pipeline.Run(context.WithoutCancel(ctx))
	}()

	return pipeline, nil
}

func (m *Manager) get(id string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Shutdown cancels every session still running. Used on server stop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*liveSession, 0, len(m.sessions))
	for _, ls := range m.sessions {
		sessions = append(sessions, ls)
	}
	m.mu.Unlock()

	for _, ls := range sessions {
		ls.pipeline.Cancel()
		ls.src.Close()
		<-ls.done
		if ls.runErr != nil && !errors.Is(ls.runErr, ErrSessionCancelled) {
			log.Errorf("session %s run: %s", ls.pipeline.ID(), ls.runErr)
		}
	}
}

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.start")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("start session, unmarshal json params: %s", err)
		http.Error(w, "start session failed", http.StatusBadRequest)
		return
	}

	exercise, err := analysis.ParseExercise(req.Exercise)
	if err != nil {
		http.Error(w, "error, unknown exercise type", http.StatusBadRequest)
		return
	}

	pipeline, err := handler.manager.Start(ctx, exercise, req.Thresholds)
	switch {
	case errors.Is(err, analysis.ErrUnknownThreshold):
		http.Error(w, "error, unknown threshold", http.StatusBadRequest)
		return
	case err != nil:
		log.Errorf("failed to start %s session: %s", exercise, err)
		http.Error(w, "error, failed to start session", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(StartSessionResponse{
		SessionID: pipeline.ID(),
		Exercise:  string(pipeline.Exercise()),
	})
	if err != nil {
		log.Errorf("failed to marshal start session response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("session %s started: %s", pipeline.ID(), exercise)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

type PushFramesRequest struct {
	Frames []pose.FrameInput `json:"frames"`
}

type PushFramesResponse struct {
	Accepted int    `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
}

func (handler *Handler) HandlePushFrames(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.frames")
	defer span.End()

	ls, err := handler.session(w, r)
	if err != nil {
		return
	}

	var req PushFramesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("push frames, unmarshal json params: %s", err)
		http.Error(w, "push frames failed", http.StatusBadRequest)
		return
	}
	if len(req.Frames) == 0 {
		http.Error(w, "error, no frames given", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, in := range req.Frames {
		frame, err := in.Frame()
		if err != nil {
			http.Error(w, "error, invalid frame", http.StatusBadRequest)
			return
		}
		if err := ls.src.Push(frame); err != nil {
			// source already closed, session is winding down
			http.Error(w, "session no longer accepts frames", http.StatusConflict)
			return
		}
		accepted++
	}

	respJson, err := json.Marshal(PushFramesResponse{
		Accepted: accepted,
		Dropped:  ls.src.Dropped(),
	})
	if err != nil {
		log.Errorf("failed to marshal push frames response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.finalize")
	defer span.End()

	ls, err := handler.session(w, r)
	if err != nil {
		return
	}

	// drain what is buffered, then stop
	ls.src.Close()
	<-ls.done
	if ls.runErr != nil && !errors.Is(ls.runErr, ErrSessionCancelled) {
		log.Errorf("session %s run: %s", ls.pipeline.ID(), ls.runErr)
	}

	result, err := ls.pipeline.Result()
	if err != nil {
		log.Errorf("failed to get result for session %s: %s", ls.pipeline.ID(), err)
		http.Error(w, "error, failed to finalize session", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal session result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

type CancelSessionResponse struct {
	CancelledID string `json:"cancelledId"`
}

func (handler *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.cancel")
	defer span.End()

	ls, err := handler.session(w, r)
	if err != nil {
		return
	}

	ls.pipeline.Cancel()
	ls.src.Close()
	<-ls.done
	handler.manager.remove(ls.pipeline.ID())

	respJson, err := json.Marshal(CancelSessionResponse{
		CancelledID: ls.pipeline.ID(),
	})
	if err != nil {
		log.Errorf("failed to marshal cancel response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("session %s cancelled by client", ls.pipeline.ID())
	pkg.WriteJSONResponseOK(w, string(respJson))
}

func (handler *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.result")
	defer span.End()

	ls, err := handler.session(w, r)
	if err != nil {
		return
	}

	result, err := ls.pipeline.Result()
	switch {
	case errors.Is(err, ErrNotFinalized):
		http.Error(w, "session still running", http.StatusConflict)
		return
	case errors.Is(err, ErrSessionCancelled):
		http.Error(w, "session cancelled, no result", http.StatusGone)
		return
	case err != nil:
		log.Errorf("failed to get result for session %s: %s", ls.pipeline.ID(), err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal session result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

type ExercisesResponse struct {
	Exercises []string `json:"exercises"`
}

func (handler *Handler) HandleListExercises(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.exercises")
	defer span.End()

	exercises := make([]string, 0, len(analysis.Exercises))
	for _, ex := range analysis.Exercises {
		exercises = append(exercises, string(ex))
	}

	respJson, err := json.Marshal(ExercisesResponse{Exercises: exercises})
	if err != nil {
		log.Errorf("failed to marshal exercises response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

type AnalyzeRequest struct {
	Exercise   string             `json:"exercise"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	Frames     []pose.FrameInput  `json:"frames"`
}

// HandleAnalyze runs a whole pre-recorded frame sequence through a
// fresh pipeline and returns the finalized result in one call.
func (handler *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.session.analyze")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("analyze, unmarshal json params: %s", err)
		http.Error(w, "analyze failed", http.StatusBadRequest)
		return
	}

	exercise, err := analysis.ParseExercise(req.Exercise)
	if err != nil {
		http.Error(w, "error, unknown exercise type", http.StatusBadRequest)
		return
	}
	if len(req.Frames) == 0 {
		http.Error(w, "error, no frames given", http.StatusBadRequest)
		return
	}

	cfg, err := analysis.ConfigFor(exercise)
	if err != nil {
		http.Error(w, "error, unknown exercise type", http.StatusBadRequest)
		return
	}
	for name, value := range req.Thresholds {
		cfg, err = cfg.WithThreshold(name, value)
		if err != nil {
			http.Error(w, "error, unknown threshold", http.StatusBadRequest)
			return
		}
	}

	frames := make([]pose.Frame, 0, len(req.Frames))
	for _, in := range req.Frames {
		frame, err := in.Frame()
		if err != nil {
			http.Error(w, "error, invalid frame", http.StatusBadRequest)
			return
		}
		frames = append(frames, frame)
	}

	pipeline, err := NewPipeline(NewPipelineParams{
		Exercise: exercise,
		Source:   pose.NewSliceSource(frames),
		Manager:  handler.manager.metrics,
		Config:   cfg,
	})
	if err != nil {
		log.Errorf("failed to create %s pipeline: %s", exercise, err)
		http.Error(w, "error, failed to analyze", http.StatusInternalServerError)
		return
	}

	if err := pipeline.Run(ctx); err != nil {
		log.Errorf("analyze session %s: %s", pipeline.ID(), err)
		http.Error(w, "error, analysis aborted", http.StatusInternalServerError)
		return
	}

	result, err := pipeline.Result()
	if err != nil {
		log.Errorf("failed to get result for session %s: %s", pipeline.ID(), err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal analyze result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

// session resolves the {id} route var, writing the error response
// itself when the session cannot be found.
func (handler *Handler) session(w http.ResponseWriter, r *http.Request) (*liveSession, error) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, session id empty", http.StatusBadRequest)
		return nil, ErrSessionNotFound
	}
	ls, err := handler.manager.get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, err
	}
	return ls, nil
}
