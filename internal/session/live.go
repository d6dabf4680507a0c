package session

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/gymbro/formcore/internal/analysis"
	"github.com/gymbro/formcore/internal/pose"
)

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// origin is checked by the cors middleware in front of us
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsOverlay streams per-frame annotations back over the socket. Only
// the pipeline goroutine calls Render, so writes are sequential.
type wsOverlay struct {
	conn *websocket.Conn
}

func (o *wsOverlay) Render(a Annotation) error {
	return o.conn.WriteJSON(a)
}

type liveResultMessage struct {
	Type   string  `json:"type"`
	Result *Result `json:"result"`
}

// HandleLive upgrades the connection to a websocket and runs a session
// over it: the client streams FrameInput messages, the server streams
// an annotation back per processed frame. When the client closes the
// socket the session finalizes and the result is the last message.
func (handler *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	exercise, err := analysis.ParseExercise(r.URL.Query().Get("exercise"))
	if err != nil {
		http.Error(w, "error, unknown exercise type", http.StatusBadRequest)
		return
	}

	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("live session, upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	cfg, err := analysis.ConfigFor(exercise)
	if err != nil {
		log.Errorf("live session, load config for %s: %s", exercise, err)
		return
	}
	if handler.manager.minConfidence > 0 {
		cfg.MinConfidence = handler.manager.minConfidence
	}

	src := pose.NewLiveSource(handler.manager.liveBufferSize)
	pipeline, err := NewPipeline(NewPipelineParams{
		Exercise: exercise,
		Source:   src,
		Overlay:  &wsOverlay{conn: conn},
		Manager:  handler.manager.metrics,
		Config:   cfg,
	})
	if err != nil {
		log.Errorf("live session, create pipeline: %s", err)
		return
	}

	log.Debugf("live session %s started: %s", pipeline.ID(), exercise)

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = pipeline.Run(r.Context())
	}()

	for {
		var in pose.FrameInput
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Tracef("live session %s, read frame: %s", pipeline.ID(), err)
			}
			break
		}
		frame, err := in.Frame()
		if err != nil {
			log.Tracef("live session %s, invalid frame: %s", pipeline.ID(), err)
			continue
		}
		if err := src.Push(frame); err != nil {
			break
		}
	}

	// client is gone or done sending: drain the buffer and finalize
	src.Close()
	<-done

	if runErr != nil && !errors.Is(runErr, ErrSessionCancelled) {
		log.Errorf("live session %s run: %s", pipeline.ID(), runErr)
		return
	}

	result, err := pipeline.Result()
	if err != nil {
		log.Debugf("live session %s ended without result: %s", pipeline.ID(), err)
		return
	}
	if err := conn.WriteJSON(liveResultMessage{Type: "result", Result: result}); err != nil {
		log.Tracef("live session %s, write result: %s", pipeline.ID(), err)
	}
	log.Infof("live session %s done: %d reps", pipeline.ID(), result.RepsCount)
}
