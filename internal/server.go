package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/gymbro/formcore/internal/config"
	"github.com/gymbro/formcore/internal/middleware"
	"github.com/gymbro/formcore/internal/session"
	"github.com/gymbro/formcore/internal/telemetry/metrics"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config         *config.Config
	sessionManager *session.Manager

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewServerParams struct {
	Config      *config.Config
	VersionInfo string
}

func NewServer(params NewServerParams) *Server {
	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("formcore", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	return &Server{
		config:      params.Config,
		versionInfo: params.VersionInfo,
		sessionManager: session.NewManager(session.NewManagerParams{
			Metrics:        metricsManager,
			MinConfidence:  params.Config.MinLandmarkConfidence,
			LiveBufferSize: params.Config.LiveFrameBufferSize,
		}),
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	sessionHandler := session.NewHandler(s.sessionManager)
	r.HandleFunc("/analysis/exercises", sessionHandler.HandleListExercises).Methods("GET", "OPTIONS").Name("list-exercises")
	r.HandleFunc("/analysis/analyze", sessionHandler.HandleAnalyze).Methods("POST", "OPTIONS").Name("analyze")
	r.HandleFunc("/analysis/session", sessionHandler.HandleStart).Methods("POST", "OPTIONS").Name("start-session")
	r.HandleFunc("/analysis/session/live", sessionHandler.HandleLive).Methods("GET").Name("live-session")
	r.HandleFunc("/analysis/session/{id}/frames", sessionHandler.HandlePushFrames).Methods("POST", "OPTIONS").Name("push-frames")
	r.HandleFunc("/analysis/session/{id}/finalize", sessionHandler.HandleFinalize).Methods("POST", "OPTIONS").Name("finalize-session")
	r.HandleFunc("/analysis/session/{id}/cancel", sessionHandler.HandleCancel).Methods("POST", "OPTIONS").Name("cancel-session")
	r.HandleFunc("/analysis/session/{id}/result", sessionHandler.HandleResult).Methods("GET", "OPTIONS").Name("session-result")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET").Name("health")
	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(s.versionInfo))
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	log.Debugln("cancelling running sessions ...")
	s.sessionManager.Shutdown()

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
