// Package server exposes the prediction pipeline over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RyanBlaney/sonido-emotion/classifier"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/pipeline"
	"github.com/RyanBlaney/sonido-emotion/store"
)

// Predictor is the part of *pipeline.Pipeline the handlers use.
type Predictor interface {
	Predict(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	PredictBatch(ctx context.Context, inputs []pipeline.SamplesInput) []pipeline.BatchItem
	SelfTest(ctx context.Context) (string, error)
	Labels() classifier.Labels
}

// Options configures a Server. Predictor and Recorder are required.
type Options struct {
	Predictor           Predictor
	Recorder            store.Recorder
	AllowedOrigins      []string
	RemoteRatePerMinute int // 0 disables the limiter
	MaxUploadBytes      int64
}

// Server holds the handler dependencies.
type Server struct {
	predictor Predictor
	recorder  store.Recorder
	opts      Options
	logger    logging.Logger
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	return &Server{
		predictor: opts.Predictor,
		recorder:  opts.Recorder,
		opts:      opts,
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/emotions", s.emotions)
	r.Get("/test", s.selfTest)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/predict-emotion", s.predictSamples)
	r.Post("/predict-emotion-batch", s.predictBatch)
	r.Post("/predict-emotion-file", s.predictFile)

	r.Group(func(r chi.Router) {
		r.Use(identity)

		r.With(newClientLimiter(s.opts.RemoteRatePerMinute).middleware).
			Post("/predict-emotion-youtube", s.predictURL)
		r.Post("/save-audio", s.saveAudio)
		r.Get("/my-audio", s.myAudio)
		r.Get("/my-youtube-audio", s.myRemoteAudio)
	})

	return r
}
