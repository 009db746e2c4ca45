// Package httpapi exposes the JSON/websocket surface of SPEC_FULL.md §6:
// Material upload and listing, Question generation/retrieval/answering/
// deletion, the due-review queue, and the bidirectional chat channel.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"medtutor/internal/chatbroker"
	"medtutor/internal/config"
	"medtutor/internal/grader"
	"medtutor/internal/objectstore"
	"medtutor/internal/questiongen"
	"medtutor/internal/rag/service"
	"medtutor/internal/store"
)

// Server wires the core packages to stdlib net/http, following the
// teacher's ServeMux-plus-handler-methods shape generalized to this
// domain's resources instead of the playground's.
type Server struct {
	materials store.Materials
	questions store.Questions
	objects   objectstore.ObjectStore
	rag       *service.Service
	grader    *grader.Grader
	generator *questiongen.Generator
	broker    *chatbroker.Broker

	maxUploadBytes int64
	defaultModel   string

	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Deps collects Server's collaborators so New's signature stays readable as
// the dependency count grows.
type Deps struct {
	Materials store.Materials
	Questions store.Questions
	Objects   objectstore.ObjectStore
	RAG       *service.Service
	Grader    *grader.Grader
	Generator *questiongen.Generator
	Broker    *chatbroker.Broker
}

// NewServer builds the HTTP API server. cfg supplies the upload size limit;
// DefaultModel names the orchestrator model used when a request doesn't
// specify one.
func NewServer(deps Deps, cfg config.HTTPConfig, defaultModel string) *Server {
	s := &Server{
		materials:      deps.Materials,
		questions:      deps.Questions,
		objects:        deps.Objects,
		rag:            deps.RAG,
		grader:         deps.Grader,
		generator:      deps.Generator,
		broker:         deps.Broker,
		maxUploadBytes: cfg.MaxUploadBytes,
		defaultModel:   defaultModel,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// Same-origin is enforced upstream (reverse proxy / identity
			// middleware); this server trusts its caller.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /materials", s.handleUploadMaterial)
	s.mux.HandleFunc("GET /materials", s.handleListMaterials)

	s.mux.HandleFunc("POST /questions/generate", s.handleGenerateQuestions)
	s.mux.HandleFunc("GET /questions/due/reviews", s.handleDueReviews)
	s.mux.HandleFunc("GET /questions/{id}", s.handleGetQuestion)
	s.mux.HandleFunc("POST /questions/{id}/answer", s.handleAnswerQuestion)
	s.mux.HandleFunc("DELETE /questions/{id}", s.handleDeleteQuestion)

	s.mux.HandleFunc("GET /chat/{conversationID}", s.handleChat)
}
