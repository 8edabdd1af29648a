// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package httpapi wires Nexus's OpenAI-compatible HTTP surface onto the
// internal orchestrator, registry, lifecycle manager, and fleet analyzer,
// using a gorilla/mux + rs/cors + promhttp server setup.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"nexus/internal/budget"
	"nexus/internal/fleet"
	"nexus/internal/lifecycle"
	"nexus/internal/logging"
	"nexus/internal/orchestrator"
	"nexus/internal/quality"
	"nexus/internal/registry"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	reg     *registry.Registry
	orch    *orchestrator.Orchestrator
	life    *lifecycle.Manager
	fleetA  *fleet.Analyzer
	quality *quality.Store
	budget  *budget.State
	log     *logging.Logger
}

// NewServer builds a Server from its collaborators.
func NewServer(reg *registry.Registry, orch *orchestrator.Orchestrator, life *lifecycle.Manager, fleetA *fleet.Analyzer, qs *quality.Store, bs *budget.State) *Server {
	return &Server{
		reg: reg, orch: orch, life: life, fleetA: fleetA, quality: qs, budget: bs,
		log: logging.New("httpapi"),
	}
}

// Router builds the gorilla/mux router with every route from the external
// interfaces surface, wrapped in permissive CORS.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/chat/completions", s.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/embeddings", s.handleEmbeddings).Methods(http.MethodPost)
	r.HandleFunc("/v1/models", s.handleListModels).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/v1/models/load", s.handleLoadModel).Methods(http.MethodPost)
	r.HandleFunc("/v1/models/{id}", s.handleUnloadModel).Methods(http.MethodDelete)
	r.HandleFunc("/v1/models/migrate", s.handleMigrateModel).Methods(http.MethodPost)

	r.HandleFunc("/v1/fleet/recommendations", s.handleFleetRecommendations).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
