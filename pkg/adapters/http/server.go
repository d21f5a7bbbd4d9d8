package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/tessera"
	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/internal/validator"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/manifest"
	"github.com/aretw0/tessera/pkg/ranking"
	"github.com/aretw0/tessera/pkg/registry"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/search"
	"github.com/aretw0/tessera/pkg/version"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Registry defines the registry operations served over HTTP.
type Registry interface {
	Register(ctx context.Context, m domain.BlockManifest) error
	Resolve(ref domain.BlockRef) (domain.BlockManifest, bool)
	Versions(namespace, name string) []string
	List(f registry.Filter) []domain.BlockManifest
	Stats() registry.Stats
	UpdateMetrics(ctx context.Context, id domain.BlockID, delta domain.MetricsDelta) (domain.BlockManifest, error)
	Transition(ctx context.Context, id domain.BlockID, to domain.LifecycleState) (domain.BlockManifest, error)
	SearchBySemantics(ctx context.Context, text string, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	SearchByType(ctx context.Context, input, output schema.Type, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	Validate(ctx context.Context, g domain.CompositionGraph) (*domain.ValidatedGraph, error)
	Requirement(g domain.CompositionGraph, atStep string) (validator.Requirement, error)
	Suggest(ctx context.Context, g domain.CompositionGraph, atStep string, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	AutoWire(g domain.CompositionGraph) (domain.CompositionGraph, []domain.Edge)
}

var _ Registry = (*tessera.Registry)(nil)

// Server serves a Registry.
type Server struct {
	Registry Registry
	Streams  *StreamManager
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams serves registry events from sm on GET /events. Wire
// sm.Hooks() into the registry so events reach subscribers.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates a new HTTP handler for the registry.
func NewHandler(reg Registry, opts ...Option) http.Handler {
	s := &Server{Registry: reg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stats", s.GetStats)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/blocks", func(r chi.Router) {
		r.Get("/", s.ListBlocks)
		r.Post("/", s.RegisterBlocks)
		r.Get("/{namespace}/{name}", s.GetBlock)
		r.Get("/{namespace}/{name}/versions", s.GetVersions)
		r.Post("/{namespace}/{name}/{version}/metrics", s.UpdateMetrics)
		r.Post("/{namespace}/{name}/{version}/transition", s.Transition)
	})
	r.Get("/search", s.SearchBySemantics)
	r.Get("/search/type", s.SearchByType)
	r.Post("/validate", s.Validate)
	r.Post("/suggest", s.Suggest)
	r.Post("/autowire", s.AutoWire)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := Spec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "tessera-http",
		"version":     strings.TrimSpace(tessera.Version),
		"api_version": apiVersion,
	})
}

// GetStats handles the GET /stats request.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Registry.Stats())
}

// ListBlocks handles the GET /blocks request.
func (s *Server) ListBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	states, err := parseStates(q["state"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	blocks := s.Registry.List(registry.Filter{Namespace: q.Get("namespace"), Tag: q.Get("tag"), States: states})
	if blocks == nil {
		blocks = []domain.BlockManifest{}
	}
	s.writeJSON(w, http.StatusOK, blocks)
}

// RegisterBlocks handles the POST /blocks request. The body is one manifest
// record or a "blocks" list, in JSON or YAML. Registration stops at the
// first failure; the blocks registered before it are reported.
func (s *Server) RegisterBlocks(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	blocks, err := manifest.DecodeDocument(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	registered := make([]domain.BlockManifest, 0, len(blocks))
	for _, m := range blocks {
		if err := s.Registry.Register(r.Context(), m); err != nil {
			s.writeError(w, r, err)
			return
		}
		stored, _ := s.Registry.Resolve(domain.BlockRef{Namespace: m.Namespace, Name: m.Name, Range: version.Exact(m.Version)})
		registered = append(registered, stored)
	}
	s.writeJSON(w, http.StatusCreated, registered)
}

// GetBlock handles the GET /blocks/{namespace}/{name} request. The optional
// range query parameter selects the highest satisfying version.
func (s *Server) GetBlock(w http.ResponseWriter, r *http.Request) {
	text := chi.URLParam(r, "namespace") + "/" + chi.URLParam(r, "name")
	if rng := r.URL.Query().Get("range"); rng != "" {
		text += "@" + rng
	}
	ref, err := domain.ParseRef(text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, ok := s.Registry.Resolve(ref)
	if !ok {
		s.writeError(w, r, notFound(ref.String()))
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// GetVersions handles the GET /blocks/{namespace}/{name}/versions request.
func (s *Server) GetVersions(w http.ResponseWriter, r *http.Request) {
	versions := s.Registry.Versions(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	if len(versions) == 0 {
		s.writeError(w, r, notFound(chi.URLParam(r, "namespace")+"/"+chi.URLParam(r, "name")))
		return
	}
	s.writeJSON(w, http.StatusOK, versions)
}

// UpdateMetrics handles the POST /blocks/{namespace}/{name}/{version}/metrics request.
func (s *Server) UpdateMetrics(w http.ResponseWriter, r *http.Request) {
	var delta domain.MetricsDelta
	if !s.decodeJSON(w, r, &delta) {
		return
	}
	m, err := s.Registry.UpdateMetrics(r.Context(), blockID(r), delta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// TransitionRequest is the body of a lifecycle transition.
type TransitionRequest struct {
	To domain.LifecycleState `json:"to"`
}

// Transition handles the POST /blocks/{namespace}/{name}/{version}/transition request.
func (s *Server) Transition(w http.ResponseWriter, r *http.Request) {
	var body TransitionRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	m, err := s.Registry.Transition(r.Context(), blockID(r), body.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// SearchBySemantics handles the GET /search request.
func (s *Server) SearchBySemantics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("q")) == "" {
		s.writeError(w, r, badRequest("query parameter q is required"))
		return
	}
	limit, opts, err := queryOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hits, err := s.Registry.SearchBySemantics(r.Context(), q.Get("q"), limit, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeHits(w, hits)
}

// SearchByType handles the GET /search/type request. Either side may be
// omitted to leave it unconstrained.
func (s *Server) SearchByType(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input, err := parseOptionalType(q.Get("input"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	output, err := parseOptionalType(q.Get("output"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, opts, err := queryOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hits, err := s.Registry.SearchByType(r.Context(), input, output, limit, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeHits(w, hits)
}

// ValidateResponse is returned by POST /validate.
type ValidateResponse struct {
	Valid    bool                   `json:"valid"`
	Graph    *domain.ValidatedGraph `json:"result,omitempty"`
	Errors   []domain.Diagnostic    `json:"errors,omitempty"`
	Warnings []domain.Diagnostic    `json:"warnings,omitempty"`
}

// Validate handles the POST /validate request. An ill-wired graph is a
// successful call: the diagnostics are the payload, served with 422.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}
	vg, err := s.Registry.Validate(r.Context(), g)
	if err != nil {
		if we, ok := asWiringErrors(err); ok {
			s.writeJSON(w, http.StatusUnprocessableEntity, ValidateResponse{Errors: we.Errors, Warnings: we.Warnings})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Graph: vg, Warnings: vg.Warnings})
}

// SuggestRequest is the body of POST /suggest.
type SuggestRequest struct {
	Graph   domain.CompositionGraph `json:"graph"`
	Step    string                  `json:"step"`
	Limit   int                     `json:"limit,omitempty"`
	Profile string                  `json:"profile,omitempty"`
}

// SuggestResponse is returned by POST /suggest.
type SuggestResponse struct {
	Requirement validator.Requirement `json:"requirement"`
	Hits        []search.Hit          `json:"hits"`
}

// Suggest handles the POST /suggest request.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var body SuggestRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	req, err := s.Registry.Requirement(body.Graph, body.Step)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var opts []search.QueryOption
	if body.Profile != "" {
		opts = append(opts, search.WithRanking(ranking.Profile(body.Profile)))
	}
	hits, err := s.Registry.Suggest(r.Context(), body.Graph, body.Step, body.Limit, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	s.writeJSON(w, http.StatusOK, SuggestResponse{Requirement: req, Hits: hits})
}

// AutoWireResponse is returned by POST /autowire.
type AutoWireResponse struct {
	Graph domain.CompositionGraph `json:"graph"`
	Added []domain.Edge           `json:"added"`
}

// AutoWire handles the POST /autowire request.
func (s *Server) AutoWire(w http.ResponseWriter, r *http.Request) {
	g, ok := s.readGraph(w, r)
	if !ok {
		return
	}
	wired, added := s.Registry.AutoWire(g)
	if added == nil {
		added = []domain.Edge{}
	}
	s.writeJSON(w, http.StatusOK, AutoWireResponse{Graph: wired, Added: added})
}

// -- Helpers --

func blockID(r *http.Request) domain.BlockID {
	return domain.BlockID{
		Namespace: chi.URLParam(r, "namespace"),
		Name:      chi.URLParam(r, "name"),
		Version:   chi.URLParam(r, "version"),
	}
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		s.writeError(w, r, badRequest("unreadable request body: "+err.Error()))
		return nil, false
	}
	return body, true
}

func (s *Server) readGraph(w http.ResponseWriter, r *http.Request) (domain.CompositionGraph, bool) {
	body, ok := s.readBody(w, r)
	if !ok {
		return domain.CompositionGraph{}, false
	}
	g, err := manifest.DecodeGraph(body)
	if err != nil {
		s.writeError(w, r, err)
		return domain.CompositionGraph{}, false
	}
	return g, true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, badRequest("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeHits(w http.ResponseWriter, hits []search.Hit) {
	if hits == nil {
		hits = []search.Hit{}
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func parseOptionalType(text string) (schema.Type, error) {
	if strings.TrimSpace(text) == "" {
		return schema.Type{}, nil
	}
	return schema.Parse(text)
}

func parseStates(values []string) ([]domain.LifecycleState, error) {
	var states []domain.LifecycleState
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			st, err := domain.ParseLifecycleState(strings.TrimSpace(part))
			if err != nil {
				return nil, badRequest(err.Error())
			}
			states = append(states, st)
		}
	}
	return states, nil
}

// queryOptions reads limit, profile, namespace, tag, category and state.
func queryOptions(q map[string][]string) (int, []search.QueryOption, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	limit := 0
	if v := get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, nil, badRequest("limit must be a non-negative integer")
		}
		limit = n
	}

	var opts []search.QueryOption
	if v := get("profile"); v != "" {
		opts = append(opts, search.WithRanking(ranking.Profile(v)))
	}
	if v := get("namespace"); v != "" {
		opts = append(opts, search.InNamespace(v))
	}
	if tags := q["tag"]; len(tags) > 0 {
		opts = append(opts, search.WithTags(tags...))
	}
	if v := get("category"); v != "" {
		opts = append(opts, search.WithCategory(v))
	}
	states, err := parseStates(q["state"])
	if err != nil {
		return 0, nil, err
	}
	if len(states) > 0 {
		opts = append(opts, search.WithStates(states...))
	}
	return limit, opts, nil
}
