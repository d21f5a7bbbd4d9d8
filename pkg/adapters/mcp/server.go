package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

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

// Resource URIs.
const (
	StatsURI  = "tessera://stats"
	BlocksURI = "tessera://blocks"
)

// Registry defines the registry operations exposed as MCP tools.
type Registry interface {
	Register(ctx context.Context, m domain.BlockManifest) error
	Resolve(ref domain.BlockRef) (domain.BlockManifest, bool)
	List(f registry.Filter) []domain.BlockManifest
	Stats() registry.Stats
	Transition(ctx context.Context, id domain.BlockID, to domain.LifecycleState) (domain.BlockManifest, error)
	SearchBySemantics(ctx context.Context, text string, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	SearchByType(ctx context.Context, input, output schema.Type, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	Validate(ctx context.Context, g domain.CompositionGraph) (*domain.ValidatedGraph, error)
	Requirement(g domain.CompositionGraph, atStep string) (validator.Requirement, error)
	Suggest(ctx context.Context, g domain.CompositionGraph, atStep string, limit int, opts ...search.QueryOption) ([]search.Hit, error)
	AutoWire(g domain.CompositionGraph) (domain.CompositionGraph, []domain.Edge)
}

var _ Registry = (*tessera.Registry)(nil)

// SearchArgs are the arguments of search_blocks.
type SearchArgs struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// TypeSearchArgs are the arguments of search_by_type.
type TypeSearchArgs struct {
	Input   string `json:"input,omitempty"`
	Output  string `json:"output,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// GraphArgs carry a composition graph as YAML or JSON text.
type GraphArgs struct {
	Graph string `json:"graph"`
}

// SuggestArgs are the arguments of suggest_blocks.
type SuggestArgs struct {
	Graph   string `json:"graph"`
	Step    string `json:"step"`
	Limit   int    `json:"limit,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// RegisterArgs are the arguments of register_block.
type RegisterArgs struct {
	Manifest string `json:"manifest"`
}

// TransitionArgs are the arguments of transition_block.
type TransitionArgs struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	To        string `json:"to"`
}

// GetArgs are the arguments of get_block.
type GetArgs struct {
	Ref string `json:"ref"`
}

// HitsResponse is returned by the search tools.
type HitsResponse struct {
	Hits []search.Hit `json:"hits" jsonschema_description:"Ranked matches, best first"`
}

// ValidateResponse is returned by validate_graph. An ill-wired graph is a
// successful call with Valid unset.
type ValidateResponse struct {
	Valid    bool                `json:"valid" jsonschema_description:"Whether the graph is well-wired"`
	Order    []string            `json:"order,omitempty" jsonschema_description:"Topological order of the steps"`
	Outputs  map[string]string   `json:"outputs,omitempty" jsonschema_description:"Output type of every step"`
	Errors   []domain.Diagnostic `json:"errors,omitempty"`
	Warnings []domain.Diagnostic `json:"warnings,omitempty"`
}

// SuggestResponse is returned by suggest_blocks.
type SuggestResponse struct {
	Input  string       `json:"input" jsonschema_description:"Type the step must accept"`
	Output string       `json:"output,omitempty" jsonschema_description:"Type the step must produce, when known"`
	Hits   []search.Hit `json:"hits"`
}

// AutoWireResponse is returned by autowire_graph.
type AutoWireResponse struct {
	Graph domain.CompositionGraph `json:"graph"`
	Added []domain.Edge           `json:"added"`
}

// BlocksResponse is returned by the tools that write or read manifests.
type BlocksResponse struct {
	Blocks []domain.BlockManifest `json:"blocks"`
}

// Server wraps a Registry and exposes it as an MCP Server.
type Server struct {
	registry  Registry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(reg Registry, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		logger:   logging.NewNop(),
		mcpServer: server.NewMCPServer("tessera-mcp", strings.TrimSpace(tessera.Version),
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

const instructions = `Tessera is a registry of typed composable blocks.
Use search_blocks or search_by_type to discover blocks, validate_graph to check a composition before running it,
and suggest_blocks to fill a gap in a partial graph. Graphs are YAML or JSON with "steps" and "edges".`

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when
// ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("search_blocks",
		mcp.WithDescription("Find blocks by what they do. Results are ranked by relevance and quality."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language description of the block")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (optional)")),
		mcp.WithString("profile", mcp.Description(ranking.ProfileHelp())),
		mcp.WithString("namespace", mcp.Description("Restrict to one namespace (optional)")),
		mcp.WithOutputSchema[HitsResponse](),
	), mcp.NewStructuredToolHandler(s.handleSearch))

	s.mcpServer.AddTool(mcp.NewTool("search_by_type",
		mcp.WithDescription("Find blocks whose signature can accept an input type and produce an output type, e.g. input=Text output=List<Text>."),
		mcp.WithString("input", mcp.Description("Input type (optional)")),
		mcp.WithString("output", mcp.Description("Output type (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (optional)")),
		mcp.WithString("profile", mcp.Description("Ranking profile (optional)")),
		mcp.WithOutputSchema[HitsResponse](),
	), mcp.NewStructuredToolHandler(s.handleSearchByType))

	s.mcpServer.AddTool(mcp.NewTool("validate_graph",
		mcp.WithDescription("Check that every edge of a composition graph is type-compatible, with no cycles or unhandled results."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Composition graph as YAML or JSON")),
		mcp.WithOutputSchema[ValidateResponse](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("suggest_blocks",
		mcp.WithDescription("Suggest blocks that fit a step of a partial graph, given what feeds it and what it feeds."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Partial composition graph as YAML or JSON")),
		mcp.WithString("step", mcp.Required(), mcp.Description("Step id to fill")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (optional)")),
		mcp.WithString("profile", mcp.Description("Ranking profile (optional)")),
		mcp.WithOutputSchema[SuggestResponse](),
	), mcp.NewStructuredToolHandler(s.handleSuggest))

	s.mcpServer.AddTool(mcp.NewTool("autowire_graph",
		mcp.WithDescription("Add edges between unconnected steps whose types line up, in declaration order."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Composition graph as YAML or JSON")),
		mcp.WithOutputSchema[AutoWireResponse](),
	), mcp.NewStructuredToolHandler(s.handleAutoWire))

	s.mcpServer.AddTool(mcp.NewTool("get_block",
		mcp.WithDescription("Resolve a block reference such as core/unwrap or stdlib/email.validate@^1.0.0."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Block reference, namespace/name[@range]")),
		mcp.WithOutputSchema[BlocksResponse](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("register_block",
		mcp.WithDescription("Register one block manifest, or a list under \"blocks\". New blocks start as proposed."),
		mcp.WithString("manifest", mcp.Required(), mcp.Description("Manifest document as YAML or JSON")),
		mcp.WithOutputSchema[BlocksResponse](),
	), mcp.NewStructuredToolHandler(s.handleRegister))

	s.mcpServer.AddTool(mcp.NewTool("transition_block",
		mcp.WithDescription("Move a block version to another lifecycle state. Promotion to stable is gated on its metrics."),
		mcp.WithString("namespace", mcp.Required()),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("version", mcp.Required()),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target state: proposed, testing, stable, deprecated, archived")),
		mcp.WithOutputSchema[BlocksResponse](),
	), mcp.NewStructuredToolHandler(s.handleTransition))
}

func (s *Server) handleSearch(ctx context.Context, _ mcp.CallToolRequest, args SearchArgs) (HitsResponse, error) {
	if strings.TrimSpace(args.Query) == "" {
		return HitsResponse{}, errors.New("query is required")
	}
	opts := rankingOptions(args.Profile)
	if args.Namespace != "" {
		opts = append(opts, search.InNamespace(args.Namespace))
	}
	hits, err := s.registry.SearchBySemantics(ctx, args.Query, args.Limit, opts...)
	if err != nil {
		return HitsResponse{}, fmt.Errorf("search failed: %w", err)
	}
	return HitsResponse{Hits: nonNil(hits)}, nil
}

func (s *Server) handleSearchByType(ctx context.Context, _ mcp.CallToolRequest, args TypeSearchArgs) (HitsResponse, error) {
	input, err := parseOptionalType(args.Input)
	if err != nil {
		return HitsResponse{}, fmt.Errorf("input: %w", err)
	}
	output, err := parseOptionalType(args.Output)
	if err != nil {
		return HitsResponse{}, fmt.Errorf("output: %w", err)
	}
	hits, err := s.registry.SearchByType(ctx, input, output, args.Limit, rankingOptions(args.Profile)...)
	if err != nil {
		return HitsResponse{}, fmt.Errorf("search failed: %w", err)
	}
	return HitsResponse{Hits: nonNil(hits)}, nil
}

func (s *Server) handleValidate(ctx context.Context, _ mcp.CallToolRequest, args GraphArgs) (ValidateResponse, error) {
	g, err := manifest.DecodeGraph([]byte(args.Graph))
	if err != nil {
		return ValidateResponse{}, err
	}
	vg, err := s.registry.Validate(ctx, g)
	if err != nil {
		var we *domain.WiringErrors
		if errors.As(err, &we) {
			return ValidateResponse{Errors: we.Errors, Warnings: we.Warnings}, nil
		}
		return ValidateResponse{}, err
	}
	outputs := make(map[string]string, len(vg.Outputs))
	for id, t := range vg.Outputs {
		outputs[id] = t.String()
	}
	return ValidateResponse{Valid: true, Order: vg.Order, Outputs: outputs, Warnings: vg.Warnings}, nil
}

func (s *Server) handleSuggest(ctx context.Context, _ mcp.CallToolRequest, args SuggestArgs) (SuggestResponse, error) {
	g, err := manifest.DecodeGraph([]byte(args.Graph))
	if err != nil {
		return SuggestResponse{}, err
	}
	req, err := s.registry.Requirement(g, args.Step)
	if err != nil {
		return SuggestResponse{}, err
	}
	hits, err := s.registry.Suggest(ctx, g, args.Step, args.Limit, rankingOptions(args.Profile)...)
	if err != nil {
		return SuggestResponse{}, fmt.Errorf("suggest failed: %w", err)
	}
	resp := SuggestResponse{Input: req.Input.String(), Hits: nonNil(hits)}
	if !req.Output.IsZero() {
		resp.Output = req.Output.String()
	}
	return resp, nil
}

func (s *Server) handleAutoWire(_ context.Context, _ mcp.CallToolRequest, args GraphArgs) (AutoWireResponse, error) {
	g, err := manifest.DecodeGraph([]byte(args.Graph))
	if err != nil {
		return AutoWireResponse{}, err
	}
	wired, added := s.registry.AutoWire(g)
	if added == nil {
		added = []domain.Edge{}
	}
	return AutoWireResponse{Graph: wired, Added: added}, nil
}

func (s *Server) handleGet(_ context.Context, _ mcp.CallToolRequest, args GetArgs) (BlocksResponse, error) {
	ref, err := domain.ParseRef(args.Ref)
	if err != nil {
		return BlocksResponse{}, err
	}
	m, ok := s.registry.Resolve(ref)
	if !ok {
		return BlocksResponse{}, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, ref)
	}
	return BlocksResponse{Blocks: []domain.BlockManifest{m}}, nil
}

func (s *Server) handleRegister(ctx context.Context, _ mcp.CallToolRequest, args RegisterArgs) (BlocksResponse, error) {
	blocks, err := manifest.DecodeDocument([]byte(args.Manifest))
	if err != nil {
		return BlocksResponse{}, err
	}
	out := make([]domain.BlockManifest, 0, len(blocks))
	for _, m := range blocks {
		if err := s.registry.Register(ctx, m); err != nil {
			s.logger.Warn("MCP register rejected", "block", m.ID(), "err", err)
			return BlocksResponse{}, err
		}
		stored, _ := s.registry.Resolve(domain.BlockRef{Namespace: m.Namespace, Name: m.Name, Range: version.Exact(m.Version)})
		out = append(out, stored)
	}
	return BlocksResponse{Blocks: out}, nil
}

func (s *Server) handleTransition(ctx context.Context, _ mcp.CallToolRequest, args TransitionArgs) (BlocksResponse, error) {
	to, err := domain.ParseLifecycleState(args.To)
	if err != nil {
		return BlocksResponse{}, err
	}
	id := domain.BlockID{Namespace: args.Namespace, Name: args.Name, Version: args.Version}
	m, err := s.registry.Transition(ctx, id, to)
	if err != nil {
		return BlocksResponse{}, err
	}
	return BlocksResponse{Blocks: []domain.BlockManifest{m}}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StatsURI, "Registry Statistics",
		mcp.WithResourceDescription("Block counts by namespace, tag and lifecycle state"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(StatsURI, s.registry.Stats())
	})

	s.mcpServer.AddResource(mcp.NewResource(BlocksURI, "Registered Blocks",
		mcp.WithResourceDescription("Every proposed, testing or stable block version"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		blocks := s.registry.List(registry.Filter{States: []domain.LifecycleState{
			domain.StateProposed, domain.StateTesting, domain.StateStable,
		}})
		return jsonResource(BlocksURI, blocks)
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func rankingOptions(profile string) []search.QueryOption {
	if profile == "" {
		return nil
	}
	return []search.QueryOption{search.WithRanking(ranking.Profile(profile))}
}

func parseOptionalType(text string) (schema.Type, error) {
	if strings.TrimSpace(text) == "" {
		return schema.Type{}, nil
	}
	return schema.Parse(text)
}

func nonNil(hits []search.Hit) []search.Hit {
	if hits == nil {
		return []search.Hit{}
	}
	return hits
}
