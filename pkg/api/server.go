// Package api exposes the aggregation pipeline over HTTP: article browsing,
// semantic search, Q&A, collection control, digests and social reports.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	httpswagger "github.com/swaggo/http-swagger"

	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/api/auth"
	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/qa"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/social"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

//go:embed openapi.yaml
var openapiSpecYaml string

type articleStore interface {
	GetByID(ctx context.Context, id int64) (*postgres.Article, error)
	List(ctx context.Context, filter *postgres.ArticleFilter) ([]*postgres.Article, error)
	Count(ctx context.Context, filter *postgres.ArticleFilter) (int64, error)
	SearchKeyword(ctx context.Context, query string, limit int) ([]*postgres.Article, error)
	ToggleFavorite(ctx context.Context, id int64) (*postgres.Article, error)
}

type searchEngine interface {
	Search(ctx context.Context, query string, topK int, filter *postgres.SearchFilter) ([]search.Result, error)
}

type reindexer interface {
	ReindexAll(ctx context.Context) (*search.ReindexStats, error)
}

type asker interface {
	Ask(ctx context.Context, question string, topK int, filter *postgres.SearchFilter) (*qa.Answer, error)
	AskStream(ctx context.Context, question string, topK int, filter *postgres.SearchFilter, emit func(qa.Event) error) error
}

type collectorService interface {
	Start(ctx context.Context, opts collector.StartOptions) (*postgres.Task, error)
}

type taskStore interface {
	GetByID(ctx context.Context, id string) (*postgres.Task, error)
	ListRecent(ctx context.Context, limit int) ([]*postgres.Task, error)
	ListLogs(ctx context.Context, taskID string) ([]*postgres.TaskLog, error)
}

type sourceStore interface {
	List(ctx context.Context, enabledOnly bool) ([]*postgres.Source, error)
	Create(ctx context.Context, s *postgres.Source) error
}

type summaryStore interface {
	List(ctx context.Context, summaryType string, limit int) ([]*postgres.Summary, error)
}

type digestGenerator interface {
	Generate(ctx context.Context, summaryType string, hours, limit int) (*postgres.Summary, error)
}

type socialCollector interface {
	CollectAll(ctx context.Context) (*social.Result, error)
}

type socialReporter interface {
	GenerateDaily(ctx context.Context, posts []*postgres.SocialPost) (*postgres.SocialReport, error)
}

type socialReportStore interface {
	ListReports(ctx context.Context, limit int) ([]*postgres.SocialReport, error)
}

// Deps carries everything the handlers call into.
type Deps struct {
	Articles        articleStore
	Search          searchEngine
	Indexer         reindexer
	QA              asker
	Collector       collectorService
	Tasks           taskStore
	Sources         sourceStore
	Summaries       summaryStore
	Digest          digestGenerator
	SocialCollector socialCollector
	SocialReporter  socialReporter
	SocialReports   socialReportStore
}

type Server struct {
	logger *zerolog.Logger
	deps   Deps
	http   http.Server
}

func NewServer(
	logger *zerolog.Logger,
	config *Config,
	authMiddleware *auth.RouteAuthMiddleware,
	deps Deps,
) (*Server, error) {
	mux := http.NewServeMux()

	server := &Server{
		logger: logger,
		deps:   deps,
		http: http.Server{
			Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler: authMiddleware.Middleware(corsMiddleware(mux, config.CORSOrigin)),
		},
	}

	server.registerRoutes(mux)
	server.registerApiDocsHandlers(mux)

	return server, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/articles", s.listArticles)
	mux.HandleFunc("GET /v1/articles/search", s.searchArticles)
	mux.HandleFunc("GET /v1/articles/{id}", s.getArticle)
	mux.HandleFunc("POST /v1/articles/{id}/favorite", s.toggleFavorite)

	mux.HandleFunc("POST /v1/search", s.semanticSearch)
	mux.HandleFunc("POST /v1/ask", s.ask)
	mux.HandleFunc("POST /v1/ask/stream", s.askStream)
	mux.HandleFunc("POST /v1/index/rebuild", s.rebuildIndex)

	mux.HandleFunc("POST /v1/collect", s.startCollection)
	mux.HandleFunc("GET /v1/collect/tasks", s.listTasks)
	mux.HandleFunc("GET /v1/collect/tasks/{id}", s.getTask)

	mux.HandleFunc("GET /v1/sources", s.listSources)
	mux.HandleFunc("POST /v1/sources", s.createSource)

	mux.HandleFunc("GET /v1/summaries", s.listSummaries)
	mux.HandleFunc("POST /v1/summaries/generate", s.generateSummary)

	mux.HandleFunc("POST /v1/social/collect", s.collectSocial)
	mux.HandleFunc("GET /v1/social/reports", s.listSocialReports)

	mux.HandleFunc("GET /v1/healthz", s.healthz)
}

func corsMiddleware(next http.Handler, originConfig string) http.Handler {
	origins := strings.Split(originConfig, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestOrigin := r.Header.Get("Origin")

		if len(origins) == 1 && origins[0] == "*" {
			// Allow all origins
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if requestOrigin != "" && slices.Contains(origins, requestOrigin) {
			// CORS doesn't support multiple origins,
			// so we either set the origin in the header or not at all.
			w.Header().Set("Access-Control-Allow-Origin", requestOrigin)
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerApiDocsHandlers(mux *http.ServeMux) {
	mux.Handle("/docs/", httpswagger.Handler(
		httpswagger.URL("/docs/openapi.yaml"),
	))
	mux.HandleFunc("/docs/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")

		_, err := w.Write([]byte(openapiSpecYaml))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			s.logger.Error().Err(err).Msg("response write error")
		}
	})
}

func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func deserializeReq[Req any](r *http.Request, req *Req) error {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}

	reqBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(reqBytes) == 0 {
		return nil
	}

	err = json.Unmarshal(reqBytes, req)
	if err != nil {
		return fmt.Errorf("deserialize request body: %w", err)
	}

	return nil
}

func (s *Server) serializeRes(w http.ResponseWriter, res any) {
	s.serializeResStatus(w, http.StatusOK, res)
}

func (s *Server) serializeResStatus(w http.ResponseWriter, status int, res any) {
	w.Header().Add("Content-Type", "application/json")

	if res == nil {
		w.WriteHeader(status)
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}

	err := json.NewEncoder(w).Encode(res)
	if err != nil {
		s.logger.Err(err).Msg("serialize response")
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Err(err).Msg(msg)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) badRequest(w http.ResponseWriter, err error, msg string) {
	s.logger.Err(err).Msg(msg)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) notFound(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusNotFound)
}

func (s *Server) conflict(w http.ResponseWriter, err error, msg string) {
	s.logger.Warn().Err(err).Msg(msg)
	http.Error(w, err.Error(), http.StatusConflict)
}
