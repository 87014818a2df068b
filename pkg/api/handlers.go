package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/oapi-codegen/runtime"

	"github.com/aifeedco/aifeed/pkg/api/auth"
	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/digest"
	"github.com/aifeedco/aifeed/pkg/qa"
	"github.com/aifeedco/aifeed/pkg/search"
	"github.com/aifeedco/aifeed/pkg/social"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// bindQuery binds an optional query parameter into dest using OpenAPI form
// style. List parameters are comma-separated.
func bindQuery(r *http.Request, name string, dest any) error {
	if !r.URL.Query().Has(name) {
		return nil
	}
	return runtime.BindQueryParameter("form", false, false, name, r.URL.Query(), dest)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

type ArticleResponse struct {
	ID             int64      `json:"id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	TitleZh        string     `json:"title_zh,omitempty"`
	Content        string     `json:"content,omitempty"`
	SourceName     string     `json:"source_name"`
	Category       string     `json:"category,omitempty"`
	Author         string     `json:"author,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	Topics         []string   `json:"topics,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Importance     string     `json:"importance,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	KeyPoints      []string   `json:"key_points,omitempty"`
	IsProcessed    bool       `json:"is_processed"`
	IsFavorited    bool       `json:"is_favorited"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ArticleListResponse struct {
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Articles []ArticleResponse `json:"articles"`
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	filter := &postgres.ArticleFilter{Limit: defaultPageLimit}

	if err := bindQuery(r, "limit", &filter.Limit); err != nil {
		s.badRequest(w, err, "bind limit")
		return
	}
	if err := bindQuery(r, "offset", &filter.Offset); err != nil {
		s.badRequest(w, err, "bind offset")
		return
	}
	if err := bindQuery(r, "source", &filter.SourceNames); err != nil {
		s.badRequest(w, err, "bind source")
		return
	}
	if err := bindQuery(r, "importance", &filter.Importance); err != nil {
		s.badRequest(w, err, "bind importance")
		return
	}
	if r.URL.Query().Has("processed") {
		var processed bool
		if err := bindQuery(r, "processed", &processed); err != nil {
			s.badRequest(w, err, "bind processed")
			return
		}
		filter.Processed = &processed
	}
	if r.URL.Query().Has("favorited") {
		var favorited bool
		if err := bindQuery(r, "favorited", &favorited); err != nil {
			s.badRequest(w, err, "bind favorited")
			return
		}
		filter.Favorited = &favorited
	}
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	articles, err := s.deps.Articles.List(r.Context(), filter)
	if err != nil {
		s.internalError(w, err, "list articles")
		return
	}
	total, err := s.deps.Articles.Count(r.Context(), filter)
	if err != nil {
		s.internalError(w, err, "count articles")
		return
	}

	s.serializeRes(w, ArticleListResponse{
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		Articles: serializeArticles(articles),
	})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, fmt.Errorf("invalid article id: %w", err), "parse article id")
		return
	}

	article, err := s.deps.Articles.GetByID(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		s.notFound(w, "article not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "get article")
		return
	}

	s.serializeRes(w, serializeArticle(article))
}

func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.badRequest(w, fmt.Errorf("invalid article id: %w", err), "parse article id")
		return
	}

	article, err := s.deps.Articles.ToggleFavorite(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		s.notFound(w, "article not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "toggle favorite")
		return
	}

	s.serializeRes(w, serializeArticle(article))
}

type KeywordSearchResponse struct {
	Query    string            `json:"query"`
	Count    int               `json:"count"`
	Articles []ArticleResponse `json:"articles"`
}

func (s *Server) searchArticles(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.badRequest(w, errors.New("q is required"), "validate keyword search")
		return
	}

	limit := defaultPageLimit
	if err := bindQuery(r, "limit", &limit); err != nil {
		s.badRequest(w, err, "bind limit")
		return
	}
	limit = clampLimit(limit)

	// Over-fetch so fuzzy ranking has candidates to reorder.
	matches, err := s.deps.Articles.SearchKeyword(r.Context(), query, limit*2)
	if err != nil {
		s.internalError(w, err, "keyword search")
		return
	}

	rankKeywordMatches(query, matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.serializeRes(w, KeywordSearchResponse{
		Query:    query,
		Count:    len(matches),
		Articles: serializeArticles(matches),
	})
}

// rankKeywordMatches reorders ILIKE matches by fuzzy closeness between the
// query and the titles. Rows without a fuzzy title match keep their recency
// order at the end.
func rankKeywordMatches(query string, articles []*postgres.Article) {
	type rankedArticle struct {
		article *postgres.Article
		rank    int
	}
	ranked := make([]rankedArticle, len(articles))
	for i, a := range articles {
		ranked[i] = rankedArticle{article: a, rank: titleRank(query, a)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].rank < ranked[j].rank
	})
	for i := range ranked {
		articles[i] = ranked[i].article
	}
}

func titleRank(query string, a *postgres.Article) int {
	rank := fuzzy.RankMatchNormalizedFold(query, a.Title)
	if zhRank := fuzzy.RankMatchNormalizedFold(query, a.TitleZh); zhRank >= 0 && (rank < 0 || zhRank < rank) {
		rank = zhRank
	}
	if rank < 0 {
		return math.MaxInt
	}
	return rank
}

type SearchFilters struct {
	Sources    []string   `json:"sources,omitempty"`
	Importance []string   `json:"importance,omitempty"`
	TimeFrom   *time.Time `json:"time_from,omitempty"`
	TimeTo     *time.Time `json:"time_to,omitempty"`
}

type SearchRequest struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k,omitempty"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

type SearchResultItem struct {
	Article    ArticleResponse `json:"article"`
	Similarity float64         `json:"similarity"`
}

type SearchResponse struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []SearchResultItem `json:"results"`
}

func (s *Server) semanticSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.badRequest(w, errors.New("query is required"), "validate search request")
		return
	}

	results, err := s.deps.Search.Search(r.Context(), req.Query, req.TopK, deserializeSearchFilter(req.Filters))
	if err != nil {
		s.internalError(w, err, "semantic search")
		return
	}

	s.serializeRes(w, SearchResponse{
		Query:   req.Query,
		Count:   len(results),
		Results: serializeSearchResults(results),
	})
}

type AskRequest struct {
	Question string         `json:"question"`
	TopK     int            `json:"top_k,omitempty"`
	Filters  *SearchFilters `json:"filters,omitempty"`
}

type AskResponse struct {
	Answer  string             `json:"answer"`
	Sources []SearchResultItem `json:"sources"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.badRequest(w, errors.New("question is required"), "validate ask request")
		return
	}

	answer, err := s.deps.QA.Ask(r.Context(), req.Question, req.TopK, deserializeSearchFilter(req.Filters))
	if err != nil {
		s.internalError(w, err, "answer question")
		return
	}

	s.serializeRes(w, AskResponse{
		Answer:  answer.Answer,
		Sources: serializeSearchResults(answer.Sources),
	})
}

// streamFrame is one SSE data payload. Type mirrors the qa event types:
// articles, content, done, error.
type streamFrame struct {
	Type     string              `json:"type"`
	Articles *[]SearchResultItem `json:"articles,omitempty"`
	Content  string              `json:"content,omitempty"`
	Message  string              `json:"message,omitempty"`
}

func (s *Server) askStream(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.badRequest(w, errors.New("question is required"), "validate ask request")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.internalError(w, errors.New("streaming not supported by connection"), "ask stream")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(ev qa.Event) error {
		frame := streamFrame{
			Type:    string(ev.Type),
			Content: ev.Content,
			Message: ev.Message,
		}
		if ev.Type == qa.EventArticles {
			articles := serializeSearchResults(ev.Articles)
			frame.Articles = &articles
		}

		data, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("marshal stream frame: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return fmt.Errorf("write stream frame: %w", err)
		}
		flusher.Flush()
		return nil
	}

	if err := s.deps.QA.AskStream(r.Context(), req.Question, req.TopK, deserializeSearchFilter(req.Filters), emit); err != nil {
		// Headers are already out; the failure is only visible in the log.
		s.logger.Err(err).Msg("ask stream aborted")
	}
}

type ReindexResponse struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

func (s *Server) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Indexer.ReindexAll(r.Context())
	if err != nil {
		s.internalError(w, err, "rebuild index")
		return
	}

	s.serializeRes(w, ReindexResponse{
		Total:   stats.Total,
		Success: stats.Success,
		Failed:  stats.Failed,
	})
}

type CollectRequest struct {
	AIEnabled *bool `json:"ai_enabled,omitempty"`
}

type TaskLogResponse struct {
	SourceName  string    `json:"source_name"`
	Status      string    `json:"status"`
	ItemsFound  int       `json:"items_found"`
	NewArticles int       `json:"new_articles"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type TaskResponse struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	AIEnabled       bool              `json:"ai_enabled"`
	TotalSources    int               `json:"total_sources"`
	SuccessSources  int               `json:"success_sources"`
	FailedSources   int               `json:"failed_sources"`
	NewArticles     int               `json:"new_articles"`
	AnalyzedCount   int               `json:"analyzed_count"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Logs            []TaskLogResponse `json:"logs,omitempty"`
}

func (s *Server) startCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}

	aiEnabled := true
	if req.AIEnabled != nil {
		aiEnabled = *req.AIEnabled
	}

	logEvent := s.logger.Info().Bool("ai_enabled", aiEnabled)
	if caller, err := auth.CallerFromContext(r.Context()); err == nil {
		logEvent = logEvent.Str("requested_by", caller.Owner)
	}

	task, err := s.deps.Collector.Start(r.Context(), collector.StartOptions{AIEnabled: aiEnabled})
	if errors.Is(err, collector.ErrTaskRunning) {
		s.conflict(w, err, "start collection")
		return
	}
	if err != nil {
		s.internalError(w, err, "start collection")
		return
	}

	logEvent.Str("task_id", task.ID).Msg("Collection started")
	s.serializeResStatus(w, http.StatusAccepted, serializeTask(task, nil))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if err := bindQuery(r, "limit", &limit); err != nil {
		s.badRequest(w, err, "bind limit")
		return
	}

	tasks, err := s.deps.Tasks.ListRecent(r.Context(), clampLimit(limit))
	if err != nil {
		s.internalError(w, err, "list tasks")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, serializeTask(task, nil))
	}
	s.serializeRes(w, map[string][]TaskResponse{"tasks": out})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := s.deps.Tasks.GetByID(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		s.notFound(w, "task not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "get task")
		return
	}

	logs, err := s.deps.Tasks.ListLogs(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "list task logs")
		return
	}

	s.serializeRes(w, serializeTask(task, logs))
}

type SourceResponse struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Kind            string     `json:"kind"`
	URL             string     `json:"url"`
	Category        string     `json:"category,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastCollectedAt *time.Time `json:"last_collected_at,omitempty"`
	ArticleCount    int64      `json:"article_count"`
	ErrorCount      int64      `json:"error_count"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type CreateSourceRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	var enabledOnly bool
	if err := bindQuery(r, "enabled", &enabledOnly); err != nil {
		s.badRequest(w, err, "bind enabled")
		return
	}

	sources, err := s.deps.Sources.List(r.Context(), enabledOnly)
	if err != nil {
		s.internalError(w, err, "list sources")
		return
	}

	out := make([]SourceResponse, 0, len(sources))
	for _, src := range sources {
		out = append(out, serializeSource(src))
	}
	s.serializeRes(w, map[string][]SourceResponse{"sources": out})
}

var sourceKinds = []string{
	postgres.SourceKindRSS,
	postgres.SourceKindReddit,
	postgres.SourceKindHackerNews,
	postgres.SourceKindGitHub,
	postgres.SourceKindMastodon,
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}

	if req.Name == "" || req.Kind == "" || req.URL == "" {
		s.badRequest(w, errors.New("name, kind and url are required"), "validate source")
		return
	}
	if !slices.Contains(sourceKinds, req.Kind) {
		s.badRequest(w, fmt.Errorf("unknown source kind %q", req.Kind), "validate source")
		return
	}

	src := &postgres.Source{
		Name:     req.Name,
		Kind:     req.Kind,
		URL:      req.URL,
		Category: req.Category,
		Enabled:  true,
	}
	if req.Enabled != nil {
		src.Enabled = *req.Enabled
	}

	if err := s.deps.Sources.Create(r.Context(), src); err != nil {
		if isUniqueViolation(err) {
			s.conflict(w, err, "create source")
			return
		}
		s.internalError(w, err, "create source")
		return
	}

	s.serializeResStatus(w, http.StatusCreated, serializeSource(src))
}

type SummaryResponse struct {
	ID                    int64                         `json:"id"`
	SummaryType           string                        `json:"summary_type"`
	DateBucket            time.Time                     `json:"date_bucket"`
	RangeStart            time.Time                     `json:"range_start"`
	RangeEnd              time.Time                     `json:"range_end"`
	Content               string                        `json:"content"`
	TotalArticles         int                           `json:"total_articles"`
	HighImportanceCount   int                           `json:"high_importance_count"`
	MediumImportanceCount int                           `json:"medium_importance_count"`
	KeyTopics             []string                      `json:"key_topics,omitempty"`
	Recommended           []postgres.RecommendedArticle `json:"recommended,omitempty"`
	ModelUsed             string                        `json:"model_used,omitempty"`
	CreatedAt             time.Time                     `json:"created_at"`
	UpdatedAt             time.Time                     `json:"updated_at"`
}

type GenerateSummaryRequest struct {
	Type  string `json:"type,omitempty"`
	Hours int    `json:"hours,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func validSummaryType(summaryType string) bool {
	return summaryType == postgres.SummaryTypeDaily || summaryType == postgres.SummaryTypeWeekly
}

func (s *Server) listSummaries(w http.ResponseWriter, r *http.Request) {
	var summaryType string
	if err := bindQuery(r, "type", &summaryType); err != nil {
		s.badRequest(w, err, "bind type")
		return
	}
	if summaryType != "" && !validSummaryType(summaryType) {
		s.badRequest(w, fmt.Errorf("unknown summary type %q", summaryType), "validate summary type")
		return
	}

	limit := defaultPageLimit
	if err := bindQuery(r, "limit", &limit); err != nil {
		s.badRequest(w, err, "bind limit")
		return
	}

	summaries, err := s.deps.Summaries.List(r.Context(), summaryType, clampLimit(limit))
	if err != nil {
		s.internalError(w, err, "list summaries")
		return
	}

	out := make([]SummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, serializeSummary(summary))
	}
	s.serializeRes(w, map[string][]SummaryResponse{"summaries": out})
}

func (s *Server) generateSummary(w http.ResponseWriter, r *http.Request) {
	var req GenerateSummaryRequest
	if err := deserializeReq(r, &req); err != nil {
		s.badRequest(w, err, "deserialize request")
		return
	}

	if req.Type == "" {
		req.Type = postgres.SummaryTypeDaily
	}
	if !validSummaryType(req.Type) {
		s.badRequest(w, fmt.Errorf("unknown summary type %q", req.Type), "validate summary type")
		return
	}

	summary, err := s.deps.Digest.Generate(r.Context(), req.Type, req.Hours, req.Limit)
	if errors.Is(err, digest.ErrNoArticles) {
		s.notFound(w, "no processed articles in range")
		return
	}
	if err != nil {
		s.internalError(w, err, "generate summary")
		return
	}

	s.serializeRes(w, serializeSummary(summary))
}

type SocialReportResponse struct {
	ID                int64           `json:"id"`
	ReportDate        time.Time       `json:"report_date"`
	YouTubeCount      int             `json:"youtube_count"`
	TikTokCount       int             `json:"tiktok_count"`
	TwitterCount      int             `json:"twitter_count"`
	RedditCount       int             `json:"reddit_count"`
	Content           string          `json:"content"`
	Platforms         map[string]bool `json:"platforms,omitempty"`
	ModelUsed         string          `json:"model_used,omitempty"`
	GenerationSeconds float64         `json:"generation_seconds"`
	CreatedAt         time.Time       `json:"created_at"`
}

type SocialCollectResponse struct {
	Total  int                   `json:"total"`
	Counts map[string]int        `json:"counts"`
	Report *SocialReportResponse `json:"report,omitempty"`
}

func (s *Server) collectSocial(w http.ResponseWriter, r *http.Request) {
	logEvent := s.logger.Info()
	if caller, err := auth.CallerFromContext(r.Context()); err == nil {
		logEvent = logEvent.Str("requested_by", caller.Owner)
	}

	result, err := s.deps.SocialCollector.CollectAll(r.Context())
	if err != nil {
		s.internalError(w, err, "collect social posts")
		return
	}
	logEvent.Int("posts", result.Total).Msg("Social collection finished")

	resp := SocialCollectResponse{
		Total:  result.Total,
		Counts: result.Counts,
	}

	report, err := s.deps.SocialReporter.GenerateDaily(r.Context(), result.Posts)
	switch {
	case errors.Is(err, social.ErrNoPosts):
		// Nothing viral today; the counts alone are the result.
	case err != nil:
		s.internalError(w, err, "generate social report")
		return
	default:
		serialized := serializeSocialReport(report)
		resp.Report = &serialized
	}

	s.serializeRes(w, resp)
}

func (s *Server) listSocialReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if err := bindQuery(r, "limit", &limit); err != nil {
		s.badRequest(w, err, "bind limit")
		return
	}

	reports, err := s.deps.SocialReports.ListReports(r.Context(), clampLimit(limit))
	if err != nil {
		s.internalError(w, err, "list social reports")
		return
	}

	out := make([]SocialReportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, serializeSocialReport(report))
	}
	s.serializeRes(w, map[string][]SocialReportResponse{"reports": out})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.serializeRes(w, map[string]string{"status": "ok"})
}

func deserializeSearchFilter(in *SearchFilters) *postgres.SearchFilter {
	if in == nil {
		return nil
	}
	return &postgres.SearchFilter{
		Sources:    in.Sources,
		Importance: in.Importance,
		TimeFrom:   in.TimeFrom,
		TimeTo:     in.TimeTo,
	}
}

func serializeArticles(in []*postgres.Article) []ArticleResponse {
	out := make([]ArticleResponse, 0, len(in))
	for _, a := range in {
		out = append(out, serializeArticle(a))
	}
	return out
}

func serializeArticle(a *postgres.Article) ArticleResponse {
	return ArticleResponse{
		ID:             a.ID,
		URL:            a.URL,
		Title:          a.Title,
		TitleZh:        a.TitleZh,
		Content:        a.Content,
		SourceName:     a.SourceName,
		Category:       a.Category,
		Author:         a.Author,
		PublishedAt:    a.PublishedAt,
		Summary:        a.Summary,
		Topics:         a.Topics,
		Tags:           a.Tags,
		Importance:     a.Importance,
		TargetAudience: a.TargetAudience,
		KeyPoints:      a.KeyPoints,
		IsProcessed:    a.IsProcessed,
		IsFavorited:    a.IsFavorited,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func serializeSearchResults(in []search.Result) []SearchResultItem {
	out := make([]SearchResultItem, 0, len(in))
	for _, res := range in {
		out = append(out, SearchResultItem{
			Article:    serializeArticle(res.Article),
			Similarity: res.Similarity,
		})
	}
	return out
}

func serializeTask(t *postgres.Task, logs []*postgres.TaskLog) TaskResponse {
	resp := TaskResponse{
		ID:              t.ID,
		Status:          t.Status,
		AIEnabled:       t.AIEnabled,
		TotalSources:    t.TotalSources,
		SuccessSources:  t.SuccessSources,
		FailedSources:   t.FailedSources,
		NewArticles:     t.NewArticles,
		AnalyzedCount:   t.AnalyzedCount,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		DurationSeconds: t.DurationSeconds,
		ErrorMessage:    t.ErrorMessage,
	}
	for _, l := range logs {
		resp.Logs = append(resp.Logs, TaskLogResponse{
			SourceName:  l.SourceName,
			Status:      l.Status,
			ItemsFound:  l.ItemsFound,
			NewArticles: l.NewArticles,
			Message:     l.Message,
			CreatedAt:   l.CreatedAt,
		})
	}
	return resp
}

func serializeSource(src *postgres.Source) SourceResponse {
	return SourceResponse{
		ID:              src.ID,
		Name:            src.Name,
		Kind:            src.Kind,
		URL:             src.URL,
		Category:        src.Category,
		Enabled:         src.Enabled,
		LastCollectedAt: src.LastCollectedAt,
		ArticleCount:    src.ArticleCount,
		ErrorCount:      src.ErrorCount,
		LastError:       src.LastError,
		CreatedAt:       src.CreatedAt,
	}
}

func serializeSummary(summary *postgres.Summary) SummaryResponse {
	return SummaryResponse{
		ID:                    summary.ID,
		SummaryType:           summary.SummaryType,
		DateBucket:            summary.DateBucket,
		RangeStart:            summary.RangeStart,
		RangeEnd:              summary.RangeEnd,
		Content:               summary.Content,
		TotalArticles:         summary.TotalArticles,
		HighImportanceCount:   summary.HighImportanceCount,
		MediumImportanceCount: summary.MediumImportanceCount,
		KeyTopics:             summary.KeyTopics,
		Recommended:           summary.Recommended,
		ModelUsed:             summary.ModelUsed,
		CreatedAt:             summary.CreatedAt,
		UpdatedAt:             summary.UpdatedAt,
	}
}

func serializeSocialReport(report *postgres.SocialReport) SocialReportResponse {
	return SocialReportResponse{
		ID:                report.ID,
		ReportDate:        report.ReportDate,
		YouTubeCount:      report.YouTubeCount,
		TikTokCount:       report.TikTokCount,
		TwitterCount:      report.TwitterCount,
		RedditCount:       report.RedditCount,
		Content:           report.Content,
		Platforms:         report.Platforms,
		ModelUsed:         report.ModelUsed,
		GenerationSeconds: report.GenerationSeconds,
		CreatedAt:         report.CreatedAt,
	}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
