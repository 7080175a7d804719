package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/architecture"
	"github.com/agenthands/eventgraph/internal/core/graph"
	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

const (
	defaultSimilarThreshold = 0.7
	defaultSimilarLimit     = 10
	defaultSearchTopK       = 10
	defaultPredictionWindow = 7
)

type Server struct {
	Arch *architecture.Architecture

	log      *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type Option func(*Server)

// WithRegistry serves reg on /metrics and records request metrics in it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func NewServer(arch *architecture.Architecture, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{Arch: arch, log: logging.OrNop(logger).Named("http")}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry != nil {
		s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgraph",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"})
		s.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventgraph",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"})
		for _, c := range []prometheus.Collector{s.requests, s.latency} {
			if err := s.registry.Register(c); err != nil {
				s.log.Warn("http metrics not registered", zap.Error(err))
			}
		}
	}
	return s
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger(), gin.Recovery())

	r.GET("/health", s.Health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	r.POST("/events", s.AddEvent)
	r.GET("/events/:id", s.GetEvent)
	r.POST("/events/query", s.QueryEvents)
	r.POST("/events/similar", s.SimilarEvents)
	r.GET("/events/:id/patterns", s.PatternsForEvent)
	r.GET("/events/:id/predictions", s.PredictNextEvents)
	r.POST("/relations", s.CreateRelation)

	r.POST("/patterns", s.AddPattern)
	r.GET("/patterns/:id", s.GetPattern)
	r.POST("/patterns/query", s.QueryPatterns)
	r.POST("/patterns/search", s.SearchPatterns)
	r.POST("/patterns/extract", s.ExtractPatterns)

	r.POST("/mappings", s.CreateMapping)
	r.POST("/mappings/decay", s.DecayMappings)

	r.GET("/graph/paths", s.FindPaths)
	r.GET("/graph/communities", s.Communities)
	r.GET("/graph/centrality", s.Centrality)
	r.GET("/graph/metrics", s.GraphMetrics)
	r.GET("/graph/export", s.ExportGraph)

	r.GET("/stats", s.Statistics)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		if s.requests != nil {
			s.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			s.latency.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
		}
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) Health(c *gin.Context) {
	if err := s.Arch.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindValidation, errs.KindInvalidArgument:
		status = http.StatusBadRequest
	case errs.KindDuplicateMapping:
		status = http.StatusConflict
	case errs.KindStorageUnavailable, errs.KindVectorUnavailable:
		status = http.StatusServiceUnavailable
	}
	body := gin.H{"error": err.Error()}
	var e *errs.Error
	if errors.As(err, &e) && len(e.Problems) > 0 {
		body["problems"] = e.Problems
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return n, true
}

func queryFloat(c *gin.Context, key string, def float64) (float64, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a number"})
		return 0, false
	}
	return f, true
}

type AddEventRequest struct {
	model.Event
	// Learn overrides the configured pattern learning flag.
	Learn *bool `json:"learn,omitempty"`
}

func (s *Server) AddEvent(c *gin.Context) {
	var req AddEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Arch.AddEvent(c.Request.Context(), &req.Event, req.Learn)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) GetEvent(c *gin.Context) {
	id := c.Param("id")
	e, err := s.Arch.Events.GetEvent(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if e == nil {
		s.fail(c, errs.NotFound("http.get_event", "event", id))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) QueryEvents(c *gin.Context) {
	var q model.EventQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, err)
		return
	}
	evts, err := s.Arch.QueryEvents(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts, "count": len(evts)})
}

type SimilarEventsRequest struct {
	Event     model.Event `json:"event"`
	Threshold float64     `json:"threshold"`
	Limit     int         `json:"limit"`
}

func (s *Server) SimilarEvents(c *gin.Context) {
	var req SimilarEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Threshold <= 0 {
		req.Threshold = defaultSimilarThreshold
	}
	if req.Limit <= 0 {
		req.Limit = defaultSimilarLimit
	}
	hits, err := s.Arch.FindSimilarEvents(c.Request.Context(), &req.Event, req.Threshold, req.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func (s *Server) CreateRelation(c *gin.Context) {
	var r model.EventRelation
	if err := c.ShouldBindJSON(&r); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	for _, id := range []string{r.SourceEventID, r.TargetEventID} {
		if id == "" {
			continue
		}
		e, err := s.Arch.Events.GetEvent(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		if e == nil {
			s.fail(c, errs.NotFound("http.create_relation", "event", id))
			return
		}
	}
	if err := s.Arch.Events.CreateEventRelation(ctx, &r); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) PatternsForEvent(c *gin.Context) {
	minScore, ok := queryFloat(c, "min_score", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	hits := s.Arch.Mapper.GetPatternsForEvent(c.Param("id"), minScore, limit)
	c.JSON(http.StatusOK, gin.H{"patterns": hits})
}

func (s *Server) PredictNextEvents(c *gin.Context) {
	window, ok := queryInt(c, "window_days", defaultPredictionWindow)
	if !ok {
		return
	}
	preds, err := s.Arch.PredictNextEvents(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": preds})
}

func (s *Server) AddPattern(c *gin.Context) {
	var p model.EventPattern
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.Arch.AddPattern(c.Request.Context(), &p); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p.ID})
}

func (s *Server) GetPattern(c *gin.Context) {
	id := c.Param("id")
	p, err := s.Arch.Patterns.GetPattern(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if p == nil {
		s.fail(c, errs.NotFound("http.get_pattern", "pattern", id))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) QueryPatterns(c *gin.Context) {
	var q model.PatternQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, err)
		return
	}
	pts, err := s.Arch.QueryPatterns(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": pts, "count": len(pts)})
}

// SearchPatternsRequest searches by free text through the vector index, or
// by structural match against an event when Text is empty.
type SearchPatternsRequest struct {
	Text      string       `json:"text"`
	TopK      int          `json:"top_k"`
	Event     *model.Event `json:"event"`
	Threshold float64      `json:"threshold"`
}

func (s *Server) SearchPatterns(c *gin.Context) {
	var req SearchPatternsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	var (
		matches []model.PatternMatch
		err     error
	)
	switch {
	case req.Text != "":
		if req.TopK <= 0 {
			req.TopK = defaultSearchTopK
		}
		matches, err = s.Arch.Patterns.SemanticSearchPatterns(ctx, req.Text, req.TopK)
	case req.Event != nil:
		matches, err = s.Arch.FindMatchingPatterns(ctx, req.Event, req.Threshold)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "either text or event is required"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

type ExtractPatternsRequest struct {
	Events     []model.Event `json:"events" binding:"required"`
	MinSupport int           `json:"min_support"`
}

func (s *Server) ExtractPatterns(c *gin.Context) {
	var req ExtractPatternsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pts := s.Arch.ExtractEventPatterns(req.Events, req.MinSupport)
	c.JSON(http.StatusOK, gin.H{"patterns": pts, "count": len(pts)})
}

type CreateMappingRequest struct {
	EventID    string            `json:"event_id" binding:"required"`
	PatternID  string            `json:"pattern_id" binding:"required"`
	Score      float64           `json:"score"`
	Type       model.MappingType `json:"mapping_type"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]any    `json:"metadata"`
}

func (s *Server) CreateMapping(c *gin.Context) {
	var req CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	e, err := s.Arch.Events.GetEvent(ctx, req.EventID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if e == nil {
		s.fail(c, errs.NotFound("http.create_mapping", "event", req.EventID))
		return
	}
	p, err := s.Arch.Patterns.GetPattern(ctx, req.PatternID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if p == nil {
		s.fail(c, errs.NotFound("http.create_mapping", "pattern", req.PatternID))
		return
	}

	created, err := s.Arch.Mapper.CreateMapping(ctx, req.EventID, req.PatternID, req.Score, req.Type, req.Confidence, req.Metadata)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusConflict, gin.H{"error": "mapping already exists", "key": model.MappingKey(req.EventID, req.PatternID)})
		return
	}
	c.JSON(http.StatusCreated, s.Arch.Mapper.GetMapping(req.EventID, req.PatternID))
}

type DecayMappingsRequest struct {
	EventIDs []string `json:"event_ids"`
}

// DecayMappings applies one decay step to the mappings of the given events,
// or to every mapping when none are named.
func (s *Server) DecayMappings(c *gin.Context) {
	var req DecayMappingsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	n, err := s.Arch.Mapper.UpdateMappingScores(c.Request.Context(), req.EventIDs...)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) FindPaths(c *gin.Context) {
	source, target := c.Query("source"), c.Query("target")
	if source == "" || target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and target are required"})
		return
	}
	maxLength, ok := queryInt(c, "max_length", 0)
	if !ok {
		return
	}
	paths, err := s.Arch.Graph.FindEventPaths(c.Request.Context(), source, target, c.DefaultQuery("type", "any"), maxLength)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

func (s *Server) Communities(c *gin.Context) {
	report, err := s.Arch.Graph.AnalyzeEventCommunities(c.Request.Context(), c.Query("algorithm"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) Centrality(c *gin.Context) {
	scores, err := s.Arch.Graph.CalculateCentrality(c.Request.Context(), c.Query("algorithm"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

func graphKind(c *gin.Context) (graph.Kind, bool) {
	kind, ok := graph.ParseKind(c.Query("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be event, pattern or unified"})
	}
	return kind, ok
}

func (s *Server) GraphMetrics(c *gin.Context) {
	kind, ok := graphKind(c)
	if !ok {
		return
	}
	m, err := s.Arch.Graph.GetGraphMetrics(c.Request.Context(), kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

var exportContentTypes = map[string]string{
	graph.FormatJSON:    "application/json",
	graph.FormatGEXF:    "application/xml",
	graph.FormatGraphML: "application/xml",
	graph.FormatDOT:     "text/vnd.graphviz",
}

// ExportGraph renders into memory first so a failure still yields a JSON
// error body.
func (s *Server) ExportGraph(c *gin.Context) {
	kind, ok := graphKind(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", graph.FormatJSON)
	var buf bytes.Buffer
	if err := s.Arch.Graph.ExportGraph(c.Request.Context(), &buf, kind, format); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, exportContentTypes[format], buf.Bytes())
}

func (s *Server) Statistics(c *gin.Context) {
	stats, err := s.Arch.GetArchitectureStatistics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
