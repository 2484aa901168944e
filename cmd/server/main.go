package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/moralgraph/simulator/docs"
	"github.com/moralgraph/simulator/internal/analysis"
	"github.com/moralgraph/simulator/internal/cache"
	"github.com/moralgraph/simulator/internal/config"
	"github.com/moralgraph/simulator/internal/database"
	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/export"
	"github.com/moralgraph/simulator/internal/middleware"
	"github.com/moralgraph/simulator/internal/monitoring"
	"github.com/moralgraph/simulator/internal/ratelimit"
	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/security"
	"github.com/moralgraph/simulator/internal/simulation"
	"github.com/moralgraph/simulator/internal/types"
)

// Server bundles the engine, storage, and middleware state behind the
// HTTP surface.
type Server struct {
	cfg     *config.Config
	db      *database.DB
	repo    *database.Repository
	rubric  *rubric.Rubric
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	cache   *cache.Cache
	limiter *ratelimit.RateLimiter
	redis   *ratelimit.RedisClient
}

func newServer(cfg *config.Config) (*Server, error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisURL, "", 0)
	if err != nil {
		// Degraded but serviceable: the limiter falls back to in-memory.
		slog.Warn("Continuing without Redis", "error", err)
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.IPLimitPerMin = cfg.IPRateLimitPerMin

	return &Server{
		cfg:     cfg,
		db:      db,
		repo:    database.NewRepository(db),
		rubric:  rubric.Default(),
		metrics: metrics,
		logger:  monitoring.NewLogger(),
		cache:   cache.New(cfg.CacheTTL),
		limiter: ratelimit.NewRateLimiter(redisClient, limiterCfg, metrics),
		redis:   redisClient,
	}, nil
}

// Close releases the server's storage and Redis connections.
func (s *Server) Close() error {
	if err := s.redis.Close(); err != nil {
		slog.Warn("Closing Redis client", "error", err)
	}
	return s.db.Close()
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(security.HeadersMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.Use(s.limiter.IPRateLimitMiddleware())
	// Compression registers before the cache so cached entries hold the
	// uncompressed payload.
	r.Use(middleware.NewCompressor(gzip.DefaultCompression).Handler())
	r.Use(s.cache.Middleware(s.metrics))

	r.GET("/health", s.handleHealth)
	r.GET("/rubric", s.handleRubric)
	r.POST("/simulate", s.handleSimulate)
	r.GET("/runs", s.handleListRuns)
	r.GET("/runs/:id", s.handleGetRun)
	r.DELETE("/runs/:id", s.handleDeleteRun)
	r.GET("/runs/:id/report", s.handleReport)
	r.GET("/runs/:id/export", s.handleExport)
	r.POST("/runs/import", s.handleImport)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"database":  s.db.GetPoolStats(),
		"ratelimit": s.limiter.GetStats(),
	})
}

func (s *Server) handleRubric(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dimensions": s.rubric.Dimensions(),
		"topics":     rubric.Topics,
	})
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req types.SimulateRequest
	// An empty body means "all defaults".
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		s.respondError(c, errors.NewValidationError("malformed request body", err))
		return
	}

	if req.ParticipantCount == 0 {
		req.ParticipantCount = s.cfg.DefaultParticipants
	}
	if req.ParticipantCount < 0 {
		s.respondError(c, errors.NewValidationError("participantCount must be positive"))
		return
	}
	if req.ParticipantCount > s.cfg.MaxParticipants {
		s.respondError(c, errors.NewValidationError(
			"participantCount exceeds maximum",
			"max", s.cfg.MaxParticipants))
		return
	}
	if req.InteractionsPerParticipant < 0 {
		s.respondError(c, errors.NewValidationError("interactionsPerParticipant must be positive"))
		return
	}
	if req.InteractionsPerParticipant > s.cfg.MaxInteractions {
		s.respondError(c, errors.NewValidationError(
			"interactionsPerParticipant exceeds maximum",
			"max", s.cfg.MaxInteractions))
		return
	}

	runCfg := simulation.RunConfig{
		Participants:               req.ParticipantCount,
		InteractionsPerParticipant: req.InteractionsPerParticipant,
		RandomizeInteractions:      req.InteractionsPerParticipant == 0,
		Seed:                       req.Seed,
		Workers:                    s.cfg.SimulationWorkers,
	}

	runner := simulation.NewRunner(s.rubric, simulation.NewCorrelatedGenerator())

	start := time.Now()
	result, err := runner.Run(runCfg)
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	if err := s.repo.SaveResult(result); err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	report := analysis.BuildReport(s.rubric, result)
	s.metrics.RecordSimulation(len(result.Interactions))
	s.logger.SimulationLogger(result.RunID, report.TotalParticipants, report.TotalInteractions,
		result.Seed, time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"run_id":          result.RunID,
		"dimensionScores": report.DimensionScores(),
		"metadata": gin.H{
			"total_participants": report.TotalParticipants,
			"total_interactions": report.TotalInteractions,
			"avg_total_score":    jsonNumber(report.Overall.Mean),
			"std_total_score":    jsonNumber(report.Overall.Std),
		},
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	runs, err := s.repo.ListRuns(limit)
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := s.repo.GetRun(id)
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	result, err := s.repo.LoadResult(id)
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":    run,
		"report": analysis.BuildReport(s.rubric, result),
	})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	id := c.Param("id")

	if err := s.repo.DeleteRun(id); err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	// Derived views of the run may still sit in the response cache; drop
	// everything rather than tracking per-run keys.
	s.cache.Clear()

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleReport(c *gin.Context) {
	result, err := s.repo.LoadResult(c.Param("id"))
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	report := analysis.BuildReport(s.rubric, result)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.RenderMarkdown()))
}

func (s *Server) handleExport(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "csv")

	result, err := s.repo.LoadResult(id)
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := export.WriteCSV(&buf, s.rubric, result); err != nil {
			s.respondError(c, errors.ToAppError(err))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+id+`.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "json":
		if err := export.WriteJSON(&buf, s.rubric, result); err != nil {
			s.respondError(c, errors.ToAppError(err))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+id+`.json"`)
		c.Data(http.StatusOK, "application/json", buf.Bytes())
	default:
		s.respondError(c, errors.NewValidationError("unsupported export format: "+format))
	}
}

func (s *Server) handleImport(c *gin.Context) {
	contentType := c.ContentType()

	var result *types.ExperimentResult
	var err error
	switch {
	case strings.Contains(contentType, "csv"):
		result, err = export.ReadCSV(c.Request.Body, s.rubric)
	case contentType == "application/json":
		result, err = export.ReadJSON(c.Request.Body, s.rubric)
	default:
		s.respondError(c, errors.NewValidationError("unsupported import content type: "+contentType))
		return
	}
	if err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	if len(result.Interactions) == 0 {
		s.respondError(c, errors.NewValidationError("import contains no interactions"))
		return
	}

	// Every import is stored as a new run. Minting fresh identifiers keeps
	// re-imports of the same export from colliding with the stored original.
	result.RunID = uuid.New().String()
	for i := range result.Interactions {
		result.Interactions[i].InteractionID = uuid.New().String()
	}
	now := time.Now().UTC()
	if result.StartedAt.IsZero() {
		result.StartedAt = now
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = now
	}

	if err := s.repo.SaveResult(result); err != nil {
		s.respondError(c, errors.ToAppError(err))
		return
	}

	report := analysis.BuildReport(s.rubric, result)
	c.JSON(http.StatusOK, gin.H{
		"run_id": result.RunID,
		"metadata": gin.H{
			"total_participants": report.TotalParticipants,
			"total_interactions": report.TotalInteractions,
			"avg_total_score":    jsonNumber(report.Overall.Mean),
			"std_total_score":    jsonNumber(report.Overall.Std),
		},
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":       s.metrics.GetStats(),
		"cache":     s.cache.Stats(),
		"ratelimit": s.limiter.GetStats(),
		"database":  s.db.GetPoolStats(),
	})
}

func (s *Server) respondError(c *gin.Context, appErr *errors.AppError) {
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

// jsonNumber renders NaN as null; encoding/json rejects NaN outright.
func jsonNumber(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	server, err := newServer(cfg)
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.setupRouter(),
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
