package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/interfaces"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"
	"deribit-gateway/src/rpc"
	"deribit-gateway/src/tools"
	"deribit-gateway/src/upstream"
	"deribit-gateway/src/utils"
)

// -----------------------------------------------------------------------------
// GatewayServer
// -----------------------------------------------------------------------------

type GatewayServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server

	registry *tools.Registry
	client   *upstream.Client
	ring     *utils.MetricsRing
	store    interfaces.IDatabase
	info     rpc.ServerInfo

	// Active sessions keyed by id (stream transports only)
	sessions   map[string]*rpc.Session
	sessionsMu sync.RWMutex

	rootCtx    context.Context
	rootCancel context.CancelFunc

	startedAt time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewGatewayServer(cfg *models.MConfig, log *logger.Logger, registry *tools.Registry, client *upstream.Client, ring *utils.MetricsRing, store interfaces.IDatabase, info rpc.ServerInfo) *GatewayServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &GatewayServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.New(),
		registry:   registry,
		client:     client,
		ring:       ring,
		store:      store,
		info:       info,
		sessions:   make(map[string]*rpc.Session),
		rootCtx:    ctx,
		rootCancel: cancel,
		startedAt:  time.Now(),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *GatewayServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/tools", s.getTools)
	s.engine.POST("/tools/call", s.postToolsCall)
	s.engine.GET("/metrics", s.getMetrics)
	s.engine.GET("/invocations", s.getInvocations)

	// RPC stream endpoints
	s.engine.GET("/sse", s.handleSSE)
	s.engine.POST("/messages", s.handleMessages)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *GatewayServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

// Stop shuts the listener down and tears down every live session.
func (s *GatewayServer) Stop(ctx context.Context) error {
	s.rootCancel()

	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Session bookkeeping
// -----------------------------------------------------------------------------

func (s *GatewayServer) addSession(sess *rpc.Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()
}

func (s *GatewayServer) removeSession(id string) {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()
	if ok {
		sess.Close()
	}
}

func (s *GatewayServer) lookupSession(id string) *rpc.Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[id]
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *GatewayServer) getHealth(c *gin.Context) {
	s.sessionsMu.RLock()
	connections := len(s.sessions)
	s.sessionsMu.RUnlock()

	c.JSON(200, gin.H{
		"status":          "ok",
		"connections":     connections,
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"system_total_mb": helpers.GetTotalSystemMemoryMB(),
	})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) getTools(c *gin.Context) {
	c.JSON(200, gin.H{"tools": s.registry.List()})
}

// -----------------------------------------------------------------------------

// postToolsCall is the plain HTTP invocation path, no RPC session needed.
func (s *GatewayServer) postToolsCall(c *gin.Context) {
	var body struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		c.JSON(400, gin.H{"error": "body must carry a tool name"})
		return
	}

	payload, err := s.registry.Invoke(c.Request.Context(), body.Name, body.Arguments)
	if err != nil {
		var unknown *tools.ErrUnknownTool
		var invalid *tools.ErrInvalidArgs
		switch {
		case asErr(err, &unknown):
			c.JSON(404, gin.H{"error": err.Error()})
		case asErr(err, &invalid):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			c.JSON(500, gin.H{"error": err.Error()})
		}
		return
	}
	c.Data(200, "application/json", payload)
}

// -----------------------------------------------------------------------------

// getInvocations surfaces the persisted tool call log, newest first.
func (s *GatewayServer) getInvocations(c *gin.Context) {
	if s.store == nil {
		c.JSON(200, gin.H{"invocations": []models.MInvocation{}})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(400, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	invocations, err := s.store.RecentInvocations(limit)
	if err != nil {
		s.Logger.Error("reading invocation log failed: %v", err)
		c.JSON(500, gin.H{"error": "reading invocation log failed"})
		return
	}
	if invocations == nil {
		invocations = []models.MInvocation{}
	}
	c.JSON(200, gin.H{"invocations": invocations})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) getMetrics(c *gin.Context) {
	metrics := models.MProcessingMetrics{}
	if s.ring != nil {
		metrics = s.ring.Summary()
	}
	if s.client != nil {
		stats := s.client.GetCacheStats()
		metrics.CacheHits = stats.Hits
		metrics.CacheMisses = stats.Misses
	}
	c.JSON(200, metrics)
}
